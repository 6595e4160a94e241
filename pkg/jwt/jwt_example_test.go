package jwt_test

import (
	"fmt"
	"log"
	"time"

	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwk"
	"github.com/picatz/jose/v2/pkg/jwt"
)

func ExampleBuilder_Sign() {
	key, err := jwk.NewBuilder(jwk.TypeEd25519).KeyID("2024-01").Ephemeral()
	if err != nil {
		log.Fatal(err)
	}

	issued := time.Now()
	token, err := jwt.NewBuilder().
		Issuer("https://auth.example.com").
		Subject("alice").
		Audience("api").
		IssuedAt(issued).
		Expires(issued.Add(15 * time.Minute)).
		Sign(jwa.EdDSA, key)
	if err != nil {
		log.Fatal(err)
	}

	// Verifiers only need the published key.
	decoded, err := jwt.Decode(token.String(), key.WellKnown())
	if err != nil {
		log.Fatal(err)
	}
	if err := decoded.ValidateClaims("api", time.Hour); err != nil {
		log.Fatal(err)
	}

	fmt.Println(decoded.Claims().Subject())
	fmt.Println(decoded.Header().KeyID())
	// Output:
	// alice
	// 2024-01
}

func ExampleBuilder_SignAndEncrypt() {
	signer, err := jwk.NewBuilder(jwk.TypeEC256).Ephemeral()
	if err != nil {
		log.Fatal(err)
	}
	recipient, err := jwk.NewBuilder(jwk.TypeX25519).Ephemeral()
	if err != nil {
		log.Fatal(err)
	}

	token, err := jwt.NewBuilder().
		Subject("alice").
		Claim("scope", "payments").
		SignAndEncrypt(jwa.ES256, signer, jwa.ECDHESA256KW, jwa.A256GCM, recipient.WellKnown())
	if err != nil {
		log.Fatal(err)
	}

	decoded, err := jwt.DecodeEncrypted(token.String(), signer.WellKnown(), recipient)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(decoded.Nested(), decoded.Header().ContentType())
	fmt.Println(decoded.Claims()["scope"])
	// Output:
	// true JWT
	// payments
}
