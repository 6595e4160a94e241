package jwt_test

import (
	"strings"
	"testing"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwk"
	"github.com/picatz/jose/v2/pkg/jwt"
	"github.com/stretchr/testify/require"
)

func TestSecurityVulnerabilities(t *testing.T) {
	t.Run("Algorithm Confusion Attack", func(t *testing.T) {
		// A token signed with HMAC must not verify against an asymmetric
		// public key, whatever bytes the attacker used as the secret.
		ecKey := newKey(t, jwk.TypeEC256, "")

		token, err := fullBuilder().Sign(jwa.HS256, secretKey(t, 32))
		require.NoError(t, err)

		_, err = jwt.Decode(token.String(), ecKey.WellKnown(), clock(now))
		require.ErrorIs(t, err, jose.ErrVerification)
	})

	t.Run("Weak HMAC Key", func(t *testing.T) {
		_, err := fullBuilder().Sign(jwa.HS256, secretKey(t, 16))
		var serr *jwt.ErrSigningFailed
		require.ErrorAs(t, err, &serr)

		// A key too short for its own "alg" cannot even be built.
		_, err = jwk.NewBuilder(jwk.TypeOctet).Algorithm(jwa.HS512).Secret(make([]byte, 32)).Build()
		require.Error(t, err)
	})

	t.Run("None Algorithm Security", func(t *testing.T) {
		key := secretKey(t, 32)
		payload := base64.Encode([]byte(`{"sub":"admin"}`))

		for _, alg := range []string{"none", "None", "NONE", "nOnE"} {
			token := base64.Encode([]byte(`{"alg":"`+alg+`","typ":"JWT"}`)) + "." + payload + "."
			_, err := jwt.Decode(token, key, clock(now))
			require.Error(t, err, alg)
		}
	})

	t.Run("Missing Algorithm Header", func(t *testing.T) {
		token := base64.Encode([]byte(`{"typ":"JWT"}`)) + "." + base64.Encode([]byte(`{"sub":"admin"}`)) + ".c2ln"
		_, err := jwt.Decode(token, secretKey(t, 32), clock(now))
		var herr *jose.HeaderError
		require.ErrorAs(t, err, &herr)
	})

	t.Run("Empty Algorithm Header", func(t *testing.T) {
		token := base64.Encode([]byte(`{"alg":"","typ":"JWT"}`)) + "." + base64.Encode([]byte(`{"sub":"admin"}`)) + ".c2ln"
		_, err := jwt.Decode(token, secretKey(t, 32), clock(now))
		require.Error(t, err)
	})

	t.Run("Key ID Mismatch", func(t *testing.T) {
		signer, err := jwk.NewBuilder(jwk.TypeEC256).KeyID("current").Ephemeral()
		require.NoError(t, err)

		token, err := fullBuilder().Sign(jwa.ES256, signer)
		require.NoError(t, err)
		require.Equal(t, "current", token.Header().KeyID())

		other, err := jwk.NewBuilder(jwk.TypeEC256).KeyID("previous").Ephemeral()
		require.NoError(t, err)

		_, err = jwt.Decode(token.String(), other.WellKnown(), clock(now))
		require.ErrorIs(t, err, jose.ErrVerification)
	})
}

func TestInvalidSignatures(t *testing.T) {
	key := newKey(t, jwk.TypeEC256, "")
	token, err := fullBuilder().Sign(jwa.ES256, key)
	require.NoError(t, err)

	parts := strings.Split(token.String(), ".")

	t.Run("Tampered Signature", func(t *testing.T) {
		sig, err := base64.Decode(parts[2])
		require.NoError(t, err)
		sig[0] ^= 0xff

		_, err = jwt.Decode(parts[0]+"."+parts[1]+"."+base64.Encode(sig), key.WellKnown(), clock(now))
		require.ErrorIs(t, err, jose.ErrVerification)
	})

	t.Run("Tampered Claims", func(t *testing.T) {
		forged := base64.Encode([]byte(`{"sub":"admin","aud":"api","iss":"https://auth.example.com"}`))
		_, err := jwt.Decode(parts[0]+"."+forged+"."+parts[2], key.WellKnown(), clock(now))
		require.ErrorIs(t, err, jose.ErrVerification)
	})

	t.Run("ECDSA Signature Length Validation", func(t *testing.T) {
		sig, err := base64.Decode(parts[2])
		require.NoError(t, err)
		require.Len(t, sig, 64)

		_, err = jwt.Decode(parts[0]+"."+parts[1]+"."+base64.Encode(sig[:63]), key.WellKnown(), clock(now))
		require.ErrorIs(t, err, jose.ErrVerification)
	})

	t.Run("Wrong Key Type for Algorithm", func(t *testing.T) {
		_, err := jwt.Decode(token.String(), newKey(t, jwk.TypeEd25519, "").WellKnown(), clock(now))
		require.ErrorIs(t, err, jose.ErrVerification)
	})

	t.Run("Private Key Verifies", func(t *testing.T) {
		_, err := jwt.Decode(token.String(), key, clock(now))
		require.NoError(t, err)
	})
}

func TestParsingVulnerabilities(t *testing.T) {
	key := secretKey(t, 32)

	for _, malformed := range []string{
		"..",
		"a..c",
		"eyJhbGciOiJIUzI1NiJ9..",
		"eyJhbGciOiJIUzI1NiJ9.e30.sig with spaces",
		"eyJhbGciOiJIUzI1NiJ9.e30=.c2ln",
		" eyJhbGciOiJIUzI1NiJ9.e30.c2ln",
		"....",
	} {
		t.Run("malformed_"+malformed, func(t *testing.T) {
			_, err := jwt.DecodeEncrypted(malformed, key, key, clock(now))
			require.Error(t, err)
		})
	}

	t.Run("Invalid JSON in Header", func(t *testing.T) {
		token := base64.Encode([]byte(`{"alg":"HS256"`)) + ".e30.c2ln"
		_, err := jwt.Decode(token, key, clock(now))
		require.Error(t, err)
	})
}

func TestUnusualClaims(t *testing.T) {
	key := secretKey(t, 32)

	t.Run("Large Payload Handling", func(t *testing.T) {
		large := strings.Repeat("x", 1<<16)
		token, err := fullBuilder().Claim("blob", large).Sign(jwa.HS256, key)
		require.NoError(t, err)

		decoded, err := jwt.Decode(token.String(), key, clock(now))
		require.NoError(t, err)
		require.Equal(t, large, decoded.Claims()["blob"])
	})

	t.Run("Unicode and Special Characters", func(t *testing.T) {
		for _, sub := range []string{"用户", "пользователь", "🔐", "a\"b\\c", "<script>"} {
			token, err := fullBuilder().Subject(sub).Sign(jwa.HS256, key)
			require.NoError(t, err)

			decoded, err := jwt.Decode(token.String(), key, clock(now))
			require.NoError(t, err)
			require.Equal(t, sub, decoded.Claims().Subject())
		}
	})

	t.Run("Empty and Whitespace Claims", func(t *testing.T) {
		token, err := fullBuilder().Subject("   ").Claim("empty", "").Sign(jwa.HS256, key)
		require.NoError(t, err)

		decoded, err := jwt.Decode(token.String(), key, clock(now))
		require.NoError(t, err)
		require.Equal(t, "   ", decoded.Claims().Subject())
		require.Equal(t, "", decoded.Claims()["empty"])
	})
}
