package jwt

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwe"
	"github.com/picatz/jose/v2/pkg/jwk"
	"github.com/picatz/jose/v2/pkg/jws"
)

// Builder assembles a claims set and wraps it in a signed, encrypted, or
// nested token. Methods record the first error they encounter, which the
// terminal method returns. A Builder must not be used from more than one
// goroutine.
//
//	token, err := jwt.NewBuilder().
//		Issuer("https://auth.example.com").
//		Subject("alice").
//		Audience("api").
//		IssuedAt(now).
//		Expires(now.Add(time.Hour)).
//		Sign(jwa.ES256, key)
type Builder struct {
	config  *config
	claims  ClaimsSet
	typ     string
	headers header.Parameters
	err     error
}

// NewBuilder returns a builder with an empty claims set and the "typ"
// header "JWT".
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{claims: ClaimsSet{}, typ: Type, headers: header.Parameters{}}
	b.config, b.err = newConfig(opts...)
	return b
}

// ID sets the "jti" claim.
func (b *Builder) ID(id string) *Builder { return b.Claim(JWTID, id) }

// GenerateID sets the "jti" claim to a random UUID.
func (b *Builder) GenerateID() *Builder { return b.Claim(JWTID, uuid.New().String()) }

// Issuer sets the "iss" claim.
func (b *Builder) Issuer(iss string) *Builder { return b.Claim(Issuer, iss) }

// Subject sets the "sub" claim.
func (b *Builder) Subject(sub string) *Builder { return b.Claim(Subject, sub) }

// Audience sets the "aud" claim.
func (b *Builder) Audience(aud ...string) *Builder {
	return b.Claim(Audience, append([]string(nil), aud...))
}

// IssuedAt sets the "iat" claim.
func (b *Builder) IssuedAt(t time.Time) *Builder { return b.Claim(IssuedAt, t) }

// NotBefore sets the "nbf" claim.
func (b *Builder) NotBefore(t time.Time) *Builder { return b.Claim(NotBefore, t) }

// Expires sets the "exp" claim.
func (b *Builder) Expires(t time.Time) *Builder { return b.Claim(ExpirationTime, t) }

// Nonce sets the "nonce" claim.
func (b *Builder) Nonce(nonce string) *Builder { return b.Claim(Nonce, nonce) }

// Claim sets a claim. Registered claims are checked by the terminal method.
func (b *Builder) Claim(name ClaimName, value ClaimValue) *Builder {
	b.claims[name] = value
	return b
}

// Type sets the "typ" header of the token.
func (b *Builder) Type(typ string) *Builder {
	b.typ = typ
	return b
}

// Header sets a protected header parameter of the signature, or of the
// encryption when the token is only encrypted.
func (b *Builder) Header(name string, value any) *Builder {
	b.headers[name] = value
	return b
}

// Build returns the claims set.
func (b *Builder) Build() (ClaimsSet, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.claims) == 0 {
		return nil, ErrNoClaimSet
	}
	claims := b.claims.Clone()
	if err := claims.normalize(); err != nil {
		return nil, err
	}
	return claims, nil
}

func (b *Builder) payload() (ClaimsSet, []byte, error) {
	claims, err := b.Build()
	if err != nil {
		return nil, nil, err
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return nil, nil, err
	}
	return claims, payload, nil
}

func (b *Builder) sign(payload []byte, alg jwa.Algorithm, key *jwk.Key) (*jws.Signed, string, error) {
	sb := jws.NewBuilder(b.config.jwsOptions()...).
		Signature(alg, key).
		Header(header.Type, b.typ)
	for name, value := range b.headers {
		sb.Header(name, value)
	}
	signed, err := sb.Sign(payload)
	if err != nil {
		return nil, "", NewSigningError(err)
	}
	compact, err := signed.Compact()
	if err != nil {
		return nil, "", NewSigningError(err)
	}
	return signed, compact, nil
}

func (b *Builder) encrypt(plaintext []byte, alg, enc jwa.Algorithm, key *jwk.Key, nested bool) (*jwe.Encrypted, string, error) {
	jb := jwe.NewBuilder(enc, b.config.jweOptions()...).
		Recipient(alg, key).
		Protected(header.Type, b.typ)
	if nested {
		jb.Protected(header.ContentType, Type)
	} else {
		for name, value := range b.headers {
			jb.Protected(name, value)
		}
	}
	encrypted, err := jb.Encrypt(plaintext)
	if err != nil {
		return nil, "", err
	}
	compact, err := encrypted.Compact()
	if err != nil {
		return nil, "", err
	}
	return encrypted, compact, nil
}

// Sign returns the claims set signed with key as a compact JWS.
func (b *Builder) Sign(alg jwa.Algorithm, key *jwk.Key) (*Token, error) {
	claims, payload, err := b.payload()
	if err != nil {
		return nil, err
	}
	signed, compact, err := b.sign(payload, alg, key)
	if err != nil {
		return nil, err
	}
	return &Token{claims: claims, signed: signed, raw: compact}, nil
}

// Encrypt returns the claims set encrypted to key as a compact JWE.
func (b *Builder) Encrypt(alg, enc jwa.Algorithm, key *jwk.Key) (*Token, error) {
	claims, payload, err := b.payload()
	if err != nil {
		return nil, err
	}
	encrypted, compact, err := b.encrypt(payload, alg, enc, key, false)
	if err != nil {
		return nil, err
	}
	return &Token{claims: claims, encrypted: encrypted, raw: compact}, nil
}

// SignAndEncrypt signs the claims set with sigKey and encrypts the compact
// JWS to encKey, producing a nested token whose "cty" header is "JWT".
//
// https://datatracker.ietf.org/doc/html/rfc7519#section-5.2
func (b *Builder) SignAndEncrypt(sigAlg jwa.Algorithm, sigKey *jwk.Key, encAlg, enc jwa.Algorithm, encKey *jwk.Key) (*Token, error) {
	claims, payload, err := b.payload()
	if err != nil {
		return nil, err
	}
	signed, inner, err := b.sign(payload, sigAlg, sigKey)
	if err != nil {
		return nil, err
	}
	encrypted, compact, err := b.encrypt([]byte(inner), encAlg, enc, encKey, true)
	if err != nil {
		return nil, err
	}
	return &Token{claims: claims, signed: signed, encrypted: encrypted, raw: compact}, nil
}
