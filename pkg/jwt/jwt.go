package jwt

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwe"
	"github.com/picatz/jose/v2/pkg/jwk"
	"github.com/picatz/jose/v2/pkg/jws"
	"golang.org/x/exp/slices"
)

// Type is the "typ" header value of a JWT, and the "cty" header value of
// a JWE carrying a nested JWT.
const Type = header.TypeJWT

// Token is a claims set carried by a JWS, a JWE, or both when nested. A
// Token is immutable once built or decoded.
type Token struct {
	claims    ClaimsSet
	signed    *jws.Signed
	encrypted *jwe.Encrypted
	raw       string
}

// Claims returns a copy of the token's claims set.
func (t *Token) Claims() ClaimsSet { return t.claims.Clone() }

// Signed returns the JWS carrying the claims, or nil for a token that is
// only encrypted.
func (t *Token) Signed() *jws.Signed { return t.signed }

// Encrypted returns the outer JWE, or nil for a token that is only signed.
func (t *Token) Encrypted() *jwe.Encrypted { return t.encrypted }

// Nested reports whether the token is a JWS encrypted as a JWE.
func (t *Token) Nested() bool { return t.signed != nil && t.encrypted != nil }

// Header returns the outermost header of the token.
func (t *Token) Header() *header.Header {
	if t.encrypted != nil {
		return t.encrypted.Recipients()[0].Header()
	}
	return t.signed.Signatures()[0].Header()
}

// String returns the compact serialization of the token.
func (t *Token) String() string { return t.raw }

// Decode decodes and verifies a compact signed token. Encrypted tokens
// require DecodeEncrypted.
func Decode(token string, verifyKey *jwk.Key, opts ...Option) (*Token, error) {
	return decode(token, verifyKey, nil, opts)
}

// DecodeEncrypted decodes a compact token that is signed, encrypted, or
// signed and then encrypted. A nil verifyKey accepts only tokens that are
// encrypted without a nested signature. An encrypted token that fails to
// parse or decrypt, including one with an altered protected header, is
// rejected with jose.ErrDecryption.
func DecodeEncrypted(token string, verifyKey, decryptKey *jwk.Key, opts ...Option) (*Token, error) {
	return decode(token, verifyKey, decryptKey, opts)
}

func decode(token string, verifyKey, decryptKey *jwk.Key, opts []Option) (*Token, error) {
	config, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	t := &Token{raw: token}
	var payload []byte

	switch segments := strings.Count(token, ".") + 1; segments {
	case 3:
		t.signed, payload, err = verify(config, token, verifyKey)
		if err != nil {
			return nil, err
		}
	case 5:
		if decryptKey == nil {
			return nil, jose.NewKeyError("encrypted token requires a decryption key")
		}
		encrypted, plaintext, err := jwe.ParseAndDecrypt(token, decryptKey, config.jweOptions()...)
		if err != nil {
			return nil, err
		}
		t.encrypted = encrypted

		if strings.EqualFold(t.encrypted.Recipients()[0].Header().ContentType(), Type) {
			t.signed, payload, err = verify(config, string(plaintext), verifyKey)
			if err != nil {
				return nil, err
			}
		} else {
			if verifyKey != nil {
				config.logger.Debug("Encrypted token has no nested signature to verify.")
				return nil, jose.ErrVerification
			}
			payload = plaintext
		}
	default:
		return nil, jose.NewSerializationError("expected 3 or 5 compact segments, found %d", segments)
	}

	for _, h := range t.headers() {
		if typ := h.Type(); typ != "" && !strings.EqualFold(typ, Type) {
			return nil, NewInvalidTypeError(fmt.Errorf("unexpected token type %q", typ))
		}
	}

	if err := json.Unmarshal(payload, &t.claims); err != nil {
		return nil, err
	}
	if err := checkTimes(config, t.claims); err != nil {
		return nil, err
	}

	config.logger.WithFields(map[string]any{
		"signed":    t.signed != nil,
		"encrypted": t.encrypted != nil,
	}).Debug("Decoded JWT.")
	return t, nil
}

func verify(config *config, token string, key *jwk.Key) (*jws.Signed, []byte, error) {
	if strings.Count(token, ".") != 2 {
		return nil, nil, jose.NewSerializationError("nested token is not a compact JWS")
	}
	signed, err := jws.Parse(token, config.jwsOptions()...)
	if err != nil {
		return nil, nil, err
	}
	payload, err := signed.Verify(key)
	if err != nil {
		return nil, nil, err
	}
	return signed, payload, nil
}

func (t *Token) headers() []*header.Header {
	var hs []*header.Header
	if t.encrypted != nil {
		hs = append(hs, t.encrypted.Recipients()[0].Header())
	}
	if t.signed != nil {
		hs = append(hs, t.signed.Signatures()[0].Header())
	}
	return hs
}

// checkTimes rejects a token that has expired, or whose "iat" or "nbf" is
// more than the clock skew in the future.
func checkTimes(config *config, claims ClaimsSet) error {
	now := config.clock()
	if iat, ok := claims.IssuedAt(); ok && iat.After(now.Add(config.skew)) {
		return NewClaimError(IssuedAt, ErrIssuedInFuture)
	}
	if nbf, ok := claims.NotBefore(); ok && nbf.After(now.Add(config.skew)) {
		return NewClaimError(NotBefore, ErrNotYetValid)
	}
	if exp, ok := claims.Expires(); ok && !now.Before(exp) {
		return NewClaimError(ExpirationTime, ErrExpired)
	}
	return nil
}

// ValidateClaims checks that the token names an issuer and a subject, that
// expectedAudience is among its audiences, and that it was issued for no
// longer than maxAge.
func (t *Token) ValidateClaims(expectedAudience string, maxAge time.Duration) error {
	for _, name := range []ClaimName{Issuer, Subject} {
		if t.claims.str(name) == "" {
			return NewClaimError(name, ErrMissingClaim)
		}
	}

	aud := t.claims.Audience()
	if len(aud) == 0 {
		return NewClaimError(Audience, ErrMissingClaim)
	}
	if !slices.Contains(aud, expectedAudience) {
		return NewClaimError(Audience, fmt.Errorf("%w %q", ErrAudience, expectedAudience))
	}

	iat, ok := t.claims.IssuedAt()
	if !ok {
		return NewClaimError(IssuedAt, ErrMissingClaim)
	}
	exp, ok := t.claims.Expires()
	if !ok {
		return NewClaimError(ExpirationTime, ErrMissingClaim)
	}
	if exp.Sub(iat) > maxAge {
		return NewClaimError(ExpirationTime, fmt.Errorf("%w of %v", ErrMaxAge, maxAge))
	}
	return nil
}

// FromHTTPAuthorizationHeader extracts a JWT string from the Authorization header of an HTTP request.
// If the Authorization header is not set, then an error is returned.
//
// https://tools.ietf.org/html/rfc6750#section-2.1
func FromHTTPAuthorizationHeader(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing authorization header")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[1] == "" {
		return "", fmt.Errorf("invalid authorization header format")
	}

	if !strings.EqualFold(parts[0], "bearer") {
		return "", fmt.Errorf("invalid authorization header format")
	}

	return parts[1], nil
}

// HTTPHeaderValue is a type that can be used as a value when setting
// an HTTP request header.
type HTTPHeaderValue interface {
	string | *Token
}

// SetHTTPAuthorizationHeader sets the Authorization header of an HTTP request
// to the given JWT. The JWT is prefixed with "Bearer ", as required by the
// HTTP Authorization header specification.
//
// https://tools.ietf.org/html/rfc6750#section-2.1
func SetHTTPAuthorizationHeader[T HTTPHeaderValue](r *http.Request, jwt T) {
	r.Header.Set("Authorization", fmt.Sprintf("Bearer %s", jwt))
}
