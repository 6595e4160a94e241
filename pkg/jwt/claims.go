package jwt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	jose "github.com/picatz/jose/v2/pkg"
	"golang.org/x/exp/slices"
)

// There are three classes of JWT Claim Names:
// 1. Registered Claim Names
// 2. Public Claim Names
// 3. Private Claim Names
type (
	ClaimName = string

	Registered = ClaimName
	Public     = ClaimName
	Private    = ClaimName
)

// ClaimValue is a piece of information asserted about a subject, represented
// as a name/value pair consisting of a ClaimName and a ClaimValue.
type ClaimValue = any

// Registered Claim Names
//
// https://datatracker.ietf.org/doc/html/rfc7519#section-4.1
const (
	Issuer         Registered = "iss"
	Subject        Registered = "sub"
	Audience       Registered = "aud"
	ExpirationTime Registered = "exp"
	NotBefore      Registered = "nbf"
	IssuedAt       Registered = "iat"
	JWTID          Registered = "jti"

	// https://openid.net/specs/openid-connect-core-1_0.html#IDToken
	Nonce Registered = "nonce"
)

var (
	stringClaims = []ClaimName{Issuer, Subject, JWTID, Nonce}
	timeClaims   = []ClaimName{ExpirationTime, NotBefore, IssuedAt}
)

// ClaimsSet is a JSON object that contains the claims conveyed by the JWT.
//
// A claim is a piece of information asserted about a subject, represented
// as a name/value pair consisting of a Claim Name and a Claim Value.
//
// Registered time claims hold a time.Time and "aud" holds a []string once
// the set has been decoded or built. Encoding writes times as NumericDate
// values and a single audience as a bare string.
type ClaimsSet map[ClaimName]ClaimValue

// String returns the JSON encoding of the claims set.
func (claims ClaimsSet) String() string {
	b, err := json.Marshal(claims)
	if err != nil {
		return fmt.Sprintf("<invalid-claims-set %q: %#v>", err, map[ClaimName]ClaimValue(claims))
	}
	return string(b)
}

// Get returns the value of the named claim.
func (claims ClaimsSet) Get(name ClaimName) (ClaimValue, error) {
	value, ok := claims[name]
	if !ok {
		return nil, fmt.Errorf("claim %q not found in claims set", name)
	}
	return value, nil
}

// Set sets the value of the named claim.
func (claims ClaimsSet) Set(name ClaimName, value ClaimValue) {
	claims[name] = value
}

// Names returns the claim names in lexical order.
func (claims ClaimsSet) Names() []ClaimName {
	names := make([]ClaimName, 0, len(claims))
	for name := range claims {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy of the claims set.
func (claims ClaimsSet) Clone() ClaimsSet {
	c := make(ClaimsSet, len(claims))
	for name, value := range claims {
		if aud, ok := value.([]string); ok {
			value = slices.Clone(aud)
		}
		c[name] = value
	}
	return c
}

func (claims ClaimsSet) str(name ClaimName) string {
	s, _ := claims[name].(string)
	return s
}

// ID returns the "jti" claim.
func (claims ClaimsSet) ID() string { return claims.str(JWTID) }

// Issuer returns the "iss" claim.
func (claims ClaimsSet) Issuer() string { return claims.str(Issuer) }

// Subject returns the "sub" claim.
func (claims ClaimsSet) Subject() string { return claims.str(Subject) }

// Nonce returns the "nonce" claim.
func (claims ClaimsSet) Nonce() string { return claims.str(Nonce) }

// Audience returns the "aud" claim, which may hold a single value.
func (claims ClaimsSet) Audience() []string {
	aud, _ := audience(claims[Audience])
	return aud
}

// IssuedAt returns the "iat" claim.
func (claims ClaimsSet) IssuedAt() (time.Time, bool) { return claims.time(IssuedAt) }

// NotBefore returns the "nbf" claim.
func (claims ClaimsSet) NotBefore() (time.Time, bool) { return claims.time(NotBefore) }

// Expires returns the "exp" claim.
func (claims ClaimsSet) Expires() (time.Time, bool) { return claims.time(ExpirationTime) }

func (claims ClaimsSet) time(name ClaimName) (time.Time, bool) {
	value, ok := claims[name]
	if !ok {
		return time.Time{}, false
	}
	t, err := numericDate(value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// MarshalJSON encodes the claims set, writing registered time claims as
// NumericDate values and a single audience as a bare string.
func (claims ClaimsSet) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(claims))
	for name, value := range claims {
		switch {
		case name == Audience:
			aud, err := audience(value)
			if err != nil {
				return nil, err
			}
			if len(aud) == 1 {
				out[name] = aud[0]
			} else {
				out[name] = aud
			}
		case slices.Contains(timeClaims, name):
			t, err := numericDate(value)
			if err != nil {
				return nil, fmt.Errorf("claim %q: %w", name, err)
			}
			out[name] = t.Unix()
		default:
			out[name] = value
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a claims set, checking the types of the registered
// claims.
func (claims *ClaimsSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return jose.WrapSerializationError(err, "invalid claims set")
	}
	if raw == nil {
		return ErrNoClaimSet
	}

	c := make(ClaimsSet, len(raw))
	for name, value := range raw {
		c[name] = value
	}
	if err := c.normalize(); err != nil {
		return err
	}
	*claims = c
	return nil
}

// normalize checks the registered claims and converts them to their
// canonical Go types.
func (claims ClaimsSet) normalize() error {
	for _, name := range stringClaims {
		value, ok := claims[name]
		if !ok {
			continue
		}
		s, ok := value.(string)
		if !ok {
			return NewClaimError(name, fmt.Errorf("must be a string, got %T", value))
		}
		if name == Issuer || name == Subject {
			if err := checkStringOrURI(s); err != nil {
				return NewClaimError(name, err)
			}
		}
	}

	for _, name := range timeClaims {
		value, ok := claims[name]
		if !ok {
			continue
		}
		t, err := numericDate(value)
		if err != nil {
			return NewClaimError(name, err)
		}
		claims[name] = t
	}

	if value, ok := claims[Audience]; ok {
		aud, err := audience(value)
		if err != nil {
			return NewClaimError(Audience, err)
		}
		for _, a := range aud {
			if err := checkStringOrURI(a); err != nil {
				return NewClaimError(Audience, err)
			}
		}
		claims[Audience] = aud
	}
	return nil
}

// checkStringOrURI rejects values containing a colon that do not parse as a
// URI.
//
// https://datatracker.ietf.org/doc/html/rfc7519#section-2
func checkStringOrURI(s string) error {
	if !strings.Contains(s, ":") {
		return nil
	}
	if _, err := url.Parse(s); err != nil {
		return fmt.Errorf("invalid URI %q: %w", s, err)
	}
	return nil
}

func audience(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		aud := make([]string, 0, len(v))
		for _, a := range v {
			s, ok := a.(string)
			if !ok {
				return nil, fmt.Errorf("audience values must be strings, got %T", a)
			}
			aud = append(aud, s)
		}
		return aud, nil
	default:
		return nil, fmt.Errorf("audience must be a string or an array of strings, got %T", value)
	}
}

// numericDate converts a NumericDate claim value to a time. Fractional
// seconds are truncated.
//
// https://datatracker.ietf.org/doc/html/rfc7519#section-2
func numericDate(value any) (time.Time, error) {
	var seconds float64
	switch v := value.(type) {
	case time.Time:
		return v.Truncate(time.Second), nil
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return time.Unix(i, 0), nil
		}
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid NumericDate %q", v)
		}
		seconds = f
	case int:
		return time.Unix(int64(v), 0), nil
	case int64:
		return time.Unix(v, 0), nil
	case float64:
		seconds = v
	default:
		return time.Time{}, fmt.Errorf("NumericDate must be a number, got %T", value)
	}
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || math.Abs(seconds) > math.MaxInt64 {
		return time.Time{}, fmt.Errorf("invalid NumericDate %v", seconds)
	}
	return time.Unix(int64(seconds), 0), nil
}
