package thumbprint

import (
	"bytes"
	"crypto"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/json"
	"errors"

	"github.com/picatz/jose/v2/pkg/base64"
	"golang.org/x/exp/slices"
)

var (
	ErrInvalidKey = errors.New("thumbprint: invalid key")
)

// Members holds the JWK members of a key, as they appear in its JSON
// representation. Only the required members of the key type are used.
type Members = map[string]string

// requiredMembers lists the required members of each key type.
//
// https://datatracker.ietf.org/doc/html/rfc7638#section-3.2
// https://datatracker.ietf.org/doc/html/rfc8037#section-2
var requiredMembers = map[string][]string{
	"RSA": {"e", "kty", "n"},
	"EC":  {"crv", "kty", "x", "y"},
	"OKP": {"crv", "kty", "x"},
	"oct": {"k", "kty"},
}

// Generate returns the JWK Thumbprint for the given JWK members following
// the steps defined in RFC 7638.
func Generate(members Members, h crypto.Hash) ([]byte, error) {
	required, ok := requiredMembers[members["kty"]]
	if !ok {
		return nil, ErrInvalidKey
	}

	// 1. Construct a JSON object [RFC7159] containing only the required
	// members of a JWK representing the key and with no whitespace or
	// line breaks before or after any syntactic elements and with the
	// required members ordered lexicographically by the Unicode
	// [UNICODE] code points of the member names.
	//
	// (This JSON object is itself a legal JWK representation of the key.)
	b := bytes.NewBuffer(nil)

	b.WriteRune('{')

	for i, name := range required {
		value, ok := members[name]
		if !ok || value == "" {
			return nil, ErrInvalidKey
		}

		if i > 0 {
			b.WriteRune(',')
		}

		// Member values are base64url strings or registered names, so
		// they never need escaping, but marshal them to be certain.
		encodedName, _ := json.Marshal(name)
		encodedValue, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}

		b.Write(encodedName)
		b.WriteRune(':')
		b.Write(encodedValue)
	}

	b.WriteRune('}')

	// 2. Hash the octets of the UTF-8 representation of this JSON object
	// with a cryptographic hash function H.
	//
	// For example, SHA-256 might be used as H. If none is specified,
	// SHA-256 is used; this is indicated in the algorithm header parameter
	// of the resulting JWK Thumbprint by the value "SHA-256".
	if h == 0 {
		h = crypto.SHA256
	}

	if !h.Available() {
		return nil, errors.New("thumbprint: hash function is not available")
	}

	hash := h.New()

	_, err := hash.Write(b.Bytes())
	if err != nil {
		return nil, err
	}

	return hash.Sum(nil), nil
}

// GenerateString returns the JWK Thumbprint for the given JWK members
// following the steps defined in RFC 7638 as a base64url encoded string.
func GenerateString(members Members, h crypto.Hash) (string, error) {
	thumbprint, err := Generate(members, h)
	if err != nil {
		return "", err
	}

	return base64.Encode(thumbprint), nil
}

// KeyTypes returns the key types a thumbprint can be generated for.
func KeyTypes() []string {
	types := make([]string, 0, len(requiredMembers))
	for kty := range requiredMembers {
		types = append(types, kty)
	}
	slices.Sort(types)
	return types
}
