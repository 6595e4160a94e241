package base64

import (
	"encoding/base64"
	"fmt"
	"strings"

	jose "github.com/picatz/jose/v2/pkg"
)

var encoding = base64.RawURLEncoding.Strict()

// Decode returns the base64url decoded bytes from the given input.
// This function implements base64url decoding as defined in RFC 4648 Section 5,
// which is used in JWS and JWE specifications (RFC 7515, RFC 7516).
//
// Padding characters are rejected, and so are non-zero trailing bits, so
// every encoded form maps to exactly one decoded value.
//
// An empty input decodes to an empty slice: compact serializations use
// empty segments, such as the encrypted key of a direct JWE.
func Decode(input string) ([]byte, error) {
	if len(input) == 0 {
		return []byte{}, nil
	}

	result, err := encoding.DecodeString(input)
	if err != nil {
		return nil, fmt.Errorf("base64: invalid base64url input: %w", err)
	}
	return result, nil
}

// Encode returns the base64url encoded string from the given input.
// This function implements base64url encoding as defined in RFC 4648 Section 5,
// which is used in JWS and JWE specifications (RFC 7515, RFC 7516).
//
// It omits padding characters as required by those specifications.
func Encode(input []byte) string {
	return encoding.EncodeToString(input)
}

// Split splits a compact serialization into exactly n dot separated
// segments, returning a *jose.SerializationError otherwise.
//
// Segments are not decoded, the signing input and the additional
// authenticated data are computed over the encoded form.
func Split(compact string, n int) ([]string, error) {
	if strings.ContainsAny(compact, " \t\r\n") {
		return nil, jose.NewSerializationError("compact serialization contains whitespace")
	}
	parts := strings.Split(compact, ".")
	if len(parts) != n {
		return nil, jose.NewSerializationError("expected %d compact segments, found %d", n, len(parts))
	}
	return parts, nil
}

// DecodeSegments decodes each of the given segments, reporting the
// position of the first one that is not valid base64url.
func DecodeSegments(segments []string) ([][]byte, error) {
	out := make([][]byte, len(segments))
	for i, segment := range segments {
		b, err := Decode(segment)
		if err != nil {
			return nil, jose.WrapSerializationError(err, "segment %d", i)
		}
		out[i] = b
	}
	return out, nil
}
