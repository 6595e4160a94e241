package header

import (
	"crypto/x509"
	stdbase64 "encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/jwk"
	"golang.org/x/exp/slices"
)

// ErrParameterNotFound is returned when a header parameter is missing.
var ErrParameterNotFound = errors.New("header parameter not found")

// Get returns the value of a parameter.
func (h Parameters) Get(param ParamaterName) (any, error) {
	value, ok := h[param]
	if !ok {
		return nil, fmt.Errorf("header does not contain a %q paramater: %w", param, ErrParameterNotFound)
	}
	return value, nil
}

// String returns the value of a string parameter.
func (h Parameters) String(param ParamaterName) (string, error) {
	value, err := h.Get(param)
	if err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("header paramater %q is not a string, is %T", param, value)
	}
	return s, nil
}

// Type returns the "typ" parameter.
func (h Parameters) Type() (string, error) {
	return h.String(Type)
}

// Algorithm returns the "alg" parameter.
func (h Parameters) Algorithm() (string, error) {
	return h.String(Algorithm)
}

type decoder func(json.RawMessage) (any, error)

// decoders holds every well-known parameter.
var decoders = map[string]decoder{
	Type:        decodeString,
	Algorithm:   decodeString,
	Encryption:  decodeString,
	Zip:         decodeString,
	KeyID:       decodeString,
	ContentType: decodeString,
	JWKSetURL:   decodeString,
	X509URL:     decodeString,

	Critical: decodeCritical,

	JSONWebKey:         decodeKey,
	EphemeralPublicKey: decodeKey,

	AgreementPartyUInfo:             decodeBytes,
	AgreementPartyVInfo:             decodeBytes,
	InitializationVector:            decodeBytes,
	AuthenticationTag:               decodeBytes,
	PBES2Salt:                       decodeBytes,
	X509CertificateSHA1Thumbprint:   decodeBytes,
	X509CertificateSHA256Thumbprint: decodeBytes,

	PBES2Count: decodeCount,

	X509CertificateChain: decodeCertificates,
}

// binary parameters are base64url encoded byte strings.
var binary = []string{
	AgreementPartyUInfo, AgreementPartyVInfo, InitializationVector,
	AuthenticationTag, PBES2Salt,
	X509CertificateSHA1Thumbprint, X509CertificateSHA256Thumbprint,
}

// IsWellKnown reports whether name is a header parameter this package
// understands without a registered extension.
func IsWellKnown(name string) bool {
	_, ok := decoders[name]
	return ok
}

func decodeString(raw json.RawMessage) (any, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("not a string")
	}
	return s, nil
}

func decodeCritical(raw json.RawMessage) (any, error) {
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, fmt.Errorf("not an array of strings")
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("empty list")
	}
	seen := map[string]struct{}{}
	for _, name := range names {
		if name == "" {
			return nil, fmt.Errorf("empty name")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate name %q", name)
		}
		seen[name] = struct{}{}
	}
	return names, nil
}

func decodeKey(raw json.RawMessage) (any, error) {
	return jwk.ParseKey(raw)
}

func decodeBytes(raw json.RawMessage) (any, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("not a string")
	}
	return base64.Decode(s)
}

func decodeCount(raw json.RawMessage) (any, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("not an integer")
	}
	if n <= 0 {
		return nil, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}

func decodeCertificates(raw json.RawMessage) (any, error) {
	var encoded []string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("not an array of strings")
	}
	if len(encoded) == 0 {
		return nil, fmt.Errorf("empty certificate chain")
	}
	certs := make([]*x509.Certificate, 0, len(encoded))
	for i, s := range encoded {
		der, err := stdbase64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("certificate %d: %w", i, err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("certificate %d: %w", i, err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// encodeValue converts a Go value given to Build to its JSON form.
func encodeValue(name string, value any) any {
	switch v := value.(type) {
	case []byte:
		if slices.Contains(binary, name) {
			return base64.Encode(v)
		}
	case *jwk.Key:
		return v.WellKnown()
	case []*x509.Certificate:
		encoded := make([]string, len(v))
		for i, cert := range v {
			encoded[i] = stdbase64.StdEncoding.EncodeToString(cert.Raw)
		}
		return encoded
	}
	return value
}
