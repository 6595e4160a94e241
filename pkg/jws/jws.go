package jws

import (
	"bytes"
	"encoding/json"
	"strings"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwk"
	"golang.org/x/exp/slices"
)

// Signature is one signature of a JWS, with the header describing it.
type Signature struct {
	header *header.Header

	// protected is the base64url encoded protected header, exactly as
	// it was signed.
	protected string

	signature []byte
}

// Header returns the merged protected and unprotected header of the
// signature.
func (s *Signature) Header() *header.Header { return s.header }

// Bytes returns the signature value.
func (s *Signature) Bytes() []byte { return slices.Clone(s.signature) }

// Signed is a JSON Web Signature: a payload and one or more signatures
// over it. A Signed value is immutable.
//
// https://datatracker.ietf.org/doc/html/rfc7515
type Signed struct {
	payload []byte

	// encodedPayload is the base64url encoded payload, exactly as it was
	// signed.
	encodedPayload string

	signatures []*Signature

	config *config
}

// Signatures returns the signatures of the JWS.
func (s *Signed) Signatures() []*Signature { return slices.Clone(s.signatures) }

// UnverifiedPayload returns the payload without checking any signature.
// Use Verify to obtain a payload that can be trusted.
func (s *Signed) UnverifiedPayload() []byte { return slices.Clone(s.payload) }

func signingInput(protected, payload string) []byte {
	return []byte(protected + "." + payload)
}

// Compact returns the JWS compact serialization. It requires exactly one
// signature whose header is entirely protected.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7.1
func (s *Signed) Compact() (string, error) {
	if len(s.signatures) != 1 {
		return "", jose.NewSerializationError("compact serialization requires exactly one signature, have %d", len(s.signatures))
	}
	sig := s.signatures[0]
	if sig.protected == "" {
		return "", jose.NewSerializationError("compact serialization requires a protected header")
	}
	unprotected, err := sig.header.PartJSON(header.PerRecipient)
	if err != nil {
		return "", err
	}
	if unprotected != nil {
		return "", jose.NewSerializationError("compact serialization cannot carry an unprotected header")
	}
	return strings.Join([]string{sig.protected, s.encodedPayload, base64.Encode(sig.signature)}, "."), nil
}

// String returns the compact serialization, or "" if the JWS has none.
func (s *Signed) String() string {
	compact, err := s.Compact()
	if err != nil {
		return ""
	}
	return compact
}

type jsonSignature struct {
	Protected string          `json:"protected,omitempty"`
	Header    json.RawMessage `json:"header,omitempty"`
	Signature string          `json:"signature"`
}

type generalJSON struct {
	Payload    string          `json:"payload"`
	Signatures []jsonSignature `json:"signatures"`
}

type flattenedJSON struct {
	Payload string `json:"payload"`
	jsonSignature
}

func (s *Signature) toJSON() (jsonSignature, error) {
	unprotected, err := s.header.PartJSON(header.PerRecipient)
	if err != nil {
		return jsonSignature{}, err
	}
	return jsonSignature{
		Protected: s.protected,
		Header:    unprotected,
		Signature: base64.Encode(s.signature),
	}, nil
}

// JSON returns the JWS general JSON serialization.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7.2.1
func (s *Signed) JSON() ([]byte, error) {
	out := generalJSON{Payload: s.encodedPayload}
	for _, sig := range s.signatures {
		js, err := sig.toJSON()
		if err != nil {
			return nil, err
		}
		out.Signatures = append(out.Signatures, js)
	}
	return json.Marshal(out)
}

// FlattenedJSON returns the JWS flattened JSON serialization, which
// requires exactly one signature.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-7.2.2
func (s *Signed) FlattenedJSON() ([]byte, error) {
	if len(s.signatures) != 1 {
		return nil, jose.NewSerializationError("flattened serialization requires exactly one signature, have %d", len(s.signatures))
	}
	js, err := s.signatures[0].toJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(flattenedJSON{Payload: s.encodedPayload, jsonSignature: js})
}

// Parse parses a JWS in compact, general JSON or flattened JSON
// serialization. The signatures are not verified.
func Parse(input string, opts ...Option) (*Signed, error) {
	config, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, "{") {
		return parseJSON([]byte(trimmed), config)
	}
	return parseCompact(input, config)
}

func parseCompact(input string, config *config) (*Signed, error) {
	parts, err := base64.Split(input, 3)
	if err != nil {
		return nil, err
	}
	if parts[0] == "" {
		return nil, jose.NewSerializationError("compact serialization requires a protected header")
	}

	signed := &Signed{encodedPayload: parts[1], config: config}
	signed.payload, err = base64.Decode(parts[1])
	if err != nil {
		return nil, jose.WrapSerializationError(err, "invalid payload")
	}

	sig, err := parseSignature(config, jsonSignature{Protected: parts[0], Signature: parts[2]})
	if err != nil {
		return nil, err
	}
	signed.signatures = []*Signature{sig}
	return signed, nil
}

func parseJSON(data []byte, config *config) (*Signed, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, jose.WrapSerializationError(err, "invalid JWS JSON serialization")
	}

	_, general := members["signatures"]
	_, flattened := members["signature"]

	var (
		payload    string
		signatures []jsonSignature
	)
	switch {
	case general && flattened:
		return nil, jose.NewSerializationError("JWS JSON serialization mixes general and flattened members")
	case general:
		var g generalJSON
		if err := json.Unmarshal(data, &g); err != nil {
			return nil, jose.WrapSerializationError(err, "invalid JWS general JSON serialization")
		}
		if len(g.Signatures) == 0 {
			return nil, jose.NewSerializationError("JWS has no signatures")
		}
		payload, signatures = g.Payload, g.Signatures
	case flattened:
		var f flattenedJSON
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, jose.WrapSerializationError(err, "invalid JWS flattened JSON serialization")
		}
		payload, signatures = f.Payload, []jsonSignature{f.jsonSignature}
	default:
		return nil, jose.NewSerializationError("JWS JSON serialization has no signature")
	}
	if _, ok := members["payload"]; !ok {
		return nil, jose.NewSerializationError("JWS JSON serialization has no payload")
	}

	signed := &Signed{encodedPayload: payload, config: config}
	var err error
	signed.payload, err = base64.Decode(payload)
	if err != nil {
		return nil, jose.WrapSerializationError(err, "invalid payload")
	}

	for i, js := range signatures {
		sig, err := parseSignature(config, js)
		if err != nil {
			return nil, jose.WrapSerializationError(err, "signature %d", i)
		}
		signed.signatures = append(signed.signatures, sig)
	}
	return signed, nil
}

func parseSignature(config *config, js jsonSignature) (*Signature, error) {
	protected, err := base64.Decode(js.Protected)
	if err != nil {
		return nil, jose.WrapSerializationError(err, "invalid protected header")
	}
	unprotected := bytes.TrimSpace(js.Header)
	if bytes.Equal(unprotected, []byte("null")) {
		unprotected = nil
	}

	h, err := header.Parse(config.registry, protected, nil, unprotected)
	if err != nil {
		return nil, err
	}
	if !jwa.IsSignature(h.Algorithm()) {
		return nil, jose.NewHeaderError("%q is not a signature algorithm", h.Algorithm())
	}

	value, err := base64.Decode(js.Signature)
	if err != nil {
		return nil, jose.WrapSerializationError(err, "invalid signature")
	}

	return &Signature{header: h, protected: js.Protected, signature: value}, nil
}

// Verify returns the payload if any signature verifies with key. Every
// other outcome is jose.ErrVerification, with the reasons only logged at
// debug level.
func (s *Signed) Verify(key *jwk.Key) ([]byte, error) {
	if key == nil {
		return nil, jose.ErrVerification
	}
	for i, sig := range s.signatures {
		if s.attempt(i, sig, key) {
			return slices.Clone(s.payload), nil
		}
	}
	return nil, jose.ErrVerification
}

// attempt reports whether a single signature verifies with key.
func (s *Signed) attempt(i int, sig *Signature, key *jwk.Key) bool {
	alg := sig.header.Algorithm()
	logger := s.config.logger.WithFields(map[string]any{"signature": i, "alg": alg})

	if !s.config.allowed.Allowed(alg) {
		logger.Debug("Skipping signature: algorithm not allowed.")
		return false
	}
	if kid := sig.header.KeyID(); kid != "" && key.KeyID() != "" && kid != key.KeyID() {
		logger.Debug("Skipping signature: key id %q does not match %q.", kid, key.KeyID())
		return false
	}
	if err := checkKey(key, alg, jwk.OpVerify); err != nil {
		logger.Debug("Skipping signature: %v", err)
		return false
	}
	if err := algorithms[alg].verify(key, signingInput(sig.protected, s.encodedPayload), sig.signature); err != nil {
		logger.Debug("Signature did not verify: %v", err)
		return false
	}
	return true
}

// checkKey checks that key may perform op with alg.
func checkKey(key *jwk.Key, alg jwa.Algorithm, op jwk.Operation) error {
	if !key.CompatibleWith(alg) {
		return jose.NewKeyError("%s key cannot be used with %q", key.Type(), alg)
	}
	if use := key.Use(); use != "" && use != jwk.UseSignature {
		return jose.NewKeyError("key use %q does not allow signatures", use)
	}
	if len(key.Operations()) > 0 && !key.HasOperation(op) {
		return jose.NewKeyError("key operations do not include %q", op)
	}
	return nil
}
