package header

import (
	"bytes"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"reflect"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwk"
	"golang.org/x/exp/slices"
)

// There are three classes of Header Parameter names: Registered Header
// Parameter names, Public Header Parameter names, and Private Header
// Parameter names.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4
type (
	ParamaterName = string

	Registered = ParamaterName
	Public     = ParamaterName
	Private    = ParamaterName
)

// Registered Header Paramater Names
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4.1
const (
	Type                            Registered = "typ"
	Algorithm                       Registered = "alg"
	JWKSetURL                       Registered = "jku"
	JSONWebKey                      Registered = "jwk"
	X509URL                         Registered = "x5u"
	X509CertificateChain            Registered = "x5c"
	X509CertificateSHA1Thumbprint   Registered = "x5t"
	X509CertificateSHA256Thumbprint Registered = "x5t#S256"
	ContentType                     Registered = "cty"
	Critical                        Registered = "crit"

	// https://www.rfc-editor.org/rfc/rfc7516.html#section-4.1.2
	Encryption Registered = "enc"

	// https://www.rfc-editor.org/rfc/rfc7516.html#section-4.1.3
	Zip Registered = "zip"

	// https://www.rfc-editor.org/rfc/rfc7516.html#section-4.1.6
	KeyID Registered = "kid"
)

// Header parameters used by key management algorithms.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.6.1
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.7.1
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.8.1
const (
	EphemeralPublicKey   Registered = "epk"
	AgreementPartyUInfo  Registered = "apu"
	AgreementPartyVInfo  Registered = "apv"
	InitializationVector Registered = "iv"
	AuthenticationTag    Registered = "tag"
	PBES2Salt            Registered = "p2s"
	PBES2Count           Registered = "p2c"
)

const TypeJWT = "JWT"

// Parameters is one part of a JOSE header, as given to Build. Values are
// Go values: strings, []byte for binary parameters, *jwk.Key for "jwk"
// and "epk", []*x509.Certificate for "x5c", []string for "crit", an
// integer for "p2c", or anything a registered extension accepts.
type Parameters map[ParamaterName]any

// Part identifies where in a JWS or JWE a header parameter is carried.
type Part int

const (
	// Protected parameters are integrity protected: they are part of
	// the signing input or the additional authenticated data.
	Protected Part = iota
	// Shared parameters are the unprotected header common to every
	// signature or recipient of a JSON serialization.
	Shared
	// PerRecipient parameters belong to one signature or recipient.
	PerRecipient
)

func (p Part) String() string {
	switch p {
	case Protected:
		return "protected"
	case Shared:
		return "shared"
	case PerRecipient:
		return "per-recipient"
	}
	return fmt.Sprintf("Part(%d)", int(p))
}

// Header is the merged view of the protected, shared and per-recipient
// parts of a JOSE header. Every part is retained, so the header can be
// serialized again one part at a time. A Header is immutable.
type Header struct {
	parts [3]map[string]json.RawMessage

	// merged maps a name to the part it was first found in.
	merged map[string]Part

	// values holds decoded well-known and registered parameters.
	values map[string]any

	registry *Registry
}

// canonicalOrder is the serialization order of well-known parameters,
// any other parameter follows in lexicographic order.
var canonicalOrder = []string{
	Algorithm, Encryption, Zip, KeyID, Type, ContentType, Critical,
	EphemeralPublicKey, AgreementPartyUInfo, AgreementPartyVInfo,
	InitializationVector, AuthenticationTag, PBES2Salt, PBES2Count,
	JWKSetURL, JSONWebKey, X509URL, X509CertificateChain,
	X509CertificateSHA1Thumbprint, X509CertificateSHA256Thumbprint,
}

// Build validates and merges the given header parts. Any part may be
// nil. A parameter present in more than one part must have the same
// value in each of them.
func Build(reg *Registry, protected, shared, perRecipient Parameters) (*Header, error) {
	var parts [3]map[string]json.RawMessage
	for i, params := range []Parameters{protected, shared, perRecipient} {
		if len(params) == 0 {
			continue
		}
		encoded, err := encodeParameters(reg, params)
		if err != nil {
			return nil, err
		}
		parts[i] = encoded
	}
	return newHeader(reg, parts)
}

// Parse validates and merges header parts given as JSON objects, such as
// the decoded protected header of a compact serialization. Any part may
// be nil.
func Parse(reg *Registry, protected, shared, perRecipient []byte) (*Header, error) {
	var parts [3]map[string]json.RawMessage
	for i, data := range [][]byte{protected, shared, perRecipient} {
		if len(data) == 0 {
			continue
		}
		part := map[string]json.RawMessage{}
		if err := json.Unmarshal(data, &part); err != nil {
			return nil, jose.WrapHeaderError(err, "%s header is not a JSON object", Part(i))
		}
		if len(part) > 0 {
			parts[i] = part
		}
	}
	return newHeader(reg, parts)
}

func encodeParameters(reg *Registry, params Parameters) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(params))
	for name, value := range params {
		if ext, ok := reg.Lookup(name); ok && ext.ToJSON != nil {
			v, err := ext.ToJSON(value)
			if err != nil {
				return nil, jose.WrapHeaderError(err, "failed to encode %q", name)
			}
			value = v
		} else {
			value = encodeValue(name, value)
		}

		raw, err := json.Marshal(value)
		if err != nil {
			return nil, jose.WrapHeaderError(err, "failed to encode %q", name)
		}
		out[name] = raw
	}
	return out, nil
}

func newHeader(reg *Registry, parts [3]map[string]json.RawMessage) (*Header, error) {
	h := &Header{
		parts:    parts,
		merged:   map[string]Part{},
		values:   map[string]any{},
		registry: reg,
	}

	for i, part := range parts {
		for name, raw := range part {
			first, seen := h.merged[name]
			if !seen {
				h.merged[name] = Part(i)
				continue
			}
			same, err := jsonEqual(parts[first][name], raw)
			if err != nil || !same {
				return nil, jose.NewHeaderError("parameter %q differs between the %s and %s header", name, first, Part(i))
			}
		}
	}

	for name, part := range h.merged {
		raw := parts[part][name]
		if decode, ok := decoders[name]; ok {
			v, err := decode(raw)
			if err != nil {
				return nil, jose.WrapHeaderError(err, "invalid %q", name)
			}
			h.values[name] = v
			continue
		}
		if ext, ok := reg.Lookup(name); ok {
			v, err := ext.decode(raw)
			if err != nil {
				return nil, jose.WrapHeaderError(err, "invalid %q", name)
			}
			h.values[name] = v
		}
	}

	if err := h.validate(); err != nil {
		return nil, err
	}
	return h, nil
}

// validate enforces the parameters required by the algorithm and the
// "crit" contract.
//
// https://datatracker.ietf.org/doc/html/rfc7515#section-4.1.11
func (h *Header) validate() error {
	alg := h.Algorithm()
	if alg == "" {
		return jose.NewHeaderError("missing required parameter %q", Algorithm)
	}

	switch {
	case jwa.IsSignature(alg):
		if _, ok := h.merged[Encryption]; ok {
			return jose.NewHeaderError("parameter %q is not allowed with signature algorithm %q", Encryption, alg)
		}
	case jwa.IsKeyManagement(alg):
		enc := h.Encryption()
		if enc == "" {
			return jose.NewHeaderError("missing required parameter %q", Encryption)
		}
		if !jwa.IsContentEncryption(enc) {
			return jose.NewHeaderError("unsupported content encryption algorithm %q", enc)
		}
		if err := h.validateKeyManagement(alg); err != nil {
			return err
		}
	default:
		return jose.NewHeaderError("unsupported algorithm %q", alg)
	}

	if zip, ok := h.values[Zip].(string); ok {
		if zip != jwa.Deflate {
			return jose.NewHeaderError("unsupported compression algorithm %q", zip)
		}
		if h.merged[Zip] != Protected {
			return jose.NewHeaderError("parameter %q must be integrity protected", Zip)
		}
	}

	crit, ok := h.values[Critical].([]string)
	if !ok {
		return nil
	}
	if h.merged[Critical] != Protected {
		return jose.NewHeaderError("parameter %q must be integrity protected", Critical)
	}
	for _, name := range crit {
		_, wellKnown := decoders[name]
		_, registered := h.registry.Lookup(name)
		if !wellKnown && !registered {
			return jose.NewHeaderError("critical parameter %q is not understood", name)
		}
		if _, ok := h.merged[name]; !ok {
			return jose.NewHeaderError("critical parameter %q is missing", name)
		}
	}
	return nil
}

func (h *Header) validateKeyManagement(alg jwa.Algorithm) error {
	var required []string
	switch jwa.KeyManagementFamily(alg) {
	case jwa.FamilyECDH, jwa.FamilyECDHKeyWrap:
		required = []string{EphemeralPublicKey}
	case jwa.FamilyPBES2:
		required = []string{PBES2Salt, PBES2Count}
	case jwa.FamilyAESGCMKeyWrap:
		required = []string{InitializationVector, AuthenticationTag}
	}
	for _, name := range required {
		if _, ok := h.merged[name]; !ok {
			return jose.NewHeaderError("algorithm %q requires parameter %q", alg, name)
		}
	}

	if epk := h.EphemeralPublicKey(); epk != nil {
		if epk.IsPrivate() {
			return jose.NewHeaderError("parameter %q holds private key material", EphemeralPublicKey)
		}
		if !jwk.Compatible(alg, epk.Type()) {
			return jose.NewHeaderError("parameter %q of type %s cannot be used with %q", EphemeralPublicKey, epk.Type(), alg)
		}
	}
	return nil
}

// JSON returns the JSON object of the merged parameters selected by
// include, in a stable order, or nil if include selects none. A name
// carried in more than one part is offered once, with the part it was
// first found in.
func (h *Header) JSON(include func(name string, part Part) bool) ([]byte, error) {
	var names []string
	for _, name := range h.Names() {
		if include(name, h.merged[name]) {
			names = append(names, name)
		}
	}
	return encodeObject(names, func(name string) json.RawMessage {
		return h.parts[h.merged[name]][name]
	})
}

// PartJSON returns the JSON object of one part of the header exactly as
// it was given, including values repeated from another part, or nil if
// the part is empty.
func (h *Header) PartJSON(part Part) ([]byte, error) {
	params := h.parts[part]
	return encodeObject(orderNames(params), func(name string) json.RawMessage {
		return params[name]
	})
}

func encodeObject(names []string, raw func(name string) json.RawMessage) ([]byte, error) {
	if len(names) == 0 {
		return nil, nil
	}
	buf := bytes.NewBuffer(nil)
	buf.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodedName, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(encodedName)
		buf.WriteByte(':')
		if err := json.Compact(buf, raw(name)); err != nil {
			return nil, jose.WrapHeaderError(err, "failed to encode %q", name)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Names returns the names of every parameter of the merged header, in
// serialization order.
func (h *Header) Names() []string { return orderNames(h.merged) }

// orderNames returns the keys of m with well-known names first in
// canonical order, any other name following in lexicographic order.
func orderNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for _, name := range canonicalOrder {
		if _, ok := m[name]; ok {
			names = append(names, name)
		}
	}
	var others []string
	for name := range m {
		if !slices.Contains(canonicalOrder, name) {
			others = append(others, name)
		}
	}
	slices.Sort(others)
	return append(names, others...)
}

// Part returns the part a parameter is carried in.
func (h *Header) Part(name string) (Part, bool) {
	part, ok := h.merged[name]
	return part, ok
}

// Has reports whether the merged header contains name.
func (h *Header) Has(name string) bool {
	_, ok := h.merged[name]
	return ok
}

// Get returns the value of a parameter: the decoded value for well-known
// and registered parameters, the generic JSON value otherwise.
func (h *Header) Get(name string) (any, bool) {
	if v, ok := h.values[name]; ok {
		return v, true
	}
	part, ok := h.merged[name]
	if !ok {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(h.parts[part][name], &v); err != nil {
		return nil, false
	}
	return v, true
}

// Raw returns the JSON encoding of a parameter.
func (h *Header) Raw(name string) (json.RawMessage, bool) {
	part, ok := h.merged[name]
	if !ok {
		return nil, false
	}
	return slices.Clone(h.parts[part][name]), true
}

// Extension returns the value of a registered extension parameter, as
// returned by its FromJSON hook.
func (h *Header) Extension(name string) (any, bool) {
	if _, ok := h.registry.Lookup(name); !ok {
		return nil, false
	}
	v, ok := h.values[name]
	return v, ok
}

// Parameters returns the merged header as generic JSON values.
func (h *Header) Parameters() Parameters {
	params := make(Parameters, len(h.merged))
	for name := range h.merged {
		var v any
		if part := h.merged[name]; json.Unmarshal(h.parts[part][name], &v) == nil {
			params[name] = v
		}
	}
	return params
}

func (h *Header) str(name string) string {
	s, _ := h.values[name].(string)
	return s
}

func (h *Header) bytes(name string) []byte {
	b, _ := h.values[name].([]byte)
	return slices.Clone(b)
}

// Algorithm returns "alg".
func (h *Header) Algorithm() jwa.Algorithm { return h.str(Algorithm) }

// Encryption returns "enc", or "" for a JWS header.
func (h *Header) Encryption() jwa.Algorithm { return h.str(Encryption) }

// Compression returns "zip".
func (h *Header) Compression() jwa.Algorithm { return h.str(Zip) }

// KeyID returns "kid".
func (h *Header) KeyID() string { return h.str(KeyID) }

// Type returns "typ".
func (h *Header) Type() string { return h.str(Type) }

// ContentType returns "cty".
func (h *Header) ContentType() string { return h.str(ContentType) }

// JWKSetURL returns "jku".
func (h *Header) JWKSetURL() string { return h.str(JWKSetURL) }

// X509URL returns "x5u".
func (h *Header) X509URL() string { return h.str(X509URL) }

// Critical returns the names listed in "crit".
func (h *Header) Critical() []string {
	crit, _ := h.values[Critical].([]string)
	return slices.Clone(crit)
}

// JSONWebKey returns "jwk".
func (h *Header) JSONWebKey() *jwk.Key {
	key, _ := h.values[JSONWebKey].(*jwk.Key)
	return key
}

// EphemeralPublicKey returns "epk".
func (h *Header) EphemeralPublicKey() *jwk.Key {
	key, _ := h.values[EphemeralPublicKey].(*jwk.Key)
	return key
}

// AgreementPartyUInfo returns the decoded "apu".
func (h *Header) AgreementPartyUInfo() []byte { return h.bytes(AgreementPartyUInfo) }

// AgreementPartyVInfo returns the decoded "apv".
func (h *Header) AgreementPartyVInfo() []byte { return h.bytes(AgreementPartyVInfo) }

// InitializationVector returns the decoded "iv" of AES-GCM key wrapping.
func (h *Header) InitializationVector() []byte { return h.bytes(InitializationVector) }

// AuthenticationTag returns the decoded "tag" of AES-GCM key wrapping.
func (h *Header) AuthenticationTag() []byte { return h.bytes(AuthenticationTag) }

// PBES2Salt returns the decoded "p2s".
func (h *Header) PBES2Salt() []byte { return h.bytes(PBES2Salt) }

// PBES2Count returns "p2c".
func (h *Header) PBES2Count() int {
	n, _ := h.values[PBES2Count].(int)
	return n
}

// X509CertificateChain returns the certificates of "x5c", leaf first.
func (h *Header) X509CertificateChain() []*x509.Certificate {
	certs, _ := h.values[X509CertificateChain].([]*x509.Certificate)
	return slices.Clone(certs)
}

// X509SHA1Thumbprint returns the decoded "x5t".
func (h *Header) X509SHA1Thumbprint() []byte { return h.bytes(X509CertificateSHA1Thumbprint) }

// X509SHA256Thumbprint returns the decoded "x5t#S256".
func (h *Header) X509SHA256Thumbprint() []byte { return h.bytes(X509CertificateSHA256Thumbprint) }

func jsonEqual(a, b json.RawMessage) (bool, error) {
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		return false, err
	}
	return reflect.DeepEqual(va, vb), nil
}
