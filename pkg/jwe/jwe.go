// Package jwe implements JSON Web Encryption: content encrypted for one
// or more recipients, in the compact, general JSON and flattened JSON
// serializations.
//
// https://datatracker.ietf.org/doc/html/rfc7516
package jwe

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

// Recipient is one recipient of a JWE: the header describing how the
// content encryption key was protected for it, and the encrypted key.
type Recipient struct {
	header       *header.Header
	encryptedKey []byte
}

// Header returns the merged protected, shared and per-recipient header.
func (r *Recipient) Header() *header.Header { return r.header }

// EncryptedKey returns the encrypted content encryption key, empty for
// direct algorithms.
func (r *Recipient) EncryptedKey() []byte { return slices.Clone(r.encryptedKey) }

// Encrypted is a JSON Web Encryption object. An Encrypted value is
// immutable.
type Encrypted struct {
	// protected is the base64url encoded protected header, exactly as it
	// was authenticated.
	protected string

	// shared is the JSON of the shared unprotected header, if any.
	shared json.RawMessage

	recipients []*Recipient

	// aad is the base64url encoded additional authenticated data, if any.
	aad string

	iv         []byte
	ciphertext []byte
	tag        []byte

	config *config
}

// Recipients returns the recipients of the JWE.
func (e *Encrypted) Recipients() []*Recipient { return slices.Clone(e.recipients) }

// AdditionalData returns the additional authenticated data, or nil.
func (e *Encrypted) AdditionalData() []byte {
	aad, _ := base64.Decode(e.aad)
	if len(aad) == 0 {
		return nil
	}
	return aad
}

// additionalData is the AAD input of the content encryption.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-5.1
func (e *Encrypted) additionalData() []byte {
	if e.aad == "" {
		return []byte(e.protected)
	}
	return []byte(e.protected + "." + e.aad)
}

// Compact returns the JWE compact serialization. It requires exactly one
// recipient, an entirely protected header and no additional data.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-7.1
func (e *Encrypted) Compact() (string, error) {
	if len(e.recipients) != 1 {
		return "", jose.NewSerializationError("compact serialization requires exactly one recipient, have %d", len(e.recipients))
	}
	if e.aad != "" {
		return "", jose.NewSerializationError("compact serialization cannot carry additional authenticated data")
	}
	r := e.recipients[0]
	perRecipient, err := r.header.PartJSON(header.PerRecipient)
	if err != nil {
		return "", err
	}
	if e.shared != nil || perRecipient != nil {
		return "", jose.NewSerializationError("compact serialization cannot carry an unprotected header")
	}
	return strings.Join([]string{
		e.protected,
		base64.Encode(r.encryptedKey),
		base64.Encode(e.iv),
		base64.Encode(e.ciphertext),
		base64.Encode(e.tag),
	}, "."), nil
}

// String returns the compact serialization, or "" if the JWE has none.
func (e *Encrypted) String() string {
	compact, err := e.Compact()
	if err != nil {
		return ""
	}
	return compact
}

type jsonRecipient struct {
	Header       json.RawMessage `json:"header,omitempty"`
	EncryptedKey string          `json:"encrypted_key,omitempty"`
}

type jsonContent struct {
	Protected   string          `json:"protected,omitempty"`
	Unprotected json.RawMessage `json:"unprotected,omitempty"`
	AAD         string          `json:"aad,omitempty"`
	IV          string          `json:"iv,omitempty"`
	Ciphertext  string          `json:"ciphertext"`
	Tag         string          `json:"tag,omitempty"`
}

type generalJSON struct {
	jsonContent
	Recipients []jsonRecipient `json:"recipients"`
}

type flattenedJSON struct {
	jsonContent
	jsonRecipient
}

func (e *Encrypted) content() jsonContent {
	return jsonContent{
		Protected:   e.protected,
		Unprotected: e.shared,
		AAD:         e.aad,
		IV:          base64.Encode(e.iv),
		Ciphertext:  base64.Encode(e.ciphertext),
		Tag:         base64.Encode(e.tag),
	}
}

func (r *Recipient) toJSON() (jsonRecipient, error) {
	perRecipient, err := r.header.PartJSON(header.PerRecipient)
	if err != nil {
		return jsonRecipient{}, err
	}
	return jsonRecipient{Header: perRecipient, EncryptedKey: base64.Encode(r.encryptedKey)}, nil
}

// JSON returns the JWE general JSON serialization.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-7.2.1
func (e *Encrypted) JSON() ([]byte, error) {
	out := generalJSON{jsonContent: e.content(), Recipients: []jsonRecipient{}}
	for _, r := range e.recipients {
		jr, err := r.toJSON()
		if err != nil {
			return nil, err
		}
		out.Recipients = append(out.Recipients, jr)
	}
	return json.Marshal(out)
}

// FlattenedJSON returns the JWE flattened JSON serialization, which
// requires exactly one recipient.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-7.2.2
func (e *Encrypted) FlattenedJSON() ([]byte, error) {
	if len(e.recipients) != 1 {
		return nil, jose.NewSerializationError("flattened serialization requires exactly one recipient, have %d", len(e.recipients))
	}
	jr, err := e.recipients[0].toJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(flattenedJSON{jsonContent: e.content(), jsonRecipient: jr})
}

// Parse parses a JWE in compact, general JSON or flattened JSON
// serialization. Nothing is decrypted.
func Parse(input string, opts ...Option) (*Encrypted, error) {
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

func parseCompact(input string, config *config) (*Encrypted, error) {
	parts, err := base64.Split(input, 5)
	if err != nil {
		return nil, err
	}
	if parts[0] == "" {
		return nil, jose.NewSerializationError("compact serialization requires a protected header")
	}

	e := &Encrypted{protected: parts[0], config: config}
	if err := e.decodeContent(parts[2], parts[3], parts[4]); err != nil {
		return nil, err
	}

	r, err := parseRecipient(e, jsonRecipient{EncryptedKey: parts[1]})
	if err != nil {
		return nil, err
	}
	e.recipients = []*Recipient{r}
	return e, nil
}

func (e *Encrypted) decodeContent(iv, ciphertext, tag string) error {
	var err error
	if e.iv, err = base64.Decode(iv); err != nil {
		return jose.WrapSerializationError(err, "invalid initialization vector")
	}
	if e.ciphertext, err = base64.Decode(ciphertext); err != nil {
		return jose.WrapSerializationError(err, "invalid ciphertext")
	}
	if e.tag, err = base64.Decode(tag); err != nil {
		return jose.WrapSerializationError(err, "invalid authentication tag")
	}
	return nil
}

func parseJSON(data []byte, config *config) (*Encrypted, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return nil, jose.WrapSerializationError(err, "invalid JWE JSON serialization")
	}
	if _, ok := members["ciphertext"]; !ok {
		return nil, jose.NewSerializationError("JWE JSON serialization has no ciphertext")
	}

	_, general := members["recipients"]
	_, key := members["encrypted_key"]
	_, perRecipient := members["header"]

	var (
		content    jsonContent
		recipients []jsonRecipient
	)
	switch {
	case general && (key || perRecipient):
		return nil, jose.NewSerializationError("JWE JSON serialization mixes general and flattened members")
	case general:
		var g generalJSON
		if err := json.Unmarshal(data, &g); err != nil {
			return nil, jose.WrapSerializationError(err, "invalid JWE general JSON serialization")
		}
		if len(g.Recipients) == 0 {
			return nil, jose.NewSerializationError("JWE has no recipients")
		}
		content, recipients = g.jsonContent, g.Recipients
	default:
		var f flattenedJSON
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, jose.WrapSerializationError(err, "invalid JWE flattened JSON serialization")
		}
		content, recipients = f.jsonContent, []jsonRecipient{f.jsonRecipient}
	}

	e := &Encrypted{protected: content.Protected, aad: content.AAD, config: config}
	if shared := bytes.TrimSpace(content.Unprotected); len(shared) > 0 && !bytes.Equal(shared, []byte("null")) {
		e.shared = shared
	}
	if _, err := base64.Decode(content.AAD); err != nil {
		return nil, jose.WrapSerializationError(err, "invalid additional authenticated data")
	}
	if err := e.decodeContent(content.IV, content.Ciphertext, content.Tag); err != nil {
		return nil, err
	}

	for i, jr := range recipients {
		r, err := parseRecipient(e, jr)
		if err != nil {
			return nil, jose.WrapSerializationError(err, "recipient %d", i)
		}
		if i > 0 && r.header.Encryption() != e.recipients[0].header.Encryption() {
			return nil, jose.NewHeaderError("recipient %d uses %q, recipient 0 uses %q", i, r.header.Encryption(), e.recipients[0].header.Encryption())
		}
		e.recipients = append(e.recipients, r)
	}
	return e, nil
}

func parseRecipient(e *Encrypted, jr jsonRecipient) (*Recipient, error) {
	protected, err := base64.Decode(e.protected)
	if err != nil {
		return nil, jose.WrapSerializationError(err, "invalid protected header")
	}
	perRecipient := bytes.TrimSpace(jr.Header)
	if bytes.Equal(perRecipient, []byte("null")) {
		perRecipient = nil
	}

	h, err := header.Parse(e.config.registry, protected, e.shared, perRecipient)
	if err != nil {
		return nil, err
	}
	if !jwa.IsKeyManagement(h.Algorithm()) {
		return nil, jose.NewHeaderError("%q is not a key management algorithm", h.Algorithm())
	}

	encryptedKey, err := base64.Decode(jr.EncryptedKey)
	if err != nil {
		return nil, jose.WrapSerializationError(err, "invalid encrypted key")
	}
	return &Recipient{header: h, encryptedKey: encryptedKey}, nil
}

// ParseAndDecrypt parses a JWE in any serialization and decrypts it with
// key. Once the options are accepted, every failure is jose.ErrDecryption,
// including a protected header that no longer decodes or validates, so a
// caller cannot tell which part of the input was altered. The reasons are
// logged at debug level.
func ParseAndDecrypt(input string, key *jwk.Key, opts ...Option) (*Encrypted, []byte, error) {
	config, err := newConfig(opts...)
	if err != nil {
		return nil, nil, err
	}

	var e *Encrypted
	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, "{") {
		e, err = parseJSON([]byte(trimmed), config)
	} else {
		e, err = parseCompact(input, config)
	}
	if err != nil {
		config.logger.Debug("Failed to parse JWE for decryption: %v", err)
		return nil, nil, jose.ErrDecryption
	}

	plaintext, err := e.Decrypt(key)
	if err != nil {
		return nil, nil, err
	}
	return e, plaintext, nil
}

// Decrypt returns the plaintext if the content decrypts for any
// recipient with key. Every other outcome is jose.ErrDecryption, with the
// reasons only logged at debug level.
func (e *Encrypted) Decrypt(key *jwk.Key) ([]byte, error) {
	if key == nil {
		return nil, jose.ErrDecryption
	}
	for i, r := range e.recipients {
		if plaintext, ok := e.attempt(i, r, key); ok {
			return plaintext, nil
		}
	}
	return nil, jose.ErrDecryption
}

// attempt decrypts the content as a single recipient.
func (e *Encrypted) attempt(i int, r *Recipient, key *jwk.Key) ([]byte, bool) {
	alg, enc := r.header.Algorithm(), r.header.Encryption()
	logger := e.config.logger.WithFields(map[string]any{"recipient": i, "alg": alg, "enc": enc})

	if kid := r.header.KeyID(); kid != "" && key.KeyID() != "" && kid != key.KeyID() {
		logger.Debug("Skipping recipient: key id %q does not match %q.", kid, key.KeyID())
		return nil, false
	}
	if err := checkKey(key, alg, recipientOperation(alg)); err != nil {
		logger.Debug("Skipping recipient: %v", err)
		return nil, false
	}
	if !key.IsPrivate() {
		logger.Debug("Skipping recipient: key has no private or secret material.")
		return nil, false
	}

	cek, err := keyManagers[alg].unwrap(e.config, key, r.header, r.encryptedKey)
	if err != nil {
		logger.Debug("Failed to recover content encryption key: %v", err)
		return nil, false
	}

	plaintext, err := contentCiphers[enc].open(cek, e.iv, e.ciphertext, e.tag, e.additionalData())
	if err != nil {
		logger.Debug("Failed to decrypt content: %v", err)
		return nil, false
	}

	if r.header.Compression() == jwa.Deflate {
		plaintext, err = inflate(plaintext, e.config.maxDecompressedSize)
		if err != nil {
			logger.Debug("Failed to decompress content: %v", err)
			return nil, false
		}
	}
	return plaintext, true
}
