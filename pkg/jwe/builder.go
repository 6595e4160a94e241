package jwe

import (
	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwk"
	"golang.org/x/exp/slices"
)

// managed are the header parameters only the builder sets.
var managed = []string{
	header.Algorithm, header.Encryption, header.Zip,
	header.EphemeralPublicKey, header.AgreementPartyUInfo, header.AgreementPartyVInfo,
	header.InitializationVector, header.AuthenticationTag,
	header.PBES2Salt, header.PBES2Count,
}

// target is one recipient being built.
type target struct {
	alg    jwa.Algorithm
	key    *jwk.Key
	params header.Parameters

	apu, apv []byte

	p2s []byte
	p2c int
}

// Builder encrypts a plaintext for one or more recipients. Methods record
// the first error they encounter, which Encrypt returns. A Builder must
// not be used from more than one goroutine, and encrypts once.
//
//	encrypted, err := jwe.NewBuilder(jwa.A256GCM).
//		Recipient(jwa.RSAOAEP256, rsaKey).
//		Then().
//		Recipient(jwa.ECDHESA256KW, ecKey).
//		Encrypt(plaintext)
type Builder struct {
	config *config
	enc    jwa.Algorithm

	protected header.Parameters
	shared    header.Parameters
	aad       []byte
	compress  bool

	targets []*target
	open    *target

	sealed bool
	err    error
}

// NewBuilder returns a builder encrypting content with enc.
func NewBuilder(enc jwa.Algorithm, opts ...Option) *Builder {
	b := &Builder{
		enc:       enc,
		protected: header.Parameters{},
		shared:    header.Parameters{},
	}
	b.config, b.err = newConfig(opts...)
	if b.err == nil && !jwa.IsContentEncryption(enc) {
		b.err = jose.NewHeaderError("unsupported content encryption algorithm %q", enc)
	}
	return b
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder) current() *target {
	if b.open == nil {
		b.open = &target{params: header.Parameters{}}
	}
	return b.open
}

func checkName(name string) error {
	if slices.Contains(managed, name) {
		return jose.NewHeaderError("%q is set by the builder", name)
	}
	return nil
}

// Recipient sets the key management algorithm and key of the open
// recipient, opening one if needed. The key is public for RSA and ECDH
// algorithms, the shared secret for the others, and the password for
// PBES2.
func (b *Builder) Recipient(alg jwa.Algorithm, key *jwk.Key) *Builder {
	if _, ok := keyManagers[alg]; !ok {
		return b.fail(jose.NewHeaderError("unsupported key management algorithm %q", alg))
	}
	if key == nil {
		return b.fail(jose.NewKeyError("no key for %q", alg))
	}
	if err := checkKey(key, alg, senderOperation(alg)); err != nil {
		return b.fail(err)
	}

	r := b.current()
	if r.key != nil {
		return b.fail(jose.NewHeaderError("recipient already has a key, call Then to add another"))
	}
	r.alg, r.key = alg, key
	return b
}

// KeyID sets the "kid" of the open recipient. It defaults to the key ID
// of the recipient's key.
func (b *Builder) KeyID(kid string) *Builder {
	b.current().params[header.KeyID] = kid
	return b
}

// Header sets a header parameter of the open recipient.
func (b *Builder) Header(name string, value any) *Builder {
	if err := checkName(name); err != nil {
		return b.fail(err)
	}
	b.current().params[name] = value
	return b
}

// PartyInfo sets the "apu" and "apv" inputs of the open ECDH recipient's
// key derivation.
func (b *Builder) PartyInfo(apu, apv []byte) *Builder {
	r := b.current()
	if f := jwa.KeyManagementFamily(r.alg); f != jwa.FamilyECDH && f != jwa.FamilyECDHKeyWrap {
		return b.fail(jose.NewHeaderError("party info requires an ECDH recipient"))
	}
	r.apu, r.apv = slices.Clone(apu), slices.Clone(apv)
	return b
}

// PBES2 sets the salt input and iteration count of the open PBES2
// recipient. A nil salt or a zero count selects the default.
func (b *Builder) PBES2(salt []byte, count int) *Builder {
	r := b.current()
	if jwa.KeyManagementFamily(r.alg) != jwa.FamilyPBES2 {
		return b.fail(jose.NewHeaderError("PBES2 parameters require a PBES2 recipient"))
	}
	r.p2s, r.p2c = slices.Clone(salt), count
	return b
}

// Then closes the open recipient, the following calls configure a new one.
func (b *Builder) Then() *Builder {
	if b.open == nil || b.open.key == nil {
		return b.fail(jose.NewHeaderError("recipient has no algorithm and key"))
	}
	b.targets = append(b.targets, b.open)
	b.open = nil
	return b
}

// Protected sets a parameter of the protected header shared by every
// recipient.
func (b *Builder) Protected(name string, value any) *Builder {
	if err := checkName(name); err != nil {
		return b.fail(err)
	}
	b.protected[name] = value
	return b
}

// Shared sets a parameter of the unprotected header shared by every
// recipient. A JWE with shared parameters cannot be compact serialized.
func (b *Builder) Shared(name string, value any) *Builder {
	if err := checkName(name); err != nil {
		return b.fail(err)
	}
	b.shared[name] = value
	return b
}

// AdditionalData sets additional authenticated data. A JWE with
// additional data cannot be compact serialized.
func (b *Builder) AdditionalData(aad []byte) *Builder {
	b.aad = slices.Clone(aad)
	return b
}

// Compress compresses the plaintext with DEFLATE before encryption.
func (b *Builder) Compress() *Builder {
	b.compress = true
	return b
}

// Encrypt encrypts plaintext for every recipient, including one left open.
func (b *Builder) Encrypt(plaintext []byte) (*Encrypted, error) {
	if b.sealed {
		return nil, jose.NewSerializationError("builder has already encrypted")
	}
	if b.err != nil {
		return nil, b.err
	}
	if b.open != nil {
		b.Then()
		if b.err != nil {
			return nil, b.err
		}
	}
	if len(b.targets) == 0 {
		return nil, jose.NewHeaderError("no recipients")
	}
	for _, t := range b.targets {
		if jwa.IsDirect(t.alg) && len(b.targets) > 1 {
			return nil, jose.NewHeaderError("%q must be the only recipient", t.alg)
		}
	}
	b.sealed = true

	results, cek, err := b.wrapKeys()
	if err != nil {
		return nil, err
	}

	protected := header.Parameters{header.Encryption: b.enc}
	for name, value := range b.protected {
		protected[name] = value
	}
	if b.compress {
		protected[header.Zip] = jwa.Deflate
	}

	perRecipient := make([]header.Parameters, len(b.targets))
	for i, t := range b.targets {
		params := header.Parameters{header.Algorithm: t.alg}
		if kid := t.key.KeyID(); kid != "" {
			params[header.KeyID] = kid
		}
		for name, value := range t.params {
			params[name] = value
		}
		for name, value := range results[i].params {
			params[name] = value
		}
		perRecipient[i] = params
	}
	if len(b.targets) == 1 {
		for name, value := range perRecipient[0] {
			protected[name] = value
		}
		perRecipient[0] = nil
	}

	e := &Encrypted{config: b.config}
	for i := range b.targets {
		h, err := header.Build(b.config.registry, protected, b.shared, perRecipient[i])
		if err != nil {
			return nil, err
		}
		if i == 0 {
			protectedJSON, err := h.PartJSON(header.Protected)
			if err != nil {
				return nil, err
			}
			e.protected = base64.Encode(protectedJSON)
			e.shared, err = h.PartJSON(header.Shared)
			if err != nil {
				return nil, err
			}
		}
		e.recipients = append(e.recipients, &Recipient{header: h, encryptedKey: results[i].encryptedKey})
	}
	if len(b.aad) > 0 {
		e.aad = base64.Encode(b.aad)
	}

	if b.compress {
		plaintext, err = deflate(plaintext)
		if err != nil {
			return nil, err
		}
	}

	e.iv, e.ciphertext, e.tag, err = encryptContent(contentCiphers[b.enc], cek, plaintext, e.additionalData())
	if err != nil {
		return nil, err
	}

	b.config.logger.WithFields(map[string]any{"recipients": len(e.recipients), "enc": b.enc}).Debug("Encrypted JWE payload.")
	return e, nil
}

// wrapKeys determines the content encryption key and protects it for
// every recipient.
func (b *Builder) wrapKeys() ([]*wrapped, []byte, error) {
	var cek []byte
	if !jwa.IsDirect(b.targets[0].alg) {
		var err error
		cek, err = newCEK(b.enc)
		if err != nil {
			return nil, nil, err
		}
	}

	results := make([]*wrapped, 0, len(b.targets))
	for _, t := range b.targets {
		w, err := keyManagers[t.alg].wrap(b.config, t, b.enc, cek)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, w)
	}
	return results, results[0].cek, nil
}
