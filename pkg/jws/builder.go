package jws

import (
	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwk"
)

// group is one signature being built.
type group struct {
	alg         jwa.Algorithm
	key         *jwk.Key
	protected   header.Parameters
	unprotected header.Parameters
}

// Builder signs a payload with one or more keys. Methods record the
// first error they encounter, which Sign returns. A Builder must not be
// used from more than one goroutine, and signs once.
//
//	signed, err := jws.NewBuilder().
//		Signature(jwa.ES256, ecKey).
//		Next().
//		Signature(jwa.HS256, hmacKey).
//		Header(header.KeyID, "hmac").
//		Sign(payload)
type Builder struct {
	config *config
	groups []*group
	open   *group
	sealed bool
	err    error
}

// NewBuilder returns a new signature builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{}
	b.config, b.err = newConfig(opts...)
	return b
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder) current() *group {
	if b.open == nil {
		b.open = &group{protected: header.Parameters{}, unprotected: header.Parameters{}}
	}
	return b.open
}

// Signature sets the algorithm and key of the open signature, opening
// one if needed.
func (b *Builder) Signature(alg jwa.Algorithm, key *jwk.Key) *Builder {
	if _, ok := algorithms[alg]; !ok {
		return b.fail(jose.NewHeaderError("unsupported signature algorithm %q", alg))
	}
	if key == nil {
		return b.fail(jose.NewKeyError("no key for %q", alg))
	}
	if !key.IsPrivate() {
		return b.fail(jose.NewKeyError("signing with %q requires a private or secret key", alg))
	}
	if err := checkKey(key, alg, jwk.OpSign); err != nil {
		return b.fail(err)
	}

	g := b.current()
	if g.key != nil {
		return b.fail(jose.NewHeaderError("signature already has a key, call Next to add another"))
	}
	g.alg, g.key = alg, key
	return b
}

// Header sets a protected header parameter of the open signature.
func (b *Builder) Header(name string, value any) *Builder {
	if name == header.Algorithm {
		return b.fail(jose.NewHeaderError("%q is set by Signature", name))
	}
	b.current().protected[name] = value
	return b
}

// Unprotected sets an unprotected header parameter of the open
// signature. A signature with unprotected parameters cannot be compact
// serialized.
func (b *Builder) Unprotected(name string, value any) *Builder {
	if name == header.Algorithm {
		return b.fail(jose.NewHeaderError("%q is set by Signature", name))
	}
	b.current().unprotected[name] = value
	return b
}

// Next closes the open signature, the following calls configure a new one.
func (b *Builder) Next() *Builder {
	if b.open == nil || b.open.key == nil {
		return b.fail(jose.NewHeaderError("signature has no algorithm and key"))
	}
	b.groups = append(b.groups, b.open)
	b.open = nil
	return b
}

// Sign signs payload with every signature, including one left open.
func (b *Builder) Sign(payload []byte) (*Signed, error) {
	if b.sealed {
		return nil, jose.NewSerializationError("builder has already signed")
	}
	if b.err != nil {
		return nil, b.err
	}
	if b.open != nil {
		b.Next()
		if b.err != nil {
			return nil, b.err
		}
	}
	if len(b.groups) == 0 {
		return nil, jose.NewHeaderError("no signatures")
	}
	b.sealed = true

	signed := &Signed{
		payload:        append([]byte{}, payload...),
		encodedPayload: base64.Encode(payload),
		config:         b.config,
	}

	for _, g := range b.groups {
		sig, err := b.sign(g, signed.encodedPayload)
		if err != nil {
			return nil, err
		}
		signed.signatures = append(signed.signatures, sig)
	}

	b.config.logger.WithFields(map[string]any{"signatures": len(signed.signatures)}).Debug("Signed JWS payload.")
	return signed, nil
}

func (b *Builder) sign(g *group, encodedPayload string) (*Signature, error) {
	protected := header.Parameters{header.Algorithm: g.alg}
	for name, value := range g.protected {
		protected[name] = value
	}
	if _, ok := protected[header.KeyID]; !ok && g.key.KeyID() != "" {
		if _, ok := g.unprotected[header.KeyID]; !ok {
			protected[header.KeyID] = g.key.KeyID()
		}
	}

	h, err := header.Build(b.config.registry, protected, nil, g.unprotected)
	if err != nil {
		return nil, err
	}
	protectedJSON, err := h.PartJSON(header.Protected)
	if err != nil {
		return nil, err
	}
	encodedProtected := base64.Encode(protectedJSON)

	value, err := algorithms[g.alg].sign(g.key, signingInput(encodedProtected, encodedPayload))
	if err != nil {
		return nil, err
	}

	return &Signature{header: h, protected: encodedProtected, signature: value}, nil
}
