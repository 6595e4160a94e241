package jwk

import (
	"bytes"
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/ed448"
	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/keyutil"
	"golang.org/x/exp/slices"
)

// Builder assembles a Key. Builder methods record the first error they
// encounter, which Build and Ephemeral return. A Builder must not be
// used from more than one goroutine.
type Builder struct {
	key            Key
	thumbprintHash crypto.Hash
	err            error
}

// NewBuilder returns a Builder for a key of type t.
func NewBuilder(t Type) *Builder {
	b := &Builder{key: Key{typ: t}}
	if _, ok := typeNames[t]; !ok {
		b.err = jose.NewKeyError("unknown key type %d", t)
	}
	return b
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Algorithm sets the "alg" hint.
func (b *Builder) Algorithm(alg jwa.Algorithm) *Builder {
	b.key.alg = alg
	return b
}

// Use sets the "use" of the key.
func (b *Builder) Use(use Use) *Builder {
	b.key.use = use
	return b
}

// Operations sets the "key_ops" of the key.
func (b *Builder) Operations(ops ...Operation) *Builder {
	b.key.ops = slices.Clone(ops)
	return b
}

// KeyID sets the "kid" of the key.
func (b *Builder) KeyID(kid string) *Builder {
	b.key.kid = kid
	return b
}

// ThumbprintKeyID sets the "kid" of the key to its RFC 7638 thumbprint
// using h, computed once the key material is known.
func (b *Builder) ThumbprintKeyID(h crypto.Hash) *Builder {
	if h == 0 {
		h = crypto.SHA256
	}
	b.thumbprintHash = h
	return b
}

// X509URL sets the "x5u" of the key.
func (b *Builder) X509URL(url string) *Builder {
	b.key.x5u = url
	return b
}

// Certificates sets the certificate chain of the key, leaf first, and
// its "x5t" and "x5t#S256" thumbprints. If no key material is given, the
// public key of the leaf is used.
func (b *Builder) Certificates(certs ...*x509.Certificate) *Builder {
	if len(certs) == 0 {
		return b
	}
	b.key.certs = slices.Clone(certs)
	sum1 := sha1.Sum(certs[0].Raw)
	sum256 := sha256.Sum256(certs[0].Raw)
	b.key.x5t = sum1[:]
	b.key.x5t256 = sum256[:]
	return b
}

// PEM reads PEM encoded key material from r: a private key, a public
// key, or a certificate chain, optionally following a private key.
func (b *Builder) PEM(r io.Reader) *Builder {
	data, err := io.ReadAll(r)
	if err != nil {
		return b.fail(jose.WrapKeyError(err, "failed to read PEM data"))
	}

	first, _ := pem.Decode(data)
	if first == nil {
		return b.fail(jose.NewKeyError("failed to decode PEM block"))
	}

	if bytes.Contains(data, []byte("-----BEGIN CERTIFICATE-----")) {
		certs, err := keyutil.ParseCertificates(bytes.NewReader(data))
		if err != nil {
			return b.fail(jose.WrapKeyError(err, "invalid PEM certificate chain"))
		}
		b.Certificates(certs...)
	}

	if first.Type == "CERTIFICATE" {
		return b
	}

	if priv, err := keyutil.ParsePrivateKey(bytes.NewReader(data)); err == nil {
		return b.PrivateKey(priv)
	}

	pub, err := keyutil.ParsePublicKey(bytes.NewReader(data))
	if err != nil {
		return b.fail(jose.WrapKeyError(err, "invalid PEM key"))
	}
	return b.PublicKey(pub)
}

// PublicKey sets the public key material.
func (b *Builder) PublicKey(pub crypto.PublicKey) *Builder {
	switch k := pub.(type) {
	case *ecdh.PublicKey:
		if k.Curve() != ecdh.X25519() {
			return b.fail(jose.NewKeyError("unsupported ECDH public key curve %v", k.Curve()))
		}
		pub = keyutil.X25519PublicKey(k.Bytes())
	case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey, ed448.PublicKey,
		keyutil.X25519PublicKey, keyutil.X448PublicKey:
	default:
		return b.fail(jose.NewKeyError("unsupported public key type %T", pub))
	}
	b.key.public = pub
	return b
}

// PrivateKey sets the private key material. The public key is derived
// from it when the key is built.
func (b *Builder) PrivateKey(priv crypto.PrivateKey) *Builder {
	switch k := priv.(type) {
	case *ecdh.PrivateKey:
		if k.Curve() != ecdh.X25519() {
			return b.fail(jose.NewKeyError("unsupported ECDH private key curve %v", k.Curve()))
		}
		priv = keyutil.X25519PrivateKey(k.Bytes())
	case *rsa.PrivateKey:
		if k.Precomputed.Dp == nil && len(k.Primes) == 2 {
			cp := *k
			cp.Precompute()
			priv = &cp
		}
	case *ecdsa.PrivateKey, ed25519.PrivateKey, ed448.PrivateKey,
		keyutil.X25519PrivateKey, keyutil.X448PrivateKey:
	default:
		return b.fail(jose.NewKeyError("unsupported private key type %T", priv))
	}
	b.key.private = priv
	return b
}

// Secret sets the raw key of an octet key.
func (b *Builder) Secret(secret []byte) *Builder {
	b.key.secret = slices.Clone(secret)
	return b
}

// Build finalizes the key as given and checks it with Verify.
func (b *Builder) Build() (*Key, error) {
	if b.err != nil {
		return nil, b.err
	}

	key := b.key
	key.ops = slices.Clone(b.key.ops)

	if key.private != nil && key.public == nil {
		pub, err := derivePublic(key.typ, key.private)
		if err != nil {
			return nil, err
		}
		key.public = pub

		if p, ok := key.private.(*ecdsa.PrivateKey); ok && (p.X == nil || p.Y == nil) {
			cp := *p
			cp.PublicKey = *pub.(*ecdsa.PublicKey)
			key.private = &cp
		}
	}

	if key.public == nil && key.private == nil && len(key.certs) > 0 {
		key.public = key.certs[0].PublicKey
		if k, ok := key.public.(*ecdh.PublicKey); ok {
			key.public = keyutil.X25519PublicKey(k.Bytes())
		}
	}

	if key.typ == TypeOctet && len(key.secret) > 0 && key.alg != "" {
		if err := checkSecretSize(key.alg, key.secret); err != nil {
			return nil, err
		}
	}

	if _, err := Verify(&key); err != nil {
		return nil, err
	}

	if b.thumbprintHash != 0 {
		thumbprint, err := key.Thumbprint(b.thumbprintHash)
		if err != nil {
			return nil, jose.WrapKeyError(err, "failed to compute key thumbprint")
		}
		key.kid = base64.Encode(thumbprint)
	}

	return &key, nil
}

// Ephemeral generates fresh key material for the key type, ignoring any
// material already given, and builds the key. Octet keys are sized for
// the "alg" hint, or 256 bits without one.
func (b *Builder) Ephemeral() (*Key, error) {
	if b.err != nil {
		return nil, b.err
	}

	b.key.public = nil
	b.key.private = nil
	b.key.secret = nil

	var err error
	switch b.key.typ {
	case TypeRSA:
		_, b.key.private, err = keyutil.NewRSAKeyPair()
	case TypeEC256, TypeEC384, TypeEC521:
		_, b.key.private, err = keyutil.NewECDSAKeyPairForCurve(b.key.typ.EllipticCurve())
	case TypeEd25519:
		_, b.key.private, err = keyutil.NewEdDSAKeyPair()
	case TypeEd448:
		_, b.key.private, err = keyutil.NewEd448KeyPair()
	case TypeX25519:
		_, b.key.private, err = keyutil.NewX25519KeyPair()
	case TypeX448:
		_, b.key.private, err = keyutil.NewX448KeyPair()
	case TypeOctet:
		b.key.secret, err = keyutil.NewSymmetricKey(SecretSize(b.key.alg))
	}
	if err != nil {
		return nil, jose.WrapKeyError(err, "failed to generate %s key", b.key.typ)
	}

	return b.Build()
}

// SecretSize returns the size in bytes of a secret key for alg, or 32
// when alg does not determine one.
func SecretSize(alg jwa.Algorithm) int {
	if size := jwa.ContentKeySize(alg); size > 0 {
		return size
	}
	if size := jwa.WrapKeySize(alg); size > 0 && jwa.KeyManagementFamily(alg) != jwa.FamilyPBES2 {
		return size
	}
	switch alg {
	case jwa.HS384:
		return 48
	case jwa.HS512:
		return 64
	}
	return 32
}

// checkSecretSize rejects secrets that are too small for HMAC, or not
// exactly the size an AES based algorithm needs.
func checkSecretSize(alg jwa.Algorithm, secret []byte) error {
	switch {
	case alg == jwa.HS256 || alg == jwa.HS384 || alg == jwa.HS512:
		if len(secret) < SecretSize(alg) {
			return jose.NewKeyError("%s secret must be at least %d bytes", alg, SecretSize(alg))
		}
	case jwa.IsContentEncryption(alg), jwa.WrapKeySize(alg) > 0 && jwa.KeyManagementFamily(alg) != jwa.FamilyPBES2:
		if len(secret) != SecretSize(alg) {
			return jose.NewKeyError("%s secret must be exactly %d bytes, got %d", alg, SecretSize(alg), len(secret))
		}
	}
	return nil
}

// FromPublicKey returns a well-known key for a native public key.
func FromPublicKey(pub crypto.PublicKey) (*Key, error) {
	t, err := typeOfKey(pub)
	if err != nil {
		return nil, err
	}
	key, err := NewBuilder(t).PublicKey(pub).Build()
	if err != nil {
		return nil, err
	}
	return key.WellKnown(), nil
}

// FromPrivateKey returns a key for a native private key.
func FromPrivateKey(priv crypto.PrivateKey) (*Key, error) {
	t, err := typeOfKey(priv)
	if err != nil {
		return nil, err
	}
	return NewBuilder(t).PrivateKey(priv).Build()
}

// FromSecret returns an octet key for a raw secret.
func FromSecret(secret []byte) (*Key, error) {
	return NewBuilder(TypeOctet).Secret(secret).Build()
}

func typeOfKey(key any) (Type, error) {
	switch k := key.(type) {
	case *rsa.PublicKey, *rsa.PrivateKey:
		return TypeRSA, nil
	case *ecdsa.PublicKey:
		if t := typeOfCurve(k.Curve); t != TypeUnknown {
			return t, nil
		}
	case *ecdsa.PrivateKey:
		if t := typeOfCurve(k.Curve); t != TypeUnknown {
			return t, nil
		}
	case ed25519.PublicKey, ed25519.PrivateKey:
		return TypeEd25519, nil
	case ed448.PublicKey, ed448.PrivateKey:
		return TypeEd448, nil
	case keyutil.X25519PublicKey, keyutil.X25519PrivateKey:
		return TypeX25519, nil
	case keyutil.X448PublicKey, keyutil.X448PrivateKey:
		return TypeX448, nil
	case *ecdh.PublicKey:
		if k.Curve() == ecdh.X25519() {
			return TypeX25519, nil
		}
	case *ecdh.PrivateKey:
		if k.Curve() == ecdh.X25519() {
			return TypeX25519, nil
		}
	case []byte:
		return TypeOctet, nil
	}
	return TypeUnknown, jose.NewKeyError("unsupported key type %T", key)
}

// String returns a short description of the key, never its material.
func (k *Key) String() string {
	s := k.typ.String()
	if k.kid != "" {
		s += fmt.Sprintf(" kid=%q", k.kid)
	}
	if k.alg != "" {
		s += fmt.Sprintf(" alg=%q", k.alg)
	}
	if k.IsPrivate() {
		s += " private"
	}
	return s
}
