package jwk

import (
	"crypto"
	"crypto/ecdh"
	"crypto/elliptic"
	"crypto/x509"
	"fmt"

	"github.com/picatz/jose/v2/pkg/jwa"
	"golang.org/x/exp/slices"
)

// https://datatracker.ietf.org/doc/html/rfc7517#section-4
type ParamaterName = string

const (
	KeyType              ParamaterName = "kty"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.1
	PublicKeyUse         ParamaterName = "use"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.2
	KeyOperations        ParamaterName = "key_ops"  // https://datatracker.ietf.org/doc/html/rfc7517#section-4.3
	Algorithm            ParamaterName = "alg"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.4
	KeyID                ParamaterName = "kid"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.5
	X509URL              ParamaterName = "x5u"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.6
	X509CertificateChain ParamaterName = "x5c"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.7
	X509SHA1Thumbprint   ParamaterName = "x5t"      // https://datatracker.ietf.org/doc/html/rfc7517#section-4.8
	X509SHA256Thumbprint ParamaterName = "x5t#S256" // https://datatracker.ietf.org/doc/html/rfc7517#section-4.9

	// K is the symmetric key value within a JWK.
	// https://datatracker.ietf.org/doc/html/rfc7518#section-6.4
	K ParamaterName = "k"

	// Curve is the curve value within an EC or OKP JWK, such as "P-256".
	// https://datatracker.ietf.org/doc/html/rfc7518#section-6.2.1.1
	Curve ParamaterName = "crv"
	X     ParamaterName = "x" // X is the x-coordinate for the elliptic curve point, or the OKP public key.
	Y     ParamaterName = "y" // Y is the y-coordinate for the elliptic curve point.

	N  ParamaterName = "n"  // N is the RSA public modulus value.
	E  ParamaterName = "e"  // E is the RSA public exponent value.
	D  ParamaterName = "d"  // D is the RSA private exponent, or the EC/OKP private key.
	P  ParamaterName = "p"  // P is the first RSA prime factor.
	Q  ParamaterName = "q"  // Q is the second RSA prime factor.
	DP ParamaterName = "dp" // DP is the first factor CRT exponent.
	DQ ParamaterName = "dq" // DQ is the second factor CRT exponent.
	QI ParamaterName = "qi" // QI is the first CRT coefficient.
)

// Type identifies the kind of a key together with its curve, if any.
type Type int

const (
	TypeUnknown Type = iota
	TypeRSA
	TypeEC256
	TypeEC384
	TypeEC521
	TypeEd25519
	TypeEd448
	TypeX25519
	TypeX448
	TypeOctet
)

var typeNames = map[Type]struct{ kty, crv string }{
	TypeRSA:     {"RSA", ""},
	TypeEC256:   {"EC", "P-256"},
	TypeEC384:   {"EC", "P-384"},
	TypeEC521:   {"EC", "P-521"},
	TypeEd25519: {"OKP", "Ed25519"},
	TypeEd448:   {"OKP", "Ed448"},
	TypeX25519:  {"OKP", "X25519"},
	TypeX448:    {"OKP", "X448"},
	TypeOctet:   {"oct", ""},
}

// TypeOf returns the Type for the given "kty" and "crv" values.
func TypeOf(kty, crv string) (Type, error) {
	for t, names := range typeNames {
		if names.kty == kty && names.crv == crv {
			return t, nil
		}
	}
	if crv == "" {
		return TypeUnknown, fmt.Errorf("unsupported key type %q", kty)
	}
	return TypeUnknown, fmt.Errorf("unsupported key type %q with curve %q", kty, crv)
}

// KeyType returns the "kty" value of the type.
func (t Type) KeyType() string { return typeNames[t].kty }

// Curve returns the "crv" value of the type, or "" for RSA and octet keys.
func (t Type) Curve() string { return typeNames[t].crv }

func (t Type) String() string {
	names, ok := typeNames[t]
	if !ok {
		return "unknown"
	}
	if names.crv == "" {
		return names.kty
	}
	return names.kty + "/" + names.crv
}

// IsEC reports whether t is one of the NIST curves.
func (t Type) IsEC() bool { return t == TypeEC256 || t == TypeEC384 || t == TypeEC521 }

// IsOKP reports whether t is one of the RFC 8037 octet key pair curves.
func (t Type) IsOKP() bool {
	return t == TypeEd25519 || t == TypeEd448 || t == TypeX25519 || t == TypeX448
}

// EllipticCurve returns the curve of an EC type, or nil.
func (t Type) EllipticCurve() elliptic.Curve {
	switch t {
	case TypeEC256:
		return elliptic.P256()
	case TypeEC384:
		return elliptic.P384()
	case TypeEC521:
		return elliptic.P521()
	}
	return nil
}

// ECDHCurve returns the key agreement curve of an EC type, or of X25519,
// or nil. X448 is not provided by crypto/ecdh.
func (t Type) ECDHCurve() ecdh.Curve {
	switch t {
	case TypeEC256:
		return ecdh.P256()
	case TypeEC384:
		return ecdh.P384()
	case TypeEC521:
		return ecdh.P521()
	case TypeX25519:
		return ecdh.X25519()
	}
	return nil
}

func typeOfCurve(curve elliptic.Curve) Type {
	switch curve {
	case elliptic.P256():
		return TypeEC256
	case elliptic.P384():
		return TypeEC384
	case elliptic.P521():
		return TypeEC521
	}
	return TypeUnknown
}

// Use is the intended use of a public key.
//
// https://datatracker.ietf.org/doc/html/rfc7517#section-4.2
type Use string

const (
	UseSignature  Use = "sig"
	UseEncryption Use = "enc"
)

// Operation is a key operation the key is intended to be used for.
//
// https://datatracker.ietf.org/doc/html/rfc7517#section-4.3
type Operation string

const (
	OpSign       Operation = "sign"
	OpVerify     Operation = "verify"
	OpEncrypt    Operation = "encrypt"
	OpDecrypt    Operation = "decrypt"
	OpWrapKey    Operation = "wrapKey"
	OpUnwrapKey  Operation = "unwrapKey"
	OpDeriveKey  Operation = "deriveKey"
	OpDeriveBits Operation = "deriveBits"
)

// use returns the Use an operation implies.
func (op Operation) use() Use {
	switch op {
	case OpSign, OpVerify:
		return UseSignature
	case OpEncrypt, OpDecrypt, OpWrapKey, OpUnwrapKey, OpDeriveKey, OpDeriveBits:
		return UseEncryption
	}
	return ""
}

// private reports whether the operation needs private or secret material.
func (op Operation) private() bool {
	switch op {
	case OpSign, OpDecrypt, OpUnwrapKey, OpDeriveKey, OpDeriveBits:
		return true
	}
	return false
}

// Key is a JSON Web Key. A Key is immutable once built or parsed and
// may be shared between goroutines.
//
// https://datatracker.ietf.org/doc/html/rfc7517#section-4
type Key struct {
	typ Type
	use Use
	ops []Operation
	alg jwa.Algorithm
	kid string

	x5u    string
	certs  []*x509.Certificate
	x5t    []byte
	x5t256 []byte

	// public is one of *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey,
	// ed448.PublicKey, keyutil.X25519PublicKey or keyutil.X448PublicKey.
	public crypto.PublicKey

	// private is the matching private key type, if present.
	private crypto.PrivateKey

	// secret is the raw key of an octet key.
	secret []byte

	wellKnown bool
}

// Type returns the type of the key.
func (k *Key) Type() Type { return k.typ }

// Use returns the "use" of the key, or "" if it is unset.
func (k *Key) Use() Use { return k.use }

// Operations returns the "key_ops" of the key.
func (k *Key) Operations() []Operation { return slices.Clone(k.ops) }

// Algorithm returns the "alg" hint of the key, or "" if it is unset.
func (k *Key) Algorithm() jwa.Algorithm { return k.alg }

// KeyID returns the "kid" of the key, or "" if it is unset.
func (k *Key) KeyID() string { return k.kid }

// X509URL returns the "x5u" of the key.
func (k *Key) X509URL() string { return k.x5u }

// Certificates returns the certificate chain of the key, leaf first.
func (k *Key) Certificates() []*x509.Certificate { return slices.Clone(k.certs) }

// X509SHA1Thumbprint returns the "x5t" of the key.
func (k *Key) X509SHA1Thumbprint() []byte { return slices.Clone(k.x5t) }

// X509SHA256Thumbprint returns the "x5t#S256" of the key.
func (k *Key) X509SHA256Thumbprint() []byte { return slices.Clone(k.x5t256) }

// Public returns the public key, or nil for an octet key.
func (k *Key) Public() crypto.PublicKey { return k.public }

// Private returns the private key, or nil if the key holds none.
func (k *Key) Private() crypto.PrivateKey { return k.private }

// Secret returns a copy of the raw key of an octet key.
func (k *Key) Secret() []byte { return slices.Clone(k.secret) }

// IsPrivate reports whether the key holds private or secret material.
func (k *Key) IsPrivate() bool { return k.private != nil || len(k.secret) > 0 }

// IsWellKnown reports whether the key is a public-only projection.
func (k *Key) IsWellKnown() bool { return k.wellKnown }

// HasOperation reports whether the key permits op. A key without
// "key_ops" permits every operation its use allows.
func (k *Key) HasOperation(op Operation) bool {
	if len(k.ops) > 0 {
		return slices.Contains(k.ops, op)
	}
	return k.use == "" || k.use == op.use()
}

// algorithmTypes lists the key types each algorithm can be used with.
var algorithmTypes = map[jwa.Algorithm][]Type{
	jwa.HS256: {TypeOctet},
	jwa.HS384: {TypeOctet},
	jwa.HS512: {TypeOctet},
	jwa.RS256: {TypeRSA},
	jwa.RS384: {TypeRSA},
	jwa.RS512: {TypeRSA},
	jwa.PS256: {TypeRSA},
	jwa.PS384: {TypeRSA},
	jwa.PS512: {TypeRSA},
	jwa.ES256: {TypeEC256},
	jwa.ES384: {TypeEC384},
	jwa.ES512: {TypeEC521},
	jwa.EdDSA: {TypeEd25519, TypeEd448},

	jwa.RSA1_5:     {TypeRSA},
	jwa.RSAOAEP:    {TypeRSA},
	jwa.RSAOAEP256: {TypeRSA},

	jwa.A128KW:    {TypeOctet},
	jwa.A192KW:    {TypeOctet},
	jwa.A256KW:    {TypeOctet},
	jwa.A128GCMKW: {TypeOctet},
	jwa.A192GCMKW: {TypeOctet},
	jwa.A256GCMKW: {TypeOctet},
	jwa.Direct:    {TypeOctet},

	jwa.ECDHES:       {TypeEC256, TypeEC384, TypeEC521, TypeX25519, TypeX448},
	jwa.ECDHESA128KW: {TypeEC256, TypeEC384, TypeEC521, TypeX25519, TypeX448},
	jwa.ECDHESA192KW: {TypeEC256, TypeEC384, TypeEC521, TypeX25519, TypeX448},
	jwa.ECDHESA256KW: {TypeEC256, TypeEC384, TypeEC521, TypeX25519, TypeX448},

	jwa.PBES2HS256A128KW: {TypeOctet},
	jwa.PBES2HS384A192KW: {TypeOctet},
	jwa.PBES2HS512A256KW: {TypeOctet},

	jwa.A128GCM:      {TypeOctet},
	jwa.A192GCM:      {TypeOctet},
	jwa.A256GCM:      {TypeOctet},
	jwa.A128CBCHS256: {TypeOctet},
	jwa.A192CBCHS384: {TypeOctet},
	jwa.A256CBCHS512: {TypeOctet},
}

// Compatible reports whether a key of type t can be used with alg.
func Compatible(alg jwa.Algorithm, t Type) bool {
	return slices.Contains(algorithmTypes[alg], t)
}

// CompatibleWith reports whether the key can be used with alg, taking
// its type and its own "alg" hint into account. A direct encryption key
// may carry the content encryption algorithm as its hint.
func (k *Key) CompatibleWith(alg jwa.Algorithm) bool {
	if k.alg != "" && k.alg != alg {
		if alg != jwa.Direct || !jwa.IsContentEncryption(k.alg) {
			return false
		}
	}
	return Compatible(alg, k.typ)
}
