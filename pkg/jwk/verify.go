package jwk

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"

	"github.com/cloudflare/circl/sign/ed448"
	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/keyutil"
	"golang.org/x/exp/slices"
)

// Verify checks that the key is consistent with itself and returns its
// public key, derived from the private key if needed. Octet keys have
// no public key and verify to nil.
//
// The checks are, in order: "use" and "key_ops" agree with each other
// and with the material present; "alg" can be used with the key type;
// public and private material form a pair; the leaf of the certificate
// chain holds the same public key and matches "x5t" and "x5t#S256".
func Verify(k *Key) (crypto.PublicKey, error) {
	if k == nil {
		return nil, jose.NewKeyError("nil key")
	}

	if err := verifyUsage(k); err != nil {
		return nil, err
	}

	if k.alg != "" && !Compatible(k.alg, k.typ) {
		return nil, jose.NewKeyError("algorithm %q cannot be used with a %s key", k.alg, k.typ)
	}

	public, err := verifyMaterial(k)
	if err != nil {
		return nil, err
	}

	if err := verifyCertificates(k, public); err != nil {
		return nil, err
	}

	return public, nil
}

func verifyUsage(k *Key) error {
	switch k.use {
	case "", UseSignature, UseEncryption:
	default:
		return jose.NewKeyError("unknown %q value %q", PublicKeyUse, k.use)
	}

	for i, op := range k.ops {
		if op.use() == "" {
			return jose.NewKeyError("unknown %q value %q", KeyOperations, op)
		}
		if slices.Contains(k.ops[:i], op) {
			return jose.NewKeyError("duplicate %q value %q", KeyOperations, op)
		}
		if k.use != "" && op.use() != k.use {
			return jose.NewKeyError("%q value %q is inconsistent with %q value %q", KeyOperations, op, PublicKeyUse, k.use)
		}
		if op.private() && !k.IsPrivate() {
			return jose.NewKeyError("%q value %q requires a private key", KeyOperations, op)
		}
	}

	if k.alg != "" && k.use != "" {
		if jwa.IsSignature(k.alg) != (k.use == UseSignature) {
			return jose.NewKeyError("algorithm %q is inconsistent with %q value %q", k.alg, PublicKeyUse, k.use)
		}
	}

	return nil
}

func verifyMaterial(k *Key) (crypto.PublicKey, error) {
	if k.typ == TypeOctet {
		if k.public != nil || k.private != nil {
			return nil, jose.NewKeyError("octet key holds asymmetric material")
		}
		if len(k.secret) == 0 && !k.wellKnown {
			return nil, jose.NewKeyError("octet key has no secret")
		}
		return nil, nil
	}

	if len(k.secret) > 0 {
		return nil, jose.NewKeyError("%s key holds a secret", k.typ)
	}

	if k.public == nil && k.private == nil {
		return nil, jose.NewKeyError("%s key has no key material", k.typ)
	}

	var derived crypto.PublicKey
	if k.private != nil {
		var err error
		derived, err = derivePublic(k.typ, k.private)
		if err != nil {
			return nil, err
		}
	}

	if k.public != nil {
		if err := validatePublic(k.typ, k.public); err != nil {
			return nil, err
		}
		if derived != nil && !keyutil.PublicKeysEqual(k.public, derived) {
			return nil, jose.NewKeyError("public key does not match the private key")
		}
		return k.public, nil
	}

	return derived, nil
}

// derivePublic recomputes the public key from a private key of type t,
// rather than trusting the public half the private key carries.
func derivePublic(t Type, private crypto.PrivateKey) (crypto.PublicKey, error) {
	switch priv := private.(type) {
	case *rsa.PrivateKey:
		if t != TypeRSA {
			break
		}
		if priv.N.BitLen() < MinRSAKeyBits {
			return nil, jose.NewKeyError("RSA modulus too small: %d bits, need at least %d", priv.N.BitLen(), MinRSAKeyBits)
		}
		if err := priv.Validate(); err != nil {
			return nil, jose.WrapKeyError(err, "inconsistent RSA private key")
		}
		return &priv.PublicKey, nil
	case *ecdsa.PrivateKey:
		if typeOfCurve(priv.Curve) != t {
			break
		}
		ecdhPriv, err := t.ECDHCurve().NewPrivateKey(keyutil.FixedWidth(priv.D, keyutil.CurveSize(priv.Curve)))
		if err != nil {
			return nil, jose.WrapKeyError(err, "invalid EC private key")
		}
		point := ecdhPriv.PublicKey().Bytes()
		size := keyutil.CurveSize(priv.Curve)
		return &ecdsa.PublicKey{
			Curve: priv.Curve,
			X:     keyutil.BigInt(point[1 : 1+size]),
			Y:     keyutil.BigInt(point[1+size:]),
		}, nil
	case ed25519.PrivateKey:
		if t != TypeEd25519 || len(priv) != ed25519.PrivateKeySize {
			break
		}
		return ed25519.NewKeyFromSeed(priv.Seed()).Public(), nil
	case ed448.PrivateKey:
		if t != TypeEd448 || len(priv) != ed448.PrivateKeySize {
			break
		}
		return ed448.NewKeyFromSeed(priv.Seed()).Public(), nil
	case keyutil.X25519PrivateKey:
		if t != TypeX25519 {
			break
		}
		pub, err := priv.Public()
		if err != nil {
			return nil, jose.WrapKeyError(err, "invalid X25519 private key")
		}
		return pub, nil
	case keyutil.X448PrivateKey:
		if t != TypeX448 {
			break
		}
		pub, err := priv.Public()
		if err != nil {
			return nil, jose.WrapKeyError(err, "invalid X448 private key")
		}
		return pub, nil
	}
	return nil, jose.NewKeyError("private key %T cannot be used as a %s key", private, t)
}

func validatePublic(t Type, public crypto.PublicKey) error {
	switch pub := public.(type) {
	case *rsa.PublicKey:
		if t != TypeRSA {
			break
		}
		if pub.N == nil || pub.N.BitLen() < MinRSAKeyBits {
			return jose.NewKeyError("RSA modulus too small, need at least %d bits", MinRSAKeyBits)
		}
		if pub.E < 2 {
			return jose.NewKeyError("invalid RSA public exponent")
		}
		return nil
	case *ecdsa.PublicKey:
		if typeOfCurve(pub.Curve) != t || pub.X == nil || pub.Y == nil {
			break
		}
		if _, err := pub.ECDH(); err != nil {
			return jose.WrapKeyError(err, "invalid EC public key")
		}
		return nil
	case ed25519.PublicKey:
		if t == TypeEd25519 && len(pub) == ed25519.PublicKeySize {
			return nil
		}
	case ed448.PublicKey:
		if t == TypeEd448 && len(pub) == ed448.PublicKeySize {
			return nil
		}
	case keyutil.X25519PublicKey:
		if t == TypeX25519 && len(pub) == keyutil.X25519KeySize {
			return nil
		}
	case keyutil.X448PublicKey:
		if t == TypeX448 && len(pub) == keyutil.X448KeySize {
			return nil
		}
	}
	return jose.NewKeyError("public key %T cannot be used as a %s key", public, t)
}

func verifyCertificates(k *Key, public crypto.PublicKey) error {
	// Thumbprints without a chain are only checked by callers that
	// resolve "x5u".
	if len(k.certs) == 0 {
		return nil
	}

	leaf := k.certs[0]
	if !keyutil.PublicKeysEqual(public, leaf.PublicKey) {
		return jose.NewKeyError("certificate public key does not match the key")
	}

	if len(k.x5t) > 0 {
		sum := sha1.Sum(leaf.Raw)
		if !bytes.Equal(sum[:], k.x5t) {
			return jose.NewKeyError("%q does not match the certificate", X509SHA1Thumbprint)
		}
	}
	if len(k.x5t256) > 0 {
		sum := sha256.Sum256(leaf.Raw)
		if !bytes.Equal(sum[:], k.x5t256) {
			return jose.NewKeyError("%q does not match the certificate", X509SHA256Thumbprint)
		}
	}
	return nil
}

// WellKnown returns the public-only projection of the key, suitable for
// publishing in a key set. Private and secret material is dropped, and
// so are operations that need it. The projection of a well-known key is
// the key itself.
func (k *Key) WellKnown() *Key {
	if k.wellKnown {
		return k
	}

	wk := *k
	wk.private = nil
	wk.secret = nil
	wk.wellKnown = true
	wk.ops = nil
	for _, op := range k.ops {
		if !op.private() {
			wk.ops = append(wk.ops, op)
		}
	}
	return &wk
}

// Represents reports whether k and other describe the same key. Only
// the fields present on both keys are compared, so a key represents
// its own well-known projection.
func (k *Key) Represents(other *Key) bool {
	if k == nil || other == nil {
		return false
	}
	if k == other {
		return true
	}
	if k.typ != other.typ {
		return false
	}

	strs := [][2]string{
		{string(k.use), string(other.use)},
		{k.alg, other.alg},
		{k.kid, other.kid},
		{k.x5u, other.x5u},
	}
	for _, s := range strs {
		if s[0] != "" && s[1] != "" && s[0] != s[1] {
			return false
		}
	}

	if len(k.ops) > 0 && len(other.ops) > 0 {
		for _, op := range k.ops {
			if !op.private() && !slices.Contains(other.ops, op) {
				return false
			}
		}
		for _, op := range other.ops {
			if !op.private() && !slices.Contains(k.ops, op) {
				return false
			}
		}
	}

	for _, b := range [][2][]byte{{k.x5t, other.x5t}, {k.x5t256, other.x5t256}} {
		if len(b[0]) > 0 && len(b[1]) > 0 && !bytes.Equal(b[0], b[1]) {
			return false
		}
	}

	if len(k.certs) > 0 && len(other.certs) > 0 && !k.certs[0].Equal(other.certs[0]) {
		return false
	}

	if k.public != nil && other.public != nil && !keyutil.PublicKeysEqual(k.public, other.public) {
		return false
	}

	if len(k.secret) > 0 && len(other.secret) > 0 && !keyutil.SymmetricKeysEqual(k.secret, other.secret) {
		return false
	}

	return true
}
