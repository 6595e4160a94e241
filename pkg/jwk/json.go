package jwk

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	stdbase64 "encoding/base64"
	"encoding/json"
	"math"
	"math/big"

	"github.com/cloudflare/circl/sign/ed448"
	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/picatz/jose/v2/pkg/jwk/thumbprint"
	"github.com/picatz/jose/v2/pkg/keyutil"
)

// MinRSAKeyBits is the smallest RSA modulus accepted, as required by
// RFC 7518 for every RSA based algorithm.
const MinRSAKeyBits = 2048

// rawKey is the JSON representation of a Key. Binary members are
// base64url encoded; "x5c" entries are standard base64 DER.
type rawKey struct {
	Kty     string      `json:"kty"`
	Use     Use         `json:"use,omitempty"`
	KeyOps  []Operation `json:"key_ops,omitempty"`
	Alg     string      `json:"alg,omitempty"`
	Kid     string      `json:"kid,omitempty"`
	X5u     string      `json:"x5u,omitempty"`
	X5c     []string    `json:"x5c,omitempty"`
	X5t     string      `json:"x5t,omitempty"`
	X5tS256 string      `json:"x5t#S256,omitempty"`

	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`

	N  string `json:"n,omitempty"`
	E  string `json:"e,omitempty"`
	D  string `json:"d,omitempty"`
	P  string `json:"p,omitempty"`
	Q  string `json:"q,omitempty"`
	DP string `json:"dp,omitempty"`
	DQ string `json:"dq,omitempty"`
	QI string `json:"qi,omitempty"`

	K string `json:"k,omitempty"`
}

// MarshalJSON returns the JWK representation of the key, including any
// private or secret material it holds. Use WellKnown to publish a key.
// The well-known projection of a symmetric key holds nothing that could
// be serialized, so marshaling it fails.
func (k *Key) MarshalJSON() ([]byte, error) {
	raw, err := k.raw()
	if err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}

// UnmarshalJSON parses a JWK into k, see ParseKey.
func (k *Key) UnmarshalJSON(data []byte) error {
	parsed, err := ParseKey(data)
	if err != nil {
		return err
	}
	*k = *parsed
	return nil
}

// Thumbprint returns the RFC 7638 thumbprint of the key using h, or
// SHA-256 if h is zero.
func (k *Key) Thumbprint(h crypto.Hash) ([]byte, error) {
	raw, err := k.publicRaw()
	if err != nil {
		return nil, err
	}
	members := thumbprint.Members{
		KeyType: raw.Kty,
		Curve:   raw.Crv,
		X:       raw.X,
		Y:       raw.Y,
		N:       raw.N,
		E:       raw.E,
		K:       raw.K,
	}
	return thumbprint.Generate(members, h)
}

func (k *Key) publicRaw() (*rawKey, error) {
	raw := &rawKey{Kty: k.typ.KeyType(), Crv: k.typ.Curve()}
	if k.typ == TypeOctet {
		if len(k.secret) == 0 {
			return nil, jose.NewKeyError("symmetric key has no secret to serialize")
		}
		raw.K = base64.Encode(k.secret)
		return raw, nil
	}
	if err := encodePublic(raw, k.public); err != nil {
		return nil, err
	}
	return raw, nil
}

func (k *Key) raw() (*rawKey, error) {
	raw, err := k.publicRaw()
	if err != nil {
		return nil, err
	}
	raw.Use = k.use
	raw.KeyOps = k.ops
	raw.Alg = k.alg
	raw.Kid = k.kid
	raw.X5u = k.x5u
	for _, cert := range k.certs {
		raw.X5c = append(raw.X5c, stdbase64.StdEncoding.EncodeToString(cert.Raw))
	}
	if len(k.x5t) > 0 {
		raw.X5t = base64.Encode(k.x5t)
	}
	if len(k.x5t256) > 0 {
		raw.X5tS256 = base64.Encode(k.x5t256)
	}

	if k.private != nil {
		if err := encodePrivate(raw, k.private); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

func encodePublic(raw *rawKey, public any) error {
	switch pub := public.(type) {
	case *rsa.PublicKey:
		raw.N = base64.Encode(pub.N.Bytes())
		raw.E = base64.Encode(big.NewInt(int64(pub.E)).Bytes())
	case *ecdsa.PublicKey:
		size := keyutil.CurveSize(pub.Curve)
		raw.X = base64.Encode(keyutil.FixedWidth(pub.X, size))
		raw.Y = base64.Encode(keyutil.FixedWidth(pub.Y, size))
	case ed25519.PublicKey:
		raw.X = base64.Encode(pub)
	case ed448.PublicKey:
		raw.X = base64.Encode(pub)
	case keyutil.X25519PublicKey:
		raw.X = base64.Encode(pub)
	case keyutil.X448PublicKey:
		raw.X = base64.Encode(pub)
	default:
		return jose.NewKeyError("unsupported public key type %T", public)
	}
	return nil
}

func encodePrivate(raw *rawKey, private any) error {
	switch priv := private.(type) {
	case *rsa.PrivateKey:
		raw.D = base64.Encode(priv.D.Bytes())
		if len(priv.Primes) == 2 {
			raw.P = base64.Encode(priv.Primes[0].Bytes())
			raw.Q = base64.Encode(priv.Primes[1].Bytes())
		}
		if priv.Precomputed.Dp != nil {
			raw.DP = base64.Encode(priv.Precomputed.Dp.Bytes())
			raw.DQ = base64.Encode(priv.Precomputed.Dq.Bytes())
			raw.QI = base64.Encode(priv.Precomputed.Qinv.Bytes())
		}
	case *ecdsa.PrivateKey:
		raw.D = base64.Encode(keyutil.FixedWidth(priv.D, keyutil.CurveSize(priv.Curve)))
	case ed25519.PrivateKey:
		raw.D = base64.Encode(priv.Seed())
	case ed448.PrivateKey:
		raw.D = base64.Encode(priv.Seed())
	case keyutil.X25519PrivateKey:
		raw.D = base64.Encode(priv)
	case keyutil.X448PrivateKey:
		raw.D = base64.Encode(priv)
	default:
		return jose.NewKeyError("unsupported private key type %T", private)
	}
	return nil
}

// ParseKey parses a single JWK. The key is checked with Verify before it
// is returned, so a parsed key is always self consistent.
func ParseKey(data []byte) (*Key, error) {
	var raw rawKey
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, jose.WrapSerializationError(err, "failed to decode JWK")
	}
	return fromRaw(&raw)
}

func fromRaw(raw *rawKey) (*Key, error) {
	typ, err := TypeOf(raw.Kty, raw.Crv)
	if err != nil {
		return nil, jose.WrapKeyError(err, "invalid %q", KeyType)
	}

	key := &Key{
		typ: typ,
		use: raw.Use,
		ops: raw.KeyOps,
		alg: raw.Alg,
		kid: raw.Kid,
		x5u: raw.X5u,
	}

	for i, encoded := range raw.X5c {
		der, err := stdbase64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, jose.WrapKeyError(err, "invalid %q entry %d", X509CertificateChain, i)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, jose.WrapKeyError(err, "invalid %q entry %d", X509CertificateChain, i)
		}
		key.certs = append(key.certs, cert)
	}

	if key.x5t, err = decodeOptional(X509SHA1Thumbprint, raw.X5t); err != nil {
		return nil, err
	}
	if key.x5t256, err = decodeOptional(X509SHA256Thumbprint, raw.X5tS256); err != nil {
		return nil, err
	}

	switch {
	case typ == TypeRSA:
		err = decodeRSA(key, raw)
	case typ.IsEC():
		err = decodeEC(key, raw)
	case typ.IsOKP():
		err = decodeOKP(key, raw)
	case typ == TypeOctet:
		key.secret, err = decodeRequired(K, raw.K)
		if err == nil && len(key.secret) == 0 {
			err = jose.NewKeyError("empty %q", K)
		}
	}
	if err != nil {
		return nil, err
	}

	if _, err := Verify(key); err != nil {
		return nil, err
	}
	return key, nil
}

func decodeOptional(name, value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	b, err := base64.Decode(value)
	if err != nil {
		return nil, jose.WrapKeyError(err, "invalid base64 encoding for %q", name)
	}
	return b, nil
}

func decodeRequired(name, value string) ([]byte, error) {
	if value == "" {
		return nil, jose.NewKeyError("missing required paramater %q", name)
	}
	return decodeOptional(name, value)
}

func decodeRSA(key *Key, raw *rawKey) error {
	nBytes, err := decodeRequired(N, raw.N)
	if err != nil {
		return err
	}
	eBytes, err := decodeRequired(E, raw.E)
	if err != nil {
		return err
	}

	n := keyutil.BigInt(nBytes)
	if n.BitLen() < MinRSAKeyBits {
		return jose.NewKeyError("RSA modulus too small: %d bits, need at least %d", n.BitLen(), MinRSAKeyBits)
	}

	e := keyutil.BigInt(eBytes)
	if !e.IsInt64() || e.Int64() < 2 || e.Int64() > math.MaxInt32 {
		return jose.NewKeyError("invalid RSA public exponent")
	}

	pub := &rsa.PublicKey{N: n, E: int(e.Int64())}
	key.public = pub

	if raw.D == "" {
		return nil
	}

	dBytes, err := decodeRequired(D, raw.D)
	if err != nil {
		return err
	}
	d := keyutil.BigInt(dBytes)

	if raw.P == "" || raw.Q == "" {
		// Only the private exponent, the primes are recovered from it.
		priv, err := keyutil.RecoverRSAPrimes(n, pub.E, d)
		if err != nil {
			return jose.WrapKeyError(err, "RSA key has no CRT factors")
		}
		key.private = priv
		return nil
	}

	pBytes, err := decodeRequired(P, raw.P)
	if err != nil {
		return err
	}
	qBytes, err := decodeRequired(Q, raw.Q)
	if err != nil {
		return err
	}

	priv := &rsa.PrivateKey{
		PublicKey: *pub,
		D:         d,
		Primes:    []*big.Int{keyutil.BigInt(pBytes), keyutil.BigInt(qBytes)},
	}
	priv.Precompute()

	for _, crt := range []struct {
		name, value string
		want        *big.Int
	}{
		{DP, raw.DP, priv.Precomputed.Dp},
		{DQ, raw.DQ, priv.Precomputed.Dq},
		{QI, raw.QI, priv.Precomputed.Qinv},
	} {
		b, err := decodeOptional(crt.name, crt.value)
		if err != nil {
			return err
		}
		if b != nil && keyutil.BigInt(b).Cmp(crt.want) != 0 {
			return jose.NewKeyError("RSA %q does not match the key", crt.name)
		}
	}

	key.private = priv
	return nil
}

func decodeEC(key *Key, raw *rawKey) error {
	curve := key.typ.EllipticCurve()
	size := keyutil.CurveSize(curve)

	x, err := decodeFixed(X, raw.X, size)
	if err != nil {
		return err
	}
	y, err := decodeFixed(Y, raw.Y, size)
	if err != nil {
		return err
	}

	pub := &ecdsa.PublicKey{Curve: curve, X: keyutil.BigInt(x), Y: keyutil.BigInt(y)}
	key.public = pub

	if raw.D == "" {
		return nil
	}

	d, err := decodeFixed(D, raw.D, size)
	if err != nil {
		return err
	}
	key.private = &ecdsa.PrivateKey{PublicKey: *pub, D: keyutil.BigInt(d)}
	return nil
}

func decodeOKP(key *Key, raw *rawKey) error {
	var publicSize, privateSize int
	switch key.typ {
	case TypeEd25519:
		publicSize, privateSize = ed25519.PublicKeySize, ed25519.SeedSize
	case TypeEd448:
		publicSize, privateSize = ed448.PublicKeySize, ed448.SeedSize
	case TypeX25519:
		publicSize, privateSize = keyutil.X25519KeySize, keyutil.X25519KeySize
	case TypeX448:
		publicSize, privateSize = keyutil.X448KeySize, keyutil.X448KeySize
	}

	x, err := decodeFixed(X, raw.X, publicSize)
	if err != nil {
		return err
	}

	var d []byte
	if raw.D != "" {
		if d, err = decodeFixed(D, raw.D, privateSize); err != nil {
			return err
		}
	}

	switch key.typ {
	case TypeEd25519:
		key.public = ed25519.PublicKey(x)
		if d != nil {
			key.private = ed25519.NewKeyFromSeed(d)
		}
	case TypeEd448:
		key.public = ed448.PublicKey(x)
		if d != nil {
			key.private = ed448.NewKeyFromSeed(d)
		}
	case TypeX25519:
		key.public = keyutil.X25519PublicKey(x)
		if d != nil {
			key.private = keyutil.X25519PrivateKey(d)
		}
	case TypeX448:
		key.public = keyutil.X448PublicKey(x)
		if d != nil {
			key.private = keyutil.X448PrivateKey(d)
		}
	}
	return nil
}

func decodeFixed(name, value string, size int) ([]byte, error) {
	b, err := decodeRequired(name, value)
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, jose.NewKeyError("invalid %q length: %d, expected %d", name, len(b), size)
	}
	return b, nil
}
