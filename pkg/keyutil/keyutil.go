package keyutil

import (
	"crypto"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/ed448"
)

// SymmetricKeysEqual checks if the given keys are the same.
func SymmetricKeysEqual(key1 []byte, key2 []byte) bool {
	return subtle.ConstantTimeCompare(key1, key2) == 1
}

// NewSymmetricKey generates a new symmetric key of the given size.
func NewSymmetricKey(size int) ([]byte, error) {
	key := make([]byte, size)

	_, err := rand.Read(key)
	if err != nil {
		return nil, fmt.Errorf("failed to generate new symmetic key: %w", err)
	}

	return key, nil
}

// decodePEM reads all of r and returns its PEM blocks in order.
func decodePEM(r io.Reader) ([]*pem.Block, error) {
	keyBytes, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read PEM data from reader: %w", err)
	}

	var blocks []*pem.Block
	for {
		var block *pem.Block
		block, keyBytes = pem.Decode(keyBytes)
		if block == nil {
			break
		}
		blocks = append(blocks, block)
	}

	if len(blocks) == 0 {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	return blocks, nil
}

// ParseRSAPublicKey parses the PEM encoded RSA public key from the given reader.
func ParseRSAPublicKey(r io.Reader) (*rsa.PublicKey, error) {
	parsedKey, err := ParsePublicKey(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode RSA public key: %w", err)
	}

	publicKey, ok := parsedKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("invalid type %T for parse RSA public key", parsedKey)
	}

	return publicKey, nil
}

// ParseRSAPrivateKey parses the PEM encoded RSA private key from the given reader.
func ParseRSAPrivateKey(r io.Reader) (*rsa.PrivateKey, error) {
	parsedKey, err := ParsePrivateKey(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode RSA private key: %w", err)
	}

	privateKey, ok := parsedKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("invalid type %T for parse RSA private key", parsedKey)
	}

	return privateKey, nil
}

// ParseECDSAPublicKey parses the PEM encoded ECDSA public key from the given reader.
func ParseECDSAPublicKey(r io.Reader) (*ecdsa.PublicKey, error) {
	parsedKey, err := ParsePublicKey(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ECDSA public key: %w", err)
	}

	publicKey, ok := parsedKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("invalid type %T for parse ECDSA public key", parsedKey)
	}

	return publicKey, nil
}

// ParseECDSAPrivateKey parses the PEM encoded ECDSA private key from the given reader.
func ParseECDSAPrivateKey(r io.Reader) (*ecdsa.PrivateKey, error) {
	parsedKey, err := ParsePrivateKey(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ECDSA private key: %w", err)
	}

	privateKey, ok := parsedKey.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("invalid type %T for parse ECDSA private key", parsedKey)
	}

	return privateKey, nil
}

// ParseEdDSAPublicKey parses the PEM encoded Ed25519 public key from the given reader.
func ParseEdDSAPublicKey(r io.Reader) (ed25519.PublicKey, error) {
	parsedKey, err := ParsePublicKey(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EdDSA public key: %w", err)
	}

	publicKey, ok := parsedKey.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("invalid type %T for parse EdDSA public key", parsedKey)
	}

	return publicKey, nil
}

// ParseEdDSAPrivateKey parses the PEM encoded Ed25519 private key from the given reader.
func ParseEdDSAPrivateKey(r io.Reader) (ed25519.PrivateKey, error) {
	parsedKey, err := ParsePrivateKey(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EdDSA private key: %w", err)
	}

	privateKey, ok := parsedKey.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("invalid type %T for parse EdDSA private key", parsedKey)
	}

	return privateKey, nil
}

// ParsePrivateKey parses the PEM encoded private key from the given reader.
//
// PKCS #1, SEC 1 and PKCS #8 encodings are accepted. X25519 keys are
// returned as X25519PrivateKey.
func ParsePrivateKey(r io.Reader) (any, error) {
	blocks, err := decodePEM(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}

	der := blocks[0].Bytes

	if parsedKey, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return parsedKey, nil
	}

	if parsedKey, err := x509.ParseECPrivateKey(der); err == nil {
		return parsedKey, nil
	}

	parsedKey, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key, unknown type")
	}

	if k, ok := parsedKey.(*ecdh.PrivateKey); ok {
		if k.Curve() != ecdh.X25519() {
			return nil, fmt.Errorf("unsupported ECDH private key curve %v", k.Curve())
		}
		return X25519PrivateKey(k.Bytes()), nil
	}

	return parsedKey, nil
}

// ParsePublicKey parses the PEM encoded public key from the given reader.
//
// A PKIX public key or an X.509 certificate are accepted; for a
// certificate the subject public key is returned.
func ParsePublicKey(r io.Reader) (any, error) {
	blocks, err := decodePEM(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}

	der := blocks[0].Bytes

	parsedKey, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		cert, certErr := x509.ParseCertificate(der)
		if certErr != nil {
			return nil, fmt.Errorf("failed to parse public key, unknown type")
		}
		parsedKey = cert.PublicKey
	}

	if k, ok := parsedKey.(*ecdh.PublicKey); ok {
		if k.Curve() != ecdh.X25519() {
			return nil, fmt.Errorf("unsupported ECDH public key curve %v", k.Curve())
		}
		return X25519PublicKey(k.Bytes()), nil
	}

	return parsedKey, nil
}

// ParseCertificates parses every PEM encoded certificate from the given
// reader, in order. The first certificate is the leaf.
func ParseCertificates(r io.Reader) ([]*x509.Certificate, error) {
	blocks, err := decodePEM(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode certificates: %w", err)
	}

	var certs []*x509.Certificate
	for _, block := range blocks {
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificates found")
	}

	return certs, nil
}

// NewRSAKeyPair returns a new RSA key pair, or an error if one occurs.
func NewRSAKeyPair() (*rsa.PublicKey, *rsa.PrivateKey, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate new RSA key pair: %w", err)
	}

	return &privateKey.PublicKey, privateKey, nil
}

// NewECDSAKeyPair returns a new P-256 ECDSA key pair, or an error if one occurs.
func NewECDSAKeyPair() (*ecdsa.PublicKey, *ecdsa.PrivateKey, error) {
	return NewECDSAKeyPairForCurve(elliptic.P256())
}

// NewECDSAKeyPairForCurve returns a new ECDSA key pair on the given curve.
func NewECDSAKeyPairForCurve(curve elliptic.Curve) (*ecdsa.PublicKey, *ecdsa.PrivateKey, error) {
	privateKey, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate new ECDSA key pair: %w", err)
	}

	return &privateKey.PublicKey, privateKey, nil
}

// NewEdDSAKeyPair returns a new EdDSA key pair, or an error if one occurs.
func NewEdDSAKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate new EdDSA key pair: %w", err)
	}

	return publicKey, privateKey, nil
}

// NewEd448KeyPair returns a new Ed448 key pair, or an error if one occurs.
func NewEd448KeyPair() (ed448.PublicKey, ed448.PrivateKey, error) {
	publicKey, privateKey, err := ed448.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate new Ed448 key pair: %w", err)
	}

	return publicKey, privateKey, nil
}

// PublicKeyOf returns the public half of a private key, or nil if key is
// not a supported private key.
func PublicKeyOf(key crypto.PrivateKey) crypto.PublicKey {
	switch key := key.(type) {
	case *rsa.PrivateKey:
		return &key.PublicKey
	case *ecdsa.PrivateKey:
		return &key.PublicKey
	case ed25519.PrivateKey:
		return key.Public()
	case ed448.PrivateKey:
		return key.Public()
	case X25519PrivateKey:
		pub, err := key.Public()
		if err != nil {
			return nil
		}
		return pub
	case X448PrivateKey:
		pub, err := key.Public()
		if err != nil {
			return nil
		}
		return pub
	default:
		return nil
	}
}

// PublicKeysEqual reports whether two public keys are of the same type
// and hold the same value.
func PublicKeysEqual(a, b crypto.PublicKey) bool {
	if a == nil || b == nil {
		return false
	}
	eq, ok := a.(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return false
	}
	return eq.Equal(b)
}
