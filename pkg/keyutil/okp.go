package keyutil

import (
	"crypto"
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"github.com/cloudflare/circl/dh/x448"
	"golang.org/x/crypto/curve25519"
)

// Key sizes of the CFRG key agreement curves, in bytes.
//
// https://datatracker.ietf.org/doc/html/rfc7748
const (
	X25519KeySize = curve25519.ScalarSize
	X448KeySize   = x448.Size
)

// X25519PublicKey is the u-coordinate of an X25519 public key.
type X25519PublicKey []byte

// Equal reports whether k and x hold the same X25519 public key.
func (k X25519PublicKey) Equal(x crypto.PublicKey) bool {
	other, ok := x.(X25519PublicKey)
	return ok && subtle.ConstantTimeCompare(k, other) == 1
}

// X25519PrivateKey is an X25519 private scalar.
type X25519PrivateKey []byte

// Public derives the public key from the private scalar.
func (k X25519PrivateKey) Public() (X25519PublicKey, error) {
	if len(k) != X25519KeySize {
		return nil, fmt.Errorf("invalid X25519 private key length: %d", len(k))
	}
	pub, err := curve25519.X25519(k, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive X25519 public key: %w", err)
	}
	return pub, nil
}

// SharedSecret performs X25519 with the given peer public key. It fails
// for low order points, which would produce an all zero secret.
func (k X25519PrivateKey) SharedSecret(peer X25519PublicKey) ([]byte, error) {
	if len(k) != X25519KeySize || len(peer) != X25519KeySize {
		return nil, fmt.Errorf("invalid X25519 key length")
	}
	return curve25519.X25519(k, peer)
}

// X448PublicKey is the u-coordinate of an X448 public key.
type X448PublicKey []byte

// Equal reports whether k and x hold the same X448 public key.
func (k X448PublicKey) Equal(x crypto.PublicKey) bool {
	other, ok := x.(X448PublicKey)
	return ok && subtle.ConstantTimeCompare(k, other) == 1
}

// X448PrivateKey is an X448 private scalar.
type X448PrivateKey []byte

// Public derives the public key from the private scalar.
func (k X448PrivateKey) Public() (X448PublicKey, error) {
	if len(k) != X448KeySize {
		return nil, fmt.Errorf("invalid X448 private key length: %d", len(k))
	}
	var secret, public x448.Key
	copy(secret[:], k)
	x448.KeyGen(&public, &secret)
	return X448PublicKey(public[:]), nil
}

// SharedSecret performs X448 with the given peer public key. It fails
// for low order points.
func (k X448PrivateKey) SharedSecret(peer X448PublicKey) ([]byte, error) {
	if len(k) != X448KeySize || len(peer) != X448KeySize {
		return nil, fmt.Errorf("invalid X448 key length")
	}
	var secret, public, shared x448.Key
	copy(secret[:], k)
	copy(public[:], peer)
	if !x448.Shared(&shared, &secret, &public) {
		return nil, fmt.Errorf("X448 shared secret is a low order point")
	}
	return shared[:], nil
}

// NewX25519KeyPair returns a new X25519 key pair.
func NewX25519KeyPair() (X25519PublicKey, X25519PrivateKey, error) {
	priv := make(X25519PrivateKey, X25519KeySize)
	if _, err := rand.Read(priv); err != nil {
		return nil, nil, fmt.Errorf("failed to generate new X25519 key pair: %w", err)
	}
	pub, err := priv.Public()
	if err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

// NewX448KeyPair returns a new X448 key pair.
func NewX448KeyPair() (X448PublicKey, X448PrivateKey, error) {
	priv := make(X448PrivateKey, X448KeySize)
	if _, err := rand.Read(priv); err != nil {
		return nil, nil, fmt.Errorf("failed to generate new X448 key pair: %w", err)
	}
	pub, err := priv.Public()
	if err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}
