package jwe

import (
	"crypto/ecdsa"
	"fmt"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwk"
	"github.com/picatz/jose/v2/pkg/keyutil"
)

// sharedSecret performs the key agreement between a private key and a
// public key of the same type.
func sharedSecret(priv, pub *jwk.Key) ([]byte, error) {
	if priv.Type() != pub.Type() {
		return nil, jose.NewKeyError("key agreement between %s and %s keys", priv.Type(), pub.Type())
	}

	switch p := priv.Private().(type) {
	case *ecdsa.PrivateKey:
		peer, ok := pub.Public().(*ecdsa.PublicKey)
		if !ok {
			return nil, jose.NewKeyError("peer key is not an EC public key")
		}
		ecdhPriv, err := p.ECDH()
		if err != nil {
			return nil, jose.WrapKeyError(err, "invalid EC private key")
		}
		ecdhPub, err := peer.ECDH()
		if err != nil {
			return nil, jose.WrapKeyError(err, "invalid EC public key")
		}
		return ecdhPriv.ECDH(ecdhPub)
	case keyutil.X25519PrivateKey:
		peer, ok := pub.Public().(keyutil.X25519PublicKey)
		if !ok {
			return nil, jose.NewKeyError("peer key is not an X25519 public key")
		}
		return p.SharedSecret(peer)
	case keyutil.X448PrivateKey:
		peer, ok := pub.Public().(keyutil.X448PublicKey)
		if !ok {
			return nil, jose.NewKeyError("peer key is not an X448 public key")
		}
		return p.SharedSecret(peer)
	}
	return nil, jose.NewKeyError("%s key does not support key agreement", priv.Type())
}

// agreement is the result of the sender's half of ECDH-ES.
type agreement struct {
	epk *jwk.Key
	key []byte
}

// ecdhKDFAlgorithm is the AlgorithmID of the Concat KDF: "enc" for direct
// key agreement, "alg" when the derived key wraps the CEK.
func ecdhKDFAlgorithm(alg, enc jwa.Algorithm) (string, int) {
	if alg == jwa.ECDHES {
		return enc, jwa.ContentKeySize(enc)
	}
	return alg, jwa.WrapKeySize(alg)
}

// deriveSender generates an ephemeral key of the recipient's type and
// derives the agreed key.
func deriveSender(recipient *jwk.Key, alg, enc jwa.Algorithm, apu, apv []byte) (*agreement, error) {
	ephemeral, err := jwk.NewBuilder(recipient.Type()).Ephemeral()
	if err != nil {
		return nil, err
	}
	z, err := sharedSecret(ephemeral, recipient)
	if err != nil {
		return nil, fmt.Errorf("key agreement failed: %w", err)
	}
	algID, size := ecdhKDFAlgorithm(alg, enc)
	return &agreement{
		epk: ephemeral.WellKnown(),
		key: concatKDF(z, algID, apu, apv, size),
	}, nil
}

// deriveRecipient derives the agreed key from the recipient's private
// key and the sender's ephemeral public key.
func deriveRecipient(key, epk *jwk.Key, alg, enc jwa.Algorithm, apu, apv []byte) ([]byte, error) {
	if epk == nil {
		return nil, jose.NewHeaderError("missing ephemeral public key")
	}
	z, err := sharedSecret(key, epk)
	if err != nil {
		return nil, fmt.Errorf("key agreement failed: %w", err)
	}
	algID, size := ecdhKDFAlgorithm(alg, enc)
	return concatKDF(z, algID, apu, apv, size), nil
}
