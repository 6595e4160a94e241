package jws

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"errors"
	"fmt"

	"github.com/cloudflare/circl/sign/ed448"
	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwk"
	"github.com/picatz/jose/v2/pkg/keyutil"
)

// algorithm signs and verifies a JWS signing input with a key that has
// already been checked to be compatible with it.
type algorithm struct {
	sign   func(key *jwk.Key, input []byte) ([]byte, error)
	verify func(key *jwk.Key, input, signature []byte) error
}

// algorithms holds every supported signature algorithm.
var algorithms = map[jwa.Algorithm]algorithm{
	jwa.HS256: hmacAlgorithm(crypto.SHA256),
	jwa.HS384: hmacAlgorithm(crypto.SHA384),
	jwa.HS512: hmacAlgorithm(crypto.SHA512),
	jwa.RS256: rsaAlgorithm(crypto.SHA256, false),
	jwa.RS384: rsaAlgorithm(crypto.SHA384, false),
	jwa.RS512: rsaAlgorithm(crypto.SHA512, false),
	jwa.PS256: rsaAlgorithm(crypto.SHA256, true),
	jwa.PS384: rsaAlgorithm(crypto.SHA384, true),
	jwa.PS512: rsaAlgorithm(crypto.SHA512, true),
	jwa.ES256: ecdsaAlgorithm(crypto.SHA256),
	jwa.ES384: ecdsaAlgorithm(crypto.SHA384),
	jwa.ES512: ecdsaAlgorithm(crypto.SHA512),
	jwa.EdDSA: eddsaAlgorithm(),
}

var errSignatureMismatch = errors.New("signature mismatch")

func hmacAlgorithm(hash crypto.Hash) algorithm {
	mac := func(key *jwk.Key, input []byte) ([]byte, error) {
		secret := key.Secret()
		if len(secret) < hash.Size() {
			return nil, jose.NewKeyError("HMAC key must be at least %d bytes, got %d", hash.Size(), len(secret))
		}
		h := hmac.New(hash.New, secret)
		h.Write(input)
		return h.Sum(nil), nil
	}

	return algorithm{
		sign: mac,
		verify: func(key *jwk.Key, input, signature []byte) error {
			expected, err := mac(key, input)
			if err != nil {
				return err
			}
			if !hmac.Equal(expected, signature) {
				return errSignatureMismatch
			}
			return nil
		},
	}
}

func rsaPrivateKey(key *jwk.Key) (*rsa.PrivateKey, error) {
	priv, ok := key.Private().(*rsa.PrivateKey)
	if !ok {
		return nil, jose.NewKeyError("no RSA private key")
	}
	if priv.N.BitLen() < jwk.MinRSAKeyBits {
		return nil, jose.NewKeyError("RSA modulus too small: %d bits", priv.N.BitLen())
	}
	return priv, nil
}

func rsaPublicKey(key *jwk.Key) (*rsa.PublicKey, error) {
	pub, ok := key.Public().(*rsa.PublicKey)
	if !ok {
		return nil, jose.NewKeyError("no RSA public key")
	}
	if pub.N.BitLen() < jwk.MinRSAKeyBits {
		return nil, jose.NewKeyError("RSA modulus too small: %d bits", pub.N.BitLen())
	}
	return pub, nil
}

func digest(hash crypto.Hash, input []byte) []byte {
	h := hash.New()
	h.Write(input)
	return h.Sum(nil)
}

func rsaAlgorithm(hash crypto.Hash, pss bool) algorithm {
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: hash}

	return algorithm{
		sign: func(key *jwk.Key, input []byte) ([]byte, error) {
			priv, err := rsaPrivateKey(key)
			if err != nil {
				return nil, err
			}
			if pss {
				return rsa.SignPSS(rand.Reader, priv, hash, digest(hash, input), opts)
			}
			return rsa.SignPKCS1v15(rand.Reader, priv, hash, digest(hash, input))
		},
		verify: func(key *jwk.Key, input, signature []byte) error {
			pub, err := rsaPublicKey(key)
			if err != nil {
				return err
			}
			if pss {
				return rsa.VerifyPSS(pub, hash, digest(hash, input), signature, opts)
			}
			return rsa.VerifyPKCS1v15(pub, hash, digest(hash, input), signature)
		},
	}
}

// ecdsaAlgorithm produces signatures as the fixed-width concatenation of
// R and S, each as wide as the curve order.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.4
func ecdsaAlgorithm(hash crypto.Hash) algorithm {
	return algorithm{
		sign: func(key *jwk.Key, input []byte) ([]byte, error) {
			priv, ok := key.Private().(*ecdsa.PrivateKey)
			if !ok {
				return nil, jose.NewKeyError("no ECDSA private key")
			}
			r, s, err := ecdsa.Sign(rand.Reader, priv, digest(hash, input))
			if err != nil {
				return nil, fmt.Errorf("failed to sign with ECDSA private key: %w", err)
			}
			size := keyutil.CurveSize(priv.Curve)
			return append(keyutil.FixedWidth(r, size), keyutil.FixedWidth(s, size)...), nil
		},
		verify: func(key *jwk.Key, input, signature []byte) error {
			pub, ok := key.Public().(*ecdsa.PublicKey)
			if !ok {
				return jose.NewKeyError("no ECDSA public key")
			}
			size := keyutil.CurveSize(pub.Curve)
			if len(signature) != 2*size {
				return fmt.Errorf("invalid signature length %d for key size %d", len(signature), size)
			}
			r := keyutil.BigInt(signature[:size])
			s := keyutil.BigInt(signature[size:])
			if !ecdsa.Verify(pub, digest(hash, input), r, s) {
				return errSignatureMismatch
			}
			return nil
		},
	}
}

// eddsaAlgorithm signs with Ed25519 or Ed448, depending on the curve of
// the key.
//
// https://datatracker.ietf.org/doc/html/rfc8037#section-3.1
func eddsaAlgorithm() algorithm {
	return algorithm{
		sign: func(key *jwk.Key, input []byte) ([]byte, error) {
			switch priv := key.Private().(type) {
			case ed25519.PrivateKey:
				return ed25519.Sign(priv, input), nil
			case ed448.PrivateKey:
				return ed448.Sign(priv, input, ""), nil
			}
			return nil, jose.NewKeyError("no EdDSA private key")
		},
		verify: func(key *jwk.Key, input, signature []byte) error {
			var ok bool
			switch pub := key.Public().(type) {
			case ed25519.PublicKey:
				ok = ed25519.Verify(pub, input, signature)
			case ed448.PublicKey:
				ok = ed448.Verify(pub, input, signature, "")
			default:
				return jose.NewKeyError("no EdDSA public key")
			}
			if !ok {
				return errSignatureMismatch
			}
			return nil
		},
	}
}
