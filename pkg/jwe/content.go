package jwe

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	josecipher "github.com/go-jose/go-jose/v4/cipher"
	"github.com/picatz/jose/v2/pkg/jwa"
)

// contentCipher is an authenticated content encryption algorithm.
type contentCipher interface {
	// keySize is the size of the content encryption key in bytes.
	keySize() int
	ivSize() int
	seal(cek, iv, plaintext, aad []byte) (ciphertext, tag []byte, err error)
	open(cek, iv, ciphertext, tag, aad []byte) ([]byte, error)
}

var contentCiphers = map[jwa.Algorithm]contentCipher{
	jwa.A128GCM:      aesGCM{size: 16},
	jwa.A192GCM:      aesGCM{size: 24},
	jwa.A256GCM:      aesGCM{size: 32},
	jwa.A128CBCHS256: aesCBCHMAC{size: 32},
	jwa.A192CBCHS384: aesCBCHMAC{size: 48},
	jwa.A256CBCHS512: aesCBCHMAC{size: 64},
}

var errAuthentication = errors.New("content authentication failed")

// encryptContent encrypts plaintext with a fresh random IV.
func encryptContent(c contentCipher, cek, plaintext, aad []byte) (iv, ciphertext, tag []byte, err error) {
	iv = make([]byte, c.ivSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to generate IV: %w", err)
	}
	ciphertext, tag, err = c.seal(cek, iv, plaintext, aad)
	return iv, ciphertext, tag, err
}

func checkCEK(c contentCipher, cek []byte) error {
	if len(cek) != c.keySize() {
		return fmt.Errorf("content encryption key must be %d bytes, got %d", c.keySize(), len(cek))
	}
	return nil
}

// aesGCM is AES in Galois/Counter Mode with a 96 bit IV and a 128 bit tag.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-5.3
type aesGCM struct {
	size int
}

func (g aesGCM) keySize() int { return g.size }
func (aesGCM) ivSize() int    { return 12 }

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (g aesGCM) seal(cek, iv, plaintext, aad []byte) ([]byte, []byte, error) {
	if err := checkCEK(g, cek); err != nil {
		return nil, nil, err
	}
	aead, err := newGCM(cek)
	if err != nil {
		return nil, nil, err
	}
	out := aead.Seal(nil, iv, plaintext, aad)
	split := len(out) - aead.Overhead()
	return out[:split], out[split:], nil
}

func (g aesGCM) open(cek, iv, ciphertext, tag, aad []byte) ([]byte, error) {
	if err := checkCEK(g, cek); err != nil {
		return nil, err
	}
	aead, err := newGCM(cek)
	if err != nil {
		return nil, err
	}
	if len(iv) != aead.NonceSize() || len(tag) != aead.Overhead() {
		return nil, errAuthentication
	}
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := aead.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, errAuthentication
	}
	return plaintext, nil
}

// aesCBCHMAC is AES-CBC with PKCS #7 padding, authenticated with HMAC
// over the AAD, IV, ciphertext and the AAD length in bits. The first
// half of the key is the MAC key and the tag is half the HMAC output.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-5.2
type aesCBCHMAC struct {
	size int
}

func (c aesCBCHMAC) keySize() int { return c.size }
func (aesCBCHMAC) ivSize() int    { return aes.BlockSize }

func (c aesCBCHMAC) seal(cek, iv, plaintext, aad []byte) ([]byte, []byte, error) {
	if err := checkCEK(c, cek); err != nil {
		return nil, nil, err
	}
	aead, err := josecipher.NewCBCHMAC(cek, aes.NewCipher)
	if err != nil {
		return nil, nil, err
	}
	out := aead.Seal(nil, iv, plaintext, aad)
	split := len(out) - aead.Overhead()
	return out[:split], out[split:], nil
}

func (c aesCBCHMAC) open(cek, iv, ciphertext, tag, aad []byte) ([]byte, error) {
	if err := checkCEK(c, cek); err != nil {
		return nil, err
	}
	aead, err := josecipher.NewCBCHMAC(cek, aes.NewCipher)
	if err != nil {
		return nil, err
	}
	if len(iv) != aead.NonceSize() || len(tag) != aead.Overhead() {
		return nil, errAuthentication
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errAuthentication
	}
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := aead.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, errAuthentication
	}
	return plaintext, nil
}
