package jwe

import (
	"crypto/aes"
	"errors"
	"fmt"

	josecipher "github.com/go-jose/go-jose/v4/cipher"
)

var errKeyUnwrap = errors.New("AES key unwrap integrity check failed")

// keyWrap wraps cek with kek.
//
// https://datatracker.ietf.org/doc/html/rfc3394#section-2.2.1
func keyWrap(kek, cek []byte) ([]byte, error) {
	if len(cek) < 16 || len(cek)%8 != 0 {
		return nil, fmt.Errorf("key to wrap must be a multiple of 8 bytes and at least 16, got %d", len(cek))
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	return josecipher.KeyWrap(block, cek)
}

// keyUnwrap unwraps a key wrapped by keyWrap.
//
// https://datatracker.ietf.org/doc/html/rfc3394#section-2.2.2
func keyUnwrap(kek, wrapped []byte) ([]byte, error) {
	if len(wrapped) < 24 || len(wrapped)%8 != 0 {
		return nil, fmt.Errorf("wrapped key must be a multiple of 8 bytes and at least 24, got %d", len(wrapped))
	}
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, err
	}
	cek, err := josecipher.KeyUnwrap(block, wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errKeyUnwrap, err)
	}
	return cek, nil
}
