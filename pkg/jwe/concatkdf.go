package jwe

import (
	"crypto"
	_ "crypto/sha256"
	"encoding/binary"
	"io"

	josecipher "github.com/go-jose/go-jose/v4/cipher"
)

// concatKDF derives size bytes of key material from the shared secret z
// with the single step KDF of NIST SP 800-56A using SHA-256. The other
// info is the algorithm ID, the party infos and the key size in bits,
// each of the first three prefixed with its 32 bit length.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.6.2
func concatKDF(z []byte, algID string, apu, apv []byte, size int) []byte {
	keyDataLen := binary.BigEndian.AppendUint32(nil, uint32(size*8))
	r := josecipher.NewConcatKDF(crypto.SHA256, z,
		lengthPrefixed([]byte(algID)),
		lengthPrefixed(apu),
		lengthPrefixed(apv),
		keyDataLen,
		nil,
	)

	out := make([]byte, size)
	// The reader is a hash stream and never fails.
	_, _ = io.ReadFull(r, out)
	return out
}

func lengthPrefixed(data []byte) []byte {
	out := binary.BigEndian.AppendUint32(nil, uint32(len(data)))
	return append(out, data...)
}
