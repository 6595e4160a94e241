package jwe

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/picatz/jose/v2/pkg/jwa"
	"golang.org/x/crypto/pbkdf2"
)

// DefaultPBES2Count is the iteration count used when encrypting with a
// password and no count is given.
const DefaultPBES2Count = 10000

// DefaultPBES2SaltSize is the size of the random salt input generated
// when encrypting with a password and no salt is given.
const DefaultPBES2SaltSize = 16

// pbkdf2Key is replaced in tests to observe key derivations.
var pbkdf2Key = pbkdf2.Key

var pbes2Hashes = map[jwa.Algorithm]func() hash.Hash{
	jwa.PBES2HS256A128KW: sha256.New,
	jwa.PBES2HS384A192KW: sha512.New384,
	jwa.PBES2HS512A256KW: sha512.New,
}

// pbes2KEK derives the key encryption key from a password. The salt is
// the algorithm name, a zero byte and the salt input.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.8.1.1
func pbes2KEK(alg jwa.Algorithm, password, saltInput []byte, count int) []byte {
	salt := make([]byte, 0, len(alg)+1+len(saltInput))
	salt = append(salt, alg...)
	salt = append(salt, 0)
	salt = append(salt, saltInput...)
	return pbkdf2Key(password, salt, count, jwa.WrapKeySize(alg), pbes2Hashes[alg])
}
