package jwa

import (
	"golang.org/x/exp/slices"
)

// https://datatracker.ietf.org/doc/html/rfc7518#section-3.1
type Algorithm = string

// HMAC with SHA-2 Functions
//
// These algorithms are used to construct a MAC using a shared secret
// and the Hash-based Message Authentication Code (HMAC) construction
// [RFC2104] employing SHA-2 [SHS] hash functions.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.2
const (
	HS256 Algorithm = "HS256"
	HS384 Algorithm = "HS384"
	HS512 Algorithm = "HS512"
)

// RSASSA-PKCS1-v1_5
//
// These algorithms are used to digitally sign a JWS and produce a
// JWS Signature using PKCS #1 v1.5 methods.
//
// # RSA Key Size
//
// A key of size 2048 bits or larger MUST be used with these algorithms.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.3
const (
	RS256 Algorithm = "RS256"
	RS384 Algorithm = "RS384"
	RS512 Algorithm = "RS512"
)

// ECDSA
//
// These algorithms are used to digitally sign a JWS and produce a
// JWS Signature using ECDSA algorithms.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.4
const (
	ES256 Algorithm = "ES256"
	ES384 Algorithm = "ES384"
	ES512 Algorithm = "ES512"
)

// RSASSA-PSS
//
// These algorithms are used to digitally sign a JWS and produce a
// JWS Signature using the RSASSA-PSS algorithms.
//
// # RSA Key Size
//
// A key of size 2048 bits or larger MUST be used with these algorithms.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-3.5
const (
	PS256 Algorithm = "PS256"
	PS384 Algorithm = "PS384"
	PS512 Algorithm = "PS512"
)

// EdDSA signatures using Ed25519 or Ed448, the curve is taken
// from the "crv" of the key.
//
// https://datatracker.ietf.org/doc/html/rfc8037#section-3.1
const EdDSA Algorithm = "EdDSA"

// Key Management Algorithms
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-4.1
const (
	RSA1_5     Algorithm = "RSA1_5"
	RSAOAEP    Algorithm = "RSA-OAEP"
	RSAOAEP256 Algorithm = "RSA-OAEP-256"

	A128KW Algorithm = "A128KW"
	A192KW Algorithm = "A192KW"
	A256KW Algorithm = "A256KW"

	Direct Algorithm = "dir"

	ECDHES       Algorithm = "ECDH-ES"
	ECDHESA128KW Algorithm = "ECDH-ES+A128KW"
	ECDHESA192KW Algorithm = "ECDH-ES+A192KW"
	ECDHESA256KW Algorithm = "ECDH-ES+A256KW"

	A128GCMKW Algorithm = "A128GCMKW"
	A192GCMKW Algorithm = "A192GCMKW"
	A256GCMKW Algorithm = "A256GCMKW"

	PBES2HS256A128KW Algorithm = "PBES2-HS256+A128KW"
	PBES2HS384A192KW Algorithm = "PBES2-HS384+A192KW"
	PBES2HS512A256KW Algorithm = "PBES2-HS512+A256KW"
)

// Content Encryption Algorithms
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-5.1
const (
	A128CBCHS256 Algorithm = "A128CBC-HS256"
	A192CBCHS384 Algorithm = "A192CBC-HS384"
	A256CBCHS512 Algorithm = "A256CBC-HS512"

	A128GCM Algorithm = "A128GCM"
	A192GCM Algorithm = "A192GCM"
	A256GCM Algorithm = "A256GCM"
)

// Deflate is the only registered "zip" value.
//
// https://datatracker.ietf.org/doc/html/rfc7516#section-4.1.3
const Deflate Algorithm = "DEF"

// Family groups key management algorithms by the way they produce,
// or protect, the content encryption key.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyDirect
	FamilyRSA
	FamilyAESKeyWrap
	FamilyAESGCMKeyWrap
	FamilyECDH
	FamilyECDHKeyWrap
	FamilyPBES2
)

var signatureAlgorithms = []Algorithm{
	HS256, HS384, HS512,
	RS256, RS384, RS512,
	PS256, PS384, PS512,
	ES256, ES384, ES512,
	EdDSA,
}

var keyManagementFamilies = map[Algorithm]Family{
	Direct:           FamilyDirect,
	RSA1_5:           FamilyRSA,
	RSAOAEP:          FamilyRSA,
	RSAOAEP256:       FamilyRSA,
	A128KW:           FamilyAESKeyWrap,
	A192KW:           FamilyAESKeyWrap,
	A256KW:           FamilyAESKeyWrap,
	A128GCMKW:        FamilyAESGCMKeyWrap,
	A192GCMKW:        FamilyAESGCMKeyWrap,
	A256GCMKW:        FamilyAESGCMKeyWrap,
	ECDHES:           FamilyECDH,
	ECDHESA128KW:     FamilyECDHKeyWrap,
	ECDHESA192KW:     FamilyECDHKeyWrap,
	ECDHESA256KW:     FamilyECDHKeyWrap,
	PBES2HS256A128KW: FamilyPBES2,
	PBES2HS384A192KW: FamilyPBES2,
	PBES2HS512A256KW: FamilyPBES2,
}

// wrapKeySizes are the key encryption key sizes, in bytes, of the
// algorithms that wrap with AES.
var wrapKeySizes = map[Algorithm]int{
	A128KW:           16,
	A192KW:           24,
	A256KW:           32,
	A128GCMKW:        16,
	A192GCMKW:        24,
	A256GCMKW:        32,
	ECDHESA128KW:     16,
	ECDHESA192KW:     24,
	ECDHESA256KW:     32,
	PBES2HS256A128KW: 16,
	PBES2HS384A192KW: 24,
	PBES2HS512A256KW: 32,
}

var contentKeySizes = map[Algorithm]int{
	A128CBCHS256: 32,
	A192CBCHS384: 48,
	A256CBCHS512: 64,
	A128GCM:      16,
	A192GCM:      24,
	A256GCM:      32,
}

// SignatureAlgorithms returns every supported JWS algorithm.
func SignatureAlgorithms() []Algorithm {
	return slices.Clone(signatureAlgorithms)
}

// KeyManagementAlgorithms returns every supported JWE "alg" value, sorted.
func KeyManagementAlgorithms() []Algorithm {
	return sortedKeys(keyManagementFamilies)
}

// ContentEncryptionAlgorithms returns every supported JWE "enc" value, sorted.
func ContentEncryptionAlgorithms() []Algorithm {
	return sortedKeys(contentKeySizes)
}

// IsSignature reports whether alg is a supported JWS algorithm.
func IsSignature(alg Algorithm) bool {
	return slices.Contains(signatureAlgorithms, alg)
}

// IsKeyManagement reports whether alg is a supported JWE "alg" value.
func IsKeyManagement(alg Algorithm) bool {
	_, ok := keyManagementFamilies[alg]
	return ok
}

// IsContentEncryption reports whether enc is a supported JWE "enc" value.
func IsContentEncryption(enc Algorithm) bool {
	_, ok := contentKeySizes[enc]
	return ok
}

// KeyManagementFamily returns the family of a JWE "alg" value.
func KeyManagementFamily(alg Algorithm) Family {
	return keyManagementFamilies[alg]
}

// IsDirect reports whether alg uses the key agreement or the shared key
// as the content encryption key itself, in which case a JWE can have
// only one recipient.
func IsDirect(alg Algorithm) bool {
	f := keyManagementFamilies[alg]
	return f == FamilyDirect || f == FamilyECDH
}

// WrapKeySize returns the size in bytes of the AES key encryption key
// used by alg, or zero if alg does not wrap with AES.
func WrapKeySize(alg Algorithm) int {
	return wrapKeySizes[alg]
}

// ContentKeySize returns the size in bytes of the content encryption
// key for enc, or zero if enc is unknown.
func ContentKeySize(enc Algorithm) int {
	return contentKeySizes[enc]
}

// AllowedAlgorithms is a set of algorithms that may be used, commonly
// used to constrain which "alg" values a verifier accepts.
type AllowedAlgorithms map[Algorithm]struct{}

// NewAllowedAlgorithms returns a set containing the given algorithms.
func NewAllowedAlgorithms(algs ...Algorithm) AllowedAlgorithms {
	set := make(AllowedAlgorithms, len(algs))
	for _, alg := range algs {
		set[alg] = struct{}{}
	}
	return set
}

// List returns the algorithms in the set, sorted.
func (a AllowedAlgorithms) List() []Algorithm {
	return sortedKeys(map[Algorithm]struct{}(a))
}

// Allowed reports whether all of the given algorithms are in the set.
// It returns false when no algorithms are given.
func (a AllowedAlgorithms) Allowed(algs ...Algorithm) bool {
	if len(algs) == 0 {
		return false
	}
	for _, alg := range algs {
		if _, ok := a[alg]; !ok {
			return false
		}
	}
	return true
}

// DefaultAllowedAlgorithms returns a list of algorithms that are allowed to be used.
func DefaultAllowedAlgorithms() AllowedAlgorithms {
	return NewAllowedAlgorithms(RS256, ES256)
}

func sortedKeys[V any](m map[Algorithm]V) []Algorithm {
	algs := make([]Algorithm, 0, len(m))
	for alg := range m {
		algs = append(algs, alg)
	}
	slices.Sort(algs)
	return algs
}
