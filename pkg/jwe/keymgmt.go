package jwe

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"hash"

	jose "github.com/picatz/jose/v2/pkg"
	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwk"
	"github.com/picatz/jose/v2/pkg/keyutil"
)

// wrapped is the outcome of key management for one recipient.
type wrapped struct {
	// cek is the content encryption key, derived by direct algorithms
	// and passed through by the others.
	cek          []byte
	encryptedKey []byte

	// params are the header parameters the algorithm produced.
	params header.Parameters
}

// keyManager protects the content encryption key for a recipient.
type keyManager struct {
	// wrap encrypts cek for the recipient. Direct algorithms are given a
	// nil cek and return the one they determine.
	wrap func(c *config, r *target, enc jwa.Algorithm, cek []byte) (*wrapped, error)

	// unwrap recovers the content encryption key with the recipient's key.
	unwrap func(c *config, key *jwk.Key, h *header.Header, encryptedKey []byte) ([]byte, error)
}

var keyManagers = map[jwa.Algorithm]keyManager{
	jwa.Direct: {wrap: directWrap, unwrap: directUnwrap},

	jwa.RSA1_5:     {wrap: rsaPKCS1Wrap, unwrap: rsaPKCS1Unwrap},
	jwa.RSAOAEP:    rsaOAEP(sha1.New),
	jwa.RSAOAEP256: rsaOAEP(sha256.New),

	jwa.A128KW: {wrap: aesKWWrap, unwrap: aesKWUnwrap},
	jwa.A192KW: {wrap: aesKWWrap, unwrap: aesKWUnwrap},
	jwa.A256KW: {wrap: aesKWWrap, unwrap: aesKWUnwrap},

	jwa.A128GCMKW: {wrap: aesGCMKWWrap, unwrap: aesGCMKWUnwrap},
	jwa.A192GCMKW: {wrap: aesGCMKWWrap, unwrap: aesGCMKWUnwrap},
	jwa.A256GCMKW: {wrap: aesGCMKWWrap, unwrap: aesGCMKWUnwrap},

	jwa.ECDHES:       {wrap: ecdhWrap, unwrap: ecdhUnwrap},
	jwa.ECDHESA128KW: {wrap: ecdhWrap, unwrap: ecdhUnwrap},
	jwa.ECDHESA192KW: {wrap: ecdhWrap, unwrap: ecdhUnwrap},
	jwa.ECDHESA256KW: {wrap: ecdhWrap, unwrap: ecdhUnwrap},

	jwa.PBES2HS256A128KW: {wrap: pbes2Wrap, unwrap: pbes2Unwrap},
	jwa.PBES2HS384A192KW: {wrap: pbes2Wrap, unwrap: pbes2Unwrap},
	jwa.PBES2HS512A256KW: {wrap: pbes2Wrap, unwrap: pbes2Unwrap},
}

// newCEK returns a random content encryption key for enc.
func newCEK(enc jwa.Algorithm) ([]byte, error) {
	return keyutil.NewSymmetricKey(jwa.ContentKeySize(enc))
}

func secretOfSize(key *jwk.Key, size int) ([]byte, error) {
	secret := key.Secret()
	if len(secret) != size {
		return nil, jose.NewKeyError("key must be a %d byte secret, got %d bytes", size, len(secret))
	}
	return secret, nil
}

func directWrap(_ *config, r *target, enc jwa.Algorithm, _ []byte) (*wrapped, error) {
	cek, err := secretOfSize(r.key, jwa.ContentKeySize(enc))
	if err != nil {
		return nil, err
	}
	return &wrapped{cek: cek}, nil
}

func directUnwrap(_ *config, key *jwk.Key, h *header.Header, encryptedKey []byte) ([]byte, error) {
	if len(encryptedKey) != 0 {
		return nil, jose.NewSerializationError("encrypted key must be empty for %q", h.Algorithm())
	}
	return secretOfSize(key, jwa.ContentKeySize(h.Encryption()))
}

func rsaPublicKey(key *jwk.Key) (*rsa.PublicKey, error) {
	pub, ok := key.Public().(*rsa.PublicKey)
	if !ok {
		return nil, jose.NewKeyError("%s key is not an RSA key", key.Type())
	}
	if pub.N.BitLen() < jwk.MinRSAKeyBits {
		return nil, jose.NewKeyError("RSA key must be at least %d bits, got %d", jwk.MinRSAKeyBits, pub.N.BitLen())
	}
	return pub, nil
}

func rsaPrivateKey(key *jwk.Key) (*rsa.PrivateKey, error) {
	priv, ok := key.Private().(*rsa.PrivateKey)
	if !ok {
		return nil, jose.NewKeyError("%s key is not an RSA private key", key.Type())
	}
	if priv.N.BitLen() < jwk.MinRSAKeyBits {
		return nil, jose.NewKeyError("RSA key must be at least %d bits, got %d", jwk.MinRSAKeyBits, priv.N.BitLen())
	}
	return priv, nil
}

func rsaPKCS1Wrap(_ *config, r *target, _ jwa.Algorithm, cek []byte) (*wrapped, error) {
	pub, err := rsaPublicKey(r.key)
	if err != nil {
		return nil, err
	}
	encryptedKey, err := rsa.EncryptPKCS1v15(rand.Reader, pub, cek)
	if err != nil {
		return nil, err
	}
	return &wrapped{cek: cek, encryptedKey: encryptedKey}, nil
}

// rsaPKCS1Unwrap decrypts into a random key of the expected size, so a
// padding failure only surfaces as a failed content decryption.
func rsaPKCS1Unwrap(_ *config, key *jwk.Key, h *header.Header, encryptedKey []byte) ([]byte, error) {
	priv, err := rsaPrivateKey(key)
	if err != nil {
		return nil, err
	}
	cek, err := newCEK(h.Encryption())
	if err != nil {
		return nil, err
	}
	if err := rsa.DecryptPKCS1v15SessionKey(nil, priv, encryptedKey, cek); err != nil {
		return nil, err
	}
	return cek, nil
}

func rsaOAEP(newHash func() hash.Hash) keyManager {
	return keyManager{
		wrap: func(_ *config, r *target, _ jwa.Algorithm, cek []byte) (*wrapped, error) {
			pub, err := rsaPublicKey(r.key)
			if err != nil {
				return nil, err
			}
			encryptedKey, err := rsa.EncryptOAEP(newHash(), rand.Reader, pub, cek, nil)
			if err != nil {
				return nil, err
			}
			return &wrapped{cek: cek, encryptedKey: encryptedKey}, nil
		},
		unwrap: func(_ *config, key *jwk.Key, _ *header.Header, encryptedKey []byte) ([]byte, error) {
			priv, err := rsaPrivateKey(key)
			if err != nil {
				return nil, err
			}
			return rsa.DecryptOAEP(newHash(), nil, priv, encryptedKey, nil)
		},
	}
}

func aesKWWrap(_ *config, r *target, _ jwa.Algorithm, cek []byte) (*wrapped, error) {
	kek, err := secretOfSize(r.key, jwa.WrapKeySize(r.alg))
	if err != nil {
		return nil, err
	}
	encryptedKey, err := keyWrap(kek, cek)
	if err != nil {
		return nil, err
	}
	return &wrapped{cek: cek, encryptedKey: encryptedKey}, nil
}

func aesKWUnwrap(_ *config, key *jwk.Key, h *header.Header, encryptedKey []byte) ([]byte, error) {
	kek, err := secretOfSize(key, jwa.WrapKeySize(h.Algorithm()))
	if err != nil {
		return nil, err
	}
	return keyUnwrap(kek, encryptedKey)
}

func aesGCMKWWrap(_ *config, r *target, _ jwa.Algorithm, cek []byte) (*wrapped, error) {
	kek, err := secretOfSize(r.key, jwa.WrapKeySize(r.alg))
	if err != nil {
		return nil, err
	}
	gcm := aesGCM{size: len(kek)}
	iv, encryptedKey, tag, err := encryptContent(gcm, kek, cek, nil)
	if err != nil {
		return nil, err
	}
	return &wrapped{
		cek:          cek,
		encryptedKey: encryptedKey,
		params: header.Parameters{
			header.InitializationVector: iv,
			header.AuthenticationTag:    tag,
		},
	}, nil
}

func aesGCMKWUnwrap(_ *config, key *jwk.Key, h *header.Header, encryptedKey []byte) ([]byte, error) {
	kek, err := secretOfSize(key, jwa.WrapKeySize(h.Algorithm()))
	if err != nil {
		return nil, err
	}
	iv, tag := h.InitializationVector(), h.AuthenticationTag()
	if len(iv) != 12 {
		return nil, jose.NewHeaderError("%q must be 96 bits, got %d bytes", header.InitializationVector, len(iv))
	}
	if len(tag) != 16 {
		return nil, jose.NewHeaderError("%q must be 128 bits, got %d bytes", header.AuthenticationTag, len(tag))
	}
	return aesGCM{size: len(kek)}.open(kek, iv, encryptedKey, tag, nil)
}

func ecdhWrap(_ *config, r *target, enc jwa.Algorithm, cek []byte) (*wrapped, error) {
	a, err := deriveSender(r.key, r.alg, enc, r.apu, r.apv)
	if err != nil {
		return nil, err
	}
	w := &wrapped{params: header.Parameters{header.EphemeralPublicKey: a.epk}}
	if len(r.apu) > 0 {
		w.params[header.AgreementPartyUInfo] = r.apu
	}
	if len(r.apv) > 0 {
		w.params[header.AgreementPartyVInfo] = r.apv
	}

	if r.alg == jwa.ECDHES {
		w.cek = a.key
		return w, nil
	}
	w.cek = cek
	w.encryptedKey, err = keyWrap(a.key, cek)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func ecdhUnwrap(_ *config, key *jwk.Key, h *header.Header, encryptedKey []byte) ([]byte, error) {
	alg := h.Algorithm()
	if alg == jwa.ECDHES && len(encryptedKey) != 0 {
		return nil, jose.NewSerializationError("encrypted key must be empty for %q", alg)
	}
	derived, err := deriveRecipient(key, h.EphemeralPublicKey(), alg, h.Encryption(), h.AgreementPartyUInfo(), h.AgreementPartyVInfo())
	if err != nil {
		return nil, err
	}
	if alg == jwa.ECDHES {
		return derived, nil
	}
	return keyUnwrap(derived, encryptedKey)
}

func pbes2Wrap(c *config, r *target, _ jwa.Algorithm, cek []byte) (*wrapped, error) {
	password := r.key.Secret()
	if len(password) == 0 {
		return nil, jose.NewKeyError("%q requires a password", r.alg)
	}

	salt, count := r.p2s, r.p2c
	if salt == nil {
		var err error
		salt, err = keyutil.NewSymmetricKey(DefaultPBES2SaltSize)
		if err != nil {
			return nil, err
		}
	}
	if count == 0 {
		count = DefaultPBES2Count
	}
	if err := c.pbes2.Check(salt, count); err != nil {
		return nil, jose.WrapHeaderError(err, "PBES2 parameters rejected")
	}

	encryptedKey, err := keyWrap(pbes2KEK(r.alg, password, salt, count), cek)
	if err != nil {
		return nil, err
	}
	return &wrapped{
		cek:          cek,
		encryptedKey: encryptedKey,
		params: header.Parameters{
			header.PBES2Salt:  salt,
			header.PBES2Count: count,
		},
	}, nil
}

func pbes2Unwrap(c *config, key *jwk.Key, h *header.Header, encryptedKey []byte) ([]byte, error) {
	password := key.Secret()
	if len(password) == 0 {
		return nil, jose.NewKeyError("%q requires a password", h.Algorithm())
	}
	salt, count := h.PBES2Salt(), h.PBES2Count()
	if err := c.pbes2.Check(salt, count); err != nil {
		return nil, jose.WrapHeaderError(err, "PBES2 parameters rejected")
	}
	return keyUnwrap(pbes2KEK(h.Algorithm(), password, salt, count), encryptedKey)
}

// checkKey checks that key may perform key management with alg.
func checkKey(key *jwk.Key, alg jwa.Algorithm, op jwk.Operation) error {
	if !key.CompatibleWith(alg) {
		return jose.NewKeyError("%s key cannot be used with %q", key.Type(), alg)
	}
	if use := key.Use(); use != "" && use != jwk.UseEncryption {
		return jose.NewKeyError("key use %q does not allow encryption", use)
	}
	if op != "" && len(key.Operations()) > 0 && !key.HasOperation(op) {
		return jose.NewKeyError("key operations do not include %q", op)
	}
	return nil
}

// senderOperation is the key operation the sender's key must allow, or
// "" when the sender only holds the recipient's public key.
func senderOperation(alg jwa.Algorithm) jwk.Operation {
	switch jwa.KeyManagementFamily(alg) {
	case jwa.FamilyDirect:
		return jwk.OpEncrypt
	case jwa.FamilyECDH, jwa.FamilyECDHKeyWrap:
		return ""
	}
	return jwk.OpWrapKey
}

// recipientOperation is the key operation the recipient's key must allow.
func recipientOperation(alg jwa.Algorithm) jwk.Operation {
	switch jwa.KeyManagementFamily(alg) {
	case jwa.FamilyDirect:
		return jwk.OpDecrypt
	case jwa.FamilyECDH, jwa.FamilyECDHKeyWrap:
		return jwk.OpDeriveKey
	}
	return jwk.OpUnwrapKey
}
