package key

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/qri-io/libp2p/crypto"
)

// pbkdf2Iterations and dekKeyLen follow the module's minimum hardening
// requirements for password-wrapped private keys: at least 10,000
// PBKDF2 rounds and a 256-bit derived key.
const (
	pbkdf2Iterations = 10000
	dekKeyLen        = 32
	dekSaltLen       = 16
)

// ErrBadPassword is returned by UnwrapPrivateKey when the supplied
// password fails to decrypt the wrapped key, whether because it's wrong
// or the ciphertext has been tampered with.
var ErrBadPassword = errors.New("key: bad password")

// WrapPrivateKey encrypts a private key under a key derived from
// password via PBKDF2-HMAC-SHA512, returning a self-contained blob
// (salt, nonce and ciphertext) that UnwrapPrivateKey can later open with
// the same password.
func WrapPrivateKey(password string, sk crypto.PrivKey) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("key: password is required")
	}
	plaintext, err := crypto.MarshalPrivateKey(sk)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, dekSaltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	dek := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, dekKeyLen, sha512.New)

	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// UnwrapPrivateKey decrypts a blob produced by WrapPrivateKey, returning
// ErrBadPassword if password doesn't match or blob has been corrupted.
func UnwrapPrivateKey(password string, blob []byte) (crypto.PrivKey, error) {
	if len(blob) < dekSaltLen+1 {
		return nil, ErrBadPassword
	}
	salt := blob[:dekSaltLen]
	rest := blob[dekSaltLen:]

	dek := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, dekKeyLen, sha512.New)

	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(rest) < gcm.NonceSize() {
		return nil, ErrBadPassword
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrBadPassword
	}

	return crypto.UnmarshalPrivateKey(plaintext)
}
