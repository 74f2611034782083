// Package crypto implements passphrase key derivation and authenticated
// encryption for the vault file.
package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/passlock/passlock/internal/errs"
)

// Params
const (
	KeyLen   = 32
	SaltLen  = 16
	NonceLen = chacha20poly1305.NonceSizeX

	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
)

// verifyToken is the constant sealed into the header so a wrong passphrase is
// detected before the payload is touched. The value itself carries no secret.
var verifyToken = []byte("passlock verification token")

// Rand returns n cryptographically secure random bytes.
func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// DeriveKey derives the vault key from passphrase and salt using Argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, KeyLen)
}

// Seal encrypts plaintext with XChaCha20-Poly1305 under the given nonce.
// The nonce is not prepended; callers that store it separately (the file
// header IV) must never reuse it under the same key.
func Seal(key, nonce, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceLen {
		return nil, fmt.Errorf("bad nonce length %d", len(nonce))
	}
	return aead.Seal(nil, nonce, plaintext, nil), nil
}

// Open decrypts a Seal ciphertext. It fails closed: tampering or a wrong key
// yields errs.ErrAuth, never garbage plaintext.
func Open(key, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceLen {
		return nil, fmt.Errorf("bad nonce length %d", len(nonce))
	}
	pt, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", errs.ErrAuth)
	}
	return pt, nil
}

// SealBlob encrypts plaintext with a random nonce and returns nonce||ct.
func SealBlob(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce, err := Rand(NonceLen)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, plaintext, nil)...)
	return out, nil
}

// OpenBlob decrypts a SealBlob ciphertext (nonce||ct).
func OpenBlob(key, blob []byte) ([]byte, error) {
	if len(blob) < NonceLen {
		return nil, fmt.Errorf("blob too short: %w", errs.ErrParse)
	}
	return Open(key, blob[:NonceLen], blob[NonceLen:])
}

// NewToken produces a fresh verification token for the file header. The token
// is self-contained (nonce||ct) so its nonce is never shared with the payload.
func NewToken(key []byte) ([]byte, error) {
	return SealBlob(key, verifyToken)
}

// CheckToken verifies that key opens the header token, i.e. that the
// passphrase the key was derived from is the one the file was sealed under.
func CheckToken(key, token []byte) error {
	pt, err := OpenBlob(key, token)
	if err != nil {
		return errs.ErrAuth
	}
	if string(pt) != string(verifyToken) {
		return errs.ErrAuth
	}
	return nil
}
