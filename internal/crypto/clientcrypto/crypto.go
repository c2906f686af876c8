// Package clientcrypto seals client-side secrets (stored host credentials) at rest.
package clientcrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Params
const (
	KeyLen  = 32
	SaltLen = 16

	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
)

// Rand returns n cryptographically secure random bytes.
func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// DeriveMasterKey derives a master key from a passphrase and salt using Argon2id.
func DeriveMasterKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, KeyLen)
}

// DeriveSubkey derives a purpose-bound key via HKDF-SHA256 using purpose as info.
func DeriveSubkey(master []byte, purpose string) ([]byte, error) {
	r := hkdf.New(sha256.New, master, nil, []byte(purpose))
	key := make([]byte, KeyLen)
	_, err := r.Read(key)
	return key, err
}

// Seal encrypts plaintext with XChaCha20-Poly1305; output is nonce||ciphertext.
func Seal(key, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce, err := Rand(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, plaintext, aad)...)
	return out, nil
}

// Open decrypts a blob produced by Seal with the same key and AAD.
func Open(key, sealed, aad []byte) ([]byte, error) {
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("sealed blob too short")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := sealed[:chacha20poly1305.NonceSizeX]
	ct := sealed[chacha20poly1305.NonceSizeX:]
	return aead.Open(nil, nonce, ct, aad)
}
