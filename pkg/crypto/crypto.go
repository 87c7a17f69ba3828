// Package crypto provides the cryptographic primitives for pilvault:
// AES-256-GCM authenticated encryption, Argon2id key derivation for the
// persistent store's master password, keypair derivation from phrase entropy,
// and secure memory wiping.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters following OWASP recommendations, and key geometry.
const (
	// Argon2Memory is the memory cost in KiB (64MB).
	Argon2Memory = 64 * 1024

	// Argon2Time is the number of iterations.
	Argon2Time = 3

	// Argon2Threads is the degree of parallelism.
	Argon2Threads = 4

	// KeyLength is the length of AES-256 keys in bytes.
	KeyLength = 32

	// NonceLength is the length of GCM nonces in bytes.
	NonceLength = 12
)

// Sentinel errors returned by encryption functions.
var (
	ErrInvalidKeyLength   = errors.New("crypto: invalid key length, must be 32 bytes")
	ErrInvalidNonceLength = errors.New("crypto: invalid nonce length, must be 12 bytes")
	ErrDecryptionFailed   = errors.New("crypto: decryption failed, authentication tag verification failed")
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
)

// DeriveKey derives a 256-bit key from a password using Argon2id. The salt
// should be at least 16 bytes of cryptographically secure random data.
func DeriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, Argon2Time, Argon2Memory, Argon2Threads, KeyLength)
}

// Encrypt encrypts plaintext with AES-256-GCM under a fresh random nonce.
// The authentication tag is appended to the ciphertext; the nonce must be
// stored alongside the ciphertext for decryption.
func Encrypt(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	if len(key) != KeyLength {
		return nil, nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}

	nonce = make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Decrypt decrypts AES-256-GCM ciphertext, verifying the authentication tag
// before returning the plaintext.
func Decrypt(key, ciphertext, nonce []byte) ([]byte, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	if len(nonce) != NonceLength {
		return nil, ErrInvalidNonceLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}

	if len(ciphertext) < gcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents the
// compiler from optimizing the writes away. Used to destroy key material.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
