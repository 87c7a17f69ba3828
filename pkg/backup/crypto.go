package backup

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/hkdf"

	"github.com/pil-lang/pilvault/pkg/crypto"
)

const (
	// SaltLength is the length of the backup salt in bytes.
	SaltLength = 32

	// HMACLength is the length of the HMAC-SHA256 in bytes.
	HMACLength = 32

	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32
)

// HKDF labels keeping the encryption and MAC keys independent.
const (
	hkdfInfoEncryption = "pilvault-backup-encryption"
	hkdfInfoMAC        = "pilvault-backup-mac"
)

// newBackupSalt generates a fresh random salt. Backups never reuse
// store.salt.
func newBackupSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// deriveKeys stretches a password through Argon2id with the given salt and
// splits the result into independent encryption and MAC keys.
func deriveKeys(password, salt []byte) (encKey, macKey []byte, err error) {
	if len(password) == 0 {
		return nil, nil, ErrEmptyPassword
	}

	masterKey := crypto.DeriveKey(password, salt)
	defer crypto.SecureWipe(masterKey)

	encKey, err = expandKey(masterKey, hkdfInfoEncryption)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	macKey, err = expandKey(masterKey, hkdfInfoMAC)
	if err != nil {
		crypto.SecureWipe(encKey)
		return nil, nil, fmt.Errorf("failed to derive MAC key: %w", err)
	}

	return encKey, macKey, nil
}

// keyFileKeys loads a 32-byte key file; the file's content is the
// encryption key, the MAC key is expanded from it.
func keyFileKeys(path string) (encKey, macKey []byte, err error) {
	encKey, err = os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read key file: %w", err)
	}
	if len(encKey) != KeyLength {
		crypto.SecureWipe(encKey)
		return nil, nil, ErrInvalidKeyFile
	}

	macKey, err = expandKey(encKey, hkdfInfoMAC)
	if err != nil {
		crypto.SecureWipe(encKey)
		return nil, nil, fmt.Errorf("failed to derive MAC key: %w", err)
	}
	return encKey, macKey, nil
}

// expandKey derives a subkey with HKDF-SHA256.
func expandKey(secret []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, nil, []byte(info))
	key := make([]byte, KeyLength)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

// sealPayload encrypts with AES-256-GCM, nonce prepended.
func sealPayload(plaintext, key []byte) ([]byte, error) {
	ciphertext, nonce, err := crypto.Encrypt(key, plaintext)
	if err != nil {
		return nil, fmt.Errorf("encryption failed: %w", err)
	}
	return append(nonce, ciphertext...), nil
}

// openPayload decrypts a nonce-prepended AES-256-GCM blob.
func openPayload(data, key []byte) ([]byte, error) {
	if len(data) < crypto.NonceLength {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := crypto.Decrypt(key, data[crypto.NonceLength:], data[:crypto.NonceLength])
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// computeMAC computes HMAC-SHA256 over data.
func computeMAC(data, key []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// verifyMAC checks an HMAC-SHA256 in constant time.
func verifyMAC(data, expected, key []byte) bool {
	return hmac.Equal(computeMAC(data, key), expected)
}
