// Package backup provides encrypted export and restore of a wallet store.
package backup

import "errors"

// Backup/Restore errors
var (
	// ErrInvalidMagic indicates the backup file has an invalid magic number.
	ErrInvalidMagic = errors.New("invalid backup file: magic number mismatch")

	// ErrUnsupportedVersion indicates the backup format version is not supported.
	ErrUnsupportedVersion = errors.New("unsupported backup format version")

	// ErrIntegrityFailed indicates the HMAC verification failed.
	ErrIntegrityFailed = errors.New("backup integrity check failed: HMAC mismatch")

	// ErrDecryptionFailed indicates decryption failed due to invalid password or corruption.
	ErrDecryptionFailed = errors.New("backup decryption failed: invalid password or corrupted data")

	// ErrStoreNotFound indicates no store exists at the expected path.
	ErrStoreNotFound = errors.New("wallet store not found")

	// ErrInvalidKeyFile indicates the key file is invalid or wrong size.
	ErrInvalidKeyFile = errors.New("invalid key file: must be exactly 32 bytes")

	// ErrEmptyPassword indicates an empty password was provided.
	ErrEmptyPassword = errors.New("password cannot be empty")
)
