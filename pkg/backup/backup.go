// Package backup provides encrypted export and restore of a wallet store.
//
// Features:
//   - Encrypted backup with AES-256-GCM
//   - Argon2id key derivation with separate backup salt
//   - HMAC-SHA256 integrity verification
//   - Atomic restore with temp directory swap
//   - Optional audit trail inclusion
//
// Security:
//   - Backup salt is generated fresh for each backup (never reuses store.salt)
//   - Outer HMAC covers header + ciphertext for tamper detection
//   - File permissions: 0600 for files, 0700 for directories
//   - Sensitive data cleared from memory with SecureWipe
package backup

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pil-lang/pilvault/pkg/crypto"
	"github.com/pil-lang/pilvault/pkg/store"
)

// auditDirName is the audit trail directory inside a store.
const auditDirName = "audit"

// ConflictMode specifies how to handle an existing store during restore.
type ConflictMode int

const (
	// ConflictError returns an error if a store already exists.
	ConflictError ConflictMode = iota
	// ConflictSkip leaves an existing store untouched.
	ConflictSkip
	// ConflictOverwrite replaces an existing store.
	ConflictOverwrite
)

// BackupOptions configures the backup operation.
type BackupOptions struct {
	// Output is the destination writer for the backup.
	Output io.Writer
	// IncludeAudit includes the audit trail in the backup.
	IncludeAudit bool
	// Password for encryption (if nil, a key file is required).
	Password []byte
	// KeyFile path for encryption key (overrides Password).
	KeyFile string
}

// RestoreOptions configures the restore operation.
type RestoreOptions struct {
	// StorePath is the target store directory.
	StorePath string
	// OnConflict specifies how to handle an existing store.
	OnConflict ConflictMode
	// DryRun previews restore without making changes.
	DryRun bool
	// VerifyOnly only verifies backup integrity.
	VerifyOnly bool
	// WithAudit restores the audit trail (overwrites existing).
	WithAudit bool
	// Password for decryption.
	Password []byte
	// KeyFile path for decryption key (overrides Password).
	KeyFile string
}

// RestoreResult contains the result of a restore operation.
type RestoreResult struct {
	// WalletsRestored is the number of wallets restored.
	WalletsRestored int
	// WalletsSkipped is the number of wallets skipped (conflicts).
	WalletsSkipped int
	// AuditRestored indicates if the audit trail was restored.
	AuditRestored bool
	// DryRun indicates this was a dry run.
	DryRun bool
}

// VerifyResult contains the result of a verify operation.
type VerifyResult struct {
	// Valid indicates the backup passed all integrity checks.
	Valid bool
	// Version is the backup format version.
	Version int
	// CreatedAt is when the backup was created.
	CreatedAt time.Time
	// WalletCount is the number of wallets in the backup.
	WalletCount int
	// IncludesAudit indicates if the audit trail is included.
	IncludesAudit bool
	// Error is set if verification failed.
	Error string
}

// Backup creates an encrypted backup of an unlocked store.
func Backup(st *store.Store, opts BackupOptions) error {
	if opts.Output == nil {
		return fmt.Errorf("output writer is required")
	}

	var encKey, macKey []byte
	var kdfParams *KDFParams
	var encMode EncryptionMode
	var err error

	if opts.KeyFile != "" {
		encKey, macKey, err = keyFileKeys(opts.KeyFile)
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(encKey)
		defer crypto.SecureWipe(macKey)

		encMode = EncryptionModeKey
	} else {
		password := opts.Password
		if password == nil {
			return fmt.Errorf("password or key file is required")
		}

		// Fresh salt per backup
		salt, err := newBackupSalt()
		if err != nil {
			return err
		}

		encKey, macKey, err = deriveKeys(password, salt)
		if err != nil {
			return err
		}
		defer crypto.SecureWipe(encKey)
		defer crypto.SecureWipe(macKey)

		kdfParams = &KDFParams{
			Salt:        salt,
			Memory:      crypto.Argon2Memory,
			Iterations:  crypto.Argon2Time,
			Parallelism: crypto.Argon2Threads,
		}
		encMode = EncryptionModeMaster
	}

	payload, walletCount, err := collectStoreData(st, opts.IncludeAudit)
	if err != nil {
		return fmt.Errorf("failed to collect store data: %w", err)
	}

	payloadBytes, err := EncodePayload(payload)
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(payloadBytes)

	ciphertext, err := sealPayload(payloadBytes, encKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt payload: %w", err)
	}

	header := &Header{
		Version:        FormatVersion,
		CreatedAt:      time.Now().UTC(),
		EncryptionMode: encMode,
		KDFParams:      kdfParams,
		IncludesAudit:  opts.IncludeAudit,
		WalletCount:    walletCount,
		ChecksumAlgo:   "sha256",
	}

	// Buffer first so the HMAC can cover header + ciphertext
	var buf bytes.Buffer

	if err := WriteHeader(&buf, header); err != nil {
		return err
	}

	ciphertextLen := uint32(len(ciphertext))
	if err := writeUint32(&buf, ciphertextLen); err != nil {
		return err
	}
	if _, err := buf.Write(ciphertext); err != nil {
		return fmt.Errorf("failed to write ciphertext: %w", err)
	}

	hmacValue := computeMAC(buf.Bytes(), macKey)

	if _, err := opts.Output.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	if _, err := opts.Output.Write(hmacValue); err != nil {
		return fmt.Errorf("failed to write HMAC: %w", err)
	}

	return nil
}

// Restore restores a store from an encrypted backup.
func Restore(backupPath string, opts RestoreOptions) (*RestoreResult, error) {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup file: %w", err)
	}

	header, payload, err := verifyAndDecrypt(data, opts.Password, opts.KeyFile)
	if err != nil {
		return nil, err
	}

	if opts.VerifyOnly {
		return &RestoreResult{DryRun: true}, nil
	}

	if opts.DryRun {
		return &RestoreResult{
			WalletsRestored: header.WalletCount,
			AuditRestored:   header.IncludesAudit && opts.WithAudit,
			DryRun:          true,
		}, nil
	}

	return performRestore(opts, header, payload)
}

// Verify checks backup integrity without restoring.
func Verify(backupPath string, password []byte, keyFile string) (*VerifyResult, error) {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return &VerifyResult{Valid: false, Error: err.Error()}, nil
	}

	header, _, err := verifyAndDecrypt(data, password, keyFile)
	if err != nil {
		return &VerifyResult{Valid: false, Error: err.Error()}, nil
	}

	return &VerifyResult{
		Valid:         true,
		Version:       header.Version,
		CreatedAt:     header.CreatedAt,
		WalletCount:   header.WalletCount,
		IncludesAudit: header.IncludesAudit,
	}, nil
}

// collectStoreData gathers the store files for backup.
func collectStoreData(st *store.Store, includeAudit bool) (*Payload, int, error) {
	storePath := st.Path()

	storeSalt, err := os.ReadFile(filepath.Join(storePath, store.SaltFileName))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read %s: %w", store.SaltFileName, err)
	}

	storeMeta, err := os.ReadFile(filepath.Join(storePath, store.MetaFileName))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read %s: %w", store.MetaFileName, err)
	}

	walletDB, err := os.ReadFile(filepath.Join(storePath, store.DBFileName))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read %s: %w", store.DBFileName, err)
	}

	ids, err := st.WalletIDs()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list wallets: %w", err)
	}

	payload := &Payload{
		StoreSalt: storeSalt,
		StoreMeta: storeMeta,
		WalletDB:  walletDB,
	}

	if includeAudit {
		auditDir := filepath.Join(storePath, auditDirName)
		entries, err := os.ReadDir(auditDir)
		if err == nil {
			payload.AuditFiles = make(map[string][]byte)
			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}
				data, err := os.ReadFile(filepath.Join(auditDir, entry.Name()))
				if err != nil {
					return nil, 0, fmt.Errorf("failed to read audit file: %w", err)
				}
				payload.AuditFiles[entry.Name()] = data
			}
		}
		// Missing audit directory is not an error
	}

	return payload, len(ids), nil
}

// verifyAndDecrypt verifies the backup integrity and decrypts the payload.
func verifyAndDecrypt(data []byte, password []byte, keyFile string) (*Header, *Payload, error) {
	if len(data) < 8+4+HMACLength {
		return nil, nil, ErrInvalidMagic
	}

	reader := bytes.NewReader(data)
	header, err := ReadHeader(reader)
	if err != nil {
		return nil, nil, err
	}

	headerEnd := len(data) - int(reader.Len())

	var ciphertextLen uint32
	if err := readUint32(reader, &ciphertextLen); err != nil {
		return nil, nil, fmt.Errorf("failed to read ciphertext length: %w", err)
	}

	remaining := reader.Len()
	if remaining < int(ciphertextLen)+HMACLength {
		return nil, nil, fmt.Errorf("backup file truncated")
	}

	ciphertext := make([]byte, ciphertextLen)
	if _, err := io.ReadFull(reader, ciphertext); err != nil {
		return nil, nil, fmt.Errorf("failed to read ciphertext: %w", err)
	}

	storedHMAC := make([]byte, HMACLength)
	if _, err := io.ReadFull(reader, storedHMAC); err != nil {
		return nil, nil, fmt.Errorf("failed to read HMAC: %w", err)
	}

	var encKey, macKey []byte

	if keyFile != "" {
		encKey, macKey, err = keyFileKeys(keyFile)
		if err != nil {
			return nil, nil, err
		}
		defer crypto.SecureWipe(encKey)
		defer crypto.SecureWipe(macKey)
	} else if header.EncryptionMode == EncryptionModeMaster && header.KDFParams != nil {
		if password == nil {
			return nil, nil, ErrEmptyPassword
		}
		encKey, macKey, err = deriveKeys(password, header.KDFParams.Salt)
		if err != nil {
			return nil, nil, err
		}
		defer crypto.SecureWipe(encKey)
		defer crypto.SecureWipe(macKey)
	} else {
		return nil, nil, fmt.Errorf("cannot determine decryption key")
	}

	// HMAC covers header + ciphertext length + ciphertext
	dataToVerify := data[:headerEnd+4+int(ciphertextLen)]
	if !verifyMAC(dataToVerify, storedHMAC, macKey) {
		return nil, nil, ErrIntegrityFailed
	}

	plaintext, err := openPayload(ciphertext, encKey)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.SecureWipe(plaintext)

	payload, err := DecodePayload(plaintext)
	if err != nil {
		return nil, nil, err
	}

	return header, payload, nil
}

// DefaultStorePath returns the default store path (~/.pilvault).
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pilvault"
	}
	return filepath.Join(home, ".pilvault")
}

// performRestore writes the store files into place via a temp directory.
func performRestore(opts RestoreOptions, header *Header, payload *Payload) (*RestoreResult, error) {
	storePath := opts.StorePath
	if storePath == "" {
		storePath = DefaultStorePath()
	}

	tempDir, err := os.MkdirTemp("", "pilvault-restore-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	if err := os.Chmod(tempDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to set temp directory permissions: %w", err)
	}

	if err := os.WriteFile(filepath.Join(tempDir, store.SaltFileName), payload.StoreSalt, 0600); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", store.SaltFileName, err)
	}
	if err := os.WriteFile(filepath.Join(tempDir, store.MetaFileName), payload.StoreMeta, 0600); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", store.MetaFileName, err)
	}
	if err := os.WriteFile(filepath.Join(tempDir, store.DBFileName), payload.WalletDB, 0600); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", store.DBFileName, err)
	}

	auditRestored := false
	if opts.WithAudit && len(payload.AuditFiles) > 0 {
		auditDir := filepath.Join(tempDir, auditDirName)
		if err := os.MkdirAll(auditDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
		for name, data := range payload.AuditFiles {
			// Reject path traversal in archived names
			if filepath.Base(name) != name {
				return nil, fmt.Errorf("invalid audit file name: %s", name)
			}
			if err := os.WriteFile(filepath.Join(auditDir, name), data, 0600); err != nil {
				return nil, fmt.Errorf("failed to write audit file: %w", err)
			}
		}
		auditRestored = true
	}

	if _, err := os.Stat(storePath); err == nil {
		switch opts.OnConflict {
		case ConflictError:
			return nil, fmt.Errorf("store already exists at %s (use --on-conflict to override)", storePath)
		case ConflictSkip:
			return &RestoreResult{
				WalletsSkipped: header.WalletCount,
			}, nil
		case ConflictOverwrite:
			if err := os.RemoveAll(storePath); err != nil {
				return nil, fmt.Errorf("failed to remove existing store: %w", err)
			}
		}
	}

	parentDir := filepath.Dir(storePath)
	if err := os.MkdirAll(parentDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}

	// Atomic on same filesystem; fall back to copy across devices
	if err := os.Rename(tempDir, storePath); err != nil {
		if err := copyDir(tempDir, storePath); err != nil {
			return nil, fmt.Errorf("failed to restore store: %w", err)
		}
	}

	return &RestoreResult{
		WalletsRestored: header.WalletCount,
		AuditRestored:   auditRestored,
	}, nil
}

// copyDir copies a directory recursively.
func copyDir(src, dst string) error {
	if err := os.MkdirAll(dst, 0700); err != nil {
		return err
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := copyDir(srcPath, dstPath); err != nil {
				return err
			}
		} else {
			data, err := os.ReadFile(srcPath)
			if err != nil {
				return err
			}
			if err := os.WriteFile(dstPath, data, 0600); err != nil {
				return err
			}
		}
	}

	return nil
}

// writeUint32 writes a uint32 in big-endian format.
func writeUint32(w io.Writer, v uint32) error {
	buf := make([]byte, 4)
	buf[0] = byte(v >> 24)
	buf[1] = byte(v >> 16)
	buf[2] = byte(v >> 8)
	buf[3] = byte(v)
	_, err := w.Write(buf)
	return err
}

// readUint32 reads a uint32 in big-endian format.
func readUint32(r io.Reader, v *uint32) error {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	*v = uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
	return nil
}
