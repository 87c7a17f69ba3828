// Package store persists wallet registries with envelope encryption. A
// random data encryption key (DEK) seals every sensitive column; the DEK is
// itself sealed under a key derived from the master password with Argon2id.
// Failed unlock attempts trigger an escalating cooldown.
package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pil-lang/pilvault/pkg/audit"
	"github.com/pil-lang/pilvault/pkg/crypto"
	"github.com/pil-lang/pilvault/pkg/vocab"
	"github.com/pil-lang/pilvault/pkg/wallet"

	_ "modernc.org/sqlite"
)

const (
	SaltLength   = 16
	DEKLength    = 32
	SaltFileName = "store.salt"
	MetaFileName = "store.meta"
	DBFileName   = "wallets.db"
	LockFileName = "store.lock"
	FileMode     = 0600
	DirMode      = 0700

	// Failed unlock cooldown ladder:
	// 5 attempts -> 30s, 10 attempts -> 5min, 20 attempts -> 30min.
	CooldownThreshold1 = 5
	CooldownThreshold2 = 10
	CooldownThreshold3 = 20
	CooldownDuration1  = 30 * time.Second
	CooldownDuration2  = 5 * time.Minute
	CooldownDuration3  = 30 * time.Minute

	MinDiskSpaceBytes  = 10 * 1024 * 1024
	DiskWarningPercent = 90
)

// Errors
var (
	ErrStoreAlreadyExists   = errors.New("store: store already exists at this path")
	ErrStoreNotFound        = errors.New("store: store not found at this path")
	ErrStoreLocked          = errors.New("store: store is locked")
	ErrStoreAlreadyUnlocked = errors.New("store: store is already unlocked")
	ErrInvalidPassword      = errors.New("store: invalid master password")
	ErrSaltNotFound         = errors.New("store: salt file not found")
	ErrDEKNotFound          = errors.New("store: encrypted DEK not found in database")
	ErrStoreCorrupted       = errors.New("store: store is corrupted")
	ErrTooManyAttempts      = errors.New("store: too many failed unlock attempts")
	ErrCooldownActive       = errors.New("store: cooldown period active")
	ErrInsufficientDisk     = errors.New("store: insufficient disk space")
)

// StoreMeta holds store metadata.
type StoreMeta struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// LockState tracks failed unlock attempts for cooldown enforcement.
type LockState struct {
	FailedAttempts int       `json:"failed_attempts"`
	LastAttempt    time.Time `json:"last_attempt"`
	CooldownUntil  time.Time `json:"cooldown_until"`
}

// Store manages on-disk persistence for wallets.
type Store struct {
	path  string
	dek   []byte
	db    *sql.DB
	mu    sync.RWMutex
	audit *audit.Logger
}

// New creates a Store management object for the given directory.
func New(path string) *Store {
	return &Store{
		path:  path,
		audit: audit.NewLogger(filepath.Join(path, "audit")),
	}
}

// Init initializes a new store: generate and save a salt, derive the KEK
// from the master password, generate a DEK, seal it under the KEK, create
// the database schema, and write the metadata file.
func (s *Store) Init(masterPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exists() {
		return ErrStoreAlreadyExists
	}
	if err := s.checkDiskSpaceForWrite(1024 * 1024); err != nil {
		return err
	}

	if err := os.MkdirAll(s.path, DirMode); err != nil {
		return fmt.Errorf("store: failed to create store directory: %w", err)
	}

	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("store: failed to generate salt: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.path, SaltFileName), salt, FileMode); err != nil {
		return fmt.Errorf("store: failed to write salt file: %w", err)
	}

	kek := crypto.DeriveKey([]byte(masterPassword), salt)
	defer crypto.SecureWipe(kek)

	dek := make([]byte, DEKLength)
	if _, err := rand.Read(dek); err != nil {
		return fmt.Errorf("store: failed to generate DEK: %w", err)
	}

	encryptedDEK, nonce, err := crypto.Encrypt(kek, dek)
	if err != nil {
		return fmt.Errorf("store: failed to encrypt DEK: %w", err)
	}

	dbPath := filepath.Join(s.path, DBFileName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("store: failed to open database: %w", err)
	}
	defer db.Close()

	if err := createTables(db); err != nil {
		return fmt.Errorf("store: failed to create tables: %w", err)
	}
	if _, err := db.Exec("INSERT INTO store_keys(encrypted_dek, dek_nonce) VALUES(?, ?)",
		encryptedDEK, nonce); err != nil {
		return fmt.Errorf("store: failed to save encrypted DEK: %w", err)
	}

	meta := StoreMeta{Version: "1.0.0", CreatedAt: time.Now().UTC()}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("store: failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.path, MetaFileName), metaJSON, FileMode); err != nil {
		return fmt.Errorf("store: failed to write metadata file: %w", err)
	}
	if err := os.Chmod(dbPath, FileMode); err != nil {
		return fmt.Errorf("store: failed to set database permissions: %w", err)
	}

	if err := s.audit.SetHMACKey(dek); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to initialize audit logger: %v\n", err)
	} else {
		_ = s.audit.LogSuccess(audit.OpStoreInit, audit.SourceCLI, "")
	}

	crypto.SecureWipe(dek)
	return nil
}

// Unlock unseals the DEK using the master password and opens the database.
func (s *Store) Unlock(masterPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.exists() {
		return ErrStoreNotFound
	}
	if s.dek != nil {
		return ErrStoreAlreadyUnlocked
	}

	if remaining, err := s.checkCooldown(); err != nil {
		if errors.Is(err, ErrCooldownActive) {
			return fmt.Errorf("%w: please wait %v", ErrCooldownActive, remaining.Round(time.Second))
		}
		return err
	}

	salt, err := os.ReadFile(filepath.Join(s.path, SaltFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrSaltNotFound
		}
		return fmt.Errorf("store: failed to read salt file: %w", err)
	}
	if len(salt) != SaltLength {
		return ErrStoreCorrupted
	}

	kek := crypto.DeriveKey([]byte(masterPassword), salt)
	defer crypto.SecureWipe(kek)

	dbPath := filepath.Join(s.path, DBFileName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("store: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	var encryptedDEK, nonce []byte
	err = db.QueryRow("SELECT encrypted_dek, dek_nonce FROM store_keys WHERE id = 1").
		Scan(&encryptedDEK, &nonce)
	if err != nil {
		db.Close()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrDEKNotFound
		}
		return fmt.Errorf("store: failed to read encrypted DEK: %w", err)
	}

	dek, err := crypto.Decrypt(kek, encryptedDEK, nonce)
	if err != nil {
		db.Close()
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			cooldown, recordErr := s.recordFailedAttempt()
			if recordErr != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to record unlock attempt: %v\n", recordErr)
			}
			_ = s.audit.LogError(audit.OpStoreUnlockFail, audit.SourceCLI, "",
				"AUTH_FAILED", "invalid master password")
			if cooldown > 0 {
				return fmt.Errorf("%w: cooldown activated for %v", ErrTooManyAttempts, cooldown.Round(time.Second))
			}
			return ErrInvalidPassword
		}
		return fmt.Errorf("store: failed to decrypt DEK: %w", err)
	}

	s.dek = dek
	s.db = db

	if err := s.clearLockState(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to clear lock state: %v\n", err)
	}
	if err := s.audit.SetHMACKey(dek); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to initialize audit logger: %v\n", err)
	} else {
		_ = s.audit.LogSuccess(audit.OpStoreUnlock, audit.SourceCLI, "")
	}

	s.checkAndWarnPermissions()
	return nil
}

// Lock locks the store, destroying the DEK in memory.
func (s *Store) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dek != nil {
		_ = s.audit.LogSuccess(audit.OpStoreLock, audit.SourceCLI, "")
		crypto.SecureWipe(s.dek)
		s.dek = nil
	}
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
}

// IsLocked reports whether the store is locked.
func (s *Store) IsLocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dek == nil
}

// Path returns the store directory.
func (s *Store) Path() string {
	return s.path
}

// Audit returns the store's audit logger, for wiring into a Registry and
// for the audit CLI commands. Its HMAC key is set once the store is
// initialized or unlocked.
func (s *Store) Audit() *audit.Logger {
	return s.audit
}

func (s *Store) exists() bool {
	_, err := os.Stat(filepath.Join(s.path, SaltFileName))
	return err == nil
}

// Exists reports whether a store has been initialized at the path.
func (s *Store) Exists() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exists()
}

func (s *Store) checkAndWarnPermissions() {
	if info, err := os.Stat(s.path); err == nil {
		if perm := info.Mode().Perm(); perm&0077 != 0 {
			fmt.Fprintf(os.Stderr, "warning: store directory has insecure permissions %04o (expected 0700)\n", perm)
		}
	}
	for _, fname := range []string{SaltFileName, MetaFileName, DBFileName} {
		if info, err := os.Stat(filepath.Join(s.path, fname)); err == nil {
			if perm := info.Mode().Perm(); perm&0077 != 0 {
				fmt.Fprintf(os.Stderr, "warning: %s has insecure permissions %04o (expected 0600)\n", fname, perm)
			}
		}
	}
}

func createTables(db *sql.DB) error {
	// store_keys holds the sealed DEK.
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS store_keys (
			id INTEGER PRIMARY KEY,
			encrypted_dek BLOB NOT NULL,
			dek_nonce BLOB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	// Sensitive columns are sealed under the DEK with the nonce prepended.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS wallets (
			id TEXT PRIMARY KEY,
			sealed_phrase BLOB NOT NULL,
			sealed_voice BLOB,
			sealed_retina BLOB,
			sealed_fingerprint BLOB,
			sealed_face BLOB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS blobs (
			wallet_id TEXT NOT NULL,
			blob_key TEXT NOT NULL,
			sealed_data BLOB NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (wallet_id, blob_key)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS access_log (
			wallet_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			at TIMESTAMP NOT NULL,
			outcome TEXT NOT NULL,
			reasons TEXT,
			PRIMARY KEY (wallet_id, seq)
		)
	`)
	return err
}

// sealWithNonce encrypts data under the DEK and prepends the nonce.
func (s *Store) sealWithNonce(plaintext []byte) ([]byte, error) {
	ciphertext, nonce, err := crypto.Encrypt(s.dek, plaintext)
	if err != nil {
		return nil, err
	}
	return append(nonce, ciphertext...), nil
}

// unsealWithNonce decrypts a nonce-prepended blob.
func (s *Store) unsealWithNonce(blob []byte) ([]byte, error) {
	if len(blob) < crypto.NonceLength {
		return nil, fmt.Errorf("store: sealed data too short")
	}
	return crypto.Decrypt(s.dek, blob[crypto.NonceLength:], blob[:crypto.NonceLength])
}

func (s *Store) sealOptional(data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	return s.sealWithNonce(data)
}

func (s *Store) unsealOptional(blob []byte) ([]byte, error) {
	if blob == nil {
		return nil, nil
	}
	return s.unsealWithNonce(blob)
}

// SaveWallet persists one wallet: sealed phrase, sealed biometric templates,
// sealed data blobs, and the access log. Existing rows for the wallet are
// replaced in one transaction.
func (s *Store) SaveWallet(w *wallet.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dek == nil {
		return ErrStoreLocked
	}
	if err := s.checkDiskSpaceForWrite(64 * 1024); err != nil {
		return err
	}

	phraseJSON, err := json.Marshal(w.Phrase())
	if err != nil {
		return fmt.Errorf("store: failed to marshal phrase: %w", err)
	}
	sealedPhrase, err := s.sealWithNonce(phraseJSON)
	if err != nil {
		return fmt.Errorf("store: failed to seal phrase: %w", err)
	}

	profile := w.Profile()
	sealedVoice, err := s.sealOptional(profile.Voice)
	if err != nil {
		return fmt.Errorf("store: failed to seal voice template: %w", err)
	}
	sealedRetina, err := s.sealOptional(profile.Retina)
	if err != nil {
		return fmt.Errorf("store: failed to seal retina template: %w", err)
	}
	sealedFingerprint, err := s.sealOptional(profile.Fingerprint)
	if err != nil {
		return fmt.Errorf("store: failed to seal fingerprint template: %w", err)
	}
	sealedFace, err := s.sealOptional(profile.Face)
	if err != nil {
		return fmt.Errorf("store: failed to seal face template: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO wallets(id, sealed_phrase, sealed_voice, sealed_retina, sealed_fingerprint, sealed_face)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sealed_phrase = excluded.sealed_phrase,
			sealed_voice = excluded.sealed_voice,
			sealed_retina = excluded.sealed_retina,
			sealed_fingerprint = excluded.sealed_fingerprint,
			sealed_face = excluded.sealed_face,
			updated_at = CURRENT_TIMESTAMP
	`, w.ID(), sealedPhrase, sealedVoice, sealedRetina, sealedFingerprint, sealedFace)
	if err != nil {
		return fmt.Errorf("store: failed to save wallet row: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM blobs WHERE wallet_id = ?", w.ID()); err != nil {
		return fmt.Errorf("store: failed to clear blobs: %w", err)
	}
	for key, ciphertext := range w.Blobs() {
		sealed, err := s.sealWithNonce(ciphertext)
		if err != nil {
			return fmt.Errorf("store: failed to seal blob %q: %w", key, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO blobs(wallet_id, blob_key, sealed_data) VALUES(?, ?, ?)",
			w.ID(), key, sealed); err != nil {
			return fmt.Errorf("store: failed to save blob %q: %w", key, err)
		}
	}

	if _, err := tx.Exec("DELETE FROM access_log WHERE wallet_id = ?", w.ID()); err != nil {
		return fmt.Errorf("store: failed to clear access log: %w", err)
	}
	for i, entry := range w.AccessLog() {
		reasonsJSON, err := json.Marshal(entry.Reasons)
		if err != nil {
			return fmt.Errorf("store: failed to marshal access reasons: %w", err)
		}
		if _, err := tx.Exec(
			"INSERT INTO access_log(wallet_id, seq, at, outcome, reasons) VALUES(?, ?, ?, ?, ?)",
			w.ID(), i, entry.Time.Format(time.RFC3339Nano), entry.Outcome, string(reasonsJSON)); err != nil {
			return fmt.Errorf("store: failed to save access log entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: failed to commit transaction: %w", err)
	}
	return nil
}

// SaveRegistry persists every wallet in the registry.
func (s *Store) SaveRegistry(r *wallet.Registry) error {
	for _, id := range r.IDs() {
		w, err := r.Wallet(id)
		if err != nil {
			return err
		}
		if err := s.SaveWallet(w); err != nil {
			return fmt.Errorf("store: failed to save wallet %s: %w", id, err)
		}
	}
	return nil
}

// LoadRegistry rehydrates a registry from the database. Each wallet's
// identifier is re-derived from its phrase, so a row whose id no longer
// matches its phrase surfaces as corruption.
func (s *Store) LoadRegistry(v *vocab.Vocabulary, opts ...wallet.Option) (*wallet.Registry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dek == nil {
		return nil, ErrStoreLocked
	}

	registry := wallet.NewRegistry(v, opts...)

	rows, err := s.db.Query(`
		SELECT id, sealed_phrase, sealed_voice, sealed_retina, sealed_fingerprint, sealed_face
		FROM wallets ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("store: failed to load wallets: %w", err)
	}
	defer rows.Close()

	type walletRow struct {
		id      string
		phrase  []string
		profile wallet.BiometricProfile
	}
	var loaded []walletRow

	for rows.Next() {
		var id string
		var sealedPhrase, sealedVoice, sealedRetina, sealedFingerprint, sealedFace []byte
		if err := rows.Scan(&id, &sealedPhrase, &sealedVoice, &sealedRetina, &sealedFingerprint, &sealedFace); err != nil {
			return nil, fmt.Errorf("store: failed to scan wallet row: %w", err)
		}

		phraseJSON, err := s.unsealWithNonce(sealedPhrase)
		if err != nil {
			return nil, fmt.Errorf("%w: wallet %s phrase: %v", ErrStoreCorrupted, id, err)
		}
		var tokens []string
		if err := json.Unmarshal(phraseJSON, &tokens); err != nil {
			return nil, fmt.Errorf("%w: wallet %s phrase: %v", ErrStoreCorrupted, id, err)
		}

		row := walletRow{id: id, phrase: tokens}
		if row.profile.Voice, err = s.unsealOptional(sealedVoice); err != nil {
			return nil, fmt.Errorf("%w: wallet %s voice template: %v", ErrStoreCorrupted, id, err)
		}
		if row.profile.Retina, err = s.unsealOptional(sealedRetina); err != nil {
			return nil, fmt.Errorf("%w: wallet %s retina template: %v", ErrStoreCorrupted, id, err)
		}
		if row.profile.Fingerprint, err = s.unsealOptional(sealedFingerprint); err != nil {
			return nil, fmt.Errorf("%w: wallet %s fingerprint template: %v", ErrStoreCorrupted, id, err)
		}
		if row.profile.Face, err = s.unsealOptional(sealedFace); err != nil {
			return nil, fmt.Errorf("%w: wallet %s face template: %v", ErrStoreCorrupted, id, err)
		}
		loaded = append(loaded, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: failed to iterate wallets: %w", err)
	}

	for _, row := range loaded {
		blobs, err := s.loadBlobs(row.id)
		if err != nil {
			return nil, err
		}
		accessLog, err := s.loadAccessLog(row.id)
		if err != nil {
			return nil, err
		}

		w, err := registry.Restore(row.phrase, row.profile, blobs, accessLog)
		if err != nil {
			return nil, fmt.Errorf("store: failed to restore wallet %s: %w", row.id, err)
		}
		if w.ID() != row.id {
			return nil, fmt.Errorf("%w: wallet %s phrase derives id %s", ErrStoreCorrupted, row.id, w.ID())
		}
	}
	return registry, nil
}

func (s *Store) loadBlobs(walletID string) (map[string][]byte, error) {
	rows, err := s.db.Query("SELECT blob_key, sealed_data FROM blobs WHERE wallet_id = ?", walletID)
	if err != nil {
		return nil, fmt.Errorf("store: failed to load blobs: %w", err)
	}
	defer rows.Close()

	blobs := make(map[string][]byte)
	for rows.Next() {
		var key string
		var sealed []byte
		if err := rows.Scan(&key, &sealed); err != nil {
			return nil, fmt.Errorf("store: failed to scan blob row: %w", err)
		}
		data, err := s.unsealWithNonce(sealed)
		if err != nil {
			return nil, fmt.Errorf("%w: wallet %s blob %q: %v", ErrStoreCorrupted, walletID, key, err)
		}
		blobs[key] = data
	}
	return blobs, rows.Err()
}

func (s *Store) loadAccessLog(walletID string) ([]wallet.AccessEntry, error) {
	rows, err := s.db.Query(
		"SELECT at, outcome, reasons FROM access_log WHERE wallet_id = ? ORDER BY seq", walletID)
	if err != nil {
		return nil, fmt.Errorf("store: failed to load access log: %w", err)
	}
	defer rows.Close()

	var entries []wallet.AccessEntry
	for rows.Next() {
		var at, outcome, reasonsJSON string
		if err := rows.Scan(&at, &outcome, &reasonsJSON); err != nil {
			return nil, fmt.Errorf("store: failed to scan access log row: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("%w: wallet %s access log timestamp: %v", ErrStoreCorrupted, walletID, err)
		}
		var reasons []string
		if reasonsJSON != "" {
			if err := json.Unmarshal([]byte(reasonsJSON), &reasons); err != nil {
				return nil, fmt.Errorf("%w: wallet %s access log reasons: %v", ErrStoreCorrupted, walletID, err)
			}
		}
		entries = append(entries, wallet.AccessEntry{Time: ts, Outcome: outcome, Reasons: reasons})
	}
	return entries, rows.Err()
}

// WalletIDs returns the ids of all persisted wallets.
func (s *Store) WalletIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dek == nil {
		return nil, ErrStoreLocked
	}
	rows, err := s.db.Query("SELECT id FROM wallets ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("store: failed to list wallets: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: failed to scan wallet id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// loadLockState reads the lock state from the lock file.
func (s *Store) loadLockState() (*LockState, error) {
	data, err := os.ReadFile(filepath.Join(s.path, LockFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return &LockState{}, nil
		}
		return nil, fmt.Errorf("store: failed to read lock state: %w", err)
	}
	var state LockState
	if err := json.Unmarshal(data, &state); err != nil {
		// Corrupted lock file, reset state.
		return &LockState{}, nil
	}
	return &state, nil
}

func (s *Store) saveLockState(state *LockState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("store: failed to marshal lock state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.path, LockFileName), data, FileMode); err != nil {
		return fmt.Errorf("store: failed to write lock state: %w", err)
	}
	return nil
}

func (s *Store) clearLockState() error {
	err := os.Remove(filepath.Join(s.path, LockFileName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: failed to clear lock state: %w", err)
	}
	return nil
}

// checkCooldown verifies whether unlock is allowed.
func (s *Store) checkCooldown() (time.Duration, error) {
	state, err := s.loadLockState()
	if err != nil {
		return 0, err
	}
	now := time.Now()
	if !state.CooldownUntil.IsZero() && now.Before(state.CooldownUntil) {
		return state.CooldownUntil.Sub(now), ErrCooldownActive
	}
	return 0, nil
}

// recordFailedAttempt records a failed unlock and escalates the cooldown.
func (s *Store) recordFailedAttempt() (time.Duration, error) {
	state, err := s.loadLockState()
	if err != nil {
		return 0, err
	}

	state.FailedAttempts++
	state.LastAttempt = time.Now()

	var cooldown time.Duration
	switch {
	case state.FailedAttempts >= CooldownThreshold3:
		cooldown = CooldownDuration3
	case state.FailedAttempts >= CooldownThreshold2:
		cooldown = CooldownDuration2
	case state.FailedAttempts >= CooldownThreshold1:
		cooldown = CooldownDuration1
	}
	if cooldown > 0 {
		state.CooldownUntil = time.Now().Add(cooldown)
	}

	if err := s.saveLockState(state); err != nil {
		return cooldown, err
	}
	return cooldown, nil
}

// RemainingCooldown returns the remaining cooldown time, or 0.
func (s *Store) RemainingCooldown() time.Duration {
	state, err := s.loadLockState()
	if err != nil {
		return 0
	}
	now := time.Now()
	if !state.CooldownUntil.IsZero() && now.Before(state.CooldownUntil) {
		return state.CooldownUntil.Sub(now)
	}
	return 0
}

// checkDiskSpaceForWrite verifies sufficient disk space before writes.
func (s *Store) checkDiskSpaceForWrite(dataSize int) error {
	info, err := s.CheckDiskSpace()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to check disk space: %v\n", err)
		return nil
	}

	required := uint64(MinDiskSpaceBytes)
	if uint64(dataSize*2) > required {
		required = uint64(dataSize * 2)
	}
	if info.Available < required {
		return fmt.Errorf("%w: only %d MB available, need at least %d MB",
			ErrInsufficientDisk, info.Available/(1024*1024), required/(1024*1024))
	}
	if info.UsedPct >= DiskWarningPercent {
		fmt.Fprintf(os.Stderr, "warning: disk is %d%% full, consider freeing space\n", info.UsedPct)
	}
	return nil
}

// DiskSpaceInfo contains disk usage information.
type DiskSpaceInfo struct {
	Total     uint64 `json:"total"`
	Free      uint64 `json:"free"`
	Available uint64 `json:"available"`
	UsedPct   int    `json:"used_pct"`
}
