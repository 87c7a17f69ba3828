// Package audit provides a tamper-evident trail of wallet operations.
//
// Events are appended as JSON lines to monthly files. Each record carries an
// HMAC over its significant fields plus the previous record's HMAC, forming a
// chain that Verify can walk to detect deletion, reordering, or edits. The
// HMAC key is derived from wallet key material with HKDF, so the trail can
// only be verified by someone holding the store's key.
package audit

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Operation types recorded in the trail.
const (
	OpWalletCreate    = "wallet.create"
	OpWalletAuth      = "wallet.auth"
	OpWalletAuthFail  = "wallet.auth_failed"
	OpBiometricEnroll = "biometric.enroll"
	OpDataStore       = "data.store"
	OpDataRetrieve    = "data.retrieve"
	OpStoreInit       = "store.init"
	OpStoreUnlock     = "store.unlock"
	OpStoreUnlockFail = "store.unlock_failed"
	OpStoreLock       = "store.lock"
)

// Source identifies where the operation originated.
const (
	SourceCLI = "cli"
	SourceMCP = "mcp"
	SourceAPI = "api"
)

// Result indicates the outcome of an operation.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultDenied  = "denied"
)

// Event is a single audit record.
type Event struct {
	Version   int    `json:"v"`
	ID        string `json:"id"`
	Timestamp string `json:"ts"` // RFC 3339 nanosecond precision

	Operation string `json:"op"`
	// WalletID is the HMAC of the wallet identifier, never the raw id.
	WalletID string `json:"wallet,omitempty"`

	Source    string `json:"source"`
	SessionID string `json:"session_id"`

	Result  string     `json:"result"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Reasons []string   `json:"reasons,omitempty"`

	Chain Chain `json:"chain"`
}

// ErrorInfo carries failure details for error records.
type ErrorInfo struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Chain links a record to its predecessor for tamper detection.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

// Logger appends audit events with an HMAC chain. Safe for concurrent use.
type Logger struct {
	path       string
	hmacKey    []byte
	mu         sync.Mutex
	sequence   int64
	prevHash   string
	sessionID  string
	hmacKeySet bool
}

// NewLogger creates an audit logger writing under path. SetHMACKey must be
// called with key material before any event can be recorded.
func NewLogger(path string) *Logger {
	return &Logger{
		path:      path,
		prevHash:  "genesis",
		sessionID: newSessionID(),
	}
}

// SetHMACKey derives the chain HMAC key from master key material via
// HKDF-SHA256 and loads any persisted chain state.
func (l *Logger) SetHMACKey(masterKey []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := hkdf.New(sha256.New, masterKey, nil, []byte("pilvault-audit-v1"))
	l.hmacKey = make([]byte, 32)
	if _, err := r.Read(l.hmacKey); err != nil {
		return fmt.Errorf("audit: failed to derive HMAC key: %w", err)
	}
	l.hmacKeySet = true

	if err := l.loadChainState(); err != nil {
		// First run, or state file missing: start a fresh chain.
		l.sequence = 0
		l.prevHash = "genesis"
	}
	return nil
}

// Log records an audit event.
func (l *Logger) Log(op, source, result, walletID string, errInfo *ErrorInfo, reasons []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hmacKeySet {
		return fmt.Errorf("audit: HMAC key not set")
	}

	if err := os.MkdirAll(l.path, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}

	event := Event{
		Version:   1,
		ID:        newEventID(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Operation: op,
		Source:    source,
		SessionID: l.sessionID,
		Result:    result,
		Error:     errInfo,
		Reasons:   reasons,
	}

	if walletID != "" {
		mac := hmac.New(sha256.New, l.hmacKey)
		mac.Write([]byte(walletID))
		event.WalletID = hex.EncodeToString(mac.Sum(nil))
	}

	l.sequence++
	event.Chain.Sequence = l.sequence
	event.Chain.PrevHash = l.prevHash

	mac := hmac.New(sha256.New, l.hmacKey)
	mac.Write(recordData(&event))
	event.Chain.HMAC = hex.EncodeToString(mac.Sum(nil))
	l.prevHash = event.Chain.HMAC

	if err := l.writeEvent(&event); err != nil {
		return err
	}
	return l.saveChainState()
}

// LogSuccess records a successful operation.
func (l *Logger) LogSuccess(op, source, walletID string, reasons ...string) error {
	return l.Log(op, source, ResultSuccess, walletID, nil, reasons)
}

// LogError records a failed operation.
func (l *Logger) LogError(op, source, walletID, code, msg string, reasons ...string) error {
	return l.Log(op, source, ResultError, walletID, &ErrorInfo{Code: code, Message: msg}, reasons)
}

// recordData serializes the fields covered by the record HMAC.
func recordData(event *Event) []byte {
	errorData := ""
	if event.Error != nil {
		errorData = fmt.Sprintf("%s|%s", event.Error.Code, event.Error.Message)
	}

	reasonData := ""
	for _, r := range event.Reasons {
		reasonData += r + "|"
	}

	data := fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%s|%s|%s|%d|%s",
		event.Version,
		event.ID,
		event.Timestamp,
		event.Operation,
		event.WalletID,
		event.Source,
		event.SessionID,
		event.Result,
		errorData,
		reasonData,
		event.Chain.Sequence,
		event.Chain.PrevHash,
	)
	return []byte(data)
}

// writeEvent appends an event to the current month's log file.
func (l *Logger) writeEvent(event *Event) error {
	name := time.Now().UTC().Format("2006-01") + ".jsonl"
	f, err := os.OpenFile(filepath.Join(l.path, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

// chainState is the persisted chain head.
type chainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(filepath.Join(l.path, "audit.meta"))
	if err != nil {
		return err
	}
	var state chainState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	l.sequence = state.Sequence
	l.prevHash = state.PrevHash
	return nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(chainState{Sequence: l.sequence, PrevHash: l.prevHash})
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.path, "audit.meta"), data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return nil
}

// VerifyResult reports the outcome of a chain verification pass.
type VerifyResult struct {
	Valid           bool     `json:"valid"`
	RecordsTotal    int      `json:"records_total"`
	RecordsVerified int      `json:"records_verified"`
	Errors          []string `json:"errors,omitempty"`
}

// Verify walks every record in chronological order, checking sequence
// continuity, chain linkage, and each record's HMAC.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hmacKeySet {
		return nil, fmt.Errorf("audit: HMAC key not set")
	}

	files, err := logFiles(l.path)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true}
	expectedPrev := "genesis"
	var expectedSeq int64 = 1

	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}
		for _, event := range events {
			result.RecordsTotal++

			if event.Chain.Sequence != expectedSeq {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"sequence gap at record %s: expected %d, got %d",
					event.ID, expectedSeq, event.Chain.Sequence))
			}
			if event.Chain.PrevHash != expectedPrev {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"chain broken at record %s: expected prev %s, got %s",
					event.ID, expectedPrev, event.Chain.PrevHash))
			}

			mac := hmac.New(sha256.New, l.hmacKey)
			mac.Write(recordData(&event))
			if event.Chain.HMAC != hex.EncodeToString(mac.Sum(nil)) {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf(
					"HMAC mismatch at record %s: possible tampering", event.ID))
			}

			expectedPrev = event.Chain.HMAC
			expectedSeq++
		}
	}

	result.RecordsVerified = result.RecordsTotal
	return result, nil
}

// ListEvents returns recorded events, newest within limit, optionally only
// those after since.
func (l *Logger) ListEvents(limit int, since time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	files, err := logFiles(l.path)
	if err != nil {
		return nil, err
	}

	var all []Event
	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}
		all = append(all, events...)
	}

	filtered := all
	if !since.IsZero() {
		filtered = filtered[:0:0]
		for _, event := range all {
			ts, err := time.Parse(time.RFC3339Nano, event.Timestamp)
			if err != nil {
				continue
			}
			if ts.After(since) {
				filtered = append(filtered, event)
			}
		}
	}

	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	return filtered, nil
}

// Path returns the audit log directory.
func (l *Logger) Path() string {
	return l.path
}

// logFiles lists the JSONL files in chronological order; the YYYY-MM naming
// makes lexical order chronological.
func logFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func readLogFile(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var events []Event
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			if i > start {
				var event Event
				if err := json.Unmarshal(data[start:i], &event); err != nil {
					return nil, fmt.Errorf("failed to parse line: %w", err)
				}
				events = append(events, event)
			}
			start = i + 1
		}
	}
	return events, nil
}

func newSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// newEventID returns a time-sortable unique identifier: 48 bits of millisecond
// timestamp followed by 80 random bits, hex encoded.
func newEventID() string {
	ts := time.Now().UnixMilli()
	id := make([]byte, 16)
	for i := 5; i >= 0; i-- {
		id[i] = byte(ts & 0xFF)
		ts >>= 8
	}
	if _, err := rand.Read(id[6:]); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(id)
}
