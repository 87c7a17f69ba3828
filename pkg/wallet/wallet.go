// Package wallet implements the credential store: a wallet binds a secret
// phrase, an optional biometric profile, a derived keypair, an encrypted
// blob store, and an append-only access log. A Registry owns all wallets and
// is their sole creator.
//
// Authentication is multi-factor: the supplied phrase must always equal the
// wallet's phrase exactly, and verified biometric factors contribute to an
// integer strength score (voice +1, retina +2) that must meet a minimum of 1
// for wallets with no enrolled biometrics, else 2. The phrase gate and the
// strength score are separate: a matching phrase never adds to the score.
package wallet

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pil-lang/pilvault/pkg/audit"
	"github.com/pil-lang/pilvault/pkg/crypto"
)

// Sentinel errors returned by wallet operations.
var (
	// ErrUnknownBiometricKind indicates a biometric kind outside
	// voice/retina/fingerprint/face.
	ErrUnknownBiometricKind = errors.New("wallet: unknown biometric kind")

	// ErrNotAuthenticated indicates a store or retrieve attempt without a
	// successful authentication result.
	ErrNotAuthenticated = errors.New("wallet: caller is not authenticated")

	// ErrKeyNotFound indicates no blob stored under the requested key.
	ErrKeyNotFound = errors.New("wallet: no data stored under key")

	// ErrWalletNotFound indicates an unknown wallet identifier.
	ErrWalletNotFound = errors.New("wallet: wallet not found")
)

// BiometricKind identifies one of the supported biometric factors.
type BiometricKind string

// The supported biometric kinds.
const (
	KindVoice       BiometricKind = "voice"
	KindRetina      BiometricKind = "retina"
	KindFingerprint BiometricKind = "fingerprint"
	KindFace        BiometricKind = "face"
)

// ParseBiometricKind converts a kind tag to a BiometricKind.
func ParseBiometricKind(s string) (BiometricKind, error) {
	switch BiometricKind(s) {
	case KindVoice, KindRetina, KindFingerprint, KindFace:
		return BiometricKind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBiometricKind, s)
}

// BiometricProfile holds the enrolled biometric templates. Absent factors
// are nil. Retina contributes more to profile strength, reflecting its
// higher assumed assurance level.
type BiometricProfile struct {
	Voice       []byte
	Retina      []byte
	Fingerprint []byte
	Face        []byte
}

// Strength returns the profile's authentication strength: +1 for each of
// voice, fingerprint, and face, +2 for retina.
func (p BiometricProfile) Strength() int {
	strength := 0
	if p.Voice != nil {
		strength++
	}
	if p.Retina != nil {
		strength += 2
	}
	if p.Fingerprint != nil {
		strength++
	}
	if p.Face != nil {
		strength++
	}
	return strength
}

// clone returns a deep copy of the profile.
func (p *BiometricProfile) clone() BiometricProfile {
	cp := func(b []byte) []byte {
		if b == nil {
			return nil
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out
	}
	return BiometricProfile{
		Voice:       cp(p.Voice),
		Retina:      cp(p.Retina),
		Fingerprint: cp(p.Fingerprint),
		Face:        cp(p.Face),
	}
}

// Access-log outcomes and per-factor reasons.
const (
	OutcomeSuccessful = "successful"
	OutcomeFailed     = "failed"

	ReasonInvalidPhrase  = "invalid phrase"
	ReasonVoiceVerified  = "voice verified"
	ReasonVoiceFailed    = "voice failed"
	ReasonRetinaVerified = "retina verified"
	ReasonRetinaFailed   = "retina failed"
)

// AccessEntry is one record in a wallet's append-only access log.
type AccessEntry struct {
	Time    time.Time `json:"time"`
	Outcome string    `json:"outcome"`
	Reasons []string  `json:"reasons,omitempty"`
}

// AuthFactors carries the factors supplied for one authentication attempt.
// Nil byte slices mean the factor was not supplied.
type AuthFactors struct {
	Phrase []string
	Voice  []byte
	Retina []byte
}

// Result is the structured outcome of an authentication attempt. Failed
// authentication is an expected, frequent outcome and is therefore a value,
// not an error.
type Result struct {
	OK       bool
	Message  string
	Reasons  []string
	Strength int
	Required int
}

// Wallet is the authenticated container. All exported methods are safe for
// concurrent use; attempts on the same wallet are serialized so the access
// log stays consistent.
type Wallet struct {
	mu      sync.Mutex
	id      string
	phrase  []string
	profile BiometricProfile
	keys    crypto.KeyPair

	cipher  Cipher
	matcher BiometricMatcher

	blobs     map[string][]byte
	accessLog []AccessEntry

	auditLog    *audit.Logger
	auditSource string
}

// ID returns the wallet's content-derived identifier.
func (w *Wallet) ID() string {
	return w.id
}

// Phrase returns a copy of the wallet's phrase. Callers own the copy and
// should wipe it when done displaying it.
func (w *Wallet) Phrase() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.phrase))
	copy(out, w.phrase)
	return out
}

// Verifier returns a copy of the wallet's public verifier material.
func (w *Wallet) Verifier() []byte {
	out := make([]byte, len(w.keys.Public))
	copy(out, w.keys.Public)
	return out
}

// Profile returns a copy of the wallet's biometric profile.
func (w *Wallet) Profile() BiometricProfile {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.profile.clone()
}

// Blobs returns a copy of the stored ciphertexts keyed by blob key. The
// values are ciphertext under the wallet's cipher, never plaintext.
func (w *Wallet) Blobs() map[string][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string][]byte, len(w.blobs))
	for k, v := range w.blobs {
		b := make([]byte, len(v))
		copy(b, v)
		out[k] = b
	}
	return out
}

// AccessLog returns a copy of the wallet's access log, oldest first.
func (w *Wallet) AccessLog() []AccessEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]AccessEntry, len(w.accessLog))
	copy(out, w.accessLog)
	return out
}

// EnrollBiometric derives a template from the sample and stores it under the
// given kind, replacing any prior template for that kind.
func (w *Wallet) EnrollBiometric(kind BiometricKind, sample []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	template := w.matcher.Enroll(sample)
	switch kind {
	case KindVoice:
		w.profile.Voice = template
	case KindRetina:
		w.profile.Retina = template
	case KindFingerprint:
		w.profile.Fingerprint = template
	case KindFace:
		w.profile.Face = template
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBiometricKind, string(kind))
	}

	if w.auditLog != nil {
		_ = w.auditLog.LogSuccess(audit.OpBiometricEnroll, w.auditSource, w.id, string(kind))
	}
	return nil
}

// AuthenticateVoice verifies a voice sample against the enrolled template.
// Returns false if voice was never enrolled.
func (w *Wallet) AuthenticateVoice(sample []byte) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.verifyVoiceLocked(sample)
}

// AuthenticateRetina verifies a retina sample against the enrolled template.
// Returns false if retina was never enrolled.
func (w *Wallet) AuthenticateRetina(sample []byte) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.verifyRetinaLocked(sample)
}

func (w *Wallet) verifyVoiceLocked(sample []byte) bool {
	if w.profile.Voice == nil {
		return false
	}
	return w.matcher.Verify(sample, w.profile.Voice)
}

func (w *Wallet) verifyRetinaLocked(sample []byte) bool {
	if w.profile.Retina == nil {
		return false
	}
	return w.matcher.Verify(sample, w.profile.Retina)
}

// Authenticate runs the multi-factor decision procedure. The supplied phrase
// must equal the wallet's phrase exactly; verified biometric factors then
// contribute to the strength score (voice +1, retina +2). The required
// minimum is 1 when no biometric is enrolled, else 2. Once any biometric is
// enrolled the phrase no longer adds to the numeric score, so a wallet with
// only voice enrolled cannot reach the minimum with voice alone; see
// Registry documentation before changing that policy. With an empty profile
// the passed phrase gate satisfies the minimum by itself.
//
// Every attempt, including phrase-gate failures, is appended to the access
// log.
func (w *Wallet) Authenticate(f AuthFactors) Result {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !phraseEqual(f.Phrase, w.phrase) {
		reasons := []string{ReasonInvalidPhrase}
		w.logAccessLocked(OutcomeFailed, reasons)
		if w.auditLog != nil {
			_ = w.auditLog.LogError(audit.OpWalletAuthFail, w.auditSource, w.id,
				"INVALID_PHRASE", "supplied phrase does not match", reasons...)
		}
		return Result{OK: false, Message: "invalid phrase", Reasons: reasons}
	}

	strength := 0
	var reasons []string

	if f.Voice != nil {
		if w.verifyVoiceLocked(f.Voice) {
			strength++
			reasons = append(reasons, ReasonVoiceVerified)
		} else {
			reasons = append(reasons, ReasonVoiceFailed)
		}
	}
	if f.Retina != nil {
		if w.verifyRetinaLocked(f.Retina) {
			strength += 2
			reasons = append(reasons, ReasonRetinaVerified)
		} else {
			reasons = append(reasons, ReasonRetinaFailed)
		}
	}

	required := 1
	if w.profile.Strength() > 0 {
		required = 2
	} else {
		// Nothing enrolled: the phrase gate is the only available factor,
		// and passing it satisfies the minimum on its own.
		strength++
	}

	result := Result{Reasons: reasons, Strength: strength, Required: required}
	if strength >= required {
		result.OK = true
		result.Message = fmt.Sprintf("authenticated (%s)", joinReasons(reasons))
		w.logAccessLocked(OutcomeSuccessful, reasons)
		if w.auditLog != nil {
			_ = w.auditLog.LogSuccess(audit.OpWalletAuth, w.auditSource, w.id, reasons...)
		}
	} else {
		result.Message = fmt.Sprintf("insufficient authentication strength: %d/%d", strength, required)
		w.logAccessLocked(OutcomeFailed, reasons)
		if w.auditLog != nil {
			_ = w.auditLog.LogError(audit.OpWalletAuthFail, w.auditSource, w.id,
				"INSUFFICIENT_STRENGTH", result.Message, reasons...)
		}
	}
	return result
}

// StoreData encrypts data with the wallet's cipher and keeps it under key.
// The caller is trusted to have run Authenticate and to pass its outcome in
// authenticated; a false value makes this a failing no-op.
func (w *Wallet) StoreData(key string, data []byte, authenticated bool) error {
	if !authenticated {
		return ErrNotAuthenticated
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	ciphertext, err := w.cipher.Encrypt(data, w.keys.Private)
	if err != nil {
		return fmt.Errorf("wallet: failed to encrypt data: %w", err)
	}
	w.blobs[key] = ciphertext

	if w.auditLog != nil {
		_ = w.auditLog.LogSuccess(audit.OpDataStore, w.auditSource, w.id)
	}
	return nil
}

// RetrieveData decrypts and returns the blob stored under key.
func (w *Wallet) RetrieveData(key string, authenticated bool) ([]byte, error) {
	if !authenticated {
		return nil, ErrNotAuthenticated
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	ciphertext, ok := w.blobs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	plaintext, err := w.cipher.Decrypt(ciphertext, w.keys.Private)
	if err != nil {
		return nil, fmt.Errorf("wallet: failed to decrypt data: %w", err)
	}

	if w.auditLog != nil {
		_ = w.auditLog.LogSuccess(audit.OpDataRetrieve, w.auditSource, w.id)
	}
	return plaintext, nil
}

// Status is a snapshot of a wallet's security posture.
type Status struct {
	WalletID          string       `json:"wallet_id"`
	PhraseLength      int          `json:"phrase_length"`
	BiometricStrength int          `json:"biometric_strength"`
	StoredItems       int          `json:"stored_items"`
	LastAccess        *AccessEntry `json:"last_access,omitempty"`
	Verifier          string       `json:"verifier"`
}

// SecurityStatus returns a snapshot of the wallet's state. The verifier is
// truncated for display; it is public material but there is no reason to
// print all of it.
func (w *Wallet) SecurityStatus() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	status := Status{
		WalletID:          w.id,
		PhraseLength:      len(w.phrase),
		BiometricStrength: w.profile.Strength(),
		StoredItems:       len(w.blobs),
		Verifier:          truncatedHex(w.keys.Public, 16),
	}
	if n := len(w.accessLog); n > 0 {
		last := w.accessLog[n-1]
		status.LastAccess = &last
	}
	return status
}

func (w *Wallet) logAccessLocked(outcome string, reasons []string) {
	w.accessLog = append(w.accessLog, AccessEntry{
		Time:    time.Now().UTC(),
		Outcome: outcome,
		Reasons: reasons,
	})
}

func phraseEqual(a, b []string) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func joinReasons(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += ", "
		}
		out += r
	}
	if out == "" {
		out = "phrase only"
	}
	return out
}

func truncatedHex(b []byte, n int) string {
	s := hex.EncodeToString(b)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
