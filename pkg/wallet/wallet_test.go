package wallet

import (
	"bytes"
	"errors"
	"testing"

	"github.com/pil-lang/pilvault/pkg/phrase"
	"github.com/pil-lang/pilvault/pkg/vocab"
)

func testRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	return NewRegistry(vocab.New(), opts...)
}

func testWallet(t *testing.T, opts ...Option) (*Registry, *Wallet) {
	t.Helper()
	r := testRegistry(t, opts...)
	w, err := r.CreateWallet(phrase.Intent{"purpose": "testing", "mood": "calm"})
	if err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}
	return r, w
}

func TestAuthenticatePhraseOnly(t *testing.T) {
	_, w := testWallet(t)

	result := w.Authenticate(AuthFactors{Phrase: w.Phrase()})
	if !result.OK {
		t.Fatalf("expected success with correct phrase and no biometrics, got %q", result.Message)
	}
	if result.Required != 1 {
		t.Errorf("expected required strength 1 with no enrolled biometrics, got %d", result.Required)
	}
	if result.Strength < result.Required {
		t.Errorf("passed phrase gate must satisfy the minimum on an empty profile, got %d/%d",
			result.Strength, result.Required)
	}
}

func TestAuthenticateWrongPhrase(t *testing.T) {
	_, w := testWallet(t)

	wrong := w.Phrase()
	wrong[0] = "nonexistent"
	result := w.Authenticate(AuthFactors{Phrase: wrong})
	if result.OK {
		t.Fatal("expected failure with wrong phrase")
	}
	if result.Message != "invalid phrase" {
		t.Errorf("unexpected message: %q", result.Message)
	}

	log := w.AccessLog()
	if len(log) != 1 {
		t.Fatalf("expected 1 access log entry, got %d", len(log))
	}
	if log[0].Outcome != OutcomeFailed {
		t.Errorf("expected failed outcome, got %q", log[0].Outcome)
	}
	if len(log[0].Reasons) != 1 || log[0].Reasons[0] != ReasonInvalidPhrase {
		t.Errorf("unexpected reasons: %v", log[0].Reasons)
	}
}

func TestAuthenticatePhraseNeverCountsTowardStrength(t *testing.T) {
	// With voice enrolled the minimum rises to 2, and voice alone is worth
	// only 1, so a correct phrase plus a verified voice sample still falls
	// short. The phrase is a gate, not a strength contributor.
	_, w := testWallet(t)

	voice := []byte("my voice is my passport")
	if err := w.EnrollBiometric(KindVoice, voice); err != nil {
		t.Fatalf("EnrollBiometric failed: %v", err)
	}

	result := w.Authenticate(AuthFactors{Phrase: w.Phrase(), Voice: voice})
	if result.OK {
		t.Fatal("expected failure: voice alone cannot reach the enrolled minimum")
	}
	if result.Strength != 1 || result.Required != 2 {
		t.Errorf("expected strength 1/2, got %d/%d", result.Strength, result.Required)
	}
	if result.Message != "insufficient authentication strength: 1/2" {
		t.Errorf("unexpected message: %q", result.Message)
	}
}

func TestAuthenticateRetinaMeetsMinimum(t *testing.T) {
	_, w := testWallet(t)

	retina := []byte("retina-scan-sample")
	if err := w.EnrollBiometric(KindRetina, retina); err != nil {
		t.Fatalf("EnrollBiometric failed: %v", err)
	}

	result := w.Authenticate(AuthFactors{Phrase: w.Phrase(), Retina: retina})
	if !result.OK {
		t.Fatalf("expected success with verified retina, got %q", result.Message)
	}
	if result.Strength != 2 || result.Required != 2 {
		t.Errorf("expected strength 2/2, got %d/%d", result.Strength, result.Required)
	}
	if len(result.Reasons) != 1 || result.Reasons[0] != ReasonRetinaVerified {
		t.Errorf("unexpected reasons: %v", result.Reasons)
	}
}

func TestAuthenticateVoiceAndRetina(t *testing.T) {
	_, w := testWallet(t)

	voice := []byte("voice-sample")
	retina := []byte("retina-sample")
	if err := w.EnrollBiometric(KindVoice, voice); err != nil {
		t.Fatal(err)
	}
	if err := w.EnrollBiometric(KindRetina, retina); err != nil {
		t.Fatal(err)
	}

	result := w.Authenticate(AuthFactors{Phrase: w.Phrase(), Voice: voice, Retina: retina})
	if !result.OK {
		t.Fatalf("expected success, got %q", result.Message)
	}
	if result.Strength != 3 {
		t.Errorf("expected strength 3, got %d", result.Strength)
	}
}

func TestAuthenticateFailedFactorContributesNothing(t *testing.T) {
	_, w := testWallet(t)

	if err := w.EnrollBiometric(KindRetina, []byte("real-retina")); err != nil {
		t.Fatal(err)
	}

	result := w.Authenticate(AuthFactors{Phrase: w.Phrase(), Retina: []byte("fake-retina")})
	if result.OK {
		t.Fatal("expected failure with non-matching retina sample")
	}
	if result.Strength != 0 {
		t.Errorf("failed factor must contribute 0, got strength %d", result.Strength)
	}
	if len(result.Reasons) != 1 || result.Reasons[0] != ReasonRetinaFailed {
		t.Errorf("unexpected reasons: %v", result.Reasons)
	}
}

func TestAuthenticateUnenrolledFactorFails(t *testing.T) {
	_, w := testWallet(t)

	if w.AuthenticateVoice([]byte("sample")) {
		t.Error("voice verification must fail when voice was never enrolled")
	}
	if w.AuthenticateRetina([]byte("sample")) {
		t.Error("retina verification must fail when retina was never enrolled")
	}
}

func TestEnrollBiometricOverwrites(t *testing.T) {
	_, w := testWallet(t)

	if err := w.EnrollBiometric(KindVoice, []byte("old-voice")); err != nil {
		t.Fatal(err)
	}
	if err := w.EnrollBiometric(KindVoice, []byte("new-voice")); err != nil {
		t.Fatal(err)
	}

	if w.AuthenticateVoice([]byte("old-voice")) {
		t.Error("old sample must no longer verify after re-enrollment")
	}
	if !w.AuthenticateVoice([]byte("new-voice")) {
		t.Error("new sample must verify after re-enrollment")
	}
	if got := w.Profile().Strength(); got != 1 {
		t.Errorf("re-enrollment must not raise strength: got %d, want 1", got)
	}
}

func TestEnrollBiometricUnknownKind(t *testing.T) {
	_, w := testWallet(t)

	err := w.EnrollBiometric(BiometricKind("gait"), []byte("sample"))
	if !errors.Is(err, ErrUnknownBiometricKind) {
		t.Errorf("expected ErrUnknownBiometricKind, got %v", err)
	}
}

func TestParseBiometricKind(t *testing.T) {
	for _, valid := range []string{"voice", "retina", "fingerprint", "face"} {
		if _, err := ParseBiometricKind(valid); err != nil {
			t.Errorf("ParseBiometricKind(%q) failed: %v", valid, err)
		}
	}
	if _, err := ParseBiometricKind("gait"); !errors.Is(err, ErrUnknownBiometricKind) {
		t.Errorf("expected ErrUnknownBiometricKind, got %v", err)
	}
}

func TestProfileStrength(t *testing.T) {
	tests := []struct {
		name    string
		profile BiometricProfile
		want    int
	}{
		{"empty", BiometricProfile{}, 0},
		{"voice", BiometricProfile{Voice: []byte("v")}, 1},
		{"retina", BiometricProfile{Retina: []byte("r")}, 2},
		{"voice and retina", BiometricProfile{Voice: []byte("v"), Retina: []byte("r")}, 3},
		{"all four", BiometricProfile{
			Voice: []byte("v"), Retina: []byte("r"),
			Fingerprint: []byte("f"), Face: []byte("fa"),
		}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.profile.Strength(); got != tt.want {
				t.Errorf("Strength() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStoreAndRetrieveData(t *testing.T) {
	_, w := testWallet(t)

	data := []byte("secret payload")
	if err := w.StoreData("api-key", data, true); err != nil {
		t.Fatalf("StoreData failed: %v", err)
	}

	got, err := w.RetrieveData("api-key", true)
	if err != nil {
		t.Fatalf("RetrieveData failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("retrieved %q, want %q", got, data)
	}

	// Stored form must not be the plaintext.
	for _, blob := range w.Blobs() {
		if bytes.Equal(blob, data) {
			t.Error("stored blob equals plaintext")
		}
	}
}

func TestStoreDataRequiresAuthentication(t *testing.T) {
	_, w := testWallet(t)

	if err := w.StoreData("k", []byte("v"), false); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
	if _, err := w.RetrieveData("k", false); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestRetrieveDataUnknownKey(t *testing.T) {
	_, w := testWallet(t)

	if _, err := w.RetrieveData("missing", true); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestStoreDataOverwrite(t *testing.T) {
	_, w := testWallet(t)

	if err := w.StoreData("k", []byte("first"), true); err != nil {
		t.Fatal(err)
	}
	if err := w.StoreData("k", []byte("second"), true); err != nil {
		t.Fatal(err)
	}
	got, err := w.RetrieveData("k", true)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("retrieved %q, want %q", got, "second")
	}
}

func TestSecurityStatus(t *testing.T) {
	_, w := testWallet(t)

	if err := w.EnrollBiometric(KindRetina, []byte("retina")); err != nil {
		t.Fatal(err)
	}
	if err := w.StoreData("k", []byte("v"), true); err != nil {
		t.Fatal(err)
	}
	w.Authenticate(AuthFactors{Phrase: w.Phrase(), Retina: []byte("retina")})

	status := w.SecurityStatus()
	if status.WalletID != w.ID() {
		t.Errorf("wallet id mismatch: %q vs %q", status.WalletID, w.ID())
	}
	if status.PhraseLength != phrase.GeneratedLength {
		t.Errorf("phrase length = %d, want %d", status.PhraseLength, phrase.GeneratedLength)
	}
	if status.BiometricStrength != 2 {
		t.Errorf("biometric strength = %d, want 2", status.BiometricStrength)
	}
	if status.StoredItems != 1 {
		t.Errorf("stored items = %d, want 1", status.StoredItems)
	}
	if status.LastAccess == nil || status.LastAccess.Outcome != OutcomeSuccessful {
		t.Errorf("unexpected last access: %+v", status.LastAccess)
	}
	if status.Verifier == "" {
		t.Error("verifier must not be empty")
	}
}

func TestAccessLogRecordsEveryAttempt(t *testing.T) {
	_, w := testWallet(t)

	w.Authenticate(AuthFactors{Phrase: w.Phrase()})
	w.Authenticate(AuthFactors{Phrase: []string{"wrong"}})
	w.Authenticate(AuthFactors{Phrase: w.Phrase()})

	log := w.AccessLog()
	if len(log) != 3 {
		t.Fatalf("expected 3 access log entries, got %d", len(log))
	}
	for i := 1; i < len(log); i++ {
		if log[i].Time.Before(log[i-1].Time) {
			t.Errorf("access log times not monotonic at entry %d", i)
		}
	}
	wantOutcomes := []string{OutcomeSuccessful, OutcomeFailed, OutcomeSuccessful}
	for i, want := range wantOutcomes {
		if log[i].Outcome != want {
			t.Errorf("entry %d outcome = %q, want %q", i, log[i].Outcome, want)
		}
	}
}

func TestPhraseReturnsCopy(t *testing.T) {
	_, w := testWallet(t)

	p := w.Phrase()
	p[0] = "mutated"
	result := w.Authenticate(AuthFactors{Phrase: w.Phrase()})
	if !result.OK {
		t.Error("mutating a returned phrase copy must not affect the wallet")
	}
}
