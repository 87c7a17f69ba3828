package security

import (
	"testing"

	"github.com/pil-lang/pilvault/pkg/phrase"
	"github.com/pil-lang/pilvault/pkg/vocab"
	"github.com/pil-lang/pilvault/pkg/wallet"
)

func TestCalculateScoreEmptyRegistry(t *testing.T) {
	registry := wallet.NewRegistry(vocab.New())

	score, err := NewCalculator(registry).CalculateScore(true)
	if err != nil {
		t.Fatal(err)
	}
	if score.Overall != 100 {
		t.Errorf("empty registry Overall = %d, want 100", score.Overall)
	}
	if len(score.Issues) != 0 {
		t.Errorf("empty registry must have no issues, got %d", len(score.Issues))
	}
}

func TestCalculateScoreFlagsPhraseOnlyWallet(t *testing.T) {
	registry := wallet.NewRegistry(vocab.New())
	w, err := registry.CreateWallet(phrase.Intent{"purpose": "bare"})
	if err != nil {
		t.Fatal(err)
	}

	score, err := NewCalculator(registry).CalculateScore(true)
	if err != nil {
		t.Fatal(err)
	}

	if score.Components.BiometricScore != 0 {
		t.Errorf("BiometricScore = %d, want 0", score.Components.BiometricScore)
	}
	if score.Components.CoverageScore != 0 {
		t.Errorf("CoverageScore = %d, want 0", score.Components.CoverageScore)
	}
	// Generated phrases hold 132 bits
	if score.Components.PhraseScore != 25 {
		t.Errorf("PhraseScore = %d, want 25", score.Components.PhraseScore)
	}

	found := false
	for _, issue := range score.Issues {
		if issue.Type == IssueNoBiometric && issue.WalletID == w.ID() {
			found = true
			if issue.Severity != SeverityWarning {
				t.Errorf("IssueNoBiometric severity = %s, want warning", issue.Severity)
			}
		}
	}
	if !found {
		t.Error("expected IssueNoBiometric for phrase-only wallet")
	}
	if len(score.Suggestions) == 0 {
		t.Error("expected a suggestion for phrase-only wallet")
	}
}

func TestCalculateScoreWeakBiometric(t *testing.T) {
	registry := wallet.NewRegistry(vocab.New())
	w, err := registry.CreateWallet(phrase.Intent{"purpose": "voice-only"})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.EnrollBiometric(wallet.KindVoice, []byte("voice-sample")); err != nil {
		t.Fatal(err)
	}

	score, err := NewCalculator(registry).CalculateScore(true)
	if err != nil {
		t.Fatal(err)
	}

	// Voice alone contributes 1 of 5 points: 25*1/5 = 5
	if score.Components.BiometricScore != 5 {
		t.Errorf("BiometricScore = %d, want 5", score.Components.BiometricScore)
	}
	if score.Components.CoverageScore != 25 {
		t.Errorf("CoverageScore = %d, want 25", score.Components.CoverageScore)
	}

	found := false
	for _, issue := range score.Issues {
		if issue.Type == IssueWeakBiometric {
			found = true
		}
	}
	if !found {
		t.Error("expected IssueWeakBiometric for voice-only wallet")
	}
}

func TestCalculateScoreRepeatedFailures(t *testing.T) {
	registry := wallet.NewRegistry(vocab.New())
	w, err := registry.CreateWallet(phrase.Intent{"purpose": "attacked"})
	if err != nil {
		t.Fatal(err)
	}

	wrong := make([]string, len(w.Phrase()))
	for i := range wrong {
		wrong[i] = "wrong"
	}
	for i := 0; i < 3; i++ {
		w.Authenticate(wallet.AuthFactors{Phrase: wrong})
	}

	score, err := NewCalculator(registry).CalculateScore(true)
	if err != nil {
		t.Fatal(err)
	}

	if score.Components.ActivityScore != 0 {
		t.Errorf("ActivityScore = %d, want 0 after only failures", score.Components.ActivityScore)
	}

	found := false
	for _, issue := range score.Issues {
		if issue.Type == IssueFailedAttempts {
			found = true
			if issue.Severity != SeverityCritical {
				t.Errorf("IssueFailedAttempts severity = %s, want critical", issue.Severity)
			}
		}
	}
	if !found {
		t.Error("expected IssueFailedAttempts after repeated failures")
	}
}

func TestCalculateScoreOmitsWalletIDs(t *testing.T) {
	registry := wallet.NewRegistry(vocab.New())
	if _, err := registry.CreateWallet(phrase.Intent{"purpose": "private"}); err != nil {
		t.Fatal(err)
	}

	score, err := NewCalculator(registry).CalculateScore(false)
	if err != nil {
		t.Fatal(err)
	}
	for _, issue := range score.Issues {
		if issue.WalletID != "" {
			t.Errorf("issue %s carries wallet id with includeIDs=false", issue.Type)
		}
	}
}
