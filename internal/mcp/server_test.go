package mcp

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pil-lang/pilvault/pkg/audit"
	"github.com/pil-lang/pilvault/pkg/store"
	"github.com/pil-lang/pilvault/pkg/vocab"
	"github.com/pil-lang/pilvault/pkg/wallet"
)

const testPassword = "test-master-password"

// newTestServer builds a Server over a fresh unlocked store without going
// through NewServer, so tests control the policy directly.
func newTestServer(t *testing.T, policy *Policy) *Server {
	t.Helper()

	storePath := filepath.Join(t.TempDir(), "pilvault")
	st := store.New(storePath)
	if err := st.Init(testPassword); err != nil {
		t.Fatalf("store init failed: %v", err)
	}
	if err := st.Unlock(testPassword); err != nil {
		t.Fatalf("store unlock failed: %v", err)
	}
	t.Cleanup(st.Lock)

	v := vocab.New()
	registry, err := st.LoadRegistry(v, wallet.WithAudit(st.Audit(), audit.SourceMCP))
	if err != nil {
		t.Fatalf("load registry failed: %v", err)
	}

	return &Server{
		store:     st,
		registry:  registry,
		vocab:     v,
		storePath: storePath,
		policy:    policy,
		authSem:   make(chan struct{}, maxConcurrentAuth),
	}
}

func allowAllPolicy() *Policy {
	return &Policy{Version: 1, DefaultAction: ActionAllow, AllowReveal: true}
}

func TestPhraseGenerateTool(t *testing.T) {
	s := newTestServer(t, allowAllPolicy())

	input := PhraseGenerateInput{
		Domain: "emotion",
		Intent: map[string]string{"purpose": "greeting"},
	}
	_, out1, err := s.handlePhraseGenerate(context.Background(), nil, input)
	if err != nil {
		t.Fatalf("phrase_generate failed: %v", err)
	}
	if len(out1.Tokens) != 12 {
		t.Errorf("got %d tokens, want 12", len(out1.Tokens))
	}

	_, out2, err := s.handlePhraseGenerate(context.Background(), nil, input)
	if err != nil {
		t.Fatal(err)
	}
	for i := range out1.Tokens {
		if out1.Tokens[i] != out2.Tokens[i] {
			t.Fatalf("phrase not deterministic at token %d", i)
		}
	}

	input.Domain = "telepathy"
	if _, _, err := s.handlePhraseGenerate(context.Background(), nil, input); err == nil {
		t.Error("expected error for unknown domain")
	}
}

func TestWalletLifecycleOverMCP(t *testing.T) {
	s := newTestServer(t, allowAllPolicy())

	_, created, err := s.handleWalletCreate(context.Background(), nil, WalletCreateInput{
		Intent: map[string]string{"purpose": "integration"},
	})
	if err != nil {
		t.Fatalf("wallet_create failed: %v", err)
	}
	if created.WalletID == "" || created.PhraseLength != 12 {
		t.Fatalf("unexpected create output: %+v", created)
	}

	// The phrase never crosses MCP; fetch it from the registry directly.
	w, err := s.registry.Wallet(created.WalletID)
	if err != nil {
		t.Fatal(err)
	}
	tokens := w.Phrase()

	_, authOut, err := s.handleWalletAuthenticate(context.Background(), nil, AuthInput{
		WalletID: created.WalletID,
		Phrase:   tokens,
	})
	if err != nil {
		t.Fatalf("wallet_authenticate failed: %v", err)
	}
	if !authOut.OK {
		t.Fatalf("authentication failed: %s", authOut.Message)
	}

	_, storeOut, err := s.handleWalletStore(context.Background(), nil, WalletStoreInput{
		AuthInput: AuthInput{WalletID: created.WalletID, Phrase: tokens},
		Key:       "api-key",
		Value:     "sk-proj-1234567890abcdef",
	})
	if err != nil {
		t.Fatalf("wallet_store failed: %v", err)
	}
	if !storeOut.Stored {
		t.Fatal("wallet_store did not store")
	}

	_, masked, err := s.handleWalletRetrieve(context.Background(), nil, WalletRetrieveInput{
		AuthInput: AuthInput{WalletID: created.WalletID, Phrase: tokens},
		Key:       "api-key",
	})
	if err != nil {
		t.Fatalf("wallet_retrieve failed: %v", err)
	}
	if masked.Revealed || masked.Value != "" {
		t.Error("value must not be revealed without reveal flag")
	}
	if !strings.HasSuffix(masked.MaskedValue, "cdef") || !strings.HasPrefix(masked.MaskedValue, "*") {
		t.Errorf("unexpected masked value %q", masked.MaskedValue)
	}

	_, revealed, err := s.handleWalletRetrieve(context.Background(), nil, WalletRetrieveInput{
		AuthInput: AuthInput{WalletID: created.WalletID, Phrase: tokens},
		Key:       "api-key",
		Reveal:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !revealed.Revealed || revealed.Value != "sk-proj-1234567890abcdef" {
		t.Errorf("expected revealed plaintext, got %+v", revealed)
	}

	_, status, err := s.handleWalletStatus(context.Background(), nil, WalletStatusInput{WalletID: created.WalletID})
	if err != nil {
		t.Fatalf("wallet_status failed: %v", err)
	}
	if status.StoredItems != 1 || status.BiometricStrength != 0 {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestWalletStoreRejectsBadPhrase(t *testing.T) {
	s := newTestServer(t, allowAllPolicy())

	_, created, err := s.handleWalletCreate(context.Background(), nil, WalletCreateInput{
		Intent: map[string]string{"purpose": "guarded"},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, _, err = s.handleWalletStore(context.Background(), nil, WalletStoreInput{
		AuthInput: AuthInput{WalletID: created.WalletID, Phrase: []string{"wrong", "phrase"}},
		Key:       "k",
		Value:     "v",
	})
	if err == nil || !strings.Contains(err.Error(), "authentication failed") {
		t.Errorf("expected authentication failure, got %v", err)
	}
}

func TestRevealRequiresPolicy(t *testing.T) {
	policy := allowAllPolicy()
	policy.AllowReveal = false
	s := newTestServer(t, policy)

	_, created, err := s.handleWalletCreate(context.Background(), nil, WalletCreateInput{
		Intent: map[string]string{"purpose": "masked"},
	})
	if err != nil {
		t.Fatal(err)
	}
	w, err := s.registry.Wallet(created.WalletID)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.handleWalletStore(context.Background(), nil, WalletStoreInput{
		AuthInput: AuthInput{WalletID: created.WalletID, Phrase: w.Phrase()},
		Key:       "k",
		Value:     "super-secret",
	}); err != nil {
		t.Fatal(err)
	}

	_, out, err := s.handleWalletRetrieve(context.Background(), nil, WalletRetrieveInput{
		AuthInput: AuthInput{WalletID: created.WalletID, Phrase: w.Phrase()},
		Key:       "k",
		Reveal:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Revealed || out.Value != "" {
		t.Error("reveal must be refused when policy disallows it")
	}
	if out.MaskedValue == "" {
		t.Error("expected masked value")
	}
}

func TestNilPolicyDeniesEverything(t *testing.T) {
	s := newTestServer(t, nil)

	if _, _, err := s.handleWalletStatus(context.Background(), nil, WalletStatusInput{WalletID: "x"}); err == nil {
		t.Error("expected denial with no policy loaded")
	}
}
