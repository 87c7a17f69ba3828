package store

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pil-lang/pilvault/pkg/phrase"
	"github.com/pil-lang/pilvault/pkg/vocab"
	"github.com/pil-lang/pilvault/pkg/wallet"
)

const testPassword = "correct-horse-battery"

func initStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "pilvault"))
	if err := s.Init(testPassword); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return s
}

func TestInitCreatesStoreFiles(t *testing.T) {
	s := initStore(t)

	for _, name := range []string{SaltFileName, MetaFileName, DBFileName} {
		path := filepath.Join(s.Path(), name)
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("expected %s to exist: %v", name, err)
		}
		if perm := info.Mode().Perm(); perm != FileMode {
			t.Errorf("%s has permissions %04o, want %04o", name, perm, FileMode)
		}
	}
	if !s.Exists() {
		t.Error("Exists() = false after Init")
	}
}

func TestInitTwiceFails(t *testing.T) {
	s := initStore(t)
	if err := s.Init(testPassword); !errors.Is(err, ErrStoreAlreadyExists) {
		t.Errorf("expected ErrStoreAlreadyExists, got %v", err)
	}
}

func TestUnlockLockCycle(t *testing.T) {
	s := initStore(t)

	if !s.IsLocked() {
		t.Fatal("store must be locked after Init")
	}
	if err := s.Unlock(testPassword); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if s.IsLocked() {
		t.Fatal("store must be unlocked after Unlock")
	}
	if err := s.Unlock(testPassword); !errors.Is(err, ErrStoreAlreadyUnlocked) {
		t.Errorf("expected ErrStoreAlreadyUnlocked, got %v", err)
	}

	s.Lock()
	if !s.IsLocked() {
		t.Error("store must be locked after Lock")
	}
}

func TestUnlockWrongPassword(t *testing.T) {
	s := initStore(t)

	if err := s.Unlock("wrong-password"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("expected ErrInvalidPassword, got %v", err)
	}
	if err := s.Unlock(testPassword); err != nil {
		t.Errorf("correct password must still unlock: %v", err)
	}
}

func TestUnlockMissingStore(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nothing-here"))
	if err := s.Unlock(testPassword); !errors.Is(err, ErrStoreNotFound) {
		t.Errorf("expected ErrStoreNotFound, got %v", err)
	}
}

func TestUnlockCooldownAfterRepeatedFailures(t *testing.T) {
	s := initStore(t)

	var lastErr error
	for i := 0; i < CooldownThreshold1; i++ {
		lastErr = s.Unlock("wrong-password")
	}
	if !errors.Is(lastErr, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts on attempt %d, got %v", CooldownThreshold1, lastErr)
	}

	if err := s.Unlock(testPassword); !errors.Is(err, ErrCooldownActive) {
		t.Errorf("expected ErrCooldownActive during cooldown, got %v", err)
	}
	if s.RemainingCooldown() <= 0 {
		t.Error("expected positive remaining cooldown")
	}
}

func TestOperationsRequireUnlock(t *testing.T) {
	s := initStore(t)

	if _, err := s.WalletIDs(); !errors.Is(err, ErrStoreLocked) {
		t.Errorf("WalletIDs: expected ErrStoreLocked, got %v", err)
	}
	if _, err := s.LoadRegistry(vocab.New()); !errors.Is(err, ErrStoreLocked) {
		t.Errorf("LoadRegistry: expected ErrStoreLocked, got %v", err)
	}
}

func TestSaveAndLoadRegistry(t *testing.T) {
	s := initStore(t)
	if err := s.Unlock(testPassword); err != nil {
		t.Fatal(err)
	}
	defer s.Lock()

	v := vocab.New()
	registry := wallet.NewRegistry(v)
	w, err := registry.CreateWallet(phrase.Intent{"purpose": "persistent"})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.EnrollBiometric(wallet.KindRetina, []byte("retina-sample")); err != nil {
		t.Fatal(err)
	}
	w.Authenticate(wallet.AuthFactors{Phrase: w.Phrase(), Retina: []byte("retina-sample")})
	if err := w.StoreData("token", []byte("opaque-value"), true); err != nil {
		t.Fatal(err)
	}

	if err := s.SaveRegistry(registry); err != nil {
		t.Fatalf("SaveRegistry failed: %v", err)
	}

	ids, err := s.WalletIDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != w.ID() {
		t.Fatalf("WalletIDs = %v, want [%s]", ids, w.ID())
	}

	loaded, err := s.LoadRegistry(v)
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}
	restored, err := loaded.Wallet(w.ID())
	if err != nil {
		t.Fatalf("restored wallet not found: %v", err)
	}

	result := restored.Authenticate(wallet.AuthFactors{Phrase: w.Phrase(), Retina: []byte("retina-sample")})
	if !result.OK {
		t.Fatalf("restored wallet authentication failed: %q", result.Message)
	}
	got, err := restored.RetrieveData("token", true)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("opaque-value")) {
		t.Errorf("retrieved %q, want %q", got, "opaque-value")
	}

	// One pre-save attempt plus the post-restore attempt above.
	log := restored.AccessLog()
	if len(log) != 2 {
		t.Errorf("restored access log has %d entries, want 2", len(log))
	}
}

func TestSaveWalletOverwrites(t *testing.T) {
	s := initStore(t)
	if err := s.Unlock(testPassword); err != nil {
		t.Fatal(err)
	}
	defer s.Lock()

	v := vocab.New()
	registry := wallet.NewRegistry(v)
	w, err := registry.CreateWallet(phrase.Intent{"purpose": "rewrite"})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.StoreData("k", []byte("first"), true); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveWallet(w); err != nil {
		t.Fatal(err)
	}

	if err := w.StoreData("k", []byte("second"), true); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveWallet(w); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.LoadRegistry(v)
	if err != nil {
		t.Fatal(err)
	}
	restored, err := loaded.Wallet(w.ID())
	if err != nil {
		t.Fatal(err)
	}
	got, err := restored.RetrieveData("k", true)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("retrieved %q, want %q", got, "second")
	}
}

func TestTamperedRowSurfacesAsCorruption(t *testing.T) {
	s := initStore(t)
	if err := s.Unlock(testPassword); err != nil {
		t.Fatal(err)
	}
	defer s.Lock()

	v := vocab.New()
	registry := wallet.NewRegistry(v)
	w, err := registry.CreateWallet(phrase.Intent{"purpose": "tamper"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveWallet(w); err != nil {
		t.Fatal(err)
	}

	// Overwrite the sealed phrase with ciphertext the DEK never produced.
	if _, err := s.db.Exec("UPDATE wallets SET sealed_phrase = ? WHERE id = ?",
		bytes.Repeat([]byte{0xAB}, 64), w.ID()); err != nil {
		t.Fatal(err)
	}

	if _, err := s.LoadRegistry(v); !errors.Is(err, ErrStoreCorrupted) {
		t.Errorf("expected ErrStoreCorrupted, got %v", err)
	}
}
