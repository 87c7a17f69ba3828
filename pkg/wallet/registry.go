package wallet

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"github.com/pil-lang/pilvault/pkg/audit"
	"github.com/pil-lang/pilvault/pkg/crypto"
	"github.com/pil-lang/pilvault/pkg/phrase"
	"github.com/pil-lang/pilvault/pkg/vocab"
)

// IDLength is the number of hex characters in a wallet identifier: the
// truncated SHA-256 digest of the phrase tokens concatenated without
// separators.
const IDLength = 16

// Registry owns all wallets and is the only way to create one. Wallets
// created by the same registry share a cipher, matcher, and key deriver so
// a persisted registry can be rehydrated with the same capabilities.
type Registry struct {
	mu      sync.RWMutex
	vocab   *vocab.Vocabulary
	deriver crypto.KeyDeriver
	cipher  Cipher
	matcher BiometricMatcher
	wallets map[string]*Wallet

	auditLog    *audit.Logger
	auditSource string
}

// Option configures a Registry.
type Option func(*Registry)

// WithCipher replaces the default StreamTransform cipher.
func WithCipher(c Cipher) Option {
	return func(r *Registry) { r.cipher = c }
}

// WithKeyDeriver replaces the default digest-chain key deriver.
func WithKeyDeriver(d crypto.KeyDeriver) Option {
	return func(r *Registry) { r.deriver = d }
}

// WithMatcher replaces the default digest biometric matcher.
func WithMatcher(m BiometricMatcher) Option {
	return func(r *Registry) { r.matcher = m }
}

// WithAudit attaches an audit logger; every wallet operation is then
// mirrored to the tamper-evident audit trail with the given source tag.
func WithAudit(logger *audit.Logger, source string) Option {
	return func(r *Registry) {
		r.auditLog = logger
		r.auditSource = source
	}
}

// NewRegistry returns an empty registry over the given vocabulary. The
// default capabilities are the obfuscation-grade StreamTransform cipher and
// the digest-chain deriver; production callers should install GCMCipher and
// Ed25519Deriver via options.
func NewRegistry(v *vocab.Vocabulary, opts ...Option) *Registry {
	r := &Registry{
		vocab:       v,
		deriver:     crypto.DigestDeriver{},
		cipher:      StreamTransform{},
		matcher:     DigestMatcher{},
		wallets:     make(map[string]*Wallet),
		auditSource: audit.SourceAPI,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WalletID derives the identifier for a phrase: the first IDLength hex
// characters of the SHA-256 digest of the tokens joined without separators.
func WalletID(tokens []string) string {
	sum := sha256.Sum256([]byte(strings.Join(tokens, "")))
	return hex.EncodeToString(sum[:])[:IDLength]
}

// CreateWallet generates a cognition-domain phrase from the intent, derives
// the wallet's keypair from the phrase entropy, and registers the wallet.
// Creating a wallet twice from the same intent returns the same wallet.
func (r *Registry) CreateWallet(intent phrase.Intent) (*Wallet, error) {
	tokens, err := phrase.Generate(r.vocab, vocab.Cognition, intent)
	if err != nil {
		return nil, err
	}
	return r.register(tokens, BiometricProfile{}, nil, nil)
}

// Restore rehydrates a wallet from persisted state. The identifier is
// re-derived from the phrase, so corrupted or mismatched rows surface as a
// different ID than the one stored alongside them.
func (r *Registry) Restore(tokens []string, profile BiometricProfile, blobs map[string][]byte, accessLog []AccessEntry) (*Wallet, error) {
	return r.register(tokens, profile, blobs, accessLog)
}

func (r *Registry) register(tokens []string, profile BiometricProfile, blobs map[string][]byte, accessLog []AccessEntry) (*Wallet, error) {
	entropy, err := phrase.Encode(r.vocab, tokens)
	if err != nil {
		return nil, err
	}
	keys, err := r.deriver.Derive(entropy)
	if err != nil {
		return nil, err
	}
	crypto.SecureWipe(entropy)

	id := WalletID(tokens)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.wallets[id]; ok {
		return existing, nil
	}

	if blobs == nil {
		blobs = make(map[string][]byte)
	}
	w := &Wallet{
		id:          id,
		phrase:      append([]string(nil), tokens...),
		profile:     profile.clone(),
		keys:        keys,
		cipher:      r.cipher,
		matcher:     r.matcher,
		blobs:       blobs,
		accessLog:   append([]AccessEntry(nil), accessLog...),
		auditLog:    r.auditLog,
		auditSource: r.auditSource,
	}
	r.wallets[id] = w

	if r.auditLog != nil {
		_ = r.auditLog.LogSuccess(audit.OpWalletCreate, r.auditSource, id)
	}
	return w, nil
}

// Wallet returns the wallet with the given identifier.
func (r *Registry) Wallet(id string) (*Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[id]
	if !ok {
		return nil, ErrWalletNotFound
	}
	return w, nil
}

// IDs returns the identifiers of all registered wallets, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.wallets))
	for id := range r.wallets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EnrollBiometric enrolls a biometric sample on the identified wallet.
func (r *Registry) EnrollBiometric(id string, kind BiometricKind, sample []byte) error {
	w, err := r.Wallet(id)
	if err != nil {
		return err
	}
	return w.EnrollBiometric(kind, sample)
}

// Authenticate runs an authentication attempt against the identified wallet.
// The wallet is returned only on success so callers cannot accidentally hold
// a handle they failed to authenticate against.
func (r *Registry) Authenticate(id string, f AuthFactors) (Result, *Wallet, error) {
	w, err := r.Wallet(id)
	if err != nil {
		return Result{}, nil, err
	}
	result := w.Authenticate(f)
	if !result.OK {
		return result, nil, nil
	}
	return result, w, nil
}

// StoreData stores data on the identified wallet.
func (r *Registry) StoreData(id, key string, data []byte, authenticated bool) error {
	w, err := r.Wallet(id)
	if err != nil {
		return err
	}
	return w.StoreData(key, data, authenticated)
}

// RetrieveData retrieves data from the identified wallet.
func (r *Registry) RetrieveData(id, key string, authenticated bool) ([]byte, error) {
	w, err := r.Wallet(id)
	if err != nil {
		return nil, err
	}
	return w.RetrieveData(key, authenticated)
}
