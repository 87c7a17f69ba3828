package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pil-lang/pilvault/pkg/phrase"
	"github.com/pil-lang/pilvault/pkg/vocab"
	"github.com/pil-lang/pilvault/pkg/wallet"
)

// PhraseGenerateInput represents input for the phrase_generate tool.
type PhraseGenerateInput struct {
	Domain string            `json:"domain"`
	Intent map[string]string `json:"intent"`
}

// PhraseGenerateOutput represents output for the phrase_generate tool.
type PhraseGenerateOutput struct {
	Domain string   `json:"domain"`
	Tokens []string `json:"tokens"`
}

// WalletCreateInput represents input for the wallet_create tool.
type WalletCreateInput struct {
	Intent map[string]string `json:"intent"`
}

// WalletCreateOutput represents output for the wallet_create tool.
type WalletCreateOutput struct {
	WalletID     string `json:"wallet_id"`
	PhraseLength int    `json:"phrase_length"`
}

// AuthInput carries the shared authentication fields. Biometric samples are
// plain strings; matching happens against digests, never raw samples.
type AuthInput struct {
	WalletID string   `json:"wallet_id"`
	Phrase   []string `json:"phrase"`
	Voice    string   `json:"voice,omitempty"`
	Retina   string   `json:"retina,omitempty"`
}

// WalletAuthenticateOutput represents output for the wallet_authenticate tool.
type WalletAuthenticateOutput struct {
	OK       bool     `json:"ok"`
	Message  string   `json:"message"`
	Reasons  []string `json:"reasons,omitempty"`
	Strength int      `json:"strength"`
	Required int      `json:"required"`
}

// WalletStoreInput represents input for the wallet_store tool.
type WalletStoreInput struct {
	AuthInput
	Key   string `json:"key"`
	Value string `json:"value"`
}

// WalletStoreOutput represents output for the wallet_store tool.
type WalletStoreOutput struct {
	Stored bool   `json:"stored"`
	Key    string `json:"key"`
}

// WalletRetrieveInput represents input for the wallet_retrieve tool.
type WalletRetrieveInput struct {
	AuthInput
	Key    string `json:"key"`
	Reveal bool   `json:"reveal,omitempty"`
}

// WalletRetrieveOutput represents output for the wallet_retrieve tool.
type WalletRetrieveOutput struct {
	Key         string `json:"key"`
	MaskedValue string `json:"masked_value,omitempty"`
	Value       string `json:"value,omitempty"`
	ValueLength int    `json:"value_length"`
	Revealed    bool   `json:"revealed"`
}

// WalletStatusInput represents input for the wallet_status tool.
type WalletStatusInput struct {
	WalletID string `json:"wallet_id"`
}

// WalletStatusOutput represents output for the wallet_status tool.
type WalletStatusOutput struct {
	WalletID          string `json:"wallet_id"`
	PhraseLength      int    `json:"phrase_length"`
	BiometricStrength int    `json:"biometric_strength"`
	StoredItems       int    `json:"stored_items"`
	LastAccess        string `json:"last_access,omitempty"`
	LastOutcome       string `json:"last_outcome,omitempty"`
}

func (in *AuthInput) factors() wallet.AuthFactors {
	f := wallet.AuthFactors{Phrase: in.Phrase}
	if in.Voice != "" {
		f.Voice = []byte(in.Voice)
	}
	if in.Retina != "" {
		f.Retina = []byte(in.Retina)
	}
	return f
}

// handlePhraseGenerate handles the phrase_generate tool call.
func (s *Server) handlePhraseGenerate(_ context.Context, _ *mcp.CallToolRequest, input PhraseGenerateInput) (*mcp.CallToolResult, PhraseGenerateOutput, error) {
	if err := s.checkPolicy("phrase_generate"); err != nil {
		return nil, PhraseGenerateOutput{}, err
	}
	if input.Domain == "" {
		return nil, PhraseGenerateOutput{}, errors.New("domain is required")
	}

	domain, err := vocab.ParseDomain(input.Domain)
	if err != nil {
		return nil, PhraseGenerateOutput{}, err
	}
	tokens, err := phrase.Generate(s.vocab, domain, phrase.Intent(input.Intent))
	if err != nil {
		return nil, PhraseGenerateOutput{}, fmt.Errorf("failed to generate phrase: %w", err)
	}
	return nil, PhraseGenerateOutput{Domain: string(domain), Tokens: tokens}, nil
}

// handleWalletCreate handles the wallet_create tool call.
func (s *Server) handleWalletCreate(_ context.Context, _ *mcp.CallToolRequest, input WalletCreateInput) (*mcp.CallToolResult, WalletCreateOutput, error) {
	if err := s.checkPolicy("wallet_create"); err != nil {
		return nil, WalletCreateOutput{}, err
	}
	if len(input.Intent) == 0 {
		return nil, WalletCreateOutput{}, errors.New("intent is required")
	}

	w, err := s.registry.CreateWallet(phrase.Intent(input.Intent))
	if err != nil {
		return nil, WalletCreateOutput{}, fmt.Errorf("failed to create wallet: %w", err)
	}
	if err := s.store.SaveWallet(w); err != nil {
		return nil, WalletCreateOutput{}, fmt.Errorf("failed to persist wallet: %w", err)
	}

	return nil, WalletCreateOutput{
		WalletID:     w.ID(),
		PhraseLength: phrase.GeneratedLength,
	}, nil
}

// handleWalletAuthenticate handles the wallet_authenticate tool call.
func (s *Server) handleWalletAuthenticate(_ context.Context, _ *mcp.CallToolRequest, input AuthInput) (*mcp.CallToolResult, WalletAuthenticateOutput, error) {
	if err := s.checkPolicy("wallet_authenticate"); err != nil {
		return nil, WalletAuthenticateOutput{}, err
	}

	select {
	case s.authSem <- struct{}{}:
		defer func() { <-s.authSem }()
	default:
		return nil, WalletAuthenticateOutput{}, errors.New("too many concurrent wallet_authenticate operations (max 5)")
	}

	if input.WalletID == "" {
		return nil, WalletAuthenticateOutput{}, errors.New("wallet_id is required")
	}

	result, w, err := s.registry.Authenticate(input.WalletID, input.factors())
	if err != nil {
		return nil, WalletAuthenticateOutput{}, err
	}
	// Persist the access log entry regardless of outcome.
	if w == nil {
		w, _ = s.registry.Wallet(input.WalletID)
	}
	if w != nil {
		if err := s.store.SaveWallet(w); err != nil {
			return nil, WalletAuthenticateOutput{}, fmt.Errorf("failed to persist access log: %w", err)
		}
	}

	return nil, WalletAuthenticateOutput{
		OK:       result.OK,
		Message:  result.Message,
		Reasons:  result.Reasons,
		Strength: result.Strength,
		Required: result.Required,
	}, nil
}

// handleWalletStore handles the wallet_store tool call.
func (s *Server) handleWalletStore(_ context.Context, _ *mcp.CallToolRequest, input WalletStoreInput) (*mcp.CallToolResult, WalletStoreOutput, error) {
	if err := s.checkPolicy("wallet_store"); err != nil {
		return nil, WalletStoreOutput{}, err
	}
	if input.Key == "" {
		return nil, WalletStoreOutput{}, errors.New("key is required")
	}

	result, w, err := s.registry.Authenticate(input.WalletID, input.factors())
	if err != nil {
		return nil, WalletStoreOutput{}, err
	}
	if !result.OK {
		return nil, WalletStoreOutput{}, fmt.Errorf("authentication failed: %s", result.Message)
	}
	if err := w.StoreData(input.Key, []byte(input.Value), result.OK); err != nil {
		return nil, WalletStoreOutput{}, fmt.Errorf("failed to store data: %w", err)
	}
	if err := s.store.SaveWallet(w); err != nil {
		return nil, WalletStoreOutput{}, fmt.Errorf("failed to persist wallet: %w", err)
	}
	return nil, WalletStoreOutput{Stored: true, Key: input.Key}, nil
}

// handleWalletRetrieve handles the wallet_retrieve tool call.
func (s *Server) handleWalletRetrieve(_ context.Context, _ *mcp.CallToolRequest, input WalletRetrieveInput) (*mcp.CallToolResult, WalletRetrieveOutput, error) {
	if err := s.checkPolicy("wallet_retrieve"); err != nil {
		return nil, WalletRetrieveOutput{}, err
	}
	if input.Key == "" {
		return nil, WalletRetrieveOutput{}, errors.New("key is required")
	}

	result, w, err := s.registry.Authenticate(input.WalletID, input.factors())
	if err != nil {
		return nil, WalletRetrieveOutput{}, err
	}
	if !result.OK {
		return nil, WalletRetrieveOutput{}, fmt.Errorf("authentication failed: %s", result.Message)
	}
	value, err := w.RetrieveData(input.Key, result.OK)
	if err != nil {
		return nil, WalletRetrieveOutput{}, fmt.Errorf("failed to retrieve data: %w", err)
	}
	if err := s.store.SaveWallet(w); err != nil {
		return nil, WalletRetrieveOutput{}, fmt.Errorf("failed to persist access log: %w", err)
	}

	output := WalletRetrieveOutput{Key: input.Key, ValueLength: len(value)}
	if input.Reveal && s.policy != nil && s.policy.AllowReveal {
		output.Value = string(value)
		output.Revealed = true
	} else {
		output.MaskedValue = maskValue(value)
	}
	return nil, output, nil
}

// handleWalletStatus handles the wallet_status tool call.
func (s *Server) handleWalletStatus(_ context.Context, _ *mcp.CallToolRequest, input WalletStatusInput) (*mcp.CallToolResult, WalletStatusOutput, error) {
	if err := s.checkPolicy("wallet_status"); err != nil {
		return nil, WalletStatusOutput{}, err
	}
	if input.WalletID == "" {
		return nil, WalletStatusOutput{}, errors.New("wallet_id is required")
	}

	w, err := s.registry.Wallet(input.WalletID)
	if err != nil {
		return nil, WalletStatusOutput{}, err
	}
	status := w.SecurityStatus()
	output := WalletStatusOutput{
		WalletID:          status.WalletID,
		PhraseLength:      status.PhraseLength,
		BiometricStrength: status.BiometricStrength,
		StoredItems:       status.StoredItems,
	}
	if status.LastAccess != nil {
		output.LastAccess = status.LastAccess.Time.Format(time.RFC3339)
		output.LastOutcome = status.LastAccess.Outcome
	}
	return nil, output, nil
}

// maskValue masks a retrieved value:
//
//	1-4 bytes   all *
//	5-8 bytes   show last 2
//	9+ bytes    show last 4
func maskValue(value []byte) string {
	length := len(value)
	if length == 0 {
		return ""
	}
	switch {
	case length <= 4:
		return strings.Repeat("*", length)
	case length <= 8:
		return strings.Repeat("*", length-2) + string(value[length-2:])
	default:
		return strings.Repeat("*", length-4) + string(value[length-4:])
	}
}
