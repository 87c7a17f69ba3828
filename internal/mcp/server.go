// Package mcp implements the MCP (Model Context Protocol) server for
// pilvault. Clients can create and authenticate wallets and store or
// retrieve data, but retrieved values are masked unless the policy
// explicitly allows plaintext.
package mcp

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pil-lang/pilvault/pkg/audit"
	"github.com/pil-lang/pilvault/pkg/crypto"
	"github.com/pil-lang/pilvault/pkg/store"
	"github.com/pil-lang/pilvault/pkg/vocab"
	"github.com/pil-lang/pilvault/pkg/wallet"
)

// maxConcurrentAuth limits concurrent wallet_authenticate executions so a
// misbehaving client cannot flood the access logs.
const maxConcurrentAuth = 5

// Server is the MCP server for pilvault.
type Server struct {
	server    *mcp.Server
	store     *store.Store
	registry  *wallet.Registry
	vocab     *vocab.Vocabulary
	storePath string
	policy    *Policy
	authSem   chan struct{}
}

// ServerOptions contains configuration options for the MCP server.
type ServerOptions struct {
	// StorePath is the path to the store directory.
	// If empty, defaults to ~/.pilvault.
	StorePath string

	// Password is the master password for the store. If empty, the server
	// reads the PILVAULT_PASSWORD environment variable.
	Password string

	// Hardened selects AES-256-GCM sealing and Ed25519 key derivation for
	// wallets. Must match the setting the store was created with, or blob
	// decryption fails.
	Hardened bool
}

// NewServer creates a new MCP server instance and unlocks the store.
func NewServer(opts *ServerOptions) (*Server, error) {
	if opts == nil {
		opts = &ServerOptions{}
	}

	storePath := opts.StorePath
	if storePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		storePath = filepath.Join(home, ".pilvault")
	}

	policy, err := LoadPolicy(storePath)
	if err != nil {
		// Missing or invalid policy means restricted mode: every tool call
		// is denied until a valid policy exists.
		log.Printf("warning: failed to load MCP policy: %v", err)
		policy = nil
	}

	st := store.New(storePath)

	password := opts.Password
	if password == "" {
		password = os.Getenv("PILVAULT_PASSWORD")
		os.Unsetenv("PILVAULT_PASSWORD")
	}
	if password == "" {
		return nil, fmt.Errorf("no password provided: set PILVAULT_PASSWORD environment variable")
	}

	if err := st.Unlock(password); err != nil {
		return nil, fmt.Errorf("failed to unlock store: %w", err)
	}

	v := vocab.New()
	regOpts := []wallet.Option{wallet.WithAudit(st.Audit(), audit.SourceMCP)}
	if opts.Hardened {
		regOpts = append(regOpts,
			wallet.WithCipher(wallet.GCMCipher{}),
			wallet.WithKeyDeriver(crypto.Ed25519Deriver{}))
	}
	registry, err := st.LoadRegistry(v, regOpts...)
	if err != nil {
		st.Lock()
		return nil, fmt.Errorf("failed to load wallets: %w", err)
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "pilvault",
			Version: "0.3.0",
		},
		nil,
	)

	s := &Server{
		server:    mcpServer,
		store:     st,
		registry:  registry,
		vocab:     v,
		storePath: storePath,
		policy:    policy,
		authSem:   make(chan struct{}, maxConcurrentAuth),
	}
	s.registerTools()
	return s, nil
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "phrase_generate",
		Description: "Generate a deterministic 12-token secure phrase from intent data, drawn from one perceptual domain's vocabulary. The same domain and intent always produce the same phrase.",
	}, s.handlePhraseGenerate)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "wallet_create",
		Description: "Create a wallet from intent data. Returns the wallet id; the secure phrase itself is only printed by the CLI, never over MCP.",
	}, s.handleWalletCreate)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "wallet_authenticate",
		Description: "Run a multi-factor authentication attempt against a wallet: secure phrase plus optional voice and retina samples. Returns the outcome and strength score.",
	}, s.handleWalletAuthenticate)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "wallet_store",
		Description: "Authenticate against a wallet and store a value under a key. The value is encrypted with the wallet's derived key before persisting.",
	}, s.handleWalletStore)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "wallet_retrieve",
		Description: "Authenticate against a wallet and retrieve the value stored under a key. Returns a masked value (e.g. '****WXYZ') unless the policy enables reveal.",
	}, s.handleWalletRetrieve)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "wallet_status",
		Description: "Report a wallet's security posture: phrase length, biometric strength, stored item count, and last access. Does NOT require authentication and returns no secrets.",
	}, s.handleWalletStatus)
}

// checkPolicy gates a tool call. A nil policy denies everything.
func (s *Server) checkPolicy(tool string) error {
	if s.policy == nil {
		return fmt.Errorf("no valid MCP policy loaded; create %s in the store directory", PolicyFileName)
	}
	allowed, reason := s.policy.IsToolAllowed(tool)
	if !allowed {
		return fmt.Errorf("denied by policy: %s", reason)
	}
	return nil
}

// Run starts the MCP server using stdio transport.
func (s *Server) Run(ctx context.Context) error {
	defer s.store.Lock()
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close locks the store.
func (s *Server) Close() error {
	s.store.Lock()
	return nil
}
