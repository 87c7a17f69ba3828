package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pil-lang/pilvault/internal/mcp"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

// mcpServerCmd starts the MCP server for AI coding assistant integration
var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start the MCP server for AI coding assistant integration",
	Long: `Start the MCP server that exposes wallet operations to AI coding assistants.

The server implements the Model Context Protocol (MCP) over stdio transport.
Recovery phrases are never sent over MCP: wallet_create returns only the
wallet id, and retrieved values are masked unless the policy allows reveal.

Available tools:
  - phrase_generate:     Generate a deterministic phrase from intent data
  - wallet_create:       Create a wallet (returns wallet id, never the phrase)
  - wallet_authenticate: Authenticate against a wallet with phrase + biometrics
  - wallet_store:        Store an encrypted value in a wallet
  - wallet_retrieve:     Retrieve a value (masked by default)
  - wallet_status:       Report a wallet's security status

Authentication:
  Set PILVAULT_PASSWORD environment variable before starting the server.
  The password is read once and immediately cleared from the environment.

Policy:
  Create <store>/mcp-policy.yaml to configure which tools are allowed and
  whether wallet_retrieve may reveal plaintext values. Without a valid
  policy file every tool is denied (deny-by-default).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCPServer()
	},
}

func runMCPServer() error {
	server, err := mcp.NewServer(&mcp.ServerOptions{
		StorePath: storePath,
		Hardened:  cfg.Hardened,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		cancel()
		server.Close()
	}()

	if err := server.Run(ctx); err != nil {
		// Don't report context canceled as an error
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("MCP server error: %w", err)
	}

	return nil
}
