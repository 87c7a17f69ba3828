package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pil-lang/pilvault/pkg/audit"
	"github.com/pil-lang/pilvault/pkg/crypto"
	"github.com/pil-lang/pilvault/pkg/phrase"
	"github.com/pil-lang/pilvault/pkg/security"
	"github.com/pil-lang/pilvault/pkg/store"
	"github.com/pil-lang/pilvault/pkg/vocab"
	"github.com/pil-lang/pilvault/pkg/wallet"
)

var (
	storeFlag string

	storePath string
	st        *store.Store
	cfg       *Config
	voc       *vocab.Vocabulary
)

var rootCmd = &cobra.Command{
	Use:   "pilvault",
	Short: "pilvault is a perceptual-phrase wallet vault",
	Long: `A credential vault built on perceptual secure phrases.

Wallets are created from structured intent data, authenticate with a
12-token phrase plus optional voice and retina factors, and store data
encrypted under keys derived from the phrase itself.`,
	// PersistentPreRunE resolves the store path and config before every
	// subcommand. The store is created lazily; nothing is unlocked here.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		storePath = storeFlag
		if storePath == "" {
			storePath, err = defaultStorePath()
			if err != nil {
				return err
			}
		}

		cfg, err = loadConfig(storePath)
		if err != nil {
			return err
		}
		if storeFlag == "" && cfg.StorePath != "" {
			storePath = cfg.StorePath
		}

		st = store.New(storePath)
		voc = vocab.New()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeFlag, "store", "", "Store directory (default ~/.pilvault)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(walletCmd)
	rootCmd.AddCommand(phraseCmd)
	rootCmd.AddCommand(auditCmd)
}

// initCmd initializes a new store
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initializes a new wallet store",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Initializing new store...")

		fmt.Print("Enter master password: ")
		password1, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()

		fmt.Print("Confirm master password: ")
		password2, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()

		if string(password1) != string(password2) {
			return fmt.Errorf("passwords do not match")
		}
		if len(password1) < 8 {
			return fmt.Errorf("password must be at least 8 characters")
		}

		strength := security.CalculatePasswordStrength(string(password1))
		fmt.Printf("Master password strength: %s\n", strength)
		if strength < security.PasswordGood {
			fmt.Println("Consider a longer password (14+ characters recommended)")
		}

		if err := st.Init(string(password1)); err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}

		fmt.Printf("Store initialized successfully at %s\n", storePath)
		return nil
	},
}

// ensureUnlocked unlocks the store, prompting for the master password.
func ensureUnlocked() error {
	if st.IsLocked() {
		fmt.Print("Enter master password: ")
		passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()

		if err := st.Unlock(string(passwordBytes)); err != nil {
			return fmt.Errorf("failed to unlock store: %w", err)
		}
	}
	return nil
}

// registryOptions builds the capability set for a registry per the config.
func registryOptions() []wallet.Option {
	opts := []wallet.Option{wallet.WithAudit(st.Audit(), audit.SourceCLI)}
	if cfg.Hardened {
		opts = append(opts,
			wallet.WithCipher(wallet.GCMCipher{}),
			wallet.WithKeyDeriver(crypto.Ed25519Deriver{}))
	}
	return opts
}

// loadRegistry rehydrates the wallet registry from the unlocked store.
func loadRegistry() (*wallet.Registry, error) {
	registry, err := st.LoadRegistry(voc, registryOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallets: %w", err)
	}
	return registry, nil
}

// promptPhrase reads a secure phrase without echo and splits it into
// normalized tokens. Falls back to plain line reading for piped input.
func promptPhrase() ([]string, error) {
	fmt.Print("Enter secure phrase: ")
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return nil, fmt.Errorf("failed to read phrase: %w", err)
		}
		return phrase.Parse(string(raw)), nil
	}
	line, err := readLine()
	if err != nil {
		return nil, err
	}
	return phrase.Parse(line), nil
}

// readLine reads a single line from stdin, trimming the trailing newline.
func readLine() (string, error) {
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// parseIntent converts repeated key=value flags into an Intent.
func parseIntent(pairs []string) (phrase.Intent, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no intent data specified (use --data key=value)")
	}
	intent := make(phrase.Intent, len(pairs))
	for _, p := range pairs {
		parts := strings.SplitN(p, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid data format %q (expected key=value)", p)
		}
		intent[parts[0]] = parts[1]
	}
	return intent, nil
}
