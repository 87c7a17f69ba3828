package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pil-lang/pilvault/internal/cli"
	"github.com/pil-lang/pilvault/pkg/wallet"
)

// Wallet command flags
var (
	createData []string

	enrollKind   string
	enrollSample string

	authVoice  string
	authRetina string
)

func init() {
	walletCmd.AddCommand(walletCreateCmd)
	walletCmd.AddCommand(walletEnrollCmd)
	walletCmd.AddCommand(walletAuthCmd)
	walletCmd.AddCommand(walletStoreCmd)
	walletCmd.AddCommand(walletRetrieveCmd)
	walletCmd.AddCommand(walletStatusCmd)
	walletCmd.AddCommand(walletListCmd)

	walletCreateCmd.Flags().StringArrayVar(&createData, "data", nil, "Intent data (key=value, can be repeated)")

	walletEnrollCmd.Flags().StringVar(&enrollKind, "kind", "", "Biometric kind: voice, retina, fingerprint, face")
	walletEnrollCmd.Flags().StringVar(&enrollSample, "sample", "", "Biometric sample (prompted if omitted)")

	for _, cmd := range []*cobra.Command{walletAuthCmd, walletStoreCmd, walletRetrieveCmd} {
		cmd.Flags().StringVar(&authVoice, "voice", "", "Voice sample")
		cmd.Flags().StringVar(&authRetina, "retina", "", "Retina sample")
	}
}

// walletCmd is the parent command for wallet operations
var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Wallet operations",
}

// walletCreateCmd creates a wallet from intent data
var walletCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Creates a wallet from intent data",
	Long: `Creates a wallet. The secure phrase is derived deterministically from
the intent data and printed exactly once; record it somewhere safe.

Example:
  pilvault wallet create --data purpose=savings --data mood=serene`,
	RunE: func(cmd *cobra.Command, args []string) error {
		intent, err := parseIntent(createData)
		if err != nil {
			return err
		}

		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer st.Lock()

		registry, err := loadRegistry()
		if err != nil {
			return err
		}

		w, err := registry.CreateWallet(intent)
		if err != nil {
			return fmt.Errorf("failed to create wallet: %w", err)
		}
		if err := st.SaveWallet(w); err != nil {
			return fmt.Errorf("failed to persist wallet: %w", err)
		}

		fmt.Printf("Wallet created: %s\n", w.ID())
		fmt.Println("\nSecure phrase (shown once, store it safely):")
		fmt.Printf("  %s\n", strings.Join(w.Phrase(), " "))
		return nil
	},
}

// walletEnrollCmd enrolls a biometric factor
var walletEnrollCmd = &cobra.Command{
	Use:   "enroll [wallet-id]",
	Short: "Enrolls a biometric factor on a wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := wallet.ParseBiometricKind(enrollKind)
		if err != nil {
			return err
		}

		sample := enrollSample
		if sample == "" {
			fmt.Printf("Enter %s sample: ", kind)
			sample, err = readLine()
			if err != nil {
				return err
			}
		}
		if sample == "" {
			return fmt.Errorf("empty biometric sample")
		}

		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer st.Lock()

		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		id, err := resolveWallet(registry, args[0])
		if err != nil {
			return err
		}
		if err := registry.EnrollBiometric(id, kind, []byte(sample)); err != nil {
			return fmt.Errorf("failed to enroll %s: %w", kind, err)
		}

		w, err := registry.Wallet(id)
		if err != nil {
			return err
		}
		if err := st.SaveWallet(w); err != nil {
			return fmt.Errorf("failed to persist wallet: %w", err)
		}

		fmt.Printf("Enrolled %s on wallet %s\n", kind, id)
		return nil
	},
}

// resolveWallet resolves a wallet reference (full id or unique prefix)
// against the loaded registry.
func resolveWallet(registry *wallet.Registry, ref string) (string, error) {
	return cli.ResolveWalletID(ref, registry.IDs())
}

// authenticateWallet prompts for the phrase, runs the attempt, and persists
// the access log. The wallet handle is returned only on success.
func authenticateWallet(registry *wallet.Registry, walletID string) (wallet.Result, *wallet.Wallet, error) {
	tokens, err := promptPhrase()
	if err != nil {
		return wallet.Result{}, nil, err
	}

	factors := wallet.AuthFactors{Phrase: tokens}
	if authVoice != "" {
		factors.Voice = []byte(authVoice)
	}
	if authRetina != "" {
		factors.Retina = []byte(authRetina)
	}

	result, w, err := registry.Authenticate(walletID, factors)
	if err != nil {
		return wallet.Result{}, nil, err
	}

	logged := w
	if logged == nil {
		logged, _ = registry.Wallet(walletID)
	}
	if logged != nil {
		if err := st.SaveWallet(logged); err != nil {
			return wallet.Result{}, nil, fmt.Errorf("failed to persist access log: %w", err)
		}
	}
	return result, w, nil
}

// walletAuthCmd runs an authentication attempt
var walletAuthCmd = &cobra.Command{
	Use:   "auth [wallet-id]",
	Short: "Authenticates against a wallet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer st.Lock()

		registry, err := loadRegistry()
		if err != nil {
			return err
		}

		id, err := resolveWallet(registry, args[0])
		if err != nil {
			return err
		}

		result, _, err := authenticateWallet(registry, id)
		if err != nil {
			return err
		}
		if result.OK {
			fmt.Printf("✓ %s (strength %d/%d)\n", result.Message, result.Strength, result.Required)
			return nil
		}
		fmt.Printf("✗ %s\n", result.Message)
		return fmt.Errorf("authentication failed")
	},
}

// walletStoreCmd stores a value in a wallet
var walletStoreCmd = &cobra.Command{
	Use:   "store [wallet-id] [key]",
	Short: "Stores a value in a wallet from standard input",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer st.Lock()

		registry, err := loadRegistry()
		if err != nil {
			return err
		}

		id, err := resolveWallet(registry, args[0])
		if err != nil {
			return err
		}

		result, w, err := authenticateWallet(registry, id)
		if err != nil {
			return err
		}
		if !result.OK {
			return fmt.Errorf("authentication failed: %s", result.Message)
		}

		fmt.Print("Enter value (Ctrl+D to finish): ")
		valueBytes, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read value: %w", err)
		}
		value := valueBytes
		if len(value) > 0 && value[len(value)-1] == '\n' {
			value = value[:len(value)-1]
		}
		if len(value) > 0 && value[len(value)-1] == '\r' {
			value = value[:len(value)-1]
		}

		if err := w.StoreData(args[1], value, result.OK); err != nil {
			return fmt.Errorf("failed to store data: %w", err)
		}
		if err := st.SaveWallet(w); err != nil {
			return fmt.Errorf("failed to persist wallet: %w", err)
		}

		fmt.Printf("Stored '%s' in wallet %s\n", args[1], id)
		return nil
	},
}

// walletRetrieveCmd retrieves a value from a wallet
var walletRetrieveCmd = &cobra.Command{
	Use:   "retrieve [wallet-id] [key]",
	Short: "Retrieves a value from a wallet",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer st.Lock()

		registry, err := loadRegistry()
		if err != nil {
			return err
		}

		id, err := resolveWallet(registry, args[0])
		if err != nil {
			return err
		}

		result, w, err := authenticateWallet(registry, id)
		if err != nil {
			return err
		}
		if !result.OK {
			return fmt.Errorf("authentication failed: %s", result.Message)
		}

		value, err := w.RetrieveData(args[1], result.OK)
		if err != nil {
			return fmt.Errorf("failed to retrieve data: %w", err)
		}
		if err := st.SaveWallet(w); err != nil {
			return fmt.Errorf("failed to persist access log: %w", err)
		}

		os.Stdout.Write(value)
		fmt.Println()
		return nil
	},
}

// walletStatusCmd shows a wallet's security posture
var walletStatusCmd = &cobra.Command{
	Use:   "status [wallet-id]",
	Short: "Shows a wallet's security status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer st.Lock()

		registry, err := loadRegistry()
		if err != nil {
			return err
		}
		id, err := resolveWallet(registry, args[0])
		if err != nil {
			return err
		}
		w, err := registry.Wallet(id)
		if err != nil {
			return err
		}

		status := w.SecurityStatus()
		fmt.Printf("Wallet:             %s\n", status.WalletID)
		fmt.Printf("Phrase length:      %d tokens\n", status.PhraseLength)
		fmt.Printf("Biometric strength: %d\n", status.BiometricStrength)
		fmt.Printf("Stored items:       %d\n", status.StoredItems)
		fmt.Printf("Verifier:           %s\n", status.Verifier)
		if status.LastAccess != nil {
			fmt.Printf("Last access:        %s (%s)\n",
				status.LastAccess.Time.Format("2006-01-02 15:04:05"), status.LastAccess.Outcome)
		} else {
			fmt.Println("Last access:        never")
		}
		return nil
	},
}

// walletListCmd lists wallet ids
var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists all wallet ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer st.Lock()

		ids, err := st.WalletIDs()
		if err != nil {
			return fmt.Errorf("failed to list wallets: %w", err)
		}
		if len(ids) == 0 {
			fmt.Println("No wallets stored")
			return nil
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}
