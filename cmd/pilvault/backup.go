package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pil-lang/pilvault/pkg/backup"
)

var (
	backupOutput         string
	backupStdout         bool
	backupWithAudit      bool
	backupBackupPassword bool
	backupKeyFile        string
	backupForce          bool

	restoreOnConflict string
	restoreDryRun     bool
	restoreVerifyOnly bool
	restoreWithAudit  bool
	restoreKeyFile    string
)

func init() {
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)

	backupCmd.Flags().StringVarP(&backupOutput, "output", "o", "", "Output file path")
	backupCmd.Flags().BoolVar(&backupStdout, "stdout", false, "Output to stdout (for piping)")
	backupCmd.Flags().BoolVar(&backupWithAudit, "with-audit", false, "Include the audit trail in the backup")
	backupCmd.Flags().BoolVar(&backupBackupPassword, "backup-password", false, "Use a separate backup password")
	backupCmd.Flags().StringVar(&backupKeyFile, "key-file", "", "Encryption key file (32 bytes)")
	backupCmd.Flags().BoolVarP(&backupForce, "force", "f", false, "Overwrite existing file")

	restoreCmd.Flags().StringVar(&restoreOnConflict, "on-conflict", "error", "Existing store handling: error, skip, or overwrite")
	restoreCmd.Flags().BoolVar(&restoreDryRun, "dry-run", false, "Preview the restore without making changes")
	restoreCmd.Flags().BoolVar(&restoreVerifyOnly, "verify-only", false, "Only verify backup integrity")
	restoreCmd.Flags().BoolVar(&restoreWithAudit, "with-audit", false, "Restore the audit trail as well")
	restoreCmd.Flags().StringVar(&restoreKeyFile, "key-file", "", "Decryption key file (32 bytes)")
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create an encrypted backup of the store",
	Long: `Create an encrypted backup of the wallet store.

Examples:
  # Backup to a file
  pilvault backup -o store-backup.enc

  # Backup with the audit trail
  pilvault backup -o full-backup.enc --with-audit

  # Backup to stdout (for piping)
  pilvault backup --stdout | gpg --encrypt > backup.gpg

  # Use a separate backup password
  pilvault backup -o backup.enc --backup-password

  # Use a key file for encryption
  pilvault backup -o backup.enc --key-file=backup.key`,
	RunE: executeBackup,
}

func executeBackup(cmd *cobra.Command, args []string) error {
	if err := validateBackupFlags(); err != nil {
		return err
	}

	masterPassword, err := unlockWithPassword()
	if err != nil {
		return err
	}
	defer st.Lock()

	var output *os.File
	if backupStdout {
		output = os.Stdout
	} else {
		if !backupForce {
			if _, err := os.Stat(backupOutput); err == nil {
				return fmt.Errorf("output file already exists: %s (use --force to overwrite)", backupOutput)
			}
		}

		output, err = os.OpenFile(backupOutput, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer output.Close()
	}

	var password []byte
	var keyFilePath string

	switch {
	case backupKeyFile != "":
		keyFilePath = backupKeyFile
	case backupBackupPassword:
		password, err = promptNewPassword("backup")
		if err != nil {
			return err
		}
	default:
		password = masterPassword
	}

	opts := backup.BackupOptions{
		Output:       output,
		IncludeAudit: backupWithAudit,
		Password:     password,
		KeyFile:      keyFilePath,
	}

	if err := backup.Backup(st, opts); err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	if !backupStdout {
		fmt.Printf("Backup created successfully: %s\n", backupOutput)
	}

	return nil
}

func validateBackupFlags() error {
	if !backupStdout && backupOutput == "" {
		return fmt.Errorf("either --output or --stdout is required")
	}
	if backupStdout && backupOutput != "" {
		return fmt.Errorf("--output and --stdout are mutually exclusive")
	}
	if backupKeyFile != "" && backupBackupPassword {
		return fmt.Errorf("--key-file and --backup-password are mutually exclusive")
	}
	return nil
}

var restoreCmd = &cobra.Command{
	Use:   "restore <backup-file>",
	Short: "Restore the store from an encrypted backup",
	Long: `Restore a wallet store from an encrypted backup file.

Examples:
  # Verify a backup without restoring
  pilvault restore backup.enc --verify-only

  # Preview what a restore would do
  pilvault restore backup.enc --dry-run

  # Restore over an existing store
  pilvault restore backup.enc --on-conflict=overwrite --with-audit`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var conflict backup.ConflictMode
		switch restoreOnConflict {
		case "error":
			conflict = backup.ConflictError
		case "skip":
			conflict = backup.ConflictSkip
		case "overwrite":
			conflict = backup.ConflictOverwrite
		default:
			return fmt.Errorf("invalid --on-conflict value %q", restoreOnConflict)
		}

		var password []byte
		if restoreKeyFile == "" {
			fmt.Print("Enter backup password: ")
			pwd, err := term.ReadPassword(int(syscall.Stdin))
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			fmt.Println()
			password = pwd
		}

		if restoreVerifyOnly {
			result, err := backup.Verify(args[0], password, restoreKeyFile)
			if err != nil {
				return err
			}
			if !result.Valid {
				return fmt.Errorf("backup verification failed: %s", result.Error)
			}
			fmt.Printf("✓ Backup verified: %d wallets, created %s\n",
				result.WalletCount, result.CreatedAt.Format("2006-01-02 15:04:05 UTC"))
			return nil
		}

		result, err := backup.Restore(args[0], backup.RestoreOptions{
			StorePath:  storePath,
			OnConflict: conflict,
			DryRun:     restoreDryRun,
			WithAudit:  restoreWithAudit,
			Password:   password,
			KeyFile:    restoreKeyFile,
		})
		if err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		if result.DryRun {
			fmt.Printf("Dry run: %d wallets would be restored\n", result.WalletsRestored)
			return nil
		}
		if result.WalletsSkipped > 0 {
			fmt.Printf("Store already exists, %d wallets skipped\n", result.WalletsSkipped)
			return nil
		}
		fmt.Printf("Restored %d wallets to %s\n", result.WalletsRestored, storePath)
		if result.AuditRestored {
			fmt.Println("Audit trail restored")
		}
		return nil
	},
}

// unlockWithPassword unlocks the store and returns the master password
// for callers that need it for a derived operation.
func unlockWithPassword() ([]byte, error) {
	fmt.Print("Enter master password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	if st.IsLocked() {
		if err := st.Unlock(string(password)); err != nil {
			return nil, fmt.Errorf("failed to unlock store: %w", err)
		}
	}
	return password, nil
}

// promptNewPassword prompts twice for a new password with confirmation.
func promptNewPassword(kind string) ([]byte, error) {
	fmt.Printf("Enter %s password: ", kind)
	password1, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	fmt.Printf("Confirm %s password: ", kind)
	password2, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	if string(password1) != string(password2) {
		return nil, fmt.Errorf("passwords do not match")
	}
	if len(password1) == 0 {
		return nil, fmt.Errorf("password cannot be empty")
	}

	return password1, nil
}
