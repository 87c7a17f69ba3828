package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// Audit command flags
var (
	auditLimit int
	auditSince string
)

func init() {
	auditCmd.AddCommand(auditListCmd)
	auditCmd.AddCommand(auditVerifyCmd)

	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum number of events to show")
	auditListCmd.Flags().StringVar(&auditSince, "since", "", "Show events since duration (e.g., 24h, 7d)")
}

// auditCmd is the parent command for audit operations
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
}

// auditListCmd lists audit log entries
var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit log entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer st.Lock()

		var since time.Time
		if auditSince != "" {
			duration, err := parseDuration(auditSince)
			if err != nil {
				return fmt.Errorf("invalid since format: %w", err)
			}
			since = time.Now().Add(-duration)
		}

		events, err := st.Audit().ListEvents(auditLimit, since)
		if err != nil {
			return fmt.Errorf("failed to list audit events: %w", err)
		}
		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		for _, event := range events {
			line := fmt.Sprintf("%s %s %s %s", event.Timestamp, event.Source, event.Operation, event.Result)
			if event.WalletID != "" {
				walletDisplay := event.WalletID
				if len(walletDisplay) > 16 {
					walletDisplay = walletDisplay[:16] + "..."
				}
				line += fmt.Sprintf(" wallet:%s", walletDisplay)
			}
			if event.Error != nil {
				line += fmt.Sprintf(" error:%s", event.Error.Code)
			}
			fmt.Println(line)
		}

		fmt.Printf("\nTotal: %d events\n", len(events))
		return nil
	},
}

// auditVerifyCmd verifies audit log integrity
var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify audit log HMAC chain integrity",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer st.Lock()

		fmt.Println("Verifying audit log integrity...")

		result, err := st.Audit().Verify()
		if err != nil {
			return fmt.Errorf("failed to verify audit log: %w", err)
		}

		if result.Valid {
			fmt.Printf("✓ Audit log verified: %d records, chain intact\n", result.RecordsTotal)
		} else {
			fmt.Printf("✗ Audit log verification FAILED\n")
			fmt.Printf("  Records total: %d\n", result.RecordsTotal)
			fmt.Println("  Errors:")
			for _, e := range result.Errors {
				fmt.Printf("    - %s\n", e)
			}
			return fmt.Errorf("audit log integrity check failed")
		}

		return nil
	},
}

// parseDuration parses a duration string like "30d", "24h", "1y"
func parseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("duration too short: %s", s)
	}

	unit := s[len(s)-1]
	valueStr := s[:len(s)-1]

	var value int
	if _, err := fmt.Sscanf(valueStr, "%d", &value); err != nil {
		return 0, fmt.Errorf("invalid duration value: %s", valueStr)
	}

	switch unit {
	case 'h':
		return time.Duration(value) * time.Hour, nil
	case 'd':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	case 'y':
		return time.Duration(value) * 365 * 24 * time.Hour, nil
	default:
		return time.ParseDuration(s)
	}
}
