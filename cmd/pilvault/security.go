package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pil-lang/pilvault/pkg/security"
	"github.com/pil-lang/pilvault/pkg/wallet"
)

// Security command flags
var (
	securityVerbose bool
	securityJSON    bool
)

func init() {
	rootCmd.AddCommand(securityCmd)
	securityCmd.AddCommand(securityUnprotectedCmd)

	securityCmd.Flags().BoolVarP(&securityVerbose, "verbose", "v", false, "Show all details including suggestions")
	securityCmd.Flags().BoolVar(&securityJSON, "json", false, "Output in JSON format")
}

// securityCmd is the root security command.
var securityCmd = &cobra.Command{
	Use:   "security",
	Short: "Analyze wallet security health",
	Long: `Analyze the security health of your wallets and get recommendations.

The security score is calculated from:
  - Phrase (0-25):    Recovery phrase entropy
  - Biometric (0-25): Average biometric profile strength
  - Coverage (0-25):  Share of wallets with a biometric enrolled
  - Activity (0-25):  Authentication success ratio

Example:
  pilvault security              # Show security score and top issues
  pilvault security --verbose    # Show all components and suggestions
  pilvault security --json       # Output in JSON format`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer st.Lock()

		registry, err := loadRegistry()
		if err != nil {
			return err
		}

		score, err := security.NewCalculator(registry).CalculateScore(true)
		if err != nil {
			return fmt.Errorf("failed to calculate security score: %w", err)
		}

		if securityJSON {
			return outputSecurityJSON(score)
		}

		return outputSecurityText(score, securityVerbose)
	},
}

// securityUnprotectedCmd lists wallets without biometric factors.
var securityUnprotectedCmd = &cobra.Command{
	Use:   "unprotected",
	Short: "List wallets protected by their phrase alone",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureUnlocked(); err != nil {
			return err
		}
		defer st.Lock()

		registry, err := loadRegistry()
		if err != nil {
			return err
		}

		var unprotected []*wallet.Wallet
		for _, id := range registry.IDs() {
			w, err := registry.Wallet(id)
			if err != nil {
				continue
			}
			if w.Profile().Strength() == 0 {
				unprotected = append(unprotected, w)
			}
		}

		if len(unprotected) == 0 {
			fmt.Println("All wallets have at least one biometric factor enrolled")
			return nil
		}

		fmt.Printf("Phrase-only wallets (%d found)\n\n", len(unprotected))
		for i, w := range unprotected {
			fmt.Printf("%d. %s\n", i+1, w.ID())
		}
		fmt.Println("\nEnroll a factor with: pilvault wallet enroll <wallet-id> --kind retina")
		return nil
	},
}

// outputSecurityJSON outputs the security score as JSON.
func outputSecurityJSON(score *security.SecurityScore) error {
	data, err := json.MarshalIndent(score, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// outputSecurityText outputs the security score as formatted text.
func outputSecurityText(score *security.SecurityScore, verbose bool) error {
	var rating string
	switch {
	case score.Overall >= 90:
		rating = "Excellent"
	case score.Overall >= 70:
		rating = "Good"
	case score.Overall >= 50:
		rating = "Fair"
	default:
		rating = "Needs Attention"
	}

	fmt.Printf("Security Score: %d/100 (%s)\n\n", score.Overall, rating)

	fmt.Println("Components:")
	fmt.Printf("  Phrase:    %d/25 %s\n", score.Components.PhraseScore, progressBar(score.Components.PhraseScore, 25))
	fmt.Printf("  Biometric: %d/25 %s\n", score.Components.BiometricScore, progressBar(score.Components.BiometricScore, 25))
	fmt.Printf("  Coverage:  %d/25 %s\n", score.Components.CoverageScore, progressBar(score.Components.CoverageScore, 25))
	fmt.Printf("  Activity:  %d/25 %s\n", score.Components.ActivityScore, progressBar(score.Components.ActivityScore, 25))
	fmt.Println()

	if len(score.Issues) > 0 {
		fmt.Printf("Issues (%d):\n", len(score.Issues))
		for i, issue := range score.Issues {
			typeLabel := strings.ToUpper(string(issue.Type))
			idInfo := ""
			if issue.WalletID != "" {
				idInfo = fmt.Sprintf(" %s", issue.WalletID)
			}
			fmt.Printf("  %d. [%s]%s: %s\n", i+1, typeLabel, idInfo, issue.Description)
		}
		fmt.Println()
	}

	if len(score.Suggestions) > 0 && verbose {
		fmt.Println("Suggestions:")
		for _, suggestion := range score.Suggestions {
			fmt.Printf("  - %s\n", suggestion)
		}
		fmt.Println()
	}

	return nil
}

// progressBar creates a simple ASCII progress bar.
func progressBar(value, maxVal int) string {
	width := 20
	filled := value * width / maxVal
	empty := width - filled
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", empty) + "]"
}
