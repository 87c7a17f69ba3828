package security

import (
	"fmt"

	"github.com/pil-lang/pilvault/pkg/wallet"
)

// fullBiometricStrength is the profile strength when every factor kind is
// enrolled (voice 1 + retina 2 + fingerprint 1 + face 1).
const fullBiometricStrength = 5

// recentFailureThreshold is the number of trailing failed attempts that
// raises a critical issue for a wallet.
const recentFailureThreshold = 3

// SecurityScore represents the overall security assessment of a registry.
type SecurityScore struct {
	// Overall is the total score (0-100).
	Overall int `json:"overall"`
	// Components breaks down the score into categories.
	Components ScoreComponents `json:"components"`
	// Issues contains the detected security issues.
	Issues []SecurityIssue `json:"issues"`
	// Suggestions provides actionable recommendations.
	Suggestions []string `json:"suggestions"`
}

// ScoreComponents breaks down the security score into categories.
// Each component contributes up to 25 points (total: 100).
type ScoreComponents struct {
	// PhraseScore is based on recovery phrase entropy (0-25).
	PhraseScore int `json:"phrase"`
	// BiometricScore is based on average biometric profile strength (0-25).
	BiometricScore int `json:"biometric"`
	// CoverageScore is based on the share of wallets with at least one
	// biometric enrolled (0-25).
	CoverageScore int `json:"coverage"`
	// ActivityScore is based on the authentication success ratio (0-25).
	ActivityScore int `json:"activity"`
}

// IssueType identifies the type of security issue.
type IssueType string

const (
	// IssueNoBiometric indicates a wallet protected by its phrase alone.
	IssueNoBiometric IssueType = "no_biometric"
	// IssueWeakBiometric indicates a wallet whose enrolled factors cannot
	// satisfy the two-point requirement on their own.
	IssueWeakBiometric IssueType = "weak_biometric"
	// IssueFailedAttempts indicates repeated authentication failures.
	IssueFailedAttempts IssueType = "failed_attempts"
	// IssueShortPhrase indicates a phrase below 128 bits of entropy.
	IssueShortPhrase IssueType = "short_phrase"
)

// Severity indicates the urgency of a security issue.
type Severity string

const (
	// SeverityCritical requires immediate attention.
	SeverityCritical Severity = "critical"
	// SeverityWarning should be addressed soon.
	SeverityWarning Severity = "warning"
	// SeverityInfo is informational only.
	SeverityInfo Severity = "info"
)

// SecurityIssue represents a detected security problem.
type SecurityIssue struct {
	// Type identifies the category of issue.
	Type IssueType `json:"type"`
	// Severity indicates urgency.
	Severity Severity `json:"severity"`
	// WalletID is the affected wallet (may be empty for privacy).
	WalletID string `json:"wallet_id,omitempty"`
	// Description explains the issue.
	Description string `json:"description"`
	// Suggestion provides remediation guidance.
	Suggestion string `json:"suggestion,omitempty"`
}

// Calculator computes security scores for a wallet registry.
type Calculator struct {
	registry *wallet.Registry
}

// NewCalculator creates a new security calculator for the given registry.
func NewCalculator(r *wallet.Registry) *Calculator {
	return &Calculator{registry: r}
}

// CalculateScore computes the full security score for the registry.
// When includeIDs is false, wallet ids are omitted from issues.
func (c *Calculator) CalculateScore(includeIDs bool) (*SecurityScore, error) {
	ids := c.registry.IDs()

	// Empty registry: perfect score
	if len(ids) == 0 {
		return &SecurityScore{
			Overall: 100,
			Components: ScoreComponents{
				PhraseScore:    25,
				BiometricScore: 25,
				CoverageScore:  25,
				ActivityScore:  25,
			},
			Issues:      []SecurityIssue{},
			Suggestions: []string{},
		}, nil
	}

	var wallets []*wallet.Wallet
	for _, id := range ids {
		w, err := c.registry.Wallet(id)
		if err != nil {
			continue
		}
		wallets = append(wallets, w)
	}

	phraseScore, phraseIssues := c.calculatePhraseScore(wallets, includeIDs)
	biometricScore, biometricIssues := c.calculateBiometricScore(wallets, includeIDs)
	coverageScore := c.calculateCoverageScore(wallets)
	activityScore, activityIssues := c.calculateActivityScore(wallets, includeIDs)

	allIssues := make([]SecurityIssue, 0)
	allIssues = append(allIssues, phraseIssues...)
	allIssues = append(allIssues, biometricIssues...)
	allIssues = append(allIssues, activityIssues...)

	suggestions := c.generateSuggestions(allIssues)

	return &SecurityScore{
		Overall: phraseScore + biometricScore + coverageScore + activityScore,
		Components: ScoreComponents{
			PhraseScore:    phraseScore,
			BiometricScore: biometricScore,
			CoverageScore:  coverageScore,
			ActivityScore:  activityScore,
		},
		Issues:      allIssues,
		Suggestions: suggestions,
	}, nil
}

// calculatePhraseScore evaluates recovery phrase entropy across wallets.
// Returns score (0-25) and short-phrase issues.
func (c *Calculator) calculatePhraseScore(wallets []*wallet.Wallet, includeIDs bool) (int, []SecurityIssue) {
	var issues []SecurityIssue
	totalPoints := 0

	for _, w := range wallets {
		tokenCount := len(w.Phrase())
		strength := CalculatePhraseStrength(tokenCount)
		totalPoints += strength.Points()

		if strength < PasswordStrong {
			issue := SecurityIssue{
				Type:        IssueShortPhrase,
				Severity:    SeverityInfo,
				Description: fmt.Sprintf("Recovery phrase holds %d bits of entropy", tokenCount*11),
				Suggestion:  "Restore the wallet from a longer phrase",
			}
			if includeIDs {
				issue.WalletID = w.ID()
			}
			issues = append(issues, issue)
		}
	}

	score := totalPoints / len(wallets)
	if score > 25 {
		score = 25
	}
	return score, issues
}

// calculateBiometricScore evaluates biometric profile strength.
// Returns score (0-25) and weak-biometric issues.
func (c *Calculator) calculateBiometricScore(wallets []*wallet.Wallet, includeIDs bool) (int, []SecurityIssue) {
	var issues []SecurityIssue
	totalStrength := 0

	for _, w := range wallets {
		strength := w.Profile().Strength()
		totalStrength += strength

		switch {
		case strength == 0:
			issue := SecurityIssue{
				Type:        IssueNoBiometric,
				Severity:    SeverityWarning,
				Description: "Wallet is protected by its phrase alone",
				Suggestion:  "Enroll a voice or retina template",
			}
			if includeIDs {
				issue.WalletID = w.ID()
			}
			issues = append(issues, issue)
		case strength < 2:
			issue := SecurityIssue{
				Type:        IssueWeakBiometric,
				Severity:    SeverityInfo,
				Description: "Enrolled factors cannot meet the two-point requirement alone",
				Suggestion:  "Enroll a retina template or a second factor",
			}
			if includeIDs {
				issue.WalletID = w.ID()
			}
			issues = append(issues, issue)
		}
	}

	// Scale average strength (0-5) to 0-25
	score := totalStrength * 25 / (fullBiometricStrength * len(wallets))
	return score, issues
}

// calculateCoverageScore evaluates the share of wallets with at least one
// biometric factor enrolled.
func (c *Calculator) calculateCoverageScore(wallets []*wallet.Wallet) int {
	covered := 0
	for _, w := range wallets {
		if w.Profile().Strength() > 0 {
			covered++
		}
	}
	return covered * 25 / len(wallets)
}

// calculateActivityScore evaluates the authentication success ratio.
// Returns score (0-25) and repeated-failure issues.
func (c *Calculator) calculateActivityScore(wallets []*wallet.Wallet, includeIDs bool) (int, []SecurityIssue) {
	var issues []SecurityIssue
	total := 0
	successful := 0

	for _, w := range wallets {
		log := w.AccessLog()
		trailingFailures := 0
		for _, entry := range log {
			total++
			if entry.Outcome == wallet.OutcomeSuccessful {
				successful++
				trailingFailures = 0
			} else {
				trailingFailures++
			}
		}

		if trailingFailures >= recentFailureThreshold {
			issue := SecurityIssue{
				Type:     IssueFailedAttempts,
				Severity: SeverityCritical,
				Description: fmt.Sprintf("Last %d authentication attempts failed",
					trailingFailures),
				Suggestion: "Verify the wallet is not under attack",
			}
			if includeIDs {
				issue.WalletID = w.ID()
			}
			issues = append(issues, issue)
		}
	}

	// No attempts yet: full score (N/A)
	if total == 0 {
		return 25, issues
	}

	return successful * 25 / total, issues
}

// generateSuggestions creates actionable recommendations based on issues.
func (c *Calculator) generateSuggestions(issues []SecurityIssue) []string {
	var suggestions []string
	hasNoBiometric := false
	hasWeakBiometric := false
	hasFailures := false

	for _, issue := range issues {
		switch issue.Type {
		case IssueNoBiometric:
			hasNoBiometric = true
		case IssueWeakBiometric:
			hasWeakBiometric = true
		case IssueFailedAttempts:
			hasFailures = true
		}
	}

	if hasNoBiometric {
		suggestions = append(suggestions, "Enroll biometric templates on phrase-only wallets")
	}
	if hasWeakBiometric {
		suggestions = append(suggestions, "Enroll retina templates so biometric factors can satisfy the requirement alone")
	}
	if hasFailures {
		suggestions = append(suggestions, "Review the access log of wallets with repeated failures")
	}

	return suggestions
}
