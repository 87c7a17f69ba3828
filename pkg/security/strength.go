// Package security provides security assessment for wallets and the store
// master password.
package security

// PasswordStrength represents the strength level of a password or phrase.
type PasswordStrength int

const (
	// PasswordWeak indicates an insecure password (less than 8 chars).
	PasswordWeak PasswordStrength = iota
	// PasswordFair indicates a minimally acceptable password.
	PasswordFair
	// PasswordGood indicates a good password.
	PasswordGood
	// PasswordStrong indicates a strong password.
	PasswordStrong
)

// String returns a human-readable representation of the password strength.
func (s PasswordStrength) String() string {
	switch s {
	case PasswordWeak:
		return "Weak"
	case PasswordFair:
		return "Fair"
	case PasswordGood:
		return "Good"
	case PasswordStrong:
		return "Strong"
	default:
		return "Unknown"
	}
}

// Points returns the score points for this strength level.
// Used in score calculation: Weak=0, Fair=8, Good=17, Strong=25.
func (s PasswordStrength) Points() int {
	switch s {
	case PasswordWeak:
		return 0
	case PasswordFair:
		return 8
	case PasswordGood:
		return 17
	case PasswordStrong:
		return 25
	default:
		return 0
	}
}

// CalculatePasswordStrength evaluates a human-created master password.
// Length is the primary factor per NIST guidelines (composition rules
// discouraged). NIST SP 800-63B recommends:
// - Minimum 8 characters for user-chosen passwords
// - No complexity requirements (uppercase, numbers, symbols)
// - Focus on length and avoiding compromised passwords
func CalculatePasswordStrength(value string) PasswordStrength {
	length := len(value)

	switch {
	case length >= 20:
		return PasswordStrong
	case length >= 14:
		return PasswordGood
	case length >= 8:
		return PasswordFair
	default:
		return PasswordWeak
	}
}

// CalculatePhraseStrength evaluates a recovery phrase by its entropy.
// Each token carries 11 bits, so a 12-token phrase holds 132 bits:
// - 128+ bits: Strong
// - 96+ bits: Good
// - 64+ bits: Fair
// - Less than 64: Weak
func CalculatePhraseStrength(tokenCount int) PasswordStrength {
	bits := tokenCount * 11

	switch {
	case bits >= 128:
		return PasswordStrong
	case bits >= 96:
		return PasswordGood
	case bits >= 64:
		return PasswordFair
	default:
		return PasswordWeak
	}
}
