package security

import "testing"

func TestCalculatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     PasswordStrength
	}{
		{"empty", "", PasswordWeak},
		{"seven chars", "abcdefg", PasswordWeak},
		{"eight chars", "abcdefgh", PasswordFair},
		{"thirteen chars", "abcdefghijklm", PasswordFair},
		{"fourteen chars", "abcdefghijklmn", PasswordGood},
		{"twenty chars", "abcdefghijklmnopqrst", PasswordStrong},
		{"passphrase", "correct horse battery staple", PasswordStrong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculatePasswordStrength(tt.password); got != tt.want {
				t.Errorf("CalculatePasswordStrength(%q) = %s, want %s", tt.password, got, tt.want)
			}
		})
	}
}

func TestCalculatePhraseStrength(t *testing.T) {
	tests := []struct {
		tokens int
		want   PasswordStrength
	}{
		{0, PasswordWeak},
		{5, PasswordWeak},
		{6, PasswordFair},
		{9, PasswordGood},
		{12, PasswordStrong},
		{24, PasswordStrong},
	}

	for _, tt := range tests {
		if got := CalculatePhraseStrength(tt.tokens); got != tt.want {
			t.Errorf("CalculatePhraseStrength(%d) = %s, want %s", tt.tokens, got, tt.want)
		}
	}
}

func TestPasswordStrengthString(t *testing.T) {
	if PasswordWeak.String() != "Weak" || PasswordStrong.String() != "Strong" {
		t.Error("unexpected strength names")
	}
	if PasswordStrength(99).String() != "Unknown" {
		t.Error("out-of-range strength must be Unknown")
	}
}

func TestPasswordStrengthPoints(t *testing.T) {
	if PasswordWeak.Points() != 0 || PasswordFair.Points() != 8 ||
		PasswordGood.Points() != 17 || PasswordStrong.Points() != 25 {
		t.Error("unexpected point values")
	}
}
