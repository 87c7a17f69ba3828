package mcp

import (
	"testing"
)

func TestMaskValue(t *testing.T) {
	tests := []struct {
		name     string
		value    []byte
		expected string
	}{
		{"empty value", []byte{}, ""},
		{"1 character", []byte("a"), "*"},
		{"4 characters", []byte("abcd"), "****"},
		{"5 characters", []byte("abcde"), "***de"},
		{"8 characters", []byte("abcdefgh"), "******gh"},
		{"9 characters", []byte("abcdefghi"), "*****fghi"},
		{"long value", []byte("sk-proj-1234567890abcdef"), "********************cdef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := maskValue(tt.value)
			if result != tt.expected {
				t.Errorf("maskValue(%q) = %q, want %q", tt.value, result, tt.expected)
			}
		})
	}
}
