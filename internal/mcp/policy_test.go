package mcp

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writePolicy(t *testing.T, dir, content string, mode os.FileMode) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, PolicyFileName), []byte(content), mode); err != nil {
		t.Fatal(err)
	}
}

func TestLoadPolicy(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, `
version: 1
default_action: deny
allowed_tools:
  - wallet_status
  - phrase_generate
denied_tools:
  - wallet_retrieve
allow_reveal: false
`, 0600)

	policy, err := LoadPolicy(dir)
	if err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}
	if err := policy.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
	if policy.AllowReveal {
		t.Error("allow_reveal must be false")
	}
}

func TestLoadPolicyMissing(t *testing.T) {
	if _, err := LoadPolicy(t.TempDir()); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("expected ErrPolicyNotFound, got %v", err)
	}
}

func TestLoadPolicyInsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "version: 1\n", 0644)

	if _, err := LoadPolicy(dir); !errors.Is(err, ErrPolicyInsecure) {
		t.Errorf("expected ErrPolicyInsecure, got %v", err)
	}
}

func TestLoadPolicyUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "version: 2\n", 0600)

	if _, err := LoadPolicy(dir); err == nil {
		t.Error("expected error for unsupported version")
	}
}

func TestLoadPolicyDefaultsToDeny(t *testing.T) {
	dir := t.TempDir()
	writePolicy(t, dir, "version: 1\n", 0600)

	policy, err := LoadPolicy(dir)
	if err != nil {
		t.Fatal(err)
	}
	if policy.DefaultAction != ActionDeny {
		t.Errorf("default action = %q, want %q", policy.DefaultAction, ActionDeny)
	}
}

func TestIsToolAllowed(t *testing.T) {
	policy := &Policy{
		Version:       1,
		DefaultAction: ActionDeny,
		AllowedTools:  []string{"wallet_status", "wallet_authenticate"},
		DeniedTools:   []string{"wallet_authenticate"},
	}

	tests := []struct {
		tool string
		want bool
	}{
		{"wallet_status", true},
		{"wallet_authenticate", false}, // denied wins over allowed
		{"wallet_retrieve", false},     // unlisted falls to default deny
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			got, reason := policy.IsToolAllowed(tt.tool)
			if got != tt.want {
				t.Errorf("IsToolAllowed(%q) = %v (%s), want %v", tt.tool, got, reason, tt.want)
			}
		})
	}
}

func TestIsToolAllowedDefaultAllow(t *testing.T) {
	policy := &Policy{
		Version:       1,
		DefaultAction: ActionAllow,
		DeniedTools:   []string{"wallet_retrieve"},
	}
	if ok, _ := policy.IsToolAllowed("wallet_status"); !ok {
		t.Error("unlisted tool must be allowed under default_action allow")
	}
	if ok, _ := policy.IsToolAllowed("wallet_retrieve"); ok {
		t.Error("denied tool must stay denied under default_action allow")
	}
}
