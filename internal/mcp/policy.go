package mcp

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Policy controls which vault tools an MCP client may call. It is loaded
// from the store directory and must be owned by the current user with 0600
// permissions, since a writable policy is equivalent to vault access.
type Policy struct {
	Version       int      `yaml:"version"`
	DefaultAction string   `yaml:"default_action"`
	DeniedTools   []string `yaml:"denied_tools"`
	AllowedTools  []string `yaml:"allowed_tools"`

	// AllowReveal permits wallet_retrieve to return plaintext instead of a
	// masked value. Off unless explicitly enabled.
	AllowReveal bool `yaml:"allow_reveal"`
}

// PolicyFileName is the name of the policy file in the store directory.
const PolicyFileName = "mcp-policy.yaml"

// Policy action constants.
const (
	ActionAllow = "allow"
	ActionDeny  = "deny"
)

// Policy loading errors.
var (
	ErrPolicyNotFound       = errors.New("MCP policy file not found")
	ErrPolicyInsecure       = errors.New("MCP policy file has insecure permissions")
	ErrPolicySymlink        = errors.New("MCP policy file is a symlink")
	ErrPolicyNotOwnedByUser = errors.New("MCP policy file not owned by current user")
)

// LoadPolicy loads the MCP policy from the store directory. Loading is
// TOCTOU-safe: the file is opened without following symlinks and all checks
// run against the opened descriptor.
func LoadPolicy(storePath string) (*Policy, error) {
	policyPath := filepath.Join(storePath, PolicyFileName)

	f, err := openPolicyFile(policyPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat policy file: %w", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		return nil, fmt.Errorf("%w: %o (expected 0600)", ErrPolicyInsecure, perm)
	}
	if err := checkFileOwnership(info); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var policy Policy
	if err := yaml.Unmarshal(content, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if policy.Version != 1 {
		return nil, fmt.Errorf("unsupported policy version: %d", policy.Version)
	}
	if policy.DefaultAction == "" {
		policy.DefaultAction = ActionDeny
	}
	return &policy, nil
}

// IsToolAllowed checks whether a tool may be called. Denied entries win over
// allowed entries; unlisted tools fall through to the default action.
func (p *Policy) IsToolAllowed(tool string) (allowed bool, reason string) {
	for _, denied := range p.DeniedTools {
		if denied == tool {
			return false, fmt.Sprintf("tool '%s' matches denied_tools", tool)
		}
	}
	for _, name := range p.AllowedTools {
		if name == tool {
			return true, ""
		}
	}
	if p.DefaultAction == ActionAllow {
		return true, ""
	}
	return false, fmt.Sprintf("tool '%s' not in allowed_tools list", tool)
}

// Validate checks the policy configuration.
func (p *Policy) Validate() error {
	if p.Version != 1 {
		return fmt.Errorf("unsupported policy version: %d", p.Version)
	}
	if p.DefaultAction != ActionDeny && p.DefaultAction != ActionAllow {
		return fmt.Errorf("invalid default_action: %s (must be '%s' or '%s')",
			p.DefaultAction, ActionDeny, ActionAllow)
	}
	return nil
}
