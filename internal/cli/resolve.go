// Package cli provides shared utilities for CLI commands.
package cli

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveWalletID resolves a user-supplied wallet reference against the
// known ids. Accepts an exact id or a unique prefix, so short references
// work the way abbreviated commit hashes do.
func ResolveWalletID(ref string, ids []string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("wallet id is required")
	}

	var matches []string
	for _, id := range ids {
		if id == ref {
			return id, nil
		}
		if strings.HasPrefix(id, ref) {
			matches = append(matches, id)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("wallet '%s' not found", ref)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("wallet reference '%s' is ambiguous (%d matches)", ref, len(matches))
	}
}

// ExpandPattern expands a glob pattern against available wallet ids.
// If the pattern contains glob characters (*?[), it performs glob matching.
// Otherwise, it resolves an exact id or unique prefix.
func ExpandPattern(pattern string, ids []string) ([]string, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
	}

	if !strings.ContainsAny(pattern, "*?[") {
		id, err := ResolveWalletID(pattern, ids)
		if err != nil {
			return nil, err
		}
		return []string{id}, nil
	}

	var matches []string
	for _, id := range ids {
		matched, err := filepath.Match(pattern, id)
		if err != nil {
			return nil, err
		}
		if matched {
			matches = append(matches, id)
		}
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("no wallets match pattern '%s'", pattern)
	}

	return matches, nil
}
