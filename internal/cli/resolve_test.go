package cli

import (
	"strings"
	"testing"
)

var testIDs = []string{
	"1a2b3c4d5e6f7a8b",
	"1a9f00112233aabb",
	"ff00112233445566",
}

func TestResolveWalletIDExact(t *testing.T) {
	id, err := ResolveWalletID("ff00112233445566", testIDs)
	if err != nil {
		t.Fatal(err)
	}
	if id != "ff00112233445566" {
		t.Errorf("got %s", id)
	}
}

func TestResolveWalletIDUniquePrefix(t *testing.T) {
	id, err := ResolveWalletID("ff", testIDs)
	if err != nil {
		t.Fatal(err)
	}
	if id != "ff00112233445566" {
		t.Errorf("got %s", id)
	}
}

func TestResolveWalletIDAmbiguousPrefix(t *testing.T) {
	_, err := ResolveWalletID("1a", testIDs)
	if err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Errorf("expected ambiguity error, got %v", err)
	}
}

func TestResolveWalletIDNotFound(t *testing.T) {
	if _, err := ResolveWalletID("deadbeef", testIDs); err == nil {
		t.Error("expected not-found error")
	}
	if _, err := ResolveWalletID("", testIDs); err == nil {
		t.Error("expected error for empty reference")
	}
}

func TestExpandPatternGlob(t *testing.T) {
	matches, err := ExpandPattern("1a*", testIDs)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Errorf("got %v, want 2 matches", matches)
	}
}

func TestExpandPatternNoMatch(t *testing.T) {
	if _, err := ExpandPattern("zz*", testIDs); err == nil {
		t.Error("expected no-match error")
	}
}

func TestExpandPatternExactFallback(t *testing.T) {
	matches, err := ExpandPattern("ff", testIDs)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0] != "ff00112233445566" {
		t.Errorf("got %v", matches)
	}
}

func TestExpandPatternInvalid(t *testing.T) {
	if _, err := ExpandPattern("[", testIDs); err == nil {
		t.Error("expected invalid pattern error")
	}
}
