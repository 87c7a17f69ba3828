package vocab

import (
	"errors"
	"testing"
)

func TestNewSizeAndUniqueness(t *testing.T) {
	v := New()

	if v.Len() != Size {
		t.Fatalf("expected %d tokens, got %d", Size, v.Len())
	}

	seen := make(map[string]bool, Size)
	for i := 0; i < Size; i++ {
		w, err := v.WordAt(i)
		if err != nil {
			t.Fatalf("WordAt(%d) failed: %v", i, err)
		}
		if seen[w] {
			t.Fatalf("duplicate token %q at index %d", w, i)
		}
		seen[w] = true
	}
}

func TestBijection(t *testing.T) {
	v := New()

	for i := 0; i < Size; i++ {
		w, err := v.WordAt(i)
		if err != nil {
			t.Fatalf("WordAt(%d) failed: %v", i, err)
		}
		back, err := v.IndexOf(w)
		if err != nil {
			t.Fatalf("IndexOf(%q) failed: %v", w, err)
		}
		if back != i {
			t.Errorf("IndexOf(WordAt(%d)) = %d", i, back)
		}
	}
}

func TestWordAtOutOfRange(t *testing.T) {
	v := New()

	for _, i := range []int{-1, Size, Size + 100} {
		if _, err := v.WordAt(i); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("WordAt(%d): expected ErrIndexOutOfRange, got %v", i, err)
		}
	}
}

func TestIndexOfUnknownToken(t *testing.T) {
	v := New()

	if _, err := v.IndexOf("definitely-not-a-token"); !errors.Is(err, ErrUnknownToken) {
		t.Errorf("expected ErrUnknownToken, got %v", err)
	}
	if v.Contains("definitely-not-a-token") {
		t.Error("Contains returned true for unknown token")
	}
}

func TestDomainRanges(t *testing.T) {
	v := New()

	// With 2048 tokens and 7 domains, each domain owns 64 tokens except
	// cognition, which extends to the end of the vocabulary.
	sizes := map[Domain]int{
		Sight:     64,
		Sound:     64,
		Touch:     64,
		Taste:     64,
		Smell:     64,
		Emotion:   64,
		Cognition: Size - 6*64,
	}

	total := 0
	for d, want := range sizes {
		words, err := v.DomainSlice(d)
		if err != nil {
			t.Fatalf("DomainSlice(%s) failed: %v", d, err)
		}
		if len(words) != want {
			t.Errorf("domain %s: expected %d tokens, got %d", d, want, len(words))
		}
		total += len(words)
	}
	if total != Size {
		t.Errorf("domain slices cover %d tokens, want %d", total, Size)
	}
}

func TestDomainDisjointness(t *testing.T) {
	v := New()

	owner := make(map[string]Domain)
	for _, d := range Domains() {
		words, err := v.DomainSlice(d)
		if err != nil {
			t.Fatalf("DomainSlice(%s) failed: %v", d, err)
		}
		for _, w := range words {
			if prev, ok := owner[w]; ok {
				t.Fatalf("token %q owned by both %s and %s", w, prev, d)
			}
			owner[w] = d
		}
	}
}

func TestParseDomain(t *testing.T) {
	tests := []struct {
		in      string
		want    Domain
		wantErr bool
	}{
		{"sight", Sight, false},
		{"cognition", Cognition, false},
		{"emotion", Emotion, false},
		{"vision", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParseDomain(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownDomain) {
				t.Errorf("ParseDomain(%q): expected ErrUnknownDomain, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDomain(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDomain(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestDomainWords(t *testing.T) {
	v := New()

	words, err := v.DomainWords(Smell, 12)
	if err != nil {
		t.Fatalf("DomainWords failed: %v", err)
	}
	if len(words) != 12 {
		t.Fatalf("expected 12 words, got %d", len(words))
	}

	slice, err := v.DomainSlice(Smell)
	if err != nil {
		t.Fatalf("DomainSlice failed: %v", err)
	}
	members := make(map[string]bool, len(slice))
	for _, w := range slice {
		members[w] = true
	}
	for _, w := range words {
		if !members[w] {
			t.Errorf("sampled word %q not in smell domain", w)
		}
	}

	if _, err := v.DomainWords("bogus", 3); !errors.Is(err, ErrUnknownDomain) {
		t.Errorf("expected ErrUnknownDomain, got %v", err)
	}
}
