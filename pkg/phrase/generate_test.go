package phrase

import (
	"errors"
	"testing"

	"github.com/pil-lang/pilvault/pkg/vocab"
)

func TestGenerateLengthAndMembership(t *testing.T) {
	v := vocab.New()

	for _, d := range vocab.Domains() {
		tokens, err := Generate(v, d, Intent{"mood": "calm", "tempo": "slow"})
		if err != nil {
			t.Fatalf("Generate(%s) failed: %v", d, err)
		}
		if len(tokens) != GeneratedLength {
			t.Fatalf("Generate(%s) returned %d tokens, want %d", d, len(tokens), GeneratedLength)
		}

		slice, err := v.DomainSlice(d)
		if err != nil {
			t.Fatal(err)
		}
		members := make(map[string]bool, len(slice))
		for _, w := range slice {
			members[w] = true
		}
		for _, tok := range tokens {
			if !members[tok] {
				t.Errorf("domain %s: generated token %q outside domain slice", d, tok)
			}
		}
	}
}

func TestGenerateDeterministic(t *testing.T) {
	v := vocab.New()

	a, err := Generate(v, vocab.Cognition, Intent{"trust_level": "high", "scope": "vault", "role": "owner"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	// Same entries, different construction order.
	b, err := Generate(v, vocab.Cognition, Intent{"role": "owner", "scope": "vault", "trust_level": "high"})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("generation not order independent: %v vs %v", a, b)
		}
	}
}

func TestGenerateDistinguishesIntents(t *testing.T) {
	v := vocab.New()

	a, err := Generate(v, vocab.Cognition, Intent{"trust_level": "high"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate(v, vocab.Cognition, Intent{"trust_level": "low"})
	if err != nil {
		t.Fatal(err)
	}

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct intents generated identical phrases")
	}
}

func TestGenerateUnknownDomain(t *testing.T) {
	v := vocab.New()

	if _, err := Generate(v, "vision", Intent{"k": "v"}); !errors.Is(err, vocab.ErrUnknownDomain) {
		t.Errorf("expected ErrUnknownDomain, got %v", err)
	}
}

func TestIntentCanonicalStable(t *testing.T) {
	a := Intent{"b": "2", "a": "1", "c": "3"}
	want := "a=1\nb=2\nc=3\n"
	if got := string(a.Canonical()); got != want {
		t.Errorf("Canonical = %q, want %q", got, want)
	}

	if got := string(Intent{}.Canonical()); got != "" {
		t.Errorf("empty intent Canonical = %q, want empty", got)
	}
}

func TestGeneratedPhraseEncodes(t *testing.T) {
	v := vocab.New()

	tokens, err := Generate(v, vocab.Cognition, Intent{"trust_level": "high"})
	if err != nil {
		t.Fatal(err)
	}
	entropy, err := Encode(v, tokens)
	if err != nil {
		t.Fatalf("generated phrase did not encode: %v", err)
	}
	if len(entropy) != EntropyLen(GeneratedLength) {
		t.Errorf("entropy length %d, want %d", len(entropy), EntropyLen(GeneratedLength))
	}
}
