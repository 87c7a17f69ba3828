// Package vocab provides the fixed vocabulary used for phrase encoding.
//
// The vocabulary is an ordered list of exactly 2048 unique tokens, giving each
// token an 11-bit index. The list is partitioned into contiguous slices, one
// per perceptual domain, so that generated phrases can be drawn from a single
// domain's tokens.
//
// The vocabulary is immutable after construction. Build it once at startup
// with New and pass it to every component that needs it; there is no package
// level instance.
package vocab

import (
	"crypto/rand"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Size is the number of tokens in the vocabulary (2^11).
const Size = 2048

// Sentinel errors returned by vocabulary lookups.
var (
	// ErrIndexOutOfRange indicates an index outside [0, Size).
	ErrIndexOutOfRange = errors.New("vocab: index out of range")

	// ErrUnknownToken indicates a token that is not in the vocabulary.
	ErrUnknownToken = errors.New("vocab: token not in vocabulary")

	// ErrUnknownDomain indicates an unrecognized perceptual domain tag.
	ErrUnknownDomain = errors.New("vocab: unknown perceptual domain")
)

// Domain identifies a perceptual domain, each owning a contiguous slice of
// the vocabulary.
type Domain string

// The seven perceptual domains, in vocabulary order.
const (
	Sight     Domain = "sight"
	Sound     Domain = "sound"
	Touch     Domain = "touch"
	Taste     Domain = "taste"
	Smell     Domain = "smell"
	Emotion   Domain = "emotion"
	Cognition Domain = "cognition"
)

// domains lists all domains in slice order. The position in this slice
// determines which vocabulary range a domain owns.
var domains = []Domain{Sight, Sound, Touch, Taste, Smell, Emotion, Cognition}

// Domains returns all perceptual domains in vocabulary order.
func Domains() []Domain {
	out := make([]Domain, len(domains))
	copy(out, domains)
	return out
}

// ParseDomain converts a domain tag string to a Domain.
func ParseDomain(s string) (Domain, error) {
	for _, d := range domains {
		if string(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDomain, s)
}

//go:embed wordlist.txt
var wordlistRaw string

// Vocabulary is the ordered, fixed-size token set. The zero value is not
// usable; construct with New.
type Vocabulary struct {
	words []string
	index map[string]int
}

// New builds the vocabulary from the embedded wordlist. It panics if the
// embedded list is malformed, since that is a build defect rather than a
// runtime condition.
func New() *Vocabulary {
	words := strings.Fields(wordlistRaw)
	if len(words) != Size {
		panic(fmt.Sprintf("vocab: embedded wordlist has %d tokens, want %d", len(words), Size))
	}
	index := make(map[string]int, Size)
	for i, w := range words {
		if _, dup := index[w]; dup {
			panic(fmt.Sprintf("vocab: duplicate token %q in embedded wordlist", w))
		}
		index[w] = i
	}
	return &Vocabulary{words: words, index: index}
}

// Len returns the number of tokens in the vocabulary.
func (v *Vocabulary) Len() int {
	return len(v.words)
}

// WordAt returns the token at the given index.
func (v *Vocabulary) WordAt(i int) (string, error) {
	if i < 0 || i >= len(v.words) {
		return "", fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return v.words[i], nil
}

// IndexOf returns the index of the given token.
func (v *Vocabulary) IndexOf(token string) (int, error) {
	i, ok := v.index[token]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownToken, token)
	}
	return i, nil
}

// Contains reports whether the token is in the vocabulary.
func (v *Vocabulary) Contains(token string) bool {
	_, ok := v.index[token]
	return ok
}

// domainRange returns the half-open token index range owned by the i-th
// domain. Each domain owns min(64, Size/7) tokens except the final domain,
// which extends to the end of the vocabulary. This arithmetic is part of the
// cross-implementation phrase compatibility contract and must not change.
func domainRange(i int) (start, end int) {
	size := Size / len(domains)
	if size > 64 {
		size = 64
	}
	start = i * size
	end = start + size
	if i == len(domains)-1 {
		end = Size
	}
	return start, end
}

// DomainSlice returns the tokens owned by the given domain. The returned
// slice shares the vocabulary's backing array and must not be modified.
func (v *Vocabulary) DomainSlice(d Domain) ([]string, error) {
	for i, dom := range domains {
		if dom == d {
			start, end := domainRange(i)
			return v.words[start:end], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, string(d))
}

// DomainWords returns n tokens sampled uniformly at random from the domain's
// slice, with replacement. This is a convenience for suggesting memorable
// tokens; it is unrelated to phrase generation, which is deterministic.
func (v *Vocabulary) DomainWords(d Domain, n int) ([]string, error) {
	words, err := v.DomainSlice(d)
	if err != nil {
		return nil, err
	}
	max := big.NewInt(int64(len(words)))
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		r, err := rand.Int(rand.Reader, max)
		if err != nil {
			return nil, fmt.Errorf("vocab: failed to sample domain word: %w", err)
		}
		out = append(out, words[r.Int64()])
	}
	return out, nil
}
