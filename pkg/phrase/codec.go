// Package phrase implements the bidirectional mapping between vocabulary
// token sequences and binary entropy, plus deterministic phrase generation
// from structured intent data.
//
// The codec follows the mnemonic-seed convention: each token contributes its
// 11-bit vocabulary index, packed most-significant-bit-first into a byte
// buffer of ceil(11*n/8) bytes. Trailing padding bits in the final byte are
// always zero on encode and are rejected on decode if non-zero.
package phrase

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/pil-lang/pilvault/pkg/vocab"
)

// WordBits is the number of entropy bits contributed by each token.
const WordBits = 11

// ValidLengths lists the accepted phrase lengths in tokens.
var ValidLengths = []int{12, 15, 18, 21, 24}

// Sentinel errors returned by the codec.
var (
	// ErrInvalidPhraseLength indicates a phrase whose token count is not one
	// of ValidLengths.
	ErrInvalidPhraseLength = errors.New("phrase: phrase must be 12, 15, 18, 21, or 24 tokens")

	// ErrEntropySize indicates an entropy buffer whose length does not match
	// the requested word count.
	ErrEntropySize = errors.New("phrase: entropy length does not match word count")

	// ErrEntropyPadding indicates non-zero trailing padding bits in the final
	// entropy byte. Encode never produces these, so their presence means the
	// buffer did not come from a well-formed phrase.
	ErrEntropyPadding = errors.New("phrase: non-zero padding bits in entropy")
)

// EntropyLen returns the entropy buffer length in bytes for a phrase of n
// tokens.
func EntropyLen(n int) int {
	return (n*WordBits + 7) / 8
}

// validLength reports whether n is an accepted phrase length.
func validLength(n int) bool {
	for _, l := range ValidLengths {
		if n == l {
			return true
		}
	}
	return false
}

// Encode converts a phrase to its entropy buffer. Every token must be in the
// vocabulary and the phrase must have a valid length.
func Encode(v *vocab.Vocabulary, tokens []string) ([]byte, error) {
	if !validLength(len(tokens)) {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPhraseLength, len(tokens))
	}

	out := make([]byte, EntropyLen(len(tokens)))
	pos := 0
	for _, tok := range tokens {
		idx, err := v.IndexOf(tok)
		if err != nil {
			return nil, err
		}
		for bit := WordBits - 1; bit >= 0; bit-- {
			if idx&(1<<bit) != 0 {
				out[pos/8] |= 1 << (7 - pos%8)
			}
			pos++
		}
	}
	return out, nil
}

// Decode converts an entropy buffer back to a phrase of wordCount tokens.
// It is the exact inverse of Encode. Buffers with non-zero padding bits are
// rejected with ErrEntropyPadding rather than silently truncated.
func Decode(v *vocab.Vocabulary, entropy []byte, wordCount int) ([]string, error) {
	if wordCount <= 0 {
		return nil, fmt.Errorf("%w: word count %d", ErrEntropySize, wordCount)
	}
	want := EntropyLen(wordCount)
	if len(entropy) != want {
		return nil, fmt.Errorf("%w: need %d bytes for %d tokens, got %d",
			ErrEntropySize, want, wordCount, len(entropy))
	}

	if pad := want*8 - wordCount*WordBits; pad > 0 {
		if entropy[want-1]&(1<<pad-1) != 0 {
			return nil, ErrEntropyPadding
		}
	}

	tokens := make([]string, 0, wordCount)
	pos := 0
	for i := 0; i < wordCount; i++ {
		idx := 0
		for bit := WordBits - 1; bit >= 0; bit-- {
			if entropy[pos/8]&(1<<(7-pos%8)) != 0 {
				idx |= 1 << bit
			}
			pos++
		}
		// An 11-bit index is always within the 2048-token vocabulary.
		tok, err := v.WordAt(idx)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

// Validate reports whether every token in the phrase is a vocabulary member.
// It does not check the phrase length.
func Validate(v *vocab.Vocabulary, tokens []string) bool {
	for _, tok := range tokens {
		if !v.Contains(tok) {
			return false
		}
	}
	return true
}

// NormalizeToken canonicalizes user-supplied token text: NFKD normalization,
// lower case, surrounding space stripped.
func NormalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKD.String(s)))
}

// Parse splits free text into normalized tokens. Any run of whitespace
// separates tokens; no vocabulary membership check is performed.
func Parse(s string) []string {
	fields := strings.Fields(norm.NFKD.String(s))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, strings.ToLower(f))
	}
	return tokens
}
