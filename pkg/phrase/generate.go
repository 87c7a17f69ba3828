package phrase

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/pil-lang/pilvault/pkg/vocab"
)

// GeneratedLength is the token count of generated phrases.
const GeneratedLength = 12

// Intent is structured data describing perceptual requirements. Values are
// plain strings; callers encode richer structures before building the map.
// The map is canonicalized before hashing, so entry order never affects the
// generated phrase.
type Intent map[string]string

// Canonical returns the stable serialized form of the intent: entries sorted
// by key, rendered as key=value lines. This exact form is hashed by Generate
// and is part of the cross-implementation compatibility contract.
func (in Intent) Canonical() []byte {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(in[k])
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// Generate derives a 12-token phrase from the intent data, drawing tokens
// from the given domain's vocabulary slice.
//
// The derivation hashes the canonical intent form with SHA-256, then walks
// the digest two bytes at a time (wrapping when exhausted), reducing each
// big-endian window modulo the domain size to select a token. The result is
// deterministic for identical (domain, intent) pairs and every token is a
// valid dictionary member, but the selection is not uniform and must not be
// treated as a source of unpredictability.
func Generate(v *vocab.Vocabulary, d vocab.Domain, intent Intent) ([]string, error) {
	words, err := v.DomainSlice(d)
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("phrase: domain %s has no tokens", d)
	}

	digest := sha256.Sum256(intent.Canonical())

	tokens := make([]string, 0, GeneratedLength)
	off := 0
	for i := 0; i < GeneratedLength; i++ {
		window := binary.BigEndian.Uint16(digest[off : off+2])
		tokens = append(tokens, words[int(window)%len(words)])
		off = (off + 2) % len(digest)
	}
	return tokens, nil
}
