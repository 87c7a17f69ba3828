package wallet

import (
	"crypto/hmac"
	"crypto/sha256"
)

// BiometricMatcher turns raw biometric samples into stored templates and
// verifies later samples against them. Implementations decide what a
// template is; callers treat it as opaque bytes.
type BiometricMatcher interface {
	// Enroll derives the stored template from a raw sample.
	Enroll(sample []byte) []byte

	// Verify reports whether a sample matches a previously enrolled
	// template.
	Verify(sample, template []byte) bool
}

// DigestMatcher is the documented matcher: templates are SHA-256 digests and
// verification is constant-time digest equality. Only a byte-identical
// resubmission of the enrollment sample verifies; there is no similarity
// tolerance. A production deployment must substitute a similarity-scoring
// matcher behind the same interface.
type DigestMatcher struct{}

// Enroll implements BiometricMatcher.
func (DigestMatcher) Enroll(sample []byte) []byte {
	sum := sha256.Sum256(sample)
	return sum[:]
}

// Verify implements BiometricMatcher.
func (DigestMatcher) Verify(sample, template []byte) bool {
	sum := sha256.Sum256(sample)
	return hmac.Equal(sum[:], template)
}
