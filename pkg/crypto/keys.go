package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
)

// Domain-separation tags for the digest-chain deriver.
const (
	privateTag = "private"
	publicTag  = "public"
)

// KeyPair is the (secret, verifier) byte pair derived from phrase entropy.
// Private authorizes encryption of wallet contents; Public can only be used
// to re-derive and compare, never to verify real signatures unless an
// asymmetric deriver produced it.
type KeyPair struct {
	Private []byte
	Public  []byte
}

// Wipe destroys the private key material in place.
func (kp *KeyPair) Wipe() {
	SecureWipe(kp.Private)
}

// KeyDeriver derives a KeyPair from phrase entropy. Implementations must be
// deterministic: identical entropy yields an identical pair.
type KeyDeriver interface {
	Derive(entropy []byte) (KeyPair, error)
}

// DigestDeriver is the documented one-way digest-chain derivation:
//
//	private = SHA-256(entropy || "private")
//	public  = SHA-256(private || "public")
//
// This is not an asymmetric keypair. The public half cannot verify
// signatures; it only supports re-derivation and comparison. Production
// deployments should prefer Ed25519Deriver.
type DigestDeriver struct{}

// Derive implements KeyDeriver.
func (DigestDeriver) Derive(entropy []byte) (KeyPair, error) {
	h := sha256.New()
	h.Write(entropy)
	h.Write([]byte(privateTag))
	private := h.Sum(nil)

	h = sha256.New()
	h.Write(private)
	h.Write([]byte(publicTag))
	public := h.Sum(nil)

	return KeyPair{Private: private, Public: public}, nil
}

// Ed25519Deriver derives a genuine asymmetric keypair from phrase entropy by
// hashing the entropy into an Ed25519 seed. It preserves the KeyDeriver
// contract (deterministic secret/verifier pair) while making the verifier a
// real public key.
type Ed25519Deriver struct{}

// Derive implements KeyDeriver.
func (Ed25519Deriver) Derive(entropy []byte) (KeyPair, error) {
	seed := sha256.Sum256(entropy)
	private := ed25519.NewKeyFromSeed(seed[:])
	public := make([]byte, ed25519.PublicKeySize)
	copy(public, private[ed25519.SeedSize:])
	return KeyPair{Private: private, Public: public}, nil
}
