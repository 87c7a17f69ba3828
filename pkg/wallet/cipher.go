package wallet

import (
	"errors"
	"fmt"

	"github.com/pil-lang/pilvault/pkg/crypto"
)

// Cipher transforms wallet blobs using the wallet's derived key material.
// Encrypt and Decrypt must be exact inverses under the same key material.
type Cipher interface {
	Encrypt(plaintext, keyMaterial []byte) ([]byte, error)
	Decrypt(ciphertext, keyMaterial []byte) ([]byte, error)
}

// ErrKeyMaterialTooShort indicates key material shorter than the cipher's
// minimum.
var ErrKeyMaterialTooShort = errors.New("wallet: key material too short for cipher")

// streamKeyLen is the number of key-material bytes the stream transform uses.
const streamKeyLen = 16

// StreamTransform is the documented self-inverse byte transform: each data
// byte is XORed with the corresponding byte of the first 16 bytes of key
// material, repeating the key. It provides no confidentiality against an
// adversary who sees repeated messages under the same key; it exists for
// contract fidelity. Production deployments should use GCMCipher.
type StreamTransform struct{}

func (StreamTransform) transform(data, keyMaterial []byte) ([]byte, error) {
	if len(keyMaterial) < streamKeyLen {
		return nil, fmt.Errorf("%w: need %d bytes, got %d",
			ErrKeyMaterialTooShort, streamKeyLen, len(keyMaterial))
	}
	key := keyMaterial[:streamKeyLen]
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out, nil
}

// Encrypt implements Cipher. XOR is its own inverse, so Encrypt and Decrypt
// are the same operation.
func (t StreamTransform) Encrypt(plaintext, keyMaterial []byte) ([]byte, error) {
	return t.transform(plaintext, keyMaterial)
}

// Decrypt implements Cipher.
func (t StreamTransform) Decrypt(ciphertext, keyMaterial []byte) ([]byte, error) {
	return t.transform(ciphertext, keyMaterial)
}

// GCMCipher seals blobs with AES-256-GCM using the first 32 bytes of key
// material, prepending the nonce to the ciphertext. This is the recommended
// drop-in replacement for StreamTransform.
type GCMCipher struct{}

// Encrypt implements Cipher.
func (GCMCipher) Encrypt(plaintext, keyMaterial []byte) ([]byte, error) {
	if len(keyMaterial) < crypto.KeyLength {
		return nil, fmt.Errorf("%w: need %d bytes, got %d",
			ErrKeyMaterialTooShort, crypto.KeyLength, len(keyMaterial))
	}
	ciphertext, nonce, err := crypto.Encrypt(keyMaterial[:crypto.KeyLength], plaintext)
	if err != nil {
		return nil, err
	}
	return append(nonce, ciphertext...), nil
}

// Decrypt implements Cipher.
func (GCMCipher) Decrypt(blob, keyMaterial []byte) ([]byte, error) {
	if len(keyMaterial) < crypto.KeyLength {
		return nil, fmt.Errorf("%w: need %d bytes, got %d",
			ErrKeyMaterialTooShort, crypto.KeyLength, len(keyMaterial))
	}
	if len(blob) < crypto.NonceLength {
		return nil, crypto.ErrCiphertextTooShort
	}
	return crypto.Decrypt(keyMaterial[:crypto.KeyLength], blob[crypto.NonceLength:], blob[:crypto.NonceLength])
}
