package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
)

// ErrSigning indicates key material could not be materialised or the
// signature computation itself failed. Non-retryable.
var ErrSigning = errors.New("crypto: signing failed")

// PrivateKey wraps an ed25519 private key, the signature scheme the target
// ledger accepts for transactions and queries.
type PrivateKey struct {
	ed25519.PrivateKey
}

// PublicKey wraps the corresponding ed25519 public key.
type PublicKey struct {
	ed25519.PublicKey
}

// GeneratePrivateKey draws a fresh ed25519 keypair from the CSPRNG.
func GeneratePrivateKey() (*PrivateKey, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromBytes rebuilds a private key from its 64-byte expanded form
// or its 32-byte seed.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	switch len(b) {
	case ed25519.PrivateKeySize:
		return &PrivateKey{ed25519.PrivateKey(append([]byte(nil), b...))}, nil
	case ed25519.SeedSize:
		return &PrivateKey{ed25519.NewKeyFromSeed(b)}, nil
	default:
		return nil, fmt.Errorf("%w: private key must be %d or %d bytes, got %d",
			ErrSigning, ed25519.SeedSize, ed25519.PrivateKeySize, len(b))
	}
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return append([]byte(nil), k.PrivateKey...)
}

// Wipe overwrites the private key material in place. The key must not be
// used afterwards; callers that rebuilt a key from a SecretBuffer wipe it as
// soon as the signature is produced.
func (k *PrivateKey) Wipe() {
	for i := range k.PrivateKey {
		k.PrivateKey[i] = 0
	}
}

// PubKey derives the public half.
func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{k.PrivateKey.Public().(ed25519.PublicKey)}
}

// Sign produces a detached signature over msg.
func (k *PrivateKey) Sign(msg []byte) []byte {
	return ed25519.Sign(k.PrivateKey, msg)
}

// Bytes returns the raw 32-byte public key.
func (k *PublicKey) Bytes() []byte {
	return append([]byte(nil), k.PublicKey...)
}

// Verify reports whether sig is a valid signature over msg.
func (k *PublicKey) Verify(msg, sig []byte) bool {
	return ed25519.Verify(k.PublicKey, msg, sig)
}
