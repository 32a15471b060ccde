package ledger

import (
	"fmt"

	"ledgergate/crypto"
)

// KeySource materialises private key material on demand. Each call returns a
// fresh SecretBuffer exclusively owned by the caller; the signer destroys it
// before returning.
type KeySource interface {
	SecretKey() (*crypto.SecretBuffer, error)
}

// KeySourceFunc adapts a function to the KeySource interface.
type KeySourceFunc func() (*crypto.SecretBuffer, error)

func (f KeySourceFunc) SecretKey() (*crypto.SecretBuffer, error) { return f() }

// StaticKeySource wraps an in-memory private key. The key bytes are copied
// into a new obfuscated buffer per signing operation.
func StaticKeySource(key *crypto.PrivateKey) KeySource {
	return KeySourceFunc(func() (*crypto.SecretBuffer, error) {
		if key == nil {
			return nil, fmt.Errorf("%w: no key material", crypto.ErrSigning)
		}
		return crypto.NewSecretBuffer(key.Bytes())
	})
}

// Signer attaches detached ed25519 signatures to canonical message bodies.
// Failures wrap crypto.ErrSigning and abort the enclosing operation; signing
// errors are never retried.
type Signer struct {
	source KeySource
}

// NewSigner builds a signer over the given key source.
func NewSigner(source KeySource) *Signer {
	return &Signer{source: source}
}

// SignTransaction canonicalises body and signs it.
func (s *Signer) SignTransaction(body *TransactionBody) (*SignedTransaction, error) {
	canonical, err := body.Canonical()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crypto.ErrSigning, err)
	}
	pub, sig, err := s.sign(canonical)
	if err != nil {
		return nil, err
	}
	return &SignedTransaction{Body: canonical, PublicKey: pub, Signature: sig}, nil
}

// SignQuery canonicalises body and signs it. Callers that change the fee
// between the cost and answer phases must call this again: the fee is part
// of the canonical body.
func (s *Signer) SignQuery(body *QueryBody) (*SignedQuery, error) {
	canonical, err := body.Canonical()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crypto.ErrSigning, err)
	}
	pub, sig, err := s.sign(canonical)
	if err != nil {
		return nil, err
	}
	return &SignedQuery{Body: canonical, PublicKey: pub, Signature: sig}, nil
}

func (s *Signer) sign(canonical []byte) (pub, sig []byte, err error) {
	if s == nil || s.source == nil {
		return nil, nil, fmt.Errorf("%w: no key source configured", crypto.ErrSigning)
	}
	guard, err := s.source.SecretKey()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", crypto.ErrSigning, err)
	}
	defer guard.Destroy()

	key, err := crypto.PrivateKeyFromBytes(guard.Bytes())
	if err != nil {
		return nil, nil, err
	}
	defer key.Wipe()
	return key.PubKey().Bytes(), key.Sign(canonical), nil
}
