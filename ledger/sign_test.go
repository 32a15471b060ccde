package ledger

import (
	"crypto/ed25519"
	"errors"
	"testing"

	"ledgergate/crypto"
)

func TestSignerSignsCanonicalBody(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	signer := NewSigner(StaticKeySource(key))

	body := sampleTxBody()
	signed, err := signer.SignTransaction(body)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	canonical, err := body.Canonical()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	if string(signed.Body) != string(canonical) {
		t.Fatal("signed body is not the canonical encoding")
	}
	if !ed25519.Verify(signed.PublicKey, signed.Body, signed.Signature) {
		t.Fatal("signature does not verify")
	}
}

func TestSignerFailsWithoutKeySource(t *testing.T) {
	signer := NewSigner(nil)
	if _, err := signer.SignTransaction(sampleTxBody()); !errors.Is(err, crypto.ErrSigning) {
		t.Fatalf("err = %v, want ErrSigning", err)
	}
}

func TestSignerSurfacesKeySourceFailure(t *testing.T) {
	signer := NewSigner(KeySourceFunc(func() (*crypto.SecretBuffer, error) {
		return nil, errors.New("hsm offline")
	}))
	if _, err := signer.SignTransaction(sampleTxBody()); !errors.Is(err, crypto.ErrSigning) {
		t.Fatalf("err = %v, want ErrSigning", err)
	}
}

func TestSignerRejectsInvalidBody(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	signer := NewSigner(StaticKeySource(key))
	if _, err := signer.SignTransaction(&TransactionBody{}); !errors.Is(err, crypto.ErrSigning) {
		t.Fatalf("err = %v, want ErrSigning", err)
	}
}
