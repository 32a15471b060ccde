package crypto

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "operator.ks")

	if err := SaveToKeystore(path, key, "correct horse"); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("keystore permissions = %o, want 600", perm)
	}

	loaded, err := LoadFromKeystore(path, "correct horse")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(loaded.Bytes(), key.Bytes()) {
		t.Fatal("loaded key differs from saved key")
	}

	msg := []byte("canonical body")
	if !loaded.PubKey().Verify(msg, key.Sign(msg)) {
		t.Fatal("signature from saved key does not verify under loaded key")
	}
}

func TestKeystoreWrongPassphrase(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "operator.ks")
	if err := SaveToKeystore(path, key, "right"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := LoadFromKeystore(path, "wrong"); err != ErrAuthFailed {
		t.Fatalf("load with wrong passphrase: err = %v, want ErrAuthFailed", err)
	}
}

func TestKeystoreRejectsTamper(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "operator.ks")
	if err := SaveToKeystore(path, key, "pw"); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	data[len(data)-2] ^= 0xFF
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if _, err := LoadFromKeystore(path, "pw"); err == nil {
		t.Fatal("expected tampered keystore to fail")
	}
}

func TestKeystoreRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-keystore")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFromKeystore(path, "pw"); err != ErrInvalidKeystore {
		t.Fatalf("err = %v, want ErrInvalidKeystore", err)
	}
}
