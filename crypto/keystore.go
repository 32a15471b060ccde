package crypto

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	keystoreVersion = 1
	keystorePrefix  = "LGKS1\n"
	saltSize        = 16

	kdfTime     = 2
	kdfMemoryKB = 64 * 1024
	kdfThreads  = 1
)

var (
	// ErrAuthFailed indicates the passphrase did not decrypt the keystore.
	ErrAuthFailed = errors.New("crypto: keystore authentication failed")
	// ErrInvalidKeystore indicates the file is not a recognised keystore envelope.
	ErrInvalidKeystore = errors.New("crypto: keystore envelope is invalid")
)

type keystoreEnvelope struct {
	Version     uint32 `json:"version"`
	KDF         string `json:"kdf"`
	KDFTime     uint32 `json:"kdf_time"`
	KDFMemoryKB uint32 `json:"kdf_memory_kb"`
	KDFThreads  uint8  `json:"kdf_threads"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
}

// SaveToKeystore writes the private key to an encrypted keystore file at the
// given path. The key bytes are sealed with XChaCha20-Poly1305 under an
// argon2id-derived key. If the parent directory does not exist it is created
// with 0700 permissions and the file itself ends up 0600.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	derived := deriveKeystoreKey(passphrase, salt)
	defer zeroBytes(derived)

	aead, err := chacha20poly1305.NewX(derived)
	if err != nil {
		return err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}

	plaintext := key.Bytes()
	defer zeroBytes(plaintext)
	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	env := keystoreEnvelope{
		Version:     keystoreVersion,
		KDF:         "argon2id",
		KDFTime:     kdfTime,
		KDFMemoryKB: kdfMemoryKB,
		KDFThreads:  kdfThreads,
		Salt:        salt,
		Nonce:       nonce,
		Ciphertext:  ciphertext,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "keystore-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(append([]byte(keystorePrefix), raw...)); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(tmpName, path)
}

// LoadFromKeystore decrypts a keystore file and returns the contained key.
// The decrypted bytes are routed through a SecretBuffer so they never sit in
// a plainly-sized allocation, and are wiped once the key is constructed.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(string(data), keystorePrefix) {
		return nil, ErrInvalidKeystore
	}
	var env keystoreEnvelope
	if err := json.Unmarshal(data[len(keystorePrefix):], &env); err != nil {
		return nil, ErrInvalidKeystore
	}
	if env.Version != keystoreVersion || env.KDF != "argon2id" {
		return nil, ErrInvalidKeystore
	}
	if len(env.Salt) != saltSize || len(env.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrInvalidKeystore
	}

	derived := deriveKeystoreKeyParams(passphrase, env.Salt, env.KDFTime, env.KDFMemoryKB, env.KDFThreads)
	defer zeroBytes(derived)

	aead, err := chacha20poly1305.NewX(derived)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}

	guard, err := NewSecretBuffer(plaintext)
	zeroBytes(plaintext)
	if err != nil {
		return nil, err
	}
	defer guard.Destroy()

	key, err := PrivateKeyFromBytes(guard.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeystore, err)
	}
	return key, nil
}

func deriveKeystoreKey(passphrase string, salt []byte) []byte {
	return deriveKeystoreKeyParams(passphrase, salt, kdfTime, kdfMemoryKB, kdfThreads)
}

func deriveKeystoreKeyParams(passphrase string, salt []byte, time, memoryKB uint32, threads uint8) []byte {
	return argon2.IDKey([]byte(passphrase), salt, time, memoryKB, threads, chacha20poly1305.KeySize)
}
