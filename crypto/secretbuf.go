package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrAllocation indicates the secret container could not be initialised.
// Callers must abort the operation that needed the secret; there is no
// fallback to a shorter or partially-filled buffer.
var ErrAllocation = errors.New("crypto: secret buffer allocation failed")

// SecretBuffer holds a sensitive byte sequence inside a larger allocation
// with a randomized total size and a randomized interior offset. The slack
// around the secret is filled with random noise before the secret is copied
// in, so the allocation carries no fixed length or offset signature that a
// naive memory scan could key on.
//
// A SecretBuffer is exclusively owned by its creator and must not be shared
// across goroutines. Destroy zeroes the whole allocation; the original
// implementation released the memory without wiping it, which left key
// material recoverable from the freed pages.
type SecretBuffer struct {
	buf       []byte
	offset    int
	secretLen int
}

// NewSecretBuffer copies secret into a freshly allocated obfuscated buffer.
// The total size and offset are re-randomized on every call.
func NewSecretBuffer(secret []byte) (*SecretBuffer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: empty secret", ErrAllocation)
	}
	jitter, err := randomBelow(len(secret)/4 + 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}
	total := len(secret) + jitter

	slack := total - len(secret)
	offset := 0
	if slack > 0 {
		offset, err = randomBelow(slack + 1)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
		}
	}

	buf := make([]byte, total)
	// Noise first, secret second: the copy never overwrites unfilled bytes
	// and the regions outside the secret window are indistinguishable from it.
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}
	copy(buf[offset:], secret)

	return &SecretBuffer{buf: buf, offset: offset, secretLen: len(secret)}, nil
}

// Bytes returns the view bounded exactly to the secret window. The slice
// aliases the internal allocation and becomes invalid after Destroy.
func (s *SecretBuffer) Bytes() []byte {
	if s == nil || s.buf == nil {
		return nil
	}
	return s.buf[s.offset : s.offset+s.secretLen]
}

// Len reports the length of the contained secret.
func (s *SecretBuffer) Len() int {
	if s == nil {
		return 0
	}
	return s.secretLen
}

// Destroy overwrites the whole allocation, secret and noise alike, and drops
// the reference. Safe to call more than once.
func (s *SecretBuffer) Destroy() {
	if s == nil || s.buf == nil {
		return
	}
	zeroBytes(s.buf)
	s.buf = nil
	s.offset = 0
	s.secretLen = 0
}

// randomBelow draws a uniform value in [0, n) from the CSPRNG. n <= 0 yields 0.
func randomBelow(n int) (int, error) {
	if n <= 1 {
		return 0, nil
	}
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return 0, err
	}
	return int(binary.LittleEndian.Uint64(raw[:]) % uint64(n)), nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
