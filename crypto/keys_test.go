package crypto

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrivateKeyFromBytesForms(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	fromExpanded, err := PrivateKeyFromBytes(key.Bytes())
	require.NoError(t, err)
	require.Equal(t, key.Bytes(), fromExpanded.Bytes())

	fromSeed, err := PrivateKeyFromBytes(key.PrivateKey.Seed())
	require.NoError(t, err)
	require.Equal(t, key.Bytes(), fromSeed.Bytes())

	_, err = PrivateKeyFromBytes(make([]byte, 33))
	require.ErrorIs(t, err, ErrSigning)
}

func TestWipeZeroesKeyMaterial(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	msg := []byte("canonical body")
	sig := key.Sign(msg)
	pub := key.PubKey()

	key.Wipe()
	require.Equal(t, make([]byte, ed25519.PrivateKeySize), key.Bytes(),
		"wiped key must hold only zero bytes")

	// Signatures produced before the wipe stay valid.
	require.True(t, pub.Verify(msg, sig))
}
