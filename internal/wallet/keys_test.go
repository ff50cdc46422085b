package wallet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateProducesValidAddress(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)
	require.True(t, ValidAddress(kp.PublicKey))
	require.NotEmpty(t, kp.PrivateKey)
}

func TestGenerateIsUnique(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)
	require.NotEqual(t, a.PublicKey, b.PublicKey)
}

func TestValidAddressRejectsGarbage(t *testing.T) {
	require.False(t, ValidAddress(""))
	require.False(t, ValidAddress("not-base58-0OIl"))
	require.False(t, ValidAddress("abc")) // Too short to be a 32-byte key
}
