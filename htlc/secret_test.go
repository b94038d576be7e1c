package htlc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	s, err := GenerateSecret()
	require.NoError(t, err)

	h := s.Commit()
	require.True(t, s.Verify(h))

	var wrong Secret
	copy(wrong[:], s[:])
	wrong[0] ^= 0xFF
	require.False(t, wrong.Verify(h))
}

func TestFormatRedacted(t *testing.T) {
	s, err := GenerateSecret()
	require.NoError(t, err)

	rendered := fmt.Sprintf("%v/%x/%#v", s, s, s)
	require.Equal(t, "<redacted secret>/<redacted secret>/<redacted secret>", rendered)
}

func TestZero(t *testing.T) {
	s, err := GenerateSecret()
	require.NoError(t, err)

	s.Zero()
	require.Equal(t, Secret{}, s)
}

func TestHashEqual(t *testing.T) {
	s, err := GenerateSecret()
	require.NoError(t, err)

	h1 := s.Commit()
	h2 := s.Commit()
	require.True(t, h1.Equal(h2))

	var other Hash
	require.False(t, h1.Equal(other))
}

func TestFromBytesLengthCheck(t *testing.T) {
	_, err := SecretFromBytes([]byte{1, 2, 3})
	require.Error(t, err)

	_, err = HashFromBytes(make([]byte, 16))
	require.Error(t, err)
}
