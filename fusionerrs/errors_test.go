package fusionerrs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassification(t *testing.T) {
	base := errors.New("boom")

	require.Equal(t, KindTransient, Of(Transient(base)))
	require.Equal(t, KindPermanent, Of(Permanent(base)))
	require.Equal(t, KindInvariant, Of(Invariant(base)))
	require.Equal(t, KindUnknown, Of(base))
}

func TestIsHelpers(t *testing.T) {
	base := errors.New("boom")

	require.True(t, IsTransient(Transient(base)))
	require.False(t, IsTransient(Permanent(base)))
	require.True(t, IsPermanent(Permanent(base)))
	require.True(t, IsInvariant(Invariant(base)))
}

func TestUnwrap(t *testing.T) {
	base := errors.New("boom")
	wrapped := Transient(base)

	require.ErrorIs(t, wrapped, base)
}
