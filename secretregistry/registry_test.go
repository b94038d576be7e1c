package secretregistry

import (
	"testing"
	"time"

	"github.com/fusionbridge/swapd/htlc"
	"github.com/fusionbridge/swapd/pkg/clock"
	"github.com/stretchr/testify/require"
)

func newTestSecret(b byte) (htlc.Secret, htlc.Hash) {
	var s htlc.Secret
	for i := range s {
		s[i] = b
	}
	return s, s.Commit()
}

func TestRegisterMarkRevealedGetDispose(t *testing.T) {
	tc := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	r := NewRegistry(tc)

	secret, hash := newTestSecret(0x01)
	require.NoError(t, r.Register(hash, "swap-1", 3600))

	_, err := r.Get(hash)
	require.ErrorIs(t, err, ErrNotRevealed)

	require.NoError(t, r.MarkRevealed(hash, secret))

	got, err := r.Get(hash)
	require.NoError(t, err)
	require.Equal(t, secret, got)

	require.NoError(t, r.Dispose(hash))

	_, err = r.Get(hash)
	require.ErrorIs(t, err, ErrDisposed)
}

func TestRegisterIdempotentSameSwap(t *testing.T) {
	tc := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	r := NewRegistry(tc)

	_, hash := newTestSecret(0x02)
	require.NoError(t, r.Register(hash, "swap-1", 3600))
	require.NoError(t, r.Register(hash, "swap-1", 3600))
}

func TestRegisterConflictDifferentSwap(t *testing.T) {
	tc := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	r := NewRegistry(tc)

	_, hash := newTestSecret(0x03)
	require.NoError(t, r.Register(hash, "swap-1", 3600))

	err := r.Register(hash, "swap-2", 3600)
	require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestMarkRevealedRejectsWrongSecret(t *testing.T) {
	tc := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	r := NewRegistry(tc)

	_, hash := newTestSecret(0x04)
	wrong, _ := newTestSecret(0x05)
	require.NoError(t, r.Register(hash, "swap-1", 3600))

	err := r.MarkRevealed(hash, wrong)
	require.Error(t, err)
}

func TestMarkRevealedIdempotentSameSecret(t *testing.T) {
	tc := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	r := NewRegistry(tc)

	secret, hash := newTestSecret(0x06)
	require.NoError(t, r.Register(hash, "swap-1", 3600))
	require.NoError(t, r.MarkRevealed(hash, secret))
	require.NoError(t, r.MarkRevealed(hash, secret))
}

func TestDisposeIsIdempotent(t *testing.T) {
	tc := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	r := NewRegistry(tc)

	_, hash := newTestSecret(0x07)
	require.NoError(t, r.Register(hash, "swap-1", 3600))
	require.NoError(t, r.Dispose(hash))
	require.NoError(t, r.Dispose(hash))
}

func TestSweepExpired(t *testing.T) {
	tc := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	r := NewRegistry(tc)

	secret, revealedHash := newTestSecret(0x08)
	_, unrevealedHash := newTestSecret(0x09)

	require.NoError(t, r.Register(revealedHash, "swap-1", 10))
	require.NoError(t, r.MarkRevealed(revealedHash, secret))
	require.NoError(t, r.Register(unrevealedHash, "swap-2", 10))

	stats := r.Stats()
	require.Equal(t, 1, stats.Revealed)
	require.Equal(t, 1, stats.Unrevealed)

	swept := r.SweepExpired(uint64(time.Unix(1_700_000_000, 0).Unix()) + 11)
	require.Equal(t, 2, swept)

	stats = r.Stats()
	require.Equal(t, 2, stats.Disposed)
}

func TestGetUnknownHash(t *testing.T) {
	tc := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	r := NewRegistry(tc)

	var hash htlc.Hash
	_, err := r.Get(hash)
	require.ErrorIs(t, err, ErrUnknownHash)
}

func TestCollectorsRegistered(t *testing.T) {
	tc := clock.NewTestClock(time.Unix(1_700_000_000, 0))
	r := NewRegistry(tc)

	require.Len(t, r.Collectors(), 3)
}
