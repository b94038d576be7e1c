package claimexec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fusionbridge/swapd/fusionerrs"
	"github.com/fusionbridge/swapd/htlc"
	"github.com/stretchr/testify/require"
)

type fakeClaimer struct {
	failuresBeforeSuccess int
	permanentErr          error
	calls                 int
}

func (f *fakeClaimer) Claim(ctx context.Context, swapKey string, secret htlc.Secret) error {
	f.calls++

	if f.permanentErr != nil {
		return f.permanentErr
	}

	if f.calls <= f.failuresBeforeSuccess {
		return fusionerrs.Transient(errors.New("rpc temporarily unavailable"))
	}

	return nil
}

func TestExecuteSucceedsAfterRetries(t *testing.T) {
	claimer := &fakeClaimer{failuresBeforeSuccess: 2}
	exec := NewExecutor(claimer, 5*time.Second)

	var secret htlc.Secret
	exec.Execute(context.Background(), "swap-1", secret)

	res := <-exec.Results()
	require.True(t, res.Success)
	require.Equal(t, 3, res.Attempts)
}

func TestExecuteStopsOnPermanentError(t *testing.T) {
	claimer := &fakeClaimer{permanentErr: fusionerrs.Permanent(errors.New("invalid secret"))}
	exec := NewExecutor(claimer, 5*time.Second)

	var secret htlc.Secret
	exec.Execute(context.Background(), "swap-1", secret)

	res := <-exec.Results()
	require.False(t, res.Success)
	require.Equal(t, 1, res.Attempts)
}

func TestExecuteGivesUpAfterMaxElapsed(t *testing.T) {
	claimer := &fakeClaimer{failuresBeforeSuccess: 1_000_000}
	exec := NewExecutor(claimer, 20*time.Millisecond)

	var secret htlc.Secret
	exec.Execute(context.Background(), "swap-1", secret)

	res := <-exec.Results()
	require.False(t, res.Success)
	require.Error(t, res.Err)
}
