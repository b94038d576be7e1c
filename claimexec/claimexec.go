// Package claimexec executes counter-claim transactions once a swap's
// secret is known: it submits the claim to the counter-chain adapter,
// retrying transient failures with bounded backoff
// (github.com/cenkalti/backoff/v4), and reports terminal success/failure
// on its Results channel.
package claimexec

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fusionbridge/swapd/fusionerrs"
	"github.com/fusionbridge/swapd/fusionlog"
	"github.com/fusionbridge/swapd/htlc"
)

var log = fusionlog.NewSubLogger("CLEX")

// Claimer is the minimal capability an adapter must expose for a claim to
// be executed against it; adapter.OrderSide and adapter.EscrowSide are both
// satisfied by trivial wrappers around this shape.
type Claimer interface {
	Claim(ctx context.Context, swapKey string, secret htlc.Secret) error
}

// Result is what Executor.Execute reports once a claim attempt sequence
// finishes, one way or the other.
type Result struct {
	SwapKey  string
	Success  bool
	Attempts int
	Err      error
}

// Executor bounds claim execution with retry/backoff and reports results on
// a channel the coordinator drains.
type Executor struct {
	claimer    Claimer
	maxElapsed time.Duration
	results    chan Result
}

// NewExecutor returns an Executor that gives up retrying a single claim
// after maxElapsed has passed since the first attempt.
func NewExecutor(claimer Claimer, maxElapsed time.Duration) *Executor {
	return &Executor{
		claimer:    claimer,
		maxElapsed: maxElapsed,
		results:    make(chan Result, 16),
	}
}

// Results returns the channel the coordinator should drain for completed
// claim attempts.
func (e *Executor) Results() <-chan Result {
	return e.results
}

// Execute submits a claim for swapKey/secret, retrying transient failures
// with exponential backoff until it succeeds, a permanent error is
// returned by the adapter, or maxElapsed is exceeded. It's meant to be
// called in its own goroutine; the outcome is delivered on Results().
func (e *Executor) Execute(ctx context.Context, swapKey string, secret htlc.Secret) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = e.maxElapsed

	attempts := 0
	var lastErr error

	operation := func() error {
		attempts++
		err := e.claimer.Claim(ctx, swapKey, secret)
		if err == nil {
			return nil
		}

		lastErr = err

		if fusionerrs.IsPermanent(err) || fusionerrs.IsInvariant(err) {
			return backoff.Permanent(err)
		}

		log.Warnf("claim attempt %d failed for swap %s: %v", attempts, swapKey, err)
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(bo, ctx))

	res := Result{SwapKey: swapKey, Attempts: attempts}
	if err != nil {
		res.Success = false
		res.Err = fmt.Errorf("claimexec: giving up on swap %s after %d attempts: %w", swapKey, attempts, lastErr)
	} else {
		res.Success = true
		log.Infof("claim succeeded for swap %s after %d attempt(s)", swapKey, attempts)
	}

	select {
	case e.results <- res:
	case <-ctx.Done():
	}
}
