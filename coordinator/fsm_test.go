package coordinator

import (
	"testing"
	"time"

	"github.com/fusionbridge/swapd/events"
	"github.com/fusionbridge/swapd/htlc"
	"github.com/fusionbridge/swapd/pkg/clock"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

func newTestClock() clock.Clock {
	return clock.NewTestClock(time.Unix(1_700_000_000, 0))
}

func TestHappyPathTransitions(t *testing.T) {
	s := NewStore(nil)
	clk := newTestClock()
	s.Propose("swap-1", ProposeParams{}, clk)

	cmd, err := s.Advance("swap-1", Event{Kind: EventOrderPublished}, clk)
	require.NoError(t, err)
	require.Equal(t, CommandNone, cmd)

	cmd, err = s.Advance("swap-1", Event{Kind: EventEscrowCreated}, clk)
	require.NoError(t, err)
	require.Equal(t, CommandNone, cmd)

	var secret htlc.Secret
	cmd, err = s.Advance("swap-1", Event{Kind: EventSecretRevealed, Secret: &secret}, clk)
	require.NoError(t, err)
	require.Equal(t, CommandSubmitCounterClaim, cmd)

	cmd, err = s.Advance("swap-1", Event{Kind: EventCounterClaimSubmitted}, clk)
	require.NoError(t, err)
	require.Equal(t, CommandNone, cmd)

	cmd, err = s.Advance("swap-1", Event{Kind: EventCounterClaimConfirmed}, clk)
	require.NoError(t, err)
	require.Equal(t, CommandNone, cmd)

	rec, ok := s.Get("swap-1")
	require.True(t, ok)
	require.Equal(t, Completed, rec.State)
	require.NotNil(t, rec.Secret)
}

func TestTimeoutTriggersRefund(t *testing.T) {
	s := NewStore(nil)
	clk := newTestClock()
	s.Propose("swap-1", ProposeParams{}, clk)

	_, err := s.Advance("swap-1", Event{Kind: EventOrderPublished}, clk)
	require.NoError(t, err)
	_, err = s.Advance("swap-1", Event{Kind: EventEscrowCreated}, clk)
	require.NoError(t, err)

	cmd, err := s.Advance("swap-1", Event{Kind: EventTimeoutElapsed}, clk)
	require.NoError(t, err)
	require.Equal(t, CommandRefund, cmd)

	cmd, err = s.Advance("swap-1", Event{Kind: EventRefundConfirmed}, clk)
	require.NoError(t, err)
	require.Equal(t, CommandNone, cmd)

	rec, ok := s.Get("swap-1")
	require.True(t, ok)
	require.Equal(t, Refunded, rec.State)
}

func TestAbortIsAlwaysValid(t *testing.T) {
	s := NewStore(nil)
	clk := newTestClock()
	s.Propose("swap-1", ProposeParams{}, clk)

	cmd, err := s.Advance("swap-1", Event{Kind: EventAbortRequested}, clk)
	require.NoError(t, err)
	require.Equal(t, CommandNone, cmd)

	rec, ok := s.Get("swap-1")
	require.True(t, ok)
	require.Equal(t, Aborted, rec.State)
}

func TestTerminalStateIsNoOp(t *testing.T) {
	s := NewStore(nil)
	clk := newTestClock()
	s.Propose("swap-1", ProposeParams{}, clk)

	_, err := s.Advance("swap-1", Event{Kind: EventAbortRequested}, clk)
	require.NoError(t, err)

	cmd, err := s.Advance("swap-1", Event{Kind: EventOrderPublished}, clk)
	require.NoError(t, err)
	require.Equal(t, CommandNone, cmd)

	rec, ok := s.Get("swap-1")
	require.True(t, ok)
	require.Equal(t, Aborted, rec.State)
}

// An event that doesn't apply to the current state is a no-op: state is
// unchanged and no command is issued, rather than an error.
func TestUnknownEventIsNoOp(t *testing.T) {
	s := NewStore(nil)
	clk := newTestClock()
	s.Propose("swap-1", ProposeParams{}, clk)

	cmd, err := s.Advance("swap-1", Event{Kind: EventCounterClaimConfirmed}, clk)
	require.NoError(t, err)
	require.Equal(t, CommandNone, cmd)

	rec, ok := s.Get("swap-1")
	require.True(t, ok)
	require.Equal(t, Proposed, rec.State)
}

// A duplicate of an event that already fired while the swap is still
// non-terminal (e.g. a redelivered EventEscrowCreated once already
// Escrowed) is absorbed as a no-op: at-least-once adapters can legitimately
// resend it, and the coordinator must not error on the replay.
func TestDuplicateEventIsNoOp(t *testing.T) {
	s := NewStore(nil)
	clk := newTestClock()
	s.Propose("swap-1", ProposeParams{}, clk)

	_, err := s.Advance("swap-1", Event{Kind: EventOrderPublished}, clk)
	require.NoError(t, err)
	_, err = s.Advance("swap-1", Event{Kind: EventEscrowCreated}, clk)
	require.NoError(t, err)

	cmd, err := s.Advance("swap-1", Event{Kind: EventEscrowCreated}, clk)
	require.NoError(t, err)
	require.Equal(t, CommandNone, cmd)

	rec, ok := s.Get("swap-1")
	require.True(t, ok)
	require.Equal(t, Escrowed, rec.State)
}

func TestCheckpointIsIdempotent(t *testing.T) {
	var calls int
	s := NewStore(func(r Record) error {
		calls++
		return nil
	})
	clk := newTestClock()
	s.Propose("swap-1", ProposeParams{}, clk)

	_, err := s.Advance("swap-1", Event{Kind: EventOrderPublished}, clk)
	require.NoError(t, err)

	require.NoError(t, s.Checkpoint("swap-1"))
	require.NoError(t, s.Checkpoint("swap-1"))

	require.Equal(t, 1, calls)
}

func TestProposeParamsAndEscrowDetailsThreadThrough(t *testing.T) {
	s := NewStore(nil)
	clk := newTestClock()

	s.Propose("swap-1", ProposeParams{
		OrderRef:            "order-1",
		ExpectedAmount:      uint128.From64(1_000),
		FillDeadline:        1_800_000_000_000,
		CounterpartyAddress: "beneficiary.near",
	}, clk)

	require.NoError(t, s.SetEscrowDetails("swap-1", EscrowDetails{
		EscrowID:         "ns/1",
		CancelFrom:       1_700_000_000_000,
		PublicCancelFrom: 1_700_100_000_000,
	}, clk))

	rec, ok := s.Get("swap-1")
	require.True(t, ok)
	require.Equal(t, "order-1", rec.OrderRef)
	require.Equal(t, "ns/1", rec.EscrowID)
	require.NotZero(t, rec.CreatedAt)
	require.NotZero(t, rec.UpdatedAt)

	cmd, err := s.Advance("swap-1", Event{Kind: EventOrderPublished}, clk)
	require.NoError(t, err)
	require.Equal(t, CommandNone, cmd)

	require.NoError(t, s.UpdateCheckpoint("swap-1", events.ChainNEAR, events.Checkpoint{BlockHeight: 5}))

	rec, ok = s.Get("swap-1")
	require.True(t, ok)
	require.Equal(t, uint64(5), rec.ChainCheckpoints[events.ChainNEAR].BlockHeight)
}

func TestListByState(t *testing.T) {
	s := NewStore(nil)
	clk := newTestClock()
	s.Propose("swap-1", ProposeParams{}, clk)
	s.Propose("swap-2", ProposeParams{}, clk)

	_, err := s.Advance("swap-1", Event{Kind: EventOrderPublished}, clk)
	require.NoError(t, err)

	require.Len(t, s.ListByState(Proposed), 1)
	require.Len(t, s.ListByState(OrderPublished), 1)
}
