package fusionrpc

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/fusionbridge/swapd/coordinator"
	"github.com/fusionbridge/swapd/escrow"
	"github.com/fusionbridge/swapd/pkg/clock"
	"github.com/stretchr/testify/require"
	"lukechampine.com/uint128"
)

func newTestClock() clock.Clock {
	return clock.NewTestClock(time.Unix(1_700_000_000, 0))
}

// farFillDeadline is a chain-A fill_deadline comfortably past newTestClock's
// now, with plenty of room for the default cancel period and safety margin
// below to clear the invariant ProposeSwap enforces.
func farFillDeadline() uint64 {
	return uint64(newTestClock().Now().UnixNano()) + uint64(24*time.Hour)
}

func newTestServer() *Server {
	records := coordinator.NewStore(nil)
	escrows := escrow.NewStore(escrow.NewMemoryLedger())
	return NewServer(records, escrows, newTestClock())
}

func TestProposeAndGetSwap(t *testing.T) {
	s := newTestServer()
	ctx := context.Background()

	resp, err := s.ProposeSwap(ctx, &ProposeSwapRequest{
		SwapKey:       "swap-1",
		Resolver:      "resolver.near",
		Beneficiary:   "beneficiary.near",
		SecretHashHex: strings.Repeat("00", 32),
		FillDeadline:  farFillDeadline(),
	})
	require.NoError(t, err)
	require.Equal(t, "swap-1", resp.SwapKey)

	got, err := s.GetSwap(ctx, &GetSwapRequest{SwapKey: "swap-1"})
	require.NoError(t, err)
	require.Equal(t, "proposed", got.State)
}

func TestProposeSwapRejectsDuplicateKey(t *testing.T) {
	s := newTestServer()
	ctx := context.Background()

	req := &ProposeSwapRequest{SwapKey: "swap-1", SecretHashHex: strings.Repeat("00", 32), FillDeadline: farFillDeadline()}
	_, err := s.ProposeSwap(ctx, req)
	require.NoError(t, err)

	_, err = s.ProposeSwap(ctx, req)
	require.Error(t, err)
}

func TestProposeSwapRejectsBadHashLength(t *testing.T) {
	s := newTestServer()
	_, err := s.ProposeSwap(context.Background(), &ProposeSwapRequest{
		SwapKey:       "swap-1",
		SecretHashHex: "too-short",
	})
	require.Error(t, err)
}

func TestGetSwapUnknownKey(t *testing.T) {
	s := newTestServer()
	_, err := s.GetSwap(context.Background(), &GetSwapRequest{SwapKey: "nope"})
	require.Error(t, err)
}

func TestDrainStopsNewProposals(t *testing.T) {
	s := newTestServer()
	ctx := context.Background()

	_, err := s.Drain(ctx, &DrainRequest{})
	require.NoError(t, err)

	_, err = s.ProposeSwap(ctx, &ProposeSwapRequest{SwapKey: "swap-1", SecretHashHex: strings.Repeat("00", 32)})
	require.Error(t, err)
}

func TestJSONCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	req := &ProposeSwapRequest{SwapKey: "swap-1", Principal: uint128.From64(100)}

	buf, err := c.Marshal(req)
	require.NoError(t, err)

	var out ProposeSwapRequest
	require.NoError(t, c.Unmarshal(buf, &out))
	require.Equal(t, req.SwapKey, out.SwapKey)
	require.Equal(t, req.Principal, out.Principal)
}

// A proposal whose chain-B cancel window opens at or after chain-A's
// fill_deadline minus the required safety margin must be rejected: letting
// it through would allow chain A's order to expire while chain B's escrow
// is still locked, stranding the resolver's deposit.
func TestProposeSwapRejectsUnsafeTimeoutOrdering(t *testing.T) {
	s := newTestServer()
	now := uint64(newTestClock().Now().UnixNano())

	_, err := s.ProposeSwap(context.Background(), &ProposeSwapRequest{
		SwapKey:          "swap-1",
		SecretHashHex:    strings.Repeat("00", 32),
		CancelPeriodSecs: 3600,
		SafetyMarginSecs: 1800,
		FillDeadline:     now + uint64(3600*time.Second),
	})
	require.Error(t, err)

	_, ok := s.records.Get("swap-1")
	require.False(t, ok)
}

func TestProposeSwapAcceptsSafeTimeoutOrdering(t *testing.T) {
	s := newTestServer()
	now := uint64(newTestClock().Now().UnixNano())

	_, err := s.ProposeSwap(context.Background(), &ProposeSwapRequest{
		SwapKey:          "swap-1",
		SecretHashHex:    strings.Repeat("00", 32),
		CancelPeriodSecs: 3600,
		SafetyMarginSecs: 1800,
		FillDeadline:     now + uint64(6*time.Hour),
	})
	require.NoError(t, err)
}

func TestPublishAlertDeliversToSubscriber(t *testing.T) {
	s := newTestServer()
	ch := make(chan Alert, 1)
	s.alertSubs[ch] = struct{}{}

	s.PublishAlert(Alert{SwapKey: "swap-1", Message: "timeout approaching"})

	select {
	case a := <-ch:
		require.Equal(t, "swap-1", a.SwapKey)
	default:
		t.Fatal("expected alert to be delivered")
	}
}
