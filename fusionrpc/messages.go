package fusionrpc

import (
	"github.com/fusionbridge/swapd/coordinator"
	"lukechampine.com/uint128"
)

// ProposeSwapRequest is the input to ProposeSwap. Principal/SafetyDeposit
// travel as uint128.Uint128, which marshals through the json codec as a
// decimal string -- the same representation NEAR's own RPC uses for
// yoctoNEAR amounts, and wide enough that 10^24-scale principals never
// truncate at this boundary.
type ProposeSwapRequest struct {
	SwapKey       string          `json:"swap_key"`
	Resolver      string          `json:"resolver"`
	Beneficiary   string          `json:"beneficiary"`
	Principal     uint128.Uint128 `json:"principal"`
	SafetyDeposit uint128.Uint128 `json:"safety_deposit"`
	SecretHashHex string          `json:"secret_hash_hex"`

	FinalityPeriodSecs     uint64 `json:"finality_period_secs"`
	CancelPeriodSecs       uint64 `json:"cancel_period_secs"`
	PublicCancelPeriodSecs uint64 `json:"public_cancel_period_secs"`

	// FillDeadline is chain-A's absolute unix-nanosecond order expiry.
	// SafetyMarginSecs is the δ_safety the proposer requires between
	// chain-B's cancel_from and FillDeadline; ProposeSwap rejects any
	// proposal where that margin isn't met, since chain B's funds must
	// stay refundable while chain A's order is still revocable.
	FillDeadline     uint64 `json:"fill_deadline"`
	SafetyMarginSecs uint64 `json:"safety_margin_secs"`
}

// ProposeSwapResponse is the output of ProposeSwap.
type ProposeSwapResponse struct {
	SwapKey string `json:"swap_key"`
}

// GetSwapRequest is the input to GetSwap.
type GetSwapRequest struct {
	SwapKey string `json:"swap_key"`
}

// GetSwapResponse is the output of GetSwap.
type GetSwapResponse struct {
	SwapKey string `json:"swap_key"`
	State   string `json:"state"`

	OrderRef string `json:"order_ref,omitempty"`
	EscrowID string `json:"escrow_id,omitempty"`
	Attempts uint32 `json:"attempts"`
}

// AbortSwapRequest is the input to AbortSwap.
type AbortSwapRequest struct {
	SwapKey string `json:"swap_key"`
}

// AbortSwapResponse is the output of AbortSwap.
type AbortSwapResponse struct{}

// DrainRequest is the input to Drain: stop accepting new swap proposals
// and report how many swaps are still in flight.
type DrainRequest struct{}

// DrainResponse is the output of Drain.
type DrainResponse struct {
	InFlightSwaps int32 `json:"in_flight_swaps"`
}

// Alert is one operator-facing alert streamed by StreamAlerts.
type Alert struct {
	SwapKey string `json:"swap_key"`
	Message string `json:"message"`
}

func recordToGetSwapResponse(r coordinator.Record) GetSwapResponse {
	return GetSwapResponse{
		SwapKey:  r.SwapKey,
		State:    r.State.String(),
		OrderRef: r.OrderRef,
		EscrowID: r.EscrowID,
		Attempts: r.Attempts,
	}
}
