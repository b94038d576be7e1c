// Package adapter declares the capability interfaces both chain-specific
// adapters (adapter/evmorder, adapter/nearescrow) implement. The shape is
// grounded on chainntfs.ChainNotifier: a narrow, start/stop-able interface
// that a concrete chain client satisfies, so the coordinator never imports
// an RPC client package directly.
package adapter

import (
	"context"

	"github.com/fusionbridge/swapd/events"
	"github.com/fusionbridge/swapd/htlc"
	"lukechampine.com/uint128"
)

// Chain is the capability surface the coordinator drives a single
// blockchain's adapter through. Both the EVM-side order adapter and the
// NEAR-side escrow adapter implement it.
type Chain interface {
	// Start begins streaming events onto sink from fromCheckpoint onward
	// and returns once the adapter is ready to accept calls.
	Start(ctx context.Context, fromCheckpoint events.Checkpoint, sink chan<- events.Event) error

	// Stop tears down the adapter's subscriptions and background work.
	Stop() error

	// FetchStatus returns the adapter's best-effort view of a swap key's
	// on-chain status, used to reconcile state after a restart when the
	// event pipeline's checkpoint may be stale.
	FetchStatus(ctx context.Context, swapKey string) (Status, error)
}

// Status is a chain-agnostic summary an adapter reports for a swap key.
type Status struct {
	Exists    bool
	Claimed   bool
	Cancelled bool
	Secret    *htlc.Secret // non-nil only if Claimed and the secret was observed
}

// OrderSide is the capability surface specific to the EVM-style limit-order
// chain: submitting a signed order and executing a counter-claim once the
// secret is known.
type OrderSide interface {
	Chain

	// SubmitOrder publishes a signed order, returning its on-chain
	// identifier once the submission transaction is accepted.
	SubmitOrder(ctx context.Context, order SignedOrder) (string, error)

	// CancelOrder cancels a previously submitted, unfilled order.
	CancelOrder(ctx context.Context, orderID string) error
}

// SignedOrder is the chain-agnostic view of an EIP-712-signed limit order;
// adapter/evmorder defines the concrete order struct this wraps.
type SignedOrder struct {
	OrderID   string
	Maker     string
	Signature []byte
	Payload   interface{}
}

// EscrowSide is the capability surface specific to the NEAR-style HTLC
// escrow chain: creating, claiming, and cancelling escrows.
type EscrowSide interface {
	Chain

	// CreateEscrow deploys a new escrow and returns its on-chain id.
	CreateEscrow(ctx context.Context, params EscrowParams) (string, error)

	// ClaimEscrow reveals secret to redeem escrowID for its beneficiary.
	ClaimEscrow(ctx context.Context, escrowID string, secret htlc.Secret) error

	// CancelEscrow refunds escrowID once its cancel window has opened.
	CancelEscrow(ctx context.Context, escrowID string) error
}

// EscrowParams mirrors escrow.CreateParams for the on-chain call; kept as a
// separate type so the adapter package doesn't import escrow for what is,
// on the wire, just a set of call arguments.
type EscrowParams struct {
	Resolver                 string
	Beneficiary              string
	SafetyDepositBeneficiary string
	Principal                uint128.Uint128
	SafetyDeposit            uint128.Uint128
	SecretHash               htlc.Hash
	FinalityPeriodSecs       uint64
	CancelPeriodSecs         uint64
	PublicCancelPeriodSecs   uint64
}
