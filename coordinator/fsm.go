// Package coordinator implements the per-swap state machine: a pure
// function of (state, event, clock) that decides what command to issue
// next, and a Checkpoint() that persists progress so a crash can resume
// without re-issuing a side effect twice. The resolve-then-checkpoint shape
// -- "if already resolved, exit early; otherwise act, then checkpoint" --
// is grounded on contractcourt.htlcTimeoutResolver.Resolve, and the
// watch-for-timeout-and-refund behavior is grounded on breacharbiter.go's
// monitoring loop.
package coordinator

import (
	"fmt"
	"sync"

	"github.com/fusionbridge/swapd/events"
	"github.com/fusionbridge/swapd/fusionerrs"
	"github.com/fusionbridge/swapd/fusionlog"
	"github.com/fusionbridge/swapd/htlc"
	"github.com/fusionbridge/swapd/pkg/clock"
	"lukechampine.com/uint128"
)

var log = fusionlog.NewSubLogger("CORD")

// State is a swap's lifecycle stage.
type State uint8

const (
	Proposed State = iota
	OrderPublished
	Escrowed
	SecretKnown
	CounterClaiming
	Completed
	Refunding
	Refunded
	Aborted
)

func (s State) String() string {
	switch s {
	case Proposed:
		return "proposed"
	case OrderPublished:
		return "order_published"
	case Escrowed:
		return "escrowed"
	case SecretKnown:
		return "secret_known"
	case CounterClaiming:
		return "counter_claiming"
	case Completed:
		return "completed"
	case Refunding:
		return "refunding"
	case Refunded:
		return "refunded"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// terminal reports whether s is a state the FSM never transitions out of.
func (s State) terminal() bool {
	return s == Completed || s == Refunded || s == Aborted
}

// EventKind enumerates the inputs that can drive a swap's transition.
type EventKind uint8

const (
	EventOrderPublished EventKind = iota
	EventEscrowCreated
	EventSecretRevealed
	EventCounterClaimSubmitted
	EventCounterClaimConfirmed
	EventCounterClaimFailed
	EventTimeoutElapsed
	EventRefundConfirmed
	EventAbortRequested
)

// Event is one input to Advance.
type Event struct {
	Kind   EventKind
	Secret *htlc.Secret
	Err    error
}

// Command is what the coordinator should do as a result of a transition.
// The zero value, CommandNone, means no side effect is required.
type Command uint8

const (
	CommandNone Command = iota
	CommandSubmitCounterClaim
	CommandRefund
	CommandRaiseAlert
)

// Record is the swap's persisted state: the FSM's State, the Swap entity
// fields spec.md §3 describes (both chains' references, phase boundaries,
// timestamps, attempt counter), and a per-chain checkpoint map so a
// restarted coordinator can resume the event pipeline without replaying
// from the beginning.
type Record struct {
	SwapKey string
	State   State
	Secret  *htlc.Secret

	// OrderRef is chain-A's order identifier; ExpectedAmount and
	// FillDeadline are the order's principal and absolute expiry.
	OrderRef       string
	ExpectedAmount uint128.Uint128
	FillDeadline   uint64

	// EscrowID and CounterpartyAddress identify chain-B's escrow;
	// FinalityUntil, CancelFrom, and PublicCancelFrom mirror its phase
	// boundaries so reconciliation after a restart doesn't need a
	// round-trip to the adapter's FetchStatus before acting.
	EscrowID            string
	CounterpartyAddress string
	FinalityUntil       uint64
	CancelFrom          uint64
	PublicCancelFrom    uint64

	// Attempts counts actions taken on this swap (claim/refund retries),
	// for operator visibility and backoff bookkeeping above the claim
	// executor's own retry budget.
	Attempts uint32

	CreatedAt uint64
	UpdatedAt uint64

	// SchemaVersion lets storage/bbolt.go's migrations detect and upgrade
	// records written by an older build.
	SchemaVersion int

	// ChainCheckpoints is this swap's last-processed (block_height,
	// intra_block_index) per chain, advanced as events are handled.
	ChainCheckpoints map[events.Chain]events.Checkpoint

	// dirty is set whenever the record changes since the last
	// Checkpoint, so Checkpoint can be a no-op when nothing moved.
	dirty bool
}

// recordSchemaVersion is stamped onto every Record this build produces.
const recordSchemaVersion = 1

// Store tracks every active swap's Record and is safe for concurrent use
// by the events pipeline's per-swap goroutines.
type Store struct {
	mtx     sync.Mutex
	records map[string]*Record

	// checkpointer, if set, is called from Checkpoint to persist a
	// Record to durable storage. A nil checkpointer makes Checkpoint a
	// pure in-memory operation, useful in tests.
	checkpointer func(Record) error
}

// NewStore returns a Store. checkpointer may be nil.
func NewStore(checkpointer func(Record) error) *Store {
	return &Store{
		records:      make(map[string]*Record),
		checkpointer: checkpointer,
	}
}

// ProposeParams are the Swap-entity facts already known at proposal time,
// before either chain has been touched.
type ProposeParams struct {
	OrderRef            string
	ExpectedAmount      uint128.Uint128
	FillDeadline        uint64
	CounterpartyAddress string
}

// Propose registers a new swap in the Proposed state.
func (s *Store) Propose(swapKey string, p ProposeParams, clk clock.Clock) {
	now := uint64(clk.Now().UnixNano())

	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.records[swapKey] = &Record{
		SwapKey:             swapKey,
		State:               Proposed,
		OrderRef:            p.OrderRef,
		ExpectedAmount:      p.ExpectedAmount,
		FillDeadline:        p.FillDeadline,
		CounterpartyAddress: p.CounterpartyAddress,
		CreatedAt:           now,
		UpdatedAt:           now,
		SchemaVersion:       recordSchemaVersion,
		ChainCheckpoints:    make(map[events.Chain]events.Checkpoint),
		dirty:               true,
	}
}

// Get returns a copy of swapKey's current Record.
func (s *Store) Get(swapKey string) (Record, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	r, ok := s.records[swapKey]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

// Advance applies event to swapKey's Record and returns the Command the
// caller should execute as a result. Advance never performs the side
// effect itself -- it is a pure function of (state, event, clock), with
// persistence and execution left to the caller via Checkpoint and the
// returned Command.
func (s *Store) Advance(swapKey string, event Event, clk clock.Clock) (Command, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	r, ok := s.records[swapKey]
	if !ok {
		return CommandNone, fusionerrs.Permanent(fmt.Errorf("coordinator: unknown swap %s", swapKey))
	}

	if r.State.terminal() {
		// Resolving an already-terminal swap is always a no-op, matching
		// the "if already resolved, exit early" discipline this FSM is
		// grounded on.
		return CommandNone, nil
	}

	if event.Kind == EventAbortRequested {
		r.State = Aborted
		r.UpdatedAt = uint64(clk.Now().UnixNano())
		r.dirty = true
		return CommandNone, nil
	}

	cmd, next, err := transition(r.State, event)
	if err != nil {
		return CommandNone, err
	}

	if next != r.State {
		log.Infof("swap %s: %v -> %v", swapKey, r.State, next)
		r.State = next
		r.dirty = true
	}

	if event.Secret != nil && r.Secret == nil {
		r.Secret = event.Secret
		r.dirty = true
	}

	if cmd != CommandNone {
		r.Attempts++
		r.dirty = true
	}

	if r.dirty {
		r.UpdatedAt = uint64(clk.Now().UnixNano())
	}

	return cmd, nil
}

// transition is the actual pure state table: given a current state and an
// event, what's the next state and what command (if any) follows.
func transition(current State, event Event) (Command, State, error) {
	switch current {
	case Proposed:
		if event.Kind == EventOrderPublished {
			return CommandNone, OrderPublished, nil
		}

	case OrderPublished:
		if event.Kind == EventEscrowCreated {
			return CommandNone, Escrowed, nil
		}
		if event.Kind == EventTimeoutElapsed {
			return CommandRefund, Refunding, nil
		}

	case Escrowed:
		if event.Kind == EventSecretRevealed {
			return CommandSubmitCounterClaim, SecretKnown, nil
		}
		if event.Kind == EventTimeoutElapsed {
			return CommandRefund, Refunding, nil
		}

	case SecretKnown:
		if event.Kind == EventCounterClaimSubmitted {
			return CommandNone, CounterClaiming, nil
		}

	case CounterClaiming:
		if event.Kind == EventCounterClaimConfirmed {
			return CommandNone, Completed, nil
		}
		if event.Kind == EventCounterClaimFailed {
			// Stay in CounterClaiming -- the claim executor's own
			// retry/backoff governs re-submission; the FSM doesn't
			// second-guess it unless a refund timeout elapses too.
			return CommandNone, CounterClaiming, nil
		}
		if event.Kind == EventTimeoutElapsed {
			return CommandRaiseAlert, CounterClaiming, nil
		}

	case Refunding:
		if event.Kind == EventRefundConfirmed {
			return CommandNone, Refunded, nil
		}
	}

	// Unknown or duplicate events are no-ops: an event that doesn't apply
	// to the current state (a redelivered EventEscrowCreated once already
	// Escrowed, for instance -- legitimate under the event pipeline's
	// at-least-once delivery) leaves state unchanged rather than erroring.
	// This is what makes Advance safe to call twice with the same event.
	return CommandNone, current, nil
}

// Checkpoint persists swapKey's Record if it has changed since the last
// call, and clears the dirty flag. It's idempotent: calling it twice in a
// row with no intervening Advance is a no-op on the second call.
func (s *Store) Checkpoint(swapKey string) error {
	s.mtx.Lock()
	r, ok := s.records[swapKey]
	if !ok {
		s.mtx.Unlock()
		return fusionerrs.Permanent(fmt.Errorf("coordinator: unknown swap %s", swapKey))
	}

	if !r.dirty {
		s.mtx.Unlock()
		return nil
	}

	snapshot := *r
	snapshot.ChainCheckpoints = make(map[events.Chain]events.Checkpoint, len(r.ChainCheckpoints))
	for chain, cp := range r.ChainCheckpoints {
		snapshot.ChainCheckpoints[chain] = cp
	}
	r.dirty = false
	s.mtx.Unlock()

	if s.checkpointer == nil {
		return nil
	}

	if err := s.checkpointer(snapshot); err != nil {
		s.mtx.Lock()
		r.dirty = true
		s.mtx.Unlock()
		return fusionerrs.Transient(fmt.Errorf("coordinator: checkpoint failed: %w", err))
	}

	return nil
}

// SetOrderRef records chain-A's order identifier once SubmitOrder has
// returned it. It does not itself drive a state transition -- the caller
// still advances State via Advance(EventOrderPublished) once this is set.
func (s *Store) SetOrderRef(swapKey, orderRef string, clk clock.Clock) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	r, ok := s.records[swapKey]
	if !ok {
		return fusionerrs.Permanent(fmt.Errorf("coordinator: unknown swap %s", swapKey))
	}

	r.OrderRef = orderRef
	r.UpdatedAt = uint64(clk.Now().UnixNano())
	r.dirty = true
	return nil
}

// EscrowDetails are chain-B's facts, known once CreateEscrow has returned.
type EscrowDetails struct {
	EscrowID            string
	CounterpartyAddress string
	FinalityUntil       uint64
	CancelFrom          uint64
	PublicCancelFrom    uint64
}

// SetEscrowDetails records chain-B's escrow identity and phase boundaries.
func (s *Store) SetEscrowDetails(swapKey string, d EscrowDetails, clk clock.Clock) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	r, ok := s.records[swapKey]
	if !ok {
		return fusionerrs.Permanent(fmt.Errorf("coordinator: unknown swap %s", swapKey))
	}

	r.EscrowID = d.EscrowID
	r.CounterpartyAddress = d.CounterpartyAddress
	r.FinalityUntil = d.FinalityUntil
	r.CancelFrom = d.CancelFrom
	r.PublicCancelFrom = d.PublicCancelFrom
	r.UpdatedAt = uint64(clk.Now().UnixNano())
	r.dirty = true
	return nil
}

// UpdateCheckpoint advances swapKey's last-processed position on chain,
// used to resume the event pipeline after a crash without replaying
// events this swap has already consumed.
func (s *Store) UpdateCheckpoint(swapKey string, chain events.Chain, cp events.Checkpoint) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	r, ok := s.records[swapKey]
	if !ok {
		return fusionerrs.Permanent(fmt.Errorf("coordinator: unknown swap %s", swapKey))
	}

	if existing, ok := r.ChainCheckpoints[chain]; ok && !existing.Less(cp) {
		return nil
	}

	if r.ChainCheckpoints == nil {
		r.ChainCheckpoints = make(map[events.Chain]events.Checkpoint)
	}
	r.ChainCheckpoints[chain] = cp
	r.dirty = true
	return nil
}

// ListByState returns a snapshot of every swap currently in the given
// state; fusionrpc's Drain uses it to count swaps still in flight.
func (s *Store) ListByState(state State) []Record {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var out []Record
	for _, r := range s.records {
		if r.State == state {
			out = append(out, *r)
		}
	}

	return out
}
