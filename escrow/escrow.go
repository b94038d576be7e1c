// Package escrow is the Go-side mirror of the on-chain NEAR HTLC escrow
// contract. It implements the exact state machine, phase boundaries, and
// custody invariants spec.md §4.1 requires of the real contract; the NEAR
// adapter (adapter/nearescrow) drives the actual on-chain contract through
// calls shaped identically to this package's transition functions, and this
// package is what is unit-tested against every scenario in spec.md §8.
//
// The package has no chain dependency of its own: custody movement is
// abstracted behind the Ledger interface so the identical state machine
// governs an in-memory test ledger and a real NEAR-backed one, the same
// separation the teacher draws between channel-state bookkeeping and the
// on-chain wallet that actually moves funds.
package escrow

import (
	"fmt"
	"sort"
	"sync"

	"github.com/fusionbridge/swapd/fusionerrs"
	"github.com/fusionbridge/swapd/fusionlog"
	"github.com/fusionbridge/swapd/htlc"
	"github.com/fusionbridge/swapd/pkg/safemath"
	"lukechampine.com/uint128"
)

var log = fusionlog.NewSubLogger("ESCW")

// State is the escrow's lifecycle state.
type State uint8

const (
	// Active is the initial state: funds are locked, the hash commitment
	// is set, and the phase boundaries govern who may act.
	Active State = iota

	// Claimed is terminal: the beneficiary redeemed with the correct
	// secret before finality_until elapsed.
	Claimed

	// Cancelled is terminal: the resolver (or, after public_cancel_from,
	// anyone) refunded the principal and safety deposit.
	Cancelled
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Claimed:
		return "claimed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ID is the escrow's deterministic identity: a monotonic counter scoped to
// the deploying account's namespace.
type ID struct {
	Namespace string
	Counter   uint64
}

func (i ID) String() string {
	return fmt.Sprintf("%s/%d", i.Namespace, i.Counter)
}

// Escrow is one locked HTLC on chain B. Once a transition reaches Claimed
// or Cancelled it never mutates again.
type Escrow struct {
	ID ID

	Resolver                 string
	Beneficiary              string
	SafetyDepositBeneficiary string

	Principal     uint128.Uint128
	SafetyDeposit uint128.Uint128
	SecretHash    htlc.Hash

	DeployedAt       uint64
	FinalityUntil    uint64
	CancelFrom       uint64
	PublicCancelFrom uint64

	State State

	ResolvedBy string
	ResolvedAt uint64
}

// CreateParams are the inputs to Create.
type CreateParams struct {
	Resolver                 string
	Beneficiary              string
	SafetyDepositBeneficiary string // optional; defaults to Resolver

	Principal     uint128.Uint128
	SafetyDeposit uint128.Uint128
	SecretHash    htlc.Hash

	FinalityPeriodSecs     uint64
	CancelPeriodSecs       uint64
	PublicCancelPeriodSecs uint64

	// AttachedDeposit is what the caller attached to the create call on
	// the native-token path. Fungible-token transfers are verified by
	// the Ledger instead; callers of the fungible-token path pass a zero
	// value here and rely on Ledger.Credit having already happened.
	AttachedDeposit uint128.Uint128
}

// Ledger abstracts custody movement away from the state machine so the
// same transition logic governs an in-memory test ledger and a real
// NEAR-backed one. Amounts are carried as uint128.Uint128 throughout, the
// same boundary width the NEAR yoctoNEAR scale (10^24 per token) requires.
type Ledger interface {
	// Credit records that amount has been locked into the escrow's
	// custody (called once, at creation).
	Credit(id ID, amount uint128.Uint128) error

	// Transfer pays amount out of the escrow's custody to recipient.
	// Returns an error if the outbound transfer fails (e.g. a fungible
	// token contract rejects it); the caller is responsible for the
	// revert-to-Active recovery spec.md §4.1 requires.
	Transfer(id ID, recipient string, amount uint128.Uint128) error
}

var (
	// ErrInvalidPeriods is returned when the requested phase boundaries
	// don't satisfy finality < cancel <= public_cancel.
	ErrInvalidPeriods = fmt.Errorf("escrow: periods must satisfy finality < cancel <= public_cancel")

	// ErrInsufficientDeposit is returned on the native-token path when
	// the attached deposit doesn't cover principal+safety_deposit.
	ErrInsufficientDeposit = fmt.Errorf("escrow: attached deposit insufficient")

	// ErrNotFound is returned when an escrow id doesn't exist.
	ErrNotFound = fmt.Errorf("escrow: not found")

	// ErrNotActive is returned when an operation requires State==Active.
	ErrNotActive = fmt.Errorf("escrow: not active")

	// ErrFinalityElapsed is returned when claim is called at or after
	// finality_until.
	ErrFinalityElapsed = fmt.Errorf("escrow: finality window elapsed")

	// ErrSecretMismatch is returned when the claim's secret doesn't hash
	// to the escrow's commitment.
	ErrSecretMismatch = fmt.Errorf("escrow: secret does not match commitment")

	// ErrUnauthorizedClaim is returned when claim is called by anyone
	// other than the beneficiary.
	ErrUnauthorizedClaim = fmt.Errorf("escrow: only the beneficiary may claim")

	// ErrCancelTooEarly is returned when cancel is called before the
	// caller's applicable cancel window has opened.
	ErrCancelTooEarly = fmt.Errorf("escrow: cancel window not yet open")
)

// Store is the authoritative in-process mirror of every escrow this
// coordinator instance has created, claimed, or cancelled. It is safe for
// concurrent use; per spec.md §5 the lock is only ever held for O(1)
// bookkeeping, never across the Ledger call that moves funds.
type Store struct {
	mtx     sync.Mutex
	ledger  Ledger
	escrows map[ID]*Escrow
	nextID  uint64
}

// NewStore returns an escrow Store backed by the given Ledger.
func NewStore(ledger Ledger) *Store {
	return &Store{
		ledger:  ledger,
		escrows: make(map[ID]*Escrow),
	}
}

// Create deploys a new escrow. now is the deployer's current chain-B
// nanosecond timestamp, supplied by the caller so the function stays a
// pure computation over its arguments (see pkg/clock).
func (s *Store) Create(namespace string, now uint64, p CreateParams) (ID, error) {
	finalityUntil, err := safemath.AddTimestamp(now, p.FinalityPeriodSecs)
	if err != nil {
		return ID{}, fusionerrs.Permanent(fmt.Errorf("escrow: finality period overflow: %w", err))
	}

	cancelFrom, err := safemath.AddTimestamp(now, p.CancelPeriodSecs)
	if err != nil {
		return ID{}, fusionerrs.Permanent(fmt.Errorf("escrow: cancel period overflow: %w", err))
	}

	publicCancelFrom, err := safemath.AddTimestamp(now, p.PublicCancelPeriodSecs)
	if err != nil {
		return ID{}, fusionerrs.Permanent(fmt.Errorf("escrow: public cancel period overflow: %w", err))
	}

	if !(finalityUntil < cancelFrom && cancelFrom <= publicCancelFrom) {
		return ID{}, fusionerrs.Permanent(ErrInvalidPeriods)
	}

	total, err := safemath.AddU128(p.Principal, p.SafetyDeposit)
	if err != nil {
		return ID{}, fusionerrs.Permanent(fmt.Errorf("escrow: principal+safety_deposit overflow"))
	}

	if p.AttachedDeposit.Cmp(total) < 0 {
		return ID{}, fusionerrs.Permanent(ErrInsufficientDeposit)
	}

	safetyBeneficiary := p.SafetyDepositBeneficiary
	if safetyBeneficiary == "" {
		safetyBeneficiary = p.Resolver
	}

	s.mtx.Lock()
	s.nextID++
	id := ID{Namespace: namespace, Counter: s.nextID}
	s.mtx.Unlock()

	if err := s.ledger.Credit(id, total); err != nil {
		return ID{}, fusionerrs.Transient(fmt.Errorf("escrow: credit failed: %w", err))
	}

	e := &Escrow{
		ID:                       id,
		Resolver:                 p.Resolver,
		Beneficiary:              p.Beneficiary,
		SafetyDepositBeneficiary: safetyBeneficiary,
		Principal:                p.Principal,
		SafetyDeposit:            p.SafetyDeposit,
		SecretHash:               p.SecretHash,
		DeployedAt:               now,
		FinalityUntil:            finalityUntil,
		CancelFrom:               cancelFrom,
		PublicCancelFrom:         publicCancelFrom,
		State:                    Active,
	}

	s.mtx.Lock()
	s.escrows[id] = e
	s.mtx.Unlock()

	log.Infof("Fusion escrow created: %v by %v for %v, amount: %s, safety: %s",
		id, p.Resolver, p.Beneficiary, p.Principal.String(), p.SafetyDeposit.String())

	return id, nil
}

// Claim redeems escrow id for the beneficiary, revealing secret. State is
// mutated to Claimed before any outbound transfer, per spec.md §4.1; if
// either outbound transfer fails, Claim itself reverts state to Active via
// revert and returns a transient error.
func (s *Store) Claim(id ID, caller string, secret htlc.Secret, now uint64) error {
	s.mtx.Lock()
	e, ok := s.escrows[id]
	if !ok {
		s.mtx.Unlock()
		return fusionerrs.Permanent(ErrNotFound)
	}

	if e.State != Active {
		s.mtx.Unlock()
		return classifyAlreadyResolved(e)
	}

	if now >= e.FinalityUntil {
		s.mtx.Unlock()
		return fusionerrs.Permanent(ErrFinalityElapsed)
	}

	if caller != e.Beneficiary {
		s.mtx.Unlock()
		return fusionerrs.Permanent(ErrUnauthorizedClaim)
	}

	if !secret.Verify(e.SecretHash) {
		s.mtx.Unlock()
		return fusionerrs.Permanent(ErrSecretMismatch)
	}

	// Mutate to Claimed before any outbound transfer, and emit the
	// revelation log unconditionally on the claim call -- this is the
	// canonical revelation channel regardless of whether the outbound
	// transfer below later succeeds.
	e.State = Claimed
	e.ResolvedBy = caller
	e.ResolvedAt = now
	s.mtx.Unlock()

	log.Infof("Secret revealed: %x", secret.Bytes())

	if err := s.ledger.Transfer(id, e.Beneficiary, e.Principal); err != nil {
		s.revert(e)
		return fusionerrs.Transient(fmt.Errorf("escrow: principal transfer failed: %w", err))
	}

	if err := s.ledger.Transfer(id, e.SafetyDepositBeneficiary, e.SafetyDeposit); err != nil {
		s.revert(e)
		return fusionerrs.Transient(fmt.Errorf("escrow: safety deposit transfer failed: %w", err))
	}

	return nil
}

// revert is the callback spec.md §4.1 requires: on an outbound-transfer
// failure after the state mutation to Claimed, state reverts to Active and
// the resolved_* fields are zeroed. The open question in spec.md §9(a) is
// resolved by reverting unconditionally, including the safety-deposit
// destination, matching the reference behavior.
func (s *Store) revert(e *Escrow) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	e.State = Active
	e.ResolvedBy = ""
	e.ResolvedAt = 0
}

// Cancel refunds escrow id to the resolver. Permitted for the resolver once
// now >= cancel_from, or for anyone once now >= public_cancel_from.
func (s *Store) Cancel(id ID, caller string, now uint64) error {
	s.mtx.Lock()
	e, ok := s.escrows[id]
	if !ok {
		s.mtx.Unlock()
		return fusionerrs.Permanent(ErrNotFound)
	}

	if e.State != Active {
		s.mtx.Unlock()
		// Cancel on an already-terminal escrow is defined as a no-op by
		// spec.md §8's idempotence law.
		return nil
	}

	authorized := (now >= e.CancelFrom && caller == e.Resolver) ||
		now >= e.PublicCancelFrom
	if !authorized {
		s.mtx.Unlock()
		return fusionerrs.Permanent(ErrCancelTooEarly)
	}

	e.State = Cancelled
	e.ResolvedBy = caller
	e.ResolvedAt = now
	s.mtx.Unlock()

	total, err := safemath.AddU128(e.Principal, e.SafetyDeposit)
	if err != nil {
		s.revert(e)
		return fusionerrs.Transient(fmt.Errorf("escrow: refund total overflow: %w", err))
	}
	if err := s.ledger.Transfer(id, e.Resolver, total); err != nil {
		s.revert(e)
		return fusionerrs.Transient(fmt.Errorf("escrow: refund failed: %w", err))
	}

	return nil
}

// BatchCancel cancels every eligible id in ids at public_cancel_from.
// Duplicate ids are processed once: a later occurrence of an id already in
// the results map is skipped, so its first result stands.
func (s *Store) BatchCancel(ids []ID, now uint64) map[ID]error {
	results := make(map[ID]error, len(ids))
	for _, id := range ids {
		if _, done := results[id]; done {
			continue
		}
		results[id] = s.Cancel(id, "", now)
	}

	return results
}

// Get returns a copy of escrow id's current state.
func (s *Store) Get(id ID) (Escrow, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	e, ok := s.escrows[id]
	if !ok {
		return Escrow{}, ErrNotFound
	}

	return *e, nil
}

// ListActive returns up to limit Active escrows with ID.Counter > from,
// ordered by Counter.
func (s *Store) ListActive(from uint64, limit int) []Escrow {
	return s.listWhere(limit, func(e *Escrow) bool {
		return e.State == Active && e.ID.Counter > from
	})
}

// ListClaimable returns Active escrows whose beneficiary is the given
// account.
func (s *Store) ListClaimable(beneficiary string) []Escrow {
	return s.listWhere(0, func(e *Escrow) bool {
		return e.State == Active && e.Beneficiary == beneficiary
	})
}

// ListCancellable returns Active escrows cancellable right now by resolver
// (or by anyone, if resolver is empty, meaning "in the public window").
func (s *Store) ListCancellable(resolver string, now uint64) []Escrow {
	return s.listWhere(0, func(e *Escrow) bool {
		if e.State != Active {
			return false
		}
		if resolver != "" {
			return e.Resolver == resolver && now >= e.CancelFrom
		}
		return now >= e.PublicCancelFrom
	})
}

func (s *Store) listWhere(limit int, pred func(*Escrow) bool) []Escrow {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var out []Escrow
	for _, e := range s.escrows {
		if pred(e) {
			out = append(out, *e)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID.Counter < out[j].ID.Counter })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out
}

// classifyAlreadyResolved turns a call on an already-terminal escrow into
// the stable classification spec.md §8 requires: re-claiming after a
// successful claim is "already claimed", not a generic permanent error.
func classifyAlreadyResolved(e *Escrow) error {
	switch e.State {
	case Claimed:
		return fusionerrs.Permanent(fmt.Errorf("escrow: already claimed"))
	case Cancelled:
		return fusionerrs.Permanent(fmt.Errorf("escrow: already cancelled"))
	default:
		return fusionerrs.Permanent(ErrNotActive)
	}
}
