package escrow

import (
	"errors"
	"sync"

	"lukechampine.com/uint128"
)

// MemoryLedger is an in-memory Ledger used by tests and by a local
// simulated escrow Store. It tracks running balances per account and per
// escrow custody so invariant checks (total custody at Active state
// equals principal+safety_deposit) can be asserted directly in tests.
type MemoryLedger struct {
	mtx      sync.Mutex
	balances map[string]uint128.Uint128
	custody  map[ID]uint128.Uint128

	// FailTransfers, when set, makes the next n Transfer calls to a
	// recipient mapped to n fail -- used to exercise the revert-to-Active
	// recovery path spec.md §4.1 requires.
	FailTransfers map[string]int
}

// NewMemoryLedger returns an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:      make(map[string]uint128.Uint128),
		custody:       make(map[ID]uint128.Uint128),
		FailTransfers: make(map[string]int),
	}
}

// Credit implements Ledger.
func (m *MemoryLedger) Credit(id ID, amount uint128.Uint128) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.custody[id] = m.custody[id].Add(amount)
	return nil
}

// Transfer implements Ledger.
func (m *MemoryLedger) Transfer(id ID, recipient string, amount uint128.Uint128) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if remaining, scheduled := m.FailTransfers[recipient]; scheduled && remaining > 0 {
		m.FailTransfers[recipient] = remaining - 1
		return errTransferFailed
	}

	if m.custody[id].Cmp(amount) < 0 {
		return errInsufficientCustody
	}

	m.custody[id] = m.custody[id].Sub(amount)
	m.balances[recipient] = m.balances[recipient].Add(amount)
	return nil
}

// Balance returns the current credited balance of account.
func (m *MemoryLedger) Balance(account string) uint128.Uint128 {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return m.balances[account]
}

// Custody returns the amount still locked in escrow id's custody.
func (m *MemoryLedger) Custody(id ID) uint128.Uint128 {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return m.custody[id]
}

var (
	errTransferFailed      = errors.New("escrow: simulated transfer failure")
	errInsufficientCustody = errors.New("escrow: insufficient custody for transfer")
)
