// Package secretregistry is the coordinator's hash-to-secret store: once a
// secret is revealed on either chain, it is recorded here exactly once and
// made available to the claim executor until it's disposed of. The state
// machine -- Unrevealed -> Revealed -> Disposed -- mirrors the dedup
// discipline htlcswitch.ControlTower uses to stop a duplicate payment from
// ever leaving the switch twice; here it stops a secret from ever being
// wired to two different swaps.
package secretregistry

import (
	"errors"
	"sync"

	"github.com/fusionbridge/swapd/fusionlog"
	"github.com/fusionbridge/swapd/htlc"
	"github.com/fusionbridge/swapd/pkg/clock"
	"github.com/prometheus/client_golang/prometheus"
)

var log = fusionlog.NewSubLogger("SECR")

// State is a registry entry's lifecycle state.
type State uint8

const (
	// Unrevealed means the swap's hash commitment is known but the
	// preimage has not yet surfaced on either chain.
	Unrevealed State = iota

	// Revealed means the secret has been observed and is held for the
	// claim executor to use on the counter-chain.
	Revealed

	// Disposed is terminal: the secret has been used (or its swap
	// aborted) and its bytes have been zeroed in place.
	Disposed
)

func (s State) String() string {
	switch s {
	case Unrevealed:
		return "unrevealed"
	case Revealed:
		return "revealed"
	case Disposed:
		return "disposed"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyRegistered is returned when Register is called twice for
	// the same hash with a different swap key.
	ErrAlreadyRegistered = errors.New("secretregistry: hash already bound to a different swap")

	// ErrUnknownHash is returned when an operation targets a hash the
	// registry has never seen.
	ErrUnknownHash = errors.New("secretregistry: unknown hash")

	// ErrNotRevealed is returned when Get is called before the secret has
	// surfaced.
	ErrNotRevealed = errors.New("secretregistry: secret not yet revealed")

	// ErrDisposed is returned when an operation targets a disposed entry.
	ErrDisposed = errors.New("secretregistry: secret already disposed")
)

type entry struct {
	swapKey   string
	state     State
	secret    htlc.Secret
	revealed  bool
	expiresAt uint64
}

// Registry binds each HTLC hash commitment to at most one swap and holds the
// revealed secret until it's disposed of or its TTL sweeps it away.
type Registry struct {
	mtx     sync.Mutex
	clock   clock.Clock
	entries map[htlc.Hash]*entry

	gaugeUnrevealed prometheus.Gauge
	gaugeRevealed   prometheus.Gauge
	gaugeDisposed   prometheus.Gauge
}

// NewRegistry returns an empty Registry using clk to evaluate TTLs.
func NewRegistry(clk clock.Clock) *Registry {
	return &Registry{
		clock:   clk,
		entries: make(map[htlc.Hash]*entry),

		gaugeUnrevealed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fusion",
			Subsystem: "secretregistry",
			Name:      "unrevealed_total",
			Help:      "Number of hash commitments awaiting secret revelation.",
		}),
		gaugeRevealed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fusion",
			Subsystem: "secretregistry",
			Name:      "revealed_total",
			Help:      "Number of secrets held, ready for counter-claim.",
		}),
		gaugeDisposed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fusion",
			Subsystem: "secretregistry",
			Name:      "disposed_total",
			Help:      "Cumulative number of secrets disposed of.",
		}),
	}
}

// Collectors returns the registry's prometheus gauges for registration with
// a prometheus.Registerer.
func (r *Registry) Collectors() []prometheus.Collector {
	return []prometheus.Collector{r.gaugeUnrevealed, r.gaugeRevealed, r.gaugeDisposed}
}

// Register binds hash to swapKey with a TTL, in Unrevealed state. Calling
// Register twice for the same hash with the same swapKey is a no-op;
// calling it with a different swapKey is an invariant violation -- two
// swaps must never share a hash commitment.
func (r *Registry) Register(hash htlc.Hash, swapKey string, ttlSecs uint64) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if e, ok := r.entries[hash]; ok {
		if e.swapKey != swapKey {
			return ErrAlreadyRegistered
		}
		return nil
	}

	now := r.clock.Now()
	r.entries[hash] = &entry{
		swapKey:   swapKey,
		state:     Unrevealed,
		expiresAt: uint64(now.Unix()) + ttlSecs,
	}
	r.gaugeUnrevealed.Inc()

	return nil
}

// MarkRevealed transitions hash to Revealed and stores secret. Idempotent:
// calling it again with the identical secret is a no-op.
func (r *Registry) MarkRevealed(hash htlc.Hash, secret htlc.Secret) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	e, ok := r.entries[hash]
	if !ok {
		return ErrUnknownHash
	}

	switch e.state {
	case Revealed:
		if e.secret == secret {
			return nil
		}
		return errors.New("secretregistry: conflicting secret for the same hash")
	case Disposed:
		return ErrDisposed
	}

	if !secret.Verify(hash) {
		return errors.New("secretregistry: secret does not hash to the registered commitment")
	}

	e.secret = secret
	e.revealed = true
	e.state = Revealed
	r.gaugeUnrevealed.Dec()
	r.gaugeRevealed.Inc()

	log.Infof("Secret revealed for swap %s: %x", e.swapKey, hash[:])

	return nil
}

// Get returns the revealed secret for hash, or ErrNotRevealed if it hasn't
// surfaced yet.
func (r *Registry) Get(hash htlc.Hash) (htlc.Secret, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	e, ok := r.entries[hash]
	if !ok {
		return htlc.Secret{}, ErrUnknownHash
	}

	switch e.state {
	case Unrevealed:
		return htlc.Secret{}, ErrNotRevealed
	case Disposed:
		return htlc.Secret{}, ErrDisposed
	}

	return e.secret, nil
}

// Dispose zeroes hash's secret bytes in place and transitions it to
// Disposed. Safe to call more than once.
func (r *Registry) Dispose(hash htlc.Hash) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	e, ok := r.entries[hash]
	if !ok {
		return ErrUnknownHash
	}

	if e.state == Disposed {
		return nil
	}

	if e.state == Revealed {
		r.gaugeRevealed.Dec()
	} else {
		r.gaugeUnrevealed.Dec()
	}

	e.secret.Zero()
	e.state = Disposed
	r.gaugeDisposed.Inc()

	return nil
}

// Stats summarizes the registry's current population, for status RPCs.
type Stats struct {
	Unrevealed int
	Revealed   int
	Disposed   int
}

// Stats returns a snapshot count by state.
func (r *Registry) Stats() Stats {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	var s Stats
	for _, e := range r.entries {
		switch e.state {
		case Unrevealed:
			s.Unrevealed++
		case Revealed:
			s.Revealed++
		case Disposed:
			s.Disposed++
		}
	}

	return s
}

// SweepExpired disposes of every Unrevealed or Revealed entry whose TTL has
// elapsed as of now, and returns the count of entries it disposed.
//
// TODO(fusion): an entry that's Revealed but never claimed past its TTL
// should raise an operator alert rather than silently dispose -- wire this
// through once the alerting channel in coordinator exists.
func (r *Registry) SweepExpired(now uint64) int {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	swept := 0
	for hash, e := range r.entries {
		if e.state == Disposed || e.expiresAt > now {
			continue
		}

		if e.state == Revealed {
			r.gaugeRevealed.Dec()
		} else {
			r.gaugeUnrevealed.Dec()
		}

		e.secret.Zero()
		e.state = Disposed
		r.gaugeDisposed.Inc()
		swept++

		_ = hash
	}

	return swept
}
