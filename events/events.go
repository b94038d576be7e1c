// Package events is the coordinator's unified chain-event pipeline: both
// chain adapters push typed events onto one ingress channel, this package
// checkpoints and demultiplexes them by swap key, and each swap's
// coordinator FSM drains its own small, buffered queue. The central-plex
// pattern (one ingress channel fed by producers, dispatched out to
// per-recipient queues) is grounded on htlcswitch.Switch's htlcPlex, and the
// buffered-channel-per-event convention is grounded on chainntfns'
// ConfirmationEvent/SpendEvent/BlockEpochEvent.
package events

import (
	"context"
	"sync"

	"github.com/fusionbridge/swapd/fusionlog"
)

var log = fusionlog.NewSubLogger("EVNT")

// Chain identifies which side of the swap an event originated from.
type Chain uint8

const (
	ChainEVM Chain = iota
	ChainNEAR
)

func (c Chain) String() string {
	switch c {
	case ChainEVM:
		return "evm"
	case ChainNEAR:
		return "near"
	default:
		return "unknown"
	}
}

// Kind enumerates the event types either adapter can produce.
type Kind uint8

const (
	KindOrderFilled Kind = iota
	KindOrderCancelled
	KindEscrowCreated
	KindEscrowClaimed
	KindEscrowCancelled
	KindAdapterError
)

// Checkpoint is the pipeline's at-least-once delivery cursor: the pair
// (block height, intra-block index) that uniquely orders events within a
// chain's event stream.
type Checkpoint struct {
	BlockHeight   uint64
	IntraBlockIdx uint32
}

// Less reports whether c sorts strictly before other.
func (c Checkpoint) Less(other Checkpoint) bool {
	if c.BlockHeight != other.BlockHeight {
		return c.BlockHeight < other.BlockHeight
	}
	return c.IntraBlockIdx < other.IntraBlockIdx
}

// Event is the envelope every chain event is wrapped in before entering the
// pipeline. SwapKey identifies which swap's coordinator FSM the event is
// demultiplexed to; it is empty for events that don't yet correlate to a
// known swap (e.g. an OrderFilled seen before the coordinator registered
// interest in it), which are instead delivered to the pipeline's
// unmatched-event sink.
type Event struct {
	Chain      Chain
	Kind       Kind
	SwapKey    string
	Checkpoint Checkpoint
	Payload    interface{}
}

// Sink receives events demultiplexed to a single swap. Implementations are
// expected to be non-blocking or to apply their own bounded buffering --
// the pipeline will drop the event and count it as backpressure-shed if the
// sink's channel is full, per the bounded-queue requirement.
type Sink interface {
	Deliver(Event) bool
}

// ChanSink is a Sink backed by a fixed-capacity buffered channel, the queue
// a per-swap coordinator goroutine reads from.
type ChanSink struct {
	ch chan Event
}

// NewChanSink returns a ChanSink with the given buffer capacity.
func NewChanSink(capacity int) *ChanSink {
	return &ChanSink{ch: make(chan Event, capacity)}
}

// Deliver attempts a non-blocking send, reporting false if the sink's
// buffer is full.
func (s *ChanSink) Deliver(e Event) bool {
	select {
	case s.ch <- e:
		return true
	default:
		return false
	}
}

// Events returns the channel a consumer goroutine should range over.
func (s *ChanSink) Events() <-chan Event {
	return s.ch
}

// Pipeline demultiplexes a single ingress stream of chain events out to
// per-swap sinks, tracking the highest checkpoint seen per chain so a
// restart can resume from where it left off.
type Pipeline struct {
	ingress chan Event

	mtx         sync.Mutex
	sinks       map[string]Sink
	checkpoints map[Chain]Checkpoint
	unmatched   Sink
	dropped     uint64
}

// NewPipeline returns a Pipeline with the given ingress buffer capacity.
// unmatched receives events whose SwapKey doesn't (yet) resolve to a
// registered sink; pass nil to discard them.
func NewPipeline(ingressCapacity int, unmatched Sink) *Pipeline {
	return &Pipeline{
		ingress:     make(chan Event, ingressCapacity),
		sinks:       make(map[string]Sink),
		checkpoints: make(map[Chain]Checkpoint),
		unmatched:   unmatched,
	}
}

// Ingress returns the channel both chain adapters push events onto.
func (p *Pipeline) Ingress() chan<- Event {
	return p.ingress
}

// Register binds swapKey to sink so future events carrying that key are
// demultiplexed to it.
func (p *Pipeline) Register(swapKey string, sink Sink) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	p.sinks[swapKey] = sink
}

// Unregister removes swapKey's sink, e.g. once its swap has reached a
// terminal state and its events are no longer of interest.
func (p *Pipeline) Unregister(swapKey string) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	delete(p.sinks, swapKey)
}

// Checkpoint returns the highest checkpoint the pipeline has dispatched for
// the given chain, for resuming a restarted adapter's subscription.
func (p *Pipeline) Checkpoint(c Chain) Checkpoint {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	return p.checkpoints[c]
}

// Dropped returns the cumulative count of events shed due to a full sink
// buffer -- the pipeline's backpressure counter.
func (p *Pipeline) Dropped() uint64 {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	return p.dropped
}

// Run drains the ingress channel until ctx is cancelled, dispatching each
// event to its registered sink (or the unmatched sink) and advancing the
// per-chain checkpoint. It's meant to be run in its own goroutine.
func (p *Pipeline) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-p.ingress:
			p.dispatch(e)
		}
	}
}

func (p *Pipeline) dispatch(e Event) {
	p.mtx.Lock()
	if cp := p.checkpoints[e.Chain]; cp.Less(e.Checkpoint) {
		p.checkpoints[e.Chain] = e.Checkpoint
	}

	sink, ok := p.sinks[e.SwapKey]
	if !ok {
		sink = p.unmatched
	}
	p.mtx.Unlock()

	if sink == nil {
		return
	}

	if !sink.Deliver(e) {
		p.mtx.Lock()
		p.dropped++
		p.mtx.Unlock()

		log.Warnf("event dropped for swap %s: sink buffer full (kind=%v, chain=%v)",
			e.SwapKey, e.Kind, e.Chain)
	}
}
