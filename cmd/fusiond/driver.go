package main

import (
	"context"

	"github.com/fusionbridge/swapd/adapter"
	"github.com/fusionbridge/swapd/claimexec"
	"github.com/fusionbridge/swapd/coordinator"
	"github.com/fusionbridge/swapd/events"
	"github.com/fusionbridge/swapd/htlc"
	"github.com/fusionbridge/swapd/pkg/clock"
)

// driver turns adapter events for one swap into coordinator.Advance calls
// and dispatches the commands Advance returns; one driver runs per
// in-flight swap, grounded on the per-channel goroutine lnd's
// htlcswitch.Link runs for a single active HTLC.
type driver struct {
	pipeline *events.Pipeline
	records  *coordinator.Store
	claims   *claimexec.Executor
	near     adapter.EscrowSide
	evm      adapter.OrderSide
	clk      clock.Clock
}

// Orchestrator wires driver into fusionrpc.Server: every proposed swap
// gets its own sink registered with the pipeline and its own goroutine
// pumping events into the coordinator until the swap reaches a terminal
// state.
type orchestrator struct {
	d *driver
}

func newOrchestrator(d *driver) *orchestrator {
	return &orchestrator{d: d}
}

func (o *orchestrator) SwapProposed(ctx context.Context, swapKey string) {
	go o.d.run(ctx, swapKey)
}

func (d *driver) run(ctx context.Context, swapKey string) {
	sink := events.NewChanSink(16)
	d.pipeline.Register(swapKey, sink)
	defer d.pipeline.Unregister(swapKey)

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sink.Events():
			d.handle(ctx, swapKey, ev)

			if rec, ok := d.records.Get(swapKey); ok && isTerminal(rec.State) {
				return
			}
		}
	}
}

// handle translates one adapter event into a coordinator.Event, advances
// the FSM, and dispatches whatever Command comes back.
func (d *driver) handle(ctx context.Context, swapKey string, ev events.Event) {
	cev, ok := toCoordinatorEvent(ev)
	if !ok {
		return
	}

	if err := d.records.UpdateCheckpoint(swapKey, ev.Chain, ev.Checkpoint); err != nil {
		log.Warnf("swap %s: checkpoint update failed: %v", swapKey, err)
	}

	cmd, err := d.records.Advance(swapKey, cev, d.clk)
	if err != nil {
		log.Errorf("swap %s: advance failed: %v", swapKey, err)
		return
	}

	d.dispatch(ctx, swapKey, cmd, cev.Secret)
}

// isTerminal reports whether state is one Advance never transitions out of.
func isTerminal(state coordinator.State) bool {
	return state == coordinator.Completed || state == coordinator.Refunded || state == coordinator.Aborted
}

// toCoordinatorEvent maps a pipeline event to the coordinator's event
// vocabulary. Adapter errors and kinds with no coordinator counterpart
// return false and are dropped; a mapped event that doesn't apply to the
// current state is a no-op in Advance's transition table.
func toCoordinatorEvent(ev events.Event) (coordinator.Event, bool) {
	switch ev.Kind {
	case events.KindEscrowCreated:
		return coordinator.Event{Kind: coordinator.EventEscrowCreated}, true
	case events.KindEscrowClaimed:
		secret, _ := ev.Payload.(htlc.Secret)
		return coordinator.Event{Kind: coordinator.EventSecretRevealed, Secret: &secret}, true
	case events.KindOrderFilled:
		return coordinator.Event{Kind: coordinator.EventCounterClaimConfirmed}, true
	case events.KindEscrowCancelled, events.KindOrderCancelled:
		return coordinator.Event{Kind: coordinator.EventRefundConfirmed}, true
	case events.KindAdapterError:
		return coordinator.Event{}, false
	default:
		return coordinator.Event{}, false
	}
}

func (d *driver) dispatch(ctx context.Context, swapKey string, cmd coordinator.Command, secret *htlc.Secret) {
	switch cmd {
	case coordinator.CommandSubmitCounterClaim:
		if secret == nil {
			log.Errorf("swap %s: counter-claim command issued with no secret", swapKey)
			return
		}
		go d.claims.Execute(ctx, swapKey, *secret)
		if _, err := d.records.Advance(swapKey, coordinator.Event{Kind: coordinator.EventCounterClaimSubmitted}, d.clk); err != nil {
			log.Errorf("swap %s: advance to counter-claiming failed: %v", swapKey, err)
		}

	case coordinator.CommandRefund:
		rec, ok := d.records.Get(swapKey)
		if !ok {
			return
		}
		if rec.EscrowID != "" {
			if err := d.near.CancelEscrow(ctx, rec.EscrowID); err != nil {
				log.Errorf("swap %s: cancel escrow failed: %v", swapKey, err)
			}
		}
		if rec.OrderRef != "" {
			if err := d.evm.CancelOrder(ctx, rec.OrderRef); err != nil {
				log.Errorf("swap %s: cancel order failed: %v", swapKey, err)
			}
		}

	case coordinator.CommandRaiseAlert:
		log.Warnf("swap %s: alert raised by coordinator", swapKey)
	}
}
