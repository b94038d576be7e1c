// Package storage defines the Backend interface the coordinator persists
// swap records and checkpoints through, with two concrete implementations:
// bbolt (the default, embedded, grounded on channeldb.DB's open/migration
// pattern) and postgres (an alternate backend for operators who run a real
// RDBMS). Both satisfy the same Backend interface so the coordinator never
// imports either driver directly.
package storage

import (
	"context"

	"github.com/fusionbridge/swapd/coordinator"
	"github.com/fusionbridge/swapd/events"
)

// Backend is the durable store the coordinator checkpoints swap records
// and event-pipeline checkpoints through.
type Backend interface {
	// PutRecord persists r, overwriting any prior record for r.SwapKey.
	PutRecord(ctx context.Context, r coordinator.Record) error

	// GetRecord returns the persisted record for swapKey, or ok=false if
	// none exists.
	GetRecord(ctx context.Context, swapKey string) (coordinator.Record, bool, error)

	// ListRecords returns every persisted record, for startup recovery.
	ListRecords(ctx context.Context) ([]coordinator.Record, error)

	// PutCheckpoint persists the event pipeline's checkpoint for chain.
	PutCheckpoint(ctx context.Context, chain events.Chain, cp events.Checkpoint) error

	// GetCheckpoint returns the persisted checkpoint for chain, the zero
	// Checkpoint if none exists.
	GetCheckpoint(ctx context.Context, chain events.Chain) (events.Checkpoint, error)

	// Close releases the backend's resources.
	Close() error
}
