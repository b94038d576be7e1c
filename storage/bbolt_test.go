package storage

import (
	"context"
	"testing"

	"github.com/fusionbridge/swapd/coordinator"
	"github.com/fusionbridge/swapd/events"
	"github.com/stretchr/testify/require"
)

func TestBoltPutGetRecord(t *testing.T) {
	dir := t.TempDir()
	b, err := OpenBolt(dir)
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	rec := coordinator.Record{SwapKey: "swap-1", State: coordinator.Escrowed}

	require.NoError(t, b.PutRecord(ctx, rec))

	got, found, err := b.GetRecord(ctx, "swap-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, coordinator.Escrowed, got.State)

	_, found, err = b.GetRecord(ctx, "unknown")
	require.NoError(t, err)
	require.False(t, found)
}

func TestBoltListRecords(t *testing.T) {
	dir := t.TempDir()
	b, err := OpenBolt(dir)
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.PutRecord(ctx, coordinator.Record{SwapKey: "swap-1"}))
	require.NoError(t, b.PutRecord(ctx, coordinator.Record{SwapKey: "swap-2"}))

	all, err := b.ListRecords(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestBoltCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b, err := OpenBolt(dir)
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	cp := events.Checkpoint{BlockHeight: 42, IntraBlockIdx: 3}
	require.NoError(t, b.PutCheckpoint(ctx, events.ChainEVM, cp))

	got, err := b.GetCheckpoint(ctx, events.ChainEVM)
	require.NoError(t, err)
	require.Equal(t, cp, got)

	empty, err := b.GetCheckpoint(ctx, events.ChainNEAR)
	require.NoError(t, err)
	require.Equal(t, events.Checkpoint{}, empty)
}

func TestBoltReopenPersistsData(t *testing.T) {
	dir := t.TempDir()
	b, err := OpenBolt(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.PutRecord(ctx, coordinator.Record{SwapKey: "swap-1", State: coordinator.Completed}))
	require.NoError(t, b.Close())

	b2, err := OpenBolt(dir)
	require.NoError(t, err)
	defer b2.Close()

	got, found, err := b2.GetRecord(ctx, "swap-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, coordinator.Completed, got.State)
}
