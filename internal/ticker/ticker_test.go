package ticker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTestTickerOnlyFiresWhenActive(t *testing.T) {
	tt := NewTestTicker()

	tt.Tick(time.Now())
	select {
	case <-tt.Ticks():
		t.Fatal("should not deliver a tick while paused")
	default:
	}

	tt.Resume()
	now := time.Now()
	tt.Tick(now)

	select {
	case got := <-tt.Ticks():
		require.Equal(t, now, got)
	default:
		t.Fatal("expected a tick to be delivered while active")
	}
}

func TestWallTickerResumePause(t *testing.T) {
	tk := New(5 * time.Millisecond)
	tk.Resume()
	defer tk.Stop()

	select {
	case <-tk.Ticks():
	case <-time.After(time.Second):
		t.Fatal("expected at least one tick")
	}
}
