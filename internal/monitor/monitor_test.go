package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nexusbridge/swaporch/internal/chaina"
	"github.com/nexusbridge/swaporch/internal/chainb"
)

func TestChainAObservationMapsEventKinds(t *testing.T) {
	tests := []struct {
		kind chaina.EventKind
		want ObservationKind
	}{
		{chaina.EventSrcEscrowCreated, ObservationSrcEscrowCreated},
		{chaina.EventWithdrawn, ObservationSrcWithdrawn},
		{chaina.EventCancelled, ObservationSrcCancelled},
	}
	for _, tt := range tests {
		obs := chainAObservation("session-1", chaina.Event{Kind: tt.kind})
		if obs.Kind != tt.want {
			t.Errorf("chainAObservation(%s) = %s, want %s", tt.kind, obs.Kind, tt.want)
		}
		if obs.SessionID != "session-1" {
			t.Errorf("SessionID = %s, want session-1", obs.SessionID)
		}
	}
}

func TestChainBObservationMapsEventKinds(t *testing.T) {
	tests := []struct {
		kind chainb.EventKind
		want ObservationKind
	}{
		{chainb.EventHTLCCreated, ObservationDstHTLCCreated},
		{chainb.EventSecretReveal, ObservationDstSecretRevealed},
		{chainb.EventRefunded, ObservationDstRefunded},
	}
	for _, tt := range tests {
		obs := chainBObservation("session-1", chainb.Event{Kind: tt.kind, HTLCHandle: "htlc-1"})
		if obs.Kind != tt.want {
			t.Errorf("chainBObservation(%s) = %s, want %s", tt.kind, obs.Kind, tt.want)
		}
	}
}

func TestWatchSessionIsIdempotent(t *testing.T) {
	m := New(nil, nil, nil, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.WatchSession(ctx, "session-1", common.Address{}, "")
	m.WatchSession(ctx, "session-1", common.Address{}, "")

	m.mu.Lock()
	n := len(m.watching)
	m.mu.Unlock()
	if n != 1 {
		t.Errorf("watching map has %d entries, want 1", n)
	}
}

func TestStopWatchingRemovesEntry(t *testing.T) {
	m := New(nil, nil, nil, Config{})
	ctx := context.Background()

	m.WatchSession(ctx, "session-1", common.Address{}, "")
	m.StopWatching("session-1")

	m.mu.Lock()
	_, exists := m.watching["session-1"]
	m.mu.Unlock()
	if exists {
		t.Error("expected session-1 to be removed from watching map")
	}
}

func TestBackoffRespectsRetryCeiling(t *testing.T) {
	m := New(nil, nil, nil, Config{MaxRetries: 2, BackoffBase: time.Millisecond})
	ctx := context.Background()

	attempt := 0
	for i := 0; i < 5; i++ {
		if !m.backoff(ctx, &attempt) {
			if attempt <= m.cfg.MaxRetries {
				t.Errorf("backoff gave up at attempt %d, want > %d", attempt, m.cfg.MaxRetries)
			}
			return
		}
	}
	t.Error("backoff never hit its retry ceiling")
}
