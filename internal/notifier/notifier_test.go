package notifier

import (
	"sync"
	"testing"
	"time"
)

func TestEmitFansOutToAllSubscribers(t *testing.T) {
	n := New()

	var mu sync.Mutex
	received := make([]SwapEvent, 0, 2)
	done := make(chan struct{}, 2)

	subscriber := func(event SwapEvent) {
		mu.Lock()
		received = append(received, event)
		mu.Unlock()
		done <- struct{}{}
	}
	n.Subscribe(subscriber)
	n.Subscribe(subscriber)

	n.Emit("session-1", EventSessionCreated, map[string]string{"foo": "bar"})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for subscriber")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("received %d events, want 2", len(received))
	}
	if received[0].SessionID != "session-1" || received[0].EventType != EventSessionCreated {
		t.Errorf("unexpected event: %+v", received[0])
	}
}

func TestSubscribeDuringEmitDoesNotDeadlock(t *testing.T) {
	n := New()
	done := make(chan struct{}, 1)

	n.Subscribe(func(event SwapEvent) {
		n.Subscribe(func(SwapEvent) {})
		done <- struct{}{}
	})

	n.Emit("session-1", EventSwapCompleted, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out: subscribing from within a handler deadlocked")
	}
}
