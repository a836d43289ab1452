// Package notifier fans swap lifecycle events out to in-process
// subscribers and any wired transport sinks (websocket).
package notifier

import (
	"sync"
	"time"

	"github.com/nexusbridge/swaporch/pkg/logging"
)

var log = logging.Component("notifier")

// EventType enumerates the lifecycle events a session can emit.
type EventType string

const (
	EventSessionCreated    EventType = "session_created"
	EventStateTransitioned EventType = "state_transitioned"
	EventEscrowAttached    EventType = "escrow_attached"
	EventSecretRevealed    EventType = "secret_revealed"
	EventStepCompleted     EventType = "step_completed"
	EventStepFailed        EventType = "step_failed"
	EventSwapCompleted     EventType = "swap_completed"
	EventSwapFailed        EventType = "swap_failed"
)

// SwapEvent is the payload fanned out to every subscriber.
type SwapEvent struct {
	SessionID string
	EventType EventType
	Data      interface{}
	Timestamp time.Time
}

// Handler is called when a swap event occurs. Handlers run concurrently and
// must not block indefinitely.
type Handler func(event SwapEvent)

// Notifier fans events out to registered handlers with no backpressure
// guarantee, mirroring a single best-effort broadcast rather than a durable
// queue.
type Notifier struct {
	mu       sync.RWMutex
	handlers []Handler
}

// New returns an empty Notifier.
func New() *Notifier {
	return &Notifier{}
}

// Subscribe registers handler to receive every future event.
func (n *Notifier) Subscribe(handler Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers = append(n.handlers, handler)
}

// Emit fans event out to all currently-registered handlers. Handlers are
// copied out from under the lock, then invoked concurrently and
// unlocked, so a slow or blocking handler cannot stall registration or
// other emits.
func (n *Notifier) Emit(sessionID string, eventType EventType, data interface{}) {
	event := SwapEvent{
		SessionID: sessionID,
		EventType: eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	n.mu.RLock()
	handlers := make([]Handler, len(n.handlers))
	copy(handlers, n.handlers)
	n.mu.RUnlock()

	log.Debug("emitting swap event", "session_id", sessionID, "event_type", eventType, "subscribers", len(handlers))
	for _, handler := range handlers {
		go handler(event)
	}
}
