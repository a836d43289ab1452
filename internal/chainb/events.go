package chainb

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/nexusbridge/swaporch/pkg/errkind"
)

// EventKind identifies which HTLC lifecycle event fired on chain B.
type EventKind string

const (
	EventHTLCCreated  EventKind = "htlc_created"
	EventSecretReveal EventKind = "secret_revealed"
	EventRefunded     EventKind = "refunded"
)

// Event is the unified shape PollEvents delivers, translating
// get_recent_events' wire rows into the orchestrator's internal form.
type Event struct {
	Kind       EventKind
	HTLCHandle string
	OrderHash  [32]byte
	Secret     []byte
	Timestamp  time.Time
}

type recentEventWire struct {
	Kind      string `json:"kind"`
	HTLCID    string `json:"htlc_id"`
	OrderHash string `json:"order_hash"`
	Secret    string `json:"secret"`
	Timestamp string `json:"timestamp"`
}

// PollEvents reads get_recent_events since sinceTimestamp. Chain B has no
// push subscriptions, so EventMonitor calls this on a fixed interval; the
// interval itself lives in EventMonitor, not here.
func (c *Client) PollEvents(ctx context.Context, since time.Time) ([]Event, error) {
	var wire []recentEventWire
	args := map[string]interface{}{"from_timestamp": fmt.Sprintf("%d", since.UnixNano())}
	if err := c.viewCall(ctx, "get_recent_events", args, &wire); err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(wire))
	for _, w := range wire {
		ev, err := decodeEvent(w)
		if err != nil {
			log.Warn("dropping malformed chain B event", "kind", w.Kind, "htlc_id", w.HTLCID, "err", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func decodeEvent(w recentEventWire) (Event, error) {
	ev := Event{Kind: EventKind(w.Kind), HTLCHandle: w.HTLCID}

	if w.OrderHash != "" {
		decoded, err := base64.StdEncoding.DecodeString(w.OrderHash)
		if err != nil || len(decoded) != 32 {
			return ev, fmt.Errorf("%w: decode order hash", errkind.ErrInternal)
		}
		copy(ev.OrderHash[:], decoded)
	}
	if w.Secret != "" {
		decoded, err := base64.StdEncoding.DecodeString(w.Secret)
		if err != nil {
			return ev, fmt.Errorf("%w: decode secret", errkind.ErrInternal)
		}
		ev.Secret = decoded
	}
	if w.Timestamp != "" {
		var nanos int64
		if _, err := fmt.Sscanf(w.Timestamp, "%d", &nanos); err != nil {
			return ev, fmt.Errorf("%w: decode timestamp", errkind.ErrInternal)
		}
		ev.Timestamp = time.Unix(0, nanos)
	}
	return ev, nil
}
