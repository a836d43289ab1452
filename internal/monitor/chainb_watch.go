package monitor

import (
	"context"
	"time"

	"github.com/nexusbridge/swaporch/internal/chainb"
	"github.com/nexusbridge/swaporch/pkg/errkind"
)

// watchChainB polls get_recent_events on a fixed interval, since chain B
// has no push subscriptions; state transitions are detected at least once
// with worst-case latency of pollInterval + confirmationWindow.
func (m *EventMonitor) watchChainB(watchCtx context.Context, sessionID, dstHTLCHandle string) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	since := time.Now().Add(-m.cfg.PollInterval)
	attempt := 0

	for {
		select {
		case <-watchCtx.Done():
			return
		case <-ticker.C:
			events, err := m.chainB.PollEvents(watchCtx, since)
			if err != nil {
				if errkind.Of(err) == errkind.KindRPCFailure {
					if !m.backoff(watchCtx, &attempt) {
						return
					}
					continue
				}
				log.Warn("chain B poll failed", "session_id", sessionID, "err", err)
				continue
			}
			attempt = 0
			since = time.Now()

			for _, ev := range events {
				if ev.HTLCHandle != dstHTLCHandle {
					continue
				}
				m.deliver(watchCtx, chainBObservation(sessionID, ev))
			}
		}
	}
}

func chainBObservation(sessionID string, ev chainb.Event) Observation {
	obs := Observation{
		SessionID:  sessionID,
		HTLCHandle: ev.HTLCHandle,
		Secret:     ev.Secret,
		Timestamp:  ev.Timestamp,
	}
	switch ev.Kind {
	case chainb.EventHTLCCreated:
		obs.Kind = ObservationDstHTLCCreated
	case chainb.EventSecretReveal:
		obs.Kind = ObservationDstSecretRevealed
	case chainb.EventRefunded:
		obs.Kind = ObservationDstRefunded
	}
	return obs
}
