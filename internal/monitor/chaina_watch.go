package monitor

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nexusbridge/swaporch/internal/chaina"
)

// watchChainA subscribes to chain A's push event stream for one escrow and
// translates events into unified Observations until watchCtx is done.
func (m *EventMonitor) watchChainA(watchCtx context.Context, sessionID string, srcEscrow common.Address) {
	attempt := 0
	for {
		if watchCtx.Err() != nil {
			return
		}

		events, errs, err := m.chainA.SubscribeEvents(watchCtx, []common.Address{srcEscrow})
		if err != nil {
			if !m.backoff(watchCtx, &attempt) {
				return
			}
			continue
		}
		attempt = 0

		if m.drainChainA(watchCtx, sessionID, srcEscrow, events, errs) {
			return
		}
		// errs fired: subscription dropped, reconnect after back-off.
		if !m.backoff(watchCtx, &attempt) {
			return
		}
	}
}

// drainChainA consumes one subscription's lifetime, returning true when
// watchCtx is done (caller should stop) and false when the subscription
// itself failed (caller should reconnect). Events for any escrow other than
// srcEscrow (the subscription also covers the shared factory) are logged and
// dropped.
func (m *EventMonitor) drainChainA(watchCtx context.Context, sessionID string, srcEscrow common.Address, events <-chan chaina.Event, errs <-chan error) bool {
	for {
		select {
		case <-watchCtx.Done():
			return true
		case <-errs:
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if ev.EscrowAddress != srcEscrow {
				log.Debug("dropping chain A event for another escrow", "session_id", sessionID, "escrow", ev.EscrowAddress.Hex())
				continue
			}
			m.deliver(watchCtx, chainAObservation(sessionID, ev))
		}
	}
}

func chainAObservation(sessionID string, ev chaina.Event) Observation {
	obs := Observation{
		SessionID: sessionID,
		OrderHash: ev.OrderHash,
		TxRef:     ev.TxHash.Hex(),
		Timestamp: time.Now().UTC(),
	}
	switch ev.Kind {
	case chaina.EventSrcEscrowCreated:
		obs.Kind = ObservationSrcEscrowCreated
	case chaina.EventWithdrawn:
		obs.Kind = ObservationSrcWithdrawn
		obs.Secret = ev.Secret[:]
	case chaina.EventCancelled:
		obs.Kind = ObservationSrcCancelled
	}
	return obs
}

// backoff sleeps with exponential back-off capped at m.cfg.MaxRetries
// attempts' worth of growth, returning false if watchCtx ended first or the
// retry ceiling for this reconnect loop was exceeded (the caller then gives
// up watching this session rather than spinning forever).
func (m *EventMonitor) backoff(watchCtx context.Context, attempt *int) bool {
	*attempt++
	if *attempt > m.cfg.MaxRetries {
		log.Error("chain watch exceeded retry ceiling, giving up", "attempts", *attempt)
		return false
	}
	delay := m.cfg.BackoffBase * time.Duration(1<<uint(*attempt-1))
	const maxDelay = 2 * time.Minute
	if delay > maxDelay {
		delay = maxDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-watchCtx.Done():
		return false
	case <-timer.C:
		return true
	}
}
