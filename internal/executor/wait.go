package executor

import (
	"context"
	"sync"
	"time"

	"github.com/nexusbridge/swaporch/internal/monitor"
	"github.com/nexusbridge/swaporch/pkg/errkind"
)

// dispatcher fans monitor.Observation out to per-session waiters. The
// executor's Run must be started once for observations to reach
// waitForBothLocked and waitForSrcWithdrawn.
type dispatcher struct {
	mu      sync.Mutex
	waiters map[string][]chan monitor.Observation
}

func newDispatcher() *dispatcher {
	return &dispatcher{waiters: make(map[string][]chan monitor.Observation)}
}

func (d *dispatcher) register(sessionID string) chan monitor.Observation {
	ch := make(chan monitor.Observation, 16)
	d.mu.Lock()
	d.waiters[sessionID] = append(d.waiters[sessionID], ch)
	d.mu.Unlock()
	return ch
}

func (d *dispatcher) unregister(sessionID string, ch chan monitor.Observation) {
	d.mu.Lock()
	defer d.mu.Unlock()
	chans := d.waiters[sessionID]
	for i, c := range chans {
		if c == ch {
			d.waiters[sessionID] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(d.waiters[sessionID]) == 0 {
		delete(d.waiters, sessionID)
	}
}

func (d *dispatcher) dispatch(obs monitor.Observation) {
	d.mu.Lock()
	chans := append([]chan monitor.Observation(nil), d.waiters[obs.SessionID]...)
	d.mu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- obs:
		default:
		}
	}
}

// Run drains the EventMonitor's observation stream and fans it out to
// registered waiters until ctx is cancelled or the monitor stops. Start it
// once per process, alongside the monitor itself.
func (e *Executor) Run(ctx context.Context) {
	if e.mon == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case obs, ok := <-e.mon.Events():
			if !ok {
				return
			}
			e.dispatch.dispatch(obs)
		}
	}
}

// waitForBothLocked blocks until the monitor confirms both the src escrow
// and dst HTLC creation observations, the session store already shows both
// refs attached (the resume-after-restart path, where push events were
// missed), or cfg.WaitForBothLockedTimeout elapses.
func (e *Executor) waitForBothLocked(ctx context.Context, sessionID string) error {
	ch := e.dispatch.register(sessionID)
	defer e.dispatch.unregister(sessionID, ch)

	deadline := time.Now().Add(e.cfg.WaitForBothLockedTimeout)
	ticker := time.NewTicker(e.cfg.BothLockedPollInterval)
	defer ticker.Stop()

	var sawSrc, sawDst bool
	for {
		sess, err := e.sessions.Get(sessionID)
		if err != nil {
			return err
		}
		if sess.SrcEscrowAddress != "" && sess.DstHTLCHandle != "" {
			sawSrc, sawDst = true, true
		}
		if sawSrc && sawDst {
			return nil
		}
		if time.Now().After(deadline) {
			return errkind.ErrOperationTimeout
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case obs := <-ch:
			switch obs.Kind {
			case monitor.ObservationSrcEscrowCreated:
				sawSrc = true
			case monitor.ObservationDstHTLCCreated:
				sawDst = true
			}
		case <-ticker.C:
		}
	}
}

// waitForSrcWithdrawn blocks until a Withdrawn observation arrives for
// sessionID on chain A, or deadline elapses.
func (e *Executor) waitForSrcWithdrawn(ctx context.Context, sessionID string, deadline time.Time) bool {
	ch := e.dispatch.register(sessionID)
	defer e.dispatch.unregister(sessionID, ch)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case obs := <-ch:
			timer.Stop()
			if obs.Kind == monitor.ObservationSrcWithdrawn {
				return true
			}
		case <-timer.C:
			return false
		}
	}
}
