// Package executor implements CrossChainExecutor: the full atomic-swap
// sequence across chain A and chain B, with idempotent steps, timelock
// scheduling, and the failure-driven cancel/refund paths.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nexusbridge/swaporch/internal/chaina"
	"github.com/nexusbridge/swaporch/internal/chainb"
	"github.com/nexusbridge/swaporch/internal/ledger"
	"github.com/nexusbridge/swaporch/internal/monitor"
	"github.com/nexusbridge/swaporch/internal/notifier"
	"github.com/nexusbridge/swaporch/internal/scheduler"
	"github.com/nexusbridge/swaporch/internal/session"
	"github.com/nexusbridge/swaporch/pkg/errkind"
	"github.com/nexusbridge/swaporch/pkg/logging"
)

var log = logging.Component("executor")

// Config tunes the executor's waits.
type Config struct {
	WaitForBothLockedTimeout time.Duration
	BothLockedPollInterval   time.Duration
}

// Executor drives sessions through executeFullSwap.
type Executor struct {
	sessions *session.Store
	chainA   *chaina.Client
	chainB   *chainb.Client
	mon      *monitor.EventMonitor
	ledger   *ledger.Ledger
	notify   *notifier.Notifier
	sched    *scheduler.Scheduler
	cfg      Config
	dispatch *dispatcher
}

// New constructs an Executor wired to every supporting component.
func New(sessions *session.Store, chainA *chaina.Client, chainB *chainb.Client, mon *monitor.EventMonitor, led *ledger.Ledger, notify *notifier.Notifier, sched *scheduler.Scheduler, cfg Config) *Executor {
	if cfg.WaitForBothLockedTimeout == 0 {
		cfg.WaitForBothLockedTimeout = 10 * time.Minute
	}
	if cfg.BothLockedPollInterval == 0 {
		cfg.BothLockedPollInterval = 5 * time.Second
	}
	return &Executor{
		sessions: sessions,
		chainA:   chainA,
		chainB:   chainB,
		mon:      mon,
		ledger:   led,
		notify:   notify,
		sched:    sched,
		cfg:      cfg,
		dispatch: newDispatcher(),
	}
}

// ExecuteFullSwap drives sessionID from initialized through to a terminal
// state. Calling it again on a session already past a given step is a
// no-op for that step: each stage checks current status before acting.
func (e *Executor) ExecuteFullSwap(ctx context.Context, sessionID string) error {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return err
	}

	if sess.Status == session.StateInitialized {
		if err := e.sessions.Transition(sessionID, session.StateExecuting); err != nil {
			return err
		}
		sess, err = e.sessions.Get(sessionID)
		if err != nil {
			return err
		}
	}

	if sess.Status == session.StateExecuting {
		if err := e.sessions.Transition(sessionID, session.StateSourceLocking); err != nil {
			return err
		}
		e.notify.Emit(sessionID, notifier.EventStateTransitioned, session.StateSourceLocking)
		sess, err = e.sessions.Get(sessionID)
		if err != nil {
			return err
		}
	}

	if sess.Status == session.StateSourceLocking {
		if err := e.lockSource(ctx, sess); err != nil {
			return e.fail(sessionID, err, failureBeforeSourceLocked)
		}
		sess, err = e.sessions.Get(sessionID)
		if err != nil {
			return err
		}
	}

	if sess.Status == session.StateSourceLocked {
		if err := e.sessions.Transition(sessionID, session.StateDestinationLocking); err != nil {
			return err
		}
		e.notify.Emit(sessionID, notifier.EventStateTransitioned, session.StateDestinationLocking)
		sess, err = e.sessions.Get(sessionID)
		if err != nil {
			return err
		}
	}

	if sess.Status == session.StateDestinationLocking {
		if err := e.lockDestination(ctx, sess); err != nil {
			return e.fail(sessionID, err, failureBeforeBothLocked)
		}
		sess, err = e.sessions.Get(sessionID)
		if err != nil {
			return err
		}
	}

	if sess.Status == session.StateBothLocked {
		e.scheduleTimelocks(sessionID, sess.Timelocks)
		if e.mon != nil {
			e.mon.WatchSession(ctx, sessionID, parseEscrowAddress(sess.SrcEscrowAddress), sess.DstHTLCHandle)
		}
		if err := e.waitForBothLocked(ctx, sessionID); err != nil {
			return e.timeoutBothLocked(sessionID, err)
		}
		if err := e.sessions.Transition(sessionID, session.StateRevealingSecret); err != nil {
			return err
		}
		e.notify.Emit(sessionID, notifier.EventStateTransitioned, session.StateRevealingSecret)
		sess, err = e.sessions.Get(sessionID)
		if err != nil {
			return err
		}
	}

	if sess.Status == session.StateRevealingSecret {
		return e.revealAndComplete(ctx, sess)
	}

	if session.IsTerminal(sess.Status) {
		return nil
	}

	return fmt.Errorf("%w: executeFullSwap has no handler for status %s", errkind.ErrInternal, sess.Status)
}

// failureStage identifies how far the swap progressed, for the unwind path
// a failure triggers.
type failureStage int

const (
	failureBeforeSourceLocked failureStage = iota
	failureBeforeBothLocked
	failureBeforeReveal
)

// timeoutBothLocked handles a waitForBothLocked timeout. The state machine
// routes this through timeout -> refunding -> refunded rather than failed:
// both escrows are already on-chain, so the swap unwinds via cancel/refund
// rather than a plain failure with nothing to reverse.
func (e *Executor) timeoutBothLocked(sessionID string, cause error) error {
	log.Error("both-locked confirmation timed out", "session_id", sessionID, "err", cause)
	if err := e.sessions.Transition(sessionID, session.StateTimeout); err != nil {
		return err
	}
	e.notify.Emit(sessionID, notifier.EventSwapFailed, cause.Error())
	if err := e.sessions.Transition(sessionID, session.StateRefunding); err != nil {
		return err
	}
	go e.unwindAfterSourceLocked(sessionID, failureBeforeReveal)
	return cause
}

func (e *Executor) fail(sessionID string, cause error, stage failureStage) error {
	log.Error("swap execution failed", "session_id", sessionID, "err", cause, "stage", stage)
	if err := e.sessions.Fail(sessionID, cause); err != nil {
		log.Error("failed to record failure", "session_id", sessionID, "err", err)
	}
	e.notify.Emit(sessionID, notifier.EventSwapFailed, cause.Error())

	switch stage {
	case failureBeforeSourceLocked:
		// Nothing on-chain to unwind.
	case failureBeforeBothLocked, failureBeforeReveal:
		go e.unwindAfterSourceLocked(sessionID, stage)
	}
	return cause
}

// unwindAfterSourceLocked waits for the relevant cancellation deadlines and
// then cancels/refunds, run in the background since the deadlines may be
// hours away.
func (e *Executor) unwindAfterSourceLocked(sessionID string, stage failureStage) {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		log.Error("unwind: failed to load session", "session_id", sessionID, "err", err)
		return
	}

	waitUntil(sess.Timelocks.SrcCancellation)
	if err := e.cancelSource(context.Background(), sess); err != nil {
		log.Error("unwind: cancel on A failed", "session_id", sessionID, "err", err)
	}

	if stage == failureBeforeReveal && sess.DstHTLCHandle != "" {
		waitUntil(sess.Timelocks.DstCancellation)
		if err := e.refundDestination(context.Background(), sess); err != nil {
			log.Error("unwind: refund on B failed", "session_id", sessionID, "err", err)
		}
	}
}

func waitUntil(deadline time.Time) {
	d := time.Until(deadline)
	if d > 0 {
		time.Sleep(d)
	}
}

func parseEscrowAddress(addr string) common.Address {
	if addr == "" {
		return common.Address{}
	}
	return common.HexToAddress(addr)
}
