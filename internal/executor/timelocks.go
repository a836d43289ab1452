package executor

import (
	"context"

	"github.com/nexusbridge/swaporch/internal/notifier"
	"github.com/nexusbridge/swaporch/internal/session"
)

// scheduleTimelocks enqueues TimeoutScheduler callbacks at each of the four
// deadlines the executor cares about. The callbacks are best-effort nudges:
// they log and, for the cancellation deadlines, attempt the corresponding
// on-chain unwind if the swap hasn't already completed by then. Scheduling
// is idempotent per sessionID+name, so re-entering executeFullSwap after a
// restart just replaces the same entries.
func (e *Executor) scheduleTimelocks(sessionID string, t session.Timelocks) {
	if e.sched == nil {
		return
	}

	e.sched.Schedule(sessionID+":srcWithdrawal", t.SrcWithdrawal, func() {
		log.Debug("srcWithdrawal deadline reached", "session_id", sessionID)
	})
	e.sched.Schedule(sessionID+":dstWithdrawal", t.DstWithdrawal, func() {
		log.Debug("dstWithdrawal deadline reached", "session_id", sessionID)
	})
	e.sched.Schedule(sessionID+":srcCancellation", t.SrcCancellation, func() {
		e.onSrcCancellationDeadline(sessionID)
	})
	e.sched.Schedule(sessionID+":dstCancellation", t.DstCancellation, func() {
		e.onDstCancellationDeadline(sessionID)
	})
}

func (e *Executor) onSrcCancellationDeadline(sessionID string) {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		log.Error("srcCancellation callback: failed to load session", "session_id", sessionID, "err", err)
		return
	}
	if session.IsTerminal(sess.Status) {
		return
	}
	log.Warn("srcCancellation deadline reached on a non-terminal session", "session_id", sessionID, "status", sess.Status)
	if err := e.cancelSource(context.Background(), sess); err != nil {
		log.Error("scheduled cancel on A failed", "session_id", sessionID, "err", err)
	}
}

func (e *Executor) onDstCancellationDeadline(sessionID string) {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		log.Error("dstCancellation callback: failed to load session", "session_id", sessionID, "err", err)
		return
	}
	if session.IsTerminal(sess.Status) || sess.DstHTLCHandle == "" {
		return
	}
	log.Warn("dstCancellation deadline reached on a non-terminal session", "session_id", sessionID, "status", sess.Status)
	if err := e.refundDestination(context.Background(), sess); err != nil {
		log.Error("scheduled refund on B failed", "session_id", sessionID, "err", err)
	}
}

// cancelSource cancels the source-chain escrow once srcCancellation has
// elapsed. A no-op if there is no escrow to cancel.
func (e *Executor) cancelSource(ctx context.Context, sess *session.Session) error {
	if sess.SrcEscrowAddress == "" {
		return nil
	}
	fresh, err := e.ledger.RecordIdempotencyKey(sess.ID, "cancel_src_escrow", sess.SrcEscrowAddress)
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}

	txHash, err := e.chainA.Cancel(ctx, parseEscrowAddress(sess.SrcEscrowAddress))
	if err != nil {
		return err
	}
	log.Info("src escrow cancelled", "session_id", sess.ID, "tx", txHash.Hex())

	if sess.Status == session.StateCancelling {
		_ = e.sessions.Transition(sess.ID, session.StateCancelled)
		e.notify.Emit(sess.ID, notifier.EventSwapFailed, "cancelled after srcCancellation")
	}
	return nil
}

// refundDestination refunds the destination-chain HTLC once dstCancellation
// has elapsed. A no-op if there is no HTLC to refund.
func (e *Executor) refundDestination(ctx context.Context, sess *session.Session) error {
	if sess.DstHTLCHandle == "" {
		return nil
	}
	fresh, err := e.ledger.RecordIdempotencyKey(sess.ID, "refund_dst_htlc", sess.DstHTLCHandle)
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}

	txRef, err := e.chainB.Refund(ctx, sess.DstHTLCHandle)
	if err != nil {
		return err
	}
	log.Info("dst htlc refunded", "session_id", sess.ID, "tx", txRef)

	if sess.Status == session.StateRefunding {
		if err := e.sessions.Transition(sess.ID, session.StateRefunded); err != nil {
			log.Error("failed to mark session refunded", "session_id", sess.ID, "err", err)
		}
	}
	return nil
}
