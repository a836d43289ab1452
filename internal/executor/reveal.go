package executor

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/nexusbridge/swaporch/internal/ledger"
	"github.com/nexusbridge/swaporch/internal/notifier"
	"github.com/nexusbridge/swaporch/internal/session"
	"github.com/nexusbridge/swaporch/pkg/errkind"
)

// revealAndComplete runs executeFullSwap's last two steps: retrieve the
// secret, withdraw on B (publishing it), then complete A according to the
// session's completion mode.
func (e *Executor) revealAndComplete(ctx context.Context, sess *session.Session) error {
	secret, err := e.sessions.Reveal(sess.ID)
	if err != nil {
		// Already revealed by an earlier, interrupted run: re-derive it from
		// chain B's public state instead of failing the swap.
		if errkind.Of(err) != errkind.KindSecretAlreadyUsed {
			return e.fail(sess.ID, err, failureBeforeReveal)
		}
		recovered, rerr := e.recoverSecretFromChainB(ctx, sess)
		if rerr != nil {
			return e.fail(sess.ID, rerr, failureBeforeReveal)
		}
		secret = recovered
	}

	if err := e.withdrawOnB(ctx, sess, secret); err != nil {
		return e.fail(sess.ID, err, failureBeforeReveal)
	}
	e.notify.Emit(sess.ID, notifier.EventSecretRevealed, hex.EncodeToString(secret[:]))

	switch sess.CompletionMode {
	case session.ModeClientCompletesA:
		return e.completeViaClient(ctx, sess)
	default:
		return e.completeViaExecutor(ctx, sess, secret)
	}
}

func (e *Executor) withdrawOnB(ctx context.Context, sess *session.Session, secret [32]byte) error {
	fresh, err := e.ledger.RecordIdempotencyKey(sess.ID, ledger.StepWithdrawOnB, sess.DstHTLCHandle)
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}

	step, err := e.ledger.Begin(sess.ID, ledger.StepWithdrawOnB)
	if err != nil {
		return err
	}
	if err := e.ledger.MarkExecuting(step.ID); err != nil {
		return err
	}

	txRef, err := e.chainB.Withdraw(ctx, sess.DstHTLCHandle, secret, sess.Maker)
	if err != nil {
		_ = e.ledger.Fail(step.ID, err)
		return err
	}
	if err := e.ledger.Complete(step.ID, txRef, sess.DstHTLCHandle, "", nil); err != nil {
		return err
	}
	e.notify.Emit(sess.ID, notifier.EventStepCompleted, ledger.StepWithdrawOnB)
	return nil
}

// completeViaExecutor withdraws on A directly and marks the swap completed.
func (e *Executor) completeViaExecutor(ctx context.Context, sess *session.Session, secret [32]byte) error {
	fresh, err := e.ledger.RecordIdempotencyKey(sess.ID, ledger.StepWithdrawOnA, sess.SrcEscrowAddress)
	if err != nil {
		return err
	}
	if fresh {
		step, err := e.ledger.Begin(sess.ID, ledger.StepWithdrawOnA)
		if err != nil {
			return err
		}
		if err := e.ledger.MarkExecuting(step.ID); err != nil {
			return err
		}

		txHash, err := e.chainA.Withdraw(ctx, parseEscrowAddress(sess.SrcEscrowAddress), secret)
		if err != nil {
			_ = e.ledger.Fail(step.ID, err)
			return e.completeUntilSrcCancellation(sess, secret)
		}
		if err := e.ledger.Complete(step.ID, txHash.Hex(), sess.SrcEscrowAddress, "", nil); err != nil {
			return err
		}
		e.notify.Emit(sess.ID, notifier.EventStepCompleted, ledger.StepWithdrawOnA)
	}

	return e.markCompleted(sess.ID)
}

// completeViaClient publishes the secret and waits for an external Withdrawn
// observation on A rather than submitting the withdraw itself.
func (e *Executor) completeViaClient(ctx context.Context, sess *session.Session) error {
	if _, err := e.ledger.RecordIdempotencyKey(sess.ID, ledger.StepRevealForClient, sess.SrcEscrowAddress); err != nil {
		return err
	}
	step, err := e.ledger.Begin(sess.ID, ledger.StepRevealForClient)
	if err == nil {
		_ = e.ledger.MarkExecuting(step.ID)
		_ = e.ledger.Complete(step.ID, "", sess.SrcEscrowAddress, "", nil)
	}
	e.notify.Emit(sess.ID, notifier.EventStepCompleted, ledger.StepRevealForClient)

	if e.waitForSrcWithdrawn(ctx, sess.ID, sess.Timelocks.SrcCancellation) {
		return e.markCompleted(sess.ID)
	}

	// The secret is public on B; the liveness/safety boundary means the
	// swap cannot be reversed here, only marked failed with the forfeiture
	// recorded for operators to reconcile manually.
	return e.fail(sess.ID, fmt.Errorf("%w: client never withdrew on A before srcCancellation", errkind.ErrOperationTimeout), failureBeforeReveal)
}

// completeUntilSrcCancellation retries ChainAClient.Withdraw until
// srcCancellation elapses, since the secret is already public on B and
// abandoning the A-side withdraw would forfeit the swap's safety guarantee.
func (e *Executor) completeUntilSrcCancellation(sess *session.Session, secret [32]byte) error {
	deadline := sess.Timelocks.SrcCancellation
	for time.Now().Before(deadline) {
		time.Sleep(5 * time.Second)
		txHash, err := e.chainA.Withdraw(context.Background(), parseEscrowAddress(sess.SrcEscrowAddress), secret)
		if err == nil {
			log.Info("retried A-side withdraw succeeded", "session_id", sess.ID, "tx", txHash.Hex())
			return e.markCompleted(sess.ID)
		}
	}
	return e.fail(sess.ID, fmt.Errorf("%w: could not withdraw on A before srcCancellation", errkind.ErrOperationTimeout), failureBeforeReveal)
}

func (e *Executor) markCompleted(sessionID string) error {
	if err := e.sessions.Transition(sessionID, session.StateCompleted); err != nil {
		return err
	}
	e.sched.Cancel(sessionID + ":srcCancellation")
	e.sched.Cancel(sessionID + ":dstCancellation")
	e.notify.Emit(sessionID, notifier.EventSwapCompleted, nil)
	log.Info("swap completed", "session_id", sessionID)
	return nil
}

// recoverSecretFromChainB reads the already-revealed secret back from get_htlc
// when this process's own reveal call is the one that used up the one-time
// SecretStore.Reveal, e.g. after a restart mid-withdraw.
func (e *Executor) recoverSecretFromChainB(ctx context.Context, sess *session.Session) ([32]byte, error) {
	var secret [32]byte
	state, err := e.chainB.GetHTLC(ctx, sess.DstHTLCHandle)
	if err != nil {
		return secret, err
	}
	if len(state.RevealedSecret) != 32 {
		return secret, fmt.Errorf("%w: no revealed secret recorded for htlc %s", errkind.ErrSecretNotFound, sess.DstHTLCHandle)
	}
	copy(secret[:], state.RevealedSecret)
	return secret, nil
}
