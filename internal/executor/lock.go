package executor

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nexusbridge/swaporch/internal/chaina"
	"github.com/nexusbridge/swaporch/internal/chainb"
	"github.com/nexusbridge/swaporch/internal/ledger"
	"github.com/nexusbridge/swaporch/internal/notifier"
	"github.com/nexusbridge/swaporch/internal/session"
	"github.com/nexusbridge/swaporch/pkg/errkind"
)

// safetyDepositWei is the fixed safety deposit attached to every source
// escrow; it is not derived from live chain A gas prices.
var safetyDepositWei = big.NewInt(10_000_000_000_000_000) // 0.01 ETH-equivalent

// lockSource deploys the source-chain escrow and records the attach.
func (e *Executor) lockSource(ctx context.Context, sess *session.Session) error {
	fresh, err := e.ledger.RecordIdempotencyKey(sess.ID, ledger.StepCreateSrcEscrow, hex.EncodeToString(sess.OrderHash[:]))
	if err != nil {
		return err
	}
	if !fresh {
		return fmt.Errorf("%w: createSrcEscrow already submitted for session %s", errkind.ErrIllegalTransition, sess.ID)
	}

	step, err := e.ledger.Begin(sess.ID, ledger.StepCreateSrcEscrow)
	if err != nil {
		return err
	}
	if err := e.ledger.MarkExecuting(step.ID); err != nil {
		return err
	}

	imm := chaina.Immutables{
		Maker:         common.HexToAddress(sess.Maker),
		Taker:         chaina.PlaceholderTakerAddress,
		Token:         tokenAddress(sess.SourceToken),
		Amount:        sess.SourceAmount,
		SafetyDeposit: safetyDepositWei,
		HashlockHash:  sess.Hashlock,
		OrderHash:     sess.OrderHash,
		ChainID:       big.NewInt(0),
		Timelocks:     toChainATimelocks(sess.Timelocks),
	}

	result, err := e.chainA.DeploySrcEscrow(ctx, imm)
	if err != nil {
		_ = e.ledger.Fail(step.ID, err)
		return err
	}

	if err := e.ledger.Complete(step.ID, result.TxRef.Hex(), result.EscrowAddress.Hex(), fmt.Sprintf("%d", result.GasUsed), result); err != nil {
		return err
	}
	if err := e.sessions.AttachEscrow(sess.ID, session.SideSource, result.EscrowAddress.Hex()); err != nil {
		return err
	}
	if err := e.sessions.Transition(sess.ID, session.StateSourceLocked); err != nil {
		return err
	}
	e.notify.Emit(sess.ID, notifier.EventEscrowAttached, result.EscrowAddress.Hex())
	e.notify.Emit(sess.ID, notifier.EventStepCompleted, ledger.StepCreateSrcEscrow)
	return nil
}

// lockDestination creates the destination-chain HTLC.
func (e *Executor) lockDestination(ctx context.Context, sess *session.Session) error {
	fresh, err := e.ledger.RecordIdempotencyKey(sess.ID, ledger.StepCreateHTLC, hex.EncodeToString(sess.OrderHash[:]))
	if err != nil {
		return err
	}
	if !fresh {
		return fmt.Errorf("%w: create_htlc already submitted for session %s", errkind.ErrIllegalTransition, sess.ID)
	}

	step, err := e.ledger.Begin(sess.ID, ledger.StepCreateHTLC)
	if err != nil {
		return err
	}
	if err := e.ledger.MarkExecuting(step.ID); err != nil {
		return err
	}

	params := chainb.CreateHTLCParams{
		Receiver:  sess.Maker,
		Token:     sess.DestinationToken,
		Amount:    sess.DestinationAmount,
		Hashlock:  sess.Hashlock,
		Timelock:  sess.Timelocks.DstWithdrawal,
		OrderHash: sess.OrderHash,
	}

	result, err := e.chainB.CreateHTLC(ctx, params)
	if err != nil {
		_ = e.ledger.Fail(step.ID, err)
		return err
	}

	if err := e.ledger.Complete(step.ID, result.TxRef, result.HTLCHandle, "", result); err != nil {
		return err
	}
	if err := e.sessions.AttachEscrow(sess.ID, session.SideDestination, result.HTLCHandle); err != nil {
		return err
	}
	if err := e.sessions.Transition(sess.ID, session.StateBothLocked); err != nil {
		return err
	}
	e.notify.Emit(sess.ID, notifier.EventEscrowAttached, result.HTLCHandle)
	e.notify.Emit(sess.ID, notifier.EventStepCompleted, ledger.StepCreateHTLC)
	return nil
}

func tokenAddress(token string) common.Address {
	if token == "" {
		return common.Address{}
	}
	return common.HexToAddress(token)
}

func toChainATimelocks(t session.Timelocks) chaina.Timelocks {
	return chaina.Timelocks{
		SrcWithdrawal:       unixBig(t.SrcWithdrawal),
		SrcPublicWithdrawal: unixBig(t.SrcPublicWithdrawal),
		SrcCancellation:     unixBig(t.SrcCancellation),
		SrcDeployedAt:       unixBig(t.SrcDeployedAt),
		DstWithdrawal:       unixBig(t.DstWithdrawal),
		DstCancellation:     unixBig(t.DstCancellation),
		DstDeployedAt:       unixBig(t.DstDeployedAt),
	}
}

func unixBig(t time.Time) *big.Int {
	return big.NewInt(t.Unix())
}
