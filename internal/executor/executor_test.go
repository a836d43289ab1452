package executor

import (
	"context"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nexusbridge/swaporch/internal/ledger"
	"github.com/nexusbridge/swaporch/internal/monitor"
	"github.com/nexusbridge/swaporch/internal/notifier"
	"github.com/nexusbridge/swaporch/internal/scheduler"
	"github.com/nexusbridge/swaporch/internal/session"
	"github.com/nexusbridge/swaporch/internal/storage"
)

type fakeSecretSealer struct {
	n       byte
	secrets map[[32]byte][32]byte
}

func (f *fakeSecretSealer) Generate() (secret [32]byte, hashlock [32]byte, err error) {
	f.n++
	secret[0] = f.n
	hashlock[0] = f.n
	if f.secrets == nil {
		f.secrets = make(map[[32]byte][32]byte)
	}
	f.secrets[hashlock] = secret
	return secret, hashlock, nil
}

func (f *fakeSecretSealer) Reveal(hashlock [32]byte) ([32]byte, error) {
	return f.secrets[hashlock], nil
}

func newTestExecutor(t *testing.T) (*Executor, *session.Store) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "swaporch-executor-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	st, err := storage.New(&storage.Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	offsets := session.TimelockOffsets{
		SrcWithdrawalOffset:       30 * time.Minute,
		SrcPublicWithdrawalOffset: 60 * time.Minute,
		SrcCancellationOffset:     120 * time.Minute,
		DstWithdrawalOffset:       10 * time.Minute,
		DstCancellationOffset:     25 * time.Minute,
		DeployedBackdate:          time.Minute,
	}
	sessions := session.NewStore(st, &fakeSecretSealer{}, 10, offsets)
	led := ledger.New(st)
	sched := scheduler.New()
	t.Cleanup(sched.Stop)

	exec := New(sessions, nil, nil, nil, led, notifier.New(), sched, Config{})
	return exec, sessions
}

func testParams() session.CreateParams {
	return session.CreateParams{
		SourceChain:       "chainA",
		DestinationChain:  "chainB",
		SourceToken:       "",
		DestinationToken:  "",
		SourceAmount:      big.NewInt(1_000_000),
		DestinationAmount: big.NewInt(2_000_000),
		Maker:             "0x000000000000000000000000000000000000aa",
		Taker:             "taker.testnet",
		SlippageBPS:       50,
	}
}

func TestExecuteFullSwapIsNoOpOnTerminalSession(t *testing.T) {
	exec, sessions := newTestExecutor(t)

	sess, err := sessions.Create(testParams())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := sessions.Transition(sess.ID, session.StateExecuting); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if err := sessions.Fail(sess.ID, context.Canceled); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	if err := exec.ExecuteFullSwap(context.Background(), sess.ID); err != nil {
		t.Errorf("ExecuteFullSwap() on a terminal session returned %v, want nil", err)
	}
}

func TestExecuteFullSwapFailsWithoutChainClients(t *testing.T) {
	exec, sessions := newTestExecutor(t)

	sess, err := sessions.Create(testParams())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// chainA is nil: lockSource reaches chainA.DeploySrcEscrow, which panics
	// dereferencing the nil *chaina.Client. This test treats that panic as the
	// expected boundary: the executor requires real clients to proceed past
	// source_locking.
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected a panic dereferencing a nil chain A client, got none")
		}
	}()
	_ = exec.ExecuteFullSwap(context.Background(), sess.ID)
}

func TestDispatcherFansOutToRegisteredWaiters(t *testing.T) {
	d := newDispatcher()
	ch := d.register("session-1")
	defer d.unregister("session-1", ch)

	d.dispatch(monitor.Observation{SessionID: "session-1", Kind: monitor.ObservationSrcEscrowCreated})
	d.dispatch(monitor.Observation{SessionID: "session-2", Kind: monitor.ObservationDstHTLCCreated})

	select {
	case obs := <-ch:
		if obs.Kind != monitor.ObservationSrcEscrowCreated {
			t.Errorf("Kind = %s, want %s", obs.Kind, monitor.ObservationSrcEscrowCreated)
		}
	default:
		t.Fatal("expected an observation for session-1")
	}

	select {
	case obs := <-ch:
		t.Errorf("unexpected observation delivered for unrelated session: %+v", obs)
	default:
	}
}

func TestDispatcherUnregisterStopsDelivery(t *testing.T) {
	d := newDispatcher()
	ch := d.register("session-1")
	d.unregister("session-1", ch)

	d.dispatch(monitor.Observation{SessionID: "session-1", Kind: monitor.ObservationSrcEscrowCreated})

	select {
	case obs := <-ch:
		t.Errorf("unexpected observation after unregister: %+v", obs)
	default:
	}
}

func TestParseEscrowAddressEmptyIsZeroAddress(t *testing.T) {
	if got := parseEscrowAddress(""); got != (common.Address{}) {
		t.Errorf("parseEscrowAddress(\"\") = %v, want zero address", got)
	}
}

func TestTokenAddressEmptyIsNativeZeroAddress(t *testing.T) {
	if got := tokenAddress(""); got != (common.Address{}) {
		t.Errorf("tokenAddress(\"\") = %v, want zero address", got)
	}
}
