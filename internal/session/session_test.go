package session

import (
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/nexusbridge/swaporch/internal/storage"
)

type fakeSecretSealer struct{ n byte }

func (f *fakeSecretSealer) Generate() (secret [32]byte, hashlock [32]byte, err error) {
	f.n++
	secret[0] = f.n
	hashlock[0] = f.n
	return secret, hashlock, nil
}

func (f *fakeSecretSealer) Reveal(hashlock [32]byte) (secret [32]byte, err error) {
	secret[0] = hashlock[0]
	return secret, nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "swaporch-session-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	st, err := storage.New(&storage.Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	offsets := TimelockOffsets{
		SrcWithdrawalOffset:       30 * time.Minute,
		SrcPublicWithdrawalOffset: 60 * time.Minute,
		SrcCancellationOffset:     120 * time.Minute,
		DstWithdrawalOffset:       10 * time.Minute,
		DstCancellationOffset:     25 * time.Minute,
		DeployedBackdate:          time.Minute,
	}
	return NewStore(st, &fakeSecretSealer{}, 10, offsets)
}

func testParams() CreateParams {
	return CreateParams{
		SourceChain:       "chainA",
		DestinationChain:  "chainB",
		SourceToken:       "0xtoken",
		DestinationToken:  "near-token.testnet",
		SourceAmount:      big.NewInt(1_000_000),
		DestinationAmount: big.NewInt(2_000_000),
		Maker:             "0xmaker",
		Taker:             "taker.testnet",
		SlippageBPS:       50,
	}
}

func TestCreateAndGet(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.Create(testParams())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if sess.Status != StateInitialized {
		t.Errorf("Status = %s, want %s", sess.Status, StateInitialized)
	}
	if sess.CompletionMode != ModeExecutorCompletesBoth {
		t.Errorf("CompletionMode = %s, want default", sess.CompletionMode)
	}

	got, err := store.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.SourceAmount.Cmp(sess.SourceAmount) != 0 {
		t.Errorf("SourceAmount = %s, want %s", got.SourceAmount, sess.SourceAmount)
	}
	if got.Hashlock != sess.Hashlock {
		t.Error("round-tripped hashlock mismatch")
	}

	byHash, err := store.GetByOrderHash(sess.OrderHash)
	if err != nil {
		t.Fatalf("GetByOrderHash() error = %v", err)
	}
	if byHash.ID != sess.ID {
		t.Errorf("GetByOrderHash returned id %s, want %s", byHash.ID, sess.ID)
	}
}

func TestCreateRejectsCapacityExceeded(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "swaporch-session-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	st, err := storage.New(&storage.Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	defer st.Close()

	offsets := TimelockOffsets{
		SrcWithdrawalOffset:   30 * time.Minute,
		DstCancellationOffset: 10 * time.Minute,
	}
	store := NewStore(st, &fakeSecretSealer{}, 1, offsets)

	if _, err := store.Create(testParams()); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	if _, err := store.Create(testParams()); err == nil {
		t.Error("second Create() should fail with CapacityExceeded")
	}
}

func TestCreateRejectsUnsafeTimelocks(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "swaporch-session-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	st, err := storage.New(&storage.Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	defer st.Close()

	// dstCancellation (60m) after srcWithdrawal (30m) violates the safety margin.
	offsets := TimelockOffsets{
		SrcWithdrawalOffset:   30 * time.Minute,
		DstCancellationOffset: 60 * time.Minute,
	}
	store := NewStore(st, &fakeSecretSealer{}, 10, offsets)

	if _, err := store.Create(testParams()); err == nil {
		t.Error("Create() with dstCancellation >= srcWithdrawal should fail")
	}
}

func TestTransitionValidatesEdges(t *testing.T) {
	store := newTestStore(t)
	sess, err := store.Create(testParams())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := store.Transition(sess.ID, StateCompleted); err == nil {
		t.Error("illegal transition initialized -> completed should fail")
	}

	if err := store.Transition(sess.ID, StateExecuting); err != nil {
		t.Fatalf("legal transition error = %v", err)
	}

	got, err := store.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StateExecuting {
		t.Errorf("Status = %s, want %s", got.Status, StateExecuting)
	}
}

func TestAttachEscrowOnceOnly(t *testing.T) {
	store := newTestStore(t)
	sess, err := store.Create(testParams())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := store.AttachEscrow(sess.ID, SideSource, "0xescrow"); err != nil {
		t.Fatalf("AttachEscrow() error = %v", err)
	}
	if err := store.AttachEscrow(sess.ID, SideSource, "0xother"); err == nil {
		t.Error("second AttachEscrow() for the same side should fail")
	}

	got, err := store.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.SrcEscrowAddress != "0xescrow" {
		t.Errorf("SrcEscrowAddress = %s, want 0xescrow", got.SrcEscrowAddress)
	}
}

func TestSweepKeepsUnexpiredTerminalSessions(t *testing.T) {
	store := newTestStore(t)
	sess, err := store.Create(testParams())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := store.Transition(sess.ID, StateCancelled); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}

	// expirationTime is far in the future by default, so sweep should be a no-op.
	n, err := store.Sweep()
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Sweep() removed %d sessions, want 0 (not yet expired)", n)
	}
}
