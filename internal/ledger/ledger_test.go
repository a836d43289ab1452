package ledger

import (
	"errors"
	"os"
	"testing"

	"github.com/nexusbridge/swaporch/internal/storage"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "swaporch-ledger-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	st, err := storage.New(&storage.Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	return New(st)
}

func TestBeginAssignsIncrementingSeq(t *testing.T) {
	l := newTestLedger(t)

	step1, err := l.Begin("session-1", StepCreateSrcEscrow)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	step2, err := l.Begin("session-1", StepCreateHTLC)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if step1.Seq != 1 || step2.Seq != 2 {
		t.Errorf("Seq = %d, %d, want 1, 2", step1.Seq, step2.Seq)
	}

	steps, err := l.ListSteps("session-1")
	if err != nil {
		t.Fatalf("ListSteps() error = %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("ListSteps() returned %d steps, want 2", len(steps))
	}
	if steps[0].Status != StepPending {
		t.Errorf("Status = %s, want %s", steps[0].Status, StepPending)
	}
}

func TestCompleteRecordsRefsAndResult(t *testing.T) {
	l := newTestLedger(t)

	step, err := l.Begin("session-1", StepCreateSrcEscrow)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	if err := l.MarkExecuting(step.ID); err != nil {
		t.Fatalf("MarkExecuting() error = %v", err)
	}
	if err := l.Complete(step.ID, "0xtxhash", "0xescrow", "21000", map[string]string{"ok": "true"}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	steps, err := l.ListSteps("session-1")
	if err != nil {
		t.Fatalf("ListSteps() error = %v", err)
	}
	got := steps[0]
	if got.Status != StepCompleted {
		t.Errorf("Status = %s, want %s", got.Status, StepCompleted)
	}
	if got.TxRef != "0xtxhash" || got.EscrowRef != "0xescrow" {
		t.Errorf("TxRef/EscrowRef = %s/%s, want 0xtxhash/0xescrow", got.TxRef, got.EscrowRef)
	}
	if got.ResultJSON == "" {
		t.Error("expected non-empty ResultJSON")
	}
}

func TestFailRecordsReason(t *testing.T) {
	l := newTestLedger(t)

	step, err := l.Begin("session-1", StepCreateHTLC)
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := l.Fail(step.ID, errors.New("rpc timeout")); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	steps, err := l.ListSteps("session-1")
	if err != nil {
		t.Fatalf("ListSteps() error = %v", err)
	}
	if steps[0].Status != StepFailed {
		t.Errorf("Status = %s, want %s", steps[0].Status, StepFailed)
	}
	if steps[0].Error != "rpc timeout" {
		t.Errorf("Error = %q, want %q", steps[0].Error, "rpc timeout")
	}
}

func TestCompleteUnknownStepFails(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Complete("does-not-exist", "", "", "", nil); err == nil {
		t.Error("expected error completing an unknown step")
	}
}

func TestRecordIdempotencyKeyIsOnceOnly(t *testing.T) {
	l := newTestLedger(t)

	fresh, err := l.RecordIdempotencyKey("session-1", "createSrcEscrow", "0xescrow")
	if err != nil {
		t.Fatalf("RecordIdempotencyKey() error = %v", err)
	}
	if !fresh {
		t.Error("first RecordIdempotencyKey() should report fresh = true")
	}

	fresh, err = l.RecordIdempotencyKey("session-1", "createSrcEscrow", "0xescrow")
	if err != nil {
		t.Fatalf("RecordIdempotencyKey() second call error = %v", err)
	}
	if fresh {
		t.Error("second RecordIdempotencyKey() with the same key should report fresh = false")
	}
}
