// Package ledger implements ExecutionLedger: an append-mostly record of
// every on-chain step an execution took, one row per Begin call. Begin does
// not check for an existing row with the same (session, step name).
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexusbridge/swaporch/internal/storage"
	"github.com/nexusbridge/swaporch/pkg/errkind"
	"github.com/nexusbridge/swaporch/pkg/logging"
)

var log = logging.Component("ledger")

// StepStatus is an ExecutionStep's lifecycle: pending -> executing ->
// {completed|failed}.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepExecuting StepStatus = "executing"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Well-known step names, matching the sequence executeFullSwap appends.
const (
	StepCreateSrcEscrow = "createSrcEscrow"
	StepCreateHTLC      = "create_htlc"
	StepWithdrawOnB     = "withdraw_on_B"
	StepWithdrawOnA     = "withdraw_on_A"
	StepRevealForClient = "reveal_for_client"
)

// ExecutionStep is one row of the ledger.
type ExecutionStep struct {
	ID         string
	SessionID  string
	Seq        int
	Name       string
	Status     StepStatus
	TxRef      string
	EscrowRef  string
	ResultJSON string
	Error      string
	GasUsed    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Ledger persists ExecutionSteps and idempotency keys.
type Ledger struct {
	store *storage.Storage
}

// New wraps store for ledger operations.
func New(store *storage.Storage) *Ledger {
	return &Ledger{store: store}
}

// Begin appends a new step in StepPending status and returns it. The caller
// transitions it via MarkExecuting/Complete/Fail as the step proceeds.
func (l *Ledger) Begin(sessionID, name string) (*ExecutionStep, error) {
	now := time.Now().UTC()
	seq, err := l.nextSeq(sessionID)
	if err != nil {
		return nil, err
	}

	step := &ExecutionStep{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Seq:       seq,
		Name:      name,
		Status:    StepPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = l.store.DB().Exec(
		`INSERT INTO execution_steps (id, session_id, seq, name, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		step.ID, step.SessionID, step.Seq, step.Name, step.Status, step.CreatedAt.Unix(), step.UpdatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: insert execution step: %v", errkind.ErrInternal, err)
	}

	log.Debug("execution step begun", "session_id", sessionID, "step", name, "seq", seq)
	return step, nil
}

// MarkExecuting transitions a step to StepExecuting.
func (l *Ledger) MarkExecuting(stepID string) error {
	return l.updateStatus(stepID, StepExecuting, nil)
}

// Complete transitions a step to StepCompleted, recording tx/escrow refs,
// gas used, and an optional result payload.
func (l *Ledger) Complete(stepID string, txRef, escrowRef, gasUsed string, result interface{}) error {
	var resultJSON string
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("%w: marshal step result: %v", errkind.ErrInternal, err)
		}
		resultJSON = string(b)
	}

	res, err := l.store.DB().Exec(
		`UPDATE execution_steps SET status = ?, tx_ref = ?, escrow_ref = ?, gas_used = ?, result_json = ?, updated_at = ?
		 WHERE id = ?`,
		StepCompleted, nullIfEmpty(txRef), nullIfEmpty(escrowRef), nullIfEmpty(gasUsed), nullIfEmpty(resultJSON), time.Now().UTC().Unix(), stepID,
	)
	if err != nil {
		return fmt.Errorf("%w: complete execution step: %v", errkind.ErrInternal, err)
	}
	return requireRowAffected(res, stepID)
}

// Fail transitions a step to StepFailed, recording the failure reason.
func (l *Ledger) Fail(stepID string, reason error) error {
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	return l.updateStatus(stepID, StepFailed, &msg)
}

func (l *Ledger) updateStatus(stepID string, status StepStatus, errMsg *string) error {
	var res sql.Result
	var err error
	if errMsg != nil {
		res, err = l.store.DB().Exec(
			`UPDATE execution_steps SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
			status, *errMsg, time.Now().UTC().Unix(), stepID,
		)
	} else {
		res, err = l.store.DB().Exec(
			`UPDATE execution_steps SET status = ?, updated_at = ? WHERE id = ?`,
			status, time.Now().UTC().Unix(), stepID,
		)
	}
	if err != nil {
		return fmt.Errorf("%w: update execution step status: %v", errkind.ErrInternal, err)
	}
	return requireRowAffected(res, stepID)
}

// ListSteps returns every step for a session in sequence order.
func (l *Ledger) ListSteps(sessionID string) ([]ExecutionStep, error) {
	rows, err := l.store.DB().Query(
		`SELECT id, session_id, seq, name, status, tx_ref, escrow_ref, result_json, error, gas_used, created_at, updated_at
		 FROM execution_steps WHERE session_id = ? ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: list execution steps: %v", errkind.ErrInternal, err)
	}
	defer rows.Close()

	var steps []ExecutionStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan execution step: %v", errkind.ErrInternal, err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// RecordIdempotencyKey records (sessionID, operation, ref) before on-chain
// submission, as §4.8 requires. It returns false without error if the key
// already exists — the caller must treat this as "already submitted".
func (l *Ledger) RecordIdempotencyKey(sessionID, operation, ref string) (fresh bool, err error) {
	_, err = l.store.DB().Exec(
		`INSERT INTO idempotency_keys (session_id, operation, ref, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, operation, ref, time.Now().UTC().Unix(),
	)
	if err == nil {
		return true, nil
	}
	if isUniqueConstraintError(err) {
		return false, nil
	}
	return false, fmt.Errorf("%w: record idempotency key: %v", errkind.ErrInternal, err)
}

func (l *Ledger) nextSeq(sessionID string) (int, error) {
	var maxSeq sql.NullInt64
	err := l.store.DB().QueryRow(
		`SELECT MAX(seq) FROM execution_steps WHERE session_id = ?`, sessionID,
	).Scan(&maxSeq)
	if err != nil {
		return 0, fmt.Errorf("%w: compute next step sequence: %v", errkind.ErrInternal, err)
	}
	return int(maxSeq.Int64) + 1, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStep(row rowScanner) (ExecutionStep, error) {
	var step ExecutionStep
	var txRef, escrowRef, resultJSON, errMsg, gasUsed sql.NullString
	var createdAt, updatedAt int64

	if err := row.Scan(&step.ID, &step.SessionID, &step.Seq, &step.Name, &step.Status,
		&txRef, &escrowRef, &resultJSON, &errMsg, &gasUsed, &createdAt, &updatedAt); err != nil {
		return step, err
	}

	step.TxRef = txRef.String
	step.EscrowRef = escrowRef.String
	step.ResultJSON = resultJSON.String
	step.Error = errMsg.String
	step.GasUsed = gasUsed.String
	step.CreatedAt = time.Unix(createdAt, 0).UTC()
	step.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return step, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func requireRowAffected(res sql.Result, stepID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: check rows affected: %v", errkind.ErrInternal, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: execution step %s", errkind.ErrNotFound, stepID)
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return contains(err.Error(), "UNIQUE constraint failed")
}

func contains(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
