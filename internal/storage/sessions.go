// Package storage - Session persistence for SessionStore.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Session storage errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrOrderHashExists = errors.New("order hash already in use")
)

// SessionRecord is the persisted row for a swap session. Chain-facing typed
// fields (hashlock, amounts, timelocks) are carried as strings: hex for
// digests, decimal for arbitrary-precision amounts, and a JSON blob for the
// seven timelock values.
type SessionRecord struct {
	ID                string
	Status            string
	SourceChain       string
	DestinationChain  string
	SourceToken       string
	DestinationToken  string
	SourceAmount      string
	DestinationAmount string
	Maker             string
	Taker             string
	SlippageBPS       int
	Hashlock          string
	OrderHash         string
	SrcEscrowAddress  string
	DstHTLCHandle     string
	CompletionMode    string
	TimelocksJSON     string
	FailureReason     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ExpirationTime    time.Time
}

// CreateSession inserts a new session row.
func (s *Storage) CreateSession(r *SessionRecord) error {
	lock := s.sessionLock(r.ID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO sessions (
			id, status, source_chain, destination_chain, source_token, destination_token,
			source_amount, destination_amount, maker, taker, slippage_bps, hashlock,
			order_hash, src_escrow_address, dst_htlc_handle, completion_mode,
			timelocks_json, created_at, updated_at, expiration_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.Status, r.SourceChain, r.DestinationChain, r.SourceToken, r.DestinationToken,
		r.SourceAmount, r.DestinationAmount, r.Maker, r.Taker, r.SlippageBPS, r.Hashlock,
		r.OrderHash, nullIfEmpty(r.SrcEscrowAddress), nullIfEmpty(r.DstHTLCHandle), r.CompletionMode,
		r.TimelocksJSON, r.CreatedAt.Unix(), r.UpdatedAt.Unix(), r.ExpirationTime.Unix(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrOrderHashExists
		}
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id.
func (s *Storage) GetSession(id string) (*SessionRecord, error) {
	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanSessionRow(s.db.QueryRow(sessionSelect+" WHERE id = ?", id))
}

// GetSessionByOrderHash retrieves a session by its orderHash.
func (s *Storage) GetSessionByOrderHash(orderHash string) (*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanSessionRow(s.db.QueryRow(sessionSelect+" WHERE order_hash = ?", orderHash))
}

// ListSessions returns all sessions, optionally filtered by status.
func (s *Storage) ListSessions(status string) ([]*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := sessionSelect
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*SessionRecord
	for rows.Next() {
		r, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// CountActive returns the number of sessions not in a terminal status, used
// to enforce session.maxActive at creation time.
func (s *Storage) CountActive(terminalStatuses []string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := ""
	args := make([]interface{}, 0, len(terminalStatuses))
	for i, st := range terminalStatuses {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, st)
	}

	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM sessions WHERE status NOT IN (%s)", placeholders)
	if err := s.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return count, nil
}

// UpdateStatus persists a new status and bumps updatedAt. Transition
// validity is enforced by the caller (internal/session's state machine)
// before this is invoked.
func (s *Storage) UpdateStatus(id, status string, updatedAt time.Time) error {
	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		status, updatedAt.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// SetFailureReason records the terminal error string for a failed session.
func (s *Storage) SetFailureReason(id, reason string, updatedAt time.Time) error {
	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE sessions SET failure_reason = ?, updated_at = ? WHERE id = ?`,
		reason, updatedAt.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to set failure reason: %w", err)
	}
	return nil
}

// AttachSrcEscrow one-time-sets the A-side escrow address; rejects re-set attempts.
func (s *Storage) AttachSrcEscrow(id, address string, updatedAt time.Time) error {
	return s.attachOnce(id, "src_escrow_address", address, updatedAt)
}

// AttachDstHTLC one-time-sets the B-side HTLC handle; rejects re-set attempts.
func (s *Storage) AttachDstHTLC(id, handle string, updatedAt time.Time) error {
	return s.attachOnce(id, "dst_htlc_handle", handle, updatedAt)
}

func (s *Storage) attachOnce(id, column, value string, updatedAt time.Time) error {
	lock := s.sessionLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	query := fmt.Sprintf(`UPDATE sessions SET %s = ?, updated_at = ? WHERE id = ? AND %s IS NULL`, column, column)
	result, err := s.db.Exec(query, value, updatedAt.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to attach %s: %w", column, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 1 {
		return nil
	}

	var existing sql.NullString
	checkQuery := fmt.Sprintf("SELECT %s FROM sessions WHERE id = ?", column)
	err = s.db.QueryRow(checkQuery, id).Scan(&existing)
	if err == sql.ErrNoRows {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", column, err)
	}
	return fmt.Errorf("%s already set", column)
}

// DeleteExpiredTerminal removes terminal sessions past their expirationTime.
func (s *Storage) DeleteExpiredTerminal(terminalStatuses []string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	placeholders := ""
	args := make([]interface{}, 0, len(terminalStatuses)+1)
	for i, st := range terminalStatuses {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args = append(args, st)
	}
	args = append(args, now.Unix())

	query := fmt.Sprintf(
		"DELETE FROM sessions WHERE status IN (%s) AND expiration_time < ?", placeholders)
	result, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired sessions: %w", err)
	}
	return result.RowsAffected()
}

const sessionSelect = `
	SELECT id, status, source_chain, destination_chain, source_token, destination_token,
	       source_amount, destination_amount, maker, taker, slippage_bps, hashlock,
	       order_hash, src_escrow_address, dst_htlc_handle, completion_mode,
	       timelocks_json, created_at, updated_at, expiration_time
	FROM sessions`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Storage) scanSessionRow(row *sql.Row) (*SessionRecord, error) {
	r, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	return r, err
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var r SessionRecord
	var srcEscrow, dstHTLC sql.NullString
	var createdAt, updatedAt, expirationTime int64

	err := row.Scan(
		&r.ID, &r.Status, &r.SourceChain, &r.DestinationChain, &r.SourceToken, &r.DestinationToken,
		&r.SourceAmount, &r.DestinationAmount, &r.Maker, &r.Taker, &r.SlippageBPS, &r.Hashlock,
		&r.OrderHash, &srcEscrow, &dstHTLC, &r.CompletionMode,
		&r.TimelocksJSON, &createdAt, &updatedAt, &expirationTime,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	if srcEscrow.Valid {
		r.SrcEscrowAddress = srcEscrow.String
	}
	if dstHTLC.Valid {
		r.DstHTLCHandle = dstHTLC.String
	}
	r.CreatedAt = time.Unix(createdAt, 0)
	r.UpdatedAt = time.Unix(updatedAt, 0)
	r.ExpirationTime = time.Unix(expirationTime, 0)
	return &r, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
