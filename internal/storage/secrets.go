// Package storage - EncryptedSecret persistence for SecretStore.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Secret storage errors.
var (
	ErrSecretNotFound      = errors.New("secret not found")
	ErrSecretAlreadyExists = errors.New("secret already exists for this hashlock")
)

// EncryptedSecret is the sealed-at-rest record keyed by hashlock.
type EncryptedSecret struct {
	Hashlock   string // hex, 32 bytes
	Nonce      string // hex, AES-GCM nonce
	Ciphertext string // hex, AES-GCM ciphertext+tag
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Used       bool
}

// CreateSecret inserts a new sealed secret row.
func (s *Storage) CreateSecret(rec *EncryptedSecret) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO encrypted_secrets (hashlock, nonce, ciphertext, created_at, expires_at, used)
		VALUES (?, ?, ?, ?, ?, 0)
	`, rec.Hashlock, rec.Nonce, rec.Ciphertext, rec.CreatedAt.Unix(), rec.ExpiresAt.Unix())

	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrSecretAlreadyExists
		}
		return fmt.Errorf("failed to create secret: %w", err)
	}
	return nil
}

// GetSecret retrieves the sealed record for a hashlock.
func (s *Storage) GetSecret(hashlock string) (*EncryptedSecret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec EncryptedSecret
	var createdAt, expiresAt int64
	var used int

	err := s.db.QueryRow(`
		SELECT hashlock, nonce, ciphertext, created_at, expires_at, used
		FROM encrypted_secrets WHERE hashlock = ?
	`, hashlock).Scan(&rec.Hashlock, &rec.Nonce, &rec.Ciphertext, &createdAt, &expiresAt, &used)

	if err == sql.ErrNoRows {
		return nil, ErrSecretNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}

	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.ExpiresAt = time.Unix(expiresAt, 0)
	rec.Used = used != 0
	return &rec, nil
}

// MarkRevealed flips the one-shot used flag, idempotently: the first caller
// to win the `UPDATE ... WHERE used = 0` race performs the flip; later
// callers observe RowsAffected == 0 and are told the secret was already
// revealed rather than erroring.
func (s *Storage) MarkRevealed(hashlock string) (alreadyUsed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE encrypted_secrets SET used = 1 WHERE hashlock = ? AND used = 0
	`, hashlock)
	if err != nil {
		return false, fmt.Errorf("failed to mark secret revealed: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 1 {
		return false, nil
	}

	var used int
	err = s.db.QueryRow("SELECT used FROM encrypted_secrets WHERE hashlock = ?", hashlock).Scan(&used)
	if err == sql.ErrNoRows {
		return false, ErrSecretNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to check secret status: %w", err)
	}
	return true, nil
}

// DeleteSecret removes a sealed secret. DeleteExpiredTerminal does not call
// it, so sweeping a session leaves its secret row in place.
func (s *Storage) DeleteSecret(hashlock string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM encrypted_secrets WHERE hashlock = ?", hashlock)
	if err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
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
