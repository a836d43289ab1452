// Package secretstore issues, seals, and one-time-reveals swap secrets.
package secretstore

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/nexusbridge/swaporch/internal/storage"
	"github.com/nexusbridge/swaporch/pkg/errkind"
	"github.com/nexusbridge/swaporch/pkg/helpers"
	"github.com/nexusbridge/swaporch/pkg/logging"
)

var log = logging.Component("secretstore")

// SecretStore issues (secret, hashlock) pairs, seals secrets at rest under a
// process-scoped AES-256-GCM key, and reveals each exactly once.
type SecretStore struct {
	store *storage.Storage
	key   [32]byte
	ttl   time.Duration
}

// New constructs a SecretStore. key is derived once at process start via
// helpers.DeriveKey from configuration passphrase material.
func New(store *storage.Storage, key [32]byte, ttl time.Duration) *SecretStore {
	return &SecretStore{store: store, key: key, ttl: ttl}
}

// Generate produces a fresh 32-byte secret and its Keccak-256 hashlock, then
// seals and persists the secret under that hashlock.
func (ss *SecretStore) Generate() (secret [32]byte, hashlock [32]byte, err error) {
	raw, err := helpers.GenerateSecureRandom(32)
	if err != nil {
		return secret, hashlock, fmt.Errorf("%w: generate secret: %v", errkind.ErrInternal, err)
	}
	copy(secret[:], raw)
	hashlock = helpers.Keccak256(secret[:])

	if err := ss.seal(secret, hashlock); err != nil {
		return secret, hashlock, err
	}
	return secret, hashlock, nil
}

func (ss *SecretStore) seal(secret, hashlock [32]byte) error {
	nonce, ciphertext, err := helpers.SealAESGCM(ss.key, secret[:])
	if err != nil {
		return fmt.Errorf("%w: seal secret: %v", errkind.ErrInternal, err)
	}

	now := time.Now()
	rec := &storage.EncryptedSecret{
		Hashlock:   hex.EncodeToString(hashlock[:]),
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(ciphertext),
		CreatedAt:  now,
		ExpiresAt:  now.Add(ss.ttl),
	}
	if err := ss.store.CreateSecret(rec); err != nil {
		return fmt.Errorf("%w: persist secret: %v", errkind.ErrInternal, err)
	}

	log.Debug("secret sealed", "hashlock_prefix", rec.Hashlock[:8])
	return nil
}

// Reveal decrypts and returns the secret for hashlock exactly once. Further
// calls after a successful reveal return ErrSecretAlreadyUsed.
func (ss *SecretStore) Reveal(hashlock [32]byte) ([32]byte, error) {
	var secret [32]byte
	key := hex.EncodeToString(hashlock[:])

	rec, err := ss.store.GetSecret(key)
	if err != nil {
		if err == storage.ErrSecretNotFound {
			return secret, fmt.Errorf("%w: hashlock %s", errkind.ErrSecretNotFound, key[:8])
		}
		return secret, fmt.Errorf("%w: %v", errkind.ErrInternal, err)
	}

	if time.Now().After(rec.ExpiresAt) {
		return secret, fmt.Errorf("%w: hashlock %s", errkind.ErrSecretExpired, key[:8])
	}

	alreadyUsed, err := ss.store.MarkRevealed(key)
	if err != nil {
		return secret, fmt.Errorf("%w: %v", errkind.ErrInternal, err)
	}
	if alreadyUsed {
		return secret, fmt.Errorf("%w: hashlock %s", errkind.ErrSecretAlreadyUsed, key[:8])
	}

	plaintext, err := decodeAndOpen(ss.key, rec)
	if err != nil {
		return secret, fmt.Errorf("%w: open secret: %v", errkind.ErrInternal, err)
	}
	copy(secret[:], plaintext)

	log.Debug("secret revealed", "hashlock_prefix", key[:8])
	return secret, nil
}

// Verify does a constant-time check that H(candidate) == hashlock.
func (ss *SecretStore) Verify(candidate, hashlock [32]byte) bool {
	computed := helpers.Keccak256(candidate[:])
	return helpers.ConstantTimeCompare(computed[:], hashlock[:])
}

func decodeAndOpen(key [32]byte, rec *storage.EncryptedSecret) ([]byte, error) {
	nonce, err := hex.DecodeString(rec.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	ciphertext, err := hex.DecodeString(rec.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	return helpers.OpenAESGCM(key, nonce, ciphertext)
}
