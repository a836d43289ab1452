package helpers

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// DeriveKey derives a 32-byte AES-256 key from process-scoped configuration
// material via HKDF-SHA256, so the orchestrator never stores a raw
// passphrase as the cipher key directly.
func DeriveKey(passphrase, salt string) ([32]byte, error) {
	var key [32]byte
	hk := hkdf.New(sha256.New, []byte(passphrase), []byte(salt), []byte("swaporch-secret-seal"))
	if _, err := io.ReadFull(hk, key[:]); err != nil {
		return key, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// SealAESGCM encrypts plaintext with AES-256-GCM under key, returning a
// fresh random nonce and the ciphertext with the authentication tag
// appended (the standard cipher.AEAD.Seal convention).
func SealAESGCM(key [32]byte, plaintext []byte) (nonce, ciphertext []byte, err error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("new gcm: %w", err)
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext = gcm.Seal(nil, nonce, plaintext, nil)
	return nonce, ciphertext, nil
}

// OpenAESGCM decrypts ciphertext (tag appended) with AES-256-GCM under key and nonce.
func OpenAESGCM(key [32]byte, nonce, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// Keccak256 computes the Keccak-256 digest used as the cross-chain hashlock
// function.
func Keccak256(data ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
