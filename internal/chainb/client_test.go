// Integration against a live RPC endpoint is out of scope for unit tests;
// these cover encoding, signing, and credential precedence.
package chainb

import (
	"context"
	"encoding/base64"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/nexusbridge/swaporch/pkg/errkind"
)

func TestDepositForNativeVsToken(t *testing.T) {
	if depositFor("") != "attached" {
		t.Error("native token deposit should be the attached swap amount")
	}
	if depositFor("usdc.testnet") == "attached" {
		t.Error("token transfer should attach a minimal storage deposit, not the swap amount")
	}
}

func TestDecodeHTLCState(t *testing.T) {
	secret := []byte{1, 2, 3}
	wire := htlcStateWire{
		Status:         "withdrawn",
		RevealedSecret: base64.StdEncoding.EncodeToString(secret),
		Timelock:       "1700000000000000000",
		Amount:         "100000000000000000000000",
		Receiver:       "alice.testnet",
	}

	state, err := decodeHTLCState(wire)
	if err != nil {
		t.Fatalf("decodeHTLCState() error = %v", err)
	}
	if state.Status != HTLCStatusWithdrawn {
		t.Errorf("Status = %s, want %s", state.Status, HTLCStatusWithdrawn)
	}
	if state.Amount.Cmp(big.NewInt(0).SetUint64(100000000000000000)) <= 0 && state.Amount.Sign() == 0 {
		t.Error("amount failed to decode")
	}
	if len(state.RevealedSecret) != 3 {
		t.Errorf("RevealedSecret length = %d, want 3", len(state.RevealedSecret))
	}
}

func TestDecodeHTLCStateRejectsBadAmount(t *testing.T) {
	wire := htlcStateWire{Status: "active", Amount: "not-a-number"}
	if _, err := decodeHTLCState(wire); err == nil {
		t.Error("expected error for malformed amount")
	}
}

func TestAccountSignerProducesDeterministicSignature(t *testing.T) {
	seed := [32]byte{1, 2, 3, 4, 5}
	signer, err := newAccountSigner("alice.testnet", seed)
	if err != nil {
		t.Fatalf("newAccountSigner() error = %v", err)
	}

	msg := []byte("hello chain B")
	sig1, err := signer.sign(msg)
	if err != nil {
		t.Fatalf("sign() error = %v", err)
	}
	sig2, err := signer.sign(msg)
	if err != nil {
		t.Fatalf("sign() error = %v", err)
	}
	if sig1 != sig2 {
		t.Error("signing the same message twice should be deterministic")
	}

	otherMsg := []byte("different message")
	sig3, err := signer.sign(otherMsg)
	if err != nil {
		t.Fatalf("sign() error = %v", err)
	}
	if sig1 == sig3 {
		t.Error("signatures over different messages should differ")
	}
}

func TestLoadSeedPrefersCredentialsFileOverEnv(t *testing.T) {
	dir := t.TempDir()
	cred := `{"account_id":"alice.testnet","public_key":"ed25519:aaaa","private_key":"ed25519:` +
		base64.StdEncoding.EncodeToString(make([]byte, 32)) + `"}`
	if err := os.WriteFile(filepath.Join(dir, "alice.testnet.json"), []byte(cred), 0o600); err != nil {
		t.Fatalf("write credential file: %v", err)
	}

	seed, err := loadSeed(dir, "alice.testnet", "ed25519:should-not-be-used")
	if err != nil {
		t.Fatalf("loadSeed() error = %v", err)
	}
	if seed != ([32]byte{}) {
		t.Error("expected zero seed decoded from the credential file's all-zero key")
	}
}

func TestLoadSeedFallsBackToEnv(t *testing.T) {
	key := "ed25519:" + base64.StdEncoding.EncodeToString(make([]byte, 32))
	if _, err := loadSeed("", "alice.testnet", key); err != nil {
		t.Fatalf("loadSeed() error = %v", err)
	}
}

func TestLoadSeedFailsWithoutAnyCredential(t *testing.T) {
	_, err := loadSeed("", "alice.testnet", "")
	if errkind.Of(err) != errkind.KindWriteUnavailable {
		t.Errorf("Of(err) = %s, want %s", errkind.Of(err), errkind.KindWriteUnavailable)
	}
}

func TestPollEventsDropsMalformedRows(t *testing.T) {
	_, err := decodeEvent(recentEventWire{Kind: "htlc_created", OrderHash: "not-base64!!"})
	if err == nil {
		t.Error("expected error decoding malformed order hash")
	}
}

func TestNewRunsReadOnlyWithoutSigningKey(t *testing.T) {
	c, err := New(Config{
		NetworkID:    "testnet",
		RPCURL:       "https://rpc.testnet.example",
		HTLCContract: "htlc.testnet",
		AccountID:    "orchestrator.testnet",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.signer != nil {
		t.Error("expected nil signer when no key is configured")
	}

	_, err = c.Refund(context.Background(), "htlc-1")
	if errkind.Of(err) != errkind.KindWriteUnavailable {
		t.Errorf("Refund() Of(err) = %s, want %s", errkind.Of(err), errkind.KindWriteUnavailable)
	}
}
