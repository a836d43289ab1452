package chainb

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"

	"github.com/nexusbridge/swaporch/pkg/errkind"
	"github.com/nexusbridge/swaporch/pkg/helpers"
)

// Config carries the subset of the orchestrator's chain B configuration
// this client needs.
type Config struct {
	NetworkID       string
	RPCURL          string
	BackupRPCURL    string
	HTLCContract    string
	AccountID       string
	PrivateKey      string // "ed25519:..." form, environment precedence
	CredentialsPath string // filesystem credential store, tried first
}

// Client is the non-EVM side of a swap: a thin JSON-RPC wrapper around a
// NEAR-shaped HTLC contract. It runs read-only when no signing key is
// available.
type Client struct {
	rpc          *rpcClient
	contract     string
	accountID    string
	signer       *accountSigner
	pollInterval time.Duration
}

// New builds a Client, attempting to load a signing key per Config's
// CredentialsPath-then-PrivateKey precedence. A missing key is not an
// error at construction: the client runs read-only until a write is
// attempted.
func New(cfg Config) (*Client, error) {
	c := &Client{
		rpc:          newRPCClient(cfg.RPCURL, cfg.BackupRPCURL),
		contract:     cfg.HTLCContract,
		accountID:    cfg.AccountID,
		pollInterval: 5 * time.Second,
	}

	seed, err := loadSeed(cfg.CredentialsPath, cfg.AccountID, cfg.PrivateKey)
	if err != nil {
		if errkind.Of(err) == errkind.KindWriteUnavailable {
			log.Warn("chain B client running read-only: no signing key configured")
			return c, nil
		}
		return nil, err
	}

	signer, err := newAccountSigner(cfg.AccountID, seed)
	if err != nil {
		return nil, err
	}
	c.signer = signer
	return c, nil
}

// CreateHTLCParams mirrors the orchestrator's internal form before
// conversion to the wire's string-decimal/base64/nanosecond encodings.
type CreateHTLCParams struct {
	Receiver  string
	Token     string // empty for the native token
	Amount    *big.Int
	Hashlock  [32]byte
	Timelock  time.Time
	OrderHash [32]byte
}

// CreateHTLCResult is returned by CreateHTLC.
type CreateHTLCResult struct {
	HTLCHandle string
	TxRef      string
}

// CreateHTLC submits create_htlc, converting amounts to string-decimal and
// hashlock/orderHash to base64, and the timelock to nanoseconds since epoch.
func (c *Client) CreateHTLC(ctx context.Context, p CreateHTLCParams) (*CreateHTLCResult, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("%w: create_htlc requires a signing key", errkind.ErrWriteUnavailable)
	}

	args := map[string]interface{}{
		"receiver":   p.Receiver,
		"amount":     helpers.FormatDecimal(p.Amount),
		"hashlock":   base64.StdEncoding.EncodeToString(p.Hashlock[:]),
		"timelock":   fmt.Sprintf("%d", p.Timelock.UnixNano()),
		"order_hash": base64.StdEncoding.EncodeToString(p.OrderHash[:]),
	}
	if p.Token != "" {
		args["token"] = p.Token
	} else {
		args["token"] = nil
	}

	deposit := depositFor(p.Token)
	if deposit == "attached" {
		deposit = helpers.FormatDecimal(p.Amount)
	}
	txHash, err := c.signAndBroadcast(ctx, "create_htlc", args, deposit)
	if err != nil {
		return nil, err
	}

	htlcID, err := c.getHTLCIDFromResult(ctx, p.OrderHash)
	if err != nil {
		return nil, err
	}

	return &CreateHTLCResult{HTLCHandle: htlcID, TxRef: txHash}, nil
}

// depositFor returns the attached-deposit convention: for native-token
// transfers the "attached" marker, which CreateHTLC replaces with the swap
// amount; for token transfers a minimal storage deposit (~0.01
// NEAR-equivalent).
func depositFor(token string) string {
	if token == "" {
		return "attached"
	}
	return "10000000000000000000000" // ~0.01 of the native 24-decimal unit
}

// Withdraw calls withdraw({htlc_id, secret, receiver}), revealing the secret
// on chain B's public ledger.
func (c *Client) Withdraw(ctx context.Context, htlcHandle string, secret [32]byte, receiver string) (string, error) {
	if c.signer == nil {
		return "", fmt.Errorf("%w: withdraw requires a signing key", errkind.ErrWriteUnavailable)
	}
	args := map[string]interface{}{
		"htlc_id": htlcHandle,
		"secret":  base64.StdEncoding.EncodeToString(secret[:]),
	}
	if receiver != "" {
		args["receiver"] = receiver
	}
	return c.signAndBroadcast(ctx, "withdraw", args, "0")
}

// Refund calls refund({htlc_id}).
func (c *Client) Refund(ctx context.Context, htlcHandle string) (string, error) {
	if c.signer == nil {
		return "", fmt.Errorf("%w: refund requires a signing key", errkind.ErrWriteUnavailable)
	}
	args := map[string]interface{}{"htlc_id": htlcHandle}
	return c.signAndBroadcast(ctx, "refund", args, "0")
}

// HTLCStatus enumerates get_htlc's status field.
type HTLCStatus string

const (
	HTLCStatusActive    HTLCStatus = "active"
	HTLCStatusWithdrawn HTLCStatus = "withdrawn"
	HTLCStatusRefunded  HTLCStatus = "refunded"
)

// HTLCState is get_htlc's decoded view.
type HTLCState struct {
	Status         HTLCStatus
	RevealedSecret []byte
	Timelock       time.Time
	Amount         *big.Int
	Receiver       string
}

type htlcStateWire struct {
	Status         string `json:"status"`
	RevealedSecret string `json:"revealed_secret"`
	Timelock       string `json:"timelock"`
	Amount         string `json:"amount"`
	Receiver       string `json:"receiver"`
}

// GetHTLC reads an HTLC's current state via a read-only view call.
func (c *Client) GetHTLC(ctx context.Context, htlcHandle string) (*HTLCState, error) {
	var wire htlcStateWire
	if err := c.viewCall(ctx, "get_htlc", map[string]interface{}{"htlc_id": htlcHandle}, &wire); err != nil {
		return nil, err
	}
	return decodeHTLCState(wire)
}

func decodeHTLCState(wire htlcStateWire) (*HTLCState, error) {
	amount, err := helpers.ParseDecimal(wire.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: decode htlc amount: %v", errkind.ErrInternal, err)
	}
	var nanos int64
	if wire.Timelock != "" {
		n, ok := new(big.Int).SetString(wire.Timelock, 10)
		if !ok {
			return nil, fmt.Errorf("%w: decode htlc timelock: %s", errkind.ErrInternal, wire.Timelock)
		}
		nanos = n.Int64()
	}

	state := &HTLCState{
		Status:   HTLCStatus(wire.Status),
		Timelock: time.Unix(0, nanos),
		Amount:   amount,
		Receiver: wire.Receiver,
	}
	if wire.RevealedSecret != "" {
		secret, err := base64.StdEncoding.DecodeString(wire.RevealedSecret)
		if err != nil {
			return nil, fmt.Errorf("%w: decode revealed secret: %v", errkind.ErrInternal, err)
		}
		state.RevealedSecret = secret
	}
	return state, nil
}

func (c *Client) getHTLCIDFromResult(ctx context.Context, orderHash [32]byte) (string, error) {
	events, err := c.PollEvents(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		return "", err
	}
	for _, ev := range events {
		if ev.Kind == EventHTLCCreated && ev.OrderHash == orderHash {
			return ev.HTLCHandle, nil
		}
	}
	return "", fmt.Errorf("%w: no HTLCCreated event found for order hash", errkind.ErrNotFound)
}
