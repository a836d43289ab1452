// Package chaina implements ChainAClient: the EVM-side escrow deploy,
// withdraw, and cancel operations, plus event subscription.
package chaina

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/nexusbridge/swaporch/pkg/errkind"
	"github.com/nexusbridge/swaporch/pkg/logging"
)

var log = logging.Component("chaina")

// gasBufferPercent is the padding applied to an estimated gas limit.
const gasBufferPercent = 20

// gasReserveUnits bounds the gas reserve held back from a deploy's balance
// check, independent of the actual estimate.
const gasReserveUnits = 500_000

// Timelocks is the wire-exact layout of the Immutables.timelocks tuple.
type Timelocks struct {
	SrcWithdrawal       *big.Int
	SrcPublicWithdrawal *big.Int
	SrcCancellation     *big.Int
	SrcDeployedAt       *big.Int
	DstWithdrawal       *big.Int
	DstCancellation     *big.Int
	DstDeployedAt       *big.Int
}

// Immutables is the wire-exact struct passed to createSrcEscrow.
type Immutables struct {
	Maker         common.Address
	Taker         common.Address
	Token         common.Address
	Amount        *big.Int
	SafetyDeposit *big.Int
	HashlockHash  [32]byte
	Timelocks     Timelocks
	OrderHash     [32]byte
	ChainID       *big.Int
}

// wireImmutables mirrors Immutables field-for-field for ABI packing; the
// go-ethereum abi encoder matches tuple components by struct field order.
type wireTimelocks struct {
	SrcWithdrawal       *big.Int
	SrcPublicWithdrawal *big.Int
	SrcCancellation     *big.Int
	SrcDeployedAt       *big.Int
	DstWithdrawal       *big.Int
	DstCancellation     *big.Int
	DstDeployedAt       *big.Int
}

type wireImmutables struct {
	Maker         common.Address
	Taker         common.Address
	Token         common.Address
	Amount        *big.Int
	SafetyDeposit *big.Int
	HashlockHash  [32]byte
	Timelocks     wireTimelocks
	OrderHash     [32]byte
	ChainID       *big.Int
}

func toWireImmutables(imm Immutables) wireImmutables {
	return wireImmutables{
		Maker:         imm.Maker,
		Taker:         imm.Taker,
		Token:         imm.Token,
		Amount:        imm.Amount,
		SafetyDeposit: imm.SafetyDeposit,
		HashlockHash:  imm.HashlockHash,
		Timelocks: wireTimelocks{
			SrcWithdrawal:       imm.Timelocks.SrcWithdrawal,
			SrcPublicWithdrawal: imm.Timelocks.SrcPublicWithdrawal,
			SrcCancellation:     imm.Timelocks.SrcCancellation,
			SrcDeployedAt:       imm.Timelocks.SrcDeployedAt,
			DstWithdrawal:       imm.Timelocks.DstWithdrawal,
			DstCancellation:     imm.Timelocks.DstCancellation,
			DstDeployedAt:       imm.Timelocks.DstDeployedAt,
		},
		OrderHash: imm.OrderHash,
		ChainID:   imm.ChainID,
	}
}

// PlaceholderTakerAddress is substituted for the taker field when the real
// taker is a chain-B account identifier rather than an EVM address; the
// actual receiver lives in the session record, not on chain A.
var PlaceholderTakerAddress = common.HexToAddress("0x0000000000000000000000000000000000000001")

// Client wraps an ethclient.Client bound to a pre-deployed escrow factory.
type Client struct {
	rpc            *ethclient.Client
	factoryAddress common.Address
	factory        *bind.BoundContract
	factoryABI     abi.ABI
	escrowABI      abi.ABI
	erc20ABI       abi.ABI
	chainID        *big.Int
	signerKey      *ecdsa.PrivateKey
}

// New dials rpcURL and binds the factory contract at factoryAddress.
// signerKeyHex may be empty, in which case write operations fail with
// ErrWriteUnavailable.
func New(ctx context.Context, rpcURL string, factoryAddress common.Address, signerKeyHex string) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dial chain A RPC: %v", errkind.ErrRPCFailure, err)
	}

	chainID, err := rpc.ChainID(ctx)
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("%w: fetch chain id: %v", errkind.ErrRPCFailure, err)
	}

	factoryParsed, err := parseFactoryABI()
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("%w: parse factory abi: %v", errkind.ErrInternal, err)
	}
	escrowParsed, err := parseEscrowABI()
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("%w: parse escrow abi: %v", errkind.ErrInternal, err)
	}
	erc20Parsed, err := parseERC20ABI()
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("%w: parse erc20 abi: %v", errkind.ErrInternal, err)
	}

	c := &Client{
		rpc:            rpc,
		factoryAddress: factoryAddress,
		factory:        bind.NewBoundContract(factoryAddress, factoryParsed, rpc, rpc, rpc),
		factoryABI:     factoryParsed,
		escrowABI:      escrowParsed,
		erc20ABI:       erc20Parsed,
		chainID:        chainID,
	}

	if signerKeyHex != "" {
		key, err := crypto.HexToECDSA(signerKeyHex)
		if err != nil {
			rpc.Close()
			return nil, fmt.Errorf("%w: parse signer key: %v", errkind.ErrInternal, err)
		}
		c.signerKey = key
	}

	return c, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() { c.rpc.Close() }

// DeployResult is returned by DeploySrcEscrow.
type DeployResult struct {
	EscrowAddress common.Address
	TxRef         common.Hash
	GasUsed       uint64
}

// DeploySrcEscrow calls the factory's createSrcEscrow, attaching
// safetyDeposit as native value, and returns the deployed escrow address.
func (c *Client) DeploySrcEscrow(ctx context.Context, imm Immutables) (*DeployResult, error) {
	auth, err := c.transactor(ctx)
	if err != nil {
		return nil, err
	}

	balance, err := c.rpc.BalanceAt(ctx, auth.From, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: read balance: %v", errkind.ErrRPCFailure, err)
	}
	gasPrice, err := c.rpc.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: suggest gas price: %v", errkind.ErrRPCFailure, err)
	}
	gasReserve := new(big.Int).Mul(gasPrice, big.NewInt(gasReserveUnits))
	required := new(big.Int).Add(imm.SafetyDeposit, gasReserve)
	if balance.Cmp(required) < 0 {
		return nil, fmt.Errorf("%w: balance %s below required %s", errkind.ErrInsufficientFunds, balance, required)
	}

	if (imm.Token != common.Address{}) {
		if err := c.ensureAllowance(ctx, auth.From, imm.Token, imm.Amount); err != nil {
			return nil, err
		}
	}

	auth.Value = imm.SafetyDeposit
	gasLimit, err := c.estimateWithBuffer(ctx, auth.From, imm)
	if err != nil {
		return nil, err
	}
	auth.GasLimit = gasLimit

	tx, err := c.factory.Transact(auth, "createSrcEscrow", toWireImmutables(imm))
	if err != nil {
		return nil, fmt.Errorf("%w: submit createSrcEscrow: %v", errkind.ErrChainRejection, err)
	}

	receipt, err := bind.WaitMined(ctx, c.rpc, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: wait for createSrcEscrow: %v", errkind.ErrRPCFailure, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: createSrcEscrow reverted", errkind.ErrChainRejection)
	}

	escrowAddr, err := c.escrowFromReceipt(receipt)
	if err != nil {
		return nil, err
	}

	log.Info("src escrow deployed", "escrow", escrowAddr, "tx", tx.Hash(), "gas_used", receipt.GasUsed)
	return &DeployResult{EscrowAddress: escrowAddr, TxRef: tx.Hash(), GasUsed: receipt.GasUsed}, nil
}

// Withdraw calls withdraw(secret) on the escrow at escrowAddress.
func (c *Client) Withdraw(ctx context.Context, escrowAddress common.Address, secret [32]byte) (common.Hash, error) {
	return c.callEscrow(ctx, escrowAddress, "withdraw", secret)
}

// Cancel calls cancel() on the escrow at escrowAddress.
func (c *Client) Cancel(ctx context.Context, escrowAddress common.Address) (common.Hash, error) {
	return c.callEscrow(ctx, escrowAddress, "cancel")
}

func (c *Client) callEscrow(ctx context.Context, escrowAddress common.Address, method string, params ...interface{}) (common.Hash, error) {
	auth, err := c.transactor(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	escrow := bind.NewBoundContract(escrowAddress, c.escrowABI, c.rpc, c.rpc, c.rpc)

	tx, err := escrow.Transact(auth, method, params...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: submit %s: %v", errkind.ErrChainRejection, method, err)
	}

	receipt, err := bind.WaitMined(ctx, c.rpc, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: wait for %s: %v", errkind.ErrRPCFailure, method, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return common.Hash{}, fmt.Errorf("%w: %s reverted", errkind.ErrChainRejection, method)
	}

	log.Info("escrow call mined", "escrow", escrowAddress, "method", method, "tx", tx.Hash())
	return tx.Hash(), nil
}

// ensureAllowance raises the factory's allowance over token to at least
// amount: for ERC-20-like tokens the factory must be able to pull amount
// in before createSrcEscrow is submitted.
func (c *Client) ensureAllowance(ctx context.Context, owner, token common.Address, amount *big.Int) error {
	erc20 := bind.NewBoundContract(token, c.erc20ABI, c.rpc, c.rpc, c.rpc)

	var out []interface{}
	if err := erc20.Call(&bind.CallOpts{Context: ctx}, &out, "allowance", owner, c.factoryAddress); err != nil {
		return fmt.Errorf("%w: read allowance: %v", errkind.ErrRPCFailure, err)
	}
	current := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	if current.Cmp(amount) >= 0 {
		return nil
	}

	auth, err := c.transactor(ctx)
	if err != nil {
		return err
	}
	tx, err := erc20.Transact(auth, "approve", c.factoryAddress, amount)
	if err != nil {
		return fmt.Errorf("%w: submit approve: %v", errkind.ErrChainRejection, err)
	}
	receipt, err := bind.WaitMined(ctx, c.rpc, tx)
	if err != nil {
		return fmt.Errorf("%w: wait for approve: %v", errkind.ErrRPCFailure, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: approve reverted", errkind.ErrChainRejection)
	}

	log.Info("token allowance approved", "token", token, "spender", c.factoryAddress, "amount", amount)
	return nil
}

func (c *Client) transactor(ctx context.Context) (*bind.TransactOpts, error) {
	if c.signerKey == nil {
		return nil, fmt.Errorf("%w: no signer key configured", errkind.ErrWriteUnavailable)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(c.signerKey, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: create transactor: %v", errkind.ErrInternal, err)
	}
	auth.Context = ctx
	return auth, nil
}

func (c *Client) estimateWithBuffer(ctx context.Context, from common.Address, imm Immutables) (uint64, error) {
	data, err := c.factoryABI.Pack("createSrcEscrow", toWireImmutables(imm))
	if err != nil {
		return 0, fmt.Errorf("%w: pack createSrcEscrow: %v", errkind.ErrInternal, err)
	}
	msg := ethereumCallMsg(from, c.factoryAddress, imm.SafetyDeposit, data)
	gas, err := c.rpc.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("%w: estimate gas: %v", errkind.ErrRPCFailure, err)
	}
	return gas * (100 + gasBufferPercent) / 100, nil
}

func (c *Client) escrowFromReceipt(receipt *types.Receipt) (common.Address, error) {
	for _, l := range receipt.Logs {
		if l.Address != c.factoryAddress {
			continue
		}
		var event struct {
			Escrow common.Address
		}
		if err := c.factoryABI.UnpackIntoInterface(&event, "SrcEscrowCreated", l.Data); err == nil {
			return event.Escrow, nil
		}
	}
	return common.Address{}, fmt.Errorf("%w: no SrcEscrowCreated log in receipt", errkind.ErrChainRejection)
}
