package chaina

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/nexusbridge/swaporch/pkg/errkind"
)

// EventKind identifies which escrow lifecycle event fired.
type EventKind string

const (
	EventSrcEscrowCreated EventKind = "src_escrow_created"
	EventWithdrawn        EventKind = "withdrawn"
	EventCancelled        EventKind = "cancelled"
)

// Event is the unified shape SubscribeEvents delivers for all three watched
// log types, translating the raw go-ethereum subscription into one channel.
type Event struct {
	Kind          EventKind
	EscrowAddress common.Address
	OrderHash     [32]byte
	Secret        [32]byte
	TxHash        common.Hash
	BlockNumber   uint64
}

// SubscribeEvents watches the factory for SrcEscrowCreated and, for every
// escrow address given in watchEscrows, Withdrawn/Cancelled. There is no
// FilterLogs polling fallback: when the push subscription fails, the error
// is sent on the error channel and the event channel is closed. The event
// channel is also closed when ctx is done.
func (c *Client) SubscribeEvents(ctx context.Context, watchEscrows []common.Address) (<-chan Event, <-chan error, error) {
	addresses := append([]common.Address{c.factoryAddress}, watchEscrows...)
	query := ethereum.FilterQuery{Addresses: addresses}

	logs := make(chan types.Log, 256)
	sub, err := c.rpc.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: subscribe filter logs: %v", errkind.ErrRPCFailure, err)
	}

	events := make(chan Event, 256)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				errs <- fmt.Errorf("%w: log subscription: %v", errkind.ErrRPCFailure, err)
				return
			case l := <-logs:
				if ev, ok := c.decodeLog(l); ok {
					events <- ev
				}
			}
		}
	}()

	return events, errs, nil
}

func (c *Client) decodeLog(l types.Log) (Event, bool) {
	if len(l.Topics) == 0 {
		return Event{}, false
	}

	base := Event{EscrowAddress: l.Address, TxHash: l.TxHash, BlockNumber: l.BlockNumber}

	if l.Address == c.factoryAddress {
		var payload struct {
			Escrow common.Address
		}
		if err := c.factoryABI.UnpackIntoInterface(&payload, "SrcEscrowCreated", l.Data); err != nil {
			return Event{}, false
		}
		base.Kind = EventSrcEscrowCreated
		base.EscrowAddress = payload.Escrow
		if len(l.Topics) > 1 {
			base.OrderHash = [32]byte(l.Topics[1])
		}
		return base, true
	}

	var withdrawPayload struct {
		Secret [32]byte
	}
	if err := c.escrowABI.UnpackIntoInterface(&withdrawPayload, "Withdrawn", l.Data); err == nil {
		base.Kind = EventWithdrawn
		base.Secret = withdrawPayload.Secret
		return base, true
	}

	base.Kind = EventCancelled
	return base, true
}
