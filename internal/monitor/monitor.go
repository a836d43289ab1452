// Package monitor implements EventMonitor: unifying chain A's push
// subscription model and chain B's poll model into one observation stream.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nexusbridge/swaporch/internal/chaina"
	"github.com/nexusbridge/swaporch/internal/chainb"
	"github.com/nexusbridge/swaporch/pkg/logging"
)

var log = logging.Component("monitor")

// ObservationKind unifies chain A and chain B's distinct event vocabularies
// into the handful of occurrences the executor actually reacts to.
type ObservationKind string

const (
	ObservationSrcEscrowCreated  ObservationKind = "src_escrow_created"
	ObservationSrcWithdrawn      ObservationKind = "src_withdrawn"
	ObservationSrcCancelled      ObservationKind = "src_cancelled"
	ObservationDstHTLCCreated    ObservationKind = "dst_htlc_created"
	ObservationDstSecretRevealed ObservationKind = "dst_secret_revealed"
	ObservationDstRefunded       ObservationKind = "dst_refunded"
)

// Observation is the unified shape delivered on the monitor's event
// channel, tagged with the session whose watcher produced it: chain A events
// are matched on that session's escrow address, chain B events on its
// HTLCHandle.
type Observation struct {
	SessionID  string
	Kind       ObservationKind
	OrderHash  [32]byte
	HTLCHandle string
	Secret     []byte
	TxRef      string
	Timestamp  time.Time
}

// Correlator maps an observation's chain-native identifier back to a
// session id. EventMonitor keeps the one it is given but does not consult
// it; the per-session watchers do their own matching (see Observation).
type Correlator interface {
	SessionByOrderHash(orderHash [32]byte) (sessionID string, ok bool)
	SessionByHTLCHandle(htlcHandle string) (sessionID string, ok bool)
}

// Config tunes EventMonitor's polling and back-off behavior.
type Config struct {
	PollInterval      time.Duration
	ConfirmationDepth uint64
	MaxRetries        int
	BackoffBase       time.Duration
}

// EventMonitor watches both chains and funnels unified Observations to
// subscribers. Events channel is buffered and never dropped silently: a
// full buffer blocks the delivering goroutine rather than discarding.
type EventMonitor struct {
	chainA     *chaina.Client
	chainB     *chainb.Client
	correlator Correlator
	cfg        Config

	mu       sync.Mutex
	watching map[string]context.CancelFunc // sessionID -> cancel

	events chan Observation
}

// New returns an EventMonitor watching chainA and chainB. correlator is
// stored on the monitor but not consulted (see Correlator).
func New(chainAClient *chaina.Client, chainBClient *chainb.Client, correlator Correlator, cfg Config) *EventMonitor {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = time.Second
	}

	return &EventMonitor{
		chainA:     chainAClient,
		chainB:     chainBClient,
		correlator: correlator,
		cfg:        cfg,
		watching:   make(map[string]context.CancelFunc),
		events:     make(chan Observation, 256),
	}
}

// Events returns the channel the executor consumes unified observations
// from.
func (m *EventMonitor) Events() <-chan Observation {
	return m.events
}

// WatchSession starts chain A push subscription and chain B polling for a
// session's escrow address and HTLC handle. Calling it twice for the same
// sessionID is a no-op.
func (m *EventMonitor) WatchSession(ctx context.Context, sessionID string, srcEscrow common.Address, dstHTLCHandle string) {
	m.mu.Lock()
	if _, exists := m.watching[sessionID]; exists {
		m.mu.Unlock()
		return
	}
	watchCtx, cancel := context.WithCancel(ctx)
	m.watching[sessionID] = cancel
	m.mu.Unlock()

	if m.chainA != nil && (srcEscrow != common.Address{}) {
		go m.watchChainA(watchCtx, sessionID, srcEscrow)
	}
	if m.chainB != nil && dstHTLCHandle != "" {
		go m.watchChainB(watchCtx, sessionID, dstHTLCHandle)
	}

	log.Info("watching session", "session_id", sessionID, "src_escrow", srcEscrow, "dst_htlc", dstHTLCHandle)
}

// StopWatching cancels both watchers for sessionID.
func (m *EventMonitor) StopWatching(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, exists := m.watching[sessionID]; exists {
		cancel()
		delete(m.watching, sessionID)
	}
}

// Stop cancels every active watcher and closes the event channel.
func (m *EventMonitor) Stop() {
	m.mu.Lock()
	for id, cancel := range m.watching {
		cancel()
		delete(m.watching, id)
	}
	m.mu.Unlock()
	close(m.events)
}

func (m *EventMonitor) deliver(ctx context.Context, obs Observation) {
	select {
	case m.events <- obs:
	case <-ctx.Done():
	}
}
