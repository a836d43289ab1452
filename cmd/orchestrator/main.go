// Command orchestrator runs the cross-chain atomic swap orchestrator: it
// loads configuration, opens storage, wires every component together, and
// resumes any sessions left in-flight by a previous run before blocking
// until signalled to shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nexusbridge/swaporch/internal/chaina"
	"github.com/nexusbridge/swaporch/internal/chainb"
	"github.com/nexusbridge/swaporch/internal/config"
	"github.com/nexusbridge/swaporch/internal/executor"
	"github.com/nexusbridge/swaporch/internal/ledger"
	"github.com/nexusbridge/swaporch/internal/monitor"
	"github.com/nexusbridge/swaporch/internal/notifier"
	"github.com/nexusbridge/swaporch/internal/scheduler"
	"github.com/nexusbridge/swaporch/internal/secretstore"
	"github.com/nexusbridge/swaporch/internal/session"
	"github.com/nexusbridge/swaporch/internal/storage"
	"github.com/nexusbridge/swaporch/pkg/helpers"
	"github.com/nexusbridge/swaporch/pkg/logging"
)

func main() {
	dataDir := flag.String("data-dir", "~/.swaporch", "orchestrator data directory")
	logLevel := flag.String("log-level", "", "override the configured log level")
	flag.Parse()

	cfg, err := config.LoadConfig(*dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	logging.SetDefault(logging.New(&logging.Config{Level: cfg.Logging.Level}))
	log := logging.Component("main")

	app, err := build(cfg)
	if err != nil {
		log.Error("failed to build orchestrator", "err", err)
		os.Exit(1)
	}
	defer app.store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if app.monitor != nil {
		go app.executor.Run(ctx)
	}
	app.resumeInFlightSessions(ctx)

	if interval := time.Duration(cfg.Session.CleanupIntervalMs) * time.Millisecond; interval > 0 {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := app.sessions.Sweep(); err != nil {
						log.Error("session sweep failed", "err", err)
					}
				}
			}
		}()
	}

	log.Info("orchestrator started", "data_dir", *dataDir)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	cancel()
	if app.monitor != nil {
		app.monitor.Stop()
	}
	app.scheduler.Stop()
	close(app.wsStop)
	if app.chainA != nil {
		app.chainA.Close()
	}
}

// orchestrator bundles every wired component; it exists only to give main
// a single value to build, resume from, and tear down.
type orchestrator struct {
	store     *storage.Storage
	sessions  *session.Store
	secrets   *secretstore.SecretStore
	chainA    *chaina.Client
	chainB    *chainb.Client
	monitor   *monitor.EventMonitor
	ledger    *ledger.Ledger
	notifier  *notifier.Notifier
	scheduler *scheduler.Scheduler
	executor  *executor.Executor
	wsSink    *notifier.WebSocketSink
	wsStop    chan struct{}
}

func build(cfg *config.Config) (*orchestrator, error) {
	store, err := storage.New(&storage.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	secretKey, err := helpers.DeriveKey(cfg.Secret.EncryptionKey, "swaporch-secret-store")
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("derive secret key: %w", err)
	}
	secrets := secretstore.New(store, secretKey, time.Duration(cfg.Secret.TTLSeconds)*time.Second)

	sessions := session.NewStore(store, secrets, cfg.Session.MaxActive, session.TimelockOffsets{
		SrcWithdrawalOffset:       time.Duration(cfg.Timelocks.SrcWithdrawalOffset) * time.Second,
		SrcPublicWithdrawalOffset: time.Duration(cfg.Timelocks.SrcPublicWithdrawalOffset) * time.Second,
		SrcCancellationOffset:     time.Duration(cfg.Timelocks.SrcCancellationOffset) * time.Second,
		DstWithdrawalOffset:       time.Duration(cfg.Timelocks.DstWithdrawalOffset) * time.Second,
		DstCancellationOffset:     time.Duration(cfg.Timelocks.DstCancellationOffset) * time.Second,
		DeployedBackdate:          time.Duration(cfg.Timelocks.DeployedBackdateSeconds) * time.Second,
	})

	led := ledger.New(store)
	notify := notifier.New()
	sink := notifier.NewWebSocketSink()
	notify.Subscribe(sink.Handler())
	wsStop := make(chan struct{})
	go sink.Run(wsStop)
	sched := scheduler.New()

	var chainAClient *chaina.Client
	if cfg.ChainA.RPCURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		chainAClient, err = chaina.New(ctx, cfg.ChainA.RPCURL, common.HexToAddress(cfg.ChainA.FactoryAddress), cfg.ChainA.SignerKey)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("connect chain A: %w", err)
		}
	}

	var chainBClient *chainb.Client
	if cfg.ChainB.RPCURL != "" {
		chainBClient, err = chainb.New(chainb.Config{
			NetworkID:       cfg.ChainB.NetworkID,
			RPCURL:          cfg.ChainB.RPCURL,
			BackupRPCURL:    cfg.ChainB.BackupRPCURL,
			HTLCContract:    cfg.ChainB.HTLCContract,
			AccountID:       cfg.ChainB.AccountID,
			PrivateKey:      cfg.ChainB.PrivateKey,
			CredentialsPath: cfg.ChainB.CredentialsPath,
		})
		if err != nil {
			if chainAClient != nil {
				chainAClient.Close()
			}
			store.Close()
			return nil, fmt.Errorf("connect chain B: %w", err)
		}
	}

	var mon *monitor.EventMonitor
	if chainAClient != nil || chainBClient != nil {
		mon = monitor.New(chainAClient, chainBClient, nil, monitor.Config{
			PollInterval:      time.Duration(cfg.Monitor.PollIntervalMs) * time.Millisecond,
			ConfirmationDepth: uint64(cfg.Monitor.ConfirmationDepth),
			MaxRetries:        cfg.Monitor.MaxRetries,
			BackoffBase:       time.Duration(cfg.Monitor.BackoffBaseMs) * time.Millisecond,
		})
	}

	exec := executor.New(sessions, chainAClient, chainBClient, mon, led, notify, sched, executor.Config{})

	return &orchestrator{
		store:     store,
		sessions:  sessions,
		secrets:   secrets,
		chainA:    chainAClient,
		chainB:    chainBClient,
		monitor:   mon,
		ledger:    led,
		notifier:  notify,
		scheduler: sched,
		executor:  exec,
		wsSink:    sink,
		wsStop:    wsStop,
	}, nil
}

// resumeInFlightSessions re-enters executeFullSwap for every session not
// already in a terminal state, so a restart picks back up where the
// previous run left off; each stage's idempotency checks make this safe.
func (o *orchestrator) resumeInFlightSessions(ctx context.Context) {
	log := logging.Component("main")
	sessions, err := o.sessions.List("")
	if err != nil {
		log.Error("failed to list sessions for resume", "err", err)
		return
	}
	for _, sess := range sessions {
		if session.IsTerminal(sess.Status) {
			continue
		}
		sess := sess
		log.Info("resuming in-flight session", "session_id", sess.ID, "status", sess.Status)
		go func() {
			if err := o.executor.ExecuteFullSwap(ctx, sess.ID); err != nil {
				log.Error("resumed session execution ended with error", "session_id", sess.ID, "err", err)
			}
		}()
	}
}
