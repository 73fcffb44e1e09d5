// Package engine wires the ingest, detect, monitor, and notify stages
// into one long-running process.
package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"perp-signal-engine/internal/detector"
	"perp-signal-engine/internal/ingestor"
	"perp-signal-engine/internal/monitor"
	"perp-signal-engine/internal/notify"
	"perp-signal-engine/internal/observability"
	"perp-signal-engine/internal/provider"
	"perp-signal-engine/internal/storage"
)

// Engine runs the full signal lifecycle: a wallet poll loop feeding the
// ingestor, queue consumers for detection and notification, and a
// periodic price sweep. Poll and sweep run in one loop, so a slow sweep
// delays the next poll instead of overlapping it.
type Engine struct {
	ingestor       *ingestor.Ingestor
	detectorRunner *detector.Runner
	notifyRunner   *notify.Runner
	monitor        *monitor.Monitor
	wallets        storage.WalletStore
	config         storage.ConfigStore
	sweepInterval  time.Duration
	logger         *log.Logger
}

// EngineOptions contains configuration for creating an Engine.
type EngineOptions struct {
	Ingestor       *ingestor.Ingestor
	DetectorRunner *detector.Runner
	NotifyRunner   *notify.Runner
	Monitor        *monitor.Monitor
	WalletStore    storage.WalletStore
	ConfigStore    storage.ConfigStore
	// SweepInterval defaults to 30s. The poll interval comes from the
	// stored engine configuration and is re-read every cycle.
	SweepInterval time.Duration
	Logger        *log.Logger
}

// NewEngine creates a new engine.
func NewEngine(opts EngineOptions) *Engine {
	sweepInterval := opts.SweepInterval
	if sweepInterval == 0 {
		sweepInterval = 30 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Engine{
		ingestor:       opts.Ingestor,
		detectorRunner: opts.DetectorRunner,
		notifyRunner:   opts.NotifyRunner,
		monitor:        opts.Monitor,
		wallets:        opts.WalletStore,
		config:         opts.ConfigStore,
		sweepInterval:  sweepInterval,
		logger:         logger,
	}
}

// Run starts all stages and blocks until the context is cancelled or a
// consumer fails.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Println("Starting engine...")

	cfg, err := e.config.Get(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	if e.detectorRunner != nil {
		go func() {
			if err := e.detectorRunner.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
				return
			}
			errCh <- nil
		}()
		e.logger.Println("Detection consumer started")
	} else {
		errCh <- nil
	}

	if e.notifyRunner != nil {
		go func() {
			if err := e.notifyRunner.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
				return
			}
			errCh <- nil
		}()
		e.logger.Println("Notification consumer started")
	} else {
		errCh <- nil
	}

	pollTicker := time.NewTicker(cfg.PollInterval)
	defer pollTicker.Stop()

	sweepTicker := time.NewTicker(e.sweepInterval)
	defer sweepTicker.Stop()

	e.logger.Printf("Engine started, poll interval: %v, sweep interval: %v", cfg.PollInterval, e.sweepInterval)

	// One poll up front so a restart does not wait a full interval
	e.pollWallets(runCtx)

	var pending = 2
	for {
		select {
		case <-ctx.Done():
			e.logger.Println("Engine stopping...")
			cancel()
			for pending > 0 {
				<-errCh
				pending--
			}
			return ctx.Err()

		case err := <-errCh:
			pending--
			if err != nil {
				e.logger.Printf("Consumer failed, shutting down: %v", err)
				cancel()
				for pending > 0 {
					<-errCh
					pending--
				}
				return err
			}

		case <-pollTicker.C:
			e.pollWallets(runCtx)
			// The poll interval is operator-tunable at runtime
			if fresh, err := e.config.Get(runCtx); err == nil && fresh.PollInterval != cfg.PollInterval {
				cfg = fresh
				pollTicker.Reset(cfg.PollInterval)
				e.logger.Printf("Poll interval changed to %v", cfg.PollInterval)
			}

		case <-sweepTicker.C:
			e.sweep(runCtx)
		}
	}
}

// pollWallets ingests a snapshot of every watched wallet. Unavailable
// wallets are retried on the next cycle.
func (e *Engine) pollWallets(ctx context.Context) {
	if e.ingestor == nil {
		return
	}

	wallets, err := e.wallets.List(ctx)
	if err != nil {
		e.logger.Printf("Error listing wallets: %v", err)
		observability.RecordIngestError("list_wallets")
		return
	}

	for _, wallet := range wallets {
		if ctx.Err() != nil {
			return
		}

		observability.RecordWalletPolled()
		res, err := e.ingestor.IngestWallet(ctx, wallet)
		if err != nil {
			if errors.Is(err, provider.ErrUnavailable) {
				e.logger.Printf("Wallet %s unavailable, retrying next cycle: %v", wallet, err)
				observability.RecordIngestError("provider_unavailable")
				continue
			}
			e.logger.Printf("Error ingesting wallet %s: %v", wallet, err)
			observability.RecordIngestError("ingest")
			continue
		}

		observability.RecordIngestResult(res.Emitted, res.Duplicate, res.Filtered)
		if res.Emitted > 0 {
			e.logger.Printf("Wallet %s: %d new positions (%d snapshot, %d dup, %d filtered)",
				wallet, res.Emitted, res.Snapshot, res.Duplicate, res.Filtered)
		}
	}

	observability.UpdateBreakerState(int(e.ingestor.Guard().Breaker().State()))
	observability.DefaultMetrics.LastSuccessfulPoll.SetToCurrentTime()
}

// sweep runs one monitor pass over the active signals.
func (e *Engine) sweep(ctx context.Context) {
	if e.monitor == nil {
		return
	}

	stats, err := e.monitor.SweepOnce(ctx)
	observability.RecordSweep(err == nil, stats.TargetsHit, stats.StopsHit, stats.Completed)
	if err != nil {
		e.logger.Printf("Sweep failed: %v", err)
		return
	}

	observability.UpdateActiveSignals(stats.Signals - stats.StopsHit - stats.Completed)
	observability.DefaultMetrics.LastSuccessfulSweep.SetToCurrentTime()

	if stats.TargetsHit > 0 || stats.StopsHit > 0 {
		e.logger.Printf("Sweep: %d signals, %d targets hit, %d stops, %d completed, %d skipped",
			stats.Signals, stats.TargetsHit, stats.StopsHit, stats.Completed, stats.Skipped)
	}
}
