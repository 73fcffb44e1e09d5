package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/queue"
	"perp-signal-engine/internal/storage"
)

// Detector promotes consensus among watched wallets into signals. There
// is no long-lived per-pair state: every position-open event triggers a
// full recompute of the trailing window for its (instrument, direction),
// which makes detection idempotent under event reordering and
// redelivery.
type Detector struct {
	positions storage.PositionStore
	signals   storage.SignalStore
	config    storage.ConfigStore
	publisher queue.Publisher
	logger    *log.Logger

	// now is injectable for tests
	now func() time.Time
}

// Options configures the Detector.
type Options struct {
	// Logger defaults to log.Default().
	Logger *log.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// New creates a Detector.
func New(positions storage.PositionStore, signals storage.SignalStore, config storage.ConfigStore, publisher queue.Publisher, opts *Options) *Detector {
	d := &Detector{
		positions: positions,
		signals:   signals,
		config:    config,
		publisher: publisher,
		logger:    log.Default(),
		now:       time.Now,
	}
	if opts != nil {
		if opts.Logger != nil {
			d.logger = opts.Logger
		}
		if opts.Now != nil {
			d.now = opts.Now
		}
	}
	return d
}

// HandlePositionEvent re-evaluates the event's (instrument, direction)
// window. Returns the created signal, or nil when quorum was not reached
// or the cooldown suppressed creation.
func (d *Detector) HandlePositionEvent(ctx context.Context, event domain.PositionOpenEvent) (*domain.Signal, error) {
	cfg, err := d.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	now := d.now().UnixMilli()
	windowStart := now - cfg.ConsensusWindow.Milliseconds()

	window, err := d.positions.GetOpenInWindow(ctx, event.Instrument, event.Direction, windowStart)
	if err != nil {
		return nil, fmt.Errorf("load window: %w", err)
	}

	contributors := collapseByWallet(window)
	if len(contributors) < cfg.MinWalletQuorum {
		return nil, nil
	}

	sig := buildSignal(cfg, event.Instrument, event.Direction, contributors, now)

	created, err := d.signals.CreateIfNoRecent(ctx, sig, now-cfg.SignalCooldown.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("create signal: %w", err)
	}
	if !created {
		// Another evaluation won the race or the cooldown is active
		return nil, nil
	}

	d.logger.Printf("[detect] signal=%s instrument=%s direction=%s wallets=%d ref=%.4f",
		sig.SignalID, sig.Instrument, sig.Direction, len(sig.Participants), sig.ReferencePrice)

	d.publishCreated(ctx, sig)

	return sig, nil
}

// collapseByWallet reduces the window to one position per wallet, keeping
// the most recent entry. Ties on entry timestamp fall to insertion order:
// the input is ordered by (entry_time ASC, id ASC), so a later element
// always wins.
func collapseByWallet(window []*domain.Position) []*domain.Position {
	byWallet := make(map[string]*domain.Position)
	order := make([]string, 0, len(window))

	for _, p := range window {
		if _, seen := byWallet[p.Wallet]; !seen {
			order = append(order, p.Wallet)
		}
		byWallet[p.Wallet] = p
	}

	contributors := make([]*domain.Position, 0, len(order))
	for _, wallet := range order {
		contributors = append(contributors, byWallet[wallet])
	}
	return contributors
}

// buildSignal assembles the signal row, participants, and the dense
// 0-based target ladder from the contributing positions.
func buildSignal(cfg *domain.EngineConfig, instrument string, direction domain.Direction, contributors []*domain.Position, now int64) *domain.Signal {
	// Size-weighted average entry price across contributors
	var weightedSum, totalSize float64
	for _, p := range contributors {
		weightedSum += p.EntryPrice * p.Size
		totalSize += p.Size
	}
	referencePrice := weightedSum / totalSize
	avgSize := totalSize / float64(len(contributors))

	sig := &domain.Signal{
		SignalID:       uuid.NewString(),
		Instrument:     instrument,
		Direction:      direction,
		ReferencePrice: referencePrice,
		AvgSize:        avgSize,
		StopLossPct:    cfg.DefaultStopLoss,
		Status:         domain.StatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for _, p := range contributors {
		sig.Participants = append(sig.Participants, &domain.SignalParticipant{
			SignalID:   sig.SignalID,
			Wallet:     p.Wallet,
			EntryPrice: p.EntryPrice,
			Size:       p.Size,
			Leverage:   p.Leverage,
		})
	}

	for i, pct := range cfg.DefaultTargets {
		sig.Targets = append(sig.Targets, &domain.SignalTarget{
			SignalID:    sig.SignalID,
			Index:       i,
			TargetPct:   pct,
			TargetPrice: domain.TargetPrice(referencePrice, pct, direction),
		})
	}

	return sig
}

// publishCreated emits the "new signal" notification. Best-effort: a
// lost notification never rolls back the created signal.
func (d *Detector) publishCreated(ctx context.Context, sig *domain.Signal) {
	targetPrices := make([]float64, len(sig.Targets))
	for i, tgt := range sig.Targets {
		targetPrices[i] = tgt.TargetPrice
	}

	event := domain.NotificationEvent{
		Type:             domain.NotifySignalCreated,
		SignalID:         sig.SignalID,
		Instrument:       sig.Instrument,
		Direction:        sig.Direction,
		ReferencePrice:   sig.ReferencePrice,
		StopLossPrice:    domain.StopPrice(sig.ReferencePrice, sig.StopLossPct, sig.Direction),
		TargetPrices:     targetPrices,
		ParticipantCount: len(sig.Participants),
		Timestamp:        sig.CreatedAt,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		d.logger.Printf("[detect] signal=%s marshal notification failed: %v", sig.SignalID, err)
		return
	}
	if err := d.publisher.Publish(ctx, queue.StreamNotifications, payload); err != nil {
		d.logger.Printf("[detect] signal=%s publish notification failed: %v", sig.SignalID, err)
	}
}

// Runner consumes the position-open stream into the detector.
type Runner struct {
	consumer queue.Consumer
	detector *Detector
	logger   *log.Logger
}

// NewRunner creates a detection runner.
func NewRunner(consumer queue.Consumer, detector *Detector, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{consumer: consumer, detector: detector, logger: logger}
}

// Run consumes position-open events until ctx is done. Handler errors
// leave the event queued for redelivery; detection is idempotent, so a
// redelivered event can never double-create.
func (r *Runner) Run(ctx context.Context) error {
	return r.consumer.Consume(ctx, queue.StreamPositionsOpen, func(ctx context.Context, msg queue.Message) error {
		var event domain.PositionOpenEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			r.logger.Printf("[detect] id=%s unparseable payload, dropping: %v", msg.ID, err)
			return nil
		}

		if _, err := r.detector.HandlePositionEvent(ctx, event); err != nil {
			return err
		}
		return nil
	})
}
