package ingestor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/guard"
	"perp-signal-engine/internal/idhash"
	"perp-signal-engine/internal/provider"
	"perp-signal-engine/internal/queue"
	"perp-signal-engine/internal/storage"
)

// Result summarizes one wallet ingestion pass.
type Result struct {
	Wallet    string
	Snapshot  int // positions in the provider snapshot
	Emitted   int // new position-open events published
	Duplicate int // idempotency-key hits (silent no-ops)
	Filtered  int // dropped by instrument/size/leverage filters
}

// Ingestor turns wallet snapshots into canonical position-open events:
// at most one per (wallet, instrument, direction) transition, recognized
// across restarts and redeliveries by a deterministic idempotency key.
type Ingestor struct {
	provider  provider.Provider
	guard     *guard.Guard
	positions storage.PositionStore
	config    storage.ConfigStore
	publisher queue.Publisher
	logger    *log.Logger
}

// Options configures the Ingestor.
type Options struct {
	// Guard wraps every provider call. Defaults to guard.New().
	Guard *guard.Guard
	// Logger defaults to log.Default().
	Logger *log.Logger
}

// New creates an Ingestor.
func New(p provider.Provider, positions storage.PositionStore, config storage.ConfigStore, publisher queue.Publisher, opts *Options) *Ingestor {
	ing := &Ingestor{
		provider:  p,
		positions: positions,
		config:    config,
		publisher: publisher,
		guard:     guard.New(),
		logger:    log.Default(),
	}
	if opts != nil {
		if opts.Guard != nil {
			ing.guard = opts.Guard
		}
		if opts.Logger != nil {
			ing.logger = opts.Logger
		}
	}
	return ing
}

// Guard exposes the provider guard for breaker-state observability.
func (ing *Ingestor) Guard() *guard.Guard {
	return ing.guard
}

// IngestWallet processes one wallet's snapshot. Provider unavailability
// returns provider.ErrUnavailable and the wallet is retried next cycle;
// data-integrity errors propagate.
func (ing *Ingestor) IngestWallet(ctx context.Context, wallet string) (Result, error) {
	res := Result{Wallet: wallet}

	cfg, err := ing.config.Get(ctx)
	if err != nil {
		return res, fmt.Errorf("load config: %w", err)
	}

	var snapshot []domain.RawPosition
	err = ing.guard.Do(ctx, "open_positions", func(ctx context.Context) error {
		var err error
		snapshot, err = ing.provider.OpenPositions(ctx, wallet)
		return err
	})
	if err != nil {
		return res, fmt.Errorf("fetch positions for %s: %w", wallet, err)
	}
	res.Snapshot = len(snapshot)

	// A successful snapshot is authoritative for the wallet's exposure:
	// stored open positions whose instrument no longer appears with
	// non-zero size have been flattened and stop counting toward consensus.
	if err := ing.supersedeFlattened(ctx, wallet, snapshot); err != nil {
		return res, err
	}
	if len(snapshot) == 0 {
		return res, nil
	}

	// Fills anchor the discrete entry price/time; unavailability falls
	// back to snapshot values rather than failing the wallet.
	var fills []domain.Fill
	err = ing.guard.Do(ctx, "recent_fills", func(ctx context.Context) error {
		var err error
		fills, err = ing.provider.RecentFills(ctx, wallet)
		return err
	})
	if err != nil {
		if !errors.Is(err, provider.ErrUnavailable) {
			return res, fmt.Errorf("fetch fills for %s: %w", wallet, err)
		}
		ing.logger.Printf("[ingest] wallet=%s fills unavailable, using snapshot entries: %v", wallet, err)
		fills = nil
	}

	for _, raw := range snapshot {
		emitted, duplicate, err := ing.ingestPosition(ctx, cfg, wallet, raw, fills)
		if err != nil {
			return res, err
		}
		switch {
		case emitted:
			res.Emitted++
		case duplicate:
			res.Duplicate++
		default:
			res.Filtered++
		}
	}

	return res, nil
}

// ingestPosition applies filters, key dedup, atomic persist, and publish
// for one snapshot entry.
func (ing *Ingestor) ingestPosition(ctx context.Context, cfg *domain.EngineConfig, wallet string, raw domain.RawPosition, fills []domain.Fill) (emitted, duplicate bool, err error) {
	// Deny list short-circuits; allow list requires membership when set
	if !cfg.InstrumentAllowed(raw.Instrument) {
		return false, false, nil
	}

	direction := raw.Direction()
	entryPrice := raw.EntryPrice
	entryTime := raw.Timestamp

	// Snapshots blend multiple fills into one average entry; a matching
	// fill gives the discrete "just opened" anchor. Most recent wins.
	if fill := mostRecentMatchingFill(fills, raw.Instrument, direction); fill != nil {
		entryPrice = fill.Price
		entryTime = fill.Timestamp
	}

	notional := raw.Quantity() * entryPrice
	if notional < cfg.MinTradeSize {
		return false, false, nil
	}
	if raw.Leverage < cfg.MinLeverage {
		return false, false, nil
	}

	key := idhash.ComputePositionKey(wallet, raw.Instrument, direction, entryTime)

	seen, err := ing.positions.SeenKey(ctx, key)
	if err != nil {
		return false, false, fmt.Errorf("check idempotency key: %w", err)
	}
	if seen {
		// Already processed: silent no-op
		return false, true, nil
	}

	// A fresh entry in the same instrument supersedes the wallet's
	// previous exposure there (zero-crossing or reversal).
	if err := ing.supersedeReversed(ctx, wallet, raw.Instrument, direction); err != nil {
		return false, false, err
	}

	pos := &domain.Position{
		Wallet:         wallet,
		Instrument:     raw.Instrument,
		Direction:      direction,
		EntryPrice:     entryPrice,
		EntryTime:      entryTime,
		Size:           raw.Quantity(),
		Leverage:       raw.Leverage,
		FundingRate:    raw.FundingRate,
		IdempotencyKey: key,
	}

	if err := ing.positions.InsertWithKey(ctx, pos); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Lost a race with a concurrent ingestion of the same key
			return false, true, nil
		}
		return false, false, fmt.Errorf("persist position: %w", err)
	}

	event := domain.PositionOpenEvent{
		Wallet:         wallet,
		Instrument:     raw.Instrument,
		Direction:      direction,
		EntryPrice:     entryPrice,
		EntryTime:      entryTime,
		Size:           raw.Quantity(),
		Leverage:       raw.Leverage,
		IdempotencyKey: key,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return false, false, fmt.Errorf("marshal event: %w", err)
	}

	if err := ing.publisher.Publish(ctx, queue.StreamPositionsOpen, payload); err != nil {
		// Position is already persisted; redelivery is idempotent by key,
		// so a lost publish costs one detection trigger, not correctness.
		ing.logger.Printf("[ingest] wallet=%s key=%s publish failed: %v", wallet, key, err)
	}

	return true, false, nil
}

// supersedeReversed marks the wallet's opposite-direction exposure in the
// instrument as superseded before the new entry is counted.
func (ing *Ingestor) supersedeReversed(ctx context.Context, wallet, instrument string, direction domain.Direction) error {
	open, err := ing.positions.GetOpenByWallet(ctx, wallet)
	if err != nil {
		return fmt.Errorf("load open positions: %w", err)
	}

	for _, p := range open {
		if p.Instrument == instrument && p.Direction != direction {
			if err := ing.positions.Supersede(ctx, wallet, instrument); err != nil {
				return fmt.Errorf("supersede reversed exposure: %w", err)
			}
			return nil
		}
	}
	return nil
}

// supersedeFlattened closes stored open positions that left the wallet's
// snapshot. Only called with a genuine snapshot: provider unavailability
// returns before this point, so an empty slice really means flat.
func (ing *Ingestor) supersedeFlattened(ctx context.Context, wallet string, snapshot []domain.RawPosition) error {
	open, err := ing.positions.GetOpenByWallet(ctx, wallet)
	if err != nil {
		return fmt.Errorf("load open positions: %w", err)
	}
	if len(open) == 0 {
		return nil
	}

	live := make(map[string]bool, len(snapshot))
	for _, raw := range snapshot {
		if raw.SizeSigned != 0 {
			live[raw.Instrument] = true
		}
	}

	for _, p := range open {
		if live[p.Instrument] {
			continue
		}
		if err := ing.positions.Supersede(ctx, wallet, p.Instrument); err != nil {
			return fmt.Errorf("supersede flattened exposure: %w", err)
		}
		ing.logger.Printf("[ingest] wallet=%s instrument=%s exposure flattened, superseding", wallet, p.Instrument)
	}
	return nil
}

// mostRecentMatchingFill returns the newest fill with the same instrument
// and implied direction, or nil.
func mostRecentMatchingFill(fills []domain.Fill, instrument string, direction domain.Direction) *domain.Fill {
	var best *domain.Fill
	for i := range fills {
		f := &fills[i]
		if f.Instrument != instrument || f.Direction() != direction {
			continue
		}
		if best == nil || f.Timestamp >= best.Timestamp {
			best = f
		}
	}
	return best
}
