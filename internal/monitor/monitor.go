package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/performance"
	"perp-signal-engine/internal/provider"
	"perp-signal-engine/internal/queue"
	"perp-signal-engine/internal/storage"
)

// ErrAlreadyClosed is returned by CloseManual when the signal is already
// in a terminal state.
var ErrAlreadyClosed = errors.New("signal already closed")

// FundingSource supplies the funding rate observed at close time.
type FundingSource interface {
	FundingRate(ctx context.Context, instrument string) (float64, error)
}

// Monitor sweeps active signals against mark prices and advances their
// lifecycle. Every write is monotone and conditional, so overlapping or
// re-run sweeps converge on the same state instead of double-applying.
type Monitor struct {
	signals     storage.SignalStore
	records     storage.PerformanceStore
	transitions storage.TransitionStore
	prices      provider.PriceSource
	funding     FundingSource
	publisher   queue.Publisher
	logger      *log.Logger

	// now is injectable for tests
	now func() time.Time
}

// Options configures the Monitor.
type Options struct {
	// Funding supplies the rate used for close-time funding cost.
	// When nil, funding cost is computed with a zero rate.
	Funding FundingSource
	// Transitions receives the analytics transition log. Optional;
	// failures there never block the sweep.
	Transitions storage.TransitionStore
	// Logger defaults to log.Default().
	Logger *log.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// New creates a Monitor.
func New(signals storage.SignalStore, records storage.PerformanceStore, prices provider.PriceSource, publisher queue.Publisher, opts *Options) *Monitor {
	m := &Monitor{
		signals:   signals,
		records:   records,
		prices:    prices,
		publisher: publisher,
		logger:    log.Default(),
		now:       time.Now,
	}
	if opts != nil {
		m.funding = opts.Funding
		m.transitions = opts.Transitions
		if opts.Logger != nil {
			m.logger = opts.Logger
		}
		if opts.Now != nil {
			m.now = opts.Now
		}
	}
	return m
}

// SweepStats summarizes one sweep pass.
type SweepStats struct {
	Signals       int // active signals considered
	Skipped       int // signals skipped because no price source answered
	TargetsHit    int // rungs newly marked this pass
	StopsHit      int // signals closed at stop-loss this pass
	Completed     int // signals closed with the full ladder hit this pass
	PriceFailures int // instruments with no usable mark price
}

// SweepOnce evaluates every active signal once. Price unavailability for
// an instrument fails open: its signals are skipped and retried on the
// next sweep, never force-closed.
func (m *Monitor) SweepOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	active, err := m.signals.GetActive(ctx)
	if err != nil {
		return stats, fmt.Errorf("load active signals: %w", err)
	}
	stats.Signals = len(active)
	if len(active) == 0 {
		return stats, nil
	}

	// One mark-price lookup per instrument per sweep
	prices := make(map[string]float64)
	failed := make(map[string]bool)
	for _, sig := range active {
		if _, done := prices[sig.Instrument]; done || failed[sig.Instrument] {
			continue
		}
		price, err := m.prices.MarkPrice(ctx, sig.Instrument)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			m.logger.Printf("[monitor] instrument=%s no mark price, skipping: %v", sig.Instrument, err)
			failed[sig.Instrument] = true
			stats.PriceFailures++
			continue
		}
		prices[sig.Instrument] = price
	}

	var logged []*domain.SignalTransition
	for _, sig := range active {
		price, ok := prices[sig.Instrument]
		if !ok {
			stats.Skipped++
			continue
		}
		if err := m.sweepSignal(ctx, sig, price, &stats, &logged); err != nil {
			return stats, err
		}
	}

	if m.transitions != nil && len(logged) > 0 {
		if err := m.transitions.InsertBulk(ctx, logged); err != nil {
			m.logger.Printf("[monitor] transition log append failed: %v", err)
		}
	}

	return stats, nil
}

// sweepSignal applies one evaluation to one signal.
func (m *Monitor) sweepSignal(ctx context.Context, sig *domain.Signal, price float64, stats *SweepStats, logged *[]*domain.SignalTransition) error {
	now := m.now().UnixMilli()
	ev := Evaluate(sig, price)

	if ev.Stop {
		applied, err := m.signals.TransitionStatus(ctx, sig.SignalID, domain.StatusSLHit, now)
		if err != nil {
			return fmt.Errorf("transition %s to SL_HIT: %w", sig.SignalID, err)
		}
		if !applied {
			return nil
		}
		stats.StopsHit++
		*logged = append(*logged, m.transition(sig, domain.StatusSLHit, price, -1, now))
		m.logger.Printf("[monitor] signal=%s instrument=%s stop hit at %.4f (stop %.4f)",
			sig.SignalID, sig.Instrument, price, ev.StopPrice)

		if err := m.recordClose(ctx, sig, domain.StatusSLHit, price, now); err != nil {
			return err
		}
		m.notify(ctx, sig, domain.NotifySLHit, price, -1, now)
		return nil
	}

	for _, index := range ev.HitIndexes {
		applied, err := m.signals.MarkTargetHit(ctx, sig.SignalID, index, now)
		if err != nil {
			return fmt.Errorf("mark target %d of %s: %w", index, sig.SignalID, err)
		}
		if !applied {
			// A concurrent sweep already recorded this rung
			continue
		}
		stats.TargetsHit++
		for _, tgt := range sig.Targets {
			if tgt.Index == index {
				tgt.Hit = true
				tgt.HitAt = now
			}
		}
		m.logger.Printf("[monitor] signal=%s instrument=%s target %d hit at %.4f",
			sig.SignalID, sig.Instrument, index, price)
		m.notify(ctx, sig, domain.NotifyTargetHit, price, index, now)
	}

	// Checked even when no rung was newly hit this pass: a crash or store
	// error between the last rung mark and the status write leaves a
	// fully-hit ladder in PARTIAL_TP, and this is where it converges.
	if sig.AllTargetsHit() {
		applied, err := m.signals.TransitionStatus(ctx, sig.SignalID, domain.StatusTPHit, now)
		if err != nil {
			return fmt.Errorf("transition %s to TP_HIT: %w", sig.SignalID, err)
		}
		if applied {
			stats.Completed++
			*logged = append(*logged, m.transition(sig, domain.StatusTPHit, price, -1, now))
			if err := m.recordClose(ctx, sig, domain.StatusTPHit, price, now); err != nil {
				return err
			}
			m.notify(ctx, sig, domain.NotifyTPHit, price, -1, now)
		}
		return nil
	}

	if len(ev.HitIndexes) == 0 {
		return nil
	}

	if sig.Status == domain.StatusOpen {
		applied, err := m.signals.TransitionStatus(ctx, sig.SignalID, domain.StatusPartialTP, now)
		if err != nil {
			return fmt.Errorf("transition %s to PARTIAL_TP: %w", sig.SignalID, err)
		}
		if applied {
			sig.Status = domain.StatusPartialTP
			*logged = append(*logged, m.transition(sig, domain.StatusPartialTP, price, ev.HitIndexes[0], now))
		}
	}

	return nil
}

// CloseManual force-closes one signal at the current mark price and
// records its outcome the same way a stop or full-ladder close would.
// Returns ErrAlreadyClosed if the signal reached a terminal state first.
func (m *Monitor) CloseManual(ctx context.Context, signalID string) error {
	sig, err := m.signals.GetByID(ctx, signalID)
	if err != nil {
		return fmt.Errorf("load signal %s: %w", signalID, err)
	}
	if sig.Status.Terminal() {
		return fmt.Errorf("%w: signal %s is %s", ErrAlreadyClosed, signalID, sig.Status)
	}

	price, err := m.prices.MarkPrice(ctx, sig.Instrument)
	if err != nil {
		return fmt.Errorf("mark price for %s: %w", sig.Instrument, err)
	}

	now := m.now().UnixMilli()
	applied, err := m.signals.TransitionStatus(ctx, signalID, domain.StatusClosedManual, now)
	if err != nil {
		return fmt.Errorf("transition %s to CLOSED_MANUAL: %w", signalID, err)
	}
	if !applied {
		// Lost the race with a concurrent sweep; the signal is closed either way.
		return fmt.Errorf("%w: signal %s closed concurrently", ErrAlreadyClosed, signalID)
	}

	m.logger.Printf("[monitor] signal=%s instrument=%s closed manually at %.4f",
		sig.SignalID, sig.Instrument, price)

	if err := m.recordClose(ctx, sig, domain.StatusClosedManual, price, now); err != nil {
		return err
	}
	m.notify(ctx, sig, domain.NotifyClosedManual, price, -1, now)

	if m.transitions != nil {
		row := []*domain.SignalTransition{m.transition(sig, domain.StatusClosedManual, price, -1, now)}
		if err := m.transitions.InsertBulk(ctx, row); err != nil {
			m.logger.Printf("[monitor] transition log append failed: %v", err)
		}
	}

	return nil
}

// recordClose writes the per-timeframe performance rows for a closing
// transition. Runs once per close: the caller only reaches here when its
// conditional status transition was the one that applied.
func (m *Monitor) recordClose(ctx context.Context, sig *domain.Signal, status domain.SignalStatus, exitPrice float64, closedAt int64) error {
	var rate float64
	if m.funding != nil {
		r, err := m.funding.FundingRate(ctx, sig.Instrument)
		if err != nil {
			m.logger.Printf("[monitor] signal=%s funding rate unavailable, assuming zero: %v", sig.SignalID, err)
		} else {
			rate = r
		}
	}

	records := performance.BuildRecords(sig, status, exitPrice, rate, closedAt)
	if err := m.records.InsertBulk(ctx, records); err != nil {
		return fmt.Errorf("persist performance for %s: %w", sig.SignalID, err)
	}
	return nil
}

// transition builds one analytics log row. FromStatus reflects the
// in-memory state before this sweep touched the signal.
func (m *Monitor) transition(sig *domain.Signal, to domain.SignalStatus, price float64, targetIndex int, at int64) *domain.SignalTransition {
	return &domain.SignalTransition{
		SignalID:    sig.SignalID,
		Instrument:  sig.Instrument,
		Direction:   sig.Direction,
		FromStatus:  sig.Status,
		ToStatus:    to,
		Price:       price,
		TargetIndex: targetIndex,
		OccurredAt:  at,
	}
}

// notify publishes one lifecycle notification. Best-effort.
func (m *Monitor) notify(ctx context.Context, sig *domain.Signal, eventType string, price float64, targetIndex int, at int64) {
	event := domain.NotificationEvent{
		Type:           eventType,
		SignalID:       sig.SignalID,
		Instrument:     sig.Instrument,
		Direction:      sig.Direction,
		Price:          price,
		ReferencePrice: sig.ReferencePrice,
		Timestamp:      at,
	}
	if targetIndex >= 0 {
		event.TargetIndex = targetIndex
	}
	switch eventType {
	case domain.NotifyTPHit, domain.NotifySLHit, domain.NotifyClosedManual:
		// Headline PnL before funding; the persisted record carries the
		// funding-adjusted figure.
		pnl := performance.PnL(sig.ReferencePrice, price, sig.AvgSize, sig.Direction, 0)
		status := domain.StatusTPHit
		switch eventType {
		case domain.NotifySLHit:
			status = domain.StatusSLHit
		case domain.NotifyClosedManual:
			status = domain.StatusClosedManual
		}
		event.PnL = pnl
		event.Outcome = performance.ClassifyOutcome(status, pnl)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		m.logger.Printf("[monitor] signal=%s marshal notification failed: %v", sig.SignalID, err)
		return
	}
	if err := m.publisher.Publish(ctx, queue.StreamNotifications, payload); err != nil {
		m.logger.Printf("[monitor] signal=%s publish notification failed: %v", sig.SignalID, err)
	}
}
