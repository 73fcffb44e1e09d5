package reporting

import (
	"context"
	"errors"
	"sort"
	"time"

	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/performance"
	"perp-signal-engine/internal/storage"
)

// recentWindow bounds the "recent closes" section.
const recentWindow = 7 * 24 * time.Hour

// Generator produces reports from stored signals and performance records.
type Generator struct {
	signals storage.SignalStore
	records storage.PerformanceStore
	now     func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(signals storage.SignalStore, records storage.PerformanceStore) *Generator {
	return &Generator{
		signals: signals,
		records: records,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a complete performance report as of the current clock.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	asOf := g.now()
	asOfMs := asOf.UnixMilli()

	timeframes, err := g.generateTimeframes(ctx, asOfMs)
	if err != nil {
		return nil, err
	}

	active, err := g.generateActive(ctx, asOfMs)
	if err != nil {
		return nil, err
	}

	recent, err := g.generateRecentCloses(ctx, asOfMs)
	if err != nil {
		return nil, err
	}

	wallets, err := g.generateWallets(ctx)
	if err != nil {
		return nil, err
	}

	return &Report{
		GeneratedAt:    asOf,
		ActiveCount:    len(active),
		TimeframeCount: len(timeframes),
		ClosedLastWeek: len(recent),
		Timeframes:     timeframes,
		ActiveSignals:  active,
		RecentCloses:   recent,
		Wallets:        wallets,
	}, nil
}

// generateTimeframes aggregates every retained bucket. Empty buckets are
// omitted rather than rendered as zero rows.
func (g *Generator) generateTimeframes(ctx context.Context, asOf int64) ([]TimeframeRow, error) {
	agg := performance.NewAggregator(g.records)

	var rows []TimeframeRow
	for _, tf := range domain.RetainedTimeframes {
		summary, err := agg.ComputeSummary(ctx, tf, asOf)
		if err != nil {
			if errors.Is(err, performance.ErrNoRecords) {
				continue
			}
			return nil, err
		}

		rows = append(rows, TimeframeRow{
			Timeframe:    string(summary.Timeframe),
			Signals:      summary.Signals,
			Wins:         summary.Wins,
			Losses:       summary.Losses,
			Partials:     summary.Partials,
			WinRate:      summary.WinRate,
			TotalPnL:     summary.TotalPnL,
			MeanPnL:      summary.MeanPnL,
			MedianPnL:    summary.MedianPnL,
			TotalFunding: summary.TotalFunding,
			MaxDrawdown:  summary.MaxDrawdown,
			AvgDuration:  time.Duration(summary.AvgDuration) * time.Millisecond,
		})
	}

	return rows, nil
}

// generateActive builds rows for the currently open signals.
func (g *Generator) generateActive(ctx context.Context, asOf int64) ([]ActiveSignalRow, error) {
	active, err := g.signals.GetActive(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]ActiveSignalRow, 0, len(active))
	for _, sig := range active {
		hit := 0
		for _, tgt := range sig.Targets {
			if tgt.Hit {
				hit++
			}
		}

		age := time.Duration(asOf-sig.CreatedAt) * time.Millisecond
		if age < 0 {
			age = 0
		}

		rows = append(rows, ActiveSignalRow{
			SignalID:       sig.SignalID,
			Instrument:     sig.Instrument,
			Direction:      string(sig.Direction),
			Status:         string(sig.Status),
			ReferencePrice: sig.ReferencePrice,
			Participants:   len(sig.Participants),
			TargetsHit:     hit,
			TargetsTotal:   len(sig.Targets),
			Age:            age,
		})
	}

	return rows, nil
}

// generateRecentCloses lists closes inside the trailing week, newest first.
// The ALL_TIME bucket holds exactly one record per closed signal, so it
// doubles as the close log.
func (g *Generator) generateRecentCloses(ctx context.Context, asOf int64) ([]CloseRow, error) {
	since := asOf - recentWindow.Milliseconds()

	records, err := g.records.GetByTimeframe(ctx, domain.TimeframeAllTime, since)
	if err != nil {
		return nil, err
	}

	rows := make([]CloseRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, CloseRow{
			SignalID:    rec.SignalID,
			Outcome:     string(rec.Outcome),
			PnL:         rec.PnL,
			FundingCost: rec.FundingCost,
			ExitPrice:   rec.ExitPrice,
			Duration:    time.Duration(rec.DurationMs) * time.Millisecond,
			ClosedAt:    rec.ComputedAt,
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ClosedAt != rows[j].ClosedAt {
			return rows[i].ClosedAt > rows[j].ClosedAt
		}
		return rows[i].SignalID < rows[j].SignalID
	})

	return rows, nil
}

// generateWallets tallies per-wallet participation across every closed
// signal, again via the ALL_TIME bucket. The closing PnL of a signal is
// attributed to each of its participants.
func (g *Generator) generateWallets(ctx context.Context) ([]WalletRow, error) {
	records, err := g.records.GetByTimeframe(ctx, domain.TimeframeAllTime, 0)
	if err != nil {
		return nil, err
	}

	tally := make(map[string]*WalletRow)
	for _, rec := range records {
		sig, err := g.signals.GetByID(ctx, rec.SignalID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}

		for _, p := range sig.Participants {
			row, ok := tally[p.Wallet]
			if !ok {
				row = &WalletRow{Wallet: p.Wallet}
				tally[p.Wallet] = row
			}
			row.Signals++
			row.TotalPnL += rec.PnL
			switch rec.Outcome {
			case domain.OutcomeWin:
				row.Wins++
			case domain.OutcomeLoss:
				row.Losses++
			case domain.OutcomePartial:
				row.Partials++
			}
		}
	}

	rows := make([]WalletRow, 0, len(tally))
	for _, row := range tally {
		if row.Signals > 0 {
			row.WinRate = float64(row.Wins) / float64(row.Signals)
		}
		rows = append(rows, *row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalPnL != rows[j].TotalPnL {
			return rows[i].TotalPnL > rows[j].TotalPnL
		}
		return rows[i].Wallet < rows[j].Wallet
	})

	return rows, nil
}
