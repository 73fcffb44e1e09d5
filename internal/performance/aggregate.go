package performance

import (
	"context"
	"errors"
	"sort"

	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/storage"
)

// ErrNoRecords is returned when no records are available for aggregation.
var ErrNoRecords = errors.New("no performance records available for aggregation")

// Summary is the aggregate statistics of one timeframe bucket.
type Summary struct {
	Timeframe    domain.Timeframe
	Signals      int
	Wins         int
	Losses       int
	Partials     int
	WinRate      float64 // wins / signals
	TotalPnL     float64
	MeanPnL      float64
	MedianPnL    float64
	TotalFunding float64
	MaxDrawdown  float64 // worst single-signal drawdown (most negative)
	AvgDuration  int64   // mean open-to-close duration, ms
}

// Aggregator computes per-bucket summaries from performance records.
type Aggregator struct {
	store storage.PerformanceStore
}

// NewAggregator creates a new performance aggregator.
func NewAggregator(store storage.PerformanceStore) *Aggregator {
	return &Aggregator{store: store}
}

// ComputeSummary aggregates one timeframe bucket at asOf. The bucket's
// trailing window determines which records participate; ALL_TIME takes
// everything. Buckets never share state.
func (a *Aggregator) ComputeSummary(ctx context.Context, tf domain.Timeframe, asOf int64) (*Summary, error) {
	since := int64(0)
	if window := tf.WindowMs(); window > 0 {
		since = asOf - window
	}

	records, err := a.store.GetByTimeframe(ctx, tf, since)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoRecords
	}

	return Summarize(tf, records), nil
}

// Summarize computes the aggregate of one bucket's records.
func Summarize(tf domain.Timeframe, records []*domain.PerformanceRecord) *Summary {
	s := &Summary{Timeframe: tf, Signals: len(records)}
	if len(records) == 0 {
		return s
	}

	pnls := make([]float64, 0, len(records))
	var totalDuration int64

	for _, r := range records {
		switch r.Outcome {
		case domain.OutcomeWin:
			s.Wins++
		case domain.OutcomeLoss:
			s.Losses++
		case domain.OutcomePartial:
			s.Partials++
		}

		s.TotalPnL += r.PnL
		s.TotalFunding += r.FundingCost
		totalDuration += r.DurationMs
		if r.MaxDrawdown < s.MaxDrawdown {
			s.MaxDrawdown = r.MaxDrawdown
		}
		pnls = append(pnls, r.PnL)
	}

	s.WinRate = float64(s.Wins) / float64(s.Signals)
	s.MeanPnL = s.TotalPnL / float64(s.Signals)
	s.MedianPnL = median(pnls)
	s.AvgDuration = totalDuration / int64(s.Signals)

	return s
}

// median returns the middle value; for even counts, the mean of the two
// middle values. Mutates its argument's order.
func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sort.Float64s(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}
