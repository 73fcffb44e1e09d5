package domain

// Outcome classifies a closed signal.
type Outcome string

// Outcome constants
const (
	OutcomeWin     Outcome = "WIN"
	OutcomeLoss    Outcome = "LOSS"
	OutcomePartial Outcome = "PARTIAL"
)

// Timeframe is a retained aggregation bucket for performance records.
type Timeframe string

// Timeframe constants
const (
	TimeframeDaily   Timeframe = "DAILY"
	TimeframeWeekly  Timeframe = "WEEKLY"
	TimeframeMonthly Timeframe = "MONTHLY"
	TimeframeAllTime Timeframe = "ALL_TIME"
)

// RetainedTimeframes lists every bucket a closing signal is recorded under.
// Aggregates are computed per bucket independently and must not leak state
// across buckets.
var RetainedTimeframes = []Timeframe{
	TimeframeDaily,
	TimeframeWeekly,
	TimeframeMonthly,
	TimeframeAllTime,
}

// WindowMs returns the trailing window covered by the bucket in
// milliseconds, or 0 for ALL_TIME.
func (tf Timeframe) WindowMs() int64 {
	switch tf {
	case TimeframeDaily:
		return 24 * 3600 * 1000
	case TimeframeWeekly:
		return 7 * 24 * 3600 * 1000
	case TimeframeMonthly:
		return 30 * 24 * 3600 * 1000
	}
	return 0
}

// PerformanceRecord is the outcome snapshot for a (signal, timeframe) pair,
// computed once at close time. Derived data, never hand-edited.
type PerformanceRecord struct {
	SignalID    string
	Timeframe   Timeframe
	Outcome     Outcome
	PnL         float64 // per formula in internal/performance
	FundingCost float64 // always-cost funding approximation component
	ExitPrice   float64
	DurationMs  int64   // open-to-close duration
	MaxDrawdown float64 // worst adverse excursion as negative percent
	ComputedAt  int64   // Unix ms
}
