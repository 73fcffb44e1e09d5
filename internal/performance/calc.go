package performance

import (
	"math"

	"perp-signal-engine/internal/domain"
)

// fundingIntervalHours is the assumed funding settlement interval.
const fundingIntervalHours = 8.0

// FundingCost approximates the funding paid over the signal's lifetime:
//
//	|rate| × size × entryPrice × ⌈durationHours / 8⌉
//
// Funding is always treated as a cost, never a credit, regardless of the
// rate's sign: the approximation is deliberately conservative.
func FundingCost(rate, size, entryPrice float64, durationMs int64) float64 {
	if durationMs <= 0 {
		return 0
	}
	hours := float64(durationMs) / float64(3600*1000)
	intervals := math.Ceil(hours / fundingIntervalHours)
	return math.Abs(rate) * size * entryPrice * intervals
}

// PnL computes realized profit for a closed position:
// directional price delta × size, minus the funding cost.
// Direction multiplier is +1 for LONG, -1 for SHORT.
func PnL(entryPrice, exitPrice, size float64, direction domain.Direction, fundingCost float64) float64 {
	return (exitPrice-entryPrice)*direction.Multiplier()*size - fundingCost
}

// ClassifyOutcome maps a terminal status to an outcome. Manual closes
// fall back to the sign of the PnL.
func ClassifyOutcome(status domain.SignalStatus, pnl float64) domain.Outcome {
	switch status {
	case domain.StatusSLHit:
		return domain.OutcomeLoss
	case domain.StatusTPHit:
		return domain.OutcomeWin
	case domain.StatusPartialTP:
		return domain.OutcomePartial
	}
	if pnl >= 0 {
		return domain.OutcomeWin
	}
	return domain.OutcomeLoss
}

// MaxDrawdown approximates the worst adverse excursion as a negative
// percent of the reference price. No price series is retained, so the
// only observable excursion is the close itself: a losing close reports
// its directional move, a winning close reports zero.
func MaxDrawdown(referencePrice, exitPrice float64, direction domain.Direction) float64 {
	if referencePrice <= 0 {
		return 0
	}
	movePct := (exitPrice - referencePrice) / referencePrice * 100 * direction.Multiplier()
	if movePct >= 0 {
		return 0
	}
	return movePct
}

// BuildRecords computes the close-time snapshot of a signal and emits one
// PerformanceRecord per retained timeframe bucket. status is the terminal
// (or partial, for manual close paths) status being recorded; fundingRate
// is the rate observed at close.
func BuildRecords(sig *domain.Signal, status domain.SignalStatus, exitPrice, fundingRate float64, closedAt int64) []*domain.PerformanceRecord {
	durationMs := closedAt - sig.CreatedAt
	if durationMs < 0 {
		durationMs = 0
	}

	fundingCost := FundingCost(fundingRate, sig.AvgSize, sig.ReferencePrice, durationMs)
	pnl := PnL(sig.ReferencePrice, exitPrice, sig.AvgSize, sig.Direction, fundingCost)
	outcome := ClassifyOutcome(status, pnl)
	drawdown := MaxDrawdown(sig.ReferencePrice, exitPrice, sig.Direction)

	records := make([]*domain.PerformanceRecord, 0, len(domain.RetainedTimeframes))
	for _, tf := range domain.RetainedTimeframes {
		records = append(records, &domain.PerformanceRecord{
			SignalID:    sig.SignalID,
			Timeframe:   tf,
			Outcome:     outcome,
			PnL:         pnl,
			FundingCost: fundingCost,
			ExitPrice:   exitPrice,
			DurationMs:  durationMs,
			MaxDrawdown: drawdown,
			ComputedAt:  closedAt,
		})
	}

	return records
}
