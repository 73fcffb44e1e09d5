package monitor

import (
	"perp-signal-engine/internal/domain"
)

// StopHit reports whether the mark price breaches the stop. LONG stops
// trigger at or below the stop price, SHORT stops at or above it.
func StopHit(price, stopPrice float64, d domain.Direction) bool {
	if d == domain.DirectionShort {
		return price >= stopPrice
	}
	return price <= stopPrice
}

// TargetHit reports whether the mark price reaches a take-profit rung.
// LONG rungs trigger at or above the rung price, SHORT rungs at or below.
func TargetHit(price, targetPrice float64, d domain.Direction) bool {
	if d == domain.DirectionShort {
		return price <= targetPrice
	}
	return price >= targetPrice
}

// Evaluation is the outcome of checking one signal against one mark price.
type Evaluation struct {
	// Stop is set when the stop-loss level is breached. A breached stop
	// is terminal: no target rungs are reported alongside it.
	Stop bool
	// StopPrice is the absolute stop level the evaluation used.
	StopPrice float64
	// HitIndexes lists previously-unhit rung indexes the price reaches,
	// in ascending ladder order.
	HitIndexes []int
}

// Evaluate checks the signal's stop and target ladder against the mark
// price. The stop is evaluated first; when it fires, targets are not
// considered even if the same tick would also reach a rung.
func Evaluate(sig *domain.Signal, price float64) Evaluation {
	ev := Evaluation{
		StopPrice: domain.StopPrice(sig.ReferencePrice, sig.StopLossPct, sig.Direction),
	}

	if StopHit(price, ev.StopPrice, sig.Direction) {
		ev.Stop = true
		return ev
	}

	for _, tgt := range sig.Targets {
		if tgt.Hit {
			continue
		}
		if TargetHit(price, tgt.TargetPrice, sig.Direction) {
			ev.HitIndexes = append(ev.HitIndexes, tgt.Index)
		}
	}

	return ev
}
