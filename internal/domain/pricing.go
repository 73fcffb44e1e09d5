package domain

// StopPrice derives the absolute stop-loss price from the reference price.
// stopLossPct is strictly negative. For LONG the stop sits below the
// reference; for SHORT, above it.
func StopPrice(reference, stopLossPct float64, d Direction) float64 {
	if d == DirectionShort {
		return reference * (1 - stopLossPct/100)
	}
	return reference * (1 + stopLossPct/100)
}

// TargetPrice derives one take-profit rung's absolute price from the
// reference price. targetPct is positive. For LONG the rung sits above
// the reference; for SHORT, below it.
func TargetPrice(reference, targetPct float64, d Direction) float64 {
	if d == DirectionShort {
		return reference * (1 - targetPct/100)
	}
	return reference * (1 + targetPct/100)
}
