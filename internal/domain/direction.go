package domain

// Direction is the side of a perpetual futures position.
type Direction string

// Direction constants
const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// Multiplier returns +1 for LONG and -1 for SHORT.
// Used as the sign of the price delta in PnL computation.
func (d Direction) Multiplier() float64 {
	if d == DirectionShort {
		return -1
	}
	return 1
}
