package domain

// SignalTransition is one discrete state change of a signal, recorded to
// the analytics log. Only transitions are persisted, never raw price series.
type SignalTransition struct {
	SignalID    string
	Instrument  string
	Direction   Direction
	FromStatus  SignalStatus
	ToStatus    SignalStatus
	Price       float64 // mark price that caused the transition
	TargetIndex int     // rung index for target hits, -1 otherwise
	OccurredAt  int64   // Unix ms
}
