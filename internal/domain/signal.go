package domain

// SignalStatus is the lifecycle state of a signal.
// Transitions are monotone forward: a signal never returns to OPEN.
type SignalStatus string

// Signal status constants
const (
	StatusOpen         SignalStatus = "OPEN"
	StatusPartialTP    SignalStatus = "PARTIAL_TP"
	StatusTPHit        SignalStatus = "TP_HIT"
	StatusSLHit        SignalStatus = "SL_HIT"
	StatusClosedManual SignalStatus = "CLOSED_MANUAL"
)

// Terminal reports whether the status closes the signal.
func (s SignalStatus) Terminal() bool {
	return s == StatusTPHit || s == StatusSLHit || s == StatusClosedManual
}

// statusRank orders statuses for monotone transition checks.
// PARTIAL_TP may advance to any terminal state; terminal states never change.
func statusRank(s SignalStatus) int {
	switch s {
	case StatusOpen:
		return 0
	case StatusPartialTP:
		return 1
	case StatusTPHit, StatusSLHit, StatusClosedManual:
		return 2
	}
	return -1
}

// CanTransition reports whether moving from -> to respects monotone ordering.
func CanTransition(from, to SignalStatus) bool {
	if from == to {
		return false
	}
	if from.Terminal() {
		return false
	}
	return statusRank(to) > statusRank(from)
}

// Signal is a detected collective entry for one (instrument, direction) pair.
// Corresponds to signals table in PostgreSQL.
type Signal struct {
	SignalID       string       // UUID, generated at creation
	Instrument     string       // instrument symbol
	Direction      Direction    // LONG | SHORT
	ReferencePrice float64      // size-weighted average entry across participants
	AvgSize        float64      // average trade size across participants
	StopLossPct    float64      // strictly negative, > -50
	Status         SignalStatus // lifecycle state
	CreatedAt      int64        // creation timestamp (ms)
	UpdatedAt      int64        // last-update timestamp (ms)

	Participants []*SignalParticipant
	Targets      []*SignalTarget
}

// SignalParticipant links a signal to one contributing wallet position.
// Unique per (signal_id, wallet).
type SignalParticipant struct {
	SignalID   string
	Wallet     string
	EntryPrice float64
	Size       float64
	Leverage   int
}

// SignalTarget is one take-profit rung of a signal's ordered ladder.
// Indexes are 0-based and dense. Hit flags are monotone: never un-set.
type SignalTarget struct {
	SignalID    string
	Index       int     // 0-based rung index, no gaps
	TargetPct   float64 // percent in (0, 100]
	TargetPrice float64 // absolute price derived from reference price
	Hit         bool
	HitAt       int64 // Unix ms, zero until hit
}

// AllTargetsHit reports whether every rung of the ladder has been hit.
func (s *Signal) AllTargetsHit() bool {
	if len(s.Targets) == 0 {
		return false
	}
	for _, t := range s.Targets {
		if !t.Hit {
			return false
		}
	}
	return true
}
