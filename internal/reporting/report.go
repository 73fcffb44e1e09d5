package reporting

import "time"

// Report is the operator-facing performance snapshot.
type Report struct {
	// Metadata
	GeneratedAt    time.Time
	ActiveCount    int
	TimeframeCount int
	ClosedLastWeek int

	// Per-bucket aggregates, one row per retained timeframe that has data
	Timeframes []TimeframeRow

	// Currently OPEN and PARTIAL_TP signals
	ActiveSignals []ActiveSignalRow

	// Signals closed inside the trailing week, newest first
	RecentCloses []CloseRow

	// Per-wallet participation across all closed signals, best PnL first
	Wallets []WalletRow
}

// TimeframeRow is one aggregate bucket.
type TimeframeRow struct {
	Timeframe    string
	Signals      int
	Wins         int
	Losses       int
	Partials     int
	WinRate      float64
	TotalPnL     float64
	MeanPnL      float64
	MedianPnL    float64
	TotalFunding float64
	MaxDrawdown  float64
	AvgDuration  time.Duration
}

// ActiveSignalRow is one open signal.
type ActiveSignalRow struct {
	SignalID       string
	Instrument     string
	Direction      string
	Status         string
	ReferencePrice float64
	Participants   int
	TargetsHit     int
	TargetsTotal   int
	Age            time.Duration
}

// WalletRow aggregates one wallet's participation in closed signals.
// PnL is attributed in full to every participant: it measures how good
// the signals a wallet joins are, not the wallet's own book.
type WalletRow struct {
	Wallet   string
	Signals  int
	Wins     int
	Losses   int
	Partials int
	WinRate  float64
	TotalPnL float64
}

// CloseRow is one recently closed signal.
type CloseRow struct {
	SignalID    string
	Outcome     string
	PnL         float64
	FundingCost float64
	ExitPrice   float64
	Duration    time.Duration
	ClosedAt    int64 // Unix ms
}
