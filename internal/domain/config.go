package domain

import (
	"fmt"
	"time"
)

// EngineConfig is the process-wide tunable state of the signal engine.
// Read by the ingestor and detector on each cycle; mutated only through
// ConfigStore.Update after Validate.
type EngineConfig struct {
	MinWalletQuorum  int           // distinct wallets required to promote a window
	ConsensusWindow  time.Duration // trailing grouping window per (instrument, direction)
	SignalCooldown   time.Duration // minimum spacing between signals per (instrument, direction)
	DefaultStopLoss  float64       // percent, strictly negative, > -50
	DefaultTargets   []float64     // ordered take-profit percents, each in (0, 100]
	PollInterval     time.Duration // wallet poll / sweep interval
	MinTradeSize     float64       // notional floor for counting a position
	MinLeverage      int           // leverage floor for counting a position
	InstrumentAllow  []string      // when non-empty, membership is required
	InstrumentDeny   []string      // always short-circuits processing
	UpdatedAt        int64         // Unix ms
}

// DefaultEngineConfig returns the engine defaults.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		MinWalletQuorum: 3,
		ConsensusWindow: 15 * time.Minute,
		SignalCooldown:  5 * time.Minute,
		DefaultStopLoss: -2.5,
		DefaultTargets:  []float64{2.0, 3.5, 5.0},
		PollInterval:    time.Minute,
		MinTradeSize:    1000,
		MinLeverage:     1,
	}
}

// Validate checks every tunable against its allowed range.
func (c *EngineConfig) Validate() error {
	if c.MinWalletQuorum < 2 {
		return fmt.Errorf("min wallet quorum must be >= 2, got %d", c.MinWalletQuorum)
	}
	if c.ConsensusWindow <= 0 {
		return fmt.Errorf("consensus window must be positive, got %v", c.ConsensusWindow)
	}
	if c.SignalCooldown < 0 {
		return fmt.Errorf("signal cooldown must be non-negative, got %v", c.SignalCooldown)
	}
	if c.DefaultStopLoss >= 0 || c.DefaultStopLoss <= -50 {
		return fmt.Errorf("default stop loss must be in (-50, 0), got %v", c.DefaultStopLoss)
	}
	if len(c.DefaultTargets) == 0 {
		return fmt.Errorf("default targets must not be empty")
	}
	prev := 0.0
	for i, pct := range c.DefaultTargets {
		if pct <= 0 || pct > 100 {
			return fmt.Errorf("target %d must be in (0, 100], got %v", i, pct)
		}
		if pct <= prev {
			return fmt.Errorf("targets must be strictly ascending, got %v at index %d", pct, i)
		}
		prev = pct
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.MinTradeSize < 0 {
		return fmt.Errorf("min trade size must be non-negative, got %v", c.MinTradeSize)
	}
	if c.MinLeverage < 1 || c.MinLeverage > 100 {
		return fmt.Errorf("min leverage must be in [1, 100], got %d", c.MinLeverage)
	}
	return nil
}

// InstrumentAllowed applies the deny list first, then the allow list when
// it is non-empty.
func (c *EngineConfig) InstrumentAllowed(instrument string) bool {
	for _, d := range c.InstrumentDeny {
		if d == instrument {
			return false
		}
	}
	if len(c.InstrumentAllow) == 0 {
		return true
	}
	for _, a := range c.InstrumentAllow {
		if a == instrument {
			return true
		}
	}
	return false
}
