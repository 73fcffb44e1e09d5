package provider

import (
	"context"
	"errors"

	"perp-signal-engine/internal/domain"
)

// ErrUnavailable signals that the provider is temporarily unreachable or
// returned no usable answer. Distinct from an empty slice, which means
// "genuinely no data". Callers skip the unit of work and retry later.
var ErrUnavailable = errors.New("provider temporarily unavailable")

// Provider supplies wallet positions, fill history, and market data.
type Provider interface {
	// OpenPositions retrieves the wallet's current position snapshot.
	// An empty slice means the wallet has no open positions.
	OpenPositions(ctx context.Context, wallet string) ([]domain.RawPosition, error)

	// RecentFills retrieves the wallet's recent executions, most recent last.
	RecentFills(ctx context.Context, wallet string) ([]domain.Fill, error)

	// MarkPrice retrieves the current mark price for an instrument.
	MarkPrice(ctx context.Context, instrument string) (float64, error)

	// FundingRate retrieves the current funding rate for an instrument.
	FundingRate(ctx context.Context, instrument string) (float64, error)
}

// PriceSource is the mark-price subset of Provider. Sweep price resolution
// composes several sources in priority order, see Chain.
type PriceSource interface {
	// MarkPrice retrieves the current mark price for an instrument.
	MarkPrice(ctx context.Context, instrument string) (float64, error)

	// Name identifies the source in logs and metrics.
	Name() string
}
