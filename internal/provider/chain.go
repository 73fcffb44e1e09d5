package provider

import (
	"context"
	"fmt"
	"log"
)

// Chain resolves a mark price by trying sources in priority order:
// typically the WebSocket cache first, then the primary REST source,
// then the fallback exchange. Any per-source failure moves on to the
// next source; only total failure surfaces as ErrUnavailable, which the
// sweep treats as "skip this instrument for the cycle".
type Chain struct {
	sources []PriceSource
	logger  *log.Logger
}

// NewChain creates a price chain over the given sources.
func NewChain(logger *log.Logger, sources ...PriceSource) *Chain {
	if logger == nil {
		logger = log.Default()
	}
	return &Chain{sources: sources, logger: logger}
}

// Compile-time interface check.
var _ PriceSource = (*Chain)(nil)

// Name identifies the source in logs and metrics.
func (c *Chain) Name() string {
	return "chain"
}

// MarkPrice returns the first usable price across the sources.
func (c *Chain) MarkPrice(ctx context.Context, instrument string) (float64, error) {
	if len(c.sources) == 0 {
		return 0, fmt.Errorf("%w: no price sources configured", ErrUnavailable)
	}

	var lastErr error
	for _, src := range c.sources {
		price, err := src.MarkPrice(ctx, instrument)
		if err == nil {
			return price, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		c.logger.Printf("[price] source=%s instrument=%s unavailable: %v", src.Name(), instrument, err)
		lastErr = err
	}

	return 0, fmt.Errorf("%w: all sources failed for %s: %v", ErrUnavailable, instrument, lastErr)
}
