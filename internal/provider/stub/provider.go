package stub

import (
	"context"

	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/provider"
)

// Provider implements provider.Provider and provider.PriceSource for
// testing. Wallets and instruments absent from the maps behave as
// temporarily unavailable.
type Provider struct {
	Positions map[string][]domain.RawPosition
	Fills     map[string][]domain.Fill
	Prices    map[string]float64
	Funding   map[string]float64

	// Errs forces an error per method name ("OpenPositions", "RecentFills",
	// "MarkPrice", "FundingRate") when set.
	Errs map[string]error

	// Calls counts invocations per method name.
	Calls map[string]int
}

// NewProvider creates a new stub provider.
func NewProvider() *Provider {
	return &Provider{
		Positions: make(map[string][]domain.RawPosition),
		Fills:     make(map[string][]domain.Fill),
		Prices:    make(map[string]float64),
		Funding:   make(map[string]float64),
		Errs:      make(map[string]error),
		Calls:     make(map[string]int),
	}
}

// Name identifies the source in logs and metrics.
func (p *Provider) Name() string {
	return "stub"
}

// OpenPositions retrieves positions from the stub store.
func (p *Provider) OpenPositions(_ context.Context, wallet string) ([]domain.RawPosition, error) {
	p.Calls["OpenPositions"]++
	if err := p.Errs["OpenPositions"]; err != nil {
		return nil, err
	}
	positions, ok := p.Positions[wallet]
	if !ok {
		return nil, provider.ErrUnavailable
	}
	return positions, nil
}

// RecentFills retrieves fills from the stub store.
func (p *Provider) RecentFills(_ context.Context, wallet string) ([]domain.Fill, error) {
	p.Calls["RecentFills"]++
	if err := p.Errs["RecentFills"]; err != nil {
		return nil, err
	}
	fills, ok := p.Fills[wallet]
	if !ok {
		return nil, provider.ErrUnavailable
	}
	return fills, nil
}

// MarkPrice retrieves a price from the stub store.
func (p *Provider) MarkPrice(_ context.Context, instrument string) (float64, error) {
	p.Calls["MarkPrice"]++
	if err := p.Errs["MarkPrice"]; err != nil {
		return 0, err
	}
	price, ok := p.Prices[instrument]
	if !ok {
		return 0, provider.ErrUnavailable
	}
	return price, nil
}

// FundingRate retrieves a funding rate from the stub store.
func (p *Provider) FundingRate(_ context.Context, instrument string) (float64, error) {
	p.Calls["FundingRate"]++
	if err := p.Errs["FundingRate"]; err != nil {
		return 0, err
	}
	rate, ok := p.Funding[instrument]
	if !ok {
		return 0, provider.ErrUnavailable
	}
	return rate, nil
}

// AddPosition adds a snapshot entry for a wallet.
func (p *Provider) AddPosition(wallet string, pos domain.RawPosition) {
	p.Positions[wallet] = append(p.Positions[wallet], pos)
}

// AddFill adds a fill for a wallet.
func (p *Provider) AddFill(wallet string, fill domain.Fill) {
	p.Fills[wallet] = append(p.Fills[wallet], fill)
}

// SetPrice sets the mark price for an instrument.
func (p *Provider) SetPrice(instrument string, price float64) {
	p.Prices[instrument] = price
}
