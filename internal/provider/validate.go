package provider

import (
	"fmt"
	"math"

	"perp-signal-engine/internal/domain"
)

// Boundary validation. Provider payloads are loosely typed; everything
// downstream only ever sees values that passed these checks. Invalid
// payloads are rejected here, never propagated.

// validPrice reports whether v is a finite, strictly positive price.
func validPrice(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

// validRate reports whether v is a finite funding rate.
func validRate(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// validateRawPosition checks a snapshot entry before it enters the pipeline.
func validateRawPosition(p *domain.RawPosition) error {
	if p.Instrument == "" {
		return fmt.Errorf("position missing instrument")
	}
	if math.IsNaN(p.SizeSigned) || math.IsInf(p.SizeSigned, 0) || p.SizeSigned == 0 {
		return fmt.Errorf("position %s: invalid signed size %v", p.Instrument, p.SizeSigned)
	}
	if !validPrice(p.EntryPrice) {
		return fmt.Errorf("position %s: invalid entry price %v", p.Instrument, p.EntryPrice)
	}
	if p.Leverage < 1 || p.Leverage > 100 {
		return fmt.Errorf("position %s: leverage %d out of range", p.Instrument, p.Leverage)
	}
	if !validRate(p.FundingRate) {
		return fmt.Errorf("position %s: invalid funding rate %v", p.Instrument, p.FundingRate)
	}
	if p.Timestamp <= 0 {
		return fmt.Errorf("position %s: invalid timestamp %d", p.Instrument, p.Timestamp)
	}
	return nil
}

// validateFill checks one execution record before it enters the pipeline.
func validateFill(f *domain.Fill) error {
	if f.Instrument == "" {
		return fmt.Errorf("fill missing instrument")
	}
	if f.Side != domain.FillSideBuy && f.Side != domain.FillSideSell {
		return fmt.Errorf("fill %s: unknown side %q", f.Instrument, f.Side)
	}
	if !validPrice(f.Price) {
		return fmt.Errorf("fill %s: invalid price %v", f.Instrument, f.Price)
	}
	if math.IsNaN(f.Size) || math.IsInf(f.Size, 0) || f.Size <= 0 {
		return fmt.Errorf("fill %s: invalid size %v", f.Instrument, f.Size)
	}
	if f.Timestamp <= 0 {
		return fmt.Errorf("fill %s: invalid timestamp %d", f.Instrument, f.Timestamp)
	}
	return nil
}
