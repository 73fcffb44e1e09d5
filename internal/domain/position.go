package domain

// Position represents one wallet's open directional exposure in one instrument.
// Corresponds to positions table in PostgreSQL.
type Position struct {
	ID             int64     // BIGSERIAL primary key
	Wallet         string    // wallet address (0x hex)
	Instrument     string    // instrument symbol, e.g. "ETH"
	Direction      Direction // LONG | SHORT
	EntryPrice     float64   // entry price, > 0
	EntryTime      int64     // entry timestamp, Unix ms
	Size           float64   // coin quantity, > 0; USD notional is Size * EntryPrice
	Leverage       int       // 1..100
	FundingRate    float64   // funding rate observed at ingestion
	IdempotencyKey string    // deterministic dedup key, see idhash
	Superseded     bool      // set when exposure reached zero or reversed
	CreatedAt      int64     // record creation timestamp (ms)
}

// RawPosition is the untyped provider snapshot of a wallet position before
// boundary validation. Anything downstream of the ingestor only ever sees
// the validated Position type.
type RawPosition struct {
	Instrument  string  `json:"coin"`
	SizeSigned  float64 `json:"szi"`         // signed size: >0 long, <0 short
	EntryPrice  float64 `json:"entryPx"`     // blended average entry price
	Leverage    int     `json:"leverage"`    // account leverage for the instrument
	FundingRate float64 `json:"fundingRate"` // current funding rate
	Timestamp   int64   `json:"time"`        // snapshot timestamp (ms)
}

// Fill is a single execution from a wallet's recent fill history.
// A matching fill's price/time is preferred over the snapshot's blended
// average entry price when anchoring a position-open event.
type Fill struct {
	Instrument string  `json:"coin"`
	Side       string  `json:"side"` // "B" buy | "A" sell (ask)
	Price      float64 `json:"px"`
	Size       float64 `json:"sz"`
	Timestamp  int64   `json:"time"` // Unix ms
}

// Fill side constants
const (
	FillSideBuy  = "B"
	FillSideSell = "A"
)

// Direction returns the position direction implied by the fill side.
func (f *Fill) Direction() Direction {
	if f.Side == FillSideSell {
		return DirectionShort
	}
	return DirectionLong
}

// Direction returns the position direction implied by the signed size.
func (r *RawPosition) Direction() Direction {
	if r.SizeSigned < 0 {
		return DirectionShort
	}
	return DirectionLong
}

// Quantity returns the absolute coin quantity of the snapshot.
func (r *RawPosition) Quantity() float64 {
	if r.SizeSigned < 0 {
		return -r.SizeSigned
	}
	return r.SizeSigned
}
