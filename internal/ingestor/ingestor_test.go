package ingestor

import (
	"context"
	"errors"
	"testing"
	"time"

	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/guard"
	"perp-signal-engine/internal/provider"
	"perp-signal-engine/internal/provider/stub"
	"perp-signal-engine/internal/queue"
	"perp-signal-engine/internal/storage/memory"
)

type fixture struct {
	ingestor  *Ingestor
	provider  *stub.Provider
	positions *memory.PositionStore
	queue     *queue.MemoryQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	p := stub.NewProvider()
	positions := memory.NewPositionStore()
	configs := memory.NewConfigStore()
	q := queue.NewMemoryQueue()

	cfg := domain.DefaultEngineConfig()
	cfg.UpdatedAt = 1700000000000
	if err := configs.Update(context.Background(), cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	g := guard.New(
		guard.WithMaxRetries(0),
		guard.WithRetryDelay(time.Millisecond),
	)

	return &fixture{
		ingestor:  New(p, positions, configs, q, &Options{Guard: g}),
		provider:  p,
		positions: positions,
		queue:     q,
	}
}

func ethLong(entryTime int64) domain.RawPosition {
	return domain.RawPosition{
		Instrument:  "ETH",
		SizeSigned:  1.5,
		EntryPrice:  2450.50,
		Leverage:    10,
		FundingRate: 0.0001,
		Timestamp:   entryTime,
	}
}

func TestIngestWallet_EmitsPositionOpenEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.provider.AddPosition("0xwallet1", ethLong(1700000000000))
	f.provider.Fills["0xwallet1"] = []domain.Fill{}

	res, err := f.ingestor.IngestWallet(ctx, "0xwallet1")
	if err != nil {
		t.Fatalf("IngestWallet: %v", err)
	}

	if res.Emitted != 1 {
		t.Fatalf("expected 1 emitted, got %+v", res)
	}
	if f.queue.Len(queue.StreamPositionsOpen) != 1 {
		t.Errorf("expected 1 queued event, got %d", f.queue.Len(queue.StreamPositionsOpen))
	}

	stored, err := f.positions.GetOpenByWallet(ctx, "0xwallet1")
	if err != nil {
		t.Fatalf("GetOpenByWallet: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 stored position, got %d", len(stored))
	}
	if stored[0].EntryPrice != 2450.50 {
		t.Errorf("expected snapshot entry price, got %v", stored[0].EntryPrice)
	}
}

func TestIngestWallet_RedeliveryIsSilentNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.provider.AddPosition("0xwallet1", ethLong(1700000000000))
	f.provider.Fills["0xwallet1"] = []domain.Fill{}

	first, err := f.ingestor.IngestWallet(ctx, "0xwallet1")
	if err != nil {
		t.Fatalf("first IngestWallet: %v", err)
	}
	second, err := f.ingestor.IngestWallet(ctx, "0xwallet1")
	if err != nil {
		t.Fatalf("second IngestWallet: %v", err)
	}

	if first.Emitted != 1 {
		t.Errorf("expected first pass to emit, got %+v", first)
	}
	if second.Emitted != 0 || second.Duplicate != 1 {
		t.Errorf("expected second pass to dedup, got %+v", second)
	}

	stored, _ := f.positions.GetOpenByWallet(ctx, "0xwallet1")
	if len(stored) != 1 {
		t.Errorf("expected 1 stored position after redelivery, got %d", len(stored))
	}
	if f.queue.Len(queue.StreamPositionsOpen) != 1 {
		t.Errorf("expected 1 queued event after redelivery, got %d", f.queue.Len(queue.StreamPositionsOpen))
	}
}

func TestIngestWallet_PrefersMostRecentMatchingFill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.provider.AddPosition("0xwallet1", ethLong(1700000300000))
	f.provider.Fills["0xwallet1"] = []domain.Fill{
		{Instrument: "ETH", Side: domain.FillSideBuy, Price: 2440.00, Size: 1.0, Timestamp: 1700000100000},
		{Instrument: "ETH", Side: domain.FillSideBuy, Price: 2455.00, Size: 0.5, Timestamp: 1700000200000},
		// Wrong direction and wrong instrument must not match
		{Instrument: "ETH", Side: domain.FillSideSell, Price: 2460.00, Size: 0.5, Timestamp: 1700000250000},
		{Instrument: "BTC", Side: domain.FillSideBuy, Price: 42100.00, Size: 0.1, Timestamp: 1700000260000},
	}

	res, err := f.ingestor.IngestWallet(ctx, "0xwallet1")
	if err != nil {
		t.Fatalf("IngestWallet: %v", err)
	}
	if res.Emitted != 1 {
		t.Fatalf("expected 1 emitted, got %+v", res)
	}

	stored, _ := f.positions.GetOpenByWallet(ctx, "0xwallet1")
	if len(stored) != 1 {
		t.Fatalf("expected 1 stored position, got %d", len(stored))
	}
	// The most recent matching fill anchors price and time
	if stored[0].EntryPrice != 2455.00 {
		t.Errorf("expected fill price 2455.00, got %v", stored[0].EntryPrice)
	}
	if stored[0].EntryTime != 1700000200000 {
		t.Errorf("expected fill time, got %d", stored[0].EntryTime)
	}
}

func TestIngestWallet_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	small := ethLong(1700000000000)
	small.Instrument = "PEPE"
	small.SizeSigned = 0.1
	small.EntryPrice = 10 // notional 1.0 < min trade size

	lowLev := ethLong(1700000000000)
	lowLev.Instrument = "SOL"
	lowLev.EntryPrice = 95000 // keep notional above the floor
	lowLev.Leverage = 1

	f.provider.AddPosition("0xwallet1", small)
	f.provider.AddPosition("0xwallet1", lowLev)
	f.provider.AddPosition("0xwallet1", ethLong(1700000000000))
	f.provider.Fills["0xwallet1"] = []domain.Fill{}

	// Raise the leverage floor so lowLev is dropped
	configs := memory.NewConfigStore()
	cfg := domain.DefaultEngineConfig()
	cfg.MinLeverage = 2
	cfg.InstrumentDeny = []string{"DOGE"}
	cfg.UpdatedAt = 1700000000000
	if err := configs.Update(ctx, cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	f.ingestor.config = configs

	denied := ethLong(1700000000000)
	denied.Instrument = "DOGE"
	f.provider.AddPosition("0xwallet1", denied)

	res, err := f.ingestor.IngestWallet(ctx, "0xwallet1")
	if err != nil {
		t.Fatalf("IngestWallet: %v", err)
	}

	if res.Emitted != 1 {
		t.Errorf("expected only the ETH position to emit, got %+v", res)
	}
	if res.Filtered != 3 {
		t.Errorf("expected 3 filtered, got %+v", res)
	}
}

func TestIngestWallet_AllowlistRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	configs := memory.NewConfigStore()
	cfg := domain.DefaultEngineConfig()
	cfg.InstrumentAllow = []string{"BTC"}
	cfg.UpdatedAt = 1700000000000
	if err := configs.Update(ctx, cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	f.ingestor.config = configs

	f.provider.AddPosition("0xwallet1", ethLong(1700000000000))
	f.provider.Fills["0xwallet1"] = []domain.Fill{}

	res, err := f.ingestor.IngestWallet(ctx, "0xwallet1")
	if err != nil {
		t.Fatalf("IngestWallet: %v", err)
	}
	if res.Emitted != 0 || res.Filtered != 1 {
		t.Errorf("expected ETH filtered by allowlist, got %+v", res)
	}
}

func TestIngestWallet_ReversalSupersedes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.provider.AddPosition("0xwallet1", ethLong(1700000000000))
	f.provider.Fills["0xwallet1"] = []domain.Fill{}

	if _, err := f.ingestor.IngestWallet(ctx, "0xwallet1"); err != nil {
		t.Fatalf("first IngestWallet: %v", err)
	}

	// The wallet flips SHORT in the same instrument
	short := ethLong(1700000600000)
	short.SizeSigned = -2.0
	f.provider.Positions["0xwallet1"] = []domain.RawPosition{short}

	res, err := f.ingestor.IngestWallet(ctx, "0xwallet1")
	if err != nil {
		t.Fatalf("second IngestWallet: %v", err)
	}
	if res.Emitted != 1 {
		t.Fatalf("expected reversal to emit, got %+v", res)
	}

	stored, _ := f.positions.GetOpenByWallet(ctx, "0xwallet1")
	if len(stored) != 1 {
		t.Fatalf("expected only the reversed position open, got %d", len(stored))
	}
	if stored[0].Direction != domain.DirectionShort {
		t.Errorf("expected SHORT, got %s", stored[0].Direction)
	}
}

func TestIngestWallet_FlattenedExposureSupersedes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.provider.AddPosition("0xwallet1", ethLong(1700000000000))
	f.provider.Fills["0xwallet1"] = []domain.Fill{}

	if _, err := f.ingestor.IngestWallet(ctx, "0xwallet1"); err != nil {
		t.Fatalf("first IngestWallet: %v", err)
	}

	// The wallet closes out: the next snapshot is genuinely empty
	f.provider.Positions["0xwallet1"] = []domain.RawPosition{}

	res, err := f.ingestor.IngestWallet(ctx, "0xwallet1")
	if err != nil {
		t.Fatalf("second IngestWallet: %v", err)
	}
	if res.Snapshot != 0 || res.Emitted != 0 {
		t.Errorf("expected an empty pass, got %+v", res)
	}

	stored, err := f.positions.GetOpenByWallet(ctx, "0xwallet1")
	if err != nil {
		t.Fatalf("GetOpenByWallet: %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("expected flattened exposure superseded, still open: %d", len(stored))
	}
}

func TestIngestWallet_PartialFlattenKeepsRemainingExposure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	btc := ethLong(1700000000000)
	btc.Instrument = "BTC"
	btc.EntryPrice = 42100.00
	f.provider.AddPosition("0xwallet1", ethLong(1700000000000))
	f.provider.AddPosition("0xwallet1", btc)
	f.provider.Fills["0xwallet1"] = []domain.Fill{}

	if _, err := f.ingestor.IngestWallet(ctx, "0xwallet1"); err != nil {
		t.Fatalf("first IngestWallet: %v", err)
	}

	// ETH closes out; BTC stays open (zero-size entries count as flat too)
	flatETH := ethLong(1700000600000)
	flatETH.SizeSigned = 0
	f.provider.Positions["0xwallet1"] = []domain.RawPosition{flatETH, btc}

	if _, err := f.ingestor.IngestWallet(ctx, "0xwallet1"); err != nil {
		t.Fatalf("second IngestWallet: %v", err)
	}

	stored, err := f.positions.GetOpenByWallet(ctx, "0xwallet1")
	if err != nil {
		t.Fatalf("GetOpenByWallet: %v", err)
	}
	if len(stored) != 1 || stored[0].Instrument != "BTC" {
		t.Fatalf("expected only BTC to stay open, got %+v", stored)
	}
}

func TestIngestWallet_ProviderUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Stub has no data for this wallet: snapshot is unavailable
	_, err := f.ingestor.IngestWallet(ctx, "0xunknown")
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestIngestWallet_FillsUnavailableFallsBackToSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Positions present, fills unavailable (wallet absent from Fills map)
	f.provider.AddPosition("0xwallet1", ethLong(1700000000000))

	res, err := f.ingestor.IngestWallet(ctx, "0xwallet1")
	if err != nil {
		t.Fatalf("IngestWallet: %v", err)
	}
	if res.Emitted != 1 {
		t.Fatalf("expected 1 emitted, got %+v", res)
	}

	stored, _ := f.positions.GetOpenByWallet(ctx, "0xwallet1")
	if stored[0].EntryPrice != 2450.50 {
		t.Errorf("expected snapshot entry price, got %v", stored[0].EntryPrice)
	}
}
