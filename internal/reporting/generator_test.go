package reporting

import (
	"context"
	"strings"
	"testing"
	"time"

	"perp-signal-engine/internal/domain"
	"perp-signal-engine/internal/storage/memory"
)

var testNow = time.UnixMilli(1700000000000).UTC()

func newGenerator(t *testing.T) (*Generator, *memory.SignalStore, *memory.PerformanceStore) {
	t.Helper()
	signals := memory.NewSignalStore()
	records := memory.NewPerformanceStore()
	gen := NewGenerator(signals, records).WithClock(func() time.Time { return testNow })
	return gen, signals, records
}

// seedClose writes one record per retained timeframe for a closed signal.
func seedClose(t *testing.T, store *memory.PerformanceStore, signalID string, outcome domain.Outcome, pnl float64, closedAt int64) {
	t.Helper()
	var records []*domain.PerformanceRecord
	for _, tf := range domain.RetainedTimeframes {
		records = append(records, &domain.PerformanceRecord{
			SignalID:    signalID,
			Timeframe:   tf,
			Outcome:     outcome,
			PnL:         pnl,
			FundingCost: 0.5,
			ExitPrice:   100,
			DurationMs:  3600000,
			MaxDrawdown: -1.0,
			ComputedAt:  closedAt,
		})
	}
	if err := store.InsertBulk(context.Background(), records); err != nil {
		t.Fatalf("seed records for %s: %v", signalID, err)
	}
}

func seedActive(t *testing.T, store *memory.SignalStore, id, instrument string) {
	t.Helper()
	sig := &domain.Signal{
		SignalID:       id,
		Instrument:     instrument,
		Direction:      domain.DirectionLong,
		ReferencePrice: 100,
		AvgSize:        1,
		StopLossPct:    -2.5,
		Status:         domain.StatusOpen,
		CreatedAt:      testNow.UnixMilli() - 600000,
		UpdatedAt:      testNow.UnixMilli() - 600000,
		Targets: []*domain.SignalTarget{
			{SignalID: id, Index: 0, TargetPct: 2.0, TargetPrice: 102, Hit: true, HitAt: testNow.UnixMilli() - 60000},
			{SignalID: id, Index: 1, TargetPct: 3.5, TargetPrice: 103.5},
		},
		Participants: []*domain.SignalParticipant{
			{SignalID: id, Wallet: "0xaaa", EntryPrice: 100, Size: 1, Leverage: 10},
		},
	}
	created, err := store.CreateIfNoRecent(context.Background(), sig, sig.CreatedAt+1)
	if err != nil || !created {
		t.Fatalf("seed signal %s: created=%v err=%v", id, created, err)
	}
}

func TestGenerate_EmptyStores(t *testing.T) {
	gen, _, _ := newGenerator(t)

	report, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if report.GeneratedAt != testNow {
		t.Errorf("expected injected clock, got %v", report.GeneratedAt)
	}
	if len(report.Timeframes) != 0 || len(report.ActiveSignals) != 0 || len(report.RecentCloses) != 0 {
		t.Errorf("expected an empty report, got %+v", report)
	}

	md := RenderMarkdown(report)
	if !strings.Contains(md, "No closed signals recorded yet.") {
		t.Error("expected the empty-bucket placeholder in markdown")
	}
	if !strings.Contains(md, "No active signals.") {
		t.Error("expected the empty-active placeholder in markdown")
	}
}

func TestGenerate_TimeframeRows(t *testing.T) {
	gen, _, records := newGenerator(t)
	asOf := testNow.UnixMilli()

	seedClose(t, records, "sig-win", domain.OutcomeWin, 10.0, asOf-3600000)
	seedClose(t, records, "sig-loss", domain.OutcomeLoss, -4.0, asOf-7200000)

	report, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(report.Timeframes) != len(domain.RetainedTimeframes) {
		t.Fatalf("expected every bucket populated, got %d", len(report.Timeframes))
	}

	daily := report.Timeframes[0]
	if daily.Timeframe != string(domain.TimeframeDaily) {
		t.Fatalf("expected DAILY first, got %s", daily.Timeframe)
	}
	if daily.Signals != 2 || daily.Wins != 1 || daily.Losses != 1 {
		t.Errorf("unexpected daily counts: %+v", daily)
	}
	if daily.WinRate != 0.5 {
		t.Errorf("expected win rate 0.5, got %v", daily.WinRate)
	}
	if daily.TotalPnL != 6.0 {
		t.Errorf("expected total PnL 6.0, got %v", daily.TotalPnL)
	}
}

func TestGenerate_RecentClosesWindowAndOrder(t *testing.T) {
	gen, _, records := newGenerator(t)
	asOf := testNow.UnixMilli()

	seedClose(t, records, "sig-new", domain.OutcomeWin, 5.0, asOf-3600000)
	seedClose(t, records, "sig-older", domain.OutcomeLoss, -1.0, asOf-2*24*3600000)
	seedClose(t, records, "sig-ancient", domain.OutcomeWin, 2.0, asOf-10*24*3600000)

	report, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(report.RecentCloses) != 2 {
		t.Fatalf("expected 2 closes inside the week, got %d", len(report.RecentCloses))
	}
	if report.RecentCloses[0].SignalID != "sig-new" {
		t.Errorf("expected newest close first, got %s", report.RecentCloses[0].SignalID)
	}
	if report.ClosedLastWeek != 2 {
		t.Errorf("expected ClosedLastWeek 2, got %d", report.ClosedLastWeek)
	}
}

func TestGenerate_ActiveSignals(t *testing.T) {
	gen, signals, _ := newGenerator(t)

	seedActive(t, signals, "sig-1", "ETH")

	report, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(report.ActiveSignals) != 1 {
		t.Fatalf("expected 1 active signal, got %d", len(report.ActiveSignals))
	}
	row := report.ActiveSignals[0]
	if row.TargetsHit != 1 || row.TargetsTotal != 2 {
		t.Errorf("expected 1/2 targets, got %d/%d", row.TargetsHit, row.TargetsTotal)
	}
	if row.Age != 10*time.Minute {
		t.Errorf("expected 10m age, got %s", row.Age)
	}

	md := RenderMarkdown(report)
	if !strings.Contains(md, "| sig-1 | ETH | LONG | OPEN |") {
		t.Errorf("expected the active row in markdown, got:\n%s", md)
	}
}

// seedClosedSignal stores a terminal signal with the given participants so
// the wallet tally can attribute its records.
func seedClosedSignal(t *testing.T, store *memory.SignalStore, id string, wallets ...string) {
	t.Helper()
	createdAt := testNow.UnixMilli() - 3600000
	sig := &domain.Signal{
		SignalID:       id,
		Instrument:     "ETH",
		Direction:      domain.DirectionLong,
		ReferencePrice: 100,
		AvgSize:        1,
		StopLossPct:    -2.5,
		Status:         domain.StatusOpen,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
	for _, w := range wallets {
		sig.Participants = append(sig.Participants, &domain.SignalParticipant{
			SignalID: id, Wallet: w, EntryPrice: 100, Size: 1, Leverage: 10,
		})
	}
	created, err := store.CreateIfNoRecent(context.Background(), sig, createdAt+1)
	if err != nil || !created {
		t.Fatalf("seed signal %s: created=%v err=%v", id, created, err)
	}
	applied, err := store.TransitionStatus(context.Background(), id, domain.StatusTPHit, testNow.UnixMilli())
	if err != nil || !applied {
		t.Fatalf("close signal %s: applied=%v err=%v", id, applied, err)
	}
}

func TestGenerate_WalletLeaderboard(t *testing.T) {
	gen, signals, records := newGenerator(t)
	asOf := testNow.UnixMilli()

	// 0xaaa joins both signals; 0xbbb only the winning one.
	seedClosedSignal(t, signals, "sig-a", "0xaaa", "0xbbb")
	seedClosedSignal(t, signals, "sig-b", "0xaaa")
	seedClose(t, records, "sig-a", domain.OutcomeWin, 10.0, asOf-3600000)
	seedClose(t, records, "sig-b", domain.OutcomeLoss, -4.0, asOf-7200000)

	report, err := gen.Generate(context.Background())
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if len(report.Wallets) != 2 {
		t.Fatalf("expected 2 wallet rows, got %d", len(report.Wallets))
	}

	// 0xbbb leads on total PnL (10 vs 6)
	top := report.Wallets[0]
	if top.Wallet != "0xbbb" || top.Signals != 1 || top.Wins != 1 || top.TotalPnL != 10.0 {
		t.Errorf("unexpected top row: %+v", top)
	}

	second := report.Wallets[1]
	if second.Wallet != "0xaaa" || second.Signals != 2 || second.Wins != 1 || second.Losses != 1 {
		t.Errorf("unexpected second row: %+v", second)
	}
	if second.WinRate != 0.5 || second.TotalPnL != 6.0 {
		t.Errorf("unexpected second row aggregates: %+v", second)
	}

	md := RenderMarkdown(report)
	if !strings.Contains(md, "## Wallet Leaderboard") {
		t.Error("expected the leaderboard section in markdown")
	}
	if !strings.Contains(md, "| 0xbbb | 1 | 1 | 0 | 0 |") {
		t.Errorf("expected the top wallet row in markdown, got:\n%s", md)
	}
}

func TestRenderCSV(t *testing.T) {
	rows := []TimeframeRow{
		{
			Timeframe: "DAILY", Signals: 2, Wins: 1, Losses: 1,
			WinRate: 0.5, TotalPnL: 6, MeanPnL: 3, MedianPnL: 3,
			TotalFunding: 1, MaxDrawdown: -1, AvgDuration: time.Hour,
		},
	}

	csv := RenderCSV(rows)
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "timeframe,signals,wins") {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if !strings.HasPrefix(lines[1], "DAILY,2,1,1,0,0.500000") {
		t.Errorf("unexpected row: %s", lines[1])
	}
	if !strings.HasSuffix(lines[1], ",3600000") {
		t.Errorf("expected duration in ms at row end: %s", lines[1])
	}
}
