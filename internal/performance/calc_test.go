package performance

import (
	"math"
	"testing"

	"perp-signal-engine/internal/domain"
)

const epsilon = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestPnL_ShortProfitable(t *testing.T) {
	// SHORT entered at 42100.00, closed at 41000.00, size 1, zero funding
	pnl := PnL(42100.00, 41000.00, 1, domain.DirectionShort, 0)
	if !almostEqual(pnl, 1100.00) {
		t.Errorf("expected +1100.00, got %v", pnl)
	}
}

func TestPnL_LongAtSamePricesLoses(t *testing.T) {
	// Same prices entered LONG must lose the same amount
	pnl := PnL(42100.00, 41000.00, 1, domain.DirectionLong, 0)
	if !almostEqual(pnl, -1100.00) {
		t.Errorf("expected -1100.00, got %v", pnl)
	}
}

func TestPnL_SubtractsFundingCost(t *testing.T) {
	pnl := PnL(2450.50, 2500.00, 2, domain.DirectionLong, 10.0)
	want := (2500.00-2450.50)*2 - 10.0
	if !almostEqual(pnl, want) {
		t.Errorf("expected %v, got %v", want, pnl)
	}
}

func TestFundingCost_EightHourIntervals(t *testing.T) {
	// 1 hour rounds up to one 8h interval
	oneHour := int64(3600 * 1000)
	got := FundingCost(0.0001, 1.5, 2450.50, oneHour)
	want := 0.0001 * 1.5 * 2450.50 * 1
	if !almostEqual(got, want) {
		t.Errorf("1h: expected %v, got %v", want, got)
	}

	// 9 hours rounds up to two intervals
	nineHours := int64(9 * 3600 * 1000)
	got = FundingCost(0.0001, 1.5, 2450.50, nineHours)
	want = 0.0001 * 1.5 * 2450.50 * 2
	if !almostEqual(got, want) {
		t.Errorf("9h: expected %v, got %v", want, got)
	}

	// Exactly 16 hours stays at two intervals
	sixteenHours := int64(16 * 3600 * 1000)
	got = FundingCost(0.0001, 1.5, 2450.50, sixteenHours)
	want = 0.0001 * 1.5 * 2450.50 * 2
	if !almostEqual(got, want) {
		t.Errorf("16h: expected %v, got %v", want, got)
	}
}

func TestFundingCost_AlwaysACost(t *testing.T) {
	oneHour := int64(3600 * 1000)

	positive := FundingCost(0.0001, 1, 42100, oneHour)
	negative := FundingCost(-0.0001, 1, 42100, oneHour)

	// A negative rate never becomes a credit
	if !almostEqual(positive, negative) {
		t.Errorf("expected |rate| symmetry, got %v vs %v", positive, negative)
	}
	if negative <= 0 {
		t.Errorf("expected positive cost for negative rate, got %v", negative)
	}
}

func TestFundingCost_ZeroDuration(t *testing.T) {
	if got := FundingCost(0.0001, 1, 42100, 0); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestClassifyOutcome(t *testing.T) {
	cases := []struct {
		status domain.SignalStatus
		pnl    float64
		want   domain.Outcome
	}{
		{domain.StatusSLHit, 100, domain.OutcomeLoss}, // status wins over sign
		{domain.StatusTPHit, -5, domain.OutcomeWin},
		{domain.StatusPartialTP, 50, domain.OutcomePartial},
		{domain.StatusClosedManual, 50, domain.OutcomeWin},
		{domain.StatusClosedManual, -50, domain.OutcomeLoss},
		{domain.StatusClosedManual, 0, domain.OutcomeWin},
	}

	for _, c := range cases {
		if got := ClassifyOutcome(c.status, c.pnl); got != c.want {
			t.Errorf("ClassifyOutcome(%s, %v) = %s, want %s", c.status, c.pnl, got, c.want)
		}
	}
}

func TestMaxDrawdown(t *testing.T) {
	// LONG closing below reference: negative excursion
	dd := MaxDrawdown(2450.50, 2389.2375, domain.DirectionLong)
	if !almostEqual(dd, -2.5) {
		t.Errorf("expected -2.5, got %v", dd)
	}

	// SHORT closing above reference: negative excursion
	dd = MaxDrawdown(42100, 43100, domain.DirectionShort)
	want := -(1000.0 / 42100.0 * 100)
	if !almostEqual(dd, want) {
		t.Errorf("expected %v, got %v", want, dd)
	}

	// Winning close reports zero
	if dd := MaxDrawdown(2450.50, 2573.03, domain.DirectionLong); dd != 0 {
		t.Errorf("expected 0, got %v", dd)
	}
}

func TestBuildRecords_OnePerTimeframe(t *testing.T) {
	sig := &domain.Signal{
		SignalID:       "signal-001",
		Instrument:     "BTC",
		Direction:      domain.DirectionShort,
		ReferencePrice: 42100.00,
		AvgSize:        1,
		StopLossPct:    -2.5,
		Status:         domain.StatusTPHit,
		CreatedAt:      1700000000000,
	}

	closedAt := sig.CreatedAt + 3600*1000
	records := BuildRecords(sig, domain.StatusTPHit, 41000.00, 0, closedAt)

	if len(records) != len(domain.RetainedTimeframes) {
		t.Fatalf("expected %d records, got %d", len(domain.RetainedTimeframes), len(records))
	}

	seen := make(map[domain.Timeframe]bool)
	for _, r := range records {
		seen[r.Timeframe] = true
		if !almostEqual(r.PnL, 1100.00) {
			t.Errorf("expected PnL 1100.00, got %v", r.PnL)
		}
		if r.Outcome != domain.OutcomeWin {
			t.Errorf("expected WIN, got %s", r.Outcome)
		}
		if r.DurationMs != 3600*1000 {
			t.Errorf("expected duration 3600000, got %d", r.DurationMs)
		}
		if r.ExitPrice != 41000.00 {
			t.Errorf("expected exit 41000.00, got %v", r.ExitPrice)
		}
		if r.ComputedAt != closedAt {
			t.Errorf("expected computedAt %d, got %d", closedAt, r.ComputedAt)
		}
	}

	for _, tf := range domain.RetainedTimeframes {
		if !seen[tf] {
			t.Errorf("missing bucket %s", tf)
		}
	}
}

func TestBuildRecords_FundingReducesPnL(t *testing.T) {
	sig := &domain.Signal{
		SignalID:       "signal-002",
		Direction:      domain.DirectionLong,
		ReferencePrice: 2450.50,
		AvgSize:        1.5,
		CreatedAt:      1700000000000,
	}

	closedAt := sig.CreatedAt + 10*3600*1000 // 10h -> 2 funding intervals
	records := BuildRecords(sig, domain.StatusSLHit, 2389.2375, 0.0001, closedAt)

	wantFunding := 0.0001 * 1.5 * 2450.50 * 2
	wantPnL := (2389.2375-2450.50)*1.5 - wantFunding

	r := records[0]
	if !almostEqual(r.FundingCost, wantFunding) {
		t.Errorf("expected funding %v, got %v", wantFunding, r.FundingCost)
	}
	if !almostEqual(r.PnL, wantPnL) {
		t.Errorf("expected PnL %v, got %v", wantPnL, r.PnL)
	}
	if r.Outcome != domain.OutcomeLoss {
		t.Errorf("expected LOSS, got %s", r.Outcome)
	}
	if !almostEqual(r.MaxDrawdown, -2.5) {
		t.Errorf("expected drawdown -2.5, got %v", r.MaxDrawdown)
	}
}
