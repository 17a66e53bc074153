package strategy

import (
	"testing"

	"pm-arb-bot/internal/book"
)

func testLimits() Limits {
	return Limits{
		MaxPositionCost: 100 * book.NotionalScale,
		MaxExposure:     500 * book.NotionalScale,
		MaxOpenCount:    3,
		StopLossPips:    1500, // 15%
		MinHold:         100,
	}
}

func TestEvaluateApproves(t *testing.T) {
	m := NewManager(testLimits(), NewPortfolio(1000*book.NotionalScale))
	v := m.Evaluate("mkt-1", 5000, 9800)
	if v.State != StateApproved || v.Reason != ReasonNone {
		t.Fatalf("expected approval, got %s/%s", v.State, v.Reason)
	}
	if v.Cost != 49*book.NotionalScale {
		t.Fatalf("expected cost $49, got %d", v.Cost)
	}
}

func TestEvaluateRejectsOpenMarket(t *testing.T) {
	p := NewPortfolio(1000 * book.NotionalScale)
	p.ApplyEntryFill("mkt-1", YesLeg, 1000, 4700, 1)
	m := NewManager(testLimits(), p)
	v := m.Evaluate("mkt-1", 1000, 9800)
	if v.State != StateRejected || v.Reason != ReasonMarketLimit {
		t.Fatalf("expected market limit rejection, got %s/%s", v.State, v.Reason)
	}
}

func TestEvaluateRejectsOversizedPosition(t *testing.T) {
	m := NewManager(testLimits(), NewPortfolio(1000*book.NotionalScale))
	// 200 shares at 0.98 = $196 > $100 per-market cap.
	v := m.Evaluate("mkt-1", 20000, 9800)
	if v.Reason != ReasonMarketLimit {
		t.Fatalf("expected market limit rejection, got %s", v.Reason)
	}
}

// Approved opportunity sized at 50 units with per-unit exposure 1 against
// aggregate 480 of cap 500: would reach 530, rejected.
func TestEvaluateRejectsExposureBreach(t *testing.T) {
	p := NewPortfolio(10000 * book.NotionalScale)
	limits := testLimits()
	limits.MaxPositionCost = 1000 * book.NotionalScale
	// Build $480 of existing exposure across other markets.
	for i, id := range []string{"a", "b", "c", "d", "e", "f"} {
		p.ApplyEntryFill(id, YesLeg, 8000, 5000, int64(i))
		p.ApplyEntryFill(id, NoLeg, 8000, 5000, int64(i))
	}
	if p.Exposure() != 480*book.NotionalScale {
		t.Fatalf("setup: expected exposure $480, got %d", p.Exposure())
	}
	limits.MaxOpenCount = 10
	m := NewManager(limits, p)
	// 50 units costing $1 per unit.
	v := m.Evaluate("mkt-new", 5000, book.PriceScale)
	if v.State != StateRejected || v.Reason != ReasonExposureCap {
		t.Fatalf("expected exposure rejection, got %s/%s", v.State, v.Reason)
	}
}

func TestEvaluateRejectsPositionCount(t *testing.T) {
	p := NewPortfolio(10000 * book.NotionalScale)
	limits := testLimits()
	limits.MaxExposure = 10000 * book.NotionalScale
	for i, id := range []string{"a", "b", "c"} {
		p.ApplyEntryFill(id, YesLeg, 1000, 5000, int64(i))
	}
	m := NewManager(limits, p)
	v := m.Evaluate("mkt-new", 1000, 9800)
	if v.Reason != ReasonPositionCount {
		t.Fatalf("expected position count rejection, got %s", v.Reason)
	}
}

func TestEvaluateRejectsDegenerateSize(t *testing.T) {
	m := NewManager(testLimits(), NewPortfolio(1000*book.NotionalScale))
	v := m.Evaluate("mkt-1", 0, 9800)
	if v.Reason != ReasonDegenerateSize {
		t.Fatalf("expected degenerate size rejection, got %s", v.Reason)
	}
}

func TestStopLossHit(t *testing.T) {
	m := NewManager(testLimits(), NewPortfolio(1000*book.NotionalScale))
	pos := &Position{MarketID: "mkt-1", Size: 1000, EntryPrice: 9700, OpenedAt: 0}

	// 15% below 0.97 is ~0.8245; a mark of 0.80 breaches.
	if !m.StopLossHit(pos, 8000, 200) {
		t.Fatalf("expected stop-loss breach at mark 8000")
	}
	if m.StopLossHit(pos, 8500, 200) {
		t.Fatalf("expected no breach at mark 8500")
	}
	// Inside the minimum hold window nothing triggers.
	if m.StopLossHit(pos, 8000, 50) {
		t.Fatalf("expected min hold to suppress stop-loss")
	}
	pos.ExitPending = true
	if m.StopLossHit(pos, 8000, 200) {
		t.Fatalf("expected pending exit to suppress re-trigger")
	}
}

func TestScanStopLossFlagsOnce(t *testing.T) {
	p := NewPortfolio(1000 * book.NotionalScale)
	p.ApplyEntryFill("mkt-1", YesLeg, 1000, 4700, 0)
	p.ApplyEntryFill("mkt-1", NoLeg, 1000, 5000, 0)
	m := NewManager(testLimits(), p)

	marks := func(string) (book.Price, bool) { return 8000, true }
	var fired []string
	trigger := func(pos *Position, mark book.Price) { fired = append(fired, pos.MarketID) }

	if n := m.ScanStopLoss(200, marks, trigger); n != 1 {
		t.Fatalf("expected 1 flagged, got %d", n)
	}
	if n := m.ScanStopLoss(300, marks, trigger); n != 0 {
		t.Fatalf("expected no re-flag, got %d", n)
	}
	if len(fired) != 1 || fired[0] != "mkt-1" {
		t.Fatalf("expected single trigger for mkt-1, got %v", fired)
	}
}

func TestScanStopLossSkipsMissingMark(t *testing.T) {
	p := NewPortfolio(1000 * book.NotionalScale)
	p.ApplyEntryFill("mkt-1", YesLeg, 1000, 4700, 0)
	p.ApplyEntryFill("mkt-1", NoLeg, 1000, 5000, 0)
	m := NewManager(testLimits(), p)
	n := m.ScanStopLoss(200, func(string) (book.Price, bool) { return 0, false }, func(*Position, book.Price) {
		t.Fatalf("trigger must not fire without a mark")
	})
	if n != 0 {
		t.Fatalf("expected 0 flagged, got %d", n)
	}
}
