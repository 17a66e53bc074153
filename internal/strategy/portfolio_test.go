package strategy

import (
	"testing"

	"pm-arb-bot/internal/book"
)

func TestApplyEntryFillBuildsPairPosition(t *testing.T) {
	p := NewPortfolio(1000 * book.NotionalScale)
	p.ApplyEntryFill("mkt-1", YesLeg, 10000, 4700, 5)
	p.ApplyEntryFill("mkt-1", NoLeg, 10000, 5000, 6)

	pos, ok := p.Position("mkt-1")
	if !ok {
		t.Fatalf("expected open position")
	}
	if pos.Size != 10000 {
		t.Fatalf("expected 100 matched pairs, got %d", pos.Size)
	}
	// Combined entry: 0.47 + 0.50 = 0.97 per pair.
	if pos.EntryPrice != 9700 {
		t.Fatalf("expected entry price 9700, got %d", pos.EntryPrice)
	}
	if pos.Cost != 97*book.NotionalScale {
		t.Fatalf("expected cost $97, got %d", pos.Cost)
	}
	if p.Exposure() != pos.Cost {
		t.Fatalf("expected exposure to match cost, got %d", p.Exposure())
	}
	if p.Bankroll() != 903*book.NotionalScale {
		t.Fatalf("expected bankroll $903, got %d", p.Bankroll())
	}
}

func TestUnevenLegsMatchSmallerSide(t *testing.T) {
	p := NewPortfolio(1000 * book.NotionalScale)
	p.ApplyEntryFill("mkt-1", YesLeg, 10000, 4700, 5)
	p.ApplyEntryFill("mkt-1", NoLeg, 6000, 5000, 6)
	pos, _ := p.Position("mkt-1")
	if pos.Size != 6000 {
		t.Fatalf("expected pairs bounded by smaller leg, got %d", pos.Size)
	}
}

func TestApplyExitFillClosesAndRealizes(t *testing.T) {
	p := NewPortfolio(1000 * book.NotionalScale)
	p.ApplyEntryFill("mkt-1", YesLeg, 10000, 4700, 5)
	p.ApplyEntryFill("mkt-1", NoLeg, 10000, 5000, 6)

	p.ApplyExitFill("mkt-1", YesLeg, 10000, 4000)
	if _, ok := p.Position("mkt-1"); !ok {
		t.Fatalf("expected position open with one leg flat")
	}
	p.ApplyExitFill("mkt-1", NoLeg, 10000, 4500)
	if _, ok := p.Position("mkt-1"); ok {
		t.Fatalf("expected position closed after both legs exit")
	}
	// Proceeds 0.40 + 0.45 = 0.85 per pair against 0.97 entry: -$12.
	if p.Realized() != -12*book.NotionalScale {
		t.Fatalf("expected realized -$12, got %d", p.Realized())
	}
	if p.Exposure() != 0 {
		t.Fatalf("expected zero exposure after close, got %d", p.Exposure())
	}
	if p.OpenCount() != 0 {
		t.Fatalf("expected no open positions, got %d", p.OpenCount())
	}
}

func TestRestoreRebuildsExposure(t *testing.T) {
	p := NewPortfolio(1000 * book.NotionalScale)
	p.Restore([]Position{
		{MarketID: "mkt-1", YesSize: 5000, NoSize: 5000, Size: 5000, EntryPrice: 9600, Cost: 48 * book.NotionalScale, OpenedAt: 1, ExitPending: true},
		{MarketID: "mkt-2", YesSize: 2000, NoSize: 2000, Size: 2000, EntryPrice: 9500, Cost: 19 * book.NotionalScale, OpenedAt: 2},
	}, 5*book.NotionalScale)

	if p.OpenCount() != 2 {
		t.Fatalf("expected 2 restored positions, got %d", p.OpenCount())
	}
	if p.Exposure() != 67*book.NotionalScale {
		t.Fatalf("expected exposure $67, got %d", p.Exposure())
	}
	if p.Realized() != 5*book.NotionalScale {
		t.Fatalf("expected realized $5, got %d", p.Realized())
	}
	pos, _ := p.Position("mkt-1")
	if pos.ExitPending {
		t.Fatalf("expected exit-pending cleared on restore")
	}
}

func TestSnapshotCopiesState(t *testing.T) {
	p := NewPortfolio(1000 * book.NotionalScale)
	p.ApplyEntryFill("mkt-1", YesLeg, 10000, 4700, 5)
	v := p.Snapshot()
	if v.CapitalUSD != 1000 {
		t.Fatalf("expected capital 1000, got %f", v.CapitalUSD)
	}
	if len(v.Positions) != 1 || v.Positions[0].MarketID != "mkt-1" {
		t.Fatalf("expected one position view, got %+v", v.Positions)
	}
	if v.ExposureUSD != 47 {
		t.Fatalf("expected exposure 47, got %f", v.ExposureUSD)
	}
}
