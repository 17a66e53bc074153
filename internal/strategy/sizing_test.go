package strategy

import (
	"testing"

	"pm-arb-bot/internal/book"
)

func TestSizeRespectsBothCaps(t *testing.T) {
	s := NewSizer(0.25, 0, 0)
	sig := Signal{Edge: 200, MaxSize: 1_000_000}
	bankroll := book.Notional(1000 * book.NotionalScale)

	size := s.Size(sig, bankroll)
	if size <= 0 {
		t.Fatalf("expected positive size")
	}
	// Never above the bankroll-fraction cap converted at the combined price.
	capNotional := book.Notional(1000 * book.NotionalScale / 4)
	maxByCap := book.Size(int64(capNotional) / int64(sig.Combined()))
	if size > maxByCap {
		t.Fatalf("size %d exceeds fraction cap bound %d", size, maxByCap)
	}

	// And never above the liquidity bound.
	sig.MaxSize = 100
	if got := s.Size(sig, bankroll); got != 100 {
		t.Fatalf("expected liquidity-capped size 100, got %d", got)
	}
}

func TestSizeScalesWithEdge(t *testing.T) {
	s := NewSizer(1.0, 0, 0)
	bankroll := book.Notional(1000 * book.NotionalScale)
	small := s.Size(Signal{Edge: 50, MaxSize: 1_000_000}, bankroll)
	large := s.Size(Signal{Edge: 500, MaxSize: 1_000_000}, bankroll)
	if small >= large {
		t.Fatalf("expected size to grow with edge: %d vs %d", small, large)
	}
}

func TestSizeMonotoneInDamping(t *testing.T) {
	bankroll := book.Notional(1000 * book.NotionalScale)
	sig := Signal{Edge: 500, MaxSize: 1_000_000}
	undamped := NewSizer(1.0, 0.10, 0).Size(sig, bankroll)
	damped := NewSizer(1.0, 0.10, 2.0).Size(sig, bankroll)
	heavilyDamped := NewSizer(1.0, 0.90, 2.0).Size(sig, bankroll)
	if damped >= undamped {
		t.Fatalf("expected damping to shrink size: %d vs %d", damped, undamped)
	}
	if heavilyDamped > damped {
		t.Fatalf("expected more volatility to shrink size further: %d vs %d", heavilyDamped, damped)
	}
	// The reduction caps at half even for extreme volatility.
	if heavilyDamped*2 < undamped-2 {
		t.Fatalf("expected damping capped at 50%%: %d vs %d", heavilyDamped, undamped)
	}
}

func TestSizeDegenerateInputs(t *testing.T) {
	s := NewSizer(0.25, 0.1, 0.5)
	bankroll := book.Notional(1000 * book.NotionalScale)
	if got := s.Size(Signal{Edge: 0, MaxSize: 100}, bankroll); got != 0 {
		t.Fatalf("expected zero size for zero edge, got %d", got)
	}
	if got := s.Size(Signal{Edge: 200, MaxSize: 100}, 0); got != 0 {
		t.Fatalf("expected zero size for zero bankroll, got %d", got)
	}
	if got := s.Size(Signal{Edge: 200, MaxSize: 0}, bankroll); got != 0 {
		t.Fatalf("expected zero size for zero liquidity, got %d", got)
	}
}
