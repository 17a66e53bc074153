package book

import (
	"errors"
	"testing"
)

func levels(pairs ...int64) []Level {
	out := make([]Level, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, Level{Price: Price(pairs[i]), Size: Size(pairs[i+1])})
	}
	return out
}

func snapshot(t *testing.T, b *Book, bids, asks []Level, seq uint64) {
	t.Helper()
	if err := b.ApplySnapshot(bids, asks, seq, 1); err != nil {
		t.Fatalf("apply snapshot: %v", err)
	}
}

func TestNewBookIsStale(t *testing.T) {
	b := New("tok", 50)
	if !b.Stale() {
		t.Fatalf("expected fresh book to be stale until first snapshot")
	}
	if _, ok := b.BestAsk(); ok {
		t.Fatalf("expected no best ask on empty book")
	}
}

func TestSnapshotClearsStale(t *testing.T) {
	b := New("tok", 50)
	snapshot(t, b, levels(4600, 100), levels(4700, 100), 10)
	if b.Stale() {
		t.Fatalf("expected snapshot to clear stale")
	}
	if b.Seq() != 10 {
		t.Fatalf("expected seq 10, got %d", b.Seq())
	}
	bid, ok := b.BestBid()
	if !ok || bid.Price != 4600 {
		t.Fatalf("expected best bid 4600, got %v", bid)
	}
	ask, ok := b.BestAsk()
	if !ok || ask.Price != 4700 {
		t.Fatalf("expected best ask 4700, got %v", ask)
	}
}

func TestSnapshotRejectsUnorderedLevels(t *testing.T) {
	b := New("tok", 50)
	err := b.ApplySnapshot(levels(4600, 100, 4650, 50), levels(4700, 100), 1, 1)
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected invariant error for ascending bids, got %v", err)
	}
	if !b.Invalid() {
		t.Fatalf("expected book marked invalid")
	}
	// Only a clean snapshot recovers.
	snapshot(t, b, levels(4600, 100), levels(4700, 100), 2)
	if b.Invalid() || b.Stale() {
		t.Fatalf("expected clean snapshot to recover invalid book")
	}
}

func TestDeltaInsertKeepsOrdering(t *testing.T) {
	b := New("tok", 50)
	snapshot(t, b, levels(4600, 100, 4500, 200), levels(4700, 100, 4800, 200), 1)
	if err := b.ApplyDelta(Ask, 4750, 50, 2, 2); err != nil {
		t.Fatalf("apply delta: %v", err)
	}
	if err := b.ApplyDelta(Bid, 4550, 70, 3, 3); err != nil {
		t.Fatalf("apply delta: %v", err)
	}
	asks := b.Asks()
	for i := 1; i < len(asks); i++ {
		if asks[i].Price <= asks[i-1].Price {
			t.Fatalf("asks not strictly ascending: %v", asks)
		}
	}
	bids := b.Bids()
	for i := 1; i < len(bids); i++ {
		if bids[i].Price >= bids[i-1].Price {
			t.Fatalf("bids not strictly descending: %v", bids)
		}
	}
	if len(asks) != 3 || asks[1].Price != 4750 {
		t.Fatalf("expected inserted ask at 4750, got %v", asks)
	}
}

func TestDeltaReplaceAndRemove(t *testing.T) {
	b := New("tok", 50)
	snapshot(t, b, nil, levels(4700, 100, 4800, 200), 1)
	if err := b.ApplyDelta(Ask, 4700, 40, 2, 2); err != nil {
		t.Fatalf("apply delta: %v", err)
	}
	ask, _ := b.BestAsk()
	if ask.Size != 40 {
		t.Fatalf("expected size 40 after replace, got %d", ask.Size)
	}
	if err := b.ApplyDelta(Ask, 4700, 0, 3, 3); err != nil {
		t.Fatalf("apply delta: %v", err)
	}
	ask, ok := b.BestAsk()
	if !ok || ask.Price != 4800 {
		t.Fatalf("expected removal to promote 4800, got %v ok=%v", ask, ok)
	}
}

func TestDeltaSequenceGapMarksStale(t *testing.T) {
	b := New("tok", 50)
	snapshot(t, b, nil, levels(4700, 100), 5)
	err := b.ApplyDelta(Ask, 4700, 50, 7, 2)
	if !errors.Is(err, ErrSequenceGap) {
		t.Fatalf("expected sequence gap error, got %v", err)
	}
	if !b.Stale() {
		t.Fatalf("expected gap to mark book stale")
	}
	ask, _ := b.BestAsk()
	if ask.Size != 100 {
		t.Fatalf("expected contents untouched after gap, got size %d", ask.Size)
	}
	// Deltas are refused until a snapshot arrives.
	if err := b.ApplyDelta(Ask, 4700, 50, 6, 3); !errors.Is(err, ErrStale) {
		t.Fatalf("expected stale error, got %v", err)
	}
	snapshot(t, b, nil, levels(4700, 80), 1)
	if b.Stale() {
		t.Fatalf("expected snapshot to clear stale")
	}
	if err := b.ApplyDelta(Ask, 4700, 60, 2, 4); err != nil {
		t.Fatalf("expected delta accepted after resync, got %v", err)
	}
}

func TestDepthCapDropsWorstLevel(t *testing.T) {
	b := New("tok", 2)
	snapshot(t, b, nil, levels(4700, 1, 4800, 2, 4900, 3), 1)
	if len(b.Asks()) != 2 {
		t.Fatalf("expected snapshot capped at 2 levels, got %d", len(b.Asks()))
	}
	// Insert inside the window pushes the worst level out.
	if err := b.ApplyDelta(Ask, 4650, 5, 2, 2); err != nil {
		t.Fatalf("apply delta: %v", err)
	}
	asks := b.Asks()
	if len(asks) != 2 || asks[0].Price != 4650 || asks[1].Price != 4700 {
		t.Fatalf("expected [4650 4700], got %v", asks)
	}
	// Insert beyond the window is ignored.
	if err := b.ApplyDelta(Ask, 4999, 5, 3, 3); err != nil {
		t.Fatalf("apply delta: %v", err)
	}
	if len(b.Asks()) != 2 || b.Asks()[1].Price != 4700 {
		t.Fatalf("expected beyond-depth insert ignored, got %v", b.Asks())
	}
}

func TestAskDepthWithin(t *testing.T) {
	b := New("tok", 50)
	snapshot(t, b, nil, levels(4700, 100, 4800, 200, 4900, 300), 1)
	if got := b.AskDepthWithin(4800); got != 300 {
		t.Fatalf("expected depth 300 within 4800, got %d", got)
	}
	if got := b.AskDepthWithin(4600); got != 0 {
		t.Fatalf("expected depth 0 within 4600, got %d", got)
	}
}

func TestAgeExceeds(t *testing.T) {
	b := New("tok", 50)
	if !b.AgeExceeds(100, 1000) {
		t.Fatalf("expected never-updated book to exceed any age")
	}
	snapshot(t, b, nil, levels(4700, 100), 1)
	if b.AgeExceeds(500, 1000) {
		t.Fatalf("expected fresh book within age")
	}
	if !b.AgeExceeds(5000, 1000) {
		t.Fatalf("expected old book to exceed age")
	}
}

func TestStoreRegisterAndPair(t *testing.T) {
	s := NewStore(50)
	m := Market{ID: "mkt-1", YesAsset: "yes-1", NoAsset: "no-1", Active: true}
	if err := s.Register(m); err != nil {
		t.Fatalf("register: %v", err)
	}
	yes, no, ok := s.Pair("mkt-1")
	if !ok || yes.Asset() != "yes-1" || no.Asset() != "no-1" {
		t.Fatalf("expected pair books, got ok=%v", ok)
	}
	got, ok := s.MarketForAsset("no-1")
	if !ok || got.ID != "mkt-1" {
		t.Fatalf("expected market mkt-1 for asset, got %v", got)
	}
	if err := s.Register(Market{ID: "bad", YesAsset: "x", NoAsset: "x"}); err == nil {
		t.Fatalf("expected error for identical outcome tokens")
	}
}

func TestStoreReRegisterReplacesBooks(t *testing.T) {
	s := NewStore(50)
	if err := s.Register(Market{ID: "mkt-1", YesAsset: "a", NoAsset: "b"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.Register(Market{ID: "mkt-1", YesAsset: "c", NoAsset: "d"}); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if _, ok := s.Book("a"); ok {
		t.Fatalf("expected old asset books dropped on re-register")
	}
	if _, _, ok := s.Pair("mkt-1"); !ok {
		t.Fatalf("expected new pair after re-register")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 market, got %d", s.Len())
	}
}

func TestFixedPointConversions(t *testing.T) {
	if got := PriceFromFloat(0.475); got != 4750 {
		t.Fatalf("expected 4750 pips, got %d", got)
	}
	if got := SizeFromFloat(12.5); got != 1250 {
		t.Fatalf("expected 1250 hundredths, got %d", got)
	}
	if got := Cost(4700, 10000); got != 47_000_000 {
		t.Fatalf("expected 47000000 micro-dollars, got %d", got)
	}
	if got := Notional(47_000_000).Float(); got != 47.0 {
		t.Fatalf("expected $47, got %f", got)
	}
}
