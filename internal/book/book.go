package book

import "errors"

// MaxDepth is the compile-time bound on retained levels per side. The
// configured depth may be lower, never higher; fixed arrays sized here keep
// update application and depth walks allocation-free.
const MaxDepth = 64

// DefaultDepth is the retained depth when config leaves it unset.
const DefaultDepth = 50

var (
	ErrSequenceGap = errors.New("delta sequence gap")
	ErrStale       = errors.New("book is stale, awaiting snapshot")
	ErrInvariant   = errors.New("orderbook invariant violated")
	ErrDepth       = errors.New("depth exceeds supported maximum")
)

// Book holds the current L2 snapshot for one outcome token. Bids are kept
// strictly descending and asks strictly ascending by price, at most depth
// levels per side. All mutation happens in place; the struct never allocates
// after construction. Not safe for concurrent use: the decision thread is
// the only mutator.
type Book struct {
	asset string
	depth int

	bids  [MaxDepth]Level
	asks  [MaxDepth]Level
	nBids int
	nAsks int

	seq       uint64
	updatedAt int64 // unix nanos of the last applied update
	stale     bool
	invalid   bool
}

// New returns an empty book for asset. A fresh book is stale until the
// first full snapshot arrives. depth outside (0, MaxDepth] falls back to
// DefaultDepth.
func New(asset string, depth int) *Book {
	if depth <= 0 || depth > MaxDepth {
		depth = DefaultDepth
	}
	return &Book{asset: asset, depth: depth, stale: true}
}

func (b *Book) Asset() string    { return b.asset }
func (b *Book) Seq() uint64      { return b.seq }
func (b *Book) UpdatedAt() int64 { return b.updatedAt }

// Stale reports whether the book cannot currently be trusted: no snapshot
// yet, a detected sequence gap, or an invariant violation.
func (b *Book) Stale() bool { return b.stale || b.invalid }

// Invalid reports an invariant violation that only a full snapshot clears.
func (b *Book) Invalid() bool { return b.invalid }

// AgeExceeds reports whether the last update is older than maxAge nanos at
// time now. A book that never received an update is always too old.
func (b *Book) AgeExceeds(now, maxAge int64) bool {
	if b.updatedAt == 0 {
		return true
	}
	return now-b.updatedAt > maxAge
}

// BestBid returns the highest bid level, if any.
func (b *Book) BestBid() (Level, bool) {
	if b.nBids == 0 {
		return Level{}, false
	}
	return b.bids[0], true
}

// BestAsk returns the lowest ask level, if any.
func (b *Book) BestAsk() (Level, bool) {
	if b.nAsks == 0 {
		return Level{}, false
	}
	return b.asks[0], true
}

// Asks returns the ask side, best first. The slice aliases the book's
// backing array and is valid until the next applied update.
func (b *Book) Asks() []Level { return b.asks[:b.nAsks] }

// Bids returns the bid side, best first, aliasing the backing array.
func (b *Book) Bids() []Level { return b.bids[:b.nBids] }

// AskDepthWithin sums ask size at prices at or below limit, walking at most
// depth levels.
func (b *Book) AskDepthWithin(limit Price) Size {
	var total Size
	for i := 0; i < b.nAsks; i++ {
		if b.asks[i].Price > limit {
			break
		}
		total += b.asks[i].Size
	}
	return total
}

// BidDepthWithin sums bid size at prices at or above limit.
func (b *Book) BidDepthWithin(limit Price) Size {
	var total Size
	for i := 0; i < b.nBids; i++ {
		if b.bids[i].Price < limit {
			break
		}
		total += b.bids[i].Size
	}
	return total
}

// ApplySnapshot replaces both sides, resets the sequence, and clears any
// stale or invalid condition. Input levels must already be ordered (bids
// descending, asks ascending) with no duplicate prices; a violation leaves
// the book invalid rather than silently corrupted.
func (b *Book) ApplySnapshot(bids, asks []Level, seq uint64, ts int64) error {
	if len(bids) > MaxDepth || len(asks) > MaxDepth {
		return ErrDepth
	}
	if !orderedDescending(bids) || !orderedAscending(asks) {
		b.invalid = true
		return ErrInvariant
	}
	b.nBids = copyCapped(b.bids[:], bids, b.depth)
	b.nAsks = copyCapped(b.asks[:], asks, b.depth)
	b.seq = seq
	b.updatedAt = ts
	b.stale = false
	b.invalid = false
	return nil
}

// ApplyDelta sets one price level's size, removing the level when size is
// zero. The delta's sequence must be exactly seq+1; anything else marks the
// book stale and leaves its contents untouched until a snapshot resync.
func (b *Book) ApplyDelta(side Side, price Price, size Size, seq uint64, ts int64) error {
	if b.invalid {
		return ErrInvariant
	}
	if b.stale {
		return ErrStale
	}
	if seq != b.seq+1 {
		b.stale = true
		return ErrSequenceGap
	}
	if price <= 0 {
		b.invalid = true
		return ErrInvariant
	}
	b.seq = seq
	b.updatedAt = ts
	if side == Bid {
		b.nBids = applyLevel(b.bids[:], b.nBids, b.depth, price, size, true)
	} else {
		b.nAsks = applyLevel(b.asks[:], b.nAsks, b.depth, price, size, false)
	}
	return nil
}

// MarkStale forces a resync requirement, used when the ingestion path knows
// it dropped updates for this asset.
func (b *Book) MarkStale() { b.stale = true }

// applyLevel inserts, replaces, or removes a level in a sorted fixed array
// and returns the new count. descending selects bid ordering.
func applyLevel(levels []Level, n, depth int, price Price, size Size, descending bool) int {
	i := searchLevel(levels[:n], price, descending)
	if i < n && levels[i].Price == price {
		if size == 0 {
			copy(levels[i:n-1], levels[i+1:n])
			return n - 1
		}
		levels[i].Size = size
		return n
	}
	if size == 0 {
		return n
	}
	if i >= depth {
		return n // beyond retained depth
	}
	if n < depth {
		n++
	}
	copy(levels[i+1:n], levels[i:n-1])
	levels[i] = Level{Price: price, Size: size}
	return n
}

// searchLevel returns the insertion index for price preserving order.
func searchLevel(levels []Level, price Price, descending bool) int {
	lo, hi := 0, len(levels)
	for lo < hi {
		mid := (lo + hi) / 2
		var before bool
		if descending {
			before = levels[mid].Price > price
		} else {
			before = levels[mid].Price < price
		}
		if before {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func copyCapped(dst, src []Level, depth int) int {
	n := len(src)
	if n > depth {
		n = depth
	}
	copy(dst[:n], src[:n])
	return n
}

func orderedDescending(levels []Level) bool {
	for i := range levels {
		if levels[i].Price <= 0 {
			return false
		}
		if i > 0 && levels[i].Price >= levels[i-1].Price {
			return false
		}
	}
	return true
}

func orderedAscending(levels []Level) bool {
	for i := range levels {
		if levels[i].Price <= 0 {
			return false
		}
		if i > 0 && levels[i].Price <= levels[i-1].Price {
			return false
		}
	}
	return true
}
