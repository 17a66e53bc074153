package feed

import "pm-arb-bot/internal/book"

// UpdateKind tells the consumer how to apply an Update.
type UpdateKind uint8

const (
	// KindSnapshot replaces both sides of the token's book.
	KindSnapshot UpdateKind = iota
	// KindDelta sets one price level's size, removing it at zero.
	KindDelta
)

// Update is the ring element carried from the feed thread to the decision
// thread. Levels live in fixed arrays so the value is self-contained: no
// pointer into feed-owned memory survives the hand-off.
type Update struct {
	Asset     string
	Kind      UpdateKind
	Seq       uint64
	Timestamp int64 // unix nanos at decode time

	// Snapshot payload. NBids/NAsks bound the populated prefix.
	Bids  [book.MaxDepth]book.Level
	Asks  [book.MaxDepth]book.Level
	NBids int
	NAsks int

	// Delta payload.
	Side  book.Side
	Price book.Price
	Size  book.Size
}
