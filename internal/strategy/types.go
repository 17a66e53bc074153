package strategy

import "pm-arb-bot/internal/book"

type State string

type Event string

const (
	StateIdle       State = "IDLE"
	StateEvaluating State = "EVALUATING"
	StateApproved   State = "APPROVED"
	StateRejected   State = "REJECTED"
)

const (
	EventEvaluate Event = "EVALUATE"
	EventApprove  Event = "APPROVE"
	EventReject   Event = "REJECT"
	EventReset    Event = "RESET"
)

// SignalKind tags which detector produced a signal. The set is closed;
// submission dispatches on it.
type SignalKind uint8

const (
	// SignalBuyBoth buys both outcome tokens below $1 combined.
	SignalBuyBoth SignalKind = iota
	// SignalExpiration buys one near-certain leg shortly before the market
	// resolves and holds it to resolution.
	SignalExpiration
)

// Signal is a detected opportunity. It lives for one decision cycle:
// produced by a detector, consumed by the sizer and risk manager, never
// persisted. For SignalBuyBoth both leg prices are set; for
// SignalExpiration only the sniped leg's.
type Signal struct {
	Kind     SignalKind
	MarketID string
	Leg      Leg        // the sniped leg; meaningful only for SignalExpiration
	Edge     book.Price // profit margin per share in pips: PriceScale - cost
	MaxSize  book.Size  // liquidity bound at qualifying prices
	YesPrice book.Price // size-weighted YES fill price
	NoPrice  book.Price // size-weighted NO fill price
	BookTime int64      // snapshot timestamp backing the signal, unix nanos
}

// Combined returns the per-share cost implied by the edge: both legs plus
// fee for a buy-both pair, the single leg for an expiration snipe.
func (s Signal) Combined() book.Price {
	return book.PriceScale - s.Edge
}

// Reason enumerates why the risk manager turned an opportunity down.
// Rejections are expected outcomes, reported as events rather than errors.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonMarketLimit
	ReasonExposureCap
	ReasonPositionCount
	ReasonDegenerateSize
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonMarketLimit:
		return "market_limit"
	case ReasonExposureCap:
		return "exposure_cap"
	case ReasonPositionCount:
		return "position_count"
	case ReasonDegenerateSize:
		return "degenerate_size"
	}
	return "unknown"
}
