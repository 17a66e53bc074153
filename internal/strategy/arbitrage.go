package strategy

import "pm-arb-bot/internal/book"

// DetectorConfig holds the fixed-point thresholds for the buy-both check.
// All values are converted from config floats once, at construction.
type DetectorConfig struct {
	MinEdge        book.Price    // minimum required margin in pips
	Fee            book.Price    // flat fee added to the combined price, pips
	TargetNotional book.Notional // fill target for the VWAP walk per leg
	StaleAfter     int64         // snapshot age in nanos beyond which no signal fires
}

// Detector decides whether buying both outcome tokens of one market is
// profitable. Evaluate is a pure function of the two books: no side
// effects, no allocation, at most one depth walk per leg.
type Detector struct {
	cfg DetectorConfig
}

func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.TargetNotional <= 0 {
		cfg.TargetNotional = 100 * book.NotionalScale
	}
	return &Detector{cfg: cfg}
}

// Evaluate checks the YES and NO ask sides at time now. It returns a signal
// iff both books are fresh, both legs have depth, and the size-weighted
// combined cost plus fee is strictly below PriceScale - MinEdge. Stale or
// empty books yield no signal, never an error.
func (d *Detector) Evaluate(marketID string, yes, no *book.Book, now int64) (Signal, bool) {
	if yes.Stale() || no.Stale() {
		return Signal{}, false
	}
	if yes.AgeExceeds(now, d.cfg.StaleAfter) || no.AgeExceeds(now, d.cfg.StaleAfter) {
		return Signal{}, false
	}
	yesVWAP, yesFilled := walkAsks(yes, d.cfg.TargetNotional)
	if yesFilled == 0 {
		return Signal{}, false
	}
	noVWAP, noFilled := walkAsks(no, d.cfg.TargetNotional)
	if noFilled == 0 {
		return Signal{}, false
	}

	combined := yesVWAP + noVWAP + d.cfg.Fee
	if combined >= book.PriceScale-d.cfg.MinEdge {
		return Signal{}, false
	}

	maxSize := yesFilled
	if noFilled < maxSize {
		maxSize = noFilled
	}
	bookTime := yes.UpdatedAt()
	if t := no.UpdatedAt(); t < bookTime {
		bookTime = t
	}
	return Signal{
		MarketID: marketID,
		Edge:     book.PriceScale - combined,
		MaxSize:  maxSize,
		YesPrice: yesVWAP,
		NoPrice:  noVWAP,
		BookTime: bookTime,
	}, true
}

// walkAsks consumes ask levels best-first until the accumulated cost
// reaches target or liquidity runs out, and returns the size-weighted
// average fill price with the size it covers. The VWAP rounds up so the
// strict edge test never reports a cheaper fill than the book supports.
func walkAsks(b *book.Book, target book.Notional) (vwap book.Price, filled book.Size) {
	var cost book.Notional
	asks := b.Asks()
	for i := range asks {
		level := asks[i]
		take := level.Size
		if remaining := target - cost; book.Cost(level.Price, take) > remaining {
			take = book.Size(int64(remaining) / int64(level.Price))
			if take <= 0 {
				break
			}
		}
		cost += book.Cost(level.Price, take)
		filled += take
		if cost >= target {
			break
		}
	}
	if filled == 0 {
		return 0, 0
	}
	vwap = book.Price((int64(cost) + int64(filled) - 1) / int64(filled))
	return vwap, filled
}
