package strategy

import "pm-arb-bot/internal/book"

type ExpirationConfig struct {
	Window         int64         // nanos before market end during which the snipe runs
	MinPrice       book.Price    // the leg must already price in near-certainty
	TargetPrice    book.Price    // and still trade below this to leave profit at resolution
	TargetNotional book.Notional // fill target for the VWAP walk
	StaleAfter     int64         // snapshot age in nanos beyond which no signal fires
}

// Expiration snipes markets about to resolve: inside the window before the
// end time, a leg whose ask already prices in near-certainty but still
// trades at a discount is bought outright and held to resolution. Evaluate
// is pure, like the buy-both detector.
type Expiration struct {
	cfg ExpirationConfig
}

func NewExpiration(cfg ExpirationConfig) *Expiration {
	if cfg.TargetNotional <= 0 {
		cfg.TargetNotional = 100 * book.NotionalScale
	}
	return &Expiration{cfg: cfg}
}

// Evaluate checks both legs of a market inside its expiration window. YES
// is checked first; at most one snipe per evaluation. Markets without a
// known end time never qualify.
func (x *Expiration) Evaluate(m book.Market, yes, no *book.Book, now int64) (Signal, bool) {
	if m.EndTime <= 0 {
		return Signal{}, false
	}
	remaining := m.EndTime - now
	if remaining <= 0 || remaining > x.cfg.Window {
		return Signal{}, false
	}
	if sig, ok := x.leg(m.ID, yes, YesLeg, now); ok {
		return sig, true
	}
	return x.leg(m.ID, no, NoLeg, now)
}

func (x *Expiration) leg(marketID string, b *book.Book, leg Leg, now int64) (Signal, bool) {
	if b.Stale() || b.AgeExceeds(now, x.cfg.StaleAfter) {
		return Signal{}, false
	}
	vwap, filled := walkAsks(b, x.cfg.TargetNotional)
	if filled == 0 {
		return Signal{}, false
	}
	if vwap < x.cfg.MinPrice || vwap >= x.cfg.TargetPrice {
		return Signal{}, false
	}
	sig := Signal{
		Kind:     SignalExpiration,
		MarketID: marketID,
		Leg:      leg,
		Edge:     book.PriceScale - vwap,
		MaxSize:  filled,
		BookTime: b.UpdatedAt(),
	}
	if leg == YesLeg {
		sig.YesPrice = vwap
	} else {
		sig.NoPrice = vwap
	}
	return sig, true
}

// Detectors is the closed set of signal sources, evaluated through this
// single dispatch point. Order is fixed: a buy-both pair outranks an
// expiration snipe on the same market. A nil detector is disabled.
type Detectors struct {
	BuyBoth    *Detector
	Expiration *Expiration
}

func (d Detectors) Evaluate(m book.Market, yes, no *book.Book, now int64) (Signal, bool) {
	if d.BuyBoth != nil {
		if sig, ok := d.BuyBoth.Evaluate(m.ID, yes, no, now); ok {
			return sig, true
		}
	}
	if d.Expiration != nil {
		if sig, ok := d.Expiration.Evaluate(m, yes, no, now); ok {
			return sig, true
		}
	}
	return Signal{}, false
}
