package strategy

import "pm-arb-bot/internal/book"

// Sizer turns a detected edge into a trade size: a Kelly-style bankroll
// fraction damped by a volatility factor, capped by the configured maximum
// fraction and by the signal's liquidity bound. Both legs of a buy-both
// trade fill atomically or are cancelled, so the win probability collapses
// to certainty and the raw fraction reduces to edge over one minus edge.
//
// The float inputs are folded into pip multipliers once, at construction;
// Size itself is pure integer arithmetic.
type Sizer struct {
	fractionCap int64 // maximum bankroll fraction, pips
	damping     int64 // volatility damping multiplier, pips of 1
}

// NewSizer builds a sizer from config. damping follows
// 1 - min(volatility * factor, 0.5): higher volatility shrinks the stake,
// capped at a 50% reduction.
func NewSizer(kellyFractionCap, volatility, dampingFactor float64) *Sizer {
	if kellyFractionCap <= 0 || kellyFractionCap > 1 {
		kellyFractionCap = 0.25
	}
	reduction := volatility * dampingFactor
	if reduction < 0 {
		reduction = 0
	}
	if reduction > 0.5 {
		reduction = 0.5
	}
	return &Sizer{
		fractionCap: int64(kellyFractionCap * book.PriceScale),
		damping:     int64((1 - reduction) * book.PriceScale),
	}
}

// Size returns the recommended trade size in shares for the signal given
// the current bankroll. The result never exceeds the fraction cap applied
// to bankroll nor the signal's liquidity bound; a non-positive edge or
// bankroll sizes to zero.
func (s *Sizer) Size(sig Signal, bankroll book.Notional) book.Size {
	if sig.Edge <= 0 || sig.Edge >= book.PriceScale || bankroll <= 0 {
		return 0
	}
	// Kelly fraction for a near-certain payoff: edge / (1 - edge), in pips.
	raw := int64(sig.Edge) * book.PriceScale / (book.PriceScale - int64(sig.Edge))
	fraction := raw * s.damping / book.PriceScale
	if fraction > s.fractionCap {
		fraction = s.fractionCap
	}
	if fraction <= 0 {
		return 0
	}
	stake := book.Notional(int64(bankroll) * fraction / book.PriceScale)
	size := book.Size(int64(stake) / int64(sig.Combined()))
	if size > sig.MaxSize {
		size = sig.MaxSize
	}
	if size < 0 {
		size = 0
	}
	return size
}
