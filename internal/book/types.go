package book

// Prices, sizes, and money are scaled integers so that the decision path
// never compares floats. A price in pips times a size in hundredths lands
// exactly on the notional scale, so cost accumulation needs no division.
const (
	PriceScale    = 10_000    // pips of $1: $0.47 = 4700
	SizeScale     = 100       // hundredths of a share
	NotionalScale = 1_000_000 // micro-dollars; PriceScale * SizeScale
)

// Price is a token price in pips. Valid outcome-token prices are in (0, PriceScale].
type Price int64

// Size is a share quantity in hundredths.
type Size int64

// Notional is a dollar amount in micro-dollars.
type Notional int64

// Cost is the exact notional of size shares at price, with no rounding.
func Cost(p Price, s Size) Notional {
	return Notional(int64(p) * int64(s))
}

// PriceFromFloat converts a dollar price to pips, rounding to nearest.
// Boundary use only; the decision path never sees the float.
func PriceFromFloat(f float64) Price {
	if f < 0 {
		return 0
	}
	return Price(f*PriceScale + 0.5)
}

// SizeFromFloat converts a share quantity to hundredths, rounding down so a
// parsed size never claims more liquidity than the feed reported.
func SizeFromFloat(f float64) Size {
	if f < 0 {
		return 0
	}
	return Size(f * SizeScale)
}

// NotionalFromFloat converts dollars to micro-dollars, rounding down.
func NotionalFromFloat(f float64) Notional {
	if f < 0 {
		return 0
	}
	return Notional(f * NotionalScale)
}

func (p Price) Float() float64    { return float64(p) / PriceScale }
func (s Size) Float() float64     { return float64(s) / SizeScale }
func (n Notional) Float() float64 { return float64(n) / NotionalScale }

// Level is one aggregated price level of an L2 book.
type Level struct {
	Price Price
	Size  Size
}

// Side identifies which half of the book an update targets.
type Side uint8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}
