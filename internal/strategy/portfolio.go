package strategy

import "pm-arb-bot/internal/book"

// Leg identifies which outcome token a fill belongs to.
type Leg uint8

const (
	YesLeg Leg = iota
	NoLeg
)

func (l Leg) String() string {
	if l == YesLeg {
		return "yes"
	}
	return "no"
}

// Position is one market's open holding. Size is the matched pair count,
// the smaller of the two legs; an expiration snipe holds one leg and has
// Size zero. Cost is the summed entry notional across legs. Positions are
// created and mutated only by the risk manager on the decision thread.
type Position struct {
	MarketID    string
	YesSize     book.Size
	NoSize      book.Size
	Size        book.Size
	EntryPrice  book.Price // combined entry cost per matched pair
	Cost        book.Notional
	Proceeds    book.Notional // accumulated exit proceeds
	OpenedAt    int64
	ExitPending bool
}

// Portfolio is the process-wide position and capital state. It has exactly
// one writer, the risk manager; external readers get copies through View.
type Portfolio struct {
	capital   book.Notional
	realized  book.Notional
	exposure  book.Notional
	positions map[string]*Position
}

func NewPortfolio(capital book.Notional) *Portfolio {
	return &Portfolio{
		capital:   capital,
		positions: make(map[string]*Position),
	}
}

func (p *Portfolio) Position(marketID string) (*Position, bool) {
	pos, ok := p.positions[marketID]
	return pos, ok
}

func (p *Portfolio) OpenCount() int          { return len(p.positions) }
func (p *Portfolio) Exposure() book.Notional { return p.exposure }
func (p *Portfolio) Realized() book.Notional { return p.realized }

// Bankroll is the capital still available for new positions.
func (p *Portfolio) Bankroll() book.Notional {
	free := p.capital + p.realized - p.exposure
	if free < 0 {
		return 0
	}
	return free
}

// ApplyEntryFill records an accepted entry fill for one leg. The position
// is created on the first fill; the entry price re-weights as legs land.
func (p *Portfolio) ApplyEntryFill(marketID string, leg Leg, filled book.Size, avgPrice book.Price, now int64) {
	if filled <= 0 {
		return
	}
	pos, ok := p.positions[marketID]
	if !ok {
		pos = &Position{MarketID: marketID, OpenedAt: now}
		p.positions[marketID] = pos
	}
	cost := book.Cost(avgPrice, filled)
	pos.Cost += cost
	p.exposure += cost
	if leg == YesLeg {
		pos.YesSize += filled
	} else {
		pos.NoSize += filled
	}
	pos.Size = minSize(pos.YesSize, pos.NoSize)
	// For a matched pair EntryPrice is cost per pair; a single-leg holding
	// (an expiration snipe, or one leg landing before the other) prices per
	// share held so far.
	basis := pos.Size
	if basis == 0 {
		basis = pos.YesSize + pos.NoSize
	}
	if basis > 0 {
		pos.EntryPrice = book.Price(int64(pos.Cost) / int64(basis))
	}
}

// ApplyExitFill records an exit fill for one leg. When both legs are flat
// the position closes and the realized PnL books proceeds minus cost.
func (p *Portfolio) ApplyExitFill(marketID string, leg Leg, filled book.Size, avgPrice book.Price) {
	pos, ok := p.positions[marketID]
	if !ok {
		return
	}
	if leg == YesLeg {
		pos.YesSize -= filled
		if pos.YesSize < 0 {
			pos.YesSize = 0
		}
	} else {
		pos.NoSize -= filled
		if pos.NoSize < 0 {
			pos.NoSize = 0
		}
	}
	pos.Proceeds += book.Cost(avgPrice, filled)
	pos.Size = minSize(pos.YesSize, pos.NoSize)
	if pos.YesSize == 0 && pos.NoSize == 0 {
		p.realized += pos.Proceeds - pos.Cost
		p.exposure -= pos.Cost
		delete(p.positions, marketID)
	}
}

// Restore repopulates positions from persisted state at startup.
func (p *Portfolio) Restore(positions []Position, realized book.Notional) {
	p.realized = realized
	p.exposure = 0
	p.positions = make(map[string]*Position, len(positions))
	for i := range positions {
		pos := positions[i]
		pos.ExitPending = false
		p.positions[pos.MarketID] = &pos
		p.exposure += pos.Cost
	}
}

// PositionView is a copy of one position for reporting.
type PositionView struct {
	MarketID   string
	Size       float64
	EntryPrice float64
	CostUSD    float64
	OpenedAt   int64
}

// View is an eventually-consistent copy of the portfolio for readers off
// the decision thread.
type View struct {
	CapitalUSD  float64
	RealizedUSD float64
	ExposureUSD float64
	BankrollUSD float64
	Positions   []PositionView
}

// Snapshot builds a View. It allocates and is meant for the reporting path,
// not the decision loop.
func (p *Portfolio) Snapshot() View {
	v := View{
		CapitalUSD:  p.capital.Float(),
		RealizedUSD: p.realized.Float(),
		ExposureUSD: p.exposure.Float(),
		BankrollUSD: p.Bankroll().Float(),
		Positions:   make([]PositionView, 0, len(p.positions)),
	}
	for _, pos := range p.positions {
		v.Positions = append(v.Positions, PositionView{
			MarketID:   pos.MarketID,
			Size:       pos.Size.Float(),
			EntryPrice: pos.EntryPrice.Float(),
			CostUSD:    pos.Cost.Float(),
			OpenedAt:   pos.OpenedAt,
		})
	}
	return v
}

// Positions appends copies of all open positions to dst, for persistence.
func (p *Portfolio) Positions(dst []Position) []Position {
	for _, pos := range p.positions {
		dst = append(dst, *pos)
	}
	return dst
}

func minSize(a, b book.Size) book.Size {
	if a < b {
		return a
	}
	return b
}
