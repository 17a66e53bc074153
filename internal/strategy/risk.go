package strategy

import "pm-arb-bot/internal/book"

// Limits are the portfolio guardrails, fixed-point like everything else on
// the decision path.
type Limits struct {
	MaxPositionCost book.Notional // per-market exposure cap
	MaxExposure     book.Notional // aggregate exposure cap
	MaxOpenCount    int
	StopLossPips    int64 // loss fraction of entry that forces an exit, pips
	MinHold         int64 // nanos a position must age before stop-loss applies
}

// Verdict is the outcome of one risk evaluation.
type Verdict struct {
	State  State
	Reason Reason
	Size   book.Size
	Cost   book.Notional
}

// Manager owns the portfolio and gates sized opportunities against it. One
// evaluation runs the cycle state machine Idle -> Evaluating -> Approved or
// Rejected; checks run in order and short-circuit on the first failure. A
// rejection is an expected outcome, not an error.
type Manager struct {
	limits    Limits
	portfolio *Portfolio
	sm        *StateMachine
}

func NewManager(limits Limits, portfolio *Portfolio) *Manager {
	return &Manager{limits: limits, portfolio: portfolio, sm: NewStateMachine()}
}

func (m *Manager) Portfolio() *Portfolio { return m.portfolio }
func (m *Manager) State() State          { return m.sm.Current() }

// Evaluate decides whether a trade of size shares at unitCost per pair may
// proceed for marketID.
func (m *Manager) Evaluate(marketID string, size book.Size, unitCost book.Price) Verdict {
	m.sm.Apply(EventReset)
	m.sm.Apply(EventEvaluate)
	cost := book.Cost(unitCost, size)

	if reason := m.check(marketID, size, cost); reason != ReasonNone {
		return Verdict{State: m.sm.Apply(EventReject), Reason: reason, Size: size, Cost: cost}
	}
	return Verdict{State: m.sm.Apply(EventApprove), Reason: ReasonNone, Size: size, Cost: cost}
}

func (m *Manager) check(marketID string, size book.Size, cost book.Notional) Reason {
	// One position per market: an open pair is never added to.
	if _, open := m.portfolio.Position(marketID); open {
		return ReasonMarketLimit
	}
	if m.limits.MaxPositionCost > 0 && cost > m.limits.MaxPositionCost {
		return ReasonMarketLimit
	}
	if m.limits.MaxExposure > 0 && m.portfolio.Exposure()+cost > m.limits.MaxExposure {
		return ReasonExposureCap
	}
	if m.limits.MaxOpenCount > 0 && m.portfolio.OpenCount() >= m.limits.MaxOpenCount {
		return ReasonPositionCount
	}
	if size <= 0 {
		return ReasonDegenerateSize
	}
	return ReasonNone
}

// StopLossHit reports whether a position's mark has breached the stop-loss
// threshold: mark below entry by more than the configured fraction, after
// the minimum hold time.
func (m *Manager) StopLossHit(pos *Position, mark book.Price, now int64) bool {
	if pos.ExitPending || pos.Size <= 0 || pos.EntryPrice <= 0 {
		return false
	}
	if now-pos.OpenedAt < m.limits.MinHold {
		return false
	}
	return int64(mark)*book.PriceScale < int64(pos.EntryPrice)*(book.PriceScale-m.limits.StopLossPips)
}

// ScanStopLoss walks open positions against current marks and flags each
// breach for forced exit exactly once. mark returns the combined bid value
// of one pair for a market; trigger emits the exit intent. Returns the
// number of positions flagged this cycle.
func (m *Manager) ScanStopLoss(now int64, mark func(marketID string) (book.Price, bool), trigger func(pos *Position, mark book.Price)) int {
	flagged := 0
	for _, pos := range m.portfolio.positions {
		price, ok := mark(pos.MarketID)
		if !ok {
			continue
		}
		if m.StopLossHit(pos, price, now) {
			pos.ExitPending = true
			flagged++
			trigger(pos, price)
		}
	}
	return flagged
}
