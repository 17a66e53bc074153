package app

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"pm-arb-bot/internal/alerts"
	"pm-arb-bot/internal/book"
	"pm-arb-bot/internal/exec"
	"pm-arb-bot/internal/feed"
	"pm-arb-bot/internal/history"
	"pm-arb-bot/internal/metrics"
	"pm-arb-bot/internal/ring"
	"pm-arb-bot/internal/state"
	"pm-arb-bot/internal/strategy"

	"go.uber.org/zap"
)

// touchedCap bounds markets evaluated per cycle. With maxDrain popped
// updates per cycle this cannot overflow in practice; overflow degrades to
// evaluating the market on a later cycle, never to a miss.
const touchedCap = 64

type notifier interface {
	Send(ctx context.Context, message string) error
}

type resyncer interface {
	RequestResync(ctx context.Context, asset string)
}

// engine is the decision thread. It owns the book store, the strategy
// components, and the consumer side of the feed ring plus both executor
// rings. Nothing here blocks: ring pops are polls, persistence and alerts
// are hand-offs, and every per-cycle walk is bounded.
type engine struct {
	books    *book.Store
	updates  *ring.Ring[feed.Update]
	intents  *ring.Ring[exec.OrderIntent]
	results  *ring.Ring[exec.OrderResult]
	detector strategy.Detectors
	sizer    *strategy.Sizer
	risk     *strategy.Manager
	met      *metrics.Metrics
	history  *history.Writer
	alerts   notifier
	resync   resyncer
	log      *zap.Logger

	maxDrain   int
	spinBudget int

	// pendingEntries tracks in-flight entry legs per market. A market with
	// an entry in flight is not re-entered; when the legs drain and a
	// buy-both position came back one-legged, the orphan leg is unwound.
	pendingEntries map[string]inflightEntry

	// pendingExits counts in-flight exit legs per market. Only once every
	// leg has reported does the position become eligible for another
	// stop-loss pass, so a partial exit fill is retried rather than
	// stranded behind a pending flag.
	pendingExits map[string]int

	touched  [touchedCap]string
	nTouched int

	// snapshots hands portfolio persistence to the saver goroutine;
	// capacity one, newest wins.
	snapshots chan state.PortfolioSnapshot
	view      atomic.Pointer[strategy.View]
}

type engineDeps struct {
	books    *book.Store
	updates  *ring.Ring[feed.Update]
	intents  *ring.Ring[exec.OrderIntent]
	results  *ring.Ring[exec.OrderResult]
	detector strategy.Detectors
	sizer    *strategy.Sizer
	risk     *strategy.Manager
	met      *metrics.Metrics
	history  *history.Writer
	alerts   notifier
	resync   resyncer
	log      *zap.Logger

	maxDrain   int
	spinBudget int
}

// inflightEntry tracks one market's entry legs awaiting executor results.
// single marks an expiration snipe: one leg, held to resolution, never
// unwound for being unbalanced.
type inflightEntry struct {
	remaining int
	single    bool
}

func newEngine(deps engineDeps) *engine {
	if deps.met == nil {
		deps.met = metrics.NewNoop()
	}
	if deps.maxDrain <= 0 {
		deps.maxDrain = 64
	}
	if deps.spinBudget <= 0 {
		deps.spinBudget = 1000
	}
	e := &engine{
		books:          deps.books,
		updates:        deps.updates,
		intents:        deps.intents,
		results:        deps.results,
		detector:       deps.detector,
		sizer:          deps.sizer,
		risk:           deps.risk,
		met:            deps.met,
		history:        deps.history,
		alerts:         deps.alerts,
		resync:         deps.resync,
		log:            deps.log,
		maxDrain:       deps.maxDrain,
		spinBudget:     deps.spinBudget,
		pendingEntries: make(map[string]inflightEntry),
		pendingExits:   make(map[string]int),
		snapshots:      make(chan state.PortfolioSnapshot, 1),
	}
	e.publish()
	return e
}

// View returns the last published portfolio view. Readers off the decision
// thread get a consistent copy, at most one reconcile behind.
func (e *engine) View() *strategy.View {
	return e.view.Load()
}

// loop runs decision cycles until ctx is done, optionally pinned to a CPU
// core. Idle cycles spin within the budget, then yield the processor; the
// loop never parks on a lock or a channel.
func (e *engine) loop(ctx context.Context, core int) error {
	if core >= 0 {
		unpin, err := ring.Pin(core)
		if err != nil {
			e.log.Warn("decision thread pin failed", zap.Int("core", core), zap.Error(err))
		} else {
			defer unpin()
		}
	} else {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	misses := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.cycle(time.Now().UnixNano()) {
			misses = 0
			continue
		}
		misses++
		if misses >= e.spinBudget {
			misses = 0
			runtime.Gosched()
		}
	}
}

// cycle runs one decision pass and reports whether it did any work.
func (e *engine) cycle(now int64) bool {
	worked := e.drainResults(now)
	if e.drainUpdates() {
		worked = true
	}
	if e.nTouched > 0 {
		e.evaluateTouched(now)
		worked = true
	}
	if e.scanStopLoss(now) > 0 {
		worked = true
	}
	return worked
}

func (e *engine) drainResults(now int64) bool {
	drained := false
	for i := 0; i < e.maxDrain; i++ {
		res, ok := e.results.Pop()
		if !ok {
			break
		}
		drained = true
		e.reconcile(&res, now)
	}
	if drained {
		e.publish()
		e.queueSnapshot(now)
	}
	return drained
}

func (e *engine) reconcile(res *exec.OrderResult, now int64) {
	marketID := res.Intent.MarketID
	e.recordOrder(res, now)
	leg, ok := e.legFor(marketID, res.Intent.Asset)
	if !ok {
		e.log.Warn("result for unknown market", zap.String("market", marketID), zap.String("asset", res.Intent.Asset))
		return
	}
	pf := e.risk.Portfolio()
	switch res.Intent.Kind {
	case exec.KindEntry:
		if res.Status == exec.StatusAccepted && res.FilledSize > 0 {
			pf.ApplyEntryFill(marketID, leg, res.FilledSize, res.AvgPrice, now)
		} else {
			e.met.OrdersFailed.Inc()
			e.log.Warn("entry leg failed",
				zap.String("market", marketID),
				zap.String("leg", leg.String()),
				zap.String("error", res.Err))
		}
		e.entryLegDone(marketID, now)
	case exec.KindExit:
		if res.Status == exec.StatusAccepted && res.FilledSize > 0 {
			realizedBefore := pf.Realized()
			pf.ApplyExitFill(marketID, leg, res.FilledSize, res.AvgPrice)
			if _, open := pf.Position(marketID); !open {
				e.notifyClosed(marketID, res, pf.Realized()-realizedBefore)
			}
		} else {
			e.met.OrdersFailed.Inc()
			e.log.Warn("exit leg failed",
				zap.String("market", marketID),
				zap.String("leg", leg.String()),
				zap.String("error", res.Err))
		}
		e.exitLegDone(marketID)
	}
}

// exitLegDone retires one in-flight exit leg. Once every leg has reported,
// whatever remains held (a partial fill, a rejected leg) is handed back to
// the stop-loss scan for another pass.
func (e *engine) exitLegDone(marketID string) {
	n, ok := e.pendingExits[marketID]
	if !ok {
		return
	}
	n--
	if n > 0 {
		e.pendingExits[marketID] = n
		return
	}
	delete(e.pendingExits, marketID)
	if pos, open := e.risk.Portfolio().Position(marketID); open {
		pos.ExitPending = false
	}
}

// entryLegDone retires one in-flight entry leg. Once every leg has
// reported, a balanced buy-both position or a filled snipe is announced; a
// one-legged buy-both is unwound immediately, the trade is both or nothing.
func (e *engine) entryLegDone(marketID string, now int64) {
	inflight, ok := e.pendingEntries[marketID]
	if !ok {
		return
	}
	inflight.remaining--
	if inflight.remaining > 0 {
		e.pendingEntries[marketID] = inflight
		return
	}
	delete(e.pendingEntries, marketID)
	pf := e.risk.Portfolio()
	pos, open := pf.Position(marketID)
	if !open {
		return
	}
	if inflight.single || (pos.Size > 0 && pos.YesSize == pos.NoSize) {
		e.notifyOpened(pos)
		return
	}
	e.log.Warn("unwinding one-legged entry",
		zap.String("market", marketID),
		zap.Int64("yes_size", int64(pos.YesSize)),
		zap.Int64("no_size", int64(pos.NoSize)))
	pos.ExitPending = true
	if !e.submitExit(pos, now) {
		pos.ExitPending = false
	}
}

func (e *engine) drainUpdates() bool {
	drained := false
	for i := 0; i < e.maxDrain; i++ {
		u, ok := e.updates.Pop()
		if !ok {
			break
		}
		drained = true
		e.applyUpdate(&u)
	}
	return drained
}

func (e *engine) applyUpdate(u *feed.Update) {
	b, ok := e.books.Book(u.Asset)
	if !ok {
		return
	}
	switch u.Kind {
	case feed.KindSnapshot:
		if err := b.ApplySnapshot(u.Bids[:u.NBids], u.Asks[:u.NAsks], u.Seq, u.Timestamp); err != nil {
			e.met.InvalidBooks.Inc()
			e.log.Warn("snapshot rejected", zap.String("asset", u.Asset), zap.Error(err))
			return
		}
	case feed.KindDelta:
		if err := b.ApplyDelta(u.Side, u.Price, u.Size, u.Seq, u.Timestamp); err != nil {
			// A gap fires exactly once per degradation; stale books swallow
			// further deltas until the requested snapshot lands.
			if err == book.ErrSequenceGap && e.resync != nil {
				e.log.Warn("sequence gap", zap.String("asset", u.Asset), zap.Uint64("got", u.Seq))
				e.resync.RequestResync(context.Background(), u.Asset)
			}
			return
		}
	}
	if m, ok := e.books.MarketForAsset(u.Asset); ok {
		e.touch(m.ID)
	}
}

func (e *engine) touch(marketID string) {
	for i := 0; i < e.nTouched; i++ {
		if e.touched[i] == marketID {
			return
		}
	}
	if e.nTouched == touchedCap {
		return
	}
	e.touched[e.nTouched] = marketID
	e.nTouched++
}

func (e *engine) evaluateTouched(now int64) {
	for i := 0; i < e.nTouched; i++ {
		e.evaluateMarket(e.touched[i], now)
		e.touched[i] = ""
	}
	e.nTouched = 0
}

func (e *engine) evaluateMarket(marketID string, now int64) {
	m, ok := e.books.Market(marketID)
	if !ok {
		return
	}
	yes, no, ok := e.books.Pair(marketID)
	if !ok {
		return
	}
	sig, ok := e.detector.Evaluate(m, yes, no, now)
	if !ok {
		return
	}
	e.met.OpportunitiesDetected.Inc()
	if _, inflight := e.pendingEntries[marketID]; inflight {
		return
	}
	pf := e.risk.Portfolio()
	size := e.sizer.Size(sig, pf.Bankroll())
	verdict := e.risk.Evaluate(marketID, size, sig.Combined())
	e.recordSignal(&sig, &verdict, now)
	if verdict.State != strategy.StateApproved {
		e.met.OpportunitiesRejected.Inc()
		return
	}
	e.submitEntry(marketID, &sig, verdict.Size, now)
}

func (e *engine) submitEntry(marketID string, sig *strategy.Signal, size book.Size, now int64) {
	m, ok := e.books.Market(marketID)
	if !ok {
		return
	}
	cid := fmt.Sprintf("%s:%d", marketID, now)
	if sig.Kind == strategy.SignalExpiration {
		asset, price, suffix := m.YesAsset, sig.YesPrice, ":yes"
		if sig.Leg == strategy.NoLeg {
			asset, price, suffix = m.NoAsset, sig.NoPrice, ":no"
		}
		intent := exec.OrderIntent{
			MarketID: marketID,
			Asset:    asset,
			Side:     "BUY",
			Price:    price,
			Size:     size,
			Kind:     exec.KindEntry,
			ClientID: cid + suffix,
		}
		if !e.intents.Push(intent) {
			e.met.IntentDropped.Inc()
			e.log.Warn("intent ring full, entry leg dropped", zap.String("market", marketID))
			return
		}
		e.met.OrdersSubmitted.Inc()
		e.pendingEntries[marketID] = inflightEntry{remaining: 1, single: true}
		return
	}
	legs := [2]exec.OrderIntent{
		{
			MarketID: marketID,
			Asset:    m.YesAsset,
			Side:     "BUY",
			Price:    sig.YesPrice,
			Size:     size,
			Kind:     exec.KindEntry,
			ClientID: cid + ":yes",
		},
		{
			MarketID: marketID,
			Asset:    m.NoAsset,
			Side:     "BUY",
			Price:    sig.NoPrice,
			Size:     size,
			Kind:     exec.KindEntry,
			ClientID: cid + ":no",
		},
	}
	submitted := 0
	for _, intent := range legs {
		if !e.intents.Push(intent) {
			e.met.IntentDropped.Inc()
			e.log.Warn("intent ring full, entry leg dropped", zap.String("market", marketID))
			break
		}
		submitted++
		e.met.OrdersSubmitted.Inc()
	}
	if submitted > 0 {
		e.pendingEntries[marketID] = inflightEntry{remaining: submitted}
	}
}

// scanStopLoss returns the number of positions flagged for exit this pass.
func (e *engine) scanStopLoss(now int64) int {
	pf := e.risk.Portfolio()
	if pf.OpenCount() == 0 {
		return 0
	}
	return e.risk.ScanStopLoss(now, e.markPair, func(pos *strategy.Position, mark book.Price) {
		e.met.StopLossTriggered.Inc()
		e.log.Warn("stop loss triggered",
			zap.String("market", pos.MarketID),
			zap.Int64("entry", int64(pos.EntryPrice)),
			zap.Int64("mark", int64(mark)))
		e.recordStopLoss(pos, mark, now)
		e.notifyStopLoss(pos, mark)
		if !e.submitExit(pos, now) {
			pos.ExitPending = false
		}
	})
}

// markPair values one pair at current bids: what selling both legs now
// would fetch. No mark is produced from a stale or one-sided book.
func (e *engine) markPair(marketID string) (book.Price, bool) {
	yes, no, ok := e.books.Pair(marketID)
	if !ok || yes.Stale() || no.Stale() {
		return 0, false
	}
	yb, ok := yes.BestBid()
	if !ok {
		return 0, false
	}
	nb, ok := no.BestBid()
	if !ok {
		return 0, false
	}
	return yb.Price + nb.Price, true
}

// submitExit pushes sell intents for every held leg and records each as an
// in-flight exit. Returns false only when nothing was pushed, so the caller
// can drop the pending flag and let the exit re-trigger later; a partially
// pushed exit stays pending until its legs report.
func (e *engine) submitExit(pos *strategy.Position, now int64) bool {
	m, ok := e.books.Market(pos.MarketID)
	if !ok {
		return false
	}
	yes, no, _ := e.books.Pair(pos.MarketID)
	cid := fmt.Sprintf("%s:%d", pos.MarketID, now)
	pushed := 0
	if pos.YesSize > 0 && e.pushExit(m.YesAsset, pos, pos.YesSize, exitPrice(yes, pos.EntryPrice), cid+":yes") {
		pushed++
	}
	if pos.NoSize > 0 && e.pushExit(m.NoAsset, pos, pos.NoSize, exitPrice(no, pos.EntryPrice), cid+":no") {
		pushed++
	}
	if pushed == 0 {
		return false
	}
	e.pendingExits[pos.MarketID] += pushed
	return true
}

func (e *engine) pushExit(asset string, pos *strategy.Position, size book.Size, price book.Price, cid string) bool {
	intent := exec.OrderIntent{
		MarketID: pos.MarketID,
		Asset:    asset,
		Side:     "SELL",
		Price:    price,
		Size:     size,
		Kind:     exec.KindExit,
		ClientID: cid,
	}
	if !e.intents.Push(intent) {
		e.met.IntentDropped.Inc()
		e.log.Warn("intent ring full, exit leg dropped", zap.String("market", pos.MarketID))
		return false
	}
	e.met.OrdersSubmitted.Inc()
	return true
}

// exitPrice picks an aggressive sell limit: the current best bid, or a
// floor of one pip when the book offers nothing to hit.
func exitPrice(b *book.Book, fallback book.Price) book.Price {
	if b != nil {
		if bid, ok := b.BestBid(); ok {
			return bid.Price
		}
	}
	if fallback > 1 {
		return fallback / 2
	}
	return 1
}

func (e *engine) legFor(marketID, asset string) (strategy.Leg, bool) {
	m, ok := e.books.Market(marketID)
	if !ok {
		return strategy.YesLeg, false
	}
	if asset == m.NoAsset {
		return strategy.NoLeg, true
	}
	return strategy.YesLeg, asset == m.YesAsset
}

func (e *engine) publish() {
	v := e.risk.Portfolio().Snapshot()
	e.view.Store(&v)
}

// queueSnapshot hands the current portfolio to the saver goroutine. The
// channel holds one element; a newer snapshot displaces an unsaved older
// one rather than blocking the decision thread.
func (e *engine) queueSnapshot(now int64) {
	snap := state.SnapshotPortfolio(e.risk.Portfolio(), now/int64(time.Millisecond))
	for {
		select {
		case e.snapshots <- snap:
			return
		default:
		}
		select {
		case <-e.snapshots:
		default:
		}
	}
}

func (e *engine) recordSignal(sig *strategy.Signal, verdict *strategy.Verdict, now int64) {
	if e.history == nil {
		return
	}
	reason := ""
	if verdict.Reason != strategy.ReasonNone {
		reason = verdict.Reason.String()
	}
	e.history.EnqueueSignal(history.Signal{
		Time:         time.Unix(0, now).UTC(),
		MarketID:     sig.MarketID,
		Edge:         sig.Edge.Float(),
		YesPrice:     sig.YesPrice.Float(),
		NoPrice:      sig.NoPrice.Float(),
		MaxSize:      sig.MaxSize.Float(),
		Approved:     verdict.State == strategy.StateApproved,
		RejectReason: reason,
	})
}

func (e *engine) recordOrder(res *exec.OrderResult, now int64) {
	if e.history == nil {
		return
	}
	e.history.EnqueueOrder(history.Order{
		Time:       time.Unix(0, now).UTC(),
		MarketID:   res.Intent.MarketID,
		Asset:      res.Intent.Asset,
		Side:       res.Intent.Side,
		Kind:       res.Intent.Kind.String(),
		ClientID:   res.Intent.ClientID,
		OrderID:    res.OrderID,
		Status:     res.Status.String(),
		Price:      res.Intent.Price.Float(),
		FilledSize: res.FilledSize.Float(),
		AvgPrice:   res.AvgPrice.Float(),
		Error:      res.Err,
	})
}

func (e *engine) recordStopLoss(pos *strategy.Position, mark book.Price, now int64) {
	if e.history == nil {
		return
	}
	e.history.EnqueueStopLoss(history.StopLoss{
		Time:       time.Unix(0, now).UTC(),
		MarketID:   pos.MarketID,
		EntryPrice: pos.EntryPrice.Float(),
		MarkPrice:  mark.Float(),
		Size:       pos.Size.Float(),
	})
}

func (e *engine) notifyOpened(pos *strategy.Position) {
	// A snipe holds one leg, so its pair count is zero; report the held
	// share size instead.
	held := pos.Size
	if held == 0 {
		held = pos.YesSize + pos.NoSize
	}
	e.log.Info("position opened",
		zap.String("market", pos.MarketID),
		zap.Float64("size", held.Float()),
		zap.Float64("cost_usd", pos.Cost.Float()),
		zap.Float64("entry", pos.EntryPrice.Float()))
	if e.alerts == nil {
		return
	}
	question := ""
	if m, ok := e.books.Market(pos.MarketID); ok {
		question = m.Question
	}
	edge := 1 - pos.EntryPrice.Float()
	msg := alerts.EntryMessage(pos.MarketID, question, held.Float(), pos.Cost.Float(), edge)
	e.sendAlert(msg)
}

func (e *engine) notifyClosed(marketID string, res *exec.OrderResult, realized book.Notional) {
	e.log.Info("position closed",
		zap.String("market", marketID),
		zap.Float64("realized_usd", realized.Float()))
	if e.alerts == nil {
		return
	}
	proceeds := book.Cost(res.AvgPrice, res.FilledSize)
	msg := alerts.ExitMessage(marketID, res.FilledSize.Float(), proceeds.Float(), realized.Float())
	e.sendAlert(msg)
}

func (e *engine) notifyStopLoss(pos *strategy.Position, mark book.Price) {
	if e.alerts == nil {
		return
	}
	msg := alerts.StopLossMessage(pos.MarketID, pos.EntryPrice.Float(), mark.Float(), pos.Size.Float())
	e.sendAlert(msg)
}

// sendAlert fires the notification off-thread; alert delivery must never
// gate a decision cycle.
func (e *engine) sendAlert(msg string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.alerts.Send(ctx, msg); err != nil {
			e.log.Warn("alert send failed", zap.Error(err))
		}
	}()
}
