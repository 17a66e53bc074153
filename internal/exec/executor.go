package exec

import (
	"context"
	"sync"
	"time"

	"pm-arb-bot/internal/ring"
	"pm-arb-bot/internal/state"

	"go.uber.org/zap"
)

const idlePoll = time.Millisecond

// Executor is the worker between the decision thread and the gateway. It
// drains the intent ring, submits each intent once, cancels unfilled
// remainders best-effort, and pushes results back for reconciliation. The
// decision thread never waits on it. Duplicate client ids are suppressed
// through the state store so a restart cannot double-submit.
type Executor struct {
	gw      Gateway
	intents *ring.Ring[OrderIntent]
	results *ring.Ring[OrderResult]
	store   state.Store
	log     *zap.Logger

	mu   sync.Mutex
	seen map[string]string // client id -> order id
}

func New(gw Gateway, intents *ring.Ring[OrderIntent], results *ring.Ring[OrderResult], store state.Store, log *zap.Logger) *Executor {
	return &Executor{
		gw:      gw,
		intents: intents,
		results: results,
		store:   store,
		log:     log,
		seen:    make(map[string]string),
	}
}

// Run polls the intent ring until ctx is done.
func (e *Executor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		intent, ok := e.intents.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(idlePoll):
			}
			continue
		}
		e.process(ctx, intent)
	}
}

func (e *Executor) process(ctx context.Context, intent OrderIntent) {
	if intent.ClientID != "" && e.alreadySubmitted(ctx, intent.ClientID) {
		e.log.Debug("duplicate intent suppressed", zap.String("client_id", intent.ClientID))
		return
	}
	result, err := e.gw.Submit(ctx, intent)
	if err != nil {
		// Execution failures surface as rejected results; retry policy
		// belongs to the gateway, not here.
		result = OrderResult{Intent: intent, Status: StatusRejected, Err: err.Error()}
	}
	if intent.ClientID != "" && result.Status == StatusAccepted {
		e.remember(ctx, intent.ClientID, result.OrderID)
	}
	if result.Status == StatusAccepted && result.FilledSize < intent.Size && result.OrderID != "" {
		if err := e.gw.Cancel(ctx, result.OrderID); err != nil {
			e.log.Warn("remainder cancel failed",
				zap.String("order_id", result.OrderID),
				zap.Error(err))
		}
	}
	if !e.results.Push(result) {
		e.log.Error("result ring full, fill reconciliation lost",
			zap.String("market_id", intent.MarketID),
			zap.String("order_id", result.OrderID))
	}
}

func (e *Executor) alreadySubmitted(ctx context.Context, clientID string) bool {
	e.mu.Lock()
	_, ok := e.seen[clientID]
	e.mu.Unlock()
	if ok {
		return true
	}
	if e.store == nil {
		return false
	}
	oid, found, err := e.store.Get(ctx, submitKey(clientID))
	if err != nil {
		e.log.Warn("idempotency lookup failed", zap.Error(err))
		return false
	}
	if found {
		e.mu.Lock()
		e.seen[clientID] = oid
		e.mu.Unlock()
	}
	return found
}

func (e *Executor) remember(ctx context.Context, clientID, orderID string) {
	e.mu.Lock()
	e.seen[clientID] = orderID
	e.mu.Unlock()
	if e.store == nil {
		return
	}
	if err := e.store.Set(ctx, submitKey(clientID), orderID); err != nil {
		e.log.Warn("failed to persist submitted order id", zap.Error(err))
	}
}

func submitKey(clientID string) string { return "submitted:" + clientID }
