package exec

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pm-arb-bot/internal/ring"
	"pm-arb-bot/internal/state"

	"go.uber.org/zap"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	return val, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryStore) Close() error { return nil }

type mockGateway struct {
	mu      sync.Mutex
	submits []OrderIntent
	cancels []string
	result  OrderResult
	fail    error
}

func (g *mockGateway) Submit(ctx context.Context, intent OrderIntent) (OrderResult, error) {
	_ = ctx
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submits = append(g.submits, intent)
	if g.fail != nil {
		return OrderResult{}, g.fail
	}
	result := g.result
	result.Intent = intent
	return result, nil
}

func (g *mockGateway) Cancel(ctx context.Context, orderID string) error {
	_ = ctx
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancels = append(g.cancels, orderID)
	return nil
}

func newExecutor(gw Gateway, store state.Store) (*Executor, *ring.Ring[OrderIntent], *ring.Ring[OrderResult]) {
	intents := ring.New[OrderIntent](16)
	results := ring.New[OrderResult](16)
	return New(gw, intents, results, store, zap.NewNop()), intents, results
}

func TestProcessFullFill(t *testing.T) {
	gw := &mockGateway{result: OrderResult{Status: StatusAccepted, OrderID: "oid-1", FilledSize: 1000, AvgPrice: 4700}}
	e, _, results := newExecutor(gw, newMemoryStore())

	intent := OrderIntent{MarketID: "mkt-1", Asset: "yes-1", Side: "BUY", Price: 4700, Size: 1000, ClientID: "c-1"}
	e.process(context.Background(), intent)

	res, ok := results.Pop()
	if !ok {
		t.Fatalf("expected result pushed")
	}
	if res.Status != StatusAccepted || res.FilledSize != 1000 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(gw.cancels) != 0 {
		t.Fatalf("expected no cancel on full fill, got %v", gw.cancels)
	}
}

func TestProcessPartialFillCancelsRemainder(t *testing.T) {
	gw := &mockGateway{result: OrderResult{Status: StatusAccepted, OrderID: "oid-1", FilledSize: 400, AvgPrice: 4700}}
	e, _, results := newExecutor(gw, nil)

	e.process(context.Background(), OrderIntent{MarketID: "mkt-1", Side: "BUY", Price: 4700, Size: 1000})

	if len(gw.cancels) != 1 || gw.cancels[0] != "oid-1" {
		t.Fatalf("expected remainder cancel for oid-1, got %v", gw.cancels)
	}
	res, _ := results.Pop()
	if res.FilledSize != 400 {
		t.Fatalf("expected partial fill surfaced, got %+v", res)
	}
}

func TestProcessGatewayErrorBecomesRejectedResult(t *testing.T) {
	gw := &mockGateway{fail: errors.New("relay unreachable")}
	e, _, results := newExecutor(gw, nil)

	e.process(context.Background(), OrderIntent{MarketID: "mkt-1", Size: 100, Price: 4700})

	res, ok := results.Pop()
	if !ok {
		t.Fatalf("expected rejected result pushed")
	}
	if res.Status != StatusRejected || res.Err == "" {
		t.Fatalf("expected rejection with error, got %+v", res)
	}
	if len(gw.submits) != 1 {
		t.Fatalf("expected exactly one submit, no retry, got %d", len(gw.submits))
	}
}

func TestProcessSuppressesDuplicateClientID(t *testing.T) {
	store := newMemoryStore()
	gw := &mockGateway{result: OrderResult{Status: StatusAccepted, OrderID: "oid-1", FilledSize: 100, AvgPrice: 4700}}
	e, _, results := newExecutor(gw, store)

	intent := OrderIntent{MarketID: "mkt-1", Size: 100, Price: 4700, ClientID: "c-1"}
	e.process(context.Background(), intent)
	e.process(context.Background(), intent)

	if len(gw.submits) != 1 {
		t.Fatalf("expected single submit for duplicate client id, got %d", len(gw.submits))
	}
	if _, ok := results.Pop(); !ok {
		t.Fatalf("expected first result")
	}
	if _, ok := results.Pop(); ok {
		t.Fatalf("expected no result for suppressed duplicate")
	}

	// A fresh executor sharing the store inherits the suppression.
	e2, _, _ := newExecutor(gw, store)
	e2.process(context.Background(), intent)
	if len(gw.submits) != 1 {
		t.Fatalf("expected persisted suppression across restart, got %d submits", len(gw.submits))
	}
}

func TestRunDrainsRing(t *testing.T) {
	gw := &mockGateway{result: OrderResult{Status: StatusAccepted, OrderID: "oid-1", FilledSize: 100, AvgPrice: 4700}}
	e, intents, results := newExecutor(gw, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	intents.Push(OrderIntent{MarketID: "mkt-1", Size: 100, Price: 4700})
	deadline := time.After(2 * time.Second)
	for {
		if _, ok := results.Pop(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for result")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
	<-done
}
