package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

const gammaPage = `[
	{
		"conditionId": "mkt-1",
		"question": "Will it rain tomorrow?",
		"outcomes": "[\"Yes\", \"No\"]",
		"clobTokenIds": "[\"tok-yes-1\", \"tok-no-1\"]",
		"liquidity": "5000",
		"volume": 12000,
		"endDateIso": "2026-09-01T12:00:00Z",
		"active": true,
		"closed": false
	},
	{
		"conditionId": "mkt-2",
		"question": "Flipped outcome order",
		"outcomes": "[\"No\", \"Yes\"]",
		"clobTokenIds": "[\"tok-no-2\", \"tok-yes-2\"]",
		"liquidity": 9000,
		"volume": "3000",
		"active": true,
		"closed": false
	},
	{
		"conditionId": "mkt-thin",
		"question": "Below the liquidity floor",
		"outcomes": "[\"Yes\", \"No\"]",
		"clobTokenIds": "[\"t1\", \"t2\"]",
		"liquidity": "10",
		"volume": "10",
		"active": true,
		"closed": false
	},
	{
		"conditionId": "mkt-multi",
		"question": "Not binary",
		"outcomes": "[\"A\", \"B\", \"C\"]",
		"clobTokenIds": "[\"x\", \"y\", \"z\"]",
		"liquidity": "9999",
		"volume": "9999",
		"active": true,
		"closed": false
	},
	{
		"conditionId": "mkt-closed",
		"question": "Already resolved",
		"outcomes": "[\"Yes\", \"No\"]",
		"clobTokenIds": "[\"c1\", \"c2\"]",
		"liquidity": "9999",
		"volume": "9999",
		"active": true,
		"closed": true
	}
]`

func TestActiveMarketsDiscovery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/markets" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("offset") != "0" {
			fmt.Fprint(w, "[]")
			return
		}
		fmt.Fprint(w, gammaPage)
	}))
	defer server.Close()

	client := NewMarketsClient(server.URL, time.Second, zap.NewNop())
	markets, err := client.ActiveMarkets(context.Background(), 100, 100)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(markets) != 2 {
		t.Fatalf("expected 2 markets, got %d: %+v", len(markets), markets)
	}
	if markets[0].ID != "mkt-1" || markets[0].YesAsset != "tok-yes-1" || markets[0].NoAsset != "tok-no-1" {
		t.Fatalf("unexpected market %+v", markets[0])
	}
	if want := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC).UnixNano(); markets[0].EndTime != want {
		t.Fatalf("expected end time %d from endDateIso, got %d", want, markets[0].EndTime)
	}
	// Outcome labels, not index order, decide the YES/NO orientation.
	if markets[1].ID != "mkt-2" || markets[1].YesAsset != "tok-yes-2" || markets[1].NoAsset != "tok-no-2" {
		t.Fatalf("flipped outcome order misresolved: %+v", markets[1])
	}
	if markets[1].EndTime != 0 {
		t.Fatalf("expected zero end time without endDateIso, got %d", markets[1].EndTime)
	}
}

func TestActiveMarketsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewMarketsClient(server.URL, time.Second, zap.NewNop())
	if _, err := client.ActiveMarkets(context.Background(), 0, 0); err == nil {
		t.Fatalf("expected error on http 503")
	}
}

func TestMarketByConditionID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("condition_ids") != "mkt-1" {
			fmt.Fprint(w, "[]")
			return
		}
		fmt.Fprint(w, `[{
			"conditionId": "mkt-1",
			"question": "Will it rain tomorrow?",
			"outcomes": "[\"Yes\", \"No\"]",
			"clobTokenIds": "[\"tok-yes-1\", \"tok-no-1\"]",
			"active": true,
			"closed": false
		}]`)
	}))
	defer server.Close()

	client := NewMarketsClient(server.URL, time.Second, zap.NewNop())
	m, err := client.Market(context.Background(), "mkt-1")
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	if m.Question != "Will it rain tomorrow?" || m.YesAsset != "tok-yes-1" {
		t.Fatalf("unexpected market %+v", m)
	}
	if _, err := client.Market(context.Background(), "missing"); err == nil {
		t.Fatalf("expected not-found error")
	}
}
