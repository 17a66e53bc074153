package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pm-arb-bot/internal/book"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Relay submits order intents to the external signing/submission sidecar
// over HTTP. The sidecar owns wallet keys, order signing, and any retrying;
// the relay only speaks the wire contract. Prices and sizes cross the wire
// as decimal strings and are converted back to scaled integers here, at the
// boundary.
type Relay struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewRelay(baseURL string, timeout time.Duration, log *zap.Logger) *Relay {
	return &Relay{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type relayOrderRequest struct {
	MarketID string `json:"market_id"`
	AssetID  string `json:"asset_id"`
	Side     string `json:"side"`
	Price    string `json:"price"`
	Size     string `json:"size"`
	Kind     string `json:"kind"`
	ClientID string `json:"client_id,omitempty"`
}

type relayOrderResponse struct {
	Status     string `json:"status"`
	OrderID    string `json:"order_id"`
	FilledSize string `json:"filled_size"`
	AvgPrice   string `json:"avg_price"`
	Error      string `json:"error,omitempty"`
}

func (r *Relay) Submit(ctx context.Context, intent OrderIntent) (OrderResult, error) {
	req := relayOrderRequest{
		MarketID: intent.MarketID,
		AssetID:  intent.Asset,
		Side:     intent.Side,
		Price:    decimal.New(int64(intent.Price), -4).String(),
		Size:     decimal.New(int64(intent.Size), -2).String(),
		Kind:     intent.Kind.String(),
		ClientID: intent.ClientID,
	}
	var resp relayOrderResponse
	if err := r.post(ctx, "/orders", req, &resp); err != nil {
		return OrderResult{}, err
	}
	result := OrderResult{
		Intent:  intent,
		OrderID: resp.OrderID,
		Err:     resp.Error,
	}
	if resp.Status != "accepted" {
		result.Status = StatusRejected
		return result, nil
	}
	result.Status = StatusAccepted
	filled, err := parseScaled(resp.FilledSize, 2)
	if err != nil {
		return OrderResult{}, fmt.Errorf("parse filled_size %q: %w", resp.FilledSize, err)
	}
	result.FilledSize = book.Size(filled)
	if resp.AvgPrice != "" {
		avg, err := parseScaled(resp.AvgPrice, 4)
		if err != nil {
			return OrderResult{}, fmt.Errorf("parse avg_price %q: %w", resp.AvgPrice, err)
		}
		result.AvgPrice = book.Price(avg)
	}
	return result, nil
}

func (r *Relay) Cancel(ctx context.Context, orderID string) error {
	if orderID == "" {
		return fmt.Errorf("order id is required")
	}
	return r.post(ctx, "/orders/"+orderID+"/cancel", struct{}{}, nil)
}

func (r *Relay) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := r.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("relay http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// parseScaled converts a decimal string to an integer scaled by 10^exp,
// truncating anything finer.
func parseScaled(s string, exp int32) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.Shift(exp).IntPart(), nil
}
