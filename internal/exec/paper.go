package exec

import (
	"context"
	"fmt"
	"sync/atomic"

	"pm-arb-bot/internal/book"
)

// Paper is a gateway that fills every intent immediately against a modeled
// slippage, for dry runs and capture replays. No network, no persistence.
type Paper struct {
	slippageBps int64
	nextID      atomic.Uint64
}

func NewPaper(slippageBps int) *Paper {
	if slippageBps < 0 {
		slippageBps = 0
	}
	return &Paper{slippageBps: int64(slippageBps)}
}

func (p *Paper) Submit(ctx context.Context, intent OrderIntent) (OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return OrderResult{}, err
	}
	if intent.Size <= 0 || intent.Price <= 0 {
		return OrderResult{Intent: intent, Status: StatusRejected, Err: "degenerate intent"}, nil
	}
	fill := intent.Price
	slip := book.Price(int64(intent.Price) * p.slippageBps / book.PriceScale)
	if intent.Side == "BUY" {
		fill += slip
	} else {
		fill -= slip
	}
	if fill <= 0 {
		fill = 1
	}
	return OrderResult{
		Intent:     intent,
		Status:     StatusAccepted,
		OrderID:    fmt.Sprintf("paper-%d", p.nextID.Add(1)),
		FilledSize: intent.Size,
		AvgPrice:   fill,
	}, nil
}

func (p *Paper) Cancel(ctx context.Context, orderID string) error {
	return ctx.Err()
}
