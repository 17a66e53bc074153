package exec

import (
	"context"

	"pm-arb-bot/internal/book"
)

// Kind distinguishes entries opening a pair position from forced exits.
type Kind uint8

const (
	KindEntry Kind = iota
	KindExit
)

func (k Kind) String() string {
	if k == KindEntry {
		return "entry"
	}
	return "exit"
}

// Status is the gateway's accept/reject verdict.
type Status uint8

const (
	StatusAccepted Status = iota
	StatusRejected
)

func (s Status) String() string {
	if s == StatusAccepted {
		return "accepted"
	}
	return "rejected"
}

// OrderIntent is one leg of an approved decision, handed off the decision
// thread for execution.
type OrderIntent struct {
	MarketID string
	Asset    string
	Side     string // "BUY" or "SELL"
	Price    book.Price
	Size     book.Size
	Kind     Kind
	ClientID string
}

// OrderResult is the gateway's response, reconciled into portfolio state on
// a later decision cycle.
type OrderResult struct {
	Intent     OrderIntent
	Status     Status
	OrderID    string
	FilledSize book.Size
	AvgPrice   book.Price
	Err        string
}

// Gateway is the execution boundary. Signing, submission mechanics, and
// retry policy live behind it; the core only consumes the contract.
type Gateway interface {
	Submit(ctx context.Context, intent OrderIntent) (OrderResult, error)
	Cancel(ctx context.Context, orderID string) error
}
