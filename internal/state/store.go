package state

import "context"

// Store is durable kv state shared by the portfolio snapshot codec and the
// executor's idempotency markers. Implementations must be safe for use from
// both the decision thread and the executor goroutine.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}
