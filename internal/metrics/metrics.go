package metrics

type Counter interface {
	Inc()
}

// AddCounter extends Counter for values that grow in batches, like queue
// drop totals drained once per reporting interval.
type AddCounter interface {
	Counter
	Add(delta float64)
}

type Metrics struct {
	OpportunitiesDetected Counter
	OpportunitiesRejected Counter
	OrdersSubmitted       Counter
	OrdersFailed          Counter
	StopLossTriggered     Counter
	FeedDropped           AddCounter
	IntentDropped         Counter
	Resyncs               Counter
	InvalidBooks          Counter
}

type noopCounter struct{}

func (noopCounter) Inc()              {}
func (noopCounter) Add(delta float64) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		OpportunitiesDetected: n,
		OpportunitiesRejected: n,
		OrdersSubmitted:       n,
		OrdersFailed:          n,
		StopLossTriggered:     n,
		FeedDropped:           n,
		IntentDropped:         n,
		Resyncs:               n,
		InvalidBooks:          n,
	}
}
