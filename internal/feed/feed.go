package feed

import (
	"context"
	"time"

	"pm-arb-bot/internal/metrics"
	"pm-arb-bot/internal/ring"

	"go.uber.org/zap"
)

// Feed owns the network side of the ingestion channel. It decodes market
// channel frames, stamps each update with a per-asset sequence number, and
// pushes onto the ring without ever blocking. Sequence numbers advance even
// when the ring is full, so a dropped update surfaces downstream as a gap
// and the book goes stale instead of silently diverging.
type Feed struct {
	client  *Client
	out     *ring.Ring[Update]
	capture *CaptureWriter
	met     *metrics.Metrics
	log     *zap.Logger

	// seq is touched only by the handler goroutine.
	seq map[string]uint64
}

func New(client *Client, out *ring.Ring[Update], capture *CaptureWriter, met *metrics.Metrics, log *zap.Logger) *Feed {
	if met == nil {
		met = metrics.NewNoop()
	}
	return &Feed{
		client:  client,
		out:     out,
		capture: capture,
		met:     met,
		log:     log,
		seq:     make(map[string]uint64),
	}
}

// Subscribe registers assets with the market channel.
func (f *Feed) Subscribe(ctx context.Context, assets ...string) error {
	return f.client.Subscribe(ctx, assets...)
}

// RequestResync re-subscribes an asset, prompting the server to reissue its
// full book snapshot. The network write happens off the caller's goroutine
// so the decision thread never blocks here.
func (f *Feed) RequestResync(ctx context.Context, asset string) {
	f.met.Resyncs.Inc()
	go func() {
		if err := f.client.Resubscribe(ctx, asset); err != nil {
			f.log.Warn("resync request failed", zap.String("asset", asset), zap.Error(err))
		}
	}()
}

// Run reads and decodes frames until ctx is done. This is the producer
// side of the ring; it must be the only goroutine calling handle.
func (f *Feed) Run(ctx context.Context) error {
	return f.client.Run(ctx, f.handle)
}

func (f *Feed) handle(data []byte) {
	snaps, deltas, skipped, err := parseMessage(data)
	if err != nil {
		f.log.Warn("feed frame dropped", zap.Error(err))
		return
	}
	// A malformed event that still names its asset burns a sequence number
	// without an emit, so the consumer sees a gap and resyncs rather than
	// trading on a book missing a real change.
	for _, asset := range skipped {
		f.seq[asset]++
		f.met.FeedDropped.Add(1)
		f.log.Warn("malformed feed event skipped", zap.String("asset", asset))
	}
	now := time.Now().UnixNano()
	for i := range snaps {
		var u Update
		snap := &snaps[i]
		u.Asset = snap.Asset
		u.Kind = KindSnapshot
		u.Timestamp = now
		u.NBids = copy(u.Bids[:], snap.Bids)
		u.NAsks = copy(u.Asks[:], snap.Asks)
		f.emit(&u)
	}
	for _, d := range deltas {
		var u Update
		u.Asset = d.Asset
		u.Kind = KindDelta
		u.Timestamp = now
		u.Side = d.Side
		u.Price = d.Price
		u.Size = d.Size
		f.emit(&u)
	}
}

func (f *Feed) emit(u *Update) {
	f.seq[u.Asset]++
	u.Seq = f.seq[u.Asset]
	if f.capture != nil {
		if err := f.capture.Append(u); err != nil {
			f.log.Warn("capture append failed", zap.Error(err))
			f.capture = nil
		}
	}
	if !f.out.Push(*u) {
		f.met.FeedDropped.Add(1)
	}
}
