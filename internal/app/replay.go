package app

import (
	"context"
	"errors"
	"io"
	"time"

	"pm-arb-bot/internal/book"
	"pm-arb-bot/internal/config"
	"pm-arb-bot/internal/exec"
	"pm-arb-bot/internal/feed"
	"pm-arb-bot/internal/ring"
	"pm-arb-bot/internal/strategy"

	"go.uber.org/zap"
)

// ReplayStats summarizes one capture replay.
type ReplayStats struct {
	Updates  int
	Intents  int
	Fills    int
	Rejected int
	Final    strategy.View
}

// Replay drives the decision pipeline from a capture file against the paper
// gateway. The capture's own timestamps act as the clock, so a given file
// always produces the same decisions.
func Replay(cfg *config.Config, capturePath string, log *zap.Logger) (ReplayStats, error) {
	var stats ReplayStats
	reader, err := feed.OpenCaptureReader(capturePath)
	if err != nil {
		return stats, err
	}
	defer reader.Close()

	books := book.NewStore(cfg.Engine.OrderbookDepth)
	for _, mc := range cfg.Markets {
		var endTime int64
		if mc.EndTime != "" {
			if t, err := time.Parse(time.RFC3339, mc.EndTime); err == nil {
				endTime = t.UnixNano()
			}
		}
		m := book.Market{ID: mc.ID, Question: mc.Question, YesAsset: mc.YesAsset, NoAsset: mc.NoAsset, EndTime: endTime, Active: true}
		if err := books.Register(m); err != nil {
			return stats, err
		}
	}
	if books.Len() == 0 {
		return stats, errors.New("replay needs at least one configured market")
	}

	updates := ring.New[feed.Update](cfg.Runtime.FeedRing)
	intents := ring.New[exec.OrderIntent](cfg.Runtime.IntentRing)
	results := ring.New[exec.OrderResult](cfg.Runtime.ResultRing)
	portfolio := strategy.NewPortfolio(book.NotionalFromFloat(cfg.Risk.CapitalUSD))
	e := newEngine(engineDeps{
		books:    books,
		updates:  updates,
		intents:  intents,
		results:  results,
		detector: replayDetectors(cfg),
		sizer:    strategy.NewSizer(cfg.Sizing.KellyFractionCap, cfg.Sizing.Volatility, cfg.Sizing.VolatilityDamping),
		risk: strategy.NewManager(strategy.Limits{
			MaxPositionCost: book.NotionalFromFloat(cfg.Risk.MaxPositionSizeUSD),
			MaxExposure:     book.NotionalFromFloat(cfg.Risk.MaxAggregateExposureUSD),
			MaxOpenCount:    cfg.Risk.MaxOpenPositions,
			StopLossPips:    int64(cfg.Risk.StopLossPct * book.PriceScale),
			MinHold:         cfg.Risk.MinHoldTime.Nanoseconds(),
		}, portfolio),
		log:      log,
		maxDrain: cfg.Engine.MaxDrainPerCycle,
	})

	ctx := context.Background()
	paper := exec.NewPaper(cfg.Exec.PaperSlippageBps)
	var u feed.Update
	for {
		if err := reader.Next(&u); err != nil {
			if err == io.EOF {
				break
			}
			return stats, err
		}
		stats.Updates++
		updates.Push(u)
		e.cycle(u.Timestamp)

		// Intents fill synchronously against the paper gateway; the next
		// cycle reconciles them at the same capture time.
		flushed := false
		for {
			intent, ok := intents.Pop()
			if !ok {
				break
			}
			flushed = true
			stats.Intents++
			res, err := paper.Submit(ctx, intent)
			if err != nil {
				res = exec.OrderResult{Intent: intent, Status: exec.StatusRejected, Err: err.Error()}
			}
			if res.Status == exec.StatusAccepted {
				stats.Fills++
			} else {
				stats.Rejected++
			}
			results.Push(res)
		}
		if flushed {
			e.cycle(u.Timestamp)
		}
		select {
		case <-e.snapshots:
		default:
		}
	}
	stats.Final = *e.View()
	return stats, nil
}

// replayDetectors mirrors the live detector wiring so a capture replays the
// same strategy set the bot would run.
func replayDetectors(cfg *config.Config) strategy.Detectors {
	d := strategy.Detectors{
		BuyBoth: strategy.NewDetector(strategy.DetectorConfig{
			MinEdge:        book.PriceFromFloat(cfg.Engine.MinEdge),
			Fee:            book.PriceFromFloat(cfg.Engine.FeeRate),
			TargetNotional: book.NotionalFromFloat(cfg.Engine.TargetNotionalUSD),
			StaleAfter:     cfg.Engine.StaleThreshold.Nanoseconds(),
		}),
	}
	if cfg.Expiration.Enabled {
		d.Expiration = strategy.NewExpiration(strategy.ExpirationConfig{
			Window:         cfg.Expiration.Window.Nanoseconds(),
			MinPrice:       book.PriceFromFloat(cfg.Expiration.MinPrice),
			TargetPrice:    book.PriceFromFloat(cfg.Expiration.TargetPrice),
			TargetNotional: book.NotionalFromFloat(cfg.Engine.TargetNotionalUSD),
			StaleAfter:     cfg.Engine.StaleThreshold.Nanoseconds(),
		})
	}
	return d
}
