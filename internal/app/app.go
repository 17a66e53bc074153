package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"pm-arb-bot/internal/alerts"
	"pm-arb-bot/internal/book"
	"pm-arb-bot/internal/config"
	"pm-arb-bot/internal/exec"
	"pm-arb-bot/internal/feed"
	"pm-arb-bot/internal/history"
	"pm-arb-bot/internal/metrics"
	"pm-arb-bot/internal/ring"
	"pm-arb-bot/internal/state"
	"pm-arb-bot/internal/state/sqlite"
	"pm-arb-bot/internal/strategy"

	"go.uber.org/zap"
)

// App wires the ingestion thread, the decision thread, and the execution
// worker around their two rings, plus the supporting services: durable
// state, history recording, metrics, and alerts.
type App struct {
	cfg *config.Config
	log *zap.Logger

	store   *sqlite.Store
	books   *book.Store
	updates *ring.Ring[feed.Update]
	intents *ring.Ring[exec.OrderIntent]
	results *ring.Ring[exec.OrderResult]

	feed     *feed.Feed
	capture  *feed.CaptureWriter
	markets  *feed.MarketsClient
	executor *exec.Executor
	engine   *engine
	history  *history.Writer
	prom     *metrics.Prometheus
	alerts   *alerts.Telegram
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if dir := filepath.Dir(cfg.State.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}

	books := book.NewStore(cfg.Engine.OrderbookDepth)
	updates := ring.New[feed.Update](cfg.Runtime.FeedRing)
	intents := ring.New[exec.OrderIntent](cfg.Runtime.IntentRing)
	results := ring.New[exec.OrderResult](cfg.Runtime.ResultRing)

	met := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.EnabledValue() {
		prom = metrics.NewPrometheus()
		met = prom.Metrics
	}

	var capture *feed.CaptureWriter
	if cfg.Feed.CapturePath != "" {
		capture, err = feed.OpenCaptureWriter(cfg.Feed.CapturePath)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	wsClient := feed.NewClient(cfg.Feed.WSURL, cfg.Feed.ReconnectDelay, cfg.Feed.PingInterval, log)
	feedClient := feed.New(wsClient, updates, capture, met, log)
	marketsClient := feed.NewMarketsClient(cfg.Feed.GammaURL, cfg.Feed.Timeout, log)

	var gateway exec.Gateway
	if cfg.Exec.Paper {
		gateway = exec.NewPaper(cfg.Exec.PaperSlippageBps)
		log.Info("paper trading enabled", zap.Int("slippage_bps", cfg.Exec.PaperSlippageBps))
	} else {
		gateway = exec.NewRelay(cfg.Exec.RelayURL, cfg.Exec.Timeout, log)
	}
	executor := exec.New(gateway, intents, results, store, log)

	historyWriter, err := history.New(cfg.History, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	alertsClient := alerts.NewTelegram(cfg.Telegram, log)

	portfolio := strategy.NewPortfolio(book.NotionalFromFloat(cfg.Risk.CapitalUSD))
	riskManager := strategy.NewManager(strategy.Limits{
		MaxPositionCost: book.NotionalFromFloat(cfg.Risk.MaxPositionSizeUSD),
		MaxExposure:     book.NotionalFromFloat(cfg.Risk.MaxAggregateExposureUSD),
		MaxOpenCount:    cfg.Risk.MaxOpenPositions,
		StopLossPips:    int64(cfg.Risk.StopLossPct * book.PriceScale),
		MinHold:         cfg.Risk.MinHoldTime.Nanoseconds(),
	}, portfolio)
	detectors := strategy.Detectors{
		BuyBoth: strategy.NewDetector(strategy.DetectorConfig{
			MinEdge:        book.PriceFromFloat(cfg.Engine.MinEdge),
			Fee:            book.PriceFromFloat(cfg.Engine.FeeRate),
			TargetNotional: book.NotionalFromFloat(cfg.Engine.TargetNotionalUSD),
			StaleAfter:     cfg.Engine.StaleThreshold.Nanoseconds(),
		}),
	}
	if cfg.Expiration.Enabled {
		detectors.Expiration = strategy.NewExpiration(strategy.ExpirationConfig{
			Window:         cfg.Expiration.Window.Nanoseconds(),
			MinPrice:       book.PriceFromFloat(cfg.Expiration.MinPrice),
			TargetPrice:    book.PriceFromFloat(cfg.Expiration.TargetPrice),
			TargetNotional: book.NotionalFromFloat(cfg.Engine.TargetNotionalUSD),
			StaleAfter:     cfg.Engine.StaleThreshold.Nanoseconds(),
		})
	}
	sizer := strategy.NewSizer(cfg.Sizing.KellyFractionCap, cfg.Sizing.Volatility, cfg.Sizing.VolatilityDamping)

	deps := engineDeps{
		books:      books,
		updates:    updates,
		intents:    intents,
		results:    results,
		detector:   detectors,
		sizer:      sizer,
		risk:       riskManager,
		met:        met,
		history:    historyWriter,
		resync:     feedClient,
		log:        log,
		maxDrain:   cfg.Engine.MaxDrainPerCycle,
		spinBudget: cfg.Runtime.SpinBudget,
	}
	if cfg.Telegram.Enabled {
		deps.alerts = alertsClient
	}

	return &App{
		cfg:      cfg,
		log:      log,
		store:    store,
		books:    books,
		updates:  updates,
		intents:  intents,
		results:  results,
		feed:     feedClient,
		capture:  capture,
		markets:  marketsClient,
		executor: executor,
		engine:   newEngine(deps),
		history:  historyWriter,
		prom:     prom,
		alerts:   alertsClient,
	}, nil
}

// View exposes the engine's published portfolio view for reporting.
func (a *App) View() *strategy.View {
	return a.engine.View()
}

func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()
	if a.capture != nil {
		defer a.capture.Close()
	}

	if err := a.restorePortfolio(ctx); err != nil {
		return err
	}
	markets, err := a.resolveMarkets(ctx)
	if err != nil {
		return err
	}
	if len(markets) == 0 {
		return errors.New("no tradable markets resolved")
	}
	assets := make([]string, 0, 2*len(markets))
	for _, m := range markets {
		if err := a.books.Register(m); err != nil {
			a.log.Warn("market registration failed", zap.String("market", m.ID), zap.Error(err))
			continue
		}
		assets = append(assets, m.YesAsset, m.NoAsset)
	}
	a.log.Info("markets registered", zap.Int("count", a.books.Len()))

	a.history.Start(ctx)
	a.startMetricsServer(ctx)
	go a.runSaver(ctx)
	go a.executor.Run(ctx)
	go a.runFeed(ctx, assets)

	return a.engine.loop(ctx, a.cfg.Runtime.DecisionCore)
}

func (a *App) restorePortfolio(ctx context.Context) error {
	snapshot, ok, err := state.LoadPortfolioSnapshot(ctx, a.store)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	state.RestorePortfolio(a.engine.risk.Portfolio(), snapshot)
	a.engine.publish()
	a.log.Info("portfolio restored",
		zap.Int("open_positions", len(snapshot.Positions)),
		zap.Float64("realized_usd", book.Notional(snapshot.Realized).Float()))
	return nil
}

// resolveMarkets combines config-listed markets with discovery. Explicit
// config wins on conflicts; discovery only adds.
func (a *App) resolveMarkets(ctx context.Context) ([]book.Market, error) {
	var markets []book.Market
	seen := make(map[string]bool)
	for _, mc := range a.cfg.Markets {
		var endTime int64
		if mc.EndTime != "" {
			// Format already validated by config.Load.
			if t, err := time.Parse(time.RFC3339, mc.EndTime); err == nil {
				endTime = t.UnixNano()
			}
		}
		markets = append(markets, book.Market{
			ID:       mc.ID,
			Question: mc.Question,
			YesAsset: mc.YesAsset,
			NoAsset:  mc.NoAsset,
			EndTime:  endTime,
			Active:   true,
		})
		seen[mc.ID] = true
	}
	if !a.cfg.Discovery.Enabled {
		return markets, nil
	}
	discovered, err := a.markets.ActiveMarkets(ctx, a.cfg.Discovery.MinLiquidityUSD, a.cfg.Discovery.MinVolumeUSD)
	if err != nil {
		if len(markets) > 0 {
			a.log.Warn("market discovery failed, using configured markets", zap.Error(err))
			return markets, nil
		}
		return nil, err
	}
	for _, m := range discovered {
		if seen[m.ID] {
			continue
		}
		markets = append(markets, m)
	}
	a.log.Info("markets discovered", zap.Int("count", len(discovered)))
	return markets, nil
}

func (a *App) runFeed(ctx context.Context, assets []string) {
	if core := a.cfg.Runtime.FeedCore; core >= 0 {
		unpin, err := ring.Pin(core)
		if err != nil {
			a.log.Warn("feed thread pin failed", zap.Int("core", core), zap.Error(err))
		} else {
			defer unpin()
		}
	}
	if err := a.feed.Subscribe(ctx, assets...); err != nil {
		// Connect happens inside Run; registered assets are subscribed then.
		a.log.Debug("initial subscribe deferred", zap.Error(err))
	}
	if err := a.feed.Run(ctx); err != nil && ctx.Err() == nil {
		a.log.Error("feed terminated", zap.Error(err))
	}
}

// runSaver persists portfolio snapshots queued by the decision thread.
func (a *App) runSaver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-a.engine.snapshots:
			if err := state.SavePortfolioSnapshot(ctx, a.store, snap); err != nil {
				a.log.Warn("portfolio snapshot save failed", zap.Error(err))
			}
		}
	}
}

func (a *App) startMetricsServer(ctx context.Context) {
	if a.prom == nil {
		return
	}
	mux := http.NewServeMux()
	path := a.cfg.Metrics.Path
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, a.prom.Handler())
	server := &http.Server{Addr: a.cfg.Metrics.Address, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Warn("metrics server failed", zap.Error(err))
		}
	}()
	a.log.Info("metrics server listening", zap.String("address", a.cfg.Metrics.Address), zap.String("path", path))
}
