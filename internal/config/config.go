package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log        LoggingConfig    `yaml:"log"`
	Feed       FeedConfig       `yaml:"feed"`
	Engine     EngineConfig     `yaml:"engine"`
	Sizing     SizingConfig     `yaml:"sizing"`
	Risk       RiskConfig       `yaml:"risk"`
	Expiration ExpirationConfig `yaml:"expiration"`
	Exec       ExecConfig       `yaml:"exec"`
	State      StateConfig      `yaml:"state"`
	History    HistoryConfig    `yaml:"history"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Runtime    RuntimeConfig    `yaml:"runtime"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Markets    []MarketConfig   `yaml:"markets"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type FeedConfig struct {
	WSURL          string        `yaml:"ws_url"`
	GammaURL       string        `yaml:"gamma_url"`
	Timeout        time.Duration `yaml:"timeout"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	CapturePath    string        `yaml:"capture_path"`
}

type EngineConfig struct {
	MinEdge           float64       `yaml:"min_edge"`            // minimum required margin, e.g. 0.01
	FeeRate           float64       `yaml:"fee_rate"`            // flat fee added to the combined price
	TargetNotionalUSD float64       `yaml:"target_notional_usd"` // fill target for the VWAP walk
	StaleThreshold    time.Duration `yaml:"stale_threshold"`     // snapshot age beyond which no signal fires
	OrderbookDepth    int           `yaml:"orderbook_depth"`     // retained levels per side
	MaxDrainPerCycle  int           `yaml:"max_drain_per_cycle"` // ring pops per decision cycle
}

type SizingConfig struct {
	KellyFractionCap  float64 `yaml:"kelly_fraction_cap"`
	Volatility        float64 `yaml:"volatility"`
	VolatilityDamping float64 `yaml:"volatility_damping"`
}

type RiskConfig struct {
	CapitalUSD              float64       `yaml:"capital_usd"`
	MaxPositionSizeUSD      float64       `yaml:"max_position_size"`
	MaxAggregateExposureUSD float64       `yaml:"max_aggregate_exposure"`
	MaxOpenPositions        int           `yaml:"max_open_positions"`
	StopLossPct             float64       `yaml:"stop_loss_pct"`
	MinHoldTime             time.Duration `yaml:"min_hold_time"`
}

type ExpirationConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Window      time.Duration `yaml:"window"`       // snipe only inside this span before market end
	MinPrice    float64       `yaml:"min_price"`    // leg must already trade at or above this
	TargetPrice float64       `yaml:"target_price"` // and strictly below this
}

type ExecConfig struct {
	RelayURL         string        `yaml:"relay_url"`
	Timeout          time.Duration `yaml:"timeout"`
	Paper            bool          `yaml:"paper"`
	PaperSlippageBps int           `yaml:"paper_slippage_bps"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type HistoryConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	QueueSize       int           `yaml:"queue_size"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
}

type RuntimeConfig struct {
	FeedCore     int `yaml:"feed_core"`     // CPU core for the feed thread, -1 to skip pinning
	DecisionCore int `yaml:"decision_core"` // CPU core for the decision thread, -1 to skip pinning
	FeedRing     int `yaml:"feed_ring"`     // feed -> decision ring capacity, power of two
	IntentRing   int `yaml:"intent_ring"`   // decision -> executor ring capacity, power of two
	ResultRing   int `yaml:"result_ring"`   // executor -> decision ring capacity, power of two
	SpinBudget   int `yaml:"spin_budget"`   // idle cycles before yielding the processor
}

type DiscoveryConfig struct {
	Enabled         bool    `yaml:"enabled"`
	MinLiquidityUSD float64 `yaml:"min_liquidity"`
	MinVolumeUSD    float64 `yaml:"min_volume"`
}

type MarketConfig struct {
	ID       string `yaml:"id"`
	Question string `yaml:"question"`
	YesAsset string `yaml:"yes_asset"`
	NoAsset  string `yaml:"no_asset"`
	EndTime  string `yaml:"end_time"` // RFC3339; optional, needed for expiration snipes
}

// maxOrderbookDepth mirrors the engine's compile-time bound on retained
// levels; its fixed arrays cannot hold more.
const maxOrderbookDepth = 64

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Feed.WSURL == "" {
		cfg.Feed.WSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}
	if cfg.Feed.GammaURL == "" {
		cfg.Feed.GammaURL = "https://gamma-api.polymarket.com"
	}
	if cfg.Feed.Timeout == 0 {
		cfg.Feed.Timeout = 10 * time.Second
	}
	if cfg.Feed.ReconnectDelay == 0 {
		cfg.Feed.ReconnectDelay = 3 * time.Second
	}
	if cfg.Feed.PingInterval == 0 {
		cfg.Feed.PingInterval = 30 * time.Second
	}
	if cfg.Engine.MinEdge == 0 {
		cfg.Engine.MinEdge = 0.01
	}
	if cfg.Engine.TargetNotionalUSD == 0 {
		cfg.Engine.TargetNotionalUSD = 100
	}
	if cfg.Engine.StaleThreshold == 0 {
		cfg.Engine.StaleThreshold = 500 * time.Millisecond
	}
	if cfg.Engine.OrderbookDepth == 0 {
		cfg.Engine.OrderbookDepth = 50
	}
	if cfg.Engine.MaxDrainPerCycle == 0 {
		cfg.Engine.MaxDrainPerCycle = 256
	}
	if cfg.Sizing.KellyFractionCap == 0 {
		cfg.Sizing.KellyFractionCap = 0.25
	}
	if cfg.Sizing.Volatility == 0 {
		cfg.Sizing.Volatility = 0.10
	}
	if cfg.Sizing.VolatilityDamping == 0 {
		cfg.Sizing.VolatilityDamping = 0.5
	}
	if cfg.Risk.CapitalUSD == 0 {
		cfg.Risk.CapitalUSD = 1000
	}
	if cfg.Risk.MaxPositionSizeUSD == 0 {
		cfg.Risk.MaxPositionSizeUSD = 100
	}
	if cfg.Risk.MaxAggregateExposureUSD == 0 {
		cfg.Risk.MaxAggregateExposureUSD = 500
	}
	if cfg.Risk.MaxOpenPositions == 0 {
		cfg.Risk.MaxOpenPositions = 10
	}
	if cfg.Risk.StopLossPct == 0 {
		cfg.Risk.StopLossPct = 0.15
	}
	if cfg.Risk.MinHoldTime == 0 {
		cfg.Risk.MinHoldTime = time.Minute
	}
	if cfg.Expiration.Window == 0 {
		cfg.Expiration.Window = time.Minute
	}
	if cfg.Expiration.MinPrice == 0 {
		cfg.Expiration.MinPrice = 0.90
	}
	if cfg.Expiration.TargetPrice == 0 {
		cfg.Expiration.TargetPrice = 0.99
	}
	if cfg.Exec.Timeout == 0 {
		cfg.Exec.Timeout = 10 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/pm-arb-bot.db"
	}
	if cfg.History.Schema == "" {
		cfg.History.Schema = "public"
	}
	if cfg.History.QueueSize == 0 {
		cfg.History.QueueSize = 256
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Runtime.FeedCore == 0 {
		cfg.Runtime.FeedCore = -1
	}
	if cfg.Runtime.DecisionCore == 0 {
		cfg.Runtime.DecisionCore = -1
	}
	if cfg.Runtime.FeedRing == 0 {
		cfg.Runtime.FeedRing = 1024
	}
	if cfg.Runtime.IntentRing == 0 {
		cfg.Runtime.IntentRing = 256
	}
	if cfg.Runtime.ResultRing == 0 {
		cfg.Runtime.ResultRing = 256
	}
	if cfg.Runtime.SpinBudget == 0 {
		cfg.Runtime.SpinBudget = 1000
	}
}

func validate(cfg *Config) error {
	if cfg.Engine.MinEdge < 0 || cfg.Engine.MinEdge >= 1 {
		return errors.New("engine.min_edge must be in [0, 1)")
	}
	if cfg.Engine.FeeRate < 0 || cfg.Engine.FeeRate >= 1 {
		return errors.New("engine.fee_rate must be in [0, 1)")
	}
	if cfg.Engine.OrderbookDepth < 0 || cfg.Engine.OrderbookDepth > maxOrderbookDepth {
		return fmt.Errorf("engine.orderbook_depth must be in (0, %d]", maxOrderbookDepth)
	}
	if cfg.Sizing.KellyFractionCap <= 0 || cfg.Sizing.KellyFractionCap > 1 {
		return errors.New("sizing.kelly_fraction_cap must be in (0, 1]")
	}
	if cfg.Risk.CapitalUSD <= 0 {
		return errors.New("risk.capital_usd must be > 0")
	}
	if cfg.Risk.StopLossPct <= 0 || cfg.Risk.StopLossPct >= 1 {
		return errors.New("risk.stop_loss_pct must be in (0, 1)")
	}
	if cfg.Expiration.Enabled {
		if cfg.Expiration.MinPrice <= 0 || cfg.Expiration.TargetPrice >= 1 ||
			cfg.Expiration.MinPrice >= cfg.Expiration.TargetPrice {
			return errors.New("expiration needs 0 < min_price < target_price < 1")
		}
	}
	if !cfg.Exec.Paper && cfg.Exec.RelayURL == "" {
		return errors.New("exec.relay_url is required unless exec.paper is set")
	}
	if len(cfg.Markets) == 0 && !cfg.Discovery.Enabled {
		return errors.New("at least one market or discovery.enabled is required")
	}
	for i, m := range cfg.Markets {
		if m.ID == "" || m.YesAsset == "" || m.NoAsset == "" {
			return fmt.Errorf("markets[%d] needs id, yes_asset and no_asset", i)
		}
		if m.EndTime != "" {
			if _, err := time.Parse(time.RFC3339, m.EndTime); err != nil {
				return fmt.Errorf("markets[%d] end_time: %w", i, err)
			}
		}
	}
	if err := validateRing("runtime.feed_ring", cfg.Runtime.FeedRing); err != nil {
		return err
	}
	if err := validateRing("runtime.intent_ring", cfg.Runtime.IntentRing); err != nil {
		return err
	}
	return validateRing("runtime.result_ring", cfg.Runtime.ResultRing)
}

func validateRing(name string, n int) error {
	if n <= 0 || n&(n-1) != 0 {
		return fmt.Errorf("%s must be a positive power of two", name)
	}
	return nil
}
