package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"pm-arb-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// Signal is one detected opportunity and the risk verdict it drew.
type Signal struct {
	Time         time.Time
	MarketID     string
	Edge         float64
	YesPrice     float64
	NoPrice      float64
	MaxSize      float64
	Approved     bool
	RejectReason string
}

// Order is one executed intent's outcome.
type Order struct {
	Time       time.Time
	MarketID   string
	Asset      string
	Side       string
	Kind       string
	ClientID   string
	OrderID    string
	Status     string
	Price      float64
	FilledSize float64
	AvgPrice   float64
	Error      string
}

// StopLoss is one stop-loss trigger against an open position.
type StopLoss struct {
	Time       time.Time
	MarketID   string
	EntryPrice float64
	MarkPrice  float64
	Size       float64
}

// Writer records decision history to Timescale/Postgres off the decision
// path. Enqueue methods never block: a full queue drops the row and bumps
// a counter instead of stalling the caller.
type Writer struct {
	db      *sql.DB
	log     *zap.Logger
	schema  string
	signals chan Signal
	orders  chan Order
	stops   chan StopLoss
	started atomic.Bool

	dropSignal atomic.Uint64
	dropOrder  atomic.Uint64
	dropStop   atomic.Uint64
}

func New(cfg config.HistoryConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("history dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	writer := &Writer{
		db:      db,
		log:     log,
		schema:  schema,
		signals: make(chan Signal, queueSize),
		orders:  make(chan Order, queueSize),
		stops:   make(chan StopLoss, queueSize),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueSignal(signal Signal) {
	if w == nil {
		return
	}
	select {
	case w.signals <- signal:
		return
	default:
		if w.dropSignal.Add(1) == 1 && w.log != nil {
			w.log.Warn("history signal queue full")
		}
	}
}

func (w *Writer) EnqueueOrder(order Order) {
	if w == nil {
		return
	}
	select {
	case w.orders <- order:
		return
	default:
		if w.dropOrder.Add(1) == 1 && w.log != nil {
			w.log.Warn("history order queue full")
		}
	}
}

func (w *Writer) EnqueueStopLoss(stop StopLoss) {
	if w == nil {
		return
	}
	select {
	case w.stops <- stop:
		return
	default:
		if w.dropStop.Add(1) == 1 && w.log != nil {
			w.log.Warn("history stop-loss queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case signal := <-w.signals:
			w.writeSignal(ctx, signal)
		case order := <-w.orders:
			w.writeOrder(ctx, order)
		case stop := <-w.stops:
			w.writeStopLoss(ctx, stop)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("history db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		market_id TEXT NOT NULL,
		edge DOUBLE PRECISION NOT NULL,
		yes_price DOUBLE PRECISION NOT NULL,
		no_price DOUBLE PRECISION NOT NULL,
		max_size DOUBLE PRECISION NOT NULL,
		approved BOOLEAN NOT NULL,
		reject_reason TEXT NOT NULL DEFAULT ''
	)`, w.table("opportunity_signals"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		market_id TEXT NOT NULL,
		asset TEXT NOT NULL,
		side TEXT NOT NULL,
		kind TEXT NOT NULL,
		client_id TEXT NOT NULL,
		order_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		price DOUBLE PRECISION NOT NULL,
		filled_size DOUBLE PRECISION NOT NULL,
		avg_price DOUBLE PRECISION NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	)`, w.table("order_results"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		market_id TEXT NOT NULL,
		entry_price DOUBLE PRECISION NOT NULL,
		mark_price DOUBLE PRECISION NOT NULL,
		size DOUBLE PRECISION NOT NULL
	)`, w.table("stop_loss_events"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
		return nil
	}
	for _, table := range []string{"opportunity_signals", "order_results", "stop_loss_events"} {
		if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(table))); err != nil && w.log != nil {
			w.log.Warn("hypertable create failed", zap.String("table", table), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) writeSignal(ctx context.Context, signal Signal) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, market_id, edge, yes_price, no_price, max_size, approved, reject_reason
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, w.table("opportunity_signals"))
	if _, err := w.db.ExecContext(ctx, query,
		signal.Time,
		signal.MarketID,
		signal.Edge,
		signal.YesPrice,
		signal.NoPrice,
		signal.MaxSize,
		signal.Approved,
		signal.RejectReason,
	); err != nil && w.log != nil {
		w.log.Warn("history signal insert failed", zap.Error(err))
	}
}

func (w *Writer) writeOrder(ctx context.Context, order Order) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, market_id, asset, side, kind, client_id, order_id, status, price, filled_size, avg_price, error
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`, w.table("order_results"))
	if _, err := w.db.ExecContext(ctx, query,
		order.Time,
		order.MarketID,
		order.Asset,
		order.Side,
		order.Kind,
		order.ClientID,
		order.OrderID,
		order.Status,
		order.Price,
		order.FilledSize,
		order.AvgPrice,
		order.Error,
	); err != nil && w.log != nil {
		w.log.Warn("history order insert failed", zap.Error(err))
	}
}

func (w *Writer) writeStopLoss(ctx context.Context, stop StopLoss) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, market_id, entry_price, mark_price, size
	) VALUES ($1,$2,$3,$4,$5)`, w.table("stop_loss_events"))
	if _, err := w.db.ExecContext(ctx, query,
		stop.Time,
		stop.MarketID,
		stop.EntryPrice,
		stop.MarkPrice,
		stop.Size,
	); err != nil && w.log != nil {
		w.log.Warn("history stop-loss insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
