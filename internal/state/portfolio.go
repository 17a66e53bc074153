package state

import (
	"context"
	"encoding/json"
	"strings"

	"pm-arb-bot/internal/book"
	"pm-arb-bot/internal/strategy"
)

const PortfolioSnapshotKey = "portfolio:snapshot"

// PositionRecord is the persisted form of one open position. All money and
// size fields are scaled integers, the same scales the engine runs on, so a
// restore is exact.
type PositionRecord struct {
	MarketID   string `json:"market_id"`
	YesSize    int64  `json:"yes_size"`
	NoSize     int64  `json:"no_size"`
	EntryPrice int64  `json:"entry_price"`
	Cost       int64  `json:"cost"`
	Proceeds   int64  `json:"proceeds"`
	OpenedAt   int64  `json:"opened_at_ns"`
}

// PortfolioSnapshot is what survives a restart: open positions and the
// realized PnL accumulated so far.
type PortfolioSnapshot struct {
	Positions   []PositionRecord `json:"positions"`
	Realized    int64            `json:"realized"`
	UpdatedAtMS int64            `json:"updated_at_ms"`
}

// SnapshotPortfolio captures the portfolio's open positions for persistence.
func SnapshotPortfolio(p *strategy.Portfolio, nowMS int64) PortfolioSnapshot {
	positions := p.Positions(nil)
	snapshot := PortfolioSnapshot{
		Positions:   make([]PositionRecord, 0, len(positions)),
		Realized:    int64(p.Realized()),
		UpdatedAtMS: nowMS,
	}
	for _, pos := range positions {
		snapshot.Positions = append(snapshot.Positions, PositionRecord{
			MarketID:   pos.MarketID,
			YesSize:    int64(pos.YesSize),
			NoSize:     int64(pos.NoSize),
			EntryPrice: int64(pos.EntryPrice),
			Cost:       int64(pos.Cost),
			Proceeds:   int64(pos.Proceeds),
			OpenedAt:   pos.OpenedAt,
		})
	}
	return snapshot
}

// RestorePortfolio replays a snapshot into the portfolio.
func RestorePortfolio(p *strategy.Portfolio, snapshot PortfolioSnapshot) {
	positions := make([]strategy.Position, 0, len(snapshot.Positions))
	for _, rec := range snapshot.Positions {
		pos := strategy.Position{
			MarketID:   rec.MarketID,
			YesSize:    book.Size(rec.YesSize),
			NoSize:     book.Size(rec.NoSize),
			EntryPrice: book.Price(rec.EntryPrice),
			Cost:       book.Notional(rec.Cost),
			Proceeds:   book.Notional(rec.Proceeds),
			OpenedAt:   rec.OpenedAt,
		}
		pos.Size = pos.YesSize
		if pos.NoSize < pos.Size {
			pos.Size = pos.NoSize
		}
		positions = append(positions, pos)
	}
	p.Restore(positions, book.Notional(snapshot.Realized))
}

func LoadPortfolioSnapshot(ctx context.Context, store Store) (PortfolioSnapshot, bool, error) {
	if store == nil {
		return PortfolioSnapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, PortfolioSnapshotKey)
	if err != nil {
		return PortfolioSnapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return PortfolioSnapshot{}, false, nil
	}
	var snapshot PortfolioSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return PortfolioSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SavePortfolioSnapshot(ctx context.Context, store Store, snapshot PortfolioSnapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, PortfolioSnapshotKey, string(payload))
}
