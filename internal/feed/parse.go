package feed

import (
	"encoding/json"
	"fmt"
	"strings"

	"pm-arb-bot/internal/book"

	"github.com/shopspring/decimal"
)

// Wire shapes of the CLOB market channel. Prices and sizes arrive as
// decimal strings and are converted to scaled integers here, at the
// boundary; nothing past this file touches a float or a string number.

type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type wireBook struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Bids      []wireLevel `json:"bids"`
	Asks      []wireLevel `json:"asks"`
	Timestamp string      `json:"timestamp"`
	Hash      string      `json:"hash"`
}

type wirePriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
}

type wirePriceChangeMsg struct {
	EventType    string            `json:"event_type"`
	Market       string            `json:"market"`
	PriceChanges []wirePriceChange `json:"price_changes"`
	Timestamp    string            `json:"timestamp"`
}

type snapshotEvent struct {
	Asset string
	Bids  []book.Level
	Asks  []book.Level
}

type deltaEvent struct {
	Asset string
	Side  book.Side
	Price book.Price
	Size  book.Size
}

// parseMessage decodes one websocket frame into snapshot and delta events.
// Keepalive and control frames yield nothing and no error. An event that
// names its asset but fails conversion lands in skipped so the caller can
// burn a sequence number for it; only a frame whose events cannot be
// attributed to an asset at all is an error.
func parseMessage(data []byte) (snaps []snapshotEvent, deltas []deltaEvent, skipped []string, err error) {
	text := strings.TrimSpace(string(data))
	if text == "" || !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "[") {
		// PONG, "INVALID OPERATION", and similar non-JSON control frames.
		return nil, nil, nil, nil
	}

	// Snapshots for a fresh subscription arrive batched in an array.
	if strings.HasPrefix(text, "[") {
		var books []wireBook
		if err := json.Unmarshal(data, &books); err != nil {
			return nil, nil, nil, fmt.Errorf("decode snapshot batch: %w", err)
		}
		for i := range books {
			snap, err := convertSnapshot(&books[i])
			if err != nil {
				if books[i].AssetID == "" {
					return nil, nil, nil, err
				}
				skipped = append(skipped, books[i].AssetID)
				continue
			}
			snaps = append(snaps, snap)
		}
		return snaps, nil, skipped, nil
	}

	var head struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, nil, nil, fmt.Errorf("decode frame: %w", err)
	}
	switch head.EventType {
	case "book":
		var wb wireBook
		if err := json.Unmarshal(data, &wb); err != nil {
			return nil, nil, nil, fmt.Errorf("decode book: %w", err)
		}
		snap, err := convertSnapshot(&wb)
		if err != nil {
			if wb.AssetID == "" {
				return nil, nil, nil, err
			}
			return nil, nil, []string{wb.AssetID}, nil
		}
		return []snapshotEvent{snap}, nil, nil, nil
	case "price_change":
		var msg wirePriceChangeMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, nil, nil, fmt.Errorf("decode price_change: %w", err)
		}
		for _, pc := range msg.PriceChanges {
			d, err := convertDelta(pc)
			if err != nil {
				if pc.AssetID == "" {
					return nil, nil, nil, err
				}
				skipped = append(skipped, pc.AssetID)
				continue
			}
			deltas = append(deltas, d)
		}
		return nil, deltas, skipped, nil
	default:
		// last_trade_price, tick_size_change, subscription acks.
		return nil, nil, nil, nil
	}
}

func convertSnapshot(wb *wireBook) (snapshotEvent, error) {
	if wb.AssetID == "" {
		return snapshotEvent{}, fmt.Errorf("book event missing asset_id")
	}
	bids, err := convertLevels(wb.Bids)
	if err != nil {
		return snapshotEvent{}, fmt.Errorf("asset %s bids: %w", wb.AssetID, err)
	}
	asks, err := convertLevels(wb.Asks)
	if err != nil {
		return snapshotEvent{}, fmt.Errorf("asset %s asks: %w", wb.AssetID, err)
	}
	return snapshotEvent{Asset: wb.AssetID, Bids: bids, Asks: asks}, nil
}

// convertLevels parses one side of a wire book. The feed orders both sides
// with the touch at the end; the store wants the touch first, so levels are
// reversed while converting.
func convertLevels(in []wireLevel) ([]book.Level, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]book.Level, len(in))
	for i, lvl := range in {
		price, err := parsePrice(lvl.Price)
		if err != nil {
			return nil, err
		}
		size, err := parseSize(lvl.Size)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return nil, fmt.Errorf("zero-size level at %s", lvl.Price)
		}
		out[len(in)-1-i] = book.Level{Price: price, Size: size}
	}
	return out, nil
}

func convertDelta(pc wirePriceChange) (deltaEvent, error) {
	if pc.AssetID == "" {
		return deltaEvent{}, fmt.Errorf("price_change missing asset_id")
	}
	var side book.Side
	switch pc.Side {
	case "BUY", "buy":
		side = book.Bid
	case "SELL", "sell":
		side = book.Ask
	default:
		return deltaEvent{}, fmt.Errorf("price_change side %q", pc.Side)
	}
	price, err := parsePrice(pc.Price)
	if err != nil {
		return deltaEvent{}, fmt.Errorf("asset %s: %w", pc.AssetID, err)
	}
	// Size is the new total at the level; zero removes it.
	size, err := parseSize(pc.Size)
	if err != nil {
		return deltaEvent{}, fmt.Errorf("asset %s: %w", pc.AssetID, err)
	}
	return deltaEvent{Asset: pc.AssetID, Side: side, Price: price, Size: size}, nil
}

// parsePrice converts a decimal price string to pips. Outcome-token prices
// live strictly inside (0, 1); anything else is a malformed level.
func parsePrice(s string) (book.Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("price %q: %w", s, err)
	}
	pips := d.Shift(4).IntPart()
	if pips <= 0 || pips >= book.PriceScale {
		return 0, fmt.Errorf("price %q out of range", s)
	}
	return book.Price(pips), nil
}

// parseSize converts a decimal share quantity to hundredths, truncating
// anything finer so parsed depth never overstates the feed.
func parseSize(s string) (book.Size, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("size %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("size %q is negative", s)
	}
	return book.Size(d.Shift(2).IntPart()), nil
}
