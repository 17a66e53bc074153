package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"pm-arb-bot/internal/book"

	"go.uber.org/zap"
)

// MarketsClient fetches binary market metadata from the Gamma-style REST
// API: market id, question, and the YES/NO outcome token ids used for the
// websocket subscription.
type MarketsClient struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewMarketsClient(baseURL string, timeout time.Duration, log *zap.Logger) *MarketsClient {
	return &MarketsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

const (
	discoveryPageSize = 100
	discoveryMaxPages = 50
)

// gammaMarket matches the API response. outcomes and clobTokenIds arrive as
// stringified JSON arrays; liquidity and volume as either numbers or
// strings depending on endpoint version.
type gammaMarket struct {
	ConditionID  string     `json:"conditionId"`
	Question     string     `json:"question"`
	Outcomes     string     `json:"outcomes"`
	ClobTokenIDs string     `json:"clobTokenIds"`
	EndDateISO   string     `json:"endDateIso"`
	Liquidity    flexNumber `json:"liquidity"`
	Volume       flexNumber `json:"volume"`
	Active       bool       `json:"active"`
	Closed       bool       `json:"closed"`
}

// flexNumber decodes a JSON number or a numeric string.
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("numeric field %q: %w", s, err)
	}
	*f = flexNumber(v)
	return nil
}

// ActiveMarkets pages through active, unresolved binary markets and returns
// those clearing the liquidity and volume floors. Markets whose token ids
// or outcome labels cannot be resolved are skipped, not fatal.
func (c *MarketsClient) ActiveMarkets(ctx context.Context, minLiquidity, minVolume float64) ([]book.Market, error) {
	var out []book.Market
	for page := 0; page < discoveryMaxPages; page++ {
		batch, err := c.fetchPage(ctx, page*discoveryPageSize)
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		for _, gm := range batch {
			if !gm.Active || gm.Closed {
				continue
			}
			if float64(gm.Liquidity) < minLiquidity || float64(gm.Volume) < minVolume {
				continue
			}
			m, err := convertGammaMarket(gm)
			if err != nil {
				if c.log != nil {
					c.log.Debug("skipping market", zap.String("condition_id", gm.ConditionID), zap.Error(err))
				}
				continue
			}
			out = append(out, m)
		}
		if len(batch) < discoveryPageSize {
			break
		}
	}
	return out, nil
}

// Market fetches a single market by condition id.
func (c *MarketsClient) Market(ctx context.Context, conditionID string) (book.Market, error) {
	endpoint := fmt.Sprintf("%s/markets?condition_ids=%s", c.baseURL, url.QueryEscape(conditionID))
	var batch []gammaMarket
	if err := c.get(ctx, endpoint, &batch); err != nil {
		return book.Market{}, err
	}
	if len(batch) == 0 {
		return book.Market{}, fmt.Errorf("market %s not found", conditionID)
	}
	return convertGammaMarket(batch[0])
}

func (c *MarketsClient) fetchPage(ctx context.Context, offset int) ([]gammaMarket, error) {
	endpoint := fmt.Sprintf("%s/markets?active=true&closed=false&limit=%d&offset=%d",
		c.baseURL, discoveryPageSize, offset)
	var batch []gammaMarket
	if err := c.get(ctx, endpoint, &batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (c *MarketsClient) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("gamma http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// convertGammaMarket resolves the YES/NO token orientation from the
// outcome labels. Index order is not guaranteed, so the labels decide;
// binary markets without a recognizable Yes and No are rejected.
func convertGammaMarket(gm gammaMarket) (book.Market, error) {
	if gm.ConditionID == "" {
		return book.Market{}, fmt.Errorf("market missing conditionId")
	}
	var tokens []string
	if err := json.Unmarshal([]byte(gm.ClobTokenIDs), &tokens); err != nil {
		return book.Market{}, fmt.Errorf("clobTokenIds %q: %w", gm.ClobTokenIDs, err)
	}
	var outcomes []string
	if err := json.Unmarshal([]byte(gm.Outcomes), &outcomes); err != nil {
		return book.Market{}, fmt.Errorf("outcomes %q: %w", gm.Outcomes, err)
	}
	if len(tokens) != 2 || len(outcomes) != 2 {
		return book.Market{}, fmt.Errorf("not a binary market: %d tokens, %d outcomes", len(tokens), len(outcomes))
	}
	yesIdx, noIdx := -1, -1
	for i, o := range outcomes {
		switch {
		case strings.EqualFold(o, "Yes"):
			yesIdx = i
		case strings.EqualFold(o, "No"):
			noIdx = i
		}
	}
	if yesIdx < 0 || noIdx < 0 {
		return book.Market{}, fmt.Errorf("outcomes %v lack Yes/No labels", outcomes)
	}
	// endDateIso is optional; a market without one just never qualifies for
	// expiration snipes.
	var endTime int64
	if gm.EndDateISO != "" {
		if t, err := time.Parse(time.RFC3339, gm.EndDateISO); err == nil {
			endTime = t.UnixNano()
		}
	}
	return book.Market{
		ID:       gm.ConditionID,
		Question: gm.Question,
		YesAsset: tokens[yesIdx],
		NoAsset:  tokens[noIdx],
		EndTime:  endTime,
		Active:   true,
	}, nil
}
