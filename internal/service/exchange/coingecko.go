package exchange

import (
	"context"
	"fmt"
	"strings"

	"CoinSentry/internal/domain/models"
	xhttp "CoinSentry/pkg/http"
	"CoinSentry/pkg/logger"
)

const coingeckoDefaultBaseURL = "https://api.coingecko.com"

// coingeckoIDs maps canonical symbols to CoinGecko coin ids. Symbols outside
// this map are rejected rather than guessed.
var coingeckoIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"SOL":  "solana",
	"XRP":  "ripple",
	"DOGE": "dogecoin",
	"ADA":  "cardano",
	"LINK": "chainlink",
	"OP":   "optimism",
	"LTC":  "litecoin",
	"TON":  "the-open-network",
}

// CoinGecko adapts the CoinGecko aggregate price API. It is a price/volume
// source only: no order book, no per-venue depth.
type CoinGecko struct {
	base
	apiKey string
}

// NewCoinGecko creates a CoinGecko adapter.
func NewCoinGecko(client *xhttp.RetryClient, log *logger.Suppressor, baseURL, apiKey string, weight float64) *CoinGecko {
	if baseURL == "" {
		baseURL = coingeckoDefaultBaseURL
	}
	return &CoinGecko{
		base: base{
			id:      "coingecko",
			weight:  weight,
			baseURL: baseURL,
			client:  client,
			log:     log,
		},
		apiKey: apiKey,
	}
}

func (g *CoinGecko) coinID(symbol string) (string, error) {
	id, ok := coingeckoIDs[strings.ToUpper(symbol)]
	if !ok {
		return "", fmt.Errorf("coingecko: unknown symbol %s", symbol)
	}
	return id, nil
}

func (g *CoinGecko) get(ctx context.Context, path string, params map[string][]string, dest interface{}) error {
	headers := map[string]string{}
	if g.apiKey != "" {
		headers["x-cg-demo-api-key"] = g.apiKey
	}
	return g.client.Do(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         g.baseURL + path,
		Headers:     headers,
		QueryParams: params,
	}, dest)
}

type coingeckoQuote struct {
	USD           float64 `json:"usd"`
	USD24hVol     float64 `json:"usd_24h_vol"`
	LastUpdatedAt int64   `json:"last_updated_at"` // epoch seconds
}

func (g *CoinGecko) GetTicker(ctx context.Context, symbol string) (*models.Observation, error) {
	id, err := g.coinID(symbol)
	if err != nil {
		return nil, err
	}
	var resp map[string]coingeckoQuote
	err = g.get(ctx, "/api/v3/simple/price", map[string][]string{
		"ids":                     {id},
		"vs_currencies":           {"usd"},
		"include_24hr_vol":        {"true"},
		"include_last_updated_at": {"true"},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("coingecko ticker %s: %w", symbol, err)
	}
	q, ok := resp[id]
	if !ok {
		return nil, fmt.Errorf("coingecko ticker %s: coin %s missing from response", symbol, id)
	}
	ts := q.LastUpdatedAt * 1000
	if ts == 0 {
		ts = nowMillis()
	}
	return &models.Observation{
		Symbol:    strings.ToUpper(symbol),
		Exchange:  g.id,
		Price:     q.USD,
		Volume:    q.USD24hVol,
		Timestamp: ts,
	}, nil
}

// GetKlines serves OHLC bars from the coin market chart. CoinGecko bars
// carry no per-bar volume; the field stays at its neutral zero.
func (g *CoinGecko) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.OHLCV, error) {
	id, err := g.coinID(symbol)
	if err != nil {
		return nil, err
	}
	var rows [][]float64
	err = g.get(ctx, "/api/v3/coins/"+id+"/ohlc", map[string][]string{
		"vs_currency": {"usd"},
		"days":        {"1"},
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("coingecko ohlc %s: %w", symbol, err)
	}

	bars := make([]models.OHLCV, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			continue
		}
		bars = append(bars, models.OHLCV{
			Timestamp: int64(row[0]),
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
		})
	}
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

// GetOrderBook is unsupported: CoinGecko aggregates across venues and has no
// depth endpoint.
func (g *CoinGecko) GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	return nil, fmt.Errorf("coingecko order book %s: %w", symbol, ErrNotSupported)
}
