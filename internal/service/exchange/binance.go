package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"CoinSentry/internal/domain/models"
	xhttp "CoinSentry/pkg/http"
	"CoinSentry/pkg/logger"
)

const binanceDefaultBaseURL = "https://api.binance.com"

// Binance adapts the Binance spot REST API.
type Binance struct {
	base
}

// NewBinance creates a Binance adapter.
func NewBinance(client *xhttp.RetryClient, log *logger.Suppressor, baseURL string, weight float64) *Binance {
	if baseURL == "" {
		baseURL = binanceDefaultBaseURL
	}
	return &Binance{base: base{
		id:      "binance",
		weight:  weight,
		baseURL: baseURL,
		client:  client,
		log:     log,
	}}
}

func (b *Binance) pair(symbol string) string {
	return strings.ToUpper(symbol) + "USDT"
}

func (b *Binance) get(ctx context.Context, path string, params map[string][]string, dest interface{}) error {
	return b.client.Do(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         b.baseURL + path,
		QueryParams: params,
	}, dest)
}

type binanceTicker struct {
	Symbol      string `json:"symbol"`
	LastPrice   string `json:"lastPrice"`
	QuoteVolume string `json:"quoteVolume"`
	CloseTime   int64  `json:"closeTime"`
}

func (b *Binance) GetTicker(ctx context.Context, symbol string) (*models.Observation, error) {
	var t binanceTicker
	err := b.get(ctx, "/api/v3/ticker/24hr", map[string][]string{
		"symbol": {b.pair(symbol)},
	}, &t)
	if err != nil {
		return nil, fmt.Errorf("binance ticker %s: %w", symbol, err)
	}
	ts := t.CloseTime
	if ts == 0 {
		ts = nowMillis()
	}
	return &models.Observation{
		Symbol:    strings.ToUpper(symbol),
		Exchange:  b.id,
		Price:     b.safeFloat("lastPrice", t.LastPrice),
		Volume:    b.safeFloat("quoteVolume", t.QuoteVolume),
		Timestamp: ts,
	}, nil
}

func (b *Binance) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.OHLCV, error) {
	// Binance kline rows mix numbers and strings, hence RawMessage cells.
	var rows [][]json.RawMessage
	err := b.get(ctx, "/api/v3/klines", map[string][]string{
		"symbol":   {b.pair(symbol)},
		"interval": {interval},
		"limit":    {fmt.Sprintf("%d", limit)},
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s: %w", symbol, err)
	}

	bars := make([]models.OHLCV, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			continue
		}
		var openTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			continue
		}
		bars = append(bars, models.OHLCV{
			Timestamp: openTime,
			Open:      b.rawFloat("kline.o", row[1]),
			High:      b.rawFloat("kline.h", row[2]),
			Low:       b.rawFloat("kline.l", row[3]),
			Close:     b.rawFloat("kline.c", row[4]),
			Volume:    b.rawFloat("kline.v", row[5]),
		})
	}
	return bars, nil
}

func (b *Binance) rawFloat(field string, raw json.RawMessage) float64 {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		b.log.Warn(b.id+":parse:"+field, "unparseable kline cell",
			logger.String("exchange", b.id),
			logger.String("field", field))
		return 0
	}
	return b.safeFloat(field, s)
}

type binanceDepth struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

func (b *Binance) GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	var d binanceDepth
	err := b.get(ctx, "/api/v3/depth", map[string][]string{
		"symbol": {b.pair(symbol)},
		"limit":  {fmt.Sprintf("%d", depth)},
	}, &d)
	if err != nil {
		return nil, fmt.Errorf("binance depth %s: %w", symbol, err)
	}
	return &models.OrderBook{
		Symbol:    strings.ToUpper(symbol),
		Exchange:  b.id,
		Bids:      b.levels("bid", d.Bids),
		Asks:      b.levels("ask", d.Asks),
		Timestamp: nowMillis(),
	}, nil
}

func (b *Binance) levels(side string, rows [][]string) []models.BookLevel {
	out := make([]models.BookLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		out = append(out, models.BookLevel{
			Price: b.safeFloat(side+".price", row[0]),
			Size:  b.safeFloat(side+".size", row[1]),
		})
	}
	return out
}
