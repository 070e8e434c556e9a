package exchange

import (
	"context"
	"fmt"
	"strings"

	"CoinSentry/internal/domain/models"
	xhttp "CoinSentry/pkg/http"
	"CoinSentry/pkg/logger"
)

const okxDefaultBaseURL = "https://www.okx.com"

// OKX adapts the OKX v5 public market API. It also serves the option chain
// for underlyings with listed options.
type OKX struct {
	base
}

// NewOKX creates an OKX adapter.
func NewOKX(client *xhttp.RetryClient, log *logger.Suppressor, baseURL string, weight float64) *OKX {
	if baseURL == "" {
		baseURL = okxDefaultBaseURL
	}
	return &OKX{base: base{
		id:      "okx",
		weight:  weight,
		baseURL: baseURL,
		client:  client,
		log:     log,
	}}
}

// instID maps the canonical symbol to OKX spot instrument naming.
func (o *OKX) instID(symbol string) string {
	return strings.ToUpper(symbol) + "-USDT"
}

type okxEnvelope[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []T    `json:"data"`
}

func (o *OKX) get(ctx context.Context, path string, params map[string][]string, dest interface{}) error {
	return o.client.Do(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         o.baseURL + path,
		QueryParams: params,
	}, dest)
}

type okxTicker struct {
	InstID    string `json:"instId"`
	Last      string `json:"last"`
	VolCcy24h string `json:"volCcy24h"`
	TS        string `json:"ts"`
}

func (o *OKX) GetTicker(ctx context.Context, symbol string) (*models.Observation, error) {
	var env okxEnvelope[okxTicker]
	err := o.get(ctx, "/api/v5/market/ticker", map[string][]string{
		"instId": {o.instID(symbol)},
	}, &env)
	if err != nil {
		return nil, fmt.Errorf("okx ticker %s: %w", symbol, err)
	}
	if env.Code != "0" || len(env.Data) == 0 {
		return nil, fmt.Errorf("okx ticker %s: api code %s: %s", symbol, env.Code, env.Msg)
	}
	t := env.Data[0]
	ts := o.safeInt64("ts", t.TS)
	if ts == 0 {
		ts = nowMillis()
	}
	return &models.Observation{
		Symbol:    strings.ToUpper(symbol),
		Exchange:  o.id,
		Price:     o.safeFloat("last", t.Last),
		Volume:    o.safeFloat("volCcy24h", t.VolCcy24h),
		Timestamp: ts,
	}, nil
}

func (o *OKX) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]models.OHLCV, error) {
	var env okxEnvelope[[]string]
	err := o.get(ctx, "/api/v5/market/candles", map[string][]string{
		"instId": {o.instID(symbol)},
		"bar":    {interval},
		"limit":  {fmt.Sprintf("%d", limit)},
	}, &env)
	if err != nil {
		return nil, fmt.Errorf("okx klines %s: %w", symbol, err)
	}
	if env.Code != "0" {
		return nil, fmt.Errorf("okx klines %s: api code %s: %s", symbol, env.Code, env.Msg)
	}

	// OKX returns newest-first; the rest of the system expects ascending.
	bars := make([]models.OHLCV, 0, len(env.Data))
	for i := len(env.Data) - 1; i >= 0; i-- {
		row := env.Data[i]
		if len(row) < 6 {
			continue
		}
		bars = append(bars, models.OHLCV{
			Timestamp: o.safeInt64("candle.ts", row[0]),
			Open:      o.safeFloat("candle.o", row[1]),
			High:      o.safeFloat("candle.h", row[2]),
			Low:       o.safeFloat("candle.l", row[3]),
			Close:     o.safeFloat("candle.c", row[4]),
			Volume:    o.safeFloat("candle.vol", row[5]),
		})
	}
	return bars, nil
}

type okxBook struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
	TS   string     `json:"ts"`
}

func (o *OKX) GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	var env okxEnvelope[okxBook]
	err := o.get(ctx, "/api/v5/market/books", map[string][]string{
		"instId": {o.instID(symbol)},
		"sz":     {fmt.Sprintf("%d", depth)},
	}, &env)
	if err != nil {
		return nil, fmt.Errorf("okx book %s: %w", symbol, err)
	}
	if env.Code != "0" || len(env.Data) == 0 {
		return nil, fmt.Errorf("okx book %s: api code %s: %s", symbol, env.Code, env.Msg)
	}
	b := env.Data[0]
	book := &models.OrderBook{
		Symbol:    strings.ToUpper(symbol),
		Exchange:  o.id,
		Bids:      o.levels("bid", b.Bids),
		Asks:      o.levels("ask", b.Asks),
		Timestamp: o.safeInt64("ts", b.TS),
	}
	if book.Timestamp == 0 {
		book.Timestamp = nowMillis()
	}
	return book, nil
}

func (o *OKX) levels(side string, rows [][]string) []models.BookLevel {
	out := make([]models.BookLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		out = append(out, models.BookLevel{
			Price: o.safeFloat(side+".price", row[0]),
			Size:  o.safeFloat(side+".size", row[1]),
		})
	}
	return out
}

type okxOptionTicker struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
	Vol24h string `json:"vol24h"`
	OI     string `json:"oi"`
	TS     string `json:"ts"`
}

type okxOptSummary struct {
	InstID  string `json:"instId"`
	MarkVol string `json:"markVol"`
	MarkPx  string `json:"markPx"`
}

// GetOptionChain fetches the full option chain for an underlying like
// "BTC-USD": tickers joined with the public volatility summary by contract.
func (o *OKX) GetOptionChain(ctx context.Context, underlying string) ([]models.OptionContract, error) {
	var tickers okxEnvelope[okxOptionTicker]
	err := o.get(ctx, "/api/v5/market/tickers", map[string][]string{
		"instType": {"OPTION"},
		"uly":      {underlying},
	}, &tickers)
	if err != nil {
		return nil, fmt.Errorf("okx option tickers %s: %w", underlying, err)
	}
	if tickers.Code != "0" {
		return nil, fmt.Errorf("okx option tickers %s: api code %s: %s", underlying, tickers.Code, tickers.Msg)
	}

	var summary okxEnvelope[okxOptSummary]
	err = o.get(ctx, "/api/v5/public/opt-summary", map[string][]string{
		"uly": {underlying},
	}, &summary)
	if err != nil {
		return nil, fmt.Errorf("okx opt summary %s: %w", underlying, err)
	}
	marks := make(map[string]okxOptSummary, len(summary.Data))
	for _, s := range summary.Data {
		marks[s.InstID] = s
	}

	contracts := make([]models.OptionContract, 0, len(tickers.Data))
	for _, t := range tickers.Data {
		c, ok := o.parseContractID(t.InstID)
		if !ok {
			continue
		}
		c.Volume = o.safeFloat("opt.vol24h", t.Vol24h)
		c.OpenInterest = o.safeFloat("opt.oi", t.OI)
		c.MarkPrice = o.safeFloat("opt.last", t.Last)
		c.Timestamp = o.safeInt64("opt.ts", t.TS)
		if c.Timestamp == 0 {
			c.Timestamp = nowMillis()
		}
		if m, ok := marks[t.InstID]; ok {
			c.ImpliedVol = o.safeFloat("opt.markVol", m.MarkVol)
			if mp := o.safeFloat("opt.markPx", m.MarkPx); mp > 0 {
				c.MarkPrice = mp
			}
		}
		contracts = append(contracts, c)
	}
	return contracts, nil
}

// parseContractID splits an instrument id like "BTC-USD-240927-50000-C" into
// its contract fields.
func (o *OKX) parseContractID(instID string) (models.OptionContract, bool) {
	parts := strings.Split(instID, "-")
	if len(parts) != 5 {
		return models.OptionContract{}, false
	}
	typ := models.OptionContract{
		ContractID: instID,
		Underlying: parts[0] + "-" + parts[1],
		Strike:     o.safeFloat("opt.strike", parts[3]),
	}
	switch parts[4] {
	case "C":
		typ.Type = "call"
	case "P":
		typ.Type = "put"
	default:
		return models.OptionContract{}, false
	}
	// Expiry date in YYMMDD; kept as midnight UTC epoch ms.
	if t, err := parseCompactDate(parts[2]); err == nil {
		typ.ExpiryMillis = t
	}
	return typ, true
}
