package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"CoinSentry/internal/domain/models"
	domrepo "CoinSentry/internal/domain/repository"
	icache "CoinSentry/internal/service/cache"
	"CoinSentry/internal/service/ratelimit"
	"CoinSentry/internal/usecase"
	pkgcache "CoinSentry/pkg/cache"
	xlogger "CoinSentry/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	latest    *models.MetricSnapshot
	latestErr error
}

func (g *stubGateway) Init(context.Context) error { return nil }

func (g *stubGateway) SaveObservations(context.Context, []*models.Observation) error { return nil }

func (g *stubGateway) SaveSnapshot(context.Context, *models.MetricSnapshot) error { return nil }

func (g *stubGateway) SaveAlert(context.Context, *models.AnomalyRecord) error { return nil }

func (g *stubGateway) GetLatest(context.Context, string) (*models.MetricSnapshot, error) {
	return g.latest, g.latestErr
}

func (g *stubGateway) GetWindow(context.Context, string, time.Time, int) ([]*models.MetricSnapshot, error) {
	return nil, nil
}

func (g *stubGateway) GetAlerts(context.Context, string, string, int) ([]*models.AnomalyRecord, error) {
	return nil, nil
}

func (g *stubGateway) CleanupOlderThan(context.Context, time.Duration) error { return nil }

func (g *stubGateway) Health(context.Context) error { return nil }

func (g *stubGateway) Close() error { return nil }

type stubAdapter struct {
	id    string
	bars  []models.OHLCV
	err   error
	price float64
}

func (a *stubAdapter) ID() string      { return a.id }
func (a *stubAdapter) Weight() float64 { return 1 }

func (a *stubAdapter) GetTicker(context.Context, string) (*models.Observation, error) {
	return nil, errors.New("not used")
}

func (a *stubAdapter) GetKlines(context.Context, string, string, int) ([]models.OHLCV, error) {
	return a.bars, a.err
}

func (a *stubAdapter) GetOrderBook(_ context.Context, symbol string, depth int) (*models.OrderBook, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &models.OrderBook{
		Symbol: symbol, Exchange: a.id,
		Bids: []models.BookLevel{{Price: a.price, Size: 1}},
		Asks: []models.BookLevel{{Price: a.price, Size: 1}},
	}, nil
}

type stubMetrics struct{}

func (stubMetrics) RecordFetch(string, string)           {}
func (stubMetrics) RecordConsensus(string, float64, int) {}
func (stubMetrics) RecordError(string)                   {}
func (stubMetrics) RecordLatency(string, float64)        {}
func (stubMetrics) RecordAlert(string, string)           {}
func (stubMetrics) RecordExchangeHealth(string, bool)    {}

func testLogger(t *testing.T) *xlogger.Logger {
	t.Helper()
	l, err := xlogger.New(&xlogger.Config{Level: "error", Format: "console", Output: "stdout"})
	require.NoError(t, err)
	return l
}

func newTestHandler(t *testing.T, gw *stubGateway, adapters ...*stubAdapter) (*MarketHandler, *icache.SnapshotCache) {
	t.Helper()
	l := testLogger(t)
	snapCache := icache.NewSnapshotCache(pkgcache.NewMemoryCache(), time.Minute)

	ads := make([]domrepo.ExchangeAdapter, 0, len(adapters))
	for _, a := range adapters {
		ads = append(ads, a)
	}
	agg := usecase.NewAggregator(ads, ratelimit.New(0, 0), stubMetrics{}, xlogger.NewSuppressor(l, time.Minute))
	return NewMarketHandler(l, gw, agg, nil, snapCache), snapCache
}

func doGet(t *testing.T, h echo.HandlerFunc, target string) (*httptest.ResponseRecorder, apiEnvelope) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))

	var env apiEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

type apiEnvelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func TestLatestServesCachedSnapshotWhenStoreFails(t *testing.T) {
	gw := &stubGateway{latestErr: errors.New("store unreachable")}
	h, snapCache := newTestHandler(t, gw)

	cached := &models.MetricSnapshot{
		Symbol:         "BTC",
		Timestamp:      time.Now().UnixMilli(),
		PriceChange15m: 1.5,
	}
	require.NoError(t, snapCache.Set(context.Background(), cached))

	_, env := doGet(t, h.Latest, "/api/market/latest?symbol=BTC")
	assert.Equal(t, http.StatusOK, env.Status)

	var got models.MetricSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "BTC", got.Symbol)
	assert.Equal(t, cached.Timestamp, got.Timestamp)
	assert.Equal(t, 1.5, got.PriceChange15m)
}

func TestLatestStoreFailureAndCacheMissIsNotFound(t *testing.T) {
	gw := &stubGateway{latestErr: errors.New("store unreachable")}
	h, _ := newTestHandler(t, gw)

	_, env := doGet(t, h.Latest, "/api/market/latest?symbol=BTC")
	assert.Equal(t, http.StatusNotFound, env.Status)
}

func TestLatestPrefersStoreOverCache(t *testing.T) {
	fresh := &models.MetricSnapshot{Symbol: "BTC", Timestamp: time.Now().UnixMilli()}
	gw := &stubGateway{latest: fresh}
	h, snapCache := newTestHandler(t, gw)

	stale := &models.MetricSnapshot{Symbol: "BTC", Timestamp: fresh.Timestamp - 60_000}
	require.NoError(t, snapCache.Set(context.Background(), stale))

	_, env := doGet(t, h.Latest, "/api/market/latest?symbol=BTC")
	assert.Equal(t, http.StatusOK, env.Status)

	var got models.MetricSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, fresh.Timestamp, got.Timestamp)
}

func TestLatestRejectsMissingSymbol(t *testing.T) {
	h, _ := newTestHandler(t, &stubGateway{})

	_, env := doGet(t, h.Latest, "/api/market/latest")
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestKlinesServedFromSources(t *testing.T) {
	ad := &stubAdapter{id: "okx", bars: []models.OHLCV{
		{Timestamp: 0, Close: 100},
		{Timestamp: 60_000, Close: 101},
	}}
	h, _ := newTestHandler(t, &stubGateway{}, ad)

	_, env := doGet(t, h.Klines, "/api/market/klines?symbol=BTC&interval=1m&limit=2")
	assert.Equal(t, http.StatusOK, env.Status)

	var data struct {
		Rows []models.OHLCV `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Rows, 2)
	assert.Equal(t, 101.0, data.Rows[1].Close)
}

func TestOrderBookServedFromFirstHealthySource(t *testing.T) {
	h, _ := newTestHandler(t, &stubGateway{},
		&stubAdapter{id: "down", err: errors.New("unreachable")},
		&stubAdapter{id: "okx", price: 50000})

	_, env := doGet(t, h.OrderBook, "/api/market/orderbook?symbol=BTC&depth=1")
	assert.Equal(t, http.StatusOK, env.Status)

	var book models.OrderBook
	require.NoError(t, json.Unmarshal(env.Data, &book))
	assert.Equal(t, "okx", book.Exchange)
	assert.Equal(t, 50000.0, book.Bids[0].Price)
}
