package api

import (
	"time"

	"CoinSentry/internal/domain/models"
	domrepo "CoinSentry/internal/domain/repository"
	icache "CoinSentry/internal/service/cache"
	"CoinSentry/internal/usecase"
	xhttp "CoinSentry/pkg/http"
	xlogger "CoinSentry/pkg/logger"

	"github.com/labstack/echo/v4"
)

// MarketHandler serves the read-only market data API. Reads prefer the
// store; when it is unreachable the cached snapshot is served instead,
// stale-but-available beats unavailable. Consumers tell stale from fresh by
// the snapshot's own timestamp.
type MarketHandler struct {
	logger  *xlogger.Logger
	gateway domrepo.Gateway
	agg     *usecase.Aggregator
	engine  *usecase.Engine
	cache   *icache.SnapshotCache
}

func NewMarketHandler(logger *xlogger.Logger, gateway domrepo.Gateway, agg *usecase.Aggregator, engine *usecase.Engine, cache *icache.SnapshotCache) *MarketHandler {
	return &MarketHandler{logger: logger, gateway: gateway, agg: agg, engine: engine, cache: cache}
}

func (h *MarketHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/market/latest", h.Latest)
	g.GET("/market/window", h.Window)
	g.GET("/market/consensus", h.Consensus)
	g.GET("/market/klines", h.Klines)
	g.GET("/market/orderbook", h.OrderBook)
	g.GET("/alerts", h.Alerts)
}

func (h *MarketHandler) Latest(c echo.Context) error {
	req := &models.LatestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	snap, err := h.gateway.GetLatest(c.Request().Context(), req.Symbol)
	if err != nil {
		h.logger.Warn("latest store read failed, trying cache",
			xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		snap, err = h.cache.Get(c.Request().Context(), req.Symbol)
		if err != nil {
			h.logger.Error("latest cache fallback failed", xlogger.Error(err))
			return xhttp.InternalServerErrorResponse(c)
		}
	}
	if snap == nil {
		return xhttp.NotFoundResponse(c, "no data for symbol")
	}
	return xhttp.SuccessResponse(c, snap)
}

func (h *MarketHandler) Window(c echo.Context) error {
	req := &models.WindowRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	since := xhttp.ParseTimeDefault(req.Since, time.Now().Add(-time.Hour))

	rows, err := h.gateway.GetWindow(c.Request().Context(), req.Symbol, since, req.Limit)
	if err != nil {
		h.logger.Error("window read failed",
			xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("window read failed").WithError(err))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// Consensus serves the in-memory last consensus point plus per-source
// health. No store round-trip: the engine buffer is the authority here.
func (h *MarketHandler) Consensus(c echo.Context) error {
	req := &models.ConsensusRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	point := h.engine.LastConsensus(req.Symbol)
	if point == nil {
		return xhttp.NotFoundResponse(c, "no consensus yet")
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"consensus": point,
		"sources":   h.agg.HealthSnapshot(),
	})
}

// Klines serves candlestick history straight from the sources; bars are not
// persisted, so there is no store path to fall back on.
func (h *MarketHandler) Klines(c echo.Context) error {
	req := &models.KlinesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	bars, err := h.agg.Klines(c.Request().Context(), req.Symbol, req.Interval, req.Limit)
	if err != nil {
		h.logger.Error("klines fetch failed",
			xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("klines fetch failed").WithError(err))
	}
	return xhttp.ListResponse(c, bars, int64(len(bars)))
}

// OrderBook serves current depth from the first healthy source.
func (h *MarketHandler) OrderBook(c echo.Context) error {
	req := &models.OrderBookRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	book, err := h.agg.OrderBook(c.Request().Context(), req.Symbol, req.Depth)
	if err != nil {
		h.logger.Error("orderbook fetch failed",
			xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("orderbook fetch failed").WithError(err))
	}
	return xhttp.SuccessResponse(c, book)
}

func (h *MarketHandler) Alerts(c echo.Context) error {
	req := &models.AlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, err := h.gateway.GetAlerts(c.Request().Context(), req.Metric, req.Severity, req.Limit)
	if err != nil {
		h.logger.Error("alerts read failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("alerts read failed").WithError(err))
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

var _ xhttp.Handler = (*MarketHandler)(nil)
