package api

import (
	"context"
	"time"

	domrepo "CoinSentry/internal/domain/repository"
	xhttp "CoinSentry/pkg/http"

	"github.com/labstack/echo/v4"
)

// Streamer reports live stream connectivity.
type Streamer interface {
	IsConnected() bool
}

// HealthHandler reports process and dependency health.
type HealthHandler struct {
	gateway domrepo.Gateway
	stream  Streamer
}

func NewHealthHandler(gateway domrepo.Gateway, stream Streamer) *HealthHandler {
	return &HealthHandler{gateway: gateway, stream: stream}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/health", h.Health)
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := map[string]interface{}{"status": "ok"}
	if err := h.gateway.Health(ctx); err != nil {
		status["status"] = "degraded"
		status["store"] = err.Error()
	}
	if h.stream != nil {
		status["stream_connected"] = h.stream.IsConnected()
	}
	return xhttp.SuccessResponse(c, status)
}

// Routes composes several handlers into one route registrar.
type Routes []xhttp.Handler

func (r Routes) RegisterRoutes(e *echo.Echo) {
	for _, h := range r {
		if h != nil {
			h.RegisterRoutes(e)
		}
	}
}

var _ xhttp.Handler = (*HealthHandler)(nil)
