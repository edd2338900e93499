package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves GET /healthz.
type HealthHandler struct {
	Store Pinger
	Log   *zap.Logger
}

// Health returns "ok" when the occupancy store answers a ping within two
// seconds and 503 otherwise.  A nil Store always reports ok.
func (h *HealthHandler) Health(c echo.Context) error {
	if h.Store == nil {
		return c.String(http.StatusOK, "ok")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		if h.Log != nil {
			h.Log.Warn("health check failed", zap.Error(err))
		}
		return c.String(http.StatusServiceUnavailable, "store unavailable")
	}
	return c.String(http.StatusOK, "ok")
}
