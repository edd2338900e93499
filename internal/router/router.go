package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-holding-engine/internal/handler"
	"github.com/iliyamo/seat-holding-engine/internal/middleware"
)

// New returns an Echo instance with recovery, request ids and request
// logging installed.
func New(log *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))
	return e
}

// RegisterRoutes registers the unauthenticated health check.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterPublic registers guest browse endpoints.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler) {
	e.GET("/v1/performances/:id", p.GetPerformance)
	e.GET("/v1/performances/:id/seats", p.GetSeatMap)
}

// RegisterOperator registers OPERATOR endpoints under /v1/operator.
func RegisterOperator(e *echo.Echo, o *handler.OperatorHandler, jwtSecret string) {
	g := e.Group(
		"/v1/operator",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleOperator),
	)
	g.PUT("/performances/:id/prices/:grade", o.SetPrice)
	g.POST("/sweep", o.Sweep)
}
