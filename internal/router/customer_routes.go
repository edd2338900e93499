package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/seat-holding-engine/internal/handler"
	"github.com/iliyamo/seat-holding-engine/internal/middleware"
)

// RegisterCustomer registers customer endpoints under /v1.  All routes
// require a valid JWT with the CUSTOMER role; limiter, when non-nil, runs
// after authentication so buckets can be keyed by user.
func RegisterCustomer(e *echo.Echo, h *handler.CustomerHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	mws := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleCustomer),
	}
	if limiter != nil {
		mws = append(mws, limiter)
	}
	g := e.Group("/v1", mws...)

	g.POST("/performances/:id/holdings", h.CreateHolding)
	g.GET("/holdings/:id", h.GetHolding)
	g.DELETE("/holdings/:id", h.ReleaseHolding)
	g.POST("/holdings/:id/confirm", h.ConfirmHolding)

	g.GET("/my-reservations", h.ListReservations)
	g.GET("/reservations/:id", h.GetReservation)
	g.POST("/reservations/:id/cancel", h.CancelReservation)
	g.DELETE("/reservations/:id", h.DeleteReservation)
}
