package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-holding-engine/internal/model"
	"github.com/iliyamo/seat-holding-engine/internal/service"
)

// SeatMapEngine is the part of the engine used by the public endpoints.
type SeatMapEngine interface {
	GetSeatStatusMap(ctx context.Context, performanceID, date, showTime string) (map[string]model.SeatStatus, error)
}

// PublicHandler serves unauthenticated browse endpoints.
type PublicHandler struct {
	Engine  SeatMapEngine
	Catalog service.Catalog
	Log     *zap.Logger
}

// GetPerformance handles GET /v1/performances/:id and returns the catalog
// record without the seat layout.
func (p *PublicHandler) GetPerformance(c echo.Context) error {
	perf, err := p.Catalog.Performance(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, model.ErrPerformanceNotFound) {
			return respondError(c, http.StatusNotFound, string(service.CodePerformanceNotFound), "performance not found")
		}
		return engineError(c, p.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":     perf.ID,
		"title":  perf.Title,
		"venue":  perf.Venue,
		"seats":  len(perf.Layout),
		"grades": perf.Grades,
		"prices": perf.Prices,
	})
}

// GetSeatMap handles GET /v1/performances/:id/seats?date=YYYY-MM-DD&time=HH:MM.
// Every layout seat is reported as available, holding or reserved.
func (p *PublicHandler) GetSeatMap(c echo.Context) error {
	date, showTime := c.QueryParam("date"), c.QueryParam("time")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return respondError(c, http.StatusBadRequest, codeInvalidInput, "date must be YYYY-MM-DD")
	}
	if _, err := time.Parse("15:04", showTime); err != nil {
		return respondError(c, http.StatusBadRequest, codeInvalidInput, "time must be HH:MM")
	}
	perfID := c.Param("id")
	seats, err := p.Engine.GetSeatStatusMap(c.Request().Context(), perfID, date, showTime)
	if err != nil {
		return engineError(c, p.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"performance_id": perfID,
		"date":           date,
		"time":           showTime,
		"seats":          seats,
	})
}
