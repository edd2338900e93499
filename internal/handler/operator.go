package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-holding-engine/internal/model"
	"github.com/iliyamo/seat-holding-engine/internal/service"
)

// PriceSetter updates catalog prices.
type PriceSetter interface {
	SetPrice(performanceID, grade string, price int64) error
}

// Sweeper runs one storage-hygiene pass.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// OperatorHandler serves the OPERATOR endpoints.
type OperatorHandler struct {
	Prices  PriceSetter
	Sweeper Sweeper
	Log     *zap.Logger
}

// SetPrice handles PUT /v1/operator/performances/:id/prices/:grade with
// body {"price": n}.  Existing holdings keep their frozen price.
func (o *OperatorHandler) SetPrice(c echo.Context) error {
	var body struct {
		Price *int64 `json:"price"`
	}
	if err := c.Bind(&body); err != nil || body.Price == nil {
		return respondError(c, http.StatusBadRequest, codeInvalidInput, "price is required")
	}
	if *body.Price < 0 {
		return respondError(c, http.StatusBadRequest, codeInvalidInput, "price must not be negative")
	}
	perfID, grade := c.Param("id"), c.Param("grade")
	if err := o.Prices.SetPrice(perfID, grade, *body.Price); err != nil {
		if errors.Is(err, model.ErrPerformanceNotFound) {
			return respondError(c, http.StatusNotFound, string(service.CodePerformanceNotFound), "performance not found")
		}
		return engineError(c, o.Log, err)
	}
	o.Log.Info("price updated",
		zap.String("performance_id", perfID),
		zap.String("grade", grade),
		zap.Int64("price", *body.Price))
	return c.JSON(http.StatusOK, echo.Map{"performance_id": perfID, "grade": grade, "price": *body.Price})
}

// Sweep handles POST /v1/operator/sweep.
func (o *OperatorHandler) Sweep(c echo.Context) error {
	n, err := o.Sweeper.SweepExpired(c.Request().Context())
	if err != nil {
		return engineError(c, o.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"removed": n})
}
