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

// CustomerEngine is the part of the engine used by customer endpoints.
type CustomerEngine interface {
	CreateHolding(ctx context.Context, in service.CreateHoldingInput) (*service.HoldingResult, error)
	GetHolding(ctx context.Context, holdingID string) (*model.Holding, error)
	ReleaseHolding(ctx context.Context, holdingID string) (bool, error)
	ConfirmReservation(ctx context.Context, holdingID, performanceTitle, venue string) (*service.ReservationResult, error)
	GetUserReservations(ctx context.Context, userID string) ([]model.Reservation, error)
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	CancelReservation(ctx context.Context, id string) (bool, error)
	DeleteReservation(ctx context.Context, id string) (bool, error)
}

// CustomerHandler serves the holding and reservation endpoints.  Every
// method assumes JWTAuth and RequireRole already ran; a holding or
// reservation owned by another user yields 403.
type CustomerHandler struct {
	Engine CustomerEngine
	Clock  func() time.Time
	Log    *zap.Logger
}

// NewCustomerHandler panics on a nil engine.
func NewCustomerHandler(engine CustomerEngine, log *zap.Logger) *CustomerHandler {
	if engine == nil {
		panic("nil engine passed to NewCustomerHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CustomerHandler{Engine: engine, Clock: time.Now, Log: log}
}

type createHoldingRequest struct {
	SeatIDs []string `json:"seat_ids"`
	Date    string   `json:"date"`
	Time    string   `json:"time"`
	Policy  string   `json:"policy"`
}

type holdingResponse struct {
	*model.Holding
	Status     model.HoldingStatus `json:"status"`
	TotalPrice int64               `json:"total_price"`
}

func (h *CustomerHandler) holdingView(hd *model.Holding) holdingResponse {
	return holdingResponse{Holding: hd, Status: hd.Status(h.Clock()), TotalPrice: hd.TotalPrice()}
}

// CreateHolding handles POST /v1/performances/:id/holdings.  The hold
// duration comes from the configured policy named in the body.  Any other
// active holding of the caller is released first.  It returns 201 with the
// holding, 400 INVALID_SEAT_ID listing every bad seat, 409 SEAT_CONFLICT
// listing the seats already taken, or 404 PERFORMANCE_NOT_FOUND.
func (h *CustomerHandler) CreateHolding(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
	}
	var body createHoldingRequest
	if err := c.Bind(&body); err != nil {
		return respondError(c, http.StatusBadRequest, codeInvalidInput, "invalid request body")
	}

	res, err := h.Engine.CreateHolding(c.Request().Context(), service.CreateHoldingInput{
		PerformanceID: c.Param("id"),
		Date:          body.Date,
		Time:          body.Time,
		UserID:        userID,
		SeatIDs:       body.SeatIDs,
		Policy:        model.TTLPolicy(body.Policy),
	})
	if err != nil {
		return engineError(c, h.Log, err)
	}
	if !res.Success {
		extra := echo.Map{}
		if len(res.InvalidSeats) > 0 {
			extra["invalid_seats"] = res.InvalidSeats
		}
		if len(res.UnavailableSeats) > 0 {
			extra["unavailable_seats"] = res.UnavailableSeats
		}
		if len(res.ReleasedHoldings) > 0 {
			extra["released_holdings"] = res.ReleasedHoldings
		}
		return c.JSON(statusForCode(res.Error), errorBody(string(res.Error), res.Message, extra))
	}

	released := res.ReleasedHoldings
	if released == nil {
		released = []string{}
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"holding_id":        res.HoldingID,
		"expires_at":        res.ExpiresAt,
		"released_holdings": released,
		"holding":           h.holdingView(res.Holding),
	})
}

// ownedHolding loads the caller's active holding.  When ok is false the
// error response has been written and err is what the handler returns.
func (h *CustomerHandler) ownedHolding(c echo.Context) (hd *model.Holding, ok bool, err error) {
	userID, err := getUserID(c)
	if err != nil {
		return nil, false, respondError(c, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
	}
	hd, err = h.Engine.GetHolding(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, false, engineError(c, h.Log, err)
	}
	if hd == nil {
		return nil, false, respondError(c, http.StatusNotFound, string(service.CodeHoldingNotFoundOrExpired), "holding not found or expired")
	}
	if hd.UserID != userID {
		return nil, false, respondError(c, http.StatusForbidden, codeForbidden, "holding belongs to another user")
	}
	return hd, true, nil
}

// GetHolding handles GET /v1/holdings/:id.
func (h *CustomerHandler) GetHolding(c echo.Context) error {
	hd, ok, err := h.ownedHolding(c)
	if !ok {
		return err
	}
	return c.JSON(http.StatusOK, h.holdingView(hd))
}

// ReleaseHolding handles DELETE /v1/holdings/:id.  It returns 204, or 404
// when the holding is no longer active.
func (h *CustomerHandler) ReleaseHolding(c echo.Context) error {
	hd, ok, err := h.ownedHolding(c)
	if !ok {
		return err
	}
	released, err := h.Engine.ReleaseHolding(c.Request().Context(), hd.ID)
	if err != nil {
		return engineError(c, h.Log, err)
	}
	if !released {
		return respondError(c, http.StatusNotFound, string(service.CodeHoldingNotFoundOrExpired), "holding not found or expired")
	}
	return c.NoContent(http.StatusNoContent)
}

type confirmRequest struct {
	PerformanceTitle string `json:"performance_title"`
	Venue            string `json:"venue"`
}

// ConfirmHolding handles POST /v1/holdings/:id/confirm.  The body is
// optional; missing title and venue come from the catalog.  It returns 201
// with the reservation or 404 HOLDING_NOT_FOUND_OR_EXPIRED.
func (h *CustomerHandler) ConfirmHolding(c echo.Context) error {
	hd, ok, err := h.ownedHolding(c)
	if !ok {
		return err
	}
	var body confirmRequest
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&body); err != nil {
			return respondError(c, http.StatusBadRequest, codeInvalidInput, "invalid request body")
		}
	}
	res, err := h.Engine.ConfirmReservation(c.Request().Context(), hd.ID, body.PerformanceTitle, body.Venue)
	if err != nil {
		return engineError(c, h.Log, err)
	}
	if !res.Success {
		return respondError(c, statusForCode(res.Error), string(res.Error), res.Message)
	}
	return c.JSON(http.StatusCreated, res.Reservation)
}

// ListReservations handles GET /v1/my-reservations.
func (h *CustomerHandler) ListReservations(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return respondError(c, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
	}
	list, err := h.Engine.GetUserReservations(c.Request().Context(), userID)
	if err != nil {
		return engineError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": list})
}

func (h *CustomerHandler) ownedReservation(c echo.Context) (res *model.Reservation, ok bool, err error) {
	userID, err := getUserID(c)
	if err != nil {
		return nil, false, respondError(c, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
	}
	res, err = h.Engine.GetReservation(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, false, engineError(c, h.Log, err)
	}
	if res == nil {
		return nil, false, respondError(c, http.StatusNotFound, codeReservationNotFound, "reservation not found")
	}
	if res.UserID != userID {
		return nil, false, respondError(c, http.StatusForbidden, codeForbidden, "reservation belongs to another user")
	}
	return res, true, nil
}

// GetReservation handles GET /v1/reservations/:id.
func (h *CustomerHandler) GetReservation(c echo.Context) error {
	res, ok, err := h.ownedReservation(c)
	if !ok {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

// CancelReservation handles POST /v1/reservations/:id/cancel.  Seats of a
// cancelled reservation stay unavailable.  A reservation that is already
// cancelled yields 409.
func (h *CustomerHandler) CancelReservation(c echo.Context) error {
	res, ok, err := h.ownedReservation(c)
	if !ok {
		return err
	}
	cancelled, err := h.Engine.CancelReservation(c.Request().Context(), res.ID)
	if err != nil {
		return engineError(c, h.Log, err)
	}
	if !cancelled {
		return respondError(c, http.StatusConflict, codeReservationNotConfirmed, "reservation is not confirmed")
	}
	return c.JSON(http.StatusOK, echo.Map{"id": res.ID, "status": model.ReservationCancelled})
}

// DeleteReservation handles DELETE /v1/reservations/:id.  Only cancelled
// reservations can be purged; a confirmed one yields 409.
func (h *CustomerHandler) DeleteReservation(c echo.Context) error {
	res, ok, err := h.ownedReservation(c)
	if !ok {
		return err
	}
	deleted, err := h.Engine.DeleteReservation(c.Request().Context(), res.ID)
	if errors.Is(err, service.ErrReservationNotCancelled) {
		return respondError(c, http.StatusConflict, codeReservationNotCancelled, "cancel the reservation before deleting it")
	}
	if err != nil {
		return engineError(c, h.Log, err)
	}
	if !deleted {
		return respondError(c, http.StatusNotFound, codeReservationNotFound, "reservation not found")
	}
	return c.NoContent(http.StatusNoContent)
}
