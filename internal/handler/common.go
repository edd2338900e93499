package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-holding-engine/internal/middleware"
	"github.com/iliyamo/seat-holding-engine/internal/model"
	"github.com/iliyamo/seat-holding-engine/internal/service"
)

// Error codes used only at the HTTP layer.
const (
	codeUnauthorized            = "UNAUTHORIZED"
	codeForbidden               = "FORBIDDEN"
	codeInvalidInput            = "INVALID_INPUT"
	codeStoreUnavailable        = "STORE_UNAVAILABLE"
	codeInternal                = "INTERNAL"
	codeReservationNotFound     = "RESERVATION_NOT_FOUND"
	codeReservationNotConfirmed = "RESERVATION_NOT_CONFIRMED"
	codeReservationNotCancelled = "RESERVATION_NOT_CANCELLED"
)

var errNoUser = errors.New("invalid user_id in context")

// getUserID returns the subject stored by middleware.JWTAuth.
func getUserID(c echo.Context) (string, error) {
	if s, ok := c.Get(middleware.ContextUserID).(string); ok && s != "" {
		return s, nil
	}
	return "", errNoUser
}

// errorBody builds {"error": code, "message": msg} plus any extra fields.
func errorBody(code, msg string, extra echo.Map) echo.Map {
	body := echo.Map{"error": code, "message": msg}
	for k, v := range extra {
		body[k] = v
	}
	return body
}

func respondError(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, errorBody(code, msg, nil))
}

// statusForCode maps engine business outcomes to HTTP statuses.
func statusForCode(code service.ErrorCode) int {
	switch code {
	case service.CodeInvalidSeatID:
		return http.StatusBadRequest
	case service.CodeSeatConflict:
		return http.StatusConflict
	case service.CodeHoldingNotFoundOrExpired, service.CodePerformanceNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// engineError maps an error returned by the engine to a response.
func engineError(c echo.Context, log *zap.Logger, err error) error {
	switch {
	case service.IsInvalidInput(err):
		return respondError(c, http.StatusBadRequest, codeInvalidInput, err.Error())
	case errors.Is(err, model.ErrPerformanceNotFound):
		return respondError(c, http.StatusNotFound, string(service.CodePerformanceNotFound), "performance not found")
	case service.IsStoreUnavailable(err):
		log.Error("store unavailable", zap.String("path", c.Path()), zap.Error(err))
		return respondError(c, http.StatusServiceUnavailable, codeStoreUnavailable, "store unavailable, retry later")
	default:
		log.Error("unexpected engine error", zap.String("path", c.Path()), zap.Error(err))
		return respondError(c, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
