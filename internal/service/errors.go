package service

import "errors"

var (
	// ErrStoreUnavailable wraps any I/O failure of the occupancy store or
	// the ledger.  Callers own the retry policy.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidInput is returned for requests missing required fields or
	// carrying a malformed date or time.
	ErrInvalidInput = errors.New("invalid input")

	// ErrReservationNotCancelled is returned when purging a reservation
	// that is still confirmed.
	ErrReservationNotCancelled = errors.New("reservation is not cancelled")
)

// ErrorCode is the business outcome carried in an unsuccessful result.
type ErrorCode string

const (
	CodeInvalidSeatID            ErrorCode = "INVALID_SEAT_ID"
	CodeSeatConflict             ErrorCode = "SEAT_CONFLICT"
	CodeHoldingNotFoundOrExpired ErrorCode = "HOLDING_NOT_FOUND_OR_EXPIRED"
	CodePerformanceNotFound      ErrorCode = "PERFORMANCE_NOT_FOUND"
)

// IsStoreUnavailable reports whether err is a transient store failure.
func IsStoreUnavailable(err error) bool { return errors.Is(err, ErrStoreUnavailable) }

// IsInvalidInput reports whether err was caused by a malformed request.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }
