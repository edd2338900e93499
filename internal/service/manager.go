// Package service implements the seat holding engine: holdings, their
// conversion into reservations, and the seat status queries built on top of
// the occupancy store.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-holding-engine/internal/clock"
	"github.com/iliyamo/seat-holding-engine/internal/model"
	"github.com/iliyamo/seat-holding-engine/internal/queue"
	"github.com/iliyamo/seat-holding-engine/internal/repository"
	"github.com/iliyamo/seat-holding-engine/internal/seat"
	"github.com/iliyamo/seat-holding-engine/internal/telemetry"
)

// Default hold durations per TTL policy.
const (
	DefaultSelectionTTL = 5 * time.Minute
	DefaultPaymentTTL   = 10 * time.Minute
)

// Manager runs the holding state machine against an OccupancyStore.  It
// keeps no state of its own and is safe for concurrent use by any number
// of request handlers and processes.
type Manager struct {
	store     OccupancyStore
	ledger    Ledger
	catalog   Catalog
	publisher EventPublisher
	clock     clock.Clock
	newID     func() string
	log       *zap.Logger
	resolver  seat.Resolver

	selectionTTL time.Duration
	paymentTTL   time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the time source.
func WithClock(c clock.Clock) Option { return func(m *Manager) { m.clock = c } }

// WithIDGenerator sets the generator for holding and reservation ids.
func WithIDGenerator(f func() string) Option { return func(m *Manager) { m.newID = f } }

// WithPublisher sets the event publisher.
func WithPublisher(p EventPublisher) Option { return func(m *Manager) { m.publisher = p } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.log = l } }

// WithTTLs sets the hold durations of the selection and payment policies.
// Non-positive values keep the defaults.
func WithTTLs(selection, payment time.Duration) Option {
	return func(m *Manager) {
		if selection > 0 {
			m.selectionTTL = selection
		}
		if payment > 0 {
			m.paymentTTL = payment
		}
	}
}

// NewManager builds a Manager.  store, ledger and catalog are required.
func NewManager(store OccupancyStore, ledger Ledger, catalog Catalog, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		ledger:       ledger,
		catalog:      catalog,
		publisher:    queue.NopPublisher{},
		clock:        clock.Real{},
		newID:        uuid.NewString,
		log:          zap.NewNop(),
		selectionTTL: DefaultSelectionTTL,
		paymentTTL:   DefaultPaymentTTL,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTLFor returns the hold duration of a policy.  Unknown policies get the
// selection TTL.
func (m *Manager) TTLFor(p model.TTLPolicy) time.Duration {
	if p == model.TTLPayment {
		return m.paymentTTL
	}
	return m.selectionTTL
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func (m *Manager) publish(ctx context.Context, key string, v any) {
	if err := m.publisher.Publish(ctx, key, v); err != nil {
		m.log.Warn("publish event failed", zap.String("key", key), zap.Error(err))
	}
}

// CreateHoldingInput is the request of CreateHolding.  TTL overrides the
// policy duration when positive and may not exceed the payment TTL.
type CreateHoldingInput struct {
	PerformanceID string
	Date          string
	Time          string
	UserID        string
	SeatIDs       []string
	Policy        model.TTLPolicy
	TTL           time.Duration
}

func (in CreateHoldingInput) validate(maxTTL time.Duration) error {
	switch {
	case in.PerformanceID == "":
		return fmt.Errorf("%w: performance id is required", ErrInvalidInput)
	case in.UserID == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidInput)
	case len(in.SeatIDs) == 0:
		return fmt.Errorf("%w: at least one seat is required", ErrInvalidInput)
	}
	if _, err := time.Parse("2006-01-02", in.Date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", ErrInvalidInput)
	}
	if _, err := time.Parse("15:04", in.Time); err != nil {
		return fmt.Errorf("%w: time must be HH:MM", ErrInvalidInput)
	}
	switch in.Policy {
	case "", model.TTLSelection, model.TTLPayment:
	default:
		return fmt.Errorf("%w: unknown ttl policy %q", ErrInvalidInput, in.Policy)
	}
	if in.TTL < 0 || in.TTL > maxTTL {
		return fmt.Errorf("%w: ttl must be between 0 and %s", ErrInvalidInput, maxTTL)
	}
	return nil
}

// HoldingResult is the outcome of CreateHolding.  Business failures are
// reported through Error with Success false; the error return is reserved
// for invalid input and store failures.
type HoldingResult struct {
	Success          bool           `json:"success"`
	HoldingID        string         `json:"holding_id,omitempty"`
	ExpiresAt        time.Time      `json:"expires_at,omitempty"`
	Holding          *model.Holding `json:"holding,omitempty"`
	ReleasedHoldings []string       `json:"released_holdings,omitempty"`
	Error            ErrorCode      `json:"error,omitempty"`
	Message          string         `json:"message,omitempty"`
	UnavailableSeats []string       `json:"unavailable_seats,omitempty"`
	InvalidSeats     []string       `json:"invalid_seats,omitempty"`
}

// CreateHolding validates and prices the requested seats, releases the
// user's other active holdings and claims the seats for a new holding.
func (m *Manager) CreateHolding(ctx context.Context, in CreateHoldingInput) (*HoldingResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "engine.create_holding",
		attribute.String("performance_id", in.PerformanceID),
		attribute.String("user_id", in.UserID),
		attribute.Int("seats", len(in.SeatIDs)),
	)
	defer span.End()

	if err := in.validate(m.paymentTTL); err != nil {
		return nil, err
	}

	perf, err := m.catalog.Performance(ctx, in.PerformanceID)
	if errors.Is(err, model.ErrPerformanceNotFound) {
		return &HoldingResult{Error: CodePerformanceNotFound, Message: "performance not found"}, nil
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("load performance: %w", err)
	}

	seats, err := m.resolver.ResolveAll(perf, in.SeatIDs)
	if err != nil {
		var invalid *seat.InvalidSeatsError
		if errors.As(err, &invalid) {
			return &HoldingResult{
				Error:        CodeInvalidSeatID,
				Message:      err.Error(),
				InvalidSeats: invalid.IDs(),
			}, nil
		}
		return nil, err
	}

	released, err := m.releaseOthers(ctx, in.UserID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	ttl := in.TTL
	if ttl <= 0 {
		ttl = m.TTLFor(in.Policy)
	}
	now := m.clock.Now()
	h := &model.Holding{
		ID:            m.newID(),
		PerformanceID: in.PerformanceID,
		Date:          in.Date,
		Time:          in.Time,
		Seats:         seats,
		UserID:        in.UserID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
	conflicts, err := m.store.TryClaim(ctx, h, now)
	if err != nil {
		telemetry.RecordError(span, err)
		m.log.Error("claim seats failed", zap.String("holding_id", h.ID), zap.Error(err))
		return nil, unavailable(err)
	}
	if len(conflicts) > 0 {
		m.log.Warn("seat conflict",
			zap.String("performance_id", in.PerformanceID),
			zap.String("user_id", in.UserID),
			zap.Strings("seats", conflicts))
		span.SetAttributes(attribute.StringSlice("conflicts", conflicts))
		return &HoldingResult{
			Error:            CodeSeatConflict,
			Message:          "some seats are unavailable",
			UnavailableSeats: conflicts,
			ReleasedHoldings: released,
		}, nil
	}

	m.log.Info("holding created",
		zap.String("holding_id", h.ID),
		zap.String("user_id", h.UserID),
		zap.String("slot", h.Slot().Key()),
		zap.Strings("seats", h.SeatIDs()),
		zap.Time("expires_at", h.ExpiresAt))
	m.publish(ctx, queue.KeyHoldingCreated, queue.HoldingCreatedEvent{
		HoldingID:     h.ID,
		UserID:        h.UserID,
		PerformanceID: h.PerformanceID,
		Date:          h.Date,
		Time:          h.Time,
		SeatIDs:       h.SeatIDs(),
		ExpiresAt:     h.ExpiresAt,
	})
	return &HoldingResult{
		Success:          true,
		HoldingID:        h.ID,
		ExpiresAt:        h.ExpiresAt,
		Holding:          h,
		ReleasedHoldings: released,
	}, nil
}

// releaseOthers releases every active holding of userID before a new claim.
func (m *Manager) releaseOthers(ctx context.Context, userID string) ([]string, error) {
	now := m.clock.Now()
	ids, err := m.store.UserHoldingIDs(ctx, userID, now)
	if err != nil {
		return nil, unavailable(err)
	}
	var released []string
	for _, id := range ids {
		n, err := m.store.DeleteHolding(ctx, id, now)
		if err != nil {
			return released, unavailable(err)
		}
		if n == 0 {
			continue
		}
		released = append(released, id)
		m.log.Info("holding superseded", zap.String("holding_id", id), zap.String("user_id", userID))
		m.publish(ctx, queue.KeyHoldingReleased, queue.HoldingReleasedEvent{
			HoldingID: id, UserID: userID, Reason: queue.ReasonSuperseded, ReleasedAt: now,
		})
	}
	return released, nil
}

// ReleaseHolding deletes an active holding.  It returns false when the
// holding was already released, confirmed or expired.
func (m *Manager) ReleaseHolding(ctx context.Context, holdingID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "engine.release_holding", attribute.String("holding_id", holdingID))
	defer span.End()

	now := m.clock.Now()
	rows, err := m.store.HoldingRows(ctx, holdingID, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return false, unavailable(err)
	}
	n, err := m.store.DeleteHolding(ctx, holdingID, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return false, unavailable(err)
	}
	if n == 0 {
		return false, nil
	}
	var userID string
	if len(rows) > 0 {
		userID = rows[0].UserID
	}
	m.log.Info("holding released", zap.String("holding_id", holdingID), zap.String("user_id", userID))
	m.publish(ctx, queue.KeyHoldingReleased, queue.HoldingReleasedEvent{
		HoldingID: holdingID, UserID: userID, Reason: queue.ReasonExplicit, ReleasedAt: now,
	})
	return true, nil
}

// GetHolding returns the active holding, or nil when it does not exist or
// has expired.
func (m *Manager) GetHolding(ctx context.Context, holdingID string) (*model.Holding, error) {
	ctx, span := telemetry.StartSpan(ctx, "engine.get_holding", attribute.String("holding_id", holdingID))
	defer span.End()

	rows, err := m.store.HoldingRows(ctx, holdingID, m.clock.Now())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, unavailable(err)
	}
	return model.HoldingFromRows(rows, seatOfRow), nil
}

func seatOfRow(r model.OccupancyRow) model.Seat {
	return seat.FromRecord(r.SeatID, r.Grade, r.Price)
}

// ReservationResult is the outcome of ConfirmReservation.
type ReservationResult struct {
	Success     bool               `json:"success"`
	Reservation *model.Reservation `json:"reservation,omitempty"`
	Error       ErrorCode          `json:"error,omitempty"`
	Message     string             `json:"message,omitempty"`
}

func notFoundOrExpired() *ReservationResult {
	return &ReservationResult{Error: CodeHoldingNotFoundOrExpired, Message: "holding not found or expired"}
}

// ConfirmReservation converts an active holding into a reservation.  The
// reservation total is the sum of the prices frozen on the holding.  Empty
// title or venue are filled from the catalog.
func (m *Manager) ConfirmReservation(ctx context.Context, holdingID, performanceTitle, venue string) (*ReservationResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "engine.confirm_reservation", attribute.String("holding_id", holdingID))
	defer span.End()

	now := m.clock.Now()
	rows, err := m.store.HoldingRows(ctx, holdingID, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, unavailable(err)
	}
	h := model.HoldingFromRows(rows, seatOfRow)
	if h == nil {
		return notFoundOrExpired(), nil
	}

	if performanceTitle == "" || venue == "" {
		if perf, err := m.catalog.Performance(ctx, h.PerformanceID); err == nil {
			if performanceTitle == "" {
				performanceTitle = perf.Title
			}
			if venue == "" {
				venue = perf.Venue
			}
		}
	}

	res := &model.Reservation{
		ID:               m.newID(),
		UserID:           h.UserID,
		PerformanceID:    h.PerformanceID,
		PerformanceTitle: performanceTitle,
		Venue:            venue,
		Date:             h.Date,
		Time:             h.Time,
		Seats:            h.Seats,
		TotalPrice:       h.TotalPrice(),
		Status:           model.ReservationConfirmed,
		CreatedAt:        now,
	}
	if err := m.store.ConfirmHolding(ctx, holdingID, res, now); err != nil {
		if errors.Is(err, repository.ErrGuardFailed) {
			m.log.Warn("confirm lost holding", zap.String("holding_id", holdingID))
			return notFoundOrExpired(), nil
		}
		telemetry.RecordError(span, err)
		m.log.Error("confirm holding failed", zap.String("holding_id", holdingID), zap.Error(err))
		return nil, unavailable(err)
	}

	m.log.Info("reservation confirmed",
		zap.String("reservation_id", res.ID),
		zap.String("holding_id", holdingID),
		zap.String("user_id", res.UserID),
		zap.Int64("total_price", res.TotalPrice))
	m.publish(ctx, queue.KeyReservationConfirmed, queue.ReservationConfirmedEvent{
		ReservationID:    res.ID,
		HoldingID:        holdingID,
		UserID:           res.UserID,
		PerformanceID:    res.PerformanceID,
		PerformanceTitle: res.PerformanceTitle,
		Venue:            res.Venue,
		Date:             res.Date,
		Time:             res.Time,
		SeatIDs:          h.SeatIDs(),
		TotalPrice:       res.TotalPrice,
		ConfirmedAt:      now,
	})
	return &ReservationResult{Success: true, Reservation: res}, nil
}
