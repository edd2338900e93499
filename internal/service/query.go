package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-holding-engine/internal/model"
	"github.com/iliyamo/seat-holding-engine/internal/queue"
	"github.com/iliyamo/seat-holding-engine/internal/repository"
	"github.com/iliyamo/seat-holding-engine/internal/telemetry"
)

// GetSeatStatusMap returns the status of every seat of a showing.  Layout
// seats start available; live rows overlay them, and a CONFIRMED row always
// wins over a HOLDING row for the same seat.  An unknown performance yields
// model.ErrPerformanceNotFound.
func (m *Manager) GetSeatStatusMap(ctx context.Context, performanceID, date, showTime string) (map[string]model.SeatStatus, error) {
	ctx, span := telemetry.StartSpan(ctx, "engine.get_seat_status_map",
		attribute.String("performance_id", performanceID))
	defer span.End()

	perf, err := m.catalog.Performance(ctx, performanceID)
	if err != nil {
		return nil, err
	}
	rows, err := m.store.ReadSlot(ctx, model.Slot{PerformanceID: performanceID, Date: date, Time: showTime}, m.clock.Now())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, unavailable(err)
	}

	status := make(map[string]model.SeatStatus, len(perf.Layout))
	for _, id := range perf.Layout {
		status[id] = model.SeatAvailable
	}
	for _, r := range rows {
		if r.Status == model.OccupancyHolding && status[r.SeatID] != model.SeatReserved {
			status[r.SeatID] = model.SeatHolding
		}
	}
	for _, r := range rows {
		if r.Status == model.OccupancyConfirmed {
			status[r.SeatID] = model.SeatReserved
		}
	}
	return status, nil
}

// GetUserReservations lists the user's confirmed reservations, newest first.
func (m *Manager) GetUserReservations(ctx context.Context, userID string) ([]model.Reservation, error) {
	ctx, span := telemetry.StartSpan(ctx, "engine.get_user_reservations")
	defer span.End()

	list, err := m.ledger.ListByUser(ctx, userID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, unavailable(err)
	}
	if list == nil {
		list = []model.Reservation{}
	}
	return list, nil
}

// GetReservation returns a reservation in any status, or nil when it does
// not exist.
func (m *Manager) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	res, err := m.ledger.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return res, nil
}

// CancelReservation marks a confirmed reservation cancelled.  Its seats stay
// occupied.  It returns false when there was nothing to cancel.
func (m *Manager) CancelReservation(ctx context.Context, id string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "engine.cancel_reservation", attribute.String("reservation_id", id))
	defer span.End()

	ok, err := m.ledger.Cancel(ctx, id)
	if err != nil {
		telemetry.RecordError(span, err)
		return false, unavailable(err)
	}
	if ok {
		m.log.Info("reservation cancelled", zap.String("reservation_id", id))
		m.publish(ctx, queue.KeyReservationCancelled, queue.ReservationChangedEvent{ReservationID: id, At: m.clock.Now()})
	}
	return ok, nil
}

// DeleteReservation purges a cancelled reservation.  It returns false when
// the reservation does not exist and ErrReservationNotCancelled when it is
// still confirmed.
func (m *Manager) DeleteReservation(ctx context.Context, id string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "engine.delete_reservation", attribute.String("reservation_id", id))
	defer span.End()

	ok, err := m.ledger.Purge(ctx, id)
	if errors.Is(err, repository.ErrNotCancelled) {
		return false, ErrReservationNotCancelled
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return false, unavailable(err)
	}
	if ok {
		m.log.Info("reservation purged", zap.String("reservation_id", id))
		m.publish(ctx, queue.KeyReservationPurged, queue.ReservationChangedEvent{ReservationID: id, At: m.clock.Now()})
	}
	return ok, nil
}

// SweepExpired deletes expired HOLDING rows.  Correctness never depends on
// it.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	n, err := m.store.Sweep(ctx, m.clock.Now())
	if err != nil {
		return n, unavailable(err)
	}
	return n, nil
}

// Ping checks the occupancy store.
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.store.Ping(ctx); err != nil {
		return unavailable(err)
	}
	return nil
}
