package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-holding-engine/internal/clock"
	"github.com/iliyamo/seat-holding-engine/internal/model"
	"github.com/iliyamo/seat-holding-engine/internal/repository"
)

// stubStore overrides selected OccupancyStore methods; the rest panic.
type stubStore struct {
	OccupancyStore
	tryClaim       func(ctx context.Context, h *model.Holding, now time.Time) ([]string, error)
	readSlot       func(ctx context.Context, slot model.Slot, now time.Time) ([]model.OccupancyRow, error)
	holdingRows    func(ctx context.Context, id string, now time.Time) ([]model.OccupancyRow, error)
	userHoldingIDs func(ctx context.Context, user string, now time.Time) ([]string, error)
	confirm        func(ctx context.Context, id string, res *model.Reservation, now time.Time) error
	ping           func(ctx context.Context) error
}

func (s *stubStore) TryClaim(ctx context.Context, h *model.Holding, now time.Time) ([]string, error) {
	return s.tryClaim(ctx, h, now)
}

func (s *stubStore) ReadSlot(ctx context.Context, slot model.Slot, now time.Time) ([]model.OccupancyRow, error) {
	return s.readSlot(ctx, slot, now)
}

func (s *stubStore) HoldingRows(ctx context.Context, id string, now time.Time) ([]model.OccupancyRow, error) {
	return s.holdingRows(ctx, id, now)
}

func (s *stubStore) UserHoldingIDs(ctx context.Context, user string, now time.Time) ([]string, error) {
	if s.userHoldingIDs == nil {
		return nil, nil
	}
	return s.userHoldingIDs(ctx, user, now)
}

func (s *stubStore) ConfirmHolding(ctx context.Context, id string, res *model.Reservation, now time.Time) error {
	return s.confirm(ctx, id, res, now)
}

func (s *stubStore) Ping(ctx context.Context) error { return s.ping(ctx) }

func newStubManager(t *testing.T, store *stubStore) *Manager {
	return NewManager(store, nil, testCatalog(t), WithClock(clock.NewFake(start)))
}

var errIO = errors.New("connection reset")

func TestStoreFailuresAreUnavailable(t *testing.T) {
	ctx := context.Background()
	store := &stubStore{
		tryClaim: func(context.Context, *model.Holding, time.Time) ([]string, error) { return nil, errIO },
		readSlot: func(context.Context, model.Slot, time.Time) ([]model.OccupancyRow, error) { return nil, errIO },
		holdingRows: func(context.Context, string, time.Time) ([]model.OccupancyRow, error) {
			return nil, errIO
		},
		ping: func(context.Context) error { return errIO },
	}
	m := newStubManager(t, store)

	_, err := m.CreateHolding(ctx, holdInput("u1", "1층-B-1-1"))
	assert.True(t, IsStoreUnavailable(err))
	assert.ErrorIs(t, err, errIO)

	_, err = m.GetSeatStatusMap(ctx, perfID, showDate, showTime)
	assert.True(t, IsStoreUnavailable(err))

	_, err = m.GetHolding(ctx, "h1")
	assert.True(t, IsStoreUnavailable(err))

	_, err = m.ConfirmReservation(ctx, "h1", "", "")
	assert.True(t, IsStoreUnavailable(err))

	assert.True(t, IsStoreUnavailable(m.Ping(ctx)))

	store.userHoldingIDs = func(context.Context, string, time.Time) ([]string, error) { return nil, errIO }
	_, err = m.CreateHolding(ctx, holdInput("u1", "1층-B-1-1"))
	assert.True(t, IsStoreUnavailable(err))
}

func TestConfirmGuardFailureIsNotFound(t *testing.T) {
	row := model.OccupancyRow{
		Slot:      model.Slot{PerformanceID: perfID, Date: showDate, Time: showTime},
		SeatID:    "1층-B-1-1",
		Status:    model.OccupancyHolding,
		HoldingID: "h1",
		UserID:    "u1",
		Grade:     "VIP",
		Price:     150000,
		ExpiresAt: start.Add(time.Minute),
	}
	store := &stubStore{
		holdingRows: func(context.Context, string, time.Time) ([]model.OccupancyRow, error) {
			return []model.OccupancyRow{row}, nil
		},
		confirm: func(context.Context, string, *model.Reservation, time.Time) error {
			return repository.ErrGuardFailed
		},
	}
	res, err := newStubManager(t, store).ConfirmReservation(context.Background(), "h1", "", "")
	require.NoError(t, err)
	assert.Equal(t, CodeHoldingNotFoundOrExpired, res.Error)
}

func TestStatusMapConfirmedWinsOverHolding(t *testing.T) {
	slot := model.Slot{PerformanceID: perfID, Date: showDate, Time: showTime}
	confirmed := model.OccupancyRow{Slot: slot, SeatID: "1층-B-1-1", Status: model.OccupancyConfirmed}
	held := model.OccupancyRow{Slot: slot, SeatID: "1층-B-1-1", Status: model.OccupancyHolding, ExpiresAt: start.Add(time.Minute)}
	stray := model.OccupancyRow{Slot: slot, SeatID: "3층-X-1-1", Status: model.OccupancyHolding, ExpiresAt: start.Add(time.Minute)}

	for name, rows := range map[string][]model.OccupancyRow{
		"confirmed first": {confirmed, held, stray},
		"holding first":   {held, stray, confirmed},
	} {
		rows := rows
		store := &stubStore{readSlot: func(context.Context, model.Slot, time.Time) ([]model.OccupancyRow, error) {
			return rows, nil
		}}
		status, err := newStubManager(t, store).GetSeatStatusMap(context.Background(), perfID, showDate, showTime)
		require.NoError(t, err, name)
		assert.Equal(t, model.SeatReserved, status["1층-B-1-1"], name)
		assert.Equal(t, model.SeatHolding, status["3층-X-1-1"], name)
		assert.Equal(t, model.SeatAvailable, status["1층-B-1-2"], name)
	}
}
