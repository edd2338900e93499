package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-holding-engine/internal/database"
	"github.com/iliyamo/seat-holding-engine/internal/model"
)

var t0 = time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)

var testSlot = model.Slot{PerformanceID: "perf-kinky-1", Date: "2026-02-10", Time: "19:30"}

// occupancyStore is the surface both backends share.
type occupancyStore interface {
	TryClaim(ctx context.Context, h *model.Holding, now time.Time) ([]string, error)
	ReadSlot(ctx context.Context, slot model.Slot, now time.Time) ([]model.OccupancyRow, error)
	HoldingRows(ctx context.Context, holdingID string, now time.Time) ([]model.OccupancyRow, error)
	UserHoldingIDs(ctx context.Context, userID string, now time.Time) ([]string, error)
	DeleteHolding(ctx context.Context, holdingID string, now time.Time) (int, error)
	ConfirmHolding(ctx context.Context, holdingID string, res *model.Reservation, now time.Time) error
	Sweep(ctx context.Context, now time.Time) (int, error)
	Ping(ctx context.Context) error
}

var (
	_ occupancyStore = (*SQLOccupancyRepo)(nil)
	_ occupancyStore = (*RedisOccupancyStore)(nil)
)

func newLedger(t *testing.T) *ReservationRepo {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.SQLite))
	return NewReservationRepo(db)
}

func newSQLStore(t *testing.T) (*SQLOccupancyRepo, *ReservationRepo) {
	t.Helper()
	ledger := newLedger(t)
	return NewSQLOccupancyRepo(ledger.DB(), database.SQLite, ledger), ledger
}

// newMySQLStore opens the database at TEST_MYSQL_DSN with empty tables.  The
// test is skipped when the variable is unset.
func newMySQLStore(t *testing.T) (*SQLOccupancyRepo, *ReservationRepo) {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set")
	}
	db, err := database.OpenMySQLDSN(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	require.NoError(t, database.Migrate(ctx, db, database.MySQL))
	for _, table := range []string{"reservation_seats", "reservations", "seat_occupancy"} {
		_, err := db.ExecContext(ctx, "DELETE FROM "+table)
		require.NoError(t, err)
	}
	ledger := NewReservationRepo(db)
	return NewSQLOccupancyRepo(db, database.MySQL, ledger), ledger
}

func newRedisStore(t *testing.T) (*RedisOccupancyStore, *ReservationRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	ledger := newLedger(t)
	return NewRedisOccupancyStore(client, ledger, "test", nil), ledger, mr
}

func holding(id, user string, ttl time.Duration, seatIDs ...string) *model.Holding {
	h := &model.Holding{
		ID:            id,
		PerformanceID: testSlot.PerformanceID,
		Date:          testSlot.Date,
		Time:          testSlot.Time,
		UserID:        user,
		CreatedAt:     t0,
		ExpiresAt:     t0.Add(ttl),
	}
	for _, s := range seatIDs {
		h.Seats = append(h.Seats, model.Seat{ID: s, Grade: "VIP", Price: 150000})
	}
	return h
}

func reservationFor(id string, h *model.Holding) *model.Reservation {
	return &model.Reservation{
		ID:               id,
		UserID:           h.UserID,
		PerformanceID:    h.PerformanceID,
		PerformanceTitle: "Kinky Boots",
		Venue:            "Charlotte Theater",
		Date:             h.Date,
		Time:             h.Time,
		Seats:            h.Seats,
		TotalPrice:       h.TotalPrice(),
		Status:           model.ReservationConfirmed,
		CreatedAt:        t0.Add(time.Minute),
	}
}
