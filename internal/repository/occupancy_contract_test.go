package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-holding-engine/internal/model"
)

type storeFactory func(t *testing.T) (occupancyStore, *ReservationRepo)

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"sqlite": func(t *testing.T) (occupancyStore, *ReservationRepo) {
			s, l := newSQLStore(t)
			return s, l
		},
		"mysql": func(t *testing.T) (occupancyStore, *ReservationRepo) {
			s, l := newMySQLStore(t)
			return s, l
		},
		"redis": func(t *testing.T) (occupancyStore, *ReservationRepo) {
			s, l, _ := newRedisStore(t)
			return s, l
		},
	}
}

func seatIDsOf(rows []model.OccupancyRow) []string {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.SeatID)
	}
	return ids
}

func TestOccupancyContract(t *testing.T) {
	for name, factory := range backends() {
		factory := factory
		t.Run(name, func(t *testing.T) {
			t.Run("claim and exact conflicts", func(t *testing.T) {
				store, _ := factory(t)
				ctx := context.Background()

				conflicts, err := store.TryClaim(ctx, holding("h1", "u1", 5*time.Minute, "1층-B-2-21", "1층-B-2-22"), t0)
				require.NoError(t, err)
				assert.Empty(t, conflicts)

				conflicts, err = store.TryClaim(ctx, holding("h2", "u2", 5*time.Minute, "1층-B-2-20", "1층-B-2-22", "1층-B-2-21"), t0)
				require.NoError(t, err)
				assert.Equal(t, []string{"1층-B-2-22", "1층-B-2-21"}, conflicts)

				rows, err := store.ReadSlot(ctx, testSlot, t0)
				require.NoError(t, err)
				assert.Equal(t, []string{"1층-B-2-21", "1층-B-2-22"}, seatIDsOf(rows))
				for _, r := range rows {
					assert.Equal(t, "h1", r.HoldingID)
					assert.Equal(t, model.OccupancyHolding, r.Status)
					assert.Equal(t, t0.Add(5*time.Minute), r.ExpiresAt)
				}
			})

			t.Run("concurrent claims on one seat", func(t *testing.T) {
				store, _ := factory(t)
				ctx := context.Background()
				const n = 6

				var (
					wg      sync.WaitGroup
					mu      sync.Mutex
					winners []string
				)
				for i := 0; i < n; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						id := fmt.Sprintf("h%d", i)
						conflicts, err := store.TryClaim(ctx, holding(id, fmt.Sprintf("u%d", i), 5*time.Minute, "1층-B-3-1", "1층-B-3-2"), t0)
						if err != nil {
							assert.True(t, isSerializationFailure(err), err.Error())
							return
						}
						if len(conflicts) == 0 {
							mu.Lock()
							winners = append(winners, id)
							mu.Unlock()
						}
					}(i)
				}
				wg.Wait()

				require.Len(t, winners, 1)
				rows, err := store.ReadSlot(ctx, testSlot, t0)
				require.NoError(t, err)
				require.Len(t, rows, 2)
				for _, r := range rows {
					assert.Equal(t, winners[0], r.HoldingID)
				}
			})

			t.Run("expired rows lose their guard", func(t *testing.T) {
				store, _ := factory(t)
				ctx := context.Background()
				later := t0.Add(6 * time.Minute)

				_, err := store.TryClaim(ctx, holding("h1", "u1", 5*time.Minute, "1층-B-2-21"), t0)
				require.NoError(t, err)

				rows, err := store.ReadSlot(ctx, testSlot, later)
				require.NoError(t, err)
				assert.Empty(t, rows)

				rows, err = store.HoldingRows(ctx, "h1", later)
				require.NoError(t, err)
				assert.Empty(t, rows)

				h3 := holding("h3", "u3", 5*time.Minute, "1층-B-2-21")
				h3.CreatedAt, h3.ExpiresAt = later, later.Add(5*time.Minute)
				conflicts, err := store.TryClaim(ctx, h3, later)
				require.NoError(t, err)
				assert.Empty(t, conflicts)

				n, err := store.DeleteHolding(ctx, "h1", later)
				require.NoError(t, err)
				assert.Zero(t, n)
				rows, err = store.HoldingRows(ctx, "h3", later)
				require.NoError(t, err)
				assert.Len(t, rows, 1)
			})

			t.Run("delete holding is idempotent", func(t *testing.T) {
				store, _ := factory(t)
				ctx := context.Background()
				_, err := store.TryClaim(ctx, holding("h1", "u1", 5*time.Minute, "1층-B-2-21", "1층-B-2-22"), t0)
				require.NoError(t, err)

				n, err := store.DeleteHolding(ctx, "h1", t0)
				require.NoError(t, err)
				assert.Equal(t, 2, n)

				n, err = store.DeleteHolding(ctx, "h1", t0)
				require.NoError(t, err)
				assert.Zero(t, n)

				rows, err := store.ReadSlot(ctx, testSlot, t0)
				require.NoError(t, err)
				assert.Empty(t, rows)
			})

			t.Run("user holdings", func(t *testing.T) {
				store, _ := factory(t)
				ctx := context.Background()
				_, err := store.TryClaim(ctx, holding("h1", "u1", 5*time.Minute, "1층-B-2-21"), t0)
				require.NoError(t, err)
				_, err = store.TryClaim(ctx, holding("h2", "u1", 10*time.Minute, "1층-B-2-22"), t0)
				require.NoError(t, err)

				ids, err := store.UserHoldingIDs(ctx, "u1", t0)
				require.NoError(t, err)
				assert.Equal(t, []string{"h1", "h2"}, ids)

				ids, err = store.UserHoldingIDs(ctx, "u1", t0.Add(7*time.Minute))
				require.NoError(t, err)
				assert.Equal(t, []string{"h2"}, ids)

				ids, err = store.UserHoldingIDs(ctx, "u2", t0)
				require.NoError(t, err)
				assert.Empty(t, ids)
			})

			t.Run("confirm flips every row and appends to the ledger", func(t *testing.T) {
				store, ledger := factory(t)
				ctx := context.Background()
				h := holding("h1", "u1", 5*time.Minute, "1층-B-2-21", "1층-B-2-22", "1층-B-2-23")
				_, err := store.TryClaim(ctx, h, t0)
				require.NoError(t, err)

				res := reservationFor("r1", h)
				require.NoError(t, store.ConfirmHolding(ctx, "h1", res, t0.Add(time.Minute)))

				rows, err := store.ReadSlot(ctx, testSlot, t0.Add(time.Hour))
				require.NoError(t, err)
				require.Len(t, rows, 3)
				for _, r := range rows {
					assert.Equal(t, model.OccupancyConfirmed, r.Status)
					assert.Equal(t, "r1", r.ReservationID)
				}

				got, err := ledger.GetByID(ctx, "r1")
				require.NoError(t, err)
				assert.Equal(t, int64(450000), got.TotalPrice)
				assert.Len(t, got.Seats, 3)

				assert.ErrorIs(t, store.ConfirmHolding(ctx, "h1", reservationFor("r2", h), t0.Add(time.Minute)), ErrGuardFailed)

				ids, err := store.UserHoldingIDs(ctx, "u1", t0.Add(time.Minute))
				require.NoError(t, err)
				assert.Empty(t, ids)

				n, err := store.DeleteHolding(ctx, "h1", t0.Add(time.Minute))
				require.NoError(t, err)
				assert.Zero(t, n)
				rows, err = store.ReadSlot(ctx, testSlot, t0.Add(time.Minute))
				require.NoError(t, err)
				assert.Len(t, rows, 3)
			})

			t.Run("confirm rejects expired holding", func(t *testing.T) {
				store, ledger := factory(t)
				ctx := context.Background()
				h := holding("h1", "u1", 5*time.Minute, "1층-B-2-21")
				_, err := store.TryClaim(ctx, h, t0)
				require.NoError(t, err)

				err = store.ConfirmHolding(ctx, "h1", reservationFor("r1", h), t0.Add(5*time.Minute))
				assert.ErrorIs(t, err, ErrGuardFailed)
				_, err = ledger.GetByID(ctx, "r1")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("sweep removes expired holds only", func(t *testing.T) {
				store, _ := factory(t)
				ctx := context.Background()
				_, err := store.TryClaim(ctx, holding("h1", "u1", 5*time.Minute, "1층-B-2-21"), t0)
				require.NoError(t, err)
				_, err = store.TryClaim(ctx, holding("h2", "u2", 20*time.Minute, "1층-B-2-22"), t0)
				require.NoError(t, err)

				n, err := store.Sweep(ctx, t0.Add(10*time.Minute))
				require.NoError(t, err)
				assert.Equal(t, 1, n)

				rows, err := store.ReadSlot(ctx, testSlot, t0)
				require.NoError(t, err)
				assert.Equal(t, []string{"1층-B-2-22"}, seatIDsOf(rows))
				assert.NoError(t, store.Ping(ctx))
			})
		})
	}
}
