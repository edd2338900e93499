package service

import (
	"context"
	"time"

	"github.com/iliyamo/seat-holding-engine/internal/model"
)

// OccupancyStore is the shared system of record for seat claims.  Every
// mutating call is all-or-nothing, and reads treat HOLDING rows expired at
// now as absent.
type OccupancyStore interface {
	// TryClaim writes a HOLDING row for every seat of h or none.  A non-empty
	// result lists exactly the requested seats that are already taken.
	TryClaim(ctx context.Context, h *model.Holding, now time.Time) ([]string, error)
	// ReadSlot returns the live rows of a showing.
	ReadSlot(ctx context.Context, slot model.Slot, now time.Time) ([]model.OccupancyRow, error)
	// HoldingRows returns the live HOLDING rows of a holding.
	HoldingRows(ctx context.Context, holdingID string, now time.Time) ([]model.OccupancyRow, error)
	// UserHoldingIDs returns the user's active holdings.
	UserHoldingIDs(ctx context.Context, userID string, now time.Time) ([]string, error)
	// DeleteHolding removes a holding's HOLDING rows and reports how many were live.
	DeleteHolding(ctx context.Context, holdingID string, now time.Time) (int, error)
	// ConfirmHolding flips the holding's rows to CONFIRMED, guarded by holding
	// id and expiry, and appends res to the ledger.  A failed guard returns
	// repository.ErrGuardFailed.
	ConfirmHolding(ctx context.Context, holdingID string, res *model.Reservation, now time.Time) error
	// Sweep deletes expired HOLDING rows.
	Sweep(ctx context.Context, now time.Time) (int, error)
	Ping(ctx context.Context) error
}

// Ledger reads and amends confirmed reservations.  Appends happen inside
// OccupancyStore.ConfirmHolding.
type Ledger interface {
	GetByID(ctx context.Context, id string) (*model.Reservation, error)
	ListByUser(ctx context.Context, userID string) ([]model.Reservation, error)
	Cancel(ctx context.Context, id string) (bool, error)
	Purge(ctx context.Context, id string) (bool, error)
}

// Catalog supplies performance metadata.
type Catalog interface {
	Performance(ctx context.Context, id string) (*model.Performance, error)
}

// EventPublisher sends domain events.  Failures never fail an engine call.
type EventPublisher interface {
	Publish(ctx context.Context, key string, v any) error
}
