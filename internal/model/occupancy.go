package model

import "time"

// OccupancyStatus is the status stored on an occupancy row.  A seat with no
// row for a slot is available.
type OccupancyStatus string

const (
	OccupancyHolding   OccupancyStatus = "HOLDING"
	OccupancyConfirmed OccupancyStatus = "CONFIRMED"
)

// Slot identifies one showing of a performance.  Seat exclusivity is scoped
// to a slot.
type Slot struct {
	PerformanceID string `json:"performance_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
}

// Key returns the canonical string form of the slot.
func (s Slot) Key() string {
	return s.PerformanceID + ":" + s.Date + ":" + s.Time
}

// OccupancyRow is the per-seat, per-slot record that conditional writes are
// guarded against.
//
// Fields:
//  Slot          – showing the seat belongs to.
//  SeatID        – claimed seat.
//  Status        – HOLDING or CONFIRMED.
//  HoldingID     – holding that created the row.
//  ReservationID – reservation the row was confirmed into (CONFIRMED only).
//  UserID        – owner of the claim.
//  Grade, Price  – seat grade and price frozen at claim time.
//  CreatedAt     – claim time.
//  ExpiresAt     – end of the hold; zero for CONFIRMED rows.
type OccupancyRow struct {
	Slot
	SeatID        string
	Status        OccupancyStatus
	HoldingID     string
	ReservationID string
	UserID        string
	Grade         string
	Price         int64
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Live reports whether the row still guards its seat at now.  Expired
// HOLDING rows are treated as absent.
func (r OccupancyRow) Live(now time.Time) bool {
	switch r.Status {
	case OccupancyConfirmed:
		return true
	case OccupancyHolding:
		return r.ExpiresAt.After(now)
	}
	return false
}
