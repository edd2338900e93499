package model

import (
	"sort"
	"time"
)

// HoldingStatus is the state of a holding.  Only ACTIVE is ever stored;
// the other states are observed implicitly (expiry) or by the absence of
// rows (release, confirmation).
type HoldingStatus string

const (
	HoldingActive    HoldingStatus = "ACTIVE"
	HoldingExpired   HoldingStatus = "EXPIRED"
	HoldingReleased  HoldingStatus = "RELEASED"
	HoldingConfirmed HoldingStatus = "CONFIRMED"
)

// TTLPolicy selects which hold duration applies to a new holding.
type TTLPolicy string

const (
	// TTLSelection is used while a buyer is still picking seats on the seat map.
	TTLSelection TTLPolicy = "selection"
	// TTLPayment is used when the buyer has committed to pay for the seats.
	TTLPayment TTLPolicy = "payment"
)

// Holding is a time-boxed exclusive claim on a set of seats for one slot.
// Its seat set never changes; a different selection is a new holding.
type Holding struct {
	ID            string    `json:"holding_id"`
	PerformanceID string    `json:"performance_id"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Seats         []Seat    `json:"seats"`
	UserID        string    `json:"user_id"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Slot returns the showing the holding belongs to.
func (h *Holding) Slot() Slot {
	return Slot{PerformanceID: h.PerformanceID, Date: h.Date, Time: h.Time}
}

// Status reports the holding state at now.
func (h *Holding) Status(now time.Time) HoldingStatus {
	if h.ExpiresAt.After(now) {
		return HoldingActive
	}
	return HoldingExpired
}

// SeatIDs returns the seat identifiers in holding order.
func (h *Holding) SeatIDs() []string {
	ids := make([]string, 0, len(h.Seats))
	for _, s := range h.Seats {
		ids = append(ids, s.ID)
	}
	return ids
}

// TotalPrice sums the frozen seat prices.
func (h *Holding) TotalPrice() int64 {
	var total int64
	for _, s := range h.Seats {
		total += s.Price
	}
	return total
}

// Rows expands the holding into one HOLDING occupancy row per seat.
func (h *Holding) Rows() []OccupancyRow {
	rows := make([]OccupancyRow, 0, len(h.Seats))
	for _, s := range h.Seats {
		rows = append(rows, OccupancyRow{
			Slot:      h.Slot(),
			SeatID:    s.ID,
			Status:    OccupancyHolding,
			HoldingID: h.ID,
			UserID:    h.UserID,
			Grade:     s.Grade,
			Price:     s.Price,
			CreatedAt: h.CreatedAt,
			ExpiresAt: h.ExpiresAt,
		})
	}
	return rows
}

// HoldingFromRows rebuilds a holding from its occupancy rows.  seatOf turns
// a row back into a Seat.  It returns nil for an empty slice.
func HoldingFromRows(rows []OccupancyRow, seatOf func(OccupancyRow) Seat) *Holding {
	if len(rows) == 0 {
		return nil
	}
	first := rows[0]
	h := &Holding{
		ID:            first.HoldingID,
		PerformanceID: first.PerformanceID,
		Date:          first.Date,
		Time:          first.Time,
		UserID:        first.UserID,
		CreatedAt:     first.CreatedAt,
		ExpiresAt:     first.ExpiresAt,
		Seats:         make([]Seat, 0, len(rows)),
	}
	for _, r := range rows {
		h.Seats = append(h.Seats, seatOf(r))
	}
	sort.Slice(h.Seats, func(i, j int) bool { return h.Seats[i].ID < h.Seats[j].ID })
	return h
}
