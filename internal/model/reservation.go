package model

import "time"

// ReservationStatus is the state of a confirmed sale.
type ReservationStatus string

const (
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Reservation records a confirmed sale created from a holding.
// TotalPrice is the sum of the seat prices frozen on the holding and is
// never recomputed from the current price table.
//
// Fields:
//  ID               – reservation identifier.
//  UserID           – buyer.
//  PerformanceID    – performance the seats belong to.
//  PerformanceTitle – title captured at confirmation.
//  Venue            – venue captured at confirmation.
//  Date, Time       – showing.
//  Seats            – reserved seats with their frozen grade and price.
//  TotalPrice       – sum of seat prices.
//  Status           – confirmed or cancelled.
//  CreatedAt        – confirmation time.
type Reservation struct {
	ID               string            `json:"id"`
	UserID           string            `json:"user_id"`
	PerformanceID    string            `json:"performance_id"`
	PerformanceTitle string            `json:"performance_title"`
	Venue            string            `json:"venue"`
	Date             string            `json:"date"`
	Time             string            `json:"time"`
	Seats            []Seat            `json:"seats"`
	TotalPrice       int64             `json:"total_price"`
	Status           ReservationStatus `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Slot returns the showing of the reservation.
func (r *Reservation) Slot() Slot {
	return Slot{PerformanceID: r.PerformanceID, Date: r.Date, Time: r.Time}
}
