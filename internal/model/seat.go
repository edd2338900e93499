package model

// Seat is a single priced seat referenced by a holding or a reservation.
// Seats have no lifecycle of their own; Grade and Price are resolved from
// the performance price table when the seat is claimed and stay frozen on
// the holding and on any reservation created from it.
//
// Fields:
//  ID         – seat identifier, structurally floor-section-row-number.
//  RowID      – row component of the identifier.
//  SeatNumber – numeric seat position within the row.
//  Grade      – price grade (OP, VIP, R, S, A or venue defined).
//  Price      – price of the seat for the performance at claim time.
type Seat struct {
	ID         string `json:"seat_id"`
	RowID      string `json:"row_id"`
	SeatNumber int    `json:"seat_number"`
	Grade      string `json:"grade"`
	Price      int64  `json:"price"`
}

// SeatStatus is the customer-facing state of a seat in a status map.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	SeatHolding   SeatStatus = "holding"
	SeatReserved  SeatStatus = "reserved"
)
