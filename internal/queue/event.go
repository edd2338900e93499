// Package queue publishes engine events to RabbitMQ and consumes the
// confirmed-reservation stream into logs/booking.log.
package queue

import "time"

// Routing keys on the engine's topic exchange.
const (
	KeyHoldingCreated       = "holding.created"
	KeyHoldingReleased      = "holding.released"
	KeyReservationConfirmed = "reservation.confirmed"
	KeyReservationCancelled = "reservation.cancelled"
	KeyReservationPurged    = "reservation.purged"
)

// Release reasons carried on HoldingReleasedEvent.
const (
	ReasonExplicit   = "explicit"
	ReasonSuperseded = "superseded"
)

// HoldingCreatedEvent is published when seats are claimed.
type HoldingCreatedEvent struct {
	HoldingID     string    `json:"holding_id"`
	UserID        string    `json:"user_id"`
	PerformanceID string    `json:"performance_id"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	SeatIDs       []string  `json:"seat_ids"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// HoldingReleasedEvent is published when a holding is released, either by
// its owner or because the owner started a new selection.
type HoldingReleasedEvent struct {
	HoldingID  string    `json:"holding_id"`
	UserID     string    `json:"user_id"`
	Reason     string    `json:"reason"`
	ReleasedAt time.Time `json:"released_at"`
}

// ReservationConfirmedEvent is published when a holding becomes a
// reservation.  It carries enough for the booking log consumer to write a
// line without querying the ledger.
type ReservationConfirmedEvent struct {
	ReservationID    string    `json:"reservation_id"`
	HoldingID        string    `json:"holding_id"`
	UserID           string    `json:"user_id"`
	PerformanceID    string    `json:"performance_id"`
	PerformanceTitle string    `json:"performance_title"`
	Venue            string    `json:"venue"`
	Date             string    `json:"date"`
	Time             string    `json:"time"`
	SeatIDs          []string  `json:"seats"`
	TotalPrice       int64     `json:"total_price"`
	ConfirmedAt      time.Time `json:"confirmed_at"`
}

// ReservationChangedEvent is published for cancellations and purges.
type ReservationChangedEvent struct {
	ReservationID string    `json:"reservation_id"`
	At            time.Time `json:"at"`
}
