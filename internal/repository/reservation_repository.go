package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/seat-holding-engine/internal/model"
	"github.com/iliyamo/seat-holding-engine/internal/seat"
)

// ReservationRepo is the reservation ledger.  A reservation row and its
// reservation_seats rows are always written and removed together.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// DB exposes the underlying handle so stores can share transactions with
// the ledger.
func (r *ReservationRepo) DB() *sql.DB { return r.db }

// Create appends res to the ledger in its own transaction.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := r.CreateTx(ctx, tx, res); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reservation: %w", err)
	}
	committed = true
	return nil
}

// CreateTx inserts res and its seats within the caller's transaction.  The
// caller must commit or roll back.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `INSERT INTO reservations
		(id, user_id, performance_id, performance_title, venue, show_date, show_time, total_price, status, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q,
		res.ID, res.UserID, res.PerformanceID, res.PerformanceTitle, res.Venue,
		res.Date, res.Time, res.TotalPrice, string(res.Status), toMillis(res.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	if len(res.Seats) == 0 {
		return nil
	}
	query := `INSERT INTO reservation_seats (reservation_id, seat_id, grade, price) VALUES `
	args := make([]interface{}, 0, len(res.Seats)*4)
	for i, s := range res.Seats {
		if i > 0 {
			query += ", "
		}
		query += "(?, ?, ?, ?)"
		args = append(args, res.ID, s.ID, s.Grade, s.Price)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert reservation seats: %w", err)
	}
	return nil
}

const reservationColumns = `id, user_id, performance_id, performance_title, venue, show_date, show_time, total_price, status, created_at_ms`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReservation(s rowScanner) (*model.Reservation, error) {
	var (
		res       model.Reservation
		status    string
		createdMs int64
	)
	if err := s.Scan(&res.ID, &res.UserID, &res.PerformanceID, &res.PerformanceTitle, &res.Venue,
		&res.Date, &res.Time, &res.TotalPrice, &status, &createdMs); err != nil {
		return nil, err
	}
	res.Status = model.ReservationStatus(status)
	res.CreatedAt = fromMillis(createdMs)
	res.Seats = []model.Seat{}
	return &res, nil
}

// GetByID returns the reservation with its seats, or ErrNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	if err := r.loadSeats(ctx, map[string]*model.Reservation{res.ID: res}); err != nil {
		return nil, err
	}
	return res, nil
}

// ListByUser returns the user's confirmed reservations, newest first.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID string) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE user_id = ? AND status = ?
		 ORDER BY created_at_ms DESC, id DESC`,
		userID, string(model.ReservationConfirmed))
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	var list []*model.Reservation
	byID := make(map[string]*model.Reservation)
	for rows.Next() {
		res, scanErr := scanReservation(rows)
		if scanErr != nil {
			rows.Close()
			return nil, fmt.Errorf("scan reservation: %w", scanErr)
		}
		list = append(list, res)
		byID[res.ID] = res
	}
	// Close before the seat query; SQLite runs on a single connection.
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadSeats(ctx, byID); err != nil {
		return nil, err
	}
	out := make([]model.Reservation, 0, len(list))
	for _, res := range list {
		out = append(out, *res)
	}
	return out, nil
}

func (r *ReservationRepo) loadSeats(ctx context.Context, byID map[string]*model.Reservation) error {
	if len(byID) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(byID))
	for id := range byID {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT reservation_id, seat_id, grade, price FROM reservation_seats
		 WHERE reservation_id IN (`+placeholders(len(args))+`)
		 ORDER BY reservation_id, seat_id`, args...)
	if err != nil {
		return fmt.Errorf("load reservation seats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			resID, seatID, grade string
			price                int64
		)
		if err := rows.Scan(&resID, &seatID, &grade, &price); err != nil {
			return fmt.Errorf("scan reservation seat: %w", err)
		}
		if res, ok := byID[resID]; ok {
			res.Seats = append(res.Seats, seat.FromRecord(seatID, grade, price))
		}
	}
	return rows.Err()
}

// Cancel flips a confirmed reservation to cancelled.  It returns false when
// the reservation does not exist or is already cancelled.
func (r *ReservationRepo) Cancel(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE reservations SET status = ? WHERE id = ? AND status = ?`,
		string(model.ReservationCancelled), id, string(model.ReservationConfirmed))
	if err != nil {
		return false, fmt.Errorf("cancel reservation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Purge hard-deletes a cancelled reservation and its seats.  It returns
// false when the reservation does not exist and ErrNotCancelled when it is
// still confirmed.
func (r *ReservationRepo) Purge(ctx context.Context, id string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM reservations WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read reservation: %w", err)
	}
	if model.ReservationStatus(status) != model.ReservationCancelled {
		return false, ErrNotCancelled
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM reservation_seats WHERE reservation_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete reservation seats: %w", err)
	}
	result, err := tx.ExecContext(ctx,
		`DELETE FROM reservations WHERE id = ? AND status = ?`, id, string(model.ReservationCancelled))
	if err != nil {
		return false, fmt.Errorf("delete reservation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit purge: %w", err)
	}
	committed = true
	return n > 0, nil
}
