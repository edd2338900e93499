package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/seat-holding-engine/internal/database"
	"github.com/iliyamo/seat-holding-engine/internal/model"
)

// maxClaimAttempts bounds how often a claim transaction is restarted after
// the database aborted it on a lock conflict.
const maxClaimAttempts = 3

// SQLOccupancyRepo stores occupancy rows in the seat_occupancy table.  Every
// multi-row write runs in one transaction, so a claim, release or
// confirmation is either fully visible or not at all.
type SQLOccupancyRepo struct {
	db      *sql.DB
	dialect database.Dialect
	ledger  *ReservationRepo
}

// NewSQLOccupancyRepo returns a store bound to db.  ledger must share the
// same database; confirmations write both in one transaction.
func NewSQLOccupancyRepo(db *sql.DB, dialect database.Dialect, ledger *ReservationRepo) *SQLOccupancyRepo {
	return &SQLOccupancyRepo{db: db, dialect: dialect, ledger: ledger}
}

const occupancyColumns = `performance_id, show_date, show_time, seat_id, status, holding_id,
	reservation_id, user_id, grade, price, created_at_ms, expires_at_ms`

// liveClause matches rows that still guard their seat at the bound time.
const liveClause = `(status = 'CONFIRMED' OR (status = 'HOLDING' AND expires_at_ms > ?))`

func scanOccupancy(rows *sql.Rows) ([]model.OccupancyRow, error) {
	var out []model.OccupancyRow
	for rows.Next() {
		var (
			row                  model.OccupancyRow
			status               string
			reservationID        sql.NullString
			createdMs, expiresMs int64
		)
		if err := rows.Scan(&row.PerformanceID, &row.Date, &row.Time, &row.SeatID, &status, &row.HoldingID,
			&reservationID, &row.UserID, &row.Grade, &row.Price, &createdMs, &expiresMs); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan occupancy: %w", err)
		}
		row.Status = model.OccupancyStatus(status)
		row.ReservationID = reservationID.String
		row.CreatedAt = fromMillis(createdMs)
		row.ExpiresAt = fromMillis(expiresMs)
		out = append(out, row)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return out, rows.Err()
}

// TryClaim inserts one HOLDING row per seat of h, or none.  Expired HOLDING
// rows on the requested seats are removed first and do not conflict.  When
// any seat is still held or confirmed the returned slice lists exactly those
// seats, in request order, and nothing is written.
func (r *SQLOccupancyRepo) TryClaim(ctx context.Context, h *model.Holding, now time.Time) ([]string, error) {
	var lastErr error
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		conflicts, err := r.tryClaimOnce(ctx, h, now)
		if err == nil {
			return conflicts, nil
		}
		if !isSerializationFailure(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("claim seats after %d attempts: %w", maxClaimAttempts, lastErr)
}

func (r *SQLOccupancyRepo) tryClaimOnce(ctx context.Context, h *model.Holding, now time.Time) ([]string, error) {
	seatIDs := h.SeatIDs()
	if len(seatIDs) == 0 {
		return nil, nil
	}
	slot := h.Slot()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	in := placeholders(len(seatIDs))
	args := []interface{}{slot.PerformanceID, slot.Date, slot.Time}
	for _, id := range seatIDs {
		args = append(args, id)
	}

	delArgs := append(append([]interface{}{}, args...), toMillis(now))
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM seat_occupancy
		 WHERE performance_id = ? AND show_date = ? AND show_time = ? AND seat_id IN (`+in+`)
		   AND status = 'HOLDING' AND expires_at_ms <= ?`, delArgs...); err != nil {
		return nil, fmt.Errorf("drop expired holds: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT seat_id FROM seat_occupancy
		 WHERE performance_id = ? AND show_date = ? AND show_time = ? AND seat_id IN (`+in+`)`+
			r.dialect.LockSuffix(), args...)
	if err != nil {
		return nil, fmt.Errorf("lock seats: %w", err)
	}
	taken := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan seat: %w", err)
		}
		taken[id] = struct{}{}
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(taken) > 0 {
		conflicts := make([]string, 0, len(taken))
		for _, id := range seatIDs {
			if _, ok := taken[id]; ok {
				conflicts = append(conflicts, id)
			}
		}
		return conflicts, nil
	}

	query := `INSERT INTO seat_occupancy (` + occupancyColumns + `) VALUES `
	ins := make([]interface{}, 0, len(h.Seats)*12)
	for i, row := range h.Rows() {
		if i > 0 {
			query += ", "
		}
		query += "(?, ?, ?, ?, ?, ?, NULL, ?, ?, ?, ?, ?)"
		ins = append(ins, row.PerformanceID, row.Date, row.Time, row.SeatID, string(row.Status), row.HoldingID,
			row.UserID, row.Grade, row.Price, toMillis(row.CreatedAt), toMillis(row.ExpiresAt))
	}
	if _, err := tx.ExecContext(ctx, query, ins...); err != nil {
		return nil, fmt.Errorf("insert holds: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	committed = true
	return nil, nil
}

// ReadSlot returns the rows of a showing that are live at now.
func (r *SQLOccupancyRepo) ReadSlot(ctx context.Context, slot model.Slot, now time.Time) ([]model.OccupancyRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+occupancyColumns+` FROM seat_occupancy
		 WHERE performance_id = ? AND show_date = ? AND show_time = ? AND `+liveClause+`
		 ORDER BY seat_id`,
		slot.PerformanceID, slot.Date, slot.Time, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("read slot: %w", err)
	}
	return scanOccupancy(rows)
}

// HoldingRows returns the unexpired HOLDING rows of a holding.
func (r *SQLOccupancyRepo) HoldingRows(ctx context.Context, holdingID string, now time.Time) ([]model.OccupancyRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+occupancyColumns+` FROM seat_occupancy
		 WHERE holding_id = ? AND status = 'HOLDING' AND expires_at_ms > ?
		 ORDER BY seat_id`,
		holdingID, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("read holding: %w", err)
	}
	return scanOccupancy(rows)
}

// UserHoldingIDs returns the ids of the user's active holdings.
func (r *SQLOccupancyRepo) UserHoldingIDs(ctx context.Context, userID string, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT holding_id FROM seat_occupancy
		 WHERE user_id = ? AND status = 'HOLDING' AND expires_at_ms > ?
		 ORDER BY holding_id`,
		userID, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("list user holdings: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan holding id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteHolding removes every HOLDING row of a holding in one transaction
// and returns how many of them were still live at now.  Expired rows are
// removed too but not counted.
func (r *SQLOccupancyRepo) DeleteHolding(ctx context.Context, holdingID string, now time.Time) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	result, err := tx.ExecContext(ctx,
		`DELETE FROM seat_occupancy WHERE holding_id = ? AND status = 'HOLDING' AND expires_at_ms > ?`,
		holdingID, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("delete holding: %w", err)
	}
	live, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM seat_occupancy WHERE holding_id = ? AND status = 'HOLDING'`, holdingID); err != nil {
		return 0, fmt.Errorf("delete expired holding rows: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit release: %w", err)
	}
	committed = true
	return int(live), nil
}

// ConfirmHolding flips the holding's rows to CONFIRMED and appends res to
// the ledger in the same transaction.  Every seat of res must still be held
// by holdingID and unexpired at now, otherwise ErrGuardFailed is returned
// and nothing changes.
func (r *SQLOccupancyRepo) ConfirmHolding(ctx context.Context, holdingID string, res *model.Reservation, now time.Time) error {
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

	args := []interface{}{res.ID, holdingID, res.PerformanceID, res.Date, res.Time, toMillis(now)}
	for _, s := range res.Seats {
		args = append(args, s.ID)
	}
	result, err := tx.ExecContext(ctx,
		`UPDATE seat_occupancy SET status = 'CONFIRMED', reservation_id = ?, expires_at_ms = 0
		 WHERE holding_id = ? AND performance_id = ? AND show_date = ? AND show_time = ?
		   AND status = 'HOLDING' AND expires_at_ms > ?
		   AND seat_id IN (`+placeholders(len(res.Seats))+`)`, args...)
	if err != nil {
		return fmt.Errorf("confirm holding: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if int(n) != len(res.Seats) {
		return ErrGuardFailed
	}
	if err := r.ledger.CreateTx(ctx, tx, res); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit confirm: %w", err)
	}
	committed = true
	return nil
}

// Sweep deletes HOLDING rows that expired at or before now.
func (r *SQLOccupancyRepo) Sweep(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM seat_occupancy WHERE status = 'HOLDING' AND expires_at_ms <= ?`, toMillis(now))
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// Ping checks the database connection.
func (r *SQLOccupancyRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
