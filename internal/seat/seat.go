// Package seat parses seat identifiers and resolves them to a grade and a
// price against a performance's price table.
package seat

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/iliyamo/seat-holding-engine/internal/model"
)

var (
	// ErrMalformed is returned when a seat id is not floor-section-row-number.
	ErrMalformed = errors.New("malformed seat id")
	// ErrNotInLayout is returned when the venue layout does not contain the seat.
	ErrNotInLayout = errors.New("seat not in venue layout")
	// ErrNoGrade is returned when no grade prefix matches the seat.
	ErrNoGrade = errors.New("seat has no grade")
	// ErrNoPrice is returned when the seat grade resolves to a zero price.
	ErrNoPrice = errors.New("seat grade has no price")
)

// ID is a parsed seat identifier.
type ID struct {
	Floor   string
	Section string
	Row     string
	Number  int
}

// Parse validates raw and splits it into its positional parts.  raw must
// have exactly four non-empty parts separated by '-', and the last part
// must be a positive integer.
func Parse(raw string) (ID, error) {
	if raw == "" || strings.ContainsAny(raw, " \t\r\n,") {
		return ID{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}
	parts := strings.Split(raw, "-")
	if len(parts) != 4 {
		return ID{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}
	for _, p := range parts {
		if p == "" {
			return ID{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
		}
	}
	n, err := strconv.Atoi(parts[3])
	if err != nil || n <= 0 {
		return ID{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}
	return ID{Floor: parts[0], Section: parts[1], Row: parts[2], Number: n}, nil
}

// String reassembles the identifier.
func (id ID) String() string {
	return id.Floor + "-" + id.Section + "-" + id.Row + "-" + strconv.Itoa(id.Number)
}

// RowID returns floor-section-row.
func (id ID) RowID() string {
	return id.Floor + "-" + id.Section + "-" + id.Row
}

// InvalidSeatsError lists every seat of a request that failed resolution.
type InvalidSeatsError struct {
	Reasons map[string]error
	order   []string
}

func (e *InvalidSeatsError) add(id string, err error) {
	if e.Reasons == nil {
		e.Reasons = make(map[string]error)
	}
	e.Reasons[id] = err
	e.order = append(e.order, id)
}

// IDs returns the offending seat ids in request order.
func (e *InvalidSeatsError) IDs() []string {
	return append([]string(nil), e.order...)
}

func (e *InvalidSeatsError) Error() string {
	return "invalid seat ids: " + strings.Join(e.order, ", ")
}

// Resolver resolves seat ids against a performance.  The zero value is
// ready to use.
type Resolver struct{}

// Resolve maps raw to a priced seat.  Unparseable ids, seats outside the
// layout and seats without a non-zero price are rejected.
func (Resolver) Resolve(perf *model.Performance, raw string) (model.Seat, error) {
	id, err := Parse(raw)
	if err != nil {
		return model.Seat{}, err
	}
	if !perf.HasSeat(raw) {
		return model.Seat{}, fmt.Errorf("%w: %s", ErrNotInLayout, raw)
	}
	grade, ok := perf.GradeOf(raw)
	if !ok {
		return model.Seat{}, fmt.Errorf("%w: %s", ErrNoGrade, raw)
	}
	price := perf.PriceOf(grade)
	if price <= 0 {
		return model.Seat{}, fmt.Errorf("%w: %s grade %s", ErrNoPrice, raw, grade)
	}
	return model.Seat{
		ID:         raw,
		RowID:      id.RowID(),
		SeatNumber: id.Number,
		Grade:      grade,
		Price:      price,
	}, nil
}

// ResolveAll resolves every id in raws, collapsing duplicates.  When any id
// fails the returned error is an *InvalidSeatsError naming all of them.
func (r Resolver) ResolveAll(perf *model.Performance, raws []string) ([]model.Seat, error) {
	seen := make(map[string]struct{}, len(raws))
	seats := make([]model.Seat, 0, len(raws))
	invalid := &InvalidSeatsError{}
	for _, raw := range raws {
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		s, err := r.Resolve(perf, raw)
		if err != nil {
			invalid.add(raw, err)
			continue
		}
		seats = append(seats, s)
	}
	if len(invalid.order) > 0 {
		return nil, invalid
	}
	return seats, nil
}

// FromRecord rebuilds a seat from stored columns.  Stored ids were valid when
// written, so a parse failure only loses the row and number fields.
func FromRecord(seatID, grade string, price int64) model.Seat {
	s := model.Seat{ID: seatID, Grade: grade, Price: price}
	if id, err := Parse(seatID); err == nil {
		s.RowID = id.RowID()
		s.SeatNumber = id.Number
	}
	return s
}
