package model

import (
	"errors"
	"strings"
)

// ErrPerformanceNotFound is returned by catalogs for an unknown performance.
var ErrPerformanceNotFound = errors.New("performance not found")

// Performance carries the venue and pricing metadata the engine needs for
// one performance.  It is owned by the catalog; the engine only reads it.
//
// Fields:
//  ID     – performance identifier.
//  Title  – display title.
//  Venue  – venue name.
//  Layout – every sellable seat id of the venue, in display order.
//  Grades – seat id prefix (floor, floor-section, floor-section-row or a
//           full seat id) to grade.
//  Prices – grade to price.
type Performance struct {
	ID     string
	Title  string
	Venue  string
	Layout []string
	Grades map[string]string
	Prices map[string]int64

	layoutIndex map[string]struct{}
}

// IndexLayout builds the seat lookup used by HasSeat.  Catalogs call it once
// after loading.
func (p *Performance) IndexLayout() {
	p.layoutIndex = make(map[string]struct{}, len(p.Layout))
	for _, id := range p.Layout {
		p.layoutIndex[id] = struct{}{}
	}
}

// HasSeat reports whether seatID belongs to the venue layout.  A performance
// without a layout accepts any seat.
func (p *Performance) HasSeat(seatID string) bool {
	if len(p.Layout) == 0 {
		return true
	}
	if p.layoutIndex == nil {
		for _, id := range p.Layout {
			if id == seatID {
				return true
			}
		}
		return false
	}
	_, ok := p.layoutIndex[seatID]
	return ok
}

// GradeOf returns the grade of the longest matching prefix of seatID.
func (p *Performance) GradeOf(seatID string) (string, bool) {
	key := seatID
	for {
		if g, ok := p.Grades[key]; ok {
			return g, true
		}
		i := strings.LastIndex(key, "-")
		if i <= 0 {
			return "", false
		}
		key = key[:i]
	}
}

// PriceOf returns the price of grade, or zero when the table has none.
func (p *Performance) PriceOf(grade string) int64 {
	return p.Prices[grade]
}

// Clone returns a copy that shares no maps with p.
func (p *Performance) Clone() *Performance {
	out := &Performance{
		ID:     p.ID,
		Title:  p.Title,
		Venue:  p.Venue,
		Layout: append([]string(nil), p.Layout...),
		Grades: make(map[string]string, len(p.Grades)),
		Prices: make(map[string]int64, len(p.Prices)),
	}
	for k, v := range p.Grades {
		out.Grades[k] = v
	}
	for k, v := range p.Prices {
		out.Prices[k] = v
	}
	out.layoutIndex = p.layoutIndex
	return out
}
