// Package catalog serves the read-only performance records the engine needs:
// venue layout, grade map and price table.  Records are loaded from YAML.
package catalog

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/iliyamo/seat-holding-engine/internal/model"
)

// File is the YAML document layout.
type File struct {
	Performances []PerformanceSpec `yaml:"performances"`
}

// PerformanceSpec describes one performance.  Seats may be listed explicitly
// in Layout, generated from Blocks, or both.
type PerformanceSpec struct {
	ID     string            `yaml:"id"`
	Title  string            `yaml:"title"`
	Venue  string            `yaml:"venue"`
	Layout []string          `yaml:"layout"`
	Blocks []Block           `yaml:"blocks"`
	Grades map[string]string `yaml:"grades"`
	Prices map[string]int64  `yaml:"prices"`
}

// Block generates seats floor-section-row-number for rows 1..Rows and seats
// 1..SeatsPerRow.
type Block struct {
	Floor       string `yaml:"floor"`
	Section     string `yaml:"section"`
	Rows        int    `yaml:"rows"`
	SeatsPerRow int    `yaml:"seats_per_row"`
}

func (b Block) seats() []string {
	out := make([]string, 0, b.Rows*b.SeatsPerRow)
	for r := 1; r <= b.Rows; r++ {
		for n := 1; n <= b.SeatsPerRow; n++ {
			out = append(out, fmt.Sprintf("%s-%s-%d-%d", b.Floor, b.Section, r, n))
		}
	}
	return out
}

// Catalog is an in-memory performance catalog.  It is safe for concurrent
// use; SetPrice may run while the engine reads.
type Catalog struct {
	mu    sync.RWMutex
	perfs map[string]*model.Performance
}

// Load reads and parses the YAML file at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse builds a catalog from YAML bytes.
func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return New(f.Performances)
}

// New builds a catalog from performance specs.
func New(specs []PerformanceSpec) (*Catalog, error) {
	c := &Catalog{perfs: make(map[string]*model.Performance, len(specs))}
	for _, s := range specs {
		if s.ID == "" {
			return nil, fmt.Errorf("catalog: performance without id")
		}
		if _, dup := c.perfs[s.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate performance %q", s.ID)
		}
		p := &model.Performance{
			ID:     s.ID,
			Title:  s.Title,
			Venue:  s.Venue,
			Grades: make(map[string]string, len(s.Grades)),
			Prices: make(map[string]int64, len(s.Prices)),
		}
		seen := make(map[string]struct{})
		add := func(id string) {
			if _, ok := seen[id]; ok {
				return
			}
			seen[id] = struct{}{}
			p.Layout = append(p.Layout, id)
		}
		for _, id := range s.Layout {
			add(id)
		}
		for _, b := range s.Blocks {
			for _, id := range b.seats() {
				add(id)
			}
		}
		for k, v := range s.Grades {
			p.Grades[k] = v
		}
		for k, v := range s.Prices {
			p.Prices[k] = v
		}
		p.IndexLayout()
		c.perfs[s.ID] = p
	}
	return c, nil
}

// Performance returns a snapshot of the performance record.
func (c *Catalog) Performance(_ context.Context, id string) (*model.Performance, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.perfs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrPerformanceNotFound, id)
	}
	return p.Clone(), nil
}

// IDs returns the ids of every performance.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.perfs))
	for id := range c.perfs {
		ids = append(ids, id)
	}
	return ids
}

// SetPrice changes the price of grade for a performance.  Holdings and
// reservations keep the price they were created with.
func (c *Catalog) SetPrice(performanceID, grade string, price int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.perfs[performanceID]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrPerformanceNotFound, performanceID)
	}
	prices := make(map[string]int64, len(p.Prices)+1)
	for k, v := range p.Prices {
		prices[k] = v
	}
	prices[grade] = price
	next := p.Clone()
	next.Prices = prices
	c.perfs[performanceID] = next
	return nil
}
