package catalog

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-holding-engine/internal/model"
)

const sample = `
performances:
  - id: perf-kinky-1
    title: Kinky Boots
    venue: Charlotte Theater
    layout: ["1층-B-2-21", "1층-B-2-22"]
    blocks:
      - floor: 2층
        section: C
        rows: 2
        seats_per_row: 3
    grades:
      1층: VIP
      2층: S
    prices:
      VIP: 150000
      S: 90000
`

func TestParseBuildsLayout(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)

	p, err := c.Performance(context.Background(), "perf-kinky-1")
	require.NoError(t, err)
	assert.Equal(t, "Kinky Boots", p.Title)
	assert.Equal(t, "Charlotte Theater", p.Venue)
	assert.Len(t, p.Layout, 8)
	assert.True(t, p.HasSeat("2층-C-2-3"))
	assert.False(t, p.HasSeat("2층-C-3-1"))

	g, ok := p.GradeOf("2층-C-1-1")
	require.True(t, ok)
	assert.Equal(t, "S", g)
	assert.Equal(t, int64(90000), p.PriceOf(g))
}

func TestPerformanceNotFound(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)
	_, err = c.Performance(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrPerformanceNotFound)
}

func TestSetPriceDoesNotMutateSnapshots(t *testing.T) {
	c, err := Parse([]byte(sample))
	require.NoError(t, err)
	ctx := context.Background()

	before, err := c.Performance(ctx, "perf-kinky-1")
	require.NoError(t, err)
	require.NoError(t, c.SetPrice("perf-kinky-1", "VIP", 200000))

	after, err := c.Performance(ctx, "perf-kinky-1")
	require.NoError(t, err)
	assert.Equal(t, int64(150000), before.PriceOf("VIP"))
	assert.Equal(t, int64(200000), after.PriceOf("VIP"))

	assert.ErrorIs(t, c.SetPrice("nope", "VIP", 1), model.ErrPerformanceNotFound)
}

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New([]PerformanceSpec{{ID: "a"}, {ID: "a"}})
	assert.Error(t, err)
	_, err = New([]PerformanceSpec{{}})
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	c, err := Load(path)
	require.NoError(t, err)
	ids := c.IDs()
	sort.Strings(ids)
	assert.Equal(t, []string{"perf-kinky-1"}, ids)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestShippedCatalog(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "configs", "catalog.yaml"))
	require.NoError(t, err)
	p, err := c.Performance(context.Background(), "perf-kinky-1")
	require.NoError(t, err)
	assert.Len(t, p.Layout, 300+300+144)
	for seatID, want := range map[string]string{"1층-B-3-7": "VIP", "1층-A-10-30": "R", "2층-A-1-1": "S"} {
		got, ok := p.GradeOf(seatID)
		require.True(t, ok, seatID)
		assert.Equal(t, want, got, seatID)
	}
}
