package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-holding-engine/internal/catalog"
	"github.com/iliyamo/seat-holding-engine/internal/clock"
	"github.com/iliyamo/seat-holding-engine/internal/database"
	"github.com/iliyamo/seat-holding-engine/internal/repository"
)

const (
	perfID   = "perf-kinky-1"
	showDate = "2026-02-10"
	showTime = "19:30"
)

var start = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]catalog.PerformanceSpec{{
		ID:    perfID,
		Title: "Kinky Boots",
		Venue: "Charlotte Theater",
		Blocks: []catalog.Block{
			{Floor: "1층", Section: "A", Rows: 3, SeatsPerRow: 30},
			{Floor: "1층", Section: "B", Rows: 3, SeatsPerRow: 30},
		},
		Grades: map[string]string{"1층": "R", "1층-B": "VIP"},
		Prices: map[string]int64{"R": 130000, "VIP": 150000},
	}})
	require.NoError(t, err)
	return c
}

type recordedEvent struct {
	Key     string
	Payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Key: key, Payload: v})
	return p.err
}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Key)
	}
	return out
}

func sequentialIDs() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

type engine struct {
	*Manager
	clock     *clock.Fake
	catalog   *catalog.Catalog
	publisher *recordingPublisher
}

func newLedger(t *testing.T) *repository.ReservationRepo {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.SQLite))
	return repository.NewReservationRepo(db)
}

func storeFor(t *testing.T, backend string) (OccupancyStore, Ledger) {
	t.Helper()
	ledger := newLedger(t)
	switch backend {
	case "redis":
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		return repository.NewRedisOccupancyStore(client, ledger, "", nil), ledger
	default:
		return repository.NewSQLOccupancyRepo(ledger.DB(), database.SQLite, ledger), ledger
	}
}

func newEngine(t *testing.T, backend string, opts ...Option) *engine {
	t.Helper()
	store, ledger := storeFor(t, backend)
	e := &engine{
		clock:     clock.NewFake(start),
		catalog:   testCatalog(t),
		publisher: &recordingPublisher{},
	}
	all := append([]Option{
		WithClock(e.clock),
		WithIDGenerator(sequentialIDs()),
		WithPublisher(e.publisher),
	}, opts...)
	e.Manager = NewManager(store, ledger, e.catalog, all...)
	return e
}

var backendNames = []string{"sqlite", "redis"}

func holdInput(user string, seats ...string) CreateHoldingInput {
	return CreateHoldingInput{
		PerformanceID: perfID,
		Date:          showDate,
		Time:          showTime,
		UserID:        user,
		SeatIDs:       seats,
	}
}
