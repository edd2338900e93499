package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-holding-engine/internal/catalog"
	"github.com/iliyamo/seat-holding-engine/internal/clock"
	"github.com/iliyamo/seat-holding-engine/internal/database"
	"github.com/iliyamo/seat-holding-engine/internal/middleware"
	"github.com/iliyamo/seat-holding-engine/internal/repository"
	"github.com/iliyamo/seat-holding-engine/internal/service"
	"github.com/iliyamo/seat-holding-engine/internal/utils"
)

const (
	testSecret = "handler-secret"
	perfID     = "perf-kinky-1"
	showDate   = "2026-02-10"
	showTime   = "19:30"
)

var start = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	e       *echo.Echo
	clock   *clock.Fake
	catalog *catalog.Catalog
	engine  *service.Manager
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]catalog.PerformanceSpec{{
		ID:    perfID,
		Title: "Kinky Boots",
		Venue: "Charlotte Theater",
		Blocks: []catalog.Block{
			{Floor: "1층", Section: "A", Rows: 2, SeatsPerRow: 10},
		},
		Grades: map[string]string{"1층": "R", "1층-A-1": "VIP"},
		Prices: map[string]int64{"R": 130000, "VIP": 150000},
	}})
	require.NoError(t, err)
	return c
}

// newTestEnv wires the handlers to a real engine on SQLite.  Routes are
// registered here rather than through the router package to keep the test
// inside package handler.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.SQLite))

	ledger := repository.NewReservationRepo(db)
	store := repository.NewSQLOccupancyRepo(db, database.SQLite, ledger)
	clk := clock.NewFake(start)
	cat := testCatalog(t)
	mgr := service.NewManager(store, ledger, cat, service.WithClock(clk))

	e := echo.New()
	health := &HealthHandler{Store: mgr}
	e.GET("/healthz", health.Health)

	pub := &PublicHandler{Engine: mgr, Catalog: cat, Log: zap.NewNop()}
	e.GET("/v1/performances/:id", pub.GetPerformance)
	e.GET("/v1/performances/:id/seats", pub.GetSeatMap)

	ch := NewCustomerHandler(mgr, zap.NewNop())
	ch.Clock = clk.Now
	g := e.Group("/v1", middleware.JWTAuth(testSecret), middleware.RequireRole(middleware.RoleCustomer))
	g.POST("/performances/:id/holdings", ch.CreateHolding)
	g.GET("/holdings/:id", ch.GetHolding)
	g.DELETE("/holdings/:id", ch.ReleaseHolding)
	g.POST("/holdings/:id/confirm", ch.ConfirmHolding)
	g.GET("/my-reservations", ch.ListReservations)
	g.GET("/reservations/:id", ch.GetReservation)
	g.POST("/reservations/:id/cancel", ch.CancelReservation)
	g.DELETE("/reservations/:id", ch.DeleteReservation)

	op := &OperatorHandler{Prices: cat, Sweeper: mgr, Log: zap.NewNop()}
	og := e.Group("/v1/operator", middleware.JWTAuth(testSecret), middleware.RequireRole(middleware.RoleOperator))
	og.PUT("/performances/:id/prices/:grade", op.SetPrice)
	og.POST("/sweep", op.Sweep)

	return &testEnv{e: e, clock: clk, catalog: cat, engine: mgr}
}

func bearer(t *testing.T, user, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(testSecret, user, role, time.Hour)
	require.NoError(t, err)
	return tok.Token
}

func (te *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	te.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func holdBody(seats ...string) string {
	b, _ := json.Marshal(map[string]any{"seat_ids": seats, "date": showDate, "time": showTime})
	return string(b)
}

// hold creates a holding for user and returns its id.
func (te *testEnv) hold(t *testing.T, token string, seats ...string) string {
	t.Helper()
	rec := te.do(t, http.MethodPost, "/v1/performances/"+perfID+"/holdings", token, holdBody(seats...))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode(t, rec)["holding_id"].(string)
}
