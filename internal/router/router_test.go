package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-holding-engine/internal/catalog"
	"github.com/iliyamo/seat-holding-engine/internal/config"
	"github.com/iliyamo/seat-holding-engine/internal/database"
	"github.com/iliyamo/seat-holding-engine/internal/handler"
	"github.com/iliyamo/seat-holding-engine/internal/middleware"
	"github.com/iliyamo/seat-holding-engine/internal/repository"
	"github.com/iliyamo/seat-holding-engine/internal/service"
	"github.com/iliyamo/seat-holding-engine/internal/utils"
)

const secret = "router-secret"

func newServer(t *testing.T, capacity int) *echo.Echo {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.SQLite))
	ledger := repository.NewReservationRepo(db)
	store := repository.NewSQLOccupancyRepo(db, database.SQLite, ledger)

	cat, err := catalog.Parse([]byte(`
performances:
  - id: perf-1
    title: Kinky Boots
    venue: Charlotte Theater
    blocks:
      - {floor: "1층", section: A, rows: 1, seats_per_row: 4}
    grades: {"1층": R}
    prices: {R: 130000}
`))
	require.NoError(t, err)
	mgr := service.NewManager(store, ledger, cat)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	limiter := middleware.NewTokenBucket(config.RateLimitConfig{
		Enabled:        true,
		Capacity:       capacity,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            2 * time.Hour,
		KeyStrategy:    "user",
		Prefix:         "rl",
	}, rdb, zap.NewNop())

	e := New(zap.NewNop())
	RegisterRoutes(e, &handler.HealthHandler{Store: mgr})
	RegisterPublic(e, &handler.PublicHandler{Engine: mgr, Catalog: cat, Log: zap.NewNop()})
	RegisterCustomer(e, handler.NewCustomerHandler(mgr, zap.NewNop()), secret, limiter)
	RegisterOperator(e, &handler.OperatorHandler{Prices: cat, Sweeper: mgr, Log: zap.NewNop()}, secret)
	return e
}

func call(e *echo.Echo, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRoutesAreWired(t *testing.T) {
	e := newServer(t, 100)
	tok, err := utils.NewAccessToken(secret, "alice", middleware.RoleCustomer, time.Hour)
	require.NoError(t, err)

	rec := call(e, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/v1/performances/perf-1", "", "").Code)
	assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/v1/performances/perf-1/seats?date=2026-02-10&time=19:30", "", "").Code)

	rec = call(e, http.MethodPost, "/v1/performances/perf-1/holdings", tok.Token,
		`{"seat_ids":["1층-A-1-1"],"date":"2026-02-10","time":"19:30","policy":"payment"}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, call(e, http.MethodGet, "/v1/my-reservations", "", "").Code)
	assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/v1/my-reservations", tok.Token, "").Code)
	assert.Equal(t, http.StatusForbidden, call(e, http.MethodPost, "/v1/operator/sweep", tok.Token, "").Code)
}

func TestCustomerRoutesAreRateLimited(t *testing.T) {
	e := newServer(t, 2)
	tok, err := utils.NewAccessToken(secret, "alice", middleware.RoleCustomer, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/v1/my-reservations", tok.Token, "").Code)
	assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/v1/my-reservations", tok.Token, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, call(e, http.MethodGet, "/v1/my-reservations", tok.Token, "").Code)

	// public routes are not limited
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/v1/performances/perf-1", "", "").Code)
	}
}
