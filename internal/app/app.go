// Package app assembles the engine, its stores and the HTTP server from
// configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-holding-engine/internal/catalog"
	"github.com/iliyamo/seat-holding-engine/internal/clock"
	"github.com/iliyamo/seat-holding-engine/internal/config"
	"github.com/iliyamo/seat-holding-engine/internal/database"
	"github.com/iliyamo/seat-holding-engine/internal/handler"
	"github.com/iliyamo/seat-holding-engine/internal/middleware"
	"github.com/iliyamo/seat-holding-engine/internal/queue"
	"github.com/iliyamo/seat-holding-engine/internal/repository"
	"github.com/iliyamo/seat-holding-engine/internal/router"
	"github.com/iliyamo/seat-holding-engine/internal/service"
	"github.com/iliyamo/seat-holding-engine/internal/worker"
)

const redisKeyPrefix = "engine"

// Options carries everything New needs.  Clock may be nil.
type Options struct {
	Config    config.Config
	Holding   config.HoldingConfig
	RateLimit config.RateLimitConfig
	Redis     config.RedisConfig
	Log       *zap.Logger
	Clock     clock.Clock
}

// LoadOptions reads every configuration concern from the environment.  The
// caller sets Log.
func LoadOptions() (Options, error) {
	cfg, err := config.Load()
	if err != nil {
		return Options{}, err
	}
	hc, err := config.LoadHoldingConfig()
	if err != nil {
		return Options{}, err
	}
	rl, err := config.LoadRateLimitConfig()
	if err != nil {
		return Options{}, err
	}
	rc, err := config.LoadRedisConfig()
	if err != nil {
		return Options{}, err
	}
	return Options{Config: cfg, Holding: hc, RateLimit: rl, Redis: rc}, nil
}

// App is a wired engine instance.
type App struct {
	Config   config.Config
	Log      *zap.Logger
	Catalog  *catalog.Catalog
	Engine   *service.Manager
	Echo     *echo.Echo
	Sweeper  *worker.Sweeper
	Consumer *queue.BookingConsumer

	closers []func() error
}

// OpenSQL opens and migrates the SQL database holding the ledger (and the
// occupancy table for the sql drivers).
func OpenSQL(ctx context.Context, cfg config.Config) (*sql.DB, database.Dialect, error) {
	var (
		db      *sql.DB
		dialect database.Dialect
		err     error
	)
	if cfg.UseMySQL() {
		db, err = database.OpenMySQLDSN(cfg.MySQLDSN())
		dialect = database.MySQL
	} else {
		db, err = database.OpenSQLite(cfg.SQLitePath)
		dialect = database.SQLite
	}
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", dialect, err)
	}
	if err := database.Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	return db, dialect, nil
}

// New builds the engine and the HTTP server.  Startup fails when a required
// backend is unreachable; optional ones (rate-limit Redis, RabbitMQ) are
// logged and skipped.
func New(ctx context.Context, opts Options) (_ *App, err error) {
	cfg := opts.Config
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Catalog, err = catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	db, dialect, err := OpenSQL(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)
	ledger := repository.NewReservationRepo(db)

	rdb, err := a.connectRedis(cfg, opts.Redis, opts.RateLimit)
	if err != nil {
		return nil, err
	}

	var store service.OccupancyStore
	if cfg.StoreDriver == config.DriverRedis {
		store = repository.NewRedisOccupancyStore(rdb, ledger, redisKeyPrefix, log)
	} else {
		store = repository.NewSQLOccupancyRepo(db, dialect, ledger)
	}

	engineOpts := []service.Option{
		service.WithLogger(log),
		service.WithTTLs(opts.Holding.SelectionTTL, opts.Holding.PaymentTTL),
		service.WithPublisher(a.connectPublisher(cfg)),
	}
	if opts.Clock != nil {
		engineOpts = append(engineOpts, service.WithClock(opts.Clock))
	}
	a.Engine = service.NewManager(store, ledger, a.Catalog, engineOpts...)

	if opts.Holding.SweepInterval > 0 {
		a.Sweeper = worker.NewSweeper(a.Engine, opts.Holding.SweepInterval, log)
	}
	if cfg.BookingConsumer && cfg.RabbitMQURL != "" {
		a.Consumer = &queue.BookingConsumer{
			URL:      cfg.RabbitMQURL,
			Exchange: cfg.RabbitMQExchange,
			LogDir:   "logs",
			Log:      log,
		}
	}

	a.Echo = router.New(log)
	router.RegisterRoutes(a.Echo, &handler.HealthHandler{Store: a.Engine, Log: log})
	router.RegisterPublic(a.Echo, &handler.PublicHandler{Engine: a.Engine, Catalog: a.Catalog, Log: log})
	router.RegisterCustomer(a.Echo, handler.NewCustomerHandler(a.Engine, log), cfg.JWTSecret,
		middleware.NewTokenBucket(opts.RateLimit, rdb, log))
	router.RegisterOperator(a.Echo, &handler.OperatorHandler{Prices: a.Catalog, Sweeper: a.Engine, Log: log}, cfg.JWTSecret)

	log.Info("engine ready",
		zap.String("store", cfg.StoreDriver),
		zap.String("ledger", string(dialect)),
		zap.Int("performances", len(a.Catalog.IDs())),
		zap.Bool("rate_limit", opts.RateLimit.Enabled && rdb != nil),
		zap.Bool("sweeper", a.Sweeper != nil))
	return a, nil
}

// connectRedis returns nil when Redis is optional and unreachable.
func (a *App) connectRedis(cfg config.Config, rc config.RedisConfig, rl config.RateLimitConfig) (*redis.Client, error) {
	needed := cfg.StoreDriver == config.DriverRedis || rc.Required
	if !needed && !rl.Enabled {
		return nil, nil
	}
	rdb, err := config.NewRedisClient(rc)
	if err != nil {
		if needed {
			return nil, err
		}
		a.Log.Warn("redis unavailable, rate limiting disabled", zap.Error(err))
		return nil, nil
	}
	a.closers = append(a.closers, rdb.Close)
	return rdb, nil
}

func (a *App) connectPublisher(cfg config.Config) service.EventPublisher {
	if cfg.RabbitMQURL == "" {
		return queue.NopPublisher{}
	}
	pub, err := queue.NewPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange)
	if err != nil {
		a.Log.Warn("rabbitmq unavailable, events disabled", zap.Error(err))
		return queue.NopPublisher{}
	}
	a.closers = append(a.closers, pub.Close)
	return pub
}

// Run serves HTTP on addr and runs the background workers until ctx is
// cancelled, then shuts the server down gracefully.
func (a *App) Run(ctx context.Context, addr string) error {
	if a.Sweeper != nil {
		if err := a.Sweeper.Start(ctx); err != nil {
			return err
		}
		defer a.Sweeper.Stop()
	}
	if a.Consumer != nil {
		go func() {
			if err := a.Consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.Log.Error("booking consumer stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("listening", zap.String("addr", addr), zap.String("env", a.Config.Env))
		if err := a.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	a.Log.Info("shutting down")
	return a.Echo.Shutdown(shutdownCtx)
}

// Close releases every connection opened by New, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

