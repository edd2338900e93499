// Package config loads application configuration from the environment.  A
// .env file in the working directory is read first when present.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config holds the core runtime settings.
type Config struct {
	Env       string `envconfig:"APP_ENV" required:"true"`
	Port      string `envconfig:"APP_PORT" required:"true"`
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	// StoreDriver selects the occupancy store.  The ledger always lives in
	// SQL; with the redis driver it uses SQLite unless DB_HOST is set.
	StoreDriver string `envconfig:"STORE_DRIVER" default:"sqlite"`

	DBUser string `envconfig:"DB_USER"`
	DBPass string `envconfig:"DB_PASS"`
	DBHost string `envconfig:"DB_HOST"`
	DBPort string `envconfig:"DB_PORT" default:"3306"`
	DBName string `envconfig:"DB_NAME"`

	SQLitePath string `envconfig:"SQLITE_PATH" default:"data/engine.db"`

	RabbitMQURL      string `envconfig:"RABBITMQ_URL"`
	RabbitMQExchange string `envconfig:"RABBITMQ_EXCHANGE" default:"seat.engine"`
	BookingConsumer  bool   `envconfig:"BOOKING_CONSUMER" default:"false"`

	CatalogPath string `envconfig:"CATALOG_PATH" default:"configs/catalog.yaml"`

	AccessTTL time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"1h"`
}

// UseMySQL reports whether the SQL side of the engine talks to MySQL.
func (c Config) UseMySQL() bool {
	return c.StoreDriver == DriverMySQL || (c.StoreDriver == DriverRedis && c.DBHost != "")
}

// MySQLDSN builds the go-sql-driver DSN.
func (c Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case DriverMySQL, DriverSQLite, DriverRedis:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q", c.StoreDriver)
	}
	if c.StoreDriver == DriverMySQL {
		var missing []string
		for k, v := range map[string]string{"DB_USER": c.DBUser, "DB_HOST": c.DBHost, "DB_NAME": c.DBName} {
			if v == "" {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing required env vars for mysql: %s", strings.Join(missing, ", "))
		}
	}
	return nil
}

// Load reads the .env file if present and decodes the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// HoldingConfig holds the hold durations for each TTL policy and the
// hygiene sweep interval.
type HoldingConfig struct {
	SelectionTTL  time.Duration `envconfig:"HOLD_SELECTION_TTL" default:"5m"`
	PaymentTTL    time.Duration `envconfig:"HOLD_PAYMENT_TTL" default:"10m"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
}

// LoadHoldingConfig decodes the HOLD_* and SWEEP_* variables.
func LoadHoldingConfig() (HoldingConfig, error) {
	var c HoldingConfig
	if err := envconfig.Process("", &c); err != nil {
		return HoldingConfig{}, fmt.Errorf("load holding config: %w", err)
	}
	if c.SelectionTTL <= 0 || c.PaymentTTL <= 0 {
		return HoldingConfig{}, fmt.Errorf("hold TTLs must be positive")
	}
	return c, nil
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled       bool    `envconfig:"OTEL_ENABLED" default:"false"`
	CollectorAddr string  `envconfig:"OTEL_COLLECTOR_ADDR" default:"localhost:4317"`
	ServiceName   string  `envconfig:"OTEL_SERVICE_NAME" default:"seat-holding-engine"`
	SampleRate    float64 `envconfig:"OTEL_SAMPLE_RATE" default:"1"`
}

// LoadTelemetryConfig decodes the OTEL_* variables.
func LoadTelemetryConfig() (TelemetryConfig, error) {
	var c TelemetryConfig
	if err := envconfig.Process("", &c); err != nil {
		return TelemetryConfig{}, fmt.Errorf("load telemetry config: %w", err)
	}
	return c, nil
}
