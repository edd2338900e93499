package config

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for Redis.  REDIS_HOST and
// REDIS_PORT take precedence over REDIS_ADDR when both are set.
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST"`
	Port     string `envconfig:"REDIS_PORT"`
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
	TLS      bool   `envconfig:"REDIS_TLS" default:"false"`
	// Required makes startup fail when Redis cannot be reached.  Without it
	// rate limiting is disabled instead.
	Required bool `envconfig:"REDIS_REQUIRED" default:"false"`
}

// Address resolves the host:port to dial.
func (c RedisConfig) Address() string {
	if c.Host != "" && c.Port != "" {
		return c.Host + ":" + c.Port
	}
	return c.Addr
}

// LoadRedisConfig decodes the REDIS_* variables.
func LoadRedisConfig() (RedisConfig, error) {
	var c RedisConfig
	if err := envconfig.Process("", &c); err != nil {
		return RedisConfig{}, fmt.Errorf("load redis config: %w", err)
	}
	return c, nil
}

// NewRedisClient connects to Redis and pings it with a short timeout.
func NewRedisClient(c RedisConfig) (*redis.Client, error) {
	var tlsConf *tls.Config
	if c.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      c.Address(),
		Password:  c.Password,
		DB:        c.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", c.Address(), err)
	}
	return client, nil
}
