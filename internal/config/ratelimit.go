package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// RateLimitConfig configures the Redis token bucket on the customer routes.
// Creating a holding takes HoldCost tokens, every other request one.
type RateLimitConfig struct {
	Enabled        bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	Capacity       int           `envconfig:"RATE_LIMIT_CAPACITY" default:"60"`
	RefillTokens   int           `envconfig:"RATE_LIMIT_REFILL_TOKENS" default:"1"`
	RefillInterval time.Duration `envconfig:"RATE_LIMIT_REFILL_INTERVAL" default:"1s"`
	TTL            time.Duration `envconfig:"RATE_LIMIT_TTL" default:"10m"`
	HoldCost       int           `envconfig:"RATE_LIMIT_HOLD_COST" default:"5"`
	KeyStrategy    string        `envconfig:"RATE_LIMIT_KEY_STRATEGY" default:"ip_user_route"`
	Prefix         string        `envconfig:"RATE_LIMIT_PREFIX" default:"rl"`
	Debug          bool          `envconfig:"RATE_LIMIT_DEBUG" default:"false"`
}

// LoadRateLimitConfig decodes the RATE_LIMIT_* variables and clamps values
// to a usable bucket.
func LoadRateLimitConfig() (RateLimitConfig, error) {
	var c RateLimitConfig
	if err := envconfig.Process("", &c); err != nil {
		return RateLimitConfig{}, fmt.Errorf("load rate limit config: %w", err)
	}
	c.normalize()
	return c, nil
}

func (c *RateLimitConfig) normalize() {
	if c.Capacity < 1 {
		c.Capacity = 1
	}
	if c.RefillTokens < 1 {
		c.RefillTokens = 1
	}
	if c.RefillInterval <= 0 {
		c.RefillInterval = time.Second
	}
	if c.HoldCost < 1 {
		c.HoldCost = 1
	}
	if c.HoldCost > c.Capacity {
		c.HoldCost = c.Capacity
	}
	if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
		c.TTL = minTTL
	}
}
