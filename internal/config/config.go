// Package config binds environment variables to a typed configuration via
// envconfig. A .env file, when present, is loaded first by the entrypoint.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	ServerPort  int    `envconfig:"SERVER_PORT" default:"8080"`

	// StoreBackend selects persistence: "postgres" or "memory".
	StoreBackend string `envconfig:"STORE_BACKEND" default:"postgres"`
	DatabaseURL  string `envconfig:"DATABASE_URL"`

	// RedisURL enables the shared category-rate cache. Empty means the
	// in-process TTL cache is used instead.
	RedisURL string `envconfig:"REDIS_URL"`

	// SellerState and BuyerState are ISO state codes deciding the
	// CGST+SGST vs IGST split. Single-region deployment assumption; a
	// per-order buyer state can override later.
	SellerState string `envconfig:"SELLER_STATE" default:"KA"`
	BuyerState  string `envconfig:"BUYER_STATE" default:"KA"`

	DeliveryFlatFee       string `envconfig:"DELIVERY_FLAT_FEE" default:"20"`
	DeliveryFreeThreshold string `envconfig:"DELIVERY_FREE_THRESHOLD" default:"200"`

	PaymentTimeout  time.Duration `envconfig:"PAYMENT_TIMEOUT" default:"15m"`
	RateCacheTTL    time.Duration `envconfig:"RATE_CACHE_TTL" default:"5m"`
	AllowedOrigins  string        `envconfig:"ALLOWED_ORIGINS" default:"*"`
	MetricsEnabled  bool          `envconfig:"METRICS_ENABLED" default:"true"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load binds the environment into a Config and validates the combinations
// that cannot be expressed as envconfig tags.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("bind environment: %w", err)
	}
	if cfg.StoreBackend != "postgres" && cfg.StoreBackend != "memory" {
		return nil, fmt.Errorf("STORE_BACKEND must be postgres or memory, got %q", cfg.StoreBackend)
	}
	if cfg.StoreBackend == "postgres" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required with the postgres backend")
	}
	if _, err := decimal.NewFromString(cfg.DeliveryFlatFee); err != nil {
		return nil, fmt.Errorf("DELIVERY_FLAT_FEE: %w", err)
	}
	if _, err := decimal.NewFromString(cfg.DeliveryFreeThreshold); err != nil {
		return nil, fmt.Errorf("DELIVERY_FREE_THRESHOLD: %w", err)
	}
	return &cfg, nil
}

// DeliveryFee returns the configured flat delivery fee.
func (c *Config) DeliveryFee() decimal.Decimal {
	return decimal.RequireFromString(c.DeliveryFlatFee)
}

// DeliveryThreshold returns the subtotal at which delivery becomes free.
func (c *Config) DeliveryThreshold() decimal.Decimal {
	return decimal.RequireFromString(c.DeliveryFreeThreshold)
}
