package app

import (
	"fmt"
	"os"

	coreconfig "github.com/CaDiBob/simple-telegram-store/core/config"
	coredatabase "github.com/CaDiBob/simple-telegram-store/core/database"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ShopConfig tunes the storefront behaviour.
type ShopConfig struct {
	// PageSize is the number of categories shown per page.
	PageSize int `yaml:"page_size" envconfig:"SHOP_PAGE_SIZE" validate:"gte=0,lte=50"`
	// MaxDepth bounds category tree descent.
	MaxDepth int `yaml:"max_depth" envconfig:"SHOP_MAX_DEPTH" validate:"gte=0,lte=128"`
}

// PaymentsConfig configures the Telegram payments provider.
type PaymentsConfig struct {
	ProviderToken string `yaml:"provider_token" envconfig:"PAYMENTS_PROVIDER_TOKEN" validate:"required"`
	Currency      string `yaml:"currency" envconfig:"PAYMENTS_CURRENCY" validate:"required,len=3"`
}

// SessionConfig selects and configures the session backend.
type SessionConfig struct {
	Backend string `yaml:"backend" envconfig:"SESSION_BACKEND" validate:"omitempty,oneof=memory redis"`

	Redis struct {
		Addr     string `yaml:"addr" envconfig:"SESSION_REDIS_ADDR"`
		Password string `yaml:"password" envconfig:"SESSION_REDIS_PASSWORD"`
		DB       int    `yaml:"db" envconfig:"SESSION_REDIS_DB"`
		TTLHours int    `yaml:"ttl_hours" envconfig:"SESSION_REDIS_TTL_HOURS" validate:"gte=0"`
	} `yaml:"redis"`
}

// Config is the full application configuration: the reusable core settings
// plus the store-specific sections.
type Config struct {
	Core     coreconfig.Config   `yaml:",inline"`
	Database coredatabase.Config `yaml:"database"`
	Shop     ShopConfig          `yaml:"shop"`
	Payments PaymentsConfig      `yaml:"payments"`
	Session  SessionConfig       `yaml:"session"`
}

// CoreConfig exposes the embedded core configuration for the runner.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Core
}

// LoadConfig reads YAML, applies environment overrides and validates the
// result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("app: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("app: parse config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("app: process env: %w", err)
	}

	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("app: invalid config: %w", err)
	}
	if cfg.Session.Backend == "redis" && cfg.Session.Redis.Addr == "" {
		return nil, fmt.Errorf("app: session.redis.addr is required for the redis backend")
	}
	return &cfg, nil
}
