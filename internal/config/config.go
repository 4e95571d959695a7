package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime settings, loaded from the environment with an
// optional .env overlay.
type Config struct {
	DatabaseURL string `envconfig:"DATABASE_URL" default:"root:password@tcp(localhost:3306)/case_tracker?charset=utf8mb4&parseTime=True&loc=Local"`
	SteamAPIKey string `envconfig:"STEAM_API_KEY" default:""`
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// FreshnessWindow is how long a snapshot is served from cache before a
	// new sync is triggered.
	FreshnessWindow time.Duration `envconfig:"FRESHNESS_WINDOW" default:"3h"`
	// HistoryWindow is the default time-series lower bound (roughly one
	// month); callers can widen it to the full history per request.
	HistoryWindow time.Duration `envconfig:"HISTORY_WINDOW" default:"720h"`
	// Currencies are the tracked conversion targets, USD being the base.
	Currencies []string `envconfig:"CURRENCIES" default:"PLN,EUR"`
	// ItemFilter is the substring an item name must contain to be priced.
	ItemFilter  string        `envconfig:"ITEM_FILTER" default:"Case"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
}

// Load reads the .env file if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
