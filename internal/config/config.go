package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr      string `env:"ADDR" envDefault:":8080"`
	PublicURL string `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`

	DefaultCapacity      int `env:"DEFAULT_CAPACITY" envDefault:"6"`
	DefaultSelectionSecs int `env:"DEFAULT_SELECTION_SECS" envDefault:"420"`

	// AllowedOrigins loosens the websocket origin check; leave empty in
	// production so only same-origin connects.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	// DatabaseURL enables player-name persistence when set.
	DatabaseURL string `env:"DATABASE_URL"`

	Dev bool `env:"DEV"`
}

// Load reads .env if present, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
