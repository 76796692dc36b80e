package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is loaded from the environment at startup.
type Config struct {
	Host        string        `env:"HOST" envDefault:"0.0.0.0"`
	Port        string        `env:"PORT" envDefault:"8010"`
	DatabaseURL string        `env:"DATABASE_URL" envDefault:"sqlite://keep.db"`
	JWTSecret   string        `env:"JWT_SECRET,required"`
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	// Seed settings. AdminPassword falls back to a default dev password;
	// FounderUsername promotes an existing user on boot.
	AdminPassword   string `env:"ADMIN_PASSWORD"`
	FounderUsername string `env:"FOUNDER_USERNAME"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}
