package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`
	Port        string `env:"PORT" envDefault:"8080"`

	ResetTokenSecret string        `env:"RESET_TOKEN_SECRET,required,notEmpty"`
	ResetCodeSalt    string        `env:"RESET_CODE_SALT,required,notEmpty"`
	DevMode          bool          `env:"DEV_MODE" envDefault:"false"`
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	ResetCodeTTL     time.Duration `env:"RESET_CODE_TTL" envDefault:"15m"`
	ResetMaxAttempts int           `env:"RESET_MAX_ATTEMPTS" envDefault:"5"`
	BcryptCost       int           `env:"BCRYPT_COST" envDefault:"10"`

	AuthRateLimit  int           `env:"AUTH_RATE_LIMIT" envDefault:"30"`
	AuthRateWindow time.Duration `env:"AUTH_RATE_WINDOW" envDefault:"10m"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads .env files (when present) and then the process environment.
// Variables already set in the environment win over .env entries.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return parse(env.Options{})
}

// LoadFrom builds the configuration from the given variables only
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.SessionTTL <= 0:
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	case c.ResetCodeTTL <= 0:
		return fmt.Errorf("RESET_CODE_TTL must be positive, got %s", c.ResetCodeTTL)
	case c.ResetMaxAttempts < 1:
		return fmt.Errorf("RESET_MAX_ATTEMPTS must be at least 1, got %d", c.ResetMaxAttempts)
	case c.AuthRateLimit < 1 || c.AuthRateWindow <= 0:
		return fmt.Errorf("AUTH_RATE_LIMIT and AUTH_RATE_WINDOW must be positive")
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	return nil
}
