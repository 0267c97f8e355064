// Package config loads the identity service settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds tenant, token and directory-sync settings. Database and
// logger settings are read by pkg/database and pkg/utilities.
type Config struct {
	TenantID       int64  `env:"TENANT_ID"         envDefault:"1"`
	TenantTimeZone string `env:"TENANT_TIMEZONE"   envDefault:"UTC"`
	PersonalMode   bool   `env:"PERSONAL_MODE"     envDefault:"false"`
	UserQuota      int    `env:"TENANT_USER_QUOTA" envDefault:"100"`
	SnowflakeNode  int64  `env:"SNOWFLAKE_NODE"    envDefault:"1"`

	ActivationSecret  string        `env:"ACTIVATION_TOKEN_SECRET,required,notEmpty"`
	ActivationBaseURL string        `env:"ACTIVATION_BASE_URL"  envDefault:"http://localhost:8431/confirm"`
	ActivationTTL     time.Duration `env:"ACTIVATION_TOKEN_TTL" envDefault:"72h"`

	RetryBackoff  time.Duration `env:"DIRECTORY_RETRY_BACKOFF"  envDefault:"10s"`
	RetryAttempts int           `env:"DIRECTORY_RETRY_ATTEMPTS" envDefault:"3"`

	MetricsTextfile string `env:"METRICS_TEXTFILE"`
}

// Load parses the environment into a Config and checks value ranges.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.UserQuota < 0 {
		return fmt.Errorf("TENANT_USER_QUOTA must not be negative, got %d", c.UserQuota)
	}
	if c.SnowflakeNode < 0 || c.SnowflakeNode > 1023 {
		return fmt.Errorf("SNOWFLAKE_NODE must be between 0 and 1023, got %d", c.SnowflakeNode)
	}
	if c.ActivationTTL <= 0 {
		return fmt.Errorf("ACTIVATION_TOKEN_TTL must be positive, got %s", c.ActivationTTL)
	}
	if c.RetryBackoff <= 0 {
		return fmt.Errorf("DIRECTORY_RETRY_BACKOFF must be positive, got %s", c.RetryBackoff)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("DIRECTORY_RETRY_ATTEMPTS must be at least 1, got %d", c.RetryAttempts)
	}
	return nil
}
