// Package config loads process configuration from the environment, after
// reading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type Config struct {
	DiscordToken   string   `env:"DISCORD_TOKEN"`
	GuildBlacklist []string `env:"DISCORD_GUILD_BLACKLIST" envSeparator:","`

	CommandPrefix  string `env:"COMMAND_PREFIX" envDefault:"!"`
	StoragePath    string `env:"STORAGE_PATH" envDefault:"data/datastore.json"`
	PluginManifest string `env:"PLUGIN_MANIFEST" envDefault:"plugins.yaml"`

	CacheDefaultTTL    time.Duration `env:"CACHE_DEFAULT_TTL" envDefault:"5m"`
	CacheSweepInterval time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"30s"`

	AlertLimit     int    `env:"ALERT_LIMIT" envDefault:"500"`
	AlertChannelID string `env:"ALERT_CHANNEL_ID"`

	MetricsInterval time.Duration `env:"METRICS_INTERVAL" envDefault:"15s"`
	MetricsHistory  int           `env:"METRICS_HISTORY" envDefault:"240"`

	Workers   int `env:"WORKERS" envDefault:"16"`
	QueueSize int `env:"QUEUE_SIZE" envDefault:"256"`

	AdminAddr string `env:"ADMIN_ADDR" envDefault:":8787"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	DeveloperID string `env:"DEVELOPER_ID"`
}

// Load reads .env files (missing files are fine) and parses the environment.
func Load(files ...string) (*Config, error) {
	// godotenv.Load never overrides variables already set.
	_ = godotenv.Load(files...)
	return Parse()
}

// Parse reads the environment without touching .env files.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// Validate checks settings every binary relies on.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("WORKERS must be at least 1, got %d", c.Workers))
	}
	if c.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("QUEUE_SIZE must not be negative, got %d", c.QueueSize))
	}
	if c.AlertLimit < 1 {
		errs = append(errs, fmt.Errorf("ALERT_LIMIT must be at least 1, got %d", c.AlertLimit))
	}
	if c.MetricsHistory < 1 {
		errs = append(errs, fmt.Errorf("METRICS_HISTORY must be at least 1, got %d", c.MetricsHistory))
	}
	if c.CacheSweepInterval <= 0 {
		errs = append(errs, errors.New("CACHE_SWEEP_INTERVAL must be positive"))
	}
	if c.MetricsInterval <= 0 {
		errs = append(errs, errors.New("METRICS_INTERVAL must be positive"))
	}
	if c.StoragePath == "" {
		errs = append(errs, errors.New("STORAGE_PATH is empty"))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	return errors.Join(errs...)
}

// ValidateDiscord additionally requires the bot token.
func (c *Config) ValidateDiscord() error {
	err := c.Validate()
	if c.DiscordToken == "" {
		err = errors.Join(err, errors.New("DISCORD_TOKEN is not set"))
	}
	return err
}
