// Package config loads service configuration from yaml and environment
// variables, env taking effect where the file is silent.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Broadcast modes for cross-process propagation when a database is
// configured.
const (
	BroadcastNotify = "notify"
	BroadcastPoll   = "poll"
)

// AlarmConfig tunes the persistent alarm store.
type AlarmConfig struct {
	BucketMS int64 `yaml:"bucket_ms"`
	TTLHours int   `yaml:"ttl_hours"`
}

// TickerConfig tunes the stagger scheduler.
type TickerConfig struct {
	FadeMS         int64 `yaml:"fade_ms"`
	CooldownMS     int64 `yaml:"cooldown_ms"`
	StaggerMS      int64 `yaml:"stagger_ms"`
	SnapshotPollMS int64 `yaml:"snapshot_poll_ms"`
}

// RotatorConfig tunes the display rotators.
type RotatorConfig struct {
	IntervalMS int64 `yaml:"interval_ms"`
}

// Config defines the service configuration.
type Config struct {
	HTTPAddr    string        `yaml:"http_addr"`
	FeedURL     string        `yaml:"feed_url"`
	PostgresDSN string        `yaml:"postgres_dsn"`
	Broadcast   string        `yaml:"broadcast"`
	JWTSecret   string        `yaml:"jwt_secret"`
	Alarms      AlarmConfig   `yaml:"alarms"`
	Ticker      TickerConfig  `yaml:"ticker"`
	Rotator     RotatorConfig `yaml:"rotator"`
}

// Load loads config from yaml or env. The file named by TAGMON_CONFIG is
// applied over the defaults, env over the file.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:  ":8080",
		Broadcast: BroadcastNotify,
		Alarms: AlarmConfig{
			BucketMS: 10_000,
			TTLHours: 24,
		},
		Ticker: TickerConfig{
			FadeMS:         700,
			CooldownMS:     2800,
			StaggerMS:      1200,
			SnapshotPollMS: 1000,
		},
		Rotator: RotatorConfig{
			IntervalMS: 2500,
		},
	}

	if path := os.Getenv("TAGMON_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.HTTPAddr = getenvDefault("TAGMON_HTTP_ADDR", cfg.HTTPAddr)
	cfg.FeedURL = getenvDefault("TAGMON_FEED_URL", cfg.FeedURL)
	cfg.PostgresDSN = getenvDefault("TAGMON_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.Broadcast = getenvDefault("TAGMON_BROADCAST", cfg.Broadcast)
	cfg.JWTSecret = getenvDefault("TAGMON_JWT_SECRET", cfg.JWTSecret)
	cfg.Alarms.BucketMS = getenvInt64Default("TAGMON_ALARM_BUCKET_MS", cfg.Alarms.BucketMS)
	cfg.Ticker.StaggerMS = getenvInt64Default("TAGMON_TICKER_STAGGER_MS", cfg.Ticker.StaggerMS)

	if cfg.FeedURL == "" {
		return cfg, errors.New("config: feed url required")
	}
	if cfg.Broadcast != BroadcastNotify && cfg.Broadcast != BroadcastPoll {
		return cfg, fmt.Errorf("config: unknown broadcast mode %q", cfg.Broadcast)
	}
	return cfg, nil
}

// Bucket returns the alarm coalescing window.
func (c Config) Bucket() time.Duration {
	return time.Duration(c.Alarms.BucketMS) * time.Millisecond
}

// TTL returns the pending alarm retention window.
func (c Config) TTL() time.Duration {
	return time.Duration(c.Alarms.TTLHours) * time.Hour
}

// Fade returns the ticker transition lock window.
func (c Config) Fade() time.Duration {
	return time.Duration(c.Ticker.FadeMS) * time.Millisecond
}

// Cooldown returns the ticker repeat cooldown.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.Ticker.CooldownMS) * time.Millisecond
}

// Stagger returns the per-item ticker spacing.
func (c Config) Stagger() time.Duration {
	return time.Duration(c.Ticker.StaggerMS) * time.Millisecond
}

// SnapshotPoll returns the storage-fallback poll interval.
func (c Config) SnapshotPoll() time.Duration {
	return time.Duration(c.Ticker.SnapshotPollMS) * time.Millisecond
}

// RotateInterval returns the rotator cycle interval.
func (c Config) RotateInterval() time.Duration {
	return time.Duration(c.Rotator.IntervalMS) * time.Millisecond
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt64Default(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
