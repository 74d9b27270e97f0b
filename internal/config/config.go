// Package config loads session settings from SPAWN_MESH_* environment
// variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/rcliao/spawn-mesh/internal/reward"
)

// Config controls the event store, the feed, the wallet and the bot.
type Config struct {
	DBPath       string        `env:"SPAWN_MESH_DB"`
	AppID        string        `env:"SPAWN_MESH_APP_ID"         envDefault:"spawn-mesh"`
	FeedLimit    int           `env:"SPAWN_MESH_FEED_LIMIT"     envDefault:"30"`
	InventoryCap int           `env:"SPAWN_MESH_INVENTORY_CAP"  envDefault:"0"`
	PollInterval time.Duration `env:"SPAWN_MESH_POLL_INTERVAL"  envDefault:"1s"`
	RewardTable  string        `env:"SPAWN_MESH_REWARD_TABLE"`
	BotEnabled   bool          `env:"SPAWN_MESH_BOT_ENABLED"    envDefault:"true"`
	BotInterval  time.Duration `env:"SPAWN_MESH_BOT_INTERVAL"   envDefault:"8s"`
	BotThreshold float64       `env:"SPAWN_MESH_BOT_THRESHOLD"  envDefault:"0.95"`
	LogLevel     string        `env:"SPAWN_MESH_LOG_LEVEL"      envDefault:"warn"`
}

// Load parses the environment and fills derived defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DBPath == "" {
		home, _ := os.UserHomeDir()
		cfg.DBPath = filepath.Join(home, ".spawn-mesh", "mesh.db")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the session cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.AppID) == "" {
		return fmt.Errorf("app id is required")
	}
	if c.FeedLimit <= 0 {
		return fmt.Errorf("feed limit must be positive, got %d", c.FeedLimit)
	}
	if c.BotInterval <= 0 {
		return fmt.Errorf("bot interval must be positive, got %s", c.BotInterval)
	}
	if c.BotThreshold <= 0 || c.BotThreshold >= 1 {
		return fmt.Errorf("bot threshold must be in (0,1), got %v", c.BotThreshold)
	}
	return nil
}

// Table returns the configured reward table, or the default one.
func (c Config) Table() (reward.Table, error) {
	if c.RewardTable == "" {
		return reward.DefaultTable, nil
	}
	return reward.LoadTable(c.RewardTable)
}

// Level maps LogLevel to a slog level. Unknown values fall back to warn.
func (c Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelWarn
	}
	return lvl
}
