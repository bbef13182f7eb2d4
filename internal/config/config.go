package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/flowdeck/flowdeck/internal/safefile"
)

// maxConfigSize caps config reads; a flowdeck config is a few KB at most.
const maxConfigSize = 1 << 20

// Config is the top-level flowdeck configuration.
type Config struct {
	Version   string          `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	Feed      FeedConfig      `yaml:"feed"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	History   HistoryConfig   `yaml:"history"`
}

// ServerConfig holds dashboard server settings.
type ServerConfig struct {
	Port              int    `yaml:"port"`
	Bind              string `yaml:"bind"` // Address to bind (default: 127.0.0.1)
	LogLevel          string `yaml:"log_level"`
	Tracing           bool   `yaml:"tracing,omitempty"`
	SessionTTLMinutes int    `yaml:"session_ttl_minutes"` // dashboard login lifetime
}

// FeedConfig points at the proxy's snapshot channel.
type FeedConfig struct {
	RedisAddr string `yaml:"redis_addr"`
	Channel   string `yaml:"channel"`
}

// DashboardConfig tunes the settings-page tab behavior.
type DashboardConfig struct {
	Tabs                []string `yaml:"tabs"`
	ActivationThreshold float64  `yaml:"activation_threshold"`
	QuietIntervalMs     int      `yaml:"quiet_interval_ms"`
}

// HistoryConfig configures snapshot persistence.
type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"` // auto-purge rows older than N days (0 = keep forever)
}

// DefaultTabs is the settings-page tab order.
var DefaultTabs = []string{"general", "backend", "proxies", "connections"}

// Load reads and parses a flowdeck config file.
func Load(path string) (*Config, error) {
	data, err := safefile.ReadFileMax(path, maxConfigSize)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Apply zero-value defaults after unmarshal
	if len(cfg.Dashboard.Tabs) == 0 {
		cfg.Dashboard.Tabs = append([]string(nil), DefaultTabs...)
	}
	if cfg.Dashboard.ActivationThreshold == 0 {
		cfg.Dashboard.ActivationThreshold = 0.3
	}
	if cfg.Dashboard.QuietIntervalMs == 0 {
		cfg.Dashboard.QuietIntervalMs = 100
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			Port:              8090,
			Bind:              "127.0.0.1",
			LogLevel:          "info",
			SessionTTLMinutes: 24 * 60,
		},
		Feed: FeedConfig{
			RedisAddr: "127.0.0.1:6379",
			Channel:   "proxy:connections",
		},
		Dashboard: DashboardConfig{
			Tabs:                append([]string(nil), DefaultTabs...),
			ActivationThreshold: 0.3,
			QuietIntervalMs:     100,
		},
		History: HistoryConfig{
			Path:          "flowdeck.db",
			RetentionDays: 7,
		},
	}
}

// Save writes the config to a YAML file at the given path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks that the config is consistent.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.SessionTTLMinutes < 0 {
		return fmt.Errorf("session_ttl_minutes must not be negative")
	}
	if c.Feed.RedisAddr == "" {
		return fmt.Errorf("feed redis_addr is required")
	}
	if c.Feed.Channel == "" {
		return fmt.Errorf("feed channel is required")
	}
	if c.Dashboard.ActivationThreshold <= 0 || c.Dashboard.ActivationThreshold > 1 {
		return fmt.Errorf("activation_threshold %v out of range (0, 1]", c.Dashboard.ActivationThreshold)
	}
	if c.Dashboard.QuietIntervalMs < 0 {
		return fmt.Errorf("quiet_interval_ms must not be negative")
	}
	if len(c.Dashboard.Tabs) == 0 {
		return fmt.Errorf("at least one dashboard tab is required")
	}
	seen := make(map[string]bool, len(c.Dashboard.Tabs))
	for _, tab := range c.Dashboard.Tabs {
		if tab == "" {
			return fmt.Errorf("dashboard tabs must not be empty strings")
		}
		if seen[tab] {
			return fmt.Errorf("duplicate dashboard tab %q", tab)
		}
		seen[tab] = true
	}
	if c.History.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative")
	}
	return nil
}
