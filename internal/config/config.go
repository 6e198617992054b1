// Package config loads and validates runtime settings. Defaults are
// overridden by EXAMHUB_-prefixed environment variables via viper, so a
// container deployment configures everything without a file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	HTTP      HTTPConfig
	Store     StoreConfig
	Hub       HubConfig
	Audit     AuditConfig
	Violation ViolationConfig
	Catalog   CatalogConfig
	LogLevel  string
}

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// StoreConfig selects the session store backend. The in-memory store
// serves single-instance deployments and tests; redis is required when
// more than one orchestrator instance shares sessions.
type StoreConfig struct {
	Type       string // "inmemory" or "redis"
	RedisURL   string
	TxRetries  int
	SessionTTL time.Duration
}

type HubConfig struct {
	TimerSyncInterval time.Duration
	CommandBuffer     int
}

type AuditConfig struct {
	Driver string // "sqlite" or "none"
	Path   string
}

type ViolationConfig struct {
	// AlertsPerMinute caps alert fan-out per student; 0 means unlimited.
	AlertsPerMinute int
}

type CatalogConfig struct {
	// FixturePath points at a JSON file of exam metadata. Empty means an
	// empty catalog, populated at runtime through SetExam.
	FixturePath string
}

const envPrefix = "EXAMHUB"

// Load builds the configuration from defaults and the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("store.type", "inmemory")
	v.SetDefault("store.redis_url", "redis://localhost:6379")
	v.SetDefault("store.tx_retries", 5)
	v.SetDefault("store.session_ttl", 24*time.Hour)
	v.SetDefault("hub.timer_sync_interval", 15*time.Second)
	v.SetDefault("hub.command_buffer", 1000)
	v.SetDefault("audit.driver", "sqlite")
	v.SetDefault("audit.path", "./examhub.db")
	v.SetDefault("violation.alerts_per_minute", 0)
	v.SetDefault("catalog.fixture_path", "")
	v.SetDefault("log_level", "info")

	cfg := &Config{
		HTTP: HTTPConfig{
			Host:         v.GetString("http.host"),
			Port:         v.GetInt("http.port"),
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
		},
		Store: StoreConfig{
			Type:       v.GetString("store.type"),
			RedisURL:   v.GetString("store.redis_url"),
			TxRetries:  v.GetInt("store.tx_retries"),
			SessionTTL: v.GetDuration("store.session_ttl"),
		},
		Hub: HubConfig{
			TimerSyncInterval: v.GetDuration("hub.timer_sync_interval"),
			CommandBuffer:     v.GetInt("hub.command_buffer"),
		},
		Audit: AuditConfig{
			Driver: v.GetString("audit.driver"),
			Path:   v.GetString("audit.path"),
		},
		Violation: ViolationConfig{
			AlertsPerMinute: v.GetInt("violation.alerts_per_minute"),
		},
		Catalog: CatalogConfig{
			FixturePath: v.GetString("catalog.fixture_path"),
		},
		LogLevel: v.GetString("log_level"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("http host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http timeouts must be positive")
	}

	switch c.Store.Type {
	case "inmemory":
	case "redis":
		if c.Store.RedisURL == "" {
			return fmt.Errorf("redis store requires a redis URL")
		}
	default:
		return fmt.Errorf("unknown store type %q: must be 'inmemory' or 'redis'", c.Store.Type)
	}
	if c.Store.TxRetries <= 0 {
		return fmt.Errorf("store tx retries must be positive")
	}
	if c.Store.SessionTTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}

	if c.Hub.TimerSyncInterval <= 0 {
		return fmt.Errorf("timer sync interval must be positive")
	}
	if c.Hub.CommandBuffer <= 0 {
		return fmt.Errorf("command buffer size must be positive")
	}

	switch c.Audit.Driver {
	case "sqlite":
		if c.Audit.Path == "" {
			return fmt.Errorf("sqlite audit driver requires a path")
		}
	case "none":
	default:
		return fmt.Errorf("unknown audit driver %q: must be 'sqlite' or 'none'", c.Audit.Driver)
	}

	if c.Violation.AlertsPerMinute < 0 {
		return fmt.Errorf("alerts per minute cannot be negative")
	}

	return nil
}
