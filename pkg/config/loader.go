// pkg/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix    = "SLG_"
	configEnvVar = "CONFIG_PATH"
)

// Loader loads the bootstrap settings document from defaults, a YAML
// file, and environment variables, in that order of precedence.
type Loader struct {
	k           *koanf.Koanf
	configPaths []string
	envPrefix   string
}

// NewLoader creates a new config Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		k: koanf.New("."),
		configPaths: []string{
			"config.yaml",
			"config/config.yaml",
			"/etc/slgserver/config.yaml",
		},
		envPrefix: envPrefix,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithConfigPaths sets the list of paths searched for a config file.
func WithConfigPaths(paths ...string) LoaderOption {
	return func(l *Loader) {
		l.configPaths = paths
	}
}

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// Load loads the configuration with ascending precedence:
// 1. Defaults
// 2. Config file (yaml)
// 3. Environment variables (highest)
func (l *Loader) Load() (*Config, error) {
	if err := l.loadDefaults(); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := l.loadConfigFile(); err != nil {
		// the file is optional; fall back to defaults + env
		fmt.Printf("Warning: %v\n", err)
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadDefaults loads default values for every bootstrap setting.
func (l *Loader) loadDefaults() error {
	defaults := map[string]any{
		// App
		"app.name":        "slgserver",
		"app.version":     "1.0.0",
		"app.environment": "development",
		"app.debug":       false,

		// RPC
		"rpc.port":                50051,
		"rpc.max_frame_size":      1 * 1024 * 1024, // 1MB
		"rpc.max_concurrent_conn": 10000,
		"rpc.heartbeat_interval":  15 * time.Second,
		"rpc.tls.enabled":         false,

		// GM admin HTTP surface
		"web.port":                   8080,
		"web.read_timeout":           30 * time.Second,
		"web.write_timeout":          30 * time.Second,
		"web.shutdown_timeout":       10 * time.Second,
		"web.cors.enabled":           true,
		"web.cors.allowed_origins":   []string{"*"},
		"web.cors.allowed_methods":   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		"web.cors.allowed_headers":   []string{"*"},
		"web.cors.allow_credentials": false,
		"web.cors.max_age":           86400,

		// Log
		"log.level":       "info",
		"log.format":      "json",
		"log.output":      "stdout",
		"log.max_size":    100,
		"log.max_backups": 3,
		"log.max_age":     7,
		"log.compress":    true,

		// Metrics
		"metrics.enabled":   true,
		"metrics.port":      9090,
		"metrics.path":      "/metrics",
		"metrics.namespace": "slgserver",
		"metrics.subsystem": "",

		// Tracing
		"tracing.enabled":      false,
		"tracing.endpoint":     "localhost:4317",
		"tracing.service_name": "slgserver",
		"tracing.sample_rate":  0.1,

		// Registry (Redis-backed)
		"registry.addr":           "localhost:6379",
		"registry.db":             0,
		"registry.root":           "/slg",
		"registry.ttl":            15 * time.Second,
		"registry.renew_interval": 5 * time.Second,

		// Database
		"database.driver":             "postgres",
		"database.host":               "localhost",
		"database.port":               5432,
		"database.database":           "slgserver",
		"database.username":           "postgres",
		"database.password":           "",
		"database.ssl_mode":           "disable",
		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  5 * time.Minute,
		"database.conn_max_idle_time": 5 * time.Minute,

		// Cache (registry connection pool / read-through caches)
		"cache.enabled":     true,
		"cache.driver":      "redis",
		"cache.host":        "localhost",
		"cache.port":        6379,
		"cache.db":          0,
		"cache.default_ttl": 5 * time.Minute,
		"cache.max_entries": 10000,

		// Rate Limit
		"rate_limit.enabled":          true,
		"rate_limit.requests":         1000,
		"rate_limit.window":           time.Minute,
		"rate_limit.strategy":         "sliding_window",
		"rate_limit.backend":          "memory",
		"rate_limit.burst_size":       100,
		"rate_limit.cleanup_interval": 5 * time.Minute,

		// Audit
		"audit.enabled":      true,
		"audit.backend":      "stdout",
		"audit.buffer_size":  1000,
		"audit.flush_period": 5 * time.Second,

		// Retry (default policy)
		"retry.max_attempts":       3,
		"retry.initial_backoff":    100 * time.Millisecond,
		"retry.max_backoff":        5 * time.Second,
		"retry.backoff_multiplier": 2.0,

		// Land engine
		"land.flush_interval":       200 * time.Millisecond,
		"land.max_batch_size":       500,
		"land.min_batch_size":       10,
		"land.queue_capacity":       100000,
		"land.max_retries":          5,
		"land.retry_backoff":        500 * time.Millisecond,
		"land.shutdown_flush_wait":  10 * time.Second,

		// GameData engine
		"gamedata.tables_dir":     "configdata",
		"gamedata.watch_interval": 5 * time.Second,
		"gamedata.atomic_swap":    true,
	}

	return l.k.Load(confmap.Provider(defaults, "."), nil)
}

// loadConfigFile загружает конфигурацию из файла
func (l *Loader) loadConfigFile() error {
	// Сначала проверяем переменную окружения
	if configPath := os.Getenv(configEnvVar); configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return l.k.Load(file.Provider(configPath), yaml.Parser())
		}
	}

	// Ищем файл по списку путей
	for _, path := range l.configPaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}

		if _, err := os.Stat(absPath); err == nil {
			return l.k.Load(file.Provider(absPath), yaml.Parser())
		}
	}

	return fmt.Errorf("config file not found in paths: %v", l.configPaths)
}

// loadEnv loads configuration overrides from environment variables.
func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(l.envPrefix, ".", func(s string) string {
		// SLG_RPC_PORT -> rpc.port
		return strings.ReplaceAll(
			strings.ToLower(
				strings.TrimPrefix(s, l.envPrefix),
			),
			"_", ".",
		)
	}), nil)
}

// MustLoad loads the configuration or panics.
func MustLoad(opts ...LoaderOption) *Config {
	cfg, err := NewLoader(opts...).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Load loads the configuration with default settings.
func Load() (*Config, error) {
	return NewLoader().Load()
}

// LoadWithInstanceDefaults loads the configuration and, unless already
// overridden, applies the rpcPort/name defaults for a given module so a
// single config.yaml can seed every process in the fleet.
func LoadWithInstanceDefaults(module string, defaultRPCPort int) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	if cfg.RPC.Port == 50051 && defaultRPCPort != 0 {
		cfg.RPC.Port = defaultRPCPort
	}

	if cfg.App.Name == "slgserver" {
		cfg.App.Name = module
	}

	return cfg, nil
}
