// pkg/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the bootstrap settings document shared by every instance in
// the fleet. It is not game data — game data lives in the hot-reloadable
// XML tables managed by pkg/gamedata.
type Config struct {
	App       AppConfig       `koanf:"app"`
	Host      string          `koanf:"host"`
	RPC       RPCConfig       `koanf:"rpc"`
	WebHTTP   HTTPConfig      `koanf:"web"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Tracing   TracingConfig   `koanf:"tracing"`
	Registry  RegistryConfig  `koanf:"registry"`
	Database  DatabaseConfig  `koanf:"database"`
	Cache     CacheConfig     `koanf:"cache"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Audit     AuditConfig     `koanf:"audit"`
	Retry     RetryConfig     `koanf:"retry"`
	Land      LandConfig      `koanf:"land"`
	GameData  GameDataConfig  `koanf:"gamedata"`
	Instances []InstanceSpec  `koanf:"instances"`
}

// AppConfig holds settings shared by every process in the fleet.
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
	Debug       bool   `koanf:"debug"`
}

// RPCConfig configures the custom wire-protocol RPC listener.
type RPCConfig struct {
	Port              int           `koanf:"port"`
	MaxFrameSize      int           `koanf:"max_frame_size"` // bytes
	MaxConcurrentConn int           `koanf:"max_concurrent_conn"`
	HeartbeatInterval time.Duration `koanf:"heartbeat_interval"`
	TLS               TLSConfig     `koanf:"tls"`
}

// TLSConfig configures transport TLS, if enabled.
type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
	CAFile   string `koanf:"ca_file"`
}

// HTTPConfig configures the GM admin HTTP surface.
type HTTPConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORS            CORSConfig    `koanf:"cors"`
}

// CORSConfig configures cross-origin access to the GM HTTP surface.
type CORSConfig struct {
	Enabled          bool     `koanf:"enabled"`
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level      string `koanf:"level"`  // debug, info, warn, error
	Format     string `koanf:"format"` // json, text
	Output     string `koanf:"output"` // stdout, stderr, file
	FilePath   string `koanf:"file_path"`
	MaxSize    int  `koanf:"max_size"`    // MB
	MaxBackups int  `koanf:"max_backups"`
	MaxAge     int  `koanf:"max_age"` // days
	Compress   bool `koanf:"compress"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Port      int    `koanf:"port"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// RegistryConfig configures the Redis-backed service registry/discovery
// substrate.
type RegistryConfig struct {
	Addr          string        `koanf:"addr"`
	Password      string        `koanf:"password"`
	DB            int           `koanf:"db"`
	Root          string        `koanf:"root"`           // registry key namespace, e.g. "/slg"
	TTL           time.Duration `koanf:"ttl"`             // liveness TTL per registration
	RenewInterval time.Duration `koanf:"renew_interval"`  // how often a held registration refreshes its TTL
}

// Address returns host:port for the registry's Redis connection.
func (r RegistryConfig) Address() string {
	return r.Addr
}

// InstanceSpec describes one process in the fleet's bootstrap instance
// list — which module it runs, its server id, and its listener ports.
type InstanceSpec struct {
	Module   string         `koanf:"module"`
	ServerID int64          `koanf:"serverId"`
	RPCPort  int            `koanf:"rpcPort"`
	WebPort  int            `koanf:"webPort"`
	Extra    map[string]any `koanf:"extra"`
}

// DatabaseConfig configures the pgx-backed SQL executor.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"` // postgres
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Database        string        `koanf:"database"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
}

// DSN returns the driver-specific connection string.
func (d DatabaseConfig) DSN() string {
	switch strings.ToLower(d.Driver) {
	case "postgres", "postgresql":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode,
		)
	default:
		return ""
	}
}

// CacheConfig configures the Redis connection shared by the registry and
// any read-through caches.
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"` // redis, memory
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
	MaxEntries int           `koanf:"max_entries"` // for the in-memory driver
}

// Address returns host:port for the cache connection.
func (c CacheConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig configures the RPC server's rate limiting interceptor.
type RateLimitConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Requests        int           `koanf:"requests"`
	Window          time.Duration `koanf:"window"`
	Strategy        string        `koanf:"strategy"`
	Backend         string        `koanf:"backend"`
	BurstSize       int           `koanf:"burst_size"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	RedisAddr       string        `koanf:"redis_addr"`
}

// AuditConfig configures the audit log sink.
type AuditConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Backend         string        `koanf:"backend"`
	FilePath        string        `koanf:"file_path"`
	BufferSize      int           `koanf:"buffer_size"`
	FlushPeriod     time.Duration `koanf:"flush_period"`
	ExcludeMethods  []string      `koanf:"exclude_methods"`
	IncludeRequest  bool          `koanf:"include_request"`
	IncludeResponse bool          `koanf:"include_response"`
}

// RetryConfig configures the RPC client's default retry policy.
type RetryConfig struct {
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
}

// LandConfig configures the async write-back entity engine.
type LandConfig struct {
	FlushInterval     time.Duration `koanf:"flush_interval"`
	MaxBatchSize      int           `koanf:"max_batch_size"`
	MinBatchSize      int           `koanf:"min_batch_size"`
	QueueCapacity     int           `koanf:"queue_capacity"`
	MaxRetries        int           `koanf:"max_retries"`
	RetryBackoff      time.Duration `koanf:"retry_backoff"`
	ShutdownFlushWait time.Duration `koanf:"shutdown_flush_wait"`
}

// GameDataConfig configures the hot-reloadable XML config engine
// engine.
type GameDataConfig struct {
	TablesDir     string        `koanf:"tables_dir"`
	WatchInterval time.Duration `koanf:"watch_interval"`
	AtomicSwap    bool          `koanf:"atomic_swap"`
}

// Validate checks the loaded configuration for internal consistency.
func (c *Config) Validate() error {
	var errs []string

	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	if c.RPC.Port != 0 && (c.RPC.Port <= 0 || c.RPC.Port > 65535) {
		errs = append(errs, fmt.Sprintf("rpc.port must be between 1 and 65535, got %d", c.RPC.Port))
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	if c.Registry.Root == "" {
		errs = append(errs, "registry.root is required")
	}

	seen := make(map[string]bool, len(c.Instances))
	for _, inst := range c.Instances {
		if inst.Module == "" {
			errs = append(errs, "instances[].module is required")
			continue
		}
		key := fmt.Sprintf("%s/%d", inst.Module, inst.ServerID)
		if seen[key] {
			errs = append(errs, fmt.Sprintf("duplicate instance spec for %s", key))
		}
		seen[key] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsDevelopment reports whether the environment is development.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}

// IsProduction reports whether the environment is production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production" || c.App.Environment == "prod"
}
