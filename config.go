package ormkit

import (
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/fernandezvara/ormkit/hooks"
	"github.com/fernandezvara/ormkit/naming"
)

// Config holds database configuration. It is copied into the DB by New and
// never changed afterwards.
type Config struct {
	// Connection
	Dialect string `yaml:"dialect"` // postgres, sqlite or mysql (default: postgres)
	URL     string `yaml:"url"`     // Driver connection string (required)

	// Pool settings
	MaxOpenConns    int           `yaml:"max_open_conns"`     // Max open connections (default: 25)
	MaxIdleConns    int           `yaml:"max_idle_conns"`     // Max idle connections (default: 5)
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`  // Max connection lifetime (default: 5m)
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"` // Max idle time (default: 1m)

	// Timeouts
	DialTimeout    time.Duration `yaml:"dial_timeout"`    // Connection dial timeout (default: 5s)
	ReadTimeout    time.Duration `yaml:"read_timeout"`    // Read timeout (default: 30s)
	WriteTimeout   time.Duration `yaml:"write_timeout"`   // Write timeout (default: 30s)
	CommandTimeout time.Duration `yaml:"command_timeout"` // Per-command timeout (0 = none)

	// Mapping
	Naming     string   `yaml:"naming"`     // Naming strategy name, see naming.ByName
	Serializer string   `yaml:"serializer"` // json or msgpack for unmapped types
	WatchPaths []string `yaml:"watch"`      // Files that invalidate the model cache

	// NamingStrategy overrides Naming when set.
	NamingStrategy naming.Strategy `yaml:"-"`

	// Observability (all optional)
	Logger          *slog.Logger          `yaml:"-"`                // Structured logger
	LogQueries      bool                  `yaml:"log_queries"`      // Log all commands
	LogSlowQueries  time.Duration         `yaml:"log_slow_queries"` // Log commands slower than this (0 = disabled)
	MetricsRegistry prometheus.Registerer `yaml:"-"`                // Prometheus registry for metrics
	Tracer          trace.Tracer          `yaml:"-"`                // OpenTelemetry tracer
	Hooks           []hooks.Hook          `yaml:"-"`                // Extra command hooks
}

// DefaultConfig returns sensible defaults
func DefaultConfig(dialect, url string) Config {
	return Config{
		Dialect:         dialect,
		URL:             url,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
	}
}

// LoadConfig reads a YAML configuration file. Environment variables in the
// file are expanded before decoding and unset fields keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &Error{Code: CodeConfiguration, Op: "LoadConfig", Message: "cannot read config file", Cause: err}
	}
	cfg := DefaultConfig("", "")
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return Config{}, &Error{Code: CodeConfiguration, Op: "LoadConfig", Message: "invalid config file", Cause: err}
	}
	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills in zero values with defaults
func (c *Config) applyDefaults() {
	if c.Dialect == "" {
		c.Dialect = "postgres"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 1 * time.Minute
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
}

func (c *Config) namingStrategy() (naming.Strategy, error) {
	if c.NamingStrategy != nil {
		return c.NamingStrategy, nil
	}
	s, err := naming.ByName(c.Naming)
	if err != nil {
		return nil, &Error{Code: CodeConfiguration, Op: "New", Message: err.Error(), Cause: err}
	}
	return s, nil
}

// WithLogger enables command logging
func (c Config) WithLogger(logger *slog.Logger) Config {
	c.Logger = logger
	c.LogQueries = true
	return c
}

// WithSlowQueryLog logs commands slower than the threshold
func (c Config) WithSlowQueryLog(threshold time.Duration) Config {
	c.LogSlowQueries = threshold
	return c
}

// WithMetrics enables Prometheus metrics
func (c Config) WithMetrics(registry prometheus.Registerer) Config {
	c.MetricsRegistry = registry
	return c
}

// WithTracing enables OpenTelemetry tracing
func (c Config) WithTracing(tracer trace.Tracer) Config {
	c.Tracer = tracer
	return c
}

// WithHooks appends command hooks
func (c Config) WithHooks(h ...hooks.Hook) Config {
	c.Hooks = append(append([]hooks.Hook(nil), c.Hooks...), h...)
	return c
}

// WithCommandTimeout sets the default per-command timeout
func (c Config) WithCommandTimeout(d time.Duration) Config {
	c.CommandTimeout = d
	return c
}

// WithNaming sets the naming strategy
func (c Config) WithNaming(s naming.Strategy) Config {
	c.NamingStrategy = s
	return c
}
