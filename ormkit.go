package ormkit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	_ "modernc.org/sqlite"

	"github.com/fernandezvara/ormkit/convert"
	"github.com/fernandezvara/ormkit/dialect"
	"github.com/fernandezvara/ormkit/hooks"
	"github.com/fernandezvara/ormkit/meta"
)

// DB is a connection pool with its dialect provider, model registry and
// diagnostics hooks.
type DB struct {
	sqlDB    *sql.DB
	bun      *bun.DB
	provider dialect.Provider
	models   *meta.Registry
	config   Config
	base     *Conn
}

// New creates a new database connection with the given configuration
func New(cfg Config) (*DB, error) {
	// Apply defaults for zero values
	cfg.applyDefaults()

	if cfg.URL == "" {
		return nil, &Error{
			Code:    CodeConfiguration,
			Message: "database URL is required",
			Op:      "New",
		}
	}

	provider, err := dialect.Get(cfg.Dialect)
	if err != nil {
		return nil, &Error{Code: CodeConfiguration, Op: "New", Message: err.Error(), Cause: err}
	}

	sqlDB, err := openPool(provider.Name(), cfg)
	if err != nil {
		return nil, err
	}

	db, err := build(sqlDB, provider, cfg)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, &Error{
			Code:    CodeConnectionFailed,
			Message: "failed to connect to database",
			Op:      "New",
			Cause:   err,
		}
	}

	return db, nil
}

// Open wraps an existing pool. The pool settings of cfg are not applied and
// the connection is not verified.
func Open(sqlDB *sql.DB, cfg Config) (*DB, error) {
	cfg.applyDefaults()
	provider, err := dialect.Get(cfg.Dialect)
	if err != nil {
		return nil, &Error{Code: CodeConfiguration, Op: "Open", Message: err.Error(), Cause: err}
	}
	return build(sqlDB, provider, cfg)
}

// openPool creates the driver pool for the dialect.
func openPool(name string, cfg Config) (*sql.DB, error) {
	var sqlDB *sql.DB
	switch name {
	case "postgres":
		// Create pgdriver connector with timeouts
		connector := pgdriver.NewConnector(
			pgdriver.WithDSN(cfg.URL),
			pgdriver.WithDialTimeout(cfg.DialTimeout),
			pgdriver.WithReadTimeout(cfg.ReadTimeout),
			pgdriver.WithWriteTimeout(cfg.WriteTimeout),
		)
		sqlDB = sql.OpenDB(connector)
	case "mysql":
		mcfg, err := mysql.ParseDSN(cfg.URL)
		if err != nil {
			return nil, &Error{Code: CodeConfiguration, Op: "New", Message: "invalid mysql DSN", Cause: err}
		}
		mcfg.Timeout = cfg.DialTimeout
		mcfg.ReadTimeout = cfg.ReadTimeout
		mcfg.WriteTimeout = cfg.WriteTimeout
		mcfg.ParseTime = true
		connector, err := mysql.NewConnector(mcfg)
		if err != nil {
			return nil, &Error{Code: CodeConfiguration, Op: "New", Message: "invalid mysql DSN", Cause: err}
		}
		sqlDB = sql.OpenDB(connector)
	case "sqlite":
		var err error
		sqlDB, err = sql.Open("sqlite", cfg.URL)
		if err != nil {
			return nil, &Error{Code: CodeConfiguration, Op: "New", Message: "invalid sqlite URL", Cause: err}
		}
		// every connection to :memory: is a separate database
		if strings.Contains(cfg.URL, ":memory:") {
			cfg.MaxOpenConns = 1
			cfg.MaxIdleConns = 1
			cfg.ConnMaxLifetime = 0
			cfg.ConnMaxIdleTime = 0
		}
	default:
		return nil, &Error{Code: CodeConfiguration, Op: "New", Message: fmt.Sprintf("no driver for dialect %q", name)}
	}

	// Configure pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return sqlDB, nil
}

func build(sqlDB *sql.DB, provider dialect.Provider, cfg Config) (*DB, error) {
	strategy, err := cfg.namingStrategy()
	if err != nil {
		return nil, err
	}
	provider.SetNaming(strategy)
	if cfg.Serializer != "" {
		s, err := convert.SerializerByName(cfg.Serializer)
		if err != nil {
			return nil, &Error{Code: CodeConfiguration, Op: "New", Message: err.Error(), Cause: err}
		}
		provider.Converters().Env().Serializer = s
	}

	// Create bun.DB
	bunDB := bun.NewDB(sqlDB, provider.Bun())

	chain, err := buildHooks(bunDB, cfg)
	if err != nil {
		return nil, err
	}

	models := meta.NewRegistry(meta.WithNaming(strategy))
	db := &DB{
		sqlDB:    sqlDB,
		bun:      bunDB,
		provider: provider,
		models:   models,
		config:   cfg,
	}
	db.base = NewConn(sqlDB, provider, models, chain...)
	db.base.owner = db
	db.base.defaultTimeout = cfg.CommandTimeout
	return db, nil
}

// buildHooks creates the observability hooks. The built-in ones are also
// installed as bun query hooks.
func buildHooks(bunDB *bun.DB, cfg Config) ([]hooks.Hook, error) {
	var chain []hooks.Hook
	add := func(h interface {
		hooks.Hook
		bun.QueryHook
	}) {
		chain = append(chain, h)
		bunDB.AddQueryHook(h)
	}

	// Add observability hooks
	if cfg.Logger != nil && (cfg.LogQueries || cfg.LogSlowQueries > 0) {
		add(hooks.NewLoggerHook(cfg.Logger, cfg.LogQueries, cfg.LogSlowQueries))
	}
	if cfg.MetricsRegistry != nil {
		hook, err := hooks.NewMetricsHook(cfg.MetricsRegistry)
		if err != nil {
			return nil, fmt.Errorf("ormkit: failed to create metrics hook: %w", err)
		}
		add(hook)
	}
	if cfg.Tracer != nil {
		add(hooks.NewTracingHook(cfg.Tracer))
	}
	return append(chain, cfg.Hooks...), nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.sqlDB.Close()
}

// Ping verifies the database connection is alive
func (db *DB) Ping(ctx context.Context) error {
	if err := db.sqlDB.PingContext(ctx); err != nil {
		return wrapError(err, "Ping")
	}
	return nil
}

// Stats returns connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.sqlDB.Stats()
}

// Bun returns the underlying bun.DB for direct access
func (db *DB) Bun() *bun.DB {
	return db.bun
}

// SQL returns the underlying pool.
func (db *DB) SQL() *sql.DB {
	return db.sqlDB
}

// Config returns the current configuration
func (db *DB) Config() Config {
	return db.config
}

// Provider returns the dialect provider.
func (db *DB) Provider() dialect.Provider {
	return db.provider
}

// Models returns the model registry.
func (db *DB) Models() *meta.Registry {
	return db.models
}

// Conn returns the pool-level connection. It implements Source.
func (db *DB) Conn() *Conn {
	return db.base
}

// Exec runs a non-query statement and returns the number of affected rows.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return db.base.Exec(ctx, query, args...)
}

// Exec runs a non-query statement inside the transaction.
func (tx *Tx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return tx.conn.Exec(ctx, query, args...)
}

// Watch clears the model cache whenever one of the configured watch paths
// changes. It blocks until ctx is done; without watch paths it returns nil
// at once.
func (db *DB) Watch(ctx context.Context) error {
	if len(db.config.WatchPaths) == 0 {
		return nil
	}
	return meta.Watch(ctx, db.models, db.config.Logger, db.config.WatchPaths...)
}

// Ensure DB, Tx and Conn implement Source
var (
	_ Source = (*DB)(nil)
	_ Source = (*Tx)(nil)
	_ Source = (*Conn)(nil)
)
