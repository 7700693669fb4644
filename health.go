package ormkit

import (
	"context"
	"database/sql"
	"time"

	"github.com/fernandezvara/ormkit/dialect"
)

// HealthStatus is the health report of a DB: connectivity, the effective
// engine settings and pool statistics.
type HealthStatus struct {
	Healthy        bool          `json:"healthy"`
	Dialect        string        `json:"dialect"`
	Features       []string      `json:"features,omitempty"`
	Latency        time.Duration `json:"latency"`
	CommandTimeout time.Duration `json:"command_timeout,omitempty"`
	CachedModels   int           `json:"cached_models"`
	LastCommand    string        `json:"last_command,omitempty"`
	Error          string        `json:"error,omitempty"`
	PoolStats      PoolStats     `json:"pool_stats"`
}

// PoolStats mirrors sql.DBStats with JSON names.
type PoolStats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
	MaxIdleClosed      int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed  int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed  int64         `json:"max_lifetime_closed"`
}

// Health pings the database and reports the result together with the
// configuration the pipeline runs with. The ping is not a pipeline command,
// so it neither fires hooks nor replaces the last command text.
func (db *DB) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	err := db.Ping(ctx)

	status := HealthStatus{
		Healthy:        err == nil,
		Dialect:        db.provider.Name(),
		Features:       dialect.FeatureNames(db.provider),
		Latency:        time.Since(start),
		CommandTimeout: db.base.defaultTimeout,
		CachedModels:   db.models.Len(),
		LastCommand:    db.base.LastCommandText(),
		PoolStats:      PoolStatsFromSQL(db.Stats()),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

// IsHealthy reports whether the database answers a ping.
func (db *DB) IsHealthy(ctx context.Context) bool {
	return db.Ping(ctx) == nil
}

// PoolStatsFromSQL converts sql.DBStats to PoolStats.
func PoolStatsFromSQL(stats sql.DBStats) PoolStats {
	return PoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,
		MaxIdleClosed:      stats.MaxIdleClosed,
		MaxIdleTimeClosed:  stats.MaxIdleTimeClosed,
		MaxLifetimeClosed:  stats.MaxLifetimeClosed,
	}
}
