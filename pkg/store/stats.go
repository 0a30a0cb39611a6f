package store

import (
	"context"
	"time"

	"github.com/StricklySoft/stricklysoft-execution/pkg/execution"
)

// Store is the monitoring surface shared by the in-memory and Redis
// backends. Record methods never return errors: monitoring failures are
// logged and swallowed so that the execution path is never broken by the
// store. Query methods return best-effort snapshots.
//
// The store must never be consulted for execution-routing decisions; it
// is observational only.
type Store interface {
	// RecordStart records that an execution began. Safe under
	// concurrent callers; internal failures are logged, never raised.
	RecordStart(ctx context.Context, executionID string, userCtx execution.UserContext, agentName string, metadata map[string]any)

	// RecordComplete records that a previously started execution
	// finished. A completion for an unknown execution ID logs a warning
	// and leaves all counters unchanged.
	RecordComplete(ctx context.Context, executionID string, result execution.Result)

	// UserStats returns a snapshot of one user's aggregate statistics,
	// or ok=false if the user has never been recorded.
	UserStats(ctx context.Context, userID string) (UserStatsSnapshot, bool)

	// GlobalStats returns a snapshot of system-wide statistics with all
	// derived fields computed at read time.
	GlobalStats(ctx context.Context) GlobalStats

	// Health derives a 0-100 health score with a status label and
	// human-readable recommendations from the current global statistics.
	Health(ctx context.Context) HealthReport

	// Shutdown stops background work and releases state. It is
	// idempotent and safe to call on a store that was never used.
	Shutdown(ctx context.Context) error
}

// Archiver receives execution records as they are evicted from the store
// so they can be written to durable audit storage. Archival is
// best-effort: a failing archiver is logged and never blocks or fails
// eviction.
//
// See the archive package for the Postgres implementation.
type Archiver interface {
	ArchiveRecords(ctx context.Context, records []*execution.Record) error
}

// UserStatsSnapshot is a point-in-time copy of one user's aggregate
// execution statistics. All derived fields are computed at snapshot
// time; the snapshot never changes after it is returned.
type UserStatsSnapshot struct {
	// UserID identifies the user.
	UserID string `json:"user_id"`

	// TotalExecutions is the number of executions started by this user.
	TotalExecutions int64 `json:"total_executions"`

	// SuccessfulExecutions is the number of completed executions that
	// succeeded.
	SuccessfulExecutions int64 `json:"successful_executions"`

	// FailedExecutions is the number of completed executions that
	// failed.
	FailedExecutions int64 `json:"failed_executions"`

	// SuccessRate is SuccessfulExecutions / max(TotalExecutions, 1).
	SuccessRate float64 `json:"success_rate"`

	// AvgExecutionTime is the mean duration over this user's completed
	// executions, zero if none completed.
	AvgExecutionTime time.Duration `json:"avg_execution_time"`

	// ConcurrentExecutions is the number of this user's executions
	// currently in flight.
	ConcurrentExecutions int `json:"concurrent_executions"`

	// LastExecutionTime is the completion time of the most recent
	// execution, zero if none completed yet.
	LastExecutionTime time.Time `json:"last_execution_time,omitzero"`

	// FirstSeen is when the store first observed this user.
	FirstSeen time.Time `json:"first_seen"`
}

// GlobalStats is a point-in-time snapshot of system-wide execution
// statistics with derived fields computed on read.
type GlobalStats struct {
	// TotalExecutions is the number of executions started since the
	// store was created.
	TotalExecutions int64 `json:"total_executions"`

	// SuccessfulExecutions is the number of completed executions that
	// succeeded.
	SuccessfulExecutions int64 `json:"successful_executions"`

	// FailedExecutions is the number of completed executions that
	// failed.
	FailedExecutions int64 `json:"failed_executions"`

	// SuccessRate is SuccessfulExecutions / max(TotalExecutions, 1).
	SuccessRate float64 `json:"success_rate"`

	// ConcurrentExecutions is the number of executions currently in
	// flight across all users.
	ConcurrentExecutions int `json:"concurrent_executions"`

	// PeakConcurrentExecutions is the high-water mark of
	// ConcurrentExecutions since the store was created.
	PeakConcurrentExecutions int `json:"peak_concurrent_executions"`

	// AvgExecutionTime is the mean duration over all completed
	// executions, zero if none completed.
	AvgExecutionTime time.Duration `json:"avg_execution_time"`

	// ExecutionsPerMinute is the number of completions observed in the
	// last 60 seconds of the recent-activity window.
	ExecutionsPerMinute int `json:"executions_per_minute"`

	// ActiveUsers is the number of users with at least one execution
	// currently in flight.
	ActiveUsers int `json:"active_users"`

	// TotalUsersSeen is the number of users currently tracked by the
	// store (bounded; LRU-evicted users are no longer counted).
	TotalUsersSeen int `json:"total_users_seen"`

	// UptimeSeconds is the elapsed time since the store was created.
	UptimeSeconds float64 `json:"uptime_seconds"`

	// Memory reports how full the store's bounded structures are.
	Memory MemoryUsage `json:"memory_usage"`
}

// MemoryUsage reports the occupancy of the store's bounded in-memory
// structures. For [RedisStore], record and window counts reflect Redis
// key cardinalities rather than process memory.
type MemoryUsage struct {
	// RecordCount is the number of execution records currently held.
	RecordCount int `json:"record_count"`

	// MaxRecords is the configured record bound.
	MaxRecords int `json:"max_records"`

	// UserCount is the number of users currently tracked.
	UserCount int `json:"user_count"`

	// RecentWindowSize is the number of entries in the recent-activity
	// window.
	RecentWindowSize int `json:"recent_window_size"`
}
