// Package store provides cross-user execution monitoring for the
// StricklySoft execution platform: recording execution start and
// completion events, aggregating per-user and system-wide statistics,
// and deriving a system health score.
//
// # Monitoring Only
//
// The store is strictly observational. Nothing in the execution path may
// consult it to make routing or correctness decisions, and no store
// failure may break a caller: all record and query methods degrade to
// "stale but non-crashing" by logging internal errors instead of
// propagating them.
//
// # Backends
//
// [MemoryStore] is the canonical single-process implementation with
// bounded memory: a capped record map with age-based eviction, an LRU
// bound on tracked users, and a bounded recent-activity window for rate
// calculation. [RedisStore] provides the same surface backed by Redis
// for multi-replica deployments, delegating record expiry to Redis TTLs.
//
// # Bounds
//
// All bounds are configuration, not hardcoded values. See [Config] and
// the Default* constants for the representative defaults.
package store

import (
	"time"

	sserr "github.com/StricklySoft/stricklysoft-execution/pkg/errors"
)

// Default bounds and intervals for the execution state store. These
// values are tuned for a single-replica deployment of the StricklySoft
// execution backend; override them via [Config] for larger installations.
const (
	// DefaultMaxRecords is the maximum number of execution records held
	// in memory. When the bound is reached, the oldest records are
	// evicted to make room for new ones.
	DefaultMaxRecords = 10000

	// DefaultMaxUsers is the maximum number of users tracked in the
	// per-user statistics map. When exceeded, the user seen earliest
	// (LRU by first-seen time) is evicted.
	DefaultMaxUsers = 1000

	// DefaultRecordTTL is the age after which execution records are
	// evicted by the background cleanup pass.
	DefaultRecordTTL = 24 * time.Hour

	// DefaultCleanupInterval is how often the background cleanup pass
	// runs. Cleanup runs on this cadence regardless of read or write
	// volume.
	DefaultCleanupInterval = 5 * time.Minute

	// DefaultRecentWindowSize is the maximum number of completion
	// timestamps kept for the executions-per-minute rate calculation.
	DefaultRecentWindowSize = 1000

	// DefaultShutdownGrace is how long Shutdown waits for the background
	// cleanup pass to finish before abandoning it.
	DefaultShutdownGrace = 10 * time.Second
)

// Config holds the bounds and intervals for an execution state store.
// Create one with [DefaultConfig] and override fields as needed.
type Config struct {
	// MaxRecords is the maximum number of execution records held at
	// once. Must be positive.
	MaxRecords int `yaml:"max_records" json:"max_records"`

	// MaxUsers is the maximum number of users tracked in per-user
	// statistics. Must be positive.
	MaxUsers int `yaml:"max_users" json:"max_users"`

	// RecordTTL is the age after which records are evicted. Must be
	// positive.
	RecordTTL time.Duration `yaml:"record_ttl" json:"record_ttl"`

	// CleanupInterval is the cadence of the background cleanup pass.
	// Must be positive.
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`

	// RecentWindowSize is the bound on the recent-activity window used
	// for rate calculation. Must be positive.
	RecentWindowSize int `yaml:"recent_window_size" json:"recent_window_size"`

	// ShutdownGrace is the grace period Shutdown gives the background
	// cleanup task before abandoning it. Must be positive.
	ShutdownGrace time.Duration `yaml:"shutdown_grace" json:"shutdown_grace"`

	// KeyPrefix namespaces all keys written by [RedisStore]. Ignored by
	// [MemoryStore]. Defaults to "sse:".
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// DefaultConfig returns a Config populated with the Default* constants.
func DefaultConfig() *Config {
	return &Config{
		MaxRecords:       DefaultMaxRecords,
		MaxUsers:         DefaultMaxUsers,
		RecordTTL:        DefaultRecordTTL,
		CleanupInterval:  DefaultCleanupInterval,
		RecentWindowSize: DefaultRecentWindowSize,
		ShutdownGrace:    DefaultShutdownGrace,
		KeyPrefix:        "sse:",
	}
}

// Validate checks that every bound and interval is positive. Returns a
// [sserr.CodeValidationRange] style validation error describing the
// first invalid field, or nil when the configuration is usable.
func (c *Config) Validate() error {
	if c.MaxRecords <= 0 {
		return sserr.Newf(sserr.CodeValidation,
			"store: max records must be positive, got %d", c.MaxRecords)
	}
	if c.MaxUsers <= 0 {
		return sserr.Newf(sserr.CodeValidation,
			"store: max users must be positive, got %d", c.MaxUsers)
	}
	if c.RecordTTL <= 0 {
		return sserr.Newf(sserr.CodeValidation,
			"store: record TTL must be positive, got %s", c.RecordTTL)
	}
	if c.CleanupInterval <= 0 {
		return sserr.Newf(sserr.CodeValidation,
			"store: cleanup interval must be positive, got %s", c.CleanupInterval)
	}
	if c.RecentWindowSize <= 0 {
		return sserr.Newf(sserr.CodeValidation,
			"store: recent window size must be positive, got %d", c.RecentWindowSize)
	}
	if c.ShutdownGrace <= 0 {
		return sserr.Newf(sserr.CodeValidation,
			"store: shutdown grace must be positive, got %s", c.ShutdownGrace)
	}
	return nil
}
