package engine

import (
	sserr "github.com/StricklySoft/stricklysoft-execution/pkg/errors"
)

// DefaultMaxEnginesPerUser is the default ceiling on concurrently
// active engines per user. Each engine serves one run, so this bounds
// how many runs a single user can drive in parallel.
const DefaultMaxEnginesPerUser = 2

// DefaultMaxConcurrentPerEngine is the default ceiling on concurrently
// active executions within one engine. Starts beyond the ceiling are
// rejected rather than queued so that backpressure stays visible to the
// caller.
const DefaultMaxConcurrentPerEngine = 3

// DefaultHistoryLimit is the default bound on an engine's retained run
// history. The history is a ring: once full, the oldest result is
// dropped for each new completion.
const DefaultHistoryLimit = 100

// FactoryConfig holds engine factory configuration.
type FactoryConfig struct {
	// MaxEnginesPerUser is the maximum number of concurrently active
	// engines a single user may hold. Defaults to
	// [DefaultMaxEnginesPerUser].
	MaxEnginesPerUser int `yaml:"max_engines_per_user" json:"max_engines_per_user"`

	// MaxConcurrentPerEngine is the maximum number of in-flight
	// executions within one engine. Defaults to
	// [DefaultMaxConcurrentPerEngine].
	MaxConcurrentPerEngine int `yaml:"max_concurrent_per_engine" json:"max_concurrent_per_engine"`

	// HistoryLimit bounds each engine's retained run history.
	// Defaults to [DefaultHistoryLimit].
	HistoryLimit int `yaml:"history_limit" json:"history_limit"`
}

// DefaultFactoryConfig returns a FactoryConfig populated with default
// values.
func DefaultFactoryConfig() *FactoryConfig {
	return &FactoryConfig{
		MaxEnginesPerUser:      DefaultMaxEnginesPerUser,
		MaxConcurrentPerEngine: DefaultMaxConcurrentPerEngine,
		HistoryLimit:           DefaultHistoryLimit,
	}
}

// Validate checks the configuration for invalid values.
func (c *FactoryConfig) Validate() error {
	if c.MaxEnginesPerUser <= 0 {
		return sserr.New(sserr.CodeValidation, "engine: MaxEnginesPerUser must be positive")
	}
	if c.MaxConcurrentPerEngine <= 0 {
		return sserr.New(sserr.CodeValidation, "engine: MaxConcurrentPerEngine must be positive")
	}
	if c.HistoryLimit <= 0 {
		return sserr.New(sserr.CodeValidation, "engine: HistoryLimit must be positive")
	}
	return nil
}
