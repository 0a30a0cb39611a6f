// Package config provides layered configuration for the execution
// backend. Values are resolved in priority order:
//
//	compiled defaults      (lowest priority)
//	YAML config file       (medium priority)
//	environment variables  (highest priority)
//
// This priority order mirrors how Kubernetes deployments typically
// work: sensible defaults are baked into the code, config files provide
// environment-specific overrides, and env vars (from ConfigMaps or
// Secrets) take final precedence.
//
// # Environment Variables
//
//	EXEC_LOG_LEVEL                  logging level (debug|info|warn|error)
//	EXEC_STORE_BACKEND              store backend (memory|redis)
//	EXEC_STORE_MAX_RECORDS          in-memory record bound
//	EXEC_STORE_RECORD_TTL           record retention (Go duration)
//	EXEC_REDIS_ADDR                 redis address for the redis backend
//	EXEC_ARCHIVE_URI                postgres URI; enables archival when set
//	EXEC_MAX_ENGINES_PER_USER       per-user engine ceiling
//	EXEC_MAX_CONCURRENT_PER_ENGINE  per-engine execution ceiling
//
// # Usage
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/StricklySoft/stricklysoft-execution/pkg/archive"
	"github.com/StricklySoft/stricklysoft-execution/pkg/engine"
	sserr "github.com/StricklySoft/stricklysoft-execution/pkg/errors"
	"github.com/StricklySoft/stricklysoft-execution/pkg/store"
)

// Store backend selectors.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the root configuration for the execution backend.
type Config struct {
	Logging LoggingConfig        `yaml:"logging" json:"logging"`
	Store   StoreConfig          `yaml:"store" json:"store"`
	Engine  engine.FactoryConfig `yaml:"engine" json:"engine"`
	Archive ArchiveConfig        `yaml:"archive" json:"archive"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level" json:"level"`
}

// SlogLevel maps the configured level to a [slog.Level].
func (l LoggingConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StoreConfig selects and configures the execution state store backend.
type StoreConfig struct {
	// Backend is [BackendMemory] or [BackendRedis]. Defaults to memory.
	Backend string `yaml:"backend" json:"backend"`

	// RedisAddr is the host:port of the Redis instance. Required when
	// Backend is redis.
	RedisAddr string `yaml:"redis_addr" json:"redis_addr"`

	// Limits holds the backend-independent store bounds.
	Limits store.Config `yaml:"limits" json:"limits"`
}

// ArchiveConfig controls PostgreSQL archival of evicted records.
// Archival is off unless Enabled is set (or EXEC_ARCHIVE_URI is
// present in the environment).
type ArchiveConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Postgres holds the archiver connection settings. Validated only
	// when Enabled.
	Postgres archive.Config `yaml:"postgres" json:"postgres"`
}

// Default returns a Config populated with defaults: info logging, the
// in-memory store with default bounds, default engine limits, archival
// disabled.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Store: StoreConfig{
			Backend: BackendMemory,
			Limits:  *store.DefaultConfig(),
		},
		Engine:  *engine.DefaultFactoryConfig(),
		Archive: ArchiveConfig{Postgres: *archive.DefaultConfig()},
	}
}

// Load resolves configuration from defaults, an optional YAML file, and
// environment variables, then validates the result.
//
// A missing file is not an error; file configuration is optional and
// loading proceeds with defaults plus environment overrides. An empty
// path skips the file layer entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Optional layer.
		case err != nil:
			return nil, sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: failed to read %s", path)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, sserr.Wrapf(err, sserr.CodeInternalConfiguration,
					"config: failed to parse %s", path)
			}
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers the documented environment variables over cfg.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("EXEC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("EXEC_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("EXEC_REDIS_ADDR"); v != "" {
		cfg.Store.RedisAddr = v
	}
	if v := os.Getenv("EXEC_ARCHIVE_URI"); v != "" {
		cfg.Archive.Enabled = true
		cfg.Archive.Postgres.URI = v
	}

	intVars := []struct {
		name   string
		target *int
	}{
		{"EXEC_STORE_MAX_RECORDS", &cfg.Store.Limits.MaxRecords},
		{"EXEC_MAX_ENGINES_PER_USER", &cfg.Engine.MaxEnginesPerUser},
		{"EXEC_MAX_CONCURRENT_PER_ENGINE", &cfg.Engine.MaxConcurrentPerEngine},
	}
	for _, iv := range intVars {
		v := os.Getenv(iv.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
				"config: %s must be an integer", iv.name)
		}
		*iv.target = n
	}

	if v := os.Getenv("EXEC_STORE_RECORD_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return sserr.Wrap(err, sserr.CodeInternalConfiguration,
				"config: EXEC_STORE_RECORD_TTL must be a duration")
		}
		cfg.Store.Limits.RecordTTL = d
	}

	return nil
}

// Validate checks the full configuration tree.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return sserr.Newf(sserr.CodeValidation,
			"config: unknown log level %q", c.Logging.Level)
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Store.RedisAddr == "" {
			return sserr.New(sserr.CodeValidationRequired,
				"config: redis_addr is required for the redis store backend")
		}
	default:
		return sserr.Newf(sserr.CodeValidation,
			"config: unknown store backend %q", c.Store.Backend)
	}

	if err := c.Store.Limits.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if c.Archive.Enabled {
		if err := c.Archive.Postgres.Validate(); err != nil {
			return err
		}
	}
	return nil
}
