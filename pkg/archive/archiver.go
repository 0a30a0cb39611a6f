// Package archive persists evicted execution records to PostgreSQL so
// that monitoring data survives the in-memory store's bounded retention.
//
// The archiver implements the store's Archiver interface and is wired
// into a memory store at construction:
//
//	arch, err := archive.NewArchiver(ctx, cfg)
//	if err != nil { ... }
//	defer arch.Close()
//
//	st, err := store.NewMemoryStore(storeCfg, store.WithArchiver(arch))
//
// Archival is strictly best-effort from the store's point of view: the
// store logs archiver failures and keeps serving. The archiver itself
// reports failures through structured errors so its own callers can
// alert on persistent database trouble.
//
// For testing, use [NewArchiverFromPool] to inject a pgxmock pool:
//
//	mock, _ := pgxmock.NewPool()
//	arch := archive.NewArchiverFromPool(mock, cfg)
package archive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-execution/pkg/errors"
	"github.com/StricklySoft/stricklysoft-execution/pkg/execution"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
// It follows the Go module path convention for OTel instrumentation libraries.
const tracerName = "github.com/StricklySoft/stricklysoft-execution/pkg/archive"

// Pool defines the connection pool operations the archiver depends on.
// It is satisfied by [*pgxpool.Pool] and by pgxmock pools, enabling
// dependency injection via [NewArchiverFromPool] for testing without a
// real database.
type Pool interface {
	// Exec executes a SQL statement that does not return rows.
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)

	// Ping verifies the connection to the database is alive.
	Ping(ctx context.Context) error

	// Close releases all pool resources.
	Close()
}

// Compile-time interface compliance check.
var _ Pool = (*pgxpool.Pool)(nil)

// PostgresArchiver writes completed execution records to a PostgreSQL
// archive table. It is safe for concurrent use by multiple goroutines.
type PostgresArchiver struct {
	pool   Pool
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
}

// ArchiverOption configures a [PostgresArchiver] during construction.
type ArchiverOption func(*PostgresArchiver)

// WithLogger sets a custom [*slog.Logger] for the archiver. If not set,
// [slog.Default] is used.
func WithLogger(logger *slog.Logger) ArchiverOption {
	return func(a *PostgresArchiver) {
		a.logger = logger
	}
}

// NewArchiver connects to PostgreSQL, ensures the archive table exists,
// and returns a ready archiver. The caller owns the archiver and must
// call [PostgresArchiver.Close] when done.
func NewArchiver(ctx context.Context, cfg *Config, opts ...ArchiverOption) (*PostgresArchiver, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URI)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalConfiguration,
			"archive: invalid PostgreSQL URI")
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"archive: failed to create connection pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"archive: failed to connect to PostgreSQL")
	}

	a := newFromPool(pool, cfg, opts...)
	if err := a.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	a.logger.Info("archive: PostgreSQL archiver ready", "table", cfg.Table)
	return a, nil
}

// NewArchiverFromPool creates an archiver on top of an existing pool
// without connecting or touching the schema. This is the injection
// point for unit tests with pgxmock pools. Config validation errors are
// returned unchanged.
func NewArchiverFromPool(pool Pool, cfg *Config, opts ...ArchiverOption) (*PostgresArchiver, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newFromPool(pool, cfg, opts...), nil
}

func newFromPool(pool Pool, cfg *Config, opts ...ArchiverOption) *PostgresArchiver {
	a := &PostgresArchiver{
		pool:   pool,
		cfg:    *cfg,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// EnsureSchema creates the archive table and its indexes if they do not
// exist. It is called automatically by [NewArchiver] and is exported
// for callers that construct the archiver from an existing pool.
func (a *PostgresArchiver) EnsureSchema(ctx context.Context) error {
	ctx, span := a.tracer.Start(ctx, "archive.EnsureSchema",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.sql.table", a.cfg.Table)),
	)
	defer span.End()

	createTable := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		execution_id TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		agent_name   TEXT NOT NULL,
		started_at   TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		duration_ms  BIGINT,
		success      BOOLEAN NOT NULL DEFAULT FALSE,
		error        TEXT NOT NULL DEFAULT '',
		metadata     JSONB,
		archived_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, a.cfg.Table)
	if _, err := a.pool.Exec(ctx, createTable); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return sserr.Wrap(err, sserr.CodeInternalDatabase,
			"archive: failed to create archive table")
	}

	createIndex := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s_user_started_idx ON %s (user_id, started_at)`,
		a.cfg.Table, a.cfg.Table)
	if _, err := a.pool.Exec(ctx, createIndex); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return sserr.Wrap(err, sserr.CodeInternalDatabase,
			"archive: failed to create archive index")
	}

	return nil
}

// ArchiveRecords persists a batch of execution records. Re-archiving an
// already archived execution is a no-op (ON CONFLICT DO NOTHING), so
// retried batches are safe.
//
// The batch is not transactional: a failing record does not prevent
// later records in the batch from being written. The returned error
// reports how many records failed and wraps the first cause.
func (a *PostgresArchiver) ArchiveRecords(ctx context.Context, records []*execution.Record) error {
	if len(records) == 0 {
		return nil
	}

	ctx, span := a.tracer.Start(ctx, "archive.ArchiveRecords",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.sql.table", a.cfg.Table),
			attribute.Int("archive.batch_size", len(records)),
		),
	)
	defer span.End()

	insert := fmt.Sprintf(`INSERT INTO %s
		(execution_id, user_id, agent_name, started_at, completed_at, duration_ms, success, error, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (execution_id) DO NOTHING`, a.cfg.Table)

	var failed int
	var firstErr error
	for _, rec := range records {
		if rec == nil {
			continue
		}

		var durationMS *int64
		if rec.Duration != nil {
			ms := rec.Duration.Milliseconds()
			durationMS = &ms
		}

		_, err := a.pool.Exec(ctx, insert,
			rec.ExecutionID,
			rec.UserID,
			rec.AgentName,
			rec.StartedAt,
			rec.CompletedAt,
			durationMS,
			rec.Success,
			rec.Error,
			rec.Metadata,
		)
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			a.logger.Warn("archive: failed to archive execution record",
				"execution_id", rec.ExecutionID, "error", err)
		}
	}

	if firstErr != nil {
		span.SetStatus(codes.Error, firstErr.Error())
		return sserr.Wrap(firstErr, sserr.CodeInternalDatabase,
			"archive: batch archival partially failed").
			WithDetail("failed_records", failed).
			WithDetail("batch_size", len(records))
	}

	a.logger.Debug("archive: batch archived", "records", len(records))
	return nil
}

// Close releases the underlying connection pool. The archiver must not
// be used after Close.
func (a *PostgresArchiver) Close() {
	a.pool.Close()
	a.logger.Info("archive: PostgreSQL archiver closed")
}
