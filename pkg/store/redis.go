package store

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-execution/pkg/execution"
)

// recentRetention is how far back the Redis recent-activity sorted set
// is retained. Only the last 60 seconds feed the per-minute rate; the
// extra retention absorbs clock skew between replicas.
const recentRetention = 10 * time.Minute

// cmdable is the narrow Redis command surface the store depends on. It
// is satisfied by [*redis.Client] and by fakes in unit tests, enabling
// dependency injection without a running Redis instance.
type cmdable interface {
	// SetNX sets key to value only if it does not exist.
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd

	// Get returns the string value of a key.
	Get(ctx context.Context, key string) *redis.StringCmd

	// HSet sets field-value pairs in a hash stored at key.
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd

	// HGet returns the value of a field in a hash.
	HGet(ctx context.Context, key, field string) *redis.StringCmd

	// HGetAll returns all fields and values in a hash.
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd

	// HIncrBy increments an integer hash field and returns the new value.
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd

	// Expire sets an expiration on a key.
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd

	// SAdd adds one or more members to a set.
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd

	// SRem removes one or more members from a set.
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd

	// SCard returns the cardinality of a set.
	SCard(ctx context.Context, key string) *redis.IntCmd

	// ZAdd adds scored members to a sorted set.
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd

	// ZCard returns the cardinality of a sorted set.
	ZCard(ctx context.Context, key string) *redis.IntCmd

	// ZCount counts sorted set members with scores in [min, max].
	ZCount(ctx context.Context, key, min, max string) *redis.IntCmd

	// ZRemRangeByScore removes sorted set members with scores in [min, max].
	ZRemRangeByScore(ctx context.Context, key, min, max string) *redis.IntCmd
}

// Compile-time interface compliance check.
var _ cmdable = (*redis.Client)(nil)

// RedisStore implements [Store] backed by Redis, for deployments that
// run multiple execution backend replicas and need monitoring aggregated
// across all of them. Counter updates are best-effort and eventually
// consistent: the peak-concurrency high-water mark and the floor on
// concurrency counters tolerate benign races between replicas, which is
// acceptable for a monitoring-only component.
//
// Record expiry is delegated to Redis key TTLs instead of a cleanup
// goroutine, and the user bound is delegated to the Redis memory policy,
// so record buffer occupancy is not reported in [MemoryUsage].
//
// The store does not own the Redis client; the caller is responsible
// for closing it after [RedisStore.Shutdown].
type RedisStore struct {
	client cmdable
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer
}

// Compile-time interface compliance check.
var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore on top of an existing go-redis
// client. Returns a validation error when the configuration is invalid.
func NewRedisStore(client *redis.Client, cfg *Config, opts ...RedisStoreOption) (*RedisStore, error) {
	return newRedisStore(client, cfg, opts...)
}

// NewRedisStoreFromCmdable creates a RedisStore from any implementation
// of the store's command surface. This is the injection point for unit
// tests that substitute a fake for a real Redis connection.
func NewRedisStoreFromCmdable(client cmdable, cfg *Config, opts ...RedisStoreOption) (*RedisStore, error) {
	return newRedisStore(client, cfg, opts...)
}

// RedisStoreOption configures a [RedisStore] during construction.
type RedisStoreOption func(*RedisStore)

// WithRedisLogger sets a custom [*slog.Logger] for the store. If not
// set, [slog.Default] is used.
func WithRedisLogger(logger *slog.Logger) RedisStoreOption {
	return func(s *RedisStore) {
		s.logger = logger
	}
}

func newRedisStore(client cmdable, cfg *Config, opts ...RedisStoreOption) (*RedisStore, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &RedisStore{
		client: client,
		cfg:    *cfg,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	// Record the store epoch for uptime derivation. SetNX keeps the
	// earliest replica's epoch when several replicas share the backend.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.SetNX(ctx, s.key("epoch"),
		strconv.FormatInt(time.Now().UTC().UnixNano(), 10), 0).Err(); err != nil {
		s.logger.Warn("store: failed to record redis store epoch", "error", err)
	}

	return s, nil
}

func (s *RedisStore) key(parts ...string) string {
	k := s.cfg.KeyPrefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

// RecordStart records that an execution began. All writes are
// best-effort: the first Redis failure is logged and the remaining
// updates for this event are skipped.
func (s *RedisStore) RecordStart(ctx context.Context, executionID string, userCtx execution.UserContext, agentName string, metadata map[string]any) {
	ctx, span := s.tracer.Start(ctx, "store.redis.RecordStart",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("execution.id", executionID),
			attribute.String("user.id", userCtx.UserID),
		),
	)
	defer span.End()

	if err := userCtx.Validate(); err != nil {
		s.logger.Error("store: dropping invalid execution start record",
			"execution_id", executionID, "error", err)
		return
	}

	// Duplicate-start guard.
	seen, err := s.client.SetNX(ctx, s.key("seen", executionID), "1", s.cfg.RecordTTL).Result()
	if err != nil {
		s.logger.Warn("store: redis start dedupe failed", "execution_id", executionID, "error", err)
		return
	}
	if !seen {
		s.logger.Warn("store: duplicate execution start ignored", "execution_id", executionID)
		return
	}

	now := time.Now().UTC()
	recordKey := s.key("record", executionID)
	if err := s.client.HSet(ctx, recordKey,
		"user_id", userCtx.UserID,
		"agent_name", agentName,
		"started_at", strconv.FormatInt(now.UnixNano(), 10),
		"completed", "0",
		"success", "0",
	).Err(); err != nil {
		s.logger.Warn("store: redis record write failed", "execution_id", executionID, "error", err)
		return
	}
	if err := s.client.Expire(ctx, recordKey, s.cfg.RecordTTL).Err(); err != nil {
		s.logger.Warn("store: redis record expire failed", "execution_id", executionID, "error", err)
	}

	systemKey := s.key("system")
	if err := s.client.HIncrBy(ctx, systemKey, "total", 1).Err(); err != nil {
		s.logger.Warn("store: redis system counter update failed", "error", err)
		return
	}
	concurrent, err := s.client.HIncrBy(ctx, systemKey, "concurrent", 1).Result()
	if err != nil {
		s.logger.Warn("store: redis system counter update failed", "error", err)
		return
	}
	s.raisePeak(ctx, systemKey, concurrent)

	userKey := s.key("user", userCtx.UserID)
	total, err := s.client.HIncrBy(ctx, userKey, "total", 1).Result()
	if err != nil {
		s.logger.Warn("store: redis user counter update failed", "user_id", userCtx.UserID, "error", err)
		return
	}
	if total == 1 {
		_ = s.client.HSet(ctx, userKey,
			"first_seen", strconv.FormatInt(now.UnixNano(), 10)).Err()
	}
	userConcurrent, err := s.client.HIncrBy(ctx, userKey, "concurrent", 1).Result()
	if err == nil && userConcurrent == 1 {
		_ = s.client.SAdd(ctx, s.key("active_users"), userCtx.UserID).Err()
	}

	_ = s.client.SAdd(ctx, s.key("users"), userCtx.UserID).Err()
	_ = s.client.SAdd(ctx, s.key("active", userCtx.UserID), executionID).Err()
}

// RecordComplete records that a previously started execution finished.
// A completion for an unknown or already-completed execution logs a
// warning and leaves every counter unchanged.
func (s *RedisStore) RecordComplete(ctx context.Context, executionID string, result execution.Result) {
	ctx, span := s.tracer.Start(ctx, "store.redis.RecordComplete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("execution.id", executionID),
			attribute.Bool("execution.success", result.Success),
		),
	)
	defer span.End()

	recordKey := s.key("record", executionID)
	rec, err := s.client.HGetAll(ctx, recordKey).Result()
	if err != nil {
		s.logger.Warn("store: redis record lookup failed", "execution_id", executionID, "error", err)
		return
	}
	if len(rec) == 0 {
		s.logger.Warn("store: completion for unknown execution ignored",
			"execution_id", executionID)
		return
	}
	if rec["completed"] == "1" {
		s.logger.Warn("store: duplicate completion ignored", "execution_id", executionID)
		return
	}

	now := time.Now().UTC()
	duration := result.Duration
	if duration == 0 {
		if startedNanos, perr := strconv.ParseInt(rec["started_at"], 10, 64); perr == nil {
			duration = now.Sub(time.Unix(0, startedNanos))
		}
	}

	success := "0"
	if result.Success {
		success = "1"
	}
	if err := s.client.HSet(ctx, recordKey,
		"completed", "1",
		"success", success,
		"completed_at", strconv.FormatInt(now.UnixNano(), 10),
		"duration_ns", strconv.FormatInt(int64(duration), 10),
		"error", result.Err,
	).Err(); err != nil {
		s.logger.Warn("store: redis record completion write failed",
			"execution_id", executionID, "error", err)
		return
	}

	systemKey := s.key("system")
	s.decrementFloored(ctx, systemKey, "concurrent")
	outcome := "failed"
	if result.Success {
		outcome = "successful"
	}
	_ = s.client.HIncrBy(ctx, systemKey, outcome, 1).Err()
	_ = s.client.HIncrBy(ctx, systemKey, "total_duration_ns", int64(duration)).Err()
	_ = s.client.HIncrBy(ctx, systemKey, "completed", 1).Err()

	userID := rec["user_id"]
	if userID != "" {
		userKey := s.key("user", userID)
		remaining := s.decrementFloored(ctx, userKey, "concurrent")
		if remaining == 0 {
			_ = s.client.SRem(ctx, s.key("active_users"), userID).Err()
		}
		_ = s.client.HIncrBy(ctx, userKey, outcome, 1).Err()
		_ = s.client.HIncrBy(ctx, userKey, "total_duration_ns", int64(duration)).Err()
		_ = s.client.HSet(ctx, userKey,
			"last_execution", strconv.FormatInt(now.UnixNano(), 10)).Err()
		_ = s.client.SRem(ctx, s.key("active", userID), executionID).Err()
	}

	recentKey := s.key("recent")
	_ = s.client.ZAdd(ctx, recentKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: executionID,
	}).Err()
	cutoff := now.Add(-recentRetention).UnixMilli()
	_ = s.client.ZRemRangeByScore(ctx, recentKey, "-inf", strconv.FormatInt(cutoff, 10)).Err()
}

// UserStats returns a snapshot of one user's aggregate statistics, or
// ok=false if the user has never been recorded or Redis is unreachable.
func (s *RedisStore) UserStats(ctx context.Context, userID string) (UserStatsSnapshot, bool) {
	ctx, span := s.tracer.Start(ctx, "store.redis.UserStats",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	fields, err := s.client.HGetAll(ctx, s.key("user", userID)).Result()
	if err != nil {
		s.logger.Warn("store: redis user stats lookup failed", "user_id", userID, "error", err)
		return UserStatsSnapshot{}, false
	}
	if len(fields) == 0 {
		return UserStatsSnapshot{}, false
	}

	snap := UserStatsSnapshot{
		UserID:               userID,
		TotalExecutions:      hashInt64(fields, "total"),
		SuccessfulExecutions: hashInt64(fields, "successful"),
		FailedExecutions:     hashInt64(fields, "failed"),
		ConcurrentExecutions: int(hashInt64(fields, "concurrent")),
		LastExecutionTime:    hashTime(fields, "last_execution"),
		FirstSeen:            hashTime(fields, "first_seen"),
	}

	total := snap.TotalExecutions
	if total < 1 {
		total = 1
	}
	snap.SuccessRate = float64(snap.SuccessfulExecutions) / float64(total)

	if completed := snap.SuccessfulExecutions + snap.FailedExecutions; completed > 0 {
		snap.AvgExecutionTime = time.Duration(hashInt64(fields, "total_duration_ns") / completed)
	}

	return snap, true
}

// GlobalStats returns the system-wide snapshot. Failed reads degrade to
// zero values rather than errors.
func (s *RedisStore) GlobalStats(ctx context.Context) GlobalStats {
	ctx, span := s.tracer.Start(ctx, "store.redis.GlobalStats",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	now := time.Now().UTC()
	g := GlobalStats{
		Memory: MemoryUsage{MaxRecords: s.cfg.MaxRecords},
	}

	fields, err := s.client.HGetAll(ctx, s.key("system")).Result()
	if err != nil {
		s.logger.Warn("store: redis system stats lookup failed", "error", err)
		return g
	}

	g.TotalExecutions = hashInt64(fields, "total")
	g.SuccessfulExecutions = hashInt64(fields, "successful")
	g.FailedExecutions = hashInt64(fields, "failed")
	g.ConcurrentExecutions = int(hashInt64(fields, "concurrent"))
	g.PeakConcurrentExecutions = int(hashInt64(fields, "peak"))

	total := g.TotalExecutions
	if total < 1 {
		total = 1
	}
	g.SuccessRate = float64(g.SuccessfulExecutions) / float64(total)

	if completed := hashInt64(fields, "completed"); completed > 0 {
		g.AvgExecutionTime = time.Duration(hashInt64(fields, "total_duration_ns") / completed)
	}

	if epoch, err := s.client.Get(ctx, s.key("epoch")).Result(); err == nil {
		if nanos, perr := strconv.ParseInt(epoch, 10, 64); perr == nil {
			g.UptimeSeconds = now.Sub(time.Unix(0, nanos)).Seconds()
		}
	}

	minScore := strconv.FormatInt(now.Add(-time.Minute).UnixMilli(), 10)
	if n, err := s.client.ZCount(ctx, s.key("recent"), minScore, "+inf").Result(); err == nil {
		g.ExecutionsPerMinute = int(n)
	}
	if n, err := s.client.SCard(ctx, s.key("active_users")).Result(); err == nil {
		g.ActiveUsers = int(n)
	}
	if n, err := s.client.SCard(ctx, s.key("users")).Result(); err == nil {
		g.TotalUsersSeen = int(n)
		g.Memory.UserCount = int(n)
	}
	if n, err := s.client.ZCard(ctx, s.key("recent")).Result(); err == nil {
		g.Memory.RecentWindowSize = int(n)
	}

	return g
}

// Health derives the health report from the current global statistics.
func (s *RedisStore) Health(ctx context.Context) HealthReport {
	ctx, span := s.tracer.Start(ctx, "store.redis.Health",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	return ComputeHealth(s.GlobalStats(ctx))
}

// Shutdown is a no-op for the Redis backend: record expiry is owned by
// Redis TTLs and the client connection is owned by the caller. It exists
// to satisfy [Store] and always returns nil.
func (s *RedisStore) Shutdown(ctx context.Context) error {
	s.logger.Info("store: redis store shut down")
	return nil
}

// raisePeak updates the peak-concurrency high-water mark. The read and
// conditional write race across replicas; a lost update only understates
// the peak, which the monitoring contract tolerates.
func (s *RedisStore) raisePeak(ctx context.Context, systemKey string, concurrent int64) {
	peakStr, err := s.client.HGet(ctx, systemKey, "peak").Result()
	peak := int64(0)
	if err == nil {
		peak, _ = strconv.ParseInt(peakStr, 10, 64)
	}
	if concurrent > peak {
		_ = s.client.HSet(ctx, systemKey, "peak", strconv.FormatInt(concurrent, 10)).Err()
	}
}

// decrementFloored decrements an integer hash field and clamps it back
// to zero if the decrement drove it negative. Returns the clamped value.
func (s *RedisStore) decrementFloored(ctx context.Context, key, field string) int64 {
	v, err := s.client.HIncrBy(ctx, key, field, -1).Result()
	if err != nil {
		s.logger.Warn("store: redis counter decrement failed", "key", key, "field", field, "error", err)
		return 0
	}
	if v < 0 {
		_ = s.client.HSet(ctx, key, field, "0").Err()
		return 0
	}
	return v
}

// hashInt64 parses an integer hash field, returning zero when the field
// is absent or malformed.
func hashInt64(fields map[string]string, name string) int64 {
	v, err := strconv.ParseInt(fields[name], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// hashTime parses a unix-nanosecond hash field into a UTC time,
// returning the zero time when the field is absent or malformed.
func hashTime(fields map[string]string, name string) time.Time {
	nanos := hashInt64(fields, name)
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}
