package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-execution/pkg/execution"
)

// tracerName is the OpenTelemetry instrumentation scope name for this
// package. It follows the Go module path convention for OTel
// instrumentation libraries.
const tracerName = "github.com/StricklySoft/stricklysoft-execution/pkg/store"

// archiveTimeout bounds each best-effort archival call made from the
// cleanup pass, so a slow archive database cannot stall eviction.
const archiveTimeout = 10 * time.Second

// userStats is the mutable per-user aggregate. All access is guarded by
// the store mutex.
type userStats struct {
	totalExecutions      int64
	successfulExecutions int64
	failedExecutions     int64
	totalExecutionTime   time.Duration
	concurrentExecutions int
	lastExecutionTime    time.Time
	firstSeen            time.Time
}

// completedCount returns the number of completed executions for this
// user, used as the divisor for the average execution time.
func (u *userStats) completedCount() int64 {
	return u.successfulExecutions + u.failedExecutions
}

// systemStats is the mutable process-wide aggregate. All access is
// guarded by the store mutex.
type systemStats struct {
	totalExecutions          int64
	successfulExecutions     int64
	failedExecutions         int64
	concurrentExecutions     int
	peakConcurrentExecutions int
	totalExecutionTime       time.Duration
	completedExecutions      int64
}

// MemoryStore is the canonical in-memory implementation of [Store]. It
// is a process-wide singleton constructed explicitly by whatever owns
// the process lifecycle and injected downward; there is no module-level
// global instance.
//
// All shared state is guarded by a single mutex around each
// read-modify-write, making the store safe for concurrent callers. A
// background goroutine evicts records older than the configured TTL on
// a fixed cadence and prunes empty per-user concurrency-tracking sets;
// evicted records are handed to the optional [Archiver] best-effort.
//
// Create one with [NewMemoryStore] and release it with
// [MemoryStore.Shutdown].
type MemoryStore struct {
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
	archiver Archiver

	mu           sync.Mutex
	records      map[string]*execution.Record
	users        map[string]*userStats
	activeByUser map[string]map[string]struct{}
	system       systemStats
	recent       []time.Time
	startedAt    time.Time

	done         chan struct{}
	cleanupDone  chan struct{}
	shutdownOnce sync.Once
}

// Compile-time interface compliance check.
var _ Store = (*MemoryStore)(nil)

// MemoryStoreOption configures a [MemoryStore] during construction.
type MemoryStoreOption func(*MemoryStore)

// WithLogger sets a custom [*slog.Logger] for the store. If not set,
// [slog.Default] is used.
func WithLogger(logger *slog.Logger) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.logger = logger
	}
}

// WithArchiver sets an [Archiver] that receives records evicted by the
// background cleanup pass. Archival is best-effort: failures are logged
// and never block eviction.
func WithArchiver(a Archiver) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.archiver = a
	}
}

// NewMemoryStore creates a MemoryStore with the given configuration and
// starts its background cleanup goroutine. Returns a validation error
// when the configuration is invalid.
func NewMemoryStore(cfg *Config, opts ...MemoryStoreOption) (*MemoryStore, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &MemoryStore{
		cfg:          *cfg,
		tracer:       otel.Tracer(tracerName),
		records:      make(map[string]*execution.Record),
		users:        make(map[string]*userStats),
		activeByUser: make(map[string]map[string]struct{}),
		startedAt:    time.Now().UTC(),
		done:         make(chan struct{}),
		cleanupDone:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	go s.cleanupLoop()

	return s, nil
}

// RecordStart records that an execution began. It creates the execution
// record, bumps the system and per-user counters, updates the peak
// concurrency high-water mark, and registers the execution in the
// per-user concurrency-tracking set.
//
// Internal failures are logged and swallowed: monitoring must never
// break the caller's execution path.
func (s *MemoryStore) RecordStart(ctx context.Context, executionID string, userCtx execution.UserContext, agentName string, metadata map[string]any) {
	_, span := s.tracer.Start(ctx, "store.RecordStart",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("execution.id", executionID),
			attribute.String("user.id", userCtx.UserID),
			attribute.String("agent.name", agentName),
		),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("store: panic while recording execution start",
				"panic", r, "execution_id", executionID)
		}
	}()

	rec, err := execution.NewRecord(executionID, userCtx, agentName, metadata)
	if err != nil {
		s.logger.Error("store: dropping invalid execution start record",
			"execution_id", executionID, "error", err)
		return
	}

	s.mu.Lock()

	if _, exists := s.records[executionID]; exists {
		s.mu.Unlock()
		s.logger.Warn("store: duplicate execution start ignored",
			"execution_id", executionID)
		return
	}

	evicted := s.enforceRecordBoundLocked()
	s.records[executionID] = rec

	s.system.totalExecutions++
	s.system.concurrentExecutions++
	if s.system.concurrentExecutions > s.system.peakConcurrentExecutions {
		s.system.peakConcurrentExecutions = s.system.concurrentExecutions
	}

	u := s.userLocked(userCtx.UserID)
	u.totalExecutions++
	u.concurrentExecutions++

	active, ok := s.activeByUser[userCtx.UserID]
	if !ok {
		active = make(map[string]struct{})
		s.activeByUser[userCtx.UserID] = active
	}
	active[executionID] = struct{}{}

	s.mu.Unlock()

	s.archiveEvicted(evicted)
}

// RecordComplete records that a previously started execution finished.
// A completion for an unknown execution ID logs a warning and leaves all
// counters unchanged; a missing record must not break completion flow.
func (s *MemoryStore) RecordComplete(ctx context.Context, executionID string, result execution.Result) {
	_, span := s.tracer.Start(ctx, "store.RecordComplete",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("execution.id", executionID),
			attribute.Bool("execution.success", result.Success),
		),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("store: panic while recording execution completion",
				"panic", r, "execution_id", executionID)
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[executionID]
	if !ok {
		s.logger.Warn("store: completion for unknown execution ignored",
			"execution_id", executionID)
		return
	}
	if rec.Completed() {
		s.logger.Warn("store: duplicate completion ignored",
			"execution_id", executionID)
		return
	}

	rec.Complete(result)
	duration := *rec.Duration
	now := *rec.CompletedAt

	if s.system.concurrentExecutions > 0 {
		s.system.concurrentExecutions--
	}
	if result.Success {
		s.system.successfulExecutions++
	} else {
		s.system.failedExecutions++
	}
	s.system.totalExecutionTime += duration
	s.system.completedExecutions++

	if u, ok := s.users[rec.UserID]; ok {
		if u.concurrentExecutions > 0 {
			u.concurrentExecutions--
		}
		if result.Success {
			u.successfulExecutions++
		} else {
			u.failedExecutions++
		}
		u.totalExecutionTime += duration
		u.lastExecutionTime = now
	}

	if active, ok := s.activeByUser[rec.UserID]; ok {
		delete(active, executionID)
	}

	s.recent = append(s.recent, now)
	if len(s.recent) > s.cfg.RecentWindowSize {
		s.recent = s.recent[len(s.recent)-s.cfg.RecentWindowSize:]
	}
}

// UserStats returns a snapshot of one user's aggregate statistics, or
// ok=false if the user has never been recorded (or has been evicted by
// the user LRU bound).
func (s *MemoryStore) UserStats(ctx context.Context, userID string) (UserStatsSnapshot, bool) {
	_, span := s.tracer.Start(ctx, "store.UserStats",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return UserStatsSnapshot{}, false
	}

	snap := UserStatsSnapshot{
		UserID:               userID,
		TotalExecutions:      u.totalExecutions,
		SuccessfulExecutions: u.successfulExecutions,
		FailedExecutions:     u.failedExecutions,
		ConcurrentExecutions: u.concurrentExecutions,
		LastExecutionTime:    u.lastExecutionTime,
		FirstSeen:            u.firstSeen,
	}

	total := u.totalExecutions
	if total < 1 {
		total = 1
	}
	snap.SuccessRate = float64(u.successfulExecutions) / float64(total)

	if completed := u.completedCount(); completed > 0 {
		snap.AvgExecutionTime = u.totalExecutionTime / time.Duration(completed)
	}

	return snap, true
}

// GlobalStats returns a snapshot of system-wide statistics with all
// derived fields (success rate, average time, per-minute rate, active
// users, uptime, memory occupancy) computed at read time.
func (s *MemoryStore) GlobalStats(ctx context.Context) GlobalStats {
	_, span := s.tracer.Start(ctx, "store.GlobalStats",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.globalStatsLocked(time.Now().UTC())
}

// Health derives the health report from the current global statistics.
func (s *MemoryStore) Health(ctx context.Context) HealthReport {
	_, span := s.tracer.Start(ctx, "store.Health",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()

	s.mu.Lock()
	g := s.globalStatsLocked(time.Now().UTC())
	s.mu.Unlock()

	return ComputeHealth(g)
}

// Shutdown signals the cleanup goroutine to stop, waits up to the
// configured grace period for it to finish, then clears all in-memory
// maps. Shutdown is idempotent and never fails on a store that was
// never exercised; it always returns nil.
func (s *MemoryStore) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		close(s.done)

		select {
		case <-s.cleanupDone:
		case <-time.After(s.cfg.ShutdownGrace):
			s.logger.Warn("store: cleanup task did not stop within grace period",
				"grace", s.cfg.ShutdownGrace)
		case <-ctx.Done():
			s.logger.Warn("store: shutdown context canceled before cleanup stopped",
				"error", ctx.Err())
		}

		s.mu.Lock()
		s.records = make(map[string]*execution.Record)
		s.users = make(map[string]*userStats)
		s.activeByUser = make(map[string]map[string]struct{})
		s.recent = nil
		s.mu.Unlock()

		s.logger.Info("store: shut down")
	})
	return nil
}

// globalStatsLocked computes the global snapshot. Caller must hold mu.
func (s *MemoryStore) globalStatsLocked(now time.Time) GlobalStats {
	g := GlobalStats{
		TotalExecutions:          s.system.totalExecutions,
		SuccessfulExecutions:     s.system.successfulExecutions,
		FailedExecutions:         s.system.failedExecutions,
		ConcurrentExecutions:     s.system.concurrentExecutions,
		PeakConcurrentExecutions: s.system.peakConcurrentExecutions,
		TotalUsersSeen:           len(s.users),
		UptimeSeconds:            now.Sub(s.startedAt).Seconds(),
		Memory: MemoryUsage{
			RecordCount:      len(s.records),
			MaxRecords:       s.cfg.MaxRecords,
			UserCount:        len(s.users),
			RecentWindowSize: len(s.recent),
		},
	}

	total := s.system.totalExecutions
	if total < 1 {
		total = 1
	}
	g.SuccessRate = float64(s.system.successfulExecutions) / float64(total)

	if s.system.completedExecutions > 0 {
		g.AvgExecutionTime = s.system.totalExecutionTime / time.Duration(s.system.completedExecutions)
	}

	cutoff := now.Add(-time.Minute)
	for _, ts := range s.recent {
		if ts.After(cutoff) {
			g.ExecutionsPerMinute++
		}
	}

	for _, u := range s.users {
		if u.concurrentExecutions > 0 {
			g.ActiveUsers++
		}
	}

	return g
}

// userLocked returns the stats entry for userID, creating it lazily and
// applying the user LRU bound. Caller must hold mu.
func (s *MemoryStore) userLocked(userID string) *userStats {
	if u, ok := s.users[userID]; ok {
		return u
	}

	if len(s.users) >= s.cfg.MaxUsers {
		s.evictOldestUserLocked()
	}

	u := &userStats{firstSeen: time.Now().UTC()}
	s.users[userID] = u
	return u
}

// evictOldestUserLocked removes the user with the earliest first-seen
// time. Users with executions in flight are skipped unless every
// tracked user is in flight. Caller must hold mu.
func (s *MemoryStore) evictOldestUserLocked() {
	var oldestID string
	var oldest time.Time
	var fallbackID string
	var fallback time.Time

	for id, u := range s.users {
		if fallbackID == "" || u.firstSeen.Before(fallback) {
			fallbackID, fallback = id, u.firstSeen
		}
		if u.concurrentExecutions > 0 {
			continue
		}
		if oldestID == "" || u.firstSeen.Before(oldest) {
			oldestID, oldest = id, u.firstSeen
		}
	}

	if oldestID == "" {
		oldestID = fallbackID
	}
	if oldestID == "" {
		return
	}

	delete(s.users, oldestID)
	delete(s.activeByUser, oldestID)
	s.logger.Debug("store: evicted user stats at capacity", "user_id", oldestID)
}

// enforceRecordBoundLocked evicts the oldest records until there is room
// for one more, returning the evicted records for archival. Completed
// records are preferred for eviction. Caller must hold mu.
func (s *MemoryStore) enforceRecordBoundLocked() []*execution.Record {
	if len(s.records) < s.cfg.MaxRecords {
		return nil
	}

	var evicted []*execution.Record
	for len(s.records) >= s.cfg.MaxRecords {
		var victimID string
		var victim *execution.Record
		for id, rec := range s.records {
			if victim == nil ||
				(rec.Completed() && !victim.Completed()) ||
				(rec.Completed() == victim.Completed() && rec.StartedAt.Before(victim.StartedAt)) {
				victimID, victim = id, rec
			}
		}
		if victim == nil {
			break
		}
		delete(s.records, victimID)
		evicted = append(evicted, victim)
	}

	if len(evicted) > 0 {
		s.logger.Warn("store: evicted execution records at capacity",
			"evicted", len(evicted), "max_records", s.cfg.MaxRecords)
	}
	return evicted
}

// cleanupLoop runs the periodic cleanup pass until Shutdown signals it
// to stop. Each pass is atomic with respect to store state: expired
// records are collected and removed under a single lock acquisition,
// then archived outside the lock.
func (s *MemoryStore) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.cleanupPass()
		}
	}
}

// cleanupPass evicts records older than the TTL and prunes empty
// per-user concurrency-tracking sets.
func (s *MemoryStore) cleanupPass() {
	now := time.Now().UTC()

	s.mu.Lock()
	var expired []*execution.Record
	for id, rec := range s.records {
		if rec.Age(now) > s.cfg.RecordTTL {
			delete(s.records, id)
			expired = append(expired, rec)
		}
	}
	for userID, active := range s.activeByUser {
		if len(active) == 0 {
			delete(s.activeByUser, userID)
		}
	}
	s.mu.Unlock()

	if len(expired) > 0 {
		s.logger.Info("store: evicted expired execution records",
			"evicted", len(expired), "ttl", s.cfg.RecordTTL)
	}
	s.archiveEvicted(expired)
}

// archiveEvicted hands evicted records to the configured archiver.
// Failures are logged; eviction is never blocked or rolled back.
func (s *MemoryStore) archiveEvicted(records []*execution.Record) {
	if s.archiver == nil || len(records) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	if err := s.archiver.ArchiveRecords(ctx, records); err != nil {
		s.logger.Error("store: failed to archive evicted records",
			"count", len(records), "error", err)
	}
}
