package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-execution/pkg/errors"
	"github.com/StricklySoft/stricklysoft-execution/pkg/execution"
	"github.com/StricklySoft/stricklysoft-execution/pkg/store"
)

// ExecutionEngineFactory is the single authority for creating and
// destroying [UserExecutionEngine] instances. It enforces a per-user
// ceiling on concurrently active engines and aggregates factory-wide
// metrics.
//
// All methods are safe for concurrent use by multiple goroutines. The
// per-user limit check and the registration it guards run under one
// mutex, so concurrent creates for the same user cannot both pass the
// check and exceed the ceiling.
type ExecutionEngineFactory struct {
	cfg       FactoryConfig
	agents    AgentFactory
	notifiers NotifierFactory
	monitor   store.Store
	logger    *slog.Logger
	tracer    trace.Tracer

	mu       sync.Mutex
	engines  map[string]*UserExecutionEngine
	created  int64
	cleaned  int64
	shutdown bool
}

// FactoryMetrics is a snapshot of factory-wide counters.
type FactoryMetrics struct {
	TotalEnginesCreated int64 `json:"total_engines_created"`
	TotalEnginesCleaned int64 `json:"total_engines_cleaned"`
	ActiveEnginesCount  int   `json:"active_engines_count"`
}

// FactoryOption configures an [ExecutionEngineFactory] during
// construction.
type FactoryOption func(*ExecutionEngineFactory)

// WithNotifierFactory wires per-user notification delivery. Without it,
// engines run with a no-op notifier.
func WithNotifierFactory(notifiers NotifierFactory) FactoryOption {
	return func(f *ExecutionEngineFactory) {
		f.notifiers = notifiers
	}
}

// WithMonitor wires an execution state store that observes starts and
// completions. The store is monitoring-only: no factory or engine
// decision depends on it.
func WithMonitor(monitor store.Store) FactoryOption {
	return func(f *ExecutionEngineFactory) {
		f.monitor = monitor
	}
}

// WithLogger sets a custom [*slog.Logger] for the factory and the
// engines it creates. If not set, [slog.Default] is used.
func WithLogger(logger *slog.Logger) FactoryOption {
	return func(f *ExecutionEngineFactory) {
		f.logger = logger
	}
}

// NewExecutionEngineFactory creates a factory. The agent factory is
// required; notifiers and monitoring are optional.
func NewExecutionEngineFactory(agents AgentFactory, cfg *FactoryConfig, opts ...FactoryOption) (*ExecutionEngineFactory, error) {
	if agents == nil {
		return nil, sserr.New(sserr.CodeValidationRequired,
			"engine: agent factory is required")
	}
	if cfg == nil {
		cfg = DefaultFactoryConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	f := &ExecutionEngineFactory{
		cfg:     *cfg,
		agents:  agents,
		tracer:  otel.Tracer(tracerName),
		engines: make(map[string]*UserExecutionEngine),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}

	f.logger.Info("engine: factory ready",
		"max_engines_per_user", cfg.MaxEnginesPerUser,
		"max_concurrent_per_engine", cfg.MaxConcurrentPerEngine)
	return f, nil
}

// CreateForUser creates and registers a new engine for the given user
// context. When the user already holds the maximum number of active
// engines, it returns a capacity error whose message contains
// "reached maximum engine limit"; callers match on that substring to
// distinguish backpressure from failure.
//
// Engine construction validation errors (invalid context) propagate
// unchanged.
func (f *ExecutionEngineFactory) CreateForUser(ctx context.Context, userCtx execution.UserContext) (*UserExecutionEngine, error) {
	_, span := f.tracer.Start(ctx, "engine.factory.CreateForUser",
		trace.WithAttributes(
			attribute.String("user.id", userCtx.UserID),
			attribute.String("run.id", userCtx.RunID),
		),
	)
	defer span.End()

	var notifier Notifier
	if f.notifiers != nil {
		notifier = f.notifiers.NotifierFor(userCtx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.shutdown {
		return nil, sserr.New(sserr.CodeUnavailable,
			"engine: factory has been shut down")
	}

	active := f.countForUserLocked(userCtx.UserID)
	if active >= f.cfg.MaxEnginesPerUser {
		return nil, sserr.Newf(sserr.CodeCapacityEngineLimit,
			"engine: user %s reached maximum engine limit (%d)",
			userCtx.UserID, f.cfg.MaxEnginesPerUser).
			WithDetail("active_engines", active).
			WithDetail("max_engines_per_user", f.cfg.MaxEnginesPerUser)
	}

	eng, err := newEngine(userCtx, f.agents, notifier, f.monitor, f.cfg,
		uuid.NewString(), f.logger)
	if err != nil {
		return nil, err
	}

	f.engines[eng.trackingKey] = eng
	f.created++

	span.SetAttributes(attribute.String("engine.id", eng.engineID))
	f.logger.Info("engine: created",
		"engine_id", eng.engineID, "user_id", userCtx.UserID,
		"active_for_user", active+1)
	return eng, nil
}

// CleanupEngine deactivates an engine and removes it from the factory's
// tracking. Cleaning up an untracked or already-cleaned engine is a
// no-op; the cleaned counter increments at most once per engine.
func (f *ExecutionEngineFactory) CleanupEngine(eng *UserExecutionEngine) {
	if eng == nil {
		return
	}

	f.mu.Lock()
	_, tracked := f.engines[eng.trackingKey]
	if tracked {
		delete(f.engines, eng.trackingKey)
		f.cleaned++
	}
	f.mu.Unlock()

	if !tracked {
		return
	}

	eng.deactivate()
	f.logger.Info("engine: cleaned up", "engine_id", eng.engineID)
}

// CleanupUser tears down all engines held by one user and returns how
// many were cleaned. Used at user-logoff time.
func (f *ExecutionEngineFactory) CleanupUser(userID string) int {
	f.mu.Lock()
	var victims []*UserExecutionEngine
	for key, eng := range f.engines {
		if eng.userCtx.UserID == userID {
			victims = append(victims, eng)
			delete(f.engines, key)
			f.cleaned++
		}
	}
	f.mu.Unlock()

	for _, eng := range victims {
		eng.deactivate()
	}
	if len(victims) > 0 {
		f.logger.Info("engine: cleaned up user engines",
			"user_id", userID, "count", len(victims))
	}
	return len(victims)
}

// CleanupAll tears down every tracked engine and returns how many were
// cleaned. Used at process-shutdown time.
func (f *ExecutionEngineFactory) CleanupAll() int {
	f.mu.Lock()
	victims := make([]*UserExecutionEngine, 0, len(f.engines))
	for key, eng := range f.engines {
		victims = append(victims, eng)
		delete(f.engines, key)
		f.cleaned++
	}
	f.mu.Unlock()

	for _, eng := range victims {
		eng.deactivate()
	}
	if len(victims) > 0 {
		f.logger.Info("engine: cleaned up all engines", "count", len(victims))
	}
	return len(victims)
}

// Metrics returns a snapshot of factory-wide counters.
func (f *ExecutionEngineFactory) Metrics() FactoryMetrics {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FactoryMetrics{
		TotalEnginesCreated: f.created,
		TotalEnginesCleaned: f.cleaned,
		ActiveEnginesCount:  len(f.engines),
	}
}

// ActiveEngineCount returns how many active engines one user currently
// holds.
func (f *ExecutionEngineFactory) ActiveEngineCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countForUserLocked(userID)
}

// Shutdown tears down all engines and refuses further creates. It is
// idempotent and always returns nil; the error return exists for
// symmetry with other lifecycle surfaces.
func (f *ExecutionEngineFactory) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	alreadyDown := f.shutdown
	f.shutdown = true
	f.mu.Unlock()

	if alreadyDown {
		return nil
	}

	f.CleanupAll()
	f.logger.Info("engine: factory shut down")
	return nil
}

func (f *ExecutionEngineFactory) countForUserLocked(userID string) int {
	n := 0
	for _, eng := range f.engines {
		if eng.userCtx.UserID == userID {
			n++
		}
	}
	return n
}
