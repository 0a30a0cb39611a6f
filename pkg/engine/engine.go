// Package engine provides per-user execution isolation for the
// StricklySoft agent backend.
//
// The package has two layers. [UserExecutionEngine] is the sole
// execution surface for one user's one run: it enforces that every
// execution it handles belongs to its owning user, bounds in-flight
// concurrency, bridges agent work to per-user notifications, and tracks
// local statistics that are fully disjoint from every other engine.
// [ExecutionEngineFactory] is the single authority that creates, tracks,
// and tears down engines, enforcing a per-user ceiling on concurrently
// active engines.
//
// Callers should prefer the scoped acquisition form, which guarantees
// teardown on every exit path:
//
//	err := factory.WithEngine(ctx, userCtx, func(ctx context.Context, eng *engine.UserExecutionEngine) error {
//	    _, err := eng.Execute(ctx, agentCtx)
//	    return err
//	})
//
// An optional monitoring store observes execution starts and
// completions. The store is strictly write-only from this package's
// point of view: no engine or factory decision ever depends on it, and
// a nil store is a valid configuration.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-execution/pkg/errors"
	"github.com/StricklySoft/stricklysoft-execution/pkg/execution"
	"github.com/StricklySoft/stricklysoft-execution/pkg/store"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
// It follows the Go module path convention for OTel instrumentation libraries.
const tracerName = "github.com/StricklySoft/stricklysoft-execution/pkg/engine"

// UserExecutionEngine executes agent work for exactly one (user, run)
// pair. Engines are created and destroyed by [ExecutionEngineFactory];
// the engine ID embeds the user and run IDs so that any cross-user
// leakage is detectable by plain string inspection in logs and tests.
//
// All methods are safe for concurrent use by multiple goroutines.
type UserExecutionEngine struct {
	engineID string
	userCtx  execution.UserContext

	// trackingKey is the opaque key under which the factory registered
	// this engine. It deliberately differs from engineID so that
	// deregistration cannot be spoofed by constructing a matching ID.
	trackingKey string

	agents   AgentFactory
	notifier Notifier
	monitor  store.Store
	logger   *slog.Logger
	tracer   trace.Tracer

	maxConcurrent int
	historyLimit  int

	mu            sync.RWMutex
	active        bool
	activeRuns    map[string]execution.AgentContext
	runHistory    []execution.Result
	total         int64
	successful    int64
	totalDuration time.Duration
}

// EngineStats is a point-in-time snapshot of one engine's local
// statistics, computed fresh on every call and never shared between
// engines.
type EngineStats struct {
	EngineID             string        `json:"engine_id"`
	UserID               string        `json:"user_id"`
	RunID                string        `json:"run_id"`
	Active               bool          `json:"active"`
	ActiveRuns           int           `json:"active_runs"`
	TotalExecutions      int64         `json:"total_executions"`
	SuccessfulExecutions int64         `json:"successful_executions"`
	AvgExecutionTime     time.Duration `json:"avg_execution_time"`
	HistorySize          int           `json:"history_size"`
}

// newEngine constructs an engine. Only the factory calls this; the
// validation behavior is part of the factory's construction contract.
func newEngine(userCtx execution.UserContext, agents AgentFactory, notifier Notifier, monitor store.Store, cfg FactoryConfig, trackingKey string, logger *slog.Logger) (*UserExecutionEngine, error) {
	if err := userCtx.Validate(); err != nil {
		return nil, err
	}
	if agents == nil {
		return nil, sserr.New(sserr.CodeValidationRequired,
			"engine: agent factory is required")
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &UserExecutionEngine{
		engineID:      fmt.Sprintf("engine-%s-%s", userCtx.UserID, userCtx.RunID),
		userCtx:       userCtx,
		trackingKey:   trackingKey,
		agents:        agents,
		notifier:      notifier,
		monitor:       monitor,
		logger:        logger,
		tracer:        otel.Tracer(tracerName),
		maxConcurrent: cfg.MaxConcurrentPerEngine,
		historyLimit:  cfg.HistoryLimit,
		active:        true,
		activeRuns:    make(map[string]execution.AgentContext),
	}, nil
}

// EngineID returns the engine's identifier, which embeds the owning
// user and run IDs.
func (e *UserExecutionEngine) EngineID() string {
	return e.engineID
}

// UserContext returns the engine's owning user context.
func (e *UserExecutionEngine) UserContext() execution.UserContext {
	return e.userCtx
}

// Active reports whether the engine still accepts executions. It
// becomes false permanently once the factory tears the engine down.
func (e *UserExecutionEngine) Active() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

// validateOwnership rejects agent contexts that belong to a different
// user. It must run before any state mutation tied to an incoming
// context.
func (e *UserExecutionEngine) validateOwnership(agentCtx execution.AgentContext) error {
	if err := agentCtx.Validate(); err != nil {
		return err
	}
	if agentCtx.UserID != e.userCtx.UserID {
		return sserr.Newf(sserr.CodeValidationOwnership,
			"engine: User ID mismatch: agent context belongs to %q, engine owned by %q",
			agentCtx.UserID, e.userCtx.UserID).
			WithDetail("engine_id", e.engineID)
	}
	return nil
}

// StartExecution validates ownership, registers a new in-flight
// execution, and emits a "started" notification. It returns the new
// execution ID.
//
// Starts are rejected, not queued, when the engine is inactive or at
// its concurrency ceiling.
func (e *UserExecutionEngine) StartExecution(ctx context.Context, agentCtx execution.AgentContext) (string, error) {
	ctx, span := e.tracer.Start(ctx, "engine.StartExecution",
		trace.WithAttributes(
			attribute.String("engine.id", e.engineID),
			attribute.String("user.id", e.userCtx.UserID),
			attribute.String("agent.name", agentCtx.AgentName),
		),
	)
	defer span.End()

	if err := e.validateOwnership(agentCtx); err != nil {
		return "", err
	}

	executionID := execution.NewExecutionID()
	span.SetAttributes(attribute.String("execution.id", executionID))

	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return "", sserr.Newf(sserr.CodeConflictInactive,
			"engine: engine %s is no longer active", e.engineID)
	}
	if len(e.activeRuns) >= e.maxConcurrent {
		e.mu.Unlock()
		return "", sserr.Newf(sserr.CodeCapacityConcurrentRuns,
			"engine: engine %s is at its concurrent execution limit (%d)",
			e.engineID, e.maxConcurrent).
			WithDetail("max_concurrent", e.maxConcurrent)
	}
	e.activeRuns[executionID] = agentCtx
	e.mu.Unlock()

	if e.monitor != nil {
		e.monitor.RecordStart(ctx, executionID, e.userCtx, agentCtx.AgentName,
			map[string]any{"engine_id": e.engineID})
	}

	if err := e.notifier.NotifyStarted(ctx, agentCtx); err != nil {
		e.logger.Warn("engine: started notification failed",
			"engine_id", e.engineID, "execution_id", executionID, "error", err)
	}

	e.logger.Debug("engine: execution started",
		"engine_id", e.engineID, "execution_id", executionID, "agent", agentCtx.AgentName)
	return executionID, nil
}

// NotifyThinking forwards an intermediate progress message for an
// in-flight execution. Unknown execution IDs are rejected; notifier
// failures are logged and swallowed.
func (e *UserExecutionEngine) NotifyThinking(ctx context.Context, executionID, message string) error {
	e.mu.RLock()
	agentCtx, ok := e.activeRuns[executionID]
	e.mu.RUnlock()
	if !ok {
		return sserr.Newf(sserr.CodeNotFoundExecution,
			"engine: no active execution %s on engine %s", executionID, e.engineID)
	}

	if err := e.notifier.NotifyThinking(ctx, agentCtx, message); err != nil {
		e.logger.Warn("engine: thinking notification failed",
			"engine_id", e.engineID, "execution_id", executionID, "error", err)
	}
	return nil
}

// CompleteExecution validates ownership, deregisters the in-flight
// execution, folds the result into the engine's history and local
// statistics, and emits a "completed" notification.
func (e *UserExecutionEngine) CompleteExecution(ctx context.Context, executionID string, agentCtx execution.AgentContext, result execution.Result) error {
	ctx, span := e.tracer.Start(ctx, "engine.CompleteExecution",
		trace.WithAttributes(
			attribute.String("engine.id", e.engineID),
			attribute.String("execution.id", executionID),
			attribute.Bool("execution.success", result.Success),
		),
	)
	defer span.End()

	if err := e.validateOwnership(agentCtx); err != nil {
		return err
	}

	e.mu.Lock()
	if _, ok := e.activeRuns[executionID]; !ok {
		e.mu.Unlock()
		return sserr.Newf(sserr.CodeNotFoundExecution,
			"engine: no active execution %s on engine %s", executionID, e.engineID)
	}
	delete(e.activeRuns, executionID)

	e.runHistory = append(e.runHistory, result)
	if len(e.runHistory) > e.historyLimit {
		e.runHistory = e.runHistory[len(e.runHistory)-e.historyLimit:]
	}
	e.total++
	if result.Success {
		e.successful++
	}
	e.totalDuration += result.Duration
	e.mu.Unlock()

	if e.monitor != nil {
		e.monitor.RecordComplete(ctx, executionID, result)
	}

	if err := e.notifier.NotifyCompleted(ctx, agentCtx, result); err != nil {
		e.logger.Warn("engine: completed notification failed",
			"engine_id", e.engineID, "execution_id", executionID, "error", err)
	}

	e.logger.Debug("engine: execution completed",
		"engine_id", e.engineID, "execution_id", executionID, "success", result.Success)
	return nil
}

// Execute runs one agent invocation end to end: start, produce the
// agent via the factory, invoke it, and complete. Agent factory and
// agent errors surface to the caller unchanged after the completion is
// recorded as a failure.
func (e *UserExecutionEngine) Execute(ctx context.Context, agentCtx execution.AgentContext) (execution.Result, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Execute",
		trace.WithAttributes(
			attribute.String("engine.id", e.engineID),
			attribute.String("agent.name", agentCtx.AgentName),
		),
	)
	defer span.End()

	executionID, err := e.StartExecution(ctx, agentCtx)
	if err != nil {
		return execution.Result{}, err
	}

	started := time.Now()
	var result execution.Result
	var execErr error

	agent, err := e.agents.AgentFor(ctx, e.userCtx, agentCtx.AgentName)
	if err != nil {
		execErr = err
	} else {
		result, execErr = agent.Execute(ctx, agentCtx)
	}

	result.AgentName = agentCtx.AgentName
	if result.Duration == 0 {
		result.Duration = time.Since(started)
	}
	if execErr != nil {
		result.Success = false
		if result.Err == "" {
			result.Err = execErr.Error()
		}
	}

	if cerr := e.CompleteExecution(ctx, executionID, agentCtx, result); cerr != nil {
		e.logger.Warn("engine: failed to record completion",
			"engine_id", e.engineID, "execution_id", executionID, "error", cerr)
	}

	return result, execErr
}

// Stats returns a fresh snapshot of the engine's local statistics.
func (e *UserExecutionEngine) Stats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := EngineStats{
		EngineID:             e.engineID,
		UserID:               e.userCtx.UserID,
		RunID:                e.userCtx.RunID,
		Active:               e.active,
		ActiveRuns:           len(e.activeRuns),
		TotalExecutions:      e.total,
		SuccessfulExecutions: e.successful,
		HistorySize:          len(e.runHistory),
	}
	if e.total > 0 {
		stats.AvgExecutionTime = e.totalDuration / time.Duration(e.total)
	}
	return stats
}

// RunHistory returns a copy of the engine's retained execution results,
// oldest first.
func (e *UserExecutionEngine) RunHistory() []execution.Result {
	e.mu.RLock()
	defer e.mu.RUnlock()

	history := make([]execution.Result, len(e.runHistory))
	copy(history, e.runHistory)
	return history
}

// deactivate marks the engine inactive and drops its in-flight runs.
// Run history survives for final inspection. Only the factory calls
// this, during teardown.
func (e *UserExecutionEngine) deactivate() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return
	}
	e.active = false
	e.activeRuns = make(map[string]execution.AgentContext)
	e.logger.Debug("engine: deactivated", "engine_id", e.engineID)
}
