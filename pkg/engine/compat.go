package engine

import (
	"context"
	"log/slog"

	"github.com/StricklySoft/stricklysoft-execution/pkg/execution"
)

// UnifiedExecutionEngineFactory re-exposes [ExecutionEngineFactory]
// under the legacy method names that predate the factory split. It
// holds no state of its own and delegates every call 1:1.
//
// Deprecated: use [ExecutionEngineFactory] directly. This wrapper
// exists only to keep older call sites compiling during migration and
// will be removed in a future release.
type UnifiedExecutionEngineFactory struct {
	factory *ExecutionEngineFactory
	logger  *slog.Logger
}

// NewUnifiedExecutionEngineFactory wraps an existing factory under the
// legacy surface. A deprecation warning is logged on construction.
//
// Deprecated: use [NewExecutionEngineFactory].
func NewUnifiedExecutionEngineFactory(factory *ExecutionEngineFactory) *UnifiedExecutionEngineFactory {
	logger := slog.Default()
	if factory != nil {
		logger = factory.logger
	}
	logger.Warn("engine: UnifiedExecutionEngineFactory is deprecated, use ExecutionEngineFactory")
	return &UnifiedExecutionEngineFactory{factory: factory, logger: logger}
}

// CreateExecutionEngine delegates to
// [ExecutionEngineFactory.CreateForUser].
//
// Deprecated: use [ExecutionEngineFactory.CreateForUser].
func (u *UnifiedExecutionEngineFactory) CreateExecutionEngine(ctx context.Context, userCtx execution.UserContext) (*UserExecutionEngine, error) {
	return u.factory.CreateForUser(ctx, userCtx)
}

// Configure is retained for call-site compatibility only. The legacy
// surface accepted runtime reconfiguration; the canonical factory is
// configured at construction, so this logs and ignores its input.
//
// Deprecated: configure via [FactoryConfig] at construction time.
func (u *UnifiedExecutionEngineFactory) Configure(settings map[string]any) {
	u.logger.Warn("engine: Configure is deprecated and has no effect; set FactoryConfig at construction",
		"ignored_keys", len(settings))
}

// GetMetrics delegates to [ExecutionEngineFactory.Metrics].
//
// Deprecated: use [ExecutionEngineFactory.Metrics].
func (u *UnifiedExecutionEngineFactory) GetMetrics() FactoryMetrics {
	return u.factory.Metrics()
}

// Cleanup delegates to [ExecutionEngineFactory.CleanupEngine].
//
// Deprecated: use [ExecutionEngineFactory.CleanupEngine].
func (u *UnifiedExecutionEngineFactory) Cleanup(eng *UserExecutionEngine) {
	u.factory.CleanupEngine(eng)
}

// Shutdown delegates to [ExecutionEngineFactory.Shutdown].
//
// Deprecated: use [ExecutionEngineFactory.Shutdown].
func (u *UnifiedExecutionEngineFactory) Shutdown(ctx context.Context) error {
	return u.factory.Shutdown(ctx)
}
