package engine

import (
	"context"

	"github.com/StricklySoft/stricklysoft-execution/pkg/execution"
)

// WithEngine runs fn with a freshly created engine and guarantees the
// engine is cleaned up on every exit path: normal return, error, and
// panic. This is the primary acquisition pattern; explicit
// [ExecutionEngineFactory.CreateForUser] / CleanupEngine pairing is the
// fallback for callers that cannot structure their work as a closure.
//
// Creation errors (capacity, validation) are returned without invoking
// fn.
func (f *ExecutionEngineFactory) WithEngine(ctx context.Context, userCtx execution.UserContext, fn func(ctx context.Context, eng *UserExecutionEngine) error) error {
	eng, err := f.CreateForUser(ctx, userCtx)
	if err != nil {
		return err
	}
	defer f.CleanupEngine(eng)

	return fn(ctx, eng)
}
