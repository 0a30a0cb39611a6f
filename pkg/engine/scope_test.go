package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===========================================================================
// Scoped Acquisition Tests
// ===========================================================================

func TestWithEngine_SuccessPath(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newTestFactory(t)
	base := f.Metrics()

	var held *UserExecutionEngine
	err := f.WithEngine(ctx, testUserCtx("alice"), func(ctx context.Context, eng *UserExecutionEngine) error {
		held = eng
		assert.True(t, eng.Active())

		_, err := eng.Execute(ctx, testAgentCtx("alice", "researcher"))
		return err
	})
	require.NoError(t, err)

	assert.False(t, held.Active(), "engine torn down on scope exit")
	m := f.Metrics()
	assert.Equal(t, base.ActiveEnginesCount, m.ActiveEnginesCount,
		"active count returns to pre-entry value")
	assert.Equal(t, base.TotalEnginesCleaned+1, m.TotalEnginesCleaned)
}

func TestWithEngine_ErrorPath(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newTestFactory(t)
	base := f.Metrics()

	sentinel := errors.New("agent blew up")
	var held *UserExecutionEngine
	err := f.WithEngine(ctx, testUserCtx("alice"), func(ctx context.Context, eng *UserExecutionEngine) error {
		held = eng
		return sentinel
	})
	require.ErrorIs(t, err, sentinel, "fn error passes through")

	assert.False(t, held.Active(), "engine torn down on the error path too")
	assert.Equal(t, base.ActiveEnginesCount, f.Metrics().ActiveEnginesCount)
}

func TestWithEngine_PanicPath(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newTestFactory(t)

	var held *UserExecutionEngine
	func() {
		defer func() {
			require.NotNil(t, recover(), "panic propagates out of the scope")
		}()
		_ = f.WithEngine(ctx, testUserCtx("alice"), func(ctx context.Context, eng *UserExecutionEngine) error {
			held = eng
			panic("unexpected agent state")
		})
	}()

	assert.False(t, held.Active(), "engine torn down even when fn panics")
	assert.Zero(t, f.Metrics().ActiveEnginesCount)
}

func TestWithEngine_CreateFailureSkipsFn(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newTestFactory(t)
	user := testUserCtx("alice")

	// Saturate the user's engine allowance.
	for range DefaultMaxEnginesPerUser {
		_, err := f.CreateForUser(ctx, user)
		require.NoError(t, err)
	}

	called := false
	err := f.WithEngine(ctx, user, func(ctx context.Context, eng *UserExecutionEngine) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reached maximum engine limit")
	assert.False(t, called, "fn must not run without an engine")
}

func TestWithEngine_CancellationPath(t *testing.T) {
	t.Parallel()
	f := newTestFactory(t)

	ctx, cancel := context.WithCancel(context.Background())
	var held *UserExecutionEngine
	err := f.WithEngine(ctx, testUserCtx("alice"), func(ctx context.Context, eng *UserExecutionEngine) error {
		held = eng
		cancel()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return errors.New("cancellation not observed")
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, held.Active())
	assert.Zero(t, f.Metrics().ActiveEnginesCount)
}

func TestWithEngine_ReleasedSlotIsReusable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newTestFactory(t)
	user := testUserCtx("alice")

	// Sequential scopes for the same user never trip the engine limit.
	for range DefaultMaxEnginesPerUser * 3 {
		err := f.WithEngine(ctx, user, func(ctx context.Context, eng *UserExecutionEngine) error {
			_, err := eng.Execute(ctx, testAgentCtx("alice", "researcher"))
			return err
		})
		require.NoError(t, err)
	}

	m := f.Metrics()
	assert.Equal(t, m.TotalEnginesCreated, m.TotalEnginesCleaned)
	assert.Zero(t, m.ActiveEnginesCount)
}
