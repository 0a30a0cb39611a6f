package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/stricklysoft-execution/pkg/errors"
)

// ===========================================================================
// Engine Limit Tests
// ===========================================================================

func TestExecutionEngineFactory_EngineLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newTestFactory(t)
	user := testUserCtx("alice")

	engines := make([]*UserExecutionEngine, 0, DefaultMaxEnginesPerUser)
	for range DefaultMaxEnginesPerUser {
		eng, err := f.CreateForUser(ctx, user)
		require.NoError(t, err)
		engines = append(engines, eng)
	}

	_, err := f.CreateForUser(ctx, user)
	require.Error(t, err)
	assert.True(t, sserr.IsCapacity(err))
	assert.True(t, sserr.HasCode(err, sserr.CodeCapacityEngineLimit))
	assert.Contains(t, err.Error(), "reached maximum engine limit")

	// Cleaning one engine frees a slot.
	f.CleanupEngine(engines[0])
	_, err = f.CreateForUser(ctx, user)
	assert.NoError(t, err)
}

func TestExecutionEngineFactory_LimitIsPerUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newTestFactory(t)

	for range DefaultMaxEnginesPerUser {
		_, err := f.CreateForUser(ctx, testUserCtx("alice"))
		require.NoError(t, err)
	}

	// Alice being at her limit must not affect Bob.
	_, err := f.CreateForUser(ctx, testUserCtx("bob"))
	assert.NoError(t, err)
	assert.Equal(t, DefaultMaxEnginesPerUser, f.ActiveEngineCount("alice"))
	assert.Equal(t, 1, f.ActiveEngineCount("bob"))
}

func TestExecutionEngineFactory_ConcurrentCreatesRespectLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newTestFactory(t)
	user := testUserCtx("alice")

	const attempts = 16
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = f.CreateForUser(ctx, user)
		}()
	}
	wg.Wait()

	var succeeded int
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, sserr.IsCapacity(err))
		}
	}
	assert.Equal(t, DefaultMaxEnginesPerUser, succeeded,
		"check-then-register races must not exceed the ceiling")
	assert.Equal(t, DefaultMaxEnginesPerUser, f.ActiveEngineCount("alice"))
}

// ===========================================================================
// Cleanup Tests
// ===========================================================================

func TestExecutionEngineFactory_CleanupEngine(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newTestFactory(t)

	eng, err := f.CreateForUser(ctx, testUserCtx("alice"))
	require.NoError(t, err)
	base := f.Metrics()

	f.CleanupEngine(eng)
	assert.False(t, eng.Active())

	m := f.Metrics()
	assert.Equal(t, base.TotalEnginesCleaned+1, m.TotalEnginesCleaned)
	assert.Equal(t, base.ActiveEnginesCount-1, m.ActiveEnginesCount)

	// Second cleanup is a no-op and does not double-count.
	f.CleanupEngine(eng)
	assert.Equal(t, m, f.Metrics())
}

func TestExecutionEngineFactory_CleanupTolerance(t *testing.T) {
	t.Parallel()
	f := newTestFactory(t)

	t.Run("nil engine", func(t *testing.T) {
		t.Parallel()
		f.CleanupEngine(nil)
	})

	t.Run("engine from another factory", func(t *testing.T) {
		t.Parallel()
		other := newTestFactory(t)
		eng, err := other.CreateForUser(context.Background(), testUserCtx("carol"))
		require.NoError(t, err)

		before := f.Metrics()
		f.CleanupEngine(eng)
		assert.Equal(t, before, f.Metrics(), "foreign engine is untracked, no-op")
		assert.True(t, eng.Active(), "foreign factory must not deactivate it")
	})
}

func TestExecutionEngineFactory_CleanupUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newTestFactory(t)

	for range DefaultMaxEnginesPerUser {
		_, err := f.CreateForUser(ctx, testUserCtx("alice"))
		require.NoError(t, err)
	}
	bobEngine, err := f.CreateForUser(ctx, testUserCtx("bob"))
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxEnginesPerUser, f.CleanupUser("alice"))
	assert.Zero(t, f.ActiveEngineCount("alice"))
	assert.True(t, bobEngine.Active(), "other users untouched")

	assert.Zero(t, f.CleanupUser("alice"), "repeat cleanup finds nothing")
}

func TestExecutionEngineFactory_CleanupAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newTestFactory(t)

	engines := make([]*UserExecutionEngine, 0, 3)
	for _, user := range []string{"alice", "bob", "carol"} {
		eng, err := f.CreateForUser(ctx, testUserCtx(user))
		require.NoError(t, err)
		engines = append(engines, eng)
	}

	assert.Equal(t, 3, f.CleanupAll())
	for _, eng := range engines {
		assert.False(t, eng.Active())
	}
	assert.Zero(t, f.Metrics().ActiveEnginesCount)
}

// ===========================================================================
// Metrics Tests
// ===========================================================================

func TestExecutionEngineFactory_Metrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newTestFactory(t)

	assert.Equal(t, FactoryMetrics{}, f.Metrics())

	engineA, err := f.CreateForUser(ctx, testUserCtx("alice"))
	require.NoError(t, err)
	_, err = f.CreateForUser(ctx, testUserCtx("bob"))
	require.NoError(t, err)

	m := f.Metrics()
	assert.Equal(t, int64(2), m.TotalEnginesCreated)
	assert.Zero(t, m.TotalEnginesCleaned)
	assert.Equal(t, 2, m.ActiveEnginesCount)

	f.CleanupEngine(engineA)
	m = f.Metrics()
	assert.Equal(t, int64(2), m.TotalEnginesCreated, "created is monotonic")
	assert.Equal(t, int64(1), m.TotalEnginesCleaned)
	assert.Equal(t, 1, m.ActiveEnginesCount)
}

// ===========================================================================
// Shutdown Tests
// ===========================================================================

func TestExecutionEngineFactory_Shutdown(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f, err := NewExecutionEngineFactory(&stubAgentFactory{}, DefaultFactoryConfig())
	require.NoError(t, err)

	eng, err := f.CreateForUser(ctx, testUserCtx("alice"))
	require.NoError(t, err)

	require.NoError(t, f.Shutdown(ctx))
	assert.False(t, eng.Active())
	assert.Zero(t, f.Metrics().ActiveEnginesCount)

	_, err = f.CreateForUser(ctx, testUserCtx("alice"))
	require.Error(t, err)
	assert.True(t, sserr.IsUnavailable(err))

	require.NoError(t, f.Shutdown(ctx), "shutdown is idempotent")
}

// ===========================================================================
// Compatibility Wrapper Tests
// ===========================================================================

func TestUnifiedExecutionEngineFactory_Delegates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newTestFactory(t)
	unified := NewUnifiedExecutionEngineFactory(f)

	eng, err := unified.CreateExecutionEngine(ctx, testUserCtx("alice"))
	require.NoError(t, err)
	assert.Equal(t, 1, f.ActiveEngineCount("alice"), "delegates to the canonical factory")

	m := unified.GetMetrics()
	assert.Equal(t, f.Metrics(), m)

	// Configure is a logged no-op: limits stay as constructed.
	unified.Configure(map[string]any{"max_engines_per_user": 99})
	for range DefaultMaxEnginesPerUser - 1 {
		_, err := unified.CreateExecutionEngine(ctx, testUserCtx("alice"))
		require.NoError(t, err)
	}
	_, err = unified.CreateExecutionEngine(ctx, testUserCtx("alice"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reached maximum engine limit")

	unified.Cleanup(eng)
	assert.False(t, eng.Active())

	require.NoError(t, unified.Shutdown(ctx))
	_, err = unified.CreateExecutionEngine(ctx, testUserCtx("alice"))
	assert.Error(t, err)
}
