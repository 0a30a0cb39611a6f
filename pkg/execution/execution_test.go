package execution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/stricklysoft-execution/pkg/errors"
)

// ===========================================================================
// UserContext Tests
// ===========================================================================

// TestNewUserContext verifies construction with a generated request ID.
func TestNewUserContext(t *testing.T) {
	t.Parallel()

	ctx, err := NewUserContext("user-1", "thread-1", "run-1")
	require.NoError(t, err)

	assert.Equal(t, "user-1", ctx.UserID)
	assert.Equal(t, "thread-1", ctx.ThreadID)
	assert.Equal(t, "run-1", ctx.RunID)
	assert.NotEmpty(t, ctx.RequestID)
}

// TestNewUserContext_GeneratesUniqueRequestIDs verifies that two contexts
// for the same identifiers never share a request ID.
func TestNewUserContext_GeneratesUniqueRequestIDs(t *testing.T) {
	t.Parallel()

	a, err := NewUserContext("user-1", "thread-1", "run-1")
	require.NoError(t, err)
	b, err := NewUserContext("user-1", "thread-1", "run-1")
	require.NoError(t, err)

	assert.NotEqual(t, a.RequestID, b.RequestID)
}

// TestUserContext_Validate verifies each required field is enforced.
func TestUserContext_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ctx  UserContext
	}{
		{"missing user ID", UserContext{ThreadID: "t", RunID: "r"}},
		{"missing thread ID", UserContext{UserID: "u", RunID: "r"}},
		{"missing run ID", UserContext{UserID: "u", ThreadID: "t"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.ctx.Validate()
			require.Error(t, err)
			assert.True(t, sserr.HasCode(err, sserr.CodeValidationRequired))
		})
	}

	valid := UserContext{UserID: "u", ThreadID: "t", RunID: "r"}
	assert.NoError(t, valid.Validate())
}

// ===========================================================================
// AgentContext Tests
// ===========================================================================

// TestAgentContext_Validate verifies each required field is enforced.
func TestAgentContext_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ctx  AgentContext
	}{
		{"missing agent name", AgentContext{UserID: "u", ThreadID: "t", RunID: "r"}},
		{"missing user ID", AgentContext{AgentName: "a", ThreadID: "t", RunID: "r"}},
		{"missing thread ID", AgentContext{AgentName: "a", UserID: "u", RunID: "r"}},
		{"missing run ID", AgentContext{AgentName: "a", UserID: "u", ThreadID: "t"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.ctx.Validate()
			require.Error(t, err)
			assert.True(t, sserr.HasCode(err, sserr.CodeValidationRequired))
		})
	}

	valid := AgentContext{AgentName: "a", UserID: "u", ThreadID: "t", RunID: "r"}
	assert.NoError(t, valid.Validate())
}

// TestNewExecutionID verifies uniqueness of generated IDs.
func TestNewExecutionID(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for range 100 {
		id := NewExecutionID()
		require.NotEmpty(t, id)
		require.False(t, seen[id], "duplicate execution ID %q", id)
		seen[id] = true
	}
}

// ===========================================================================
// Record Tests
// ===========================================================================

func validUserContext() UserContext {
	return UserContext{UserID: "user-1", ThreadID: "thread-1", RunID: "run-1"}
}

// TestNewRecord verifies initial record state.
func TestNewRecord(t *testing.T) {
	t.Parallel()

	rec, err := NewRecord("exec-1", validUserContext(), "research-agent", nil)
	require.NoError(t, err)

	assert.Equal(t, "exec-1", rec.ExecutionID)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, "research-agent", rec.AgentName)
	assert.False(t, rec.StartedAt.IsZero())
	assert.Nil(t, rec.CompletedAt)
	assert.Nil(t, rec.Duration)
	assert.False(t, rec.Success)
	assert.NotNil(t, rec.Metadata, "nil metadata must be normalized to an empty map")
	assert.False(t, rec.Completed())
}

// TestNewRecord_Validation verifies required inputs.
func TestNewRecord_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewRecord("", validUserContext(), "agent", nil)
	assert.True(t, sserr.HasCode(err, sserr.CodeValidationRequired))

	_, err = NewRecord("exec-1", UserContext{}, "agent", nil)
	assert.True(t, sserr.HasCode(err, sserr.CodeValidationRequired))

	_, err = NewRecord("exec-1", validUserContext(), "", nil)
	assert.True(t, sserr.HasCode(err, sserr.CodeValidationRequired))
}

// TestRecord_Complete verifies completion prefers the agent-reported
// duration over the wall-clock delta.
func TestRecord_Complete(t *testing.T) {
	t.Parallel()

	rec, err := NewRecord("exec-1", validUserContext(), "agent", nil)
	require.NoError(t, err)

	rec.Complete(Result{
		Success:   true,
		AgentName: "agent",
		Duration:  2 * time.Second,
	})

	require.NotNil(t, rec.CompletedAt)
	require.NotNil(t, rec.Duration)
	assert.Equal(t, 2*time.Second, *rec.Duration)
	assert.True(t, rec.Success)
	assert.Empty(t, rec.Error)
	assert.True(t, rec.Completed())
}

// TestRecord_Complete_WallClockFallback verifies the wall-clock delta is
// used when the result carries no duration.
func TestRecord_Complete_WallClockFallback(t *testing.T) {
	t.Parallel()

	rec, err := NewRecord("exec-1", validUserContext(), "agent", nil)
	require.NoError(t, err)
	rec.StartedAt = time.Now().UTC().Add(-3 * time.Second)

	rec.Complete(Result{Success: false, Err: "model refused"})

	require.NotNil(t, rec.Duration)
	assert.GreaterOrEqual(t, *rec.Duration, 3*time.Second)
	assert.False(t, rec.Success)
	assert.Equal(t, "model refused", rec.Error)
}

// TestRecord_Complete_Idempotent verifies a second completion is ignored.
func TestRecord_Complete_Idempotent(t *testing.T) {
	t.Parallel()

	rec, err := NewRecord("exec-1", validUserContext(), "agent", nil)
	require.NoError(t, err)

	rec.Complete(Result{Success: true, Duration: time.Second})
	first := *rec.CompletedAt

	rec.Complete(Result{Success: false, Duration: 9 * time.Second, Err: "late"})

	assert.Equal(t, first, *rec.CompletedAt)
	assert.Equal(t, time.Second, *rec.Duration)
	assert.True(t, rec.Success)
	assert.Empty(t, rec.Error)
}

// TestRecord_Age verifies age computation against a reference time.
func TestRecord_Age(t *testing.T) {
	t.Parallel()

	rec, err := NewRecord("exec-1", validUserContext(), "agent", nil)
	require.NoError(t, err)

	now := rec.StartedAt.Add(90 * time.Second)
	assert.Equal(t, 90*time.Second, rec.Age(now))
}
