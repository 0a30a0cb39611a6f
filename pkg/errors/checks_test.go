package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAsError verifies extraction of *Error through wrapped chains.
func TestAsError(t *testing.T) {
	t.Parallel()

	platform := New(CodeCapacityEngineLimit, "user reached maximum engine limit")

	e, ok := AsError(platform)
	require.True(t, ok)
	assert.Same(t, platform, e)

	// Wrapped in a plain fmt error, the platform error is still found.
	wrapped := fmt.Errorf("outer: %w", platform)
	e, ok = AsError(wrapped)
	require.True(t, ok)
	assert.Same(t, platform, e)

	_, ok = AsError(stderrors.New("plain"))
	assert.False(t, ok)

	_, ok = AsError(nil)
	assert.False(t, ok)
}

// TestGetCode verifies code extraction for platform and non-platform errors.
func TestGetCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CodeValidation, GetCode(New(CodeValidation, "v")))
	assert.Equal(t, Code(""), GetCode(stderrors.New("plain")))
	assert.Equal(t, Code(""), GetCode(nil))
}

// TestHasCode verifies exact code matching.
func TestHasCode(t *testing.T) {
	t.Parallel()

	err := New(CodeCapacityConcurrentRuns, "ceiling")
	assert.True(t, HasCode(err, CodeCapacityConcurrentRuns))
	assert.False(t, HasCode(err, CodeCapacity))
	assert.False(t, HasCode(nil, CodeCapacity))
}

// TestCategoryChecks verifies each Is* helper against matching and
// non-matching errors.
func TestCategoryChecks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		check func(error) bool
		match Code
	}{
		{"IsValidation", IsValidation, CodeValidationOwnership},
		{"IsCapacity", IsCapacity, CodeCapacityEngineLimit},
		{"IsNotFound", IsNotFound, CodeNotFoundExecution},
		{"IsConflict", IsConflict, CodeConflictInactive},
		{"IsInternal", IsInternal, CodeInternalDatabase},
		{"IsUnavailable", IsUnavailable, CodeUnavailableDependency},
		{"IsTimeout", IsTimeout, CodeTimeoutShutdown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.True(t, tt.check(New(tt.match, "m")))
			assert.False(t, tt.check(stderrors.New("plain")))
			assert.False(t, tt.check(nil))

			// A code from a different category never matches.
			other := CodeInternal
			if tt.match.Category() == "INT" {
				other = CodeValidation
			}
			assert.False(t, tt.check(New(other, "m")))
		})
	}
}
