// Package testutil provides shared test helpers for the execution
// backend test suite.
//
// All helpers accept [testing.TB] for compatibility with both tests and
// benchmarks. Functions that halt the test on failure use [require] from
// testify; functions that record failures without stopping use [assert].
//
// Every helper calls t.Helper() so that test failure messages report the
// caller's file and line number rather than this package's.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/stricklysoft-execution/pkg/errors"
	"github.com/StricklySoft/stricklysoft-execution/pkg/execution"
)

// RequireErrorCode halts the test if err is nil, is not an *sserr.Error,
// or does not carry the expected error code. This is the primary helper
// for validating the backend's structured errors.
//
// Example:
//
//	_, err := factory.CreateForUser(ctx, userCtx)
//	testutil.RequireErrorCode(t, err, sserr.CodeCapacityEngineLimit)
func RequireErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) {
	t.Helper()
	require.Error(t, err, msgAndArgs...)
	ssErr, ok := sserr.AsError(err)
	require.True(t, ok, "expected *sserr.Error, got %T: %v", err, err)
	require.Equal(t, code, ssErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		ssErr.Code, code, ssErr.Message)
}

// AssertErrorCode records a test failure (without halting) if err is nil,
// is not an *sserr.Error, or does not carry the expected error code.
// Use this in table-driven tests where you want to check all rows.
func AssertErrorCode(t testing.TB, err error, code sserr.Code, msgAndArgs ...any) bool {
	t.Helper()
	if !assert.Error(t, err, msgAndArgs...) {
		return false
	}
	ssErr, ok := sserr.AsError(err)
	if !assert.True(t, ok, "expected *sserr.Error, got %T: %v", err, err) {
		return false
	}
	return assert.Equal(t, code, ssErr.Code,
		"error code mismatch: got %q, want %q (message: %s)",
		ssErr.Code, code, ssErr.Message)
}

// AssertNoSSError records a test failure if err is non-nil, printing the
// structured code and message when err is an *sserr.Error.
func AssertNoSSError(t testing.TB, err error) bool {
	t.Helper()
	if err == nil {
		return true
	}
	if ssErr, ok := sserr.AsError(err); ok {
		return assert.Fail(t,
			"unexpected sserr.Error",
			"code=%s message=%s", ssErr.Code, ssErr.Message)
	}
	return assert.NoError(t, err)
}

// UserContext builds a valid [execution.UserContext] for the given user,
// deriving deterministic thread and run IDs so that assertions on
// engine IDs stay readable.
func UserContext(userID string) execution.UserContext {
	return execution.UserContext{
		UserID:   userID,
		ThreadID: "thread-" + userID,
		RunID:    "run-" + userID,
	}
}

// AgentContext builds a valid [execution.AgentContext] owned by the
// given user, consistent with [UserContext] for the same userID.
func AgentContext(userID, agentName string) execution.AgentContext {
	return execution.AgentContext{
		AgentName: agentName,
		UserID:    userID,
		ThreadID:  "thread-" + userID,
		RunID:     "run-" + userID,
	}
}
