// Package execution defines the core value types for the StricklySoft
// execution platform: execution contexts, results, and state records.
//
// The types in this package are the shared vocabulary between the
// execution engine factory, the per-user execution engines, and the
// execution state store. They are designed for serialization (JSON),
// database persistence, and cross-service transport.
//
// Ownership Model:
//
// A [UserContext] identifies one user's logical unit of work (a run).
// An [AgentContext] identifies a single agent invocation within that run
// and must carry the same user ID as the owning [UserContext]. Every
// engine operation validates this ownership relation before touching any
// state; a mismatch is a validation error, never a silent ignore.
//
// Record Lifecycle:
//
// A [Record] is created when an execution starts, completed exactly once
// when its result arrives, and never mutated again. Records are evicted
// from the state store by age, not by explicit deletion.
package execution

import (
	"github.com/google/uuid"

	sserr "github.com/StricklySoft/stricklysoft-execution/pkg/errors"
)

// UserContext identifies a logical unit of work scoped to a single user.
// It is immutable once created; equality of ownership is by UserID.
//
// All engine operations validate that any [AgentContext] they operate on
// carries a matching UserID.
type UserContext struct {
	// UserID is the ID of the user that owns this unit of work.
	UserID string `json:"user_id" yaml:"user_id"`

	// ThreadID identifies the conversation thread the run belongs to.
	ThreadID string `json:"thread_id" yaml:"thread_id"`

	// RunID identifies this run within the thread.
	RunID string `json:"run_id" yaml:"run_id"`

	// RequestID optionally correlates the run with an inbound request.
	// [NewUserContext] generates one when the caller does not supply it.
	RequestID string `json:"request_id,omitempty" yaml:"request_id,omitempty"`
}

// NewUserContext creates a validated UserContext with a generated request
// ID. Returns a [sserr.CodeValidationRequired] error if any of userID,
// threadID, or runID is empty.
func NewUserContext(userID, threadID, runID string) (UserContext, error) {
	ctx := UserContext{
		UserID:    userID,
		ThreadID:  threadID,
		RunID:     runID,
		RequestID: uuid.New().String(),
	}
	if err := ctx.Validate(); err != nil {
		return UserContext{}, err
	}
	return ctx, nil
}

// Validate checks that all required fields are present. RequestID is
// optional. Returns the first validation error encountered, or nil if the
// context is valid.
func (c UserContext) Validate() error {
	if c.UserID == "" {
		return sserr.New(sserr.CodeValidationRequired,
			"execution: user context user ID must not be empty")
	}
	if c.ThreadID == "" {
		return sserr.New(sserr.CodeValidationRequired,
			"execution: user context thread ID must not be empty")
	}
	if c.RunID == "" {
		return sserr.New(sserr.CodeValidationRequired,
			"execution: user context run ID must not be empty")
	}
	return nil
}

// AgentContext identifies a single agent invocation within a run. The
// UserID, ThreadID, and RunID must match the owning [UserContext]; the
// engine enforces the UserID relation on every operation.
type AgentContext struct {
	// AgentName is the name of the agent being invoked.
	AgentName string `json:"agent_name"`

	// UserID is the ID of the user the invocation is performed for.
	UserID string `json:"user_id"`

	// ThreadID identifies the conversation thread.
	ThreadID string `json:"thread_id"`

	// RunID identifies the run the invocation belongs to.
	RunID string `json:"run_id"`
}

// Validate checks that all required fields are present.
func (c AgentContext) Validate() error {
	if c.AgentName == "" {
		return sserr.New(sserr.CodeValidationRequired,
			"execution: agent context agent name must not be empty")
	}
	if c.UserID == "" {
		return sserr.New(sserr.CodeValidationRequired,
			"execution: agent context user ID must not be empty")
	}
	if c.ThreadID == "" {
		return sserr.New(sserr.CodeValidationRequired,
			"execution: agent context thread ID must not be empty")
	}
	if c.RunID == "" {
		return sserr.New(sserr.CodeValidationRequired,
			"execution: agent context run ID must not be empty")
	}
	return nil
}

// NewExecutionID generates a unique execution identifier (UUID v4).
func NewExecutionID() string {
	return uuid.New().String()
}
