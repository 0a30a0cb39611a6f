package execution

import (
	"time"

	sserr "github.com/StricklySoft/stricklysoft-execution/pkg/errors"
)

// Record represents one tracked execution in the state store. It is
// created on execution start via [NewRecord], completed exactly once via
// [Record.Complete], and never mutated again. Records are destroyed by
// age-based eviction in the store, not by explicit deletion.
type Record struct {
	// ExecutionID is the unique identifier of the execution (UUID v4).
	ExecutionID string `json:"execution_id" db:"execution_id"`

	// UserID is the ID of the user that owns the execution.
	UserID string `json:"user_id" db:"user_id"`

	// AgentName is the name of the agent that performed the execution.
	AgentName string `json:"agent_name" db:"agent_name"`

	// StartedAt is the UTC timestamp when the execution was recorded as
	// started.
	StartedAt time.Time `json:"started_at" db:"started_at"`

	// CompletedAt is the UTC timestamp when the execution completed.
	// Nil while the execution is still in flight.
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	// Duration is the execution duration. Nil until completion. The
	// agent-reported duration is preferred; the store falls back to the
	// wall-clock delta when the result carries none.
	Duration *time.Duration `json:"duration,omitempty" db:"duration"`

	// Success reports whether the execution completed successfully.
	// False until completion.
	Success bool `json:"success" db:"success"`

	// Error contains the failure description for failed executions.
	Error string `json:"error,omitempty" db:"error"`

	// Metadata is an extensible key-value store for caller-specific data
	// attached at start time. Nil metadata is normalized to an empty map
	// by [NewRecord].
	Metadata map[string]any `json:"metadata" db:"metadata"`
}

// NewRecord creates a Record for an execution that has just started.
// The started timestamp is set to the current UTC time and nil metadata
// is normalized to an empty map.
//
// Returns a [sserr.CodeValidationRequired] error when executionID is
// empty or the user context is invalid.
func NewRecord(executionID string, userCtx UserContext, agentName string, metadata map[string]any) (*Record, error) {
	if executionID == "" {
		return nil, sserr.New(sserr.CodeValidationRequired,
			"execution: record execution ID must not be empty")
	}
	if err := userCtx.Validate(); err != nil {
		return nil, err
	}
	if agentName == "" {
		return nil, sserr.New(sserr.CodeValidationRequired,
			"execution: record agent name must not be empty")
	}

	if metadata == nil {
		metadata = make(map[string]any)
	}

	return &Record{
		ExecutionID: executionID,
		UserID:      userCtx.UserID,
		AgentName:   agentName,
		StartedAt:   time.Now().UTC(),
		Metadata:    metadata,
	}, nil
}

// Complete marks the record as finished with the given result. The
// result's reported duration is preferred; when it is zero the wall-clock
// delta from StartedAt is used instead. Complete is a no-op on a record
// that has already been completed.
func (r *Record) Complete(result Result) {
	if r.CompletedAt != nil {
		return
	}

	now := time.Now().UTC()
	r.CompletedAt = &now

	d := result.Duration
	if d == 0 {
		d = now.Sub(r.StartedAt)
	}
	r.Duration = &d

	r.Success = result.Success
	r.Error = result.Err
}

// Completed reports whether the record has been completed.
func (r *Record) Completed() bool {
	return r.CompletedAt != nil
}

// Age returns the time elapsed since the execution started.
func (r *Record) Age(now time.Time) time.Duration {
	return now.Sub(r.StartedAt)
}
