package execution

import "time"

// Result is the outcome of one agent invocation. It is immutable once
// produced by the agent layer and consumed as-is by engines and the
// state store.
type Result struct {
	// Success reports whether the invocation completed without error.
	Success bool `json:"success"`

	// AgentName is the name of the agent that produced this result.
	AgentName string `json:"agent_name"`

	// Duration is the wall-clock time the invocation took.
	Duration time.Duration `json:"duration"`

	// Data carries agent-specific output. Nil when the agent produced
	// no structured output.
	Data map[string]any `json:"data,omitempty"`

	// Err is the error description when Success is false. Empty for
	// successful invocations.
	Err string `json:"error,omitempty"`
}
