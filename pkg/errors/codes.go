package errors

// Code represents a machine-readable error code for categorizing errors.
// Error codes follow the pattern CATEGORY_XXX where CATEGORY is a short
// identifier (e.g., VAL, CAP, INT) and XXX is a three-digit numeric code.
//
// Error codes are designed to be:
//   - Stable: codes do not change once assigned
//   - Unique: each error condition has a distinct code
//   - Machine-readable: suitable for automated error handling
type Code string

// Error code categories and their ranges:
//
//	VAL_xxx     - Validation errors (400 Bad Request)
//	CAP_xxx     - Capacity errors (429 Too Many Requests)
//	NF_xxx      - Not found errors (404 Not Found)
//	CONF_xxx    - Conflict errors (409 Conflict)
//	INT_xxx     - Internal errors (500 Internal Server Error)
//	UNAVAIL_xxx - Service unavailable (503 Service Unavailable)
//	TIMEOUT_xxx - Timeout errors (504 Gateway Timeout)
const (
	// Validation errors (VAL_xxx) - HTTP 400
	// Used when execution contexts or configuration fail validation.

	// CodeValidation indicates a general validation failure.
	CodeValidation Code = "VAL_001"

	// CodeValidationRequired indicates a required field or dependency is
	// missing (e.g., a nil execution context or agent factory).
	CodeValidationRequired Code = "VAL_002"

	// CodeValidationOwnership indicates an execution context belongs to a
	// different user than the engine that received it. This is the
	// cross-user isolation violation code.
	CodeValidationOwnership Code = "VAL_003"

	// Capacity errors (CAP_xxx) - HTTP 429
	// Used when per-user or per-engine concurrency limits are reached.
	// Capacity errors are recoverable: the caller should retry later or
	// clean up an existing engine.

	// CodeCapacity indicates a general capacity limit was reached.
	CodeCapacity Code = "CAP_001"

	// CodeCapacityEngineLimit indicates the per-user engine limit was
	// reached. The error message always contains the phrase
	// "reached maximum engine limit".
	CodeCapacityEngineLimit Code = "CAP_002"

	// CodeCapacityConcurrentRuns indicates an engine's concurrent
	// execution ceiling was reached.
	CodeCapacityConcurrentRuns Code = "CAP_003"

	// Not found errors (NF_xxx) - HTTP 404
	// Used when a requested engine or execution record does not exist.

	// CodeNotFound indicates a general not found error.
	CodeNotFound Code = "NF_001"

	// CodeNotFoundExecution indicates the requested execution record was
	// not found in the state store.
	CodeNotFoundExecution Code = "NF_002"

	// Conflict errors (CONF_xxx) - HTTP 409
	// Used when an operation conflicts with current lifecycle state.

	// CodeConflict indicates a general conflict error.
	CodeConflict Code = "CONF_001"

	// CodeConflictInactive indicates an operation was attempted on an
	// engine that has already been torn down.
	CodeConflictInactive Code = "CONF_002"

	// Internal errors (INT_xxx) - HTTP 500
	// Used for unexpected internal failures.

	// CodeInternal indicates a general internal error.
	CodeInternal Code = "INT_001"

	// CodeInternalDatabase indicates a database operation failed.
	CodeInternalDatabase Code = "INT_002"

	// CodeInternalConfiguration indicates a configuration error.
	CodeInternalConfiguration Code = "INT_003"

	// Unavailable errors (UNAVAIL_xxx) - HTTP 503
	// Used when a store backend or archive dependency is unavailable.

	// CodeUnavailable indicates a general service unavailable error.
	CodeUnavailable Code = "UNAVAIL_001"

	// CodeUnavailableDependency indicates a dependent service is
	// unavailable.
	CodeUnavailableDependency Code = "UNAVAIL_002"

	// Timeout errors (TIMEOUT_xxx) - HTTP 504
	// Used when an operation exceeds its time limit.

	// CodeTimeout indicates a general timeout error.
	CodeTimeout Code = "TIMEOUT_001"

	// CodeTimeoutShutdown indicates a shutdown grace period elapsed
	// before background work finished.
	CodeTimeoutShutdown Code = "TIMEOUT_002"
)

// String returns the string representation of the error code.
func (c Code) String() string {
	return string(c)
}

// Category returns the category prefix of the error code (e.g., "VAL",
// "CAP").
func (c Code) Category() string {
	s := string(c)
	for i, r := range s {
		if r == '_' {
			return s[:i]
		}
	}
	return s
}
