// Package errors provides standardized error types and error handling
// utilities for the StricklySoft execution platform. It defines the error
// categories surfaced by the execution engine factory, the per-user
// execution engines, and the execution state store, along with helper
// functions for creating, wrapping, and inspecting errors.
//
// # Error Categories
//
// The package defines the categories that map to the failure modes of the
// execution core:
//
//   - Validation errors: malformed or cross-user execution contexts,
//     missing required dependencies at construction time
//   - Capacity errors: per-user engine limits and per-engine concurrency
//     ceilings; recoverable by the caller
//   - NotFound errors: lookups for untracked engines or execution records
//   - Conflict errors: lifecycle operations on engines in the wrong state
//   - Internal errors: unexpected system failures
//   - Unavailable errors: a dependency (store backend, archive database)
//     is temporarily unavailable
//   - Timeout errors: an operation exceeded its time limit
//
// # Error Codes
//
// Each error carries a machine-readable code (e.g., "CAP_001") usable for
// error tracking, alerting, and client-side handling. Codes follow the
// pattern CATEGORY_XXX where CATEGORY is a short identifier and XXX is a
// numeric code.
//
// # Usage
//
// Create a new error with context:
//
//	err := errors.New(errors.CodeValidation, "execution context is required")
//
// Wrap an existing error:
//
//	err := errors.Wrap(err, errors.CodeInternal, "failed to record execution")
//
// Check error category:
//
//	if errors.IsCapacity(err) {
//	    // surface "system busy" and let the caller retry
//	}
package errors

import (
	"fmt"
	"net/http"
)

// Error represents a structured error with a code, message, and optional
// cause. It implements the standard error interface and provides additional
// context for error handling, logging, and API responses.
//
// Error is designed to be:
//   - Immutable: fields are not modified after creation
//   - Chainable: supports error wrapping via the Cause field
//   - Structured: provides a machine-readable code and HTTP status
type Error struct {
	// Code is the machine-readable error code (e.g., "CAP_001").
	Code Code

	// Message is the human-readable error message. This message may be
	// shown to end users and must not contain sensitive information.
	Message string

	// Cause is the underlying error that caused this error, if any.
	// Use Unwrap() to access the cause for error chain inspection.
	Cause error

	// Details contains additional structured data about the error, such
	// as the user ID that hit a limit or the execution ID that was not
	// found.
	Details map[string]any
}

// Error implements the error interface, returning the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of this error, supporting
// errors.Unwrap() and errors.Is() from the standard library.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error
// based on its error code category. Capacity errors map to 429 so that
// upstream handlers can surface a retryable "system busy" response.
func (e *Error) HTTPStatus() int {
	switch e.Code.Category() {
	case "VAL":
		return http.StatusBadRequest
	case "CAP":
		return http.StatusTooManyRequests
	case "NF":
		return http.StatusNotFound
	case "CONF":
		return http.StatusConflict
	case "INT":
		return http.StatusInternalServerError
	case "UNAVAIL":
		return http.StatusServiceUnavailable
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WithDetail returns a new Error with a single detail key-value pair added.
// The original error is not modified.
func (e *Error) WithDetail(key string, value any) *Error {
	newDetails := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		newDetails[k] = v
	}
	newDetails[key] = value
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Cause:   e.Cause,
		Details: newDetails,
	}
}

// Format implements fmt.Formatter for detailed error output.
// Use %v for standard output, %+v for detailed output including the cause
// chain.
func (e *Error) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "Error{Code: %q, Message: %q", e.Code, e.Message)
			if len(e.Details) > 0 {
				fmt.Fprintf(s, ", Details: %v", e.Details)
			}
			if e.Cause != nil {
				fmt.Fprintf(s, ", Cause: %+v", e.Cause)
			}
			fmt.Fprint(s, "}")
			return
		}
		fallthrough
	case 's':
		fmt.Fprint(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}
