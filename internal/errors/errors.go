// Package errors defines the stable error taxonomy of the analysis engine.
// Every failure a task can surface carries one of these codes so that both
// the HTTP layer and clients can react without parsing message text.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode is a stable machine-readable failure cause.
type ErrorCode string

const (
	// InvalidRequest indicates a malformed repository reference or missing
	// submission field; the task is never started.
	InvalidRequest ErrorCode = "INVALID_REQUEST"
	// UpstreamUnavailable indicates the upstream host could not be reached
	// or refused the request during commit resolution.
	UpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	// BranchNotFound indicates the requested branch does not exist upstream.
	BranchNotFound ErrorCode = "BRANCH_NOT_FOUND"
	// FetchFailed indicates snapshot materialization failed (network, auth,
	// or a commit that could not be checked out).
	FetchFailed ErrorCode = "FETCH_FAILED"
	// RepositoryTooLarge indicates the snapshot exceeded the configured
	// byte or file-count ceiling before parsing started.
	RepositoryTooLarge ErrorCode = "REPOSITORY_TOO_LARGE"
	// Cancelled indicates the task was cancelled by the client.
	Cancelled ErrorCode = "CANCELLED"
	// Timeout indicates the task deadline elapsed at a blocking step.
	Timeout ErrorCode = "TIMEOUT"
	// GraphInvariant indicates graph construction detected a contradictory
	// structure (for example duplicate node ids). The task fails rather
	// than emitting a silently wrong graph.
	GraphInvariant ErrorCode = "GRAPH_INVARIANT"
	// CacheConflict indicates a cache write found divergent content for an
	// existing key. Logged; the existing entry wins.
	CacheConflict ErrorCode = "CACHE_CONFLICT"
	// TaskNotFound indicates a status/cancel request for an unknown task.
	TaskNotFound ErrorCode = "TASK_NOT_FOUND"
	// Internal indicates an unexpected invariant violation.
	Internal ErrorCode = "INTERNAL_ERROR"
)

// AnalysisError is the engine's error type: a code, a human message, and an
// optional wrapped cause.
type AnalysisError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	cause   error
}

// New creates an AnalysisError with the given code and message.
func New(code ErrorCode, message string) *AnalysisError {
	return &AnalysisError{Code: code, Message: message}
}

// Wrap creates an AnalysisError wrapping an underlying cause.
func Wrap(code ErrorCode, message string, cause error) *AnalysisError {
	return &AnalysisError{Code: code, Message: message, cause: cause}
}

// Error implements the error interface.
func (e *AnalysisError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AnalysisError) Unwrap() error {
	return e.cause
}

// WithDetails attaches structured details to the error.
func (e *AnalysisError) WithDetails(details interface{}) *AnalysisError {
	e.Details = details
	return e
}

// CodeOf extracts the ErrorCode from err, walking the wrap chain.
// Non-engine errors map to Internal.
func CodeOf(err error) ErrorCode {
	var ae *AnalysisError
	if stderrors.As(err, &ae) {
		return ae.Code
	}
	return Internal
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code ErrorCode) bool {
	var ae *AnalysisError
	if stderrors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}
