// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
	// Details carries structured context for API clients (plan limits, missing columns).
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// WithMessage creates a new error with the same code and a specific message.
func WithMessage(base *Error, message string) *Error {
	return &Error{
		Code:    base.Code,
		Message: message,
	}
}

// WithDetails returns a copy of e carrying the given details.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// Predefined errors
var (
	// Request errors
	ErrInvalidRequest = &Error{Code: "INVALID_REQUEST", Message: "invalid request"}
	ErrInvalidUpload  = &Error{Code: "INVALID_UPLOAD", Message: "invalid upload"}
	ErrRateLimited    = &Error{Code: "RATE_LIMITED", Message: "rate limit exceeded"}
	ErrUnauthorized   = &Error{Code: "UNAUTHORIZED", Message: "missing or invalid API key"}

	// Lookup errors
	ErrBatchNotFound = &Error{Code: "BATCH_NOT_FOUND", Message: "batch not found"}
	ErrRunNotFound   = &Error{Code: "RUN_NOT_FOUND", Message: "portfolio run not found"}
	ErrJobNotFound   = &Error{Code: "JOB_NOT_FOUND", Message: "job not found"}

	// Portfolio errors
	ErrEmptyBatch  = &Error{Code: "EMPTY_BATCH", Message: "batch has no files"}
	ErrRunFailed   = &Error{Code: "RUN_FAILED", Message: "portfolio run failed"}
	ErrStatsFailed = &Error{Code: "STATS_FAILED", Message: "summary statistics job failed"}

	// Plan errors
	ErrPlanLimit = &Error{Code: "PLAN_LIMIT", Message: "plan limit reached"}

	// Storage errors
	ErrStorageFailed = &Error{Code: "STORAGE_FAILED", Message: "object storage failed"}

	// Notifier errors
	ErrNotifierFailed = &Error{Code: "NOTIFIER_FAILED", Message: "notifier failed"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}

	// LLM errors
	ErrLLMUnavailable = &Error{Code: "LLM_UNAVAILABLE", Message: "no LLM provider configured"}
	ErrLLMFailed      = &Error{Code: "LLM_FAILED", Message: "LLM request failed"}
)
