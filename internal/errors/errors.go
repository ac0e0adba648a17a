package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is the structured error type for memdex.
// It provides context for error handling, logging, and the final
// ingestion summary.
type Error struct {
	// Code is the unique error code (e.g., "ERR_301_PROVIDER_TRANSIENT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Provider, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the operator.
	Suggestion string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with Error.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the operator.
// Returns the error for method chaining.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates a new Error with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an Error from an existing error.
// The error's message becomes the Error message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ProviderTransient creates a retryable embedding provider error
// (rate limit, timeout, 5xx).
func ProviderTransient(message string, cause error) *Error {
	return New(ErrCodeProviderTransient, message, cause)
}

// DimensionMismatch creates a vector dimension validation error.
func DimensionMismatch(expected, got int) *Error {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("dimension mismatch: expected %d, got %d", expected, got), nil).
		WithSuggestion("run 'memdex ingest --full-scan' to rebuild with the current model")
}

// IngestRunning creates the error returned when a second ingestion
// cycle is triggered while one holds the run lock.
func IngestRunning() *Error {
	return New(ErrCodeIngestRunning, "an ingestion cycle is already running", nil).
		WithSuggestion("wait for the current cycle to finish")
}

// IndexCorruption creates a fatal cross-index consistency error.
func IndexCorruption(message string) *Error {
	return New(ErrCodeIndexCorrupt, message, nil).
		WithSuggestion("restore from backup or run 'memdex ingest --full-scan' to rebuild")
}

// SourceUnavailable creates a per-source skip error.
func SourceUnavailable(kind string, cause error) *Error {
	return New(ErrCodeSourceUnavailable,
		fmt.Sprintf("source %q unavailable", kind), cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error chain contains an Error with the Retryable flag set.
func IsRetryable(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the current ingestion cycle.
func IsFatal(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an Error anywhere in the chain.
// Returns empty string if the chain holds no Error.
func GetCode(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetSuggestion extracts the operator suggestion from an Error
// anywhere in the chain. Returns empty string if none is set.
func GetSuggestion(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Suggestion
	}
	return ""
}
