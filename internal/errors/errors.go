package errors

import (
	"errors"
	"fmt"
)

// Error is the structured error type for semindex.
// It carries enough context for retry decisions, logging and CLI output.
type Error struct {
	// Code is the unique error code (e.g., "ERR_301_STORE_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is derived from the code.
	Category Category

	// Severity is derived from the code.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by code, so errors.Is(err, &Error{Code: ...}) works.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
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
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *Error {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ReadError reports a file that could not be read.
func ReadError(path string, cause error) *Error {
	return New(ErrCodeReadFailed, "failed to read file", cause).WithDetail("path", path)
}

// ChunkingError reports content that is malformed for its declared type.
func ChunkingError(path string, cause error) *Error {
	return New(ErrCodeChunkingFailed, "structural chunking failed", cause).WithDetail("path", path)
}

// EmbeddingError reports a failure of the embedding provider.
func EmbeddingError(message string, cause error) *Error {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// StoreUnavailable reports a transient similarity store failure.
func StoreUnavailable(message string, cause error) *Error {
	return New(ErrCodeStoreUnavailable, message, cause)
}

// StoreRejected reports a permanent similarity store failure for one entry.
func StoreRejected(id string, message string) *Error {
	return New(ErrCodeStoreRejected, message, nil).WithDetail("id", id)
}

// WatcherError reports a fault in the filesystem watcher.
func WatcherError(message string, cause error) *Error {
	return New(ErrCodeWatcherFailed, message, cause).
		WithSuggestion("restart the watcher; indexing state is preserved")
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *Error {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *Error {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code string) bool {
	return errors.Is(err, &Error{Code: code})
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if e, ok := As(err); ok {
		return e.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code, or "" when err is not structured.
func GetCode(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}
