// Package errors provides structured error handling for semindex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk)
//   - 3XX: Transient backend errors (store, watcher)
//   - 4XX: Validation and rejected input
//   - 5XX: Processing errors (chunking, embedding, internal)
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryBackend indicates failures of the store or watcher backends.
	CategoryBackend Category = "BACKEND"
	// CategoryValidation indicates rejected input.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates processing or unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeReadFailed   = "ERR_201_READ_FAILED"
	ErrCodeFileTooLarge = "ERR_202_FILE_TOO_LARGE"
	ErrCodeCorruptIndex = "ERR_203_CORRUPT_INDEX"
	ErrCodeLockHeld     = "ERR_204_LOCK_HELD"

	// Backend errors (300-399)
	ErrCodeStoreUnavailable = "ERR_301_STORE_UNAVAILABLE"
	ErrCodeWatcherFailed    = "ERR_302_WATCHER_FAILED"
	ErrCodeEmbedderTimeout  = "ERR_303_EMBEDDER_TIMEOUT"

	// Validation errors (400-499)
	ErrCodeInvalidInput  = "ERR_401_INVALID_INPUT"
	ErrCodeStoreRejected = "ERR_402_STORE_REJECTED"
	ErrCodeQueryEmpty    = "ERR_403_QUERY_EMPTY"

	// Processing errors (500-599)
	ErrCodeChunkingFailed  = "ERR_501_CHUNKING_FAILED"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeInternal        = "ERR_503_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "ERR_301_..." -> '3'
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryBackend
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeLockHeld:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a transient failure.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeStoreUnavailable, ErrCodeWatcherFailed, ErrCodeEmbedderTimeout:
		return true
	default:
		return false
	}
}
