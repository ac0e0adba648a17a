// Package errors provides structured error handling for memdex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and storage errors
//   - 3XX: Embedding provider errors
//   - 4XX: Validation errors
//   - 5XX: Ingestion lifecycle errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, disk, and index storage errors.
	CategoryIO Category = "IO"
	// CategoryProvider indicates embedding provider errors.
	CategoryProvider Category = "PROVIDER"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryIngest indicates ingestion lifecycle errors.
	CategoryIngest Category = "INGEST"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates an unrecoverable error, the cycle must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates the operation failed but the cycle can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO and storage errors (200-299)
	ErrCodeSourceUnavailable = "ERR_201_SOURCE_UNAVAILABLE"
	ErrCodeStoreWrite        = "ERR_202_STORE_WRITE"
	ErrCodeIndexCorrupt      = "ERR_205_INDEX_CORRUPT"

	// Embedding provider errors (300-399)
	ErrCodeProviderTransient   = "ERR_301_PROVIDER_TRANSIENT"
	ErrCodeProviderUnavailable = "ERR_302_PROVIDER_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeDimensionMismatch = "ERR_401_DIMENSION_MISMATCH"
	ErrCodeInvalidInput      = "ERR_402_INVALID_INPUT"

	// Ingestion lifecycle errors (500-599)
	ErrCodeIngestRunning = "ERR_501_INGEST_RUNNING"
	ErrCodeInternal      = "ERR_502_INTERNAL"
)

// categoryFromCode derives the category from an error code prefix.
func categoryFromCode(code string) Category {
	if len(code) < 5 {
		return CategoryIngest
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryProvider
	case '4':
		return CategoryValidation
	default:
		return CategoryIngest
	}
}

// severityFromCode derives the severity from an error code.
// Index corruption and lock contention abort the cycle; most other
// failures are recoverable per-document or per-batch.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeIndexCorrupt, ErrCodeIngestRunning, ErrCodeStoreWrite:
		return SeverityFatal
	case ErrCodeSourceUnavailable, ErrCodeDimensionMismatch:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode reports whether operations failing with this code
// may be retried with backoff.
func isRetryableCode(code string) bool {
	return code == ErrCodeProviderTransient
}
