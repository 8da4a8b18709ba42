// Package errors provides structured error handling for repoindex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Source acquisition and filesystem errors
//   - 3XX: Network errors
//   - 4XX: Validation and query errors
//   - 5XX: Index and internal errors
//   - 6XX: Indexer errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryAcquisition indicates failures while materializing a source tree.
	CategoryAcquisition Category = "ACQUISITION"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation and query parse errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryIndex indicates failures opening, reading or writing the index.
	CategoryIndex Category = "INDEX"
	// CategoryIndexer indicates failures reported by the chunk/embedding indexer.
	CategoryIndexer Category = "INDEXER"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but the process can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound  = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid   = "ERR_102_CONFIG_INVALID"
	ErrCodeEmbeddingConfig = "ERR_103_EMBEDDING_CONFIG"

	// Acquisition errors (200-299)
	ErrCodeCloneFailed    = "ERR_201_CLONE_FAILED"
	ErrCodeDownloadFailed = "ERR_202_DOWNLOAD_FAILED"
	ErrCodeArchiveInvalid = "ERR_203_ARCHIVE_INVALID"
	ErrCodeEnvironment    = "ERR_204_ENVIRONMENT"
	ErrCodeSourceNotFound = "ERR_205_SOURCE_NOT_FOUND"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidQuery = "ERR_403_INVALID_QUERY"
	ErrCodeQueryEmpty   = "ERR_404_QUERY_EMPTY"
	ErrCodeInvalidPath  = "ERR_406_INVALID_PATH"
	ErrCodeNotFound     = "ERR_407_NOT_FOUND"

	// Index and internal errors (500-599)
	ErrCodeInternal       = "ERR_501_INTERNAL"
	ErrCodeIndexOpen      = "ERR_502_INDEX_OPEN"
	ErrCodeIndexWrite     = "ERR_503_INDEX_WRITE"
	ErrCodeIndexRead      = "ERR_504_INDEX_READ"
	ErrCodeCorruptIndex   = "ERR_505_CORRUPT_INDEX"
	ErrCodeNotImplemented = "ERR_510_NOT_IMPLEMENTED"

	// Indexer errors (600-699)
	ErrCodeIndexerFailed   = "ERR_601_INDEXER_FAILED"
	ErrCodeEmbeddingFailed = "ERR_602_EMBEDDING_FAILED"
	ErrCodeChunkingFailed  = "ERR_603_CHUNKING_FAILED"
	ErrCodeBuildCancelled  = "ERR_604_BUILD_CANCELLED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "201" from "ERR_201_CLONE_FAILED")
	numStr := code[4:7]

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryAcquisition
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	case '5':
		if code == ErrCodeInternal || code == ErrCodeNotImplemented {
			return CategoryInternal
		}
		return CategoryIndex
	case '6':
		return CategoryIndexer
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeEnvironment:
		return SeverityFatal
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable:
		return SeverityWarning
	}
	return SeverityError
}
