package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AcquisitionKind identifies which step of source acquisition failed.
type AcquisitionKind string

const (
	AcquisitionClone       AcquisitionKind = "clone"
	AcquisitionDownload    AcquisitionKind = "download"
	AcquisitionArchive     AcquisitionKind = "archive"
	AcquisitionEnvironment AcquisitionKind = "environment"
	AcquisitionFilesystem  AcquisitionKind = "filesystem"
)

// Error is the structured error type for repoindex.
// It carries a stable code, a classification and an optional user hint.
type Error struct {
	// Code is the unique error code (e.g., "ERR_201_CLONE_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Acquisition, Index, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Suggestion is an actionable suggestion for the user.
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

// Is matches by code so errors.Is works against sentinel values.
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

// HTTPStatus maps the error onto the status code the API responds with.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case ErrCodeNotImplemented:
		return http.StatusNotImplemented
	case ErrCodeNotFound, ErrCodeSourceNotFound:
		return http.StatusNotFound
	}
	switch e.Category {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryNetwork, CategoryAcquisition:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new Error with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
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

// AcquisitionError reports a failure while turning a build request into a
// local directory.
func AcquisitionError(kind AcquisitionKind, message string, cause error) *Error {
	var code string
	switch kind {
	case AcquisitionClone:
		code = ErrCodeCloneFailed
	case AcquisitionDownload:
		code = ErrCodeDownloadFailed
	case AcquisitionArchive:
		code = ErrCodeArchiveInvalid
	case AcquisitionEnvironment:
		code = ErrCodeEnvironment
	default:
		code = ErrCodeSourceNotFound
	}
	return New(code, message, cause).WithDetail("acquisition", string(kind))
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *Error {
	return New(ErrCodeConfigInvalid, message, cause)
}

// EmbeddingConfigError reports that no usable embedding configuration exists.
func EmbeddingConfigError(message string, cause error) *Error {
	return New(ErrCodeEmbeddingConfig, message, cause).
		WithSuggestion("Check the embedding section of the configuration")
}

// IndexerError wraps a failure reported by the chunk/embedding indexer.
func IndexerError(message string, cause error) *Error {
	return New(ErrCodeIndexerFailed, message, cause)
}

// IndexOpenError reports that the on-disk index could not be opened.
func IndexOpenError(path string, cause error) *Error {
	return New(ErrCodeIndexOpen, fmt.Sprintf("failed to open index at %s", path), cause).
		WithDetail("path", path)
}

// IndexWriteError reports a failed index mutation.
func IndexWriteError(message string, cause error) *Error {
	return New(ErrCodeIndexWrite, message, cause)
}

// IndexReadError reports a failure while reading segments or running a query.
func IndexReadError(message string, cause error) *Error {
	return New(ErrCodeIndexRead, message, cause)
}

// QueryError reports a malformed query string.
func QueryError(query string, cause error) *Error {
	msg := "invalid query"
	if cause != nil {
		msg = fmt.Sprintf("invalid query: %v", cause)
	}
	return New(ErrCodeInvalidQuery, msg, cause).WithDetail("query", query)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *Error {
	return New(ErrCodeInvalidInput, message, cause)
}

// NotFoundError reports a missing resource.
func NotFoundError(message string) *Error {
	return New(ErrCodeNotFound, message, nil)
}

// NotImplemented marks an operation whose contract exists but whose
// behavior has not been built yet.
func NotImplemented(op string) *Error {
	return New(ErrCodeNotImplemented, fmt.Sprintf("%s is not implemented", op), nil).
		WithDetail("operation", op)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *Error {
	return New(ErrCodeInternal, message, cause)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if e, ok := As(err); ok {
		return e.Severity == SeverityFatal
	}
	return false
}

// IsNotImplemented reports whether err marks a placeholder operation.
func IsNotImplemented(err error) bool {
	return GetCode(err) == ErrCodeNotImplemented
}

// GetCode extracts the error code from an Error.
// Returns empty string if err carries no Error.
func GetCode(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return ""
}

// GetCategory extracts the category from an Error.
// Returns empty string if err carries no Error.
func GetCategory(err error) Category {
	if e, ok := As(err); ok {
		return e.Category
	}
	return ""
}
