package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Common application errors
var (
	// Input errors
	ErrInvalidInput         = errors.New("invalid input")
	ErrMissingColumn        = errors.New("missing column")
	ErrNoQuasiIdentifiers   = errors.New("no quasi-identifiers specified")
	ErrInvalidThreshold     = errors.New("invalid privacy threshold")
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// Privacy engine errors
	ErrEmptyDistribution = errors.New("empty distribution")
	ErrInvalidBudget     = errors.New("invalid privacy budget expenditure")
	ErrUnknownMethod     = errors.New("unknown enforcement method")

	// Storage errors
	ErrStorageConnectionFailed = errors.New("storage connection failed")
	ErrStorageTimeout          = errors.New("storage operation timeout")
	ErrDataNotFound            = errors.New("data not found")

	// Internal errors
	ErrInternal    = errors.New("internal error")
	ErrUnavailable = errors.New("service unavailable")
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypePrivacy       ErrorType = "privacy"
	ErrorTypeBudget        ErrorType = "budget"
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents an application-specific error with additional context
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Retryable  bool                   `json:"retryable"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another *AppError of the same type and code, or the sentinel
// associated with the error's code.
func (e *AppError) Is(target error) bool {
	if t, ok := target.(*AppError); ok {
		return e.Type == t.Type && e.Code == t.Code
	}
	if sentinel, ok := sentinelByCode[e.Code]; ok {
		return target == sentinel
	}
	return false
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// NewAppError creates a new application error
func NewAppError(errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		Retryable:  false,
		HTTPStatus: getDefaultHTTPStatus(errType, code),
	}
}

// WrapError wraps an existing error with application context
func WrapError(err error, errType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:       errType,
		Code:       code,
		Message:    message,
		Cause:      err,
		Retryable:  isRetryable(err),
		HTTPStatus: getDefaultHTTPStatus(errType, code),
	}
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *AppError {
	return NewAppError(ErrorTypeValidation, code, message)
}

// NewStorageError creates a storage error
func NewStorageError(code, message string) *AppError {
	return NewAppError(ErrorTypeStorage, code, message)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, CodeInvalidConfiguration, message)
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, CodeInternalError, message)
}

// NewInvalidInputError reports a missing or malformed column, an empty
// quasi-identifier list, or a threshold outside its domain. It is the
// "bad configuration / bad data shape" kind.
func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrorTypeValidation, CodeInvalidInput, message)
}

// NewEmptyDistributionError reports a frequency distribution whose total is zero.
func NewEmptyDistributionError(message string) *AppError {
	return NewAppError(ErrorTypePrivacy, CodeEmptyDistribution, message)
}

// NewInvalidBudgetError reports a negative or non-finite epsilon expenditure.
func NewInvalidBudgetError(message string) *AppError {
	return NewAppError(ErrorTypeBudget, CodeInvalidBudget, message)
}

// NewUnknownMethodError reports an enforcement method outside the supported set.
func NewUnknownMethodError(method string) *AppError {
	return NewAppError(ErrorTypeValidation, CodeUnknownMethod, "unsupported enforcement method").
		WithDetails(fmt.Sprintf("method %q is not one of suppress, generalize", method)).
		WithContext("method", method)
}

// As is the standard library errors.As.
func As(err error, target interface{}) bool { return errors.As(err, target) }

// IsInvalidInput reports whether err is an InvalidInputError.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsEmptyDistribution reports whether err is an EmptyDistributionError.
func IsEmptyDistribution(err error) bool { return errors.Is(err, ErrEmptyDistribution) }

// IsInvalidBudget reports whether err is an InvalidBudgetError.
func IsInvalidBudget(err error) bool { return errors.Is(err, ErrInvalidBudget) }

// IsUnknownMethod reports whether err is an UnknownMethodError.
func IsUnknownMethod(err error) bool { return errors.Is(err, ErrUnknownMethod) }

// HTTPStatusOf returns the HTTP status carried by an AppError in err's chain,
// or 500 when there is none.
func HTTPStatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

var sentinelByCode = map[string]error{
	CodeInvalidInput:         ErrInvalidInput,
	CodeQueryRejected:        ErrInvalidInput,
	CodeMissingField:         ErrInvalidInput,
	CodeEmptyDistribution:    ErrEmptyDistribution,
	CodeInvalidBudget:        ErrInvalidBudget,
	CodeUnknownMethod:        ErrUnknownMethod,
	CodeInvalidConfiguration: ErrInvalidConfiguration,
	CodeConnectionFailed:     ErrStorageConnectionFailed,
	CodeStorageTimeout:       ErrStorageTimeout,
	CodeDataNotFound:         ErrDataNotFound,
	CodeInternalError:        ErrInternal,
}

// getDefaultHTTPStatus returns the default HTTP status for an error type
func getDefaultHTTPStatus(errType ErrorType, code string) int {
	if code == CodeEmptyDistribution {
		return http.StatusUnprocessableEntity
	}
	if code == CodeDataNotFound {
		return http.StatusNotFound
	}

	switch errType {
	case ErrorTypeValidation, ErrorTypeBudget:
		return http.StatusBadRequest
	case ErrorTypePrivacy:
		return http.StatusUnprocessableEntity
	case ErrorTypeStorage, ErrorTypeConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// isRetryable determines if an error is retryable
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrStorageTimeout):
		return true
	case errors.Is(err, ErrStorageConnectionFailed):
		return true
	case errors.Is(err, ErrUnavailable):
		return true
	default:
		return false
	}
}

// ErrorResponse represents an error response for APIs
type ErrorResponse struct {
	Error     *AppError `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp string    `json:"timestamp"`
	Path      string    `json:"path,omitempty"`
}

// ValidationErrorDetail represents detailed validation error information
type ValidationErrorDetail struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
}

// ValidationErrors represents multiple validation errors
type ValidationErrors struct {
	Message string                  `json:"message"`
	Errors  []ValidationErrorDetail `json:"errors"`
}

// Error implements the error interface for ValidationErrors
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return ve.Message
	}
	first := ve.Errors[0]
	if len(ve.Errors) == 1 {
		return fmt.Sprintf("%s: %s: %s", ve.Message, first.Field, first.Message)
	}
	return fmt.Sprintf("%s: %s: %s (and %d more)", ve.Message, first.Field, first.Message, len(ve.Errors)-1)
}

// Is lets configuration validation failures match ErrInvalidConfiguration.
func (ve *ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// Add adds a validation error
func (ve *ValidationErrors) Add(field, code, message string, value interface{}) {
	ve.Errors = append(ve.Errors, ValidationErrorDetail{
		Field:   field,
		Value:   value,
		Message: message,
		Code:    code,
	})
}

// HasErrors checks if there are any validation errors
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// NewValidationErrors creates a new ValidationErrors instance
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Message: "Validation failed",
		Errors:  make([]ValidationErrorDetail, 0),
	}
}

// Error codes for different error scenarios
const (
	// Validation error codes
	CodeInvalidInput  = "INVALID_INPUT"
	CodeMissingField  = "MISSING_FIELD"
	CodeOutOfRange    = "OUT_OF_RANGE"
	CodeUnknownMethod = "UNKNOWN_METHOD"

	// Privacy error codes
	CodeEmptyDistribution = "EMPTY_DISTRIBUTION"
	CodeInvalidBudget     = "INVALID_BUDGET"

	// Storage error codes
	CodeStorageError     = "STORAGE_ERROR"
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeNotConnected     = "NOT_CONNECTED"
	CodeDataNotFound     = "DATA_NOT_FOUND"
	CodeWriteFailed      = "WRITE_FAILED"
	CodeReadFailed       = "READ_FAILED"
	CodeStorageTimeout   = "STORAGE_TIMEOUT"
	CodeQueryRejected    = "QUERY_REJECTED"

	// Configuration error codes
	CodeInvalidConfiguration = "INVALID_CONFIGURATION"

	// Internal error codes
	CodeInternalError = "INTERNAL_ERROR"
)
