package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the router.
type ErrorCode string

// Request-scoped error codes. These are local to one dispatch.
const (
	ErrInvalidInput        ErrorCode = "INVALID_INPUT"
	ErrUnrecognizedLabel   ErrorCode = "UNRECOGNIZED_LABEL"
	ErrNoRouteAndNoDefault ErrorCode = "NO_ROUTE_AND_NO_DEFAULT"
	ErrWorkerFailure       ErrorCode = "WORKER_FAILURE"
	ErrClassifierFailure   ErrorCode = "CLASSIFIER_FAILURE"
	ErrCancelled           ErrorCode = "CANCELLED"
)

// Registry construction error codes. These indicate a misconfigured routing
// table and are fatal at startup.
const (
	ErrDuplicatePool      ErrorCode = "DUPLICATE_POOL"
	ErrEmptyPool          ErrorCode = "EMPTY_POOL"
	ErrUnknownPool        ErrorCode = "UNKNOWN_POOL"
	ErrDuplicateRoute     ErrorCode = "DUPLICATE_ROUTE"
	ErrDuplicateWorker    ErrorCode = "DUPLICATE_WORKER"
	ErrUnknownWorker      ErrorCode = "UNKNOWN_WORKER"
	ErrWorkerAlreadyOwned ErrorCode = "WORKER_ALREADY_OWNED"
	ErrInvalidRoutingKey  ErrorCode = "INVALID_ROUTING_KEY"
)

// Transport error codes.
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorCode returns the error code.
func (e *Error) ErrorCode() ErrorCode {
	return e.Code
}

// Coder is implemented by errors that carry an ErrorCode.
type Coder interface {
	error
	ErrorCode() ErrorCode
}

// Is reports whether target is an *Error with the same code, so callers can
// match with errors.Is(err, types.NewError(code, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// AsError extracts the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the code of the outermost Coder in err's chain.
func GetErrorCode(err error) ErrorCode {
	var c Coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return ""
}

// IsErrorCode reports whether the outermost coded error in err's chain carries code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
