package types

import "fmt"

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Credential and token-exchange error codes
const (
	ErrBadEncoding      ErrorCode = "CREDENTIAL_BAD_ENCODING"
	ErrBadFormat        ErrorCode = "CREDENTIAL_BAD_FORMAT"
	ErrTokenHTTPStatus  ErrorCode = "TOKEN_HTTP_STATUS"
	ErrTokenMissing     ErrorCode = "TOKEN_MISSING"
	ErrTokenNetwork     ErrorCode = "TOKEN_NETWORK"
	ErrTokenBadResponse ErrorCode = "TOKEN_BAD_RESPONSE"
)

// Request scope error codes
const (
	ErrScopeNotSet ErrorCode = "SCOPE_NOT_SET"
)

// Planning and execution error codes
const (
	ErrPlanParseFailure ErrorCode = "PLAN_PARSE_FAILURE"
	ErrPlanNoMatch      ErrorCode = "PLAN_NO_MATCH"
	ErrBadPlan          ErrorCode = "EXECUTOR_BAD_PLAN"
	ErrToolValidation   ErrorCode = "TOOL_VALIDATION"
)

// Generic service error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrAuthentication ErrorCode = "AUTHENTICATION"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrUpstreamError  ErrorCode = "UPSTREAM_ERROR"
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

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
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

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err is a *Error carrying the given code.
func HasCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
