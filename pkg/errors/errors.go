package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents standardized error codes
type ErrorCode string

const (
	CodeStorage                 ErrorCode = "STORAGE_ERROR"
	CodeNotAuthenticated        ErrorCode = "NOT_AUTHENTICATED"
	CodeAuthenticationExhausted ErrorCode = "AUTHENTICATION_EXHAUSTED"
	CodeRateLimited             ErrorCode = "RATE_LIMITED"
	CodeRateLimitExhausted      ErrorCode = "RATE_LIMIT_EXHAUSTED"
	CodeRemoteRejected          ErrorCode = "REMOTE_REJECTED"
	CodeConflict                ErrorCode = "CONFLICT"
	CodeTransport               ErrorCode = "TRANSPORT_ERROR"
	CodeBadRequest              ErrorCode = "BAD_REQUEST"
	CodeInternalError           ErrorCode = "INTERNAL_ERROR"
)

// HTTPStatusMap maps error codes to HTTP status codes
var HTTPStatusMap = map[ErrorCode]int{
	CodeNotAuthenticated:        http.StatusUnauthorized,
	CodeAuthenticationExhausted: http.StatusUnauthorized,
	CodeRateLimited:             http.StatusTooManyRequests,
	CodeRateLimitExhausted:      http.StatusTooManyRequests,
	CodeConflict:                http.StatusConflict,
	CodeTransport:               http.StatusBadGateway,
	CodeBadRequest:              http.StatusBadRequest,
	CodeStorage:                 http.StatusInternalServerError,
	CodeInternalError:           http.StatusInternalServerError,
}

// Coded is implemented by every error that carries an ErrorCode.
type Coded interface {
	ErrorCode() ErrorCode
}

// AppError represents an application error with code and message.
// StatusCode and Body are set for errors built from a remote response.
type AppError struct {
	Code       ErrorCode
	Message    string
	Cause      error
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// ErrorCode implements Coded
func (e *AppError) ErrorCode() ErrorCode {
	return e.Code
}

// NewAppError creates a new AppError
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorf creates a new AppError with formatted message
func NewAppErrorf(code ErrorCode, cause error, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// NewRemoteRejected builds the error for a non-success response from the API.
func NewRemoteRejected(status int, body string) *AppError {
	return &AppError{
		Code:       CodeRemoteRejected,
		Message:    fmt.Sprintf("remote rejected request with status %d", status),
		StatusCode: status,
		Body:       body,
	}
}

// NewConflict builds the error for a 409 response.
func NewConflict(body string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    "remote reported a conflicting state",
		StatusCode: http.StatusConflict,
		Body:       body,
	}
}

// NewRateLimited builds the normalized throttling error.
func NewRateLimited(retryAfter time.Duration, body string) *AppError {
	return &AppError{
		Code:       CodeRateLimited,
		Message:    "rate limited by remote",
		StatusCode: http.StatusTooManyRequests,
		Body:       body,
		RetryAfter: retryAfter,
	}
}

// HTTPStatus returns the HTTP status code for this error
func (e *AppError) HTTPStatus() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	if status, exists := HTTPStatusMap[e.Code]; exists {
		return status
	}
	return http.StatusInternalServerError
}

// IsRetryable checks if the error is retryable
func (e *AppError) IsRetryable() bool {
	return e.Code == CodeRateLimited
}

// WrapError wraps an error with additional context
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	var coded Coded
	if stderrors.As(err, &coded) {
		return NewAppError(coded.ErrorCode(), message, err)
	}
	return NewAppError(CodeInternalError, message, err)
}

// CodeOf returns the first ErrorCode found in err's chain, or "" when none.
func CodeOf(err error) ErrorCode {
	var coded Coded
	if stderrors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return ""
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if coded, ok := err.(Coded); ok && coded.ErrorCode() == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// AsAppError returns the first *AppError in err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
