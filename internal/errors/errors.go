package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a moodlog error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"     // 400
	ErrUnauthenticated    ErrorCode = "UNAUTHENTICATED"     // 401
	ErrNotFound           ErrorCode = "NOT_FOUND"           // 404
	ErrConfiguration      ErrorCode = "CONFIGURATION"       // 500
	ErrAuthProvider       ErrorCode = "AUTH_PROVIDER"       // 502
	ErrMalformedResponse  ErrorCode = "MALFORMED_RESPONSE"  // 502
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE" // 503
	ErrInternal           ErrorCode = "INTERNAL"            // 500
)

// MoodError represents a structured error with code, status, and details.
type MoodError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *MoodError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *MoodError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *MoodError {
	return &MoodError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewUnauthenticated creates a 401 error for operations that need an active session.
func NewUnauthenticated() *MoodError {
	return &MoodError{
		Code:    ErrUnauthenticated,
		Status:  401,
		Message: "user not authenticated",
	}
}

// NewNotFound creates a 404 error.
func NewNotFound(identifier string) *MoodError {
	return &MoodError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewConfiguration creates a 500 error for a missing or invalid setting.
// Raised before any network call is attempted.
func NewConfiguration(msg string) *MoodError {
	return &MoodError{
		Code:    ErrConfiguration,
		Status:  500,
		Message: msg,
	}
}

// NewAuthProvider wraps a sign-in or sign-out failure from the identity provider.
func NewAuthProvider(op string, err error) *MoodError {
	msg := op + " failed"
	if err != nil {
		msg = fmt.Sprintf("%s failed: %v", op, err)
	}
	return &MoodError{
		Code:    ErrAuthProvider,
		Status:  502,
		Message: msg,
		Details: map[string]any{"operation": op},
		cause:   err,
	}
}

// NewMalformedResponse creates a 502 error for completion output that cannot be parsed.
func NewMalformedResponse(err error) *MoodError {
	msg := "malformed response"
	if err != nil {
		msg = fmt.Sprintf("malformed response: %v", err)
	}
	return &MoodError{
		Code:    ErrMalformedResponse,
		Status:  502,
		Message: msg,
		cause:   err,
	}
}

// NewServiceUnavailable creates a 503 error for an unreachable or failing upstream.
func NewServiceUnavailable(err error) *MoodError {
	msg := "service unavailable"
	if err != nil {
		msg = fmt.Sprintf("service unavailable: %v", err)
	}
	return &MoodError{
		Code:    ErrServiceUnavailable,
		Status:  503,
		Message: msg,
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *MoodError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &MoodError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error (or anything it wraps) is a MoodError with the given code.
func Is(err error, code ErrorCode) bool {
	var mErr *MoodError
	if stderrors.As(err, &mErr) {
		return mErr.Code == code
	}
	return false
}
