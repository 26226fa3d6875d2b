package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error code to its HTTP representation.
func (e *AppError) StatusCode() int {
	return e.Code.HTTPStatus()
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrInvalidRole
	ErrSlotConflict
	ErrInvalidState
	ErrInvalidStatus
	ErrDuplicateFeedback
	ErrTimeout
)

var httpStatus = map[ErrorCode]int{
	ErrNotFound:          http.StatusNotFound,
	ErrBadRequest:        http.StatusBadRequest,
	ErrUnauthorized:      http.StatusForbidden,
	ErrForbidden:         http.StatusForbidden,
	ErrInternal:          http.StatusInternalServerError,
	ErrInvalidRole:       http.StatusForbidden,
	ErrSlotConflict:      http.StatusConflict,
	ErrInvalidState:      http.StatusUnprocessableEntity,
	ErrInvalidStatus:     http.StatusBadRequest,
	ErrDuplicateFeedback: http.StatusConflict,
	ErrTimeout:           http.StatusGatewayTimeout,
}

// HTTPStatus returns the response status for the code. Unknown codes are 500.
func (c ErrorCode) HTTPStatus() int {
	if status, ok := httpStatus[c]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "NOT_FOUND"
	case ErrBadRequest:
		return "BAD_REQUEST"
	case ErrUnauthorized:
		return "UNAUTHORIZED"
	case ErrForbidden:
		return "FORBIDDEN"
	case ErrInvalidRole:
		return "INVALID_ROLE"
	case ErrSlotConflict:
		return "SLOT_CONFLICT"
	case ErrInvalidState:
		return "INVALID_STATE"
	case ErrInvalidStatus:
		return "INVALID_STATUS"
	case ErrDuplicateFeedback:
		return "DUPLICATE_FEEDBACK"
	case ErrTimeout:
		return "TIMEOUT"
	default:
		return "INTERNAL"
	}
}

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

// Common errors
func NotFound(resource string, err error) *AppError {
	return NewNotFound(resource, err)
}

func BadRequest(message string, err error) *AppError {
	return NewBadRequest(message, err)
}

func Internal(err error) *AppError {
	return NewInternal(err)
}

// Unauthorized is returned when an authenticated caller does not own the resource.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: message,
	}
}

// Forbidden is returned when the caller's role may not use the endpoint at all.
func Forbidden(message string) *AppError {
	return &AppError{Code: ErrForbidden, Message: message}
}

func InvalidRole(message string) *AppError {
	return &AppError{Code: ErrInvalidRole, Message: message}
}

func SlotConflict(message string, err error) *AppError {
	return &AppError{Code: ErrSlotConflict, Message: message, Err: err}
}

func InvalidState(message string) *AppError {
	return &AppError{Code: ErrInvalidState, Message: message}
}

func InvalidStatus(label string) *AppError {
	return &AppError{
		Code:    ErrInvalidStatus,
		Message: fmt.Sprintf("invalid appointment status %q", label),
	}
}

func Timeout(err error) *AppError {
	return &AppError{Code: ErrTimeout, Message: "request timed out", Err: err}
}

func DuplicateFeedback(err error) *AppError {
	return &AppError{
		Code:    ErrDuplicateFeedback,
		Message: "feedback already submitted for this appointment",
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or ErrInternal.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

// Classify returns err unchanged when it already carries an AppError. A
// passed request deadline becomes Timeout and anything else Internal.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return Timeout(err)
	}
	return Internal(err)
}

// As is errors.As, re-exported so callers need only this package.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
