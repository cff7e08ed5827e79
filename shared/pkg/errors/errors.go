package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Standard error codes
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeNotFound           = "RESOURCE_NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeBadRequest         = "BAD_REQUEST"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeBadGateway         = "BAD_GATEWAY"
	CodeTimeout            = "TIMEOUT"
)

// Business outcome codes. These are reported in-band by the services that
// own them rather than as transport failures.
const (
	CodeItemNotFound      = "ITEM_NOT_FOUND"
	CodeInsufficientStock = "INSUFFICIENT_STOCK"
	CodeHoldNotFound      = "HOLD_NOT_FOUND"
	CodePaymentDeclined   = "PAYMENT_DECLINED"
	CodePaymentNotFound   = "PAYMENT_NOT_FOUND"
)

// AppError represents an application error with HTTP status and error code
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails replaces the error details
func (e *AppError) WithDetails(details map[string]string) *AppError {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Wrap wraps an existing error
func (e *AppError) Wrap(err error) *AppError {
	e.Err = err
	return e
}

// IsBusinessOutcome reports whether the error is an expected domain outcome
// (missing item, insufficient stock, unknown hold, declined payment).
func (e *AppError) IsBusinessOutcome() bool {
	switch e.Code {
	case CodeItemNotFound, CodeInsufficientStock, CodeHoldNotFound, CodePaymentDeclined, CodePaymentNotFound:
		return true
	}
	return false
}

// IsTransient reports whether retrying the same call later may succeed.
func (e *AppError) IsTransient() bool {
	switch e.Code {
	case CodeServiceUnavailable, CodeTimeout, CodeBadGateway:
		return true
	}
	return false
}

// NewAppError creates a new AppError
func NewAppError(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// ErrValidation creates a validation error
func ErrValidation(message string) *AppError {
	return NewAppError(CodeValidationError, message, http.StatusBadRequest)
}

// ErrValidationWithFields creates a validation error with field details
func ErrValidationWithFields(message string, fields map[string]string) *AppError {
	return ErrValidation(message).WithDetails(fields)
}

// ErrBadRequest creates a bad request error
func ErrBadRequest(message string) *AppError {
	return NewAppError(CodeBadRequest, message, http.StatusBadRequest)
}

// ErrNotFound creates a not found error
func ErrNotFound(resource string) *AppError {
	return NewAppError(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

// ErrNotFoundWithID creates a not found error with ID
func ErrNotFoundWithID(resource, id string) *AppError {
	return ErrNotFound(resource).WithDetail("id", id)
}

// ErrConflict creates a conflict error
func ErrConflict(message string) *AppError {
	return NewAppError(CodeConflict, message, http.StatusConflict)
}

// ErrItemNotFound is the in-band outcome for an unknown item id.
func ErrItemNotFound(itemID string) *AppError {
	return NewAppError(CodeItemNotFound, "Item not found", http.StatusOK).WithDetail("itemId", itemID)
}

// ErrInsufficientStock is the in-band outcome for a reservation that does not fit.
func ErrInsufficientStock(available, requested int) *AppError {
	return NewAppError(CodeInsufficientStock,
		fmt.Sprintf("Insufficient stock. Available: %d, Requested: %d", available, requested),
		http.StatusOK).
		WithDetail("available", fmt.Sprint(available)).
		WithDetail("requested", fmt.Sprint(requested))
}

// ErrHoldNotFound is the in-band outcome for an unknown or expired hold.
func ErrHoldNotFound(holdID string) *AppError {
	return NewAppError(CodeHoldNotFound, "Hold not found", http.StatusOK).WithDetail("holdId", holdID)
}

// ErrPaymentDeclined is the in-band outcome of a rejected charge.
func ErrPaymentDeclined(reason string) *AppError {
	return NewAppError(CodePaymentDeclined, reason, http.StatusOK)
}

// ErrInternal creates an internal error
func ErrInternal(message string) *AppError {
	if message == "" {
		message = "an internal error occurred"
	}
	return NewAppError(CodeInternalError, message, http.StatusInternalServerError)
}

// ErrServiceUnavailable creates a service unavailable error
func ErrServiceUnavailable(service string) *AppError {
	return NewAppError(CodeServiceUnavailable, fmt.Sprintf("%s is temporarily unavailable", service), http.StatusServiceUnavailable)
}

// ErrBadGateway is returned when a collaborator answered with something unusable.
func ErrBadGateway(service string, status int) *AppError {
	return NewAppError(CodeBadGateway, fmt.Sprintf("%s returned status %d", service, status), http.StatusBadGateway)
}

// ErrTimeout creates a timeout error
func ErrTimeout(operation string) *AppError {
	return NewAppError(CodeTimeout, fmt.Sprintf("%s timed out", operation), http.StatusGatewayTimeout)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// FromError converts a standard error to an AppError
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout("operation").Wrap(err)
	}
	return ErrInternal("").Wrap(err)
}

// MapDomainError maps domain error messages onto AppErrors when the caller
// has no sentinel to match against.
func MapDomainError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout("operation").Wrap(err)
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "not found"):
		return ErrNotFound("resource").Wrap(err)
	case strings.Contains(lower, "already exists"), strings.Contains(lower, "conflict"):
		return ErrConflict(msg).Wrap(err)
	case strings.Contains(lower, "invalid"), strings.Contains(lower, "required"), strings.Contains(lower, "must be"):
		return ErrValidation(msg).Wrap(err)
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		return ErrTimeout("operation").Wrap(err)
	default:
		return ErrInternal("").Wrap(err)
	}
}
