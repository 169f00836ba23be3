package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Authentication Errors (AUTH_*)
	ErrorCodeAuthMissing ErrorCode = "AUTH_MISSING"
	ErrorCodeAuthInvalid ErrorCode = "AUTH_INVALID"

	// Order Errors (ORDER_*)
	ErrorCodeOrderNotFound       ErrorCode = "ORDER_NOT_FOUND"
	ErrorCodeOrderDuplicateKey   ErrorCode = "ORDER_DUPLICATE_KEY"
	ErrorCodeOrderAmountMismatch ErrorCode = "ORDER_AMOUNT_MISMATCH"
	ErrorCodeOrderStateConflict  ErrorCode = "ORDER_STATE_CONFLICT"
	ErrorCodeOrderInvalidState   ErrorCode = "ORDER_INVALID_STATE"
	ErrorCodePaymentNotCompleted ErrorCode = "PAYMENT_NOT_COMPLETED"

	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed       ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationMissingField ErrorCode = "VALIDATION_MISSING_FIELD"

	// Payment Gateway Errors (GATEWAY_*)
	ErrorCodeGatewayUnavailable     ErrorCode = "GATEWAY_UNAVAILABLE"
	ErrorCodeGatewayInvalidResponse ErrorCode = "GATEWAY_INVALID_RESPONSE"
	ErrorCodeGatewayMismatch        ErrorCode = "GATEWAY_MISMATCH"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches on error code so sentinel values work with errors.Is
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	return GetErrorCode(err) == ErrorCodeOrderNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationMissingField
}

// IsGatewayError checks if an error originated at the payment gateway
func IsGatewayError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeGatewayUnavailable ||
		code == ErrorCodeGatewayInvalidResponse ||
		code == ErrorCodeGatewayMismatch
}

// SecurityEventForgedCompletion tags log lines for completion signals the gateway does not back
const SecurityEventForgedCompletion = "forged_completion"

// IsSecurityEvent reports errors that indicate a possibly forged completion signal
func IsSecurityEvent(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeOrderAmountMismatch || code == ErrorCodeGatewayMismatch
}

// Sentinel errors, compared with errors.Is by code
var (
	ErrAuthMissing = NewDomainError(ErrorCodeAuthMissing, "authentication required")
	ErrAuthInvalid = NewDomainError(ErrorCodeAuthInvalid, "invalid authentication")

	ErrOrderNotFound       = NewDomainError(ErrorCodeOrderNotFound, "order not found")
	ErrOrderDuplicateKey   = NewDomainError(ErrorCodeOrderDuplicateKey, "merchant_uid already exists")
	ErrOrderAmountMismatch = NewDomainError(ErrorCodeOrderAmountMismatch, "gateway amount does not match order amount")
	ErrOrderStateConflict  = NewDomainError(ErrorCodeOrderStateConflict, "order already reached a different state")
	ErrOrderInvalidState   = NewDomainError(ErrorCodeOrderInvalidState, "order is in invalid state for this operation")
	ErrPaymentNotCompleted = NewDomainError(ErrorCodePaymentNotCompleted, "payment has not completed at the gateway")

	ErrValidationFailed       = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrValidationMissingField = NewDomainError(ErrorCodeValidationMissingField, "required field missing")

	ErrGatewayUnavailable     = NewDomainError(ErrorCodeGatewayUnavailable, "payment gateway unavailable")
	ErrGatewayInvalidResponse = NewDomainError(ErrorCodeGatewayInvalidResponse, "invalid payment gateway response")
	ErrGatewayMismatch        = NewDomainError(ErrorCodeGatewayMismatch, "gateway transaction belongs to a different order")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)

// NewValidationError creates a validation error naming the offending field
func NewValidationError(field, message string) *DomainError {
	return NewDomainError(ErrorCodeValidationFailed, message).WithDetail("field", field)
}

// NewMissingFieldError creates a missing-field validation error
func NewMissingFieldError(field string) *DomainError {
	return NewDomainError(ErrorCodeValidationMissingField, fmt.Sprintf("%s is required", field)).
		WithDetail("field", field)
}

// NewOrderNotFoundError returns a fresh not-found error for the given lookup key.
// Stores return this instead of ErrOrderNotFound so callers may add details.
func NewOrderNotFoundError(key string) *DomainError {
	return NewDomainError(ErrorCodeOrderNotFound, fmt.Sprintf("order %s not found", key)).
		WithDetail("order", key)
}
