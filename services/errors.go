package services

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeUnauthorized  ErrorType = "unauthorized"
	ErrorTypeForbidden     ErrorType = "forbidden"
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeQuotaExceeded ErrorType = "quota_exceeded"
	ErrorTypeConflict      ErrorType = "conflict"
	ErrorTypeInternal      ErrorType = "internal"
	// ErrorTypeStoreUnavailable marks transient store failures so callers can
	// retry with backoff instead of treating them as permanent faults.
	ErrorTypeStoreUnavailable ErrorType = "store_unavailable"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Not Found Errors
	ErrUserNotFound       = NewDomainError(ErrorTypeNotFound, "user not found", nil)
	ErrRoleNotFound       = NewDomainError(ErrorTypeNotFound, "role not found", nil)
	ErrPermissionNotFound = NewDomainError(ErrorTypeNotFound, "permission not found", nil)
	ErrTokenNotFound      = NewDomainError(ErrorTypeNotFound, "token not found", nil)

	// Validation Errors
	ErrInvalidInput       = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrInvalidEmail       = NewDomainError(ErrorTypeValidation, "invalid email format", nil)
	ErrWeakPassword       = NewDomainError(ErrorTypeValidation, "password does not meet requirements", nil)
	ErrInvalidServiceType = NewDomainError(ErrorTypeValidation, "invalid service type", nil)

	// Authentication Errors
	ErrUnauthorized       = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)
	ErrInvalidCredentials = NewDomainError(ErrorTypeUnauthorized, "invalid email or password", nil)
	ErrInvalidToken       = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)
	ErrTokenExpired       = NewDomainError(ErrorTypeUnauthorized, "authentication token expired", nil)
	ErrTokenRevoked       = NewDomainError(ErrorTypeUnauthorized, "authentication token revoked", nil)
	ErrInvalidResetToken  = NewDomainError(ErrorTypeUnauthorized, "invalid or expired reset token", nil)

	// Permission Errors
	ErrForbidden               = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)
	ErrInsufficientPermissions = NewDomainError(ErrorTypeForbidden, "insufficient permissions", nil)
	ErrAccountInactive         = NewDomainError(ErrorTypeForbidden, "account is inactive", nil)
	ErrNoOrganization          = NewDomainError(ErrorTypeForbidden, "user is not assigned to an organization", nil)
	ErrNoRoleAssigned          = NewDomainError(ErrorTypeForbidden, "user has no role assigned", nil)

	// Rate Limit Errors
	ErrRateLimitExceeded      = NewDomainError(ErrorTypeRateLimit, "rate limit exceeded", nil)
	ErrTooManyResetRequests   = NewDomainError(ErrorTypeRateLimit, "too many password reset requests", nil)
	ErrTooManyLoginAttempts   = NewDomainError(ErrorTypeRateLimit, "too many login attempts", nil)

	// Quota Errors
	ErrQuotaExceeded        = NewDomainError(ErrorTypeQuotaExceeded, "quota exceeded", nil)
	ErrDailyQuotaExceeded   = NewDomainError(ErrorTypeQuotaExceeded, "daily quota exceeded", nil)
	ErrMonthlyQuotaExceeded = NewDomainError(ErrorTypeQuotaExceeded, "monthly quota exceeded", nil)

	// Conflict Errors
	ErrDuplicateEmail   = NewDomainError(ErrorTypeConflict, "email already registered", nil)
	ErrDuplicateRole    = NewDomainError(ErrorTypeConflict, "role already exists", nil)
	ErrConcurrentUpdate = NewDomainError(ErrorTypeConflict, "concurrent update detected", nil)

	// Internal Errors
	ErrInternal          = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError     = NewDomainError(ErrorTypeInternal, "database error", nil)
	ErrTransactionFailed = NewDomainError(ErrorTypeInternal, "transaction failed", nil)

	// Store Errors
	ErrStoreUnavailable = NewDomainError(ErrorTypeStoreUnavailable, "storage backend unavailable", nil)
)

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeNotFound
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeValidation
	}
	return false
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeUnauthorized
	}
	return false
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeForbidden
	}
	return false
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeRateLimit
	}
	return false
}

// IsQuotaExceededError checks if an error is a quota error
func IsQuotaExceededError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeQuotaExceeded
	}
	return false
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeConflict
	}
	return false
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeInternal
	}
	return false
}

// IsStoreUnavailableError checks if an error is a transient store failure
func IsStoreUnavailableError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeStoreUnavailable
	}
	return false
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an unexpected error. Connection-class store failures
// are classified as store_unavailable so callers can retry with backoff.
func WrapInternal(message string, err error) error {
	if isStoreUnavailable(err) {
		return NewDomainError(ErrorTypeStoreUnavailable, message, err)
	}
	return NewDomainError(ErrorTypeInternal, message, err)
}

// isStoreUnavailable reports whether err is a transient connectivity failure
// from the storage backend rather than a query or data fault.
func isStoreUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		// connection exception, insufficient resources, operator intervention
		case "08", "53", "57":
			return true
		}
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
