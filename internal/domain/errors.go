package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrAccountAlreadyExists = errors.New("account_already_exists")
	ErrAccountNotFound      = errors.New("account_not_found")
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrOrderNotCancellable  = errors.New("order_not_cancellable")
	ErrInsufficientFunds    = errors.New("insufficient_funds")
	ErrInsufficientPosition = errors.New("insufficient_position")
	ErrSymbolNotFound       = errors.New("symbol_not_found")
	ErrWebhookNotFound      = errors.New("webhook_not_found")

	// ErrConsistencyViolation marks an internal invariant breach. It is
	// never user-correctable and aborts the enclosing transaction.
	ErrConsistencyViolation = errors.New("consistency_violation")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ConsistencyError describes which invariant was breached. It matches
// ErrConsistencyViolation and, when set, the underlying Cause.
type ConsistencyError struct {
	Message string
	Cause   error
}

// Violation builds a ConsistencyError with a formatted message.
func Violation(format string, args ...any) *ConsistencyError {
	return &ConsistencyError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConsistencyError) Error() string {
	return "consistency_violation: " + e.Message
}

func (e *ConsistencyError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrConsistencyViolation, e.Cause}
	}
	return []error{ErrConsistencyViolation}
}
