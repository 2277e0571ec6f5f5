package chain

import (
	"errors"
	"fmt"
)

// Error represents domain-specific errors for chain sessions
type Error struct {
	Code    string
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (e Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Is matches errors by code so wrapped errors with details still compare equal
func (e Error) Is(target error) bool {
	t, ok := target.(Error)
	return ok && t.Code == e.Code
}

// Common chain errors
var (
	// ErrSessionNotFound indicates the session is unknown to the store
	ErrSessionNotFound = Error{
		Code:    "CHAIN_SESSION_NOT_FOUND",
		Message: "Chain session not found",
	}

	// ErrInvalidStep indicates a step number outside 1..totalSteps
	ErrInvalidStep = Error{
		Code:    "CHAIN_INVALID_STEP",
		Message: "Step number is out of range",
	}

	// ErrInvalidTransition indicates a step state would move backwards
	ErrInvalidTransition = Error{
		Code:    "CHAIN_INVALID_TRANSITION",
		Message: "Invalid step state transition",
	}

	// ErrNoPendingReview indicates a gate operation on a session without a pending review
	ErrNoPendingReview = Error{
		Code:    "CHAIN_NO_PENDING_REVIEW",
		Message: "No pending gate review for session",
	}
)

// NewError creates a new chain error with details
func NewError(code, message string, details map[string]interface{}) Error {
	return Error{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// WithDetails adds details to an existing error
func (e Error) WithDetails(details map[string]interface{}) Error {
	e.Details = details
	return e
}

// IsNotFound checks if the error is a session not found error
func IsNotFound(err error) bool {
	var chainErr Error
	return errors.As(err, &chainErr) && chainErr.Code == ErrSessionNotFound.Code
}

// IsInvalidTransition checks if the error is an invalid transition error
func IsInvalidTransition(err error) bool {
	var chainErr Error
	return errors.As(err, &chainErr) && chainErr.Code == ErrInvalidTransition.Code
}
