// Package execution implements the one-click execution workflow: pre-flight
// validation, the submit/confirm state machine and the bounded retry policy
// around the venue call.
package execution

import (
	"errors"
	"fmt"

	"adapilot/internal/gateway/venue"
)

// ErrorType classifies execution failures for callers and for the retry
// policy. Only network-class failures are retryable.
type ErrorType string

const (
	ErrTypeValidation ErrorType = "validation"
	ErrTypeBalance    ErrorType = "balance"
	ErrTypeAPI        ErrorType = "api"
	ErrTypeNetwork    ErrorType = "network"
)

// ExecutionError is the structured failure every execution attempt yields
// instead of a bare error chain.
type ExecutionError struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution %s error: %s", e.Type, e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// Retryable reports whether another attempt can succeed without operator
// intervention.
func (e *ExecutionError) Retryable() bool { return e.Type == ErrTypeNetwork }

func validationErr(format string, args ...any) *ExecutionError {
	return &ExecutionError{Type: ErrTypeValidation, Message: fmt.Sprintf(format, args...)}
}

func balanceErr(format string, args ...any) *ExecutionError {
	return &ExecutionError{Type: ErrTypeBalance, Message: fmt.Sprintf(format, args...)}
}

// classifyVenueErr maps a venue call failure onto the taxonomy: transient
// transport faults are network-class, everything else is an API rejection.
func classifyVenueErr(err error) *ExecutionError {
	if errors.Is(err, venue.ErrTransient) {
		return &ExecutionError{Type: ErrTypeNetwork, Message: err.Error(), Cause: err}
	}
	return &ExecutionError{Type: ErrTypeAPI, Message: err.Error(), Cause: err}
}
