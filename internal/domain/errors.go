package domain

import "fmt"

// Error types for consistent error handling across the engine.
// Business-rule rejections (eligibility, bounds) are Decisions, not errors;
// these types cover infrastructure and validation faults only.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates bad input (malformed amount, missing field).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrExternalService indicates a failure in an external collaborator
// (store, chain node).
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open for a service.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrConflict indicates a uniqueness violation — most importantly a second
// open loan for the same user racing past the eligibility check.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrInvalidTransition indicates an attempted loan state change the
// lifecycle does not permit.
type ErrInvalidTransition struct {
	LoanID string
	From   LoanStatus
	To     LoanStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid loan transition %s → %s for loan %s", e.From, e.To, e.LoanID)
}
