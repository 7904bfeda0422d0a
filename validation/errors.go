package validation

import (
	"errors"
	"fmt"
)

// ErrCheckDisabled is returned before a run starts when the tenant has
// disabled the resolved rule through an override. Nothing is recorded.
var ErrCheckDisabled = errors.New("check disabled for tenant")

// CredentialError indicates the execution context could not be acquired.
// A run that fails here terminates with status ERROR.
type CredentialError struct {
	TenantID string
	Err      error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("failed to acquire execution context for tenant %s: %v", e.TenantID, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// InvocationError indicates a step's remote call failed, or its
// precondition-resolution lookup returned nothing. Handled per the step's
// failure policy.
type InvocationError struct {
	Service   string
	Operation string

	// Precondition marks a failed pre-resolution lookup (empty listing)
	// rather than a failed main call.
	Precondition bool

	Err error
}

func (e *InvocationError) Error() string {
	if e.Precondition {
		return fmt.Sprintf("%s.%s: precondition lookup returned nothing: %v", e.Service, e.Operation, e.Err)
	}
	return fmt.Sprintf("%s.%s: invocation failed: %v", e.Service, e.Operation, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// UnsupportedOperationError indicates a step references a (service,
// operation) pair outside the registered set. This is a configuration
// defect, so it always fails the check regardless of the declared policy.
type UnsupportedOperationError struct {
	Service   string
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported operation %s.%s", e.Service, e.Operation)
}

// PersistenceError indicates the recorder could not save a result.
type PersistenceError struct {
	ExecutionID string
	Err         error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to record execution %s: %v", e.ExecutionID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
