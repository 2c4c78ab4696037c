package entities

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the settlement services. Callers classify with errors.Is.
var (
	// ErrValidation marks a malformed request or an illegal state transition.
	// Nothing is persisted when it is returned.
	ErrValidation = errors.New("validation failed")

	// ErrPrecondition marks an execution that cannot start, such as an
	// unapproved distribution or an empty investor set.
	ErrPrecondition = errors.New("precondition failed")

	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrValidation)
	ErrZeroSupply        = fmt.Errorf("%w: total token supply is zero", ErrPrecondition)
	ErrNoEligibleWallets = fmt.Errorf("%w: no eligible wallets", ErrPrecondition)
)

// NewValidationError returns an error wrapping ErrValidation
func NewValidationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NewPreconditionError returns an error wrapping ErrPrecondition
func NewPreconditionError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}
