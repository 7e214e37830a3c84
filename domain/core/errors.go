package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Structural errors abort the whole run (or the pipeline they concern)
	ErrConfigurationConflict = errors.New("configuration conflict")
	ErrInputShape            = errors.New("input shape mismatch")
	ErrInvalidTarget         = fmt.Errorf("%w: target must be binary 0/1", ErrInputShape)

	// Trial errors are recoverable: the optimizer records error_score and moves on
	ErrFitFailed            = errors.New("fit failed")
	ErrDegenerateInput      = errors.New("degenerate input")
	ErrNumerical            = errors.New("numerical failure")
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// Selection outcomes
	ErrNoCandidate          = errors.New("no candidate configuration")
	ErrInsufficientCoverage = errors.New("insufficient prediction coverage")

	ErrNotFound = errors.New("resource not found")
)

// NewFitError wraps a collaborator failure so the optimizer treats it as a TrialFailure.
func NewFitError(component string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrFitFailed, component, err)
}

// NewDegenerateError reports input a component cannot work with (one class, empty support).
func NewDegenerateError(component, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrDegenerateInput, component, reason)
}

// NewNumericalError reports NaN/Inf produced while fitting or predicting.
func NewNumericalError(component, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrNumerical, component, reason)
}

// IsTrialFailure reports whether err belongs to the bounded set of recoverable
// per-trial failures.
func IsTrialFailure(err error) bool {
	return errors.Is(err, ErrFitFailed) ||
		errors.Is(err, ErrDegenerateInput) ||
		errors.Is(err, ErrNumerical) ||
		errors.Is(err, ErrInvalidConfiguration)
}

// IsStructuralError reports errors that must abort the run.
func IsStructuralError(err error) bool {
	return errors.Is(err, ErrConfigurationConflict) || errors.Is(err, ErrInputShape)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
