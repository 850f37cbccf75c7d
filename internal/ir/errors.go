package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigErrorCode categorizes configuration errors.
type ConfigErrorCode string

const (
	// ErrCodeCycle indicates a cycle among constructor references.
	ErrCodeCycle ConfigErrorCode = "CYCLE"

	// ErrCodeMissingDependency indicates a reference to an undeclared component.
	ErrCodeMissingDependency ConfigErrorCode = "MISSING_DEPENDENCY"

	// ErrCodeUnresolvedReference indicates a step that would run before a
	// component it depends on is deployed.
	ErrCodeUnresolvedReference ConfigErrorCode = "UNRESOLVED_REFERENCE"

	ErrCodeEmptyTopology   ConfigErrorCode = "EMPTY_TOPOLOGY"
	ErrCodeDuplicateKind   ConfigErrorCode = "DUPLICATE_KIND"
	ErrCodeUnknownKind     ConfigErrorCode = "UNKNOWN_KIND"
	ErrCodeInvalidStep     ConfigErrorCode = "INVALID_STEP"
	ErrCodeInvalidArgument ConfigErrorCode = "INVALID_ARGUMENT"

	// ErrCodeRequiredStepDisabled indicates configuration tried to disable
	// a step that is not marked optional.
	ErrCodeRequiredStepDisabled ConfigErrorCode = "REQUIRED_STEP_DISABLED"

	// ErrCodeUnknownStep indicates a step override naming no declared step.
	ErrCodeUnknownStep ConfigErrorCode = "UNKNOWN_STEP"

	// ErrCodeInvalidResume indicates an inconsistent manual resumption.
	ErrCodeInvalidResume ConfigErrorCode = "INVALID_RESUME"
)

// ConfigurationError is detected without touching the ledger: cyclic or
// missing dependencies, or a step referencing a kind not yet resolved.
type ConfigurationError struct {
	Code    ConfigErrorCode
	Message string

	// Kind identifies the component involved, if any.
	Kind ComponentKind

	// StepKey identifies the plan step involved, if any.
	StepKey string

	// Path is the cycle path for ErrCodeCycle.
	Path []ComponentKind
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.StepKey != "" {
		fmt.Fprintf(&b, " (step=%s)", e.StepKey)
	} else if e.Kind != "" {
		fmt.Fprintf(&b, " (kind=%s)", e.Kind)
	}
	return b.String()
}

// IsConfigurationError returns true if err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// NewUnresolvedError creates a ConfigurationError for a step whose
// dependency is not in the resolution table.
func NewUnresolvedError(stepKey string, missing ComponentKind) *ConfigurationError {
	return &ConfigurationError{
		Code:    ErrCodeUnresolvedReference,
		Message: fmt.Sprintf("step depends on %q which is not deployed at this point", missing),
		Kind:    missing,
		StepKey: stepKey,
	}
}
