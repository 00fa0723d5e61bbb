package hab

import (
	"github.com/pkg/errors"

	"github.com/hab-env/hab/internal/distro"
	"github.com/hab-env/hab/internal/envmerge"
	"github.com/hab-env/hab/internal/forest"
	"github.com/hab-env/hab/internal/formatter"
	"github.com/hab-env/hab/internal/solver"
)

// HabError is the common interface satisfied by every hab-specific error
// kind. It exists so callers can type-switch on "is this one of ours"
// without enumerating every concrete type.
type HabError interface {
	error
	habError()
	// Trace renders a one-line explanation suitable for a CLI failure
	// report.
	Trace() string
}

type baseError struct{ msg string }

func (e baseError) Error() string { return e.msg }
func (baseError) habError()       {}
func (e baseError) Trace() string { return e.msg }

// DuplicateJsonError is raised when the same (context, name) triple is
// redefined from the *same* source root.
type DuplicateJsonError struct{ baseError }

func newDuplicateJSONError(inner *forest.ErrDuplicateDefinition) *DuplicateJsonError {
	return &DuplicateJsonError{baseError{msg: inner.Error()}}
}

// InvalidRequirementError is raised when a requirement names no family, or
// no version in the family satisfies the accumulated constraint.
type InvalidRequirementError struct{ baseError }

func newInvalidRequirementError(inner *solver.ErrInvalidRequirement) *InvalidRequirementError {
	return &InvalidRequirementError{baseError{msg: inner.Error()}}
}

// MaxRedirectError is raised when the solver exceeds its restart budget.
type MaxRedirectError struct{ baseError }

func newMaxRedirectError(inner *solver.ErrMaxRedirect) *MaxRedirectError {
	return &MaxRedirectError{baseError{msg: inner.Error()}}
}

// InvalidAliasError is raised when a requested alias name does not exist in
// a flat configuration.
type InvalidAliasError struct{ baseError }

func newInvalidAliasError(alias, uri string) *InvalidAliasError {
	return &InvalidAliasError{baseError{msg: errors.Errorf(
		"alias %q is not defined for %q", alias, uri).Error()}}
}

// HabErrorGeneric is the catch-all for conditions like a launchable alias
// without a cmd.
type HabErrorGeneric struct{ baseError }

func newHabError(msg string) *HabErrorGeneric {
	return &HabErrorGeneric{baseError{msg: msg}}
}

// ReservedVariableNameError is raised when a user-declared variables map
// collides with a reserved interpolation token.
type ReservedVariableNameError struct{ baseError }

func newReservedVariableNameError(inner *formatter.ErrReservedVariableName) *ReservedVariableNameError {
	return &ReservedVariableNameError{baseError{msg: inner.Error()}}
}

// InvalidVersionError is raised when a distro descriptor's version cannot
// be determined by any fallback.
type InvalidVersionError struct{ baseError }

func newInvalidVersionError(inner *distro.ErrInvalidVersion) *InvalidVersionError {
	return &InvalidVersionError{baseError{msg: inner.Error()}}
}

// InstallDestinationExistsError is raised when an install target already
// exists and replacement was not requested.
type InstallDestinationExistsError struct{ baseError }

func newInstallDestinationExistsError(inner *distro.ErrInstallDestinationExists) *InstallDestinationExistsError {
	return &InstallDestinationExistsError{baseError{msg: inner.Error()}}
}

// EnvironmentRuleViolationError is raised for a `set`/`unset` on PATH, or
// any operation referencing HAB_URI.
type EnvironmentRuleViolationError struct{ baseError }

func newEnvironmentRuleViolationError(inner *envmerge.ErrEnvironmentRuleViolation) *EnvironmentRuleViolationError {
	return &EnvironmentRuleViolationError{baseError{msg: inner.Error()}}
}

// FreezeDecodeError is raised for a malformed or unsupported freeze string.
type FreezeDecodeError struct{ baseError }

func newFreezeDecodeError(msg string) *FreezeDecodeError {
	return &FreezeDecodeError{baseError{msg: msg}}
}

// wrapComponentError translates an error surfaced by an internal component
// into its corresponding HabError, leaving anything it doesn't recognize
// untouched.
func wrapComponentError(err error) error {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case *forest.ErrDuplicateDefinition:
		return newDuplicateJSONError(e)
	case *solver.ErrInvalidRequirement:
		return newInvalidRequirementError(e)
	case *solver.ErrMaxRedirect:
		return newMaxRedirectError(e)
	case *formatter.ErrReservedVariableName:
		return newReservedVariableNameError(e)
	case *distro.ErrInvalidVersion:
		return newInvalidVersionError(e)
	case *distro.ErrInstallDestinationExists:
		return newInstallDestinationExistsError(e)
	case *envmerge.ErrEnvironmentRuleViolation:
		return newEnvironmentRuleViolationError(e)
	default:
		return err
	}
}
