// Package catalogerr defines the error kinds raised by the package catalog.
//
// Every kind is a sentinel matched with errors.Is. Operations wrap them with
// context, so callers should never compare error strings.
package catalogerr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrAlreadyExists is returned when an add would duplicate a key or path.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound is returned when the target catalog or row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotSet is returned when removing a manifest that is not in the catalog.
	ErrNotSet = errors.New("not set")

	// ErrMissingPackage is returned when a dependency names an unknown package.
	ErrMissingPackage = errors.New("missing package")

	// ErrMissingVersion is returned when no version satisfies a dependency bound.
	ErrMissingVersion = errors.New("missing version")

	// ErrDependenciesValidationFailed covers cycles, unmet bounds and unsafe removals.
	ErrDependenciesValidationFailed = errors.New("dependencies validation failed")

	// ErrArpVersionValidationFailed is returned when ARP ranges of two versions overlap.
	ErrArpVersionValidationFailed = errors.New("arp version validation failed")

	// ErrInvalidState is returned for operations the catalog's schema or
	// disposition does not allow.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidArgument is returned for malformed input such as bad paths.
	ErrInvalidArgument = errors.New("invalid argument")
)

// DependencyError describes a dependency validation failure.
type DependencyError struct {
	Kind    error    // one of the sentinels above
	Package string   // package the failure was detected on
	Chain   []string // path from the validated package, when known
	Detail  string
	// Also lists extra kinds the error matches, e.g. ErrMissingVersion.
	Also []error
}

func (e *DependencyError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.Error())
	if e.Package != "" {
		fmt.Fprintf(&sb, ": %s", e.Package)
	}
	if e.Detail != "" {
		fmt.Fprintf(&sb, ": %s", e.Detail)
	}
	if len(e.Chain) > 0 {
		fmt.Fprintf(&sb, " (%s)", strings.Join(e.Chain, " -> "))
	}
	return sb.String()
}

// Unwrap exposes Kind and Also to errors.Is.
func (e *DependencyError) Unwrap() []error {
	return append([]error{e.Kind}, e.Also...)
}
