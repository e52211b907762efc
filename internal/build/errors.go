// SPDX-License-Identifier: MPL-2.0

package build

import (
	"errors"
	"fmt"

	"github.com/droidpack/droidpack/pkg/abi"
)

var (
	// ErrCancelled is the sentinel error wrapped by CancellationError.
	ErrCancelled = errors.New("build cancelled")

	// ErrNoPackage is returned when the package stage succeeded without
	// leaving a package behind.
	ErrNoPackage = errors.New("toolchain produced no package")

	// ErrNoTargets is returned when a plan has no architecture left to build.
	ErrNoTargets = errors.New("no architecture to build")
)

// CancellationError marks an architecture whose pipeline was stopped
// because the build was aborted.
type CancellationError struct {
	Arch  abi.Arch
	Cause error
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Arch, ErrCancelled, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Arch, ErrCancelled)
}

// Unwrap returns ErrCancelled and the cause.
func (e *CancellationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrCancelled, e.Cause}
	}
	return []error{ErrCancelled}
}

// Stage names the pipeline stage that produced the error.
func (e *CancellationError) Stage() string { return FailedCancelled }
