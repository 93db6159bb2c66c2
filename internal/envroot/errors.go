package envroot

import (
	"errors"
	"fmt"
)

// Marks an install failure as transient (network-class). Transient failures
// are retried with backoff; anything else fails immediately.
var ErrTransient = errors.New("transient failure")

// Reported when a specific package cannot be installed.
//
// The failing package is always named so the caller knows what to fix
// without re-running the whole build.
type InstallError struct {
	Package string // The package that could not be installed.
	Cause   error  // The underlying failure.
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install %s: %v", e.Package, e.Cause)
}

func (e *InstallError) Unwrap() error {
	return e.Cause
}

// Reports whether an error is retryable.
func isTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
