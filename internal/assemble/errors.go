package assemble

import "fmt"

// Reported when final image assembly fails: a destination conflict between
// artifacts, a missing or unreadable base image, or a write failure.
// Assembly errors are fatal; a partially assembled image is discarded, not
// repaired.
type AssemblyError struct {
	Reason string
	Cause  error
}

func (e *AssemblyError) Error() string {
	if e.Cause == nil {
		return "assembly failed: " + e.Reason
	}
	return fmt.Sprintf("assembly failed: %s: %v", e.Reason, e.Cause)
}

func (e *AssemblyError) Unwrap() error {
	return e.Cause
}

// Wraps an error as an [*AssemblyError].
func assemblyErr(cause error, format string, args ...any) error {
	return &AssemblyError{Reason: fmt.Sprintf(format, args...), Cause: cause}
}
