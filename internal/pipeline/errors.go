package pipeline

import "fmt"

// Wraps a stage failure with the identity of the stage that failed, so a
// failing build reports where it stopped and why without re-running the
// whole pipeline blind.
type StageError struct {
	Stage State // The state the pipeline was trying to reach.
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}
