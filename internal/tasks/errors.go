package tasks

import (
	"errors"
	"fmt"
)

// StageError names the acquisition stage that failed. It unwraps to the underlying
// sentinel, so errors.Is(err, shared.ErrTransferFailed) still matches.
type StageError struct {
	Stage Phase
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageError(stage Phase, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// StageOf extracts the failing stage from err.
func StageOf(err error) (Phase, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return 0, false
}
