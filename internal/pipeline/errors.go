// File path: internal/pipeline/errors.go
package pipeline

import (
	"errors"
	"fmt"
)

// ErrNonVegetarianProtein is returned when a vegetarian diet plan would list a protein
// outside the whitelist.
var ErrNonVegetarianProtein = errors.New("non-vegetarian protein in vegetarian plan")

// StageExecutionError reports the stage that stopped the pipeline.
type StageExecutionError struct {
	Index int
	Stage StageID
	Err   error
}

func (e *StageExecutionError) Error() string {
	return fmt.Sprintf("stage %d (%s) failed: %v", e.Index, e.Stage, e.Err)
}

func (e *StageExecutionError) Unwrap() error {
	return e.Err
}

func stageError(id StageID, err error) *StageExecutionError {
	return &StageExecutionError{Index: int(id), Stage: id, Err: err}
}
