package train

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrComputation    = errors.New("computation failed")
	ErrNonFiniteLoss  = errors.New("loss is not finite")
	ErrInvalidConfig  = errors.New("invalid training configuration")
	ErrMissingLoaders = errors.New("train and valid loaders are required")
)

// ComputationError reports a failure inside a batch. The run is aborted and
// no checkpoint is written.
type ComputationError struct {
	Epoch int // -1 outside the epoch loop
	Phase Phase
	Batch int
	Err   error
}

// Error implements the error interface.
func (e *ComputationError) Error() string {
	return fmt.Sprintf("%s: epoch %d, %s batch %d: %v", ErrComputation, e.Epoch, e.Phase, e.Batch, e.Err)
}

// Unwrap returns ErrComputation and the underlying cause.
func (e *ComputationError) Unwrap() []error {
	return []error{ErrComputation, e.Err}
}
