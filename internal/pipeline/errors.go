package pipeline

import "errors"

var (
	ErrCancelled  = errors.New("job cancelled")
	ErrTimedOut   = errors.New("job timed out")
	ErrStagePanic = errors.New("stage panicked")
)
