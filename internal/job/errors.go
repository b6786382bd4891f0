package job

import "errors"

var (
	ErrNotFound       = errors.New("job not found")
	ErrAlreadyRunning = errors.New("job already running")
	ErrInvalidState   = errors.New("invalid job state")
)
