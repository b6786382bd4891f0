package service

import "errors"

var (
	ErrInvalidDataset   = errors.New("invalid dataset")
	ErrShuttingDown     = errors.New("processor is shutting down")
	ErrArtifactNotReady = errors.New("artifact not ready")
	ErrNoStorage        = errors.New("artifact storage not configured")
)
