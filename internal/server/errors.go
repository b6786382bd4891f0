package server

import "errors"

var (
	ErrMissingFile     = errors.New("missing file")
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrUploadTooLarge  = errors.New("upload too large")
)
