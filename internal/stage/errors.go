package stage

import "errors"

var (
	ErrEmptyDataset       = errors.New("dataset has no columns or no rows")
	ErrNoCleanableColumns = errors.New("every column is protected")
	ErrMissingOutcome     = errors.New("missing prior stage outcome")
)
