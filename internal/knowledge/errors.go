package knowledge

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable       = errors.New("knowledge service unavailable")
	ErrMalformedResponse = errors.New("malformed knowledge service response")
)

// ErrNotConfigured is returned when no service URL is set.
var ErrNotConfigured = fmt.Errorf("%w: not configured", ErrUnavailable)
