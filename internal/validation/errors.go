package validation

import (
	"errors"
)

// Sentinel kinds for validation errors.
var (
	ErrInvalid = errors.New("validation failed")
)
