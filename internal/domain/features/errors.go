package features

import (
	"errors"
)

// Sentinel kinds for feature registry errors.
var (
	ErrSchemaNotFound = errors.New("feature schema not found")
	ErrInvalidSchema  = errors.New("invalid feature schema")
)
