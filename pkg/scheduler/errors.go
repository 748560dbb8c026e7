package scheduler

import (
	"errors"
)

// Sentinel kinds for scheduler errors.
var (
	ErrInvalidJob     = errors.New("invalid job")
	ErrAlreadyStarted = errors.New("scheduler already started")
	ErrJobPanicked    = errors.New("job panicked")
)
