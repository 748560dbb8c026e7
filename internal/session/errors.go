package session

import "errors"

// Sentinel kinds for session registry errors.
var (
	// ErrCapacityExceeded rejects an ingest whose play count exceeds the
	// configured queue depth limit.
	ErrCapacityExceeded = errors.New("play queue capacity exceeded")
	// ErrNotFound reports that no live session exists for a contest id.
	ErrNotFound = errors.New("session not found")
)
