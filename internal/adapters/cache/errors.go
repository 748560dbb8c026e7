package cache

import "errors"

// Sentinel kinds for cache errors.
var (
	// ErrOpenFailed indicates the backing database could not be opened.
	ErrOpenFailed = errors.New("cache open failed")
	// ErrNotFound indicates no entry exists for the requested key.
	ErrNotFound = errors.New("cache entry not found")
	// ErrEncode indicates a value could not be encoded for storage.
	ErrEncode = errors.New("cache value encode failed")
)
