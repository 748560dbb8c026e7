package view

import "errors"

// Sentinel kinds for view errors.
var (
	// ErrOpenFailed indicates the view database could not be opened.
	ErrOpenFailed = errors.New("view open failed")
)
