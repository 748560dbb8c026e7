package bus

import "errors"

// Sentinel kinds for bus errors.
var (
	// ErrEncode indicates a payload could not be encoded for publishing.
	ErrEncode = errors.New("payload encode failed")
)
