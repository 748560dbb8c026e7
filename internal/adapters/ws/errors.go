package ws

import "errors"

// Sentinel kinds for websocket transport errors.
var (
	// ErrSlowConsumer means a client's send buffer is full. The fanout
	// layer evicts the subscriber on this error.
	ErrSlowConsumer = errors.New("websocket send buffer full")
	// ErrClosed means the client connection is already closed.
	ErrClosed = errors.New("websocket client closed")
)
