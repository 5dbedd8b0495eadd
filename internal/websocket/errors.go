package websocket

import "errors"

// Connection-related errors
var (
	ErrInvalidJSON = errors.New("invalid JSON data")
)

// Handler-related errors
var (
	ErrConnectionSetup = errors.New("connection setup failed")
)
