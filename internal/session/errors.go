package session

import "errors"

// Session table error types
var (
	ErrAlreadyPaired = errors.New("connection is already in an active session")
	ErrSelfPairing   = errors.New("a connection cannot be paired with itself")
	ErrNotPaired     = errors.New("connection is not in an active session")
)
