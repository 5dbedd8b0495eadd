package room

import "errors"

var (
	ErrQueueFull     = errors.New("room queue is full")
	ErrAlreadyQueued = errors.New("connection already queued in room")
)
