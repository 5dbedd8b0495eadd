package router

import "errors"

// Relay error types
var (
	ErrSenderUnknown     = errors.New("sender has not joined a room")
	ErrNoPartner         = errors.New("chat partner not available or no active chat")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrSignalDropped     = errors.New("signal target is not the current partner")
)
