package types

import "errors"

// ARCHITECTURAL DISCOVERY: Specific error types enable proper error handling
// and user-friendly error messages throughout the system
var (
	ErrInvalidRoomID       = errors.New("room id must be 1-100 characters")
	ErrInvalidRole         = errors.New("role must be 'user' or 'expert'")
	ErrInvalidIdentity     = errors.New("identity is too long")
	ErrEmptyMessage        = errors.New("message text cannot be empty")
	ErrMessageTooLarge     = errors.New("message text exceeds 64KB limit")
	ErrSignalTooLarge      = errors.New("signal payload exceeds 64KB limit")
	ErrMissingSignalTarget = errors.New("signal target is required")
)
