package matching

import "errors"

// Matching error types
// ARCHITECTURAL DISCOVERY: Every error here is protocol misuse by the caller and
// is reported back to that caller only; none of them mutate state
var (
	ErrInvalidJoin   = errors.New("invalid join-room request")
	ErrAlreadyQueued = errors.New("connection is already waiting in a queue")
	ErrAlreadyInChat = errors.New("connection is already in an active chat")
	ErrPickNotExpert = errors.New("only experts can pick users")
	ErrEndNotExpert  = errors.New("only experts can end chats")
	ErrUserNotQueued = errors.New("user not found in queue")
	ErrWrongRoom     = errors.New("user is queued in another room")
	ErrNotInChat     = errors.New("expert is not in an active chat")
)
