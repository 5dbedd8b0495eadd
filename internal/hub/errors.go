package hub

import (
	"errors"

	"supportchat/internal/matching"
	"supportchat/internal/router"
	"supportchat/pkg/types"
)

// Hub-specific error types
var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrEventChannelFull  = errors.New("event channel is full")
	ErrInvalidPayload    = errors.New("invalid event payload")
	ErrUnknownEvent      = errors.New("unknown event")
	ErrInternal          = errors.New("internal error while handling event")
)

// clientMessages maps errors to the text shown to the offending client
// FUNCTIONAL DISCOVERY: Wording is what existing chat clients display verbatim
var clientMessages = []struct {
	err  error
	text string
}{
	{matching.ErrPickNotExpert, "Only experts can pick users."},
	{matching.ErrEndNotExpert, "Only experts can end chats."},
	{matching.ErrAlreadyInChat, "You are already in a chat. Please end it first."},
	{matching.ErrUserNotQueued, "User not found in queue or already picked."},
	{matching.ErrWrongRoom, "You can only pick users waiting in your own room."},
	{matching.ErrNotInChat, "You are not in an active chat."},
	{matching.ErrAlreadyQueued, "You are already waiting in the queue."},
	{types.ErrInvalidRoomID, "Room id must be 1-100 characters."},
	{types.ErrInvalidRole, "Role must be 'user' or 'expert'."},
	{types.ErrInvalidIdentity, "Display name is too long."},
	{router.ErrSenderUnknown, "Cannot send message. User details not found."},
	{router.ErrNoPartner, "Your chat partner is not available or you are not in an active chat."},
	{router.ErrRateLimitExceeded, "You are sending messages too quickly. Please slow down."},
	{types.ErrEmptyMessage, "Message text cannot be empty."},
	{types.ErrMessageTooLarge, "Message text exceeds the 64KB limit."},
	{ErrInvalidPayload, "Malformed event payload."},
	{ErrUnknownEvent, "Unknown event."},
}

// clientMessage converts a handler error into user-facing text
func clientMessage(err error) string {
	for _, m := range clientMessages {
		if errors.Is(err, m.err) {
			return m.text
		}
	}
	return "Request could not be processed."
}
