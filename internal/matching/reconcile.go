package matching

import (
	"fmt"
	"log"

	"supportchat/pkg/types"
)

// Disconnect removes a lost connection from whichever structure held it and
// restores matching for the rest of the room
// FUNCTIONAL DISCOVERY: Safe to call more than once; the second call finds no
// metadata and only clears the registry handle
func (e *Engine) Disconnect(connID string) {
	md, exists := e.registry.Lookup(connID)
	if !exists {
		e.registry.Remove(connID)
		return
	}
	roomID := md.RoomID

	if pairing, ok := e.sessions.Unpair(connID); ok {
		partnerID := pairing.PartnerOf(connID)

		if connID == pairing.ExpertID {
			e.recordEnded(pairing, types.ReasonExpertDisconnected)
			_ = e.registry.Send(partnerID, types.EventChatEnded, types.ChatEndedPayload{
				By:      types.EndedByExpertDisconnected,
				Message: "The expert has disconnected. You will be added back to the queue.",
			})
			log.Printf("Expert disconnected mid-chat room=%s expert=%s user=%s", roomID, connID, partnerID)

			// ARCHITECTURAL DISCOVERY: The orphaned user re-enters as a fresh entry
			// at the back of the queue, then gets an immediate matching attempt in
			// case another expert is idle
			if user, ok := e.registry.Lookup(partnerID); ok && e.enqueue(pairing.RoomID, partnerID, user.Identity) {
				e.drain(pairing.RoomID)
			}
		} else {
			e.recordEnded(pairing, types.ReasonUserDisconnected)
			user := identityOr(md.Identity, types.RoleUser)
			_ = e.registry.Send(partnerID, types.EventChatEnded, types.ChatEndedPayload{
				By:      types.EndedByUserDisconnected,
				Message: fmt.Sprintf("User %s has disconnected.", user),
			})
			log.Printf("User disconnected mid-chat room=%s user=%s expert=%s", roomID, connID, partnerID)

			e.rooms.MarkExpertAvailable(pairing.RoomID, partnerID)
			e.drain(pairing.RoomID)
		}
	} else if md.Role == types.RoleUser {
		if _, removed := e.rooms.RemoveFromQueue(roomID, connID); removed {
			log.Printf("Queued user disconnected room=%s user=%s", roomID, connID)
		}
	} else if e.rooms.RemoveExpertFromAvailable(roomID, connID) {
		log.Printf("Idle expert disconnected room=%s expert=%s", roomID, connID)
	}

	e.broadcastQueue(roomID, connID)
	e.registry.Remove(connID)
	e.releaseRoom(roomID)
}

// Shutdown ends every active pairing and records the shutdown reason
// TECHNICAL DISCOVERY: No chat-ended is sent; connections are closed right after
// and clients treat the close as the end of the chat
func (e *Engine) Shutdown() int {
	ended := 0
	for _, p := range e.sessions.All() {
		if pairing, ok := e.sessions.Unpair(p.ExpertID); ok {
			e.recordEnded(pairing, types.ReasonShutdown)
			ended++
		}
	}
	if ended > 0 {
		log.Printf("Ended %d active chats for shutdown", ended)
	}
	return ended
}
