// Package matching pairs waiting users with available experts.
package matching

import (
	"errors"
	"fmt"
	"log"
	"time"

	"supportchat/internal/registry"
	"supportchat/internal/room"
	"supportchat/internal/session"
	"supportchat/pkg/interfaces"
	"supportchat/pkg/types"
)

// Engine decides pairing and queueing for every arrival, pick, end and
// disconnect event
// ARCHITECTURAL DISCOVERY: The engine is not goroutine-safe on its own; compound
// operations (take expert + pair, dequeue + pair) rely on the hub calling it from
// one goroutine at a time
type Engine struct {
	registry          *registry.Registry
	rooms             *room.State
	sessions          *session.Table
	recorder          interfaces.SessionRecorder
	maxIdentityLength int
}

// Config tunes the engine
type Config struct {
	MaxIdentityLength int
}

// NewEngine wires the engine to its state owners; recorder may be nil
func NewEngine(reg *registry.Registry, rooms *room.State, sessions *session.Table, recorder interfaces.SessionRecorder, cfg Config) *Engine {
	return &Engine{
		registry:          reg,
		rooms:             rooms,
		sessions:          sessions,
		recorder:          recorder,
		maxIdentityLength: cfg.MaxIdentityLength,
	}
}

// Join handles a join-room announcement
// FUNCTIONAL DISCOVERY: Validation and the already-busy checks run before the
// registry is touched, so a rejected join leaves every structure unchanged
func (e *Engine) Join(connID string, req types.JoinRoomPayload) error {
	if err := req.Validate(e.maxIdentityLength); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJoin, err)
	}
	if e.sessions.IsPaired(connID) {
		return ErrAlreadyInChat
	}

	var leftRoom string
	if prev, exists := e.registry.Lookup(connID); exists {
		switch prev.Role {
		case types.RoleUser:
			if e.rooms.QueuePosition(prev.RoomID, connID) > 0 {
				return ErrAlreadyQueued
			}
		case types.RoleExpert:
			// an idle expert re-announcing leaves its old pool position
			if e.rooms.RemoveExpertFromAvailable(prev.RoomID, connID) && prev.RoomID != req.RoomID {
				leftRoom = prev.RoomID
			}
		}
	}

	e.registry.Register(connID, req.Identity, req.Role, req.RoomID)
	log.Printf("Registered conn=%s role=%s room=%s identity=%q", connID, req.Role, req.RoomID, req.Identity)

	if leftRoom != "" {
		e.broadcastQueue(leftRoom)
		e.releaseRoom(leftRoom)
	}

	if req.Role == types.RoleExpert {
		e.expertAvailable(req.RoomID, connID, true)
		return nil
	}
	e.userArrived(req.RoomID, connID, req.Identity)
	return nil
}

// userArrived pairs a user with an idle expert or queues it
func (e *Engine) userArrived(roomID, userID, identity string) {
	for {
		expertID, ok := e.rooms.TakeAvailableExpert(roomID)
		if !ok {
			break
		}
		err := e.startChat(roomID, expertID, userID)
		if err == nil {
			e.broadcastQueue(roomID)
			return
		}
		log.Printf("Pairing failed room=%s expert=%s user=%s: %v", roomID, expertID, userID, err)
		// a pooled expert that is already in a chat is dropped and the next one tried
		if !e.sessions.IsPaired(expertID) {
			e.rooms.MarkExpertAvailable(roomID, expertID)
			break
		}
	}

	if !e.enqueue(roomID, userID, identity) {
		return
	}
	e.broadcastQueue(roomID)
}

// enqueue appends a user and notifies it of its position; it reports false
// when the room's queue is full
func (e *Engine) enqueue(roomID, userID, identity string) bool {
	pos, err := e.rooms.Enqueue(roomID, userID, identity)
	if err != nil {
		if errors.Is(err, room.ErrQueueFull) {
			log.Printf("Queue full room=%s user=%s max=%d", roomID, userID, e.rooms.MaxQueueSize())
			_ = e.registry.Send(userID, types.EventQueueFull, types.QueueFullPayload{RoomID: roomID})
		} else {
			log.Printf("Enqueue failed room=%s user=%s: %v", roomID, userID, err)
		}
		return false
	}

	log.Printf("Queued room=%s user=%s position=%d", roomID, userID, pos)
	_ = e.registry.Send(userID, types.EventAddedToQueue, types.AddedToQueuePayload{
		RoomID:      roomID,
		Position:    pos,
		QueueLength: e.rooms.QueueLength(roomID),
	})
	return true
}

// expertAvailable returns an expert to the pool and serves the queue
func (e *Engine) expertAvailable(roomID, expertID string, announce bool) {
	e.rooms.MarkExpertAvailable(roomID, expertID)
	if announce {
		_ = e.registry.Send(expertID, types.EventExpertRegistered, types.ExpertRegisteredPayload{
			ExpertID: expertID,
			RoomID:   roomID,
		})
	}
	e.drain(roomID)
	e.broadcastQueue(roomID)
}

// drain pairs queued users with idle experts, oldest first on both sides,
// until one side runs out
func (e *Engine) drain(roomID string) {
	for e.rooms.QueueLength(roomID) > 0 && e.rooms.PoolSize(roomID) > 0 {
		expertID, _ := e.rooms.TakeAvailableExpert(roomID)
		entry, _ := e.rooms.DequeueFront(roomID)

		err := e.startChat(roomID, expertID, entry.ConnectionID)
		if err == nil {
			continue
		}
		log.Printf("Pairing failed room=%s expert=%s user=%s: %v", roomID, expertID, entry.ConnectionID, err)

		// FUNCTIONAL DISCOVERY: Only a side that is already in a chat is stale;
		// the other side keeps its place. Dropping a stale side shrinks the
		// queue or pool, so the loop still terminates.
		userStale := e.sessions.IsPaired(entry.ConnectionID)
		expertStale := e.sessions.IsPaired(expertID)
		if !userStale {
			e.rooms.RequeueFront(roomID, entry)
		}
		if !expertStale {
			e.rooms.MarkExpertAvailable(roomID, expertID)
		}
		if !userStale && !expertStale {
			return
		}
	}
}

// startChat installs the pairing and notifies both sides
func (e *Engine) startChat(roomID, expertID, userID string) error {
	pairing, err := e.sessions.Pair(roomID, expertID, userID)
	if err != nil {
		return err
	}

	expert, _ := e.registry.Lookup(expertID)
	user, _ := e.registry.Lookup(userID)
	expertName := identityOr(expert.Identity, types.RoleExpert)
	userName := identityOr(user.Identity, types.RoleUser)

	_ = e.registry.Send(userID, types.EventChatStarted, types.ChatStartedPayload{
		Partner: types.Partner{ID: expertID, Identifier: expertName, Role: types.RoleExpert},
		RoomID:  roomID,
	})
	_ = e.registry.Send(expertID, types.EventChatStarted, types.ChatStartedPayload{
		Partner: types.Partner{ID: userID, Identifier: userName, Role: types.RoleUser},
		RoomID:  roomID,
	})

	if e.recorder != nil {
		e.recorder.RecordSessionStarted(types.SessionRecord{
			ID:             pairing.ID,
			RoomID:         roomID,
			ExpertConnID:   expertID,
			ExpertIdentity: expertName,
			UserConnID:     userID,
			UserIdentity:   userName,
			StartedAt:      pairing.StartedAt,
		})
	}
	return nil
}

func (e *Engine) recordEnded(p session.Pairing, reason string) {
	if e.recorder != nil {
		e.recorder.RecordSessionEnded(p.ID, reason, time.Now())
	}
}

func identityOr(identity, role string) string {
	if identity == "" {
		return types.DefaultIdentity(role)
	}
	return identity
}

// PickUser lets an idle expert take a specific queued user out of order
func (e *Engine) PickUser(expertID string, req types.PickUserPayload) error {
	expert, exists := e.registry.Lookup(expertID)
	if !exists || expert.Role != types.RoleExpert {
		return ErrPickNotExpert
	}
	if e.sessions.IsPaired(expertID) {
		return ErrAlreadyInChat
	}

	roomID := req.RoomID
	if roomID == "" {
		roomID = expert.RoomID
	}
	if roomID != expert.RoomID {
		return ErrWrongRoom
	}

	entry, ok := e.rooms.RemoveFromQueue(roomID, req.UserIDToPick)
	if !ok {
		return ErrUserNotQueued
	}
	e.rooms.RemoveExpertFromAvailable(roomID, expertID)

	if err := e.startChat(roomID, expertID, entry.ConnectionID); err != nil {
		// restore both sides; the user goes to the back as a fresh entry
		log.Printf("Pick failed room=%s expert=%s user=%s: %v", roomID, expertID, entry.ConnectionID, err)
		e.rooms.MarkExpertAvailable(roomID, expertID)
		e.enqueue(roomID, entry.ConnectionID, entry.Identity)
		return err
	}

	log.Printf("Expert picked user room=%s expert=%s user=%s", roomID, expertID, entry.ConnectionID)
	e.broadcastQueue(roomID)
	return nil
}

// EndChat lets an expert end its current chat and return to the pool
func (e *Engine) EndChat(expertID string) error {
	expert, exists := e.registry.Lookup(expertID)
	if !exists || expert.Role != types.RoleExpert {
		return ErrEndNotExpert
	}

	pairing, ok := e.sessions.Unpair(expertID)
	if !ok {
		return ErrNotInChat
	}
	e.recordEnded(pairing, types.ReasonExpertEnded)

	_ = e.registry.Send(pairing.UserID, types.EventChatEnded, types.ChatEndedPayload{
		By:      types.EndedByExpert,
		Message: "The expert has ended the chat.",
	})
	_ = e.registry.Send(expertID, types.EventChatEnded, types.ChatEndedPayload{
		By:      types.EndedByExpert,
		Message: "You have ended the chat.",
	})

	log.Printf("Chat ended by expert room=%s expert=%s user=%s", pairing.RoomID, expertID, pairing.UserID)
	e.expertAvailable(pairing.RoomID, expertID, false)
	return nil
}

// broadcastQueue sends the room's queue snapshot to every expert associated
// with it, idle or paired
func (e *Engine) broadcastQueue(roomID string, skip ...string) {
	snap, _ := e.rooms.Snapshot(roomID)

	// TECHNICAL DISCOVERY: Non-nil slice keeps the wire value [] instead of null
	queue := make([]types.QueuedUser, 0, len(snap.Queue))
	for _, entry := range snap.Queue {
		queue = append(queue, types.QueuedUser{SocketID: entry.ConnectionID, Identifier: entry.Identity})
	}
	payload := types.QueueUpdatedPayload{RoomID: roomID, Queue: queue}

	for _, expertID := range e.registry.RoomExperts(roomID) {
		if contains(skip, expertID) {
			continue
		}
		_ = e.registry.Send(expertID, types.EventQueueUpdated, payload)
	}
}

func contains(ids []string, id string) bool {
	for _, s := range ids {
		if s == id {
			return true
		}
	}
	return false
}

// releaseRoom destroys a room once nothing references it
func (e *Engine) releaseRoom(roomID string) {
	if e.sessions.CountInRoom(roomID) > 0 {
		return
	}
	if e.rooms.ReleaseIfEmpty(roomID) {
		log.Printf("Released empty room=%s", roomID)
	}
}
