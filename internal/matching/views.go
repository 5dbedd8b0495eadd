package matching

import (
	"time"

	"supportchat/internal/session"
)

// RoomView is a read-only picture of one room for monitoring
type RoomView struct {
	RoomID      string           `json:"room_id"`
	Queue       []QueuedView     `json:"queue"`
	IdleExperts []IdleExpertView `json:"idle_experts"`
	Sessions    []SessionView    `json:"sessions"`
}

// QueuedView is one waiting user with its current wait time
type QueuedView struct {
	ConnectionID string  `json:"connection_id"`
	Identity     string  `json:"identity"`
	Position     int     `json:"position"`
	WaitSeconds  float64 `json:"wait_seconds"`
}

// IdleExpertView is one idle expert
type IdleExpertView struct {
	ConnectionID string  `json:"connection_id"`
	Identity     string  `json:"identity"`
	IdleSeconds  float64 `json:"idle_seconds"`
}

// SessionView is one active pairing
type SessionView struct {
	ID        string    `json:"id"`
	ExpertID  string    `json:"expert_id"`
	UserID    string    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
}

// Room returns the view of one room, or false if it does not exist
func (e *Engine) Room(roomID string) (RoomView, bool) {
	snap, ok := e.rooms.Snapshot(roomID)
	if !ok {
		return RoomView{}, false
	}

	now := time.Now()
	view := RoomView{
		RoomID:      roomID,
		Queue:       make([]QueuedView, 0, len(snap.Queue)),
		IdleExperts: make([]IdleExpertView, 0, len(snap.AvailableExperts)),
		Sessions:    make([]SessionView, 0),
	}
	for i, entry := range snap.Queue {
		view.Queue = append(view.Queue, QueuedView{
			ConnectionID: entry.ConnectionID,
			Identity:     entry.Identity,
			Position:     i + 1,
			WaitSeconds:  now.Sub(entry.JoinedAt).Seconds(),
		})
	}
	for _, p := range snap.AvailableExperts {
		md, _ := e.registry.Lookup(p.ConnectionID)
		view.IdleExperts = append(view.IdleExperts, IdleExpertView{
			ConnectionID: p.ConnectionID,
			Identity:     md.Identity,
			IdleSeconds:  now.Sub(p.IdleSince).Seconds(),
		})
	}
	for _, p := range e.sessions.InRoom(roomID) {
		view.Sessions = append(view.Sessions, sessionView(p))
	}
	return view, true
}

// Rooms returns the view of every live room
func (e *Engine) Rooms() []RoomView {
	ids := e.rooms.Rooms()
	views := make([]RoomView, 0, len(ids))
	for _, id := range ids {
		if v, ok := e.Room(id); ok {
			views = append(views, v)
		}
	}
	return views
}

// Stats merges the counters of every state owner
func (e *Engine) Stats() map[string]int {
	stats := make(map[string]int)
	for _, m := range []map[string]int{e.registry.GetStats(), e.rooms.GetStats(), e.sessions.GetStats()} {
		for k, v := range m {
			stats[k] = v
		}
	}
	return stats
}

func sessionView(p session.Pairing) SessionView {
	return SessionView{ID: p.ID, ExpertID: p.ExpertID, UserID: p.UserID, StartedAt: p.StartedAt}
}
