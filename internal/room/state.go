// Package room holds per-room waiting queues and available-expert pools.
package room

import (
	"sort"
	"sync"
	"time"
)

// DefaultMaxQueueSize is the per-room queue capacity when none is configured
const DefaultMaxQueueSize = 50

// QueueEntry is one waiting user
type QueueEntry struct {
	ConnectionID string
	Identity     string
	JoinedAt     time.Time
}

// PoolEntry is one idle expert
type PoolEntry struct {
	ConnectionID string
	IdleSince    time.Time
}

// Snapshot is a point-in-time copy of one room
type Snapshot struct {
	RoomID           string
	Queue            []QueueEntry
	AvailableExperts []PoolEntry
}

type room struct {
	queue []QueueEntry
	pool  []PoolEntry // ordered by IdleSince, oldest first
}

func (r *room) empty() bool {
	return len(r.queue) == 0 && len(r.pool) == 0
}

// State owns every room's queue and expert pool
// ARCHITECTURAL DISCOVERY: Rooms are created lazily on first write and never
// touched by another room's operations
type State struct {
	mu           sync.RWMutex
	maxQueueSize int
	rooms        map[string]*room
}

// NewState creates room state with the given per-room queue capacity
func NewState(maxQueueSize int) *State {
	if maxQueueSize <= 0 {
		maxQueueSize = DefaultMaxQueueSize
	}
	return &State{
		maxQueueSize: maxQueueSize,
		rooms:        make(map[string]*room),
	}
}

// MaxQueueSize returns the per-room queue capacity
func (s *State) MaxQueueSize() int {
	return s.maxQueueSize
}

func (s *State) getOrCreateLocked(roomID string) *room {
	r, exists := s.rooms[roomID]
	if !exists {
		r = &room{}
		s.rooms[roomID] = r
	}
	return r
}

// Enqueue appends a user to the back of the room's queue and returns its
// 1-based position
// FUNCTIONAL DISCOVERY: A full queue rejects without creating or mutating anything
func (s *State) Enqueue(roomID, connID, identity string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, exists := s.rooms[roomID]; exists {
		if len(r.queue) >= s.maxQueueSize {
			return 0, ErrQueueFull
		}
		for _, e := range r.queue {
			if e.ConnectionID == connID {
				return 0, ErrAlreadyQueued
			}
		}
	}

	r := s.getOrCreateLocked(roomID)
	r.queue = append(r.queue, QueueEntry{
		ConnectionID: connID,
		Identity:     identity,
		JoinedAt:     time.Now(),
	})
	return len(r.queue), nil
}

// DequeueFront pops the oldest waiting user
func (s *State) DequeueFront(roomID string) (QueueEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.rooms[roomID]
	if !exists || len(r.queue) == 0 {
		return QueueEntry{}, false
	}
	front := r.queue[0]
	r.queue[0] = QueueEntry{}
	r.queue = r.queue[1:]
	return front, true
}

// RequeueFront puts a previously dequeued entry back at the head of the queue,
// keeping its original JoinedAt. Capacity is not checked since the entry
// held a slot a moment ago.
func (s *State) RequeueFront(roomID string, entry QueueEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.getOrCreateLocked(roomID)
	for _, e := range r.queue {
		if e.ConnectionID == entry.ConnectionID {
			return
		}
	}
	r.queue = append([]QueueEntry{entry}, r.queue...)
}

// RemoveFromQueue removes a user by connection id regardless of its position
func (s *State) RemoveFromQueue(roomID, connID string) (QueueEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.rooms[roomID]
	if !exists {
		return QueueEntry{}, false
	}
	for i, e := range r.queue {
		if e.ConnectionID == connID {
			r.queue = append(r.queue[:i], r.queue[i+1:]...)
			return e, true
		}
	}
	return QueueEntry{}, false
}

// QueuePosition returns the 1-based position of a queued user, or 0
func (s *State) QueuePosition(roomID, connID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, exists := s.rooms[roomID]; exists {
		for i, e := range r.queue {
			if e.ConnectionID == connID {
				return i + 1
			}
		}
	}
	return 0
}

// QueueLength returns the number of waiting users in a room
func (s *State) QueueLength(roomID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, exists := s.rooms[roomID]; exists {
		return len(r.queue)
	}
	return 0
}

// MarkExpertAvailable adds an expert to the back of the pool; adding an
// expert already present is a no-op that reports false
func (s *State) MarkExpertAvailable(roomID, connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.getOrCreateLocked(roomID)
	for _, p := range r.pool {
		if p.ConnectionID == connID {
			return false
		}
	}
	r.pool = append(r.pool, PoolEntry{ConnectionID: connID, IdleSince: time.Now()})
	return true
}

// TakeAvailableExpert removes and returns the longest-idle expert
func (s *State) TakeAvailableExpert(roomID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.rooms[roomID]
	if !exists || len(r.pool) == 0 {
		return "", false
	}
	id := r.pool[0].ConnectionID
	r.pool = r.pool[1:]
	return id, true
}

// RemoveExpertFromAvailable removes a specific expert from the pool
func (s *State) RemoveExpertFromAvailable(roomID, connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.rooms[roomID]
	if !exists {
		return false
	}
	for i, p := range r.pool {
		if p.ConnectionID == connID {
			r.pool = append(r.pool[:i], r.pool[i+1:]...)
			return true
		}
	}
	return false
}

// IsExpertAvailable reports whether the expert is idle in the room's pool
func (s *State) IsExpertAvailable(roomID, connID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, exists := s.rooms[roomID]; exists {
		for _, p := range r.pool {
			if p.ConnectionID == connID {
				return true
			}
		}
	}
	return false
}

// PoolSize returns the number of idle experts in a room
func (s *State) PoolSize(roomID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, exists := s.rooms[roomID]; exists {
		return len(r.pool)
	}
	return 0
}

// Snapshot copies one room's queue and pool
func (s *State) Snapshot(roomID string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.rooms[roomID]
	if !exists {
		return Snapshot{RoomID: roomID}, false
	}
	snap := Snapshot{
		RoomID:           roomID,
		Queue:            make([]QueueEntry, len(r.queue)),
		AvailableExperts: make([]PoolEntry, len(r.pool)),
	}
	copy(snap.Queue, r.queue)
	copy(snap.AvailableExperts, r.pool)
	return snap, true
}

// Rooms lists every live room id in sorted order
func (s *State) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ReleaseIfEmpty destroys a room whose queue and pool are both empty
// FUNCTIONAL DISCOVERY: Pairings live in the session table, so callers must
// confirm the room has none before releasing it
func (s *State) ReleaseIfEmpty(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.rooms[roomID]
	if !exists || !r.empty() {
		return false
	}
	delete(s.rooms, roomID)
	return true
}

// GetStats returns room statistics for monitoring and debugging
func (s *State) GetStats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queued, idle := 0, 0
	for _, r := range s.rooms {
		queued += len(r.queue)
		idle += len(r.pool)
	}
	return map[string]int{
		"rooms":        len(s.rooms),
		"queued_users": queued,
		"idle_experts": idle,
	}
}
