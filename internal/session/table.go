// Package session tracks active expert/user pairings.
package session

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Pairing is one active expert/user chat
type Pairing struct {
	ID        string
	RoomID    string
	ExpertID  string
	UserID    string
	StartedAt time.Time
}

// PartnerOf returns the other side of the pairing for connID
func (p Pairing) PartnerOf(connID string) string {
	if connID == p.ExpertID {
		return p.UserID
	}
	return p.ExpertID
}

// Table is the bidirectional pairing map
// ARCHITECTURAL DISCOVERY: Both directions point at the same Pairing so a
// single delete per side removes the session atomically under one lock
type Table struct {
	mu     sync.RWMutex
	byConn map[string]*Pairing // connID -> pairing, both expert and user keys
}

// NewTable creates an empty session table
func NewTable() *Table {
	return &Table{
		byConn: make(map[string]*Pairing),
	}
}

// Pair installs both directions of a new pairing
// FUNCTIONAL DISCOVERY: Fails without mutating anything when either side is
// already paired, so a double-pair attempt can never corrupt the table
func (t *Table) Pair(roomID, expertID, userID string) (Pairing, error) {
	if expertID == userID {
		return Pairing{}, ErrSelfPairing
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byConn[expertID]; exists {
		return Pairing{}, ErrAlreadyPaired
	}
	if _, exists := t.byConn[userID]; exists {
		return Pairing{}, ErrAlreadyPaired
	}

	p := &Pairing{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		ExpertID:  expertID,
		UserID:    userID,
		StartedAt: time.Now(),
	}
	t.byConn[expertID] = p
	t.byConn[userID] = p

	log.Printf("Paired room=%s expert=%s user=%s session=%s", roomID, expertID, userID, p.ID)
	return *p, nil
}

// IsPaired reports whether a connection is in an active session
func (t *Table) IsPaired(connID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, exists := t.byConn[connID]
	return exists
}

// PartnerOf returns the connection paired with connID
func (t *Table) PartnerOf(connID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, exists := t.byConn[connID]
	if !exists {
		return "", false
	}
	return p.PartnerOf(connID), true
}

// Get returns the pairing that includes connID
func (t *Table) Get(connID string) (Pairing, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, exists := t.byConn[connID]
	if !exists {
		return Pairing{}, false
	}
	return *p, true
}

// Unpair removes both directions given either side's id
func (t *Table) Unpair(connID string) (Pairing, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, exists := t.byConn[connID]
	if !exists {
		return Pairing{}, false
	}
	delete(t.byConn, p.ExpertID)
	delete(t.byConn, p.UserID)

	log.Printf("Unpaired room=%s expert=%s user=%s session=%s", p.RoomID, p.ExpertID, p.UserID, p.ID)
	return *p, true
}

// InRoom returns the room's pairings ordered by start time
func (t *Table) InRoom(roomID string) []Pairing {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Pairing
	for connID, p := range t.byConn {
		// each pairing is keyed twice; take it once via the expert key
		if p.RoomID == roomID && connID == p.ExpertID {
			out = append(out, *p)
		}
	}
	sortByStart(out)
	return out
}

// CountInRoom returns the number of active pairings in a room
func (t *Table) CountInRoom(roomID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for connID, p := range t.byConn {
		if p.RoomID == roomID && connID == p.ExpertID {
			n++
		}
	}
	return n
}

// All returns every active pairing ordered by start time
func (t *Table) All() []Pairing {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Pairing, 0, len(t.byConn)/2)
	for connID, p := range t.byConn {
		if connID == p.ExpertID {
			out = append(out, *p)
		}
	}
	sortByStart(out)
	return out
}

func sortByStart(ps []Pairing) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].StartedAt.Equal(ps[j].StartedAt) {
			return ps[i].ID < ps[j].ID
		}
		return ps[i].StartedAt.Before(ps[j].StartedAt)
	})
}

// GetStats returns session statistics for monitoring and debugging
func (t *Table) GetStats() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return map[string]int{
		"active_sessions": len(t.byConn) / 2,
	}
}
