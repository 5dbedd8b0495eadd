package registry

import (
	"log"
	"sort"
	"sync"
	"time"

	"supportchat/pkg/interfaces"
	"supportchat/pkg/types"
)

// Metadata is what a connection announced in join-room
type Metadata struct {
	ConnectionID string
	Identity     string
	Role         string
	RoomID       string
	RegisteredAt time.Time
}

// Registry tracks live connections and their announced metadata
// ARCHITECTURAL DISCOVERY: Pure connection bookkeeping without matching logic;
// every other component refers to a connection by id only
type Registry struct {
	mu          sync.RWMutex                     // TECHNICAL DISCOVERY: RWMutex optimizes for read-heavy lookup patterns
	connections map[string]interfaces.Connection // connID -> live handle, attached at upgrade
	metadata    map[string]Metadata              // connID -> announced identity/role/room
	roomExperts map[string]map[string]struct{}   // roomID -> expert connIDs (idle or paired)
}

// NewRegistry creates a new connection registry
// FUNCTIONAL DISCOVERY: Initialize all maps to prevent nil pointer access during concurrent operations
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]interfaces.Connection),
		metadata:    make(map[string]Metadata),
		roomExperts: make(map[string]map[string]struct{}),
	}
}

// Attach records a freshly upgraded connection before it has announced itself
func (r *Registry) Attach(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.GetConnectionID()
	if _, exists := r.connections[id]; exists {
		return ErrDuplicateConnection
	}
	r.connections[id] = conn
	return nil
}

// Register records announced metadata, overwriting any stale entry for the id
// FUNCTIONAL DISCOVERY: Overwrite keeps the room-expert index consistent when an
// idle expert re-announces itself in a different room
func (r *Registry) Register(connID, identity, role, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, exists := r.metadata[connID]; exists {
		r.unindexLocked(prev)
	}

	md := Metadata{
		ConnectionID: connID,
		Identity:     identity,
		Role:         role,
		RoomID:       roomID,
		RegisteredAt: time.Now(),
	}
	r.metadata[connID] = md

	if role == types.RoleExpert {
		experts, exists := r.roomExperts[roomID]
		if !exists {
			experts = make(map[string]struct{})
			r.roomExperts[roomID] = experts
		}
		experts[connID] = struct{}{}
	}
}

// Lookup returns the announced metadata for a connection
func (r *Registry) Lookup(connID string) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	md, exists := r.metadata[connID]
	return md, exists
}

// Connection returns the live handle for a connection id
func (r *Registry) Connection(connID string) (interfaces.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[connID]
	return conn, exists
}

// Remove deletes both the handle and the metadata for a connection
// FUNCTIONAL DISCOVERY: Idempotent; the reconciler calls it last so lookups
// stay valid while the rest of the disconnect is processed
func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if md, exists := r.metadata[connID]; exists {
		r.unindexLocked(md)
		delete(r.metadata, connID)
	}
	delete(r.connections, connID)
}

func (r *Registry) unindexLocked(md Metadata) {
	if md.Role != types.RoleExpert {
		return
	}
	if experts, exists := r.roomExperts[md.RoomID]; exists {
		delete(experts, md.ConnectionID)
		// TECHNICAL DISCOVERY: Clean up empty maps to prevent memory leaks
		if len(experts) == 0 {
			delete(r.roomExperts, md.RoomID)
		}
	}
}

// RoomExperts returns every expert associated with a room, idle or paired,
// in stable id order
func (r *Registry) RoomExperts(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	experts := r.roomExperts[roomID]
	ids := make([]string, 0, len(experts))
	for id := range experts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Send writes one event frame to a connection
// ARCHITECTURAL DISCOVERY: Delivery failure is reported, never retried; a failed
// peer is on its way to the disconnect path anyway
func (r *Registry) Send(connID, event string, data interface{}) error {
	conn, exists := r.Connection(connID)
	if !exists {
		return ErrConnectionNotFound
	}

	if err := conn.WriteJSON(types.OutboundFrame{Event: event, Data: data}); err != nil {
		log.Printf("Failed to send %s to conn=%s: %v", event, connID, err)
		return err
	}
	return nil
}

// CloseAll closes every attached connection, used during shutdown
func (r *Registry) CloseAll() {
	r.mu.RLock()
	conns := make([]interfaces.Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	// Close outside the lock; read pumps will call Remove as they exit
	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			log.Printf("Failed to close connection %s: %v", conn.GetConnectionID(), err)
		}
	}
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make(map[string]struct{})
	for _, md := range r.metadata {
		rooms[md.RoomID] = struct{}{}
	}

	return map[string]int{
		"total_connections":     len(r.connections),
		"announced_connections": len(r.metadata),
		"announced_rooms":       len(rooms),
	}
}
