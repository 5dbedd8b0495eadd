package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"supportchat/internal/matching"
	"supportchat/internal/registry"
	"supportchat/internal/router"
	"supportchat/pkg/types"
)

// stopTimeout bounds how long Stop waits for the loop to drain
const stopTimeout = 5 * time.Second

// Hub serializes every client event through one goroutine
// ARCHITECTURAL DISCOVERY: Central coordination point for all matching state;
// room queues, expert pools and pairings are only mutated from Handle
type Hub struct {
	// FUNCTIONAL DISCOVERY: One buffered channel for every event type keeps the
	// per-connection order intact, including the final disconnect
	eventChannel    chan *types.Event // TECHNICAL DISCOVERY: 1000 buffer absorbs join bursts
	shutdownChannel chan struct{}     // Unbuffered for immediate shutdown signaling
	done            chan struct{}

	registry *registry.Registry
	engine   *matching.Engine
	router   *router.Router

	// handleMu makes each handler atomic with respect to snapshot readers
	handleMu sync.Mutex

	// TECHNICAL DISCOVERY: RWMutex allows concurrent reads of running state
	running bool
	mu      sync.RWMutex
}

// NewHub creates a new hub
func NewHub(reg *registry.Registry, engine *matching.Engine, rt *router.Router) *Hub {
	return &Hub{
		eventChannel:    make(chan *types.Event, 1000),
		shutdownChannel: make(chan struct{}),
		done:            make(chan struct{}),
		registry:        reg,
		engine:          engine,
		router:          rt,
	}
}

// Start begins hub processing
// FUNCTIONAL DISCOVERY: Single hub goroutine prevents race conditions
// while maintaining high throughput event processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting event hub...")
	go h.run(ctx)
	return nil
}

// Stop ends processing, closes out active chats and closes every connection
// TECHNICAL DISCOVERY: Stop waits for the loop to exit before touching state so
// no handler runs concurrently with the shutdown sweep
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	h.mu.Unlock()

	log.Println("Stopping event hub...")

	select {
	case <-h.done:
	case <-time.After(stopTimeout):
		log.Printf("Hub loop did not exit within %v", stopTimeout)
	}

	h.handleMu.Lock()
	h.engine.Shutdown()
	h.handleMu.Unlock()

	h.registry.CloseAll()
	return nil
}

// IsRunning reports whether the hub accepts events
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Dispatch queues a client event without blocking
// TECHNICAL DISCOVERY: Non-blocking send with error handling prevents read
// pumps from stalling behind a busy hub
func (h *Hub) Dispatch(evt *types.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}

	select {
	case h.eventChannel <- evt:
		return nil
	default:
		return ErrEventChannelFull
	}
}

// Disconnect queues the terminal event for a connection
// FUNCTIONAL DISCOVERY: Unlike client events a disconnect may never be dropped,
// so this send blocks until the hub takes it or shuts down
func (h *Hub) Disconnect(connID string) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	evt := &types.Event{Type: types.EventDisconnect, ConnectionID: connID, ReceivedAt: time.Now()}
	select {
	case h.eventChannel <- evt:
		return nil
	case <-h.shutdownChannel:
		return ErrHubNotRunning
	}
}

// run is the main hub processing loop
func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	defer log.Println("Hub processing stopped")

	for {
		select {
		case evt := <-h.eventChannel:
			h.Handle(ctx, evt)

		case <-h.shutdownChannel:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			return
		}
	}
}

// Handle processes one event to completion
// ARCHITECTURAL DISCOVERY: A panic in one connection's handler is recovered
// and reported to that connection only; the hub keeps serving everyone else
func (h *Hub) Handle(ctx context.Context, evt *types.Event) {
	if evt == nil {
		return
	}

	h.handleMu.Lock()
	defer h.handleMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered panic handling %s from conn=%s: %v", evt.Type, evt.ConnectionID, r)
			h.sendError(evt.ConnectionID, ErrInternal)
		}
	}()

	if err := h.dispatch(ctx, evt); err != nil {
		if errors.Is(err, router.ErrSignalDropped) {
			return
		}
		log.Printf("Event %s from conn=%s rejected: %v", evt.Type, evt.ConnectionID, err)
		h.sendError(evt.ConnectionID, err)
	}
}

func (h *Hub) dispatch(ctx context.Context, evt *types.Event) error {
	connID := evt.ConnectionID

	if evt.Type == types.EventDisconnect {
		h.engine.Disconnect(connID)
		h.router.Forget(ctx, connID)
		return nil
	}

	// events racing a disconnect are ignored once the handle is gone
	if _, live := h.registry.Connection(connID); !live {
		log.Printf("Ignoring %s from closed conn=%s", evt.Type, connID)
		return nil
	}

	switch evt.Type {
	case types.EventJoinRoom:
		var req types.JoinRoomPayload
		if err := decode(evt.Data, &req); err != nil {
			return err
		}
		return h.engine.Join(connID, req)

	case types.EventSendMessage:
		var msg types.SendMessagePayload
		if err := decode(evt.Data, &msg); err != nil {
			return err
		}
		return h.router.RelayMessage(ctx, connID, msg)

	case types.EventSignal:
		var sig types.SignalPayload
		if err := decode(evt.Data, &sig); err != nil {
			log.Printf("Dropped malformed signal from conn=%s: %v", connID, err)
			return router.ErrSignalDropped
		}
		return h.router.RelaySignal(ctx, connID, sig)

	case types.EventExpertPickUser:
		var req types.PickUserPayload
		if err := decode(evt.Data, &req); err != nil {
			return err
		}
		return h.engine.PickUser(connID, req)

	case types.EventExpertEndChat:
		return h.engine.EndChat(connID)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, evt.Type)
	}
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return ErrInvalidPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// sendError reports a rejected event back to its sender
func (h *Hub) sendError(connID string, err error) {
	_ = h.registry.Send(connID, types.EventErrorMessage, types.ErrorMessagePayload{
		Message: clientMessage(err),
	})
}

// Rooms returns a consistent view of every room
func (h *Hub) Rooms() []matching.RoomView {
	h.handleMu.Lock()
	defer h.handleMu.Unlock()
	return h.engine.Rooms()
}

// Room returns a consistent view of one room
func (h *Hub) Room(roomID string) (matching.RoomView, bool) {
	h.handleMu.Lock()
	defer h.handleMu.Unlock()
	return h.engine.Room(roomID)
}

// Stats returns combined counters plus the current event backlog
func (h *Hub) Stats() map[string]int {
	h.handleMu.Lock()
	stats := h.engine.Stats()
	h.handleMu.Unlock()

	stats["pending_events"] = len(h.eventChannel)
	return stats
}
