package websocket

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"supportchat/internal/hub"
	"supportchat/internal/registry"
	"supportchat/pkg/types"
)

// Dispatcher is the part of the hub the read pump talks to
type Dispatcher interface {
	Dispatch(evt *types.Event) error
	Disconnect(connID string) error
}

// Config tunes per-connection timing and limits
type Config struct {
	PingInterval  time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	BufferSize    int
	MaxFrameBytes int64
}

// Handler upgrades HTTP requests and pumps frames into the hub
// ARCHITECTURAL DISCOVERY: Clean separation of WebSocket handling from matching logic;
// the handler only translates frames to events and reports the final disconnect
type Handler struct {
	registry   *registry.Registry
	dispatcher Dispatcher
	cfg        Config
	upgrader   websocket.Upgrader
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(reg *registry.Registry, dispatcher Dispatcher, cfg Config) *Handler {
	return &Handler{
		registry:   reg,
		dispatcher: dispatcher,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// FUNCTIONAL DISCOVERY: Identity comes from join-room, not from the origin
				return true
			},
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Serve is the gin entry point for the upgrade route
func (h *Handler) Serve(c *gin.Context) {
	h.HandleWebSocket(c.Writer, c.Request)
}

// HandleWebSocket upgrades the request and starts the connection's read pump
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, h.cfg.BufferSize, h.cfg.WriteTimeout)
	if err := h.registry.Attach(wsConn); err != nil {
		log.Printf("Failed to attach connection: %v", err)
		_ = wsConn.Close()
		return
	}

	// FUNCTIONAL DISCOVERY: Clients need their own id to address signals and to
	// recognise themselves in queue snapshots
	_ = wsConn.WriteJSON(types.OutboundFrame{
		Event: types.EventConnected,
		Data:  types.ConnectedPayload{ConnectionID: wsConn.GetConnectionID()},
	})
	log.Printf("Connection opened conn=%s remote=%s", wsConn.GetConnectionID(), r.RemoteAddr)

	go h.handleConnection(wsConn)
}

// handleConnection manages the connection lifecycle with heartbeat monitoring
func (h *Handler) handleConnection(conn *Connection) {
	id := conn.GetConnectionID()
	defer func() {
		// FUNCTIONAL DISCOVERY: Every exit path reports exactly one disconnect;
		// without a running hub there is no matching state left to reconcile
		if err := h.dispatcher.Disconnect(id); err != nil {
			h.registry.Remove(id)
		}
		_ = conn.Close()
		log.Printf("Connection closed conn=%s", id)
	}()

	if h.cfg.MaxFrameBytes > 0 {
		conn.conn.SetReadLimit(h.cfg.MaxFrameBytes)
	}

	readTimeout := h.cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 60 * time.Second
	}
	if err := conn.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error conn=%s: %v", id, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if !h.forward(conn, data) {
			return
		}
	}
}

// forward decodes one frame and hands it to the hub; false ends the read pump
func (h *Handler) forward(conn *Connection, data []byte) bool {
	id := conn.GetConnectionID()

	var frame types.Frame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
		_ = conn.WriteJSON(types.OutboundFrame{
			Event: types.EventErrorMessage,
			Data:  types.ErrorMessagePayload{Message: "Malformed event frame."},
		})
		return true
	}

	// disconnect is transport-level only
	if frame.Event == types.EventDisconnect {
		return true
	}

	err := h.dispatcher.Dispatch(&types.Event{
		Type:         frame.Event,
		ConnectionID: id,
		Data:         frame.Data,
		ReceivedAt:   time.Now(),
	})
	switch {
	case err == nil:
		return true
	case errors.Is(err, hub.ErrEventChannelFull):
		log.Printf("Hub busy, rejected %s from conn=%s", frame.Event, id)
		_ = conn.WriteJSON(types.OutboundFrame{
			Event: types.EventErrorMessage,
			Data:  types.ErrorMessagePayload{Message: "Server is busy. Please retry."},
		})
		return true
	default:
		log.Printf("Dispatch failed for conn=%s: %v", id, err)
		return false
	}
}

// pingLoop keeps the peer's read deadline moving
func (h *Handler) pingLoop(conn *Connection) {
	interval := h.cfg.PingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}
