package types

import (
	"encoding/json"
	"time"
)

// Roles a connection can announce in join-room
const (
	RoleUser   = "user"
	RoleExpert = "expert"
)

// Client -> server event names
// ARCHITECTURAL DISCOVERY: Event names are the wire contract with browser clients
// and must stay byte-for-byte stable
const (
	EventJoinRoom       = "join-room"
	EventSendMessage    = "send-message"
	EventSignal         = "signal"
	EventExpertPickUser = "expert-pick-user"
	EventExpertEndChat  = "expert-end-chat"
	EventDisconnect     = "disconnect" // transport-level, never sent by clients
)

// Server -> client event names
const (
	EventConnected        = "connected"
	EventAddedToQueue     = "added-to-queue"
	EventQueueFull        = "queue-full"
	EventExpertRegistered = "expert-registered"
	EventQueueUpdated     = "queue-updated"
	EventChatStarted      = "chat-started"
	EventChatEnded        = "chat-ended"
	EventReceiveMessage   = "receive-message"
	EventErrorMessage     = "error-message"
)

// chat-ended "by" values
const (
	EndedByExpert             = "expert"
	EndedByExpertDisconnected = "expert-disconnected"
	EndedByUserDisconnected   = "user-disconnected"
)

// Ledger end reasons
const (
	ReasonExpertEnded        = "expert-ended"
	ReasonExpertDisconnected = "expert-disconnected"
	ReasonUserDisconnected   = "user-disconnected"
	ReasonShutdown           = "shutdown"
)

// Frame is the JSON envelope carried by every websocket text frame
// FUNCTIONAL DISCOVERY: Data stays raw on the inbound path so the hub decodes
// each payload into the struct that matches the event name
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutboundFrame is the server-side counterpart of Frame
type OutboundFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Event is an inbound client event attributed to the connection that sent it
type Event struct {
	Type         string
	ConnectionID string
	Data         json.RawMessage
	ReceivedAt   time.Time
}

// JoinRoomPayload announces room, identity and role for a connection
type JoinRoomPayload struct {
	RoomID   string `json:"roomId"`
	Identity string `json:"identity"`
	Role     string `json:"role"`
}

// SendMessagePayload carries a chat line for the current partner
type SendMessagePayload struct {
	Text string `json:"text"`
}

// SignalPayload carries an opaque media negotiation blob for the current partner
type SignalPayload struct {
	To     string          `json:"to"`
	Signal json.RawMessage `json:"signal"`
}

// PickUserPayload lets an expert choose a specific queued user
type PickUserPayload struct {
	RoomID       string `json:"roomId"`
	UserIDToPick string `json:"userIdToPick"`
}

// ConnectedPayload tells a client its own connection id
type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
}

// AddedToQueuePayload reports a user's 1-based queue position
type AddedToQueuePayload struct {
	RoomID      string `json:"roomId"`
	Position    int    `json:"position"`
	QueueLength int    `json:"queueLength"`
}

// QueueFullPayload rejects a user from a saturated room
type QueueFullPayload struct {
	RoomID string `json:"roomId"`
}

// ExpertRegisteredPayload confirms an expert joined the available pool
type ExpertRegisteredPayload struct {
	ExpertID string `json:"expertId"`
	RoomID   string `json:"roomId"`
}

// QueuedUser is the public view of a queue entry sent to experts
// TECHNICAL DISCOVERY: Only id and identity leave the server, never join timestamps
// or other connection internals
type QueuedUser struct {
	SocketID   string `json:"socketId"`
	Identifier string `json:"identifier"`
}

// QueueUpdatedPayload is the queue snapshot broadcast to every expert in a room
type QueueUpdatedPayload struct {
	RoomID string       `json:"roomId"`
	Queue  []QueuedUser `json:"queue"`
}

// Partner describes the other side of a pairing
type Partner struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	Role       string `json:"role"`
}

// ChatStartedPayload is sent to both sides of a new pairing
type ChatStartedPayload struct {
	Partner Partner `json:"partner"`
	RoomID  string  `json:"roomId"`
}

// ChatEndedPayload is sent when a pairing is dissolved
type ChatEndedPayload struct {
	By      string `json:"by"`
	Message string `json:"message"`
}

// MessageEnvelope is a relayed chat line
// FUNCTIONAL DISCOVERY: The sender receives the same envelope with Self set,
// so its UI renders its own line without racing the relay
type MessageEnvelope struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	SenderID       string `json:"senderId"`
	SenderIdentity string `json:"senderIdentity"`
	SenderRole     string `json:"senderRole"`
	Timestamp      int64  `json:"timestamp"`
	RoomID         string `json:"roomId"`
	Self           bool   `json:"self,omitempty"`
}

// RelayedSignal is delivered to the designated partner only
type RelayedSignal struct {
	Signal   json.RawMessage `json:"signal"`
	From     string          `json:"from"`
	FromRole string          `json:"fromRole"`
}

// ErrorMessagePayload reports protocol misuse to the offending sender
type ErrorMessagePayload struct {
	Message string `json:"message"`
}

// SessionRecord is one ledger row describing a pairing
type SessionRecord struct {
	ID             string     `json:"id"`
	RoomID         string     `json:"room_id"`
	ExpertConnID   string     `json:"expert_conn"`
	ExpertIdentity string     `json:"expert_identity"`
	UserConnID     string     `json:"user_conn"`
	UserIdentity   string     `json:"user_identity"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	EndReason      string     `json:"end_reason,omitempty"`
}
