package interfaces

// Connection represents a live client connection
// ARCHITECTURAL DISCOVERY: Pure abstraction without implementation details
// ensures clean boundaries between WebSocket infrastructure and matching logic
type Connection interface {
	// GetConnectionID returns the transport-assigned opaque id
	GetConnectionID() string

	// WriteJSON queues a JSON frame for the client (thread-safe, non-blocking)
	// FUNCTIONAL DISCOVERY: Callers run inside the hub loop, so an implementation
	// must never block on a slow peer; it closes the connection instead
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources
	Close() error
}
