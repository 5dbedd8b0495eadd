package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"supportchat/internal/matching"
	"supportchat/pkg/interfaces"
	"supportchat/pkg/types"
)

// Session listing bounds
const (
	defaultSessionLimit = 50
	maxSessionLimit     = 500
)

// RoomReader is the read-only view of matching state the API exposes
type RoomReader interface {
	Rooms() []matching.RoomView
	Room(roomID string) (matching.RoomView, bool)
	Stats() map[string]int
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no matching logic, only HTTP handling and JSON serialization
type Server struct {
	rooms     RoomReader
	ledger    interfaces.SessionLedger // nil when the ledger is disabled
	engine    *gin.Engine
	startedAt time.Time
}

// FUNCTIONAL DISCOVERY: Constructor initializes all dependencies and sets up routing;
// ws, when non-nil, is mounted at /ws so one server carries both surfaces
func NewServer(rooms RoomReader, ledger interfaces.SessionLedger, ws gin.HandlerFunc) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		rooms:     rooms,
		ledger:    ledger,
		engine:    gin.New(),
		startedAt: time.Now(),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(loggingMiddleware())
	s.engine.Use(corsMiddleware())

	s.setupRoutes(ws)
	return s
}

// ARCHITECTURAL DISCOVERY: Route setup follows REST conventions; every API route is read-only
func (s *Server) setupRoutes(ws gin.HandlerFunc) {
	s.engine.GET("/health", s.healthCheck)

	api := s.engine.Group("/api")
	{
		api.GET("/rooms", s.listRooms)
		api.GET("/rooms/:id", s.getRoom)
		api.GET("/sessions", s.listSessions)
	}

	if ws != nil {
		s.engine.GET("/ws", ws)
	}
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// Response types for JSON serialization
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Ledger    string                 `json:"ledger"`
	Matching  map[string]int         `json:"matching"`
	System    map[string]interface{} `json:"system"`
}

type RoomsResponse struct {
	Rooms []matching.RoomView `json:"rooms"`
}

type SessionsResponse struct {
	Sessions []types.SessionRecord `json:"sessions"`
	Count    int                   `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FUNCTIONAL DISCOVERY: GET /health - connection, room and session counts plus ledger state
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	ledgerStatus := "disabled"

	if s.ledger != nil {
		ledgerStatus = "healthy"
		if err := s.ledger.HealthCheck(ctx); err != nil {
			status = "unhealthy"
			ledgerStatus = fmt.Sprintf("error: %v", err)
		}
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Ledger:    ledgerStatus,
		Matching:  s.rooms.Stats(),
		System: map[string]interface{}{
			"goroutines":     runtime.NumGoroutine(),
			"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		},
	}

	// FUNCTIONAL DISCOVERY: Return 503 if any component is unhealthy
	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, response)
}

// GET /api/rooms
func (s *Server) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, RoomsResponse{Rooms: s.rooms.Rooms()})
}

// GET /api/rooms/:id
func (s *Server) getRoom(c *gin.Context) {
	view, ok := s.rooms.Room(c.Param("id"))
	if !ok {
		sendError(c, "Room not found", http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, view)
}

// FUNCTIONAL DISCOVERY: GET /api/sessions?room=&limit= - ledger rows, newest first
func (s *Server) listSessions(c *gin.Context) {
	if s.ledger == nil {
		sendError(c, "Session ledger is disabled", http.StatusServiceUnavailable)
		return
	}

	limit := defaultSessionLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			sendError(c, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		if n > maxSessionLimit {
			n = maxSessionLimit
		}
		limit = n
	}

	records, err := s.ledger.ListSessions(c.Request.Context(), c.Query("room"), limit)
	if err != nil {
		log.Printf("Failed to list sessions: %v", err)
		sendError(c, "Failed to list sessions", http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, SessionsResponse{Sessions: records, Count: len(records)})
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func sendError(c *gin.Context, message string, code int) {
	c.AbortWithStatusJSON(code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// loggingMiddleware writes one line per request
func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Printf("HTTP %s %s status=%d latency_ms=%d client=%s",
			c.Request.Method, path, c.Writer.Status(), time.Since(start).Milliseconds(), c.ClientIP())
	}
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access
// Allows all origins in development - would be restricted in production
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
