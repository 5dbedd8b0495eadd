package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"supportchat/internal/matching"
	"supportchat/pkg/types"
)

type mockRooms struct {
	rooms []matching.RoomView
	stats map[string]int
}

func (m *mockRooms) Rooms() []matching.RoomView { return m.rooms }

func (m *mockRooms) Room(roomID string) (matching.RoomView, bool) {
	for _, r := range m.rooms {
		if r.RoomID == roomID {
			return r, true
		}
	}
	return matching.RoomView{}, false
}

func (m *mockRooms) Stats() map[string]int { return m.stats }

type mockLedger struct {
	records   []types.SessionRecord
	listErr   error
	healthErr error

	gotRoom  string
	gotLimit int
}

func (m *mockLedger) RecordSessionStarted(types.SessionRecord)    {}
func (m *mockLedger) RecordSessionEnded(string, string, time.Time) {}

func (m *mockLedger) ListSessions(_ context.Context, roomID string, limit int) ([]types.SessionRecord, error) {
	m.gotRoom, m.gotLimit = roomID, limit
	return m.records, m.listErr
}

func (m *mockLedger) EndOpenSessions(context.Context, string, time.Time) (int64, error) {
	return 0, nil
}

func (m *mockLedger) HealthCheck(context.Context) error { return m.healthErr }
func (m *mockLedger) Close() error                      { return nil }

func newMockRooms() *mockRooms {
	return &mockRooms{
		rooms: []matching.RoomView{
			{
				RoomID: "billing",
				Queue: []matching.QueuedView{
					{ConnectionID: "u1", Identity: "Bob", Position: 1, WaitSeconds: 12},
				},
				IdleExperts: []matching.IdleExpertView{},
				Sessions:    []matching.SessionView{},
			},
		},
		stats: map[string]int{"rooms": 1, "queued_users": 1, "active_sessions": 0},
	}
}

func do(t *testing.T, server *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	server.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("Invalid JSON response %q: %v", w.Body.String(), err)
	}
}

// FUNCTIONAL VALIDATION TEST: GET /health
func TestServer_HealthCheck(t *testing.T) {
	server := NewServer(newMockRooms(), &mockLedger{}, nil)

	w := do(t, server, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var resp HealthResponse
	decode(t, w, &resp)
	if resp.Status != "healthy" || resp.Ledger != "healthy" {
		t.Errorf("Unexpected health %+v", resp)
	}
	if resp.Matching["queued_users"] != 1 {
		t.Errorf("Expected matching stats in response, got %v", resp.Matching)
	}
	if _, ok := resp.System["goroutines"]; !ok {
		t.Error("Expected goroutine count in system info")
	}
}

func TestServer_HealthCheckLedgerStates(t *testing.T) {
	unhealthy := NewServer(newMockRooms(), &mockLedger{healthErr: errors.New("disk gone")}, nil)
	w := do(t, unhealthy, http.MethodGet, "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 for failing ledger, got %d", w.Code)
	}

	disabled := NewServer(newMockRooms(), nil, nil)
	w = do(t, disabled, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("Disabled ledger is not a failure, got %d", w.Code)
	}
	var resp HealthResponse
	decode(t, w, &resp)
	if resp.Ledger != "disabled" {
		t.Errorf("Expected ledger=disabled, got %s", resp.Ledger)
	}
}

// FUNCTIONAL VALIDATION TEST: room snapshots
func TestServer_Rooms(t *testing.T) {
	server := NewServer(newMockRooms(), nil, nil)

	w := do(t, server, http.MethodGet, "/api/rooms")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var list RoomsResponse
	decode(t, w, &list)
	if len(list.Rooms) != 1 || list.Rooms[0].RoomID != "billing" {
		t.Errorf("Unexpected rooms %+v", list.Rooms)
	}

	w = do(t, server, http.MethodGet, "/api/rooms/billing")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var room matching.RoomView
	decode(t, w, &room)
	if len(room.Queue) != 1 || room.Queue[0].Identity != "Bob" {
		t.Errorf("Unexpected room view %+v", room)
	}

	w = do(t, server, http.MethodGet, "/api/rooms/nowhere")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown room, got %d", w.Code)
	}
	var errResp ErrorResponse
	decode(t, w, &errResp)
	if errResp.Code != http.StatusNotFound || errResp.Message != "Room not found" {
		t.Errorf("Unexpected error body %+v", errResp)
	}
}

// FUNCTIONAL VALIDATION TEST: ledger listing
func TestServer_ListSessions(t *testing.T) {
	ledger := &mockLedger{records: []types.SessionRecord{
		{ID: "p1", RoomID: "billing", StartedAt: time.Now()},
	}}
	server := NewServer(newMockRooms(), ledger, nil)

	w := do(t, server, http.MethodGet, "/api/sessions?room=billing&limit=10")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp SessionsResponse
	decode(t, w, &resp)
	if resp.Count != 1 || resp.Sessions[0].ID != "p1" {
		t.Errorf("Unexpected sessions %+v", resp)
	}
	if ledger.gotRoom != "billing" || ledger.gotLimit != 10 {
		t.Errorf("Query not forwarded: room=%s limit=%d", ledger.gotRoom, ledger.gotLimit)
	}

	do(t, server, http.MethodGet, "/api/sessions")
	if ledger.gotLimit != defaultSessionLimit {
		t.Errorf("Expected default limit %d, got %d", defaultSessionLimit, ledger.gotLimit)
	}

	do(t, server, http.MethodGet, "/api/sessions?limit=100000")
	if ledger.gotLimit != maxSessionLimit {
		t.Errorf("Expected limit capped at %d, got %d", maxSessionLimit, ledger.gotLimit)
	}
}

func TestServer_ListSessionsErrors(t *testing.T) {
	tests := []struct {
		name   string
		ledger *mockLedger
		path   string
		code   int
	}{
		{"bad limit", &mockLedger{}, "/api/sessions?limit=abc", http.StatusBadRequest},
		{"zero limit", &mockLedger{}, "/api/sessions?limit=0", http.StatusBadRequest},
		{"ledger failure", &mockLedger{listErr: errors.New("boom")}, "/api/sessions", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewServer(newMockRooms(), tt.ledger, nil)
			if w := do(t, server, http.MethodGet, tt.path); w.Code != tt.code {
				t.Errorf("Expected %d, got %d", tt.code, w.Code)
			}
		})
	}

	disabled := NewServer(newMockRooms(), nil, nil)
	if w := do(t, disabled, http.MethodGet, "/api/sessions"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 with ledger disabled, got %d", w.Code)
	}
}

// TECHNICAL VALIDATION TEST: middleware and route wiring
func TestServer_CORSPreflight(t *testing.T) {
	server := NewServer(newMockRooms(), nil, nil)

	w := do(t, server, http.MethodOptions, "/api/rooms")
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for preflight, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Missing CORS header")
	}
}

func TestServer_WebSocketRouteMounted(t *testing.T) {
	called := false
	server := NewServer(newMockRooms(), nil, func(c *gin.Context) {
		called = true
		c.Status(http.StatusSwitchingProtocols)
	})

	do(t, server, http.MethodGet, "/ws")
	if !called {
		t.Error("Expected /ws to reach the websocket handler")
	}

	without := NewServer(newMockRooms(), nil, nil)
	if w := do(t, without, http.MethodGet, "/ws"); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without a websocket handler, got %d", w.Code)
	}
}
