package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"

	"supportchat/internal/hub"
	"supportchat/internal/matching"
	"supportchat/internal/ratelimit"
	"supportchat/internal/registry"
	"supportchat/internal/room"
	"supportchat/internal/router"
	"supportchat/internal/session"
	"supportchat/internal/testutil"
	"supportchat/pkg/types"
)

type handlerFixture struct {
	server   *httptest.Server
	registry *registry.Registry
	sessions *session.Table
	hub      *hub.Hub
}

func newHandlerFixture(t *testing.T, cfg Config) *handlerFixture {
	t.Helper()
	reg := registry.NewRegistry()
	sessions := session.NewTable()
	engine := matching.NewEngine(reg, room.NewState(5), sessions, nil, matching.Config{MaxIdentityLength: 100})
	rt := router.NewRouter(reg, sessions, ratelimit.NewMemoryLimiter(100, time.Minute))
	h := hub.NewHub(reg, engine, rt)
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Hub start failed: %v", err)
	}

	handler := NewHandler(reg, h, cfg)
	server := httptest.NewServer(httpHandler(handler))
	t.Cleanup(func() {
		server.Close()
		_ = h.Stop()
	})

	return &handlerFixture{server: server, registry: reg, sessions: sessions, hub: h}
}

func defaultConfig() Config {
	return Config{
		PingInterval:  time.Second,
		ReadTimeout:   5 * time.Second,
		WriteTimeout:  time.Second,
		BufferSize:    50,
		MaxFrameBytes: 4096,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

// Architectural Validation Tests
func TestHandler_HubSatisfiesDispatcher(t *testing.T) {
	var _ Dispatcher = (*hub.Hub)(nil)
}

// Functional Validation Tests
func TestHandler_ConnectedFrameAndRegistration(t *testing.T) {
	f := newHandlerFixture(t, defaultConfig())

	client := testutil.DialWS(t, f.server.URL, "/ws")

	if _, ok := f.registry.Connection(client.ID); !ok {
		t.Errorf("Connection %s should be attached to the registry", client.ID)
	}
}

func TestHandler_JoinAndChatOverWebSocket(t *testing.T) {
	f := newHandlerFixture(t, defaultConfig())

	expert := testutil.DialWS(t, f.server.URL, "/ws")
	user := testutil.DialWS(t, f.server.URL, "/ws")

	expert.Send(types.EventJoinRoom, types.JoinRoomPayload{RoomID: "billing", Identity: "Ann", Role: types.RoleExpert})
	var registered types.ExpertRegisteredPayload
	expert.Expect(types.EventExpertRegistered, &registered)
	if registered.ExpertID != expert.ID || registered.RoomID != "billing" {
		t.Errorf("Unexpected registration payload: %+v", registered)
	}

	user.Send(types.EventJoinRoom, types.JoinRoomPayload{RoomID: "billing", Identity: "Bob", Role: types.RoleUser})

	var started types.ChatStartedPayload
	user.Expect(types.EventChatStarted, &started)
	if started.Partner.ID != expert.ID || started.Partner.Identifier != "Ann" {
		t.Errorf("User got wrong partner: %+v", started.Partner)
	}
	expert.Expect(types.EventChatStarted, &started)
	if started.Partner.ID != user.ID || started.Partner.Role != types.RoleUser {
		t.Errorf("Expert got wrong partner: %+v", started.Partner)
	}

	user.Send(types.EventSendMessage, types.SendMessagePayload{Text: "hi"})

	var msg types.MessageEnvelope
	expert.Expect(types.EventReceiveMessage, &msg)
	if msg.Text != "hi" || msg.SenderID != user.ID || msg.Self {
		t.Errorf("Expert got unexpected envelope: %+v", msg)
	}
	user.Expect(types.EventReceiveMessage, &msg)
	if !msg.Self {
		t.Errorf("Sender echo should be marked self: %+v", msg)
	}
}

func TestHandler_MalformedFrame(t *testing.T) {
	f := newHandlerFixture(t, defaultConfig())

	client := testutil.DialWS(t, f.server.URL, "/ws")
	client.SendRaw("{not json")

	var errMsg types.ErrorMessagePayload
	client.Expect(types.EventErrorMessage, &errMsg)
	if errMsg.Message != "Malformed event frame." {
		t.Errorf("Unexpected error text %q", errMsg.Message)
	}

	// The connection survives a bad frame
	client.Send(types.EventJoinRoom, types.JoinRoomPayload{RoomID: "r", Role: types.RoleExpert})
	client.Expect(types.EventExpertRegistered, nil)
}

func TestHandler_ClientSentDisconnectIgnored(t *testing.T) {
	f := newHandlerFixture(t, defaultConfig())

	client := testutil.DialWS(t, f.server.URL, "/ws")
	client.Send(types.EventJoinRoom, types.JoinRoomPayload{RoomID: "r", Role: types.RoleExpert})
	client.Expect(types.EventExpertRegistered, nil)

	client.Send(types.EventDisconnect, nil)
	client.Send(types.EventJoinRoom, types.JoinRoomPayload{RoomID: "r", Role: types.RoleExpert})
	client.Expect(types.EventExpertRegistered, nil)

	if _, ok := f.registry.Lookup(client.ID); !ok {
		t.Error("Client-sent disconnect must not remove the connection")
	}
}

func TestHandler_CloseRunsDisconnect(t *testing.T) {
	f := newHandlerFixture(t, defaultConfig())

	expert := testutil.DialWS(t, f.server.URL, "/ws")
	user := testutil.DialWS(t, f.server.URL, "/ws")

	expert.Send(types.EventJoinRoom, types.JoinRoomPayload{RoomID: "r", Role: types.RoleExpert})
	expert.Expect(types.EventExpertRegistered, nil)
	user.Send(types.EventJoinRoom, types.JoinRoomPayload{RoomID: "r", Role: types.RoleUser})
	user.Expect(types.EventChatStarted, nil)

	user.Close()

	var ended types.ChatEndedPayload
	expert.Expect(types.EventChatEnded, &ended)
	if ended.By != types.EndedByUserDisconnected {
		t.Errorf("Expected by=%s, got %s", types.EndedByUserDisconnected, ended.By)
	}

	waitFor(t, "registry removal", func() bool {
		_, ok := f.registry.Connection(user.ID)
		return !ok
	})
	if f.sessions.IsPaired(expert.ID) {
		t.Error("Expert should no longer be paired")
	}
}

func TestHandler_OversizedFrameClosesConnection(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxFrameBytes = 256
	f := newHandlerFixture(t, cfg)

	client := testutil.DialWS(t, f.server.URL, "/ws")
	big := make([]byte, 1024)
	for i := range big {
		big[i] = 'a'
	}
	client.Send(types.EventSendMessage, types.SendMessagePayload{Text: string(big)})
	client.ExpectClosed()

	waitFor(t, "registry removal", func() bool {
		_, ok := f.registry.Connection(client.ID)
		return !ok
	})
}

func TestHandler_HubStoppedFallsBackToRegistryRemove(t *testing.T) {
	f := newHandlerFixture(t, defaultConfig())

	client := testutil.DialWS(t, f.server.URL, "/ws")
	id := client.ID
	if err := f.hub.Stop(); err != nil {
		t.Fatalf("Hub stop failed: %v", err)
	}

	waitFor(t, "registry removal", func() bool {
		_, ok := f.registry.Connection(id)
		return !ok
	})
}

// Technical Validation Tests
func TestHandler_ConcurrentConnections(t *testing.T) {
	f := newHandlerFixture(t, defaultConfig())
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"

	const n = 10
	var wg sync.WaitGroup
	ids := make(chan string, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := gws.DefaultDialer.Dial(url, nil)
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()

			var hello struct {
				Event string                 `json:"event"`
				Data  types.ConnectedPayload `json:"data"`
			}
			if err := conn.ReadJSON(&hello); err != nil {
				errs <- err
				return
			}
			ids <- hello.Data.ConnectionID
		}()
	}
	wg.Wait()
	close(ids)
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent dial failed: %v", err)
	}
	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("Duplicate connection id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("Expected %d connections, got %d", n, len(seen))
	}
}

func httpHandler(h *Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.HandleWebSocket)
	return mux
}
