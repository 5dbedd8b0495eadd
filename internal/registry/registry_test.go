package registry

import (
	"fmt"
	"sync"
	"testing"

	"supportchat/internal/testutil"
	"supportchat/pkg/types"
)

// Functional Validation Tests

func TestRegistry_NewRegistryInitialization(t *testing.T) {
	registry := NewRegistry()

	stats := registry.GetStats()
	if stats["total_connections"] != 0 {
		t.Errorf("Expected 0 initial connections, got %d", stats["total_connections"])
	}
	if stats["announced_connections"] != 0 {
		t.Errorf("Expected 0 announced connections, got %d", stats["announced_connections"])
	}
}

func TestRegistry_AttachValidation(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Attach(nil); err != ErrNilConnection {
		t.Errorf("Expected ErrNilConnection, got %v", err)
	}

	conn := testutil.NewFakeConnection("c1")
	if err := registry.Attach(conn); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if err := registry.Attach(conn); err != ErrDuplicateConnection {
		t.Errorf("Expected ErrDuplicateConnection, got %v", err)
	}

	got, ok := registry.Connection("c1")
	if !ok || got != conn {
		t.Error("Expected attached connection to be retrievable")
	}
	if _, ok := registry.Lookup("c1"); ok {
		t.Error("Attached but unannounced connection should have no metadata")
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	registry := NewRegistry()
	registry.Register("c1", "alice", types.RoleUser, "R1")

	md, ok := registry.Lookup("c1")
	if !ok {
		t.Fatal("Expected metadata for c1")
	}
	if md.Identity != "alice" || md.Role != types.RoleUser || md.RoomID != "R1" {
		t.Errorf("Unexpected metadata: %+v", md)
	}
	if md.RegisteredAt.IsZero() {
		t.Error("RegisteredAt should be set")
	}
}

func TestRegistry_RegisterOverwritesStaleEntry(t *testing.T) {
	registry := NewRegistry()
	registry.Register("e1", "bob", types.RoleExpert, "R1")
	registry.Register("e1", "bob", types.RoleExpert, "R2")

	if experts := registry.RoomExperts("R1"); len(experts) != 0 {
		t.Errorf("Expected R1 expert index cleared, got %v", experts)
	}
	if experts := registry.RoomExperts("R2"); len(experts) != 1 || experts[0] != "e1" {
		t.Errorf("Expected e1 in R2, got %v", experts)
	}
	md, _ := registry.Lookup("e1")
	if md.RoomID != "R2" {
		t.Errorf("Expected room R2, got %s", md.RoomID)
	}
}

func TestRegistry_RoomExpertsOnlyListsExperts(t *testing.T) {
	registry := NewRegistry()
	registry.Register("e2", "E2", types.RoleExpert, "R1")
	registry.Register("e1", "E1", types.RoleExpert, "R1")
	registry.Register("u1", "U1", types.RoleUser, "R1")
	registry.Register("e3", "E3", types.RoleExpert, "R9")

	experts := registry.RoomExperts("R1")
	if len(experts) != 2 || experts[0] != "e1" || experts[1] != "e2" {
		t.Errorf("Expected [e1 e2], got %v", experts)
	}
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	registry := NewRegistry()
	conn := testutil.NewFakeConnection("e1")
	_ = registry.Attach(conn)
	registry.Register("e1", "E1", types.RoleExpert, "R1")

	registry.Remove("e1")
	registry.Remove("e1")

	if _, ok := registry.Lookup("e1"); ok {
		t.Error("Metadata should be removed")
	}
	if _, ok := registry.Connection("e1"); ok {
		t.Error("Connection should be removed")
	}
	if experts := registry.RoomExperts("R1"); len(experts) != 0 {
		t.Errorf("Expert index should be empty, got %v", experts)
	}
}

func TestRegistry_Send(t *testing.T) {
	registry := NewRegistry()
	conn := testutil.NewFakeConnection("c1")
	_ = registry.Attach(conn)

	if err := registry.Send("c1", types.EventQueueFull, types.QueueFullPayload{RoomID: "R1"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	data, ok := conn.Last(types.EventQueueFull)
	if !ok {
		t.Fatal("Expected queue-full frame")
	}
	if data.(types.QueueFullPayload).RoomID != "R1" {
		t.Errorf("Unexpected payload: %+v", data)
	}

	if err := registry.Send("missing", types.EventQueueFull, nil); err != ErrConnectionNotFound {
		t.Errorf("Expected ErrConnectionNotFound, got %v", err)
	}

	_ = conn.Close()
	if err := registry.Send("c1", types.EventQueueFull, nil); err == nil {
		t.Error("Expected error sending to closed connection")
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	registry := NewRegistry()
	conns := []*testutil.FakeConnection{
		testutil.NewFakeConnection("a"),
		testutil.NewFakeConnection("b"),
	}
	for _, c := range conns {
		_ = registry.Attach(c)
	}

	registry.CloseAll()

	for _, c := range conns {
		if !c.IsClosed() {
			t.Errorf("Connection %s should be closed", c.ID)
		}
	}
}

// Technical Validation Tests

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			_ = registry.Attach(testutil.NewFakeConnection(id))
			registry.Register(id, id, types.RoleExpert, "R1")
			_ = registry.RoomExperts("R1")
			_, _ = registry.Lookup(id)
			if i%2 == 0 {
				registry.Remove(id)
			}
		}(i)
	}
	wg.Wait()

	stats := registry.GetStats()
	if stats["total_connections"] != 25 {
		t.Errorf("Expected 25 connections, got %d", stats["total_connections"])
	}
	if len(registry.RoomExperts("R1")) != 25 {
		t.Errorf("Expected 25 experts in R1, got %d", len(registry.RoomExperts("R1")))
	}
}
