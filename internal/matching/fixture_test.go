package matching

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"supportchat/internal/registry"
	"supportchat/internal/room"
	"supportchat/internal/session"
	"supportchat/internal/testutil"
	"supportchat/pkg/types"
)

type recordingLedger struct {
	mu      sync.Mutex
	started []types.SessionRecord
	ended   map[string]string
}

func (r *recordingLedger) RecordSessionStarted(record types.SessionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, record)
}

func (r *recordingLedger) RecordSessionEnded(id string, reason string, endedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended == nil {
		r.ended = make(map[string]string)
	}
	r.ended[id] = reason
}

type fixture struct {
	t        *testing.T
	registry *registry.Registry
	rooms    *room.State
	sessions *session.Table
	ledger   *recordingLedger
	engine   *Engine
	conns    map[string]*testutil.FakeConnection
}

func newFixture(t *testing.T, maxQueue int) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		registry: registry.NewRegistry(),
		rooms:    room.NewState(maxQueue),
		sessions: session.NewTable(),
		ledger:   &recordingLedger{},
		conns:    make(map[string]*testutil.FakeConnection),
	}
	f.engine = NewEngine(f.registry, f.rooms, f.sessions, f.ledger, Config{MaxIdentityLength: 100})
	return f
}

func (f *fixture) conn(id string) *testutil.FakeConnection {
	if c, ok := f.conns[id]; ok {
		return c
	}
	c := testutil.NewFakeConnection(id)
	require.NoError(f.t, f.registry.Attach(c))
	f.conns[id] = c
	return c
}

func (f *fixture) join(id, roomID, role string) *testutil.FakeConnection {
	f.t.Helper()
	c := f.conn(id)
	require.NoError(f.t, f.engine.Join(id, types.JoinRoomPayload{RoomID: roomID, Identity: id, Role: role}))
	return c
}

func (f *fixture) resetAll() {
	for _, c := range f.conns {
		c.Reset()
	}
}

// assertExclusive checks that no connection sits in more than one of
// queue, pool and session table
func (f *fixture) assertExclusive() {
	f.t.Helper()
	for id := range f.conns {
		md, ok := f.registry.Lookup(id)
		if !ok {
			require.False(f.t, f.sessions.IsPaired(id), "unregistered %s still paired", id)
			continue
		}
		n := 0
		if f.rooms.QueuePosition(md.RoomID, id) > 0 {
			n++
		}
		if f.rooms.IsExpertAvailable(md.RoomID, id) {
			n++
		}
		if f.sessions.IsPaired(id) {
			n++
		}
		require.LessOrEqual(f.t, n, 1, "connection %s is in %d structures", id, n)
	}
}

func partnerOf(t *testing.T, c *testutil.FakeConnection) types.Partner {
	t.Helper()
	data, ok := c.Last(types.EventChatStarted)
	require.True(t, ok, "%s never received chat-started", c.ID)
	return data.(types.ChatStartedPayload).Partner
}

func queueOf(t *testing.T, c *testutil.FakeConnection) []types.QueuedUser {
	t.Helper()
	data, ok := c.Last(types.EventQueueUpdated)
	require.True(t, ok, "%s never received queue-updated", c.ID)
	return data.(types.QueueUpdatedPayload).Queue
}
