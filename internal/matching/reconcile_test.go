package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportchat/pkg/types"
)

func TestDisconnect_IdleExpertLeavesPool(t *testing.T) {
	f := newFixture(t, 10)
	f.join("E1", "R1", types.RoleExpert)

	f.engine.Disconnect("E1")

	assert.False(t, f.rooms.IsExpertAvailable("R1", "E1"))
	_, ok := f.registry.Lookup("E1")
	assert.False(t, ok)
	assert.Empty(t, f.rooms.Rooms(), "empty room released")
}

func TestDisconnect_QueuedUserRemovedAnywhere(t *testing.T) {
	f := newFixture(t, 10)
	f.join("E1", "R1", types.RoleExpert)
	f.join("U0", "R1", types.RoleUser) // keeps E1 busy
	f.join("U1", "R1", types.RoleUser)
	f.join("U2", "R1", types.RoleUser)
	f.join("U3", "R1", types.RoleUser)

	f.engine.Disconnect("U2")

	snap, _ := f.rooms.Snapshot("R1")
	require.Len(t, snap.Queue, 2)
	assert.Equal(t, "U1", snap.Queue[0].ConnectionID)
	assert.Equal(t, "U3", snap.Queue[1].ConnectionID)
	assert.Equal(t, []types.QueuedUser{{SocketID: "U1", Identifier: "U1"}, {SocketID: "U3", Identifier: "U3"}},
		queueOf(t, f.conns["E1"]), "experts see the shrunk queue")
	f.assertExclusive()
}

func TestDisconnect_PairedUserFreesExpertForNext(t *testing.T) {
	f := newFixture(t, 10)
	e1 := f.join("E1", "R1", types.RoleExpert)
	f.join("U1", "R1", types.RoleUser)
	u2 := f.join("U2", "R1", types.RoleUser)

	f.engine.Disconnect("U1")

	data, ok := e1.Last(types.EventChatEnded)
	require.True(t, ok)
	assert.Equal(t, types.ChatEndedPayload{By: "user-disconnected", Message: "User U1 has disconnected."}, data)
	assert.Equal(t, "U2", partnerOf(t, e1).ID)
	assert.Equal(t, "E1", partnerOf(t, u2).ID)
	assert.Zero(t, f.rooms.QueueLength("R1"))

	rec := f.ledger.started[0]
	assert.Equal(t, types.ReasonUserDisconnected, f.ledger.ended[rec.ID])
	f.assertExclusive()
}

func TestDisconnect_PairedUserExpertReturnsToPoolWhenQueueEmpty(t *testing.T) {
	f := newFixture(t, 10)
	f.join("E1", "R1", types.RoleExpert)
	f.join("U1", "R1", types.RoleUser)

	f.engine.Disconnect("U1")

	assert.True(t, f.rooms.IsExpertAvailable("R1", "E1"))
	assert.False(t, f.sessions.IsPaired("E1"))
}

func TestDisconnect_PairedExpertRequeuesUser(t *testing.T) {
	f := newFixture(t, 10)
	f.join("E1", "R1", types.RoleExpert)
	u1 := f.join("U1", "R1", types.RoleUser)
	f.join("U2", "R1", types.RoleUser)

	f.engine.Disconnect("E1")

	data, ok := u1.Last(types.EventChatEnded)
	require.True(t, ok)
	assert.Equal(t, types.ChatEndedPayload{
		By:      "expert-disconnected",
		Message: "The expert has disconnected. You will be added back to the queue.",
	}, data)

	// re-queued as a fresh entry behind U2
	data, ok = u1.Last(types.EventAddedToQueue)
	require.True(t, ok)
	assert.Equal(t, types.AddedToQueuePayload{RoomID: "R1", Position: 2, QueueLength: 2}, data)
	assert.False(t, f.sessions.IsPaired("E1"))
	assert.False(t, f.sessions.IsPaired("U1"))

	// a new expert serves U2 then the orphan
	f.join("E2", "R1", types.RoleExpert)
	assert.True(t, f.sessions.IsPaired("U2"))
	require.NoError(t, f.engine.EndChat("E2"))
	assert.Equal(t, "E2", partnerOf(t, u1).ID)
	f.assertExclusive()
}

func TestDisconnect_PairedExpertWithIdleColleague(t *testing.T) {
	f := newFixture(t, 10)
	f.join("E1", "R1", types.RoleExpert)
	u1 := f.join("U1", "R1", types.RoleUser)
	f.join("E2", "R1", types.RoleExpert)

	f.engine.Disconnect("E1")

	assert.Equal(t, "E2", partnerOf(t, u1).ID, "orphan matched immediately")
	assert.Zero(t, f.rooms.QueueLength("R1"))
	assert.Zero(t, f.rooms.PoolSize("R1"))
	f.assertExclusive()
}

func TestDisconnect_RequeueIntoFullQueue(t *testing.T) {
	f := newFixture(t, 1)
	f.join("E1", "R1", types.RoleExpert)
	u1 := f.join("U1", "R1", types.RoleUser)
	f.join("U2", "R1", types.RoleUser)

	f.engine.Disconnect("E1")

	assert.Equal(t, 1, u1.Count(types.EventQueueFull))
	assert.Zero(t, f.rooms.QueuePosition("R1", "U1"))
	assert.Equal(t, 1, f.rooms.QueueLength("R1"))
}

func TestDisconnect_IsIdempotent(t *testing.T) {
	f := newFixture(t, 10)
	f.join("E1", "R1", types.RoleExpert)
	u1 := f.join("U1", "R1", types.RoleUser)

	f.engine.Disconnect("E1")
	before := len(u1.Frames())
	f.engine.Disconnect("E1")

	assert.Len(t, u1.Frames(), before, "second disconnect emits nothing")
	assert.Equal(t, 1, f.rooms.QueueLength("R1"))
}

func TestDisconnect_UnannouncedConnection(t *testing.T) {
	f := newFixture(t, 10)
	f.conn("X")

	f.engine.Disconnect("X")

	_, ok := f.registry.Connection("X")
	assert.False(t, ok)
}

func TestDisconnect_DepartingExpertNotBroadcastTo(t *testing.T) {
	f := newFixture(t, 10)
	e1 := f.join("E1", "R1", types.RoleExpert)
	e2 := f.join("E2", "R1", types.RoleExpert)
	e1.Reset()
	e2.Reset()

	f.engine.Disconnect("E1")

	assert.Zero(t, e1.Count(types.EventQueueUpdated))
	assert.Equal(t, 1, e2.Count(types.EventQueueUpdated))
}

func TestEngine_ShutdownEndsAllPairings(t *testing.T) {
	f := newFixture(t, 10)
	f.join("E1", "R1", types.RoleExpert)
	f.join("U1", "R1", types.RoleUser)
	f.join("E2", "R2", types.RoleExpert)
	f.join("U2", "R2", types.RoleUser)

	assert.Equal(t, 2, f.engine.Shutdown())
	assert.Zero(t, f.sessions.GetStats()["active_sessions"])
	for _, rec := range f.ledger.started {
		assert.Equal(t, types.ReasonShutdown, f.ledger.ended[rec.ID])
	}
}
