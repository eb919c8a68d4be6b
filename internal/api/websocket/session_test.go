package websocket

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvaslab/canvas-sync/pkg/models"
	"github.com/canvaslab/canvas-sync/pkg/models/wire"
)

func TestRegisterMovesStateToIdle(t *testing.T) {
	s := newTestServer(t)
	conn := newConnection(uuid.New().String(), s, nil)
	require.Equal(t, StateUnauthenticated, conn.State())

	s.sessions.Register(conn, models.User{ID: "alice", Name: "Alice"})

	assert.Equal(t, StateIdle, conn.State())
	require.NotNil(t, conn.User())
	assert.Equal(t, "alice", conn.User().ID)
}

func TestDuplicateUserIDTakesOverDelivery(t *testing.T) {
	s := newTestServer(t)
	first := newTestClient(t, s, models.User{ID: "alice"})
	s.sessions.Join(first, "doc-1")
	drain(t, first)

	second := newTestClient(t, s, models.User{ID: "alice"})
	s.sessions.Join(second, "doc-1")
	drain(t, second)

	// Broadcasts for alice now land on the newest connection only.
	bob := newTestClient(t, s, models.User{ID: "bob"})
	s.sessions.Join(bob, "doc-1")

	assert.Empty(t, messagesOfType(drain(t, first), wire.MessageTypeUserJoined))
	assert.Len(t, messagesOfType(drain(t, second), wire.MessageTypeUserJoined), 1)

	conn, ok := s.sessions.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, second.ID, conn.ID)
}

func TestJoinWhileJoinedSwitchesDocuments(t *testing.T) {
	s := newTestServer(t)
	alice := newTestClient(t, s, models.User{ID: "alice"})
	bob := newTestClient(t, s, models.User{ID: "bob"})
	s.sessions.Join(alice, "doc-1")
	s.sessions.Join(bob, "doc-1")
	drain(t, bob)

	s.sessions.Join(alice, "doc-2")

	assert.Equal(t, "doc-2", alice.DocumentID())
	assert.Equal(t, StateJoined, alice.State())

	// The implicit leave notified doc-1's remaining member.
	bobMsgs := drain(t, bob)
	lefts := messagesOfType(bobMsgs, wire.MessageTypeUserLeft)
	require.Len(t, lefts, 1)
	assert.Equal(t, "alice", lefts[0].User.ID)
	assert.Equal(t, "doc-1", lefts[0].DocumentID)

	users := s.sessions.ActiveUsers("doc-1")
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].ID)
}

func TestRejoinSameDocumentResendsState(t *testing.T) {
	s := newTestServer(t)
	alice := newTestClient(t, s, models.User{ID: "alice"})
	s.sessions.Join(alice, "doc-1")
	drain(t, alice)

	s.sessions.Join(alice, "doc-1")

	states := messagesOfType(drain(t, alice), wire.MessageTypeDocumentState)
	require.Len(t, states, 1)
	assert.Equal(t, "doc-1", alice.DocumentID())
}

func TestLeaveNotifiesRemainingMembers(t *testing.T) {
	s := newTestServer(t)
	alice := newTestClient(t, s, models.User{ID: "alice"})
	bob := newTestClient(t, s, models.User{ID: "bob"})
	s.sessions.Join(alice, "doc-1")
	s.sessions.Join(bob, "doc-1")
	drain(t, alice)
	drain(t, bob)

	s.sessions.Leave(bob)

	assert.Equal(t, StateIdle, bob.State())
	assert.Equal(t, "", bob.DocumentID())
	assert.Empty(t, messagesOfType(drain(t, bob), wire.MessageTypeUserLeft))

	lefts := messagesOfType(drain(t, alice), wire.MessageTypeUserLeft)
	require.Len(t, lefts, 1)
	assert.Equal(t, "bob", lefts[0].User.ID)
}

func TestLeaveWithoutJoinIsNoOp(t *testing.T) {
	s := newTestServer(t)
	alice := newTestClient(t, s, models.User{ID: "alice"})

	s.sessions.Leave(alice)

	assert.Equal(t, StateIdle, alice.State())
	assert.Empty(t, drain(t, alice))
}

func TestDisconnectDropsIdentityBinding(t *testing.T) {
	s := newTestServer(t)
	alice := newTestClient(t, s, models.User{ID: "alice"})
	bob := newTestClient(t, s, models.User{ID: "bob"})
	s.sessions.Join(alice, "doc-1")
	s.sessions.Join(bob, "doc-1")
	drain(t, alice)

	s.sessions.Disconnect(bob)

	_, ok := s.sessions.Lookup("bob")
	assert.False(t, ok)
	assert.Len(t, messagesOfType(drain(t, alice), wire.MessageTypeUserLeft), 1)
	assert.Len(t, s.sessions.ActiveUsers("doc-1"), 1)
}

func TestDisconnectKeepsNewerBinding(t *testing.T) {
	s := newTestServer(t)
	old := newTestClient(t, s, models.User{ID: "alice"})
	newer := newTestClient(t, s, models.User{ID: "alice"})

	s.sessions.Disconnect(old)

	conn, ok := s.sessions.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, newer.ID, conn.ID)
}

func TestActiveUsersSortedByID(t *testing.T) {
	s := newTestServer(t)
	for _, id := range []string{"zoe", "alice", "mike"} {
		conn := newTestClient(t, s, models.User{ID: id})
		s.sessions.Join(conn, "doc-1")
	}

	users := s.sessions.ActiveUsers("doc-1")
	require.Len(t, users, 3)
	assert.Equal(t, "alice", users[0].ID)
	assert.Equal(t, "mike", users[1].ID)
	assert.Equal(t, "zoe", users[2].ID)
}

func TestBroadcastSkipsTerminatedConnections(t *testing.T) {
	s := newTestServer(t)
	alice := newTestClient(t, s, models.User{ID: "alice"})
	bob := newTestClient(t, s, models.User{ID: "bob"})
	s.sessions.Join(alice, "doc-1")
	s.sessions.Join(bob, "doc-1")
	drain(t, alice)
	drain(t, bob)

	bob.setState(StateTerminated)

	s.sessions.Broadcast("doc-1", wire.NewMessage(wire.MessageTypeBatchOperations), "")

	assert.Len(t, drain(t, alice), 1)
	assert.Empty(t, drain(t, bob))
}
