package websocket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvaslab/canvas-sync/internal/catalog"
	"github.com/canvaslab/canvas-sync/pkg/models"
	"github.com/canvaslab/canvas-sync/pkg/models/wire"
)

func sendMessage(s *Server, conn *Connection, msg *wire.Message) {
	s.processMessage(conn, msg)
}

func requireErrorReply(t *testing.T, conn *Connection, code int) {
	t.Helper()
	msgs := drain(t, conn)
	errs := messagesOfType(msgs, wire.MessageTypeError)
	require.Len(t, errs, 1, "expected exactly one error reply, got %v", msgs)
	require.NotNil(t, errs[0].Error)
	assert.Equal(t, code, errs[0].Error.Code)
}

func TestUnknownMessageType(t *testing.T) {
	s := newTestServer(t)
	conn := newTestClient(t, s, models.User{ID: "alice"})

	sendMessage(s, conn, wire.NewMessage("bogus"))

	requireErrorReply(t, conn, wire.ErrCodeInvalidMessage)
}

func TestHandshakeRequiresIdentity(t *testing.T) {
	s := newTestServer(t)
	conn := newConnection("c1", s, nil)

	sendMessage(s, conn, wire.NewMessage(wire.MessageTypeHandshake))
	requireErrorReply(t, conn, wire.ErrCodeInvalidMessage)

	msg := wire.NewMessage(wire.MessageTypeHandshake)
	msg.User = &models.User{Name: "no id"}
	sendMessage(s, conn, msg)
	requireErrorReply(t, conn, wire.ErrCodeInvalidMessage)

	assert.Equal(t, StateUnauthenticated, conn.State())
}

func TestHandshakeRegistersIdentity(t *testing.T) {
	s := newTestServer(t)
	conn := newConnection("c1", s, nil)

	msg := wire.NewMessage(wire.MessageTypeHandshake)
	msg.User = &models.User{ID: "alice", Name: "Alice", Color: "#ff0000"}
	sendMessage(s, conn, msg)

	assert.Empty(t, drain(t, conn))
	assert.Equal(t, StateIdle, conn.State())

	bound, ok := s.sessions.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, conn.ID, bound.ID)
}

func TestHandshakeWhileJoinedRejected(t *testing.T) {
	s := newTestServer(t)
	conn := newTestClient(t, s, models.User{ID: "alice"})
	s.sessions.Join(conn, "doc-1")
	drain(t, conn)

	msg := wire.NewMessage(wire.MessageTypeHandshake)
	msg.User = &models.User{ID: "mallory"}
	sendMessage(s, conn, msg)

	requireErrorReply(t, conn, wire.ErrCodeInvalidMessage)
	assert.Equal(t, "alice", conn.User().ID)
}

func TestJoinRequiresHandshake(t *testing.T) {
	s := newTestServer(t)
	conn := newConnection("c1", s, nil)

	msg := wire.NewMessage(wire.MessageTypeJoinDocument)
	msg.DocumentID = "doc-1"
	sendMessage(s, conn, msg)

	requireErrorReply(t, conn, wire.ErrCodeNotAuthenticated)
}

func TestJoinRequiresDocumentID(t *testing.T) {
	s := newTestServer(t)
	conn := newTestClient(t, s, models.User{ID: "alice"})

	sendMessage(s, conn, wire.NewMessage(wire.MessageTypeJoinDocument))

	requireErrorReply(t, conn, wire.ErrCodeInvalidMessage)
}

func TestLeaveWithoutJoinRejected(t *testing.T) {
	s := newTestServer(t)
	conn := newTestClient(t, s, models.User{ID: "alice"})

	sendMessage(s, conn, wire.NewMessage(wire.MessageTypeLeaveDocument))

	requireErrorReply(t, conn, wire.ErrCodeNotJoined)
}

func TestAcceptedOperationIsAcked(t *testing.T) {
	s := newTestServer(t)
	conn := newTestClient(t, s, models.User{ID: "alice"})
	s.sessions.Join(conn, "doc-1")
	drain(t, conn)

	op := createOp("doc-1", "e1", "hello", 5, 5)
	msg := wire.NewMessage(wire.MessageTypeOperation)
	msg.Operation = op
	sendMessage(s, conn, msg)

	msgs := drain(t, conn)
	acks := messagesOfType(msgs, wire.MessageTypeOperationAck)
	require.Len(t, acks, 1)
	require.NotNil(t, acks[0].Operation)
	assert.Equal(t, op.ID, acks[0].Operation.ID)
	assert.Equal(t, "alice", acks[0].Operation.UserID)
	assert.Empty(t, messagesOfType(msgs, wire.MessageTypeError))
}

func TestRejectedOperationAnswersSubmitterOnly(t *testing.T) {
	s := newTestServer(t)
	alice := newTestClient(t, s, models.User{ID: "alice"})
	bob := newTestClient(t, s, models.User{ID: "bob"})
	s.sessions.Join(alice, "doc-1")
	s.sessions.Join(bob, "doc-1")
	drain(t, alice)
	drain(t, bob)

	msg := wire.NewMessage(wire.MessageTypeOperation)
	msg.Operation = createOp("doc-1", "e1", "rogue", 0, 0)
	sendMessage(s, bob, msg)

	requireErrorReply(t, bob, wire.ErrCodePermissionDenied)
	assert.Empty(t, drain(t, alice))
}

func TestOperationMessageWithoutOperation(t *testing.T) {
	s := newTestServer(t)
	conn := newTestClient(t, s, models.User{ID: "alice"})
	s.sessions.Join(conn, "doc-1")
	drain(t, conn)

	sendMessage(s, conn, wire.NewMessage(wire.MessageTypeOperation))

	requireErrorReply(t, conn, wire.ErrCodeInvalidMessage)
}

func TestCursorUpdateRelayedWithoutEcho(t *testing.T) {
	s := newTestServer(t)
	alice := newTestClient(t, s, models.User{ID: "alice"})
	bob := newTestClient(t, s, models.User{ID: "bob"})
	s.sessions.Join(alice, "doc-1")
	s.sessions.Join(bob, "doc-1")
	drain(t, alice)
	drain(t, bob)

	msg := wire.NewMessage(wire.MessageTypeCursorUpdate)
	msg.Cursor = &wire.CursorPosition{X: 12, Y: 34}
	sendMessage(s, bob, msg)

	cursors := messagesOfType(drain(t, alice), wire.MessageTypeCursorUpdate)
	require.Len(t, cursors, 1)
	require.NotNil(t, cursors[0].Cursor)
	// Sender identity is stamped server-side; the client cannot spoof it.
	assert.Equal(t, "bob", cursors[0].Cursor.UserID)
	assert.Equal(t, 12.0, cursors[0].Cursor.X)

	assert.Empty(t, drain(t, bob))
}

func TestCursorUpdateFromViewerAllowed(t *testing.T) {
	s := newTestServer(t)
	alice := newTestClient(t, s, models.User{ID: "alice"})
	bob := newTestClient(t, s, models.User{ID: "bob"})
	s.sessions.Join(alice, "doc-1")
	s.sessions.Join(bob, "doc-1")
	drain(t, alice)
	drain(t, bob)

	// bob holds viewer only; presence is never permission-gated.
	msg := wire.NewMessage(wire.MessageTypeCursorUpdate)
	msg.Cursor = &wire.CursorPosition{X: 1, Y: 1}
	sendMessage(s, bob, msg)

	assert.Len(t, messagesOfType(drain(t, alice), wire.MessageTypeCursorUpdate), 1)
	assert.Empty(t, messagesOfType(drain(t, bob), wire.MessageTypeError))
}

func TestSelectionUpdateRelayed(t *testing.T) {
	s := newTestServer(t)
	alice := newTestClient(t, s, models.User{ID: "alice"})
	bob := newTestClient(t, s, models.User{ID: "bob"})
	s.sessions.Join(alice, "doc-1")
	s.sessions.Join(bob, "doc-1")
	drain(t, alice)
	drain(t, bob)

	msg := wire.NewMessage(wire.MessageTypeSelectionUpdate)
	msg.Selection = &wire.Selection{ElementIDs: []string{"e1", "e2"}}
	sendMessage(s, alice, msg)

	sels := messagesOfType(drain(t, bob), wire.MessageTypeSelectionUpdate)
	require.Len(t, sels, 1)
	assert.Equal(t, "alice", sels[0].Selection.UserID)
	assert.Equal(t, []string{"e1", "e2"}, sels[0].Selection.ElementIDs)
}

func TestCursorUpdateRequiresJoin(t *testing.T) {
	s := newTestServer(t)
	conn := newTestClient(t, s, models.User{ID: "alice"})

	msg := wire.NewMessage(wire.MessageTypeCursorUpdate)
	msg.Cursor = &wire.CursorPosition{X: 1, Y: 1}
	sendMessage(s, conn, msg)

	requireErrorReply(t, conn, wire.ErrCodeNotJoined)
}

func TestGetVersionsReturnsList(t *testing.T) {
	s := newTestServer(t)
	conn := newTestClient(t, s, models.User{ID: "alice"})
	s.sessions.Join(conn, "doc-1")

	require.Nil(t, s.processor.Submit(conn, createOp("doc-1", "e1", "x", 0, 0)))
	require.Nil(t, s.processor.Submit(conn, versionOp("doc-1", "checkpoint")))
	drain(t, conn)

	sendMessage(s, conn, wire.NewMessage(wire.MessageTypeGetVersions))

	lists := messagesOfType(drain(t, conn), wire.MessageTypeVersionsList)
	require.Len(t, lists, 1)
	require.Len(t, lists[0].Versions, 1)
	assert.Equal(t, "checkpoint", lists[0].Versions[0].Description)
}

func TestGetVersionsForUnknownDocument(t *testing.T) {
	s := newTestServer(t)
	conn := newTestClient(t, s, models.User{ID: "alice"})

	msg := wire.NewMessage(wire.MessageTypeGetVersions)
	msg.DocumentID = "ghost"
	sendMessage(s, conn, msg)

	requireErrorReply(t, conn, wire.ErrCodeUnknownDocument)
}

func TestRestoreVersionMessageRidesOperationPath(t *testing.T) {
	s := newTestServer(t)
	alice := newTestClient(t, s, models.User{ID: "alice"})
	bob := newTestClient(t, s, models.User{ID: "bob"})
	s.sessions.Join(alice, "doc-1")
	s.sessions.Join(bob, "doc-1")

	require.Nil(t, s.processor.Submit(alice, createOp("doc-1", "e1", "keep", 0, 0)))
	require.Nil(t, s.processor.Submit(alice, versionOp("doc-1", "before e2")))
	require.Nil(t, s.processor.Submit(alice, createOp("doc-1", "e2", "discard", 0, 0)))
	drain(t, alice)
	drain(t, bob)

	doc, _ := s.store.Get("doc-1")
	msg := wire.NewMessage(wire.MessageTypeRestoreVersion)
	msg.VersionID = doc.Versions[0].ID

	// Restore is a mutation; a viewer cannot perform it.
	sendMessage(s, bob, msg)
	requireErrorReply(t, bob, wire.ErrCodePermissionDenied)
	require.Len(t, doc.State.Elements, 2)

	sendMessage(s, alice, msg)

	aliceMsgs := drain(t, alice)
	assert.Len(t, messagesOfType(aliceMsgs, wire.MessageTypeOperationAck), 1)
	assert.Len(t, messagesOfType(aliceMsgs, wire.MessageTypeDocumentState), 1)
	assert.Len(t, doc.State.Elements, 1)
}

func TestGetTemplatesReturnsCatalog(t *testing.T) {
	s := newTestServer(t)
	conn := newTestClient(t, s, models.User{ID: "alice"})

	sendMessage(s, conn, wire.NewMessage(wire.MessageTypeGetTemplates))

	lists := messagesOfType(drain(t, conn), wire.MessageTypeTemplatesList)
	require.Len(t, lists, 1)
	require.NotEmpty(t, lists[0].Templates)

	var templates []catalog.Template
	require.NoError(t, json.Unmarshal(lists[0].Templates, &templates))

	want := s.catalog.List()
	require.Len(t, templates, len(want))
	assert.Equal(t, want[0].ID, templates[0].ID)
}

func TestHandlerPanicBecomesErrorReply(t *testing.T) {
	s := newTestServer(t)
	conn := newTestClient(t, s, models.User{ID: "alice"})

	s.handlers["boom"] = func(conn *Connection, msg *wire.Message) {
		panic("handler exploded")
	}

	sendMessage(s, conn, wire.NewMessage("boom"))

	requireErrorReply(t, conn, wire.ErrCodeServerError)
}
