package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/canvaslab/canvas-sync/pkg/models"
	"github.com/canvaslab/canvas-sync/pkg/models/wire"
)

// MessageHandler processes one wire message for a connection
type MessageHandler func(conn *Connection, msg *wire.Message)

// RegisterHandlers sets up the dispatch table for every inbound message type
func (s *Server) RegisterHandlers() {
	s.handlers = map[string]MessageHandler{
		string(wire.MessageTypeHandshake):       s.handleHandshake,
		string(wire.MessageTypeJoinDocument):    s.handleJoinDocument,
		string(wire.MessageTypeLeaveDocument):   s.handleLeaveDocument,
		string(wire.MessageTypeOperation):       s.handleOperation,
		string(wire.MessageTypeCursorUpdate):    s.handleCursorUpdate,
		string(wire.MessageTypeSelectionUpdate): s.handleSelectionUpdate,
		string(wire.MessageTypeGetVersions):     s.handleGetVersions,
		string(wire.MessageTypeRestoreVersion):  s.handleRestoreVersion,
		string(wire.MessageTypeGetTemplates):    s.handleGetTemplates,
	}
}

// processMessage dispatches one inbound message. A failure in any single
// message — unknown type, bad payload, even a handler panic — becomes an
// error reply to the submitter; it never takes the process or the
// connection down.
func (s *Server) processMessage(conn *Connection, msg *wire.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.IncrementCounter("websocket_handler_panics_total", 1)
			s.logger.Error("Recovered panic in message handler", map[string]interface{}{
				"panic":         r,
				"type":          string(msg.Type),
				"connection_id": conn.ID,
			})
			conn.sendError(wire.ErrCodeServerError, "internal error processing message")
		}
	}()

	handler, ok := s.handlers[string(msg.Type)]
	if !ok {
		conn.sendError(wire.ErrCodeInvalidMessage, "unknown message type: "+string(msg.Type))
		return
	}

	s.metrics.IncrementCounter("websocket_messages_received_total", 1)
	handler(conn, msg)
}

// handleHandshake registers the connection's asserted identity. The identity
// is trusted as supplied; verification is a boundary concern outside this
// server.
func (s *Server) handleHandshake(conn *Connection, msg *wire.Message) {
	if msg.User == nil || msg.User.ID == "" {
		conn.sendError(wire.ErrCodeInvalidMessage, "handshake requires a user identity")
		return
	}
	if conn.State() == StateJoined {
		conn.sendError(wire.ErrCodeInvalidMessage, "cannot handshake while joined to a document")
		return
	}

	s.sessions.Register(conn, *msg.User)
}

func (s *Server) handleJoinDocument(conn *Connection, msg *wire.Message) {
	if conn.State() == StateUnauthenticated {
		conn.sendError(wire.ErrCodeNotAuthenticated, "handshake required before joining")
		return
	}
	if msg.DocumentID == "" {
		conn.sendError(wire.ErrCodeInvalidMessage, "join_document requires a document id")
		return
	}

	s.sessions.Join(conn, msg.DocumentID)
}

func (s *Server) handleLeaveDocument(conn *Connection, msg *wire.Message) {
	if conn.State() != StateJoined {
		conn.sendError(wire.ErrCodeNotJoined, "no document joined")
		return
	}

	s.sessions.Leave(conn)
}

// handleOperation routes an edit operation through the processor and, on
// acceptance, acks it back to the submitter immediately. The broadcast to the
// rest of the document happens on the next batch flush.
func (s *Server) handleOperation(conn *Connection, msg *wire.Message) {
	if msg.Operation == nil {
		conn.sendError(wire.ErrCodeInvalidMessage, "operation message carries no operation")
		return
	}

	if werr := s.processor.Submit(conn, msg.Operation); werr != nil {
		conn.Send(wire.NewErrorMessage(werr.Code, werr.Message))
		return
	}

	ack := wire.NewMessage(wire.MessageTypeOperationAck)
	ack.DocumentID = msg.Operation.DocumentID
	ack.Operation = msg.Operation
	conn.Send(ack)
}

// handleCursorUpdate relays an ephemeral cursor position to the rest of the
// document, excluding the sender. Presence is never persisted and never
// permission-gated: viewers may move their cursor.
func (s *Server) handleCursorUpdate(conn *Connection, msg *wire.Message) {
	if conn.State() != StateJoined {
		conn.sendError(wire.ErrCodeNotJoined, "no document joined")
		return
	}
	if msg.Cursor == nil {
		conn.sendError(wire.ErrCodeInvalidMessage, "cursor_update carries no cursor")
		return
	}

	user := conn.User()
	msg.Cursor.UserID = user.ID
	msg.DocumentID = conn.DocumentID()
	s.sessions.Broadcast(conn.DocumentID(), msg, user.ID)
}

func (s *Server) handleSelectionUpdate(conn *Connection, msg *wire.Message) {
	if conn.State() != StateJoined {
		conn.sendError(wire.ErrCodeNotJoined, "no document joined")
		return
	}
	if msg.Selection == nil {
		conn.sendError(wire.ErrCodeInvalidMessage, "selection_update carries no selection")
		return
	}

	user := conn.User()
	msg.Selection.UserID = user.ID
	msg.DocumentID = conn.DocumentID()
	s.sessions.Broadcast(conn.DocumentID(), msg, user.ID)
}

func (s *Server) handleGetVersions(conn *Connection, msg *wire.Message) {
	if conn.State() == StateUnauthenticated {
		conn.sendError(wire.ErrCodeNotAuthenticated, "handshake required")
		return
	}

	docID := msg.DocumentID
	if docID == "" {
		docID = conn.DocumentID()
	}
	if docID == "" {
		conn.sendError(wire.ErrCodeInvalidMessage, "get_versions requires a document id")
		return
	}

	versions, werr := s.versions.List(docID)
	if werr != nil {
		conn.Send(wire.NewErrorMessage(werr.Code, werr.Message))
		return
	}

	reply := wire.NewMessage(wire.MessageTypeVersionsList)
	reply.DocumentID = docID
	reply.Versions = versions
	conn.Send(reply)
}

// handleRestoreVersion wraps a restore request in a restore_version
// operation so it rides the same permission-gated, logged path as every
// other mutation
func (s *Server) handleRestoreVersion(conn *Connection, msg *wire.Message) {
	if msg.VersionID == "" {
		conn.sendError(wire.ErrCodeInvalidMessage, "restore_version requires a version id")
		return
	}

	op := &models.Operation{
		ID:         uuid.New().String(),
		DocumentID: conn.DocumentID(),
		Timestamp:  time.Now(),
		Kind:       models.OpRestoreVersion,
		RestoreVersion: &models.RestoreVersionPayload{
			VersionID: msg.VersionID,
		},
	}

	if werr := s.processor.Submit(conn, op); werr != nil {
		conn.Send(wire.NewErrorMessage(werr.Code, werr.Message))
		return
	}

	ack := wire.NewMessage(wire.MessageTypeOperationAck)
	ack.DocumentID = op.DocumentID
	ack.Operation = op
	conn.Send(ack)
}

func (s *Server) handleGetTemplates(conn *Connection, msg *wire.Message) {
	data, err := json.Marshal(s.catalog.List())
	if err != nil {
		conn.sendError(wire.ErrCodeServerError, "failed to encode template catalog")
		return
	}

	reply := wire.NewMessage(wire.MessageTypeTemplatesList)
	reply.Templates = data
	conn.Send(reply)
}
