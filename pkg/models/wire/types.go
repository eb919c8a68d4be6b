// Package wire defines the message envelope exchanged over the WebSocket
// connection and the error codes the server answers with.
package wire

import (
	"encoding/json"
	"time"

	"github.com/canvaslab/canvas-sync/pkg/models"
)

// MessageType identifies the kind of a wire message
type MessageType string

// Message types consumed and produced by the server
const (
	// client -> server
	MessageTypeHandshake      MessageType = "handshake"
	MessageTypeJoinDocument   MessageType = "join_document"
	MessageTypeLeaveDocument  MessageType = "leave_document"
	MessageTypeOperation      MessageType = "operation"
	MessageTypeGetVersions    MessageType = "get_versions"
	MessageTypeRestoreVersion MessageType = "restore_version"
	MessageTypeGetTemplates   MessageType = "get_templates"

	// server -> client
	MessageTypeDocumentState   MessageType = "document_state"
	MessageTypeOperationAck    MessageType = "operation_ack"
	MessageTypeBatchOperations MessageType = "batch_operations"
	MessageTypeUserJoined      MessageType = "user_joined"
	MessageTypeUserLeft        MessageType = "user_left"
	MessageTypeVersionsList    MessageType = "versions_list"
	MessageTypeTemplatesList   MessageType = "templates_list"
	MessageTypeError           MessageType = "error"

	// both directions, relayed unchanged
	MessageTypeCursorUpdate    MessageType = "cursor_update"
	MessageTypeSelectionUpdate MessageType = "selection_update"
)

// Error codes
const (
	ErrCodeInvalidMessage   = 4000
	ErrCodeNotAuthenticated = 4001
	ErrCodeNotJoined        = 4002
	ErrCodePermissionDenied = 4003
	ErrCodeUnknownDocument  = 4004
	ErrCodeUnknownVersion   = 4005
	ErrCodeRateLimited      = 4006
	ErrCodeServerError      = 4007
)

// Error describes a failed request back to its submitter
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *Error) Error() string {
	return e.Message
}

// NewError creates a wire error
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CursorPosition is an ephemeral cursor presence signal
type CursorPosition struct {
	UserID string  `json:"user_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// Selection is an ephemeral element-selection presence signal
type Selection struct {
	UserID     string   `json:"user_id"`
	ElementIDs []string `json:"element_ids"`
}

// Message is the envelope for every wire exchange. Type selects which of the
// optional fields are populated; unused fields are omitted on the wire.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`

	User        *models.User        `json:"user,omitempty"`
	DocumentID  string              `json:"document_id,omitempty"`
	Document    *models.Document    `json:"document,omitempty"`
	ActiveUsers []models.User       `json:"active_users,omitempty"`
	Operation   *models.Operation   `json:"operation,omitempty"`
	Operations  []*models.Operation `json:"operations,omitempty"`
	Versions    []*models.Version   `json:"versions,omitempty"`
	VersionID   string              `json:"version_id,omitempty"`
	Cursor      *CursorPosition     `json:"cursor,omitempty"`
	Selection   *Selection          `json:"selection,omitempty"`
	Templates   json.RawMessage     `json:"templates,omitempty"`
	Error       *Error              `json:"error,omitempty"`
}

// NewMessage creates an envelope of the given type stamped with the current
// time
func NewMessage(t MessageType) *Message {
	return &Message{Type: t, Timestamp: time.Now()}
}

// NewErrorMessage creates an error envelope
func NewErrorMessage(code int, message string) *Message {
	m := NewMessage(MessageTypeError)
	m.Error = NewError(code, message)
	return m
}
