package websocket

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/canvaslab/canvas-sync/internal/store"
	"github.com/canvaslab/canvas-sync/pkg/models"
	"github.com/canvaslab/canvas-sync/pkg/models/wire"
	"github.com/canvaslab/canvas-sync/pkg/observability"
)

// SessionManager binds asserted identities to live connections and tracks
// per-document active-user sets. It performs all fan-out: presence events,
// state pushes and operation batches go through Broadcast.
type SessionManager struct {
	mu     sync.RWMutex
	byUser map[string]*Connection
	active map[string]map[string]struct{}

	store   *store.DocumentStore
	locks   *documentLocks
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewSessionManager creates a session manager over the given document store
func NewSessionManager(docs *store.DocumentStore, locks *documentLocks, logger observability.Logger, metrics observability.MetricsClient) *SessionManager {
	return &SessionManager{
		byUser:  make(map[string]*Connection),
		active:  make(map[string]map[string]struct{}),
		store:   docs,
		locks:   locks,
		logger:  logger,
		metrics: metrics,
	}
}

// Register binds a connection to its asserted identity. There is no
// uniqueness check: a duplicate user id silently takes over delivery from
// whichever connection registered it earlier.
func (sm *SessionManager) Register(conn *Connection, user models.User) {
	sm.mu.Lock()
	prev, takeover := sm.byUser[user.ID]
	sm.byUser[user.ID] = conn
	sm.mu.Unlock()

	conn.setUser(&user)

	if takeover && prev != nil && prev.ID != conn.ID {
		sm.logger.Warn("User id re-registered, deliveries move to newest connection", map[string]interface{}{
			"user_id":            user.ID,
			"connection_id":      conn.ID,
			"prev_connection_id": prev.ID,
		})
	}

	sm.metrics.IncrementCounter("sessions_registered_total", 1)
	sm.logger.Info("Session registered", map[string]interface{}{
		"user_id":       user.ID,
		"user_name":     user.Name,
		"connection_id": conn.ID,
	})
}

// Join adds the connection's user to a document. The document is created
// lazily on an unknown id with the joiner as owner; a joiner without an
// existing grant receives viewer. The joiner gets the full current state plus
// the active-user list, everyone else gets a join notification.
func (sm *SessionManager) Join(conn *Connection, docID string) {
	user := conn.User()

	// Joining while joined switches documents: leave the old one first.
	if current := conn.DocumentID(); current != "" && current != docID {
		sm.Leave(conn)
	}

	unlock := sm.locks.Lock(docID)

	doc, ok := sm.store.Get(docID)
	if !ok {
		doc = sm.store.Create(docID, "Untitled", user.ID)
	} else if _, granted := doc.Permissions[user.ID]; !granted {
		doc.Permissions[user.ID] = models.PermissionViewer
	}

	sm.mu.Lock()
	members, ok := sm.active[docID]
	if !ok {
		members = make(map[string]struct{})
		sm.active[docID] = members
	}
	members[user.ID] = struct{}{}
	sm.mu.Unlock()

	conn.setDocument(docID)

	// Marshal the state push while the document lock is held so a concurrent
	// apply cannot mutate the element map mid-encode.
	stateMsg := wire.NewMessage(wire.MessageTypeDocumentState)
	stateMsg.DocumentID = docID
	stateMsg.Document = doc
	stateMsg.ActiveUsers = sm.ActiveUsers(docID)
	conn.Send(stateMsg)

	unlock()

	joined := wire.NewMessage(wire.MessageTypeUserJoined)
	joined.DocumentID = docID
	joined.User = user
	sm.Broadcast(docID, joined, user.ID)

	sm.metrics.IncrementCounter("document_joins_total", 1)
	sm.logger.Info("User joined document", map[string]interface{}{
		"user_id":     user.ID,
		"document_id": docID,
	})
}

// Leave removes the connection's user from its current document and notifies
// the remaining members
func (sm *SessionManager) Leave(conn *Connection) {
	user := conn.User()
	docID := conn.DocumentID()
	if user == nil || docID == "" {
		return
	}

	sm.mu.Lock()
	if members, ok := sm.active[docID]; ok {
		delete(members, user.ID)
		if len(members) == 0 {
			delete(sm.active, docID)
		}
	}
	sm.mu.Unlock()

	conn.setDocument("")

	left := wire.NewMessage(wire.MessageTypeUserLeft)
	left.DocumentID = docID
	left.User = user
	sm.Broadcast(docID, left, user.ID)

	sm.logger.Info("User left document", map[string]interface{}{
		"user_id":     user.ID,
		"document_id": docID,
	})
}

// Disconnect tears the session down after a transport close: leave the
// current document, then drop the identity binding unless a newer connection
// has already taken it over
func (sm *SessionManager) Disconnect(conn *Connection) {
	sm.Leave(conn)

	user := conn.User()
	if user == nil {
		return
	}

	sm.mu.Lock()
	if sm.byUser[user.ID] == conn {
		delete(sm.byUser, user.ID)
	}
	sm.mu.Unlock()
}

// Broadcast delivers a message to every currently open connection in the
// document's active set, except excludeUserID when non-empty. Delivery is
// best-effort per connection; there is no retry and no persistence of
// undelivered messages.
func (sm *SessionManager) Broadcast(docID string, msg *wire.Message, excludeUserID string) {
	data, err := json.Marshal(msg)
	if err != nil {
		sm.logger.Error("Failed to marshal broadcast", map[string]interface{}{
			"error":       err.Error(),
			"type":        string(msg.Type),
			"document_id": docID,
		})
		return
	}

	sm.mu.RLock()
	conns := make([]*Connection, 0, len(sm.active[docID]))
	for userID := range sm.active[docID] {
		if excludeUserID != "" && userID == excludeUserID {
			continue
		}
		if conn, ok := sm.byUser[userID]; ok {
			conns = append(conns, conn)
		}
	}
	sm.mu.RUnlock()

	for _, conn := range conns {
		if conn.State() == StateTerminated {
			continue
		}
		conn.sendRaw(data)
	}

	sm.metrics.IncrementCounter("broadcasts_total", 1)
}

// ActiveUsers returns the identities currently in the document, ordered by id
func (sm *SessionManager) ActiveUsers(docID string) []models.User {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	users := make([]models.User, 0, len(sm.active[docID]))
	for userID := range sm.active[docID] {
		if conn, ok := sm.byUser[userID]; ok {
			if u := conn.User(); u != nil {
				users = append(users, *u)
			}
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

// Lookup returns the connection currently bound to a user id
func (sm *SessionManager) Lookup(userID string) (*Connection, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	conn, ok := sm.byUser[userID]
	return conn, ok
}
