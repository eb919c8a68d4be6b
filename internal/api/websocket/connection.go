package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/time/rate"

	"github.com/canvaslab/canvas-sync/pkg/models"
	"github.com/canvaslab/canvas-sync/pkg/models/wire"
)

// SessionState is the lifecycle state of a connection's session
type SessionState int

// Session states. A connection starts unauthenticated, becomes idle after a
// handshake, joined after joining a document, and terminated when the
// transport closes. There is no resume: a rejoining client re-fetches full
// state.
const (
	StateUnauthenticated SessionState = iota
	StateIdle
	StateJoined
	StateTerminated
)

func (s SessionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateIdle:
		return "idle"
	case StateJoined:
		return "joined"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Connection wraps one WebSocket connection together with its asserted
// identity and current document membership
type Connection struct {
	ID  string
	hub *Server

	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
	createdAt time.Time

	mu         sync.RWMutex
	state      SessionState
	user       *models.User
	documentID string
}

func newConnection(id string, hub *Server, conn *websocket.Conn) *Connection {
	return &Connection{
		ID:        id,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, hub.config.SendBuffer),
		closed:    make(chan struct{}),
		createdAt: time.Now(),
		state:     StateUnauthenticated,
	}
}

// State returns the current session state
func (c *Connection) State() SessionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Connection) setState(s SessionState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// User returns the identity asserted at handshake, or nil before one
func (c *Connection) User() *models.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

func (c *Connection) setUser(u *models.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = u
	c.state = StateIdle
}

// DocumentID returns the currently joined document, or "" when idle
func (c *Connection) DocumentID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.documentID
}

func (c *Connection) setDocument(docID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.documentID = docID
	if docID == "" {
		if c.state == StateJoined {
			c.state = StateIdle
		}
	} else {
		c.state = StateJoined
	}
}

// readPump pumps messages from the wire to the hub's dispatcher. It exits on
// the first transport error, which triggers full session teardown.
func (c *Connection) readPump() {
	defer func() {
		c.setState(StateTerminated)
		c.hub.removeConnection(c)
		c.close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()
	limiter := rate.NewLimiter(rate.Limit(c.hub.config.RateLimit), c.hub.config.RateBurst)

	for {
		var msg wire.Message
		if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return
			}
			// A parse failure surfaces from wsjson as a plain error with the
			// connection still usable only if the frame was read; coder/websocket
			// tears the connection down on malformed frames, so treat every
			// read error as terminal and log it.
			c.hub.logger.Debug("Read error", map[string]interface{}{
				"error":         err.Error(),
				"connection_id": c.ID,
			})
			return
		}

		if !limiter.Allow() {
			c.hub.metrics.IncrementCounter("websocket_messages_rate_limited_total", 1)
			c.sendError(wire.ErrCodeRateLimited, "message rate limit exceeded")
			continue
		}

		start := time.Now()
		c.hub.processMessage(c, &msg)
		c.hub.metrics.RecordLatency("websocket_message_process", time.Since(start))
	}
}

// writePump pumps messages from the hub to the wire and pings the peer on the
// configured interval to detect dead connections
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()

	for {
		select {
		case <-c.closed:
			return

		case message := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, c.hub.config.WriteTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.hub.logger.Debug("Write error", map[string]interface{}{
					"error":         err.Error(),
					"connection_id": c.ID,
				})
				return
			}
			c.hub.metrics.IncrementCounter("websocket_messages_sent_total", 1)

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, c.hub.config.WriteTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				c.hub.logger.Debug("Ping failed", map[string]interface{}{
					"error":         err.Error(),
					"connection_id": c.ID,
				})
				return
			}
		}
	}
}

// Send queues a message for delivery. Delivery is best-effort: when the send
// buffer is full the message is dropped and counted, never blocked on.
func (c *Connection) Send(msg *wire.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("Failed to marshal outbound message", map[string]interface{}{
			"error": err.Error(),
			"type":  string(msg.Type),
		})
		return
	}
	c.sendRaw(data)
}

func (c *Connection) sendRaw(data []byte) {
	select {
	case c.send <- data:
	case <-c.closed:
	default:
		c.hub.metrics.IncrementCounter("websocket_messages_dropped_total", 1)
		c.hub.logger.Warn("Dropping message, send buffer full", map[string]interface{}{
			"connection_id": c.ID,
		})
	}
}

// sendError answers the submitter with an error reply; state is left
// untouched and the connection stays open
func (c *Connection) sendError(code int, message string) {
	c.Send(wire.NewErrorMessage(code, message))
}

// close closes the underlying transport exactly once
func (c *Connection) close(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.conn == nil {
			return
		}
		if err := c.conn.Close(status, reason); err != nil {
			c.hub.logger.Debug("Error closing WebSocket connection", map[string]interface{}{
				"error":         err.Error(),
				"connection_id": c.ID,
			})
		}
	})
}
