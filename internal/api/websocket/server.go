// Package websocket implements the realtime synchronization core: the
// connection hub, the session and presence manager, the operation processor,
// the batch scheduler and the version manager. One inbound message is
// processed to completion against a per-document lock before the next touches
// the same document, so document mutation is single-writer by construction.
package websocket

import (
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/canvaslab/canvas-sync/internal/catalog"
	"github.com/canvaslab/canvas-sync/internal/store"
	"github.com/canvaslab/canvas-sync/pkg/observability"
)

// Config tunes the realtime connection layer
type Config struct {
	MaxConnections int           `mapstructure:"max_connections"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`

	BatchFlushInterval time.Duration `mapstructure:"batch_flush_interval"`
	BatchQueueCap      int           `mapstructure:"batch_queue_cap"`
}

// DefaultConfig returns the connection-layer defaults
func DefaultConfig() Config {
	return Config{
		MaxConnections:     1024,
		MaxMessageSize:     1048576,
		SendBuffer:         256,
		PingInterval:       30 * time.Second,
		WriteTimeout:       10 * time.Second,
		RateLimit:          100,
		RateBurst:          200,
		BatchFlushInterval: 50 * time.Millisecond,
		BatchQueueCap:      4096,
	}
}

// Server is the connection hub. It owns the connection map and wires the
// session manager, operation processor, batch scheduler and version manager
// together; handlers receive it rather than reaching for ambient state.
type Server struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	handlers    map[string]MessageHandler

	store     *store.DocumentStore
	sessions  *SessionManager
	processor *Processor
	batcher   *BatchScheduler
	versions  *VersionManager
	catalog   *catalog.Catalog

	config  Config
	logger  observability.Logger
	metrics observability.MetricsClient
}

// NewServer wires the synchronization core together. Call Start to run the
// batch scheduler and Close to tear everything down.
func NewServer(cfg Config, docs *store.DocumentStore, cat *catalog.Catalog, logger observability.Logger, metrics observability.MetricsClient) *Server {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultConfig().MaxMessageSize
		logger.Warn("MaxMessageSize not configured, using default", map[string]interface{}{
			"default_size": cfg.MaxMessageSize,
		})
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultConfig().SendBuffer
	}
	if cfg.BatchFlushInterval <= 0 {
		cfg.BatchFlushInterval = DefaultConfig().BatchFlushInterval
	}

	s := &Server{
		connections: make(map[string]*Connection),
		store:       docs,
		catalog:     cat,
		config:      cfg,
		logger:      logger,
		metrics:     metrics,
	}

	locks := newDocumentLocks()
	s.sessions = NewSessionManager(docs, locks, logger, metrics)
	s.batcher = NewBatchScheduler(cfg.BatchFlushInterval, cfg.BatchQueueCap, s.sessions, logger, metrics)
	s.versions = NewVersionManager(docs, logger, metrics)
	s.processor = NewProcessor(docs, locks, s.sessions, s.batcher, s.versions, logger, metrics)

	s.RegisterHandlers()

	return s
}

// Start runs the batch scheduler
func (s *Server) Start() {
	s.batcher.Start()
}

// HandleWebSocket upgrades an HTTP request to a WebSocket connection and
// starts its read and write pumps
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.ConnectionCount() >= s.config.MaxConnections {
		s.metrics.IncrementCounter("websocket_connections_rejected_total", 1)
		http.Error(w, "Too Many Connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket accept failed", map[string]interface{}{
			"error":       err.Error(),
			"remote_addr": r.RemoteAddr,
		})
		return
	}

	conn.SetReadLimit(s.config.MaxMessageSize)

	connection := newConnection(uuid.New().String(), s, conn)

	s.addConnection(connection)

	go connection.writePump()
	go connection.readPump()

	s.logger.Info("WebSocket connection established", map[string]interface{}{
		"connection_id": connection.ID,
		"remote_addr":   r.RemoteAddr,
	})
}

// ConnectionCount returns the current number of active connections
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// addConnection registers a new connection
func (s *Server) addConnection(conn *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[conn.ID] = conn

	s.metrics.IncrementCounter("websocket_connections_total", 1)
	s.metrics.RecordGauge("websocket_connections_active", float64(len(s.connections)))
}

// removeConnection unregisters a connection and tears down its session
func (s *Server) removeConnection(conn *Connection) {
	s.mu.Lock()
	if _, ok := s.connections[conn.ID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.connections, conn.ID)
	s.metrics.RecordGauge("websocket_connections_active", float64(len(s.connections)))
	s.mu.Unlock()

	s.sessions.Disconnect(conn)

	s.logger.Info("WebSocket connection closed", map[string]interface{}{
		"connection_id": conn.ID,
		"duration":      time.Since(conn.createdAt).String(),
	})
}

// Close gracefully shuts down the server: the batch scheduler flushes its
// remaining queues, then every connection is closed.
func (s *Server) Close() error {
	s.batcher.Stop()

	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.connections))
	for _, conn := range s.connections {
		conns = append(conns, conn)
	}
	s.connections = make(map[string]*Connection)
	s.mu.Unlock()

	for _, conn := range conns {
		conn.close(websocket.StatusGoingAway, "server shutting down")
	}

	return nil
}
