// Package api exposes the HTTP surface of the server: the WebSocket upgrade
// endpoint, a health endpoint with metric counts and the read-only template
// catalog.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	ws "github.com/canvaslab/canvas-sync/internal/api/websocket"
	"github.com/canvaslab/canvas-sync/internal/catalog"
	"github.com/canvaslab/canvas-sync/internal/store"
	"github.com/canvaslab/canvas-sync/pkg/observability"
)

// Config configures the HTTP listener
type Config struct {
	ListenAddress string        `mapstructure:"listen_address"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
}

// Server is the HTTP front of the sync core
type Server struct {
	httpServer *http.Server
	wsServer   *ws.Server
	store      *store.DocumentStore
	catalog    *catalog.Catalog
	logger     observability.Logger
	metrics    observability.MetricsClient
	startTime  time.Time
}

// NewServer builds the router and HTTP server around the websocket core
func NewServer(cfg Config, wsServer *ws.Server, docs *store.DocumentStore, cat *catalog.Catalog, logger observability.Logger, metrics observability.MetricsClient) *Server {
	s := &Server{
		wsServer:  wsServer,
		store:     docs,
		catalog:   cat,
		logger:    logger,
		metrics:   metrics,
		startTime: time.Now(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws", wsServer.HandleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/templates", s.handleTemplates).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// ListenAndServe starts the websocket core and blocks serving HTTP until
// Shutdown is called
func (s *Server) ListenAndServe() error {
	s.wsServer.Start()

	s.logger.Info("HTTP server listening", map[string]interface{}{
		"address": s.httpServer.Addr,
	})
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting new connections, closes live ones and flushes the
// batch scheduler
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if cerr := s.wsServer.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"status":      "ok",
		"uptime":      time.Since(s.startTime).String(),
		"connections": s.wsServer.ConnectionCount(),
		"documents":   s.store.Count(),
		"counters":    s.metrics.Counters(),
	}
	s.writeJSON(w, payload)
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.catalog.List())
}

func (s *Server) writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
