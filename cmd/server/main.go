package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/canvaslab/canvas-sync/internal/api"
	ws "github.com/canvaslab/canvas-sync/internal/api/websocket"
	"github.com/canvaslab/canvas-sync/internal/catalog"
	"github.com/canvaslab/canvas-sync/internal/config"
	"github.com/canvaslab/canvas-sync/internal/store"
	"github.com/canvaslab/canvas-sync/pkg/observability"
)

func main() {
	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := observability.NewStandardLoggerWithLevel("server", logLevel(cfg.Logging.Level))

	metrics := observability.NewMetricsClient()
	defer func() {
		_ = metrics.Close()
	}()

	cat, err := catalog.Load(cfg.Catalog.Path, logger.WithPrefix("catalog"))
	if err != nil {
		logger.Fatal("Failed to load template catalog", map[string]interface{}{
			"error": err.Error(),
			"path":  cfg.Catalog.Path,
		})
	}

	docs := store.New(cfg.Store, logger.WithPrefix("store"), metrics)

	wsServer := ws.NewServer(ws.Config{
		MaxConnections:     cfg.WebSocket.MaxConnections,
		MaxMessageSize:     cfg.WebSocket.MaxMessageSize,
		SendBuffer:         cfg.WebSocket.SendBuffer,
		PingInterval:       cfg.WebSocket.PingInterval,
		WriteTimeout:       cfg.WebSocket.WriteTimeout,
		RateLimit:          cfg.WebSocket.RateLimit,
		RateBurst:          cfg.WebSocket.RateBurst,
		BatchFlushInterval: cfg.Batch.FlushInterval,
		BatchQueueCap:      cfg.Batch.QueueCap,
	}, docs, cat, logger.WithPrefix("websocket"), metrics)

	apiServer := api.NewServer(api.Config{
		ListenAddress: cfg.API.ListenAddress,
		ReadTimeout:   cfg.API.ReadTimeout,
		WriteTimeout:  cfg.API.WriteTimeout,
		IdleTimeout:   cfg.API.IdleTimeout,
	}, wsServer, docs, cat, logger.WithPrefix("api"), metrics)

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.ListenAndServe()
	}()

	logger.Info("Canvas sync server started", map[string]interface{}{
		"address":     cfg.API.ListenAddress,
		"environment": cfg.Environment,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Shutdown signal received", map[string]interface{}{
			"signal": sig.String(),
		})
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error", map[string]interface{}{
			"error": err.Error(),
		})
	}

	logger.Info("Server stopped", nil)
}

func logLevel(level string) observability.LogLevel {
	switch level {
	case "debug":
		return observability.LogLevelDebug
	case "warn":
		return observability.LogLevelWarn
	case "error":
		return observability.LogLevelError
	default:
		return observability.LogLevelInfo
	}
}
