// Package operator implements the HTTP/WebSocket facade over the Position
// Controller: createPosition/listPositions/getPosition/editPosition/
// closePosition/shutdown as REST routes, a market-search helper over
// reference data for the create flow, a live event feed, and a Prometheus
// metrics endpoint.
package operator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls the operator HTTP server.
type Config struct {
	Port           int
	AllowedOrigins []string
}

// Server runs the operator-facing HTTP/WS API.
type Server struct {
	cfg      Config
	hub      *Hub
	handlers *handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer wires routes for every operation plus the live event feed and
// metrics endpoint. hub must be the same Hub instance passed as the
// controller's OperatorSink, so notifications sent during CreatePosition
// (etc.) reach the same broadcaster this server's /ws endpoint serves.
// shutdown may be nil if POST /api/shutdown should return 501 (e.g. in
// tests). refdataClient may be nil if the market-search helper should
// return 501; the core never depends on it either way.
func NewServer(cfg Config, hub *Hub, controller Controller, shutdown ShutdownFunc, refdataClient RefdataClient, logger *slog.Logger) *Server {
	h := newHandlers(controller, shutdown, hub, refdataClient, AllowedOrigins(cfg.AllowedOrigins), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
	mux.HandleFunc("/ws", h.handleWebSocket)
	mux.HandleFunc("/api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handleShutdown(w, r)
	})
	mux.HandleFunc("/api/markets/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handleMarketSearch(w, r)
	})
	mux.HandleFunc("/api/positions", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			h.handleCreatePosition(w, r)
		case http.MethodGet:
			h.handleListPositions(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/positions/", func(w http.ResponseWriter, r *http.Request) {
		idStr := strings.TrimPrefix(r.URL.Path, "/api/positions/")
		id, err := uuid.Parse(idStr)
		if err != nil {
			http.Error(w, "invalid position id", http.StatusBadRequest)
			return
		}
		switch r.Method {
		case http.MethodGet:
			h.handleGetPosition(w, r, id)
		case http.MethodPatch:
			h.handleEditPosition(w, r, id)
		case http.MethodDelete:
			h.handleClosePosition(w, r, id)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		hub:      hub,
		handlers: h,
		server:   srv,
		logger:   logger.With("component", "operator-server"),
	}
}

// Hub exposes the live-feed broadcaster so the caller can pass it as the
// controller's OperatorSink before calling Start.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start runs the hub and blocks serving HTTP until the server is stopped.
func (s *Server) Start() error {
	go s.hub.Run()
	s.logger.Info("operator server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("operator server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping operator server")
	return s.server.Shutdown(ctx)
}
