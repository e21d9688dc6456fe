package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"perp-mirror/internal/config"
)

// Server runs the HTTP/WebSocket status API.
type Server struct {
	cfg      config.APIConfig
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	events   <-chan Event
	logger   *slog.Logger
}

// NewServer wires the handler set over the provider and stop controller.
// Events read from the events channel are broadcast to dashboard clients;
// the channel is owned by the engine and closed on engine shutdown.
func NewServer(
	cfg config.APIConfig,
	provider StatusProvider,
	stop StopController,
	events <-chan Event,
	logger *slog.Logger,
) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(provider, stop, cfg, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/status", handlers.HandleStatus)
	mux.HandleFunc("/api/emergency-stop", handlers.HandleEmergencyStop)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		hub:      hub,
		handlers: handlers,
		server:   server,
		events:   events,
		logger:   logger.With("component", "api_server"),
	}
}

// Start runs the hub, the event pump, and the HTTP listener. Blocks until
// the listener stops.
func (s *Server) Start() error {
	go s.hub.Run()
	go s.consumeEvents()

	s.logger.Info("status api listening", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop() error {
	s.logger.Info("stopping status api")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// consumeEvents forwards engine events to the hub until the engine closes
// the channel.
func (s *Server) consumeEvents() {
	if s.events == nil {
		return
	}
	for evt := range s.events {
		s.hub.BroadcastEvent(evt)
	}
}
