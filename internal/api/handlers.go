package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"perp-mirror/internal/config"
)

// Handlers serves the status endpoints and the dashboard WebSocket.
type Handlers struct {
	provider StatusProvider
	stop     StopController
	cfg      config.APIConfig
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(provider StatusProvider, stop StopController, cfg config.APIConfig, hub *Hub, logger *slog.Logger) *Handlers {
	return &Handlers{
		provider: provider,
		stop:     stop,
		cfg:      cfg,
		hub:      hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return isOriginAllowed(r.Header.Get("Origin"), cfg, r.Host)
			},
		},
		logger: logger.With("component", "api_handlers"),
	}
}

// isOriginAllowed decides whether a browser origin may use the dashboard
// socket. Non-browser clients send no Origin and always pass. With an
// allowlist configured only listed origins pass; otherwise same-host and
// localhost origins do.
func isOriginAllowed(origin string, cfg config.APIConfig, reqHost string) bool {
	if origin == "" {
		return true
	}
	if len(cfg.AllowedOrigins) > 0 {
		for _, allowed := range cfg.AllowedOrigins {
			if strings.EqualFold(origin, allowed) {
				return true
			}
		}
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return strings.EqualFold(u.Host, reqHost)
}

// HandleHealth is the liveness probe.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandleStatus returns the full engine state.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := h.provider.Snapshot(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		h.logger.Error("snapshot encode failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// HandleEmergencyStop toggles the kill switch: POST {"active": true|false}.
func (h *Handlers) HandleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Active bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	h.stop.SetEmergencyStop(req.Active)
	h.logger.Warn("emergency stop toggled", "active", req.Active, "remote", r.RemoteAddr)
	h.hub.BroadcastEvent(NewStopEvent(req.Active, "api"))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"active": h.stop.EmergencyStopActive()})
}

// HandleWebSocket upgrades the connection and seeds the client with a full
// snapshot before the event stream takes over.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := NewClient(h.hub, conn)

	data, err := json.Marshal(Event{
		Type:      EventTypeSnapshot,
		Timestamp: time.Now(),
		Data:      h.provider.Snapshot(r.Context()),
	})
	if err != nil {
		h.logger.Error("initial snapshot marshal failed", "error", err)
		return
	}
	select {
	case client.send <- data:
	default:
		h.logger.Warn("initial snapshot dropped, client send buffer full")
	}
}
