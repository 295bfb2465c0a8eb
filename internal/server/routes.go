package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utkarsh2338/NexMeet/internal/config"
	"github.com/utkarsh2338/NexMeet/internal/meeting"
	"github.com/utkarsh2338/NexMeet/internal/protocol"
	"github.com/utkarsh2338/NexMeet/internal/signaling"
	"github.com/utkarsh2338/NexMeet/internal/version"
)

// Pinger reports whether the durable store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Routes builds the HTTP handler for the signaling server.
func Routes(hub *signaling.Hub, cfg *config.Server, store Pinger, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ServeWs(hub, cfg, logger))
	mux.HandleFunc("GET /health", healthHandler(hub, store))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/ice-servers", iceServersHandler(cfg))
	mux.HandleFunc("GET /api/meetings/{code}", meetingHandler(hub, logger))
	return mux
}

// ServeWs returns an http.HandlerFunc that upgrades websocket requests and
// hands the connection to the hub. The wire codec is picked with ?codec=.
func ServeWs(hub *signaling.Hub, cfg *config.Server, logger *slog.Logger) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin.
			return origin == "" || cfg.OriginAllowed(origin)
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		codec, err := protocol.CodecFor(r.URL.Query().Get("codec"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
			return
		}

		if c := hub.Attach(conn, codec); c != nil {
			logger.Debug("websocket connected", "conn", c.ID, "remote", r.RemoteAddr, "codec", codec.Name())
		}
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Clients int    `json:"clients"`
	Rooms   int    `json:"rooms"`
	Store   string `json:"store"`
}

func healthHandler(hub *signaling.Hub, store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:  "ok",
			Version: version.Version,
			Clients: hub.ClientCount(),
			Rooms:   hub.RoomCount(),
			Store:   "ok",
		}
		status := http.StatusOK

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			// Rooms keep working without the store, so this is degraded, not down.
			resp.Status = "degraded"
			resp.Store = err.Error()
		}
		writeJSON(w, status, resp)
	}
}

func iceServersHandler(cfg *config.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, map[string]any{"iceServers": cfg.ICEServers()})
	}
}

func meetingHandler(hub *signaling.Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.PathValue("code")
		info, err := hub.MeetingInfo(r.Context(), code)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, info)
		case errors.Is(err, meeting.ErrNotFound):
			writeJSON(w, http.StatusNotFound, protocol.ErrorPayload{Code: meeting.CodeNotFound, Message: "meeting not found"})
		default:
			logger.Error("meeting lookup failed", "room", code, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, protocol.ErrorPayload{Code: meeting.CodeInternal, Message: "meeting store unavailable"})
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
