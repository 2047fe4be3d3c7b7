// Package api provides HTTP handlers for the relay API.
//
//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ashureev/mentor-relay/internal/chat"
	"github.com/ashureev/mentor-relay/internal/liveevents"
	"github.com/ashureev/mentor-relay/internal/session"
	"github.com/ashureev/mentor-relay/internal/store"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

// EventLister produces live-event listings.
type EventLister interface {
	List(ctx context.Context, q liveevents.Query) (*liveevents.Listing, error)
}

// Deps are the collaborators a Handler serves from.
type Deps struct {
	Chat           *chat.Service
	Sessions       *session.Store
	Reaper         *session.Reaper
	Events         EventLister
	Archive        store.Archive
	AllowedOrigins []string
}

// Handler serves the chat, session and live-events endpoints.
type Handler struct {
	chat           *chat.Service
	sessions       *session.Store
	reaper         *session.Reaper
	events         EventLister
	archive        store.Archive
	allowedOrigins []string
}

// NewHandler creates a Handler. A nil Archive is replaced by store.Noop.
func NewHandler(d Deps) *Handler {
	archive := d.Archive
	if archive == nil {
		archive = store.Noop{}
	}
	return &Handler{
		chat:           d.Chat,
		sessions:       d.Sessions,
		reaper:         d.Reaper,
		events:         d.Events,
		archive:        archive,
		allowedOrigins: d.AllowedOrigins,
	}
}

// RegisterRoutes registers all relay routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Post("/test-post", h.EchoPost)

	r.Post("/chat", h.Chat)
	r.Post("/chat-raw", h.ChatRaw)
	r.Post("/reset", h.Reset)
	r.Post("/heartbeat", h.Heartbeat)
	r.Get("/session/status", h.SessionStatus)
	r.Get("/memory-status", h.MemoryStatus)

	r.Get("/live-events", h.LiveEvents)

	r.Get("/ws/chat", h.ServeChatSocket)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Fail writes the {message, status: "error"} payload the chat endpoints use.
func Fail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"message": message, "status": chat.StatusError})
}

// decodeJSON reads a bounded JSON body into v. An empty body yields io.EOF.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// sessionIDOrDefault maps a blank id to the default session.
func sessionIDOrDefault(id string) string {
	if id == "" {
		return chat.DefaultSessionID
	}
	return id
}
