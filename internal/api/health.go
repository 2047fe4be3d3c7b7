package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/mentor-relay/internal/chat"
)

// Root handles GET /.
func (h *Handler) Root(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"message": "Welcome to the Learning Assistant API"})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"timestamp":       h.sessions.Now().Format(time.RFC3339Nano),
		"active_sessions": h.sessions.Stats().Agents,
		"cors_enabled":    true,
	})
}

// EchoPost handles POST /test-post: it echoes any JSON body back so clients
// can check basic POST connectivity.
func (h *Handler) EchoPost(w http.ResponseWriter, r *http.Request) {
	var data any
	if err := decodeJSON(w, r, &data); err != nil {
		slog.Warn("Test post rejected", "error", err)
		JSON(w, http.StatusOK, map[string]string{"error": err.Error(), "status": chat.StatusError})
		return
	}
	slog.Debug("Test post received", "data", data)
	JSON(w, http.StatusOK, map[string]any{"received": data, "status": chat.StatusSuccess})
}
