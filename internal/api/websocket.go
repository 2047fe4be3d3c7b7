package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/ashureev/mentor-relay/internal/chat"
	"github.com/ashureev/mentor-relay/internal/middleware"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
)

const (
	frameChat      = "chat"
	frameHeartbeat = "heartbeat"
	frameError     = "error"

	wsReadLimit = 64 << 10
)

// wsFrame is an inbound socket message.
type wsFrame struct {
	Type        string `json:"type"`
	Message     string `json:"message,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

type wsChatReply struct {
	Type string `json:"type"`
	chat.Reply
}

type wsHeartbeatReply struct {
	Type string `json:"type"`
	heartbeatResponse
}

type wsErrorReply struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ServeChatSocket handles GET /ws/chat: the chat and heartbeat operations
// carried as JSON frames over one connection.
func (h *Handler) ServeChatSocket(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin != "" && !middleware.OriginAllowed(h.allowedOrigins, origin) {
		slog.Warn("WebSocket origin rejected", "origin", origin)
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	ws.SetReadLimit(wsReadLimit)

	connID := uuid.NewString()
	slog.Info("Chat socket connected", "conn_id", connID, "ip", r.RemoteAddr)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "bye"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "conn_id", connID)
		}
		slog.Info("Chat socket closed", "conn_id", connID)
	}()

	ctx := r.Context()
	for {
		var frame wsFrame
		if err := wsjson.Read(ctx, ws, &frame); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed by client", "conn_id", connID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "conn_id", connID)
			}
			return
		}

		if err := wsjson.Write(ctx, ws, h.dispatchFrame(ctx, connID, frame)); err != nil {
			slog.Warn("WebSocket write error", "error", err, "conn_id", connID)
			return
		}
	}
}

func (h *Handler) dispatchFrame(ctx context.Context, connID string, frame wsFrame) (out any) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Chat socket frame panicked",
				"conn_id", connID,
				"panic", rec,
				"stack", string(debug.Stack()))
			out = wsErrorReply{Type: frameError, Status: chat.StatusError, Message: "internal error"}
		}
	}()

	id := sessionIDOrDefault(frame.SessionID)
	switch frame.Type {
	case frameChat:
		reply := h.chat.HandleChat(ctx, chat.Request{Message: frame.Message, SessionID: id, ContentType: frame.ContentType})
		return wsChatReply{Type: frameChat, Reply: reply}
	case frameHeartbeat:
		return wsHeartbeatReply{Type: frameHeartbeat, heartbeatResponse: h.heartbeat(id)}
	default:
		return wsErrorReply{Type: frameError, Status: chat.StatusError, Message: "unknown frame type: " + frame.Type}
	}
}
