package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/ashureev/mentor-relay/internal/chat"
)

type chatRequest struct {
	Message     string `json:"message"`
	SessionID   string `json:"sessionId"`
	ContentType string `json:"contentType"`
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

// chatFailure is the 500 body for faults that escaped the chat service.
type chatFailure struct {
	Message      string `json:"message"`
	Status       string `json:"status"`
	SessionID    string `json:"sessionId"`
	ErrorType    string `json:"error_type"`
	ErrorDetails string `json:"error_details"`
}

// Chat handles POST /chat.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body is empty")
		}
		Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	id := sessionIDOrDefault(req.SessionID)

	reply, fault := h.handleChat(r, chat.Request{Message: req.Message, SessionID: id, ContentType: req.ContentType})
	if fault != nil {
		JSON(w, http.StatusInternalServerError, chatFailure{
			Message:      fmt.Sprintf("Server error: %v", fault),
			Status:       chat.StatusError,
			SessionID:    id,
			ErrorType:    fmt.Sprintf("%T", fault),
			ErrorDetails: fmt.Sprint(fault),
		})
		return
	}
	JSON(w, http.StatusOK, reply)
}

// ChatRaw handles POST /chat-raw: an untyped body for diagnostics. Every
// outcome, including faults, is a 200 with a status field.
func (h *Handler) ChatRaw(w http.ResponseWriter, r *http.Request) {
	var data map[string]any
	if err := decodeJSON(w, r, &data); err != nil {
		JSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Server error: %v", err), "status": chat.StatusError})
		return
	}

	message, _ := data["message"].(string)
	if message == "" {
		JSON(w, http.StatusOK, map[string]string{"message": chat.NoMessageReply, "status": chat.StatusError})
		return
	}
	id, _ := data["sessionId"].(string)
	contentType, _ := data["contentType"].(string)

	reply, fault := h.handleChat(r, chat.Request{Message: message, SessionID: sessionIDOrDefault(id), ContentType: contentType})
	if fault != nil {
		JSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Server error: %v", fault), "status": chat.StatusError})
		return
	}
	JSON(w, http.StatusOK, reply)
}

// handleChat runs the chat service and converts an escaped panic into a fault.
func (h *Handler) handleChat(r *http.Request, req chat.Request) (reply chat.Reply, fault any) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Chat request panicked",
				"session_id", req.SessionID,
				"panic", rec,
				"stack", string(debug.Stack()))
			fault = rec
		}
	}()
	return h.chat.HandleChat(r.Context(), req), nil
}

// Reset handles POST /reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	id := sessionIDOrDefault(req.SessionID)

	if !h.sessions.Evict(id) {
		JSON(w, http.StatusOK, map[string]string{
			"message": "No conversation found with this session ID",
			"status":  chat.StatusError,
		})
		return
	}

	slog.Info("Session reset", "session_id", id)
	if err := h.archive.RecordEviction(r.Context(), id, "reset", h.sessions.Now()); err != nil {
		slog.Warn("Failed to archive session reset", "session_id", id, "error", err)
	}
	JSON(w, http.StatusOK, map[string]string{
		"message": "Conversation and memory cleared",
		"status":  chat.StatusSuccess,
	})
}
