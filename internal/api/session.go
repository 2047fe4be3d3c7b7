package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/mentor-relay/internal/chat"
)

type heartbeatResponse struct {
	Status        string `json:"status"`
	SessionID     string `json:"sessionId"`
	ServerTime    string `json:"serverTime"`
	HasAgent      bool   `json:"hasAgent"`
	HasHistory    bool   `json:"hasHistory"`
	HistoryLength int    `json:"historyLength"`
}

type sessionStatusResponse struct {
	SessionID             string   `json:"sessionId"`
	Exists                bool     `json:"exists"`
	HasHistory            bool     `json:"hasHistory"`
	HistoryLength         int      `json:"historyLength"`
	LastActivity          *string  `json:"lastActivity"`
	LastHeartbeat         *string  `json:"lastHeartbeat"`
	MinutesSinceActivity  *float64 `json:"minutesSinceActivity,omitempty"`
	MinutesSinceHeartbeat *float64 `json:"minutesSinceHeartbeat,omitempty"`
	IsActive              bool     `json:"isActive"`
}

type timeoutSettings struct {
	SessionTimeoutHours     float64 `json:"session_timeout_hours"`
	HeartbeatTimeoutMinutes float64 `json:"heartbeat_timeout_minutes"`
}

type memoryStatusResponse struct {
	TotalSessions    int             `json:"total_sessions"`
	ActiveAgents     int             `json:"active_agents"`
	ActiveHeartbeats int             `json:"active_heartbeats"`
	SessionIDs       []string        `json:"session_ids"`
	CleanedSessions  int             `json:"cleaned_sessions"`
	TimeoutSettings  timeoutSettings `json:"timeout_settings"`
}

type sessionMemoryResponse struct {
	HasHistory    bool `json:"has_history"`
	HistoryLength int  `json:"history_length"`
	HasAgent      bool `json:"has_agent"`
	HasHeartbeat  bool `json:"has_heartbeat"`
	ArchivedTurns *int `json:"archived_turns,omitempty"`
}

// Heartbeat handles POST /heartbeat.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		JSON(w, http.StatusOK, map[string]string{"status": chat.StatusError, "message": err.Error()})
		return
	}
	JSON(w, http.StatusOK, h.heartbeat(sessionIDOrDefault(req.SessionID)))
}

func (h *Handler) heartbeat(id string) heartbeatResponse {
	now := h.sessions.Touch(id)
	st, _ := h.sessions.Snapshot(id)
	return heartbeatResponse{
		Status:        chat.StatusSuccess,
		SessionID:     id,
		ServerTime:    now.Format(time.RFC3339Nano),
		HasAgent:      st.HasAgent(),
		HasHistory:    st.HistoryLength > 0,
		HistoryLength: st.HistoryLength,
	}
}

// SessionStatus handles GET /session/status.
func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	id := sessionIDOrDefault(r.URL.Query().Get("session_id"))
	now := h.sessions.Now()

	resp := sessionStatusResponse{SessionID: id}
	if st, ok := h.sessions.Snapshot(id); ok {
		resp.Exists = st.HasAgent()
		resp.HistoryLength = st.HistoryLength
		resp.HasHistory = st.HistoryLength > 0
		if !st.LastActivity.IsZero() {
			resp.LastActivity = isoTime(st.LastActivity)
			resp.MinutesSinceActivity = minutesSince(now, st.LastActivity)
		}
		if st.HasHeartbeat() {
			resp.LastHeartbeat = isoTime(st.LastHeartbeat)
			resp.MinutesSinceHeartbeat = minutesSince(now, st.LastHeartbeat)
			resp.IsActive = now.Sub(st.LastHeartbeat) < h.sessions.HeartbeatTTL()
		}
	}
	JSON(w, http.StatusOK, resp)
}

// MemoryStatus handles GET /memory-status. Without a session id it sweeps
// first and reports store-wide figures.
func (h *Handler) MemoryStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	if id == "" {
		evicted := h.reaper.SweepNow()
		stats := h.sessions.Stats()
		JSON(w, http.StatusOK, memoryStatusResponse{
			TotalSessions:    stats.Sessions,
			ActiveAgents:     stats.Agents,
			ActiveHeartbeats: stats.Heartbeats,
			SessionIDs:       stats.BindingKeys,
			CleanedSessions:  len(evicted),
			TimeoutSettings: timeoutSettings{
				SessionTimeoutHours:     h.sessions.ActivityTTL().Hours(),
				HeartbeatTimeoutMinutes: h.sessions.HeartbeatTTL().Minutes(),
			},
		})
		return
	}

	st, _ := h.sessions.Snapshot(id)
	resp := sessionMemoryResponse{
		HasHistory:    st.HistoryLength > 0,
		HistoryLength: st.HistoryLength,
		HasAgent:      st.HasAgent(),
		HasHeartbeat:  st.HasHeartbeat(),
	}
	if n, err := h.archive.CountTurns(r.Context(), id); err != nil {
		slog.Warn("Failed to count archived turns", "session_id", id, "error", err)
	} else {
		resp.ArchivedTurns = &n
	}
	JSON(w, http.StatusOK, resp)
}

func isoTime(t time.Time) *string {
	s := t.Format(time.RFC3339Nano)
	return &s
}

func minutesSince(now, t time.Time) *float64 {
	m := now.Sub(t).Minutes()
	return &m
}
