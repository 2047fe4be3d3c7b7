//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/mentor-relay/internal/agent"
	"github.com/ashureev/mentor-relay/internal/catalog"
	"github.com/ashureev/mentor-relay/internal/chat"
	"github.com/ashureev/mentor-relay/internal/liveevents"
	"github.com/ashureev/mentor-relay/internal/session"
	"github.com/ashureev/mentor-relay/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoAgent struct{ prefix string }

func (a echoAgent) Invoke(_ context.Context, message string) (agent.Result, error) {
	return agent.AssistantResult(a.prefix + message), nil
}

type failingAgent struct{}

func (failingAgent) Invoke(context.Context, string) (agent.Result, error) {
	return nil, errors.New("model unavailable")
}

type fakeAgents struct {
	primary  agent.Capability
	fallback agent.Capability
}

func (f fakeAgents) New(contentType string) agent.Capability {
	if f.primary != nil {
		return f.primary
	}
	if contentType == "" {
		contentType = "general"
	}
	return echoAgent{prefix: contentType + ": "}
}

func (f fakeAgents) Fallback() agent.Capability {
	if f.fallback != nil {
		return f.fallback
	}
	return echoAgent{prefix: "fallback: "}
}

type fakeEvents struct {
	listing *liveevents.Listing
	err     error
	got     liveevents.Query
}

func (f *fakeEvents) List(_ context.Context, q liveevents.Query) (*liveevents.Listing, error) {
	f.got = q
	return f.listing, f.err
}

type countingArchive struct {
	store.Noop
	mu        sync.Mutex
	evictions []string
}

func (c *countingArchive) RecordEviction(_ context.Context, id, reason string, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictions = append(c.evictions, id+":"+reason)
	return nil
}

func (c *countingArchive) CountTurns(context.Context, string) (int, error) {
	return 3, nil
}

type testServer struct {
	router   chi.Router
	sessions *session.Store
	events   *fakeEvents
	archive  *countingArchive
	clock    *time.Time
}

func newTestServer(t *testing.T, agents fakeAgents) *testServer {
	t.Helper()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ts := &testServer{clock: &now, events: &fakeEvents{}, archive: &countingArchive{}}
	ts.sessions = session.NewStore(agents, session.WithClock(func() time.Time { return *ts.clock }))
	reaper := session.NewReaper(ts.sessions, 1000, nil)

	h := NewHandler(Deps{
		Chat:           chat.NewService(ts.sessions, reaper, agents, ts.archive),
		Sessions:       ts.sessions,
		Reaper:         reaper,
		Events:         ts.events,
		Archive:        ts.archive,
		AllowedOrigins: []string{"http://localhost:3000"},
	})
	ts.router = chi.NewRouter()
	h.RegisterRoutes(ts.router)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var got map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got), w.Body.String())
	}
	return w, got
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]string{"foo": "bar"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"foo":"bar"}`, w.Body.String())
}

func TestRootAndHealth(t *testing.T) {
	ts := newTestServer(t, fakeAgents{})

	_, got := ts.do(t, http.MethodGet, "/", "")
	assert.Equal(t, "Welcome to the Learning Assistant API", got["message"])

	ts.do(t, http.MethodPost, "/chat", `{"message":"hi","sessionId":"s1"}`)
	w, got := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", got["status"])
	assert.Equal(t, float64(1), got["active_sessions"])
	assert.Equal(t, true, got["cors_enabled"])
}

func TestEchoPost(t *testing.T) {
	ts := newTestServer(t, fakeAgents{})

	w, got := ts.do(t, http.MethodPost, "/test-post", `{"ping":"pong","n":2}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{
		"received": map[string]any{"ping": "pong", "n": float64(2)},
		"status":   "success",
	}, got)

	w, got = ts.do(t, http.MethodPost, "/test-post", `{broken`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "error", got["status"])
	assert.Contains(t, got["error"], "invalid JSON body")
}

func TestChatEndpoint(t *testing.T) {
	ts := newTestServer(t, fakeAgents{})

	w, got := ts.do(t, http.MethodPost, "/chat", `{"message":"find python books","sessionId":"s1","contentType":"Books"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{
		"message":     "books: find python books",
		"status":      "success",
		"sessionId":   "s1",
		"searchedApi": true,
	}, got)

	st, ok := ts.sessions.Snapshot("s1")
	require.True(t, ok)
	assert.Equal(t, 2, st.HistoryLength)
}

func TestChatEndpointDefaultsSession(t *testing.T) {
	ts := newTestServer(t, fakeAgents{})

	_, got := ts.do(t, http.MethodPost, "/chat", `{"message":"hello"}`)
	assert.Equal(t, "default", got["sessionId"])
	assert.Equal(t, "general: hello", got["message"])
}

func TestChatEndpointFallback(t *testing.T) {
	ts := newTestServer(t, fakeAgents{primary: failingAgent{}})

	_, got := ts.do(t, http.MethodPost, "/chat", `{"message":"hello","sessionId":"s1"}`)
	assert.Equal(t, "success", got["status"])
	assert.Equal(t, "fallback: hello", got["message"])
}

func TestChatEndpointBothAgentsFail(t *testing.T) {
	ts := newTestServer(t, fakeAgents{primary: failingAgent{}, fallback: failingAgent{}})

	w, got := ts.do(t, http.MethodPost, "/chat", `{"message":"hello","sessionId":"s1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "error", got["status"])
	assert.Contains(t, got["message"], "model unavailable")
}

func TestChatEndpointRejectsBadBodies(t *testing.T) {
	ts := newTestServer(t, fakeAgents{})

	for _, body := range []string{"", "{not json"} {
		w, got := ts.do(t, http.MethodPost, "/chat", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "error", got["status"], body)
	}
}

func TestChatEndpointEmptyMessage(t *testing.T) {
	ts := newTestServer(t, fakeAgents{})

	w, got := ts.do(t, http.MethodPost, "/chat", `{"message":"  ","sessionId":"s1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "No message provided", got["message"])
	assert.Equal(t, "error", got["status"])
}

func TestChatEndpointEscapedPanic(t *testing.T) {
	h := NewHandler(Deps{Chat: chat.NewService(nil, nil, nil, nil)})
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi","sessionId":"s9"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var got chatFailure
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "error", got.Status)
	assert.Equal(t, "s9", got.SessionID)
	assert.True(t, strings.HasPrefix(got.Message, "Server error: "))
	assert.NotEmpty(t, got.ErrorType)
	assert.NotEmpty(t, got.ErrorDetails)
}

func TestChatRaw(t *testing.T) {
	ts := newTestServer(t, fakeAgents{})

	w, got := ts.do(t, http.MethodPost, "/chat-raw", `{"sessionId":"s1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"message": "No message provided", "status": "error"}, got)

	w, got = ts.do(t, http.MethodPost, "/chat-raw", `{"message":"hi","sessionId":"s1","contentType":"videos"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "videos: hi", got["message"])
	assert.Equal(t, "success", got["status"])

	w, got = ts.do(t, http.MethodPost, "/chat-raw", `[1,2`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "error", got["status"])
}

func TestReset(t *testing.T) {
	ts := newTestServer(t, fakeAgents{})

	_, got := ts.do(t, http.MethodPost, "/reset", `{"sessionId":"s1"}`)
	assert.Equal(t, "error", got["status"])
	assert.Equal(t, "No conversation found with this session ID", got["message"])

	ts.do(t, http.MethodPost, "/chat", `{"message":"hi","sessionId":"s1"}`)
	_, got = ts.do(t, http.MethodPost, "/reset", `{"sessionId":"s1"}`)
	assert.Equal(t, "success", got["status"])
	assert.Equal(t, "Conversation and memory cleared", got["message"])

	_, exists := ts.sessions.Snapshot("s1")
	assert.False(t, exists)
	assert.Equal(t, []string{"s1:reset"}, ts.archive.evictions)
}

func TestHeartbeat(t *testing.T) {
	ts := newTestServer(t, fakeAgents{})
	ts.do(t, http.MethodPost, "/chat", `{"message":"hi","sessionId":"s1"}`)

	_, got := ts.do(t, http.MethodPost, "/heartbeat", `{"sessionId":"s1"}`)
	assert.Equal(t, "success", got["status"])
	assert.Equal(t, "s1", got["sessionId"])
	assert.Equal(t, true, got["hasAgent"])
	assert.Equal(t, true, got["hasHistory"])
	assert.Equal(t, float64(2), got["historyLength"])
	assert.Equal(t, ts.clock.Format(time.RFC3339Nano), got["serverTime"])

	st, _ := ts.sessions.Snapshot("s1")
	assert.True(t, st.HasHeartbeat())
}

func TestHeartbeatUnknownSessionCreatesRecord(t *testing.T) {
	ts := newTestServer(t, fakeAgents{})

	_, got := ts.do(t, http.MethodPost, "/heartbeat", `{"sessionId":"fresh"}`)
	assert.Equal(t, "success", got["status"])
	assert.Equal(t, false, got["hasAgent"])
	assert.Equal(t, float64(0), got["historyLength"])
}

func TestSessionStatus(t *testing.T) {
	ts := newTestServer(t, fakeAgents{})

	_, got := ts.do(t, http.MethodGet, "/session/status?session_id=nobody", "")
	assert.Equal(t, false, got["exists"])
	assert.Nil(t, got["lastActivity"])
	assert.Nil(t, got["lastHeartbeat"])
	assert.NotContains(t, got, "minutesSinceActivity")
	assert.Equal(t, false, got["isActive"])

	ts.do(t, http.MethodPost, "/chat", `{"message":"hi","sessionId":"s1"}`)
	ts.do(t, http.MethodPost, "/heartbeat", `{"sessionId":"s1"}`)
	*ts.clock = ts.clock.Add(2 * time.Minute)

	_, got = ts.do(t, http.MethodGet, "/session/status?session_id=s1", "")
	assert.Equal(t, true, got["exists"])
	assert.Equal(t, true, got["hasHistory"])
	assert.Equal(t, float64(2), got["historyLength"])
	assert.InDelta(t, 2.0, got["minutesSinceActivity"], 0.001)
	assert.InDelta(t, 2.0, got["minutesSinceHeartbeat"], 0.001)
	assert.Equal(t, true, got["isActive"])

	*ts.clock = ts.clock.Add(4 * time.Minute)
	_, got = ts.do(t, http.MethodGet, "/session/status?session_id=s1", "")
	assert.Equal(t, false, got["isActive"])
}

func TestMemoryStatusAggregateSweeps(t *testing.T) {
	ts := newTestServer(t, fakeAgents{})
	ts.do(t, http.MethodPost, "/chat", `{"message":"hi","sessionId":"old"}`)
	*ts.clock = ts.clock.Add(31 * time.Minute)
	ts.do(t, http.MethodPost, "/chat", `{"message":"hi","sessionId":"new","contentType":"books"}`)
	ts.do(t, http.MethodPost, "/heartbeat", `{"sessionId":"new"}`)

	_, got := ts.do(t, http.MethodGet, "/memory-status", "")
	assert.Equal(t, float64(1), got["cleaned_sessions"])
	assert.Equal(t, float64(1), got["total_sessions"])
	assert.Equal(t, float64(1), got["active_agents"])
	assert.Equal(t, float64(1), got["active_heartbeats"])
	assert.Equal(t, []any{"new_books"}, got["session_ids"])
	assert.Equal(t, map[string]any{
		"session_timeout_hours":     0.5,
		"heartbeat_timeout_minutes": float64(5),
	}, got["timeout_settings"])
}

func TestMemoryStatusSingleSession(t *testing.T) {
	ts := newTestServer(t, fakeAgents{})
	ts.do(t, http.MethodPost, "/chat", `{"message":"hi","sessionId":"s1"}`)

	_, got := ts.do(t, http.MethodGet, "/memory-status?session_id=s1", "")
	assert.Equal(t, map[string]any{
		"has_history":    true,
		"history_length": float64(2),
		"has_agent":      true,
		"has_heartbeat":  true,
		"archived_turns": float64(3),
	}, got)
}

func TestLiveEvents(t *testing.T) {
	ts := newTestServer(t, fakeAgents{})
	ts.events.listing = &liveevents.Listing{
		Events:     []liveevents.Event{{ID: "e1", Title: "Go Concurrency"}},
		Pagination: liveevents.Pagination{Page: 2, PageSize: 5, TotalPages: 3, TotalEvents: 11, HasNext: true, HasPrev: true},
	}

	w, got := ts.do(t, http.MethodGet, "/live-events?page=2&page_size=5&search=go", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, liveevents.Query{Page: 2, PageSize: 5, Search: "go"}, ts.events.got)
	assert.Equal(t, "success", got["status"])
	events, ok := got["events"].([]any)
	require.True(t, ok)
	require.Len(t, events, 1)
	assert.Equal(t, "Go Concurrency", events[0].(map[string]any)["title"])
	assert.Equal(t, float64(11), got["pagination"].(map[string]any)["total_events"])
}

func TestLiveEventsDefaults(t *testing.T) {
	ts := newTestServer(t, fakeAgents{})
	ts.events.listing = &liveevents.Listing{Events: []liveevents.Event{}}

	ts.do(t, http.MethodGet, "/live-events", "")
	assert.Equal(t, liveevents.Query{Page: 1, PageSize: liveevents.DefaultPageSize}, ts.events.got)
}

func TestLiveEventsErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"unauthorized", fmt.Errorf("page 1: %w", catalog.ErrUnauthorized), "Authentication failed"},
		{"upstream", errors.New("catalog returned 502"), "catalog returned 502"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, fakeAgents{})
			ts.events.err = tt.err

			w, got := ts.do(t, http.MethodGet, "/live-events?page=3&page_size=7", "")
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "error", got["status"])
			assert.Equal(t, tt.message, got["message"])
			assert.Equal(t, []any{}, got["events"])
			assert.Equal(t, map[string]any{
				"page": float64(3), "page_size": float64(7),
				"total_pages": float64(0), "total_events": float64(0),
				"has_next": false, "has_prev": false,
			}, got["pagination"])
		})
	}
}

func TestLiveEventsBadPage(t *testing.T) {
	ts := newTestServer(t, fakeAgents{})

	w, got := ts.do(t, http.MethodGet, "/live-events?page=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "error", got["status"])
	assert.Equal(t, "page must be an integer", got["message"])
}

func TestDecodeJSONBodyLimit(t *testing.T) {
	big := bytes.Repeat([]byte("a"), maxBodyBytes+10)
	body := append(append([]byte(`{"message":"`), big...), []byte(`"}`)...)
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	w := httptest.NewRecorder()

	var v chatRequest
	err := decodeJSON(w, req, &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSON body")
}
