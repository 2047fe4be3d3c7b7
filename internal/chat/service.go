// Package chat orchestrates one chat request: session bookkeeping, the
// bound agent, the fallback path and response normalization.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/mentor-relay/internal/agent"
	"github.com/ashureev/mentor-relay/internal/normalize"
	"github.com/ashureev/mentor-relay/internal/session"
	"github.com/ashureev/mentor-relay/internal/store"
)

// Reply statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// DefaultSessionID is used when a request carries no session id.
const DefaultSessionID = "default"

// NoMessageReply is the reply text for requests without a message.
const NoMessageReply = "No message provided"

var (
	// ErrEmptyMessage is returned for requests without message text.
	ErrEmptyMessage = errors.New("no message provided")
	// ErrEmptyResponse marks an agent answer that normalized to nothing.
	ErrEmptyResponse = errors.New("agent returned an empty response")
)

// PanicError carries a panic recovered from an agent.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("agent panicked: %v", e.Value)
}

// Request is one inbound chat message.
type Request struct {
	Message     string
	SessionID   string
	ContentType string
}

// Validate rejects requests without message text.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// Reply is the outcome of a chat request. It is always safe to return to the
// caller; failures are described in Message with StatusError.
type Reply struct {
	Message     string `json:"message"`
	Status      string `json:"status"`
	SessionID   string `json:"sessionId"`
	SearchedAPI bool   `json:"searchedApi"`
	Fallback    bool   `json:"-"`
}

// FallbackFactory builds the isolated single-turn agent used when the bound
// agent fails.
type FallbackFactory interface {
	Fallback() agent.Capability
}

// Service handles chat requests.
type Service struct {
	sessions *session.Store
	reaper   *session.Reaper
	fallback FallbackFactory
	archive  store.Archive
}

// NewService creates a chat service. archive may be nil.
func NewService(sessions *session.Store, reaper *session.Reaper, fallback FallbackFactory, archive store.Archive) *Service {
	if archive == nil {
		archive = store.Noop{}
	}
	return &Service{sessions: sessions, reaper: reaper, fallback: fallback, archive: archive}
}

// HandleChat answers one message. Agent failures go to the fallback agent;
// if that fails too the reply carries StatusError. Both transcript entries
// are recorded only when an answer was produced.
func (s *Service) HandleChat(ctx context.Context, req Request) Reply {
	id := req.SessionID
	if id == "" {
		id = DefaultSessionID
	}
	if err := req.Validate(); err != nil {
		return Reply{Message: NoMessageReply, Status: StatusError, SessionID: id}
	}

	searched := SearchIntent(req.Message)
	contentType := agent.NormalizeContentType(req.ContentType)

	// Mark the session live before the potentially slow agent call.
	s.sessions.Touch(id)
	if s.reaper != nil {
		defer s.reaper.Observe()
	}

	text, err := s.invokeBound(ctx, id, contentType, req.Message)
	usedFallback := false
	if err != nil {
		slog.Warn("Primary agent failed, using fallback",
			"session_id", id,
			"content_type", contentType,
			"error", err)

		text, err = s.invokeFallback(ctx, req.Message)
		if err != nil {
			slog.Error("Fallback agent failed",
				"session_id", id,
				"error", err)
			return Reply{
				Message:     fmt.Sprintf("Sorry, there was an error processing your request. Error: %v", err),
				Status:      StatusError,
				SessionID:   id,
				SearchedAPI: searched,
			}
		}
		usedFallback = true
	}

	if !s.sessions.RecordTurn(id, req.Message, text) {
		slog.Debug("Session evicted before turn was recorded", "session_id", id)
	}
	s.archiveTurn(ctx, &store.Turn{
		SessionID:   id,
		ContentType: contentType,
		UserMessage: req.Message,
		Reply:       text,
		Fallback:    usedFallback,
	})

	return Reply{
		Message:     text,
		Status:      StatusSuccess,
		SessionID:   id,
		SearchedAPI: searched,
		Fallback:    usedFallback,
	}
}

func (s *Service) invokeBound(ctx context.Context, id, contentType, message string) (text string, err error) {
	defer recoverInto(&err)

	capability, created := s.sessions.GetOrCreate(id, contentType)
	if created {
		slog.Info("Created agent binding",
			"session_id", id,
			"binding", session.BindingKey(id, contentType))
	}
	return invoke(ctx, capability, message)
}

func (s *Service) invokeFallback(ctx context.Context, message string) (text string, err error) {
	defer recoverInto(&err)

	if s.fallback == nil {
		return "", errors.New("no fallback agent configured")
	}
	return invoke(ctx, s.fallback.Fallback(), message)
}

func invoke(ctx context.Context, capability agent.Capability, message string) (string, error) {
	result, err := capability.Invoke(ctx, message)
	if err != nil {
		return "", err
	}
	text := normalize.Response(result)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = &PanicError{Value: r}
	}
}

func (s *Service) archiveTurn(ctx context.Context, turn *store.Turn) {
	if err := s.archive.AppendTurn(context.WithoutCancel(ctx), turn); err != nil {
		slog.Warn("Failed to archive chat turn",
			"session_id", turn.SessionID,
			"error", err)
	}
}
