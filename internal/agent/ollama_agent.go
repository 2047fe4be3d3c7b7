package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ollama/ollama/api"
)

var (
	// ErrNoAnswer is returned when the model replies with empty text.
	ErrNoAnswer = errors.New("agent produced no answer")
	// ErrTurnLimit is returned when the model keeps calling tools past MaxTurns.
	ErrTurnLimit = errors.New("agent exceeded tool turn limit")
)

// ChatClient is the subset of the ollama client the agents use.
type ChatClient interface {
	Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error
}

// OllamaAgent runs a tool-calling conversation against an ollama model.
// Invocations on one instance are serialised; instances never share memory.
type OllamaAgent struct {
	mu         sync.Mutex
	client     ChatClient
	searcher   Searcher
	profile    Profile
	model      string
	maxTurns   int
	maxHistory int
	singleTurn bool
	history    []api.Message
}

// Invoke runs one user turn: model call, tool execution, repeat until the
// model answers without tool calls.
func (a *OllamaAgent) Invoke(ctx context.Context, message string) (Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	user := api.Message{Role: "user", Content: message}
	msgs := make([]api.Message, 0, len(a.history)+2)
	msgs = append(msgs, api.Message{Role: "system", Content: a.profile.SystemPrompt})
	msgs = append(msgs, a.history...)
	msgs = append(msgs, user)

	tools := api.Tools{searchTool()}
	for turn := 0; turn < a.maxTurns; turn++ {
		// Last turn: withhold tools so the model has to answer.
		if turn == a.maxTurns-1 {
			tools = nil
		}

		reply, err := a.chat(ctx, msgs, tools)
		if err != nil {
			return nil, fmt.Errorf("%s agent: %w", a.profile.Name, err)
		}
		msgs = append(msgs, reply)

		if len(reply.ToolCalls) == 0 {
			answer := strings.TrimSpace(reply.Content)
			if answer == "" {
				return nil, ErrNoAnswer
			}
			if !a.singleTurn {
				a.remember(user, api.Message{Role: "assistant", Content: answer})
			}
			return AssistantResult(answer), nil
		}

		for _, call := range reply.ToolCalls {
			msgs = append(msgs, api.Message{
				Role:    "tool",
				Content: runSearchTool(ctx, a.searcher, a.profile, call),
			})
		}
	}

	return nil, ErrTurnLimit
}

func (a *OllamaAgent) chat(ctx context.Context, msgs []api.Message, tools api.Tools) (api.Message, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    a.model,
		Messages: msgs,
		Tools:    tools,
		Stream:   &stream,
		Options:  map[string]any{"temperature": 0.3},
	}

	reply := api.Message{Role: "assistant"}
	var content strings.Builder
	err := a.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		reply.ToolCalls = append(reply.ToolCalls, resp.Message.ToolCalls...)
		return nil
	})
	reply.Content = content.String()
	return reply, err
}

func (a *OllamaAgent) remember(user, assistant api.Message) {
	a.history = trimHistory(append(a.history, user, assistant), a.maxHistory)
}

// History returns a copy of the agent's conversation memory.
func (a *OllamaAgent) History() []api.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]api.Message(nil), a.history...)
}

// trimHistory keeps the last maxUserTurns user messages and everything after
// the earliest one kept.
func trimHistory(msgs []api.Message, maxUserTurns int) []api.Message {
	if maxUserTurns <= 0 || len(msgs) == 0 {
		return nil
	}

	usersSeen := 0
	start := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			usersSeen++
			if usersSeen == maxUserTurns {
				start = i
				break
			}
		}
	}
	return append([]api.Message(nil), msgs[start:]...)
}
