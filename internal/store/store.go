// Package store provides the transcript archive: a write-mostly audit trail
// of chat turns and session evictions. Live sessions are never rebuilt from it.
package store

import (
	"context"
	"time"
)

// Turn is one archived exchange.
type Turn struct {
	ID          string
	SessionID   string
	ContentType string
	UserMessage string
	Reply       string
	Fallback    bool
	CreatedAt   time.Time
}

// Archive defines the interface for persisting chat history.
type Archive interface {
	// AppendTurn stores one exchange. ID and CreatedAt are filled in when empty.
	AppendTurn(ctx context.Context, turn *Turn) error

	// RecordEviction notes that a session was removed from memory.
	RecordEviction(ctx context.Context, sessionID, reason string, at time.Time) error

	// CountTurns returns the number of archived turns for a session.
	CountTurns(ctx context.Context, sessionID string) (int, error)

	// PruneBefore deletes turns and evictions older than cutoff.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying database.
	Close() error
}

// Noop is an Archive that stores nothing.
type Noop struct{}

var _ Archive = Noop{}

func (Noop) AppendTurn(context.Context, *Turn) error { return nil }
func (Noop) RecordEviction(context.Context, string, string, time.Time) error { return nil }
func (Noop) CountTurns(context.Context, string) (int, error) { return 0, nil }
func (Noop) PruneBefore(context.Context, time.Time) (int64, error) { return 0, nil }
func (Noop) Ping(context.Context) error { return nil }
func (Noop) Close() error { return nil }
