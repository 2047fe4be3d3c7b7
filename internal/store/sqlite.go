package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/mentor-relay/internal/shared"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	maxWriteRetries = 3
	baseRetryDelay  = 100 * time.Millisecond
)

// SQLiteArchive implements Archive using SQLite.
type SQLiteArchive struct {
	db      *sql.DB
	writeMu sync.Mutex // serialises writers to keep SQLITE_BUSY rare
}

var _ Archive = (*SQLiteArchive)(nil)

// NewSQLite opens (or creates) the archive at dbPath.
func NewSQLite(dbPath string) (*SQLiteArchive, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// The driver only applies settings passed as _pragma parameters.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	archive := &SQLiteArchive{db: db}
	if err := archive.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return archive, nil
}

func (s *SQLiteArchive) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS chat_turns (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		user_message TEXT NOT NULL,
		reply TEXT NOT NULL,
		fallback INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_turns_session ON chat_turns(session_id, created_at);

	CREATE TABLE IF NOT EXISTS session_evictions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		evicted_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_session_evictions_at ON session_evictions(evicted_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteArchive) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteArchive) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// AppendTurn stores one exchange, retrying on SQLite lock contention.
func (s *SQLiteArchive) AppendTurn(ctx context.Context, turn *Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now()
	}

	query := `
	INSERT INTO chat_turns (id, session_id, content_type, user_message, reply, fallback, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	return s.writeWithRetry(ctx, "append turn", turn.SessionID, func() error {
		_, err := s.db.ExecContext(ctx, query,
			turn.ID, turn.SessionID, turn.ContentType, turn.UserMessage, turn.Reply,
			boolToInt(turn.Fallback), turn.CreatedAt.UnixMilli(),
		)
		return err
	})
}

// RecordEviction notes that a session was removed from memory.
func (s *SQLiteArchive) RecordEviction(ctx context.Context, sessionID, reason string, at time.Time) error {
	query := `INSERT INTO session_evictions (id, session_id, reason, evicted_at) VALUES (?, ?, ?, ?)`
	return s.writeWithRetry(ctx, "record eviction", sessionID, func() error {
		_, err := s.db.ExecContext(ctx, query, uuid.NewString(), sessionID, reason, at.UnixMilli())
		return err
	})
}

// CountTurns returns the number of archived turns for a session.
func (s *SQLiteArchive) CountTurns(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_turns WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count turns: %w", err)
	}
	return n, nil
}

// Turns returns a session's archived turns, oldest first.
func (s *SQLiteArchive) Turns(ctx context.Context, sessionID string) ([]*Turn, error) {
	query := `
		SELECT id, session_id, content_type, user_message, reply, fallback, created_at
		FROM chat_turns WHERE session_id = ? ORDER BY created_at, rowid`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []*Turn
	for rows.Next() {
		var t Turn
		var fallback int
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.SessionID, &t.ContentType, &t.UserMessage, &t.Reply, &fallback, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.Fallback = fallback != 0
		t.CreatedAt = time.UnixMilli(createdAt)
		turns = append(turns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return turns, nil
}

// PruneBefore deletes turns and evictions older than cutoff.
func (s *SQLiteArchive) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	err := s.writeWithRetry(ctx, "prune", "", func() error {
		total = 0
		for _, query := range []string{
			`DELETE FROM chat_turns WHERE created_at < ?`,
			`DELETE FROM session_evictions WHERE evicted_at < ?`,
		} {
			result, err := s.db.ExecContext(ctx, query, cutoff.UnixMilli())
			if err != nil {
				return err
			}
			n, err := result.RowsAffected()
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	return total, err
}

// writeWithRetry runs fn under the write lock, backing off exponentially
// (100ms, 200ms) while SQLite reports lock contention.
func (s *SQLiteArchive) writeWithRetry(ctx context.Context, op, sessionID string, fn func() error) error {
	var err error
	for i := 0; i < maxWriteRetries; i++ {
		s.writeMu.Lock()
		err = fn()
		s.writeMu.Unlock()
		if err == nil {
			return nil
		}

		if !shared.IsSQLiteConflictError(err) || i == maxWriteRetries-1 {
			break
		}
		delay := baseRetryDelay * time.Duration(1<<i)
		slog.Debug("Archive write hit SQLite lock, retrying",
			"op", op,
			"session_id", sessionID,
			"attempt", i+1,
			"delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
