package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store[S].
//
// It keeps checkpoint chains in a single-file database. Designed for:
//   - Development and testing with zero setup
//   - Single-process workflows requiring durability
//   - Prototyping before migrating to MySQL or Redis
//
// SQLiteStore uses WAL mode for concurrent reads; the single-writer
// connection plus transactional Put gives per-thread append atomicity.
//
// Type parameter S is the state type to persist (must be
// JSON-serializable).
type SQLiteStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore creates a SQLite-backed store.
//
// The path can be a file ("./threads.db"), an absolute path, or ":memory:"
// for an in-memory database. The store creates the schema on first use,
// enables WAL mode, and sets a busy timeout.
//
// Example:
//
//	st, err := store.NewSQLiteStore[graph.State]("./threads.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore[S]{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS checkpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			thread_id TEXT NOT NULL,
			checkpoint_id TEXT NOT NULL,
			parent_checkpoint_id TEXT NOT NULL DEFAULT '',
			seq INTEGER NOT NULL,
			next_node TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(thread_id, checkpoint_id)
		)
	`
	if _, err := s.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create checkpoints table: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_checkpoints_thread ON checkpoints(thread_id, id)"); err != nil {
		return fmt.Errorf("failed to create idx_checkpoints_thread: %w", err)
	}

	return nil
}

// Put appends a checkpoint inside a transaction (implements Store).
func (s *SQLiteStore[S]) Put(ctx context.Context, cp Checkpoint[S]) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanCheckpoint[S](tx.QueryRowContext(ctx,
		`SELECT thread_id, checkpoint_id, parent_checkpoint_id, seq, next_node, state, created_at
		 FROM checkpoints WHERE thread_id = ? AND checkpoint_id = ?`,
		cp.ThreadID, cp.ID))
	switch {
	case err == nil:
		if !payloadEqual(existing, cp) {
			return "", fmt.Errorf("%w: checkpoint %s", ErrCheckpointConflict, cp.ID)
		}
		return cp.ID, nil
	case err != sql.ErrNoRows:
		return "", fmt.Errorf("failed to check existing checkpoint: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, checkpoint_id, parent_checkpoint_id, seq, next_node, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cp.ThreadID, cp.ID, cp.ParentID, cp.Seq, cp.Next, string(stateJSON),
		cp.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("failed to insert checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}

	return cp.ID, nil
}

// GetLatest returns the most recently appended checkpoint for a thread
// (implements Store).
func (s *SQLiteStore[S]) GetLatest(ctx context.Context, threadID string) (Checkpoint[S], error) {
	var zero Checkpoint[S]
	if err := s.checkOpen(); err != nil {
		return zero, err
	}

	cp, err := scanCheckpoint[S](s.db.QueryRowContext(ctx,
		`SELECT thread_id, checkpoint_id, parent_checkpoint_id, seq, next_node, state, created_at
		 FROM checkpoints WHERE thread_id = ? ORDER BY id DESC LIMIT 1`, threadID))
	if err == sql.ErrNoRows {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("failed to load latest checkpoint: %w", err)
	}
	return cp, nil
}

// Get returns a checkpoint by id (implements Store).
func (s *SQLiteStore[S]) Get(ctx context.Context, threadID, checkpointID string) (Checkpoint[S], error) {
	var zero Checkpoint[S]
	if err := s.checkOpen(); err != nil {
		return zero, err
	}

	cp, err := scanCheckpoint[S](s.db.QueryRowContext(ctx,
		`SELECT thread_id, checkpoint_id, parent_checkpoint_id, seq, next_node, state, created_at
		 FROM checkpoints WHERE thread_id = ? AND checkpoint_id = ?`, threadID, checkpointID))
	if err == sql.ErrNoRows {
		return zero, ErrNotFound
	}
	if err != nil {
		return zero, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return cp, nil
}

// History returns all checkpoints for a thread, most recent first
// (implements Store).
func (s *SQLiteStore[S]) History(ctx context.Context, threadID string) ([]Checkpoint[S], error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT thread_id, checkpoint_id, parent_checkpoint_id, seq, next_node, state, created_at
		 FROM checkpoints WHERE thread_id = ? ORDER BY id DESC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Checkpoint[S], 0)
	for rows.Next() {
		cp, err := scanCheckpoint[S](rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history rows: %w", err)
	}
	return out, nil
}

// DeleteThread removes every checkpoint for a thread (implements Store).
func (s *SQLiteStore[S]) DeleteThread(ctx context.Context, threadID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return nil
}

// Close closes the database connection. Double-close is a no-op.
func (s *SQLiteStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore[S]) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *SQLiteStore[S]) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

func (s *SQLiteStore[S]) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint[S any](row rowScanner) (Checkpoint[S], error) {
	var (
		cp        Checkpoint[S]
		stateJSON string
		createdAt string
	)
	if err := row.Scan(&cp.ThreadID, &cp.ID, &cp.ParentID, &cp.Seq, &cp.Next, &stateJSON, &createdAt); err != nil {
		return cp, err
	}

	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return cp, fmt.Errorf("failed to unmarshal state: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return cp, fmt.Errorf("failed to parse created_at: %w", err)
	}
	cp.CreatedAt = ts

	return cp, nil
}
