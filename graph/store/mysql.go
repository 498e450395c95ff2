package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

// MySQLStore is a MySQL/MariaDB implementation of Store[S].
//
// Designed for:
//   - Production workflows requiring persistence
//   - Distributed systems with multiple workers sharing threads
//   - Long-running threads that survive process restarts
//   - Audit trails over checkpoint history
//
// Put runs in a transaction with the row set locked, so concurrent appends
// for the same thread never interleave partial writes.
//
// Type parameter S is the state type to persist (must be
// JSON-serializable).
type MySQLStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLStore creates a MySQL-backed store.
//
// The DSN format is the go-sql-driver one:
//
//	user:password@tcp(localhost:3306)/threads?parseTime=true
//
// Never hardcode credentials; read the DSN from the environment:
//
//	dsn := os.Getenv("MYSQL_DSN")
//	st, err := store.NewMySQLStore[graph.State](dsn)
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	s := &MySQLStore[S]{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

func (m *MySQLStore[S]) createTables(ctx context.Context) error {
	table := `
		CREATE TABLE IF NOT EXISTS checkpoints (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			thread_id VARCHAR(255) NOT NULL,
			checkpoint_id VARCHAR(255) NOT NULL,
			parent_checkpoint_id VARCHAR(255) NOT NULL DEFAULT '',
			seq INT NOT NULL,
			next_node VARCHAR(255) NOT NULL,
			state JSON NOT NULL,
			created_at VARCHAR(64) NOT NULL,
			INDEX idx_thread (thread_id, id),
			UNIQUE KEY unique_thread_checkpoint (thread_id, checkpoint_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`
	if _, err := m.db.ExecContext(ctx, table); err != nil {
		return fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	return nil
}

// Put appends a checkpoint inside a transaction (implements Store).
func (m *MySQLStore[S]) Put(ctx context.Context, cp Checkpoint[S]) (string, error) {
	if err := m.checkOpen(); err != nil {
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

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := scanCheckpoint[S](tx.QueryRowContext(ctx,
		`SELECT thread_id, checkpoint_id, parent_checkpoint_id, seq, next_node, state, created_at
		 FROM checkpoints WHERE thread_id = ? AND checkpoint_id = ? FOR UPDATE`,
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
		cp.ThreadID, cp.ID, cp.ParentID, cp.Seq, cp.Next, stateJSON,
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
func (m *MySQLStore[S]) GetLatest(ctx context.Context, threadID string) (Checkpoint[S], error) {
	var zero Checkpoint[S]
	if err := m.checkOpen(); err != nil {
		return zero, err
	}

	cp, err := scanCheckpoint[S](m.db.QueryRowContext(ctx,
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
func (m *MySQLStore[S]) Get(ctx context.Context, threadID, checkpointID string) (Checkpoint[S], error) {
	var zero Checkpoint[S]
	if err := m.checkOpen(); err != nil {
		return zero, err
	}

	cp, err := scanCheckpoint[S](m.db.QueryRowContext(ctx,
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
func (m *MySQLStore[S]) History(ctx context.Context, threadID string) ([]Checkpoint[S], error) {
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx,
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
func (m *MySQLStore[S]) DeleteThread(ctx context.Context, threadID string) error {
	if err := m.checkOpen(); err != nil {
		return err
	}

	if _, err := m.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	return nil
}

// Close closes the database connection. Double-close is a no-op.
func (m *MySQLStore[S]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

// Ping verifies the database connection is alive.
func (m *MySQLStore[S]) Ping(ctx context.Context) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.db.PingContext(ctx)
}

func (m *MySQLStore[S]) checkOpen() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}
