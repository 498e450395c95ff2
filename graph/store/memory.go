package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory implementation of Store[S].
//
// Designed for:
//   - Testing and development
//   - Single-process workflows
//   - Short-lived threads where persistence isn't required
//
// MemStore is thread-safe; the store-wide mutex gives per-thread append
// atomicity trivially.
//
// Limitations:
//   - Data is lost when the process terminates
//   - Memory usage grows with thread history
//
// For durable storage use SQLiteStore, MySQLStore, RedisStore, or
// BadgerStore.
type MemStore[S any] struct {
	mu      sync.RWMutex
	threads map[string][]Checkpoint[S] // threadID -> checkpoints in append order
	byID    map[string]map[string]int  // threadID -> checkpointID -> index
}

// NewMemStore creates a new in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{
		threads: make(map[string][]Checkpoint[S]),
		byID:    make(map[string]map[string]int),
	}
}

// Put appends a checkpoint, assigning a UUID if the id is absent.
func (m *MemStore[S]) Put(_ context.Context, cp Checkpoint[S]) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	if idx, exists := m.byID[cp.ThreadID][cp.ID]; exists {
		if !payloadEqual(m.threads[cp.ThreadID][idx], cp) {
			return "", ErrCheckpointConflict
		}
		return cp.ID, nil
	}

	if m.byID[cp.ThreadID] == nil {
		m.byID[cp.ThreadID] = make(map[string]int)
	}
	m.byID[cp.ThreadID][cp.ID] = len(m.threads[cp.ThreadID])
	m.threads[cp.ThreadID] = append(m.threads[cp.ThreadID], cp)

	return cp.ID, nil
}

// GetLatest returns the most recently appended checkpoint for a thread.
func (m *MemStore[S]) GetLatest(_ context.Context, threadID string) (Checkpoint[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chain := m.threads[threadID]
	if len(chain) == 0 {
		var zero Checkpoint[S]
		return zero, ErrNotFound
	}
	return chain[len(chain)-1], nil
}

// Get returns a checkpoint by id.
func (m *MemStore[S]) Get(_ context.Context, threadID, checkpointID string) (Checkpoint[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, exists := m.byID[threadID][checkpointID]
	if !exists {
		var zero Checkpoint[S]
		return zero, ErrNotFound
	}
	return m.threads[threadID][idx], nil
}

// History returns all checkpoints for a thread, most recent first.
func (m *MemStore[S]) History(_ context.Context, threadID string) ([]Checkpoint[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chain := m.threads[threadID]
	out := make([]Checkpoint[S], len(chain))
	for i, cp := range chain {
		out[len(chain)-1-i] = cp
	}
	return out, nil
}

// DeleteThread removes every checkpoint for a thread.
func (m *MemStore[S]) DeleteThread(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.threads, threadID)
	delete(m.byID, threadID)
	return nil
}
