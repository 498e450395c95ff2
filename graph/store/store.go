// Package store provides checkpoint persistence backends for the graph
// engine.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested thread or checkpoint does not
// exist.
var ErrNotFound = errors.New("not found")

// ErrCheckpointConflict is returned when a Put retry carries the same
// checkpoint id as a stored checkpoint but a different payload. The stored
// payload is never altered; the conflict surfaces to the caller as a store
// integrity problem.
var ErrCheckpointConflict = errors.New("checkpoint conflict: payload differs for existing checkpoint id")

// Checkpoint is an immutable snapshot of thread state plus the next node to
// run. Checkpoints for a thread form a chain ordered by Seq; ParentID lets
// the history be reconstructed as a tree when replay or forking creates a
// new branch.
//
// Type parameter S is the state type to persist (must be
// JSON-serializable).
type Checkpoint[S any] struct {
	// ThreadID identifies the logical run this checkpoint belongs to.
	ThreadID string `json:"thread_id"`

	// ID uniquely identifies this checkpoint. Assigned by Put when empty.
	ID string `json:"checkpoint_id"`

	// ParentID is the id of the previous checkpoint on the same branch.
	// Empty for the synthetic initial checkpoint.
	ParentID string `json:"parent_checkpoint_id,omitempty"`

	// Seq is the position in the chain. The synthetic initial checkpoint is
	// 0; each applied step increments it by one along its branch.
	Seq int `json:"sequence_number"`

	// State is the snapshot after all merges up to this checkpoint.
	State S `json:"state"`

	// Next is the name of the node pending execution, or the terminal
	// sentinel when the thread has completed.
	Next string `json:"pending_next_node"`

	// CreatedAt records when this checkpoint was persisted.
	CreatedAt time.Time `json:"created_at"`
}

// Store persists checkpoint chains keyed by thread id.
//
// Implementations may be in-memory (process lifetime) or durable (survive
// restarts); the engine treats both uniformly through this contract. Every
// implementation must serialize concurrent appends for the same thread id:
// a Put must never interleave partial writes with another Put for that
// thread.
type Store[S any] interface {
	// Put appends a checkpoint and returns its id, assigning one if absent.
	// Put never overwrites: retrying with an existing id and an identical
	// payload is a no-op, while a differing payload fails with
	// ErrCheckpointConflict.
	Put(ctx context.Context, cp Checkpoint[S]) (string, error)

	// GetLatest returns the most recently appended checkpoint for a thread,
	// which is the head of the currently active branch.
	// Returns ErrNotFound if the thread has no checkpoints.
	GetLatest(ctx context.Context, threadID string) (Checkpoint[S], error)

	// Get returns a specific checkpoint by id.
	// Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, threadID, checkpointID string) (Checkpoint[S], error)

	// History returns all checkpoints for a thread, most recent first
	// (append order, newest branch head at index 0).
	// Returns an empty slice, not an error, for an unknown thread.
	History(ctx context.Context, threadID string) ([]Checkpoint[S], error)

	// DeleteThread removes every checkpoint for a thread. Subsequent
	// GetLatest calls return ErrNotFound. Deleting an unknown thread is a
	// no-op.
	DeleteThread(ctx context.Context, threadID string) error
}

// payloadEqual reports whether two checkpoints carry the same payload,
// ignoring the CreatedAt timestamp. Used by implementations to decide
// whether a Put retry is idempotent or a conflict.
func payloadEqual[S any](a, b Checkpoint[S]) bool {
	a.CreatedAt = time.Time{}
	b.CreatedAt = time.Time{}

	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}
