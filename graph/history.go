package graph

import (
	"context"
	"fmt"

	"github.com/statekit/stategraph/graph/emit"
	"github.com/statekit/stategraph/graph/store"
)

// GetState returns the thread's current checkpoint: the head of the active
// branch. Returns store.ErrNotFound for an unknown thread.
func (e *Engine) GetState(ctx context.Context, threadID string) (store.Checkpoint[State], error) {
	return e.store.GetLatest(ctx, threadID)
}

// GetStateHistory returns every checkpoint of a thread, most recent first.
// When replay or forking has branched the thread, the history covers all
// branches; follow ParentID links to reconstruct any single chain.
func (e *Engine) GetStateHistory(ctx context.Context, threadID string) ([]store.Checkpoint[State], error) {
	return e.store.History(ctx, threadID)
}

// DeleteThread removes every checkpoint for a thread.
func (e *Engine) DeleteThread(ctx context.Context, threadID string) error {
	return e.store.DeleteThread(ctx, threadID)
}

// Replay resumes execution from a historical checkpoint instead of the
// thread's latest. Only nodes after the chosen checkpoint execute; prior
// node outputs are not recomputed. The new checkpoints form a branch whose
// parents point into the historical chain. No stored checkpoint is ever
// mutated, so the original branch stays intact.
func (e *Engine) Replay(ctx context.Context, threadID, checkpointID string, opts ...CallOption) (State, error) {
	cp, err := e.store.Get(ctx, threadID, checkpointID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint %q: %w", checkpointID, err)
	}

	e.emit(emit.Event{
		ThreadID: threadID,
		Seq:      cp.Seq,
		NodeID:   cp.Next,
		Msg:      "replaying from checkpoint",
		Meta:     map[string]any{"checkpoint_id": checkpointID},
	})

	return e.runLoop(ctx, threadID, cp, e.callLimit(opts), nil)
}

// UpdateState forks a thread: it reads the given checkpoint, merges the
// overrides through the schema's policies as if asNode had produced them,
// and persists a new branch checkpoint whose pending node is whatever would
// follow asNode (END if asNode has no outgoing edge). asNode's function body
// is not re-executed.
//
// Returns the new checkpoint's id; a subsequent Invoke on the thread resumes
// from it.
func (e *Engine) UpdateState(ctx context.Context, threadID, checkpointID string, overrides State, asNode string) (string, error) {
	if _, exists := e.nodes[asNode]; !exists {
		return "", &UnknownNodeError{Name: asNode}
	}

	cp, err := e.store.Get(ctx, threadID, checkpointID)
	if err != nil {
		return "", fmt.Errorf("failed to load checkpoint %q: %w", checkpointID, err)
	}

	merged := e.schema.Merge(cp.State, overrides)

	// The pending node is resolved against the merged state, so a
	// conditional router sees the overridden values exactly as it would
	// have seen asNode's real output.
	next := END
	if _, wired := e.edges[asNode]; wired {
		next, err = e.route(asNode, merged)
		if err != nil {
			return "", err
		}
	}

	forked := store.Checkpoint[State]{
		ThreadID: threadID,
		ParentID: cp.ID,
		Seq:      cp.Seq + 1,
		State:    merged,
		Next:     next,
	}
	id, err := e.store.Put(ctx, forked)
	if err != nil {
		return "", fmt.Errorf("failed to persist forked checkpoint: %w", err)
	}
	if m := e.opts.Metrics; m != nil {
		m.IncCheckpoints()
	}

	e.emit(emit.Event{
		ThreadID: threadID,
		Seq:      forked.Seq,
		NodeID:   asNode,
		Msg:      "state updated",
		Meta:     map[string]any{"checkpoint_id": id, "forked_from": checkpointID, "next": next},
	})

	return id, nil
}
