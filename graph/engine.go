package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/statekit/stategraph/graph/emit"
	"github.com/statekit/stategraph/graph/store"
)

// Engine is a compiled graph bound to a checkpoint store.
//
// The Engine is the step interpreter:
//   - Executes one node per step, sequentially within a call
//   - Merges partial updates into the snapshot via the schema's policies
//   - Selects the next node through static edges or conditional routers
//   - Persists a checkpoint after every step
//   - Enforces the per-call recursion limit
//   - Emits observability events and records metrics when configured
//
// Engines are immutable after Compile and safe for concurrent use across
// different thread ids; the checkpoint store serializes appends per thread.
//
// Example:
//
//	engine, err := builder.Compile(store.NewMemStore[graph.State]())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	final, err := engine.Invoke(ctx, "thread-001", graph.State{"query": "hello"})
type Engine struct {
	schema Schema
	nodes  map[string]Node
	edges  map[string]edge
	entry  string
	store  store.Store[State]
	opts   Options
}

// EntryPoint returns the node where fresh threads start.
func (e *Engine) EntryPoint() string {
	return e.entry
}

// Invoke runs the thread until it routes to END and returns the final
// snapshot.
//
// If threadID has no checkpoints yet, the initial state is persisted as the
// synthetic sequence-0 checkpoint with the entry point pending. If
// checkpoints exist, execution resumes from the latest checkpoint's pending
// node and initial is ignored, so an interrupted or forked thread picks up
// exactly where it left off.
//
// Errors:
//   - ErrRecursionLimit when the per-call ceiling is reached; the thread
//     stays resumable at its last checkpoint
//   - RoutingError when a router returns an undeclared label
//   - node errors, propagated unchanged (no checkpoint for the failed step)
//   - ctx.Err() when cancelled between steps; persisted progress remains
//     valid
func (e *Engine) Invoke(ctx context.Context, threadID string, initial State, opts ...CallOption) (State, error) {
	cp, err := e.ensureThread(ctx, threadID, initial)
	if err != nil {
		return nil, err
	}
	return e.runLoop(ctx, threadID, cp, e.callLimit(opts), nil)
}

// StepEvent is one streamed step of an executing thread.
type StepEvent struct {
	// ThreadID identifies the thread.
	ThreadID string

	// Seq is the sequence number of the checkpoint the step produced.
	Seq int

	// Node is the name of the node that executed.
	Node string

	// Delta is the partial update the node returned.
	Delta State

	// State is the merged snapshot after the step.
	State State

	// CheckpointID is the id of the checkpoint persisted for this step.
	CheckpointID string

	// Err terminates the stream when non-nil. All other fields are zero.
	Err error
}

// Stream runs the same loop as Invoke but yields a StepEvent after each
// step instead of returning only the final snapshot. Checkpointing side
// effects are identical to Invoke.
//
// The channel is closed when the thread completes, fails, or the context is
// cancelled. A failure is delivered as a final event with Err set.
func (e *Engine) Stream(ctx context.Context, threadID string, initial State, opts ...CallOption) <-chan StepEvent {
	ch := make(chan StepEvent)
	limit := e.callLimit(opts)

	go func() {
		defer close(ch)

		send := func(ev StepEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		cp, err := e.ensureThread(ctx, threadID, initial)
		if err != nil {
			send(StepEvent{ThreadID: threadID, Err: err})
			return
		}

		if _, err := e.runLoop(ctx, threadID, cp, limit, send); err != nil {
			send(StepEvent{ThreadID: threadID, Err: err})
		}
	}()

	return ch
}

// BatchItem is one independent (thread id, initial state) pair for Batch.
type BatchItem struct {
	ThreadID string
	Initial  State
}

// BatchResult is the outcome of one BatchItem.
type BatchResult struct {
	ThreadID string
	State    State
	Err      error
}

// Batch runs Invoke for each item on a bounded worker pool (Options
// MaxConcurrent). Items address independent thread ids, so no ordering is
// guaranteed between them; each item's internal step order is the same as
// Invoke. One item's failure does not abort the others.
//
// Results are returned in input order.
func (e *Engine) Batch(ctx context.Context, items []BatchItem, opts ...CallOption) []BatchResult {
	results := make([]BatchResult, len(items))
	if len(items) == 0 {
		return results
	}

	workers := e.opts.MaxConcurrent
	if workers > len(items) {
		workers = len(items)
	}

	jobs := make(chan int)
	done := make(chan struct{})
	for w := 0; w < workers; w++ {
		go func() {
			for i := range jobs {
				final, err := e.Invoke(ctx, items[i].ThreadID, items[i].Initial, opts...)
				results[i] = BatchResult{ThreadID: items[i].ThreadID, State: final, Err: err}
				done <- struct{}{}
			}
		}()
	}

	go func() {
		for i := range items {
			jobs <- i
		}
		close(jobs)
	}()

	for range items {
		<-done
	}
	return results
}

// ensureThread returns the checkpoint to resume from, creating the
// synthetic sequence-0 checkpoint for a fresh thread.
func (e *Engine) ensureThread(ctx context.Context, threadID string, initial State) (store.Checkpoint[State], error) {
	var zero store.Checkpoint[State]
	if threadID == "" {
		return zero, fmt.Errorf("thread id cannot be empty")
	}

	cp, err := e.store.GetLatest(ctx, threadID)
	if err == nil {
		return cp, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return zero, fmt.Errorf("failed to load thread %q: %w", threadID, err)
	}

	snapshot, err := initial.Clone()
	if err != nil {
		return zero, err
	}

	cp = store.Checkpoint[State]{
		ThreadID: threadID,
		Seq:      0,
		State:    snapshot,
		Next:     e.entry,
	}
	id, err := e.store.Put(ctx, cp)
	if err != nil {
		return zero, fmt.Errorf("failed to persist initial checkpoint: %w", err)
	}
	cp.ID = id
	if m := e.opts.Metrics; m != nil {
		m.IncCheckpoints()
	}

	e.emit(emit.Event{
		ThreadID: threadID,
		NodeID:   e.entry,
		Msg:      "thread started",
		Meta:     map[string]any{"checkpoint_id": id},
	})
	return cp, nil
}

// runLoop is the step interpreter shared by Invoke, Stream, and Replay.
// It executes from cp until END, an error, or the recursion limit, yielding
// a StepEvent per step when yield is non-nil. yield returning false means
// the consumer is gone; the loop stops with ctx.Err().
func (e *Engine) runLoop(ctx context.Context, threadID string, cp store.Checkpoint[State], limit int, yield func(StepEvent) bool) (State, error) {
	if m := e.opts.Metrics; m != nil {
		m.InvocationStarted()
		defer m.InvocationFinished()
	}

	steps := 0
	for {
		if cp.Next == END {
			return cp.State, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if steps >= limit {
			e.emit(emit.Event{
				ThreadID: threadID,
				Seq:      cp.Seq,
				NodeID:   cp.Next,
				Msg:      "recursion limit exceeded",
				Meta:     map[string]any{"limit": limit},
			})
			if m := e.opts.Metrics; m != nil {
				m.IncRecursionLimitHits()
			}
			return nil, fmt.Errorf("%w: %d node executions for thread %q", ErrRecursionLimit, limit, threadID)
		}
		steps++

		node, exists := e.nodes[cp.Next]
		if !exists {
			return nil, fmt.Errorf("node not found during execution: %s", cp.Next)
		}

		snapshot, err := cp.State.Clone()
		if err != nil {
			return nil, err
		}

		started := time.Now()
		delta, err := e.executeNode(ctx, cp.Next, node, snapshot)
		if err != nil {
			if m := e.opts.Metrics; m != nil {
				m.RecordStep(cp.Next, time.Since(started), "error")
			}
			return nil, err
		}
		if m := e.opts.Metrics; m != nil {
			m.RecordStep(cp.Next, time.Since(started), "success")
		}

		merged := e.schema.Merge(cp.State, delta)

		next, err := e.route(cp.Next, merged)
		if err != nil {
			return nil, err
		}

		executed := cp.Next
		newCp := store.Checkpoint[State]{
			ThreadID: threadID,
			ParentID: cp.ID,
			Seq:      cp.Seq + 1,
			State:    merged,
			Next:     next,
		}
		id, err := e.store.Put(ctx, newCp)
		if err != nil {
			return nil, fmt.Errorf("failed to persist checkpoint: %w", err)
		}
		newCp.ID = id
		if m := e.opts.Metrics; m != nil {
			m.IncCheckpoints()
		}

		e.emit(emit.Event{
			ThreadID: threadID,
			Seq:      newCp.Seq,
			NodeID:   executed,
			Msg:      "node completed",
			Meta:     map[string]any{"checkpoint_id": id, "next": next},
		})

		if yield != nil {
			ok := yield(StepEvent{
				ThreadID:     threadID,
				Seq:          newCp.Seq,
				Node:         executed,
				Delta:        delta,
				State:        merged,
				CheckpointID: id,
			})
			if !ok {
				return nil, ctx.Err()
			}
		}

		cp = newCp
	}
}

// executeNode runs a node, enforcing the engine-wide node timeout when one
// is configured.
func (e *Engine) executeNode(ctx context.Context, name string, node Node, snapshot State) (State, error) {
	if e.opts.NodeTimeout <= 0 {
		return node.Run(ctx, snapshot)
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.NodeTimeout)
	defer cancel()

	type outcome struct {
		delta State
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		delta, err := node.Run(ctx, snapshot)
		ch <- outcome{delta: delta, err: err}
	}()

	select {
	case out := <-ch:
		return out.delta, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("node %q: %w", name, ctx.Err())
	}
}

// route determines the node that follows from, given the merged post-node
// state.
func (e *Engine) route(from string, merged State) (string, error) {
	eg, exists := e.edges[from]
	if !exists {
		return "", fmt.Errorf("node %q has no outgoing edge", from)
	}
	if !eg.conditional() {
		return eg.To, nil
	}

	label := eg.Router(merged)
	dest, declared := eg.Destinations[label]
	if !declared {
		return "", &RoutingError{Node: from, Label: label}
	}
	return dest, nil
}

// callLimit resolves the recursion limit for one call.
func (e *Engine) callLimit(opts []CallOption) int {
	cfg := callConfig{limit: e.opts.RecursionLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.limit <= 0 {
		cfg.limit = DefaultRecursionLimit
	}
	return cfg.limit
}

func (e *Engine) emit(ev emit.Event) {
	if e.opts.Emitter != nil {
		e.opts.Emitter.Emit(ev)
	}
}
