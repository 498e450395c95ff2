package graph

import "context"

// END is the terminal sentinel. Routing to END completes the thread: the
// engine returns the current snapshot and writes no further checkpoints.
// END is always a valid edge destination and never a valid node name.
const END = "__end__"

// Node represents a processing step in the graph.
// It receives the current state snapshot, performs computation, and returns
// a partial state containing only the keys it intends to update.
//
// Side effects (I/O, external calls) are permitted inside a node but are the
// node author's responsibility. Nodes must not mutate the state they
// receive; the engine hands each node a deep copy and owns merging.
//
// A returned error propagates unchanged to the Invoke/Stream caller; no
// checkpoint is written for the failed step, so the thread remains
// resumable from its last successful checkpoint.
type Node interface {
	// Run executes the node's logic and returns a partial state update.
	Run(ctx context.Context, state State) (State, error)
}

// NodeFunc is a function adapter that implements the Node interface.
// It allows using plain functions as nodes without creating custom types.
//
// Example:
//
//	builder.AddNode("classify", graph.NodeFunc(func(ctx context.Context, s graph.State) (graph.State, error) {
//	    return graph.State{"category": classify(s["input"])}, nil
//	}))
type NodeFunc func(ctx context.Context, state State) (State, error)

// Run implements the Node interface for NodeFunc.
func (f NodeFunc) Run(ctx context.Context, state State) (State, error) {
	return f(ctx, state)
}

// Router selects the next hop after a node with a conditional edge.
// It inspects the post-node state and returns a label, which the engine maps
// through the edge's declared destinations table. The label is opaque: it
// does not have to equal a node name.
//
// Routers should be pure functions (deterministic, no side effects) so that
// replaying a thread from a checkpoint reproduces the original path.
type Router func(state State) string
