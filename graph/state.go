// Package graph provides a checkpointed state-graph execution engine.
package graph

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// State is the shared data flowing through a graph: a mapping from key name
// to value. Nodes receive the current State and return a partial State
// containing only the keys they intend to update; the engine owns merging
// partials into the accumulated snapshot.
//
// Values must be JSON-serializable so snapshots round-trip losslessly
// through the checkpoint store.
type State map[string]any

// Policy declares how a partial update to a key is combined with the
// existing value.
type Policy int

const (
	// Replace overwrites the existing value with the update.
	Replace Policy = iota

	// Accumulate appends the update to the existing sequence, preserving
	// order and duplicates. A scalar update is treated as a one-element
	// sequence; an update to a missing key initializes a new sequence.
	Accumulate
)

// String returns the policy name for logs and error messages.
func (p Policy) String() string {
	switch p {
	case Replace:
		return "replace"
	case Accumulate:
		return "accumulate"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Schema declares the merge policy for each state key. The policy for a key
// is fixed for the lifetime of a graph definition.
//
// Keys absent from the schema default to Replace.
type Schema map[string]Policy

// policy returns the declared policy for key, defaulting to Replace.
func (s Schema) policy(key string) Policy {
	if p, ok := s[key]; ok {
		return p
	}
	return Replace
}

// Merge combines a partial update into the current state and returns the
// next state. It is pure: neither input is mutated, and the result is
// deterministic given (current, partial).
//
// For each key present in partial:
//   - Replace policy: the update overwrites the old value.
//   - Accumulate policy: the update's elements are appended to the existing
//     sequence (missing key starts a new sequence).
//
// Keys absent from partial carry over unchanged.
func (s Schema) Merge(current, partial State) State {
	next := make(State, len(current)+len(partial))
	for k, v := range current {
		next[k] = v
	}

	for k, v := range partial {
		switch s.policy(k) {
		case Accumulate:
			existing := toList(next[k])
			update := toList(v)
			merged := make([]any, 0, len(existing)+len(update))
			merged = append(merged, existing...)
			merged = append(merged, update...)
			next[k] = merged
		default:
			next[k] = v
		}
	}

	return next
}

// toList normalizes an accumulate update into a flat []any.
// nil yields an empty list; any slice kind is expanded element-wise;
// everything else is wrapped as a single-element sequence.
func toList(v any) []any {
	if v == nil {
		return nil
	}
	if l, ok := v.([]any); ok {
		return l
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice {
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}

	return []any{v}
}

// Clone creates a deep copy of the state using a JSON round-trip.
//
// This works for any value that marshals to JSON (primitives, maps, slices,
// structs with exported fields). The engine clones snapshots before handing
// them to node functions so nodes can never mutate persisted history.
func (s State) Clone() (State, error) {
	if s == nil {
		return State{}, nil
	}

	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}

	var copied State
	if err := json.Unmarshal(data, &copied); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if copied == nil {
		copied = State{}
	}

	return copied, nil
}
