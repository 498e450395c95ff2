package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrRecursionLimit indicates that an Invoke, Stream, or Replay call reached
// its recursion limit (maximum node executions per call) without routing to
// END. This is a recoverable outcome, not a crash signal: the thread's last
// checkpoint reflects every merge that completed, so callers can inspect
// state via GetState and decide whether to resume, replay, or abandon.
var ErrRecursionLimit = errors.New("recursion limit exceeded")

// DuplicateNodeError is returned by Builder.AddNode when a node name is
// already registered. Programmer error; fails fast at build time.
type DuplicateNodeError struct {
	Name string
}

func (e *DuplicateNodeError) Error() string {
	return "duplicate node: " + e.Name
}

// UnknownNodeError is returned by builder operations that reference a node
// name that has not been registered. Programmer error; fails fast at build
// time.
type UnknownNodeError struct {
	Name string
}

func (e *UnknownNodeError) Error() string {
	return "unknown node: " + e.Name
}

// GraphValidationError is returned by Compile when the graph definition is
// not well-formed. It carries every violation found, not just the first, to
// aid debugging. Non-retryable; the caller must fix the graph definition.
type GraphValidationError struct {
	Violations []string
}

func (e *GraphValidationError) Error() string {
	return fmt.Sprintf("invalid graph: %s", strings.Join(e.Violations, "; "))
}

// RoutingError is returned at run time when a conditional router produces a
// label outside its declared destinations table. Fatal to the current call;
// the thread's last checkpoint remains valid and inspectable.
type RoutingError struct {
	Node  string
	Label string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing error at node %q: label %q is not a declared destination", e.Node, e.Label)
}
