package graph

import (
	"fmt"
	"sort"

	"github.com/statekit/stategraph/graph/store"
)

// Builder assembles a graph definition: named nodes, edges between them, and
// a single entry point, over a Schema of per-key merge policies.
//
// Build operations fail fast on programmer errors (duplicate or unknown node
// names); whole-graph validation happens once at Compile. A Builder is not
// safe for concurrent use; compile it once and share the resulting Engine.
//
// Example:
//
//	b := graph.NewBuilder(graph.Schema{"messages": graph.Accumulate})
//	b.AddNode("draft", draftNode)
//	b.AddNode("review", reviewNode)
//	b.AddEdge("draft", "review")
//	b.AddConditionalEdge("review", route, map[string]string{
//	    "revise": "draft",
//	    "done":   graph.END,
//	})
//	b.SetEntryPoint("draft")
//	engine, err := b.Compile(store.NewMemStore[graph.State]())
type Builder struct {
	schema Schema
	nodes  map[string]Node
	edges  map[string]edge
	entry  string
}

// NewBuilder creates a Builder over the given schema.
// A nil schema is valid: every key then defaults to the Replace policy.
func NewBuilder(schema Schema) *Builder {
	return &Builder{
		schema: schema,
		nodes:  make(map[string]Node),
		edges:  make(map[string]edge),
	}
}

// AddNode registers a named node.
//
// Returns an error if the name is empty, reserved (END), or already
// registered, or if the node is nil.
func (b *Builder) AddNode(name string, node Node) error {
	if name == "" {
		return fmt.Errorf("node name cannot be empty")
	}
	if name == END {
		return fmt.Errorf("node name %q collides with the terminal sentinel", name)
	}
	if node == nil {
		return fmt.Errorf("node %q cannot be nil", name)
	}
	if _, exists := b.nodes[name]; exists {
		return &DuplicateNodeError{Name: name}
	}

	b.nodes[name] = node
	return nil
}

// AddEdge wires a static edge: after from executes, to always runs next.
// to may be END to terminate the thread after from.
//
// Returns UnknownNodeError if either endpoint is not registered, or an error
// if from already has an outgoing edge.
func (b *Builder) AddEdge(from, to string) error {
	if _, exists := b.nodes[from]; !exists {
		return &UnknownNodeError{Name: from}
	}
	if to != END {
		if _, exists := b.nodes[to]; !exists {
			return &UnknownNodeError{Name: to}
		}
	}
	if _, exists := b.edges[from]; exists {
		return fmt.Errorf("node %q already has an outgoing edge", from)
	}

	b.edges[from] = edge{To: to}
	return nil
}

// AddConditionalEdge wires a conditional edge: after from executes, router
// inspects the merged state and returns a label, which is mapped through
// destinations to the next node name (or END). A label missing from
// destinations is a RoutingError at run time.
//
// Returns UnknownNodeError if from or any destination node is not
// registered.
func (b *Builder) AddConditionalEdge(from string, router Router, destinations map[string]string) error {
	if _, exists := b.nodes[from]; !exists {
		return &UnknownNodeError{Name: from}
	}
	if router == nil {
		return fmt.Errorf("router for node %q cannot be nil", from)
	}
	if len(destinations) == 0 {
		return fmt.Errorf("conditional edge from %q needs at least one destination", from)
	}
	for label, dest := range destinations {
		if dest == END {
			continue
		}
		if _, exists := b.nodes[dest]; !exists {
			return &UnknownNodeError{Name: fmt.Sprintf("%s (destination for label %q)", dest, label)}
		}
	}
	if _, exists := b.edges[from]; exists {
		return fmt.Errorf("node %q already has an outgoing edge", from)
	}

	// Copy the table so later caller mutations cannot change routing.
	dests := make(map[string]string, len(destinations))
	for label, dest := range destinations {
		dests[label] = dest
	}

	b.edges[from] = edge{Router: router, Destinations: dests}
	return nil
}

// SetEntryPoint declares the node where execution starts.
// Exactly one entry point is required before Compile; calling SetEntryPoint
// again replaces the previous choice.
func (b *Builder) SetEntryPoint(name string) error {
	if _, exists := b.nodes[name]; !exists {
		return &UnknownNodeError{Name: name}
	}
	b.entry = name
	return nil
}

// Compile validates the graph definition and binds it to a checkpoint
// store, returning an executable Engine.
//
// Validation collects every violation found and reports them together in a
// single GraphValidationError:
//   - no entry point set
//   - a node reachable from the entry point with no outgoing edge
//
// Options configure execution behavior (recursion limit, emitter, metrics,
// node timeout); see the With* functions.
func (b *Builder) Compile(st store.Store[State], opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}

	var violations []string
	if b.entry == "" {
		violations = append(violations, "no entry point set")
	}

	// Every node reachable from the entry must be able to hand off control:
	// an outgoing edge, static or conditional, possibly straight to END.
	for _, name := range b.reachable() {
		if _, ok := b.edges[name]; !ok {
			violations = append(violations, fmt.Sprintf("node %q has no outgoing edge", name))
		}
	}

	if len(violations) > 0 {
		return nil, &GraphValidationError{Violations: violations}
	}

	options := defaultOptions()
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return nil, err
		}
	}

	nodes := make(map[string]Node, len(b.nodes))
	for name, node := range b.nodes {
		nodes[name] = node
	}
	edges := make(map[string]edge, len(b.edges))
	for name, e := range b.edges {
		edges[name] = e
	}
	schema := make(Schema, len(b.schema))
	for key, policy := range b.schema {
		schema[key] = policy
	}

	return &Engine{
		schema: schema,
		nodes:  nodes,
		edges:  edges,
		entry:  b.entry,
		store:  st,
		opts:   options,
	}, nil
}

// reachable returns the nodes reachable from the entry point in sorted
// order, so validation messages are deterministic.
func (b *Builder) reachable() []string {
	if b.entry == "" {
		return nil
	}

	seen := map[string]bool{b.entry: true}
	queue := []string{b.entry}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		e, ok := b.edges[current]
		if !ok {
			continue
		}
		var targets []string
		if e.conditional() {
			for _, dest := range e.Destinations {
				targets = append(targets, dest)
			}
		} else {
			targets = []string{e.To}
		}
		for _, target := range targets {
			if target == END || seen[target] {
				continue
			}
			seen[target] = true
			queue = append(queue, target)
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
