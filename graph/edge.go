package graph

// edge is the compiled outgoing transition of a node.
//
// A node has at most one outgoing edge, which is either static (To is set)
// or conditional (Router plus a closed destinations table). For explicit
// termination a static edge points at END.
type edge struct {
	// To is the fixed destination for a static edge. Empty for conditional
	// edges.
	To string

	// Router selects a label from the post-node state. Nil for static edges.
	Router Router

	// Destinations maps router labels to node names (or END). A label
	// outside this table is a RoutingError at run time.
	Destinations map[string]string
}

// conditional reports whether the edge routes through a Router.
func (e edge) conditional() bool {
	return e.Router != nil
}
