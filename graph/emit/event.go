package emit

// Event is an observability event emitted during thread execution.
//
// The engine emits events for thread start, node completion, checkpoint
// forks, replays, and recursion-limit hits. Emitters route them to a
// backend: stdout, an in-memory buffer, or OpenTelemetry spans.
type Event struct {
	// ThreadID identifies the thread that emitted this event.
	ThreadID string

	// Seq is the checkpoint sequence number the event refers to.
	// Zero for thread-level events.
	Seq int

	// NodeID identifies the node involved. Empty for thread-level events.
	NodeID string

	// Msg is a short human-readable description, e.g. "node completed".
	Msg string

	// Meta carries additional structured data. Common keys:
	//   - "checkpoint_id": id of the checkpoint the step produced
	//   - "next": the pending node after the step
	//   - "limit": the recursion ceiling that was hit
	//   - "forked_from": the checkpoint a fork branched off
	Meta map[string]any
}
