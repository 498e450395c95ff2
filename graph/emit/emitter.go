package emit

// Emitter receives observability events from thread execution.
//
// Implementations should be:
//   - Non-blocking: avoid slowing down execution
//   - Thread-safe: may be called concurrently from Batch workers
//   - Resilient: handle backend failures without crashing the workflow
//
// Emit must not panic; errors should be handled internally.
type Emitter interface {
	Emit(event Event)
}
