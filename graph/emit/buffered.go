package emit

import "sync"

// BufferedEmitter implements Emitter by storing events in memory, organized
// by thread id, with query support for post-execution analysis.
//
// Use cases:
//   - Development and debugging
//   - Assertions in tests
//   - Rendering execution history in a UI
//
// Warning: events accumulate for the life of the process; call Clear or
// ClearAll for long-running deployments.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // threadID -> events in emission order
}

// HistoryFilter selects a subset of a thread's events. All fields are
// optional and combine with AND logic.
type HistoryFilter struct {
	NodeID string // filter by node id (empty = no filter)
	Msg    string // filter by message (empty = no filter)
	MinSeq *int   // minimum sequence number (nil = no lower bound)
	MaxSeq *int   // maximum sequence number (nil = no upper bound)
}

// NewBufferedEmitter creates an empty buffer. Safe for concurrent use.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit stores the event in the buffer.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.ThreadID] = append(b.events[event.ThreadID], event)
}

// GetHistory returns all events for a thread in emission order.
// The returned slice is a copy.
func (b *BufferedEmitter) GetHistory(threadID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	events := b.events[threadID]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// GetHistoryWithFilter returns the thread's events matching the filter, in
// emission order.
func (b *BufferedEmitter) GetHistoryWithFilter(threadID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, ev := range b.events[threadID] {
		if filter.NodeID != "" && ev.NodeID != filter.NodeID {
			continue
		}
		if filter.Msg != "" && ev.Msg != filter.Msg {
			continue
		}
		if filter.MinSeq != nil && ev.Seq < *filter.MinSeq {
			continue
		}
		if filter.MaxSeq != nil && ev.Seq > *filter.MaxSeq {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Clear drops all buffered events for one thread.
func (b *BufferedEmitter) Clear(threadID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.events, threadID)
}

// ClearAll drops every buffered event.
func (b *BufferedEmitter) ClearAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = make(map[string][]Event)
}
