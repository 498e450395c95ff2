package emit

import (
	"fmt"
	"sync"
	"testing"
)

// TestBufferedEmitter verifies buffering and querying.
func TestBufferedEmitter(t *testing.T) {
	t.Run("stores events per thread in order", func(t *testing.T) {
		b := NewBufferedEmitter()
		b.Emit(Event{ThreadID: "t1", Seq: 1, NodeID: "a"})
		b.Emit(Event{ThreadID: "t2", Seq: 1, NodeID: "x"})
		b.Emit(Event{ThreadID: "t1", Seq: 2, NodeID: "b"})

		history := b.GetHistory("t1")
		if len(history) != 2 {
			t.Fatalf("expected 2 events, got %d", len(history))
		}
		if history[0].NodeID != "a" || history[1].NodeID != "b" {
			t.Errorf("wrong order: %v", history)
		}
	})

	t.Run("unknown thread yields empty history", func(t *testing.T) {
		b := NewBufferedEmitter()
		if got := b.GetHistory("nope"); len(got) != 0 {
			t.Errorf("expected empty history, got %v", got)
		}
	})

	t.Run("returned slice is a copy", func(t *testing.T) {
		b := NewBufferedEmitter()
		b.Emit(Event{ThreadID: "t1", NodeID: "a"})

		history := b.GetHistory("t1")
		history[0].NodeID = "tampered"

		if b.GetHistory("t1")[0].NodeID != "a" {
			t.Error("caller mutation leaked into the buffer")
		}
	})

	t.Run("clear drops one thread only", func(t *testing.T) {
		b := NewBufferedEmitter()
		b.Emit(Event{ThreadID: "t1"})
		b.Emit(Event{ThreadID: "t2"})

		b.Clear("t1")

		if len(b.GetHistory("t1")) != 0 {
			t.Error("t1 not cleared")
		}
		if len(b.GetHistory("t2")) != 1 {
			t.Error("t2 was cleared")
		}
	})

	t.Run("clear all drops everything", func(t *testing.T) {
		b := NewBufferedEmitter()
		b.Emit(Event{ThreadID: "t1"})
		b.Emit(Event{ThreadID: "t2"})

		b.ClearAll()

		if len(b.GetHistory("t1"))+len(b.GetHistory("t2")) != 0 {
			t.Error("events survived ClearAll")
		}
	})

	t.Run("concurrent emits are safe", func(t *testing.T) {
		b := NewBufferedEmitter()
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					b.Emit(Event{ThreadID: fmt.Sprintf("t%d", n%2), Seq: j})
				}
			}(i)
		}
		wg.Wait()

		total := len(b.GetHistory("t0")) + len(b.GetHistory("t1"))
		if total != 1000 {
			t.Errorf("expected 1000 events, got %d", total)
		}
	})
}

// TestBufferedEmitter_Filter verifies AND-composed filters.
func TestBufferedEmitter_Filter(t *testing.T) {
	b := NewBufferedEmitter()
	b.Emit(Event{ThreadID: "t1", Seq: 1, NodeID: "a", Msg: "node completed"})
	b.Emit(Event{ThreadID: "t1", Seq: 2, NodeID: "b", Msg: "node completed"})
	b.Emit(Event{ThreadID: "t1", Seq: 3, NodeID: "a", Msg: "state updated"})
	b.Emit(Event{ThreadID: "t1", Seq: 4, NodeID: "a", Msg: "node completed"})

	t.Run("by node id", func(t *testing.T) {
		got := b.GetHistoryWithFilter("t1", HistoryFilter{NodeID: "a"})
		if len(got) != 3 {
			t.Errorf("expected 3 events, got %d", len(got))
		}
	})

	t.Run("by message", func(t *testing.T) {
		got := b.GetHistoryWithFilter("t1", HistoryFilter{Msg: "state updated"})
		if len(got) != 1 || got[0].Seq != 3 {
			t.Errorf("unexpected events: %v", got)
		}
	})

	t.Run("by sequence range", func(t *testing.T) {
		min, max := 2, 3
		got := b.GetHistoryWithFilter("t1", HistoryFilter{MinSeq: &min, MaxSeq: &max})
		if len(got) != 2 {
			t.Errorf("expected 2 events, got %d", len(got))
		}
	})

	t.Run("filters combine with AND", func(t *testing.T) {
		min := 2
		got := b.GetHistoryWithFilter("t1", HistoryFilter{NodeID: "a", Msg: "node completed", MinSeq: &min})
		if len(got) != 1 || got[0].Seq != 4 {
			t.Errorf("unexpected events: %v", got)
		}
	})

	t.Run("empty filter returns everything", func(t *testing.T) {
		got := b.GetHistoryWithFilter("t1", HistoryFilter{})
		if len(got) != 4 {
			t.Errorf("expected 4 events, got %d", len(got))
		}
	})
}
