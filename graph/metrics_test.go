package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/statekit/stategraph/graph/store"
)

// TestPrometheusMetrics verifies the engine records execution metrics.
func TestPrometheusMetrics(t *testing.T) {
	t.Run("steps and checkpoints counted on success", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewPrometheusMetrics(registry)
		engine := pipelineEngine(t, store.NewMemStore[State](), WithMetrics(metrics))

		_, err := engine.Invoke(context.Background(), "t1", State{})
		if err != nil {
			t.Fatalf("Invoke failed: %v", err)
		}

		fetchSteps := testutil.ToFloat64(metrics.steps.WithLabelValues("fetch", "success"))
		if fetchSteps != 1 {
			t.Errorf("expected 1 fetch step, got %v", fetchSteps)
		}
		summarizeSteps := testutil.ToFloat64(metrics.steps.WithLabelValues("summarize", "success"))
		if summarizeSteps != 1 {
			t.Errorf("expected 1 summarize step, got %v", summarizeSteps)
		}

		// Synthetic initial checkpoint plus one per step.
		checkpoints := testutil.ToFloat64(metrics.checkpoints)
		if checkpoints != 3 {
			t.Errorf("expected 3 checkpoints, got %v", checkpoints)
		}

		inflight := testutil.ToFloat64(metrics.inflight)
		if inflight != 0 {
			t.Errorf("expected 0 inflight after completion, got %v", inflight)
		}
	})

	t.Run("node failure counted with error status", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewPrometheusMetrics(registry)

		b := NewBuilder(nil)
		_ = b.AddNode("bad", NodeFunc(func(ctx context.Context, s State) (State, error) {
			return nil, errors.New("boom")
		}))
		_ = b.AddEdge("bad", END)
		_ = b.SetEntryPoint("bad")
		engine, err := b.Compile(store.NewMemStore[State](), WithMetrics(metrics))
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}

		_, _ = engine.Invoke(context.Background(), "t1", State{})

		errorSteps := testutil.ToFloat64(metrics.steps.WithLabelValues("bad", "error"))
		if errorSteps != 1 {
			t.Errorf("expected 1 error step, got %v", errorSteps)
		}
	})

	t.Run("recursion limit hits counted", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewPrometheusMetrics(registry)
		engine := counterEngine(t, store.NewMemStore[State](), 1000,
			WithRecursionLimit(3), WithMetrics(metrics))

		_, err := engine.Invoke(context.Background(), "t1", State{"count": 0})
		if !errors.Is(err, ErrRecursionLimit) {
			t.Fatalf("expected ErrRecursionLimit, got %v", err)
		}

		hits := testutil.ToFloat64(metrics.recursionLimitHits)
		if hits != 1 {
			t.Errorf("expected 1 recursion limit hit, got %v", hits)
		}
	})

	t.Run("fork checkpoints counted", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		metrics := NewPrometheusMetrics(registry)
		st := store.NewMemStore[State]()
		engine := pipelineEngine(t, st, WithMetrics(metrics))

		ctx := context.Background()
		_, err := engine.Invoke(ctx, "t1", State{})
		if err != nil {
			t.Fatalf("Invoke failed: %v", err)
		}
		history, _ := engine.GetStateHistory(ctx, "t1")

		before := testutil.ToFloat64(metrics.checkpoints)
		if _, err := engine.UpdateState(ctx, "t1", history[1].ID, State{"data": "manual"}, "fetch"); err != nil {
			t.Fatalf("UpdateState failed: %v", err)
		}
		after := testutil.ToFloat64(metrics.checkpoints)

		if after != before+1 {
			t.Errorf("expected one more checkpoint, got %v then %v", before, after)
		}
	})
}
