package graph

import (
	"reflect"
	"testing"
)

// TestSchema_Merge verifies per-key merge policies.
func TestSchema_Merge(t *testing.T) {
	t.Run("replace overwrites previous value", func(t *testing.T) {
		schema := Schema{"topic": Replace}
		merged := schema.Merge(State{"topic": "cats"}, State{"topic": "dogs"})

		if merged["topic"] != "dogs" {
			t.Errorf("expected topic = dogs, got %v", merged["topic"])
		}
	})

	t.Run("undeclared key defaults to replace", func(t *testing.T) {
		schema := Schema{}
		merged := schema.Merge(State{"x": 1}, State{"x": 2})

		if merged["x"] != 2 {
			t.Errorf("expected x = 2, got %v", merged["x"])
		}
	})

	t.Run("accumulate appends preserving order", func(t *testing.T) {
		schema := Schema{"log": Accumulate}
		merged := schema.Merge(
			State{"log": []any{"a", "b"}},
			State{"log": []any{"c"}},
		)

		want := []any{"a", "b", "c"}
		if !reflect.DeepEqual(merged["log"], want) {
			t.Errorf("expected log = %v, got %v", want, merged["log"])
		}
	})

	t.Run("accumulate wraps scalar delta as one-element list", func(t *testing.T) {
		schema := Schema{"log": Accumulate}
		merged := schema.Merge(State{"log": []any{"a"}}, State{"log": "b"})

		want := []any{"a", "b"}
		if !reflect.DeepEqual(merged["log"], want) {
			t.Errorf("expected log = %v, got %v", want, merged["log"])
		}
	})

	t.Run("accumulate on missing key initializes sequence", func(t *testing.T) {
		schema := Schema{"log": Accumulate}
		merged := schema.Merge(State{}, State{"log": "first"})

		want := []any{"first"}
		if !reflect.DeepEqual(merged["log"], want) {
			t.Errorf("expected log = %v, got %v", want, merged["log"])
		}
	})

	t.Run("accumulate wraps scalar current value", func(t *testing.T) {
		schema := Schema{"log": Accumulate}
		merged := schema.Merge(State{"log": "a"}, State{"log": "b"})

		want := []any{"a", "b"}
		if !reflect.DeepEqual(merged["log"], want) {
			t.Errorf("expected log = %v, got %v", want, merged["log"])
		}
	})

	t.Run("keys absent from delta are untouched", func(t *testing.T) {
		schema := Schema{"a": Replace, "b": Replace}
		merged := schema.Merge(State{"a": 1, "b": 2}, State{"a": 10})

		if merged["a"] != 10 {
			t.Errorf("expected a = 10, got %v", merged["a"])
		}
		if merged["b"] != 2 {
			t.Errorf("expected b = 2, got %v", merged["b"])
		}
	})

	t.Run("merge does not mutate inputs", func(t *testing.T) {
		schema := Schema{"log": Accumulate}
		current := State{"log": []any{"a"}}
		delta := State{"log": []any{"b"}}

		_ = schema.Merge(current, delta)

		if !reflect.DeepEqual(current["log"], []any{"a"}) {
			t.Errorf("current mutated: %v", current["log"])
		}
		if !reflect.DeepEqual(delta["log"], []any{"b"}) {
			t.Errorf("delta mutated: %v", delta["log"])
		}
	})

	t.Run("merge is deterministic", func(t *testing.T) {
		schema := Schema{"log": Accumulate, "topic": Replace}
		current := State{"log": []any{"a"}, "topic": "x"}
		delta := State{"log": "b", "topic": "y"}

		first := schema.Merge(current, delta)
		second := schema.Merge(current, delta)

		if !reflect.DeepEqual(first, second) {
			t.Errorf("merge not deterministic: %v vs %v", first, second)
		}
	})

	t.Run("empty delta returns equal state", func(t *testing.T) {
		schema := Schema{"a": Replace}
		current := State{"a": 1}
		merged := schema.Merge(current, State{})

		if !reflect.DeepEqual(merged, current) {
			t.Errorf("expected %v, got %v", current, merged)
		}
	})
}

// TestState_Clone verifies deep copies are independent of the source.
func TestState_Clone(t *testing.T) {
	t.Run("nested values are independent", func(t *testing.T) {
		src := State{"nested": map[string]any{"k": "v"}, "list": []any{1, 2}}
		cp, err := src.Clone()
		if err != nil {
			t.Fatalf("Clone failed: %v", err)
		}

		cp["nested"].(map[string]any)["k"] = "changed"
		cp["list"] = append(cp["list"].([]any), 3)

		if src["nested"].(map[string]any)["k"] != "v" {
			t.Error("clone shares nested map with source")
		}
		if len(src["list"].([]any)) != 2 {
			t.Error("clone shares list with source")
		}
	})

	t.Run("nil state clones to empty", func(t *testing.T) {
		var src State
		cp, err := src.Clone()
		if err != nil {
			t.Fatalf("Clone failed: %v", err)
		}

		if cp == nil {
			t.Fatal("expected non-nil clone")
		}
		if len(cp) != 0 {
			t.Errorf("expected empty clone, got %v", cp)
		}
	})

	t.Run("unserializable value returns error", func(t *testing.T) {
		src := State{"bad": func() {}}
		if _, err := src.Clone(); err == nil {
			t.Error("expected error for unserializable value")
		}
	})
}

// TestPolicy_String verifies policy names.
func TestPolicy_String(t *testing.T) {
	cases := []struct {
		policy Policy
		want   string
	}{
		{Replace, "replace"},
		{Accumulate, "accumulate"},
		{Policy(99), "policy(99)"},
	}
	for _, tc := range cases {
		if got := tc.policy.String(); got != tc.want {
			t.Errorf("Policy(%d).String() = %q, want %q", tc.policy, got, tc.want)
		}
	}
}
