package graph

import (
	"testing"
	"time"

	"github.com/statekit/stategraph/graph/emit"
)

// TestOptions_Defaults verifies the compiled defaults.
func TestOptions_Defaults(t *testing.T) {
	opts := defaultOptions()

	if opts.RecursionLimit != DefaultRecursionLimit {
		t.Errorf("expected recursion limit %d, got %d", DefaultRecursionLimit, opts.RecursionLimit)
	}
	if opts.MaxConcurrent != DefaultMaxConcurrent {
		t.Errorf("expected max concurrent %d, got %d", DefaultMaxConcurrent, opts.MaxConcurrent)
	}
	if opts.NodeTimeout != 0 {
		t.Errorf("expected no node timeout, got %s", opts.NodeTimeout)
	}
	if opts.Emitter != nil || opts.Metrics != nil {
		t.Error("expected nil emitter and metrics by default")
	}
}

// TestOptions_Validation verifies option argument checks.
func TestOptions_Validation(t *testing.T) {
	cases := []struct {
		name    string
		opt     Option
		wantErr bool
	}{
		{"positive recursion limit", WithRecursionLimit(10), false},
		{"zero recursion limit", WithRecursionLimit(0), true},
		{"negative recursion limit", WithRecursionLimit(-1), true},
		{"positive max concurrent", WithMaxConcurrent(4), false},
		{"zero max concurrent", WithMaxConcurrent(0), true},
		{"positive node timeout", WithNodeTimeout(time.Second), false},
		{"zero node timeout", WithNodeTimeout(0), false},
		{"negative node timeout", WithNodeTimeout(-time.Second), true},
		{"emitter", WithEmitter(emit.NewNullEmitter()), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := defaultOptions()
			err := tc.opt(&opts)
			if tc.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// TestCallOptions verifies per-call overrides.
func TestCallOptions(t *testing.T) {
	t.Run("WithLimit overrides the engine default", func(t *testing.T) {
		e := &Engine{opts: Options{RecursionLimit: 25}}
		if got := e.callLimit([]CallOption{WithLimit(3)}); got != 3 {
			t.Errorf("expected 3, got %d", got)
		}
	})

	t.Run("no options keeps the engine default", func(t *testing.T) {
		e := &Engine{opts: Options{RecursionLimit: 40}}
		if got := e.callLimit(nil); got != 40 {
			t.Errorf("expected 40, got %d", got)
		}
	})

	t.Run("non-positive override falls back to default", func(t *testing.T) {
		e := &Engine{opts: Options{RecursionLimit: 40}}
		if got := e.callLimit([]CallOption{WithLimit(0)}); got != DefaultRecursionLimit {
			t.Errorf("expected %d, got %d", DefaultRecursionLimit, got)
		}
	})
}
