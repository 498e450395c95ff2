package config

import (
	"fmt"

	"github.com/statekit/stategraph/graph"
	"github.com/statekit/stategraph/graph/store"
)

// OpenStore opens the checkpoint backend named by the config. The
// returned close function releases the backend's resources; for
// backends with nothing to release it is a no-op.
func OpenStore(cfg Config) (store.Store[graph.State], func() error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	noop := func() error { return nil }

	switch cfg.Store {
	case "memory":
		return store.NewMemStore[graph.State](), noop, nil

	case "sqlite":
		st, err := store.NewSQLiteStore[graph.State](cfg.SQLite.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, st.Close, nil

	case "mysql":
		st, err := store.NewMySQLStore[graph.State](cfg.MySQL.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql store: %w", err)
		}
		return st, st.Close, nil

	case "redis":
		opts := []store.RedisOption{}
		if cfg.Redis.KeyPrefix != "" {
			opts = append(opts, store.WithKeyPrefix(cfg.Redis.KeyPrefix))
		}
		if cfg.Redis.ThreadTTL > 0 {
			opts = append(opts, store.WithThreadTTL(cfg.Redis.ThreadTTL.Std()))
		}
		st, err := store.NewRedisStore[graph.State](cfg.Redis.Addr, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis store: %w", err)
		}
		return st, st.Close, nil

	case "badger":
		st, err := store.NewBadgerStore[graph.State](store.BadgerConfig{
			Dir:        cfg.Badger.Dir,
			InMemory:   cfg.Badger.InMemory,
			SyncWrites: cfg.Badger.SyncWrites,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open badger store: %w", err)
		}
		return st, st.Close, nil
	}

	return nil, nil, fmt.Errorf("unknown store backend: %q", cfg.Store)
}

// EngineOptions converts the config's engine settings into functional
// options for Builder.Compile.
func EngineOptions(cfg Config) []graph.Option {
	opts := []graph.Option{}
	if cfg.RecursionLimit > 0 {
		opts = append(opts, graph.WithRecursionLimit(cfg.RecursionLimit))
	}
	if cfg.MaxConcurrent > 0 {
		opts = append(opts, graph.WithMaxConcurrent(cfg.MaxConcurrent))
	}
	if cfg.NodeTimeout > 0 {
		opts = append(opts, graph.WithNodeTimeout(cfg.NodeTimeout.Std()))
	}
	return opts
}
