package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Dir is the on-disk location of the database. Ignored when
	// InMemory is set.
	Dir string

	// InMemory keeps everything in RAM. Useful in tests.
	InMemory bool

	// SyncWrites fsyncs every commit. Slower, survives power loss.
	SyncWrites bool
}

// BadgerStore is an embedded key-value implementation of Store[S] on
// BadgerDB. No external process is needed, which makes it a good fit
// for CLI tools and single-binary deployments that still want durable
// threads.
//
// Each thread keeps an append log keyed by a monotonic counter plus an
// index keyed by checkpoint id, both written in one transaction.
type BadgerStore[S any] struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a Badger-backed store.
func NewBadgerStore[S any](cfg BadgerConfig) (*BadgerStore[S], error) {
	opts := badger.DefaultOptions(cfg.Dir).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerStore[S]{db: db}, nil
}

func badgerLogPrefix(threadID string) []byte {
	return []byte(fmt.Sprintf("t/%s/log/", threadID))
}

func badgerLogKey(threadID string, n uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	return append(badgerLogPrefix(threadID), buf[:]...)
}

func badgerIDKey(threadID, checkpointID string) []byte {
	return []byte(fmt.Sprintf("t/%s/id/%s", threadID, checkpointID))
}

func badgerCounterKey(threadID string) []byte {
	return []byte(fmt.Sprintf("t/%s/ctr", threadID))
}

// Put appends a checkpoint (implements Store).
func (b *BadgerStore[S]) Put(_ context.Context, cp Checkpoint[S]) (string, error) {
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerIDKey(cp.ThreadID, cp.ID))
		switch {
		case err == nil:
			var existing Checkpoint[S]
			if derr := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &existing)
			}); derr != nil {
				return fmt.Errorf("failed to decode stored checkpoint: %w", derr)
			}
			if !payloadEqual(existing, cp) {
				return fmt.Errorf("%w: checkpoint %s", ErrCheckpointConflict, cp.ID)
			}
			return nil
		case err != badger.ErrKeyNotFound:
			return fmt.Errorf("failed to check existing checkpoint: %w", err)
		}

		var n uint64
		if item, err := txn.Get(badgerCounterKey(cp.ThreadID)); err == nil {
			if derr := item.Value(func(val []byte) error {
				n = binary.BigEndian.Uint64(val)
				return nil
			}); derr != nil {
				return derr
			}
		} else if err != badger.ErrKeyNotFound {
			return fmt.Errorf("failed to read thread counter: %w", err)
		}
		n++

		data, err := json.Marshal(cp)
		if err != nil {
			return fmt.Errorf("failed to marshal checkpoint: %w", err)
		}

		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], n)
		if err := txn.Set(badgerCounterKey(cp.ThreadID), buf[:]); err != nil {
			return err
		}
		if err := txn.Set(badgerLogKey(cp.ThreadID, n), data); err != nil {
			return err
		}
		return txn.Set(badgerIDKey(cp.ThreadID, cp.ID), data)
	})
	if err != nil {
		return "", err
	}
	return cp.ID, nil
}

// GetLatest returns the most recently appended checkpoint for a thread
// (implements Store).
func (b *BadgerStore[S]) GetLatest(_ context.Context, threadID string) (Checkpoint[S], error) {
	var cp Checkpoint[S]
	found := false

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = badgerLogPrefix(threadID)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts just past the prefix range.
		it.Seek(append(badgerLogPrefix(threadID), 0xff))
		if !it.Valid() {
			return nil
		}
		found = true
		return it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &cp)
		})
	})
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to load latest checkpoint: %w", err)
	}
	if !found {
		return Checkpoint[S]{}, ErrNotFound
	}
	return cp, nil
}

// Get returns a checkpoint by id (implements Store).
func (b *BadgerStore[S]) Get(_ context.Context, threadID, checkpointID string) (Checkpoint[S], error) {
	var cp Checkpoint[S]

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerIDKey(threadID, checkpointID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cp)
		})
	})
	if err == badger.ErrKeyNotFound {
		return Checkpoint[S]{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return cp, nil
}

// History returns all checkpoints for a thread, most recent first
// (implements Store).
func (b *BadgerStore[S]) History(_ context.Context, threadID string) ([]Checkpoint[S], error) {
	out := make([]Checkpoint[S], 0)

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = badgerLogPrefix(threadID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append(badgerLogPrefix(threadID), 0xff)); it.Valid(); it.Next() {
			var cp Checkpoint[S]
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &cp)
			}); err != nil {
				return fmt.Errorf("failed to decode checkpoint: %w", err)
			}
			out = append(out, cp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteThread removes every checkpoint for a thread (implements Store).
func (b *BadgerStore[S]) DeleteThread(_ context.Context, threadID string) error {
	keys := make([][]byte, 0)

	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(fmt.Sprintf("t/%s/", threadID))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan thread keys: %w", err)
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("failed to delete thread: %w", err)
		}
	}
	return wb.Flush()
}

// Close closes the underlying database.
func (b *BadgerStore[S]) Close() error {
	return b.db.Close()
}
