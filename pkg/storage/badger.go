package storage

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// BadgerOptions configures a BadgerAdapter.
type BadgerOptions struct {
	Dir          string
	InMemory     bool
	SyncWrites   bool
	ValueLogMaxMB int64
}

// DefaultBadgerOptions returns durable, on-disk, ZSTD-compressed
// defaults suitable for a single embedded engine instance.
func DefaultBadgerOptions(dir string) BadgerOptions {
	return BadgerOptions{Dir: dir, SyncWrites: true, ValueLogMaxMB: 64}
}

// BadgerAdapter backs the Adapter contract with an embedded Badger
// LSM-tree store. Keys and values are plain bytes; every operation
// runs inside a Badger transaction so Read always observes a
// completed Write or AtomicWrite, never a torn one.
type BadgerAdapter struct {
	db *badger.DB
}

// OpenBadger opens (creating if absent) a Badger database at opt.Dir.
func OpenBadger(opt BadgerOptions) (*BadgerAdapter, error) {
	bopts := badger.DefaultOptions(opt.Dir).
		WithCompression(options.ZSTD).
		WithSyncWrites(opt.SyncWrites)
	if opt.InMemory {
		bopts = bopts.WithInMemory(true)
	}
	if opt.ValueLogMaxMB > 0 {
		bopts = bopts.WithValueLogFileSize(opt.ValueLogMaxMB << 20)
	}
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("storage: opening badger at %s: %w", opt.Dir, err)
	}
	return &BadgerAdapter{db: db}, nil
}

// Close releases the underlying database handle.
func (b *BadgerAdapter) Close() error {
	return b.db.Close()
}

func (b *BadgerAdapter) Read(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: badger read %s: %w", key, err)
	}
	return out, nil
}

func (b *BadgerAdapter) Write(_ context.Context, key string, data []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("storage: badger write %s: %w", key, err)
	}
	return nil
}

// Append reads the current value and the new bytes inside one
// transaction, so a concurrent writer never observes a half-appended
// value nor loses an interleaved append.
func (b *BadgerAdapter) Append(_ context.Context, key string, data []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		var existing []byte
		item, err := txn.Get([]byte(key))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			existing = nil
		case err != nil:
			return err
		default:
			if verr := item.Value(func(val []byte) error {
				existing = append([]byte(nil), val...)
				return nil
			}); verr != nil {
				return verr
			}
		}
		return txn.Set([]byte(key), append(existing, data...))
	})
	if err != nil {
		return fmt.Errorf("storage: badger append %s: %w", key, err)
	}
	return nil
}

// AtomicWrite is just Write: a Badger transaction commit is already
// all-or-nothing, so there is no separate staging step needed.
func (b *BadgerAdapter) AtomicWrite(ctx context.Context, key string, data []byte) error {
	return b.Write(ctx, key, data)
}

func (b *BadgerAdapter) Del(_ context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("storage: badger delete %s: %w", key, err)
	}
	return nil
}
