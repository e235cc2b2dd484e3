// Package storage implements the byte-level I/O contract (C0) the
// WAL and snapshot writers consume: a file-namespaced key space with
// read, write, append, atomic (rename-into-place) write, and delete.
// Concrete adapters are external collaborators plugged into the
// engine; this package ships four of them.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Adapter is the capability surface every storage backend exposes.
// Implementations must make Write and AtomicWrite visible to a
// subsequent Read only after they return successfully.
type Adapter interface {
	// Read returns the full contents stored under key, or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)
	// Write overwrites key's contents, creating it if absent.
	Write(ctx context.Context, key string, data []byte) error
	// Append adds data to the end of key's existing contents (or
	// creates it, if absent). Each call's bytes are appended whole.
	Append(ctx context.Context, key string, data []byte) error
	// AtomicWrite makes data visible under key atomically: readers
	// either see the complete prior contents or the complete new
	// contents, never a partial write.
	AtomicWrite(ctx context.Context, key string, data []byte) error
	// Del removes key. Deleting an absent key is not an error.
	Del(ctx context.Context, key string) error
}
