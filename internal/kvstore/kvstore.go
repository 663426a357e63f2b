// -----------------------------------------------------------------------------
// Key-Value Blob Store
// -----------------------------------------------------------------------------
//
// Package kvstore persists small opaque blobs (the MyAnimeList token state
// and the pending OAuth code verifier) across restarts. Writes replace the
// whole value for a key; readers never observe a partially written blob.
//
// Backends:
//   - File:   one file per key in a directory, written via temp file + rename
//   - Badger: embedded BadgerDB, for hosts that already keep a data dir
//   - Memory: process-local map, used by tests
//
// -----------------------------------------------------------------------------

package kvstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("kvstore: key not found")

// Store is the blob store contract.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
