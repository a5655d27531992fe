// Package session provides the durable key-set stores behind crawl resume
// and duplicate suppression.
//
// A Store is a persistent set of claimed keys with one atomic primitive:
// Claim inserts a key if absent and reports whether the insert won. Workers
// and cooperating processes agree on file ownership through that single
// operation. The default backend is an embedded SQLite database; an
// append-only text backend exists for constrained environments and is safe
// only under a single process with a single worker.
package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"github.com/3leaps/gotrawl/pkg/urlmap"
)

var (
	// ErrStoreClosed is returned on operations against a closed store.
	ErrStoreClosed = errors.New("session: store is closed")

	// ErrStoreLocked is returned when another process holds the store's
	// exclusive lock.
	ErrStoreLocked = errors.New("session: store is locked by another process")
)

// Store is a durable claimed-key set.
//
// Contains and Claim are safe for concurrent use. Presence of a key means
// "already handled; do not process again", in this run or any later run
// sharing the store.
type Store interface {
	// Init creates the backing schema. Idempotent.
	Init(ctx context.Context) error

	// Contains reports whether key has been claimed.
	Contains(ctx context.Context, key string) (bool, error)

	// Claim atomically inserts key if absent and reports whether this
	// caller won the insert. A false return with nil error means another
	// worker or an earlier run already holds the key.
	Claim(ctx context.Context, key string) (bool, error)

	// Count returns the number of claimed keys.
	Count(ctx context.Context) (int64, error)

	// Close releases the store.
	Close() error
}

// SessionPath returns the hidden session database path for a crawl root,
// placed under dir.
func SessionPath(dir, root string) string {
	return filepath.Join(dir, "."+urlmap.RootStem(root)+".session.db")
}

// DedupePath returns the hidden dedup database path for a crawl root,
// placed under dir.
func DedupePath(dir, root string) string {
	return filepath.Join(dir, "."+urlmap.RootStem(root)+".dedupe.db")
}

// Fingerprint hashes a crawl scope (root plus predicate description) into a
// short stable hex token. Resuming a session with a different fingerprint
// means the processed-set was built under a different predicate.
func Fingerprint(parts ...string) string {
	h := xxhash.New()
	for _, p := range parts {
		_, _ = h.WriteString(p)
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
