package session

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// TextStore is the append-only text session backend: one claimed path per
// line, guarded by an exclusive file lock for the store's lifetime.
//
// The lock keeps a second process out, but within the process the claimed
// set lives in memory, so the engine must clamp itself to a single worker
// when this backend is selected.
type TextStore struct {
	mu     sync.Mutex
	f      *os.File
	seen   map[string]struct{}
	closed bool
}

// OpenText opens (creating if needed) a text session file and loads the
// claimed set. A file locked by another process yields ErrStoreLocked.
func OpenText(path string) (*TextStore, error) {
	if err := ensureStoreDir(path); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open session file: %w", err)
	}
	if err := lockStoreFile(f); err != nil {
		_ = f.Close()
		return nil, err
	}

	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		seen[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		_ = unlockStoreFile(f)
		_ = f.Close()
		return nil, fmt.Errorf("load session file: %w", err)
	}

	return &TextStore{f: f, seen: seen}, nil
}

// Init is a no-op: OpenText already created and loaded the file.
func (t *TextStore) Init(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrStoreClosed
	}
	return nil
}

// Contains reports whether key has been claimed.
func (t *TextStore) Contains(_ context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false, ErrStoreClosed
	}
	_, ok := t.seen[key]
	return ok, nil
}

// Claim appends key if absent. Line-oriented storage cannot hold paths
// containing newlines; those are rejected.
func (t *TextStore) Claim(_ context.Context, key string) (bool, error) {
	if strings.ContainsAny(key, "\r\n") {
		return false, fmt.Errorf("session: path contains line break: %q", key)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false, ErrStoreClosed
	}
	if _, ok := t.seen[key]; ok {
		return false, nil
	}

	if _, err := t.f.WriteString(key + "\n"); err != nil {
		return false, fmt.Errorf("append session file: %w", err)
	}
	t.seen[key] = struct{}{}
	return true, nil
}

// Count returns the number of claimed keys.
func (t *TextStore) Count(_ context.Context) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrStoreClosed
	}
	return int64(len(t.seen)), nil
}

// Close syncs, releases the lock, and closes the file. Idempotent.
func (t *TextStore) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	var firstErr error
	if err := t.f.Sync(); err != nil {
		firstErr = err
	}
	if err := unlockStoreFile(t.f); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := t.f.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Compile-time check that TextStore implements Store.
var _ Store = (*TextStore)(nil)
