// Package scratch manages the temporary directories handed to extraction
// adapters for unpacked container children.
//
// Every directory is tracked from Acquire until Release, so a crawl that
// ends early (signal, fatal error) can still Sweep the leftovers instead of
// littering the temp filesystem.
package scratch

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ErrManagerClosed is returned by Acquire after Sweep has run.
var ErrManagerClosed = errors.New("scratch manager closed")

// Manager allocates scratch directories under a single base directory and
// remembers which ones are still outstanding.
type Manager struct {
	mu     sync.Mutex
	base   string
	active map[string]*Dir
	closed bool
}

// Dir is one allocated scratch directory.
type Dir struct {
	path     string
	mgr      *Manager
	released bool
	mu       sync.Mutex
}

// NewManager creates the base directory under root. An empty root means the
// system temp directory.
func NewManager(root string) (*Manager, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0o700); err != nil {
			return nil, fmt.Errorf("create scratch root: %w", err)
		}
	}
	base, err := os.MkdirTemp(root, "gotrawl-")
	if err != nil {
		return nil, fmt.Errorf("create scratch base: %w", err)
	}
	return &Manager{base: base, active: make(map[string]*Dir)}, nil
}

// Base returns the manager's base directory.
func (m *Manager) Base() string { return m.base }

// Acquire allocates a fresh directory. The label (usually the source file's
// basename) is embedded in the directory name for debuggability.
func (m *Manager) Acquire(label string) (*Dir, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}

	path, err := os.MkdirTemp(m.base, sanitizeLabel(label)+"-")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	d := &Dir{path: path, mgr: m}
	m.active[path] = d
	return d, nil
}

// Outstanding reports how many directories have been acquired but not
// released.
func (m *Manager) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Sweep releases every outstanding directory and removes the base. The
// manager cannot be used afterwards. It returns the number of directories
// that were still live, so callers can log leaks.
func (m *Manager) Sweep() (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, nil
	}
	m.closed = true
	leaked := len(m.active)
	m.active = nil
	base := m.base
	m.mu.Unlock()

	if err := os.RemoveAll(base); err != nil {
		return leaked, fmt.Errorf("sweep scratch base: %w", err)
	}
	return leaked, nil
}

// Path returns the directory's absolute path.
func (d *Dir) Path() string { return d.path }

// Release removes the directory and its contents. Safe to call more than
// once.
func (d *Dir) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil
	}
	d.released = true

	d.mgr.mu.Lock()
	if d.mgr.active != nil {
		delete(d.mgr.active, d.path)
	}
	d.mgr.mu.Unlock()

	if err := os.RemoveAll(d.path); err != nil {
		return fmt.Errorf("release scratch dir: %w", err)
	}
	return nil
}

// sanitizeLabel keeps directory names filesystem-safe and short.
func sanitizeLabel(label string) string {
	if label == "" {
		return "scratch"
	}
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, label)
	const max = 48
	if len(cleaned) > max {
		cleaned = cleaned[:max]
	}
	return cleaned
}
