package output

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// DefaultBufferBytes is the append-buffer threshold when none is configured.
const DefaultBufferBytes = 64 * 1024

// Writer accepts crawl result records.
//
// Implementations must be safe for concurrent use from multiple worker
// goroutines. Each record is emitted as a single complete CSV line.
type Writer interface {
	// WriteRecord buffers one record for append.
	WriteRecord(ctx context.Context, rec *FileRecord) error

	// Flush appends everything buffered so far.
	Flush() error

	// Close flushes, syncs, and releases the output file.
	Close() error
}

// CSVWriter appends records to a single CSV file.
//
// Records accumulate in memory and are appended once the buffer crosses
// the configured threshold, on Flush, and on Close. A mutex serializes all
// access; an optional exclusive file lock guards the file when several
// processes share one output.
type CSVWriter struct {
	mu     sync.Mutex
	f      *os.File
	buf    bytes.Buffer
	max    int
	locked bool
	closed bool
}

// Options configures a CSVWriter.
type Options struct {
	// BufferBytes is the threshold at which the buffer is appended.
	// Zero means DefaultBufferBytes; negative disables buffering (every
	// record is appended immediately).
	BufferBytes int

	// LockFile takes an exclusive OS lock on the output for the writer's
	// lifetime. Required when multiple processes append to one file.
	LockFile bool
}

// NewCSVWriter opens (creating if needed) the output file for append.
func NewCSVWriter(path string, opts Options) (*CSVWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, &WriteError{Op: "open", Err: err}
	}

	w := &CSVWriter{f: f, max: opts.BufferBytes}
	if w.max == 0 {
		w.max = DefaultBufferBytes
	}

	if opts.LockFile {
		if err := lockFile(f); err != nil {
			_ = f.Close()
			return nil, &WriteError{Op: "lock", Err: err}
		}
		w.locked = true
	}

	return w, nil
}

// WriteRecord encodes and buffers one record, appending the buffer when it
// crosses the threshold.
func (w *CSVWriter) WriteRecord(ctx context.Context, rec *FileRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line := encodeRow(rec)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	w.buf.Write(line)
	if w.buf.Len() >= w.max {
		return w.flushLocked()
	}
	return nil
}

// Flush appends any buffered rows.
func (w *CSVWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	return w.flushLocked()
}

// Close flushes, syncs, releases the lock, and closes the file. Closing an
// already-closed writer is a no-op.
func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	flushErr := w.flushLocked()
	if err := w.f.Sync(); err != nil && flushErr == nil {
		flushErr = &WriteError{Op: "sync", Err: err}
	}
	if w.locked {
		if err := unlockFile(w.f); err != nil && flushErr == nil {
			flushErr = &WriteError{Op: "unlock", Err: err}
		}
	}
	if err := w.f.Close(); err != nil && flushErr == nil {
		flushErr = &WriteError{Op: "close", Err: err}
	}
	return flushErr
}

// Buffered reports how many bytes are waiting for the next append.
func (w *CSVWriter) Buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Len()
}

func (w *CSVWriter) flushLocked() error {
	if w.buf.Len() == 0 {
		return nil
	}
	if err := writeAll(w.f, w.buf.Bytes()); err != nil {
		return &WriteError{Op: "write", Err: fmt.Errorf("append %s: %w", w.f.Name(), err)}
	}
	w.buf.Reset()
	return nil
}

// writeAll writes all bytes to w, handling short writes.
//
// io.Writer.Write may return n < len(p) with a nil error (short write).
// This function loops until all bytes are written or an error occurs,
// ensuring complete CSV lines are emitted.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			// No progress made - avoid infinite loop
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

// Compile-time check that CSVWriter implements Writer.
var _ Writer = (*CSVWriter)(nil)
