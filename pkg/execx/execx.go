// Package execx runs external extractor tools under a context deadline.
//
// Commands are built from typed arguments (never shell strings), start in
// their own process group, and are killed together with their descendants
// when the context ends. Captured output is bounded so a misbehaving tool
// cannot exhaust memory.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Sentinel errors returned by Run.
var (
	// ErrToolNotFound indicates the executable is not on PATH.
	ErrToolNotFound = errors.New("tool not found")

	// ErrTimeout indicates the context deadline elapsed and the process
	// group was killed.
	ErrTimeout = errors.New("command timed out")
)

// DefaultMaxOutputBytes bounds captured stdout/stderr per invocation.
const DefaultMaxOutputBytes = 8 << 20

// killWaitDelay is how long Wait allows I/O to drain after the process
// group is killed before forcibly closing the pipes.
const killWaitDelay = 3 * time.Second

// ExitError reports a tool that ran and exited non-zero.
type ExitError struct {
	Tool   string
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with code %d", e.Tool, e.Code)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.Code, e.Stderr)
}

// Result carries the outcome of a completed invocation.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration

	// Truncated is set when stdout hit the configured capture bound.
	Truncated bool
}

type options struct {
	dir       string
	env       []string
	stdin     io.Reader
	stdout    io.Writer
	maxOutput int64
}

// Option configures a single invocation.
type Option func(*options)

// WithDir sets the working directory for the command.
func WithDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// WithEnv appends environment variables (KEY=VALUE) to the inherited set.
func WithEnv(kv ...string) Option {
	return func(o *options) { o.env = append(o.env, kv...) }
}

// WithStdin supplies the command's standard input.
func WithStdin(r io.Reader) Option {
	return func(o *options) { o.stdin = r }
}

// WithStdout streams stdout to w instead of capturing it in the Result.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithMaxOutputBytes overrides the capture bound.
func WithMaxOutputBytes(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOutput = n
		}
	}
}

// Run executes name with args and waits for completion or context end.
// On deadline the entire process group is killed and ErrTimeout is returned
// alongside whatever output was captured.
func Run(ctx context.Context, name string, args []string, opts ...Option) (Result, error) {
	o := options{maxOutput: DefaultMaxOutputBytes}
	for _, opt := range opts {
		opt(&o)
	}

	var res Result

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = o.dir
	if len(o.env) > 0 {
		cmd.Env = append(os.Environ(), o.env...)
	}
	cmd.Stdin = o.stdin
	cmd.WaitDelay = killWaitDelay
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }

	outBuf := &boundedBuffer{max: o.maxOutput}
	errBuf := &boundedBuffer{max: o.maxOutput / 8}
	if o.stdout != nil {
		cmd.Stdout = o.stdout
	} else {
		cmd.Stdout = outBuf
	}
	cmd.Stderr = errBuf

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = outBuf.Bytes()
	res.Stderr = errBuf.Bytes()
	res.Truncated = outBuf.truncated
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err == nil {
		return res, nil
	}
	return res, classify(ctx, name, errBuf, err)
}

// Output runs the command and returns captured stdout.
func Output(ctx context.Context, name string, args []string, opts ...Option) ([]byte, error) {
	res, err := Run(ctx, name, args, opts...)
	return res.Stdout, err
}

// LookPath resolves name on PATH, mapping absence to ErrToolNotFound.
func LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
		}
		return "", err
	}
	return path, nil
}

func classify(ctx context.Context, name string, errBuf *boundedBuffer, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", name, ErrTimeout)
	case ctx.Err() != nil:
		return fmt.Errorf("%s: %w", name, ctx.Err())
	case errors.Is(err, exec.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	var exit *exec.ExitError
	if errors.As(err, &exit) {
		return &ExitError{
			Tool:   name,
			Code:   exit.ExitCode(),
			Stderr: stderrTail(errBuf.Bytes()),
		}
	}
	return fmt.Errorf("%s: %w", name, err)
}

// stderrTail keeps the last line of stderr for error messages.
func stderrTail(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	const max = 256
	if len(s) > max {
		s = s[:max]
	}
	return s
}

// boundedBuffer accepts writes forever but stores at most max bytes, so the
// child never sees a write error from a full capture buffer.
type boundedBuffer struct {
	buf       bytes.Buffer
	max       int64
	truncated bool
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	remain := b.max - int64(b.buf.Len())
	if remain <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if int64(len(p)) > remain {
		b.buf.Write(p[:remain])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *boundedBuffer) Bytes() []byte { return b.buf.Bytes() }
