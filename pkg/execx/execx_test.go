//go:build unix

package execx

import (
	"bytes"
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sys/unix"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunCapturesOutput(t *testing.T) {
	res, err := Run(context.Background(), "sh", []string{"-c", "printf out; printf err >&2"})
	require.NoError(t, err)
	assert.Equal(t, "out", string(res.Stdout))
	assert.Equal(t, "err", string(res.Stderr))
	assert.Equal(t, 0, res.ExitCode)
	assert.False(t, res.Truncated)
	assert.Greater(t, res.Duration, time.Duration(0))
}

func TestRunExitError(t *testing.T) {
	res, err := Run(context.Background(), "sh", []string{"-c", "echo boom >&2; exit 3"})
	require.Error(t, err)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, "sh", exitErr.Tool)
	assert.Equal(t, 3, exitErr.Code)
	assert.Contains(t, exitErr.Stderr, "boom")
	assert.Equal(t, 3, res.ExitCode)
}

func TestRunToolNotFound(t *testing.T) {
	_, err := Run(context.Background(), "gotrawl-no-such-tool", nil)
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestRunTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := Run(ctx, "sh", []string{"-c", "sleep 30"})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.NotEqual(t, 0, res.ExitCode)
}

// A backgrounded grandchild must die with the process group, not linger
// holding the extraction slot's resources.
func TestRunTimeoutKillsDescendants(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	res, err := Run(ctx, "sh", []string{"-c", "sleep 30 & echo $!; wait"})
	require.ErrorIs(t, err, ErrTimeout)

	pidText := strings.TrimSpace(string(res.Stdout))
	require.NotEmpty(t, pidText, "grandchild pid should be captured before the kill")
	pid, err := strconv.Atoi(pidText)
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if unix.Kill(pid, 0) == unix.ESRCH {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("grandchild %d still alive after group kill", pid)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestRunCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := Run(ctx, "sh", []string{"-c", "sleep 30"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestRunBoundsCapturedOutput(t *testing.T) {
	script := "i=0; while [ $i -lt 5000 ]; do echo 0123456789; i=$((i+1)); done"
	res, err := Run(context.Background(), "sh", []string{"-c", script}, WithMaxOutputBytes(1024))
	require.NoError(t, err)
	assert.Len(t, res.Stdout, 1024)
	assert.True(t, res.Truncated)
}

func TestRunWithStdin(t *testing.T) {
	res, err := Run(context.Background(), "sh", []string{"-c", "cat"}, WithStdin(strings.NewReader("ping")))
	require.NoError(t, err)
	assert.Equal(t, "ping", string(res.Stdout))
}

func TestRunWithDir(t *testing.T) {
	dir := t.TempDir()
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	res, err := Run(context.Background(), "pwd", nil, WithDir(dir))
	require.NoError(t, err)
	assert.Equal(t, resolved, strings.TrimSpace(string(res.Stdout)))
}

func TestRunWithStdoutStreams(t *testing.T) {
	var sink bytes.Buffer
	res, err := Run(context.Background(), "sh", []string{"-c", "printf streamed"}, WithStdout(&sink))
	require.NoError(t, err)
	assert.Equal(t, "streamed", sink.String())
	assert.Empty(t, res.Stdout)
}

func TestRunWithEnv(t *testing.T) {
	res, err := Run(context.Background(), "sh", []string{"-c", "printf %s \"$GOTRAWL_TEST_MARKER\""},
		WithEnv("GOTRAWL_TEST_MARKER=42"))
	require.NoError(t, err)
	assert.Equal(t, "42", string(res.Stdout))
}

func TestLookPath(t *testing.T) {
	path, err := LookPath("sh")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))

	_, err = LookPath("gotrawl-no-such-tool")
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestOutput(t *testing.T) {
	out, err := Output(context.Background(), "sh", []string{"-c", "printf hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))
}

func TestStderrTail(t *testing.T) {
	assert.Equal(t, "last", stderrTail([]byte("first\nmiddle\nlast\n")))
	assert.Equal(t, "only", stderrTail([]byte("only")))
	assert.Equal(t, "", stderrTail(nil))
	assert.Equal(t, strings.Repeat("x", 256), stderrTail([]byte(strings.Repeat("x", 300))))
}

func TestExitErrorMessage(t *testing.T) {
	err := &ExitError{Tool: "pdftotext", Code: 1, Stderr: "syntax error"}
	assert.Equal(t, "pdftotext exited with code 1: syntax error", err.Error())

	bare := &ExitError{Tool: "antiword", Code: 2}
	assert.Equal(t, "antiword exited with code 2", bare.Error())
}

func TestEnvInheritedWhenUnset(t *testing.T) {
	t.Setenv("GOTRAWL_INHERIT_CHECK", "present")
	res, err := Run(context.Background(), "sh", []string{"-c", "printf %s \"$GOTRAWL_INHERIT_CHECK\""})
	require.NoError(t, err)
	// No WithEnv given: the parent environment is passed through untouched.
	assert.Equal(t, "present", string(res.Stdout))
}
