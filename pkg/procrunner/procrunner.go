// Package procrunner invokes external tools with a deadline, captured and
// bounded stdout/stderr, and environment isolation. It never raises
// on a non-zero exit code — that is data the analyzer interprets, not an
// error condition.
package procrunner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"github.com/cc-devops-skills/corevalidate/pkg/constants"
	"github.com/cc-devops-skills/corevalidate/pkg/logger"
)

var log = logger.New("procrunner:run")

// softTerminateGrace is how long the runner waits after sending a
// soft-terminate signal before hard-killing the process.
var softTerminateGrace = constants.DefaultSoftTerminateGrace

// Options configures one invocation.
type Options struct {
	Argv      []string
	Stdin     io.Reader
	Cwd       string
	Env       []string
	Deadline  time.Duration
	MaxOutput int // bounded buffer size per stream; 0 means constants.DefaultProcessOutputBufferBytes
}

// Result is the outcome of one invocation.
type Result struct {
	Stdout          string
	Stderr          string
	ExitCode        int
	TimedOut        bool
	WallTime        time.Duration
	StdoutTruncated bool
	StderrTruncated bool
}

// boundedBuffer caps how many bytes it accepts, recording whether it
// truncated the stream.
type boundedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newBoundedBuffer(limit int) *boundedBuffer {
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

// Run invokes argv[0] with argv[1:], enforcing the deadline and bounded
// output buffers. Only an OS-level spawn failure returns a non-nil
// error; a non-zero exit status is reported via Result.ExitCode.
func Run(ctx context.Context, opts Options) (Result, error) {
	if len(opts.Argv) == 0 {
		return Result{}, fmt.Errorf("procrunner: empty argv")
	}

	limit := opts.MaxOutput
	if limit <= 0 {
		limit = constants.DefaultProcessOutputBufferBytes
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.Deadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, opts.Argv[0], opts.Argv[1:]...)
	cmd.Dir = opts.Cwd
	if opts.Env != nil {
		cmd.Env = opts.Env
	}
	if opts.Stdin != nil {
		cmd.Stdin = opts.Stdin
	}

	stdout := newBoundedBuffer(limit)
	stderr := newBoundedBuffer(limit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Cancel = func() error {
		return softTerminate(cmd)
	}
	cmd.WaitDelay = softTerminateGrace

	log.Printf("running: %v (deadline=%s)", opts.Argv, opts.Deadline)
	start := time.Now()
	err := cmd.Run()
	wall := time.Since(start)

	result := Result{
		Stdout:          stdout.buf.String(),
		Stderr:          stderr.buf.String(),
		WallTime:        wall,
		StdoutTruncated: stdout.truncated,
		StderrTruncated: stderr.truncated,
		TimedOut:        runCtx.Err() == context.DeadlineExceeded,
	}

	if err == nil {
		result.ExitCode = 0
		return result, nil
	}

	var exitErr *exec.ExitError
	if asExitError(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	if result.TimedOut {
		result.ExitCode = -1
		return result, nil
	}

	return result, fmt.Errorf("procrunner: failed to spawn %v: %w", opts.Argv, err)
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

// softTerminate sends SIGTERM to the process group; Run's WaitDelay takes
// care of escalating to SIGKILL if the process ignores it.
func softTerminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	log.Printf("soft-terminating pid=%d", cmd.Process.Pid)
	return cmd.Process.Signal(syscall.SIGTERM)
}
