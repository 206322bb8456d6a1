package compile

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// DocumentName is the fixed name the working copy gets inside a workspace.
const DocumentName = "document.tex"

// PassResult is the outcome of one compiler run.
type PassResult struct {
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"-"`
	Stderr   string        `json:"-"`
	TimedOut bool          `json:"timed_out"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the pass aborts compilation. Warnings do not.
func (r PassResult) Failed() bool {
	return r.TimedOut || r.ExitCode != 0
}

// Runner runs one compiler pass over DocumentName in dir. A non-zero exit or
// a timeout is reported in the result; the error is for failures to run at
// all.
type Runner interface {
	RunPass(ctx context.Context, dir string, timeout time.Duration) (PassResult, error)
}

// maxCapture bounds how much compiler output is kept per stream.
const maxCapture = 64 << 10

// ExecRunner runs a LaTeX binary non-interactively.
type ExecRunner struct {
	Binary string
	Args   []string // defaults to nonstop mode, halt on first error
}

func (r ExecRunner) RunPass(ctx context.Context, dir string, timeout time.Duration) (PassResult, error) {
	args := r.Args
	if len(args) == 0 {
		args = []string{"-interaction=nonstopmode", "-halt-on-error", DocumentName}
	}

	passCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(passCtx, r.Binary, args...)
	cmd.Dir = dir
	setProcessGroup(cmd)
	// Kill the whole group so helper processes spawned by the compiler go too.
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			killProcessGroup(cmd.Process.Pid)
		}
		return nil
	}
	cmd.WaitDelay = 2 * time.Second

	stdout, stderr := &tailBuffer{max: maxCapture}, &tailBuffer{max: maxCapture}
	cmd.Stdout, cmd.Stderr = stdout, stderr

	start := time.Now()
	err := cmd.Run()
	res := PassResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if errors.Is(passCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}
	if ctx.Err() != nil {
		return res, fmt.Errorf("compiler pass canceled: %w", ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("run %s: %w", r.Binary, err)
	}
	return res, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
