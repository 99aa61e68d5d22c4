package executor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

// waitDelay bounds how long Wait keeps draining pipes once the process is
// gone; a detached grandchild holding stdout open must not stall the caller.
const waitDelay = 200 * time.Millisecond

type procSpec struct {
	argv      []string
	dir       string
	stdinPath string
	timeout   time.Duration
	maxOutput int
}

type procResult struct {
	stdout     string
	stderr     string
	exitCode   int
	exitStatus string // "exit status 1", "signal: segmentation fault"
	timedOut   bool
	overflowed bool
	canceled   bool
	startErr   error
	duration   time.Duration
}

// runProcess runs argv in its own process group and blocks until it exits,
// the timeout fires, or output exceeds maxOutput. On timeout and overflow the
// whole group is killed.
func runProcess(ctx context.Context, p procSpec) procResult {
	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var overflowed atomic.Bool
	onOverflow := func() {
		overflowed.Store(true)
		cancel()
	}
	stdout := &limitedBuffer{limit: p.maxOutput, overflow: onOverflow}
	stderr := &limitedBuffer{limit: p.maxOutput, overflow: onOverflow}

	cmd := exec.CommandContext(runCtx, p.argv[0], p.argv[1:]...)
	cmd.Dir = p.dir
	cmd.Env = sandboxEnv(p.dir)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	setProcessGroup(cmd)
	// Cancel only runs when runCtx ends while the process is alive. A
	// deadline that fires later, while Wait drains pipes held by a leftover
	// child, leaves killed unset.
	var killed atomic.Bool
	cmd.Cancel = func() error {
		killed.Store(true)
		return killProcessGroup(cmd)
	}

	if p.stdinPath != "" {
		f, err := os.Open(p.stdinPath)
		if err != nil {
			return procResult{exitCode: -1, startErr: err}
		}
		defer f.Close()
		cmd.Stdin = f
	}

	start := time.Now()
	err := cmd.Run()
	res := procResult{duration: time.Since(start)}

	// Reap anything the program left running in its group.
	if cmd.Process != nil {
		_ = killProcessGroup(cmd)
	}

	res.stdout = stdout.String()
	res.stderr = stderr.String()
	res.overflowed = overflowed.Load()
	res.canceled = !res.overflowed && killed.Load() && ctx.Err() != nil
	res.timedOut = !res.overflowed && !res.canceled && killed.Load() &&
		errors.Is(runCtx.Err(), context.DeadlineExceeded)

	var exitErr *exec.ExitError
	switch {
	case err == nil, errors.Is(err, exec.ErrWaitDelay):
		res.exitCode = 0
	case errors.As(err, &exitErr):
		res.exitCode = exitErr.ExitCode()
		res.exitStatus = exitErr.Error()
	case cmd.ProcessState == nil:
		res.exitCode = -1
		res.startErr = err
	default:
		res.exitCode = -1
		res.exitStatus = err.Error()
	}
	return res
}

func sandboxEnv(dir string) []string {
	return []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + dir,
		"TMPDIR=" + dir,
		"LANG=C.UTF-8",
	}
}

// limitedBuffer keeps the first limit bytes written to it and calls overflow
// once when more arrive. Writes never fail so the copying goroutine keeps
// draining the pipe until the process is killed.
type limitedBuffer struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	limit    int
	overflow func()
	exceeded bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.exceeded {
		return len(p), nil
	}
	if b.limit > 0 && b.buf.Len()+len(p) > b.limit {
		b.buf.Write(p[:b.limit-b.buf.Len()])
		b.exceeded = true
		if b.overflow != nil {
			b.overflow()
		}
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
