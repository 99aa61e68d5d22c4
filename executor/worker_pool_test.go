package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

type blockingExecutor struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingExecutor) Execute(ctx context.Context, req ExecutionRequest) (ExecutionResult, error) {
	b.started <- struct{}{}
	<-b.release
	return ExecutionResult{Stdout: req.Stdin, Succeeded: true, Verdict: VerdictOK}, nil
}

type panickingExecutor struct{}

func (panickingExecutor) Execute(context.Context, ExecutionRequest) (ExecutionResult, error) {
	panic("boom")
}

func TestWorkerPoolRunsJobs(t *testing.T) {
	exec := &blockingExecutor{started: make(chan struct{}, 4), release: make(chan struct{})}
	close(exec.release)
	pool := NewWorkerPool(exec, 2, 4, quietLogger())
	defer pool.Shutdown()

	res, err := pool.Execute(context.Background(), ExecutionRequest{Language: "python", Stdin: "hi"})
	assert.NilError(t, err)
	assert.Check(t, is.Equal(res.Stdout, "hi"))
}

func TestWorkerPoolRejectsWhenQueueFull(t *testing.T) {
	exec := &blockingExecutor{started: make(chan struct{}, 4), release: make(chan struct{})}
	pool := NewWorkerPool(exec, 1, 1, quietLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = pool.Execute(context.Background(), ExecutionRequest{Stdin: "first"})
	}()
	<-exec.started // the only worker is busy

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = pool.Execute(context.Background(), ExecutionRequest{Stdin: "queued"})
	}()
	assert.Assert(t, waitFor(func() bool { return len(pool.jobs) == 1 }))

	_, err := pool.Execute(context.Background(), ExecutionRequest{Stdin: "rejected"})
	assert.Check(t, errors.Is(err, ErrQueueFull))

	close(exec.release)
	wg.Wait()
	pool.Shutdown()

	_, err = pool.Execute(context.Background(), ExecutionRequest{})
	assert.Check(t, errors.Is(err, ErrPoolClosed))
}

func TestWorkerPoolRecoversPanics(t *testing.T) {
	pool := NewWorkerPool(panickingExecutor{}, 1, 1, quietLogger())
	defer pool.Shutdown()

	_, err := pool.Execute(context.Background(), ExecutionRequest{})
	assert.ErrorContains(t, err, "panicked")
}

func TestWorkerPoolSkipsCanceledJobs(t *testing.T) {
	exec := &blockingExecutor{started: make(chan struct{}, 4), release: make(chan struct{})}
	close(exec.release)
	pool := NewWorkerPool(exec, 1, 1, quietLogger())
	defer pool.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pool.Execute(ctx, ExecutionRequest{})
	assert.Check(t, errors.Is(err, context.Canceled))
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}
