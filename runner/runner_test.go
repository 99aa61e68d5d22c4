package runner

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"

	"arenaengine/executor"
	"arenaengine/model"

	logrus "github.com/sirupsen/logrus"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

// fakeExecutor runs a Go function instead of a program and records the
// stdin of every call.
type fakeExecutor struct {
	mu    sync.Mutex
	calls []string
	run   func(stdin string) (executor.ExecutionResult, error)
}

func (f *fakeExecutor) Execute(ctx context.Context, req executor.ExecutionRequest) (executor.ExecutionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Stdin)
	f.mu.Unlock()
	return f.run(req.Stdin)
}

func ok(stdout string) (executor.ExecutionResult, error) {
	return executor.ExecutionResult{Stdout: stdout, Succeeded: true, Verdict: executor.VerdictOK}, nil
}

func adder(stdin string) (executor.ExecutionResult, error) {
	sum := 0
	for _, f := range strings.Fields(stdin) {
		n, _ := strconv.Atoi(f)
		sum += n
	}
	return ok(strconv.Itoa(sum) + "\n")
}

func quiet() Option {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return WithLogger(l)
}

func TestRunAdderPassesEveryCase(t *testing.T) {
	exec := &fakeExecutor{run: adder}
	cases := []model.TestCase{
		{OrdinalID: 1, Input: "1 2", ExpectedOutput: "3"},
		{OrdinalID: 2, Input: "10 20", ExpectedOutput: "30\n"},
	}

	outcomes, err := NewRun(exec, "code", "python", cases, quiet()).Execute(context.Background())
	assert.NilError(t, err)
	assert.DeepEqual(t, outcomes, []model.TestCaseOutcome{
		{OrdinalID: 1, Passed: true, ActualOutput: "3\n"},
		{OrdinalID: 2, Passed: true, ActualOutput: "30\n"},
	})
}

func TestRunConstantOutputFailsMismatches(t *testing.T) {
	exec := &fakeExecutor{run: func(string) (executor.ExecutionResult, error) { return ok("0\n") }}
	cases := []model.TestCase{
		{OrdinalID: 1, Input: "3\n4", ExpectedOutput: "7"},
		{OrdinalID: 2, Input: "1\n1", ExpectedOutput: "2"},
	}

	outcomes, err := NewRun(exec, "code", "cpp", cases, quiet()).Execute(context.Background())
	assert.NilError(t, err)
	assert.DeepEqual(t, outcomes, []model.TestCaseOutcome{
		{OrdinalID: 1, Passed: false, ActualOutput: "0\n"},
		{OrdinalID: 2, Passed: false, ActualOutput: "0\n"},
	})
}

func TestRunSkipsEmptyCasesAndSortsByOrdinal(t *testing.T) {
	exec := &fakeExecutor{run: adder}
	cases := []model.TestCase{
		{OrdinalID: 3, Input: "3 3", ExpectedOutput: "6"},
		{OrdinalID: 1, Input: "", ExpectedOutput: "0"},
		{OrdinalID: 2, Input: "1 1", ExpectedOutput: ""},
		{OrdinalID: 0, Input: "2 2", ExpectedOutput: "4"},
	}

	outcomes, err := NewRun(exec, "code", "javascript", cases, quiet()).Execute(context.Background())
	assert.NilError(t, err)
	assert.Check(t, is.Len(outcomes, 2))
	assert.Check(t, is.Equal(outcomes[0].OrdinalID, 0))
	assert.Check(t, is.Equal(outcomes[1].OrdinalID, 3))
	assert.DeepEqual(t, exec.calls, []string{"2 2", "3 3"})
}

func TestRunUsesDiagnosticForFailedExecution(t *testing.T) {
	exec := &fakeExecutor{run: func(string) (executor.ExecutionResult, error) {
		return executor.ExecutionResult{Stdout: "partial", Diagnostic: "Traceback: boom", Verdict: executor.VerdictRuntimeError}, nil
	}}
	cases := []model.TestCase{{OrdinalID: 1, Input: "x", ExpectedOutput: "y"}}

	outcomes, err := NewRun(exec, "code", "python", cases, quiet()).Execute(context.Background())
	assert.NilError(t, err)
	assert.Check(t, is.Equal(outcomes[0].ActualOutput, "Traceback: boom"))
	assert.Check(t, !outcomes[0].Passed)
}

func TestRunRecordsExecutionFailureAndContinues(t *testing.T) {
	exec := &fakeExecutor{run: func(stdin string) (executor.ExecutionResult, error) {
		switch stdin {
		case "err":
			return executor.ExecutionResult{}, errors.New("entropy exhausted")
		case "panic":
			panic("engine bug")
		}
		return ok(stdin)
	}}
	cases := []model.TestCase{
		{OrdinalID: 1, Input: "err", ExpectedOutput: "err"},
		{OrdinalID: 2, Input: "panic", ExpectedOutput: "panic"},
		{OrdinalID: 3, Input: "fine", ExpectedOutput: "fine"},
	}

	outcomes, err := NewRun(exec, "code", "python", cases, quiet()).Execute(context.Background())
	assert.NilError(t, err)
	assert.DeepEqual(t, outcomes, []model.TestCaseOutcome{
		{OrdinalID: 1, Passed: false, ActualOutput: ExecutionFailedOutput},
		{OrdinalID: 2, Passed: false, ActualOutput: ExecutionFailedOutput},
		{OrdinalID: 3, Passed: true, ActualOutput: "fine"},
	})
	assert.Check(t, is.Len(exec.calls, 3))
}

func TestRunCancellationStopsBetweenCases(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec := &fakeExecutor{}
	exec.run = func(stdin string) (executor.ExecutionResult, error) {
		if stdin == "2" {
			cancel()
		}
		return ok(stdin)
	}
	cases := []model.TestCase{
		{OrdinalID: 1, Input: "1", ExpectedOutput: "1"},
		{OrdinalID: 2, Input: "2", ExpectedOutput: "2"},
		{OrdinalID: 3, Input: "3", ExpectedOutput: "3"},
	}

	var observed []int
	run := NewRun(exec, "code", "python", cases, quiet(), WithObserver(func(o model.TestCaseOutcome) {
		observed = append(observed, o.OrdinalID)
	}))
	outcomes, err := run.Execute(ctx)

	assert.Check(t, errors.Is(err, context.Canceled))
	// The case in flight when cancel arrived still completes and is recorded.
	assert.Check(t, is.Len(outcomes, 2))
	assert.Check(t, outcomes[1].Passed)
	assert.DeepEqual(t, observed, []int{1, 2})
	assert.DeepEqual(t, exec.calls, []string{"1", "2"})
	assert.Check(t, is.Equal(run.State(), StateDone))
}

func TestRunAlreadyCanceledRunsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &ctxCheckingExecutor{}
	cases := []model.TestCase{{OrdinalID: 1, Input: "1", ExpectedOutput: "1"}}

	outcomes, err := NewRun(exec, "code", "python", cases, quiet()).Execute(ctx)
	assert.Check(t, errors.Is(err, context.Canceled))
	assert.Check(t, is.Len(outcomes, 0))
	assert.Check(t, !exec.called)
}

func TestRunInFlightCaseIgnoresCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec := &ctxCheckingExecutor{onCall: cancel}
	cases := []model.TestCase{
		{OrdinalID: 1, Input: "1", ExpectedOutput: "1"},
		{OrdinalID: 2, Input: "2", ExpectedOutput: "2"},
	}

	outcomes, err := NewRun(exec, "code", "python", cases, quiet()).Execute(ctx)
	assert.Check(t, errors.Is(err, context.Canceled))
	assert.DeepEqual(t, outcomes, []model.TestCaseOutcome{{OrdinalID: 1, Passed: true, ActualOutput: "1"}})
}

// ctxCheckingExecutor fails when the context it receives is already done.
type ctxCheckingExecutor struct {
	called bool
	onCall func()
}

func (c *ctxCheckingExecutor) Execute(ctx context.Context, req executor.ExecutionRequest) (executor.ExecutionResult, error) {
	c.called = true
	if c.onCall != nil {
		c.onCall()
	}
	if ctx.Err() != nil {
		return executor.ExecutionResult{}, ctx.Err()
	}
	return ok(req.Stdin)
}

func TestRunStateMachine(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	exec := &fakeExecutor{run: func(stdin string) (executor.ExecutionResult, error) {
		close(started)
		<-release
		return ok(stdin)
	}}
	cases := []model.TestCase{{OrdinalID: 7, Input: "a", ExpectedOutput: "a"}}
	run := NewRun(exec, "code", "python", cases, quiet(), WithID("fixed"))
	assert.Equal(t, run.ID(), "fixed")
	assert.Equal(t, run.State(), StateIdle)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = run.Execute(context.Background())
	}()

	<-started
	assert.Equal(t, run.State(), StateRunning)
	assert.Equal(t, run.Current(), 7)
	_, err := run.Execute(context.Background())
	assert.Check(t, errors.Is(err, ErrRunInProgress))

	close(release)
	<-done
	assert.Equal(t, run.State(), StateDone)
	assert.Equal(t, run.State().String(), "done")

	_, err = run.Execute(context.Background())
	assert.Check(t, errors.Is(err, ErrRunFinished))
	assert.Check(t, is.Len(run.Outcomes(), 1))
}

func TestNewRunIDsAreUniqueAndSorted(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.Check(t, a != b)
	assert.Check(t, a < b)
	assert.Check(t, is.Len(a, 26))
}
