package executor

import (
	"context"
	"time"
)

// Verdict classifies how an execution ended.
type Verdict string

const (
	VerdictOK                  Verdict = "OK"
	VerdictCompileError        Verdict = "CompileError"
	VerdictRuntimeError        Verdict = "RuntimeError"
	VerdictTimeLimitExceeded   Verdict = "TimeLimitExceeded"
	VerdictOutputLimitExceeded Verdict = "OutputLimitExceeded"
	VerdictUnsupportedLanguage Verdict = "UnsupportedLanguage"
	VerdictWorkspaceError      Verdict = "WorkspaceError"
	VerdictInternalError       Verdict = "InternalError"
)

// ExecutionRequest is one submission. It is not modified after it is handed
// to Execute.
type ExecutionRequest struct {
	SourceCode string
	Language   string
	Stdin      string
}

// ExecutionResult is produced once per request.
//
// Stdout is kept even when the run fails so callers can show partial output.
// Diagnostic holds compiler output, stderr, or a limit message.
type ExecutionResult struct {
	Stdout      string
	Diagnostic  string
	Succeeded   bool
	Verdict     Verdict
	ExitCode    int
	Duration    time.Duration
	WorkspaceID string
}

// Executor is satisfied by Engine and WorkerPool.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (ExecutionResult, error)
}

// Job represents a code execution request queued on the worker pool
type Job struct {
	ctx     context.Context
	Request ExecutionRequest
	Result  chan Result
}

// Result is what a worker hands back for a Job
type Result struct {
	Execution ExecutionResult
	Err       error
}

func failure(verdict Verdict, diagnostic string) ExecutionResult {
	return ExecutionResult{
		Verdict:    verdict,
		Diagnostic: diagnostic,
		ExitCode:   -1,
	}
}
