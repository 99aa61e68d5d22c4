package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"arenaengine/executor"
	"arenaengine/internal"
	"arenaengine/logger"
	"arenaengine/model"
	"arenaengine/runner"
	"arenaengine/store"

	logrus "github.com/sirupsen/logrus"
	"go.uber.org/zap/zapcore"
)

const storeTimeout = 5 * time.Second

var ErrBusy = errors.New("server busy, try again later")

type CompilerService struct {
	executor executor.Executor
	store    store.ResultStore
	streamer *logger.LogStreamer
	limits   internal.Limits
	logger   *logrus.Logger
}

func NewCompilerService(exec executor.Executor, results store.ResultStore, streamer *logger.LogStreamer, limits internal.Limits, log *logrus.Logger) *CompilerService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if streamer == nil {
		streamer = logger.NewLogStreamer(logger.StreamerConfig{}, nil)
	}
	return &CompilerService{
		executor: exec,
		store:    results,
		streamer: streamer,
		limits:   limits,
		logger:   log,
	}
}

// Run executes one ad-hoc submission. Every outcome, including invalid
// requests and internal failures, is reported in the response body.
func (s *CompilerService) Run(ctx context.Context, req model.RunRequest) (resp model.RunResponse) {
	start := time.Now()

	if err := internal.ValidateRun(req, s.limits); err != nil {
		return failureResponse(err.Error())
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("Run panicked")
			resp = failureResponse("internal error")
			resp.Verdict = string(executor.VerdictInternalError)
		}
	}()

	res, err := s.executor.Execute(ctx, executor.ExecutionRequest{
		SourceCode: req.Code,
		Language:   req.Language,
		Stdin:      req.Input,
	})
	if err != nil {
		s.streamer.Log(zapcore.ErrorLevel, runner.NewRunID(), "Execution failed", map[string]any{
			"language": req.Language,
		}, logger.LayerService, err)
		if errors.Is(err, executor.ErrQueueFull) {
			return failureResponse(ErrBusy.Error())
		}
		return failureResponse(err.Error())
	}

	s.streamer.Log(zapcore.InfoLevel, res.WorkspaceID, "Execution finished", map[string]any{
		"language": req.Language,
		"verdict":  string(res.Verdict),
		"duration": res.Duration.String(),
	}, logger.LayerService, nil)

	return toRunResponse(res, time.Since(start))
}

// RunProblem runs the submission against the request's test cases in order.
// onOutcome, when non-nil, is called as each case finishes. If ctx is
// cancelled the run stops before the next case and the partial result is
// returned with Cancelled set.
func (s *CompilerService) RunProblem(ctx context.Context, req model.ProblemRunRequest, onOutcome func(model.TestCaseOutcome)) model.ProblemRunResponse {
	runID := runner.NewRunID()
	resp := model.ProblemRunResponse{
		RunID:    runID,
		Language: req.Language,
		Outcomes: []model.TestCaseOutcome{},
	}

	if err := internal.ValidateProblemRun(req, s.limits); err != nil {
		resp.Error = model.ErrorString(err.Error())
		return resp
	}

	opts := []runner.Option{runner.WithID(runID), runner.WithLogger(s.logger)}
	if onOutcome != nil {
		opts = append(opts, runner.WithObserver(onOutcome))
	}
	run := runner.NewRun(s.executor, req.Code, req.Language, req.TestCases, opts...)

	s.streamer.Log(zapcore.InfoLevel, runID, "Run started", map[string]any{
		"language": req.Language,
		"cases":    len(req.TestCases),
	}, logger.LayerRunner, nil)

	outcomes, err := run.Execute(ctx)
	resp.Total = len(runner.Eligible(req.TestCases))
	if outcomes != nil {
		resp.Outcomes = outcomes
	}
	for _, o := range resp.Outcomes {
		if o.Passed {
			resp.Passed++
		}
	}
	if err != nil {
		resp.Cancelled = true
		resp.Error = model.ErrorString(fmt.Sprintf("run cancelled: %v", err))
	} else {
		resp.Success = true
	}

	s.streamer.Log(zapcore.InfoLevel, runID, "Run finished", map[string]any{
		"passed":    resp.Passed,
		"total":     resp.Total,
		"cancelled": resp.Cancelled,
	}, logger.LayerRunner, nil)

	if s.store != nil {
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
		defer cancel()
		if err := s.store.Save(storeCtx, resp); err != nil {
			s.streamer.Log(zapcore.ErrorLevel, runID, "Failed to store run", nil, logger.LayerService, err)
		}
	}
	return resp
}

// GetRun returns a previously stored run.
func (s *CompilerService) GetRun(ctx context.Context, runID string) (model.ProblemRunResponse, error) {
	if s.store == nil {
		return model.ProblemRunResponse{}, store.ErrRunNotFound
	}
	return s.store.Get(ctx, runID)
}

func toRunResponse(res executor.ExecutionResult, elapsed time.Duration) model.RunResponse {
	resp := model.RunResponse{
		Output:        res.Stdout,
		Success:       res.Succeeded,
		Verdict:       string(res.Verdict),
		ExecutionTime: fmt.Sprintf("%dms", elapsed.Milliseconds()),
	}
	if !res.Succeeded {
		msg := res.Diagnostic
		if msg == "" {
			msg = string(res.Verdict)
		}
		resp.Error = &msg
	}
	return resp
}

func failureResponse(msg string) model.RunResponse {
	return model.RunResponse{Output: "", Error: &msg, Success: false}
}
