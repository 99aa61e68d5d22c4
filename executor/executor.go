package executor

import (
	"context"
	"fmt"
	"os"
	"time"

	"arenaengine/lang"
	"arenaengine/metrics"

	"github.com/google/uuid"
	logrus "github.com/sirupsen/logrus"
)

const (
	DefaultRunTimeout     = 2000 * time.Millisecond
	DefaultCompileTimeout = 10 * time.Second
	DefaultMaxOutputBytes = 1 << 20

	canceledDiagnostic = "execution canceled"
)

// Options configures an Engine. Zero values fall back to the defaults above.
type Options struct {
	Registry       *lang.Registry
	WorkspaceRoot  string
	RunTimeout     time.Duration
	CompileTimeout time.Duration
	MaxOutputBytes int
	Isolator       Isolator
	Logger         *logrus.Logger
}

// Engine compiles and runs one submission per call. It keeps no state
// between calls and is safe for concurrent use.
type Engine struct {
	registry       *lang.Registry
	root           string
	runTimeout     time.Duration
	compileTimeout time.Duration
	maxOutput      int
	isolator       Isolator
	logger         *logrus.Logger

	removeAll func(path string) error
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		registry:       opts.Registry,
		root:           opts.WorkspaceRoot,
		runTimeout:     opts.RunTimeout,
		compileTimeout: opts.CompileTimeout,
		maxOutput:      opts.MaxOutputBytes,
		isolator:       opts.Isolator,
		logger:         opts.Logger,
		removeAll:      os.RemoveAll,
	}
	if e.root == "" {
		e.root = DefaultWorkspaceRoot()
	}
	if e.runTimeout <= 0 {
		e.runTimeout = DefaultRunTimeout
	}
	if e.compileTimeout <= 0 {
		e.compileTimeout = DefaultCompileTimeout
	}
	if e.maxOutput <= 0 {
		e.maxOutput = DefaultMaxOutputBytes
	}
	if e.isolator == nil {
		e.isolator = hostIsolator{}
	}
	if e.logger == nil {
		e.logger = logrus.StandardLogger()
	}
	if err := os.MkdirAll(e.root, 0o700); err != nil {
		e.logger.WithError(err).WithField("root", e.root).Warn("Workspace root not usable")
	}
	return e
}

// Execute compiles (when the language needs it) and runs req.SourceCode with
// req.Stdin. Failures of the submission are reported through the result's
// Verdict; the error return is reserved for failing to allocate a workspace
// identifier.
func (e *Engine) Execute(ctx context.Context, req ExecutionRequest) (ExecutionResult, error) {
	start := time.Now()

	spec, err := e.registry.Get(req.Language)
	if err != nil {
		res := failure(VerdictUnsupportedLanguage, fmt.Sprintf("unsupported language: %s", req.Language))
		e.record("unsupported", res, start)
		return res, nil
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("allocate workspace id: %w", err)
	}

	res := e.execute(ctx, spec, id.String(), req)
	res.WorkspaceID = id.String()
	e.record(req.Language, res, start)
	return res, nil
}

func (e *Engine) execute(ctx context.Context, spec lang.Spec, id string, req ExecutionRequest) ExecutionResult {
	log := e.logger.WithFields(logrus.Fields{
		"workspace": id,
		"language":  spec.Name,
	})

	ws, err := newWorkspace(e.root, id)
	if err != nil {
		log.WithError(err).Error("Workspace setup failed")
		return failure(VerdictWorkspaceError, err.Error())
	}
	defer func() {
		if err := e.removeAll(ws.dir); err != nil {
			metrics.WorkspaceCleanupFailures.Inc()
			log.WithError(err).Warn("Workspace cleanup failed")
		}
	}()

	if _, err := ws.write(spec.SourceFile, req.SourceCode); err != nil {
		log.WithError(err).Error("Workspace setup failed")
		return failure(VerdictWorkspaceError, err.Error())
	}

	var stdinPath string
	if req.Stdin != "" {
		stdinPath, err = ws.write("input.txt", req.Stdin)
		if err != nil {
			log.WithError(err).Error("Workspace setup failed")
			return failure(VerdictWorkspaceError, err.Error())
		}
	}

	if spec.Compiled() {
		if res, ok := e.compile(ctx, spec, ws, log); !ok {
			return res
		}
	}

	return e.run(ctx, spec, ws, stdinPath, log)
}

// compile returns ok=false together with the failing result when the run
// phase must not start.
func (e *Engine) compile(ctx context.Context, spec lang.Spec, ws *workspace, log *logrus.Entry) (ExecutionResult, bool) {
	name := ws.id + "-compile"
	argv := e.isolator.Wrap(name, ws.dir, spec.CompileArgs(spec.SourceFile, spec.BinaryFile))
	p := runProcess(ctx, procSpec{
		argv:      argv,
		dir:       ws.dir,
		timeout:   e.compileTimeout + e.isolator.StartupGrace(),
		maxOutput: e.maxOutput,
	})
	e.isolator.Release(name)
	metrics.ExecutionDuration.WithLabelValues(string(spec.Name), "compile").Observe(float64(p.duration.Milliseconds()))

	switch {
	case p.startErr != nil:
		log.WithError(p.startErr).Error("Compiler could not be started")
		return failure(VerdictInternalError, fmt.Sprintf("compiler unavailable: %v", p.startErr)), false
	case p.canceled:
		return failure(VerdictInternalError, canceledDiagnostic), false
	case p.timedOut:
		log.WithField("duration", p.duration).Warn("Compilation timeout")
		return failure(VerdictCompileError, fmt.Sprintf("compilation timed out after %v", e.compileTimeout)), false
	case p.overflowed:
		return failure(VerdictCompileError, firstNonEmpty(p.stderr, p.stdout)), false
	case p.exitCode != 0:
		log.WithField("exit_code", p.exitCode).Debug("Compilation failed")
		res := failure(VerdictCompileError, firstNonEmpty(p.stderr, p.stdout, p.exitStatus))
		res.ExitCode = p.exitCode
		return res, false
	}
	return ExecutionResult{}, true
}

func (e *Engine) run(ctx context.Context, spec lang.Spec, ws *workspace, stdinPath string, log *logrus.Entry) ExecutionResult {
	name := ws.id + "-run"
	argv := e.isolator.Wrap(name, ws.dir, spec.RunArgs(spec.SourceFile, spec.BinaryFile))
	p := runProcess(ctx, procSpec{
		argv:      argv,
		dir:       ws.dir,
		stdinPath: stdinPath,
		timeout:   e.runTimeout + e.isolator.StartupGrace(),
		maxOutput: e.maxOutput,
	})
	e.isolator.Release(name)
	metrics.ExecutionDuration.WithLabelValues(string(spec.Name), "run").Observe(float64(p.duration.Milliseconds()))

	res := ExecutionResult{
		Stdout:     p.stdout,
		Diagnostic: p.stderr,
		ExitCode:   p.exitCode,
		Duration:   p.duration,
	}

	switch {
	case p.startErr != nil:
		log.WithError(p.startErr).Error("Program could not be started")
		res.Verdict = VerdictInternalError
		res.Diagnostic = fmt.Sprintf("could not start program: %v", p.startErr)
	case p.overflowed:
		res.Verdict = VerdictOutputLimitExceeded
		res.Diagnostic = fmt.Sprintf("output limit exceeded (%d bytes)", e.maxOutput)
	case p.canceled:
		res.Verdict = VerdictInternalError
		res.Diagnostic = canceledDiagnostic
	case p.timedOut:
		log.WithField("duration", p.duration).Warn("Execution timeout")
		res.Verdict = VerdictTimeLimitExceeded
		res.Diagnostic = fmt.Sprintf("execution timed out after %v", e.runTimeout)
	case p.exitCode != 0:
		res.Verdict = VerdictRuntimeError
		res.Diagnostic = firstNonEmpty(p.stderr, p.exitStatus)
	default:
		res.Verdict = VerdictOK
		res.Succeeded = true
	}
	return res
}

func (e *Engine) record(language string, res ExecutionResult, start time.Time) {
	elapsed := time.Since(start)
	metrics.ExecutionsTotal.WithLabelValues(language, string(res.Verdict)).Inc()
	metrics.ExecutionDuration.WithLabelValues(language, "total").Observe(float64(elapsed.Milliseconds()))

	e.logger.WithFields(logrus.Fields{
		"workspace": res.WorkspaceID,
		"language":  language,
		"verdict":   res.Verdict,
		"duration":  elapsed,
	}).Debug("Execution completed")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
