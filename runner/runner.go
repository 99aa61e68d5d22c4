package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"arenaengine/executor"
	"arenaengine/metrics"
	"arenaengine/model"

	"github.com/oklog/ulid/v2"
	logrus "github.com/sirupsen/logrus"
)

// ExecutionFailedOutput is recorded as the actual output of a case whose
// execution could not be carried out at all.
const ExecutionFailedOutput = "execution failed"

var (
	ErrRunFinished   = errors.New("run already finished")
	ErrRunInProgress = errors.New("run already in progress")
)

type State int

const (
	StateIdle State = iota
	StateRunning
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
)

// NewRunID returns a lexically sortable run identifier.
func NewRunID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

type Option func(*Run)

// WithObserver registers fn to be called after each outcome is recorded.
func WithObserver(fn func(model.TestCaseOutcome)) Option {
	return func(r *Run) { r.observer = fn }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(r *Run) { r.logger = logger }
}

func WithID(id string) Option {
	return func(r *Run) { r.id = id }
}

// Run evaluates one submission against a list of test cases, one case at a
// time. A Run executes at most once.
type Run struct {
	id       string
	code     string
	language string
	cases    []model.TestCase
	exec     executor.Executor
	observer func(model.TestCaseOutcome)
	logger   *logrus.Logger

	mu       sync.Mutex
	state    State
	current  int
	outcomes []model.TestCaseOutcome
}

func NewRun(exec executor.Executor, code, language string, cases []model.TestCase, opts ...Option) *Run {
	r := &Run{
		code:     code,
		language: language,
		cases:    cases,
		exec:     exec,
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.id == "" {
		r.id = NewRunID()
	}
	return r
}

func (r *Run) ID() string { return r.id }

func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Current is the ordinal ID of the case being executed, or 0.
func (r *Run) Current() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Outcomes returns a copy of the outcomes recorded so far.
func (r *Run) Outcomes() []model.TestCaseOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.TestCaseOutcome(nil), r.outcomes...)
}

// Execute runs the eligible cases in ascending ordinal order. Cancellation of
// ctx is observed between cases: the case in flight finishes under the
// engine's own limits, then Execute returns the outcomes so far together
// with ctx.Err().
func (r *Run) Execute(ctx context.Context) ([]model.TestCaseOutcome, error) {
	r.mu.Lock()
	switch r.state {
	case StateRunning:
		r.mu.Unlock()
		return nil, ErrRunInProgress
	case StateDone:
		r.mu.Unlock()
		return nil, ErrRunFinished
	}
	r.state = StateRunning
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.state = StateDone
		r.current = 0
		r.mu.Unlock()
	}()

	log := r.logger.WithFields(logrus.Fields{"run": r.id, "language": r.language})
	cases := Eligible(r.cases)
	log.WithField("cases", len(cases)).Debug("Run started")

	for _, tc := range cases {
		if err := ctx.Err(); err != nil {
			log.WithField("recorded", len(r.Outcomes())).Info("Run cancelled")
			return r.Outcomes(), err
		}

		r.mu.Lock()
		r.current = tc.OrdinalID
		r.mu.Unlock()

		outcome := r.runCase(ctx, tc, log)

		r.mu.Lock()
		r.outcomes = append(r.outcomes, outcome)
		r.mu.Unlock()

		if r.observer != nil {
			r.observer(outcome)
		}
	}

	log.Debug("Run finished")
	return r.Outcomes(), nil
}

func (r *Run) runCase(ctx context.Context, tc model.TestCase, log *logrus.Entry) (outcome model.TestCaseOutcome) {
	outcome.OrdinalID = tc.OrdinalID

	defer func() {
		if p := recover(); p != nil {
			log.WithFields(logrus.Fields{"case": tc.OrdinalID, "panic": p}).Error("Test case execution panicked")
			metrics.TestCasesTotal.WithLabelValues("error").Inc()
			outcome = model.TestCaseOutcome{OrdinalID: tc.OrdinalID, ActualOutput: ExecutionFailedOutput}
		}
	}()

	res, err := r.exec.Execute(context.WithoutCancel(ctx), executor.ExecutionRequest{
		SourceCode: r.code,
		Language:   r.language,
		Stdin:      tc.Input,
	})
	if err != nil {
		log.WithError(err).WithField("case", tc.OrdinalID).Warn("Test case execution failed")
		metrics.TestCasesTotal.WithLabelValues("error").Inc()
		outcome.ActualOutput = ExecutionFailedOutput
		return outcome
	}

	outcome.ActualOutput = ActualOutput(res)
	outcome.Passed = Match(outcome.ActualOutput, tc.ExpectedOutput)
	if outcome.Passed {
		metrics.TestCasesTotal.WithLabelValues("passed").Inc()
	} else {
		metrics.TestCasesTotal.WithLabelValues("failed").Inc()
	}
	return outcome
}

// ActualOutput is what a case is judged on: stdout when the execution
// succeeded, otherwise the diagnostic, falling back to any partial stdout.
func ActualOutput(res executor.ExecutionResult) string {
	if res.Succeeded {
		return res.Stdout
	}
	if res.Diagnostic != "" {
		return res.Diagnostic
	}
	return res.Stdout
}

// Eligible drops cases with an empty input or empty expected output and
// orders the rest by ascending ordinal ID.
func Eligible(cases []model.TestCase) []model.TestCase {
	out := make([]model.TestCase, 0, len(cases))
	for _, tc := range cases {
		if tc.Input == "" || tc.ExpectedOutput == "" {
			continue
		}
		out = append(out, tc)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OrdinalID < out[j].OrdinalID })
	return out
}
