package model

// RunRequest is the body of an ad-hoc run.
type RunRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Input    string `json:"input,omitempty"`
}

// RunResponse is returned for every ad-hoc run, successful or not. Error is
// null on success.
type RunResponse struct {
	Output        string  `json:"output"`
	Error         *string `json:"error"`
	Success       bool    `json:"success"`
	Verdict       string  `json:"verdict,omitempty"`
	ExecutionTime string  `json:"executionTime,omitempty"`
}

// TestCase is one sample of a problem. OrdinalID is 1-based.
type TestCase struct {
	OrdinalID      int    `json:"id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
}

// TestCaseOutcome is the result of running one TestCase.
type TestCaseOutcome struct {
	OrdinalID    int    `json:"id"`
	Passed       bool   `json:"passed"`
	ActualOutput string `json:"actualOutput"`
}

// ProblemRunRequest runs code against a problem's sample test cases.
type ProblemRunRequest struct {
	Code      string     `json:"code"`
	Language  string     `json:"language"`
	TestCases []TestCase `json:"testCases"`
}

// ProblemRunResponse aggregates the outcomes of a test-case run.
type ProblemRunResponse struct {
	RunID     string            `json:"runId"`
	Language  string            `json:"language"`
	Outcomes  []TestCaseOutcome `json:"outcomes"`
	Passed    int               `json:"passed"`
	Total     int               `json:"total"`
	Cancelled bool              `json:"cancelled"`
	Success   bool              `json:"success"`
	Error     *string           `json:"error"`
}

// StreamEvent is pushed over the websocket while a run progresses.
type StreamEvent struct {
	Type    string              `json:"type"` // "case.finished", "run.finished", "error"
	Outcome *TestCaseOutcome    `json:"outcome,omitempty"`
	Result  *ProblemRunResponse `json:"result,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// ErrorString returns a pointer suitable for the nullable error fields.
func ErrorString(msg string) *string {
	return &msg
}
