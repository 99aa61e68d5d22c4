package internal

import (
	"errors"
	"strings"
	"testing"

	"arenaengine/model"

	"gotest.tools/v3/assert"
)

var limits = Limits{MaxCodeLength: 10, MaxStdinLength: 4, MaxTestCases: 2}

func TestValidateRun(t *testing.T) {
	assert.NilError(t, ValidateRun(model.RunRequest{Code: "print(1)", Language: "python", Input: "1 2"}, limits))
	assert.NilError(t, ValidateRun(model.RunRequest{Code: "", Language: "cobol"}, limits))

	err := ValidateRun(model.RunRequest{Code: strings.Repeat("x", 11)}, limits)
	var verr *ValidationError
	assert.Assert(t, errors.As(err, &verr))
	assert.Equal(t, verr.Message, "Code length exceeds maximum limit")

	err = ValidateRun(model.RunRequest{Code: "x", Input: "12345"}, limits)
	assert.ErrorContains(t, err, "Input length exceeds maximum limit")
}

func TestValidateProblemRun(t *testing.T) {
	ok := model.ProblemRunRequest{Code: "x", TestCases: []model.TestCase{{OrdinalID: 1, Input: "1"}}}
	assert.NilError(t, ValidateProblemRun(ok, limits))

	tooMany := model.ProblemRunRequest{Code: "x", TestCases: make([]model.TestCase, 3)}
	assert.ErrorContains(t, ValidateProblemRun(tooMany, limits), "Too many test cases")

	bigInput := model.ProblemRunRequest{Code: "x", TestCases: []model.TestCase{{OrdinalID: 2, Input: "12345"}}}
	assert.ErrorContains(t, ValidateProblemRun(bigInput, limits), "test case 2 input")
}

func TestValidateZeroLimitsAllowEverything(t *testing.T) {
	req := model.ProblemRunRequest{Code: strings.Repeat("x", 1000), TestCases: make([]model.TestCase, 100)}
	assert.NilError(t, ValidateProblemRun(req, Limits{}))
}
