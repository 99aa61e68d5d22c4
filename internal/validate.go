package internal

import (
	"fmt"

	"arenaengine/model"
)

type ValidationError struct {
	Message string
	Details string
}

func (e *ValidationError) Error() string {
	return e.Message + ": " + e.Details
}

// Limits bounds request sizes before anything touches the disk.
type Limits struct {
	MaxCodeLength  int
	MaxStdinLength int
	MaxTestCases   int
}

func ValidateRun(req model.RunRequest, limits Limits) error {
	if err := checkCode(req.Code, limits); err != nil {
		return err
	}
	return checkStdin(req.Input, "input", limits)
}

func ValidateProblemRun(req model.ProblemRunRequest, limits Limits) error {
	if err := checkCode(req.Code, limits); err != nil {
		return err
	}
	if limits.MaxTestCases > 0 && len(req.TestCases) > limits.MaxTestCases {
		return &ValidationError{
			Message: "Too many test cases",
			Details: fmt.Sprintf("Max test cases allowed is %d", limits.MaxTestCases),
		}
	}
	for _, tc := range req.TestCases {
		if err := checkStdin(tc.Input, fmt.Sprintf("test case %d input", tc.OrdinalID), limits); err != nil {
			return err
		}
	}
	return nil
}

func checkCode(code string, limits Limits) error {
	if limits.MaxCodeLength > 0 && len(code) > limits.MaxCodeLength {
		return &ValidationError{
			Message: "Code length exceeds maximum limit",
			Details: fmt.Sprintf("Max length allowed is %d", limits.MaxCodeLength),
		}
	}
	return nil
}

func checkStdin(stdin, what string, limits Limits) error {
	if limits.MaxStdinLength > 0 && len(stdin) > limits.MaxStdinLength {
		return &ValidationError{
			Message: "Input length exceeds maximum limit",
			Details: fmt.Sprintf("%s is longer than %d bytes", what, limits.MaxStdinLength),
		}
	}
	return nil
}
