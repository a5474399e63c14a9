package filter

import (
	"fmt"
)

type (
	// CompilationError indicates a filter expression could not be compiled
	CompilationError struct {
		Expression string
		Reason     string
		Err        error
	}

	// EvaluationError indicates a filter failed while running against a user
	EvaluationError struct {
		Expression string
		UserID     int64
		UserName   string
		Err        error
	}
)

func (e *CompilationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("compile filter %q: %s: %v", e.Expression, e.Reason, e.Err)
	}
	return fmt.Sprintf("compile filter %q: %s", e.Expression, e.Reason)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate filter %q on user %d (%s): %v", e.Expression, e.UserID, e.UserName, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}
