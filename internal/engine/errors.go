package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents a non-convergence detected during a sweep.
//
// RuntimeError includes structured fields for diagnostics: the rule and
// anchor of the last attempted rewrite and the graph state it produced.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run.
	RunID string

	// Rule and Anchor identify the last attempted rewrite.
	Rule   string
	Anchor string

	// GraphHash identifies the repeated graph state (for cycle errors).
	GraphHash string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeCycleDetected indicates a rewrite recreated an earlier graph
	// state.
	ErrCodeCycleDetected RuntimeErrorCode = "CYCLE_DETECTED"

	// ErrCodeQuotaExceeded indicates the run exceeded max rewrites.
	ErrCodeQuotaExceeded RuntimeErrorCode = "QUOTA_EXCEEDED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("%s: %s (run=%s, rule=%s, anchor=%s)", e.Code, e.Message, e.RunID, e.Rule, e.Anchor)
	}
	return fmt.Sprintf("%s: %s (run=%s)", e.Code, e.Message, e.RunID)
}

// IsCycleError returns true if the error is a cycle detection error.
// Uses errors.As to handle wrapped errors.
func IsCycleError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeCycleDetected
	}
	return false
}

// IsQuotaError returns true if the error is a quota exceeded error.
// Matches both RuntimeError with ErrCodeQuotaExceeded and StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsQuotaError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeQuotaExceeded
	}
	var se *StepsExceededError
	return errors.As(err, &se)
}

// IsNonConvergence returns true for either termination guard.
func IsNonConvergence(err error) bool {
	return IsCycleError(err) || IsQuotaError(err)
}

// NewCycleError creates a RuntimeError for cycle detection.
func NewCycleError(runID, rule, anchor, graphHash string) *RuntimeError {
	return &RuntimeError{
		Code:      ErrCodeCycleDetected,
		Message:   "rewrite recreated an earlier graph state",
		RunID:     runID,
		Rule:      rule,
		Anchor:    anchor,
		GraphHash: graphHash,
	}
}
