package engine

import (
	"errors"
	"fmt"
)

// RewriteQuota counts the rewrites of one run and enforces a hard cap.
//
// A rule set that never reaches a fixed point is a configuration bug. The
// cap turns it into a reported error instead of an endless sweep.
type RewriteQuota struct {
	limit   int
	current int
}

// NewRewriteQuota creates a quota with the given limit.
// Typical default: DefaultMaxRewrites (configurable via WithMaxRewrites).
func NewRewriteQuota(limit int) *RewriteQuota {
	return &RewriteQuota{limit: limit}
}

// Check counts one more rewrite of rule at anchor and fails once the count
// exceeds the limit. Call it before applying the rewrite.
func (q *RewriteQuota) Check(runID, rule, anchor string) error {
	q.current++
	if q.current > q.limit {
		return &StepsExceededError{
			RunID:  runID,
			Rule:   rule,
			Anchor: anchor,
			Steps:  q.current,
			Limit:  q.limit,
		}
	}
	return nil
}

// Current returns the number of rewrites counted so far.
func (q *RewriteQuota) Current() int {
	return q.current
}

// Limit returns the cap.
func (q *RewriteQuota) Limit() int {
	return q.limit
}

// StepsExceededError is returned when a run would exceed the rewrite cap.
// Rule and Anchor identify the rewrite that was attempted last.
type StepsExceededError struct {
	RunID  string
	Rule   string
	Anchor string
	Steps  int
	Limit  int
}

// Error implements the error interface.
func (e *StepsExceededError) Error() string {
	return fmt.Sprintf("run %s exceeded max rewrites: %d > %d (last attempted: rule %s at %s)",
		e.RunID, e.Steps, e.Limit, e.Rule, e.Anchor)
}

// IsStepsExceededError returns true if the error is a StepsExceededError.
// Uses errors.As to handle wrapped errors.
func IsStepsExceededError(err error) bool {
	var se *StepsExceededError
	return errors.As(err, &se)
}
