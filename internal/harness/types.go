package harness

import "github.com/Tabbleman/ncnn/internal/engine"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// RunID is the engine run ID.
	RunID string `json:"run_id"`

	// Rewrites are the applied rewrites in order.
	Rewrites []engine.Rewrite `json:"rewrites"`

	// Output is the text of the graph after the run.
	Output string `json:"output"`

	// RunError is the engine error, if any.
	RunError string `json:"run_error,omitempty"`

	// Errors contains failed expectations.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Rewrites: []engine.Rewrite{},
		Errors:   []string{},
	}
}

// AddError adds a failed expectation and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Rules returns the names of the applied rules in order.
func (r *Result) Rules() []string {
	names := make([]string, len(r.Rewrites))
	for i, rw := range r.Rewrites {
		names[i] = rw.Rule
	}
	return names
}
