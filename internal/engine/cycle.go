package engine

import "sync"

// CycleDetector catches rule sets that rewrite a graph back into a state it
// has already been in.
//
// Rewriting is deterministic, so a repeated graph state means the sweep
// would loop forever. A typical culprit is a pair of rules whose
// applicators recreate each other's pattern:
//
//	A -> rule x -> B -> rule y -> A  <- CYCLE DETECTED
//
// States are identified by ir.Graph.Hash, which ignores operator names.
// History is kept per run so one detector can serve concurrent runs.
//
// CRITICAL DISTINCTION from the rewrite quota:
//   - Cycle detection: catches recurring states (A -> B -> A)
//   - Rewrite quota: catches unbounded growth (A -> B -> C -> ...)
//
// Together they guarantee termination.
type CycleDetector struct {
	mu      sync.Mutex
	history map[string]map[string]bool // map[run_id]map[graph_hash]bool
}

// NewCycleDetector creates a new cycle detector.
func NewCycleDetector() *CycleDetector {
	return &CycleDetector{
		history: make(map[string]map[string]bool),
	}
}

// WouldCycle reports whether the graph state has already been seen in this
// run.
func (c *CycleDetector) WouldCycle(runID, graphHash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.history[runID][graphHash]
}

// Record marks a graph state as seen in this run.
func (c *CycleDetector) Record(runID, graphHash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.history[runID] == nil {
		c.history[runID] = make(map[string]bool)
	}
	c.history[runID][graphHash] = true
}

// Clear removes all history for a run.
func (c *CycleDetector) Clear(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.history, runID)
}

// HistorySize returns the number of runs with tracked history.
func (c *CycleDetector) HistorySize() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.history)
}

// RunHistorySize returns the number of states tracked for a run.
func (c *CycleDetector) RunHistorySize(runID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.history[runID])
}
