package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/Tabbleman/ncnn/internal/ir"
	"github.com/Tabbleman/ncnn/internal/match"
	"github.com/Tabbleman/ncnn/internal/registry"
	"github.com/Tabbleman/ncnn/internal/rewrite"
)

// DefaultMaxRewrites is the default maximum number of rewrites per run.
// Real models need a few hundred at most; hitting the cap means the rule
// set does not converge.
const DefaultMaxRewrites = 10000

// Recorder receives the events of a run. The rewrite journal implements it.
//
// An error from BeginRun or RecordRewrite aborts the run.
type Recorder interface {
	BeginRun(runID string, input *ir.Graph) error
	RecordRewrite(runID string, rw Rewrite) error
	FinishRun(runID string, report *Report, runErr error) error
}

// Rewrite describes one applied rewrite.
type Rewrite struct {
	// Seq is the logical clock value; strictly increasing within a run.
	Seq int64

	// Pass is the 1-based sweep pass the rewrite happened in.
	Pass int

	// Rule and Type name the rule and its canonical operator type.
	Rule string
	Type string

	// Anchor is the name of the anchor operator, which the new operator
	// inherits.
	Anchor string

	// Replaced lists the names of the removed operators in sequence order.
	Replaced []string

	// Params is the new operator's parameter text, "k=v" pairs in writer
	// order separated by single spaces.
	Params string

	// GraphHash is the graph hash after the rewrite.
	GraphHash string
}

// Report summarizes a run.
type Report struct {
	RunID      string
	Rewrites   []Rewrite
	Passes     int
	InputHash  string
	OutputHash string
}

// Engine drives the rewrite sweep of a rule registry over graphs.
//
// The sweep visits operators in sequence order. At each position it tries
// the rules whose anchor type matches, in registry order (priority desc,
// then registration order). The first rule whose pattern matches and whose
// validator accepts is the candidate. Before it is applied, every rule that
// outranks it is tried at every anchor in the graph; an accepted match whose
// region overlaps the candidate's takes its place. The sweep then restarts
// at the mutation point. A full pass without a rewrite ends the run.
//
// INVARIANTS:
//   - At most one rewrite per anchor attempt
//   - Of two accepted matches with overlapping regions, the higher-ranked
//     rule is applied regardless of where either is anchored
//   - Rule order is fixed by the registry; evaluation is single-threaded
//   - Every applied rewrite changes the graph hash to one not seen before in
//     the run, else the run fails with CYCLE_DETECTED
//   - A run applies at most maxRewrites rewrites, else it fails with
//     *StepsExceededError
//
// Thread-safety: an Engine is safe for concurrent Runs on distinct graphs.
// The registry is immutable and cycle history is keyed per Run call, so
// runs sharing a run ID do not share history. A journal still requires
// distinct run IDs.
type Engine struct {
	reg           *registry.Registry
	maxRewrites   int
	recorder      Recorder
	logger        *slog.Logger
	runIDs        RunIDGenerator
	cycleDetector *CycleDetector
	runs          atomic.Uint64
}

// Option allows configuration of engine parameters.
type Option func(*Engine)

// WithMaxRewrites sets the maximum rewrites per run.
//
// Default: 10000 (DefaultMaxRewrites)
// Use WithMaxRewrites(3) for testing quota enforcement.
func WithMaxRewrites(n int) Option {
	return func(e *Engine) {
		e.maxRewrites = n
	}
}

// WithRecorder sets a recorder that receives every run and rewrite.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithRunIDGenerator sets the run ID generator. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) {
		e.runIDs = g
	}
}

// New creates an Engine for the given registry.
func New(reg *registry.Registry, opts ...Option) *Engine {
	e := &Engine{
		reg:           reg,
		maxRewrites:   DefaultMaxRewrites,
		logger:        slog.Default(),
		runIDs:        UUIDv7Generator{},
		cycleDetector: NewCycleDetector(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the engine's rule registry.
func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

// Run rewrites g in place until no rule applies.
//
// The returned report is non-nil even when Run fails; it lists the rewrites
// applied before the failure. After an *rewrite.InvariantError the graph
// must be discarded.
func (e *Engine) Run(ctx context.Context, g *ir.Graph) (*Report, error) {
	runID := e.runIDs.Generate()
	report := &Report{RunID: runID, InputHash: g.Hash()}

	if e.recorder != nil {
		if err := e.recorder.BeginRun(runID, g); err != nil {
			return report, fmt.Errorf("begin run %s: %w", runID, err)
		}
	}

	e.logger.Debug("run started", "run", runID, "operators", g.Len(), "rules", e.reg.Len())
	key := runID + "#" + strconv.FormatUint(e.runs.Add(1), 10)
	err := e.sweep(ctx, runID, key, g, report)
	e.cycleDetector.Clear(key)
	report.OutputHash = g.Hash()

	if err != nil {
		e.logger.Debug("run failed", "run", runID, "rewrites", len(report.Rewrites), "error", err)
	} else {
		e.logger.Debug("run finished", "run", runID, "rewrites", len(report.Rewrites), "passes", report.Passes)
	}

	if e.recorder != nil {
		if ferr := e.recorder.FinishRun(runID, report, err); ferr != nil && err == nil {
			return report, fmt.Errorf("finish run %s: %w", runID, ferr)
		}
	}
	return report, err
}

// sweep runs passes until one applies no rewrite. key identifies this Run
// call in the cycle detector.
func (e *Engine) sweep(ctx context.Context, runID, key string, g *ir.Graph, report *Report) error {
	quota := NewRewriteQuota(e.maxRewrites)
	clock := NewClock()
	e.cycleDetector.Record(key, report.InputHash)

	for pass := 1; ; pass++ {
		report.Passes = pass
		changed := false

		for i := 0; i < g.Len(); {
			if err := ctx.Err(); err != nil {
				return err
			}

			rw, newID, applied, err := e.tryAt(runID, key, g, g.At(i), quota)
			if err != nil {
				return err
			}
			if !applied {
				i++
				continue
			}

			rw.Seq = clock.Next()
			rw.Pass = pass
			report.Rewrites = append(report.Rewrites, rw)
			changed = true

			e.logger.Debug("rewrite applied",
				"run", runID, "seq", rw.Seq, "rule", rw.Rule, "anchor", rw.Anchor, "replaced", len(rw.Replaced))

			if e.recorder != nil {
				if err := e.recorder.RecordRewrite(runID, rw); err != nil {
					return fmt.Errorf("record rewrite %d: %w", rw.Seq, err)
				}
			}

			// The new operator may itself anchor a rule. A preempting
			// rule can be anchored past i, so resume at whichever comes
			// first.
			i = min(i, g.Position(newID))
		}

		if !changed {
			return nil
		}
	}
}

// candidate is an accepted match waiting to be applied.
type candidate struct {
	entry *registry.Entry
	match *match.Result
}

// tryAt attempts the rules anchored at the given operator. The first rule
// that matches and validates is applied, unless a higher-ranked rule has an
// accepted match overlapping its region, in which case that rule is applied
// instead.
func (e *Engine) tryAt(runID, key string, g *ir.Graph, id ir.OperatorID, quota *RewriteQuota) (Rewrite, ir.OperatorID, bool, error) {
	op := g.Operator(id)

	var best *candidate
	for _, entry := range e.reg.ForAnchor(op.Type) {
		if m, ok := e.accept(runID, g, entry, id); ok {
			best = &candidate{entry: entry, match: m}
			break
		}
	}
	if best == nil {
		return Rewrite{}, 0, false, nil
	}
	for {
		c := e.preempt(runID, g, best)
		if c == nil {
			break
		}
		e.logger.Debug("overlapping match outranks candidate",
			"run", runID, "rule", c.entry.Rule.Name, "over", best.entry.Rule.Name)
		best = c
	}
	return e.apply(runID, key, g, best, quota)
}

// accept matches entry anchored at id and runs its validator.
func (e *Engine) accept(runID string, g *ir.Graph, entry *registry.Entry, id ir.OperatorID) (*match.Result, bool) {
	m, ok := match.Match(entry.Pattern, g, id)
	if !ok {
		return nil, false
	}
	if v := entry.Rule.Validate; v != nil && !v(m) {
		e.logger.Debug("validator rejected match", "run", runID, "rule", entry.Rule.Name, "anchor", g.Operator(id).Name)
		return nil, false
	}
	return m, true
}

// preempt returns the highest-ranked accepted match, anchored anywhere in
// the graph, whose region overlaps c's region and whose rule outranks c's.
// It returns nil when c is not outranked.
func (e *Engine) preempt(runID string, g *ir.Graph, c *candidate) *candidate {
	region := make(map[ir.OperatorID]bool, len(c.match.Region))
	for _, id := range c.match.Region {
		region[id] = true
	}

	for _, entry := range e.reg.Entries() {
		if !outranks(entry, c.entry) {
			break
		}
		anchor := entry.AnchorType()
		for i := 0; i < g.Len(); i++ {
			id := g.At(i)
			if g.Operator(id).Type != anchor {
				continue
			}
			m, ok := e.accept(runID, g, entry, id)
			if !ok {
				continue
			}
			if slices.ContainsFunc(m.Region, func(rid ir.OperatorID) bool { return region[rid] }) {
				return &candidate{entry: entry, match: m}
			}
		}
	}
	return nil
}

// outranks reports whether a is tried before b: higher priority first, then
// earlier registration.
func outranks(a, b *registry.Entry) bool {
	if a.Rule.Priority != b.Rule.Priority {
		return a.Rule.Priority > b.Rule.Priority
	}
	return a.Index < b.Index
}

// apply splices the candidate into g and checks the termination guards.
func (e *Engine) apply(runID, key string, g *ir.Graph, c *candidate, quota *RewriteQuota) (Rewrite, ir.OperatorID, bool, error) {
	entry, m := c.entry, c.match
	anchor := g.Operator(m.Anchor).Name
	if err := quota.Check(runID, entry.Rule.Name, anchor); err != nil {
		return Rewrite{}, 0, false, err
	}

	replaced := make([]string, len(m.Region))
	for k, rid := range m.Region {
		replaced[k] = g.Operator(rid).Name
	}

	newID, err := rewrite.Apply(g, m, entry)
	if err != nil {
		return Rewrite{}, 0, false, err
	}

	hash := g.Hash()
	if e.cycleDetector.WouldCycle(key, hash) {
		return Rewrite{}, 0, false, NewCycleError(runID, entry.Rule.Name, anchor, hash)
	}
	e.cycleDetector.Record(key, hash)

	return Rewrite{
		Rule:      entry.Rule.Name,
		Type:      entry.Rule.Type,
		Anchor:    anchor,
		Replaced:  replaced,
		Params:    formatParams(g.Operator(newID).Params),
		GraphHash: hash,
	}, newID, true, nil
}

func formatParams(p *ir.Params) string {
	parts := make([]string, 0, p.Len())
	for _, k := range p.Keys() {
		v, _ := p.Get(k)
		parts = append(parts, k+"="+ir.FormatValue(v))
	}
	return strings.Join(parts, " ")
}
