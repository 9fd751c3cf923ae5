package journal

import (
	"context"
	"fmt"
	"sync"

	"github.com/Tabbleman/ncnn/internal/engine"
	"github.com/Tabbleman/ncnn/internal/ir"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusConverged = "converged"
	StatusFailed    = "failed"
)

// BeginRun inserts a run in the running state with the text of its input
// graph. Beginning a run ID twice is an error.
func (j *Journal) BeginRun(ctx context.Context, runID string, input *ir.Graph) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, status, input_graph, input_hash, engine_version)
		VALUES (?, ?, ?, ?, ?)
	`,
		runID,
		StatusRunning,
		input.String(),
		input.Hash(),
		ir.EngineVersion,
	)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	return nil
}

// RecordRewrite appends an applied rewrite to a run.
// Uses ON CONFLICT DO NOTHING - recording the same seq twice is ignored.
//
// Note: The run must exist (foreign key constraint).
func (j *Journal) RecordRewrite(ctx context.Context, runID string, rw engine.Rewrite) error {
	replaced, err := marshalNames(rw.Replaced)
	if err != nil {
		return fmt.Errorf("record rewrite: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO rewrites
		(run_id, seq, pass, rule, type, anchor, replaced, params, graph_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		runID,
		rw.Seq,
		rw.Pass,
		rw.Rule,
		rw.Type,
		rw.Anchor,
		replaced,
		rw.Params,
		rw.GraphHash,
	)
	if err != nil {
		return fmt.Errorf("record rewrite: %w", err)
	}
	return nil
}

// FinishRun closes a run. output is the graph as the run left it and may be
// nil when it is unknown. A non-nil runErr marks the run failed.
func (j *Journal) FinishRun(ctx context.Context, runID string, report *engine.Report, output *ir.Graph, runErr error) error {
	status, msg := StatusConverged, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}

	var outText, outHash string
	if output != nil {
		outText, outHash = output.String(), output.Hash()
	}
	rewrites, passes := 0, 0
	if report != nil {
		rewrites, passes = len(report.Rewrites), report.Passes
		if outHash == "" {
			outHash = report.OutputHash
		}
	}

	res, err := j.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, output_graph = ?, output_hash = ?, rewrites = ?, passes = ?, error = ?
		WHERE id = ? AND status = ?
	`,
		status, outText, outHash, rewrites, passes, msg,
		runID, StatusRunning,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run: run %s is not running", runID)
	}
	return nil
}

// Recorder returns an engine.Recorder that journals every run of an engine
// under ctx. The input graph handed to BeginRun is rewritten in place by the
// engine, so the recorder keeps it and stores its final text at FinishRun.
func (j *Journal) Recorder(ctx context.Context) engine.Recorder {
	return &recorder{j: j, ctx: ctx, graphs: make(map[string]*ir.Graph)}
}

type recorder struct {
	j   *Journal
	ctx context.Context

	mu     sync.Mutex
	graphs map[string]*ir.Graph
}

func (r *recorder) BeginRun(runID string, input *ir.Graph) error {
	if err := r.j.BeginRun(r.ctx, runID, input); err != nil {
		return err
	}
	r.mu.Lock()
	r.graphs[runID] = input
	r.mu.Unlock()
	return nil
}

func (r *recorder) RecordRewrite(runID string, rw engine.Rewrite) error {
	return r.j.RecordRewrite(r.ctx, runID, rw)
}

func (r *recorder) FinishRun(runID string, report *engine.Report, runErr error) error {
	r.mu.Lock()
	g := r.graphs[runID]
	delete(r.graphs, runID)
	r.mu.Unlock()
	return r.j.FinishRun(r.ctx, runID, report, g, runErr)
}
