package journal

import (
	"context"
	"fmt"

	"github.com/Tabbleman/ncnn/internal/engine"
)

// Run is a journaled engine run.
type Run struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Input         string `json:"-"`
	InputHash     string `json:"input_hash"`
	Output        string `json:"-"`
	OutputHash    string `json:"output_hash,omitempty"`
	Rewrites      int    `json:"rewrites"`
	Passes        int    `json:"passes"`
	Error         string `json:"error,omitempty"`
	EngineVersion string `json:"engine_version"`
}

const runColumns = `id, status, input_graph, input_hash, output_graph, output_hash, rewrites, passes, error, engine_version`

// ReadRun retrieves a single run by ID.
// Returns an error wrapping sql.ErrNoRows if not found.
func (j *Journal) ReadRun(ctx context.Context, id string) (Run, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns all runs in the order they began.
// Returns an empty slice (not nil) if the journal has no runs.
func (j *Journal) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRewrites returns the rewrites of a run ordered by seq.
// Returns an empty slice (not nil) if the run recorded none.
func (j *Journal) ReadRewrites(ctx context.Context, runID string) ([]engine.Rewrite, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, pass, rule, type, anchor, replaced, params, graph_hash
		FROM rewrites
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query rewrites: %w", err)
	}
	defer rows.Close()

	rewrites := []engine.Rewrite{}
	for rows.Next() {
		var rw engine.Rewrite
		var replaced string
		if err := rows.Scan(&rw.Seq, &rw.Pass, &rw.Rule, &rw.Type, &rw.Anchor, &replaced, &rw.Params, &rw.GraphHash); err != nil {
			return nil, fmt.Errorf("scan rewrite: %w", err)
		}
		if rw.Replaced, err = unmarshalNames(replaced); err != nil {
			return nil, err
		}
		rewrites = append(rewrites, rw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rewrites: %w", err)
	}
	return rewrites, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var r Run
	if err := s.Scan(
		&r.ID, &r.Status, &r.Input, &r.InputHash, &r.Output, &r.OutputHash,
		&r.Rewrites, &r.Passes, &r.Error, &r.EngineVersion,
	); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	return r, nil
}
