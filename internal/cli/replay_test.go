package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tabbleman/ncnn/internal/journal"
)

type replayResponse struct {
	Status string       `json:"status"`
	Data   ReplayResult `json:"data"`
}

func TestReplay_Deterministic(t *testing.T) {
	db, runID := journaledRun(t, maxpoolGraph, "--rules", activationDir)

	stdout, _, err := execute(t, NewReplayCommand, "text", "--db", db, "--rules", activationDir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ "+runID+" converged, 2 rewrite(s) reproduced")
	assert.Contains(t, stdout, "All 1 run(s) deterministic")
}

func TestReplay_JSON(t *testing.T) {
	db, runID := journaledRun(t, maxpoolGraph, "--rules", activationDir)

	stdout, _, err := execute(t, NewReplayCommand, "json", "--db", db, "--run", runID, "--rules", activationDir)
	require.NoError(t, err)

	var resp replayResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.AllDeterministic)
	assert.Equal(t, 1, resp.Data.TotalRuns)
	assert.Equal(t, []ReplayRunResult{{
		RunID:         runID,
		Status:        journal.StatusConverged,
		Rewrites:      2,
		Deterministic: true,
	}}, resp.Data.Runs)
}

func TestReplay_FailedRunReproduces(t *testing.T) {
	db, _ := journaledRun(t, reluGraph, "--no-builtins", "--rules", swapManifest)

	stdout, _, err := execute(t, NewReplayCommand, "json", "--db", db, "--no-builtins", "--rules", swapManifest)
	require.NoError(t, err)

	var resp replayResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data.Runs, 1)
	assert.Equal(t, journal.StatusFailed, resp.Data.Runs[0].Status)
	assert.True(t, resp.Data.Runs[0].Deterministic)
}

func TestReplay_DivergesWithDifferentRules(t *testing.T) {
	db, runID := journaledRun(t, maxpoolGraph, "--rules", activationDir)

	// Without the manifest the Relu rewrite never happens.
	stdout, _, err := execute(t, NewReplayCommand, "text", "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ "+runID+" diverged: rewrite 1: missing F_relu_onnx at relu")
	assert.Contains(t, stdout, "Determinism verification failed")
}

func TestReplay_DivergesOnStatus(t *testing.T) {
	db, _ := journaledRun(t, maxpoolGraph, "--rules", activationDir)

	stdout, _, err := execute(t, NewReplayCommand, "json", "--db", db, "--rules", activationDir, "--max-rewrites", "1")
	require.Error(t, err)

	var resp replayResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.False(t, resp.Data.AllDeterministic)
	require.Len(t, resp.Data.Runs, 1)
	assert.Contains(t, resp.Data.Runs[0].Divergence, "missing F_relu_onnx")
}

func TestReplay_EmptyJournal(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")
	j, err := journal.Open(db)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	stdout, _, err := execute(t, NewReplayCommand, "text", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, stdout, "No runs to replay")
}

func TestReplay_Errors(t *testing.T) {
	db, _ := journaledRun(t, maxpoolGraph)

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"missing journal", []string{"--db", filepath.Join(t.TempDir(), "nope.db")}, ErrCodeNotFound},
		{"unknown run", []string{"--db", db, "--run", "no-such-run"}, ErrCodeNotFound},
		{"invalid rules", []string{"--db", db, "--rules", brokenManifest}, "E202"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := execute(t, NewReplayCommand, "text", tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, stdout, tt.code)
		})
	}
}
