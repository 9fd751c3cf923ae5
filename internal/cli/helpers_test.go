package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/Tabbleman/ncnn/internal/journal"
)

var (
	maxpoolGraph   = filepath.Join("testdata", "graphs", "maxpool_relu.graph")
	reluGraph      = filepath.Join("testdata", "graphs", "relu.graph")
	activationDir  = filepath.Join("testdata", "manifests")
	swapManifest   = filepath.Join("testdata", "swap.cue")
	brokenManifest = filepath.Join("testdata", "broken.cue")
)

// execute runs a command built by newCmd and returns its stdout and stderr.
func execute(t *testing.T, newCmd func(*RootOptions) *cobra.Command, format string, args ...string) (string, string, error) {
	t.Helper()

	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := newCmd(&RootOptions{Format: format})
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// journaledRun converts graph into a fresh journal and returns the journal
// path and the run ID.
func journaledRun(t *testing.T, graph string, args ...string) (string, string) {
	t.Helper()

	db := filepath.Join(t.TempDir(), "pnnx.db")
	_, _, _ = execute(t, NewConvertCommand, "text", append([]string{graph, "--journal", db}, args...)...)

	j, err := journal.Open(db)
	require.NoError(t, err)
	defer j.Close()

	runs, err := j.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	return db, runs[0].ID
}
