package journal

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tabbleman/ncnn/internal/engine"
	"github.com/Tabbleman/ncnn/internal/ir"
	"github.com/Tabbleman/ncnn/internal/match"
	"github.com/Tabbleman/ncnn/internal/registry"
)

const chainGraph = `7767517
5 4
pnnx.Input in0 0 1 x
Relu relu 1 1 x a
Tanh tanh 1 1 a y
Neg neg 1 1 y z
pnnx.Output out0 1 0 z
`

const reluPattern = `7767517
3 2
pnnx.Input              input       0 1 input
Relu                    op_0        1 1 input out
pnnx.Output             output      1 0 out
`

const tanhPattern = `7767517
3 2
pnnx.Input              input       0 1 input
Tanh                    op_0        1 1 input out
pnnx.Output             output      1 0 out
`

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	unary := func(name string) registry.Canonical {
		return registry.Canonical{Name: name, MinInputs: 1, MaxInputs: 1, MinOutputs: 1, MaxOutputs: 1}
	}
	reg, err := registry.NewBuilder().
		Define(unary("F.relu")).
		Define(unary("F.tanh")).
		Register(
			registry.Rule{Name: "F_relu", Type: "F.relu", Priority: 1, Pattern: reluPattern, Write: func(_ *match.Result, p *ir.Params) error {
				p.Set("inplace", ir.Bool(false))
				return nil
			}},
			registry.Rule{Name: "F_tanh", Type: "F.tanh", Priority: 1, Pattern: tanhPattern, Write: func(*match.Result, *ir.Params) error { return nil }},
		).
		Build()
	require.NoError(t, err)
	return reg
}

func readGraph(t *testing.T, src string) *ir.Graph {
	t.Helper()
	g, err := ir.ReadGraph(src)
	require.NoError(t, err)
	return g
}

func TestRecorder_JournalsRun(t *testing.T) {
	ctx := context.Background()
	j := createTestJournal(t)

	g := readGraph(t, chainGraph)
	input := g.String()
	e := engine.New(testRegistry(t),
		engine.WithRecorder(j.Recorder(ctx)),
		engine.WithRunIDGenerator(engine.NewFixedGenerator("run-1")))

	report, err := e.Run(ctx, g)
	require.NoError(t, err)
	require.Len(t, report.Rewrites, 2)

	run, err := j.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusConverged, run.Status)
	assert.Equal(t, input, run.Input)
	assert.Equal(t, report.InputHash, run.InputHash)
	assert.Equal(t, g.String(), run.Output)
	assert.Equal(t, report.OutputHash, run.OutputHash)
	assert.Equal(t, 2, run.Rewrites)
	assert.Equal(t, report.Passes, run.Passes)
	assert.Empty(t, run.Error)
	assert.Equal(t, ir.EngineVersion, run.EngineVersion)

	rewrites, err := j.ReadRewrites(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, report.Rewrites, rewrites)
	assert.Nil(t, Compare(report.Rewrites, rewrites))
}

func TestRecorder_JournalsFailedRun(t *testing.T) {
	ctx := context.Background()
	j := createTestJournal(t)

	e := engine.New(testRegistry(t),
		engine.WithRecorder(j.Recorder(ctx)),
		engine.WithMaxRewrites(1),
		engine.WithRunIDGenerator(engine.NewFixedGenerator("run-1")))

	_, err := e.Run(ctx, readGraph(t, chainGraph))
	require.Error(t, err)
	require.True(t, engine.IsQuotaError(err))

	run, err := j.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, 1, run.Rewrites)
	assert.Contains(t, run.Error, "exceeded max rewrites")

	rewrites, err := j.ReadRewrites(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, rewrites, 1)
	assert.Equal(t, "F_relu", rewrites[0].Rule)
}

func TestBeginRun_Duplicate(t *testing.T) {
	ctx := context.Background()
	j := createTestJournal(t)
	g := readGraph(t, chainGraph)

	require.NoError(t, j.BeginRun(ctx, "run-1", g))
	assert.Error(t, j.BeginRun(ctx, "run-1", g))
}

func TestRecordRewrite(t *testing.T) {
	ctx := context.Background()
	rw := engine.Rewrite{Seq: 1, Pass: 1, Rule: "F_relu", Type: "F.relu", Anchor: "relu", Replaced: []string{"relu"}, Params: "inplace=False", GraphHash: "h1"}

	t.Run("duplicate seq is ignored", func(t *testing.T) {
		j := createTestJournal(t)
		require.NoError(t, j.BeginRun(ctx, "run-1", readGraph(t, chainGraph)))

		require.NoError(t, j.RecordRewrite(ctx, "run-1", rw))
		other := rw
		other.Rule = "other"
		require.NoError(t, j.RecordRewrite(ctx, "run-1", other))

		rewrites, err := j.ReadRewrites(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, []engine.Rewrite{rw}, rewrites)
	})

	t.Run("unknown run violates foreign key", func(t *testing.T) {
		j := createTestJournal(t)
		assert.Error(t, j.RecordRewrite(ctx, "nope", rw))
	})
}

func TestFinishRun(t *testing.T) {
	ctx := context.Background()

	t.Run("twice", func(t *testing.T) {
		j := createTestJournal(t)
		require.NoError(t, j.BeginRun(ctx, "run-1", readGraph(t, chainGraph)))
		require.NoError(t, j.FinishRun(ctx, "run-1", &engine.Report{Passes: 1}, nil, nil))

		err := j.FinishRun(ctx, "run-1", &engine.Report{Passes: 1}, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is not running")
	})

	t.Run("unknown run", func(t *testing.T) {
		j := createTestJournal(t)
		assert.Error(t, j.FinishRun(ctx, "nope", nil, nil, nil))
	})

	t.Run("without output graph keeps report hash", func(t *testing.T) {
		j := createTestJournal(t)
		require.NoError(t, j.BeginRun(ctx, "run-1", readGraph(t, chainGraph)))
		require.NoError(t, j.FinishRun(ctx, "run-1", &engine.Report{OutputHash: "abc", Passes: 3}, nil, errors.New("boom")))

		run, err := j.ReadRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, run.Status)
		assert.Equal(t, "abc", run.OutputHash)
		assert.Empty(t, run.Output)
		assert.Equal(t, 3, run.Passes)
		assert.Equal(t, "boom", run.Error)
	})
}

func TestReadRun_NotFound(t *testing.T) {
	j := createTestJournal(t)
	_, err := j.ReadRun(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
