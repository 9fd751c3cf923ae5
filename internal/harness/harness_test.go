package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, file string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", file))
	require.NoError(t, err)
	return s
}

func TestRun_Scenarios(t *testing.T) {
	scenarios, err := LoadScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Equal(t, s.Name, result.RunID)
		})
	}
}

func TestRun_MaxPoolRelu(t *testing.T) {
	result, err := Run(loadTestScenario(t, "01_maxpool_relu.yaml"))
	require.NoError(t, err)

	assert.True(t, result.Pass)
	assert.Empty(t, result.RunError)
	assert.Equal(t, []string{"F_max_pool2d_onnx", "F_relu_onnx"}, result.Rules())
	assert.Equal(t, "pool", result.Rewrites[0].Anchor)
	assert.Contains(t, result.Output, "F.relu")
}

func TestRun_ExpectedErrors(t *testing.T) {
	t.Run("cycle", func(t *testing.T) {
		result, err := Run(loadTestScenario(t, "04_swap_cycle.yaml"))
		require.NoError(t, err)
		assert.True(t, result.Pass)
		assert.Contains(t, result.RunError, "CYCLE_DETECTED")
		assert.Equal(t, []string{"to_tanh"}, result.Rules())
	})

	t.Run("quota", func(t *testing.T) {
		result, err := Run(loadTestScenario(t, "05_quota.yaml"))
		require.NoError(t, err)
		assert.True(t, result.Pass)
		assert.Contains(t, result.RunError, "exceeded max rewrites")
	})

	t.Run("unexpected error fails the scenario", func(t *testing.T) {
		s := loadTestScenario(t, "04_swap_cycle.yaml")
		s.ExpectError = ""
		result, err := Run(s)
		require.NoError(t, err)
		assert.False(t, result.Pass)
		require.NotEmpty(t, result.Errors)
		assert.Contains(t, result.Errors[0], "run failed")
	})

	t.Run("wrong error kind fails the scenario", func(t *testing.T) {
		s := loadTestScenario(t, "04_swap_cycle.yaml")
		s.ExpectError = ExpectQuota
		result, err := Run(s)
		require.NoError(t, err)
		assert.False(t, result.Pass)
		assert.Contains(t, result.Errors[0], "expected quota error")
	})

	t.Run("missing error fails the scenario", func(t *testing.T) {
		s := loadTestScenario(t, "01_maxpool_relu.yaml")
		s.ExpectError = ExpectCycle
		result, err := Run(s)
		require.NoError(t, err)
		assert.False(t, result.Pass)
		assert.Contains(t, result.Errors[0], "expected cycle error, got <nil>")
	})
}

func TestRun_FailedAssertion(t *testing.T) {
	s := loadTestScenario(t, "01_maxpool_relu.yaml")
	s.Assertions = []Assertion{{Type: AssertOpCount, OpType: "F.relu", Count: 2}}

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Expected: 2 operators of type F.relu")
}

func TestRun_SetupErrors(t *testing.T) {
	t.Run("bad graph", func(t *testing.T) {
		s := loadTestScenario(t, "01_maxpool_relu.yaml")
		s.Graph = "not a graph\n"
		_, err := Run(s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read graph")
	})

	t.Run("manifest listed twice", func(t *testing.T) {
		s := loadTestScenario(t, "04_swap_cycle.yaml")
		s.NoBuiltins = false
		s.Manifests = append(s.Manifests, s.Manifests[0])
		_, err := Run(s)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to build rules")
		assert.Contains(t, err.Error(), "E211")
	})
}

func TestBuildRegistry(t *testing.T) {
	t.Run("builtins first, then manifests", func(t *testing.T) {
		reg, err := BuildRegistry(loadTestScenario(t, "01_maxpool_relu.yaml"))
		require.NoError(t, err)
		assert.Equal(t, []string{"F.max_pool2d", "F.relu"}, reg.Types())
		assert.Equal(t, 9, reg.Len())
	})

	t.Run("no builtins", func(t *testing.T) {
		reg, err := BuildRegistry(loadTestScenario(t, "04_swap_cycle.yaml"))
		require.NoError(t, err)
		assert.Equal(t, []string{"Relu", "Tanh"}, reg.Types())
		assert.Equal(t, 2, reg.Len())
	})
}
