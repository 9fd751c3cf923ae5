package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tabbleman/ncnn/internal/engine"
	"github.com/Tabbleman/ncnn/internal/ir"
)

const convertedGraph = `7767517
5 4
pnnx.Input in0 0 1 x
F.max_pool2d pool 1 1 x y kernel_size=(3,3) stride=(2,2) ceil_mode=False
F.relu relu 1 1 y z
F.relu relu2 1 1 z w
pnnx.Output out0 1 0 w
`

func testResult(rules ...string) *Result {
	r := NewResult()
	for i, name := range rules {
		r.Rewrites = append(r.Rewrites, engine.Rewrite{Seq: int64(i + 1), Rule: name})
	}
	return r
}

func TestEvaluateAssertions(t *testing.T) {
	g, err := ir.ReadGraph(convertedGraph)
	require.NoError(t, err)
	result := testResult("F_max_pool2d_onnx", "F_relu_onnx", "F_relu_onnx")

	tests := []struct {
		name      string
		assertion Assertion
		want      string // substring of the failure, empty for pass
	}{
		{"op_count match", Assertion{Type: AssertOpCount, OpType: "F.relu", Count: 2}, ""},
		{"op_count zero", Assertion{Type: AssertOpCount, OpType: "Relu", Count: 0}, ""},
		{"op_count mismatch", Assertion{Type: AssertOpCount, OpType: "F.relu", Count: 1}, "Actual: 2 operators"},
		{"absent", Assertion{Type: AssertAbsent, OpType: "MaxPool"}, ""},
		{"absent violated", Assertion{Type: AssertAbsent, OpType: "F.relu"}, "found relu, relu2"},
		{"op_params match", Assertion{Type: AssertOpParams, Operator: "pool", OpType: "F.max_pool2d", Params: map[string]string{"kernel_size": "(3,3)", "ceil_mode": "False"}}, ""},
		{"op_params type only", Assertion{Type: AssertOpParams, Operator: "relu", OpType: "F.relu"}, ""},
		{"op_params missing operator", Assertion{Type: AssertOpParams, Operator: "nope", OpType: "F.relu"}, "not found in graph"},
		{"op_params wrong type", Assertion{Type: AssertOpParams, Operator: "pool", OpType: "F.avg_pool2d"}, "Actual: type F.max_pool2d"},
		{"op_params missing key", Assertion{Type: AssertOpParams, Operator: "pool", Params: map[string]string{"padding": "(1,1)"}}, "parameter missing"},
		{"op_params wrong value", Assertion{Type: AssertOpParams, Operator: "pool", Params: map[string]string{"stride": "(1,1)"}}, "Actual: pool.stride=(2,2)"},
		{"rewrite_order", Assertion{Type: AssertRewriteOrder, Rules: []string{"F_max_pool2d_onnx", "F_relu_onnx"}}, ""},
		{"rewrite_order repeated", Assertion{Type: AssertRewriteOrder, Rules: []string{"F_relu_onnx", "F_relu_onnx"}}, ""},
		{"rewrite_order wrong order", Assertion{Type: AssertRewriteOrder, Rules: []string{"F_relu_onnx", "F_max_pool2d_onnx"}}, "F_max_pool2d_onnx not applied after [F_relu_onnx]"},
		{"rewrite_order missing", Assertion{Type: AssertRewriteOrder, Rules: []string{"F_gelu"}}, "F_gelu not applied"},
		{"unknown type", Assertion{Type: "trace_count"}, `unknown assertion type "trace_count"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(g, result, []Assertion{tt.assertion})
			if tt.want == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestAssertionError_Error(t *testing.T) {
	err := &AssertionError{
		Type:     AssertOpCount,
		Expected: "1 operators of type F.relu",
		Actual:   "0 operators",
		Rules:    []string{"F_max_pool2d_onnx"},
	}

	want := "Assertion failed: op_count\n" +
		"  Expected: 1 operators of type F.relu\n" +
		"  Actual: 0 operators\n" +
		"\nApplied rules:\n" +
		"  [1] F_max_pool2d_onnx\n"
	assert.Equal(t, want, err.Error())
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	assert.Empty(t, r.Rules())

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
