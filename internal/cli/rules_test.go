package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRules_BuiltinTable(t *testing.T) {
	stdout, _, err := execute(t, NewRulesCommand, "text")
	require.NoError(t, err)

	assert.Contains(t, stdout, "NAME")
	assert.Contains(t, stdout, "ANCHOR")
	assert.Contains(t, stdout, "F_max_pool2d_onnx")
	assert.Contains(t, stdout, "MaxPool")
	assert.Contains(t, stdout, SourceBuiltin)
}

func TestRules_JSON(t *testing.T) {
	stdout, _, err := execute(t, NewRulesCommand, "json", "--rules", activationDir)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   []RuleInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 9)

	sources := make(map[string]string)
	for _, r := range resp.Data {
		sources[r.Name] = r.Source
	}
	assert.Equal(t, SourceBuiltin, sources["F_max_pool2d_onnx"])
	assert.Equal(t, activationDir, sources["F_relu_onnx"])

	last := resp.Data[len(resp.Data)-1]
	assert.Equal(t, RuleInfo{Name: "F_relu_onnx", Type: "F.relu", Priority: 10, Anchor: "Relu", Source: activationDir}, last)
}

func TestRules_NoBuiltins(t *testing.T) {
	stdout, _, err := execute(t, NewRulesCommand, "json", "--no-builtins", "--rules", swapManifest)
	require.NoError(t, err)

	var resp struct {
		Data []RuleInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "to_tanh", resp.Data[0].Name)
	assert.Equal(t, "Relu", resp.Data[0].Anchor)
	assert.Equal(t, "to_relu", resp.Data[1].Name)
}

func TestRules_Empty(t *testing.T) {
	stdout, _, err := execute(t, NewRulesCommand, "text", "--no-builtins")
	require.NoError(t, err)
	assert.Contains(t, stdout, "No rules registered")
}

func TestRules_InvalidManifest(t *testing.T) {
	_, _, err := execute(t, NewRulesCommand, "text", "--rules", brokenManifest)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
