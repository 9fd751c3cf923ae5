package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var maxpoolPattern = filepath.Join("testdata", "patterns", "maxpool.pattern")

func TestCheck_ValidPattern(t *testing.T) {
	stdout, _, err := execute(t, NewCheckCommand, "text", maxpoolPattern)
	require.NoError(t, err)

	assert.Contains(t, stdout, "✓ Pattern valid")
	assert.Contains(t, stdout, "anchor:    op_0 (MaxPool)")
	assert.Contains(t, stdout, "inputs:    input")
	assert.Contains(t, stdout, "%kernel_shape")
}

func TestCheck_JSON(t *testing.T) {
	stdout, _, err := execute(t, NewCheckCommand, "json", maxpoolPattern)
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   PatternSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, PatternSummary{
		Anchor:    "op_0",
		Operators: []string{"MaxPool op_0"},
		Inputs:    []string{"input"},
		Outputs:   []string{"out"},
		Captures:  []string{"kernel_shape", "strides", "pads", "dilations", "ceil_mode"},
	}, resp.Data)
}

func TestCheck_InvalidPattern(t *testing.T) {
	stdout, _, err := execute(t, NewCheckCommand, "text", filepath.Join("testdata", "patterns", "bad.pattern"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ Invalid pattern")
	assert.Contains(t, stdout, "line 4")
}

func TestCheck_InvalidPatternJSON(t *testing.T) {
	stdout, _, err := execute(t, NewCheckCommand, "json", filepath.Join("testdata", "patterns", "bad.pattern"))
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.NotEmpty(t, resp.Error.Code)
}

func TestCheck_MissingFile(t *testing.T) {
	stdout, _, err := execute(t, NewCheckCommand, "text", "testdata/patterns/nope.pattern")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "E005")
}
