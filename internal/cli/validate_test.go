package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tabbleman/ncnn/internal/compiler"
)

func TestValidate_ValidManifest(t *testing.T) {
	stdout, _, err := execute(t, NewValidateCommand, "text", activationDir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ All rules valid (1 rule(s))")
	assert.NotContains(t, stdout, "warning")
}

func TestValidate_CycleWarning(t *testing.T) {
	stdout, _, err := execute(t, NewValidateCommand, "text", "--no-builtins", swapManifest)
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ All rules valid (2 rule(s))")
	assert.Contains(t, stdout, "warning: Potential cycle detected: to_tanh → to_relu → to_tanh")
}

func TestValidate_JSON(t *testing.T) {
	stdout, _, err := execute(t, NewValidateCommand, "json", "--no-builtins", swapManifest)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	require.Len(t, resp.Data.Warnings, 1)
	assert.Equal(t, []string{"to_tanh", "to_relu", "to_tanh"}, resp.Data.Warnings[0].Path)
}

func TestValidate_Errors(t *testing.T) {
	stdout, _, err := execute(t, NewValidateCommand, "text", brokenManifest)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, stdout, "✗ Validation failed")
	assert.Contains(t, stdout, compiler.ErrDuplicateRule)
	assert.Contains(t, stdout, compiler.ErrUnknownCanonical)
	assert.Contains(t, stdout, "line ")
}

func TestValidate_ErrorsJSON(t *testing.T) {
	stdout, _, err := execute(t, NewValidateCommand, "json", brokenManifest)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)

	codes := make([]string, len(resp.Data.Errors))
	for i, e := range resp.Data.Errors {
		codes[i] = e.Code
	}
	assert.Equal(t, []string{compiler.ErrDuplicateRule, compiler.ErrUnknownCanonical}, codes)
	assert.Equal(t, compiler.ErrDuplicateRule, resp.Error.Code)
}

func TestValidate_UnknownCanonicalWithoutBuiltins(t *testing.T) {
	// The first broken rule targets F.max_pool2d, which only the built-in
	// set defines.
	stdout, _, err := execute(t, NewValidateCommand, "json", "--no-builtins", brokenManifest)
	require.Error(t, err)

	var resp struct {
		Data ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.NotEmpty(t, resp.Data.Errors)
	assert.Equal(t, compiler.ErrUnknownCanonical, resp.Data.Errors[0].Code)
}

func TestValidate_CommandErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		code string
	}{
		{"missing path", filepath.Join("testdata", "nope"), ErrCodeNotFound},
		{"syntax error", filepath.Join("testdata", "syntax.cue"), ErrCodeLoadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := execute(t, NewValidateCommand, "text", tt.path)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, stdout, tt.code)
		})
	}
}

func TestValidate_RequiresPath(t *testing.T) {
	_, _, err := execute(t, NewValidateCommand, "text")
	require.Error(t, err)
}
