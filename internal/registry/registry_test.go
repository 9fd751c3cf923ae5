package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tabbleman/ncnn/internal/ir"
	"github.com/Tabbleman/ncnn/internal/match"
	"github.com/Tabbleman/ncnn/internal/pattern"
)

const reluPattern = `7767517
3 2
pnnx.Input              input       0 1 input
Relu                    op_0        1 1 input out alpha=%alpha
pnnx.Output             output      1 0 out
`

const sigmoidPattern = `7767517
3 2
pnnx.Input              input       0 1 input
Sigmoid                 op_0        1 1 input out
pnnx.Output             output      1 0 out
`

func noop(*match.Result, *ir.Params) error { return nil }

func rule(name, typ string, priority int, pat string) Rule {
	return Rule{Name: name, Type: typ, Priority: priority, Pattern: pat, Write: noop}
}

func unary(name string) Canonical {
	return Canonical{Name: name, MinInputs: 1, MaxInputs: 1, MinOutputs: 1, MaxOutputs: 1}
}

func TestBuild_PriorityThenRegistrationOrder(t *testing.T) {
	reg, err := NewBuilder().
		Define(unary("F.relu")).
		Define(unary("F.sigmoid")).
		Register(
			rule("relu_low", "F.relu", 1, reluPattern),
			rule("relu_high", "F.relu", 10, reluPattern),
			rule("relu_tie", "F.relu", 10, reluPattern),
			rule("sigmoid", "F.sigmoid", 5, sigmoidPattern),
		).
		Build()
	require.NoError(t, err)

	var names []string
	for _, e := range reg.Entries() {
		names = append(names, e.Rule.Name)
	}
	assert.Equal(t, []string{"relu_high", "relu_tie", "sigmoid", "relu_low"}, names)

	var relu []string
	for _, e := range reg.ForAnchor("Relu") {
		relu = append(relu, e.Rule.Name)
	}
	assert.Equal(t, []string{"relu_high", "relu_tie", "relu_low"}, relu)
	assert.Empty(t, reg.ForAnchor("Tanh"))

	assert.Equal(t, []string{"F.relu", "F.sigmoid"}, reg.Types())
	assert.Len(t, reg.ForType("F.sigmoid"), 1)
	assert.Equal(t, 4, reg.Len())

	e, ok := reg.Lookup("relu_low")
	require.True(t, ok)
	assert.Equal(t, 0, e.Index)
	assert.Equal(t, "Relu", e.AnchorType())
}

func TestBuild_ConfigErrors(t *testing.T) {
	testCases := []struct {
		name  string
		build func() *Builder
		code  string
		rule  string
	}{
		{
			name: "duplicate rule",
			build: func() *Builder {
				return NewBuilder().Define(unary("F.relu")).
					Register(rule("r", "F.relu", 1, reluPattern), rule("r", "F.relu", 2, reluPattern))
			},
			code: ErrDuplicate,
			rule: "r",
		},
		{
			name: "missing writer",
			build: func() *Builder {
				r := rule("r", "F.relu", 1, reluPattern)
				r.Write = nil
				return NewBuilder().Define(unary("F.relu")).Register(r)
			},
			code: ErrMissingField,
			rule: "r",
		},
		{
			name: "undefined canonical",
			build: func() *Builder {
				return NewBuilder().Register(rule("r", "F.relu", 1, reluPattern))
			},
			code: ErrUnknownCanonical,
			rule: "r",
		},
		{
			name: "bad pattern reports earliest rule",
			build: func() *Builder {
				return NewBuilder().Define(unary("F.relu")).Register(
					rule("ok", "F.relu", 1, reluPattern),
					rule("first_bad", "F.relu", 1, "7767517\n"),
					rule("second_bad", "F.relu", 1, "garbage"),
				)
			},
			code: ErrBadPattern,
			rule: "first_bad",
		},
		{
			name: "pattern arity outside canonical bounds",
			build: func() *Builder {
				binary := Canonical{Name: "F.add", MinInputs: 2, MaxInputs: 2, MinOutputs: 1, MaxOutputs: 1}
				return NewBuilder().Define(binary).Register(rule("r", "F.add", 1, sigmoidPattern))
			},
			code: ErrBadArity,
			rule: "r",
		},
		{
			name: "inverted arity bounds",
			build: func() *Builder {
				return NewBuilder().Define(Canonical{Name: "F.relu", MinInputs: 2, MaxInputs: 1})
			},
			code: ErrBadCanonical,
			rule: "F.relu",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.build().Build()
			require.Error(t, err)
			require.True(t, IsConfigError(err))
			var ce *ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tc.code, ce.Code)
			assert.Equal(t, tc.rule, ce.Rule)
		})
	}
}

func TestBuild_BadPatternWrapsParseError(t *testing.T) {
	_, err := NewBuilder().Define(unary("F.relu")).
		Register(rule("r", "F.relu", 1, "7767517\n1 1\npnnx.Input in 0 1 x\n")).
		Build()
	require.Error(t, err)
	assert.True(t, pattern.IsParseError(err))
}

func TestBuild_UnknownCaptureSuggestsNearest(t *testing.T) {
	r := rule("r", "F.relu", 1, reluPattern)
	r.Uses = []string{"alhpa"}

	_, err := NewBuilder().Define(unary("F.relu")).Register(r).Build()
	require.Error(t, err)
	var ce *ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, ErrUnknownCapture, ce.Code)
	assert.Contains(t, ce.Error(), "did you mean %alpha?")

	r.Uses = []string{"kernel_size"}
	_, err = NewBuilder().Define(unary("F.relu")).Register(r).Build()
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestCanonical_Allows(t *testing.T) {
	c := Canonical{Name: "F.max_pool2d", MinInputs: 1, MaxInputs: 5, MinOutputs: 1, MaxOutputs: 2}
	assert.True(t, c.Allows(1, 1))
	assert.True(t, c.Allows(5, 2))
	assert.False(t, c.Allows(0, 1))
	assert.False(t, c.Allows(1, 3))

	open := Canonical{Name: "F.concat", MinInputs: 1, MaxInputs: Unbounded, MinOutputs: 1, MaxOutputs: 1}
	assert.True(t, open.Allows(64, 1))
}
