package ir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const maxPoolGraph = `7767517
3 2
pnnx.Input               in0                      0 1 x #x=(1,3,5,5)f32
MaxPool                  pool                     1 1 x y kernel_shape=(3,3) strides=(2,2) pads=(1,1,1,1) dilations=(1,1) ceil_mode=0 #x=(1,3,5,5)f32 #y=(1,3,3,3)f32
pnnx.Output              out0                     1 0 y #y=(1,3,3,3)f32
`

func TestReadGraph_Basic(t *testing.T) {
	g, err := ReadGraph(maxPoolGraph)
	require.NoError(t, err)

	assert.Equal(t, 3, g.Len())
	assert.Equal(t, 2, g.NumOperands())

	pool := g.OperatorByName("pool")
	require.NotNil(t, pool)
	assert.Equal(t, "MaxPool", pool.Type)
	v, ok := pool.Params.Get("pads")
	require.True(t, ok)
	assert.Equal(t, Ints{1, 1, 1, 1}, v)
	assert.Equal(t, []string{"kernel_shape", "strides", "pads", "dilations", "ceil_mode"}, pool.Params.Keys())

	x := g.OperandByName("x")
	require.NotNil(t, x)
	assert.Equal(t, []int64{1, 3, 5, 5}, x.Shape)
	assert.Equal(t, F32, x.DType)
	assert.Equal(t, g.OperatorByName("in0").ID, x.Producer)
	assert.Equal(t, []OperatorID{pool.ID}, x.Consumers)

	require.NoError(t, g.Validate())
}

func TestWriteGraph_RoundTrip(t *testing.T) {
	g, err := ReadGraph(maxPoolGraph)
	require.NoError(t, err)

	assert.Equal(t, maxPoolGraph, g.String())

	again, err := ReadGraph(g.String())
	require.NoError(t, err)
	assert.Equal(t, g.Hash(), again.Hash())
}

func TestReadGraph_Errors(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		code string
	}{
		{"bad magic", "123\n1 1\nA a 0 1 x\n", ErrBadHeader},
		{"missing counts", "7767517\n", ErrBadHeader},
		{"operator count", "7767517\n2 1\nA a 0 1 x\n", ErrCountMismatch},
		{"operand count", "7767517\n1 2\nA a 0 1 x\n", ErrCountMismatch},
		{"too few names", "7767517\n1 1\nA a 0 2 x\n", ErrArityMismatch},
		{"key in name slot", "7767517\n1 1\nA a 0 2 x k=1\n", ErrArityMismatch},
		{"stray token", "7767517\n1 1\nA a 0 1 x y\n", ErrArityMismatch},
		{"undefined input", "7767517\n1 1\nA a 1 0 x\n", ErrUndefined},
		{"double producer", "7767517\n2 1\nA a 0 1 x\nB b 0 1 x\n", ErrDuplicateOutput},
		{"capture in live graph", "7767517\n1 1\nA a 0 1 x k=%k\n", ErrBadValue},
		{"repeated key", "7767517\n1 1\nA a 0 1 x k=1 k=2\n", ErrDuplicateKey},
		{"duplicate operator", "7767517\n2 2\nA a 0 1 x\nA a 0 1 y\n", ErrDuplicateName},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadGraph(tc.src)
			require.Error(t, err)
			var se *SyntaxError
			require.True(t, errors.As(err, &se), "want SyntaxError, got %T: %v", err, err)
			assert.Equal(t, tc.code, se.Code, se.Error())
		})
	}
}

func TestGraph_RemoveOperatorDetaches(t *testing.T) {
	g, err := ReadGraph(maxPoolGraph)
	require.NoError(t, err)

	pool := g.OperatorByName("pool")
	x, y := g.OperandByName("x"), g.OperandByName("y")
	require.NoError(t, g.RemoveOperator(pool.ID))

	assert.Nil(t, g.Operator(pool.ID))
	assert.Empty(t, x.Consumers)
	assert.Equal(t, NoOperator, y.Producer)
	assert.Equal(t, -1, g.Position(pool.ID))

	assert.Error(t, g.RemoveOperand(y.ID), "still consumed by out0")
}

func TestGraph_ValidateDetectsDanglingConsumer(t *testing.T) {
	g, err := ReadGraph(maxPoolGraph)
	require.NoError(t, err)

	y := g.OperandByName("y")
	y.Consumers = append(y.Consumers, OperatorID(99))

	err = g.Validate()
	require.Error(t, err)
	var ge *GraphError
	assert.True(t, errors.As(err, &ge))
}

func TestGraph_Reorder(t *testing.T) {
	g := NewGraph()
	a, err := g.AddOperator("A", "a")
	require.NoError(t, err)
	b, err := g.InsertOperator(0, "B", "b")
	require.NoError(t, err)

	v, err := g.AddOperand("v")
	require.NoError(t, err)
	require.NoError(t, g.AddOutput(a.ID, v.ID))
	require.NoError(t, g.AddInput(b.ID, v.ID))

	assert.Error(t, g.Validate(), "b precedes its producer")
	require.NoError(t, g.Reorder())
	assert.Equal(t, []OperatorID{a.ID, b.ID}, g.Order())
	assert.NoError(t, g.Validate())
}

func TestGraph_HashIgnoresOperatorNames(t *testing.T) {
	g, err := ReadGraph(maxPoolGraph)
	require.NoError(t, err)

	renamed, err := ReadGraph(`7767517
3 2
pnnx.Input in9 0 1 x #x=(1,3,5,5)f32
MaxPool other 1 1 x y kernel_shape=(3,3) strides=(2,2) pads=(1,1,1,1) dilations=(1,1) ceil_mode=0 #y=(1,3,3,3)f32
pnnx.Output out9 1 0 y
`)
	require.NoError(t, err)
	assert.Equal(t, g.Hash(), renamed.Hash())

	changed := g.Clone()
	changed.OperatorByName("pool").Params.Set("ceil_mode", Int(1))
	assert.NotEqual(t, g.Hash(), changed.Hash())
}
