package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tabbleman/ncnn/internal/ir"
	"github.com/Tabbleman/ncnn/internal/pattern"
)

const maxPoolPattern = `7767517
3 2
pnnx.Input              input       0 1 input
MaxPool                 op_0        1 1 input out kernel_shape=%kernel_shape strides=%strides pads=%pads dilations=%dilations ceil_mode=%ceil_mode
pnnx.Output             output      1 0 out
`

func mustGraph(t *testing.T, src string) *ir.Graph {
	t.Helper()
	g, err := ir.ReadGraph(src)
	require.NoError(t, err)
	return g
}

func anchorOf(t *testing.T, g *ir.Graph, name string) ir.OperatorID {
	t.Helper()
	op := g.OperatorByName(name)
	require.NotNil(t, op, "operator %s", name)
	return op.ID
}

func TestMatch_MaxPool(t *testing.T) {
	p := pattern.MustParse(maxPoolPattern)
	g := mustGraph(t, `7767517
4 3
pnnx.Input in0 0 1 x
MaxPool pool 1 1 x y kernel_shape=(3,3) strides=(2,2) pads=(1,1,1,1) dilations=(1,1) ceil_mode=0
Relu relu 1 1 y z
pnnx.Output out0 1 0 z
`)

	r, ok := Match(p, g, anchorOf(t, g, "pool"))
	require.True(t, ok)

	ks, ok := r.Captures.Ints("kernel_shape")
	require.True(t, ok)
	assert.Equal(t, []int64{3, 3}, ks)
	cm, ok := r.Captures.Int("ceil_mode")
	require.True(t, ok)
	assert.Equal(t, int64(0), cm)
	flag, ok := r.Captures.Flag("ceil_mode")
	require.True(t, ok)
	assert.False(t, flag)
	assert.Equal(t, []string{"kernel_shape", "strides", "pads", "dilations", "ceil_mode"}, r.Captures.Names())

	assert.Equal(t, []ir.OperatorID{anchorOf(t, g, "pool")}, r.Region)
	assert.Equal(t, []ir.OperandID{g.OperandByName("x").ID}, r.Inputs)
	assert.Equal(t, []ir.OperandID{g.OperandByName("y").ID}, r.Outputs)
	assert.Equal(t, "pool", r.Operator("op_0").Name)
	assert.Equal(t, "x", r.Operand("input").Name)

	_, ok = Match(p, g, anchorOf(t, g, "relu"))
	assert.False(t, ok, "wrong anchor type")
}

func TestMatch_ExactParameterKeySet(t *testing.T) {
	p := pattern.MustParse(maxPoolPattern)

	extra := mustGraph(t, `7767517
3 2
pnnx.Input in0 0 1 x
MaxPool pool 1 1 x y kernel_shape=(3,3) strides=(2,2) pads=(1,1,1,1) dilations=(1,1) ceil_mode=0 storage_order=0
pnnx.Output out0 1 0 y
`)
	_, ok := Match(p, extra, anchorOf(t, extra, "pool"))
	assert.False(t, ok, "extra live parameter")

	missing := mustGraph(t, `7767517
3 2
pnnx.Input in0 0 1 x
MaxPool pool 1 1 x y kernel_shape=(3,3) strides=(2,2) pads=(1,1,1,1) ceil_mode=0
pnnx.Output out0 1 0 y
`)
	_, ok = Match(p, missing, anchorOf(t, missing, "pool"))
	assert.False(t, ok, "missing live parameter")
}

func TestMatch_CaptureConsistency(t *testing.T) {
	p := pattern.MustParse(`7767517
4 3
pnnx.Input              input       0 1 input
Pad                     op_0        1 1 input a mode=%mode pads=(%p,%p)
Pad                     op_1        1 1 a out mode=%mode pads=*
pnnx.Output             output      1 0 out
`)

	testCases := []struct {
		name  string
		mode1 string
		pads0 string
		want  bool
	}{
		{"all occurrences agree", "constant", "(2,2)", true},
		{"second operator differs", "reflect", "(2,2)", false},
		{"array elements differ", "constant", "(2,3)", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := mustGraph(t, `7767517
4 3
pnnx.Input in0 0 1 x
Pad pad0 1 1 x y mode=constant pads=`+tc.pads0+`
Pad pad1 1 1 y z mode=`+tc.mode1+` pads=(0,0)
pnnx.Output out0 1 0 z
`)
			r, ok := Match(p, g, anchorOf(t, g, "pad1"))
			assert.Equal(t, tc.want, ok)
			if ok {
				assert.Len(t, r.Region, 2)
				mode, _ := r.Captures.Get("mode")
				assert.Equal(t, ir.String("constant"), mode)
				pad, _ := r.Captures.Int("p")
				assert.Equal(t, int64(2), pad)
			}
		})
	}
}

func TestMatch_InteriorOperandMustNotEscape(t *testing.T) {
	p := pattern.MustParse(`7767517
4 3
pnnx.Input              input       0 1 input
Relu                    op_0        1 1 input a
Tanh                    op_1        1 1 a out
pnnx.Output             output      1 0 out
`)
	g := mustGraph(t, `7767517
5 4
pnnx.Input in0 0 1 x
Relu relu 1 1 x a
Tanh tanh 1 1 a b
Sigmoid sig 1 1 a c
pnnx.Output out0 2 0 b c
`)
	_, ok := Match(p, g, anchorOf(t, g, "tanh"))
	assert.False(t, ok, "a is read by sig outside the region")
}

func TestMatch_RejectsNonConvexRegion(t *testing.T) {
	p := pattern.MustParse(`7767517
4 4
pnnx.Input              input       0 2 input side
Relu                    op_0        1 1 input a
Add                     op_1        2 1 a side out
pnnx.Output             output      2 0 out a
`)
	g := mustGraph(t, `7767517
5 4
pnnx.Input in0 0 1 x
Relu relu 1 1 x a
Neg neg 1 1 a u
Add add 2 1 a u z
pnnx.Output out0 1 0 z
`)
	_, ok := Match(p, g, anchorOf(t, g, "add"))
	assert.False(t, ok, "relu -> neg -> add leaves and re-enters the region")
}

func TestMatch_ForwardTriesEachConsumer(t *testing.T) {
	p := pattern.MustParse(`7767517
5 4
pnnx.Input              input       0 1 input
Conv                    op_0        1 1 input y
Relu                    op_1        1 1 y a
Tanh                    op_2        1 1 y b
pnnx.Output             output      2 0 a b
`)
	g := mustGraph(t, `7767517
5 4
pnnx.Input in0 0 1 x
Conv conv 1 1 x y
Tanh tanh 1 1 y b
Relu relu 1 1 y a
pnnx.Output out0 2 0 a b
`)
	r, ok := Match(p, g, anchorOf(t, g, "tanh"))
	require.True(t, ok)
	assert.Equal(t, "relu", r.Operator("op_1").Name)
	assert.Len(t, r.Region, 3)
	assert.Equal(t, []ir.OperandID{g.OperandByName("a").ID, g.OperandByName("b").ID}, r.Outputs)
}

func TestMatch_ShapeConstraint(t *testing.T) {
	p := pattern.MustParse(`7767517
3 2
pnnx.Input              input       0 1 input #input=(1,?,?)f32
Relu                    op_0        1 1 input out
pnnx.Output             output      1 0 out
`)

	fits := mustGraph(t, "7767517\n3 2\npnnx.Input in0 0 1 x #x=(1,3,4)f32\nRelu r 1 1 x y\npnnx.Output out0 1 0 y\n")
	_, ok := Match(p, fits, anchorOf(t, fits, "r"))
	assert.True(t, ok)

	batch := mustGraph(t, "7767517\n3 2\npnnx.Input in0 0 1 x #x=(2,3,4)f32\nRelu r 1 1 x y\npnnx.Output out0 1 0 y\n")
	_, ok = Match(p, batch, anchorOf(t, batch, "r"))
	assert.False(t, ok)

	unknown := mustGraph(t, "7767517\n3 2\npnnx.Input in0 0 1 x\nRelu r 1 1 x y\npnnx.Output out0 1 0 y\n")
	_, ok = Match(p, unknown, anchorOf(t, unknown, "r"))
	assert.False(t, ok)
}

func TestMatch_SharedInputBindsTwoPatternInputs(t *testing.T) {
	p := pattern.MustParse(`7767517
3 3
pnnx.Input              input       0 2 a b
Add                     op_0        2 1 a b out
pnnx.Output             output      1 0 out
`)
	g := mustGraph(t, "7767517\n3 2\npnnx.Input in0 0 1 x\nAdd add 2 1 x x y\npnnx.Output out0 1 0 y\n")
	r, ok := Match(p, g, anchorOf(t, g, "add"))
	require.True(t, ok)
	x := g.OperandByName("x").ID
	assert.Equal(t, []ir.OperandID{x, x}, r.Inputs)
}

func TestFind(t *testing.T) {
	p := pattern.MustParse(maxPoolPattern)
	g := mustGraph(t, `7767517
4 3
pnnx.Input in0 0 1 x
MaxPool pool0 1 1 x y kernel_shape=(2,2) strides=(2,2) pads=(0,0,0,0) ceil_mode=0
MaxPool pool1 1 1 y z kernel_shape=(2,2) strides=(2,2) pads=(0,0,0,0) dilations=(1,1) ceil_mode=0
pnnx.Output out0 1 0 z
`)
	r, ok := Find(p, g)
	require.True(t, ok)
	assert.Equal(t, anchorOf(t, g, "pool1"), r.Anchor)
}
