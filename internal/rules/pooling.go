package rules

import (
	"fmt"
	"slices"

	"github.com/Tabbleman/ncnn/internal/ir"
	"github.com/Tabbleman/ncnn/internal/match"
	"github.com/Tabbleman/ncnn/internal/registry"
)

// MaxPoolPriority is the priority of every F.max_pool2d rule. The variants
// have disjoint parameter key sets, so at most one of them matches a
// given operator.
const MaxPoolPriority = 10

const maxPool2dAten = `7767517
8 7
pnnx.Input              input_0     0 1 input
pnnx.Input              input_1     0 1 kernel_size
pnnx.Input              input_2     0 1 stride
pnnx.Input              input_3     0 1 padding
pnnx.Input              input_4     0 1 dilation
prim::Constant          op_0        0 1 ceil_mode value=%ceil_mode
aten::max_pool2d        op_1        6 1 input kernel_size stride padding dilation ceil_mode out
pnnx.Output             output      1 0 out
`

const maxPool2dAtenIndices = `7767517
8 8
pnnx.Input              input_0     0 1 input
pnnx.Input              input_1     0 1 kernel_size
pnnx.Input              input_2     0 1 stride
pnnx.Input              input_3     0 1 padding
pnnx.Input              input_4     0 1 dilation
prim::Constant          op_0        0 1 ceil_mode value=%ceil_mode
aten::max_pool2d_with_indices op_1  6 2 input kernel_size stride padding dilation ceil_mode out indices
pnnx.Output             output      2 0 out indices
`

const maxPoolWithIndicesONNX = `7767517
3 3
pnnx.Input              input_0     0 1 input
aten::max_pool_with_indices_onnx op_1 1 2 input out indices kernel_size=%kernel_size stride=%stride padding=%padding dilation=%dilation ceil_mode=%ceil_mode n_dims_axes=* n_dims_one=* n_dims_zero=* unbatched_rank=*
pnnx.Output             output      2 0 out indices
`

const maxPoolONNX = `7767517
3 2
pnnx.Input              input       0 1 input
MaxPool                 op_0        1 1 input out kernel_shape=%kernel_shape strides=%strides pads=%pads dilations=%dilations ceil_mode=%ceil_mode
pnnx.Output             output      1 0 out
`

const maxPoolONNXIndices = `7767517
3 3
pnnx.Input              input       0 1 input
MaxPool                 op_0        1 2 input out indices kernel_shape=%kernel_shape strides=%strides pads=%pads dilations=%dilations ceil_mode=%ceil_mode
pnnx.Output             output      2 0 out indices
`

const maxPoolONNXStorageOrder = `7767517
3 2
pnnx.Input              input       0 1 input
MaxPool                 op_0        1 1 input out kernel_shape=%kernel_shape strides=%strides pads=%pads dilations=%dilations ceil_mode=%ceil_mode auto_pad=NOTSET storage_order=*
pnnx.Output             output      1 0 out
`

const maxPoolONNXNoDilations = `7767517
3 2
pnnx.Input              input       0 1 input
MaxPool                 op_0        1 1 input out kernel_shape=%kernel_shape strides=%strides pads=%pads ceil_mode=%ceil_mode
pnnx.Output             output      1 0 out
`

const maxPoolONNXMinimal = `7767517
3 2
pnnx.Input              input       0 1 input
MaxPool                 op_0        1 1 input out kernel_shape=%kernel_shape strides=%strides pads=%pads
pnnx.Output             output      1 0 out
`

// onnxPool describes which optional MaxPool attributes an ONNX variant
// carries. Absent dilations default to ones and an absent ceil_mode to
// false.
type onnxPool struct {
	dilations bool
	ceilMode  bool
}

var onnxFull = onnxPool{dilations: true, ceilMode: true}

// MaxPool2d returns the F.max_pool2d rules in registration order.
func MaxPool2d() []registry.Rule {
	onnxUses := []string{"kernel_shape", "strides", "pads", "dilations", "ceil_mode"}

	return []registry.Rule{
		{
			Name:     "F_max_pool2d",
			Type:     "F.max_pool2d",
			Priority: MaxPoolPriority,
			Pattern:  maxPool2dAten,
			Uses:     []string{"ceil_mode"},
			Write:    writeAten(false),
		},
		{
			Name:     "F_max_pool2d_2",
			Type:     "F.max_pool2d",
			Priority: MaxPoolPriority,
			Pattern:  maxPool2dAtenIndices,
			Uses:     []string{"ceil_mode"},
			Write:    writeAten(true),
		},
		{
			Name:     "F_max_pool2d_3",
			Type:     "F.max_pool2d",
			Priority: MaxPoolPriority,
			Pattern:  maxPoolWithIndicesONNX,
			Uses:     []string{"kernel_size", "stride", "padding", "dilation", "ceil_mode"},
			Write:    writeWithIndicesONNX,
		},
		{
			Name:     "F_max_pool2d_onnx",
			Type:     "F.max_pool2d",
			Priority: MaxPoolPriority,
			Pattern:  maxPoolONNX,
			Uses:     onnxUses,
			Validate: onnxFull.validate,
			Write:    onnxFull.write,
		},
		{
			Name:     "F_max_pool2d_onnx_indices",
			Type:     "F.max_pool2d",
			Priority: MaxPoolPriority,
			Pattern:  maxPoolONNXIndices,
			Uses:     onnxUses,
			Validate: onnxFull.validate,
			Write:    onnxFull.write,
		},
		{
			Name:     "F_max_pool2d_onnx_0",
			Type:     "F.max_pool2d",
			Priority: MaxPoolPriority,
			Pattern:  maxPoolONNXStorageOrder,
			Uses:     onnxUses,
			Validate: onnxFull.validate,
			Write:    onnxFull.write,
		},
		{
			Name:     "F_max_pool2d_onnx_1",
			Type:     "F.max_pool2d",
			Priority: MaxPoolPriority,
			Pattern:  maxPoolONNXNoDilations,
			Uses:     []string{"kernel_shape", "strides", "pads", "ceil_mode"},
			Validate: onnxPool{ceilMode: true}.validate,
			Write:    onnxPool{ceilMode: true}.write,
		},
		{
			Name:     "F_max_pool2d_onnx_2",
			Type:     "F.max_pool2d",
			Priority: MaxPoolPriority,
			Pattern:  maxPoolONNXMinimal,
			Uses:     []string{"kernel_shape", "strides", "pads"},
			Validate: onnxPool{}.validate,
			Write:    onnxPool{}.write,
		},
	}
}

// writeAten keeps the window operands as inputs and only normalizes the
// flags.
func writeAten(indices bool) registry.Writer {
	return func(m *match.Result, p *ir.Params) error {
		ceil, ok := m.Captures.Flag("ceil_mode")
		if !ok {
			return fmt.Errorf("ceil_mode is %s, want bool", kindOf(m, "ceil_mode"))
		}
		p.Set("ceil_mode", ir.Bool(ceil))
		p.Set("return_indices", ir.Bool(indices))
		return nil
	}
}

func writeWithIndicesONNX(m *match.Result, p *ir.Params) error {
	c := m.Captures
	var arrays [4][]int64
	for i, key := range []string{"kernel_size", "stride", "padding", "dilation"} {
		v, ok := c.Ints(key)
		if !ok {
			return fmt.Errorf("%s is %s, want int[]", key, kindOf(m, key))
		}
		arrays[i] = slices.Clone(v)
	}
	ceil, ok := c.Flag("ceil_mode")
	if !ok {
		return fmt.Errorf("ceil_mode is %s, want int", kindOf(m, "ceil_mode"))
	}

	padding := arrays[2]
	if len(padding) == 4 {
		padding = padding[:2]
	}
	p.Set("kernel_size", ir.Ints(arrays[0]))
	p.Set("stride", ir.Ints(arrays[1]))
	p.Set("padding", ir.Ints(padding))
	p.Set("dilation", ir.Ints(arrays[3]))
	p.Set("ceil_mode", ir.Bool(ceil))
	p.Set("return_indices", ir.Bool(len(m.Outputs) != 1))
	return nil
}

// window is the typed view of the captured ONNX MaxPool attributes.
type window struct {
	kernel, stride, pads, dilation []int64
	ceil                           bool
}

func (o onnxPool) window(c *match.Captures) (window, bool) {
	var w window
	var ok bool
	if w.kernel, ok = pair(c, "kernel_shape"); !ok {
		return w, false
	}
	if w.stride, ok = pair(c, "strides"); !ok {
		return w, false
	}
	w.dilation = []int64{1, 1}
	if o.dilations {
		if w.dilation, ok = pair(c, "dilations"); !ok {
			return w, false
		}
	}
	if w.pads, ok = c.Ints("pads"); !ok || len(w.pads) != 4 {
		return w, false
	}
	if o.ceilMode {
		if w.ceil, ok = c.Flag("ceil_mode"); !ok {
			return w, false
		}
	}
	return w, true
}

// validate accepts symmetric pads, and asymmetric pads whose trailing
// excess is never read at the operator's input and output sizes.
func (o onnxPool) validate(m *match.Result) bool {
	w, ok := o.window(m.Captures)
	if !ok {
		return false
	}
	if w.pads[0] == w.pads[2] && w.pads[1] == w.pads[3] {
		return true
	}
	if w.ceil {
		return false
	}

	op := m.Operator("op_0")
	in := m.Graph.Operand(op.Inputs[0])
	out := m.Graph.Operand(op.Outputs[0])
	return UnusedTailPadding(in.Shape, out.Shape, w.kernel, w.stride, w.dilation)
}

func (o onnxPool) write(m *match.Result, p *ir.Params) error {
	w, ok := o.window(m.Captures)
	if !ok {
		return fmt.Errorf("malformed MaxPool attributes")
	}
	p.Set("kernel_size", ir.Ints(slices.Clone(w.kernel)))
	p.Set("stride", ir.Ints(slices.Clone(w.stride)))
	p.Set("padding", ir.Ints{w.pads[0], w.pads[1]})
	p.Set("dilation", ir.Ints(slices.Clone(w.dilation)))
	p.Set("ceil_mode", ir.Bool(w.ceil))
	p.Set("return_indices", ir.Bool(len(m.Outputs) != 1))
	return nil
}

// pair returns the two-element integer array bound to name.
func pair(c *match.Captures, name string) ([]int64, bool) {
	v, ok := c.Ints(name)
	if !ok || len(v) != 2 {
		return nil, false
	}
	return v, true
}

func kindOf(m *match.Result, name string) string {
	v, _ := m.Captures.Get(name)
	return ir.Kind(v)
}
