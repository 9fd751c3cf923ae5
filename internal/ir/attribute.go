package ir

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/x448/float16"
)

// DType names the element type of a tensor attribute or an operand.
type DType string

const (
	F32     DType = "f32"
	F64     DType = "f64"
	F16     DType = "f16"
	I64     DType = "i64"
	I32     DType = "i32"
	I8      DType = "i8"
	U8      DType = "u8"
	BoolDT  DType = "bool"
	NoDType DType = ""
)

// Size returns the element size in bytes, or 0 for an unknown dtype.
func (d DType) Size() int {
	switch d {
	case F64, I64:
		return 8
	case F32, I32:
		return 4
	case F16:
		return 2
	case I8, U8, BoolDT:
		return 1
	default:
		return 0
	}
}

// Valid reports whether d is one of the known dtypes.
func (d DType) Valid() bool {
	return d.Size() > 0
}

// UnknownDim marks a dimension whose size is not known.
const UnknownDim int64 = -1

// Attribute is a tensor-valued constant attached to an operator.
// Data is little-endian and may be nil when only the shape is known.
type Attribute struct {
	DType DType
	Shape []int64
	Data  []byte
}

func (*Attribute) irValue() {}

// NewAttribute creates an attribute from raw little-endian data.
func NewAttribute(dtype DType, shape []int64, data []byte) *Attribute {
	return &Attribute{DType: dtype, Shape: slices.Clone(shape), Data: data}
}

// NewFloat32Attribute encodes vals as an f32 tensor.
func NewFloat32Attribute(shape []int64, vals []float32) *Attribute {
	data := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	return NewAttribute(F32, shape, data)
}

// NewFloat16Attribute encodes vals as an f16 tensor.
func NewFloat16Attribute(shape []int64, vals []float32) *Attribute {
	data := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(data[2*i:], float16.Fromfloat32(v).Bits())
	}
	return NewAttribute(F16, shape, data)
}

// Elements returns the product of the shape dimensions.
func (a *Attribute) Elements() int64 {
	n := int64(1)
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// Equal compares dtype, shape and data.
func (a *Attribute) Equal(b *Attribute) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.DType == b.DType && slices.Equal(a.Shape, b.Shape) && bytes.Equal(a.Data, b.Data)
}

// Float32s decodes the payload of a floating point tensor.
func (a *Attribute) Float32s() ([]float32, error) {
	size := a.DType.Size()
	if size == 0 {
		return nil, fmt.Errorf("unknown dtype %q", a.DType)
	}
	if len(a.Data)%size != 0 {
		return nil, fmt.Errorf("%s payload of %d bytes is not a whole number of elements", a.DType, len(a.Data))
	}

	n := len(a.Data) / size
	out := make([]float32, n)
	switch a.DType {
	case F32:
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(a.Data[4*i:]))
		}
	case F16:
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(a.Data[2*i:])).Float32()
		}
	case F64:
		for i := range out {
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(a.Data[8*i:])))
		}
	default:
		return nil, fmt.Errorf("dtype %s is not a floating point type", a.DType)
	}
	return out, nil
}

// String renders the attribute as (d0,d1,...)dtype. Data is not printed.
func (a *Attribute) String() string {
	return FormatShape(a.Shape, a.DType)
}

// ParseAttribute parses "(d0,d1,...)dtype" into an attribute without data.
func ParseAttribute(s string) (*Attribute, error) {
	shape, dtype, err := ParseShape(s)
	if err != nil {
		return nil, err
	}
	if slices.Contains(shape, UnknownDim) {
		return nil, fmt.Errorf("attribute shape %q has an unknown dimension", s)
	}
	if !dtype.Valid() {
		return nil, fmt.Errorf("attribute %q needs a dtype", s)
	}
	return &Attribute{DType: dtype, Shape: shape}, nil
}

// ParseShape parses "(d0,d1,...)dtype" where a dimension may be "?".
// The dtype suffix may be empty.
func ParseShape(s string) ([]int64, DType, error) {
	end := strings.IndexByte(s, ')')
	if len(s) == 0 || s[0] != '(' || end < 0 {
		return nil, NoDType, fmt.Errorf("malformed shape %q", s)
	}
	dtype := DType(s[end+1:])
	if dtype != NoDType && !dtype.Valid() {
		return nil, NoDType, fmt.Errorf("unknown dtype %q in %q", dtype, s)
	}

	elems, err := SplitArray(s[:end+1])
	if err != nil {
		return nil, NoDType, err
	}
	shape := make([]int64, len(elems))
	for i, e := range elems {
		if e == "?" {
			shape[i] = UnknownDim
			continue
		}
		d, err := strconv.ParseInt(e, 10, 64)
		if err != nil || d < 0 {
			return nil, NoDType, fmt.Errorf("bad dimension %q in %q", e, s)
		}
		shape[i] = d
	}
	return shape, dtype, nil
}

// FormatShape renders a shape in the form read by ParseShape.
func FormatShape(shape []int64, dtype DType) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		if d < 0 {
			parts[i] = "?"
		} else {
			parts[i] = strconv.FormatInt(d, 10)
		}
	}
	return "(" + strings.Join(parts, ",") + ")" + string(dtype)
}
