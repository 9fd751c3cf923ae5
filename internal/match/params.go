package match

import (
	"slices"

	"github.com/Tabbleman/ncnn/internal/ir"
	"github.com/Tabbleman/ncnn/internal/pattern"
)

type slotMatcher func(s pattern.Slot, v ir.Value, caps *Captures) bool

// matchParams requires the live key set to equal the pattern key set and
// every live value to satisfy its slot. Variants that differ only by an
// optional parameter therefore never match the same operator.
func matchParams(want []pattern.Param, have *ir.Params, caps *Captures, fits slotMatcher) bool {
	if len(want) != have.Len() {
		return false
	}
	for _, p := range want {
		v, ok := have.Get(p.Key)
		if !ok || !fits(p.Slot, v, caps) {
			return false
		}
	}
	return true
}

func matchSlot(s pattern.Slot, v ir.Value, caps *Captures) bool {
	switch s.Kind {
	case pattern.Wildcard:
		return true
	case pattern.Capture:
		return caps.bind(s.Name, v)
	case pattern.Array:
		if ir.Len(v) != len(s.Elems) {
			return false
		}
		for i, es := range s.Elems {
			e, _ := ir.Elem(v, i)
			if !matchSlot(es, e, caps) {
				return false
			}
		}
		return true
	default:
		return ir.Equal(s.Value, v)
	}
}

// matchAttrSlot compares attribute literals by dtype and shape. Payload
// bytes are compared only when the pattern literal carries data.
func matchAttrSlot(s pattern.Slot, v ir.Value, caps *Captures) bool {
	if s.Kind != pattern.Literal {
		return matchSlot(s, v, caps)
	}
	want, ok1 := s.Value.(*ir.Attribute)
	have, ok2 := v.(*ir.Attribute)
	if !ok1 || !ok2 {
		return false
	}
	if want.Data != nil {
		return want.Equal(have)
	}
	return want.DType == have.DType && slices.Equal(want.Shape, have.Shape)
}

// shapeFits checks a live operand against a #shape constraint. Unknown
// pattern dimensions match anything; an unknown live dimension matches only
// an unknown pattern dimension.
func shapeFits(po *pattern.Operand, v *ir.Operand) bool {
	if po == nil || !po.Constrained() {
		return true
	}
	if po.DType != ir.NoDType && po.DType != v.DType {
		return false
	}
	if po.Shape == nil {
		return true
	}
	if len(po.Shape) != len(v.Shape) {
		return false
	}
	for i, d := range po.Shape {
		if d != ir.UnknownDim && d != v.Shape[i] {
			return false
		}
	}
	return true
}
