package pattern

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/Tabbleman/ncnn/internal/ir"
)

// Write serializes p in the text form read by Parse. Shape constraints are
// emitted on the first line that references the operand.
func Write(w io.Writer, p *Graph) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, ir.Magic)
	fmt.Fprintf(bw, "%d %d\n", len(p.Operators), len(p.operands))

	shaped := make(map[string]bool)
	for _, op := range p.Operators {
		fmt.Fprintf(bw, "%-24s %-24s %d %d", op.Type, op.Name, len(op.Inputs), len(op.Outputs))
		for _, n := range op.Inputs {
			fmt.Fprintf(bw, " %s", n)
		}
		for _, n := range op.Outputs {
			fmt.Fprintf(bw, " %s", n)
		}
		for _, prm := range op.Params {
			fmt.Fprintf(bw, " %s=%s", prm.Key, prm.Slot)
		}
		for _, prm := range op.Attrs {
			fmt.Fprintf(bw, " @%s=%s", prm.Key, prm.Slot)
		}
		for _, n := range append(append([]string{}, op.Inputs...), op.Outputs...) {
			o := p.operands[n]
			if shaped[n] || !o.Constrained() {
				continue
			}
			shaped[n] = true
			fmt.Fprintf(bw, " #%s=%s", n, ir.FormatShape(o.Shape, o.DType))
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// String returns the text form of p. Parse(p.String()) yields a pattern
// structurally equal to p.
func (p *Graph) String() string {
	var sb strings.Builder
	_ = Write(&sb, p)
	return sb.String()
}
