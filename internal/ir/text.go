package ir

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Text format error codes (P001-P099). The pattern parser reports the same
// codes for the same faults.
const (
	ErrBadHeader       = "P001" // missing magic or count line
	ErrCountMismatch   = "P002" // declared operator/operand count differs
	ErrArityMismatch   = "P003" // declared input/output count differs
	ErrDuplicateOutput = "P004" // operand produced twice
	ErrUndefined       = "P005" // operand used before it is produced
	ErrBadValue        = "P006" // unknown value syntax
	ErrNoInterior      = "P007" // pattern has no interior operator
	ErrBoundary        = "P008" // misuse of pnnx.Input / pnnx.Output
	ErrDisconnected    = "P009" // pattern interior is not connected
	ErrDuplicateKey    = "P010" // parameter key repeated on one line
	ErrDuplicateName   = "P011" // operator name repeated
)

// SyntaxError reports a fault in graph or pattern text.
type SyntaxError struct {
	Line    int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s", e.Code, e.Line, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// KeyValue is one key=value token of an operator line.
type KeyValue struct {
	Key   string
	Value string
}

// Line is one tokenized operator line.
type Line struct {
	Number  int
	Type    string
	Name    string
	Inputs  []string
	Outputs []string
	Params  []KeyValue // key=value
	Attrs   []KeyValue // @key=value
	Shapes  []KeyValue // #operand=value
}

// Text is a tokenized graph or pattern.
type Text struct {
	OperatorCount int
	OperandCount  int
	Lines         []Line
}

// ScanText tokenizes a graph or pattern text: the magic line, the count
// line and one Line per operator. Blank lines are skipped.
func ScanText(src string) (*Text, error) {
	sc := bufio.NewScanner(strings.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var (
		t      Text
		header int
		lineNo int
	)
	for sc.Scan() {
		lineNo++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}

		switch header {
		case 0:
			if raw != Magic {
				return nil, &SyntaxError{Line: lineNo, Code: ErrBadHeader, Message: fmt.Sprintf("expected format marker %s, got %q", Magic, raw)}
			}
			header++
		case 1:
			fields := strings.Fields(raw)
			if len(fields) != 2 {
				return nil, &SyntaxError{Line: lineNo, Code: ErrBadHeader, Message: "expected \"<operator count> <operand count>\""}
			}
			nops, err1 := strconv.Atoi(fields[0])
			nvals, err2 := strconv.Atoi(fields[1])
			if err1 != nil || err2 != nil || nops < 0 || nvals < 0 {
				return nil, &SyntaxError{Line: lineNo, Code: ErrBadHeader, Message: fmt.Sprintf("bad counts %q", raw)}
			}
			t.OperatorCount, t.OperandCount = nops, nvals
			header++
		default:
			l, err := ParseLine(lineNo, raw)
			if err != nil {
				return nil, err
			}
			t.Lines = append(t.Lines, l)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan text: %w", err)
	}
	if header < 2 {
		return nil, &SyntaxError{Code: ErrBadHeader, Message: "missing header"}
	}
	if len(t.Lines) != t.OperatorCount {
		return nil, &SyntaxError{Code: ErrCountMismatch, Message: fmt.Sprintf("header declares %d operators, found %d", t.OperatorCount, len(t.Lines))}
	}
	return &t, nil
}

// ParseLine tokenizes one operator line:
//
//	<type> <name> <nin> <nout> <inputs...> <outputs...> [key=value | @key=value | #operand=value ...]
func ParseLine(number int, raw string) (Line, error) {
	fields := strings.Fields(raw)
	l := Line{Number: number}
	if len(fields) < 4 {
		return l, &SyntaxError{Line: number, Code: ErrArityMismatch, Message: "expected <type> <name> <inputs> <outputs>"}
	}
	l.Type, l.Name = fields[0], fields[1]

	nin, err1 := strconv.Atoi(fields[2])
	nout, err2 := strconv.Atoi(fields[3])
	if err1 != nil || err2 != nil || nin < 0 || nout < 0 {
		return l, &SyntaxError{Line: number, Code: ErrArityMismatch, Message: fmt.Sprintf("bad arity %q %q", fields[2], fields[3])}
	}

	rest := fields[4:]
	if len(rest) < nin+nout {
		return l, &SyntaxError{Line: number, Code: ErrArityMismatch, Message: fmt.Sprintf("%s declares %d inputs and %d outputs but lists %d names", l.Name, nin, nout, len(rest))}
	}
	names := rest[:nin+nout]
	for _, n := range names {
		if strings.ContainsAny(n, "=@#") {
			return l, &SyntaxError{Line: number, Code: ErrArityMismatch, Message: fmt.Sprintf("%s declares %d inputs and %d outputs but %q is not an operand name", l.Name, nin, nout, n)}
		}
	}
	l.Inputs = names[:nin]
	l.Outputs = names[nin:]

	seen := make(map[string]bool)
	for _, tok := range rest[nin+nout:] {
		eq := strings.IndexByte(tok, '=')
		if eq < 0 {
			return l, &SyntaxError{Line: number, Code: ErrArityMismatch, Message: fmt.Sprintf("%s: unexpected token %q after operand names", l.Name, tok)}
		}
		key, value := tok[:eq], tok[eq+1:]
		if seen[key] {
			return l, &SyntaxError{Line: number, Code: ErrDuplicateKey, Message: fmt.Sprintf("%s: key %q repeated", l.Name, key)}
		}
		seen[key] = true

		switch {
		case strings.HasPrefix(key, "@") && len(key) > 1:
			l.Attrs = append(l.Attrs, KeyValue{Key: key[1:], Value: value})
		case strings.HasPrefix(key, "#") && len(key) > 1:
			l.Shapes = append(l.Shapes, KeyValue{Key: key[1:], Value: value})
		case key == "" || key == "@" || key == "#":
			return l, &SyntaxError{Line: number, Code: ErrBadValue, Message: fmt.Sprintf("%s: empty key in %q", l.Name, tok)}
		default:
			l.Params = append(l.Params, KeyValue{Key: key, Value: value})
		}
	}
	return l, nil
}

// ReadGraph parses a live graph. Values must be literals; capture and
// wildcard syntax is rejected.
func ReadGraph(src string) (*Graph, error) {
	t, err := ScanText(src)
	if err != nil {
		return nil, err
	}

	g := NewGraph()
	for _, l := range t.Lines {
		op, err := g.AddOperator(l.Type, l.Name)
		if err != nil {
			return nil, &SyntaxError{Line: l.Number, Code: ErrDuplicateName, Message: err.Error()}
		}

		for _, name := range l.Inputs {
			v := g.OperandByName(name)
			if v == nil {
				return nil, &SyntaxError{Line: l.Number, Code: ErrUndefined, Message: fmt.Sprintf("%s reads operand %s before it is produced", l.Name, name)}
			}
			if err := g.AddInput(op.ID, v.ID); err != nil {
				return nil, err
			}
		}
		for _, name := range l.Outputs {
			if g.OperandByName(name) != nil {
				return nil, &SyntaxError{Line: l.Number, Code: ErrDuplicateOutput, Message: fmt.Sprintf("operand %s produced twice", name)}
			}
			v, err := g.AddOperand(name)
			if err != nil {
				return nil, err
			}
			if err := g.AddOutput(op.ID, v.ID); err != nil {
				return nil, err
			}
		}

		for _, kv := range l.Params {
			if strings.HasPrefix(kv.Value, "%") || kv.Value == "*" {
				return nil, &SyntaxError{Line: l.Number, Code: ErrBadValue, Message: fmt.Sprintf("%s.%s: capture or wildcard in a live graph", l.Name, kv.Key)}
			}
			v, err := ParseValue(kv.Value)
			if err != nil {
				return nil, &SyntaxError{Line: l.Number, Code: ErrBadValue, Message: fmt.Sprintf("%s.%s: %v", l.Name, kv.Key, err)}
			}
			op.Params.Set(kv.Key, v)
		}
		for _, kv := range l.Attrs {
			a, err := ParseAttribute(kv.Value)
			if err != nil {
				return nil, &SyntaxError{Line: l.Number, Code: ErrBadValue, Message: fmt.Sprintf("%s.@%s: %v", l.Name, kv.Key, err)}
			}
			op.Attrs.Set(kv.Key, a)
		}
		for _, kv := range l.Shapes {
			if err := applyShape(g, op, l, kv); err != nil {
				return nil, err
			}
		}
	}

	if g.NumOperands() != t.OperandCount {
		return nil, &SyntaxError{Code: ErrCountMismatch, Message: fmt.Sprintf("header declares %d operands, found %d", t.OperandCount, g.NumOperands())}
	}
	return g, nil
}

func applyShape(g *Graph, op *Operator, l Line, kv KeyValue) error {
	v := g.OperandByName(kv.Key)
	if v == nil || !(containsID(op.Inputs, v.ID) || containsID(op.Outputs, v.ID)) {
		return &SyntaxError{Line: l.Number, Code: ErrUndefined, Message: fmt.Sprintf("%s: shape for operand %s it does not use", l.Name, kv.Key)}
	}
	shape, dtype, err := ParseShape(kv.Value)
	if err != nil {
		return &SyntaxError{Line: l.Number, Code: ErrBadValue, Message: fmt.Sprintf("%s.#%s: %v", l.Name, kv.Key, err)}
	}
	v.Shape, v.DType = shape, dtype
	return nil
}

func containsID(ids []OperandID, id OperandID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// WriteGraph serializes g in the form read by ReadGraph.
func WriteGraph(w io.Writer, g *Graph) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, Magic)
	fmt.Fprintf(bw, "%d %d\n", g.Len(), g.NumOperands())

	for _, op := range g.Operators() {
		fmt.Fprintf(bw, "%-24s %-24s %d %d", op.Type, op.Name, len(op.Inputs), len(op.Outputs))
		for _, id := range op.Inputs {
			fmt.Fprintf(bw, " %s", g.Operand(id).Name)
		}
		for _, id := range op.Outputs {
			fmt.Fprintf(bw, " %s", g.Operand(id).Name)
		}
		for _, k := range op.Params.Keys() {
			v, _ := op.Params.Get(k)
			fmt.Fprintf(bw, " %s=%s", k, FormatValue(v))
		}
		for _, k := range op.Attrs.Keys() {
			v, _ := op.Attrs.Get(k)
			fmt.Fprintf(bw, " @%s=%s", k, FormatValue(v))
		}

		written := make(map[OperandID]bool)
		for _, id := range append(append([]OperandID{}, op.Inputs...), op.Outputs...) {
			v := g.Operand(id)
			if written[id] || (v.Shape == nil && v.DType == NoDType) {
				continue
			}
			written[id] = true
			fmt.Fprintf(bw, " #%s=%s", v.Name, FormatShape(v.Shape, v.DType))
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// String returns the text form of g.
func (g *Graph) String() string {
	var sb strings.Builder
	_ = WriteGraph(&sb, g)
	return sb.String()
}
