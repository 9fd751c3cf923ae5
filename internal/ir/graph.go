package ir

import (
	"fmt"
	"slices"
)

// Reserved operator types for graph boundary pseudo-operators.
const (
	InputType  = "pnnx.Input"
	OutputType = "pnnx.Output"
)

// OperatorID identifies an operator slot in a Graph. IDs are never reused.
type OperatorID int

// OperandID identifies an operand slot in a Graph. IDs are never reused.
type OperandID int

// NoOperator is the producer of an operand fed from outside the graph.
const NoOperator OperatorID = -1

// Operator is a typed computation node.
type Operator struct {
	ID      OperatorID
	Type    string
	Name    string
	Inputs  []OperandID
	Outputs []OperandID
	Params  *Params
	Attrs   *Params
}

// IsBoundary reports whether op is a graph input or output pseudo-operator.
func (op *Operator) IsBoundary() bool {
	return op.Type == InputType || op.Type == OutputType
}

// Operand is a single data-flow value.
type Operand struct {
	ID        OperandID
	Name      string
	DType     DType
	Shape     []int64 // UnknownDim for unknown entries; nil when unknown rank
	Producer  OperatorID
	Consumers []OperatorID
}

// GraphError reports a broken structural invariant.
type GraphError struct {
	Operator string
	Operand  string
	Message  string
}

// Error implements the error interface.
func (e *GraphError) Error() string {
	switch {
	case e.Operator != "" && e.Operand != "":
		return fmt.Sprintf("operator %s, operand %s: %s", e.Operator, e.Operand, e.Message)
	case e.Operator != "":
		return fmt.Sprintf("operator %s: %s", e.Operator, e.Message)
	case e.Operand != "":
		return fmt.Sprintf("operand %s: %s", e.Operand, e.Message)
	default:
		return e.Message
	}
}

// Graph owns operators and operands by ID.
//
// INVARIANTS:
//   - order lists every live operator exactly once
//   - removed slots are nil and their IDs are never handed out again
//   - operator and operand names are unique among live entries
type Graph struct {
	operators    []*Operator
	operands     []*Operand
	order        []OperatorID
	operatorName map[string]OperatorID
	operandName  map[string]OperandID
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		operatorName: make(map[string]OperatorID),
		operandName:  make(map[string]OperandID),
	}
}

// Operator returns the live operator with the given ID, or nil.
func (g *Graph) Operator(id OperatorID) *Operator {
	if id < 0 || int(id) >= len(g.operators) {
		return nil
	}
	return g.operators[id]
}

// Operand returns the live operand with the given ID, or nil.
func (g *Graph) Operand(id OperandID) *Operand {
	if id < 0 || int(id) >= len(g.operands) {
		return nil
	}
	return g.operands[id]
}

// OperatorByName returns the live operator with the given name, or nil.
func (g *Graph) OperatorByName(name string) *Operator {
	id, ok := g.operatorName[name]
	if !ok {
		return nil
	}
	return g.operators[id]
}

// OperandByName returns the live operand with the given name, or nil.
func (g *Graph) OperandByName(name string) *Operand {
	id, ok := g.operandName[name]
	if !ok {
		return nil
	}
	return g.operands[id]
}

// Order returns a copy of the operator sequence.
func (g *Graph) Order() []OperatorID {
	return slices.Clone(g.order)
}

// Len returns the number of live operators.
func (g *Graph) Len() int {
	return len(g.order)
}

// At returns the operator ID at position i of the sequence.
func (g *Graph) At(i int) OperatorID {
	return g.order[i]
}

// Position returns the index of id in the operator sequence, or -1.
func (g *Graph) Position(id OperatorID) int {
	return slices.Index(g.order, id)
}

// Operators returns the live operators in sequence order.
func (g *Graph) Operators() []*Operator {
	out := make([]*Operator, len(g.order))
	for i, id := range g.order {
		out[i] = g.operators[id]
	}
	return out
}

// Operands returns the live operands in creation order.
func (g *Graph) Operands() []*Operand {
	out := make([]*Operand, 0, len(g.operandName))
	for _, o := range g.operands {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

// NumOperands returns the number of live operands.
func (g *Graph) NumOperands() int {
	return len(g.operandName)
}

// AddOperator appends a new operator to the end of the sequence.
func (g *Graph) AddOperator(typ, name string) (*Operator, error) {
	return g.InsertOperator(len(g.order), typ, name)
}

// InsertOperator creates an operator at position pos of the sequence.
func (g *Graph) InsertOperator(pos int, typ, name string) (*Operator, error) {
	if typ == "" {
		return nil, &GraphError{Operator: name, Message: "empty operator type"}
	}
	if name == "" {
		return nil, &GraphError{Message: fmt.Sprintf("empty name for %s operator", typ)}
	}
	if _, exists := g.operatorName[name]; exists {
		return nil, &GraphError{Operator: name, Message: "duplicate operator name"}
	}
	if pos < 0 || pos > len(g.order) {
		return nil, &GraphError{Operator: name, Message: fmt.Sprintf("position %d out of range", pos)}
	}

	op := &Operator{
		ID:     OperatorID(len(g.operators)),
		Type:   typ,
		Name:   name,
		Params: NewParams(),
		Attrs:  NewParams(),
	}
	g.operators = append(g.operators, op)
	g.operatorName[name] = op.ID
	g.order = slices.Insert(g.order, pos, op.ID)
	return op, nil
}

// AddOperand creates an operand with no producer and no consumers.
func (g *Graph) AddOperand(name string) (*Operand, error) {
	if name == "" {
		return nil, &GraphError{Message: "empty operand name"}
	}
	if _, exists := g.operandName[name]; exists {
		return nil, &GraphError{Operand: name, Message: "duplicate operand name"}
	}
	o := &Operand{
		ID:       OperandID(len(g.operands)),
		Name:     name,
		Producer: NoOperator,
	}
	g.operands = append(g.operands, o)
	g.operandName[name] = o.ID
	return o, nil
}

// AddInput appends operand to op's inputs and op to the operand's consumers.
func (g *Graph) AddInput(op OperatorID, operand OperandID) error {
	o, v, err := g.pair(op, operand)
	if err != nil {
		return err
	}
	o.Inputs = append(o.Inputs, operand)
	v.Consumers = append(v.Consumers, op)
	return nil
}

// AddOutput appends operand to op's outputs and makes op its producer.
func (g *Graph) AddOutput(op OperatorID, operand OperandID) error {
	o, v, err := g.pair(op, operand)
	if err != nil {
		return err
	}
	if v.Producer != NoOperator {
		return &GraphError{Operator: o.Name, Operand: v.Name, Message: "operand already has a producer"}
	}
	o.Outputs = append(o.Outputs, operand)
	v.Producer = op
	return nil
}

// SetProducer replaces the producer of an operand without touching the
// producers' output lists.
func (g *Graph) SetProducer(operand OperandID, op OperatorID) error {
	v := g.Operand(operand)
	if v == nil {
		return &GraphError{Message: fmt.Sprintf("unknown operand %d", operand)}
	}
	if op != NoOperator && g.Operator(op) == nil {
		return &GraphError{Operand: v.Name, Message: fmt.Sprintf("unknown operator %d", op)}
	}
	v.Producer = op
	return nil
}

// AddConsumer appends op to the operand's consumer list.
func (g *Graph) AddConsumer(operand OperandID, op OperatorID) error {
	_, v, err := g.pair(op, operand)
	if err != nil {
		return err
	}
	v.Consumers = append(v.Consumers, op)
	return nil
}

// RemoveConsumer removes one occurrence of op from the operand's consumers.
func (g *Graph) RemoveConsumer(operand OperandID, op OperatorID) {
	v := g.Operand(operand)
	if v == nil {
		return
	}
	if i := slices.Index(v.Consumers, op); i >= 0 {
		v.Consumers = slices.Delete(v.Consumers, i, i+1)
	}
}

// RemoveOperator deletes an operator and detaches it from its operands:
// it leaves the consumer list of each input and stops producing each output.
// The operands themselves stay in the graph.
func (g *Graph) RemoveOperator(id OperatorID) error {
	op := g.Operator(id)
	if op == nil {
		return &GraphError{Message: fmt.Sprintf("unknown operator %d", id)}
	}
	for _, in := range op.Inputs {
		g.RemoveConsumer(in, id)
	}
	for _, out := range op.Outputs {
		if v := g.Operand(out); v != nil && v.Producer == id {
			v.Producer = NoOperator
		}
	}
	g.order = slices.DeleteFunc(g.order, func(x OperatorID) bool { return x == id })
	delete(g.operatorName, op.Name)
	g.operators[id] = nil
	return nil
}

// RemoveOperand deletes an operand that nothing references any more.
func (g *Graph) RemoveOperand(id OperandID) error {
	v := g.Operand(id)
	if v == nil {
		return &GraphError{Message: fmt.Sprintf("unknown operand %d", id)}
	}
	if v.Producer != NoOperator || len(v.Consumers) > 0 {
		return &GraphError{Operand: v.Name, Message: "operand is still referenced"}
	}
	delete(g.operandName, v.Name)
	g.operands[id] = nil
	return nil
}

func (g *Graph) pair(op OperatorID, operand OperandID) (*Operator, *Operand, error) {
	o := g.Operator(op)
	if o == nil {
		return nil, nil, &GraphError{Message: fmt.Sprintf("unknown operator %d", op)}
	}
	v := g.Operand(operand)
	if v == nil {
		return nil, nil, &GraphError{Operator: o.Name, Message: fmt.Sprintf("unknown operand %d", operand)}
	}
	return o, v, nil
}

// Clone returns a deep copy with identical IDs.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		operators:    make([]*Operator, len(g.operators)),
		operands:     make([]*Operand, len(g.operands)),
		order:        slices.Clone(g.order),
		operatorName: make(map[string]OperatorID, len(g.operatorName)),
		operandName:  make(map[string]OperandID, len(g.operandName)),
	}
	for i, op := range g.operators {
		if op == nil {
			continue
		}
		out.operators[i] = &Operator{
			ID:      op.ID,
			Type:    op.Type,
			Name:    op.Name,
			Inputs:  slices.Clone(op.Inputs),
			Outputs: slices.Clone(op.Outputs),
			Params:  op.Params.Clone(),
			Attrs:   op.Attrs.Clone(),
		}
		out.operatorName[op.Name] = op.ID
	}
	for i, v := range g.operands {
		if v == nil {
			continue
		}
		out.operands[i] = &Operand{
			ID:        v.ID,
			Name:      v.Name,
			DType:     v.DType,
			Shape:     slices.Clone(v.Shape),
			Producer:  v.Producer,
			Consumers: slices.Clone(v.Consumers),
		}
		out.operandName[v.Name] = v.ID
	}
	return out
}
