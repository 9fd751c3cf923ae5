// Package pattern parses rule patterns: small graphs in the same text form
// as a serialized model, where parameter values may also be %captures or *
// wildcards.
//
// A pattern has boundary lines (pnnx.Input, pnnx.Output) naming the external
// binding points and one or more interior lines naming the operators to
// recognize:
//
//	7767517
//	3 2
//	pnnx.Input  input  0 1 input
//	MaxPool     op_0   1 1 input out kernel_shape=%kernel_shape pads=(%p,%p,0,0) storage_order=*
//	pnnx.Output output 1 0 out
//
// Beyond key=value parameters a line may carry @name=slot attribute slots
// and #operand=(d0,?,d2)dtype shape constraints, where ? leaves a dimension
// unconstrained.
package pattern
