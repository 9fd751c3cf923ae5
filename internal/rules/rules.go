package rules

import "github.com/Tabbleman/ncnn/internal/registry"

// Canonicals lists the canonical operator types the built-in rules produce.
func Canonicals() []registry.Canonical {
	return []registry.Canonical{
		// input, then kernel_size, stride, padding and dilation when they
		// are graph operands; the value and optionally the indices.
		{Name: "F.max_pool2d", MinInputs: 1, MaxInputs: 5, MinOutputs: 1, MaxOutputs: 2},
	}
}

// Builtin returns the built-in rules in registration order.
func Builtin() []registry.Rule {
	return MaxPool2d()
}

// Register defines the built-in canonical types on b and registers the
// built-in rules.
func Register(b *registry.Builder) *registry.Builder {
	for _, c := range Canonicals() {
		b.Define(c)
	}
	return b.Register(Builtin()...)
}

// NewRegistry builds a registry holding only the built-in rules.
func NewRegistry() (*registry.Registry, error) {
	return Register(registry.NewBuilder()).Build()
}
