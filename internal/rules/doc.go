// Package rules declares the built-in rewrite rules.
//
// Rules are plain registry.Rule values collected in declared lists, so the
// registration order, and with it the tie-break between equal priorities,
// is fixed by the source. Register adds the canonical definitions and the
// lists to a registry.Builder:
//
//	reg, err := rules.Register(registry.NewBuilder()).Build()
package rules
