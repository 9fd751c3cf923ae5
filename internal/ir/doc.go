// Package ir provides the in-memory graph model shared by the rewrite engine.
//
// This package contains the value model, the arena-owned graph and the text
// form of both. All other internal packages import ir; ir imports nothing
// internal.
//
// Key design constraints:
//   - Operators and operands are addressed by stable IDs, never by pointers
//     held across a mutation
//   - Value is a sealed sum type; Equal is the only structural equality
//   - The text reader and the pattern parser share ParseLine, so a pattern
//     and a serialized graph are read by the same tokenizer
package ir
