package ir

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainGraph = "pnnx/graph/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash returns a content hash of the graph structure. Operator names are
// excluded, so two graphs that differ only in how operators are named hash
// the same. Parameters are encoded in sorted key order with NFC strings.
func (g *Graph) Hash() string {
	return hashWithDomain(DomainGraph, g.canonical())
}

func (g *Graph) canonical() []byte {
	var buf bytes.Buffer
	field := func(s string) {
		buf.WriteString(strconv.Itoa(len(s)))
		buf.WriteByte(':')
		buf.WriteString(s)
	}

	for _, op := range g.Operators() {
		buf.WriteByte('{')
		field(op.Type)
		buf.WriteByte('[')
		for _, id := range op.Inputs {
			field(g.Operand(id).Name)
		}
		buf.WriteString("][")
		for _, id := range op.Outputs {
			v := g.Operand(id)
			field(v.Name)
			field(FormatShape(v.Shape, v.DType))
		}
		buf.WriteByte(']')
		for _, k := range op.Params.SortedKeys() {
			v, _ := op.Params.Get(k)
			field(k)
			field(norm.NFC.String(FormatValue(v)))
		}
		buf.WriteByte('@')
		for _, k := range op.Attrs.SortedKeys() {
			v, _ := op.Attrs.Get(k)
			field(k)
			field(FormatValue(v))
			if a, ok := v.(*Attribute); ok {
				sum := sha256.Sum256(a.Data)
				field(hex.EncodeToString(sum[:]))
			}
		}
		buf.WriteByte('}')
	}
	return buf.Bytes()
}
