package registry

import (
	"fmt"
	"slices"

	"github.com/agnivade/levenshtein"
	"github.com/emirpasic/gods/v2/maps/treemap"
	"golang.org/x/sync/errgroup"

	"github.com/Tabbleman/ncnn/internal/pattern"
)

// Builder collects canonical definitions and rules in declaration order.
// Registration order is an explicit input: it breaks priority ties, so a
// rule set built from the same declared list always sweeps the same way.
type Builder struct {
	canonicals []Canonical
	rules      []Rule
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Define declares a canonical operator type.
func (b *Builder) Define(c Canonical) *Builder {
	b.canonicals = append(b.canonicals, c)
	return b
}

// Register appends a rule.
func (b *Builder) Register(rules ...Rule) *Builder {
	b.rules = append(b.rules, rules...)
	return b
}

// Build parses every pattern and checks the rule set. Any problem is a
// *ConfigError naming the offending rule; when several rules are broken the
// earliest registered one is reported.
func (b *Builder) Build() (*Registry, error) {
	canon := make(map[string]Canonical, len(b.canonicals))
	for _, c := range b.canonicals {
		if c.Name == "" {
			return nil, &ConfigError{Code: ErrMissingField, Message: "canonical type without a name"}
		}
		if _, dup := canon[c.Name]; dup {
			return nil, &ConfigError{Code: ErrDuplicate, Rule: c.Name, Message: "canonical type defined twice"}
		}
		if c.MinInputs < 0 || c.MinOutputs < 0 ||
			(c.MaxInputs != Unbounded && c.MaxInputs < c.MinInputs) ||
			(c.MaxOutputs != Unbounded && c.MaxOutputs < c.MinOutputs) {
			return nil, &ConfigError{Code: ErrBadCanonical, Rule: c.Name, Message: "inconsistent arity bounds"}
		}
		canon[c.Name] = c
	}

	// Patterns parse independently; each goroutine owns one slot so the
	// result does not depend on scheduling.
	parsed := make([]*pattern.Graph, len(b.rules))
	errs := make([]error, len(b.rules))
	var g errgroup.Group
	for i, r := range b.rules {
		g.Go(func() error {
			p, err := pattern.Parse(r.Pattern)
			parsed[i], errs[i] = p, err
			return err
		})
	}
	_ = g.Wait()

	names := make(map[string]bool, len(b.rules))
	entries := make([]*Entry, len(b.rules))
	for i, r := range b.rules {
		if r.Name == "" {
			return nil, &ConfigError{Code: ErrMissingField, Message: fmt.Sprintf("rule %d has no name", i)}
		}
		if names[r.Name] {
			return nil, &ConfigError{Code: ErrDuplicate, Rule: r.Name, Message: "rule registered twice"}
		}
		names[r.Name] = true
		if r.Type == "" {
			return nil, &ConfigError{Code: ErrMissingField, Rule: r.Name, Message: "no canonical type"}
		}
		if r.Write == nil {
			return nil, &ConfigError{Code: ErrMissingField, Rule: r.Name, Message: "no writer"}
		}
		c, ok := canon[r.Type]
		if !ok {
			return nil, &ConfigError{Code: ErrUnknownCanonical, Rule: r.Name, Message: fmt.Sprintf("canonical type %s is not defined", r.Type)}
		}
		if errs[i] != nil {
			return nil, &ConfigError{Code: ErrBadPattern, Rule: r.Name, Message: errs[i].Error(), Err: errs[i]}
		}
		if in, out := len(parsed[i].Inputs), len(parsed[i].Outputs); !c.Allows(in, out) {
			return nil, &ConfigError{Code: ErrBadArity, Rule: r.Name, Message: fmt.Sprintf("%s cannot have %d inputs and %d outputs", r.Type, in, out)}
		}
		for _, name := range r.Uses {
			if !parsed[i].HasCapture(name) {
				return nil, &ConfigError{Code: ErrUnknownCapture, Rule: r.Name, Message: unknownCapture(name, parsed[i].Captures)}
			}
		}
		entries[i] = &Entry{Rule: r, Pattern: parsed[i], Canonical: c, Index: i}
	}

	return newRegistry(entries, canon), nil
}

func unknownCapture(name string, known []string) string {
	msg := fmt.Sprintf("capture %%%s is not bound by the pattern", name)
	best, score := "", 4
	for _, k := range known {
		if d := levenshtein.ComputeDistance(name, k); d < score {
			best, score = k, d
		}
	}
	if best != "" {
		msg += fmt.Sprintf(" (did you mean %%%s?)", best)
	}
	return msg
}

// Registry is an immutable, priority-ordered rule table. It is safe for
// concurrent use.
type Registry struct {
	entries  []*Entry // priority desc, then registration order
	byAnchor map[string][]*Entry
	byType   *treemap.Map[string, []*Entry]
	canon    map[string]Canonical
}

func newRegistry(entries []*Entry, canon map[string]Canonical) *Registry {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b *Entry) int {
		if a.Rule.Priority != b.Rule.Priority {
			return b.Rule.Priority - a.Rule.Priority
		}
		return a.Index - b.Index
	})

	r := &Registry{
		entries:  sorted,
		byAnchor: make(map[string][]*Entry),
		byType:   treemap.New[string, []*Entry](),
		canon:    canon,
	}
	for _, e := range sorted {
		r.byAnchor[e.AnchorType()] = append(r.byAnchor[e.AnchorType()], e)
		list, _ := r.byType.Get(e.Rule.Type)
		r.byType.Put(e.Rule.Type, append(list, e))
	}
	return r
}

// ForAnchor returns the rules whose pattern anchor has the given operator
// type, highest priority first.
func (r *Registry) ForAnchor(typ string) []*Entry {
	return r.byAnchor[typ]
}

// ForType returns the rules producing the given canonical type, highest
// priority first.
func (r *Registry) ForType(canonical string) []*Entry {
	list, _ := r.byType.Get(canonical)
	return list
}

// Types returns the canonical types that have at least one rule, sorted.
func (r *Registry) Types() []string {
	return r.byType.Keys()
}

// Canonical returns the definition of a canonical type.
func (r *Registry) Canonical(name string) (Canonical, bool) {
	c, ok := r.canon[name]
	return c, ok
}

// Entries returns all rules in the order the sweep tries them.
func (r *Registry) Entries() []*Entry {
	return slices.Clone(r.entries)
}

// Rules returns the rule definitions in the order the sweep tries them.
func (r *Registry) Rules() []Rule {
	rules := make([]Rule, len(r.entries))
	for i, e := range r.entries {
		rules[i] = e.Rule
	}
	return rules
}

// Lookup returns the rule with the given name.
func (r *Registry) Lookup(name string) (*Entry, bool) {
	for _, e := range r.entries {
		if e.Rule.Name == name {
			return e, true
		}
	}
	return nil, false
}

// Len returns the number of rules.
func (r *Registry) Len() int {
	return len(r.entries)
}
