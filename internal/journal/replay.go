package journal

import (
	"fmt"
	"slices"

	"github.com/Tabbleman/ncnn/internal/engine"
)

// Divergence is the first point where a replayed run departs from the
// journaled one.
type Divergence struct {
	// Index is the position in the rewrite sequence.
	Index int `json:"index"`

	// Want is the journaled rewrite, nil if the replay applied extra rewrites.
	Want *engine.Rewrite `json:"want,omitempty"`

	// Got is the replayed rewrite, nil if the replay stopped early.
	Got *engine.Rewrite `json:"got,omitempty"`
}

// String describes the divergence on one line.
func (d *Divergence) String() string {
	switch {
	case d.Want == nil:
		return fmt.Sprintf("rewrite %d: unexpected %s at %s", d.Index, d.Got.Rule, d.Got.Anchor)
	case d.Got == nil:
		return fmt.Sprintf("rewrite %d: missing %s at %s", d.Index, d.Want.Rule, d.Want.Anchor)
	default:
		return fmt.Sprintf("rewrite %d: journaled %s at %s, replayed %s at %s",
			d.Index, d.Want.Rule, d.Want.Anchor, d.Got.Rule, d.Got.Anchor)
	}
}

// Compare checks a replayed rewrite sequence against a journaled one and
// returns the first divergence, or nil if they are identical. Every field
// takes part, including seq and the graph hash after each rewrite.
func Compare(want, got []engine.Rewrite) *Divergence {
	for i := range max(len(want), len(got)) {
		d := &Divergence{Index: i}
		if i < len(want) {
			d.Want = &want[i]
		}
		if i < len(got) {
			d.Got = &got[i]
		}
		if d.Want == nil || d.Got == nil || !equalRewrite(*d.Want, *d.Got) {
			return d
		}
	}
	return nil
}

func equalRewrite(a, b engine.Rewrite) bool {
	return a.Seq == b.Seq &&
		a.Pass == b.Pass &&
		a.Rule == b.Rule &&
		a.Type == b.Type &&
		a.Anchor == b.Anchor &&
		slices.Equal(a.Replaced, b.Replaced) &&
		a.Params == b.Params &&
		a.GraphHash == b.GraphHash
}
