package engine

// Clock numbers the rewrites of one run. The first rewrite gets seq 1 and
// every later one the next integer, so seq doubles as the rewrite's
// position in the journal and a replay of the same run reproduces it.
//
// A Clock belongs to a single sweep and is not safe for concurrent use.
type Clock struct {
	seq int64
}

// NewClock creates a clock whose first Next returns 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next advances the clock and returns the new seq.
func (c *Clock) Next() int64 {
	c.seq++
	return c.seq
}

// Current returns the last seq handed out, 0 before the first Next.
func (c *Clock) Current() int64 {
	return c.seq
}
