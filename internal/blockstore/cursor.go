package blockstore

import "sync/atomic"

// Cursor is the striping position over the configured storage locations.
// Each call to Next is a single atomic step, so concurrent sessions sharing
// a cursor never observe a torn value.
type Cursor struct {
	n atomic.Uint64
}

// NewCursor returns a cursor whose first Next lands on start.
func NewCursor(start uint64) *Cursor {
	c := &Cursor{}
	c.n.Store(start)
	return c
}

// Next returns the location index to use and advances the cursor.
func (c *Cursor) Next(locations int) int {
	if locations <= 0 {
		return 0
	}
	return int((c.n.Add(1) - 1) % uint64(locations))
}

// Peek returns the index the next call to Next would return.
func (c *Cursor) Peek(locations int) int {
	if locations <= 0 {
		return 0
	}
	return int(c.n.Load() % uint64(locations))
}
