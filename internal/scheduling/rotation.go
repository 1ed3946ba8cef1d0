package scheduling

// Auditor is the minimal auditor view the rotation needs to hand out.
type Auditor struct {
	ID   string
	Name string
}

// Rotation is a round-robin cursor over a fixed auditor pool. The pool order
// is taken as given; callers that want randomized pairings shuffle the pool
// before constructing the rotation.
type Rotation struct {
	pool   []Auditor
	cursor int
}

// NewRotation constructs a rotation over a copy of the provided pool.
func NewRotation(pool []Auditor) *Rotation {
	copied := make([]Auditor, len(pool))
	copy(copied, pool)
	return &Rotation{pool: copied}
}

// Len reports the size of the underlying pool. Callers that need n distinct
// auditors must check Len() >= n before calling Next; Next itself wraps and
// may repeat auditors within a single call.
func (r *Rotation) Len() int {
	if r == nil {
		return 0
	}
	return len(r.pool)
}

// Next returns the next n auditors, advancing the cursor modulo the pool
// length and wrapping around when exhausted. An empty pool yields an empty
// result for any n.
func (r *Rotation) Next(n int) []Auditor {
	if r == nil || len(r.pool) == 0 || n <= 0 {
		return nil
	}
	out := make([]Auditor, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, r.pool[r.cursor])
		r.cursor = (r.cursor + 1) % len(r.pool)
	}
	return out
}
