package tree

import "github.com/go-gl/mathgl/mgl64"

// Walk visits the built tree in depth-first pre-order without recursion.
// For a cell, returning true from visit descends into its children;
// returning false skips the whole subtree. The return value is ignored
// for bodies.
func (t *Tree) Walk(visit func(r Ref) bool) {
	for r := t.Root(); r != End; {
		if visit(r) && r.Kind == CellNode {
			if more := t.pool.cells[r.Index].More; more != End {
				r = more
				continue
			}
		}
		r = t.Next(r)
	}
}

// Opens is the multipole acceptance test: a cell must be opened when the
// point at lies within its critical radius of the cell's center of mass.
// Bodies are never opened.
func (t *Tree) Opens(r Ref, at mgl64.Vec3) bool {
	if r.Kind != CellNode {
		return false
	}
	c := &t.pool.cells[r.Index]
	d := at.Sub(c.Pos)
	return d.Dot(d) < c.Rcrit2
}
