package tree

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// expandBox finds the largest coordinate offset of any body (test
// particles included) from the root midpoint and doubles the root until
// every body lies strictly inside it. Doubling keeps every cell width an
// exact power-of-two fraction of the root.
//
// A source with a non-finite position, or a box that would overflow, is
// an error. Test particles with non-finite positions are left out of the
// sizing since they never enter the tree.
func (t *Tree) expandBox() error {
	mid := t.pool.cells[t.root.Index].Mid

	xyzmax := 0.0
	for i := range t.bodies {
		b := &t.bodies[i]
		if !finite(b.Pos) {
			if b.Source() {
				return fmt.Errorf("%w: body %d at %v", ErrBadBody, i, b.Pos)
			}
			continue
		}
		for k := 0; k < 3; k++ {
			xyzmax = math.Max(xyzmax, math.Abs(b.Pos[k]-mid[k]))
		}
	}

	rsize := t.rsize
	for rsize <= 2*xyzmax {
		rsize *= 2
		if math.IsInf(rsize, 0) {
			return fmt.Errorf("%w: no finite root holds a body %g from the midpoint",
				ErrBadBody, xyzmax)
		}
	}
	t.rsize = rsize
	return nil
}

func finite(v mgl64.Vec3) bool {
	for k := 0; k < 3; k++ {
		if math.IsNaN(v[k]) || math.IsInf(v[k], 0) {
			return false
		}
	}
	return true
}

// insert descends from the root and places body bi in the first empty
// subcell slot on its path. A slot already holding a body is replaced by a
// new cell containing that body, and the descent continues into it.
func (t *Tree) insert(bi int) error {
	pos := t.bodies[bi].Pos
	cells := &t.pool.cells

	q := t.root.Index
	qind := octantOf((*cells)[q].Mid, pos)
	qsize := t.rsize
	lev := 0

	for {
		sub := (*cells)[q].Sub[qind]
		if sub.Kind == Empty {
			break
		}

		if sub.Kind == BodyNode {
			// 'complex' case: the slot holds another body, so it becomes
			// a cell holding that body one level down.
			if lev >= t.opts.MaxDepth {
				return fmt.Errorf("%w: bodies %d and %d need more than %d levels to separate",
					ErrMaxDepth, sub.Index, bi, t.opts.MaxDepth)
			}

			c := t.pool.get() // may move the arena
			parent, cell := &(*cells)[q], &(*cells)[c]
			for k := 0; k < 3; k++ {
				// each subcell midpoint is ±1/4 of the parent's width
				// from the parent's midpoint.
				off := qsize / 4
				if pos[k] < parent.Mid[k] {
					off = -off
				}
				cell.Mid[k] = parent.Mid[k] + off
			}
			cell.Sub[octantOf(cell.Mid, t.bodies[sub.Index].Pos)] = sub
			sub = cellRef(c)
			parent.Sub[qind] = sub
		}

		q = sub.Index
		qind = octantOf((*cells)[q].Mid, pos)
		qsize /= 2
		lev++
	}

	(*cells)[q].Sub[qind] = bodyRef(bi)
	if lev > t.maxlevel {
		t.maxlevel = lev
	}
	return nil
}
