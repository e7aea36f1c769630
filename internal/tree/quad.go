package tree

import (
	"context"

	"github.com/go-gl/mathgl/mgl64"
)

// hackquad descends the tree finding the quadrupole moment of every cell
// about its center of mass. It must run after hackcofm.
//
// The children of p are copied and fully processed, and the moment is
// summed in a local, before p.Quad is written.
func (t *Tree) hackquad(ctx context.Context, p int32, depth int) error {
	c := &t.pool.cells[p]
	psub := c.Sub

	var subcells [NSub]Ref
	n := 0
	for _, q := range psub {
		if q.Kind == CellNode {
			subcells[n] = q
			n++
		}
	}
	err := t.fork(ctx, depth, n, func(ctx context.Context, i int) error {
		return t.hackquad(ctx, subcells[i].Index, depth+1)
	})
	if err != nil {
		return err
	}

	var quad mgl64.Mat3
	for _, q := range psub {
		if q.Kind == Empty {
			continue
		}
		dr := t.Pos(q).Sub(c.Pos) // displacement from the cell's cm
		drsq := dr.Dot(dr)
		tmpm := dr.OuterProd3(dr).Mul(3).Sub(mgl64.Ident3().Mul(drsq)).Mul(t.Mass(q))
		if q.Kind == CellNode {
			tmpm = tmpm.Add(t.pool.cells[q.Index].Quad)
		}
		quad = quad.Add(tmpm)
	}

	c.Quad = quad
	return nil
}
