package tree

import (
	"context"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// hackcofm descends the tree finding the center of mass of every cell and
// setting its critical radius. psize is the width of cell p; it is passed
// down and halved at each level since cells do not store it.
func (t *Tree) hackcofm(ctx context.Context, p int32, psize float64, depth int) error {
	c := &t.pool.cells[p]

	// subcells first
	var subcells [NSub]Ref
	n := 0
	for _, q := range c.Sub {
		if q.Kind == CellNode {
			subcells[n] = q
			n++
		}
	}
	err := t.fork(ctx, depth, n, func(ctx context.Context, i int) error {
		return t.hackcofm(ctx, subcells[i].Index, psize/2, depth+1)
	})
	if err != nil {
		return err
	}

	var mass float64
	var cmpos mgl64.Vec3
	for _, q := range c.Sub {
		if q.Kind == Empty {
			continue
		}
		m := t.Mass(q)
		mass += m
		cmpos = cmpos.Add(t.Pos(q).Mul(m)) // weight pos by mass
	}

	if mass == 0 {
		// only an empty root gets here
		cmpos = c.Mid
	} else {
		cmpos = mgl64.Vec3{cmpos[0] / mass, cmpos[1] / mass, cmpos[2] / mass}
		for k := 0; k < 3; k++ {
			// negated so that a NaN fails too
			if !(c.Mid[k]-psize/2 <= cmpos[k] && cmpos[k] < c.Mid[k]+psize/2) {
				return fmt.Errorf("%w: center of mass %v outside cell at %v of width %g",
					ErrTreeStructure, cmpos, c.Mid, psize)
			}
		}
	}

	rc2, err := CriticalRadius2(t.opts.Criterion, t.opts.Theta, t.rsize, psize, c.Mid, cmpos)
	if err != nil {
		return err
	}

	c.Mass = mass
	c.Rcrit2 = rc2
	c.Pos = cmpos
	return nil
}
