package tree

import (
	"context"
)

// threadtree walks the tree from p, whose next stop is n, installing Next
// and More links. Following Next from the root afterwards visits every node
// in depth-first pre-order, ending at End.
func (t *Tree) threadtree(ctx context.Context, p, n Ref, depth int) error {
	switch p.Kind {
	case BodyNode:
		t.bodyNext[p.Index] = n
		return nil
	case Empty:
		return nil
	}

	c := &t.pool.cells[p.Index]
	c.Next = n

	var desc [NSub + 1]Ref
	ndesc := 0
	for _, q := range c.Sub {
		if q.Kind != Empty {
			desc[ndesc] = q
			ndesc++
		}
	}
	c.More = desc[0] // End when there are no children
	desc[ndesc] = n

	// thread each child with the sibling after it as its next stop
	return t.fork(ctx, depth, ndesc, func(ctx context.Context, i int) error {
		return t.threadtree(ctx, desc[i], desc[i+1], depth+1)
	})
}
