package tree

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// fork runs fn for i in [0, n) and waits for all of them. Above
// ParallelDepth every call gets its own goroutine; below it they run in
// order on the caller's goroutine. Each call owns a disjoint subtree, so
// fn may write to the nodes under it without locking.
func (t *Tree) fork(ctx context.Context, depth, n int, fn func(ctx context.Context, i int) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if depth >= t.opts.ParallelDepth {
		for i := 0; i < n; i++ {
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error { return fn(gctx, i) })
	}
	return g.Wait()
}
