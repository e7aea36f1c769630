/*

spatial tree acceleration structure.
point oct-tree based on Barnes-Hut.
https://en.wikipedia.org/wiki/Barnes%E2%80%93Hut_simulation

a build runs, in order: reset the arena, size the root, insert the bodies,
find centers of mass (and critical radii), optionally find quadrupole
moments, then thread the tree into a depth-first list.

*/

// Package tree builds the Barnes-Hut octree handed to the force evaluator.
package tree

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/quillaja/bhtree/internal/body"
	"github.com/quillaja/bhtree/internal/logger"
)

// Options controls how a tree is built.
type Options struct {
	// Theta is the opening angle. Zero means exact summation.
	Theta float64
	// Criterion selects the critical radius rule.
	Criterion Criterion
	// UseQuad enables the quadrupole moment pass.
	UseQuad bool
	// RootSize is the starting width of the root cell. It is doubled
	// until the bodies fit and never shrinks afterwards.
	RootSize float64
	// MaxDepth caps the number of cell levels below the root.
	MaxDepth int
	// ParallelDepth is how many levels of the aggregation passes fork a
	// goroutine per child. Zero keeps the whole build on one goroutine.
	ParallelDepth int
	// Logger defaults to the "tree" component logger.
	Logger *slog.Logger
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Theta:     1.0,
		Criterion: MaxCornerDistance,
		UseQuad:   true,
		RootSize:  4.0,
		MaxDepth:  128,
	}
}

func (o *Options) check() error {
	if !o.Criterion.valid() {
		return fmt.Errorf("%w: %v", ErrUnknownCriterion, o.Criterion)
	}
	if o.Theta < 0 {
		return fmt.Errorf("%w: theta must be non-negative, but is %g", ErrBadOptions, o.Theta)
	}
	if o.RootSize <= 0 {
		return fmt.Errorf("%w: root size must be positive, but is %g", ErrBadOptions, o.RootSize)
	}
	if o.MaxDepth < 1 {
		return fmt.Errorf("%w: max depth must be at least 1, but is %d", ErrBadOptions, o.MaxDepth)
	}
	if o.ParallelDepth < 0 {
		return fmt.Errorf("%w: parallel depth must be non-negative, but is %d", ErrBadOptions, o.ParallelDepth)
	}
	return nil
}

func checkBodyCount(n int) error {
	if n > MaxBodies {
		return fmt.Errorf("%w: %d bodies, at most %d can be addressed",
			ErrBadOptions, n, MaxBodies)
	}
	return nil
}

// Tree is a reusable octree. Build may be called once per simulation step;
// cells from the previous build are recycled.
//
// A Tree is not safe for concurrent use, but once Build returns the tree
// may be read from any number of goroutines until the next Build.
type Tree struct {
	opts Options
	log  *slog.Logger

	pool     pool
	root     Ref
	rsize    float64
	maxlevel int

	bodies   body.Store // not owned
	bodyNext []Ref      // Next links of body nodes, by body index
	inserted int

	built   bool
	elapsed time.Duration
}

// New returns an empty tree. Options are validated by Build so that a bad
// criterion is reported at the start of every build.
func New(opts Options) *Tree {
	t := &Tree{opts: opts, rsize: opts.RootSize, log: opts.Logger}
	if t.log == nil {
		t.log = logger.WithComponent("tree")
	}
	return t
}

// Options returns the options the tree was created with.
func (t *Tree) Options() Options { return t.opts }

// Build discards the previous tree and builds a new one from bodies.
// Bodies with zero mass or the Ignore flag are left out. The tree keeps a
// reference to bodies, which must not be modified until the tree is no
// longer read.
//
// Errors are fatal for the step: the tree is left unbuilt.
func (t *Tree) Build(ctx context.Context, bodies body.Store) error {
	start := time.Now()
	t.built = false

	if err := t.opts.check(); err != nil {
		return err
	}
	if t.rsize <= 0 {
		t.rsize = t.opts.RootSize
	}

	if err := checkBodyCount(len(bodies)); err != nil {
		return err
	}

	t.newtree(bodies)
	rootIdx := t.pool.get()
	t.root = cellRef(rootIdx) // midpoint is the origin
	if err := t.expandBox(); err != nil {
		return err
	}

	const checkEvery = 1 << 12
	for i := range bodies {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if !bodies[i].Source() {
			continue // exclude test particles
		}
		if err := t.insert(i); err != nil {
			return err
		}
		t.inserted++
	}

	if err := t.hackcofm(ctx, rootIdx, t.rsize, 0); err != nil {
		return err
	}
	if t.opts.UseQuad {
		if err := t.hackquad(ctx, rootIdx, 0); err != nil {
			return err
		}
	}
	if err := t.threadtree(ctx, t.root, End, 0); err != nil {
		return err
	}

	t.built = true
	t.elapsed = time.Since(start)

	root := t.Cell(t.root)
	t.log.Debug("tree built",
		"bodies", t.inserted,
		"cells", t.pool.used,
		"maxlevel", t.maxlevel,
		"rsize", t.rsize,
		"mass", root.Mass,
		"elapsed", t.elapsed)

	return nil
}

// newtree reclaims every cell and forgets the previous bodies.
func (t *Tree) newtree(bodies body.Store) {
	t.pool.reset()
	t.root = End
	t.maxlevel = 0
	t.inserted = 0
	t.bodies = bodies

	if cap(t.bodyNext) < len(bodies) {
		t.bodyNext = make([]Ref, len(bodies))
	} else {
		t.bodyNext = t.bodyNext[:len(bodies)]
		for i := range t.bodyNext {
			t.bodyNext[i] = End
		}
	}
}

// Built reports whether the last Build succeeded.
func (t *Tree) Built() bool { return t.built }

// Root is the root cell, or End if the tree is not built.
func (t *Tree) Root() Ref {
	if !t.built {
		return End
	}
	return t.root
}

// RootSize is the current width of the root cell.
func (t *Tree) RootSize() float64 { return t.rsize }

// MaxLevel is the deepest level a body was placed at in the last build.
func (t *Tree) MaxLevel() int { return t.maxlevel }

// CellsUsed is the number of cells in the current tree.
func (t *Tree) CellsUsed() int { return t.pool.used }

// CellsAllocated is the number of cells ever allocated by this tree.
func (t *Tree) CellsAllocated() int { return len(t.pool.cells) }

// Bodies is the store the tree was last built from.
func (t *Tree) Bodies() body.Store { return t.bodies }

// Cell returns the cell r refers to, or nil if r is not a cell.
func (t *Tree) Cell(r Ref) *Cell {
	if r.Kind != CellNode {
		return nil
	}
	return &t.pool.cells[r.Index]
}

// Body returns the body r refers to, or nil if r is not a body.
func (t *Tree) Body(r Ref) *body.Body {
	if r.Kind != BodyNode {
		return nil
	}
	return &t.bodies[r.Index]
}

// Pos is the center of mass of a cell or the position of a body.
func (t *Tree) Pos(r Ref) mgl64.Vec3 {
	switch r.Kind {
	case CellNode:
		return t.pool.cells[r.Index].Pos
	case BodyNode:
		return t.bodies[r.Index].Pos
	}
	return mgl64.Vec3{}
}

// Mass is the total mass below r.
func (t *Tree) Mass(r Ref) float64 {
	switch r.Kind {
	case CellNode:
		return t.pool.cells[r.Index].Mass
	case BodyNode:
		return t.bodies[r.Index].Mass
	}
	return 0
}

// Rcrit2 is the squared critical radius of a cell; zero for bodies.
func (t *Tree) Rcrit2(r Ref) float64 {
	if r.Kind != CellNode {
		return 0
	}
	return t.pool.cells[r.Index].Rcrit2
}

// Quad is the quadrupole moment of a cell; zero for bodies.
func (t *Tree) Quad(r Ref) mgl64.Mat3 {
	if r.Kind != CellNode {
		return mgl64.Mat3{}
	}
	return t.pool.cells[r.Index].Quad
}

// Next is the node following r's subtree in depth-first order.
func (t *Tree) Next(r Ref) Ref {
	switch r.Kind {
	case CellNode:
		return t.pool.cells[r.Index].Next
	case BodyNode:
		return t.bodyNext[r.Index]
	}
	return End
}

// More is the first child of a cell; End for bodies.
func (t *Tree) More(r Ref) Ref {
	if r.Kind != CellNode {
		return End
	}
	return t.pool.cells[r.Index].More
}

// Stats summarizes a built tree.
type Stats struct {
	Bodies    int
	Cells     int
	Allocated int
	MaxLevel  int
	RootSize  float64
	Mass      float64
	COM       mgl64.Vec3
	Elapsed   time.Duration
}

// Stats returns a summary of the last build.
func (t *Tree) Stats() Stats {
	s := Stats{
		Bodies:    t.inserted,
		Cells:     t.pool.used,
		Allocated: len(t.pool.cells),
		MaxLevel:  t.maxlevel,
		RootSize:  t.rsize,
		Elapsed:   t.elapsed,
	}
	if c := t.Cell(t.Root()); c != nil {
		s.Mass = c.Mass
		s.COM = c.Pos
	}
	return s
}
