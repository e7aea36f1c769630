package tree

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillaja/bhtree/internal/body"
)

func build(t *testing.T, opts Options, bodies body.Store) *Tree {
	t.Helper()
	tr := New(opts)
	require.NoError(t, tr.Build(context.Background(), bodies))
	return tr
}

func fixedAngle(theta float64) Options {
	opts := DefaultOptions()
	opts.Criterion = FixedAngle
	opts.Theta = theta
	return opts
}

func scattered(n int, seed int64) body.Store {
	cores := []body.Core{
		{Mass: 50, Pos: mgl64.Vec3{-10, 1, 0}, Axis: mgl64.Vec3{0, 0, 1}},
		{Mass: 50, Pos: mgl64.Vec3{10, -1, 2}, Axis: mgl64.Vec3{0, 1, 0}},
	}
	return body.Scatter(n, cores, 3, seed)
}

// checkCell verifies the geometry of the subtree under r, whose cell has
// width size: center of mass containment, child midpoints and the
// octant of every body.
func checkCell(t *testing.T, tr *Tree, r Ref, size float64) {
	t.Helper()
	c := tr.Cell(r)
	require.NotNil(t, c)

	for k := 0; k < 3; k++ {
		assert.GreaterOrEqual(t, c.Pos[k], c.Mid[k]-size/2, "cm below cell on axis %d", k)
		assert.Less(t, c.Pos[k], c.Mid[k]+size/2, "cm above cell on axis %d", k)
	}

	for oct, q := range c.Sub {
		switch q.Kind {
		case CellNode:
			child := tr.Cell(q)
			for k := 0; k < 3; k++ {
				off := -size / 4
				if oct>>k&1 == 1 {
					off = size / 4
				}
				assert.InDelta(t, c.Mid[k]+off, child.Mid[k], 1e-12)
			}
			checkCell(t, tr, q, size/2)
		case BodyNode:
			b := tr.Body(q)
			assert.Equal(t, octant(oct), octantOf(c.Mid, b.Pos))
			for k := 0; k < 3; k++ {
				assert.GreaterOrEqual(t, b.Pos[k], c.Mid[k]-size/2)
				assert.Less(t, b.Pos[k], c.Mid[k]+size/2)
			}
		}
	}
}

func walkAll(tr *Tree) (order []Ref) {
	tr.Walk(func(r Ref) bool {
		order = append(order, r)
		return true
	})
	return
}

func TestTwoBodies(t *testing.T) {
	bodies := body.Store{
		{Mass: 1, Pos: mgl64.Vec3{-1, 0, 0}},
		{Mass: 1, Pos: mgl64.Vec3{1, 0, 0}},
	}
	tr := build(t, fixedAngle(1.0), bodies)

	root := tr.Cell(tr.Root())
	require.NotNil(t, root)
	assert.Equal(t, 4.0, tr.RootSize())
	assert.Equal(t, 2.0, root.Mass)
	assert.Equal(t, mgl64.Vec3{0, 0, 0}, root.Pos)
	assert.Equal(t, 16.0, root.Rcrit2)

	// both bodies sit directly under the root
	assert.Equal(t, 1, tr.CellsUsed())
	assert.Equal(t, 0, tr.MaxLevel())
	assert.Equal(t, bodyRef(0), root.Sub[HHL])
	assert.Equal(t, bodyRef(1), root.Sub[HHH])
}

func TestSquareCorners(t *testing.T) {
	const m = 2.5
	square := func(cx, cy float64) body.Store {
		return body.Store{
			{Mass: m, Pos: mgl64.Vec3{cx - 1, cy - 1, 0}},
			{Mass: m, Pos: mgl64.Vec3{cx + 1, cy - 1, 0}},
			{Mass: m, Pos: mgl64.Vec3{cx - 1, cy + 1, 0}},
			{Mass: m, Pos: mgl64.Vec3{cx + 1, cy + 1, 0}},
		}
	}

	tests := []struct {
		name   string
		cx, cy float64
	}{
		{"centered", 0, 0},
		{"offset", 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := build(t, DefaultOptions(), square(tt.cx, tt.cy))
			root := tr.Cell(tr.Root())

			assert.LessOrEqual(t, tr.MaxLevel(), 1)
			assert.InDelta(t, 4*m, root.Mass, 1e-12)
			assert.True(t, root.Pos.ApproxEqualThreshold(mgl64.Vec3{tt.cx, tt.cy, 0}, 1e-12),
				"got %v", root.Pos)
			checkCell(t, tr, tr.Root(), tr.RootSize())
		})
	}
}

func TestExpandBoxDoublesAndNeverShrinks(t *testing.T) {
	tr := New(DefaultOptions())
	ctx := context.Background()

	require.NoError(t, tr.Build(ctx, body.Store{{Mass: 1, Pos: mgl64.Vec3{5, 0, 0}}}))
	assert.Equal(t, 16.0, tr.RootSize())

	// a body exactly on the old half width forces one more doubling
	require.NoError(t, tr.Build(ctx, body.Store{{Mass: 1, Pos: mgl64.Vec3{0, -8, 0}}}))
	assert.Equal(t, 32.0, tr.RootSize())

	require.NoError(t, tr.Build(ctx, body.Store{{Mass: 1, Pos: mgl64.Vec3{0.1, 0, 0}}}))
	assert.Equal(t, 32.0, tr.RootSize())
}

func TestMassConservationAndContainment(t *testing.T) {
	bodies := scattered(2000, 7)
	// a few test particles, one far outside the cluster
	bodies[10].Mass = 0
	bodies[11].Ignore = true
	bodies = append(bodies, body.Body{Mass: 0, Pos: mgl64.Vec3{500, 0, 0}})

	tr := build(t, DefaultOptions(), bodies)
	root := tr.Cell(tr.Root())

	assert.InDelta(t, bodies.TotalMass(), root.Mass, 1e-9)
	assert.True(t, root.Pos.ApproxEqualThreshold(bodies.CenterOfMass(), 1e-9))
	assert.Equal(t, bodies.Sources(), tr.Stats().Bodies)

	// the test particle still sized the root
	assert.Greater(t, tr.RootSize(), 1000.0)
	for i := range bodies {
		for k := 0; k < 3; k++ {
			assert.Less(t, math.Abs(bodies[i].Pos[k]), tr.RootSize()/2)
		}
	}

	checkCell(t, tr, tr.Root(), tr.RootSize())
}

func TestOrderIndependence(t *testing.T) {
	bodies := scattered(1000, 3)
	shuffled := make(body.Store, len(bodies))
	copy(shuffled, bodies)
	rand.New(rand.NewSource(99)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	a := build(t, DefaultOptions(), bodies).Stats()
	b := build(t, DefaultOptions(), shuffled).Stats()

	assert.InDelta(t, a.Mass, b.Mass, 1e-9)
	assert.True(t, a.COM.ApproxEqualThreshold(b.COM, 1e-9), "%v != %v", a.COM, b.COM)
}

func TestExactModeOpensEverything(t *testing.T) {
	bodies := scattered(300, 11)

	for _, opts := range []Options{fixedAngle(0), {Criterion: Exact, Theta: 0.8, RootSize: 4, MaxDepth: 64}} {
		tr := build(t, opts, bodies)
		want := (2 * tr.RootSize()) * (2 * tr.RootSize())
		cells := 0
		tr.Walk(func(r Ref) bool {
			if r.IsCell() {
				cells++
				assert.Equal(t, want, tr.Rcrit2(r))
			}
			return true
		})
		assert.Equal(t, tr.CellsUsed(), cells)
	}
}

func TestUnknownCriterionFailsFast(t *testing.T) {
	opts := DefaultOptions()
	opts.Criterion = Criterion(42)
	tr := New(opts)

	err := tr.Build(context.Background(), scattered(10, 1))
	require.ErrorIs(t, err, ErrUnknownCriterion)
	assert.False(t, tr.Built())
	assert.Equal(t, End, tr.Root())
	assert.Equal(t, 0, tr.CellsAllocated())
}

func TestBadOptions(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Options)
	}{
		{"negative theta", func(o *Options) { o.Theta = -0.1 }},
		{"zero root size", func(o *Options) { o.RootSize = 0 }},
		{"zero max depth", func(o *Options) { o.MaxDepth = 0 }},
		{"negative parallel depth", func(o *Options) { o.ParallelDepth = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mod(&opts)
			err := New(opts).Build(context.Background(), scattered(5, 1))
			assert.ErrorIs(t, err, ErrBadOptions)
		})
	}
}

func TestCoincidentBodiesHitMaxDepth(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxDepth = 16
	tr := New(opts)
	ctx := context.Background()

	same := mgl64.Vec3{0.3, 0.3, 0.3}
	err := tr.Build(ctx, body.Store{{Mass: 1, Pos: same}, {Mass: 1, Pos: same}})
	require.ErrorIs(t, err, ErrMaxDepth)
	assert.False(t, tr.Built())

	// the tree recovers on the next build
	require.NoError(t, tr.Build(ctx, scattered(50, 2)))
	assert.True(t, tr.Built())
}

func TestNonFiniteBodies(t *testing.T) {
	inf := math.Inf(1)
	cases := map[string]body.Store{
		"huge":     {{Mass: 1, Pos: mgl64.Vec3{1e308, 0, 0}}},
		"inf":      {{Mass: 1, Pos: mgl64.Vec3{0, -inf, 0}}},
		"nan":      {{Mass: 1, Pos: mgl64.Vec3{0.5, 0.5, 0.5}}, {Mass: 1, Pos: mgl64.Vec3{math.NaN(), 0.5, 0.5}}},
		"huge neg": {{Mass: 1, Pos: mgl64.Vec3{0, 0, -math.MaxFloat64}}},
	}
	for name, bodies := range cases {
		t.Run(name, func(t *testing.T) {
			tr := New(DefaultOptions())
			err := tr.Build(context.Background(), bodies)
			require.ErrorIs(t, err, ErrBadBody)
			assert.False(t, tr.Built())
			assert.Equal(t, 4.0, tr.RootSize(), "a failed sizing leaves the root alone")

			require.NoError(t, tr.Build(context.Background(), scattered(20, 1)))
		})
	}
}

func TestNonFiniteTestParticleIsSkipped(t *testing.T) {
	bodies := body.Store{
		{Mass: 1, Pos: mgl64.Vec3{0.5, 0.5, 0.5}},
		{Mass: 0, Pos: mgl64.Vec3{math.NaN(), 0, 0}},
		{Mass: 1, Pos: mgl64.Vec3{math.Inf(-1), 0, 0}, Ignore: true},
	}
	tr := build(t, DefaultOptions(), bodies)
	assert.Equal(t, 4.0, tr.RootSize())
	assert.Equal(t, 1.0, tr.Stats().Mass)
}

func TestCenterOfMassOutsideCell(t *testing.T) {
	ctx := context.Background()
	bodies := body.Store{
		{Mass: 1, Pos: mgl64.Vec3{-1.5, -1.5, -1.5}},
		{Mass: 1, Pos: mgl64.Vec3{-0.5, -0.5, -0.5}},
	}
	tr := build(t, DefaultOptions(), bodies)
	require.Equal(t, 4.0, tr.RootSize())

	// both bodies share the low octant, so they sit in a cell of width 2
	// centered on (-1, -1, -1). Moving them out of it breaks the tree.
	bodies[0].Pos = mgl64.Vec3{0.2, 0.2, 0.2}
	bodies[1].Pos = mgl64.Vec3{0.2, 0.2, 0.2}
	err := tr.hackcofm(ctx, tr.root.Index, tr.rsize, 0)
	assert.ErrorIs(t, err, ErrTreeStructure)

	// a NaN center of mass fails the containment check too
	bodies[0].Pos = mgl64.Vec3{-1.5, -1.5, -1.5}
	bodies[1].Pos = mgl64.Vec3{-0.5, -0.5, -0.5}
	bodies[1].Mass = math.NaN()
	err = tr.hackcofm(ctx, tr.root.Index, tr.rsize, 0)
	assert.ErrorIs(t, err, ErrTreeStructure)

	err = New(DefaultOptions()).Build(ctx, bodies)
	assert.ErrorIs(t, err, ErrTreeStructure)
}

func TestBodyCountLimit(t *testing.T) {
	assert.NoError(t, checkBodyCount(0))
	assert.NoError(t, checkBodyCount(MaxBodies))
	if strconv.IntSize == 32 {
		t.Skip("int cannot exceed MaxBodies")
	}
	n := MaxBodies
	n++
	assert.ErrorIs(t, checkBodyCount(n), ErrBadOptions)
}

func TestEmptyTree(t *testing.T) {
	for _, bodies := range []body.Store{nil, {{Mass: 0, Pos: mgl64.Vec3{1, 1, 1}}}} {
		tr := build(t, DefaultOptions(), bodies)
		root := tr.Cell(tr.Root())
		require.NotNil(t, root)
		assert.Equal(t, 0.0, root.Mass)
		assert.Equal(t, mgl64.Vec3{}, root.Pos)
		assert.Equal(t, End, root.More)
		assert.Equal(t, []Ref{tr.Root()}, walkAll(tr))
	}
}

func TestContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := New(DefaultOptions())
	assert.ErrorIs(t, tr.Build(ctx, scattered(100, 1)), context.Canceled)
	assert.False(t, tr.Built())
}

func TestPoolReuse(t *testing.T) {
	bodies := scattered(1000, 5)
	tr := New(DefaultOptions())
	ctx := context.Background()

	require.NoError(t, tr.Build(ctx, bodies))
	used, allocated := tr.CellsUsed(), tr.CellsAllocated()
	assert.Equal(t, used, allocated)

	for i := 0; i < 3; i++ {
		require.NoError(t, tr.Build(ctx, bodies))
		assert.Equal(t, used, tr.CellsUsed())
		assert.Equal(t, allocated, tr.CellsAllocated())
	}

	// fewer bodies use fewer cells without freeing any
	require.NoError(t, tr.Build(ctx, bodies[:100]))
	assert.Less(t, tr.CellsUsed(), used)
	assert.Equal(t, allocated, tr.CellsAllocated())
}

func TestParallelMatchesSequential(t *testing.T) {
	bodies := scattered(3000, 13)

	seq := build(t, DefaultOptions(), bodies)
	popts := DefaultOptions()
	popts.ParallelDepth = 3
	par := build(t, popts, bodies)

	a, b := walkAll(seq), walkAll(par)
	require.Equal(t, a, b)
	for _, r := range a {
		assert.Equal(t, seq.Pos(r), par.Pos(r))
		assert.Equal(t, seq.Mass(r), par.Mass(r))
		assert.Equal(t, seq.Rcrit2(r), par.Rcrit2(r))
		assert.Equal(t, seq.Quad(r), par.Quad(r))
		assert.Equal(t, seq.Next(r), par.Next(r))
	}
}

func TestOpens(t *testing.T) {
	tr := build(t, fixedAngle(1.0), body.Store{
		{Mass: 1, Pos: mgl64.Vec3{-1, 0, 0}},
		{Mass: 1, Pos: mgl64.Vec3{1, 0, 0}},
	})
	root := tr.Root()

	assert.True(t, tr.Opens(root, mgl64.Vec3{3, 0, 0}))
	assert.False(t, tr.Opens(root, mgl64.Vec3{5, 0, 0}))
	assert.False(t, tr.Opens(bodyRef(0), mgl64.Vec3{}))
}

func BenchmarkBuild(b *testing.B) {
	bodies := scattered(100000, 1)
	for _, depth := range []int{0, 3} {
		opts := DefaultOptions()
		opts.ParallelDepth = depth
		tr := New(opts)
		b.Run(map[int]string{0: "sequential", 3: "parallel"}[depth], func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if err := tr.Build(context.Background(), bodies); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
