package tree

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Kind tags a tree node. The zero value is Empty, so an unused subcell
// slot and the end of a threaded traversal look the same.
type Kind uint8

// node kinds
const (
	Empty Kind = iota
	BodyNode
	CellNode
)

func (k Kind) String() string {
	switch k {
	case BodyNode:
		return "body"
	case CellNode:
		return "cell"
	}
	return "empty"
}

// Ref addresses a node. For BodyNode the index is into the body store the
// tree was built from, for CellNode it is into the tree's cell arena.
// Indices are 32 bit, so a store may hold at most MaxBodies bodies.
type Ref struct {
	Kind  Kind
	Index int32
}

// MaxBodies is the largest body store a tree can be built from.
const MaxBodies = math.MaxInt32

// End terminates every threaded traversal.
var End = Ref{}

func bodyRef(i int) Ref   { return Ref{Kind: BodyNode, Index: int32(i)} }
func cellRef(i int32) Ref { return Ref{Kind: CellNode, Index: i} }

// IsCell reports whether r refers to a cell.
func (r Ref) IsCell() bool { return r.Kind == CellNode }

// IsBody reports whether r refers to a body.
func (r Ref) IsBody() bool { return r.Kind == BodyNode }

type octant uint8

// NSub is the number of subcells of a cell.
const NSub = 8

// child positions (octants)
// low bit is X axis, high bit is Z axis
// L (0) means < midpoint, H (1) means >= midpoint
const (
	LLL octant = 0b000
	LLH octant = 0b001
	LHL octant = 0b010
	LHH octant = 0b011
	HLL octant = 0b100
	HLH octant = 0b101
	HHL octant = 0b110
	HHH octant = 0b111
)

// determines which octant (relative to midpoint) point belongs in.
func octantOf(midpoint, point mgl64.Vec3) (oct octant) {
	if point[0] >= midpoint[0] {
		oct |= LLH
	}
	if point[1] >= midpoint[1] {
		oct |= LHL
	}
	if point[2] >= midpoint[2] {
		oct |= HLL
	}
	return
}

// Cell is an internal node of the octree.
//
// Mid is the geometric midpoint set when the cell is created and is never
// changed afterwards. Pos is the center of mass and only holds a meaningful
// value once the mass pass has run.
type Cell struct {
	Sub    [NSub]Ref
	Mid    mgl64.Vec3
	Pos    mgl64.Vec3
	Mass   float64
	Rcrit2 float64
	Quad   mgl64.Mat3
	Next   Ref
	More   Ref
}
