// Package body holds the point masses a tree is built from.
package body

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// Body is a point mass. A zero mass marks a test particle: it is moved
// by the integrator but never acts as a source of gravity.
type Body struct {
	ID     uint64
	Mass   float64
	Pos    mgl64.Vec3
	Vel    mgl64.Vec3
	Ignore bool // excluded from the tree like a test particle
}

// Source reports whether the body contributes to the gravitational field
// and therefore belongs in the tree.
func (b *Body) Source() bool {
	return b.Mass != 0 && !b.Ignore
}

func (b Body) String() string {
	return fmt.Sprintf("m: %.4f\np: [%.2f, %.2f, %.2f]\nv: [%.2f, %.2f, %.2f]\n",
		b.Mass, b.Pos[0], b.Pos[1], b.Pos[2], b.Vel[0], b.Vel[1], b.Vel[2])
}

// Store is the flat, ordered body array owned by the simulation state.
// Trees refer to bodies by their index in the store.
type Store []Body

// Sources counts the bodies that will be inserted into a tree.
func (s Store) Sources() (n int) {
	for i := range s {
		if s[i].Source() {
			n++
		}
	}
	return
}

// TotalMass sums the masses of the source bodies.
func (s Store) TotalMass() (m float64) {
	for i := range s {
		if s[i].Source() {
			m += s[i].Mass
		}
	}
	return
}

// CenterOfMass is the mass weighted mean position of the source bodies.
// It is the zero vector when the store holds no mass.
func (s Store) CenterOfMass() mgl64.Vec3 {
	var com mgl64.Vec3
	m := 0.0
	for i := range s {
		if !s[i].Source() {
			continue
		}
		com = com.Add(s[i].Pos.Mul(s[i].Mass))
		m += s[i].Mass
	}
	if m == 0 {
		return mgl64.Vec3{}
	}
	return com.Mul(1 / m)
}

// Drift moves every body along its velocity for dt. There is no force
// term here; accelerations belong to the evaluator.
func (s Store) Drift(dt float64) {
	for i := range s {
		// dp = v*dt
		s[i].Pos = s[i].Pos.Add(s[i].Vel.Mul(dt))
	}
}
