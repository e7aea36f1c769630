package body

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
)

// Core is the seed of one cluster of scattered bodies.
type Core struct {
	Mass float64
	Pos  mgl64.Vec3
	Vel  mgl64.Vec3
	Axis mgl64.Vec3 // rotation axis; zero means no spin
}

// Scatter produces n bodies spread in Gaussian clumps around the cores,
// with the cores themselves at the front of the store. The same seed
// always gives the same store. Bodies are unit-free and meant for
// exercising tree builds, not as a physical model.
func Scatter(n int, cores []Core, spread float64, seed int64) Store {
	const meanMass = 1.0
	rng := rand.New(rand.NewSource(seed))
	nc := len(cores)
	bodies := make(Store, n+nc)

	for i := range cores {
		bodies[i] = Body{
			ID:   uint64(i),
			Mass: cores[i].Mass,
			Pos:  cores[i].Pos,
			Vel:  cores[i].Vel,
		}
	}

	for i := nc; i < len(bodies); i++ {
		core := Core{}
		if nc > 0 {
			core = cores[rng.Intn(nc)]
		}

		b := &bodies[i]
		b.ID = uint64(i)
		b.Mass = math.Abs(rng.NormFloat64()*0.01 + meanMass)
		b.Pos = mgl64.Vec3{
			rng.NormFloat64() * spread,
			rng.NormFloat64() * spread,
			rng.NormFloat64() * spread,
		}.Add(core.Pos)

		if core.Axis.Len() == 0 || core.Mass == 0 {
			b.Vel = core.Vel
			continue
		}

		// circular speed around the core, perpendicular to both the
		// core-body vector and the rotation axis.
		r := core.Pos.Sub(b.Pos)
		d := r.Len()
		if d == 0 {
			d = 1
		}
		dir := r.Mul(1 / d).Cross(core.Axis.Normalize())
		v := math.Sqrt(core.Mass / d)
		b.Vel = dir.Mul(v).Add(core.Vel)
	}

	return bodies
}
