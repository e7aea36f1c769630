package tree

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// Criterion selects how a cell's critical radius is derived.
type Criterion int

// critical radius criteria
const (
	// Exact opens every cell, degrading the walk to direct summation.
	Exact Criterion = iota
	// FixedAngle is the classic Barnes & Hut (1986) rule: size/theta.
	FixedAngle
	// MaxCornerDistance is the Salmon & Warren (1993) rule, using the
	// largest distance from the center of mass to a corner of the cell.
	MaxCornerDistance
	// OffsetAugmented adds the center of mass offset from the midpoint
	// to the fixed angle radius.
	OffsetAugmented
)

var criterionNames = map[Criterion]string{
	Exact:             "Exact",
	FixedAngle:        "FixedAngle",
	MaxCornerDistance: "MaxCornerDistance",
	OffsetAugmented:   "OffsetAugmented",
}

var criterionAliases = map[string]Criterion{
	"exact":             Exact,
	"fixedangle":        FixedAngle,
	"bh86":              FixedAngle,
	"maxcornerdistance": MaxCornerDistance,
	"sw93":              MaxCornerDistance,
	"offsetaugmented":   OffsetAugmented,
	"newcriterion":      OffsetAugmented,
}

func (c Criterion) String() string {
	if s, ok := criterionNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Criterion(%d)", int(c))
}

func (c Criterion) valid() bool {
	_, ok := criterionNames[c]
	return ok
}

// ParseCriterion maps a criterion name, or one of the historical names
// BH86, SW93 and NewCriterion, to a Criterion. Case is ignored.
func ParseCriterion(s string) (Criterion, error) {
	if c, ok := criterionAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return c, nil
	}
	return -1, fmt.Errorf("%w: %q", ErrUnknownCriterion, s)
}

// CriticalRadius2 returns the squared critical radius of a cell of width
// size, midpoint mid and center of mass cm, in a tree whose root has width
// rootSize. A theta of zero always selects the exact rule.
func CriticalRadius2(crit Criterion, theta, rootSize, size float64, mid, cm mgl64.Vec3) (float64, error) {
	var rc float64

	switch {
	case theta == 0 || crit == Exact:
		rc = 2 * rootSize // always open
	case crit == FixedAngle:
		rc = size / theta
	case crit == MaxCornerDistance:
		bmax2 := 0.0
		for k := 0; k < 3; k++ {
			dmin := cm[k] - (mid[k] - size/2) // from the lower corner
			d := math.Max(dmin, size-dmin)
			bmax2 += d * d
		}
		rc = math.Sqrt(bmax2) / theta
	case crit == OffsetAugmented:
		rc = size/theta + cm.Sub(mid).Len()
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnknownCriterion, crit)
	}

	return rc * rc, nil
}
