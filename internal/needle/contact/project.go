package contact

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/PeterBul/needlesim/internal/host"
)

// Projection reduces a contact force vector to a scalar magnitude.
type Projection int

const (
	// AxisOnly keeps the component along the instrument's own axis: the z
	// component of the force after rotation by the tip frame.
	AxisOnly Projection = iota
	// FullNorm uses the Euclidean norm of the force.
	FullNorm
)

func (p Projection) String() string {
	if p == FullNorm {
		return "full-norm"
	}
	return "axis-only"
}

// ProjectionFor maps the engine_axis_only setting to a Projection.
func ProjectionFor(axisOnly bool) Projection {
	if axisOnly {
		return AxisOnly
	}
	return FullNorm
}

// Project reduces f using the instrument frame tip.
func (p Projection) Project(f r3.Vec, tip host.Pose) float64 {
	if p == FullNorm {
		return r3.Norm(f)
	}
	return ToInstrumentFrame(f, tip).Z
}

// ToInstrumentFrame rotates a world force by the tip pose rotation. This is
// the basis change the host applies when a force is expressed relative to an
// object.
func ToInstrumentFrame(f r3.Vec, tip host.Pose) r3.Vec {
	return tip.Rotate(f)
}
