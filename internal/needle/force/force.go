// Package force fuses the modeled tissue force and the physics engine's
// measured contact force into one output vector.
package force

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/PeterBul/needlesim/internal/config"
	"github.com/PeterBul/needlesim/internal/host"
	"github.com/PeterBul/needlesim/internal/needle/contact"
)

// Output is the composed force for one tick.
type Output struct {
	Modeled   float64 // modeled magnitude before weighting
	Engine    float64 // projected engine magnitude before weighting
	Magnitude float64
	Vector    r3.Vec
}

// Composer weights and sums the two force sources.
type Composer struct {
	ModelScalar  float64
	EngineScalar float64
	Projection   contact.Projection
}

// FromConfig returns a composer using the configured weights and projection.
func FromConfig(cfg *config.NeedleConfig) Composer {
	return Composer{
		ModelScalar:  cfg.GetModelForceScalar(),
		EngineScalar: cfg.GetEngineForceScalar(),
		Projection:   contact.ProjectionFor(cfg.GetEngineAxisOnly()),
	}
}

// Compose returns
//
//	mag = ModelScalar·modeled + EngineScalar·project(engine)
//	vec = mag · referenceAxis
//
// The engine vector is projected in the tip frame. referenceAxis is the
// haptic device's own axis, so every device degree of freedom receives the
// same resisting magnitude.
func (c Composer) Compose(modeled float64, engine r3.Vec, tip host.Pose, referenceAxis r3.Vec) Output {
	projected := c.Projection.Project(engine, tip)
	mag := c.ModelScalar*modeled + c.EngineScalar*projected
	return Output{
		Modeled:   modeled,
		Engine:    projected,
		Magnitude: mag,
		Vector:    r3.Scale(mag, referenceAxis),
	}
}
