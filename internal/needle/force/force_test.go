package force

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/PeterBul/needlesim/internal/config"
	"github.com/PeterBul/needlesim/internal/host"
	"github.com/PeterBul/needlesim/internal/needle/contact"
)

func TestComposeWeightsAndAxis(t *testing.T) {
	c := Composer{ModelScalar: 2, EngineScalar: 0.5, Projection: contact.FullNorm}
	axis := r3.Vec{X: 0, Y: 0.6, Z: 0.8}

	out := c.Compose(1.5, r3.Vec{X: 3, Y: 4}, host.IdentityPose(), axis)

	assert.InDelta(t, 2*1.5+0.5*5, out.Magnitude, 1e-12)
	assert.InDelta(t, 5, out.Engine, 1e-12)
	assert.InDelta(t, 1.5, out.Modeled, 1e-12)
	assert.InDelta(t, out.Magnitude*0.6, out.Vector.Y, 1e-12)
	assert.InDelta(t, out.Magnitude*0.8, out.Vector.Z, 1e-12)
	assert.Zero(t, out.Vector.X)
}

func TestComposeAxisOnlyProjection(t *testing.T) {
	c := Composer{ModelScalar: 1, EngineScalar: 1, Projection: contact.AxisOnly}
	out := c.Compose(0, r3.Vec{X: 10, Z: -2}, host.IdentityPose(), r3.Vec{Z: 1})
	assert.InDelta(t, -2, out.Magnitude, 1e-12)
	assert.Equal(t, r3.Vec{Z: -2}, out.Vector)
}

func TestComposeZeroScalars(t *testing.T) {
	c := Composer{Projection: contact.FullNorm}
	out := c.Compose(100, r3.Vec{X: 1}, host.IdentityPose(), r3.Vec{Z: 1})
	assert.Zero(t, out.Magnitude)
	assert.Equal(t, r3.Vec{}, out.Vector)
}

func TestFromConfig(t *testing.T) {
	c := FromConfig(config.EmptyNeedleConfig())
	assert.Equal(t, 1.0, c.ModelScalar)
	assert.Equal(t, 1.0, c.EngineScalar)
	assert.Equal(t, contact.AxisOnly, c.Projection)

	off := false
	half := 0.5
	c = FromConfig(&config.NeedleConfig{EngineAxisOnly: &off, EngineForceScalar: &half})
	assert.Equal(t, contact.FullNorm, c.Projection)
	assert.Equal(t, 0.5, c.EngineScalar)
}
