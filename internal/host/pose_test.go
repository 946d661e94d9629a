package host

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestPose_AxisAndPosition(t *testing.T) {
	p := Pose{
		1, 0, 0, 0.5,
		0, 0, -1, 1.5,
		0, 1, 0, -2,
	}

	assert.Equal(t, r3.Vec{X: 0.5, Y: 1.5, Z: -2}, p.Position())
	assert.Equal(t, r3.Vec{X: 0, Y: -1, Z: 0}, p.Axis())
}

func TestPose_RotateMatchesColumns(t *testing.T) {
	// 90 degrees about x: local z maps to world -y.
	p := Pose{
		1, 0, 0, 0,
		0, 0, -1, 0,
		0, 1, 0, 0,
	}
	got := p.Rotate(r3.Vec{Z: 1})
	assert.InDelta(t, 0, got.X, 1e-12)
	assert.InDelta(t, -1, got.Y, 1e-12)
	assert.InDelta(t, 0, got.Z, 1e-12)

	assert.Equal(t, p.Axis(), got)
}

func TestNewPose_RoundTrip(t *testing.T) {
	c, s := math.Cos(0.3), math.Sin(0.3)
	rot := r3.NewMat([]float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
	p := NewPose(rot, r3.Vec{X: 1, Y: 2, Z: 3})

	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, p.Position())
	assert.InDelta(t, c, p[0], 1e-12)
	assert.InDelta(t, -s, p[1], 1e-12)
	assert.InDelta(t, s, p[4], 1e-12)
	assert.Equal(t, r3.Vec{Z: 1}, p.Axis())
}

func TestTranslatedPose(t *testing.T) {
	p := TranslatedPose(r3.Vec{X: -1, Y: 0, Z: 4})
	assert.Equal(t, r3.Vec{X: -1, Y: 0, Z: 4}, p.Position())
	assert.Equal(t, r3.Vec{Z: 1}, p.Axis())
}
