package kinematics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/PeterBul/needlesim/internal/host"
)

func setup(t *testing.T) (*host.MockScene, host.Handle, host.Handle) {
	t.Helper()
	scene := host.NewMockScene()
	needleBody := scene.AddObject("Needle", host.NoHandle)
	tip := scene.AddObject("LWR_tip", needleBody)
	return scene, tip, needleBody
}

// rotX returns a pose rotated by angle about x placed at t.
func rotX(angle float64, t r3.Vec) host.Pose {
	c, s := math.Cos(angle), math.Sin(angle)
	return host.NewPose(r3.NewMat([]float64{
		1, 0, 0,
		0, c, -s,
		0, s, c,
	}), t)
}

func TestReadDerivesFrame(t *testing.T) {
	scene, tip, needleBody := setup(t)
	scene.SetPose(tip, rotX(math.Pi/2, r3.Vec{X: 1, Y: 2, Z: 3}))
	scene.SetPose(needleBody, host.IdentityPose())
	scene.SetVelocity(tip, r3.Vec{X: 3, Y: 4})

	r := NewReader(scene, tip, needleBody, Options{})
	f := r.Read()

	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, f.TipPosition)
	assert.InDelta(t, 5.0, f.Speed, 1e-12)
	assert.InDelta(t, 0, f.TipAxis.X, 1e-12)
	assert.InDelta(t, -1, f.TipAxis.Y, 1e-12)
	assert.InDelta(t, 0, f.TipAxis.Z, 1e-12)
	assert.Equal(t, r3.Vec{Z: 1}, f.InstrumentAxis)
	assert.False(t, f.Degraded)
}

func TestVelocityFailureKeepsPreviousSpeed(t *testing.T) {
	scene, tip, needleBody := setup(t)
	scene.SetVelocity(tip, r3.Vec{Z: 0.25})
	r := NewReader(scene, tip, needleBody, Options{})

	require.InDelta(t, 0.25, r.Read().Speed, 1e-12)

	scene.SetVelocity(tip, r3.Vec{Z: 9})
	scene.Fail("ObjectVelocity", tip)
	scene.SetPosition(tip, r3.Vec{Z: 0.1})

	f := r.Read()
	assert.InDelta(t, 0.25, f.Speed, 1e-12)
	assert.True(t, f.Degraded)
	// Other queries still update.
	assert.Equal(t, r3.Vec{Z: 0.1}, f.TipPosition)

	scene.ClearFailures()
	f = r.Read()
	assert.InDelta(t, 9, f.Speed, 1e-12)
	assert.False(t, f.Degraded)
}

func TestPoseFailureKeepsPreviousAxis(t *testing.T) {
	scene, tip, needleBody := setup(t)
	scene.SetPose(tip, rotX(math.Pi, r3.Vec{}))
	r := NewReader(scene, tip, needleBody, Options{})
	before := r.Read()

	scene.Fail("ObjectPose", host.NoHandle)
	scene.SetPose(tip, host.IdentityPose())
	after := r.Read()

	assert.Equal(t, before.TipAxis, after.TipAxis)
	assert.Equal(t, before.InstrumentAxis, after.InstrumentAxis)
	assert.True(t, after.Degraded)
}

func TestSignedSpeed(t *testing.T) {
	scene, tip, needleBody := setup(t)
	r := NewReader(scene, tip, needleBody, Options{SignedSpeed: true})

	scene.SetVelocity(tip, r3.Vec{Z: 0.5})
	assert.InDelta(t, 0.5, r.Read().Speed, 1e-12)

	scene.SetVelocity(tip, r3.Vec{Z: -0.5})
	assert.InDelta(t, -0.5, r.Read().Speed, 1e-12)

	unsigned := NewReader(scene, tip, needleBody, Options{})
	assert.InDelta(t, 0.5, unsigned.Read().Speed, 1e-12)
}

func TestResetClearsLastFrame(t *testing.T) {
	scene, tip, needleBody := setup(t)
	scene.SetVelocity(tip, r3.Vec{X: 1})
	r := NewReader(scene, tip, needleBody, Options{})
	r.Read()
	require.InDelta(t, 1, r.Last().Speed, 1e-12)

	r.Reset()
	assert.Zero(t, r.Last().Speed)
	assert.Equal(t, r3.Vec{Z: 1}, r.Last().TipAxis)
}
