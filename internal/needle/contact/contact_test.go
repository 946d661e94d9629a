package contact

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/PeterBul/needlesim/internal/host"
	"github.com/PeterBul/needlesim/internal/needle/tissue"
)

type pierced map[host.Handle]bool

func (p pierced) Contains(h host.Handle) bool { return p[h] }

type scene struct {
	*host.MockScene
	needle, phantom, fat, muscle, bone, table host.Handle
}

func newScene() scene {
	m := host.NewMockScene()
	s := scene{MockScene: m}
	s.phantom = m.AddObject("_Phantom", host.NoHandle)
	s.needle = m.AddObject("Needle", host.NoHandle)
	s.fat = m.AddObject("Fat", s.phantom)
	s.muscle = m.AddObject("muscle", s.phantom)
	s.bone = m.AddObject("bone", s.phantom)
	s.table = m.AddObject("table", host.NoHandle)
	return s
}

func (s scene) touch(other host.Handle, f r3.Vec) host.Contact {
	return host.Contact{Bodies: [2]host.Handle{s.needle, other}, Force: f}
}

func TestClassifyPerTissueThreshold(t *testing.T) {
	s := newScene()
	c := NewClassifier(s, tissue.NewRegistry(tissue.Default), Options{Projection: AxisOnly})

	res := c.Classify([]host.Contact{
		s.touch(s.fat, r3.Vec{Z: 0.5}),  // above 0.01
		s.touch(s.bone, r3.Vec{Z: 0.5}), // below bone's 1.0
	}, host.IdentityPose(), s.phantom, pierced{})

	require.Len(t, res.Punctures, 1)
	assert.Equal(t, s.fat, res.Punctures[0].Tissue)
	assert.Equal(t, "Fat", res.Punctures[0].Name)
	assert.InDelta(t, 0.5, res.Punctures[0].Magnitude, 1e-12)
	assert.Equal(t, r3.Vec{Z: 1}, res.EngineForce)
	assert.InDelta(t, 1.0, res.EngineMagnitude, 1e-12)
}

func TestClassifyConstantThreshold(t *testing.T) {
	s := newScene()
	c := NewClassifier(s, tissue.NewRegistry(tissue.Default), Options{
		Projection:        AxisOnly,
		ConstantThreshold: true,
		Threshold:         0.4,
	})

	res := c.Classify([]host.Contact{
		s.touch(s.fat, r3.Vec{Z: 0.3}),
		s.touch(s.bone, r3.Vec{Z: 0.5}),
	}, host.IdentityPose(), s.phantom, pierced{})

	require.Len(t, res.Punctures, 1)
	assert.Equal(t, "bone", res.Punctures[0].Name)
	assert.Equal(t, 0.4, res.Punctures[0].Threshold)

	c.SetThreshold(0.6)
	res = c.Classify([]host.Contact{s.touch(s.bone, r3.Vec{Z: 0.5})}, host.IdentityPose(), s.phantom, pierced{})
	assert.Empty(t, res.Punctures)
}

func TestClassifyThresholdIsStrict(t *testing.T) {
	s := newScene()
	c := NewClassifier(s, tissue.NewRegistry(tissue.Default), Options{
		Projection: FullNorm, ConstantThreshold: true, Threshold: 1,
	})
	res := c.Classify([]host.Contact{s.touch(s.fat, r3.Vec{X: 1})}, host.IdentityPose(), s.phantom, pierced{})
	assert.Empty(t, res.Punctures)
}

func TestClassifySkipsForeignAndUnrespondable(t *testing.T) {
	s := newScene()
	require.NoError(t, s.SetRespondable(s.muscle, false))
	c := NewClassifier(s, tissue.NewRegistry(tissue.Default), Options{Projection: FullNorm})

	res := c.Classify([]host.Contact{
		s.touch(s.table, r3.Vec{X: 5}),
		s.touch(s.muscle, r3.Vec{X: 5}),
	}, host.IdentityPose(), s.phantom, pierced{})

	assert.Empty(t, res.Punctures)
	assert.Equal(t, r3.Vec{}, res.EngineForce)
	assert.Zero(t, res.EngineMagnitude)
	assert.Equal(t, 2, res.Scanned)
}

func TestClassifyDedupes(t *testing.T) {
	s := newScene()
	c := NewClassifier(s, tissue.NewRegistry(tissue.Default), Options{Projection: FullNorm})

	res := c.Classify([]host.Contact{
		s.touch(s.fat, r3.Vec{X: 1}),
		s.touch(s.fat, r3.Vec{X: 2}),
		s.touch(s.muscle, r3.Vec{X: 1}),
	}, host.IdentityPose(), s.phantom, pierced{s.muscle: true})

	require.Len(t, res.Punctures, 1)
	assert.Equal(t, s.fat, res.Punctures[0].Tissue)
	// Already pierced tissue still contributes engine force.
	assert.InDelta(t, 4, res.EngineMagnitude, 1e-12)
}

func TestClassifyTruncatesAtMaxContacts(t *testing.T) {
	s := newScene()
	c := NewClassifier(s, tissue.NewRegistry(tissue.Default), Options{Projection: FullNorm, MaxContacts: 2})

	res := c.Classify([]host.Contact{
		s.touch(s.table, r3.Vec{X: 1}),
		s.touch(s.table, r3.Vec{X: 1}),
		s.touch(s.fat, r3.Vec{X: 1}),
	}, host.IdentityPose(), s.phantom, pierced{})

	assert.Equal(t, 2, res.Scanned)
	assert.Empty(t, res.Punctures)
}

func TestDefaultMaxContacts(t *testing.T) {
	s := newScene()
	c := NewClassifier(s, tissue.NewRegistry(tissue.Default), Options{})
	assert.Equal(t, DefaultMaxContacts, c.Options().MaxContacts)
}

func TestClassifyQueryFailureSkipsContact(t *testing.T) {
	s := newScene()
	s.Fail("ObjectParent", s.fat)
	c := NewClassifier(s, tissue.NewRegistry(tissue.Default), Options{Projection: FullNorm})

	res := c.Classify([]host.Contact{
		s.touch(s.fat, r3.Vec{X: 1}),
		s.touch(s.muscle, r3.Vec{X: 1}),
	}, host.IdentityPose(), s.phantom, pierced{})

	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Punctures, 1)
	assert.Equal(t, "muscle", res.Punctures[0].Name)
}

func TestAxisOnlyUsesInstrumentFrame(t *testing.T) {
	s := newScene()
	c := NewClassifier(s, tissue.NewRegistry(tissue.Default), Options{
		Projection: AxisOnly, ConstantThreshold: true, Threshold: 0.5,
	})
	// Rotated a quarter turn about x, a world +y force has a negative
	// instrument-frame z component.
	angle := -math.Pi / 2
	tip := host.NewPose(r3.NewMat([]float64{
		1, 0, 0,
		0, math.Cos(angle), -math.Sin(angle),
		0, math.Sin(angle), math.Cos(angle),
	}), r3.Vec{})

	res := c.Classify([]host.Contact{s.touch(s.fat, r3.Vec{Y: 1})}, tip, s.phantom, pierced{})
	assert.Empty(t, res.Punctures)
	assert.InDelta(t, -1, res.EngineMagnitude, 1e-12)
}

func TestProjection(t *testing.T) {
	f := r3.Vec{X: 3, Y: 4}
	assert.InDelta(t, 5, FullNorm.Project(f, host.IdentityPose()), 1e-12)
	assert.InDelta(t, 0, AxisOnly.Project(f, host.IdentityPose()), 1e-12)
	assert.InDelta(t, 2, AxisOnly.Project(r3.Vec{Z: 2}, host.IdentityPose()), 1e-12)

	assert.Equal(t, AxisOnly, ProjectionFor(true))
	assert.Equal(t, FullNorm, ProjectionFor(false))
	assert.Equal(t, "axis-only", AxisOnly.String())
	assert.Equal(t, "full-norm", FullNorm.String())
}
