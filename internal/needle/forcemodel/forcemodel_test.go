package forcemodel

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PeterBul/needlesim/internal/config"
	"github.com/PeterBul/needlesim/internal/needle"
	"github.com/PeterBul/needlesim/internal/needle/puncture"
	"github.com/PeterBul/needlesim/internal/needle/tissue"
)

func layers(lengths map[string]float64) []puncture.Puncture {
	var out []puncture.Puncture
	for _, name := range []string{"Fat", "muscle", "lung", "bone"} {
		if l, ok := lengths[name]; ok {
			out = append(out, puncture.Puncture{Name: name, Length: l})
		}
	}
	return out
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		want Kind
		ok   bool
	}{
		{"kelvin-voigt", KelvinVoigt, true},
		{"karnopp", Karnopp, true},
		{" Karnopp ", Karnopp, true},
		{"coulomb", KelvinVoigt, false},
		{"", KelvinVoigt, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStrict(tt.name)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, err == nil)
			assert.Equal(t, tt.want, Parse(tt.name))
		})
	}
}

func TestScenarioD_UnknownModelFallsBack(t *testing.T) {
	var diag bytes.Buffer
	needle.SetLogWriters(needle.LogWriters{Diag: &diag})
	defer needle.SetLogWriters(needle.LogWriters{})

	name := "coulomb"
	reg := tissue.NewRegistry(tissue.Default)
	m := FromConfig(&config.NeedleConfig{ForceModel: &name}, reg.Stiffness)

	require.Equal(t, KelvinVoigt, m.Kind)
	assert.Contains(t, diag.String(), `unknown force model "coulomb"`)

	in := Input{Velocity: 0.1, Layers: layers(map[string]float64{"Fat": 0.02}), Cumulative: 0.02}
	assert.InDelta(t, 0.1*300*0.02, m.Compute(in), 1e-12)
}

func TestKelvinVoigtZero(t *testing.T) {
	reg := tissue.NewRegistry(tissue.Default)
	assert.Zero(t, KelvinVoigtForce(0, layers(map[string]float64{"Fat": 0.1}), reg.Stiffness))
	assert.Zero(t, KelvinVoigtForce(0.5, nil, reg.Stiffness))
}

func TestKelvinVoigtLinearInVelocity(t *testing.T) {
	reg := tissue.NewRegistry(tissue.Default)
	ls := layers(map[string]float64{"Fat": 0.03, "muscle": 0.01, "bone": 0.002})
	base := KelvinVoigtForce(0.1, ls, reg.Stiffness)

	want := 0.1 * (300*0.03 + 300*0.01 + 3001.5*0.002)
	assert.InDelta(t, want, base, 1e-9)
	for _, k := range []float64{-2, 0.5, 3, 10} {
		assert.InDelta(t, k*base, KelvinVoigtForce(0.1*k, ls, reg.Stiffness), 1e-9)
	}
}

func TestKarnoppRegions(t *testing.T) {
	p := DefaultKarnopp
	const l = 0.5
	eps := p.ZeroThreshold

	tests := []struct {
		name string
		v    float64
		want float64
	}{
		{"negative dynamic", -0.01, l * (p.NegativeDynamic*-1 + p.NegativeDamping*-0.01)},
		{"negative boundary", -eps, l * (p.NegativeDynamic*-1 + p.NegativeDamping*-eps)},
		{"negative static", -eps / 2, l * p.NegativeStatic},
		{"zero is negative static", 0, l * p.NegativeStatic},
		{"positive static", eps / 2, l * p.PositiveStatic},
		{"positive boundary", eps, l * (p.PositiveDynamic + p.PositiveDamping*eps)},
		{"positive dynamic", 0.01, l * (p.PositiveDynamic + p.PositiveDamping*0.01)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, p.Force(tt.v, l), 1e-12)
		})
	}
}

func TestKarnoppZeroPenetration(t *testing.T) {
	for _, v := range []float64{-1, -1e-7, 0, 1e-7, 1} {
		assert.Zero(t, DefaultKarnopp.Force(v, 0))
	}
}

func TestKarnoppContinuousWithinRegimes(t *testing.T) {
	p := DefaultKarnopp
	const l = 1.0
	const h = 1e-9
	for _, v := range []float64{-0.1, -0.001, 0.001, 0.1} {
		assert.InDelta(t, p.Force(v, l), p.Force(v+h, l), 1e-5, "v=%g", v)
	}
}

// With non-negative coefficients the dynamic regimes follow sgn(v). The
// fitted defaults carry their direction in the coefficients themselves.
func TestKarnoppDynamicSign(t *testing.T) {
	p := KarnoppParams{
		PositiveStatic: 1, NegativeStatic: 1,
		PositiveDamping: 200, NegativeDamping: 300,
		PositiveDynamic: 10, NegativeDynamic: 12,
		ZeroThreshold: 5e-6,
	}
	for _, v := range []float64{-1, -0.01, -1e-5, 1e-5, 0.01, 1} {
		assert.Equal(t, math.Signbit(v), math.Signbit(p.Force(v, 0.2)), "v=%g", v)
	}
	assert.Greater(t, DefaultKarnopp.Force(0.01, 1), 0.0)
}

func TestKarnoppScaleApplied(t *testing.T) {
	m := Model{Kind: Karnopp, Karnopp: DefaultKarnopp, KarnoppScale: 0.1}
	in := Input{Velocity: 0.02, Cumulative: 0.3}
	assert.InDelta(t, 0.1*DefaultKarnopp.Force(0.02, 0.3), m.Compute(in), 1e-12)
}

func TestFromConfigDefaults(t *testing.T) {
	reg := tissue.NewRegistry(tissue.Default)
	m := FromConfig(config.EmptyNeedleConfig(), reg.Stiffness)
	assert.Equal(t, KelvinVoigt, m.Kind)
	assert.Equal(t, DefaultKarnopp, m.Karnopp)
	assert.Equal(t, 0.1, m.KarnoppScale)
}

func TestZeroModel(t *testing.T) {
	var m Model
	assert.Zero(t, m.Compute(Input{Velocity: 1, Layers: layers(map[string]float64{"Fat": 1})}))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "kelvin-voigt", KelvinVoigt.String())
	assert.Equal(t, "karnopp", Karnopp.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}
