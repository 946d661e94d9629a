// Package forcemodel converts the puncture stack and the tip speed into a
// scalar modeled tissue force.
package forcemodel

import (
	"fmt"
	"strings"

	"github.com/PeterBul/needlesim/internal/config"
	"github.com/PeterBul/needlesim/internal/needle"
	"github.com/PeterBul/needlesim/internal/needle/puncture"
)

// Kind selects the analytical model.
type Kind int

const (
	KelvinVoigt Kind = iota
	Karnopp
)

func (k Kind) String() string {
	switch k {
	case KelvinVoigt:
		return "kelvin-voigt"
	case Karnopp:
		return "karnopp"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseStrict returns the Kind named by name or an error.
func ParseStrict(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "kelvin-voigt":
		return KelvinVoigt, nil
	case "karnopp":
		return Karnopp, nil
	}
	return KelvinVoigt, fmt.Errorf("unknown force model %q", name)
}

// Parse is ParseStrict with a fallback: unknown names select KelvinVoigt and
// log a diagnostic.
func Parse(name string) Kind {
	k, err := ParseStrict(name)
	if err != nil {
		needle.Diagf("forcemodel: %v, falling back to %s", err, KelvinVoigt)
	}
	return k
}

// StiffnessFunc returns the Kelvin-Voigt stiffness of a named tissue.
type StiffnessFunc func(name string) float64

// KelvinVoigtForce is v · Σ stiffness(name) · length over layers.
func KelvinVoigtForce(v float64, layers []puncture.Puncture, stiffness StiffnessFunc) float64 {
	var sum float64
	for _, p := range layers {
		sum += stiffness(p.Name) * p.Length
	}
	return v * sum
}

// KarnoppParams are the bidirectional friction coefficients.
type KarnoppParams struct {
	PositiveStatic  float64 // D_p
	NegativeStatic  float64 // D_n
	PositiveDamping float64 // b_p
	NegativeDamping float64 // b_n
	PositiveDynamic float64 // C_p
	NegativeDynamic float64 // C_n
	ZeroThreshold   float64 // ε
}

// DefaultKarnopp are the coefficients fitted for the layered phantom.
var DefaultKarnopp = KarnoppParams{
	PositiveStatic:  18.45,
	NegativeStatic:  -18.23,
	PositiveDamping: 212.13,
	NegativeDamping: -293.08,
	PositiveDynamic: 10.57,
	NegativeDynamic: -11.96,
	ZeroThreshold:   5.0e-6,
}

// Force evaluates the four-region Karnopp model for velocity v and
// cumulative penetration l.
//
//	v <= -ε      l·(C_n·sgn(v) + b_n·v)
//	-ε < v <= 0  l·D_n
//	0 < v < ε    l·D_p
//	v >= ε       l·(C_p·sgn(v) + b_p·v)
func (p KarnoppParams) Force(v, l float64) float64 {
	eps := p.ZeroThreshold
	switch {
	case v <= -eps:
		return l * (p.NegativeDynamic*sgn(v) + p.NegativeDamping*v)
	case v <= 0:
		return l * p.NegativeStatic
	case v < eps:
		return l * p.PositiveStatic
	default:
		return l * (p.PositiveDynamic*sgn(v) + p.PositiveDamping*v)
	}
}

func sgn(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

// Input is the per-tick state a model reads.
type Input struct {
	Velocity   float64
	Layers     []puncture.Puncture
	Cumulative float64
}

// Model is a configured force model. The zero value is an unscaled
// Kelvin-Voigt model with no stiffness.
type Model struct {
	Kind         Kind
	Stiffness    StiffnessFunc
	Karnopp      KarnoppParams
	KarnoppScale float64
}

// FromConfig builds a model from cfg. The force_model name is parsed here,
// once; an unknown name selects Kelvin-Voigt.
func FromConfig(cfg *config.NeedleConfig, stiffness StiffnessFunc) Model {
	k := cfg.GetKarnopp()
	return Model{
		Kind:      Parse(cfg.GetForceModel()),
		Stiffness: stiffness,
		Karnopp: KarnoppParams{
			PositiveStatic:  k.PositiveStatic,
			NegativeStatic:  k.NegativeStatic,
			PositiveDamping: k.PositiveDamping,
			NegativeDamping: k.NegativeDamping,
			PositiveDynamic: k.PositiveDynamic,
			NegativeDynamic: k.NegativeDynamic,
			ZeroThreshold:   k.ZeroThreshold,
		},
		KarnoppScale: cfg.GetKarnoppScale(),
	}
}

// Compute returns the modeled force magnitude for one tick.
func (m Model) Compute(in Input) float64 {
	switch m.Kind {
	case Karnopp:
		return m.Karnopp.Force(in.Velocity, in.Cumulative) * m.KarnoppScale
	default:
		stiffness := m.Stiffness
		if stiffness == nil {
			stiffness = func(string) float64 { return 0 }
		}
		return KelvinVoigtForce(in.Velocity, in.Layers, stiffness)
	}
}
