package sim

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/PeterBul/needlesim/internal/config"
	"github.com/PeterBul/needlesim/internal/host"
)

// Phantom is a host.Scene populated with the objects a session resolves,
// plus one tissue body per scenario layer. Step moves the tip along the
// scripted profile and regenerates the needle contacts.
type Phantom struct {
	*host.MockScene

	scenario *Scenario
	names    config.SceneConfig

	Device, Body, Needle, Tip host.Handle
	ForceGraph, NeedleGraph   host.Handle
	tissues                   []host.Handle

	tick int
	z    float64
}

// NewPhantom builds the scene for scenario using the configured object
// names.
func NewPhantom(scenario *Scenario, names config.SceneConfig) *Phantom {
	m := host.NewMockScene()
	p := &Phantom{MockScene: m, scenario: scenario, names: names}
	p.Device = m.AddObject(names.Device, host.NoHandle)
	p.Body = m.AddObject(names.Phantom, host.NoHandle)
	p.Needle = m.AddObject(names.Needle, host.NoHandle)
	p.Tip = m.AddObject(names.Tip, p.Needle)
	p.ForceGraph = m.AddObject(names.ForceGraph, host.NoHandle)
	p.NeedleGraph = m.AddObject(names.NeedleForceGraph, host.NoHandle)
	for _, l := range scenario.Layers {
		p.tissues = append(p.tissues, m.AddObject(l.Name, p.Body))
	}
	p.z = scenario.DepthAt(0)
	p.place(p.z, 0)
	return p
}

// Scenario returns the script being played.
func (p *Phantom) Scenario() *Scenario { return p.scenario }

// Time returns the simulated time of the current tick.
func (p *Phantom) Time() float64 { return float64(p.tick) * p.scenario.Step }

// Tissue returns the handle of the named layer.
func (p *Phantom) Tissue(name string) (host.Handle, bool) {
	for i, l := range p.scenario.Layers {
		if l.Name == name {
			return p.tissues[i], true
		}
	}
	return host.NoHandle, false
}

// Done reports whether the script has been played to the end.
func (p *Phantom) Done() bool {
	return p.Time() >= p.scenario.Duration()
}

// Step advances one tick and returns false once the script has ended.
func (p *Phantom) Step() bool {
	if p.Done() {
		return false
	}
	p.tick++
	z := p.scenario.DepthAt(p.Time())
	vz := (z - p.z) / p.scenario.Step
	p.z = z
	p.place(z, vz)
	return true
}

func (p *Phantom) place(z, vz float64) {
	tip := r3.Vec{Z: z}
	p.SetPosition(p.Tip, tip)
	p.SetPosition(p.Needle, tip)
	p.SetVelocity(p.Tip, r3.Vec{Z: vz})
	p.SetContacts(p.Needle, p.contacts(z))
}

// contacts returns one contact per respondable layer whose surface the tip
// is below. The force pushes the needle back out along +z in proportion to
// the indentation. Pierced layers are not respondable and report nothing.
func (p *Phantom) contacts(z float64) []host.Contact {
	var out []host.Contact
	for i, l := range p.scenario.Layers {
		depth := l.Surface - z
		if depth <= 0 {
			continue
		}
		o, ok := p.Object(p.tissues[i])
		if !ok || !o.Respondable {
			continue
		}
		f := math.Min(depth, 0.01) * l.ContactStiffness
		out = append(out, host.Contact{
			Bodies: [2]host.Handle{p.Needle, p.tissues[i]},
			Force:  r3.Vec{Z: f},
		})
	}
	return out
}
