// Package tissue holds the physical parameters of the layered phantom,
// keyed by the scene name of each tissue body.
package tissue

import (
	"sort"
	"sync"

	"github.com/PeterBul/needlesim/internal/config"
)

// Params are the per-tissue constants used by puncture detection and the
// Kelvin-Voigt force model.
type Params struct {
	Stiffness         float64 // N·s/m², Kelvin-Voigt coefficient per metre of penetration
	PunctureThreshold float64 // N, projected contact force needed to pierce
}

// Default applies to any tissue without an explicit entry.
var Default = Params{Stiffness: 300.0, PunctureThreshold: 1.0e-2}

// Builtin are the entries known without configuration.
var Builtin = map[string]Params{
	"bone": {Stiffness: 3001.5, PunctureThreshold: 1.0},
}

// Registry maps tissue names to Params. Lookups of unknown names return the
// registry default. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	def    Params
	byName map[string]Params
}

// NewRegistry returns a registry seeded with Builtin and the given default.
func NewRegistry(def Params) *Registry {
	r := &Registry{def: def, byName: make(map[string]Params, len(Builtin))}
	for name, p := range Builtin {
		r.byName[name] = p
	}
	return r
}

// FromConfig builds a registry from the tissues section of cfg. Fields left
// unset in a tissue entry keep the builtin or default value for that name.
func FromConfig(cfg *config.NeedleConfig) *Registry {
	r := NewRegistry(Default)
	for _, name := range cfg.TissueNames() {
		tc := cfg.Tissues[name]
		p := r.Lookup(name)
		if tc.Stiffness != nil {
			p.Stiffness = *tc.Stiffness
		}
		if tc.PunctureThreshold != nil {
			p.PunctureThreshold = *tc.PunctureThreshold
		}
		r.Set(name, p)
	}
	return r
}

// Set registers or replaces the parameters for name.
func (r *Registry) Set(name string, p Params) {
	r.mu.Lock()
	r.byName[name] = p
	r.mu.Unlock()
}

// Lookup returns the parameters for name, or the default.
func (r *Registry) Lookup(name string) Params {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.byName[name]; ok {
		return p
	}
	return r.def
}

// Known reports whether name has an explicit entry.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	_, ok := r.byName[name]
	r.mu.RUnlock()
	return ok
}

func (r *Registry) Stiffness(name string) float64 { return r.Lookup(name).Stiffness }

func (r *Registry) PunctureThreshold(name string) float64 { return r.Lookup(name).PunctureThreshold }

// Names returns the explicitly registered tissue names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
