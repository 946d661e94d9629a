// Package sim is a synthetic host: a layered phantom pierced by a needle
// that follows a scripted depth profile. It drives the pipeline for replay
// runs and end-to-end tests without a simulator.
package sim

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Layer is one tissue slab. Its surface is a horizontal plane at z=Surface;
// the tissue extends downwards to the next layer.
type Layer struct {
	Name    string  `json:"name"`
	Surface float64 `json:"surface"` // m
	// ContactStiffness converts surface indentation into the contact force
	// reported while the tissue is still respondable.
	ContactStiffness float64 `json:"contact_stiffness"` // N/m
}

// Waypoint pins the tip depth at a time.
type Waypoint struct {
	T float64 `json:"t"` // s
	Z float64 `json:"z"` // m
}

// Scenario is a scripted insertion.
type Scenario struct {
	Name      string     `json:"name"`
	Step      float64    `json:"step"` // s per tick
	Layers    []Layer    `json:"layers"`
	Waypoints []Waypoint `json:"waypoints"`
}

// DefaultScenario inserts through four layers and withdraws far enough for
// the default still-inside slack to release them.
func DefaultScenario() *Scenario {
	return &Scenario{
		Name: "insert-withdraw",
		Step: 0.005,
		Layers: []Layer{
			{Name: "Fat", Surface: 0, ContactStiffness: 50},
			{Name: "muscle", Surface: -0.015, ContactStiffness: 80},
			{Name: "lung", Surface: -0.035, ContactStiffness: 30},
			{Name: "bronchus", Surface: -0.05, ContactStiffness: 60},
		},
		Waypoints: []Waypoint{
			{T: 0, Z: 0.01},
			{T: 1, Z: -0.06},
			{T: 1.5, Z: -0.06},
			{T: 3, Z: 1.05},
		},
	}
}

// LoadScenario reads a scenario from a JSON file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &s, nil
}

// Validate checks the scenario and sorts its waypoints by time.
func (s *Scenario) Validate() error {
	if s.Step <= 0 {
		return fmt.Errorf("step must be positive, got %g", s.Step)
	}
	if len(s.Waypoints) < 2 {
		return fmt.Errorf("need at least 2 waypoints, got %d", len(s.Waypoints))
	}
	seen := make(map[string]bool, len(s.Layers))
	for _, l := range s.Layers {
		if l.Name == "" {
			return fmt.Errorf("layer without name")
		}
		if seen[l.Name] {
			return fmt.Errorf("duplicate layer %q", l.Name)
		}
		seen[l.Name] = true
		if l.ContactStiffness <= 0 {
			return fmt.Errorf("layer %q: contact_stiffness must be positive", l.Name)
		}
	}
	sort.SliceStable(s.Waypoints, func(i, j int) bool { return s.Waypoints[i].T < s.Waypoints[j].T })
	return nil
}

// Duration is the time of the last waypoint.
func (s *Scenario) Duration() float64 {
	return s.Waypoints[len(s.Waypoints)-1].T
}

// DepthAt interpolates the tip depth linearly between waypoints, clamping
// outside the scripted range.
func (s *Scenario) DepthAt(t float64) float64 {
	w := s.Waypoints
	if t <= w[0].T {
		return w[0].Z
	}
	for i := 1; i < len(w); i++ {
		if t <= w[i].T {
			span := w[i].T - w[i-1].T
			if span <= 0 {
				return w[i].Z
			}
			f := (t - w[i-1].T) / span
			return w[i-1].Z + f*(w[i].Z-w[i-1].Z)
		}
	}
	return w[len(w)-1].Z
}
