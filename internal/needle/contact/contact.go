// Package contact classifies the physics engine's contacts on the needle
// body into an accumulated engine force and a list of newly punctured
// tissues.
package contact

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/PeterBul/needlesim/internal/host"
	"github.com/PeterBul/needlesim/internal/needle"
	"github.com/PeterBul/needlesim/internal/needle/tissue"
)

// DefaultMaxContacts bounds the contacts inspected per tick.
const DefaultMaxContacts = 20

// Options configure a Classifier.
type Options struct {
	MaxContacts int
	Projection  Projection
	// ConstantThreshold selects Threshold for every tissue instead of the
	// per-tissue registry value.
	ConstantThreshold bool
	Threshold         float64
}

// Membership reports tissues already pierced. puncture.Tracker satisfies it.
type Membership interface {
	Contains(tissue host.Handle) bool
}

// Candidate is a tissue whose contact force exceeded its puncture threshold.
type Candidate struct {
	Tissue    host.Handle
	Name      string
	Magnitude float64 // projected contact force
	Threshold float64
}

// Result is the output of one Classify call.
type Result struct {
	// EngineForce is the vector sum of qualifying contact forces in world
	// coordinates.
	EngineForce r3.Vec
	// EngineMagnitude is the sum of the per-contact projected magnitudes.
	EngineMagnitude float64
	Punctures       []Candidate
	// Scanned is the number of contacts inspected after truncation.
	Scanned int
	// Skipped counts contacts dropped because a host query failed.
	Skipped int
}

// Classifier inspects contacts on the instrument body. It is not safe for
// concurrent use.
type Classifier struct {
	scene    host.Scene
	registry *tissue.Registry
	opts     Options
}

// NewClassifier returns a classifier. A non-positive MaxContacts selects
// DefaultMaxContacts.
func NewClassifier(scene host.Scene, registry *tissue.Registry, opts Options) *Classifier {
	if opts.MaxContacts <= 0 {
		opts.MaxContacts = DefaultMaxContacts
	}
	return &Classifier{scene: scene, registry: registry, opts: opts}
}

// Options returns the current options.
func (c *Classifier) Options() Options { return c.opts }

// SetThreshold replaces the constant puncture threshold.
func (c *Classifier) SetThreshold(threshold float64) { c.opts.Threshold = threshold }

// ThresholdFor returns the puncture threshold that applies to a tissue.
func (c *Classifier) ThresholdFor(name string) float64 {
	if c.opts.ConstantThreshold {
		return c.opts.Threshold
	}
	return c.registry.PunctureThreshold(name)
}

// Classify scans at most MaxContacts contacts. Contacts whose far body is
// not respondable or is not a direct child of target are ignored. The rest
// contribute to the engine force, and those whose projected magnitude is
// strictly above the tissue's threshold become puncture candidates unless
// the tissue is already pierced or was flagged earlier in the same call.
func (c *Classifier) Classify(contacts []host.Contact, tip host.Pose, target host.Handle, pierced Membership) Result {
	if len(contacts) > c.opts.MaxContacts {
		contacts = contacts[:c.opts.MaxContacts]
	}

	res := Result{Scanned: len(contacts)}
	flagged := make(map[host.Handle]bool)
	for _, ct := range contacts {
		other := ct.Other()

		respondable, err := c.scene.Respondable(other)
		if err != nil {
			needle.Diagf("contact: respondable(%d): %v", other, err)
			res.Skipped++
			continue
		}
		if !respondable {
			continue
		}
		parent, err := c.scene.ObjectParent(other)
		if err != nil {
			needle.Diagf("contact: parent(%d): %v", other, err)
			res.Skipped++
			continue
		}
		if parent != target {
			continue
		}

		magnitude := c.opts.Projection.Project(ct.Force, tip)
		res.EngineForce = r3.Add(res.EngineForce, ct.Force)
		res.EngineMagnitude += magnitude

		if flagged[other] || pierced.Contains(other) {
			continue
		}
		name, err := c.scene.ObjectName(other)
		if err != nil {
			needle.Diagf("contact: name(%d): %v", other, err)
			res.Skipped++
			continue
		}
		threshold := c.ThresholdFor(name)
		if magnitude > threshold {
			flagged[other] = true
			res.Punctures = append(res.Punctures, Candidate{
				Tissue:    other,
				Name:      name,
				Magnitude: magnitude,
				Threshold: threshold,
			})
			needle.Diagf("contact: %s force %.4f above threshold %.4f", name, magnitude, threshold)
		}
	}
	needle.Tracef("contact: scanned=%d engine=%v punctures=%d", res.Scanned, res.EngineForce, len(res.Punctures))
	return res
}
