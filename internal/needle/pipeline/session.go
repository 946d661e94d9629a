// Package pipeline runs the per-tick needle pass: kinematics, contact
// classification, puncture tracking, force modelling and composition, then
// publication to sinks.
package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/PeterBul/needlesim/internal/config"
	"github.com/PeterBul/needlesim/internal/host"
	"github.com/PeterBul/needlesim/internal/needle/contact"
	"github.com/PeterBul/needlesim/internal/needle/force"
	"github.com/PeterBul/needlesim/internal/needle/forcemodel"
	"github.com/PeterBul/needlesim/internal/needle/kinematics"
	"github.com/PeterBul/needlesim/internal/needle/puncture"
	"github.com/PeterBul/needlesim/internal/needle/tissue"
	"github.com/PeterBul/needlesim/internal/timeutil"
)

// ErrNotRunning is returned by Tick outside Start/End.
var ErrNotRunning = errors.New("session not running")

// SessionConfig holds the dependencies of a Session.
type SessionConfig struct {
	Scene  host.Scene
	Config *config.NeedleConfig

	Registry  *tissue.Registry    // Optional: built from Config when nil
	Clock     timeutil.Clock      // Optional: real clock when nil
	Sinks     []TickSink          // Optional: receive every tick in order
	Observers []puncture.Observer // Optional: receive layer entry/exit
	NewID     func() string       // Optional: session ID generator, uuid by default
}

// Session owns all mutable needle state for one simulation run. Tick is
// driven by the host loop; commands from other goroutines are serialised
// against it by mu. Readers use Snapshot.
type Session struct {
	mu sync.Mutex

	scene    host.Scene
	cfg      *config.NeedleConfig
	registry *tissue.Registry
	clock    timeutil.Clock
	sinks    []TickSink
	newID    func() string

	tracker    *puncture.Tracker
	classifier *contact.Classifier
	model      forcemodel.Model
	composer   force.Composer

	// per-run state, reset by Start
	running    bool
	info       Info
	reader     *kinematics.Reader
	deviceAxis r3.Vec

	snap atomic.Pointer[Snapshot]
}

// NewSession builds a session. The force model name is parsed here, so an
// unknown name is reported once on the diag stream.
func NewSession(sc SessionConfig) *Session {
	cfg := sc.Config
	if cfg == nil {
		cfg = config.EmptyNeedleConfig()
	}
	registry := sc.Registry
	if registry == nil {
		registry = tissue.FromConfig(cfg)
	}
	clock := sc.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	newID := sc.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	s := &Session{
		scene:    sc.Scene,
		cfg:      cfg,
		registry: registry,
		clock:    clock,
		sinks:    sc.Sinks,
		newID:    newID,
		tracker:  puncture.NewTracker(sc.Scene, cfg.GetInsideSlack()),
		classifier: contact.NewClassifier(sc.Scene, registry, contact.Options{
			MaxContacts:       cfg.GetMaxContacts(),
			Projection:        contact.ProjectionFor(cfg.GetEngineAxisOnly()),
			ConstantThreshold: cfg.GetConstantPunctureThreshold(),
			Threshold:         cfg.GetPunctureThreshold(),
		}),
		model:      forcemodel.FromConfig(cfg, registry.Stiffness),
		composer:   force.FromConfig(cfg),
		deviceAxis: r3.Vec{Z: 1},
	}
	for _, o := range sc.Observers {
		s.tracker.Observe(o)
	}
	s.snap.Store(s.snapshotLocked(nil))
	return s
}

// Registry returns the tissue registry in use.
func (s *Session) Registry() *tissue.Registry { return s.registry }

// ForceModel returns the model selected at construction.
func (s *Session) ForceModel() forcemodel.Kind { return s.model.Kind }

// Running reports whether a session is between Start and End.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Info returns the current session description.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Snapshot returns the state published by the last tick.
func (s *Session) Snapshot() *Snapshot { return s.snap.Load() }

// Start resolves the configured scene objects and resets per-run caches.
// Configuration is kept. Starting a running session ends it first.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		if err := s.endLocked(); err != nil {
			opsf("restart: %v", err)
		}
	}

	handles, err := s.resolve()
	if err != nil {
		return err
	}
	s.reader = kinematics.NewReader(s.scene, handles.Tip, handles.Needle, kinematics.Options{
		SignedSpeed: s.cfg.GetVelocityFromAxis(),
	})
	s.deviceAxis = r3.Vec{Z: 1}
	s.info = Info{
		ID:         s.newID(),
		Started:    s.clock.Now(),
		ForceModel: s.model.Kind.String(),
		Handles:    handles,
	}
	s.running = true

	opsf("session %s started: model=%s slack=%g", s.info.ID, s.info.ForceModel, s.tracker.Slack())
	for _, sink := range s.sinks {
		if ls, ok := sink.(LifecycleSink); ok {
			if err := ls.SessionStarted(s.info); err != nil {
				opsf("sink start: %v", err)
			}
		}
	}
	s.snap.Store(s.snapshotLocked(nil))
	return nil
}

func (s *Session) resolve() (Handles, error) {
	names := s.cfg.GetScene()
	var errs []error
	lookup := func(name string, required bool) host.Handle {
		h, err := s.scene.ObjectHandle(name)
		if err != nil {
			if required {
				errs = append(errs, fmt.Errorf("resolve %q: %w", name, err))
			} else {
				diagf("optional object %q not found: %v", name, err)
			}
			return host.NoHandle
		}
		return h
	}
	h := Handles{
		Device:           lookup(names.Device, true),
		Phantom:          lookup(names.Phantom, true),
		Needle:           lookup(names.Needle, true),
		Tip:              lookup(names.Tip, true),
		ForceGraph:       lookup(names.ForceGraph, false),
		NeedleForceGraph: lookup(names.NeedleForceGraph, false),
	}
	return h, errors.Join(errs...)
}

// End restores collision response on every pierced tissue and stops the
// session. The restore sweep always runs to completion; its joined errors
// are returned. End on a stopped session is a no-op.
func (s *Session) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	return s.endLocked()
}

func (s *Session) endLocked() error {
	err := s.tracker.Reset()
	s.running = false
	s.info.Ended = s.clock.Now()

	opsf("session %s ended after %d ticks", s.info.ID, s.info.Ticks)
	for _, sink := range s.sinks {
		if ls, ok := sink.(LifecycleSink); ok {
			if serr := ls.SessionEnded(s.info); serr != nil {
				opsf("sink end: %v", serr)
			}
		}
	}
	s.snap.Store(s.snapshotLocked(nil))
	return err
}

// SetPunctureThreshold replaces the constant puncture threshold. It takes
// effect from the next tick.
func (s *Session) SetPunctureThreshold(threshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classifier.SetThreshold(threshold)
	opsf("puncture threshold set to %g", threshold)

	prev := s.snap.Load()
	next := *prev
	next.PunctureThreshold = threshold
	s.snap.Store(&next)
}

// PunctureThreshold returns the constant puncture threshold.
func (s *Session) PunctureThreshold() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classifier.Options().Threshold
}

// Tick runs one pass. Host query failures degrade to previous values and
// are logged; the only error is ErrNotRunning.
func (s *Session) Tick() (*TickResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil, ErrNotRunning
	}
	h := s.info.Handles

	frame := s.reader.Read()

	contacts, err := s.scene.Contacts(h.Needle)
	if err != nil {
		diagf("contacts: %v", err)
		contacts = nil
	}
	classified := s.classifier.Classify(contacts, frame.TipPose, h.Phantom, s.tracker)

	for _, c := range classified.Punctures {
		if err := s.tracker.AddLayer(c.Tissue, c.Name, frame.TipPosition, frame.InstrumentAxis); err != nil {
			opsf("add layer: %v", err)
		}
	}
	if err := s.tracker.Advance(frame.TipPosition); err != nil {
		opsf("advance: %v", err)
	}

	layers := s.tracker.Layers()
	modeled := s.model.Compute(forcemodel.Input{
		Velocity:   frame.Speed,
		Layers:     layers,
		Cumulative: s.tracker.Cumulative(),
	})

	if pose, err := s.scene.ObjectPose(h.Device); err != nil {
		diagf("device pose: %v", err)
	} else {
		s.deviceAxis = pose.Axis()
	}
	out := s.composer.Compose(modeled, classified.EngineForce, frame.TipPose, s.deviceAxis)

	s.info.Ticks++
	res := &TickResult{
		SessionID:       s.info.ID,
		Seq:             s.info.Ticks,
		Time:            s.clock.Now(),
		Frame:           frame,
		Contacts:        classified,
		NewPunctures:    classified.Punctures,
		Layers:          layers,
		Cumulative:      s.tracker.Cumulative(),
		Force:           out,
		InstrumentForce: contact.ToInstrumentFrame(classified.EngineForce, frame.TipPose),
		VirtualFixture:  len(layers) > 0,
		Handles:         h,
	}
	tracef("tick %d: layers=%d L=%.5f modeled=%.4f engine=%.4f F=%.4f",
		res.Seq, len(layers), res.Cumulative, out.Modeled, out.Engine, out.Magnitude)

	s.snap.Store(s.snapshotLocked(res))
	for _, sink := range s.sinks {
		if err := sink.PublishTick(res); err != nil {
			opsf("sink: %v", err)
		}
	}
	return res, nil
}

// snapshotLocked builds a snapshot from res, or a state-only snapshot when
// res is nil.
func (s *Session) snapshotLocked(res *TickResult) *Snapshot {
	opts := s.classifier.Options()
	snap := &Snapshot{
		SessionID:         s.info.ID,
		Running:           s.running,
		Seq:               s.info.Ticks,
		ForceModel:        s.model.Kind.String(),
		ConstantThreshold: opts.ConstantThreshold,
		PunctureThreshold: opts.Threshold,
		Layers:            []LayerState{},
	}
	if res == nil {
		return snap
	}
	snap.Time = res.Time
	snap.TipPosition = vec3(res.Frame.TipPosition)
	snap.Speed = res.Frame.Speed
	for _, l := range res.Layers {
		snap.Layers = append(snap.Layers, LayerState{Name: l.Name, Length: l.Length})
	}
	snap.Cumulative = res.Cumulative
	snap.Modeled = res.Force.Modeled
	snap.Engine = res.Force.Engine
	snap.Magnitude = res.Force.Magnitude
	snap.Vector = vec3(res.Force.Vector)
	snap.InstrumentForce = vec3(res.InstrumentForce)
	snap.VirtualFixture = res.VirtualFixture
	return snap
}
