// Package puncture tracks the ordered stack of tissue layers the needle
// tip has pierced.
//
// The stack is ordered outermost first and is contiguous: a layer can only
// be exited after every layer entered after it. Each tick the tracker
// recomputes the penetration length of the innermost layers and pops those
// the tip has retracted out of, restoring their collision response.
package puncture

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/PeterBul/needlesim/internal/host"
	"github.com/PeterBul/needlesim/internal/needle"
)

// DefaultInsideSlack is the still-inside threshold: a layer remains pierced
// while dot(entry - tip, entryDirection) >= slack.
const DefaultInsideSlack = -1.0

// Puncture is one pierced layer.
type Puncture struct {
	Tissue         host.Handle
	Name           string
	EntryPosition  r3.Vec // tip position at entry
	EntryDirection r3.Vec // instrument axis at entry
	Length         float64
}

// EventKind distinguishes stack transitions.
type EventKind int

const (
	Entry EventKind = iota
	Exit
)

func (k EventKind) String() string {
	switch k {
	case Entry:
		return "entry"
	case Exit:
		return "exit"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event describes one layer entering or leaving the stack.
type Event struct {
	Kind  EventKind
	Layer Puncture
	Depth int    // stack index of the layer, 0 is outermost
	Tip   r3.Vec // tip position when the transition happened
}

// Observer receives stack transitions synchronously.
type Observer interface {
	PunctureEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) PunctureEvent(e Event) { f(e) }

// Tracker owns the puncture stack and the cumulative penetration. It is not
// safe for concurrent use; the session serialises access.
type Tracker struct {
	scene      host.Scene
	slack      float64
	stack      []Puncture
	cumulative float64
	observers  []Observer
}

// NewTracker returns an empty tracker that toggles collision response
// through scene.
func NewTracker(scene host.Scene, slack float64) *Tracker {
	return &Tracker{scene: scene, slack: slack}
}

// Observe registers o for Entry and Exit events.
func (t *Tracker) Observe(o Observer) {
	t.observers = append(t.observers, o)
}

func (t *Tracker) emit(e Event) {
	for _, o := range t.observers {
		o.PunctureEvent(e)
	}
}

// Slack returns the still-inside threshold.
func (t *Tracker) Slack() float64 { return t.slack }

// Contains reports whether tissue is already in the stack.
func (t *Tracker) Contains(tissue host.Handle) bool {
	for i := range t.stack {
		if t.stack[i].Tissue == tissue {
			return true
		}
	}
	return false
}

// Len returns the number of pierced layers.
func (t *Tracker) Len() int { return len(t.stack) }

// Cumulative returns the sum of penetration lengths over the stack.
func (t *Tracker) Cumulative() float64 { return t.cumulative }

// Layers returns a copy of the stack, outermost first.
func (t *Tracker) Layers() []Puncture {
	return append([]Puncture(nil), t.stack...)
}

// Depth returns the penetration length of the named layer.
func (t *Tracker) Depth(name string) (float64, bool) {
	for i := range t.stack {
		if t.stack[i].Name == name {
			return t.stack[i].Length, true
		}
	}
	return 0, false
}

// measure returns the signed penetration of p for a tip position.
func (t *Tracker) measure(p Puncture, tip r3.Vec) (length float64, inside bool) {
	d := r3.Sub(p.EntryPosition, tip)
	inside = r3.Dot(d, p.EntryDirection) >= t.slack
	length = r3.Norm(d)
	if !inside {
		length = -length
	}
	return length, inside
}

// AddLayer pushes a newly pierced tissue as the innermost layer and disables
// its collision response so the needle can pass through. The caller must
// check Contains first. A failed respondable write is returned after the
// layer has been pushed; the layer is still tracked so Reset restores it.
func (t *Tracker) AddLayer(tissue host.Handle, name string, entry, direction r3.Vec) error {
	p := Puncture{
		Tissue:         tissue,
		Name:           name,
		EntryPosition:  entry,
		EntryDirection: direction,
	}
	p.Length, _ = t.measure(p, entry)
	t.stack = append(t.stack, p)
	t.cumulative += p.Length

	needle.Opsf("punctured %s at %v depth=%d", name, entry, len(t.stack)-1)
	t.emit(Event{Kind: Entry, Layer: p, Depth: len(t.stack) - 1, Tip: entry})

	if err := t.scene.SetRespondable(tissue, false); err != nil {
		return fmt.Errorf("disable collision response for %s: %w", name, err)
	}
	return nil
}

// Advance updates the stack for a new tip position. Layers are scanned from
// innermost outwards; the first layer still inside ends the scan, every
// layer before it is popped and has its collision response restored.
// Restore failures are logged and joined into the returned error; the
// stack is updated regardless.
func (t *Tracker) Advance(tip r3.Vec) error {
	var errs []error
	for i := len(t.stack) - 1; i >= 0; i-- {
		p := &t.stack[i]
		length, inside := t.measure(*p, tip)
		if inside {
			t.cumulative += length - p.Length
			p.Length = length
			return errors.Join(errs...)
		}

		t.cumulative -= p.Length
		exited := *p
		exited.Length = length
		t.stack = t.stack[:i]

		if err := t.scene.SetRespondable(exited.Tissue, true); err != nil {
			needle.Opsf("restore collision response for %s: %v", exited.Name, err)
			errs = append(errs, fmt.Errorf("restore %s: %w", exited.Name, err))
		}
		needle.Opsf("exited %s at %v depth=%d", exited.Name, tip, i)
		t.emit(Event{Kind: Exit, Layer: exited, Depth: i, Tip: tip})
	}
	t.cumulative = 0
	return errors.Join(errs...)
}

// Reset restores collision response on every layer and clears the stack.
// The sweep never stops early; write failures are joined and returned.
// Calling Reset on an empty tracker is a no-op.
func (t *Tracker) Reset() error {
	var errs []error
	for i := len(t.stack) - 1; i >= 0; i-- {
		p := t.stack[i]
		if err := t.scene.SetRespondable(p.Tissue, true); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", p.Name, err))
		}
	}
	t.stack = t.stack[:0]
	t.cumulative = 0
	if err := errors.Join(errs...); err != nil {
		needle.Opsf("reset: %v", err)
		return err
	}
	return nil
}
