package pipeline

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/PeterBul/needlesim/internal/host"
	"github.com/PeterBul/needlesim/internal/needle/contact"
	"github.com/PeterBul/needlesim/internal/needle/force"
	"github.com/PeterBul/needlesim/internal/needle/kinematics"
	"github.com/PeterBul/needlesim/internal/needle/puncture"
)

// Handles are the scene objects a session binds to at Start.
type Handles struct {
	Device           host.Handle // haptic device dummy, its axis orients the output force
	Phantom          host.Handle // parent of every tissue body
	Needle           host.Handle // instrument body, contacts are enumerated on it
	Tip              host.Handle // instrument tip dummy
	ForceGraph       host.Handle // optional
	NeedleForceGraph host.Handle // optional
}

// Info describes a session for lifecycle sinks.
type Info struct {
	ID         string
	Started    time.Time
	Ended      time.Time // zero until End
	Ticks      uint64
	ForceModel string
	Handles    Handles
}

// TickResult is everything computed in one tick.
type TickResult struct {
	SessionID string
	Seq       uint64
	Time      time.Time

	Frame        kinematics.Frame
	Contacts     contact.Result
	NewPunctures []contact.Candidate
	Layers       []puncture.Puncture
	Cumulative   float64

	Force force.Output
	// InstrumentForce is the engine contact force expressed in the tip frame.
	InstrumentForce r3.Vec
	VirtualFixture  bool

	Handles Handles
}

// TickSink consumes tick results in order. Errors are logged by the session
// and never abort the tick.
type TickSink interface {
	PublishTick(*TickResult) error
}

// LifecycleSink is optionally implemented by a TickSink that needs session
// boundaries.
type LifecycleSink interface {
	SessionStarted(Info) error
	SessionEnded(Info) error
}

// TickSinkFunc adapts a function to TickSink.
type TickSinkFunc func(*TickResult) error

func (f TickSinkFunc) PublishTick(r *TickResult) error { return f(r) }
