// Package kinematics derives the per-tick instrument state from host pose
// and velocity queries.
package kinematics

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/PeterBul/needlesim/internal/host"
	"github.com/PeterBul/needlesim/internal/needle"
)

// Frame is the instrument state for one tick.
type Frame struct {
	TipPosition r3.Vec
	// Speed is the tip velocity magnitude. When the reader signs speeds it
	// is negative while the tip moves against its own axis (retraction).
	Speed float64
	// TipAxis is the local z axis of the tip in world coordinates.
	TipAxis r3.Vec
	// InstrumentAxis is the local z axis of the needle body; it becomes the
	// entry direction of newly punctured layers.
	InstrumentAxis r3.Vec
	// TipPose is the full tip transform, used to express forces in the
	// instrument frame.
	TipPose host.Pose
	// Degraded is set when any query failed and a previous value was reused.
	Degraded bool
}

// Options tune the reader.
type Options struct {
	// SignedSpeed signs Speed by the direction of travel along TipAxis.
	SignedSpeed bool
}

// Reader queries the host once per tick. It keeps only the previous frame,
// which stands in for any value whose query fails.
type Reader struct {
	scene  host.Scene
	tip    host.Handle
	needle host.Handle
	opts   Options
	last   Frame
}

// NewReader returns a reader for the tip dummy and the needle body.
func NewReader(scene host.Scene, tip, needleBody host.Handle, opts Options) *Reader {
	r := &Reader{scene: scene, tip: tip, needle: needleBody, opts: opts}
	r.Reset()
	return r
}

// Reset forgets the previous frame. Called at session start.
func (r *Reader) Reset() {
	r.last = Frame{
		TipPose:        host.IdentityPose(),
		TipAxis:        r3.Vec{Z: 1},
		InstrumentAxis: r3.Vec{Z: 1},
	}
}

// Last returns the most recent frame.
func (r *Reader) Last() Frame { return r.last }

// Read returns the current frame. Query failures are logged on the diag
// stream and the previous value is kept; Read never fails.
func (r *Reader) Read() Frame {
	f := r.last
	f.Degraded = false

	if pos, err := r.scene.ObjectPosition(r.tip); err != nil {
		needle.Diagf("kinematics: tip position: %v", err)
		f.Degraded = true
	} else {
		f.TipPosition = pos
	}

	if pose, err := r.scene.ObjectPose(r.tip); err != nil {
		needle.Diagf("kinematics: tip pose: %v", err)
		f.Degraded = true
	} else {
		f.TipPose = pose
		f.TipAxis = pose.Axis()
	}

	if pose, err := r.scene.ObjectPose(r.needle); err != nil {
		needle.Diagf("kinematics: needle pose: %v", err)
		f.Degraded = true
	} else {
		f.InstrumentAxis = pose.Axis()
	}

	if vel, err := r.scene.ObjectVelocity(r.tip); err != nil {
		needle.Diagf("kinematics: tip velocity: %v (keeping %.6f)", err, r.last.Speed)
		f.Degraded = true
	} else {
		f.Speed = r3.Norm(vel)
		if r.opts.SignedSpeed && r3.Dot(vel, f.TipAxis) < 0 {
			f.Speed = -f.Speed
		}
	}

	needle.Tracef("kinematics: tip=%v speed=%.6f axis=%v", f.TipPosition, f.Speed, f.TipAxis)
	r.last = f
	return f
}
