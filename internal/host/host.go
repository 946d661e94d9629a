// Package host defines the boundary between the needle core and the
// simulation runtime that drives it.
//
// The runtime owns the scene graph, collision detection and contact
// enumeration. The core only reads poses, velocities and contacts, and
// writes the per-object "respondable" flag while a tissue is pierced.
package host

import (
	"errors"

	"gonum.org/v1/gonum/spatial/r3"
)

// Handle identifies an object in the host scene. Handles are stable for the
// lifetime of a simulation session.
type Handle int

// NoHandle is returned by lookups that did not resolve to an object.
const NoHandle Handle = -1

// ErrNotFound is returned when a handle or name does not resolve.
var ErrNotFound = errors.New("object not found")

// Contact is one contact record reported by the host physics engine.
// Bodies[0] is the queried body, Bodies[1] the body it touches.
type Contact struct {
	Bodies [2]Handle
	Force  r3.Vec
}

// Other returns the body on the far side of the contact.
func (c Contact) Other() Handle { return c.Bodies[1] }

// Scene is the read/write surface of the host scene graph used by the core.
type Scene interface {
	// ObjectHandle resolves an object by its scene name.
	ObjectHandle(name string) (Handle, error)
	// ObjectName returns the scene name of an object.
	ObjectName(h Handle) (string, error)
	// ObjectParent returns the parent of an object, or NoHandle at the root.
	ObjectParent(h Handle) (Handle, error)
	// ObjectPosition returns the world position of an object.
	ObjectPosition(h Handle) (r3.Vec, error)
	// ObjectPose returns the world 3x4 transform of an object.
	ObjectPose(h Handle) (Pose, error)
	// ObjectVelocity returns the world linear velocity of an object.
	ObjectVelocity(h Handle) (r3.Vec, error)
	// Contacts returns the contacts currently involving h.
	Contacts(h Handle) ([]Contact, error)
	// Respondable reports whether collision response is enabled for h.
	Respondable(h Handle) (bool, error)
	// SetRespondable enables or disables collision response for h.
	SetRespondable(h Handle, enabled bool) error
}

// GraphSink receives named telemetry values for host graph objects.
type GraphSink interface {
	SetGraphUserData(graph Handle, stream string, value float64) error
}

// StatusSink receives command errors destined for the host status bar.
type StatusSink interface {
	SetLastError(command, message string)
}
