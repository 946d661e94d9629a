package host

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/spatial/r3"
)

// MockObject is one object in a MockScene.
type MockObject struct {
	Name        string
	Parent      Handle
	Pose        Pose
	Velocity    r3.Vec
	Respondable bool
	Contacts    []Contact
}

// MockScene is an in-memory Scene, GraphSink and StatusSink. It backs tests
// and the synthetic replay host.
type MockScene struct {
	mu      sync.Mutex
	objects map[Handle]*MockObject
	byName  map[string]Handle
	next    Handle

	// failures maps a method name ("ObjectVelocity", "SetRespondable", ...)
	// to the handles whose calls should fail. NoHandle fails every call.
	failures map[string]map[Handle]bool

	graphs       map[Handle]map[string][]float64
	statusErrors []string
	respondWrite []RespondableWrite
}

// RespondableWrite records one SetRespondable call.
type RespondableWrite struct {
	Handle  Handle
	Enabled bool
}

// NewMockScene returns an empty scene.
func NewMockScene() *MockScene {
	return &MockScene{
		objects:  make(map[Handle]*MockObject),
		byName:   make(map[string]Handle),
		next:     1,
		failures: make(map[string]map[Handle]bool),
		graphs:   make(map[Handle]map[string][]float64),
	}
}

// AddObject creates a respondable object at the identity pose.
func (m *MockScene) AddObject(name string, parent Handle) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.next
	m.next++
	m.objects[h] = &MockObject{
		Name:        name,
		Parent:      parent,
		Pose:        IdentityPose(),
		Respondable: true,
	}
	m.byName[name] = h
	return h
}

// Object returns a copy of the object state.
func (m *MockScene) Object(h Handle) (MockObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[h]
	if !ok {
		return MockObject{}, false
	}
	return *o, true
}

// SetPose replaces the pose of h.
func (m *MockScene) SetPose(h Handle, p Pose) {
	m.update(h, func(o *MockObject) { o.Pose = p })
}

// SetPosition moves h without changing its rotation.
func (m *MockScene) SetPosition(h Handle, pos r3.Vec) {
	m.update(h, func(o *MockObject) {
		o.Pose[3], o.Pose[7], o.Pose[11] = pos.X, pos.Y, pos.Z
	})
}

// SetVelocity replaces the linear velocity of h.
func (m *MockScene) SetVelocity(h Handle, v r3.Vec) {
	m.update(h, func(o *MockObject) { o.Velocity = v })
}

// SetContacts replaces the contacts reported for h.
func (m *MockScene) SetContacts(h Handle, contacts []Contact) {
	m.update(h, func(o *MockObject) {
		o.Contacts = append([]Contact(nil), contacts...)
	})
}

// Fail makes calls to method for h return an error. Pass NoHandle to fail
// every call to method.
func (m *MockScene) Fail(method string, h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures[method] == nil {
		m.failures[method] = make(map[Handle]bool)
	}
	m.failures[method][h] = true
}

// ClearFailures removes every injected failure.
func (m *MockScene) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = make(map[string]map[Handle]bool)
}

// GraphValues returns every value written to graph/stream, oldest first.
func (m *MockScene) GraphValues(graph Handle, stream string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.graphs[graph][stream]...)
}

// StatusErrors returns every message passed to SetLastError.
func (m *MockScene) StatusErrors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.statusErrors...)
}

// RespondableWrites returns every SetRespondable call in order.
func (m *MockScene) RespondableWrites() []RespondableWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RespondableWrite(nil), m.respondWrite...)
}

func (m *MockScene) update(h Handle, fn func(*MockObject)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.objects[h]; ok {
		fn(o)
	}
}

// lookup must be called with m.mu held.
func (m *MockScene) lookup(method string, h Handle) (*MockObject, error) {
	if f := m.failures[method]; f != nil && (f[h] || f[NoHandle]) {
		return nil, fmt.Errorf("%s(%d): injected failure", method, h)
	}
	o, ok := m.objects[h]
	if !ok {
		return nil, fmt.Errorf("%s(%d): %w", method, h, ErrNotFound)
	}
	return o, nil
}

func (m *MockScene) ObjectHandle(name string) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.byName[name]
	if !ok {
		return NoHandle, fmt.Errorf("ObjectHandle(%q): %w", name, ErrNotFound)
	}
	return h, nil
}

func (m *MockScene) ObjectName(h Handle) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.lookup("ObjectName", h)
	if err != nil {
		return "", err
	}
	return o.Name, nil
}

func (m *MockScene) ObjectParent(h Handle) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.lookup("ObjectParent", h)
	if err != nil {
		return NoHandle, err
	}
	return o.Parent, nil
}

func (m *MockScene) ObjectPosition(h Handle) (r3.Vec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.lookup("ObjectPosition", h)
	if err != nil {
		return r3.Vec{}, err
	}
	return o.Pose.Position(), nil
}

func (m *MockScene) ObjectPose(h Handle) (Pose, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.lookup("ObjectPose", h)
	if err != nil {
		return Pose{}, err
	}
	return o.Pose, nil
}

func (m *MockScene) ObjectVelocity(h Handle) (r3.Vec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.lookup("ObjectVelocity", h)
	if err != nil {
		return r3.Vec{}, err
	}
	return o.Velocity, nil
}

func (m *MockScene) Contacts(h Handle) ([]Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.lookup("Contacts", h)
	if err != nil {
		return nil, err
	}
	return append([]Contact(nil), o.Contacts...), nil
}

func (m *MockScene) Respondable(h Handle) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.lookup("Respondable", h)
	if err != nil {
		return false, err
	}
	return o.Respondable, nil
}

func (m *MockScene) SetRespondable(h Handle, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.lookup("SetRespondable", h)
	if err != nil {
		return err
	}
	o.Respondable = enabled
	m.respondWrite = append(m.respondWrite, RespondableWrite{Handle: h, Enabled: enabled})
	return nil
}

func (m *MockScene) SetGraphUserData(graph Handle, stream string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f := m.failures["SetGraphUserData"]; f != nil && (f[graph] || f[NoHandle]) {
		return fmt.Errorf("SetGraphUserData(%d): injected failure", graph)
	}
	if m.graphs[graph] == nil {
		m.graphs[graph] = make(map[string][]float64)
	}
	m.graphs[graph][stream] = append(m.graphs[graph][stream], value)
	return nil
}

func (m *MockScene) SetLastError(command, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusErrors = append(m.statusErrors, command+": "+message)
}

var (
	_ Scene      = (*MockScene)(nil)
	_ GraphSink  = (*MockScene)(nil)
	_ StatusSink = (*MockScene)(nil)
)
