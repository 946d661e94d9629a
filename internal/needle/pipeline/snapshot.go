package pipeline

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// LayerState is the published view of one pierced layer.
type LayerState struct {
	Name   string  `json:"name"`
	Length float64 `json:"length"`
}

// Snapshot is an immutable view of the session after a tick. Readers on
// other goroutines load it without locking.
type Snapshot struct {
	SessionID         string       `json:"session_id"`
	Running           bool         `json:"running"`
	Seq               uint64       `json:"seq"`
	Time              time.Time    `json:"time"`
	TipPosition       [3]float64   `json:"tip_position"`
	Speed             float64      `json:"speed"`
	Layers            []LayerState `json:"layers"`
	Cumulative        float64      `json:"full_penetration"`
	Modeled           float64      `json:"modeled_force"`
	Engine            float64      `json:"engine_force"`
	Magnitude         float64      `json:"measured_force"`
	Vector            [3]float64   `json:"force_vector"`
	InstrumentForce   [3]float64   `json:"instrument_force"`
	VirtualFixture    bool         `json:"virtual_fixture"`
	ForceModel        string       `json:"force_model"`
	ConstantThreshold bool         `json:"constant_puncture_threshold"`
	PunctureThreshold float64      `json:"puncture_threshold"`
}

func vec3(v r3.Vec) [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

// Depth returns the published length of the named layer.
func (s *Snapshot) Depth(name string) (float64, bool) {
	for _, l := range s.Layers {
		if l.Name == name {
			return l.Length, true
		}
	}
	return 0, false
}
