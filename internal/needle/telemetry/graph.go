// Package telemetry publishes tick results to the host graphs and to
// Prometheus.
package telemetry

import (
	"errors"
	"fmt"

	"github.com/PeterBul/needlesim/internal/host"
	"github.com/PeterBul/needlesim/internal/needle/pipeline"
)

// Force graph streams.
const (
	StreamMeasuredForce   = "measured_F"
	StreamFullPenetration = "full_penetration"
)

// PenetrationStreams maps the tissues plotted on the force graph to their
// stream names. Layers of other tissues are not plotted.
var PenetrationStreams = map[string]string{
	"Fat":      "fat_penetration",
	"muscle":   "muscle_penetration",
	"lung":     "lung_penetration",
	"bronchus": "bronchus_penetration",
}

// Needle force graph streams, the engine force in the tip frame.
const (
	StreamNeedleX = "x"
	StreamNeedleY = "y"
	StreamNeedleZ = "z"
)

// GraphPublisher writes every tick to the host graph objects resolved by the
// session. A graph whose handle did not resolve is skipped.
type GraphPublisher struct {
	sink host.GraphSink
}

// NewGraphPublisher returns a publisher writing to sink.
func NewGraphPublisher(sink host.GraphSink) *GraphPublisher {
	return &GraphPublisher{sink: sink}
}

// PublishTick implements pipeline.TickSink. Every stream is attempted; the
// write errors are joined.
func (g *GraphPublisher) PublishTick(r *pipeline.TickResult) error {
	var errs []error
	set := func(graph host.Handle, stream string, v float64) {
		if graph == host.NoHandle {
			return
		}
		if err := g.sink.SetGraphUserData(graph, stream, v); err != nil {
			errs = append(errs, fmt.Errorf("graph %s: %w", stream, err))
		}
	}

	fg := r.Handles.ForceGraph
	set(fg, StreamMeasuredForce, r.Force.Magnitude)

	nf := r.Handles.NeedleForceGraph
	set(nf, StreamNeedleX, r.InstrumentForce.X)
	set(nf, StreamNeedleY, r.InstrumentForce.Y)
	set(nf, StreamNeedleZ, r.InstrumentForce.Z)

	for _, l := range r.Layers {
		if stream, ok := PenetrationStreams[l.Name]; ok {
			set(fg, stream, l.Length)
		}
	}
	set(fg, StreamFullPenetration, r.Cumulative)
	return errors.Join(errs...)
}

var _ pipeline.TickSink = (*GraphPublisher)(nil)
