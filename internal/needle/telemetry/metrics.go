package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PeterBul/needlesim/internal/needle/pipeline"
	"github.com/PeterBul/needlesim/internal/needle/puncture"
)

// Metrics mirrors the graph streams as Prometheus series and counts
// puncture transitions.
type Metrics struct {
	registry *prometheus.Registry

	force       *prometheus.GaugeVec
	penetration *prometheus.GaugeVec
	full        prometheus.Gauge
	speed       prometheus.Gauge
	layers      prometheus.Gauge
	fixture     prometheus.Gauge
	ticks       prometheus.Counter
	sessions    prometheus.Counter
	events      *prometheus.CounterVec
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		force: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "needle",
			Name:      "force_newtons",
			Help:      "Force magnitude by source: measured (composed), modeled, engine.",
		}, []string{"source"}),
		penetration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "needle",
			Name:      "penetration_meters",
			Help:      "Penetration length of each pierced tissue.",
		}, []string{"tissue"}),
		full: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "needle",
			Name:      "full_penetration_meters",
			Help:      "Cumulative penetration over the puncture stack.",
		}),
		speed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "needle",
			Name:      "tip_speed_meters_per_second",
			Help:      "Instrument tip speed.",
		}),
		layers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "needle",
			Name:      "puncture_layers",
			Help:      "Number of layers in the puncture stack.",
		}),
		fixture: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "needle",
			Name:      "virtual_fixture_active",
			Help:      "1 while any tissue is pierced.",
		}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "needle",
			Name:      "ticks_total",
			Help:      "Simulation ticks processed.",
		}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "needle",
			Name:      "sessions_total",
			Help:      "Simulation sessions started.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "needle",
			Name:      "puncture_events_total",
			Help:      "Layer entries and exits by tissue.",
		}, []string{"kind", "tissue"}),
	}
	m.registry.MustRegister(m.force, m.penetration, m.full, m.speed, m.layers,
		m.fixture, m.ticks, m.sessions, m.events)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PublishTick implements pipeline.TickSink.
func (m *Metrics) PublishTick(r *pipeline.TickResult) error {
	m.force.WithLabelValues("measured").Set(r.Force.Magnitude)
	m.force.WithLabelValues("modeled").Set(r.Force.Modeled)
	m.force.WithLabelValues("engine").Set(r.Force.Engine)

	m.penetration.Reset()
	for _, l := range r.Layers {
		m.penetration.WithLabelValues(l.Name).Set(l.Length)
	}
	m.full.Set(r.Cumulative)
	m.speed.Set(r.Frame.Speed)
	m.layers.Set(float64(len(r.Layers)))
	if r.VirtualFixture {
		m.fixture.Set(1)
	} else {
		m.fixture.Set(0)
	}
	m.ticks.Inc()
	return nil
}

// SessionStarted implements pipeline.LifecycleSink.
func (m *Metrics) SessionStarted(pipeline.Info) error {
	m.sessions.Inc()
	m.penetration.Reset()
	m.full.Set(0)
	m.layers.Set(0)
	m.fixture.Set(0)
	return nil
}

// SessionEnded implements pipeline.LifecycleSink.
func (m *Metrics) SessionEnded(pipeline.Info) error {
	m.penetration.Reset()
	m.full.Set(0)
	m.layers.Set(0)
	m.fixture.Set(0)
	return nil
}

// PunctureEvent implements puncture.Observer.
func (m *Metrics) PunctureEvent(e puncture.Event) {
	m.events.WithLabelValues(e.Kind.String(), e.Layer.Name).Inc()
}

var (
	_ pipeline.TickSink      = (*Metrics)(nil)
	_ pipeline.LifecycleSink = (*Metrics)(nil)
	_ puncture.Observer      = (*Metrics)(nil)
)
