package telemetry

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/PeterBul/needlesim/internal/host"
	"github.com/PeterBul/needlesim/internal/needle/force"
	"github.com/PeterBul/needlesim/internal/needle/kinematics"
	"github.com/PeterBul/needlesim/internal/needle/pipeline"
	"github.com/PeterBul/needlesim/internal/needle/puncture"
)

func tickResult(fg, nf host.Handle) *pipeline.TickResult {
	return &pipeline.TickResult{
		Seq:   1,
		Frame: kinematics.Frame{Speed: 0.2},
		Layers: []puncture.Puncture{
			{Name: "Fat", Length: 0.03},
			{Name: "bone", Length: 0.01},
			{Name: "lung", Length: 0.005},
		},
		Cumulative:      0.045,
		Force:           force.Output{Modeled: 1, Engine: 0.5, Magnitude: 1.5},
		InstrumentForce: r3.Vec{X: 0.1, Y: -0.2, Z: 0.3},
		VirtualFixture:  true,
		Handles:         pipeline.Handles{ForceGraph: fg, NeedleForceGraph: nf},
	}
}

func TestGraphPublisherStreams(t *testing.T) {
	m := host.NewMockScene()
	fg := m.AddObject("Force_Graph", host.NoHandle)
	nf := m.AddObject("Needle_force_graph", host.NoHandle)

	require.NoError(t, NewGraphPublisher(m).PublishTick(tickResult(fg, nf)))

	assert.Equal(t, []float64{1.5}, m.GraphValues(fg, StreamMeasuredForce))
	assert.Equal(t, []float64{0.045}, m.GraphValues(fg, StreamFullPenetration))
	assert.Equal(t, []float64{0.03}, m.GraphValues(fg, "fat_penetration"))
	assert.Equal(t, []float64{0.005}, m.GraphValues(fg, "lung_penetration"))
	assert.Empty(t, m.GraphValues(fg, "muscle_penetration"))
	assert.Empty(t, m.GraphValues(fg, "bone_penetration"))

	assert.Equal(t, []float64{0.1}, m.GraphValues(nf, StreamNeedleX))
	assert.Equal(t, []float64{-0.2}, m.GraphValues(nf, StreamNeedleY))
	assert.Equal(t, []float64{0.3}, m.GraphValues(nf, StreamNeedleZ))
}

func TestGraphPublisherSkipsUnresolvedGraphs(t *testing.T) {
	m := host.NewMockScene()
	fg := m.AddObject("Force_Graph", host.NoHandle)

	require.NoError(t, NewGraphPublisher(m).PublishTick(tickResult(fg, host.NoHandle)))
	assert.Empty(t, m.GraphValues(host.NoHandle, StreamNeedleX))
	assert.NotEmpty(t, m.GraphValues(fg, StreamMeasuredForce))
}

func TestGraphPublisherJoinsErrors(t *testing.T) {
	m := host.NewMockScene()
	fg := m.AddObject("Force_Graph", host.NoHandle)
	nf := m.AddObject("Needle_force_graph", host.NoHandle)
	m.Fail("SetGraphUserData", nf)

	err := NewGraphPublisher(m).PublishTick(tickResult(fg, nf))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph x")
	// The force graph is still written.
	assert.Equal(t, []float64{0.045}, m.GraphValues(fg, StreamFullPenetration))
}

func TestMetricsTick(t *testing.T) {
	m := NewMetrics()
	require.NoError(t, m.SessionStarted(pipeline.Info{ID: "a"}))
	require.NoError(t, m.PublishTick(tickResult(host.NoHandle, host.NoHandle)))

	assert.Equal(t, 1.5, testutil.ToFloat64(m.force.WithLabelValues("measured")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.force.WithLabelValues("modeled")))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.force.WithLabelValues("engine")))
	assert.Equal(t, 0.03, testutil.ToFloat64(m.penetration.WithLabelValues("Fat")))
	assert.Equal(t, 0.045, testutil.ToFloat64(m.full))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.layers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fixture))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))

	require.NoError(t, m.SessionEnded(pipeline.Info{ID: "a"}))
	assert.Zero(t, testutil.ToFloat64(m.full))
	assert.Zero(t, testutil.CollectAndCount(m.penetration))
}

func TestMetricsPunctureEvents(t *testing.T) {
	m := NewMetrics()
	m.PunctureEvent(puncture.Event{Kind: puncture.Entry, Layer: puncture.Puncture{Name: "Fat"}})
	m.PunctureEvent(puncture.Event{Kind: puncture.Entry, Layer: puncture.Puncture{Name: "Fat"}})
	m.PunctureEvent(puncture.Event{Kind: puncture.Exit, Layer: puncture.Puncture{Name: "Fat"}})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("entry", "Fat")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("exit", "Fat")))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	require.NoError(t, m.PublishTick(tickResult(host.NoHandle, host.NoHandle)))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, `needle_force_newtons{source="measured"} 1.5`), text)
	assert.Contains(t, text, "needle_ticks_total 1")
}
