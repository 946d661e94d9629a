// Package report renders recorded needle sessions as CSV tables, PNG plots
// and interactive HTML charts.
package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"image/color"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/PeterBul/needlesim/internal/db"
)

// ErrNoTicks is returned when there is nothing to draw.
var ErrNoTicks = errors.New("report: no ticks recorded")

// Plot size of PNG renderings.
const (
	PlotWidth  = 10 * vg.Inch
	PlotHeight = 4 * vg.Inch
)

var (
	penetrationColor = color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	measuredColor    = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	modeledColor     = color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff}
)

// elapsed returns seconds since the first tick for every row.
func elapsed(ticks []db.TickRow) []float64 {
	out := make([]float64, len(ticks))
	for i, t := range ticks {
		out[i] = t.Time - ticks[0].Time
	}
	return out
}

func series(ticks []db.TickRow, x []float64, y func(db.TickRow) float64) plotter.XYs {
	pts := make(plotter.XYs, len(ticks))
	for i, t := range ticks {
		pts[i] = plotter.XY{X: x[i], Y: y(t)}
	}
	return pts
}

// Plot draws full penetration and the composed/modeled forces against time.
func Plot(ticks []db.TickRow, title string) (*plot.Plot, error) {
	if len(ticks) == 0 {
		return nil, ErrNoTicks
	}
	x := elapsed(ticks)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "penetration (m) / force (N)"
	p.Add(plotter.NewGrid())

	lines := []struct {
		name  string
		color color.Color
		y     func(db.TickRow) float64
	}{
		{"full_penetration", penetrationColor, func(t db.TickRow) float64 { return t.FullPenetration }},
		{"measured_F", measuredColor, func(t db.TickRow) float64 { return t.MeasuredForce }},
		{"modeled_F", modeledColor, func(t db.TickRow) float64 { return t.ModeledForce }},
	}
	for _, l := range lines {
		line, err := plotter.NewLine(series(ticks, x, l.y))
		if err != nil {
			return nil, fmt.Errorf("%s line: %w", l.name, err)
		}
		line.Color = l.color
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(l.name, line)
	}
	p.Legend.Top = true
	return p, nil
}

// WritePNG renders Plot as a PNG image.
func WritePNG(w io.Writer, ticks []db.TickRow, title string) error {
	p, err := Plot(ticks, title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(PlotWidth, PlotHeight, "png")
	if err != nil {
		return fmt.Errorf("png writer: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// Chart builds an interactive line chart of the same series as Plot.
func Chart(ticks []db.TickRow, title string) (*charts.Line, error) {
	if len(ticks) == 0 {
		return nil, ErrNoTicks
	}
	x := elapsed(ticks)
	labels := make([]string, len(x))
	pen := make([]opts.LineData, len(ticks))
	measured := make([]opts.LineData, len(ticks))
	modeled := make([]opts.LineData, len(ticks))
	for i, t := range ticks {
		labels[i] = strconv.FormatFloat(x[i], 'f', 3, 64)
		pen[i] = opts.LineData{Value: t.FullPenetration}
		measured[i] = opts.LineData{Value: t.MeasuredForce}
		modeled[i] = opts.LineData{Value: t.ModeledForce}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("ticks=%d", len(ticks))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(labels).
		AddSeries("full_penetration", pen).
		AddSeries("measured_F", measured).
		AddSeries("modeled_F", modeled).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	return line, nil
}

// WriteHTML renders Chart as a standalone HTML page.
func WriteHTML(w io.Writer, ticks []db.TickRow, title string) error {
	line, err := Chart(ticks, title)
	if err != nil {
		return err
	}
	return line.Render(w)
}

var tickHeader = []string{
	"seq", "time_unix", "tip_x", "tip_y", "tip_z", "speed", "layers",
	"full_penetration", "modeled_force", "engine_force", "measured_force",
}

func ff(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// WriteTicksCSV writes one row per recorded tick.
func WriteTicksCSV(w io.Writer, ticks []db.TickRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tickHeader); err != nil {
		return err
	}
	for _, t := range ticks {
		rec := []string{
			strconv.FormatUint(t.Seq, 10), ff(t.Time), ff(t.TipX), ff(t.TipY), ff(t.TipZ),
			ff(t.Speed), strconv.Itoa(t.Layers), ff(t.FullPenetration),
			ff(t.ModeledForce), ff(t.EngineForce), ff(t.MeasuredForce),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEventsCSV writes one row per puncture transition.
func WriteEventsCSV(w io.Writer, events []db.EventRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"event_id", "time_unix", "kind", "tissue", "depth", "tip_z", "length"}); err != nil {
		return err
	}
	for _, e := range events {
		rec := []string{
			strconv.FormatInt(e.ID, 10), ff(e.Time), e.Kind, e.Tissue,
			strconv.Itoa(e.Depth), ff(e.TipZ), ff(e.Length),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
