package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/PeterBul/needlesim/internal/db"
	"github.com/PeterBul/needlesim/internal/monitoring"
	"github.com/PeterBul/needlesim/internal/report"
	"github.com/PeterBul/needlesim/internal/security"
)

// Source reads a recorded session.
type Source interface {
	Ticks(sessionID string) ([]db.TickRow, error)
	PunctureEvents(sessionID string) ([]db.EventRow, error)
}

// Exporter renders a recorded session and uploads the artefacts.
type Exporter struct {
	src   Source
	store Store
}

func NewExporter(src Source, store Store) *Exporter {
	return &Exporter{src: src, store: store}
}

type artefact struct {
	name        string
	contentType string
	render      func(io.Writer) error
}

// Export writes ticks.csv, events.csv and, when the session has ticks,
// penetration.png and chart.html under the session ID. It returns the keys
// written.
func (e *Exporter) Export(ctx context.Context, sessionID string) ([]string, error) {
	ticks, err := e.src.Ticks(sessionID)
	if err != nil {
		return nil, fmt.Errorf("read ticks: %w", err)
	}
	events, err := e.src.PunctureEvents(sessionID)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	title := "needle session " + sessionID
	parts := []artefact{
		{"ticks.csv", "text/csv", func(w io.Writer) error { return report.WriteTicksCSV(w, ticks) }},
		{"events.csv", "text/csv", func(w io.Writer) error { return report.WriteEventsCSV(w, events) }},
		{"penetration.png", "image/png", func(w io.Writer) error { return report.WritePNG(w, ticks, title) }},
		{"chart.html", "text/html; charset=utf-8", func(w io.Writer) error { return report.WriteHTML(w, ticks, title) }},
	}

	var keys []string
	for _, a := range parts {
		var buf bytes.Buffer
		if err := a.render(&buf); err != nil {
			if errors.Is(err, report.ErrNoTicks) {
				continue
			}
			return keys, fmt.Errorf("render %s: %w", a.name, err)
		}
		key := path.Join(security.SanitizeSegment(sessionID), a.name)
		if err := e.store.Put(ctx, key, bytes.NewReader(buf.Bytes()), a.contentType); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	monitoring.Logf("archive: exported %d artefacts of %s to %s", len(keys), sessionID, e.store.Driver())
	return keys, nil
}
