package db

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PeterBul/needlesim/internal/monitoring"
	"github.com/PeterBul/needlesim/internal/needle/pipeline"
	"github.com/PeterBul/needlesim/internal/needle/puncture"
	"github.com/PeterBul/needlesim/internal/timeutil"
)

// ErrNoSession is returned when a tick arrives outside a recorded session.
var ErrNoSession = errors.New("db: no session started")

// Recorder persists a running session. It is a pipeline.TickSink, a
// pipeline.LifecycleSink and a puncture.Observer.
type Recorder struct {
	db    *DB
	clock timeutil.Clock
	every uint64

	mu      sync.Mutex
	session string
}

// NewRecorder records every n-th tick of a session (every tick when n is 0).
// Puncture events and session boundaries are always recorded.
func NewRecorder(db *DB, clock timeutil.Clock, every uint64) *Recorder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if every == 0 {
		every = 1
	}
	return &Recorder{db: db, clock: clock, every: every}
}

func unix(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func (r *Recorder) SessionStarted(info pipeline.Info) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.Exec(
		`INSERT INTO sessions (session_id, started_unix, force_model) VALUES (?, ?, ?)`,
		info.ID, unix(info.Started), info.ForceModel,
	)
	if err != nil {
		return fmt.Errorf("record session %s: %w", info.ID, err)
	}
	r.session = info.ID
	return nil
}

func (r *Recorder) SessionEnded(info pipeline.Info) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ended := info.Ended
	if ended.IsZero() {
		ended = r.clock.Now()
	}
	_, err := r.db.Exec(
		`UPDATE sessions SET ended_unix = ?, ticks = ? WHERE session_id = ?`,
		unix(ended), info.Ticks, info.ID,
	)
	if err != nil {
		return fmt.Errorf("close session %s: %w", info.ID, err)
	}
	if r.session == info.ID {
		r.session = ""
	}
	return nil
}

func (r *Recorder) PublishTick(res *pipeline.TickResult) error {
	if res.Seq%r.every != 0 {
		return nil
	}
	tip := res.Frame.TipPosition
	_, err := r.db.Exec(
		`INSERT INTO ticks (
			session_id, seq, time_unix, tip_x, tip_y, tip_z, speed, layers,
			full_penetration, modeled_force, engine_force, measured_force
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.SessionID, res.Seq, unix(res.Time), tip.X, tip.Y, tip.Z, res.Frame.Speed,
		len(res.Layers), res.Cumulative, res.Force.Modeled, res.Force.Engine, res.Force.Magnitude,
	)
	if err != nil {
		return fmt.Errorf("record tick %d: %w", res.Seq, err)
	}
	return nil
}

// PunctureEvent records a stack transition against the current session.
// Failures are logged since observers cannot return errors.
func (r *Recorder) PunctureEvent(ev puncture.Event) {
	r.mu.Lock()
	session := r.session
	r.mu.Unlock()
	if session == "" {
		monitoring.Logf("db: dropping %s of %s: %v", ev.Kind, ev.Layer.Name, ErrNoSession)
		return
	}
	_, err := r.db.Exec(
		`INSERT INTO puncture_events (
			session_id, time_unix, kind, tissue, depth, tip_x, tip_y, tip_z, length
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session, unix(r.clock.Now()), ev.Kind.String(), ev.Layer.Name, ev.Depth,
		ev.Tip.X, ev.Tip.Y, ev.Tip.Z, ev.Layer.Length,
	)
	if err != nil {
		monitoring.Logf("db: record %s of %s: %v", ev.Kind, ev.Layer.Name, err)
	}
}

// SessionRow is one recorded session.
type SessionRow struct {
	ID         string     `json:"session_id"`
	Started    time.Time  `json:"started"`
	Ended      *time.Time `json:"ended,omitempty"`
	Ticks      uint64     `json:"ticks"`
	ForceModel string     `json:"force_model"`
}

// TickRow is one recorded tick.
type TickRow struct {
	Seq             uint64  `json:"seq"`
	Time            float64 `json:"time_unix"`
	TipX            float64 `json:"tip_x"`
	TipY            float64 `json:"tip_y"`
	TipZ            float64 `json:"tip_z"`
	Speed           float64 `json:"speed"`
	Layers          int     `json:"layers"`
	FullPenetration float64 `json:"full_penetration"`
	ModeledForce    float64 `json:"modeled_force"`
	EngineForce     float64 `json:"engine_force"`
	MeasuredForce   float64 `json:"measured_force"`
}

// EventRow is one recorded puncture transition.
type EventRow struct {
	ID     int64   `json:"event_id"`
	Time   float64 `json:"time_unix"`
	Kind   string  `json:"kind"`
	Tissue string  `json:"tissue"`
	Depth  int     `json:"depth"`
	TipZ   float64 `json:"tip_z"`
	Length float64 `json:"length"`
}

func fromUnix(s float64) time.Time {
	return time.Unix(0, int64(s*1e9)).UTC()
}

// Sessions returns the most recent sessions first.
func (db *DB) Sessions(limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT session_id, started_unix, ended_unix, ticks, force_model
		FROM sessions ORDER BY started_unix DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var (
			s       SessionRow
			started float64
			ended   sql.NullFloat64
		)
		if err := rows.Scan(&s.ID, &started, &ended, &s.Ticks, &s.ForceModel); err != nil {
			return nil, err
		}
		s.Started = fromUnix(started)
		if ended.Valid {
			e := fromUnix(ended.Float64)
			s.Ended = &e
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Ticks returns the recorded ticks of a session in order.
func (db *DB) Ticks(sessionID string) ([]TickRow, error) {
	rows, err := db.Query(`SELECT seq, time_unix, tip_x, tip_y, tip_z, speed, layers,
			full_penetration, modeled_force, engine_force, measured_force
		FROM ticks WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TickRow
	for rows.Next() {
		var t TickRow
		if err := rows.Scan(&t.Seq, &t.Time, &t.TipX, &t.TipY, &t.TipZ, &t.Speed, &t.Layers,
			&t.FullPenetration, &t.ModeledForce, &t.EngineForce, &t.MeasuredForce); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// PunctureEvents returns the transitions of a session in the order they
// happened.
func (db *DB) PunctureEvents(sessionID string) ([]EventRow, error) {
	rows, err := db.Query(`SELECT event_id, time_unix, kind, tissue, depth, tip_z, length
		FROM puncture_events WHERE session_id = ? ORDER BY event_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(&e.ID, &e.Time, &e.Kind, &e.Tissue, &e.Depth, &e.TipZ, &e.Length); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
