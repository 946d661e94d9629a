package db

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PeterBul/needlesim/internal/config"
	"github.com/PeterBul/needlesim/internal/monitoring"
	"github.com/PeterBul/needlesim/internal/needle/pipeline"
	"github.com/PeterBul/needlesim/internal/needle/puncture"
	"github.com/PeterBul/needlesim/internal/needle/sim"
	"github.com/PeterBul/needlesim/internal/timeutil"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)

	var foreignKeys int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	assert.Equal(t, 1, foreignKeys)
}

func TestMigrations(t *testing.T) {
	db := newTestDB(t)

	latest, err := LatestMigration()
	require.NoError(t, err)
	assert.Equal(t, uint(3), latest)

	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, latest, version)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateDown())
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	var n int
	require.NoError(t, db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='puncture_events'`).Scan(&n))
	assert.Zero(t, n)

	require.NoError(t, db.MigrateUp())
	require.NoError(t, db.MigrateUp(), "already at latest")
	version, _, err = db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, latest, version)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	db, err := NewDB(path)
	require.NoError(t, err)
	rec := NewRecorder(db, nil, 0)
	require.NoError(t, rec.SessionStarted(pipeline.Info{ID: "a", Started: time.Unix(100, 0), ForceModel: "karnopp"}))
	require.NoError(t, db.Close())

	db, err = NewDB(path)
	require.NoError(t, err)
	defer db.Close()
	sessions, err := db.Sessions(0)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "karnopp", sessions[0].ForceModel)
	assert.Nil(t, sessions[0].Ended)
}

func replay(t *testing.T, db *DB, every uint64) (*pipeline.Session, *Recorder) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	rec := NewRecorder(db, clock, every)
	cfg := config.EmptyNeedleConfig()
	p := sim.NewPhantom(sim.DefaultScenario(), cfg.GetScene())
	sess := pipeline.NewSession(pipeline.SessionConfig{
		Scene:     p,
		Config:    cfg,
		Clock:     clock,
		Sinks:     []pipeline.TickSink{rec},
		Observers: []puncture.Observer{rec},
		NewID:     func() string { return "run-1" },
	})
	require.NoError(t, sess.Start())
	for p.Step() {
		_, err := sess.Tick()
		require.NoError(t, err)
		clock.Advance(5 * time.Millisecond)
	}
	require.NoError(t, sess.End())
	return sess, rec
}

func TestRecorderReplay(t *testing.T) {
	db := newTestDB(t)
	sess, _ := replay(t, db, 0)
	info := sess.Info()

	sessions, err := db.Sessions(10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "run-1", sessions[0].ID)
	assert.Equal(t, info.Ticks, sessions[0].Ticks)
	assert.Equal(t, "kelvin-voigt", sessions[0].ForceModel)
	require.NotNil(t, sessions[0].Ended)
	assert.True(t, sessions[0].Ended.After(sessions[0].Started))

	ticks, err := db.Ticks("run-1")
	require.NoError(t, err)
	require.Len(t, ticks, int(info.Ticks))
	maxLayers := 0
	for i, tk := range ticks {
		assert.Equal(t, uint64(i+1), tk.Seq)
		if tk.Layers > maxLayers {
			maxLayers = tk.Layers
		}
		if tk.Layers == 0 {
			assert.Zero(t, tk.FullPenetration)
		}
	}
	assert.Equal(t, 4, maxLayers)

	events, err := db.PunctureEvents("run-1")
	require.NoError(t, err)
	var got []string
	for _, e := range events {
		got = append(got, e.Kind+":"+e.Tissue)
	}
	assert.Equal(t, []string{
		"entry:Fat", "entry:muscle", "entry:lung", "entry:bronchus",
		"exit:bronchus", "exit:lung", "exit:muscle", "exit:Fat",
	}, got)
	assert.Equal(t, 3, events[3].Depth)
}

func TestRecorderStride(t *testing.T) {
	db := newTestDB(t)
	sess, _ := replay(t, db, 10)

	ticks, err := db.Ticks("run-1")
	require.NoError(t, err)
	assert.Len(t, ticks, int(sess.Info().Ticks/10))
	for _, tk := range ticks {
		assert.Zero(t, tk.Seq%10)
	}
}

func TestRecorderTickWithoutSession(t *testing.T) {
	db := newTestDB(t)
	rec := NewRecorder(db, nil, 1)

	err := rec.PublishTick(&pipeline.TickResult{SessionID: "ghost", Seq: 1})
	assert.Error(t, err, "foreign key rejects unknown session")
}

func TestPunctureEventWithoutSession(t *testing.T) {
	var logs []string
	prev := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logs = append(logs, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.SetLogger(prev) })

	db := newTestDB(t)
	rec := NewRecorder(db, nil, 1)
	rec.PunctureEvent(puncture.Event{Kind: puncture.Entry, Layer: puncture.Puncture{Name: "Fat"}})

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM puncture_events`).Scan(&n))
	assert.Zero(t, n)
	require.NotEmpty(t, logs)
	assert.True(t, strings.Contains(logs[len(logs)-1], "no session started"))
}
