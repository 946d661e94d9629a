package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/PeterBul/needlesim/internal/archive"
	"github.com/PeterBul/needlesim/internal/config"
	"github.com/PeterBul/needlesim/internal/db"
	"github.com/PeterBul/needlesim/internal/monitor"
	"github.com/PeterBul/needlesim/internal/needle/commands"
	"github.com/PeterBul/needlesim/internal/needle/pipeline"
	"github.com/PeterBul/needlesim/internal/needle/puncture"
	"github.com/PeterBul/needlesim/internal/needle/sim"
	"github.com/PeterBul/needlesim/internal/needle/telemetry"
	"github.com/PeterBul/needlesim/internal/timeutil"
)

type runOptions struct {
	Config      *config.NeedleConfig
	Scenario    string // empty selects sim.DefaultScenario
	Listen      string // empty disables the monitor
	DBPath      string // empty disables recording
	RecordEvery uint64
	Realtime    bool
	Stay        bool
	Script      string
	ScriptOut   func(string)
	ArchiveDir  string
	ArchiveS3   bool

	// Clock overrides the session clock; tests pin it.
	Clock timeutil.Clock
	// started is called once the session is running, before the replay.
	started func(*pipeline.Session)
}

// runResult summarises a replay for callers and tests.
type runResult struct {
	SessionID string
	Ticks     uint64
	Entries   int
	Exits     int
	Archived  []string
}

func loadScenario(path string) (*sim.Scenario, error) {
	if path == "" {
		return sim.DefaultScenario(), nil
	}
	return sim.LoadScenario(path)
}

func run(ctx context.Context, opts runOptions) error {
	res, err := replay(ctx, opts)
	if err != nil {
		return err
	}
	log.Printf("session %s: %d ticks, %d entries, %d exits, %d archived",
		res.SessionID, res.Ticks, res.Entries, res.Exits, len(res.Archived))
	return nil
}

// replay runs one scenario through a session wired to every sink, serving
// the monitor while it runs.
func replay(ctx context.Context, opts runOptions) (runResult, error) {
	var res runResult
	cfg := opts.Config
	if cfg == nil {
		cfg = config.EmptyNeedleConfig()
	}
	scenario, err := loadScenario(opts.Scenario)
	if err != nil {
		return res, err
	}
	phantom := sim.NewPhantom(scenario, cfg.GetScene())

	clock := opts.Clock
	if clock == nil {
		if opts.Realtime {
			clock = timeutil.RealClock{}
		} else {
			clock = timeutil.NewMockClock(time.Now())
		}
	}

	metrics := telemetry.NewMetrics()
	sinks := []pipeline.TickSink{telemetry.NewGraphPublisher(phantom), metrics}
	var counts eventCounter
	observers := []puncture.Observer{metrics, &counts}

	var store *db.DB
	if opts.DBPath != "" {
		store, err = db.NewDB(opts.DBPath)
		if err != nil {
			return res, fmt.Errorf("open session database: %w", err)
		}
		defer store.Close()
		rec := db.NewRecorder(store, clock, opts.RecordEvery)
		sinks = append(sinks, rec)
		observers = append(observers, rec)
	}

	session := pipeline.NewSession(pipeline.SessionConfig{
		Scene:     phantom,
		Config:    cfg,
		Clock:     clock,
		Sinks:     sinks,
		Observers: observers,
	})
	cmds := commands.New(session, phantom)

	srvCtx, stopServer := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		stopServer()
		wg.Wait()
	}()
	if opts.Listen != "" {
		ws := monitor.NewWebServer(monitor.WebServerConfig{
			Address:  opts.Listen,
			Commands: cmds,
			DB:       store,
			Metrics:  metrics.Handler(),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(srvCtx); err != nil {
				log.Printf("monitor: %v", err)
			}
		}()
	}

	if err := session.Start(); err != nil {
		return res, fmt.Errorf("start session: %w", err)
	}
	res.SessionID = session.Info().ID
	if opts.started != nil {
		opts.started(session)
	}

	if opts.Script != "" {
		out := opts.ScriptOut
		if out == nil {
			out = func(msg string) { log.Print(msg) }
		}
		if _, err := cmds.RunScript(ctx, opts.Script, nil, out); err != nil {
			session.End()
			return res, fmt.Errorf("script %s: %w", opts.Script, err)
		}
	}

	tickErr := drive(ctx, phantom, session, clock, opts.Realtime)
	endErr := session.End()
	res.Ticks = session.Info().Ticks
	res.Entries, res.Exits = counts.totals()
	if err := errors.Join(tickErr, endErr); err != nil && !errors.Is(err, context.Canceled) {
		return res, err
	}

	if store != nil && (opts.ArchiveDir != "" || opts.ArchiveS3) {
		res.Archived, err = exportSession(ctx, store, res.SessionID, opts)
		if err != nil {
			return res, fmt.Errorf("archive: %w", err)
		}
	}

	if opts.Stay && opts.Listen != "" {
		log.Printf("replay finished; serving monitor on %s until interrupted", opts.Listen)
		<-ctx.Done()
	}
	return res, nil
}

// drive steps the phantom and ticks the session until the scenario ends or
// ctx is cancelled. Replays advance a mock clock by one step per tick;
// realtime runs wait for a ticker.
func drive(ctx context.Context, p *sim.Phantom, s *pipeline.Session, clock timeutil.Clock, realtime bool) error {
	step := time.Duration(p.Scenario().Step * float64(time.Second))
	var ticker timeutil.Ticker
	if realtime {
		ticker = clock.NewTicker(step)
		defer ticker.Stop()
	}
	mock, _ := clock.(*timeutil.MockClock)

	for p.Step() {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C():
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.Tick(); err != nil {
			return err
		}
		if mock != nil {
			mock.Advance(step)
		}
	}
	return nil
}

func exportSession(ctx context.Context, store *db.DB, sessionID string, opts runOptions) ([]string, error) {
	var keys []string
	if opts.ArchiveDir != "" {
		fs, err := archive.NewFileStore(opts.ArchiveDir)
		if err != nil {
			return nil, err
		}
		k, err := archive.NewExporter(store, fs).Export(ctx, sessionID)
		if err != nil {
			return keys, err
		}
		keys = append(keys, k...)
	}
	if opts.ArchiveS3 {
		s3cfg, err := archive.S3ConfigFromEnv()
		if err != nil {
			return keys, err
		}
		s3store, err := archive.NewS3Store(ctx, s3cfg)
		if err != nil {
			return keys, err
		}
		k, err := archive.NewExporter(store, s3store).Export(ctx, sessionID)
		if err != nil {
			return keys, err
		}
		keys = append(keys, k...)
	}
	return keys, nil
}

// eventCounter tallies puncture transitions.
type eventCounter struct {
	mu             sync.Mutex
	entries, exits int
}

func (c *eventCounter) PunctureEvent(e puncture.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch e.Kind {
	case puncture.Entry:
		c.entries++
	case puncture.Exit:
		c.exits++
	}
}

func (c *eventCounter) totals() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries, c.exits
}
