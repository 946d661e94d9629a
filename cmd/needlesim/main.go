// Command needlesim replays a synthetic layered phantom through the needle
// puncture pipeline, records the session and serves it over HTTP.
//
// With -ctl it instead acts as a client of a running needlesim monitor.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PeterBul/needlesim/internal/config"
	"github.com/PeterBul/needlesim/internal/monitor"
	"github.com/PeterBul/needlesim/internal/monitoring"
	"github.com/PeterBul/needlesim/internal/needle"
	"github.com/PeterBul/needlesim/internal/version"
)

var (
	configFile   = flag.String("config", config.DefaultConfigPath, "Needle configuration JSON")
	scenarioFile = flag.String("scenario", "", "Phantom scenario JSON (built-in default when empty)")
	listen       = flag.String("listen", "", "Monitor listen address (overrides config; \"-\" disables)")
	dbPath       = flag.String("db", "", "Session database path (overrides config; \"-\" disables recording)")
	recordEvery  = flag.Uint64("record-every", 1, "Record every n-th tick")
	realtime     = flag.Bool("realtime", false, "Pace ticks at the scenario step instead of replaying at full speed")
	stay         = flag.Bool("stay", false, "Keep serving the monitor after the replay until interrupted")
	scriptFile   = flag.String("script", "", "Starlark script run against the session before the replay")
	archiveDir   = flag.String("archive-dir", "", "Export the recorded session to this directory")
	archiveS3    = flag.Bool("archive-s3", false, "Export the recorded session to S3 (NEEDLESIM_ARCHIVE_S3_* env)")
	logJSON      = flag.String("log-json", "", "Also write JSON logs to this file")
	logLevel     = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	trace        = flag.Bool("trace", false, "Log per-tick values")

	ctlURL       = flag.String("ctl", "", "Monitor URL to control instead of running a replay")
	setThreshold = flag.Float64("set-threshold", 0, "With -ctl: set the constant puncture threshold (any finite value)")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	os.Exit(realMain())
}

// realMain returns the process exit code so deferred cleanup (signal
// handling, the JSON log file) runs before exit.
func realMain() int {
	if *showVersion {
		fmt.Println(version.String())
		return 0
	}

	logger, closeLog, err := setupLogging(*logLevel, *logJSON, *trace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		return 2
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *ctlURL != "" {
		var threshold *float64
		if flagSet("set-threshold") {
			threshold = setThreshold
		}
		if err := runCtl(ctx, monitor.NewClient(*ctlURL, nil), threshold, os.Stdout); err != nil {
			logger.Error("ctl failed", "err", err)
			return 1
		}
		return 0
	}

	cfg, err := config.LoadNeedleConfig(*configFile)
	if err != nil {
		logger.Error("config", "path", *configFile, "err", err)
		return 1
	}

	opts := runOptions{
		Config:      cfg,
		Scenario:    *scenarioFile,
		Listen:      pick(*listen, cfg.GetListen()),
		DBPath:      pick(*dbPath, cfg.GetDBPath()),
		RecordEvery: *recordEvery,
		Realtime:    *realtime,
		Stay:        *stay,
		Script:      *scriptFile,
		ArchiveDir:  *archiveDir,
		ArchiveS3:   *archiveS3,
		ScriptOut:   func(msg string) { logger.Info("script", "msg", msg) },
	}
	if err := run(ctx, opts); err != nil {
		logger.Error("needlesim failed", "err", err)
		return 1
	}
	log.Printf("Graceful shutdown complete")
	return 0
}

// flagSet reports whether the named flag was given on the command line.
func flagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// pick returns flagValue when set, fallback otherwise. "-" disables.
func pick(flagValue, fallback string) string {
	switch flagValue {
	case "":
		return fallback
	case "-":
		return ""
	default:
		return flagValue
	}
}

// setupLogging routes the standard logger, monitoring.Logf and the needle
// streams through one slog fan-out. The needle diag stream (model
// fallbacks, failed host queries) logs at Warn so it shows at the default
// level; the trace stream needs -trace.
func setupLogging(level, jsonPath string, trace bool) (*slog.Logger, func(), error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("invalid -log-level %q", level)
	}
	monitoring.Level.Set(lvl)

	opts := monitoring.LoggerOptions{Terminal: os.Stderr}
	closer := func() {}
	if jsonPath != "" {
		f, err := os.OpenFile(jsonPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		opts.JSON = f
		closer = func() { f.Close() }
	}
	logger := monitoring.NewLogger(opts)

	log.SetFlags(0)
	log.SetOutput(monitoring.Writer(logger, slog.LevelInfo))
	monitoring.SetLogger(monitoring.Logfunc(logger))

	writers := needle.LogWriters{
		Ops:  monitoring.Writer(logger, slog.LevelInfo),
		Diag: monitoring.Writer(logger, slog.LevelWarn),
	}
	if trace {
		monitoring.Level.Set(slog.LevelDebug)
		writers.Trace = monitoring.Writer(logger, slog.LevelDebug)
	}
	needle.SetLogWriters(writers)
	return logger, closer, nil
}

// runCtl prints the monitor status and state, setting the puncture
// threshold first when one is given.
func runCtl(ctx context.Context, c *monitor.Client, threshold *float64, out io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if threshold != nil {
		if err := c.SetPunctureThreshold(ctx, *threshold); err != nil {
			return fmt.Errorf("set threshold: %w", err)
		}
	}
	status, err := c.Status(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	state, err := c.State(ctx)
	if err != nil {
		return fmt.Errorf("state: %w", err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{"status": status, "state": state})
}
