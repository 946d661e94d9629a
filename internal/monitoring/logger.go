package monitoring

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"
	"sync"

	slogmulti "github.com/samber/slog-multi"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Level is shared by every logger built with NewLogger so the CLI can
// change verbosity after construction.
var Level = new(slog.LevelVar)

// LoggerOptions selects the outputs of NewLogger. A nil writer disables the
// corresponding handler.
type LoggerOptions struct {
	Terminal io.Writer // human-readable text
	JSON     io.Writer // machine-readable, one object per line
}

// NewLogger returns a structured logger that fans every record out to the
// configured outputs. With no outputs it discards everything.
func NewLogger(opts LoggerOptions) *slog.Logger {
	var handlers []slog.Handler
	if opts.Terminal != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.Terminal, &slog.HandlerOptions{Level: Level}))
	}
	if opts.JSON != nil {
		handlers = append(handlers, slog.NewJSONHandler(opts.JSON, &slog.HandlerOptions{Level: Level}))
	}
	return slog.New(slogmulti.Fanout(handlers...))
}

// Writer adapts a slog.Logger into an io.Writer so it can back a
// log.Logger stream. Each complete line becomes one record at the given
// level with the text as its message.
func Writer(logger *slog.Logger, level slog.Level) io.Writer {
	return &lineWriter{logger: logger, level: level}
}

type lineWriter struct {
	mu     sync.Mutex
	logger *slog.Logger
	level  slog.Level
	buf    bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// partial line, keep it for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		if msg := strings.TrimRight(line, "\r\n"); msg != "" {
			w.logger.Log(context.Background(), w.level, msg)
		}
	}
	return len(p), nil
}

// Logfunc returns a Logf-compatible function writing Info records to logger.
func Logfunc(logger *slog.Logger) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		logger.Info(strings.TrimRight(sprintf(format, v...), "\n"))
	}
}

func sprintf(format string, v ...interface{}) string {
	if len(v) == 0 {
		return format
	}
	return fmt.Sprintf(format, v...)
}
