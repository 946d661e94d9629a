// Package monitor serves the live needle session over HTTP: JSON state,
// the puncture threshold command, recorded-session charts and metrics.
package monitor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/PeterBul/needlesim/internal/db"
	"github.com/PeterBul/needlesim/internal/httputil"
	"github.com/PeterBul/needlesim/internal/monitoring"
	"github.com/PeterBul/needlesim/internal/needle/commands"
)

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 2 * time.Second

// WebServerConfig wires the server to the running session. DB and Metrics
// are optional; their routes answer 503 when absent. With a DB the
// /debug/ admin pages (SQL console, backup) are mounted too.
type WebServerConfig struct {
	Address  string
	Commands *commands.Commands
	DB       *db.DB
	Metrics  http.Handler
}

// WebServer is the monitor HTTP server.
type WebServer struct {
	address  string
	commands *commands.Commands
	db       *db.DB
	metrics  http.Handler
	server   *http.Server
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:  config.Address,
		commands: config.Commands,
		db:       config.DB,
		metrics:  config.Metrics,
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           ws.setupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// Handler returns the route multiplexer.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// Start serves until ctx is cancelled, then shuts down gracefully. It returns
// early with the listen error if the address cannot be bound.
func (ws *WebServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ws.address)
	if err != nil {
		return err
	}
	return ws.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (ws *WebServer) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("Starting HTTP server on %s", ln.Addr())
		if err := ws.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	monitoring.Logf("HTTP server routine stopped")
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/state", ws.handleState)
	mux.HandleFunc("/api/puncture-threshold", ws.handlePunctureThreshold)
	mux.HandleFunc("/api/sensor-data", ws.handleSensorData)
	mux.HandleFunc("/api/sessions", ws.handleSessions)
	mux.HandleFunc("/api/sessions/ticks", ws.handleSessionTicks)
	mux.HandleFunc("/api/sessions/events", ws.handleSessionEvents)
	mux.HandleFunc("/charts/session", ws.handleSessionChart)
	mux.HandleFunc("/plots/session.png", ws.handleSessionPlot)
	if ws.metrics != nil {
		mux.Handle("/metrics", ws.metrics)
	}
	if ws.db != nil {
		if err := ws.db.AttachAdminRoutes(mux); err != nil {
			monitoring.Logf("monitor: admin routes disabled: %v", err)
		}
	}
	return mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}

// requireMethod answers 405 and reports false when r is not method.
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		httputil.MethodNotAllowed(w)
		return false
	}
	return true
}
