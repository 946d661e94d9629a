package monitor

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/PeterBul/needlesim/internal/db"
	"github.com/PeterBul/needlesim/internal/httputil"
	"github.com/PeterBul/needlesim/internal/report"
	"github.com/PeterBul/needlesim/internal/version"
)

// StatusResponse is returned by /api/status.
type StatusResponse struct {
	Version   string `json:"version"`
	GitSHA    string `json:"git_sha"`
	BuildTime string `json:"build_time"`
	Running   bool   `json:"running"`
	SessionID string `json:"session_id,omitempty"`
	Seq       uint64 `json:"seq"`
}

// ThresholdRequest is the body of POST /api/puncture-threshold.
type ThresholdRequest struct {
	Threshold *float64 `json:"threshold"`
}

// SensorDataRequest is the body of POST /api/sensor-data.
type SensorDataRequest struct {
	Index  int       `json:"index"`
	Floats []float64 `json:"floats"`
	Ints   []int     `json:"ints"`
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	snap := ws.commands.State()
	httputil.WriteJSONOK(w, StatusResponse{
		Version:   version.Version,
		GitSHA:    version.GitSHA,
		BuildTime: version.BuildTime,
		Running:   snap.Running,
		SessionID: snap.SessionID,
		Seq:       snap.Seq,
	})
}

func (ws *WebServer) handleState(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSONOK(w, ws.commands.State())
}

// handlePunctureThreshold reads (GET) or replaces (POST) the constant
// puncture threshold.
func (ws *WebServer) handlePunctureThreshold(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snap := ws.commands.State()
		httputil.WriteJSONOK(w, map[string]interface{}{
			"threshold": snap.PunctureThreshold,
			"constant":  snap.ConstantThreshold,
		})
	case http.MethodPost:
		var req ThresholdRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if req.Threshold == nil {
			httputil.BadRequest(w, "threshold is required")
			return
		}
		if err := ws.commands.SetPunctureThreshold(*req.Threshold); err != nil {
			httputil.WriteStatusError(w, err)
			return
		}
		httputil.WriteJSONOK(w, map[string]float64{"threshold": *req.Threshold})
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (ws *WebServer) handleSensorData(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req SensorDataRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	data, err := ws.commands.GetSensorData(req.Index, req.Floats, req.Ints)
	if err != nil {
		httputil.WriteStatusError(w, err)
		return
	}
	httputil.WriteJSONOK(w, data)
}

// recordingDB answers 503 and reports nil when no recorder is configured.
func (ws *WebServer) recordingDB(w http.ResponseWriter) *db.DB {
	if ws.db == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "session recording disabled")
	}
	return ws.db
}

// sessionID returns the id query parameter, defaulting to the live session.
func (ws *WebServer) sessionID(r *http.Request) string {
	if id := r.URL.Query().Get("id"); id != "" {
		return id
	}
	return ws.commands.State().SessionID
}

func (ws *WebServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	store := ws.recordingDB(w)
	if store == nil {
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	sessions, err := store.Sessions(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if sessions == nil {
		sessions = []db.SessionRow{}
	}
	httputil.WriteJSONOK(w, sessions)
}

func (ws *WebServer) handleSessionTicks(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	ticks, ok := ws.loadTicks(w, r)
	if !ok {
		return
	}
	httputil.WriteJSONOK(w, ticks)
}

func (ws *WebServer) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	store := ws.recordingDB(w)
	if store == nil {
		return
	}
	id := ws.sessionID(r)
	if id == "" {
		httputil.BadRequest(w, "id is required when no session has started")
		return
	}
	events, err := store.PunctureEvents(id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if events == nil {
		events = []db.EventRow{}
	}
	httputil.WriteJSONOK(w, events)
}

func (ws *WebServer) loadTicks(w http.ResponseWriter, r *http.Request) ([]db.TickRow, bool) {
	store := ws.recordingDB(w)
	if store == nil {
		return nil, false
	}
	id := ws.sessionID(r)
	if id == "" {
		httputil.BadRequest(w, "id is required when no session has started")
		return nil, false
	}
	ticks, err := store.Ticks(id)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return nil, false
	}
	if ticks == nil {
		ticks = []db.TickRow{}
	}
	return ticks, true
}

func (ws *WebServer) handleSessionChart(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	ticks, ok := ws.loadTicks(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.WriteHTML(&buf, ticks, "needle session "+ws.sessionID(r)); err != nil {
		writeRenderError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (ws *WebServer) handleSessionPlot(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	ticks, ok := ws.loadTicks(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := report.WritePNG(&buf, ticks, "needle session "+ws.sessionID(r)); err != nil {
		writeRenderError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}

func writeRenderError(w http.ResponseWriter, err error) {
	if errors.Is(err, report.ErrNoTicks) {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.InternalServerError(w, "failed to render: "+err.Error())
}
