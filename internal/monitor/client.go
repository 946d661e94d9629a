package monitor

import (
	"context"
	"net/http"
	"strings"

	"github.com/PeterBul/needlesim/internal/httputil"
	"github.com/PeterBul/needlesim/internal/needle/commands"
	"github.com/PeterBul/needlesim/internal/needle/pipeline"
)

// Client talks to a running monitor.
type Client struct {
	base string
	http httputil.HTTPClient
}

// NewClient returns a client for the monitor at base (e.g.
// "http://localhost:8081"). A nil c uses http.DefaultClient.
func NewClient(base string, c httputil.HTTPClient) *Client {
	if c == nil {
		c = httputil.NewStandardClient(nil)
	}
	return &Client{base: strings.TrimRight(base, "/"), http: c}
}

func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	err := httputil.DoJSON(ctx, c.http, http.MethodGet, c.base+"/api/status", nil, &out)
	return out, err
}

func (c *Client) State(ctx context.Context) (*pipeline.Snapshot, error) {
	var out pipeline.Snapshot
	if err := httputil.DoJSON(ctx, c.http, http.MethodGet, c.base+"/api/state", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetPunctureThreshold(ctx context.Context, threshold float64) error {
	return httputil.DoJSON(ctx, c.http, http.MethodPost, c.base+"/api/puncture-threshold",
		ThresholdRequest{Threshold: &threshold}, nil)
}

func (c *Client) SensorData(ctx context.Context, req SensorDataRequest) (commands.SensorData, error) {
	var out commands.SensorData
	err := httputil.DoJSON(ctx, c.http, http.MethodPost, c.base+"/api/sensor-data", req, &out)
	return out, err
}
