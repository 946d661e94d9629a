// Package commands is the host-facing command surface: sensor data queries
// and runtime puncture threshold changes, callable from Go, from Starlark
// scripts and over HTTP.
package commands

import (
	"fmt"
	"math"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PeterBul/needlesim/internal/host"
	"github.com/PeterBul/needlesim/internal/needle"
	"github.com/PeterBul/needlesim/internal/needle/pipeline"
)

// Command names as registered with the host.
const (
	CmdGetSensorData        = "getSensorData"
	CmdSetPunctureThreshold = "setPunctureThreshold"
)

// SensorCount is the number of addressable sensors; valid indices are
// [0, SensorCount).
const SensorCount = 10

// Minimum table sizes accepted by getSensorData.
const (
	MinFloatParams = 3
	MinIntParams   = 2
)

// SensorData is the result of GetSensorData.
type SensorData struct {
	Result   int        `json:"result"`
	Data     [3]float64 `json:"data"`
	Distance float64    `json:"distance"`
}

// Session is the part of pipeline.Session the commands drive.
type Session interface {
	SetPunctureThreshold(threshold float64)
	Snapshot() *pipeline.Snapshot
}

// Commands validates arguments, reports failures to the host status sink and
// forwards valid calls to the session.
type Commands struct {
	session Session
	status  host.StatusSink
}

// New returns the command surface. status may be nil.
func New(session Session, statusSink host.StatusSink) *Commands {
	return &Commands{session: session, status: statusSink}
}

// fail reports msg to the host and returns it as a status error. Nothing
// has been mutated when fail is called.
func (c *Commands) fail(command string, code codes.Code, msg string) error {
	if c.status != nil {
		c.status.SetLastError(command, msg)
	}
	needle.Diagf("command %s: %s", command, msg)
	return status.Error(code, msg)
}

// GetSensorData returns the fixed reading of sensor index. floats must hold
// at least MinFloatParams values and ints at least MinIntParams.
func (c *Commands) GetSensorData(index int, floats []float64, ints []int) (SensorData, error) {
	if len(floats) < MinFloatParams {
		return SensorData{}, c.fail(CmdGetSensorData, codes.InvalidArgument,
			fmt.Sprintf("float table needs at least %d values, got %d.", MinFloatParams, len(floats)))
	}
	if len(ints) < MinIntParams {
		return SensorData{}, c.fail(CmdGetSensorData, codes.InvalidArgument,
			fmt.Sprintf("int table needs at least %d values, got %d.", MinIntParams, len(ints)))
	}
	if index < 0 || index >= SensorCount {
		return SensorData{}, c.fail(CmdGetSensorData, codes.InvalidArgument, "Invalid sensor index.")
	}
	return SensorData{
		Result:   1,
		Data:     [3]float64{1, 2, 3},
		Distance: 59,
	}, nil
}

// SetPunctureThreshold overwrites the constant puncture threshold with any
// finite value. A negative threshold makes every qualifying contact
// puncture.
func (c *Commands) SetPunctureThreshold(threshold float64) error {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return c.fail(CmdSetPunctureThreshold, codes.InvalidArgument,
			fmt.Sprintf("threshold must be a finite number, got %v.", threshold))
	}
	c.session.SetPunctureThreshold(threshold)
	return nil
}

// State returns the session snapshot.
func (c *Commands) State() *pipeline.Snapshot {
	return c.session.Snapshot()
}
