package commands

import (
	"context"
	"fmt"

	"go.starlark.net/starlark"
	"google.golang.org/grpc/codes"

	"github.com/PeterBul/needlesim/internal/needle/pipeline"
)

// Builtins returns the commands as Starlark builtins:
//
//	result, data, distance = getSensorData(index, floats, ints)
//	setPunctureThreshold(threshold)
//	s = state()
func (c *Commands) Builtins() starlark.StringDict {
	return starlark.StringDict{
		CmdGetSensorData:        starlark.NewBuiltin(CmdGetSensorData, c.starlarkGetSensorData),
		CmdSetPunctureThreshold: starlark.NewBuiltin(CmdSetPunctureThreshold, c.starlarkSetPunctureThreshold),
		"state":                 starlark.NewBuiltin("state", c.starlarkState),
	}
}

// RunScript executes a Starlark script with the command builtins
// predeclared. print output goes to out; cancelling ctx stops the script.
func (c *Commands) RunScript(ctx context.Context, filename string, src interface{}, out func(string)) (starlark.StringDict, error) {
	thread := &starlark.Thread{
		Name: filename,
		Print: func(_ *starlark.Thread, msg string) {
			if out != nil {
				out(msg)
			}
		},
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()
	return starlark.ExecFile(thread, filename, src, c.Builtins())
}

func (c *Commands) starlarkGetSensorData(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		index  int
		floats starlark.Value
		ints   starlark.Value
	)
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 3, &index, &floats, &ints); err != nil {
		return nil, c.fail(CmdGetSensorData, codes.InvalidArgument, err.Error())
	}
	fs, err := floatList(floats)
	if err != nil {
		return nil, c.fail(CmdGetSensorData, codes.InvalidArgument, "floats: "+err.Error())
	}
	is, err := intList(ints)
	if err != nil {
		return nil, c.fail(CmdGetSensorData, codes.InvalidArgument, "ints: "+err.Error())
	}

	data, err := c.GetSensorData(index, fs, is)
	if err != nil {
		return nil, err
	}
	return starlark.Tuple{
		starlark.MakeInt(data.Result),
		starlark.NewList([]starlark.Value{
			starlark.Float(data.Data[0]),
			starlark.Float(data.Data[1]),
			starlark.Float(data.Data[2]),
		}),
		starlark.Float(data.Distance),
	}, nil
}

func (c *Commands) starlarkSetPunctureThreshold(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &v); err != nil {
		return nil, c.fail(CmdSetPunctureThreshold, codes.InvalidArgument, err.Error())
	}
	threshold, ok := starlark.AsFloat(v)
	if !ok {
		return nil, c.fail(CmdSetPunctureThreshold, codes.InvalidArgument,
			fmt.Sprintf("threshold must be a number, got %s.", v.Type()))
	}
	if err := c.SetPunctureThreshold(threshold); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func (c *Commands) starlarkState(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return snapshotValue(c.State()), nil
}

func floatList(v starlark.Value) ([]float64, error) {
	it, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("got %s, want list", v.Type())
	}
	iter := it.Iterate()
	defer iter.Done()
	var out []float64
	var x starlark.Value
	for iter.Next(&x) {
		f, ok := starlark.AsFloat(x)
		if !ok {
			return nil, fmt.Errorf("got %s element, want number", x.Type())
		}
		out = append(out, f)
	}
	return out, nil
}

func intList(v starlark.Value) ([]int, error) {
	it, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("got %s, want list", v.Type())
	}
	iter := it.Iterate()
	defer iter.Done()
	var out []int
	var x starlark.Value
	for iter.Next(&x) {
		n, err := starlark.AsInt32(x)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func vecValue(v [3]float64) starlark.Value {
	return starlark.NewList([]starlark.Value{
		starlark.Float(v[0]), starlark.Float(v[1]), starlark.Float(v[2]),
	})
}

// snapshotValue converts a snapshot to a dict keyed like its JSON form.
func snapshotValue(s *pipeline.Snapshot) starlark.Value {
	d := starlark.NewDict(16)
	set := func(k string, v starlark.Value) { _ = d.SetKey(starlark.String(k), v) }

	set("session_id", starlark.String(s.SessionID))
	set("running", starlark.Bool(s.Running))
	set("seq", starlark.MakeUint64(s.Seq))
	set("tip_position", vecValue(s.TipPosition))
	set("speed", starlark.Float(s.Speed))
	layers := make([]starlark.Value, 0, len(s.Layers))
	for _, l := range s.Layers {
		ld := starlark.NewDict(2)
		_ = ld.SetKey(starlark.String("name"), starlark.String(l.Name))
		_ = ld.SetKey(starlark.String("length"), starlark.Float(l.Length))
		layers = append(layers, ld)
	}
	set("layers", starlark.NewList(layers))
	set("full_penetration", starlark.Float(s.Cumulative))
	set("modeled_force", starlark.Float(s.Modeled))
	set("engine_force", starlark.Float(s.Engine))
	set("measured_force", starlark.Float(s.Magnitude))
	set("force_vector", vecValue(s.Vector))
	set("instrument_force", vecValue(s.InstrumentForce))
	set("virtual_fixture", starlark.Bool(s.VirtualFixture))
	set("force_model", starlark.String(s.ForceModel))
	set("constant_puncture_threshold", starlark.Bool(s.ConstantThreshold))
	set("puncture_threshold", starlark.Float(s.PunctureThreshold))
	return d
}
