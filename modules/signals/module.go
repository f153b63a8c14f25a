// Package signals provides nodes that build, cut and combine signals, derive
// and combine their triggers, and process their spatial channel lazily.
package signals

import (
	"context"
	"fmt"

	"github.com/vk/detflow/internal/ctxlog"
	"github.com/vk/detflow/internal/lao"
	"github.com/vk/detflow/internal/ndarray"
	"github.com/vk/detflow/internal/node"
	"github.com/vk/detflow/internal/porttype"
	"github.com/vk/detflow/internal/registry"
	"github.com/vk/detflow/internal/signal"
	"github.com/vk/detflow/internal/slicealg"
)

// Namespace is the schema namespace of every node in this package.
const Namespace = "signals"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Make assembles a signal from its channels.
func Make(ctx context.Context, in *node.Inputs, _ node.Constants, _ node.Namespace) (node.Outputs, error) {
	space, err := node.Get[lao.Array](in, "space")
	if err != nil {
		return nil, err
	}
	time, err := node.Get[lao.Array](in, "time")
	if err != nil {
		return nil, err
	}
	trigger, _, err := node.GetOptional[lao.Array](in, "trigger")
	if err != nil {
		return nil, err
	}
	sig, err := signal.New(ctx, space, time, trigger)
	if err != nil {
		return nil, err
	}
	return node.Outputs{"signal": sig}, nil
}

// Split exposes the channels of a signal. trigger is nil when absent.
func Split(_ context.Context, in *node.Inputs, _ node.Constants, _ node.Namespace) (node.Outputs, error) {
	sig, err := node.Get[*signal.Signal](in, "signal")
	if err != nil {
		return nil, err
	}
	out := node.Outputs{"space": sig.Space(), "time": sig.Time(), "trigger": nil}
	if sig.HasTrigger() {
		out["trigger"] = sig.Trigger()
	}
	return out, nil
}

// Cut keeps the records in [start, stop). A null stop means the end.
func Cut(ctx context.Context, in *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	sig, err := node.Get[*signal.Signal](in, "signal")
	if err != nil {
		return nil, err
	}
	var s slicealg.Slice
	if c.Has("start") {
		start, err := c.Int("start")
		if err != nil {
			return nil, err
		}
		s.Start = &start
	}
	if c.Has("stop") {
		stop, err := c.Int("stop")
		if err != nil {
			return nil, err
		}
		s.Stop = &stop
	}
	cut, err := sig.Index(ctx, slicealg.Desc(slicealg.FromSlice(s)))
	if err != nil {
		return nil, err
	}
	return node.Outputs{"signal": cut}, nil
}

// Extend appends b after a.
func Extend(ctx context.Context, in *node.Inputs, _ node.Constants, _ node.Namespace) (node.Outputs, error) {
	a, err := node.Get[*signal.Signal](in, "a")
	if err != nil {
		return nil, err
	}
	b, err := node.Get[*signal.Signal](in, "b")
	if err != nil {
		return nil, err
	}
	out, err := a.Extend(ctx, b)
	if err != nil {
		return nil, err
	}
	return node.Outputs{"signal": out}, nil
}

// Retime replaces the time channel.
func Retime(ctx context.Context, in *node.Inputs, _ node.Constants, _ node.Namespace) (node.Outputs, error) {
	sig, err := node.Get[*signal.Signal](in, "signal")
	if err != nil {
		return nil, err
	}
	time, err := node.Get[lao.Array](in, "time")
	if err != nil {
		return nil, err
	}
	out, err := sig.WithTime(ctx, time)
	if err != nil {
		return nil, err
	}
	return node.Outputs{"signal": out}, nil
}

// ExchangeTrigger gives main the trigger of provider.
func ExchangeTrigger(ctx context.Context, in *node.Inputs, _ node.Constants, _ node.Namespace) (node.Outputs, error) {
	primary, err := node.Get[*signal.Signal](in, "main")
	if err != nil {
		return nil, err
	}
	provider, err := node.Get[*signal.Signal](in, "provider")
	if err != nil {
		return nil, err
	}
	if !provider.HasTrigger() {
		return nil, fmt.Errorf("provider signal has no trigger")
	}
	out, err := primary.WithTrigger(ctx, provider.Trigger())
	if err != nil {
		return nil, err
	}
	return node.Outputs{"signal": out}, nil
}

// Mean scans the spatial channel chunk by chunk and reports the mean of
// every record and of the whole signal. Cancellation is checked between
// chunks.
func Mean(ctx context.Context, in *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	logger := ctxlog.FromContext(ctx)
	sig, err := node.Get[*signal.Signal](in, "signal")
	if err != nil {
		return nil, err
	}
	chunk, err := c.Int("chunk")
	if err != nil {
		return nil, err
	}
	if chunk < 1 {
		return nil, fmt.Errorf("chunk must be positive, got %d", chunk)
	}

	n := sig.Len()
	trace := make([]float64, 0, n)
	for start := 0; start < n; start += chunk {
		if err := ctx.Err(); err != nil {
			logger.Warn("Mean scan cancelled.", "done", start, "total", n)
			return nil, err
		}
		stop := min(start+chunk, n)
		block, err := sig.Space().RequestData(ctx, slicealg.Desc(slicealg.Range(start, stop)))
		if err != nil {
			return nil, err
		}
		trace = append(trace, recordMeans(block)...)
		logger.Debug("Mean scan progress.", "done", stop, "total", n)
	}

	var total float64
	for _, v := range trace {
		total += v
	}
	mean := 0.0
	if n > 0 {
		mean = total / float64(n)
	}
	arr, err := ndarray.New(slicealg.Shape{n}, trace)
	if err != nil {
		return nil, err
	}
	return node.Outputs{"trace": lao.Array(lao.NewMemory(arr)), "mean": mean}, nil
}

func recordMeans(block *ndarray.Array) []float64 {
	shape := block.Shape()
	records := shape[0]
	size := slicealg.Shape(shape[1:]).Size()
	data := block.Data()
	out := make([]float64, records)
	if size == 0 {
		return out
	}
	for i := range out {
		var sum float64
		for _, v := range data[i*size : (i+1)*size] {
			sum += v
		}
		out[i] = sum / float64(size)
	}
	return out
}

// SelectDetector publishes a signal in the run namespace under key.
func SelectDetector(ctx context.Context, in *node.Inputs, c node.Constants, ns node.Namespace) (node.Outputs, error) {
	sig, err := node.Get[*signal.Signal](in, "signal")
	if err != nil {
		return nil, err
	}
	key, err := c.String("key")
	if err != nil {
		return nil, err
	}
	ns[key] = sig
	ctxlog.FromContext(ctx).Info("Detector signal selected.", "key", key, "records", sig.Len())
	return nil, nil
}

// Register registers the node types with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Register(node.NewSchema(Namespace, "Make").
		Describe("Builds a signal from space, time and an optional trigger.").
		Input("space", porttype.Array).
		Input("time", porttype.Array).
		OptionalInput("trigger", porttype.Array).
		Output("signal", porttype.Signal).
		Compute(Make).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "Split").
		Describe("Exposes the channels of a signal.").
		Input("signal", porttype.Signal).
		Output("space", porttype.Array).
		Output("time", porttype.Array).
		Output("trigger", porttype.Array).
		Compute(Split).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "Cut").
		Describe("Keeps records [start, stop).").
		Input("signal", porttype.Signal).
		Output("signal", porttype.Signal).
		Constant("start", porttype.Int, 0, node.External(), node.OptionalConstant()).
		Constant("stop", porttype.Int, nil, node.External(), node.OptionalConstant()).
		Compute(Cut).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "Extend").
		Describe("Appends signal b after signal a.").
		Input("a", porttype.Signal).
		Input("b", porttype.Signal).
		Output("signal", porttype.Signal).
		Compute(Extend).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "Retime").
		Describe("Replaces the time channel of a signal.").
		Input("signal", porttype.Signal).
		Input("time", porttype.Array).
		Output("signal", porttype.Signal).
		Compute(Retime).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "ExchangeTrigger").
		Describe("Gives a signal the trigger of another.").
		Input("main", porttype.Signal).
		Input("provider", porttype.Signal).
		Output("signal", porttype.Signal).
		Compute(ExchangeTrigger).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "Mean").
		Describe("Per-record and overall mean of the spatial channel.").
		Input("signal", porttype.Signal).
		Output("trace", porttype.Array).
		Output("mean", porttype.Float).
		Constant("chunk", porttype.Int, 64).
		Compute(Mean).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "SelectDetector").
		Describe("Publishes a signal to the run namespace.").
		Input("signal", porttype.Signal).
		Constant("key", porttype.String, "detector").
		Final().
		Compute(SelectDetector).
		MustBuild())

	registerTriggers(r)
	registerProcessing(r)
}
