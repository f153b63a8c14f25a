package signals

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/ctxlog"
	"github.com/vk/detflow/internal/lao"
	"github.com/vk/detflow/internal/node"
	"github.com/vk/detflow/internal/porttype"
	"github.com/vk/detflow/internal/registry"
	"github.com/vk/detflow/internal/signal"
	"github.com/vk/detflow/internal/slicealg"
)

// CutTime keeps the records whose time lies in a window given as durations
// such as "1.5s" or "2m". start counts from the first record, or from the
// last one when count_from_end is set, and end counts from start. Either
// bound may be omitted. An empty or inverted window keeps one record.
func CutTime(ctx context.Context, in *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	sig, err := node.Get[*signal.Signal](in, "signal")
	if err != nil {
		return nil, err
	}
	fromEnd, err := c.Bool("count_from_end")
	if err != nil {
		return nil, err
	}
	start, hasStart, err := durationConstant(c, "start")
	if err != nil {
		return nil, err
	}
	end, hasEnd, err := durationConstant(c, "end")
	if err != nil {
		return nil, err
	}
	if sig.Len() == 0 {
		return node.Outputs{"signal": sig}, nil
	}

	arr, err := lao.Materialize(ctx, sig.Time())
	if err != nil {
		return nil, err
	}
	times := arr.Data()
	n := len(times)
	origin := times[0]
	if fromEnd {
		origin = times[n-1]
	}

	lo, from := 0, times[0]
	if hasStart {
		from = origin + start
		lo = sort.SearchFloat64s(times, from)
	}
	hi := n
	if hasEnd {
		hi = sort.SearchFloat64s(times, from+end)
	}
	if hi <= lo {
		lo = min(lo, n-1)
		hi = lo + 1
	}
	ctxlog.FromContext(ctx).Debug("Time window resolved.", "first", lo, "stop", hi, "records", n)

	out, err := sig.Cut(ctx, lo, hi)
	if err != nil {
		return nil, err
	}
	return node.Outputs{"signal": out}, nil
}

// durationConstant reads an optional duration constant in seconds. An empty
// string counts as absent.
func durationConstant(c node.Constants, name string) (float64, bool, error) {
	if !c.Has(name) {
		return 0, false, nil
	}
	raw, err := c.String(name)
	if err != nil {
		return 0, false, err
	}
	if raw == "" {
		return 0, false, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %s: %w", apperr.ErrInvalidConstant, name, err)
	}
	return d.Seconds(), true, nil
}

// MovingMean splits a signal into a slowly varying background, the moving
// mean over window records, and the detail left after subtracting it. Both
// outputs are aligned on the centre of each window, so window-1 records are
// lost at the edges.
func MovingMean(ctx context.Context, in *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	sig, err := node.Get[*signal.Signal](in, "signal")
	if err != nil {
		return nil, err
	}
	window, err := c.Int("window")
	if err != nil {
		return nil, err
	}
	mean, err := lao.NewMovingMean(ctx, sig.Space(), window)
	if err != nil {
		return nil, err
	}
	offset := window / 2
	centred, err := sig.Cut(ctx, offset, offset+sig.Len()-window+1)
	if err != nil {
		return nil, err
	}
	background, err := centred.WithSpace(ctx, mean)
	if err != nil {
		return nil, err
	}
	residual, err := lao.NewBinary(ctx, lao.OpSub, centred.Space(), mean)
	if err != nil {
		return nil, err
	}
	detail, err := centred.WithSpace(ctx, residual)
	if err != nil {
		return nil, err
	}
	return node.Outputs{"background": background, "detail": detail}, nil
}

// ReduceResolution merges every factor records into one, by mean or by sum.
// Time and trigger keep the first record of every group. Records that do not
// fill a whole group are dropped with a warning.
func ReduceResolution(ctx context.Context, in *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	sig, err := node.Get[*signal.Signal](in, "signal")
	if err != nil {
		return nil, err
	}
	factor, err := c.Int("factor")
	if err != nil {
		return nil, err
	}
	sum, err := c.Bool("sum")
	if err != nil {
		return nil, err
	}
	if factor < 1 {
		return nil, fmt.Errorf("%w: factor must be positive, got %d", apperr.ErrInvalidConstant, factor)
	}
	n := sig.Len() - sig.Len()%factor
	if n != sig.Len() {
		ctxlog.FromContext(ctx).Warn("Signal length is not a multiple of the factor, dropping the tail.",
			"records", sig.Len(), "factor", factor, "dropped", sig.Len()-n)
	}
	whole, err := sig.Cut(ctx, 0, n)
	if err != nil {
		return nil, err
	}
	space, err := lao.NewDownsample(ctx, whole.Space(), factor, sum)
	if err != nil {
		return nil, err
	}
	sampled, err := whole.Index(ctx, slicealg.Desc(slicealg.Step(0, n, factor)))
	if err != nil {
		return nil, err
	}
	out, err := sampled.WithSpace(ctx, space)
	if err != nil {
		return nil, err
	}
	return node.Outputs{"signal": out}, nil
}

func flatField(op lao.Op) node.ComputeFunc {
	return func(ctx context.Context, in *node.Inputs, _ node.Constants, _ node.Namespace) (node.Outputs, error) {
		sig, err := node.Get[*signal.Signal](in, "signal")
		if err != nil {
			return nil, err
		}
		frame, err := node.Get[lao.Array](in, "frame")
		if err != nil {
			return nil, err
		}
		arr, err := lao.Materialize(ctx, frame)
		if err != nil {
			return nil, err
		}
		space, err := lao.NewFramewise(ctx, op, sig.Space(), arr)
		if err != nil {
			return nil, err
		}
		out, err := sig.WithSpace(ctx, space)
		if err != nil {
			return nil, err
		}
		return node.Outputs{"signal": out}, nil
	}
}

func registerProcessing(r *registry.Registry) {
	r.Register(node.NewSchema(Namespace, "CutTime").
		Describe("Keeps the records inside a time window.").
		Input("signal", porttype.Signal).
		Output("signal", porttype.Signal).
		Constant("start", porttype.String, nil, node.External(), node.OptionalConstant()).
		Constant("end", porttype.String, nil, node.External(), node.OptionalConstant()).
		Constant("count_from_end", porttype.Bool, false).
		Compute(CutTime).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "MovingMean").
		Describe("Splits a signal into its moving mean and the residual.").
		Input("signal", porttype.Signal).
		Output("background", porttype.Signal).
		Output("detail", porttype.Signal).
		Constant("window", porttype.Int, 10, node.External()).
		Compute(MovingMean).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "ReduceResolution").
		Describe("Merges groups of consecutive records.").
		Input("signal", porttype.Signal).
		Output("signal", porttype.Signal).
		Constant("factor", porttype.Int, 1000, node.External()).
		Constant("sum", porttype.Bool, false).
		Compute(ReduceResolution).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "FlatDivide").
		Describe("Divides every frame by a flat field. Zero pixels of the field yield zero.").
		Input("signal", porttype.Signal).
		Input("frame", porttype.Array).
		Output("signal", porttype.Signal).
		Compute(flatField(lao.OpDiv)).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "FlatSubtract").
		Describe("Subtracts a flat field from every frame.").
		Input("signal", porttype.Signal).
		Input("frame", porttype.Array).
		Output("signal", porttype.Signal).
		Compute(flatField(lao.OpSub)).
		MustBuild())
}
