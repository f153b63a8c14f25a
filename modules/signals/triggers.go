package signals

import (
	"context"

	"github.com/vk/detflow/internal/ctxlog"
	"github.com/vk/detflow/internal/lao"
	"github.com/vk/detflow/internal/node"
	"github.com/vk/detflow/internal/porttype"
	"github.com/vk/detflow/internal/registry"
	"github.com/vk/detflow/internal/signal"
)

// ThresholdTrigger marks every record holding at least one element above
// threshold. The previous trigger, if any, is replaced.
func ThresholdTrigger(ctx context.Context, in *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	sig, err := node.Get[*signal.Signal](in, "signal")
	if err != nil {
		return nil, err
	}
	threshold, err := c.Float("threshold")
	if err != nil {
		return nil, err
	}
	above, err := lao.NewScalar(lao.OpAbove, threshold, sig.Space())
	if err != nil {
		return nil, err
	}
	mask, err := lao.Marginalize(ctx, above)
	if err != nil {
		return nil, err
	}
	out, err := sig.WithTrigger(ctx, mask)
	if err != nil {
		return nil, err
	}
	return node.Outputs{"signal": out}, nil
}

// InvertTrigger negates the trigger. A signal without one passes through.
func InvertTrigger(ctx context.Context, in *node.Inputs, _ node.Constants, _ node.Namespace) (node.Outputs, error) {
	sig, err := node.Get[*signal.Signal](in, "signal")
	if err != nil {
		return nil, err
	}
	if !sig.HasTrigger() {
		ctxlog.FromContext(ctx).Warn("Signal has no trigger to invert.")
		return node.Outputs{"signal": sig}, nil
	}
	inverted, err := lao.NewUnary(lao.OpNot, sig.Trigger())
	if err != nil {
		return nil, err
	}
	out, err := sig.WithTrigger(ctx, inverted)
	if err != nil {
		return nil, err
	}
	return node.Outputs{"signal": out}, nil
}

// CombineTriggers gives primary the logical and of both triggers. When swap
// is set, the secondary trigger is evaluated first, so records it rejects
// never read the primary one. The result has no trigger unless both inputs
// carry one.
func CombineTriggers(ctx context.Context, in *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	primary, err := node.Get[*signal.Signal](in, "primary")
	if err != nil {
		return nil, err
	}
	secondary, err := node.Get[*signal.Signal](in, "secondary")
	if err != nil {
		return nil, err
	}
	swap, err := c.Bool("swap")
	if err != nil {
		return nil, err
	}
	if !primary.HasTrigger() || !secondary.HasTrigger() {
		ctxlog.FromContext(ctx).Warn("Cannot combine triggers, one side has none.",
			"primary", primary.HasTrigger(), "secondary", secondary.HasTrigger())
		out, err := primary.WithTrigger(ctx, nil)
		if err != nil {
			return nil, err
		}
		return node.Outputs{"signal": out}, nil
	}
	first, second := primary.Trigger(), secondary.Trigger()
	if swap {
		first, second = second, first
	}
	mask, err := lao.NewAllOf(ctx, first, second)
	if err != nil {
		return nil, err
	}
	out, err := primary.WithTrigger(ctx, mask)
	if err != nil {
		return nil, err
	}
	return node.Outputs{"signal": out}, nil
}

// ExpandTrigger widens every triggered record to a window centred on it.
func ExpandTrigger(ctx context.Context, in *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	sig, err := node.Get[*signal.Signal](in, "signal")
	if err != nil {
		return nil, err
	}
	window, err := c.Int("window")
	if err != nil {
		return nil, err
	}
	if !sig.HasTrigger() {
		ctxlog.FromContext(ctx).Warn("Signal has no trigger to expand.")
		return node.Outputs{"signal": sig}, nil
	}
	mask, err := lao.Marginalize(ctx, sig.Trigger())
	if err != nil {
		return nil, err
	}
	wide, err := lao.NewWiden(ctx, mask, window)
	if err != nil {
		return nil, err
	}
	out, err := sig.WithTrigger(ctx, wide)
	if err != nil {
		return nil, err
	}
	return node.Outputs{"signal": out}, nil
}

func registerTriggers(r *registry.Registry) {
	r.Register(node.NewSchema(Namespace, "ThresholdTrigger").
		Describe("Triggers records with any element above a threshold.").
		Input("signal", porttype.Signal).
		Output("signal", porttype.Signal).
		Constant("threshold", porttype.Float, 1.0, node.External()).
		Compute(ThresholdTrigger).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "InvertTrigger").
		Describe("Negates the trigger of a signal.").
		Input("signal", porttype.Signal).
		Output("signal", porttype.Signal).
		Compute(InvertTrigger).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "CombineTriggers").
		Describe("Keeps records triggered in both signals.").
		Input("primary", porttype.Signal).
		Input("secondary", porttype.Signal).
		Output("signal", porttype.Signal).
		Constant("swap", porttype.Bool, false).
		Compute(CombineTriggers).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "ExpandTrigger").
		Describe("Widens every triggered record to a window around it.").
		Input("signal", porttype.Signal).
		Output("signal", porttype.Signal).
		Constant("window", porttype.Int, 128, node.External()).
		Compute(ExpandTrigger).
		MustBuild())
}
