// Package source provides the nodes that bring arrays and signals into a
// graph: generated ramps, numeric constants, stored fields and stored plans.
package source

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/ctxlog"
	"github.com/vk/detflow/internal/framestore"
	"github.com/vk/detflow/internal/lao"
	"github.com/vk/detflow/internal/node"
	"github.com/vk/detflow/internal/porttype"
	"github.com/vk/detflow/internal/registry"
	"github.com/vk/detflow/internal/signal"
	"github.com/vk/detflow/internal/slicealg"
)

// Namespace is the schema namespace of every node in this package.
const Namespace = "source"

// Module implements the registry.Module interface for this package. Openers
// resolve the locators of Open and OpenSignal.
type Module struct {
	Openers *lao.Openers
}

// Ramp generates a signal whose frame i holds width copies of i, sampled
// every dt starting at t0.
func Ramp(ctx context.Context, _ *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	length, err := c.Int("length")
	if err != nil {
		return nil, err
	}
	width, err := c.Int("width")
	if err != nil {
		return nil, err
	}
	t0, err := c.Float("t0")
	if err != nil {
		return nil, err
	}
	dt, err := c.Float("dt")
	if err != nil {
		return nil, err
	}
	if length < 0 || width < 1 {
		return nil, fmt.Errorf("ramp needs length >= 0 and width >= 1, got %d and %d", length, width)
	}

	space := lao.NewGenerated("ramp", length, slicealg.Shape{width}, func(i int) []float64 {
		frame := make([]float64, width)
		for j := range frame {
			frame[j] = float64(i)
		}
		return frame
	})
	time := lao.NewGenerated("ramp.time", length, slicealg.Shape{}, func(i int) []float64 {
		return []float64{t0 + float64(i)*dt}
	})
	sig, err := signal.New(ctx, space, time, nil)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Ramp generated.", "length", length, "width", width)
	return node.Outputs{"signal": sig, "space": lao.Array(space)}, nil
}

// Number emits its constant.
func Number(_ context.Context, _ *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	v, err := c.Float("value")
	if err != nil {
		return nil, err
	}
	return node.Outputs{"value": v}, nil
}

// Int emits its whole-number constant.
func Int(_ context.Context, _ *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	v, err := c.Int("value")
	if err != nil {
		return nil, err
	}
	return node.Outputs{"value": v}, nil
}

// String emits its text constant. An empty string is a value like any other.
func String(_ context.Context, _ *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	v, err := c.String("value")
	if err != nil {
		return nil, err
	}
	return node.Outputs{"value": v}, nil
}

// Bool emits its boolean constant.
func Bool(_ context.Context, _ *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	v, err := c.Bool("value")
	if err != nil {
		return nil, err
	}
	return node.Outputs{"value": v}, nil
}

func locator(c node.Constants, field string) (lao.Locator, error) {
	scheme, err := c.String("scheme")
	if err != nil {
		return lao.Locator{}, err
	}
	path, err := c.String("path")
	if err != nil {
		return lao.Locator{}, err
	}
	return lao.Locator{Scheme: scheme, Path: path, Field: field}, nil
}

// open builds a lazy source and checks it can be reached.
func (m *Module) open(ctx context.Context, loc lao.Locator) (*lao.Source, error) {
	src := lao.NewSource(m.Openers, loc)
	if _, err := src.Shape(ctx); err != nil {
		src.Close()
		return nil, err
	}
	return src, nil
}

// Open exposes one stored field as an array.
func (m *Module) Open(ctx context.Context, _ *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	field, err := c.String("field")
	if err != nil {
		return nil, err
	}
	loc, err := locator(c, field)
	if err != nil {
		return nil, err
	}
	src, err := m.open(ctx, loc)
	if err != nil {
		return nil, err
	}
	node.Track(ctx, src)
	return node.Outputs{"array": lao.Array(src)}, nil
}

// OpenSignal assembles a signal from the space, time and optional trigger
// fields of one store. Channels already opened are closed again when a
// later one fails.
func (m *Module) OpenSignal(ctx context.Context, _ *node.Inputs, c node.Constants, _ node.Namespace) (out node.Outputs, err error) {
	logger := ctxlog.FromContext(ctx)

	fields := map[string]lao.Array{}
	var opened []*lao.Source
	defer func() {
		if err == nil {
			return
		}
		for _, src := range opened {
			src.Close()
		}
	}()
	for _, channel := range []string{"space", "time", "trigger"} {
		if !c.Has(channel) {
			continue
		}
		name, err := c.String(channel)
		if err != nil {
			return nil, err
		}
		if name == "" {
			continue
		}
		loc, err := locator(c, name)
		if err != nil {
			return nil, err
		}
		src, err := m.open(ctx, loc)
		if err != nil {
			return nil, fmt.Errorf("%s channel: %w", channel, err)
		}
		logger.Debug("Signal channel opened.", "channel", channel, "locator", loc.String())
		opened = append(opened, src)
		fields[channel] = src
	}

	sig, err := signal.New(ctx, fields["space"], fields["time"], fields["trigger"])
	if err != nil {
		return nil, err
	}
	for _, src := range opened {
		node.Track(ctx, src)
	}
	return node.Outputs{"signal": sig}, nil
}

// OpenPlan rebuilds an array from a plan stored by export.SavePlan. Stored
// sources are resolved through the module openers and closed with the run.
func (m *Module) OpenPlan(ctx context.Context, _ *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	path, err := c.String("path")
	if err != nil {
		return nil, err
	}
	name, err := c.String("name")
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", apperr.ErrResourceNotFound, path)
	}
	store, err := framestore.Open(path)
	if err != nil {
		return nil, err
	}
	tree, err := store.Plan(ctx, name)
	store.Close()
	if err != nil {
		return nil, err
	}
	arr, err := lao.Decode(tree, m.Openers)
	if err != nil {
		return nil, fmt.Errorf("plan '%s': %w", name, err)
	}
	for _, src := range lao.Sources(arr) {
		node.Track(ctx, src)
	}
	ctxlog.FromContext(ctx).Debug("Plan opened.", "path", path, "name", name)
	return node.Outputs{"array": arr}, nil
}

// Register registers the node types with the engine.
func (m *Module) Register(r *registry.Registry) {
	if m.Openers == nil {
		m.Openers = lao.NewOpeners()
	}

	r.Register(node.NewSchema(Namespace, "Ramp").
		Describe("Generates a linear test signal.").
		Output("signal", porttype.Signal).
		Output("space", porttype.Array).
		Constant("length", porttype.Int, 100).
		Constant("width", porttype.Int, 1).
		Constant("t0", porttype.Float, 0).
		Constant("dt", porttype.Float, 1).
		Compute(Ramp).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "Number").
		Describe("A floating point constant.").
		Output("value", porttype.Float).
		Constant("value", porttype.Float, 0, node.External()).
		Compute(Number).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "Int").
		Describe("A whole-number constant.").
		Output("value", porttype.Int).
		Constant("value", porttype.Int, 0, node.External()).
		Compute(Int).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "String").
		Describe("A text constant.").
		Output("value", porttype.String).
		Constant("value", porttype.String, "", node.External()).
		Compute(String).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "Bool").
		Describe("A boolean constant.").
		Output("value", porttype.Bool).
		Constant("value", porttype.Bool, false, node.External()).
		Compute(Bool).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "Open").
		Describe("Reads one field of a frame store or remote server.").
		Output("array", porttype.Array).
		Constant("scheme", porttype.String, "sqlite").
		Constant("path", porttype.String, "", node.External()).
		Constant("field", porttype.String, "space").
		Compute(m.Open).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "OpenSignal").
		Describe("Reads a signal stored as space, time and trigger fields.").
		Output("signal", porttype.Signal).
		Constant("scheme", porttype.String, "sqlite").
		Constant("path", porttype.String, "", node.External()).
		Constant("space", porttype.String, "space").
		Constant("time", porttype.String, "time").
		Constant("trigger", porttype.String, nil).
		Compute(m.OpenSignal).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "OpenPlan").
		Describe("Rebuilds an array from a plan kept in a frame store.").
		Output("array", porttype.Array).
		Constant("path", porttype.String, "", node.External()).
		Constant("name", porttype.String, "plan").
		Compute(m.OpenPlan).
		MustBuild())
}
