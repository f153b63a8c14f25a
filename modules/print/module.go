// Package print provides the Summary sink, which writes a short human
// readable description of whatever reaches it.
package print

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/vk/detflow/internal/ctxlog"
	"github.com/vk/detflow/internal/lao"
	"github.com/vk/detflow/internal/ndarray"
	"github.com/vk/detflow/internal/node"
	"github.com/vk/detflow/internal/porttype"
	"github.com/vk/detflow/internal/registry"
	"github.com/vk/detflow/internal/signal"
)

// Module implements the registry.Module interface for this package. Out
// defaults to stdout.
type Module struct {
	Out io.Writer
}

// Summary describes its input on Out. Arrays are described by shape only;
// reading their data is left to the sinks that need it.
func (m *Module) Summary(ctx context.Context, in *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	ctxlog.FromContext(ctx).Info("Printing input.")

	label, err := c.String("label")
	if err != nil {
		return nil, err
	}
	text, err := describe(ctx, in.Optional("value"))
	if err != nil {
		return nil, err
	}
	if label != "" {
		text = label + ": " + text
	}
	_, err = fmt.Fprintf(m.Out, "      %s\n", text)
	return nil, err
}

func describe(ctx context.Context, v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "(null)", nil
	case *signal.Signal:
		shape, err := t.Space().Shape(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s space=%s", t, shape), nil
	case *ndarray.Array:
		return t.String(), nil
	case lao.Array:
		shape, err := t.Shape(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("array shape=%s", shape), nil
	default:
		return fmt.Sprintf("%v", t), nil
	}
}

// Register registers the node types with the engine.
func (m *Module) Register(r *registry.Registry) {
	if m.Out == nil {
		m.Out = os.Stdout
	}
	r.Register(node.NewSchema("print", "Summary").
		Describe("Prints a short description of any value.").
		OptionalInput("value", porttype.Any).
		Constant("label", porttype.String, "").
		Final().
		Compute(m.Summary).
		MustBuild())
}
