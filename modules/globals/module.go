// Package globals reads and writes the run namespace, the mapping shared by
// every node of one run.
package globals

import (
	"context"
	"fmt"

	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/ctxlog"
	"github.com/vk/detflow/internal/node"
	"github.com/vk/detflow/internal/porttype"
	"github.com/vk/detflow/internal/registry"
)

// Namespace is the schema namespace of every node in this package.
const Namespace = "globals"

// Module implements the registry.Module interface for this package.
type Module struct{}

func key(c node.Constants) (string, error) {
	k, err := c.String("key")
	if err != nil {
		return "", err
	}
	if k == "" {
		return "", fmt.Errorf("%w: key is empty", apperr.ErrInvalidConstant)
	}
	return k, nil
}

// Set stores its input under key and passes it on, so that readers can be
// ordered after it.
func Set(ctx context.Context, in *node.Inputs, c node.Constants, ns node.Namespace) (node.Outputs, error) {
	k, err := key(c)
	if err != nil {
		return nil, err
	}
	v, err := node.Get[any](in, "value")
	if err != nil {
		return nil, err
	}
	ns[k] = v
	ctxlog.FromContext(ctx).Debug("Namespace value set.", "key", k, "type", fmt.Sprintf("%T", v))
	return node.Outputs{"value": v}, nil
}

// Get emits the value stored under key, or nil when there is none. The
// optional after input only orders the read behind another node.
func Get(ctx context.Context, _ *node.Inputs, c node.Constants, ns node.Namespace) (node.Outputs, error) {
	k, err := key(c)
	if err != nil {
		return nil, err
	}
	v, ok := ns[k]
	if !ok {
		ctxlog.FromContext(ctx).Debug("Namespace key not set.", "key", k)
	}
	return node.Outputs{"value": v}, nil
}

// Register registers the node types with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Register(node.NewSchema(Namespace, "Set").
		Describe("Stores a value in the run namespace.").
		Input("value", porttype.Any).
		Output("value", porttype.Any).
		Constant("key", porttype.String, "").
		Final().
		Compute(Set).
		MustBuild())

	r.Register(node.NewSchema(Namespace, "Get").
		Describe("Reads a value from the run namespace.").
		OptionalInput("after", porttype.Any).
		Output("value", porttype.Any).
		Constant("key", porttype.String, "").
		Compute(Get).
		MustBuild())
}
