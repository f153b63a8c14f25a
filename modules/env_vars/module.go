// Package env_vars exposes process environment variables to graphs, so a
// store path or server address can come from the environment (or a .env
// file) instead of being written into the graph file.
package env_vars

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/ctxlog"
	"github.com/vk/detflow/internal/node"
	"github.com/vk/detflow/internal/porttype"
	"github.com/vk/detflow/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Variable emits the value of one environment variable. An unset variable
// falls back to fallback, and fails when there is none.
func Variable(ctx context.Context, _ *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	name, err := c.String("name")
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: variable name is empty", apperr.ErrInvalidConstant)
	}

	if v, ok := os.LookupEnv(name); ok {
		ctxlog.FromContext(ctx).Debug("Environment variable read.", "name", name)
		return node.Outputs{"value": v}, nil
	}
	if !c.Has("fallback") {
		return nil, fmt.Errorf("%w: environment variable '%s' is not set", apperr.ErrMissingInput, name)
	}
	fallback, err := c.String("fallback")
	if err != nil {
		return nil, err
	}
	return node.Outputs{"value": fallback}, nil
}

// Register registers the node type with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Register(node.NewSchema("env", "Variable").
		Describe("Reads an environment variable.").
		Output("value", porttype.String).
		Constant("name", porttype.String, "").
		Constant("fallback", porttype.String, nil).
		Compute(Variable).
		MustBuild())
}
