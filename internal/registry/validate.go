package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/detflow/internal/ctxlog"
	"github.com/vk/detflow/internal/node"
	"github.com/vk/detflow/internal/porttype"
)

// Validate checks every registered schema against the port type registry:
// all port and constant types must be registered, and every constant default
// must conform to its type.
func (r *Registry) Validate(ctx context.Context, types *porttype.Registry) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	known := func(t porttype.Type) bool {
		got, ok := types.Lookup(t.Name)
		return ok && got.Equal(t)
	}

	for _, s := range r.Schemas() {
		id := s.ID()
		for _, group := range []struct {
			kind  string
			ports []node.Port
		}{{"input", s.Inputs}, {"output", s.Outputs}} {
			for _, p := range group.ports {
				if !known(p.Type) {
					errs = append(errs, fmt.Sprintf("node type '%s': %s '%s' uses unregistered type '%s'", id, group.kind, p.Name, p.Type.Name))
				}
				if group.kind == "input" && p.Type.Equal(porttype.Any) {
					logger.Debug("Node type has an input of type 'any', which disables link type checking.", "type", id, "input", p.Name)
				}
			}
		}

		for _, c := range s.Constants {
			if !known(c.Type) {
				errs = append(errs, fmt.Sprintf("node type '%s': constant '%s' uses unregistered type '%s'", id, c.Name, c.Type.Name))
				continue
			}
			if _, err := porttype.Conform(c.Type, c.Default); err != nil {
				errs = append(errs, fmt.Sprintf("node type '%s': constant '%s' default: %v", id, c.Name, err))
			}
			if c.Optional && !c.AllowExternal {
				logger.Warn("Optional constant cannot be linked, so the flag has no effect.", "type", id, "constant", c.Name)
			}
		}

		if !s.Final && len(s.Outputs) == 0 {
			logger.Warn("Node type is not final and has no outputs; it can never run.", "type", id)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}
