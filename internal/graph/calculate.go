package graph

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/ctxlog"
	"github.com/vk/detflow/internal/node"
	"github.com/vk/detflow/internal/porttype"
	"github.com/zclconf/go-cty/cty"
)

// NodeExecutionError reports a failure inside one node. Err is the original
// error; a recovered panic is turned into an error first. Blocked names the
// planned nodes downstream of the failure, which did not run.
type NodeExecutionError struct {
	NodeID  NodeID
	Name    string
	Type    string
	Err     error
	Blocked []string
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node '%s' (%s) failed: %v", e.Name, e.Type, e.Err)
}

func (e *NodeExecutionError) Unwrap() error { return e.Err }

// Progress is updated by Calculate and may be read from other goroutines.
type Progress struct {
	total   atomic.Int64
	done    atomic.Int64
	current atomic.Pointer[string]
}

// Snapshot returns completed and total node counts and the name of the node
// currently running, if any.
func (p *Progress) Snapshot() (done, total int, current string) {
	if c := p.current.Load(); c != nil {
		current = *c
	}
	return int(p.done.Load()), int(p.total.Load()), current
}

type runConfig struct {
	progress *Progress
}

// RunOption configures one Calculate call.
type RunOption func(*runConfig)

// WithProgress makes Calculate report into p.
func WithProgress(p *Progress) RunOption {
	return func(c *runConfig) { c.progress = p }
}

// Calculate runs every node upstream of a final node, once, in plan order.
// The first failure stops the run. Cancellation of ctx is observed between
// nodes; long running nodes are expected to watch ctx themselves. Resources
// handed to node.Track are closed before Calculate returns.
func (g *Graph) Calculate(ctx context.Context, ns node.Namespace, opts ...RunOption) error {
	cfg := runConfig{progress: &Progress{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if ns == nil {
		ns = node.Namespace{}
	}
	logger := ctxlog.FromContext(ctx)

	p, err := g.currentPlan(ctx)
	if err != nil {
		return err
	}

	cfg.progress.total.Store(int64(len(p.steps)))
	cfg.progress.done.Store(0)
	defer cfg.progress.current.Store(nil)

	ctx, cleanup := node.WithCleanup(ctx)
	defer func() {
		n := cleanup.Len()
		if err := cleanup.Close(); err != nil {
			logger.Warn("Failed to release run resources.", "error", err)
			return
		}
		if n > 0 {
			logger.Debug("Run resources released.", "count", n)
		}
	}()

	logger.Info("🚀 Starting graph run.", "nodes", len(p.steps))
	started := time.Now()
	env := make(map[NodeID]node.Outputs, len(p.steps))
	for _, s := range p.steps {
		if err := ctx.Err(); err != nil {
			logger.Warn("Graph run cancelled.", "before", s.name)
			return err
		}
		name := s.name
		cfg.progress.current.Store(&name)

		nodeLogger := logger.With("node", s.name, "type", s.schema.ID())
		nodeLogger.Debug("▶️ Running node.")
		out, err := s.run(ctxlog.WithLogger(ctx, nodeLogger), env, ns)
		if err != nil {
			blocked := p.downstream(s.id)
			var nerr *NodeExecutionError
			if errors.As(err, &nerr) {
				nerr.Blocked = blocked
			}
			nodeLogger.Error("Node failed.", "error", err, "blocked", blocked)
			return err
		}
		env[s.id] = out
		cfg.progress.done.Add(1)
	}
	logger.Info("🏁 Graph run finished.", "nodes", len(p.steps), "elapsed", time.Since(started))
	return nil
}

func (s *step) fail(err error) error {
	return &NodeExecutionError{NodeID: s.id, Name: s.name, Type: s.schema.ID(), Err: err}
}

// run resolves inputs and constants and calls the node body. Nothing it
// raises escapes unwrapped.
func (s *step) run(ctx context.Context, env map[NodeID]node.Outputs, ns node.Namespace) (out node.Outputs, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, s.fail(fmt.Errorf("panic: %v", r))
		}
	}()

	linked := make(map[string]bool, len(s.inputs))
	values := make(map[string]any, len(s.inputs))
	for port, from := range s.inputs {
		linked[port] = true
		values[port] = env[from.Node][from.Port]
	}

	consts, err := s.resolveConstants(linked, values)
	if err != nil {
		return nil, s.fail(err)
	}
	in := node.NewInputs(s.name, s.schema.Inputs, linked, values)

	out, err = s.schema.Compute(ctx, in, consts, ns)
	if err != nil {
		return nil, s.fail(err)
	}
	for port := range out {
		if _, ok := s.schema.Output(port); !ok {
			return nil, s.fail(fmt.Errorf("%w: returned undeclared output '%s'", apperr.ErrUnknownPort, port))
		}
	}
	return out, nil
}

// resolveConstants turns every binding into a value for this run.
func (s *step) resolveConstants(linked map[string]bool, values map[string]any) (node.Constants, error) {
	consts := make(node.Constants, len(s.schema.Constants))
	for _, def := range s.schema.Constants {
		switch b := s.bindings[def.Name].(type) {
		case node.Literal:
			consts[def.Name] = b.Value
		case node.Linked:
			v, err := linkedConstant(def, b, linked, values)
			if err != nil {
				return nil, err
			}
			consts[def.Name] = v
		default:
			consts[def.Name] = def.Default
		}
	}
	return consts, nil
}

func linkedConstant(def node.ConstantDef, b node.Linked, linked map[string]bool, values map[string]any) (cty.Value, error) {
	if !linked[b.Port] {
		if def.Optional {
			return cty.NullVal(def.Type.Value), nil
		}
		return cty.NilVal, fmt.Errorf("%w: external constant '%s' is not linked", apperr.ErrMissingInput, def.Name)
	}
	raw := values[b.Port]
	if raw == nil {
		if def.Optional {
			return cty.NullVal(def.Type.Value), nil
		}
		return cty.NilVal, fmt.Errorf("%w: external constant '%s' received no value", apperr.ErrNullInput, def.Name)
	}
	v, err := porttype.ToCty(def.Type, raw)
	if err != nil {
		return cty.NilVal, fmt.Errorf("external constant '%s': %w", def.Name, err)
	}
	return v, nil
}
