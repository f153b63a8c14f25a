package graph

import (
	"context"
	"fmt"
	"strconv"

	"github.com/vk/detflow/internal/ctxlog"
	"github.com/vk/detflow/internal/dag"
	"github.com/vk/detflow/internal/node"
)

// step is the throwaway copy of one node a plan runs.
type step struct {
	id       NodeID
	name     string
	schema   *node.Schema
	inputs   map[string]PortRef
	bindings map[string]node.Binding
}

// plan is the cached, topologically ordered list of steps together with the
// dependency graph it was sorted from.
type plan struct {
	steps []*step
	deps  *dag.Graph
}

// downstream names, in plan order, every step that depends on id directly or
// through other steps.
func (p *plan) downstream(id NodeID) []string {
	seen := make(map[string]bool)
	queue := []string{key(id)}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		next, err := p.deps.Dependents(k)
		if err != nil {
			continue
		}
		for _, d := range next {
			if !seen[d] {
				seen[d] = true
				queue = append(queue, d)
			}
		}
	}
	var out []string
	for _, s := range p.steps {
		if seen[key(s.id)] {
			out = append(out, s.name)
		}
	}
	return out
}

// snapshotLocked copies a node with its incoming links and bindings.
func (g *Graph) snapshotLocked(inst *instance) *step {
	s := &step{
		id:       inst.id,
		name:     inst.name,
		schema:   inst.schema,
		inputs:   make(map[string]PortRef),
		bindings: make(map[string]node.Binding, len(inst.bindings)),
	}
	for k, v := range inst.bindings {
		s.bindings[k] = v
	}
	for _, to := range g.linkOrder {
		if to.Node == inst.id {
			s.inputs[to.Port] = g.links[to]
		}
	}
	return s
}

// sources lists the nodes a step depends on in visiting order: declared
// inputs first, then external constants, each in declaration order.
func (s *step) sources() []NodeID {
	var out []NodeID
	for _, p := range s.schema.Inputs {
		if from, ok := s.inputs[p.Name]; ok {
			out = append(out, from.Node)
		}
	}
	for _, c := range s.schema.Constants {
		if _, linked := s.bindings[c.Name].(node.Linked); !linked {
			continue
		}
		if from, ok := s.inputs[c.Name]; ok {
			out = append(out, from.Node)
		}
	}
	return out
}

func key(id NodeID) string { return strconv.Itoa(int(id)) }

// buildLocked assembles a plan from the current graph.
func (g *Graph) buildLocked(ctx context.Context) (*plan, error) {
	logger := ctxlog.FromContext(ctx)

	steps := make(map[NodeID]*step, len(g.nodes))
	var finals []NodeID
	for _, inst := range g.nodes {
		steps[inst.id] = g.snapshotLocked(inst)
		if inst.schema.Final {
			finals = append(finals, inst.id)
		}
	}

	deps := dag.New()
	visited := make(map[NodeID]bool)
	queue := append([]NodeID(nil), finals...)
	for _, id := range finals {
		visited[id] = true
		deps.AddNode(key(id))
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, src := range steps[id].sources() {
			if !visited[src] {
				visited[src] = true
				deps.AddNode(key(src))
				queue = append(queue, src)
			}
			if err := deps.AddEdge(key(src), key(id)); err != nil {
				return nil, fmt.Errorf("node '%s': %w", steps[id].name, err)
			}
		}
	}

	roots := make([]string, len(finals))
	for i, id := range finals {
		roots[i] = key(id)
	}
	order, err := deps.TopologicalOrder(roots)
	if err != nil {
		return nil, err
	}

	p := &plan{steps: make([]*step, len(order)), deps: deps}
	for i, k := range order {
		n, _ := strconv.Atoi(k)
		p.steps[i] = steps[NodeID(n)]
	}
	logger.Debug("Execution plan built.", "nodes", len(p.steps), "reachable", deps.Len(), "finals", len(finals), "placed", len(g.nodes))
	return p, nil
}

// currentPlan returns the cached plan, building it on a miss.
func (g *Graph) currentPlan(ctx context.Context) (*plan, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.plan != nil {
		return g.plan, nil
	}
	p, err := g.buildLocked(ctx)
	if err != nil {
		return nil, err
	}
	g.plan = p
	return p, nil
}

// Order returns the execution order of the current graph, building the plan
// if needed. Nodes not upstream of any final node are absent.
func (g *Graph) Order(ctx context.Context) ([]NodeID, error) {
	p, err := g.currentPlan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]NodeID, len(p.steps))
	for i, s := range p.steps {
		out[i] = s.id
	}
	return out, nil
}
