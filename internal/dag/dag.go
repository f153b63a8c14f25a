package dag

import (
	"fmt"

	"github.com/vk/detflow/internal/apperr"
)

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*node),
	}
}

// AddNode adds a new node with the given ID to the graph. If a node with
// the same ID already exists, the function does nothing.
func (g *Graph) AddNode(id string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = &node{id: id}
	g.order = append(g.order, id)
}

// Len is the number of nodes.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.order)
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` has a dependency on `fromID`. Adding an edge
// twice is a no-op. A self-referential edge is a cycle of length one and is
// reported as apperr.ErrCircularDependency.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("%w: self-referential edge %s -> %s", apperr.ErrCircularDependency, fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	if toNode.hasDep(fromID) {
		return nil
	}
	toNode.deps = append(toNode.deps, fromNode)
	fromNode.dependents = append(fromNode.dependents, toNode)
	return nil
}

// Dependents returns the IDs that depend on the given node, in edge order.
func (g *Graph) Dependents(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return ids(n.dependents), nil
}

// TopologicalOrder returns every node reachable backward from roots, each
// after all of its dependencies. Roots are walked in the given order and
// dependencies in edge order, so the result is deterministic.
func (g *Graph) TopologicalOrder(roots []string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	w := newWalk()
	for _, id := range roots {
		n, ok := g.nodes[id]
		if !ok {
			return nil, fmt.Errorf("node not found: %s", id)
		}
		if err := w.visit(n); err != nil {
			return nil, err
		}
	}
	return w.sorted, nil
}

// walk is a depth-first search over dependencies with three sets of nodes:
// permanent (fully visited), temporary (on the current path) and unvisited.
type walk struct {
	permanent map[string]bool
	temporary map[string]bool
	sorted    []string
}

func newWalk() *walk {
	return &walk{permanent: make(map[string]bool), temporary: make(map[string]bool)}
}

func (w *walk) visit(n *node) error {
	if w.permanent[n.id] {
		return nil
	}
	if w.temporary[n.id] {
		return fmt.Errorf("%w: cycle detected involving node '%s'", apperr.ErrCircularDependency, n.id)
	}

	w.temporary[n.id] = true
	for _, dep := range n.deps {
		if err := w.visit(dep); err != nil {
			return err
		}
	}
	delete(w.temporary, n.id)
	w.permanent[n.id] = true
	w.sorted = append(w.sorted, n.id)
	return nil
}
