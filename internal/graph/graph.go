package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/node"
	"github.com/vk/detflow/internal/porttype"
	"github.com/vk/detflow/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// NodeID identifies a node instance within one graph. IDs are never reused.
type NodeID int

// Position is where the node sits on the canvas.
type Position struct {
	X float64 `msgpack:"x" yaml:"x"`
	Y float64 `msgpack:"y" yaml:"y"`
}

// PortRef names a port on a node instance.
type PortRef struct {
	Node NodeID
	Port string
}

// Link connects an output port to an input port.
type Link struct {
	From PortRef
	To   PortRef
}

// instance is a placed node.
type instance struct {
	id       NodeID
	name     string
	schema   *node.Schema
	bindings map[string]node.Binding
	position Position
}

// NodeInfo is a read-only snapshot of a placed node.
type NodeInfo struct {
	ID        NodeID
	Name      string
	Type      string
	Final     bool
	Position  Position
	Constants map[string]cty.Value
	// External lists the constants currently driven by a link, in
	// declaration order.
	External []string
}

// Graph is an editable node graph.
type Graph struct {
	mu    sync.Mutex
	reg   *registry.Registry
	types *porttype.Registry

	nextID NodeID
	nodes  []*instance
	byID   map[NodeID]*instance
	// links maps a destination port to its source; linkOrder keeps
	// destination ports in the order they were connected.
	links     map[PortRef]PortRef
	linkOrder []PortRef

	plan *plan
}

// New returns an empty graph resolving node types from reg and checking
// links with types.
func New(reg *registry.Registry, types *porttype.Registry) *Graph {
	return &Graph{
		reg:   reg,
		types: types,
		byID:  make(map[NodeID]*instance),
		links: make(map[PortRef]PortRef),
	}
}

func (g *Graph) invalidate() { g.plan = nil }

func (g *Graph) get(id NodeID) (*instance, error) {
	inst, ok := g.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", apperr.ErrUnknownNode, id)
	}
	return inst, nil
}

// Add places a node of the given type with a generated name.
func (g *Graph) Add(typeID string) (NodeID, error) {
	return g.AddNamed(typeID, "")
}

// AddNamed places a node with an explicit, unique name. An empty name is
// replaced by a generated one.
func (g *Graph) AddNamed(typeID, name string) (NodeID, error) {
	schema, err := g.reg.Lookup(typeID)
	if err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if name == "" {
		for n := len(g.nodes) + 1; ; n++ {
			candidate := fmt.Sprintf("%s%d", schema.Class, n)
			if g.byNameLocked(candidate) == nil {
				name = candidate
				break
			}
		}
	} else if g.byNameLocked(name) != nil {
		return 0, fmt.Errorf("node name '%s' is already in use", name)
	}

	bindings := make(map[string]node.Binding, len(schema.Constants))
	for _, c := range schema.Constants {
		bindings[c.Name] = node.Literal{Value: c.Default}
	}

	g.nextID++
	inst := &instance{id: g.nextID, name: name, schema: schema, bindings: bindings}
	g.nodes = append(g.nodes, inst)
	g.byID[inst.id] = inst
	g.invalidate()
	return inst.id, nil
}

func (g *Graph) byNameLocked(name string) *instance {
	for _, inst := range g.nodes {
		if inst.name == name {
			return inst
		}
	}
	return nil
}

// Lookup finds a node by name.
func (g *Graph) Lookup(name string) (NodeID, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if inst := g.byNameLocked(name); inst != nil {
		return inst.id, true
	}
	return 0, false
}

// Remove deletes a node and every link touching it.
func (g *Graph) Remove(id NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.get(id); err != nil {
		return err
	}

	for i, inst := range g.nodes {
		if inst.id == id {
			g.nodes = append(g.nodes[:i], g.nodes[i+1:]...)
			break
		}
	}
	delete(g.byID, id)

	kept := g.linkOrder[:0]
	for _, to := range g.linkOrder {
		from := g.links[to]
		if to.Node == id || from.Node == id {
			delete(g.links, to)
			continue
		}
		kept = append(kept, to)
	}
	g.linkOrder = kept
	g.invalidate()
	return nil
}

// inputType resolves the type of a linkable port on inst: a declared input
// or a constant currently switched to external.
func inputType(inst *instance, port string) (porttype.Type, error) {
	if p, ok := inst.schema.Input(port); ok {
		return p.Type, nil
	}
	if c, ok := inst.schema.Constant(port); ok {
		if _, linked := inst.bindings[port].(node.Linked); linked {
			return c.Type, nil
		}
		return porttype.Type{}, fmt.Errorf("%w: constant '%s' of node '%s' is not external", apperr.ErrUnknownPort, port, inst.name)
	}
	return porttype.Type{}, fmt.Errorf("%w: node '%s' has no input '%s'", apperr.ErrUnknownPort, inst.name, port)
}

// Connect links an output to an input, replacing any link the input had.
func (g *Graph) Connect(from, to PortRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	src, err := g.get(from.Node)
	if err != nil {
		return err
	}
	dst, err := g.get(to.Node)
	if err != nil {
		return err
	}
	out, ok := src.schema.Output(from.Port)
	if !ok {
		return fmt.Errorf("%w: node '%s' has no output '%s'", apperr.ErrUnknownPort, src.name, from.Port)
	}
	inType, err := inputType(dst, to.Port)
	if err != nil {
		return err
	}
	if !g.types.Accepts(inType, out.Type) {
		return fmt.Errorf("%w: %s.%s (%s) cannot feed %s.%s (%s)", apperr.ErrIncompatiblePorts,
			src.name, from.Port, out.Type, dst.name, to.Port, inType)
	}

	if _, exists := g.links[to]; !exists {
		g.linkOrder = append(g.linkOrder, to)
	}
	g.links[to] = from
	g.invalidate()
	return nil
}

// Disconnect removes the link into an input port, if any.
func (g *Graph) Disconnect(to PortRef) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.get(to.Node); err != nil {
		return err
	}
	g.disconnectLocked(to)
	return nil
}

func (g *Graph) disconnectLocked(to PortRef) {
	if _, ok := g.links[to]; !ok {
		return
	}
	delete(g.links, to)
	for i, p := range g.linkOrder {
		if p == to {
			g.linkOrder = append(g.linkOrder[:i], g.linkOrder[i+1:]...)
			break
		}
	}
	g.invalidate()
}

// SetConstant stores a literal value for a constant. The value is converted
// to the constant's type; a constant that is currently external must be
// switched back first.
func (g *Graph) SetConstant(id NodeID, name string, val cty.Value) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst, err := g.get(id)
	if err != nil {
		return err
	}
	def, ok := inst.schema.Constant(name)
	if !ok {
		return fmt.Errorf("%w: node '%s' has no constant '%s'", apperr.ErrInvalidConstant, inst.name, name)
	}
	if _, linked := inst.bindings[name].(node.Linked); linked {
		return fmt.Errorf("%w: constant '%s' of node '%s' is external", apperr.ErrInvalidConstant, name, inst.name)
	}
	conformed, err := porttype.Conform(def.Type, val)
	if err != nil {
		return fmt.Errorf("node '%s' constant '%s': %w", inst.name, name, err)
	}
	inst.bindings[name] = node.Literal{Value: conformed}
	g.invalidate()
	return nil
}

// SetExternal switches a constant between a literal and an input port of
// the same name. Switching back restores the default and drops the link.
func (g *Graph) SetExternal(id NodeID, name string, on bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst, err := g.get(id)
	if err != nil {
		return err
	}
	def, ok := inst.schema.Constant(name)
	if !ok {
		return fmt.Errorf("%w: node '%s' has no constant '%s'", apperr.ErrInvalidConstant, inst.name, name)
	}
	if on && !def.AllowExternal {
		return fmt.Errorf("%w: constant '%s' of node '%s' cannot be external", apperr.ErrInvalidConstant, name, inst.name)
	}

	_, linked := inst.bindings[name].(node.Linked)
	switch {
	case on && !linked:
		inst.bindings[name] = node.Linked{Port: name}
	case !on && linked:
		inst.bindings[name] = node.Literal{Value: def.Default}
		g.disconnectLocked(PortRef{Node: id, Port: name})
	default:
		return nil
	}
	g.invalidate()
	return nil
}

// SetPosition moves a node. Positions do not affect execution.
func (g *Graph) SetPosition(id NodeID, pos Position) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst, err := g.get(id)
	if err != nil {
		return err
	}
	inst.position = pos
	return nil
}

func (inst *instance) info() NodeInfo {
	ni := NodeInfo{
		ID:        inst.id,
		Name:      inst.name,
		Type:      inst.schema.ID(),
		Final:     inst.schema.Final,
		Position:  inst.position,
		Constants: make(map[string]cty.Value),
	}
	for _, c := range inst.schema.Constants {
		switch b := inst.bindings[c.Name].(type) {
		case node.Literal:
			ni.Constants[c.Name] = b.Value
		case node.Linked:
			ni.External = append(ni.External, c.Name)
		}
	}
	return ni
}

// Node returns a snapshot of one node.
func (g *Graph) Node(id NodeID) (NodeInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst, err := g.get(id)
	if err != nil {
		return NodeInfo{}, err
	}
	return inst.info(), nil
}

// Nodes returns snapshots of every node in placement order.
func (g *Graph) Nodes() []NodeInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]NodeInfo, len(g.nodes))
	for i, inst := range g.nodes {
		out[i] = inst.info()
	}
	return out
}

// Links returns every link in the order the inputs were connected.
func (g *Graph) Links() []Link {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Link, 0, len(g.linkOrder))
	for _, to := range g.linkOrder {
		out = append(out, Link{From: g.links[to], To: to})
	}
	return out
}

// Outgoing lists the links leaving a node, grouped by output port in
// declaration order.
func (g *Graph) Outgoing(id NodeID) []Link {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst, ok := g.byID[id]
	if !ok {
		return nil
	}
	rank := make(map[string]int, len(inst.schema.Outputs))
	for i, p := range inst.schema.Outputs {
		rank[p.Name] = i
	}
	var out []Link
	for _, to := range g.linkOrder {
		if from := g.links[to]; from.Node == id {
			out = append(out, Link{From: from, To: to})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return rank[out[i].From.Port] < rank[out[j].From.Port] })
	return out
}
