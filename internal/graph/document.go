package graph

import (
	"fmt"
	"sort"

	"github.com/vk/detflow/internal/porttype"
	"github.com/vk/detflow/internal/registry"
	"github.com/zclconf/go-cty/cty"
)

// Document is the persisted form of a graph. Links are stored on their
// source node as output port -> destinations, with destinations addressed by
// index into Nodes.
type Document struct {
	Nodes []NodeDoc
}

// NodeDoc is one node of a Document.
type NodeDoc struct {
	Type      string
	Name      string
	Position  Position
	Constants map[string]cty.Value
	External  []string
	Outputs   map[string][]Target
}

// Target is the destination of a link.
type Target struct {
	Node int
	Port string
}

// Serialize captures the graph as a Document.
func (g *Graph) Serialize() Document {
	nodes := g.Nodes()
	index := make(map[NodeID]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}

	doc := Document{Nodes: make([]NodeDoc, len(nodes))}
	for i, n := range nodes {
		doc.Nodes[i] = NodeDoc{
			Type:      n.Type,
			Name:      n.Name,
			Position:  n.Position,
			Constants: n.Constants,
			External:  n.External,
			Outputs:   make(map[string][]Target),
		}
		for _, l := range g.Outgoing(n.ID) {
			doc.Nodes[i].Outputs[l.From.Port] = append(doc.Nodes[i].Outputs[l.From.Port],
				Target{Node: index[l.To.Node], Port: l.To.Port})
		}
	}
	return doc
}

// Deserialize rebuilds a graph from a Document.
func Deserialize(doc Document, reg *registry.Registry, types *porttype.Registry) (*Graph, error) {
	g := New(reg, types)
	ids := make([]NodeID, len(doc.Nodes))

	for i, nd := range doc.Nodes {
		id, err := g.AddNamed(nd.Type, nd.Name)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		ids[i] = id
		if err := g.SetPosition(id, nd.Position); err != nil {
			return nil, err
		}
		for _, name := range nd.External {
			if err := g.SetExternal(id, name, true); err != nil {
				return nil, fmt.Errorf("node %d: %w", i, err)
			}
		}
		names := make([]string, 0, len(nd.Constants))
		for name := range nd.Constants {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := g.SetConstant(id, name, nd.Constants[name]); err != nil {
				return nil, fmt.Errorf("node %d: %w", i, err)
			}
		}
	}

	for i, nd := range doc.Nodes {
		schema, err := reg.Lookup(nd.Type)
		if err != nil {
			return nil, err
		}
		ports := make([]string, 0, len(nd.Outputs))
		for _, p := range schema.Outputs {
			if _, ok := nd.Outputs[p.Name]; ok {
				ports = append(ports, p.Name)
			}
		}
		if len(ports) != len(nd.Outputs) {
			return nil, fmt.Errorf("node %d ('%s'): links from undeclared outputs", i, nd.Name)
		}
		for _, port := range ports {
			for _, t := range nd.Outputs[port] {
				if t.Node < 0 || t.Node >= len(ids) {
					return nil, fmt.Errorf("node %d ('%s'): link target %d out of range", i, nd.Name, t.Node)
				}
				from := PortRef{Node: ids[i], Port: port}
				to := PortRef{Node: ids[t.Node], Port: t.Port}
				if err := g.Connect(from, to); err != nil {
					return nil, fmt.Errorf("node %d ('%s'): %w", i, nd.Name, err)
				}
			}
		}
	}
	return g, nil
}
