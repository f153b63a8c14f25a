package hclgraph

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/detflow/internal/ctxlog"
	"github.com/vk/detflow/internal/graph"
	"github.com/zclconf/go-cty/cty"
)

// fileRoot decodes the top-level blocks of a graph file.
type fileRoot struct {
	Nodes []*nodeBlock `hcl:"node,block"`
	Links []*linkBlock `hcl:"link,block"`
}

type nodeBlock struct {
	Name      string    `hcl:"name,label"`
	Type      string    `hcl:"type"`
	Position  []float64 `hcl:"position,optional"`
	Constants cty.Value `hcl:"constants,optional"`
	External  []string  `hcl:"external,optional"`
}

type linkBlock struct {
	From string `hcl:"from"`
	To   string `hcl:"to"`
}

// Load reads the graph file at path.
func Load(ctx context.Context, path string) (graph.Document, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return graph.Document{}, fmt.Errorf("failed to read graph file %s: %w", path, err)
	}
	return Parse(ctx, src, path)
}

// Parse decodes HCL source into a document. filename is only used in
// diagnostics.
func Parse(ctx context.Context, src []byte, filename string) (graph.Document, error) {
	logger := ctxlog.FromContext(ctx)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return graph.Document{}, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(file.Body, nil, &root)
	if diags.HasErrors() {
		return graph.Document{}, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	doc := graph.Document{Nodes: make([]graph.NodeDoc, 0, len(root.Nodes))}
	index := make(map[string]int, len(root.Nodes))
	for _, nb := range root.Nodes {
		if _, dup := index[nb.Name]; dup {
			return graph.Document{}, fmt.Errorf("%s: duplicate node '%s'", filename, nb.Name)
		}
		nd, err := translateNode(filename, nb)
		if err != nil {
			return graph.Document{}, err
		}
		index[nb.Name] = len(doc.Nodes)
		doc.Nodes = append(doc.Nodes, nd)
	}

	for _, lb := range root.Links {
		from, fromPort, err := splitRef(lb.From)
		if err != nil {
			return graph.Document{}, fmt.Errorf("%s: link from: %w", filename, err)
		}
		to, toPort, err := splitRef(lb.To)
		if err != nil {
			return graph.Document{}, fmt.Errorf("%s: link to: %w", filename, err)
		}
		si, ok := index[from]
		if !ok {
			return graph.Document{}, fmt.Errorf("%s: link from unknown node '%s'", filename, from)
		}
		di, ok := index[to]
		if !ok {
			return graph.Document{}, fmt.Errorf("%s: link to unknown node '%s'", filename, to)
		}
		outs := doc.Nodes[si].Outputs
		outs[fromPort] = append(outs[fromPort], graph.Target{Node: di, Port: toPort})
	}

	logger.Debug("Graph file parsed.", "file", filename, "nodes", len(root.Nodes), "links", len(root.Links))
	return doc, nil
}

func translateNode(filename string, nb *nodeBlock) (graph.NodeDoc, error) {
	nd := graph.NodeDoc{
		Type:      nb.Type,
		Name:      nb.Name,
		Constants: make(map[string]cty.Value),
		External:  nb.External,
		Outputs:   make(map[string][]graph.Target),
	}

	switch len(nb.Position) {
	case 0:
	case 2:
		nd.Position = graph.Position{X: nb.Position[0], Y: nb.Position[1]}
	default:
		return graph.NodeDoc{}, fmt.Errorf("%s: node '%s': position needs two numbers, got %d", filename, nb.Name, len(nb.Position))
	}

	if !nb.Constants.IsNull() {
		ty := nb.Constants.Type()
		if !ty.IsObjectType() && !ty.IsMapType() {
			return graph.NodeDoc{}, fmt.Errorf("%s: node '%s': constants must be an object, got %s", filename, nb.Name, ty.FriendlyName())
		}
		for k, v := range nb.Constants.AsValueMap() {
			nd.Constants[k] = v
		}
	}
	return nd, nil
}

// splitRef parses "node.port". Node names may contain dots; the port is
// everything after the last one.
func splitRef(ref string) (string, string, error) {
	i := strings.LastIndex(ref, ".")
	if i <= 0 || i == len(ref)-1 {
		return "", "", fmt.Errorf("'%s' is not of the form node.port", ref)
	}
	return ref[:i], ref[i+1:], nil
}
