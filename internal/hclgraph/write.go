package hclgraph

import (
	"sort"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/vk/detflow/internal/graph"
	"github.com/zclconf/go-cty/cty"
)

// Write renders a document as formatted HCL. Output ports are written in
// name order.
func Write(doc graph.Document) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	for i, nd := range doc.Nodes {
		if i > 0 {
			body.AppendNewline()
		}
		blk := body.AppendNewBlock("node", []string{nd.Name}).Body()
		blk.SetAttributeValue("type", cty.StringVal(nd.Type))
		blk.SetAttributeValue("position", cty.TupleVal([]cty.Value{
			cty.NumberFloatVal(nd.Position.X),
			cty.NumberFloatVal(nd.Position.Y),
		}))
		if len(nd.Constants) > 0 {
			blk.SetAttributeValue("constants", cty.ObjectVal(nd.Constants))
		}
		if len(nd.External) > 0 {
			ext := make([]cty.Value, len(nd.External))
			for j, name := range nd.External {
				ext[j] = cty.StringVal(name)
			}
			blk.SetAttributeValue("external", cty.TupleVal(ext))
		}
	}

	for _, nd := range doc.Nodes {
		ports := make([]string, 0, len(nd.Outputs))
		for p := range nd.Outputs {
			ports = append(ports, p)
		}
		sort.Strings(ports)
		for _, p := range ports {
			for _, t := range nd.Outputs[p] {
				if t.Node < 0 || t.Node >= len(doc.Nodes) {
					continue
				}
				body.AppendNewline()
				blk := body.AppendNewBlock("link", nil).Body()
				blk.SetAttributeValue("from", cty.StringVal(nd.Name+"."+p))
				blk.SetAttributeValue("to", cty.StringVal(doc.Nodes[t.Node].Name+"."+t.Port))
			}
		}
	}
	return hclwrite.Format(f.Bytes())
}
