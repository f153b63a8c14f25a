package hclgraph

import (
	"context"

	"github.com/vk/detflow/internal/graph"
)

// Format is the HCL graph file format as a value, for callers that take a
// format interface.
type Format struct{}

// Load reads the graph file at path.
func (Format) Load(ctx context.Context, path string) (graph.Document, error) {
	return Load(ctx, path)
}

// Write renders a document as HCL.
func (Format) Write(doc graph.Document) []byte {
	return Write(doc)
}
