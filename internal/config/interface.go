package config

import (
	"context"

	"github.com/vk/detflow/internal/graph"
)

// GraphFormat reads and writes graph documents in one file format.
type GraphFormat interface {
	// Load reads the graph file at path.
	Load(ctx context.Context, path string) (graph.Document, error)

	// Write renders a document in the format, ready to be saved.
	Write(doc graph.Document) []byte
}
