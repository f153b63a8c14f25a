// Package testutil holds helpers shared by package tests: a log capture
// buffer, a direct node runner and a slow node type for timing tests.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/detflow/internal/lao"
	"github.com/vk/detflow/internal/ndarray"
	"github.com/vk/detflow/internal/node"
	"github.com/vk/detflow/internal/porttype"
	"github.com/vk/detflow/internal/slicealg"
	"github.com/zclconf/go-cty/cty"
)

// RunNode calls a node body directly. Every key of inputs counts as linked;
// constants not given in consts take their defaults, and given ones are
// conformed to the declared type.
func RunNode(t *testing.T, ctx context.Context, s *node.Schema, inputs map[string]any, consts map[string]cty.Value, ns node.Namespace) (node.Outputs, error) {
	t.Helper()
	linked := make(map[string]bool, len(inputs))
	for k := range inputs {
		linked[k] = true
	}
	resolved := make(node.Constants, len(s.Constants))
	for _, def := range s.Constants {
		v, ok := consts[def.Name]
		if !ok {
			resolved[def.Name] = def.Default
			continue
		}
		conformed, err := porttype.Conform(def.Type, v)
		require.NoError(t, err, "constant '%s'", def.Name)
		resolved[def.Name] = conformed
	}
	if ns == nil {
		ns = node.Namespace{}
	}
	return s.Compute(ctx, node.NewInputs(s.ID(), s.Inputs, linked, inputs), resolved, ns)
}

// Array wraps values in an in-memory lazy array.
func Array(t *testing.T, shape slicealg.Shape, data ...float64) lao.Array {
	t.Helper()
	arr, err := ndarray.New(shape, data)
	require.NoError(t, err)
	return lao.NewMemory(arr)
}

// Data materializes a lazy array.
func Data(t *testing.T, a lao.Array) *ndarray.Array {
	t.Helper()
	arr, err := lao.Materialize(context.Background(), a)
	require.NoError(t, err)
	return arr
}
