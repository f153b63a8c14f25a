package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/detflow/internal/apperr"
)

func TestNew(t *testing.T) {
	g := New()
	require.NotNil(t, g)
	assert.NotNil(t, g.nodes)
	assert.Zero(t, g.Len())
}

func TestAddNode(t *testing.T) {
	g := New()

	g.AddNode("a")
	assert.Equal(t, 1, g.Len())
	nodeA, ok := g.nodes["a"]
	require.True(t, ok)
	assert.Equal(t, "a", nodeA.id)

	g.AddNode("a") // Test idempotency
	assert.Equal(t, 1, g.Len())

	g.AddNode("b")
	assert.Equal(t, []string{"a", "b"}, g.order)
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		g.AddNode("c")

		require.NoError(t, g.AddEdge("a", "c")) // c depends on a
		require.NoError(t, g.AddEdge("b", "c"))
		require.NoError(t, g.AddEdge("a", "c")) // duplicate is a no-op

		require.NoError(t, g.AddEdge("b", "a"))

		dependents, err := g.Dependents("a")
		require.NoError(t, err)
		assert.Equal(t, []string{"c"}, dependents)

		dependents, err = g.Dependents("b")
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a"}, dependents)
	})

	t.Run("error cases", func(t *testing.T) {
		g := New()
		g.AddNode("a")
		g.AddNode("b")

		err := g.AddEdge("dne", "a")
		assert.ErrorContains(t, err, "source node not found")

		err = g.AddEdge("a", "dne")
		assert.ErrorContains(t, err, "destination node not found")

		err = g.AddEdge("a", "a")
		assert.ErrorIs(t, err, apperr.ErrCircularDependency)

		_, err = g.Dependents("dne")
		assert.ErrorContains(t, err, "node not found")
	})
}

func TestTopologicalOrder(t *testing.T) {
	g := New()
	for _, id := range []string{"src", "left", "right", "join", "sink", "orphan"} {
		g.AddNode(id)
	}
	require.NoError(t, g.AddEdge("src", "left"))
	require.NoError(t, g.AddEdge("src", "right"))
	require.NoError(t, g.AddEdge("right", "join")) // join declares right first
	require.NoError(t, g.AddEdge("left", "join"))
	require.NoError(t, g.AddEdge("join", "sink"))

	order, err := g.TopologicalOrder([]string{"sink"})
	require.NoError(t, err)
	assert.Equal(t, []string{"src", "right", "left", "join", "sink"}, order)

	again, err := g.TopologicalOrder([]string{"sink"})
	require.NoError(t, err)
	assert.Equal(t, order, again)

	order, err = g.TopologicalOrder([]string{"left", "orphan"})
	require.NoError(t, err)
	assert.Equal(t, []string{"src", "left", "orphan"}, order)

	_, err = g.TopologicalOrder([]string{"dne"})
	assert.ErrorContains(t, err, "node not found")
}

func TestTopologicalOrder_CycleOnlyWhenReachable(t *testing.T) {
	g := New()
	for _, id := range []string{"a", "b", "c", "x", "y"} {
		g.AddNode(id)
	}
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "c"))
	require.NoError(t, g.AddEdge("x", "y"))
	require.NoError(t, g.AddEdge("y", "x"))

	order, err := g.TopologicalOrder([]string{"c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)

	require.NoError(t, g.AddEdge("y", "a"))
	_, err = g.TopologicalOrder([]string{"c"})
	assert.ErrorIs(t, err, apperr.ErrCircularDependency)
}
