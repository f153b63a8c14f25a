package node

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/lao"
	"github.com/vk/detflow/internal/ndarray"
	"github.com/vk/detflow/internal/porttype"
	"github.com/vk/detflow/internal/slicealg"
	"github.com/zclconf/go-cty/cty"
)

func noop(context.Context, *Inputs, Constants, Namespace) (Outputs, error) { return nil, nil }

func TestBuilder(t *testing.T) {
	s, err := NewSchema("math", "AddNumber").
		Describe("Adds a constant.").
		Input("value", porttype.Float).
		Output("result", porttype.Float).
		Constant("amount", porttype.Float, 2, External()).
		Compute(noop).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "math.AddNumber", s.ID())
	assert.False(t, s.Final)
	c, ok := s.Constant("amount")
	require.True(t, ok)
	assert.True(t, c.AllowExternal)
	assert.False(t, c.Optional)
	assert.True(t, c.Default.Equals(cty.NumberIntVal(2)).True())

	_, ok = s.Input("value")
	assert.True(t, ok)
	_, ok = s.Output("value")
	assert.False(t, ok)
}

func TestBuilder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		builder *Builder
		msg     string
	}{
		{"no compute", NewSchema("a", "B"), "compute function is required"},
		{"duplicate input", NewSchema("a", "B").Input("x", porttype.Any).Input("x", porttype.Any).Compute(noop), "duplicate input 'x'"},
		{"constant shadows input", NewSchema("a", "B").Input("x", porttype.Any).Constant("x", porttype.Int, 1).Compute(noop), "shadows an input"},
		{"bad default", NewSchema("a", "B").Constant("n", porttype.Int, 1.5).Compute(noop), "not a whole number"},
		{"no class", NewSchema("a", "").Compute(noop), "namespace and class are required"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.builder.Build()
			assert.ErrorContains(t, err, tc.msg)
		})
	}

	assert.Panics(t, func() { NewSchema("a", "B").MustBuild() })
}

func TestInputs_Require(t *testing.T) {
	ports := []Port{
		{Name: "a", Type: porttype.Float},
		{Name: "b", Type: porttype.Float},
		{Name: "c", Type: porttype.Float, Optional: true},
		{Name: "d", Type: porttype.Array},
	}
	var nilMap map[string]int
	in := NewInputs("n1", ports,
		map[string]bool{"a": true, "d": true},
		map[string]any{"a": 5.0, "d": nilMap},
	)

	v, err := in.Require("a")
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)

	_, err = in.Require("b")
	assert.ErrorIs(t, err, apperr.ErrMissingInput)

	v, err = in.Require("c")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = in.Require("d")
	assert.ErrorIs(t, err, apperr.ErrNullInput)

	_, err = in.Require("zzz")
	assert.ErrorIs(t, err, apperr.ErrUnknownPort)

	assert.Nil(t, in.Optional("b"))
	assert.Nil(t, in.Optional("d"))
	assert.Equal(t, 5.0, in.Optional("a"))
}

func TestGet(t *testing.T) {
	in := NewInputs("n1",
		[]Port{{Name: "a", Type: porttype.Float}, {Name: "b", Type: porttype.Float, Optional: true}},
		map[string]bool{"a": true},
		map[string]any{"a": 5.0},
	)

	f, err := Get[float64](in, "a")
	require.NoError(t, err)
	assert.Equal(t, 5.0, f)

	_, err = Get[string](in, "a")
	assert.ErrorContains(t, err, "expected string, got float64")

	_, ok, err := GetOptional[float64](in, "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConstants(t *testing.T) {
	c := Constants{
		"gain":  cty.NumberFloatVal(1.5),
		"count": cty.NumberIntVal(3),
		"name":  cty.StringVal("det0"),
		"on":    cty.True,
		"unset": cty.NullVal(cty.Number),
	}

	f, err := c.Float("gain")
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)

	n, err := c.Int("count")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	s, err := c.String("name")
	require.NoError(t, err)
	assert.Equal(t, "det0", s)

	b, err := c.Bool("on")
	require.NoError(t, err)
	assert.True(t, b)

	assert.False(t, c.Has("unset"))
	assert.False(t, c.Has("missing"))
	_, err = c.Float("unset")
	assert.ErrorIs(t, err, apperr.ErrNullInput)
}

func TestInputs_EmptyValuesAreNotNull(t *testing.T) {
	ports := []Port{
		{Name: "text", Type: porttype.String},
		{Name: "count", Type: porttype.Int},
		{Name: "frames", Type: porttype.Array},
	}
	empty := lao.NewMemory(ndarray.Zeros(slicealg.Shape{0, 2}))
	in := NewInputs("n1", ports,
		map[string]bool{"text": true, "count": true, "frames": true},
		map[string]any{"text": "", "count": 0, "frames": empty},
	)

	text, err := Get[string](in, "text")
	require.NoError(t, err)
	assert.Empty(t, text)

	count, err := Get[int](in, "count")
	require.NoError(t, err)
	assert.Zero(t, count)

	v, err := in.Require("frames")
	require.NoError(t, err)
	assert.Same(t, empty, v)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestCleanup(t *testing.T) {
	Track(context.Background(), closerFunc(func() error {
		t.Fatal("closed without a run")
		return nil
	}))

	ctx, cleanup := WithCleanup(context.Background())
	var order []string
	Track(ctx, closerFunc(func() error { order = append(order, "first"); return nil }))
	Track(ctx, closerFunc(func() error { order = append(order, "second"); return errors.New("second failed") }))
	Track(ctx, closerFunc(func() error { order = append(order, "third"); return nil }))
	assert.Equal(t, 3, cleanup.Len())

	err := cleanup.Close()
	assert.ErrorContains(t, err, "second failed")
	assert.Equal(t, []string{"third", "second", "first"}, order)
	assert.Zero(t, cleanup.Len())

	require.NoError(t, cleanup.Close())
	assert.Len(t, order, 3)
}
