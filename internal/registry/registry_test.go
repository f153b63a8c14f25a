package registry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/ctxlog"
	"github.com/vk/detflow/internal/node"
	"github.com/vk/detflow/internal/porttype"
	"github.com/zclconf/go-cty/cty"
)

func compute(context.Context, *node.Inputs, node.Constants, node.Namespace) (node.Outputs, error) {
	return nil, nil
}

type testModule struct{}

func (testModule) Register(r *Registry) {
	r.Register(node.NewSchema("test", "Source").Output("value", porttype.Float).Compute(compute).MustBuild())
	r.Register(node.NewSchema("test", "Sink").Input("value", porttype.Any).Final().Compute(compute).MustBuild())
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	testModule{}.Register(r)

	assert.Equal(t, []string{"test.Sink", "test.Source"}, r.IDs())

	s, err := r.Lookup("test.Sink")
	require.NoError(t, err)
	assert.True(t, s.Final)

	_, err = r.Lookup("test.Nope")
	assert.ErrorIs(t, err, apperr.ErrUnknownNodeType)

	assert.Panics(t, func() { testModule{}.Register(r) })
}

func TestValidate(t *testing.T) {
	var buf bytes.Buffer
	ctx := ctxlog.WithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))
	types := porttype.NewRegistry()

	t.Run("valid registry", func(t *testing.T) {
		r := New()
		testModule{}.Register(r)
		assert.NoError(t, r.Validate(ctx, types))
	})

	t.Run("unregistered types and bad defaults", func(t *testing.T) {
		r := New()
		roi := porttype.Type{Name: "roi", Value: cty.String}
		s := node.NewSchema("test", "Broken").
			Input("region", roi).
			Constant("n", porttype.Int, 1).
			Final().
			Compute(compute).
			MustBuild()
		s.Constants[0].Default = cty.StringVal("many")
		r.Register(s)

		err := r.Validate(ctx, types)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "input 'region' uses unregistered type 'roi'")
		assert.Contains(t, err.Error(), "constant 'n' default")
	})

	t.Run("dead node type warns", func(t *testing.T) {
		buf.Reset()
		r := New()
		r.Register(node.NewSchema("test", "Dead").Input("x", porttype.Float).Compute(compute).MustBuild())
		require.NoError(t, r.Validate(ctx, types))
		assert.Contains(t, buf.String(), "it can never run")
	})
}
