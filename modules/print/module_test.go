package print

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/detflow/internal/ndarray"
	"github.com/vk/detflow/internal/registry"
	"github.com/vk/detflow/internal/signal"
	"github.com/vk/detflow/internal/slicealg"
	"github.com/vk/detflow/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

func TestSummary(t *testing.T) {
	ctx := context.Background()
	sig, err := signal.New(ctx,
		testutil.Array(t, slicealg.Shape{2, 3}, 1, 2, 3, 4, 5, 6),
		testutil.Array(t, slicealg.Shape{2}, 0, 1),
		nil)
	require.NoError(t, err)

	testCases := []struct {
		name   string
		inputs map[string]any
		label  string
		want   string
	}{
		{name: "unlinked", want: "      (null)\n"},
		{name: "number", inputs: map[string]any{"value": 4.5}, label: "mean", want: "      mean: 4.5\n"},
		{name: "signal", inputs: map[string]any{"value": sig}, want: "      Signal(len=2, trigger=false) space=[2, 3]\n"},
		{
			name:   "lazy array",
			inputs: map[string]any{"value": testutil.Array(t, slicealg.Shape{4}, 1, 2, 3, 4)},
			want:   "      array shape=[4]\n",
		},
		{
			name:   "dense array",
			inputs: map[string]any{"value": ndarray.MustNew(slicealg.Shape{2}, []float64{1, 2})},
			want:   "      " + ndarray.MustNew(slicealg.Shape{2}, []float64{1, 2}).String() + "\n",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			r := registry.New()
			(&Module{Out: out}).Register(r)
			s, err := r.Lookup("print.Summary")
			require.NoError(t, err)

			consts := map[string]cty.Value{"label": cty.StringVal(tc.label)}
			_, err = testutil.RunNode(t, ctx, s, tc.inputs, consts, nil)

			require.NoError(t, err)
			assert.Equal(t, tc.want, out.String())
		})
	}
}
