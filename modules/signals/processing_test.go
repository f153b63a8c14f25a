package signals

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/signal"
	"github.com/vk/detflow/internal/slicealg"
	"github.com/vk/detflow/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

func TestCutTime(t *testing.T) {
	testCases := []struct {
		name   string
		consts map[string]cty.Value
		time   []float64
	}{
		{name: "defaults keep everything", time: []float64{10, 11, 12, 13, 14}},
		{name: "empty bounds keep everything", consts: map[string]cty.Value{"start": cty.StringVal(""), "end": cty.StringVal("")}, time: []float64{10, 11, 12, 13, 14}},
		{name: "window", consts: map[string]cty.Value{"start": cty.StringVal("1s"), "end": cty.StringVal("2s")}, time: []float64{11, 12}},
		{name: "end only", consts: map[string]cty.Value{"end": cty.StringVal("1500ms")}, time: []float64{10, 11}},
		{
			name:   "from end",
			consts: map[string]cty.Value{"start": cty.StringVal("-2s"), "count_from_end": cty.True},
			time:   []float64{12, 13, 14},
		},
		{name: "inverted window keeps one record", consts: map[string]cty.Value{"start": cty.StringVal("1s"), "end": cty.StringVal("-1s")}, time: []float64{11}},
		{name: "start past the end", consts: map[string]cty.Value{"start": cty.StringVal("1m")}, time: []float64{14}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := map[string]any{"signal": makeSignal(t, 5, true)}
			out, err := testutil.RunNode(t, context.Background(), schema(t, "CutTime"), in, tc.consts, nil)
			require.NoError(t, err)
			sig := outSignal(t, out)
			assert.Equal(t, tc.time, testutil.Data(t, sig.Time()).Data())
			assert.True(t, sig.HasTrigger())
		})
	}

	in := map[string]any{"signal": makeSignal(t, 5, false)}
	_, err := testutil.RunNode(t, context.Background(), schema(t, "CutTime"), in,
		map[string]cty.Value{"start": cty.StringVal("soon")}, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidConstant)
}

func TestMovingMean(t *testing.T) {
	ctx := context.Background()
	sig, err := signal.New(ctx,
		testutil.Array(t, slicealg.Shape{5}, 0, 3, 0, 3, 0),
		testutil.Array(t, slicealg.Shape{5}, 0, 1, 2, 3, 4),
		nil)
	require.NoError(t, err)

	out, err := testutil.RunNode(t, ctx, schema(t, "MovingMean"), map[string]any{"signal": sig},
		map[string]cty.Value{"window": cty.NumberIntVal(2)}, nil)
	require.NoError(t, err)

	background, ok := out["background"].(*signal.Signal)
	require.True(t, ok)
	detail, ok := out["detail"].(*signal.Signal)
	require.True(t, ok)
	assert.Equal(t, []float64{1.5, 1.5, 1.5, 1.5}, testutil.Data(t, background.Space()).Data())
	assert.Equal(t, []float64{1.5, -1.5, 1.5, -1.5}, testutil.Data(t, detail.Space()).Data())
	assert.Equal(t, []float64{1, 2, 3, 4}, testutil.Data(t, background.Time()).Data())
	assert.Equal(t, []float64{1, 2, 3, 4}, testutil.Data(t, detail.Time()).Data())

	_, err = testutil.RunNode(t, ctx, schema(t, "MovingMean"), map[string]any{"signal": sig},
		map[string]cty.Value{"window": cty.NumberIntVal(6)}, nil)
	assert.ErrorIs(t, err, apperr.ErrShapeMismatch)
}

func TestReduceResolution(t *testing.T) {
	testCases := []struct {
		sum   bool
		space []float64
	}{
		{false, []float64{0.5, 1.5, 2.5, 3.5}},
		{true, []float64{1, 3, 5, 7}},
	}
	for _, tc := range testCases {
		in := map[string]any{"signal": makeSignal(t, 5, true)}
		out, err := testutil.RunNode(t, context.Background(), schema(t, "ReduceResolution"), in,
			map[string]cty.Value{"factor": cty.NumberIntVal(2), "sum": cty.BoolVal(tc.sum)}, nil)
		require.NoError(t, err)
		sig := outSignal(t, out)
		require.Equal(t, 2, sig.Len())
		space := testutil.Data(t, sig.Space())
		assert.Equal(t, slicealg.Shape{2, 2}, space.Shape())
		assert.Equal(t, tc.space, space.Data(), "sum=%t", tc.sum)
		assert.Equal(t, []float64{10, 12}, testutil.Data(t, sig.Time()).Data())
		assert.Equal(t, []float64{1, 1}, testutil.Data(t, sig.Trigger()).Data())
	}

	in := map[string]any{"signal": makeSignal(t, 5, false)}
	_, err := testutil.RunNode(t, context.Background(), schema(t, "ReduceResolution"), in,
		map[string]cty.Value{"factor": cty.NumberIntVal(0)}, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidConstant)
}

func TestFlatField(t *testing.T) {
	testCases := []struct {
		class string
		frame []float64
		want  []float64
	}{
		{"FlatDivide", []float64{2, 0}, []float64{0, 0, 0.5, 0, 1, 0}},
		{"FlatSubtract", []float64{1, 1}, []float64{-1, 0, 0, 1, 1, 2}},
	}
	for _, tc := range testCases {
		t.Run(tc.class, func(t *testing.T) {
			in := map[string]any{
				"signal": makeSignal(t, 3, false),
				"frame":  testutil.Array(t, slicealg.Shape{2}, tc.frame...),
			}
			out, err := testutil.RunNode(t, context.Background(), schema(t, tc.class), in, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.want, testutil.Data(t, outSignal(t, out).Space()).Data())

			in["frame"] = testutil.Array(t, slicealg.Shape{3}, 1, 1, 1)
			_, err = testutil.RunNode(t, context.Background(), schema(t, tc.class), in, nil, nil)
			assert.ErrorIs(t, err, apperr.ErrShapeMismatch)
		})
	}
}
