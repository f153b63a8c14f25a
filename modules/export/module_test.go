package export

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/detflow/internal/framestore"
	"github.com/vk/detflow/internal/lao"
	"github.com/vk/detflow/internal/ndarray"
	"github.com/vk/detflow/internal/node"
	"github.com/vk/detflow/internal/registry"
	"github.com/vk/detflow/internal/signal"
	"github.com/vk/detflow/internal/slicealg"
	"github.com/vk/detflow/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

func schema(t *testing.T) *node.Schema {
	t.Helper()
	r := registry.New()
	(&Module{}).Register(r)
	s, err := r.Lookup("export.Store")
	require.NoError(t, err)
	return s
}

func makeSignal(t *testing.T, n int, trigger bool) *signal.Signal {
	t.Helper()
	space := make([]float64, 0, 2*n)
	time := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		space = append(space, float64(i), float64(-i))
		time = append(time, float64(i)/10)
	}
	var trig lao.Array
	if trigger {
		mask := make([]float64, n)
		mask[0] = 1
		trig = testutil.Array(t, slicealg.Shape{n}, mask...)
	}
	sig, err := signal.New(context.Background(),
		testutil.Array(t, slicealg.Shape{n, 2}, space...),
		testutil.Array(t, slicealg.Shape{n}, time...),
		trig)
	require.NoError(t, err)
	return sig
}

func readField(t *testing.T, path, field string) ([]float64, slicealg.Shape) {
	t.Helper()
	ctx := context.Background()
	store, err := framestore.Open(path)
	require.NoError(t, err)
	defer store.Close()
	shape, err := store.Shape(ctx, field)
	require.NoError(t, err)
	arr, err := store.Range(ctx, field, slicealg.Bounds{Start: 0, Stop: shape[0], Step: 1})
	require.NoError(t, err)
	return arr.Data(), shape
}

func TestStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.db")
	consts := map[string]cty.Value{
		"path":   cty.StringVal(path),
		"prefix": cty.StringVal("run1/"),
		"chunk":  cty.NumberIntVal(3),
	}

	_, err := testutil.RunNode(t, context.Background(), schema(t), map[string]any{"signal": makeSignal(t, 7, true)}, consts, nil)
	require.NoError(t, err)

	space, shape := readField(t, path, "run1/space")
	assert.Equal(t, slicealg.Shape{7, 2}, shape)
	assert.Equal(t, []float64{0, 0, 1, -1, 2, -2, 3, -3, 4, -4, 5, -5, 6, -6}, space)

	time, shape := readField(t, path, "run1/time")
	assert.Equal(t, slicealg.Shape{7}, shape)
	assert.InDelta(t, 0.6, time[6], 1e-12)

	trigger, _ := readField(t, path, "run1/trigger")
	assert.Equal(t, []float64{1, 0, 0, 0, 0, 0, 0}, trigger)
}

func TestStore_Overwrite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.db")
	consts := map[string]cty.Value{"path": cty.StringVal(path)}

	_, err := testutil.RunNode(t, ctx, schema(t), map[string]any{"signal": makeSignal(t, 4, false)}, consts, nil)
	require.NoError(t, err)
	_, err = testutil.RunNode(t, ctx, schema(t), map[string]any{"signal": makeSignal(t, 2, false)}, consts, nil)
	require.NoError(t, err)
	_, shape := readField(t, path, "time")
	assert.Equal(t, slicealg.Shape{2}, shape)

	consts["overwrite"] = cty.False
	_, err = testutil.RunNode(t, ctx, schema(t), map[string]any{"signal": makeSignal(t, 3, false)}, consts, nil)
	require.NoError(t, err)
	_, shape = readField(t, path, "time")
	assert.Equal(t, slicealg.Shape{5}, shape)
}

// brokenArray has a shape but fails every read.
type brokenArray struct {
	shape slicealg.Shape
}

func (b brokenArray) Shape(context.Context) (slicealg.Shape, error) { return b.shape, nil }

func (b brokenArray) RequestData(context.Context, slicealg.Descriptor) (*ndarray.Array, error) {
	return nil, errors.New("time channel unreadable")
}

func TestStore_FailedOverwriteKeepsPreviousSignal(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.db")
	consts := map[string]cty.Value{"path": cty.StringVal(path)}

	_, err := testutil.RunNode(t, ctx, schema(t), map[string]any{"signal": makeSignal(t, 4, false)}, consts, nil)
	require.NoError(t, err)

	broken, err := signal.New(ctx,
		testutil.Array(t, slicealg.Shape{3, 2}, 9, 9, 9, 9, 9, 9),
		brokenArray{shape: slicealg.Shape{3}},
		nil)
	require.NoError(t, err)
	_, err = testutil.RunNode(t, ctx, schema(t), map[string]any{"signal": broken}, consts, nil)
	require.ErrorContains(t, err, "time channel unreadable")
	assert.ErrorContains(t, err, "field 'time'")

	space, shape := readField(t, path, "space")
	assert.Equal(t, slicealg.Shape{4, 2}, shape)
	assert.Equal(t, []float64{0, 0, 1, -1, 2, -2, 3, -3}, space)
	time, shape := readField(t, path, "time")
	assert.Equal(t, slicealg.Shape{4}, shape)
	assert.Equal(t, []float64{0, 0.1, 0.2, 0.3}, time)
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	in := map[string]any{"signal": makeSignal(t, 3, false)}

	_, err := testutil.RunNode(t, ctx, schema(t), in, nil, nil)
	assert.ErrorContains(t, err, "path is required")

	path := filepath.Join(t.TempDir(), "out.db")
	_, err = testutil.RunNode(t, ctx, schema(t), in,
		map[string]cty.Value{"path": cty.StringVal(path), "chunk": cty.NumberIntVal(0)}, nil)
	assert.ErrorContains(t, err, "chunk must be positive")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = testutil.RunNode(t, cancelled, schema(t), in, map[string]cty.Value{"path": cty.StringVal(path)}, nil)
	assert.ErrorIs(t, err, context.Canceled)

	store, err := framestore.Open(path)
	require.NoError(t, err)
	defer store.Close()
	fields, err := store.Fields(ctx)
	require.NoError(t, err)
	for _, f := range fields {
		n, err := store.Shape(ctx, f)
		require.NoError(t, err)
		assert.Zero(t, n[0], "field %s has rows after a cancelled write", f)
	}
}

func TestSavePlan(t *testing.T) {
	ctx := context.Background()
	r := registry.New()
	(&Module{}).Register(r)
	s, err := r.Lookup("export.SavePlan")
	require.NoError(t, err)

	a := testutil.Array(t, slicealg.Shape{3, 2}, 1, 2, 3, 4, 5, 6)
	sum, err := lao.NewBinary(ctx, lao.OpAdd, a, a)
	require.NoError(t, err)
	smooth, err := lao.NewMovingMean(ctx, sum, 2)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "plans.db")
	consts := map[string]cty.Value{"path": cty.StringVal(path), "name": cty.StringVal("smooth")}
	_, err = testutil.RunNode(t, ctx, s, map[string]any{"array": lao.Array(smooth)}, consts, nil)
	require.NoError(t, err)

	store, err := framestore.Open(path)
	require.NoError(t, err)
	defer store.Close()
	tree, err := store.Plan(ctx, "smooth")
	require.NoError(t, err)
	rebuilt, err := lao.Decode(tree, lao.NewOpeners())
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 6, 8, 10}, testutil.Data(t, rebuilt).Data())

	_, err = testutil.RunNode(t, ctx, s, map[string]any{"array": brokenArray{shape: slicealg.Shape{1}}}, consts, nil)
	assert.ErrorContains(t, err, "cannot encode")
}
