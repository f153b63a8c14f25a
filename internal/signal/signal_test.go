package signal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/lao"
	"github.com/vk/detflow/internal/slicealg"
)

func filled(t *testing.T, shape slicealg.Shape, offset float64) lao.Array {
	t.Helper()
	data := make([]float64, shape.Size())
	for i := range data {
		data[i] = offset + float64(i)
	}
	m, err := lao.FromValues(shape, data)
	require.NoError(t, err)
	return m
}

func item(t *testing.T, ctx context.Context, a lao.Array, d slicealg.Descriptor) float64 {
	t.Helper()
	arr, err := a.RequestData(ctx, d)
	require.NoError(t, err)
	v, err := arr.Item()
	require.NoError(t, err)
	return v
}

func TestNew_LengthMismatch(t *testing.T) {
	ctx := context.Background()
	_, err := New(ctx, filled(t, slicealg.Shape{5, 2, 2}, 0), filled(t, slicealg.Shape{4}, 0), nil)
	assert.ErrorIs(t, err, apperr.ErrSignalShape)

	_, err = New(ctx, filled(t, slicealg.Shape{4, 2}, 0), filled(t, slicealg.Shape{4}, 0), filled(t, slicealg.Shape{3}, 0))
	assert.ErrorIs(t, err, apperr.ErrSignalShape)

	_, err = New(ctx, filled(t, slicealg.Shape{4, 2}, 0), filled(t, slicealg.Shape{4, 2}, 0), nil)
	assert.ErrorIs(t, err, apperr.ErrSignalShape)
}

func TestNew_SqueezesTime(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, filled(t, slicealg.Shape{6, 3}, 0), filled(t, slicealg.Shape{6, 1}, 100), nil)
	require.NoError(t, err)

	shape, err := s.Time().Shape(ctx)
	require.NoError(t, err)
	assert.Equal(t, slicealg.Shape{6}, shape)
	assert.Equal(t, 103.0, item(t, ctx, s.Time(), slicealg.Desc(slicealg.At(3))))
}

func TestIndex_SliceKeepsChannelsAligned(t *testing.T) {
	ctx := context.Background()
	space := filled(t, slicealg.Shape{10, 4, 3}, 0)
	time := filled(t, slicealg.Shape{10}, 1000)
	s, err := New(ctx, space, time, nil)
	require.NoError(t, err)

	cut, err := s.Index(ctx, slicealg.Desc(slicealg.Range(2, 5)))
	require.NoError(t, err)
	assert.Equal(t, 3, cut.Len())
	assert.Equal(t,
		item(t, ctx, s.Time(), slicealg.Desc(slicealg.At(2))),
		item(t, ctx, cut.Time(), slicealg.Desc(slicealg.At(0))))

	shape, err := cut.Space().Shape(ctx)
	require.NoError(t, err)
	assert.Equal(t, slicealg.Shape{3, 4, 3}, shape)
}

func TestIndex_SpatialItemsOnlyAffectSpace(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, filled(t, slicealg.Shape{8, 4, 3}, 0), filled(t, slicealg.Shape{8}, 0), filled(t, slicealg.Shape{8}, 0))
	require.NoError(t, err)

	sub, err := s.Index(ctx, slicealg.Desc(slicealg.Step(0, 8, 2), slicealg.At(1)))
	require.NoError(t, err)
	assert.Equal(t, 4, sub.Len())
	assert.True(t, sub.HasTrigger())

	shape, err := sub.Space().Shape(ctx)
	require.NoError(t, err)
	assert.Equal(t, slicealg.Shape{4, 3}, shape)
	assert.Equal(t, 6.0, item(t, ctx, sub.Trigger(), slicealg.Desc(slicealg.At(3))))

	_, err = s.Index(ctx, slicealg.Desc(slicealg.At(1)))
	assert.ErrorIs(t, err, apperr.ErrSignalShape)
}

func TestExtend(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, filled(t, slicealg.Shape{3, 2}, 0), filled(t, slicealg.Shape{3}, 0), nil)
	require.NoError(t, err)
	b, err := New(ctx, filled(t, slicealg.Shape{2, 2}, 50), filled(t, slicealg.Shape{2}, 10), nil)
	require.NoError(t, err)

	joined, err := a.Extend(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 5, joined.Len())
	assert.Equal(t, 11.0, item(t, ctx, joined.Time(), slicealg.Desc(slicealg.At(4))))
	assert.Equal(t, 52.0, item(t, ctx, joined.Space(), slicealg.Desc(slicealg.At(4), slicealg.At(0))))

	withTrigger, err := b.WithTrigger(ctx, filled(t, slicealg.Shape{2}, 0))
	require.NoError(t, err)
	_, err = a.Extend(ctx, withTrigger)
	assert.ErrorIs(t, err, apperr.ErrSignalShape)

	odd, err := New(ctx, filled(t, slicealg.Shape{2, 3}, 0), filled(t, slicealg.Shape{2}, 0), nil)
	require.NoError(t, err)
	_, err = a.Extend(ctx, odd)
	assert.ErrorIs(t, err, apperr.ErrShapeMismatch)
}

func TestWithTime_Revalidates(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, filled(t, slicealg.Shape{4, 2}, 0), filled(t, slicealg.Shape{4}, 0), nil)
	require.NoError(t, err)

	_, err = s.WithTime(ctx, filled(t, slicealg.Shape{5}, 0))
	assert.ErrorIs(t, err, apperr.ErrSignalShape)

	retimed, err := s.WithTime(ctx, filled(t, slicealg.Shape{4}, 7))
	require.NoError(t, err)
	assert.Equal(t, 7.0, item(t, ctx, retimed.Time(), slicealg.Desc(slicealg.At(0))))
	assert.Equal(t, 0.0, item(t, ctx, s.Time(), slicealg.Desc(slicealg.At(0))), "original must be unchanged")
}
