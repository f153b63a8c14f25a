package framestore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/lao"
	"github.com/vk/detflow/internal/ndarray"
	"github.com/vk/detflow/internal/slicealg"
)

// fill writes n frames of shape [2] holding (i, -i).
func fill(t *testing.T, s *Store, field string, n int) {
	t.Helper()
	ctx := context.Background()
	w, err := s.Begin(ctx, field, slicealg.Shape{2})
	require.NoError(t, err)
	data := make([]float64, 0, 2*n)
	for i := 0; i < n; i++ {
		data = append(data, float64(i), -float64(i))
	}
	require.NoError(t, w.Append(ctx, ndarray.MustNew(slicealg.Shape{n, 2}, data)))
	require.NoError(t, w.Commit())
}

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "frames.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_WriteAndRead(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	fill(t, s, "space", 6)

	fields, err := s.Fields(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"space"}, fields)

	shape, err := s.Shape(ctx, "space")
	require.NoError(t, err)
	assert.Equal(t, slicealg.Shape{6, 2}, shape)

	f, err := s.Frame(ctx, "space", 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{4, -4}, f.Data())

	r, err := s.Range(ctx, "space", slicealg.Bounds{Start: 1, Stop: 6, Step: 2})
	require.NoError(t, err)
	assert.Equal(t, slicealg.Shape{3, 2}, r.Shape())
	assert.Equal(t, []float64{1, -1, 3, -3, 5, -5}, r.Data())

	empty, err := s.Range(ctx, "space", slicealg.Bounds{Start: 3, Stop: 3, Step: 1})
	require.NoError(t, err)
	assert.Equal(t, slicealg.Shape{0, 2}, empty.Shape())
}

func TestStore_AppendContinues(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	fill(t, s, "space", 2)
	fill(t, s, "space", 3)

	shape, err := s.Shape(ctx, "space")
	require.NoError(t, err)
	assert.Equal(t, slicealg.Shape{5, 2}, shape)

	f, err := s.Frame(ctx, "space", 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, f.Data())
}

func TestStore_Rollback(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	fill(t, s, "space", 2)

	w, err := s.Begin(ctx, "space", slicealg.Shape{2})
	require.NoError(t, err)
	require.NoError(t, w.Append(ctx, ndarray.MustNew(slicealg.Shape{1, 2}, []float64{9, 9})))
	assert.Equal(t, 3, w.Len())
	require.NoError(t, w.Rollback())

	shape, err := s.Shape(ctx, "space")
	require.NoError(t, err)
	assert.Equal(t, slicealg.Shape{2, 2}, shape)
}

func TestBatch_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	fill(t, s, "space", 4)
	fill(t, s, "time", 4)

	replace := func() *Batch {
		b, err := s.BeginBatch(ctx)
		require.NoError(t, err)
		require.NoError(t, b.Delete(ctx, "space"))
		require.NoError(t, b.Delete(ctx, "time"))
		w, err := b.Writer(ctx, "space", slicealg.Shape{3})
		require.NoError(t, err)
		require.NoError(t, w.Append(ctx, ndarray.MustNew(slicealg.Shape{1, 3}, []float64{7, 8, 9})))
		return b
	}

	require.NoError(t, replace().Rollback())
	for _, field := range []string{"space", "time"} {
		shape, err := s.Shape(ctx, field)
		require.NoError(t, err)
		assert.Equal(t, slicealg.Shape{4, 2}, shape, field)
	}

	b := replace()
	require.NoError(t, b.Commit())
	assert.ErrorIs(t, b.Rollback(), sql.ErrTxDone)

	shape, err := s.Shape(ctx, "space")
	require.NoError(t, err)
	assert.Equal(t, slicealg.Shape{1, 3}, shape)
	_, err = s.Shape(ctx, "time")
	assert.ErrorIs(t, err, apperr.ErrResourceNotFound)
}

func TestStore_Plans(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)

	_, err := s.Plan(ctx, "background")
	assert.ErrorIs(t, err, apperr.ErrResourceNotFound)

	require.NoError(t, s.SavePlan(ctx, "background", []byte{1, 2}))
	require.NoError(t, s.SavePlan(ctx, "background", []byte{3}))
	tree, err := s.Plan(ctx, "background")
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, tree)

	fields, err := s.Fields(ctx)
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	fill(t, s, "space", 3)

	_, err := s.Shape(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrResourceNotFound)

	_, err = s.Frame(ctx, "space", 3)
	assert.ErrorIs(t, err, apperr.ErrIndexOutOfRange)

	_, err = s.Range(ctx, "space", slicealg.Bounds{Start: 0, Stop: 5, Step: 1})
	assert.ErrorIs(t, err, apperr.ErrIndexOutOfRange)

	_, err = s.Begin(ctx, "space", slicealg.Shape{3})
	assert.ErrorIs(t, err, apperr.ErrShapeMismatch)

	w, err := s.Begin(ctx, "other", slicealg.Shape{2})
	require.NoError(t, err)
	err = w.Append(ctx, ndarray.MustNew(slicealg.Shape{2, 3}, make([]float64, 6)))
	assert.ErrorIs(t, err, apperr.ErrShapeMismatch)
	require.NoError(t, w.Rollback())

	require.NoError(t, s.Delete(ctx, "space"))
	_, err = s.Shape(ctx, "space")
	assert.ErrorIs(t, err, apperr.ErrResourceNotFound)
}

func TestOpener_ServesDescriptors(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "frames.db")
	s, err := Open(path)
	require.NoError(t, err)
	fill(t, s, "space", 5)
	require.NoError(t, s.Close())

	openers := lao.NewOpeners()
	openers.Register(Scheme, Opener())
	src := lao.NewSource(openers, lao.Locator{Scheme: Scheme, Path: path, Field: "space"})
	defer src.Close()

	shape, err := src.Shape(ctx)
	require.NoError(t, err)
	assert.Equal(t, slicealg.Shape{5, 2}, shape)

	got, err := src.RequestData(ctx, slicealg.Desc(slicealg.Step(0, 5, 2), slicealg.At(1)))
	require.NoError(t, err)
	assert.Equal(t, slicealg.Shape{3}, got.Shape())
	assert.Equal(t, []float64{0, -2, -4}, got.Data())

	got, err = src.RequestData(ctx, slicealg.Desc(slicealg.At(-1)))
	require.NoError(t, err)
	assert.Equal(t, []float64{4, -4}, got.Data())

	view, err := lao.Index(ctx, src, slicealg.Desc(slicealg.Range(1, 4)))
	require.NoError(t, err)
	all, err := lao.Materialize(ctx, view)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, -1, 2, -2, 3, -3}, all.Data())
}

func TestOpener_NotFound(t *testing.T) {
	ctx := context.Background()
	open := Opener()

	_, err := open(ctx, lao.Locator{Scheme: Scheme, Path: filepath.Join(t.TempDir(), "nope.db"), Field: "x"})
	assert.ErrorIs(t, err, apperr.ErrResourceNotFound)

	path := filepath.Join(t.TempDir(), "frames.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	_, err = open(ctx, lao.Locator{Scheme: Scheme, Path: path, Field: "x"})
	assert.ErrorIs(t, err, apperr.ErrResourceNotFound)
}
