package lao

import (
	"context"
	"fmt"

	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/ndarray"
	"github.com/vk/detflow/internal/slicealg"
)

// Array is a deferred, read-only N-dimensional value. Shape may consult a
// backing resource the first time it is called and must be cheap afterwards.
// RequestData is the only method that performs I/O; repeated identical
// requests return equal arrays.
type Array interface {
	Shape(ctx context.Context) (slicealg.Shape, error)
	RequestData(ctx context.Context, d slicealg.Descriptor) (*ndarray.Array, error)
}

// Indexer is the narrow contract a record-oriented leaf implements. Positions
// and bounds handed to it are already normalized against axis 0.
type Indexer interface {
	Shape(ctx context.Context) (slicealg.Shape, error)
	RequestSingle(ctx context.Context, pos int) (*ndarray.Array, error)
	RequestSlice(ctx context.Context, b slicealg.Bounds) (*ndarray.Array, error)
}

// Dispatch serves a descriptor from an Indexer. The first item becomes a
// single or slice request on axis 0; the remaining items are applied to the
// concrete result.
func Dispatch(ctx context.Context, ix Indexer, d slicealg.Descriptor) (*ndarray.Array, error) {
	shape, err := ix.Shape(ctx)
	if err != nil {
		return nil, err
	}
	if len(shape) == 0 {
		return nil, fmt.Errorf("%w: record source has no axes", apperr.ErrIndexOutOfRange)
	}
	if len(d) > len(shape) {
		return nil, fmt.Errorf("%w: %d indices for %d axes", apperr.ErrIndexOutOfRange, len(d), len(shape))
	}
	if len(d) == 0 {
		return ix.RequestSlice(ctx, slicealg.Bounds{Start: 0, Stop: shape[0], Step: 1})
	}

	first := d[0]
	if first.IsInt() {
		pos, err := slicealg.ResolveInt(shape[0], first.Int())
		if err != nil {
			return nil, err
		}
		head, err := ix.RequestSingle(ctx, pos)
		if err != nil {
			return nil, err
		}
		if len(d) == 1 {
			return head, nil
		}
		return head.Index(d[1:])
	}

	b, err := slicealg.Normalize(shape[0], first.Slice())
	if err != nil {
		return nil, err
	}
	head, err := ix.RequestSlice(ctx, b)
	if err != nil {
		return nil, err
	}
	if len(d) == 1 {
		return head, nil
	}
	rest := append(slicealg.Desc(slicealg.All()), d[1:]...)
	return head.Index(rest)
}

// SliceBySingles implements RequestSlice one record at a time. Leaves with a
// native range read should not use it.
func SliceBySingles(ctx context.Context, ix Indexer, b slicealg.Bounds) (*ndarray.Array, error) {
	shape, err := ix.Shape(ctx)
	if err != nil {
		return nil, err
	}
	record := slicealg.Shape(shape[1:])
	frames := make([]*ndarray.Array, 0, b.Len())
	for i := b.Start; i < b.Stop; i += b.Step {
		f, err := ix.RequestSingle(ctx, i)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return ndarray.Stack(record, frames)
}

// Len is the extent of axis 0.
func Len(ctx context.Context, a Array) (int, error) {
	shape, err := a.Shape(ctx)
	if err != nil {
		return 0, err
	}
	if len(shape) == 0 {
		return 0, fmt.Errorf("%w: array has no record axis", apperr.ErrShapeMismatch)
	}
	return shape[0], nil
}

// Materialize reads the whole array.
func Materialize(ctx context.Context, a Array) (*ndarray.Array, error) {
	return a.RequestData(ctx, nil)
}
