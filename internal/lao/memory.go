package lao

import (
	"context"
	"fmt"

	"github.com/vk/detflow/internal/ndarray"
	"github.com/vk/detflow/internal/slicealg"
)

// Memory is a leaf over an array that is already in memory.
type Memory struct {
	arr *ndarray.Array
}

// NewMemory wraps a concrete array.
func NewMemory(arr *ndarray.Array) *Memory {
	return &Memory{arr: arr}
}

// FromValues builds a Memory leaf from row-major data.
func FromValues(shape slicealg.Shape, data []float64) (*Memory, error) {
	arr, err := ndarray.New(shape, data)
	if err != nil {
		return nil, err
	}
	return NewMemory(arr), nil
}

func (m *Memory) Shape(context.Context) (slicealg.Shape, error) {
	return m.arr.Shape(), nil
}

func (m *Memory) RequestData(_ context.Context, d slicealg.Descriptor) (*ndarray.Array, error) {
	return m.arr.Index(d)
}

// FrameFunc produces record i of a generated array. The returned slice must
// hold exactly one record worth of values.
type FrameFunc func(i int) []float64

// Generated is a leaf whose records are computed on demand. The codec ships
// it to workers as materialized data.
type Generated struct {
	name   string
	length int
	record slicealg.Shape
	fn     FrameFunc
}

// NewGenerated describes length records of the given shape produced by fn.
func NewGenerated(name string, length int, record slicealg.Shape, fn FrameFunc) *Generated {
	return &Generated{name: name, length: length, record: record.Clone(), fn: fn}
}

func (g *Generated) Shape(context.Context) (slicealg.Shape, error) {
	return append(slicealg.Shape{g.length}, g.record...), nil
}

func (g *Generated) RequestSingle(ctx context.Context, pos int) (*ndarray.Array, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := g.fn(pos)
	if len(data) != g.record.Size() {
		return nil, fmt.Errorf("generator %q produced %d values for record %d, want %d", g.name, len(data), pos, g.record.Size())
	}
	return ndarray.New(g.record, data)
}

func (g *Generated) RequestSlice(ctx context.Context, b slicealg.Bounds) (*ndarray.Array, error) {
	return SliceBySingles(ctx, g, b)
}

func (g *Generated) RequestData(ctx context.Context, d slicealg.Descriptor) (*ndarray.Array, error) {
	return Dispatch(ctx, g, d)
}
