package lao

import (
	"context"
	"fmt"

	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/ndarray"
	"github.com/vk/detflow/internal/slicealg"
)

// MovingMean averages every run of window consecutive records. Record i of
// the result is the mean of child records [i, i+window), so the result is
// window-1 records shorter than its child.
type MovingMean struct {
	child  Array
	window int
}

// NewMovingMean fails when the window is not positive or is longer than the
// child.
func NewMovingMean(ctx context.Context, child Array, window int) (*MovingMean, error) {
	if window < 1 {
		return nil, fmt.Errorf("moving mean window must be positive, got %d", window)
	}
	n, err := Len(ctx, child)
	if err != nil {
		return nil, err
	}
	if window > n {
		return nil, fmt.Errorf("%w: moving mean window %d is longer than %d records", apperr.ErrShapeMismatch, window, n)
	}
	return &MovingMean{child: child, window: window}, nil
}

func (m *MovingMean) Shape(ctx context.Context) (slicealg.Shape, error) {
	shape, err := m.child.Shape(ctx)
	if err != nil {
		return nil, err
	}
	out := shape.Clone()
	out[0] -= m.window - 1
	return out, nil
}

func (m *MovingMean) RequestData(ctx context.Context, d slicealg.Descriptor) (*ndarray.Array, error) {
	return Dispatch(ctx, m, d)
}

func (m *MovingMean) RequestSingle(ctx context.Context, pos int) (*ndarray.Array, error) {
	block, err := m.child.RequestData(ctx, slicealg.Desc(slicealg.Range(pos, pos+m.window)))
	if err != nil {
		return nil, err
	}
	record, data := rows(block)
	out := make([]float64, record.Size())
	meanRows(data, 0, len(data), out)
	return ndarray.New(record, out)
}

// RequestSlice reads the covering child range once and averages every
// selected window out of it.
func (m *MovingMean) RequestSlice(ctx context.Context, b slicealg.Bounds) (*ndarray.Array, error) {
	shape, err := m.child.Shape(ctx)
	if err != nil {
		return nil, err
	}
	record := slicealg.Shape(shape[1:])
	if b.Len() == 0 {
		return ndarray.Stack(record, nil)
	}
	last := b.Start + (b.Len()-1)*b.Step
	block, err := m.child.RequestData(ctx, slicealg.Desc(slicealg.Range(b.Start, last+m.window)))
	if err != nil {
		return nil, err
	}
	_, data := rows(block)
	size := record.Size()
	out := make([]float64, b.Len()*size)
	for k, i := 0, b.Start; i < b.Stop; k, i = k+1, i+b.Step {
		off := i - b.Start
		meanRows(data, off*size, (off+m.window)*size, out[k*size:(k+1)*size])
	}
	return ndarray.New(append(slicealg.Shape{b.Len()}, record...), out)
}

// Downsample merges every factor consecutive records into one by mean, or by
// sum when sum is set. Trailing records that do not fill a group are dropped.
type Downsample struct {
	child  Array
	factor int
	sum    bool
}

// NewDownsample fails when factor is not positive.
func NewDownsample(ctx context.Context, child Array, factor int, sum bool) (*Downsample, error) {
	if factor < 1 {
		return nil, fmt.Errorf("downsample factor must be positive, got %d", factor)
	}
	if _, err := Len(ctx, child); err != nil {
		return nil, err
	}
	return &Downsample{child: child, factor: factor, sum: sum}, nil
}

func (s *Downsample) Shape(ctx context.Context) (slicealg.Shape, error) {
	shape, err := s.child.Shape(ctx)
	if err != nil {
		return nil, err
	}
	out := shape.Clone()
	out[0] /= s.factor
	return out, nil
}

func (s *Downsample) RequestData(ctx context.Context, d slicealg.Descriptor) (*ndarray.Array, error) {
	return Dispatch(ctx, s, d)
}

func (s *Downsample) RequestSingle(ctx context.Context, pos int) (*ndarray.Array, error) {
	start := pos * s.factor
	block, err := s.child.RequestData(ctx, slicealg.Desc(slicealg.Range(start, start+s.factor)))
	if err != nil {
		return nil, err
	}
	record, data := rows(block)
	out := make([]float64, record.Size())
	s.reduce(data, 0, len(data), out)
	return ndarray.New(record, out)
}

// RequestSlice reads contiguous selections with a single child request.
// Strided selections fall back to one request per group.
func (s *Downsample) RequestSlice(ctx context.Context, b slicealg.Bounds) (*ndarray.Array, error) {
	if b.Step != 1 {
		return SliceBySingles(ctx, s, b)
	}
	shape, err := s.child.Shape(ctx)
	if err != nil {
		return nil, err
	}
	record := slicealg.Shape(shape[1:])
	if b.Len() == 0 {
		return ndarray.Stack(record, nil)
	}
	block, err := s.child.RequestData(ctx, slicealg.Desc(slicealg.Range(b.Start*s.factor, b.Stop*s.factor)))
	if err != nil {
		return nil, err
	}
	_, data := rows(block)
	size := record.Size()
	group := s.factor * size
	out := make([]float64, b.Len()*size)
	for k := 0; k < b.Len(); k++ {
		s.reduce(data, k*group, (k+1)*group, out[k*size:(k+1)*size])
	}
	return ndarray.New(append(slicealg.Shape{b.Len()}, record...), out)
}

func (s *Downsample) reduce(data []float64, from, to int, out []float64) {
	if s.sum {
		sumRows(data, from, to, out)
		return
	}
	meanRows(data, from, to, out)
}

// rows splits a block into its record shape and row-major values.
func rows(block *ndarray.Array) (slicealg.Shape, []float64) {
	shape := block.Shape()
	return slicealg.Shape(shape[1:]), block.Data()
}

// sumRows adds the records stored in data[from:to] into out, which holds one
// record.
func sumRows(data []float64, from, to int, out []float64) {
	clear(out)
	size := len(out)
	if size == 0 {
		return
	}
	for off := from; off < to; off += size {
		for j, v := range data[off : off+size] {
			out[j] += v
		}
	}
}

func meanRows(data []float64, from, to int, out []float64) {
	sumRows(data, from, to, out)
	size := len(out)
	if size == 0 || to <= from {
		return
	}
	n := float64((to - from) / size)
	for j := range out {
		out[j] /= n
	}
}
