package lao

import (
	"context"
	"fmt"

	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/ndarray"
	"github.com/vk/detflow/internal/slicealg"
)

// Marginal reduces every record of its child to a single truth value: 1 when
// any element of the record is non-zero.
type Marginal struct {
	child Array
}

// Marginalize returns a one-dimensional mask over the records of a. A
// one-dimensional a is returned as is.
func Marginalize(ctx context.Context, a Array) (Array, error) {
	shape, err := a.Shape(ctx)
	if err != nil {
		return nil, err
	}
	switch len(shape) {
	case 0:
		return nil, fmt.Errorf("%w: array has no record axis", apperr.ErrShapeMismatch)
	case 1:
		return a, nil
	}
	return &Marginal{child: a}, nil
}

func (m *Marginal) Shape(ctx context.Context) (slicealg.Shape, error) {
	n, err := Len(ctx, m.child)
	if err != nil {
		return nil, err
	}
	return slicealg.Shape{n}, nil
}

func (m *Marginal) RequestData(ctx context.Context, d slicealg.Descriptor) (*ndarray.Array, error) {
	return Dispatch(ctx, m, d)
}

func (m *Marginal) RequestSingle(ctx context.Context, pos int) (*ndarray.Array, error) {
	rec, err := m.child.RequestData(ctx, slicealg.Desc(slicealg.At(pos)))
	if err != nil {
		return nil, err
	}
	return ndarray.Scalar(boolean(anyTrue(rec.Data()))), nil
}

func (m *Marginal) RequestSlice(ctx context.Context, b slicealg.Bounds) (*ndarray.Array, error) {
	block, err := m.child.RequestData(ctx, slicealg.Desc(slicealg.Step(b.Start, b.Stop, b.Step)))
	if err != nil {
		return nil, err
	}
	record, data := rows(block)
	size := record.Size()
	out := make([]float64, block.Len())
	for i := range out {
		out[i] = boolean(anyTrue(data[i*size : (i+1)*size]))
	}
	return ndarray.New(slicealg.Shape{len(out)}, out)
}

// AllOf is the logical and of two record masks. The second mask is not read
// for any request where the first one is false everywhere.
type AllOf struct {
	first, second Array
}

// NewAllOf marginalizes both operands and checks that they cover the same
// number of records.
func NewAllOf(ctx context.Context, first, second Array) (*AllOf, error) {
	a, err := Marginalize(ctx, first)
	if err != nil {
		return nil, err
	}
	b, err := Marginalize(ctx, second)
	if err != nil {
		return nil, err
	}
	na, err := Len(ctx, a)
	if err != nil {
		return nil, err
	}
	nb, err := Len(ctx, b)
	if err != nil {
		return nil, err
	}
	if na != nb {
		return nil, fmt.Errorf("%w: cannot combine masks of %d and %d records", apperr.ErrShapeMismatch, na, nb)
	}
	return &AllOf{first: a, second: b}, nil
}

func (a *AllOf) Shape(ctx context.Context) (slicealg.Shape, error) {
	return a.first.Shape(ctx)
}

func (a *AllOf) RequestData(ctx context.Context, d slicealg.Descriptor) (*ndarray.Array, error) {
	l, err := a.first.RequestData(ctx, d)
	if err != nil {
		return nil, err
	}
	if !anyTrue(l.Data()) {
		return ndarray.Map(l, func(float64) float64 { return 0 }), nil
	}
	r, err := a.second.RequestData(ctx, d)
	if err != nil {
		return nil, err
	}
	return ndarray.Zip(l, r, binaryOps[OpAnd])
}

// Widen dilates a one-dimensional mask. Element i is true when any element
// of [i-window/2, i-window/2+window) is true in the child, with the range
// clipped to the mask.
type Widen struct {
	child  Array
	window int
	n      int
}

// NewWiden fails unless child is one-dimensional and window is positive.
func NewWiden(ctx context.Context, child Array, window int) (*Widen, error) {
	if window < 1 {
		return nil, fmt.Errorf("widen window must be positive, got %d", window)
	}
	shape, err := child.Shape(ctx)
	if err != nil {
		return nil, err
	}
	if len(shape) != 1 {
		return nil, fmt.Errorf("%w: only one-dimensional masks can be widened, got shape %s", apperr.ErrShapeMismatch, shape)
	}
	return &Widen{child: child, window: window, n: shape[0]}, nil
}

func (w *Widen) reach(i int) (int, int) {
	lo := i - w.window/2
	return max(lo, 0), min(lo+w.window, w.n)
}

func (w *Widen) Shape(context.Context) (slicealg.Shape, error) {
	return slicealg.Shape{w.n}, nil
}

func (w *Widen) RequestData(ctx context.Context, d slicealg.Descriptor) (*ndarray.Array, error) {
	return Dispatch(ctx, w, d)
}

func (w *Widen) RequestSingle(ctx context.Context, pos int) (*ndarray.Array, error) {
	lo, hi := w.reach(pos)
	block, err := w.child.RequestData(ctx, slicealg.Desc(slicealg.Range(lo, hi)))
	if err != nil {
		return nil, err
	}
	return ndarray.Scalar(boolean(anyTrue(block.Data()))), nil
}

// RequestSlice reads the span covering every selected window once.
func (w *Widen) RequestSlice(ctx context.Context, b slicealg.Bounds) (*ndarray.Array, error) {
	if b.Len() == 0 {
		return ndarray.Zeros(slicealg.Shape{0}), nil
	}
	last := b.Start + (b.Len()-1)*b.Step
	lo, _ := w.reach(b.Start)
	_, hi := w.reach(last)
	block, err := w.child.RequestData(ctx, slicealg.Desc(slicealg.Range(lo, hi)))
	if err != nil {
		return nil, err
	}
	data := block.Data()
	out := make([]float64, 0, b.Len())
	for i := b.Start; i < b.Stop; i += b.Step {
		from, to := w.reach(i)
		out = append(out, boolean(anyTrue(data[from-lo:to-lo])))
	}
	return ndarray.New(slicealg.Shape{len(out)}, out)
}

func anyTrue(data []float64) bool {
	for _, v := range data {
		if truth(v) {
			return true
		}
	}
	return false
}
