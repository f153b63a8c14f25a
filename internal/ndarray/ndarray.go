// Package ndarray is the concrete, materialized array handed back by every
// lazy array request: a shape plus row-major float64 data. Boolean masks use
// 0 and 1.
package ndarray

import (
	"fmt"
	"math"

	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/slicealg"
)

// Array is an immutable N-dimensional block of float64 values.
type Array struct {
	shape slicealg.Shape
	data  []float64
}

// New wraps data with the given shape. The data slice is not copied.
func New(shape slicealg.Shape, data []float64) (*Array, error) {
	if shape.Size() != len(data) {
		return nil, fmt.Errorf("%w: shape %s needs %d values, got %d", apperr.ErrShapeMismatch, shape, shape.Size(), len(data))
	}
	return &Array{shape: shape.Clone(), data: data}, nil
}

// MustNew is New for literals in tests and generators.
func MustNew(shape slicealg.Shape, data []float64) *Array {
	a, err := New(shape, data)
	if err != nil {
		panic(err)
	}
	return a
}

// Zeros allocates an array filled with zeros.
func Zeros(shape slicealg.Shape) *Array {
	return &Array{shape: shape.Clone(), data: make([]float64, shape.Size())}
}

// Scalar is a zero-dimensional array.
func Scalar(v float64) *Array {
	return &Array{shape: slicealg.Shape{}, data: []float64{v}}
}

// Shape returns a copy of the array's shape.
func (a *Array) Shape() slicealg.Shape { return a.shape.Clone() }

// NDim is the number of axes.
func (a *Array) NDim() int { return len(a.shape) }

// Len is the extent of axis 0, or 0 for scalars.
func (a *Array) Len() int {
	if len(a.shape) == 0 {
		return 0
	}
	return a.shape[0]
}

// Data exposes the row-major values. Callers must not modify them.
func (a *Array) Data() []float64 { return a.data }

// Item returns the value of a zero-dimensional or single-element array.
func (a *Array) Item() (float64, error) {
	if len(a.data) != 1 {
		return 0, fmt.Errorf("%w: item of array with shape %s", apperr.ErrShapeMismatch, a.shape)
	}
	return a.data[0], nil
}

// Equal reports whether both arrays have the same shape and values. NaN
// compares equal to NaN.
func (a *Array) Equal(b *Array) bool {
	if !a.shape.Equal(b.shape) {
		return false
	}
	for i := range a.data {
		x, y := a.data[i], b.data[i]
		if x != y && !(math.IsNaN(x) && math.IsNaN(y)) {
			return false
		}
	}
	return true
}

func (a *Array) String() string {
	const preview = 8
	if len(a.data) <= preview {
		return fmt.Sprintf("array%s%v", a.shape, a.data)
	}
	return fmt.Sprintf("array%s%v...", a.shape, a.data[:preview])
}

func (a *Array) strides() []int {
	st := make([]int, len(a.shape))
	acc := 1
	for i := len(a.shape) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= a.shape[i]
	}
	return st
}

// Index materializes a[d].
func (a *Array) Index(d slicealg.Descriptor) (*Array, error) {
	if len(d) > len(a.shape) {
		return nil, fmt.Errorf("%w: %d indices for %d axes", apperr.ErrIndexOutOfRange, len(d), len(a.shape))
	}
	if len(d) == 0 {
		return a, nil
	}

	sel := make([][]int, len(a.shape))
	var outShape slicealg.Shape
	for axis, n := range a.shape {
		if axis >= len(d) {
			sel[axis] = span(0, n, 1)
			outShape = append(outShape, n)
			continue
		}
		it := d[axis]
		if it.IsInt() {
			pos, err := slicealg.ResolveInt(n, it.Int())
			if err != nil {
				return nil, fmt.Errorf("axis %d: %w", axis, err)
			}
			sel[axis] = []int{pos}
			continue
		}
		b, err := slicealg.Normalize(n, it.Slice())
		if err != nil {
			return nil, fmt.Errorf("axis %d: %w", axis, err)
		}
		sel[axis] = span(b.Start, b.Stop, b.Step)
		outShape = append(outShape, len(sel[axis]))
	}
	if outShape == nil {
		outShape = slicealg.Shape{}
	}

	out := make([]float64, 0, outShape.Size())
	if outShape.Size() > 0 {
		strides := a.strides()
		counter := make([]int, len(sel))
		for {
			off := 0
			for axis, c := range counter {
				off += sel[axis][c] * strides[axis]
			}
			out = append(out, a.data[off])

			axis := len(counter) - 1
			for ; axis >= 0; axis-- {
				counter[axis]++
				if counter[axis] < len(sel[axis]) {
					break
				}
				counter[axis] = 0
			}
			if axis < 0 {
				break
			}
		}
	}
	return &Array{shape: outShape, data: out}, nil
}

// Reshape returns a view of the same data with another shape.
func (a *Array) Reshape(shape slicealg.Shape) (*Array, error) {
	return New(shape, a.data)
}

// Concat joins arrays along axis 0. All trailing shapes must agree.
func Concat(items ...*Array) (*Array, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: nothing to concatenate", apperr.ErrShapeMismatch)
	}
	first := items[0]
	if first.NDim() == 0 {
		return nil, fmt.Errorf("%w: cannot concatenate scalars", apperr.ErrShapeMismatch)
	}
	trailing := first.shape[1:]
	total := 0
	size := 0
	for _, it := range items {
		if it.NDim() == 0 || !slicealg.Shape(it.shape[1:]).Equal(trailing) {
			return nil, fmt.Errorf("%w: cannot concatenate %s with %s", apperr.ErrShapeMismatch, first.shape, it.shape)
		}
		total += it.shape[0]
		size += len(it.data)
	}
	data := make([]float64, 0, size)
	for _, it := range items {
		data = append(data, it.data...)
	}
	shape := append(slicealg.Shape{total}, trailing...)
	return &Array{shape: shape, data: data}, nil
}

// Stack builds a new axis 0 from records that all have the given shape.
func Stack(record slicealg.Shape, items []*Array) (*Array, error) {
	data := make([]float64, 0, record.Size()*len(items))
	for i, it := range items {
		if !it.shape.Equal(record) {
			return nil, fmt.Errorf("%w: record %d has shape %s, want %s", apperr.ErrShapeMismatch, i, it.shape, record)
		}
		data = append(data, it.data...)
	}
	shape := append(slicealg.Shape{len(items)}, record...)
	return &Array{shape: shape, data: data}, nil
}

// Map applies f to every element.
func Map(a *Array, f func(float64) float64) *Array {
	out := make([]float64, len(a.data))
	for i, v := range a.data {
		out[i] = f(v)
	}
	return &Array{shape: a.shape.Clone(), data: out}
}

// Zip applies f elementwise to two arrays of identical shape. It never
// broadcasts.
func Zip(a, b *Array, f func(x, y float64) float64) (*Array, error) {
	if !a.shape.Equal(b.shape) {
		return nil, fmt.Errorf("%w: %s vs %s", apperr.ErrShapeMismatch, a.shape, b.shape)
	}
	out := make([]float64, len(a.data))
	for i := range a.data {
		out[i] = f(a.data[i], b.data[i])
	}
	return &Array{shape: a.shape.Clone(), data: out}, nil
}

func span(start, stop, step int) []int {
	out := make([]int, 0, max(0, (stop-start+step-1)/step))
	for i := start; i < stop; i += step {
		out = append(out, i)
	}
	return out
}
