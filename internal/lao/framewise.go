package lao

import (
	"context"
	"fmt"

	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/ndarray"
	"github.com/vk/detflow/internal/slicealg"
)

// Framewise combines every record of its child with one fixed frame, as in
// flat fielding where each frame is divided by a per-pixel response.
type Framewise struct {
	op    Op
	child Array
	frame *ndarray.Array
}

// NewFramewise accepts any binary operation. The frame must have the
// record shape of child.
func NewFramewise(ctx context.Context, op Op, child Array, frame *ndarray.Array) (*Framewise, error) {
	if _, ok := binaryOps[op]; !ok {
		return nil, fmt.Errorf("unknown binary operation %q", op)
	}
	shape, err := child.Shape(ctx)
	if err != nil {
		return nil, err
	}
	if len(shape) == 0 || !slicealg.Shape(shape[1:]).Equal(frame.Shape()) {
		return nil, fmt.Errorf("%w: frame %s does not match records of %s", apperr.ErrShapeMismatch, frame.Shape(), shape)
	}
	return &Framewise{op: op, child: child, frame: frame}, nil
}

func (f *Framewise) Shape(ctx context.Context) (slicealg.Shape, error) {
	return f.child.Shape(ctx)
}

func (f *Framewise) RequestData(ctx context.Context, d slicealg.Descriptor) (*ndarray.Array, error) {
	return Dispatch(ctx, f, d)
}

func (f *Framewise) RequestSingle(ctx context.Context, pos int) (*ndarray.Array, error) {
	rec, err := f.child.RequestData(ctx, slicealg.Desc(slicealg.At(pos)))
	if err != nil {
		return nil, err
	}
	return ndarray.Zip(rec, f.frame, binaryOps[f.op])
}

func (f *Framewise) RequestSlice(ctx context.Context, b slicealg.Bounds) (*ndarray.Array, error) {
	block, err := f.child.RequestData(ctx, slicealg.Desc(slicealg.Step(b.Start, b.Stop, b.Step)))
	if err != nil {
		return nil, err
	}
	op := binaryOps[f.op]
	frame := f.frame.Data()
	size := len(frame)
	out := make([]float64, len(block.Data()))
	for i, v := range block.Data() {
		out[i] = op(v, frame[i%size])
	}
	return ndarray.New(block.Shape(), out)
}
