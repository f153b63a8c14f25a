package lao

import (
	"context"
	"fmt"
	"math"

	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/ndarray"
	"github.com/vk/detflow/internal/slicealg"
)

// Op names an elementwise operation.
type Op string

const (
	OpNot Op = "not"
	OpNeg Op = "neg"
	OpAbs Op = "abs"

	OpAdd Op = "add"
	OpSub Op = "sub"
	OpMul Op = "mul"
	OpDiv Op = "div"
	OpAnd Op = "and"
	OpOr  Op = "or"
	OpMax Op = "max"
	OpMin Op = "min"

	OpScale Op = "scale"
	OpShift Op = "shift"
	OpAbove Op = "above"
)

func truth(v float64) bool { return v != 0 }

func boolean(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var unaryOps = map[Op]func(float64) float64{
	OpNot: func(x float64) float64 { return boolean(!truth(x)) },
	OpNeg: func(x float64) float64 { return -x },
	OpAbs: math.Abs,
}

var binaryOps = map[Op]func(x, y float64) float64{
	OpAdd: func(x, y float64) float64 { return x + y },
	OpSub: func(x, y float64) float64 { return x - y },
	OpMul: func(x, y float64) float64 { return x * y },
	OpDiv: func(x, y float64) float64 {
		if y == 0 {
			return 0
		}
		return x / y
	},
	OpAnd: func(x, y float64) float64 { return boolean(truth(x) && truth(y)) },
	OpOr:  func(x, y float64) float64 { return boolean(truth(x) || truth(y)) },
	OpMax: math.Max,
	OpMin: math.Min,
}

var scalarOps = map[Op]func(x, k float64) float64{
	OpScale: func(x, k float64) float64 { return x * k },
	OpShift: func(x, k float64) float64 { return x + k },
	OpAbove: func(x, k float64) float64 { return boolean(x > k) },
}

// Unary applies a one-operand operation to its child.
type Unary struct {
	op    Op
	child Array
}

// NewUnary wraps child. Only OpNot, OpNeg and OpAbs are accepted.
func NewUnary(op Op, child Array) (*Unary, error) {
	if _, ok := unaryOps[op]; !ok {
		return nil, fmt.Errorf("unknown unary operation %q", op)
	}
	return &Unary{op: op, child: child}, nil
}

func (u *Unary) Shape(ctx context.Context) (slicealg.Shape, error) {
	return u.child.Shape(ctx)
}

func (u *Unary) RequestData(ctx context.Context, d slicealg.Descriptor) (*ndarray.Array, error) {
	arr, err := u.child.RequestData(ctx, d)
	if err != nil {
		return nil, err
	}
	return ndarray.Map(arr, unaryOps[u.op]), nil
}

// Binary combines two operands of identical shape.
type Binary struct {
	op          Op
	left, right Array
}

// NewBinary checks that both operands have the same shape and wraps them.
// Division yields 0 wherever the divisor is 0.
func NewBinary(ctx context.Context, op Op, left, right Array) (*Binary, error) {
	if _, ok := binaryOps[op]; !ok {
		return nil, fmt.Errorf("unknown binary operation %q", op)
	}
	ls, err := left.Shape(ctx)
	if err != nil {
		return nil, err
	}
	rs, err := right.Shape(ctx)
	if err != nil {
		return nil, err
	}
	if !ls.Equal(rs) {
		return nil, fmt.Errorf("%w: %s %s %s", apperr.ErrShapeMismatch, ls, op, rs)
	}
	return &Binary{op: op, left: left, right: right}, nil
}

func (b *Binary) Shape(ctx context.Context) (slicealg.Shape, error) {
	return b.left.Shape(ctx)
}

func (b *Binary) RequestData(ctx context.Context, d slicealg.Descriptor) (*ndarray.Array, error) {
	l, err := b.left.RequestData(ctx, d)
	if err != nil {
		return nil, err
	}
	r, err := b.right.RequestData(ctx, d)
	if err != nil {
		return nil, err
	}
	return ndarray.Zip(l, r, binaryOps[b.op])
}

// Scalar combines its child with a constant bound at construction.
type Scalar struct {
	op    Op
	k     float64
	child Array
}

// NewScalar wraps child. Only OpScale, OpShift and OpAbove are accepted.
// OpAbove yields a 0/1 mask of the elements greater than k.
func NewScalar(op Op, k float64, child Array) (*Scalar, error) {
	if _, ok := scalarOps[op]; !ok {
		return nil, fmt.Errorf("unknown scalar operation %q", op)
	}
	return &Scalar{op: op, k: k, child: child}, nil
}

func (s *Scalar) Shape(ctx context.Context) (slicealg.Shape, error) {
	return s.child.Shape(ctx)
}

func (s *Scalar) RequestData(ctx context.Context, d slicealg.Descriptor) (*ndarray.Array, error) {
	arr, err := s.child.RequestData(ctx, d)
	if err != nil {
		return nil, err
	}
	f := scalarOps[s.op]
	return ndarray.Map(arr, func(x float64) float64 { return f(x, s.k) }), nil
}
