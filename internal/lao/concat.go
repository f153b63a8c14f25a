package lao

import (
	"context"
	"fmt"

	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/ndarray"
	"github.com/vk/detflow/internal/slicealg"
)

// Concat joins two arrays along the record axis.
type Concat struct {
	left, right Array
}

// NewConcat checks that both sides agree on every axis but the first.
func NewConcat(ctx context.Context, left, right Array) (*Concat, error) {
	ls, err := left.Shape(ctx)
	if err != nil {
		return nil, err
	}
	rs, err := right.Shape(ctx)
	if err != nil {
		return nil, err
	}
	if len(ls) == 0 || len(rs) == 0 || !slicealg.Shape(ls[1:]).Equal(rs[1:]) {
		return nil, fmt.Errorf("%w: cannot concatenate %s with %s", apperr.ErrShapeMismatch, ls, rs)
	}
	return &Concat{left: left, right: right}, nil
}

func (c *Concat) Shape(ctx context.Context) (slicealg.Shape, error) {
	ls, err := c.left.Shape(ctx)
	if err != nil {
		return nil, err
	}
	rn, err := Len(ctx, c.right)
	if err != nil {
		return nil, err
	}
	out := ls.Clone()
	out[0] += rn
	return out, nil
}

// RequestData routes the axis 0 selection to the side or sides it touches.
// A slice that spans the boundary becomes one request per side.
func (c *Concat) RequestData(ctx context.Context, d slicealg.Descriptor) (*ndarray.Array, error) {
	nl, err := Len(ctx, c.left)
	if err != nil {
		return nil, err
	}
	nr, err := Len(ctx, c.right)
	if err != nil {
		return nil, err
	}
	total := nl + nr
	if len(d) == 0 {
		d = slicealg.Desc(slicealg.All())
	}
	first, rest := d[0], d[1:]

	sub := func(head slicealg.Index) slicealg.Descriptor {
		return append(slicealg.Desc(head), rest...)
	}

	if first.IsInt() {
		pos, err := slicealg.ResolveInt(total, first.Int())
		if err != nil {
			return nil, err
		}
		if pos < nl {
			return c.left.RequestData(ctx, sub(slicealg.At(pos)))
		}
		return c.right.RequestData(ctx, sub(slicealg.At(pos-nl)))
	}

	b, err := slicealg.Normalize(total, first.Slice())
	if err != nil {
		return nil, err
	}

	var parts []*ndarray.Array
	if b.Start < nl && b.Len() > 0 {
		lb := slicealg.Step(b.Start, min(b.Stop, nl), b.Step)
		arr, err := c.left.RequestData(ctx, sub(lb))
		if err != nil {
			return nil, err
		}
		parts = append(parts, arr)
	}
	if b.Stop > nl {
		// First selected position at or beyond the boundary, relative to the
		// right side.
		rs := b.Start - nl
		if b.Start < nl {
			k := (nl - b.Start + b.Step - 1) / b.Step
			rs = b.Start + k*b.Step - nl
		}
		if re := b.Stop - nl; rs < re {
			arr, err := c.right.RequestData(ctx, sub(slicealg.Step(rs, re, b.Step)))
			if err != nil {
				return nil, err
			}
			parts = append(parts, arr)
		}
	}

	switch len(parts) {
	case 0:
		return c.left.RequestData(ctx, sub(slicealg.Range(0, 0)))
	case 1:
		return parts[0], nil
	default:
		return ndarray.Concat(parts...)
	}
}
