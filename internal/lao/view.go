package lao

import (
	"context"

	"github.com/vk/detflow/internal/ndarray"
	"github.com/vk/detflow/internal/slicealg"
)

// View is a fixed selection over a source. Requests against the view are
// composed with the fixed descriptor and sent to the source as one request.
type View struct {
	source Array
	desc   slicealg.Descriptor
}

// Index returns a[d] without reading any data. Indexing a View yields a new
// View directly over the original source, so chains of selections never
// nest.
func Index(ctx context.Context, a Array, d slicealg.Descriptor) (Array, error) {
	if v, ok := a.(*View); ok {
		srcShape, err := v.source.Shape(ctx)
		if err != nil {
			return nil, err
		}
		composed, err := slicealg.ComposeDescriptor(srcShape, v.desc, d)
		if err != nil {
			return nil, err
		}
		return &View{source: v.source, desc: composed}, nil
	}

	shape, err := a.Shape(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := slicealg.ShapeAfter(shape, d); err != nil {
		return nil, err
	}
	return &View{source: a, desc: append(slicealg.Descriptor(nil), d...)}, nil
}

// Source is the array the view reads from.
func (v *View) Source() Array { return v.source }

// Descriptor is the fixed selection, expressed against Source.
func (v *View) Descriptor() slicealg.Descriptor { return v.desc }

func (v *View) Shape(ctx context.Context) (slicealg.Shape, error) {
	srcShape, err := v.source.Shape(ctx)
	if err != nil {
		return nil, err
	}
	return slicealg.ShapeAfter(srcShape, v.desc)
}

func (v *View) RequestData(ctx context.Context, d slicealg.Descriptor) (*ndarray.Array, error) {
	srcShape, err := v.source.Shape(ctx)
	if err != nil {
		return nil, err
	}
	composed, err := slicealg.ComposeDescriptor(srcShape, v.desc, d)
	if err != nil {
		return nil, err
	}
	return v.source.RequestData(ctx, composed)
}
