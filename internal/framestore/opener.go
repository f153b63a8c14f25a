package framestore

import (
	"context"
	"fmt"
	"os"

	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/lao"
	"github.com/vk/detflow/internal/ndarray"
	"github.com/vk/detflow/internal/slicealg"
)

// Scheme is the locator scheme served by Opener.
const Scheme = "sqlite"

// Opener returns a lao.Opener for frame store files. The file and the field
// must both exist.
func Opener() lao.Opener {
	return func(ctx context.Context, loc lao.Locator) (lao.Resource, error) {
		if _, err := os.Stat(loc.Path); err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", apperr.ErrResourceNotFound, loc.Path)
			}
			return nil, fmt.Errorf("%w: %v", apperr.ErrResourceUnavailable, err)
		}
		s, err := Open(loc.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrResourceUnavailable, err)
		}
		if _, err := s.frameShape(ctx, s.conn, loc.Field); err != nil {
			s.Close()
			return nil, err
		}
		return &resource{store: s, field: loc.Field}, nil
	}
}

// resource is one field of an open store.
type resource struct {
	store *Store
	field string
}

var (
	_ lao.Resource = (*resource)(nil)
	_ lao.Indexer  = (*resource)(nil)
)

func (r *resource) Shape(ctx context.Context) (slicealg.Shape, error) {
	return r.store.Shape(ctx, r.field)
}

func (r *resource) RequestSingle(ctx context.Context, pos int) (*ndarray.Array, error) {
	return r.store.Frame(ctx, r.field, pos)
}

func (r *resource) RequestSlice(ctx context.Context, b slicealg.Bounds) (*ndarray.Array, error) {
	return r.store.Range(ctx, r.field, b)
}

func (r *resource) Read(ctx context.Context, d slicealg.Descriptor) (*ndarray.Array, error) {
	return lao.Dispatch(ctx, r, d)
}

func (r *resource) Close() error { return r.store.Close() }
