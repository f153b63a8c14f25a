package lao

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/ctxlog"
	"github.com/vk/detflow/internal/ndarray"
	"github.com/vk/detflow/internal/slicealg"
)

// Locator is everything needed to reopen a resource in another worker.
type Locator struct {
	Scheme string `msgpack:"scheme" yaml:"scheme"`
	Path   string `msgpack:"path" yaml:"path"`
	Field  string `msgpack:"field" yaml:"field"`
}

func (l Locator) String() string {
	return fmt.Sprintf("%s://%s#%s", l.Scheme, l.Path, l.Field)
}

// Resource is an open handle on one field of a file or remote store. Errors
// from Read should wrap apperr.ErrResourceNotFound or
// apperr.ErrResourceUnavailable where they apply.
type Resource interface {
	Shape(ctx context.Context) (slicealg.Shape, error)
	Read(ctx context.Context, d slicealg.Descriptor) (*ndarray.Array, error)
	Close() error
}

// Opener opens the resource a locator points at.
type Opener func(ctx context.Context, loc Locator) (Resource, error)

// Openers maps locator schemes to openers.
type Openers struct {
	mu sync.RWMutex
	m  map[string]Opener
}

// NewOpeners returns an empty table.
func NewOpeners() *Openers {
	return &Openers{m: make(map[string]Opener)}
}

// Register adds an opener for scheme. Registering a scheme twice panics.
func (o *Openers) Register(scheme string, fn Opener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.m[scheme]; exists {
		panic(fmt.Sprintf("opener for scheme '%s' already registered", scheme))
	}
	o.m[scheme] = fn
}

// Schemes lists the registered schemes in sorted order.
func (o *Openers) Schemes() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.m))
	for s := range o.m {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Open resolves loc through the registered opener for its scheme.
func (o *Openers) Open(ctx context.Context, loc Locator) (Resource, error) {
	o.mu.RLock()
	fn, ok := o.m[loc.Scheme]
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no opener for scheme '%s'", apperr.ErrResourceNotFound, loc.Scheme)
	}
	return fn(ctx, loc)
}

// Source is a leaf backed by an external resource. The resource is opened on
// first use and kept until Close.
type Source struct {
	loc     Locator
	openers *Openers

	mu    sync.Mutex
	res   Resource
	shape slicealg.Shape
}

// NewSource describes a leaf without opening anything.
func NewSource(openers *Openers, loc Locator) *Source {
	return &Source{loc: loc, openers: openers}
}

// Locator returns the locator the source reopens from.
func (s *Source) Locator() Locator { return s.loc }

func (s *Source) acquire(ctx context.Context) (Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.res != nil {
		return s.res, nil
	}
	ctxlog.FromContext(ctx).Debug("Opening array source.", "locator", s.loc.String())
	res, err := s.openers.Open(ctx, s.loc)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", s.loc, err)
	}
	s.res = res
	return res, nil
}

func (s *Source) Shape(ctx context.Context) (slicealg.Shape, error) {
	res, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	cached := s.shape
	s.mu.Unlock()
	if cached != nil {
		return cached.Clone(), nil
	}

	shape, err := res.Shape(ctx)
	if err != nil {
		return nil, fmt.Errorf("shape of %s: %w", s.loc, err)
	}
	s.mu.Lock()
	s.shape = shape.Clone()
	s.mu.Unlock()
	return shape, nil
}

func (s *Source) RequestData(ctx context.Context, d slicealg.Descriptor) (*ndarray.Array, error) {
	res, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	arr, err := res.Read(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("reading %s%s: %w", s.loc, d, err)
	}
	return arr, nil
}

// Close releases the resource if it was opened. The source can be used
// again afterwards and will reopen.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.res == nil {
		return nil
	}
	err := s.res.Close()
	s.res = nil
	s.shape = nil
	return err
}
