package node

import (
	"context"
	"errors"
	"io"
	"sync"
)

type cleanupKey struct{}

// Cleanup collects the resources node bodies open during one run. The
// engine closes them once the run ends, whether it succeeded or not.
type Cleanup struct {
	mu      sync.Mutex
	closers []io.Closer
}

// WithCleanup returns a context that carries a fresh Cleanup.
func WithCleanup(ctx context.Context) (context.Context, *Cleanup) {
	c := &Cleanup{}
	return context.WithValue(ctx, cleanupKey{}, c), c
}

// Track hands c to the run in ctx. Outside of a run it does nothing and the
// caller keeps ownership.
func Track(ctx context.Context, c io.Closer) {
	cl, ok := ctx.Value(cleanupKey{}).(*Cleanup)
	if !ok {
		return
	}
	cl.mu.Lock()
	cl.closers = append(cl.closers, c)
	cl.mu.Unlock()
}

// Len is the number of tracked resources not yet closed.
func (c *Cleanup) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.closers)
}

// Close closes every tracked resource, most recent first, and reports all
// failures together.
func (c *Cleanup) Close() error {
	c.mu.Lock()
	closers := c.closers
	c.closers = nil
	c.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
