// Package remote reads record arrays from a socket.io frame server.
//
// The client emits "frames:shape" and "frames:request" with a payload of
// {id, field, descriptor} and the server answers each with one
// "frames:reply" carrying {id, shape, data, error}. Replies are matched to
// requests by id, so several reads may be in flight on one connection.
// Reconnection is left to the socket.io manager.
package remote

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/ctxlog"
	"github.com/vk/detflow/internal/lao"
	"github.com/vk/detflow/internal/ndarray"
	"github.com/vk/detflow/internal/slicealg"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Scheme is the locator scheme served by Opener.
const Scheme = "socketio"

const (
	eventShape   = "frames:shape"
	eventRequest = "frames:request"
	eventReply   = "frames:reply"

	defaultTimeout = 10 * time.Second
)

// Options configures the connection made for every opened locator.
type Options struct {
	Namespace          string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Opener returns a lao.Opener that treats the locator path as the server URL
// and its field as the remote field name.
func Opener(opts Options) lao.Opener {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Namespace == "" {
		opts.Namespace = "/"
	}
	return func(ctx context.Context, loc lao.Locator) (lao.Resource, error) {
		return dial(ctx, loc, opts)
	}
}

type pendingReply struct {
	reply reply
	err   error
}

// client is one connection serving one field.
type client struct {
	io      *socket.Socket
	field   string
	timeout time.Duration
	logger  *slog.Logger

	seq     atomic.Uint64
	mu      sync.Mutex
	pending map[string]chan pendingReply
}

var _ lao.Resource = (*client)(nil)

func newClient(field string, timeout time.Duration, logger *slog.Logger) *client {
	return &client{
		field:   field,
		timeout: timeout,
		logger:  logger,
		pending: make(map[string]chan pendingReply),
	}
}

func dial(ctx context.Context, loc lao.Locator, opts Options) (*client, error) {
	logger := ctxlog.FromContext(ctx).With("url", loc.Path, "field", loc.Field)

	parsedURL, err := url.Parse(loc.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse URL: %v", apperr.ErrResourceNotFound, err)
	}

	sopts := socket.DefaultOptions()
	sopts.SetPath(parsedURL.Path)
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification.")
		sopts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sopts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, sopts)
	io := manager.Socket(opts.Namespace, sopts)

	c := newClient(loc.Field, opts.Timeout, logger)
	c.io = io

	connectChan := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		logger.Debug("Connected to frame server.", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})
	io.On(types.EventName(eventReply), c.onReply)

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("%w: socket.io connection failed: %v", apperr.ErrResourceUnavailable, err)
		}
		return c, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, ctx.Err()
	case <-time.After(opts.Timeout):
		io.Disconnect()
		return nil, fmt.Errorf("%w: timed out after %s waiting for socket.io connection", apperr.ErrResourceUnavailable, opts.Timeout)
	}
}

// onReply routes a reply to the request waiting for it. Replies nobody waits
// for are dropped.
func (c *client) onReply(data ...any) {
	if len(data) == 0 {
		return
	}
	r, err := decodeReply(data[0])
	if err != nil {
		c.logger.Warn("Dropping malformed reply.", "error", err)
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[r.ID]
	delete(c.pending, r.ID)
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("Dropping reply for unknown request.", "requestID", r.ID)
		return
	}
	ch <- pendingReply{reply: r}
}

func (c *client) await() (string, chan pendingReply) {
	id := strconv.FormatUint(c.seq.Add(1), 10)
	ch := make(chan pendingReply, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	return id, ch
}

func (c *client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *client) request(ctx context.Context, event string, d slicealg.Descriptor) (reply, error) {
	id, ch := c.await()
	payload := map[string]any{"id": id, "field": c.field}
	if d != nil {
		payload["descriptor"] = d.Encode()
	}
	c.logger.Debug("Emitting frame request.", "event", event, "requestID", id, "descriptor", d.String())
	c.io.Emit(event, payload)
	return c.wait(ctx, id, ch)
}

func (c *client) wait(ctx context.Context, id string, ch chan pendingReply) (reply, error) {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		if res.err != nil {
			return reply{}, res.err
		}
		return res.reply, res.reply.Err()
	case <-ctx.Done():
		c.forget(id)
		return reply{}, ctx.Err()
	case <-timer.C:
		c.forget(id)
		return reply{}, fmt.Errorf("%w: no reply to request %s within %s", apperr.ErrResourceUnavailable, id, c.timeout)
	}
}

func (c *client) Shape(ctx context.Context) (slicealg.Shape, error) {
	r, err := c.request(ctx, eventShape, nil)
	if err != nil {
		return nil, err
	}
	return r.Shape, nil
}

func (c *client) Read(ctx context.Context, d slicealg.Descriptor) (*ndarray.Array, error) {
	r, err := c.request(ctx, eventRequest, d)
	if err != nil {
		return nil, err
	}
	return r.Array()
}

func (c *client) Close() error {
	if c.io != nil {
		c.io.Disconnect()
	}
	return nil
}
