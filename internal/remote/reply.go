package remote

import (
	"fmt"

	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/ndarray"
	"github.com/vk/detflow/internal/slicealg"
)

// Error codes a server may put in a reply.
const (
	codeNotFound    = "not_found"
	codeUnavailable = "unavailable"
)

type reply struct {
	ID    string
	Shape slicealg.Shape
	Data  []float64
	Error string
}

// Err maps the reply's error code to the error taxonomy.
func (r reply) Err() error {
	switch r.Error {
	case "":
		return nil
	case codeNotFound:
		return fmt.Errorf("%w: server reports not_found", apperr.ErrResourceNotFound)
	case codeUnavailable:
		return fmt.Errorf("%w: server reports unavailable", apperr.ErrResourceUnavailable)
	default:
		return fmt.Errorf("remote: server error: %s", r.Error)
	}
}

// Array builds the concrete result. A reply without a shape is a scalar.
func (r reply) Array() (*ndarray.Array, error) {
	if r.Shape == nil {
		r.Shape = slicealg.Shape{}
	}
	return ndarray.New(r.Shape, r.Data)
}

// decodeReply reads the generic form a socket.io event payload arrives in.
func decodeReply(raw any) (reply, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return reply{}, fmt.Errorf("reply is %T, want an object", raw)
	}

	var r reply
	switch id := m["id"].(type) {
	case string:
		r.ID = id
	case float64:
		r.ID = fmt.Sprintf("%d", int64(id))
	default:
		return reply{}, fmt.Errorf("reply has no id")
	}

	if e, ok := m["error"].(string); ok {
		r.Error = e
	}

	if raw, ok := m["shape"]; ok && raw != nil {
		items, ok := raw.([]any)
		if !ok {
			return reply{}, fmt.Errorf("reply %s: shape is %T", r.ID, raw)
		}
		r.Shape = make(slicealg.Shape, len(items))
		for i, it := range items {
			n, ok := it.(float64)
			if !ok || n < 0 || n != float64(int(n)) {
				return reply{}, fmt.Errorf("reply %s: bad shape entry %v", r.ID, it)
			}
			r.Shape[i] = int(n)
		}
	}

	if raw, ok := m["data"]; ok && raw != nil {
		items, ok := raw.([]any)
		if !ok {
			return reply{}, fmt.Errorf("reply %s: data is %T", r.ID, raw)
		}
		r.Data = make([]float64, len(items))
		for i, it := range items {
			v, ok := it.(float64)
			if !ok {
				return reply{}, fmt.Errorf("reply %s: data entry %d is %T", r.ID, i, it)
			}
			r.Data[i] = v
		}
	}
	return r, nil
}
