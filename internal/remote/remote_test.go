package remote

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/detflow/internal/apperr"
	"github.com/vk/detflow/internal/slicealg"
)

func TestDecodeReply(t *testing.T) {
	r, err := decodeReply(map[string]any{
		"id":    "7",
		"shape": []any{2.0, 2.0},
		"data":  []any{1.0, 2.0, 3.0, 4.0},
	})
	require.NoError(t, err)
	assert.Equal(t, "7", r.ID)
	assert.NoError(t, r.Err())

	arr, err := r.Array()
	require.NoError(t, err)
	assert.Equal(t, slicealg.Shape{2, 2}, arr.Shape())
	assert.Equal(t, []float64{1, 2, 3, 4}, arr.Data())

	r, err = decodeReply(map[string]any{"id": 3.0, "data": []any{5.0}})
	require.NoError(t, err)
	assert.Equal(t, "3", r.ID)
	scalar, err := r.Array()
	require.NoError(t, err)
	v, err := scalar.Item()
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)
}

func TestDecodeReply_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  any
	}{
		{"not an object", []any{1.0}},
		{"no id", map[string]any{"data": []any{}}},
		{"fractional shape", map[string]any{"id": "1", "shape": []any{1.5}}},
		{"string data", map[string]any{"id": "1", "data": []any{"x"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decodeReply(tc.raw)
			assert.Error(t, err)
		})
	}
}

func TestReplyErrors(t *testing.T) {
	assert.ErrorIs(t, reply{Error: "not_found"}.Err(), apperr.ErrResourceNotFound)
	assert.ErrorIs(t, reply{Error: "unavailable"}.Err(), apperr.ErrResourceUnavailable)
	assert.ErrorContains(t, reply{Error: "disk on fire"}.Err(), "disk on fire")

	_, err := reply{Shape: slicealg.Shape{3}, Data: []float64{1}}.Array()
	assert.ErrorIs(t, err, apperr.ErrShapeMismatch)
}

func TestClient_RoutesRepliesByID(t *testing.T) {
	c := newClient("space", time.Second, slog.Default())
	id1, ch1 := c.await()
	id2, ch2 := c.await()
	require.NotEqual(t, id1, id2)

	c.onReply(map[string]any{"id": id2, "shape": []any{1.0}, "data": []any{2.0}})
	c.onReply(map[string]any{"id": "unknown"})
	c.onReply(map[string]any{"id": id1, "error": "not_found"})

	got, err := c.wait(context.Background(), id2, ch2)
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, got.Data)

	_, err = c.wait(context.Background(), id1, ch1)
	assert.ErrorIs(t, err, apperr.ErrResourceNotFound)
	assert.Empty(t, c.pending)
}

func TestClient_WaitTimesOut(t *testing.T) {
	c := newClient("space", 10*time.Millisecond, slog.Default())
	id, ch := c.await()
	_, err := c.wait(context.Background(), id, ch)
	assert.ErrorIs(t, err, apperr.ErrResourceUnavailable)
	assert.Empty(t, c.pending)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	id, ch = c.await()
	_, err = c.wait(ctx, id, ch)
	assert.ErrorIs(t, err, context.Canceled)
}
