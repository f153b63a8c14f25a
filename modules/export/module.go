// Package export provides the sinks that write into a frame store: Store
// copies a signal so later graphs can open it with source.OpenSignal, and
// SavePlan keeps the recipe of an array for source.OpenPlan.
package export

import (
	"context"
	"fmt"

	"github.com/vk/detflow/internal/ctxlog"
	"github.com/vk/detflow/internal/framestore"
	"github.com/vk/detflow/internal/lao"
	"github.com/vk/detflow/internal/node"
	"github.com/vk/detflow/internal/porttype"
	"github.com/vk/detflow/internal/registry"
	"github.com/vk/detflow/internal/signal"
	"github.com/vk/detflow/internal/slicealg"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

type channel struct {
	name string
	arr  lao.Array
}

// Store writes every channel of a signal as a field named prefix+channel.
// All channels, and the removal of the old ones when overwriting, land in one
// transaction: a failure leaves the store as it was.
func Store(ctx context.Context, in *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	logger := ctxlog.FromContext(ctx)

	sig, err := node.Get[*signal.Signal](in, "signal")
	if err != nil {
		return nil, err
	}
	path, err := c.String("path")
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	prefix, err := c.String("prefix")
	if err != nil {
		return nil, err
	}
	chunk, err := c.Int("chunk")
	if err != nil {
		return nil, err
	}
	if chunk < 1 {
		return nil, fmt.Errorf("chunk must be positive, got %d", chunk)
	}
	overwrite, err := c.Bool("overwrite")
	if err != nil {
		return nil, err
	}

	store, err := framestore.Open(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	channels := []channel{{"space", sig.Space()}, {"time", sig.Time()}}
	if sig.HasTrigger() {
		channels = append(channels, channel{"trigger", sig.Trigger()})
	}

	batch, err := store.BeginBatch(ctx)
	if err != nil {
		return nil, err
	}
	defer batch.Rollback() //nolint:errcheck

	for _, ch := range channels {
		field := prefix + ch.name
		if overwrite {
			if err := batch.Delete(ctx, field); err != nil {
				return nil, err
			}
		}
		if err := writeField(ctx, batch, field, ch.arr, sig.Len(), chunk); err != nil {
			return nil, fmt.Errorf("field '%s': %w", field, err)
		}
	}
	if err := batch.Commit(); err != nil {
		return nil, err
	}
	for _, ch := range channels {
		logger.Info("Field stored.", "path", path, "field", prefix+ch.name, "records", sig.Len())
	}
	return nil, nil
}

// writeField copies arr into field chunk by chunk, checking for cancellation
// before each chunk.
func writeField(ctx context.Context, batch *framestore.Batch, field string, arr lao.Array, n, chunk int) error {
	shape, err := arr.Shape(ctx)
	if err != nil {
		return err
	}
	w, err := batch.Writer(ctx, field, slicealg.Shape(shape[1:]))
	if err != nil {
		return err
	}
	for start := 0; start < n; start += chunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		block, err := arr.RequestData(ctx, slicealg.Desc(slicealg.Range(start, min(start+chunk, n))))
		if err != nil {
			return err
		}
		if err := w.Append(ctx, block); err != nil {
			return err
		}
	}
	return nil
}

// SavePlan stores the lazy tree behind an array, not its data, so a later
// graph can rebuild it with source.OpenPlan. Stored sources are saved as
// locators and reopen on first read.
func SavePlan(ctx context.Context, in *node.Inputs, c node.Constants, _ node.Namespace) (node.Outputs, error) {
	arr, err := node.Get[lao.Array](in, "array")
	if err != nil {
		return nil, err
	}
	path, err := c.String("path")
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("path is required")
	}
	name, err := c.String("name")
	if err != nil {
		return nil, err
	}

	tree, err := lao.Encode(ctx, arr)
	if err != nil {
		return nil, fmt.Errorf("plan '%s': %w", name, err)
	}
	store, err := framestore.Open(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	if err := store.SavePlan(ctx, name, tree); err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Info("Plan stored.", "path", path, "name", name, "bytes", len(tree))
	return nil, nil
}

// Register registers the node types with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.Register(node.NewSchema("export", "Store").
		Describe("Writes a signal into a frame store.").
		Input("signal", porttype.Signal).
		Constant("path", porttype.String, "", node.External()).
		Constant("prefix", porttype.String, "").
		Constant("chunk", porttype.Int, 256).
		Constant("overwrite", porttype.Bool, true).
		Final().
		Compute(Store).
		MustBuild())

	r.Register(node.NewSchema("export", "SavePlan").
		Describe("Stores the lazy operation tree of an array in a frame store.").
		Input("array", porttype.Array).
		Constant("path", porttype.String, "", node.External()).
		Constant("name", porttype.String, "plan").
		Final().
		Compute(SavePlan).
		MustBuild())
}
