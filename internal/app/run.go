package app

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/detflow/internal/ctxlog"
	"github.com/vk/detflow/internal/graph"
	"github.com/vk/detflow/internal/node"
	"golang.org/x/sync/errgroup"
)

// Run loads the graph file at graphPath and calculates it.
func (a *App) Run(ctx context.Context, graphPath string) error {
	_, err := a.RunGraph(ctx, graphPath)
	return err
}

// RunGraph is Run returning the run namespace, including whatever final
// nodes wrote to it. The graph is calculated on a worker goroutine while a
// second one reports progress every run.progress_interval.
func (a *App) RunGraph(ctx context.Context, graphPath string) (node.Namespace, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "graph", graphPath)

	if a.cfg.Health.Port > 0 {
		a.startHealthcheckServer(ctx, a.cfg.Health.Port)
		defer a.closeHealthcheckServer(ctx)
	}

	g, err := a.load(ctx, graphPath)
	if err != nil {
		return nil, err
	}

	ns := a.namespace()
	progress := &graph.Progress{}
	a.progress.Store(progress)
	finished := make(chan struct{})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		defer close(finished)
		return g.Calculate(groupCtx, ns, graph.WithProgress(progress))
	})
	group.Go(func() error {
		a.reportProgress(groupCtx, progress, finished)
		return nil
	})

	if err := group.Wait(); err != nil {
		return ns, fmt.Errorf("execution failed: %w", err)
	}
	a.logger.Debug("App.Run method finished.")
	return ns, nil
}

// load reads a graph file and builds the graph it describes.
func (a *App) load(ctx context.Context, graphPath string) (*graph.Graph, error) {
	doc, err := a.format.Load(ctx, graphPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load graph: %w", err)
	}
	g, err := graph.Deserialize(doc, a.registry, a.types)
	if err != nil {
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}
	a.logger.Debug("Graph built from file.", "graph", graphPath, "nodes", len(doc.Nodes))
	return g, nil
}

// Format loads a graph file, checks it against the registry and renders it
// back in canonical form.
func (a *App) Format(ctx context.Context, graphPath string) ([]byte, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	g, err := a.load(ctx, graphPath)
	if err != nil {
		return nil, err
	}
	return a.format.Write(g.Serialize()), nil
}

func (a *App) reportProgress(ctx context.Context, p *graph.Progress, finished <-chan struct{}) {
	ticker := time.NewTicker(a.cfg.Run.ProgressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-finished:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			done, total, current := p.Snapshot()
			a.logger.Info("⏳ Graph run in progress.", "done", done, "total", total, "current", current)
		}
	}
}
