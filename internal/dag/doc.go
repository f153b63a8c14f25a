// Package dag is a small, ordered dependency graph keyed by string IDs. It
// provides cycle detection and a deterministic topological order rooted at a
// chosen set of nodes, which the graph engine uses to schedule node runs.
package dag
