// Package graph is the dataflow engine: an editable set of node instances and
// the links between their ports, plus the machinery that runs them.
//
// # Editing
//
// A Graph is an explicit handle; every edit is a method on it and there is no
// package-level state. Nodes are placed with Add from a registry.Registry,
// linked with Connect (checked by porttype.Registry.Accepts), and configured
// with SetConstant and SetExternal. An input port holds at most one link;
// connecting an already linked input replaces the old link.
//
// # Execution
//
// The engine keeps one cached artifact, the execution plan. It is dropped by
// every structural or constant edit and rebuilt on the next run:
//
//  1. snapshot every node with its links and constant bindings;
//  2. walk backward from the final nodes, breadth first, visiting declared
//     inputs before linked constants;
//  3. order the reachable nodes topologically (package dag), failing with
//     apperr.ErrCircularDependency before anything runs.
//
// Calculate then runs the plan in order, keeping each node's outputs in a
// per-run environment. Constants are resolved once per node per run. Any
// failure inside a node, panics included, stops the run and is returned as a
// *NodeExecutionError naming that node.
//
// # Concurrency
//
// Edits are serialized by a mutex and Calculate reads the plan under it, so
// editing from one goroutine while another runs is safe. Running the same
// graph twice at once is not supported: the shared Namespace is not isolated
// between runs.
package graph
