// Package registry provides the central "glue" for the node palette.
//
// Modules register their node schemas here under a stable "namespace.Class"
// identifier; graphs look the schemas up by that identifier when nodes are
// placed or deserialized. During application startup, the registry is
// populated and then validated against the port type registry so that a
// malformed schema fails at boot instead of in the middle of a run.
package registry
