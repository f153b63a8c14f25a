// Package apperr holds the error taxonomy shared by the array algebra, the
// node model and the graph engine. Callers test for a kind with errors.Is;
// the concrete message always carries the offending values.
package apperr

import "errors"

// Index descriptor and array errors.
var (
	ErrInvalidSlice     = errors.New("invalid slice")
	ErrUnsupportedSlice = errors.New("unsupported slice")
	ErrIndexOutOfRange  = errors.New("index out of range")
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrSignalShape      = errors.New("signal shape error")
)

// Node input resolution and graph execution errors.
var (
	ErrMissingInput       = errors.New("missing input")
	ErrNullInput          = errors.New("null input")
	ErrCircularDependency = errors.New("circular dependency")
)

// Array source errors. Collaborators reading files or sockets report one of
// these or a plain I/O error.
var (
	ErrResourceNotFound    = errors.New("resource not found")
	ErrResourceUnavailable = errors.New("resource unavailable")
)

// Graph editing errors.
var (
	ErrUnknownNode       = errors.New("unknown node")
	ErrUnknownNodeType   = errors.New("unknown node type")
	ErrUnknownPort       = errors.New("unknown port")
	ErrIncompatiblePorts = errors.New("incompatible ports")
	ErrInvalidConstant   = errors.New("invalid constant")
)
