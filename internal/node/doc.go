// Package node defines the unit of computation of a graph: a Schema with typed
// inputs, outputs and constants, and the ComputeFunc that turns resolved
// Inputs and Constants into Outputs.
//
// Schemas are built explicitly with NewSchema(...).Input(...)...Build() and
// registered once into a registry.Registry under their ID.
package node
