// Package porttype is the nominal type system for graph edges.
//
// A Type is a named, colored tag. Two types are equal when their names are.
// Any is the wildcard sink, and extra directed source-to-sink pairs can be
// registered, Int to Float being the one every registry starts with. The
// check only decides whether an edge may exist; values are never coerced by
// it.
package porttype

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zclconf/go-cty/cty"
)

// Type is a port type. Value is the cty type constants of this port type are
// stored as; it is cty.DynamicPseudoType for types that only carry runtime
// values such as arrays and signals.
type Type struct {
	Name  string
	Color string
	Value cty.Type
}

// Equal compares by name.
func (t Type) Equal(o Type) bool { return t.Name == o.Name }

// HasConstants reports whether values of this type can be written as
// constants.
func (t Type) HasConstants() bool {
	return !t.Value.Equals(cty.DynamicPseudoType)
}

func (t Type) String() string { return t.Name }

// Builtin types.
var (
	Any      = Type{Name: "any", Color: "#d0d0d0", Value: cty.DynamicPseudoType}
	Int      = Type{Name: "int", Color: "#2e86de", Value: cty.Number}
	Float    = Type{Name: "float", Color: "#54a0ff", Value: cty.Number}
	String   = Type{Name: "string", Color: "#10ac84", Value: cty.String}
	Bool     = Type{Name: "bool", Color: "#ee5253", Value: cty.Bool}
	Array    = Type{Name: "array", Color: "#ff9f43", Value: cty.DynamicPseudoType}
	Signal   = Type{Name: "signal", Color: "#f368e0", Value: cty.DynamicPseudoType}
	Plot     = Type{Name: "plot", Color: "#5f27cd", Value: cty.DynamicPseudoType}
	Filter   = Type{Name: "filter", Color: "#01a3a4", Value: cty.DynamicPseudoType}
	Detector = Type{Name: "detector", Color: "#576574", Value: cty.DynamicPseudoType}
)

// Builtins lists the builtin types in registration order.
func Builtins() []Type {
	return []Type{Any, Int, Float, String, Bool, Array, Signal, Plot, Filter, Detector}
}

type pair struct{ src, dst string }

// Registry holds the known types and the extra compatibility table.
type Registry struct {
	mu     sync.RWMutex
	types  map[string]Type
	compat map[pair]struct{}
}

// NewRegistry returns a registry with the builtins and Int -> Float.
func NewRegistry() *Registry {
	r := &Registry{
		types:  make(map[string]Type),
		compat: make(map[pair]struct{}),
	}
	for _, t := range Builtins() {
		r.Register(t)
	}
	r.AddCompatibility(Int, Float)
	return r
}

// Register adds a type. Registering a name twice panics.
func (r *Registry) Register(t Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[t.Name]; exists {
		panic(fmt.Sprintf("port type '%s' already registered", t.Name))
	}
	r.types[t.Name] = t
}

// Lookup finds a type by name.
func (r *Registry) Lookup(name string) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// Types lists every registered type sorted by name.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddCompatibility lets src feed dst.
func (r *Registry) AddCompatibility(src, dst Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compat[pair{src.Name, dst.Name}] = struct{}{}
}

// Accepts reports whether an output of type src may be linked to an input of
// type dst.
func (r *Registry) Accepts(dst, src Type) bool {
	if src.Equal(dst) || dst.Equal(Any) {
		return true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.compat[pair{src.Name, dst.Name}]
	return ok
}
