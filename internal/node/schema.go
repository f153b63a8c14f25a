package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/detflow/internal/porttype"
	"github.com/zclconf/go-cty/cty"
)

// Namespace is the run-wide mapping nodes may read and write. A write by one
// node is visible to every node that runs after it in the same run.
type Namespace map[string]any

// Outputs maps output port names to the values a node produced.
type Outputs map[string]any

// ComputeFunc is the body of a node type.
type ComputeFunc func(ctx context.Context, in *Inputs, c Constants, ns Namespace) (Outputs, error)

// Port is a named, typed connection point.
type Port struct {
	Name     string
	Type     porttype.Type
	Optional bool
}

// ConstantDef declares a constant parameter. When AllowExternal is set the
// constant can be switched to an extra input port of the same name.
type ConstantDef struct {
	Name          string
	Type          porttype.Type
	Default       cty.Value
	AllowExternal bool
	Optional      bool
}

// Schema is the declaration of a node type.
type Schema struct {
	Namespace   string
	Class       string
	Description string
	Inputs      []Port
	Outputs     []Port
	Constants   []ConstantDef
	Final       bool
	Compute     ComputeFunc
}

// ID is the stable identifier used to register and serialize the type.
func (s *Schema) ID() string { return s.Namespace + "." + s.Class }

// Input finds an input port by name.
func (s *Schema) Input(name string) (Port, bool) { return findPort(s.Inputs, name) }

// Output finds an output port by name.
func (s *Schema) Output(name string) (Port, bool) { return findPort(s.Outputs, name) }

// Constant finds a constant by name.
func (s *Schema) Constant(name string) (ConstantDef, bool) {
	for _, c := range s.Constants {
		if c.Name == name {
			return c, true
		}
	}
	return ConstantDef{}, false
}

func findPort(ports []Port, name string) (Port, bool) {
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}

// ConstantOption adjusts a constant declaration.
type ConstantOption func(*ConstantDef)

// External lets the constant be driven by a link instead of a literal.
func External() ConstantOption {
	return func(d *ConstantDef) { d.AllowExternal = true }
}

// OptionalConstant lets an external constant resolve to null when it has no
// incoming link.
func OptionalConstant() ConstantOption {
	return func(d *ConstantDef) { d.Optional = true }
}

// Builder assembles a Schema. Errors are collected and reported by Build.
type Builder struct {
	s    Schema
	errs []error
}

// NewSchema starts a schema for namespace.class.
func NewSchema(namespace, class string) *Builder {
	return &Builder{s: Schema{Namespace: namespace, Class: class}}
}

// Describe sets the one-line description shown by the node listing.
func (b *Builder) Describe(text string) *Builder {
	b.s.Description = text
	return b
}

// Input declares a required input port.
func (b *Builder) Input(name string, t porttype.Type) *Builder {
	b.s.Inputs = append(b.s.Inputs, Port{Name: name, Type: t})
	return b
}

// OptionalInput declares an input that may stay unlinked.
func (b *Builder) OptionalInput(name string, t porttype.Type) *Builder {
	b.s.Inputs = append(b.s.Inputs, Port{Name: name, Type: t, Optional: true})
	return b
}

// Output declares an output port.
func (b *Builder) Output(name string, t porttype.Type) *Builder {
	b.s.Outputs = append(b.s.Outputs, Port{Name: name, Type: t})
	return b
}

// Constant declares a constant with a Go default value, which is converted
// to the constant type of t.
func (b *Builder) Constant(name string, t porttype.Type, def any, opts ...ConstantOption) *Builder {
	val, err := porttype.ToCty(t, def)
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("constant '%s': %w", name, err))
		return b
	}
	d := ConstantDef{Name: name, Type: t, Default: val}
	for _, opt := range opts {
		opt(&d)
	}
	b.s.Constants = append(b.s.Constants, d)
	return b
}

// Final marks the type as an execution root.
func (b *Builder) Final() *Builder {
	b.s.Final = true
	return b
}

// Compute sets the node body.
func (b *Builder) Compute(fn ComputeFunc) *Builder {
	b.s.Compute = fn
	return b
}

// Build validates and returns the schema.
func (b *Builder) Build() (*Schema, error) {
	errs := append([]error(nil), b.errs...)
	if b.s.Namespace == "" || b.s.Class == "" {
		errs = append(errs, errors.New("namespace and class are required"))
	}
	if b.s.Compute == nil {
		errs = append(errs, errors.New("compute function is required"))
	}

	seen := map[string]string{}
	claim := func(kind, name string) {
		if prev, ok := seen[kind+":"+name]; ok {
			errs = append(errs, fmt.Errorf("duplicate %s '%s'", prev, name))
			return
		}
		seen[kind+":"+name] = kind
	}
	for _, p := range b.s.Inputs {
		claim("input", p.Name)
	}
	for _, p := range b.s.Outputs {
		claim("output", p.Name)
	}
	for _, c := range b.s.Constants {
		// An external constant becomes an input port of the same name.
		if _, clash := b.s.Input(c.Name); clash {
			errs = append(errs, fmt.Errorf("constant '%s' shadows an input port", c.Name))
		}
		claim("constant", c.Name)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("node type '%s': %w", b.s.ID(), err)
	}
	out := b.s
	return &out, nil
}

// MustBuild is Build for package-level registration; it panics on error.
func (b *Builder) MustBuild() *Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}
